// Package store holds the persistence backends for conversation sessions,
// the message log, survey answers and the CRM deal index.
//
// memory is process-local and used in tests and development; sqlstore is
// backed by postgres or sqlite through sqlx.
package store
