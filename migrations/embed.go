// Package migrations embeds the SQL schema for every supported database driver.
package migrations

import "embed"

// FS holds the up/down migration files under postgres/ and sqlite/.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
