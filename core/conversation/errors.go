package conversation

import "errors"

var (
	// ErrMalformedInbound reports an inbound event missing its session id or text.
	ErrMalformedInbound = errors.New("malformed inbound event")
	// ErrChannelMismatch reports a session id that another channel owns.
	ErrChannelMismatch = errors.New("session belongs to another channel")
	// ErrStoreUnavailable reports a failed session or message store call.
	ErrStoreUnavailable = errors.New("conversation store unavailable")
	// ErrResponder reports a failed or timed out language model call.
	ErrResponder = errors.New("ai responder failed")
	// ErrCRMSync reports a failed CRM call.
	ErrCRMSync = errors.New("crm sync failed")
)
