package netx

import (
	"errors"
	"net"
	"net/url"
)

// ShouldRetry reports whether err is a transient transport failure: a
// timeout, or a dial that never reached the server. Errors returned after
// the request was sent are not retried, since CRM and AI calls are not
// idempotent.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return true
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil && urlErr.Err != err {
		return ShouldRetry(urlErr.Err)
	}
	return false
}
