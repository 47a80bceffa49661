package core

import "errors"

// Error codes surfaced on the wire. Only handshake failures are reported to clients.
const (
	ErrCodeAuthMissing = "AUTH_MISSING"
	ErrCodeAuthInvalid = "AUTH_INVALID"
)

// Reasons an event is discarded without a reply.
var (
	ErrEmptyText    = errors.New("empty message text")
	ErrTextTooLong  = errors.New("message text too long")
	ErrRoomRequired = errors.New("room is required")
	ErrRateLimited  = errors.New("rate limited")
)

// IsMalformed reports whether err means the event was dropped as malformed.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrEmptyText) ||
		errors.Is(err, ErrTextTooLong) ||
		errors.Is(err, ErrRoomRequired) ||
		errors.Is(err, ErrRateLimited)
}
