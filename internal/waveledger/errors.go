package waveledger

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRateLimited is returned when a sender waves again before its cooldown elapsed.
	ErrRateLimited = errors.New("wave rate limited: wait for the cooldown to elapse")

	// ErrUnauthorized is returned when a non-owner attempts an owner-only operation.
	ErrUnauthorized = errors.New("caller is not the ledger owner")

	// ErrIndexOutOfRange is returned when an approval toggle names a missing wave.
	ErrIndexOutOfRange = errors.New("wave index out of range")

	// ErrMessageTooLong is returned when a message exceeds the configured cap.
	ErrMessageTooLong = errors.New("wave message too long")

	// ErrOwnerMismatch is returned when a durable ledger was created for a
	// different owner than the one it is being opened with.
	ErrOwnerMismatch = errors.New("ledger owner mismatch")
)

// RateLimitError describes a rejected append. It unwraps to ErrRateLimited.
type RateLimitError struct {
	Sender  Address
	RetryAt int64 // Unix seconds at which the sender may wave again
	At      int64 // ledger time of the rejected append
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: %s may wave again at %s",
		ErrRateLimited, e.Sender, time.Unix(e.RetryAt, 0).UTC().Format(time.RFC3339))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// RetryAfter is the remaining wait measured on the ledger's clock, never below one second.
func (e *RateLimitError) RetryAfter() time.Duration {
	d := time.Duration(e.RetryAt-e.At) * time.Second
	if d < time.Second {
		return time.Second
	}
	return d
}
