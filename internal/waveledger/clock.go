package waveledger

import "time"

// Clock supplies the ledger's notion of "now". Timestamps are never taken from callers.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })
