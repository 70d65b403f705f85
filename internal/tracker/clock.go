package tracker

import "time"

// Clock is mockable time for deterministic timeout/retry tests.
type Clock interface {
	Now() time.Time
}

// RealClock uses the actual system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }
