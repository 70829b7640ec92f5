package service

import "time"

// Clock supplies the current instant. Injected so recomputation and the
// dashboard read path stay deterministic under test.
type Clock interface {
	Now() time.Time
}

// UTCClock is the production clock
type UTCClock struct{}

func (UTCClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock always returns the same instant (tests)
type FixedClock struct {
	Instant time.Time
}

func (c FixedClock) Now() time.Time {
	return c.Instant
}
