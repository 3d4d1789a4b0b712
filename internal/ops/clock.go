// Package ops computes the operational day and query windows used by the
// sync engine, the archive job, and the read API. All storage is UTC;
// this package is the only place wall-clock/local-time math happens.
package ops

import "time"

// Clock supplies the current instant. Production code uses RealClock;
// tests inject a fixed clock to pin "now" across ops-day boundaries.
type Clock interface {
	Now() time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

// Now returns the current UTC instant.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant. Used in tests.
type FixedClock struct {
	At time.Time
}

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time { return c.At }
