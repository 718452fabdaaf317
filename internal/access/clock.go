// Package access decides who may watch which banner and keeps the purchase ledger.
//
// Every instant handled here is compared in UTC so that day buckets and window
// boundaries do not depend on the host time zone.
package access

import "time"

// Clock supplies the current instant
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

// Now returns the current time in UTC
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// FixedClock always returns the same instant
type FixedClock struct {
	At time.Time
}

// Now returns the fixed instant in UTC
func (c FixedClock) Now() time.Time {
	return c.At.UTC()
}
