//go:build !linux

package clock

import "time"

// SystemClock reads the system clock. Setting it is only supported on Linux.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Set always fails on this platform.
func (SystemClock) Set(time.Time) error {
	return ErrUnsupported
}
