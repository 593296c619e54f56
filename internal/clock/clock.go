// Package clock provides the wall clock used by the wake cycle and the
// persistence of that clock across low-power sleep.
//
// Low-power sleep may stop the real-time clock, so the cycle writes down the
// instant it expects to wake at and applies it on the next boot, before a
// network time source is available.
package clock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrUnsupported is returned when the platform cannot set the system clock.
var ErrUnsupported = errors.New("clock: setting the system clock is not supported on this platform")

// Clock is the interface for reading and setting wall-clock time.
type Clock interface {
	Now() time.Time
	Set(t time.Time) error
}

// SoftClock is a process-local clock: time.Now shifted by an offset that Set
// adjusts. Use it when the process may not set the system clock.
type SoftClock struct {
	mu     sync.RWMutex
	offset time.Duration
}

// NewSoftClock creates a soft clock that starts at the system time.
func NewSoftClock() *SoftClock {
	return &SoftClock{}
}

// Now returns the shifted time.
func (c *SoftClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Now().Add(c.offset)
}

// Set shifts the clock so that Now returns t.
func (c *SoftClock) Set(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset = time.Until(t)
	return nil
}

// MockClock is a test clock with controllable time.
type MockClock struct {
	mu      sync.RWMutex
	current time.Time
}

// NewMockClock creates a mock clock set to the given time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{current: t}
}

// Now returns the mock time.
func (c *MockClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Set sets the mock time.
func (c *MockClock) Set(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
	return nil
}

// Advance advances the mock time by d.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// Sleep advances the clock instead of blocking. It matches the signature the
// wait loops use for their sleep function.
func (c *MockClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.Advance(d)
	return nil
}

// Sleep blocks for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
