// Package control runs the device-control loop alongside the wake cycle.
//
// The loop is a Looper driven on its own goroutine by a Runner. The only data
// exchanged with the cycle is State: handed in once at Start and handed back
// once by StopAndDrain.
package control

import (
	"errors"
	"maps"
	"time"
)

// Storage keys of the two moving-time filter values.
const (
	KeyDownFilter = "s_dfilter"
	KeyUpFilter   = "s_ufilter"
)

// FilterKeys lists the keys persisted for the staircase filters.
var FilterKeys = []string{KeyDownFilter, KeyUpFilter}

var (
	// ErrDrainTimeout is returned when the loop does not stop within the grace period.
	ErrDrainTimeout = errors.New("control loop did not stop within grace period")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("control task already started")
	// ErrNotStarted is returned by StopAndDrain before Start.
	ErrNotStarted = errors.New("control task not started")
)

// State holds opaque filter values keyed by storage key.
type State map[string]int64

// Clone returns a copy of s.
func (s State) Clone() State {
	if s == nil {
		return State{}
	}
	return maps.Clone(s)
}

// Looper is one step of the control algorithm. Every method is called from a
// single goroutine at a time.
type Looper interface {
	// Update advances the loop by the elapsed time since the previous call.
	Update(delta time.Duration) error
	// Restore seeds the loop with persisted state.
	Restore(State)
	// Snapshot returns the state to persist.
	Snapshot() State
	// Keys lists the storage keys the loop owns.
	Keys() []string
}

// Task is the lifecycle the wake cycle sees.
type Task interface {
	Keys() []string
	Start(initial State) error
	StopAndDrain(grace time.Duration) (State, error)
}
