package control

import (
	"sync"
	"time"
)

// IdleLooper keeps filter state without driving any outputs. It is used when
// no control script is configured.
type IdleLooper struct {
	mu      sync.Mutex
	keys    []string
	state   State
	elapsed time.Duration
}

// NewIdleLooper creates an idle looper owning keys.
func NewIdleLooper(keys []string) *IdleLooper {
	return &IdleLooper{keys: keys, state: State{}}
}

func (l *IdleLooper) Update(delta time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.elapsed += delta
	return nil
}

func (l *IdleLooper) Restore(s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = s.Clone()
}

func (l *IdleLooper) Snapshot() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Clone()
}

func (l *IdleLooper) Keys() []string {
	return l.keys
}

// Elapsed returns the total time passed to Update.
func (l *IdleLooper) Elapsed() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.elapsed
}
