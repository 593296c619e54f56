package control

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultPeriod is the control loop period.
const DefaultPeriod = 10 * time.Millisecond

// Runner drives a Looper at a fixed period on its own goroutine.
type Runner struct {
	looper Looper
	period time.Duration

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	result  chan State
	last    State
	ticks   uint64
	errors  uint64
}

// NewRunner creates a runner. A non-positive period uses DefaultPeriod.
func NewRunner(l Looper, period time.Duration) *Runner {
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Runner{looper: l, period: period}
}

// Keys returns the storage keys owned by the looper.
func (r *Runner) Keys() []string {
	return r.looper.Keys()
}

// Start restores initial into the looper and launches the loop.
func (r *Runner) Start(initial State) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return ErrAlreadyStarted
	}

	r.looper.Restore(initial.Clone())
	r.last = initial.Clone()
	r.stop = make(chan struct{})
	r.result = make(chan State, 1)
	r.started = true

	go r.run()

	log.Debug().Dur("period", r.period).Int("restored", len(initial)).Msg("Control loop started")
	return nil
}

// StopAndDrain stops the loop and returns its final state. When the loop
// does not stop within grace, it returns the state handed to Start together
// with ErrDrainTimeout.
func (r *Runner) StopAndDrain(grace time.Duration) (State, error) {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil, ErrNotStarted
	}
	stop, result, fallback := r.stop, r.result, r.last
	r.started = false
	r.mu.Unlock()

	close(stop)

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case state := <-result:
		return state, nil
	case <-timer.C:
		return fallback, fmt.Errorf("%w (%s)", ErrDrainTimeout, grace)
	}
}

// Stats returns the number of updates run and the number that failed.
func (r *Runner) Stats() (ticks, failures uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ticks, r.errors
}

func (r *Runner) run() {
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	stop, result := r.stop, r.result
	last := time.Now()

	for {
		select {
		case <-stop:
			result <- r.looper.Snapshot()
			return
		case now := <-ticker.C:
			delta := now.Sub(last)
			last = now
			r.update(delta)
		}
	}
}

// update runs one step with panic recovery so a faulty step cannot kill the loop.
func (r *Runner) update(delta time.Duration) {
	var err error
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("panic: %v", rec)
			}
		}()
		err = r.looper.Update(delta)
	}()

	r.mu.Lock()
	r.ticks++
	if err != nil {
		r.errors++
	}
	failures := r.errors
	r.mu.Unlock()

	// Only the first failure is logged at error level; the loop runs every few ms.
	if err != nil {
		if failures == 1 {
			log.Error().Err(err).Msg("Control loop update failed")
		} else {
			log.Debug().Err(err).Uint64("failures", failures).Msg("Control loop update failed")
		}
	}
}
