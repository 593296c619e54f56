// Package cycle sequences one wake cycle: restore the clock, sync time, fetch
// sun data, wait out the current day phase while the control loop runs, drain
// the loop, persist the next wake instant and sleep.
package cycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/duskd/internal/clock"
	"github.com/dokzlo13/duskd/internal/control"
	"github.com/dokzlo13/duskd/internal/daylight"
	"github.com/dokzlo13/duskd/internal/kv"
	"github.com/dokzlo13/duskd/internal/ledger"
	"github.com/dokzlo13/duskd/internal/metrics"
	"github.com/dokzlo13/duskd/internal/power"
	"github.com/dokzlo13/duskd/internal/report"
	"github.com/dokzlo13/duskd/internal/suntime"
	"github.com/dokzlo13/duskd/internal/timesync"
)

// KeyBoots is the store key of the boot counter.
const KeyBoots = "boots"

// SunFetcher returns one day's adjusted sun window. *suntime.Client satisfies it.
type SunFetcher interface {
	Fetch(ctx context.Context, day suntime.Day) (*suntime.Result, error)
}

// PhaseWaiter blocks until a phase boundary. *daylight.Waiter satisfies it.
type PhaseWaiter interface {
	WaitUntilSunrise(ctx context.Context, w daylight.Window) error
	WaitUntilNextSunrise(ctx context.Context, today, tomorrow daylight.Window) error
}

// Recorder appends cycle events. *ledger.Ledger satisfies it.
type Recorder interface {
	Append(cycleID string, eventType ledger.EventType, payload map[string]any) error
}

type syncResulter interface {
	Result() (timesync.Sync, bool)
}

// Deps are the collaborators of one cycle. Recorder, Metrics and Publisher
// are optional.
type Deps struct {
	Clock    clock.Clock
	Location *time.Location
	Store    kv.Store

	Time            timesync.Provider
	SyncPollTimeout time.Duration

	Sun    SunFetcher
	Waiter PhaseWaiter

	Task       control.Task
	DrainGrace time.Duration

	Sleeper power.Sleeper

	Recorder        Recorder
	Metrics         *metrics.Registry
	MetricsTextfile string
	Publisher       report.Publisher
}

// Orchestrator runs a single wake cycle. Build a new one per boot.
type Orchestrator struct {
	deps   Deps
	clock  *clock.Store
	id     string
	state  State
	logger zerolog.Logger

	taskRunning bool
}

// New creates an orchestrator with a fresh cycle id.
func New(deps Deps) *Orchestrator {
	if deps.SyncPollTimeout <= 0 {
		deps.SyncPollTimeout = 2 * time.Second
	}
	if deps.DrainGrace <= 0 {
		deps.DrainGrace = 20 * time.Millisecond
	}
	if deps.Publisher == nil {
		deps.Publisher = report.NopPublisher{}
	}

	id := uuid.NewString()
	return &Orchestrator{
		deps:   deps,
		clock:  clock.NewStore(deps.Clock, deps.Store),
		id:     id,
		state:  StateBooting,
		logger: log.With().Str("cycle_id", id).Logger(),
	}
}

// ID returns the cycle id.
func (o *Orchestrator) ID() string {
	return o.id
}

// State returns the current state.
func (o *Orchestrator) State() State {
	return o.state
}

func (o *Orchestrator) transition(s State) {
	o.state = s
	o.logger.Info().Str("state", s.String()).Msg("Cycle state")
}

func (o *Orchestrator) record(eventType ledger.EventType, payload map[string]any) {
	if o.deps.Recorder == nil {
		return
	}
	if err := o.deps.Recorder.Append(o.id, eventType, payload); err != nil {
		o.logger.Warn().Err(err).Str("event", string(eventType)).Msg("Failed to record cycle event")
	}
}

// Run executes the cycle and returns after the device wakes from sleep.
// Errors are fatal to the cycle: storage failures, control task start failure,
// a failed sleep, or ctx cancellation. Everything else is retried or logged.
func (o *Orchestrator) Run(ctx context.Context) (rep *report.Report, err error) {
	rep = &report.Report{CycleID: o.id, StartedAt: o.deps.Clock.Now()}

	// Never leave the control loop running on an aborted cycle.
	defer func() {
		if o.taskRunning {
			if _, drainErr := o.deps.Task.StopAndDrain(o.deps.DrainGrace); drainErr != nil {
				o.logger.Warn().Err(drainErr).Msg("Failed to stop control loop on abort")
			}
			o.taskRunning = false
		}
		if err != nil {
			rep = nil
		}
	}()

	if err := o.boot(rep); err != nil {
		return nil, err
	}
	if err := o.acquireTime(ctx, rep); err != nil {
		return nil, err
	}

	today, tomorrow, err := o.fetchSunData(ctx, rep)
	if err != nil {
		return nil, err
	}

	active, err := o.awaitPhaseBoundary(ctx, today, tomorrow, rep)
	if err != nil {
		return nil, err
	}

	if err := o.drain(rep); err != nil {
		return nil, err
	}
	if err := o.sleep(ctx, active, rep); err != nil {
		return nil, err
	}
	return rep, nil
}

// boot restores the clock, bumps the boot counter and starts the control task.
func (o *Orchestrator) boot(rep *report.Report) error {
	o.transition(StateBooting)

	epoch, err := o.clock.Load()
	switch {
	case errors.Is(err, kv.ErrNotFound):
		o.logger.Warn().Msg("No stored time, continuing with platform clock")
	case err != nil:
		o.logger.Warn().Err(err).Msg("Failed to load stored time, continuing with platform clock")
	}
	o.logNow("Current time after restore")

	boots, err := o.deps.Store.GetInt64(KeyBoots)
	if err != nil && !errors.Is(err, kv.ErrNotFound) {
		return fmt.Errorf("failed to read boot counter: %w", err)
	}
	boots++
	if err := o.deps.Store.SetInt64(KeyBoots, boots); err != nil {
		return fmt.Errorf("failed to write boot counter: %w", err)
	}
	if err := o.deps.Store.Commit(); err != nil {
		return fmt.Errorf("failed to commit boot counter: %w", err)
	}
	rep.Boots = boots
	o.logger.Info().Int64("boots", boots).Msg("Booted")

	if o.deps.Metrics != nil {
		o.deps.Metrics.Boots.Set(float64(boots))
	}
	o.record(ledger.EventCycleStarted, map[string]any{
		"boots":        boots,
		"stored_epoch": epoch,
	})

	initial, err := o.loadTaskState()
	if err != nil {
		return err
	}
	if err := o.deps.Task.Start(initial); err != nil {
		return fmt.Errorf("failed to start control task: %w", err)
	}
	o.taskRunning = true
	return nil
}

// loadTaskState reads the keys the control task owns. Missing keys are left
// out so the task keeps its own defaults.
func (o *Orchestrator) loadTaskState() (control.State, error) {
	state := control.State{}
	for _, key := range o.deps.Task.Keys() {
		v, err := o.deps.Store.GetInt64(key)
		if errors.Is(err, kv.ErrNotFound) {
			o.logger.Debug().Str("key", key).Msg("No stored control state")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read control state %q: %w", key, err)
		}
		state[key] = v
	}
	return state, nil
}

func (o *Orchestrator) acquireTime(ctx context.Context, rep *report.Report) error {
	o.transition(StateAcquiringTime)

	if err := timesync.WaitForSync(ctx, o.deps.Time, o.deps.SyncPollTimeout); err != nil {
		return fmt.Errorf("time sync aborted: %w", err)
	}
	o.logNow("Current time after sync")

	payload := map[string]any{}
	if r, ok := o.deps.Time.(syncResulter); ok {
		if res, ok := r.Result(); ok {
			rep.SyncServer = res.Server
			payload["server"] = res.Server
			payload["offset_ms"] = res.Offset.Milliseconds()
			payload["attempts"] = res.Attempts
			if o.deps.Metrics != nil {
				o.deps.Metrics.SyncOffset.Set(res.Offset.Seconds())
			}
		}
	}
	o.record(ledger.EventTimeSynced, payload)
	return nil
}

func (o *Orchestrator) fetchSunData(ctx context.Context, rep *report.Report) (today, tomorrow daylight.Window, err error) {
	o.transition(StateFetchingSunData)

	results := make([]*suntime.Result, 0, 2)
	for _, day := range []suntime.Day{suntime.Today, suntime.Tomorrow} {
		res, err := o.deps.Sun.Fetch(ctx, day)
		if err != nil {
			return daylight.Window{}, daylight.Window{}, fmt.Errorf("sun data fetch aborted: %w", err)
		}

		if res.Attempts > 1 {
			o.record(ledger.EventFetchFailed, map[string]any{
				"day":      string(day),
				"failures": res.Attempts - 1,
			})
		}
		o.record(ledger.EventSunDataFetched, map[string]any{
			"day":      string(day),
			"raw":      res.Raw.String(),
			"window":   res.Window.String(),
			"attempts": res.Attempts,
		})

		rep.FetchAttempts += res.Attempts
		results = append(results, res)
	}

	rep.Today = results[0].Window.String()
	rep.Tomorrow = results[1].Window.String()
	return results[0].Window, results[1].Window, nil
}

// awaitPhaseBoundary waits out the phase the device woke into and returns
// the window whose sunset ends the next active period.
func (o *Orchestrator) awaitPhaseBoundary(ctx context.Context, today, tomorrow daylight.Window, rep *report.Report) (daylight.Window, error) {
	o.transition(StateAwaitingPhaseBoundary)

	now := daylight.At(o.deps.Clock.Now(), o.deps.Location)
	phase := daylight.Evaluate(now, today)
	rep.Phase = phase.String()

	o.logger.Info().
		Str("now", now.String()).
		Str("today", today.String()).
		Str("phase", phase.String()).
		Msg("Day phase evaluated")
	if o.deps.Metrics != nil {
		o.deps.Metrics.SetPhase(phase.String())
	}

	active := today
	switch phase {
	case daylight.BeforeSunrise:
		if err := o.deps.Waiter.WaitUntilSunrise(ctx, today); err != nil {
			return daylight.Window{}, fmt.Errorf("wait for sunrise aborted: %w", err)
		}
	case daylight.AfterSunset:
		if err := o.deps.Waiter.WaitUntilNextSunrise(ctx, today, tomorrow); err != nil {
			return daylight.Window{}, fmt.Errorf("wait for next sunrise aborted: %w", err)
		}
		active = tomorrow
	}

	rep.Active = active.String()
	return active, nil
}

// drain stops the control task and stages its state. A drain timeout keeps
// the state the task was started with.
func (o *Orchestrator) drain(rep *report.Report) error {
	o.transition(StateDraining)

	start := time.Now()
	state, err := o.deps.Task.StopAndDrain(o.deps.DrainGrace)
	o.taskRunning = false
	elapsed := time.Since(start)

	if o.deps.Metrics != nil {
		o.deps.Metrics.DrainSeconds.Set(elapsed.Seconds())
	}
	if err != nil {
		rep.DrainTimedOut = errors.Is(err, control.ErrDrainTimeout)
		if rep.DrainTimedOut && o.deps.Metrics != nil {
			o.deps.Metrics.DrainTimeouts.Inc()
		}
		o.logger.Warn().Err(err).Msg("Control loop drain failed, keeping previous state")
	}

	for key, v := range state {
		if err := o.deps.Store.SetInt64(key, v); err != nil {
			return fmt.Errorf("failed to stage control state %q: %w", key, err)
		}
	}

	o.logger.Info().Dur("elapsed", elapsed).Int("keys", len(state)).Msg("Control loop drained")
	o.record(ledger.EventDrained, map[string]any{
		"state":     map[string]int64(state),
		"timed_out": rep.DrainTimedOut,
	})
	return nil
}

// sleep computes the interval to the active sunset, reports, persists the
// predicted wake instant, commits the store and sleeps. The clock store is
// the last write before commit.
func (o *Orchestrator) sleep(ctx context.Context, active daylight.Window, rep *report.Report) error {
	o.transition(StateSleeping)

	now := daylight.At(o.deps.Clock.Now(), o.deps.Location)
	seconds, valid := daylight.SleepSeconds(now, active)
	if seconds <= 0 {
		seconds, valid = daylight.FallbackSleepSeconds, false
	}
	if !valid {
		o.logger.Warn().
			Str("now", now.String()).
			Str("sunset", active.Sunset().String()).
			Int64("seconds", seconds).
			Msg("Already past sunset, using fallback sleep")
	}

	finished := o.deps.Clock.Now()
	rep.SleepSeconds = seconds
	rep.SleepValid = valid
	rep.FinishedAt = finished
	rep.WakeAt = finished.Add(time.Duration(seconds) * time.Second)

	o.record(ledger.EventSleepScheduled, map[string]any{
		"seconds": seconds,
		"valid":   valid,
		"wake_at": rep.WakeAt.Unix(),
	})
	o.flushMetrics(rep)
	if err := o.deps.Publisher.Publish(ctx, rep); err != nil {
		o.logger.Warn().Err(err).Msg("Failed to publish cycle report")
	}

	seconds, valid = o.deductElapsed(finished, seconds, valid, rep)

	if err := o.clock.Store(seconds); err != nil {
		return err
	}
	if err := o.deps.Store.Commit(); err != nil {
		return fmt.Errorf("failed to commit store: %w", err)
	}
	if err := o.deps.Store.Close(); err != nil {
		o.logger.Warn().Err(err).Msg("Failed to close store")
	}

	o.logger.Info().
		Int64("seconds", seconds).
		Bool("valid", valid).
		Time("wake_at", rep.WakeAt).
		Msg("Sleeping")

	if err := o.deps.Sleeper.SleepFor(ctx, seconds); err != nil {
		return fmt.Errorf("failed to sleep: %w", err)
	}
	return nil
}

// deductElapsed shortens the sleep by the time spent since it was computed,
// so the wake instant stays on target. An interval used up entirely falls
// back to the short retry sleep.
func (o *Orchestrator) deductElapsed(computedAt time.Time, seconds int64, valid bool, rep *report.Report) (int64, bool) {
	elapsed := int64(o.deps.Clock.Now().Sub(computedAt) / time.Second)
	if elapsed <= 0 {
		return seconds, valid
	}

	remaining := seconds - elapsed
	if remaining <= 0 {
		remaining, valid = daylight.FallbackSleepSeconds, false
	}
	o.logger.Debug().
		Int64("elapsed", elapsed).
		Int64("seconds", remaining).
		Msg("Sleep shortened by reporting time")

	rep.SleepSeconds = remaining
	rep.SleepValid = valid
	rep.WakeAt = o.deps.Clock.Now().Add(time.Duration(remaining) * time.Second)
	return remaining, valid
}

func (o *Orchestrator) flushMetrics(rep *report.Report) {
	if o.deps.Metrics == nil {
		return
	}
	o.deps.Metrics.RecordSleep(rep.SleepSeconds, rep.SleepValid, float64(rep.FinishedAt.Unix()))
	if o.deps.MetricsTextfile == "" {
		return
	}
	if err := o.deps.Metrics.WriteTextfile(o.deps.MetricsTextfile); err != nil {
		o.logger.Warn().Err(err).Msg("Failed to write metrics")
	}
}

func (o *Orchestrator) logNow(msg string) {
	o.logger.Info().Time("now", o.deps.Clock.Now().In(o.deps.Location)).Msg(msg)
}
