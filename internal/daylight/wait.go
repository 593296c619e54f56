package daylight

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultPollInterval is how often the wait loops re-sample the clock.
const DefaultPollInterval = 60 * time.Second

// Nower reads the current wall-clock time.
type Nower interface {
	Now() time.Time
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Waiter blocks until phase boundaries are crossed by polling the clock.
// There is no external wake signal; every loop sleeps one interval before
// re-sampling.
type Waiter struct {
	clock    Nower
	loc      *time.Location
	interval time.Duration
	sleep    SleepFunc
}

// NewWaiter creates a waiter. A zero interval uses DefaultPollInterval.
func NewWaiter(c Nower, loc *time.Location, interval time.Duration, sleep SleepFunc) *Waiter {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Waiter{
		clock:    c,
		loc:      loc,
		interval: interval,
		sleep:    sleep,
	}
}

// Now returns the current local time of day.
func (w *Waiter) Now() TimeOfDay {
	return At(w.clock.Now(), w.loc)
}

// WaitUntilSunrise returns once the time of day is past win's sunrise minute.
func (w *Waiter) WaitUntilSunrise(ctx context.Context, win Window) error {
	log.Info().Str("sunrise", win.Sunrise().String()).Msg("Waiting for sunrise")

	sunrise := win.Sunrise()
	for {
		if err := w.sleep(ctx, w.interval); err != nil {
			return err
		}
		now := w.Now()
		if sunrise.Before(now) {
			break
		}
		log.Debug().Str("now", now.String()).Msg("Still before sunrise")
	}

	log.Info().Str("now", w.Now().String()).Msg("Sunrise passed")
	return nil
}

// WaitUntilNextSunrise waits out the evening after today's sunset until the
// clock wraps past midnight, then waits for tomorrow's sunrise.
func (w *Waiter) WaitUntilNextSunrise(ctx context.Context, today, tomorrow Window) error {
	log.Info().
		Str("sunset", today.Sunset().String()).
		Str("next_sunrise", tomorrow.Sunrise().String()).
		Msg("Waiting for next sunrise")

	sunset := today.Sunset()
	for {
		if err := w.sleep(ctx, w.interval); err != nil {
			return err
		}
		now := w.Now()
		if now.Before(sunset) {
			break
		}
		log.Debug().Str("now", now.String()).Msg("Still in the evening")
	}

	return w.WaitUntilSunrise(ctx, tomorrow)
}
