// Package power puts the device into low-power sleep for a fixed duration.
// Everything not committed to the persistent store before SleepFor is lost:
// the caller treats the return from SleepFor as a fresh boot.
package power

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/duskd/internal/clock"
	"github.com/dokzlo13/duskd/internal/daylight"
)

// ErrInvalidDuration is returned for a non-positive sleep duration.
var ErrInvalidDuration = errors.New("sleep duration must be positive")

// Sleeper enters low-power sleep and returns after waking.
type Sleeper interface {
	SleepFor(ctx context.Context, seconds int64) error
}

// RTCSleeper arms the RTC wake alarm and suspends through sysfs.
type RTCSleeper struct {
	root   string
	device string
	state  string
}

// NewRTCSleeper creates a sleeper for /sys/class/rtc/<device>. root prefixes
// every sysfs path and is "/" on a real device.
func NewRTCSleeper(root, device, state string) *RTCSleeper {
	if root == "" {
		root = "/"
	}
	return &RTCSleeper{root: root, device: device, state: state}
}

func (s *RTCSleeper) alarmPath() string {
	return filepath.Join(s.root, "sys", "class", "rtc", s.device, "wakealarm")
}

func (s *RTCSleeper) statePath() string {
	return filepath.Join(s.root, "sys", "power", "state")
}

// SleepFor arms a relative wake alarm and requests suspend. The write to the
// power state file blocks until the system resumes.
func (s *RTCSleeper) SleepFor(ctx context.Context, seconds int64) error {
	if seconds <= 0 {
		return ErrInvalidDuration
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// A pending alarm must be cleared before a new one is accepted.
	if err := writeSysfs(s.alarmPath(), "0"); err != nil {
		return fmt.Errorf("failed to clear wake alarm: %w", err)
	}
	if err := writeSysfs(s.alarmPath(), "+"+strconv.FormatInt(seconds, 10)); err != nil {
		return fmt.Errorf("failed to arm wake alarm: %w", err)
	}

	log.Info().
		Str("device", s.device).
		Str("state", s.state).
		Int64("seconds", seconds).
		Msg("Entering low-power sleep")

	if err := writeSysfs(s.statePath(), s.state); err != nil {
		return fmt.Errorf("failed to suspend: %w", err)
	}
	return nil
}

func writeSysfs(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(value); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// SimulatedSleeper waits in-process instead of suspending.
type SimulatedSleeper struct {
	sleep daylight.SleepFunc
}

// NewSimulatedSleeper creates a simulated sleeper. sleep may be nil.
func NewSimulatedSleeper(sleep daylight.SleepFunc) *SimulatedSleeper {
	if sleep == nil {
		sleep = clock.Sleep
	}
	return &SimulatedSleeper{sleep: sleep}
}

func (s *SimulatedSleeper) SleepFor(ctx context.Context, seconds int64) error {
	if seconds <= 0 {
		return ErrInvalidDuration
	}

	log.Info().Int64("seconds", seconds).Msg("Simulating low-power sleep")
	return s.sleep(ctx, time.Duration(seconds)*time.Second)
}
