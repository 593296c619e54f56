package app

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/duskd/internal/clock"
	"github.com/dokzlo13/duskd/internal/config"
	"github.com/dokzlo13/duskd/internal/cycle"
	"github.com/dokzlo13/duskd/internal/report"
)

// RebootDelay is how long Run waits after a failed cycle before booting again.
const RebootDelay = 5 * time.Second

// App runs wake cycles. Every cycle gets a freshly built Services container,
// the way a device comes back from deep sleep with only its store intact.
type App struct {
	cfg *config.Config

	// newServices is swapped in tests.
	newServices func(*config.Config) (*Services, error)
}

// New creates a new App.
func New(cfg *config.Config) *App {
	return &App{cfg: cfg, newServices: NewServices}
}

// RunCycle boots, runs exactly one cycle and releases everything it opened.
func (a *App) RunCycle(ctx context.Context) (*report.Report, error) {
	services, err := a.newServices(a.cfg)
	if err != nil {
		return nil, err
	}
	defer services.Close()

	services.PruneLedger()

	return cycle.New(services.CycleDeps()).Run(ctx)
}

// Run executes cycles until ctx is cancelled. A failed cycle is treated as
// a reset: the next boot starts after RebootDelay.
func (a *App) Run(ctx context.Context) error {
	log.Info().Msg("duskd started")

	for {
		rep, err := a.RunCycle(ctx)
		switch {
		case ctx.Err() != nil:
			log.Info().Msg("Shutting down...")
			return nil
		case err != nil:
			log.Error().Err(err).Dur("reboot_in", RebootDelay).Msg("Cycle aborted")
			if err := clock.Sleep(ctx, RebootDelay); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
		default:
			log.Info().
				Str("cycle_id", rep.CycleID).
				Int64("slept", rep.SleepSeconds).
				Msg("Woke up")
		}
	}
}

// SignalContext creates a context that is cancelled when SIGINT or SIGTERM is received.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	return ctx
}
