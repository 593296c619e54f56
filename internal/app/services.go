package app

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/duskd/internal/clock"
	"github.com/dokzlo13/duskd/internal/config"
	"github.com/dokzlo13/duskd/internal/cycle"
	"github.com/dokzlo13/duskd/internal/daylight"
	"github.com/dokzlo13/duskd/internal/db"
	"github.com/dokzlo13/duskd/internal/kv"
	"github.com/dokzlo13/duskd/internal/ledger"
	"github.com/dokzlo13/duskd/internal/metrics"
	"github.com/dokzlo13/duskd/internal/power"
	"github.com/dokzlo13/duskd/internal/report"
	"github.com/dokzlo13/duskd/internal/suntime"
	"github.com/dokzlo13/duskd/internal/timesync"
)

// Services is a container for everything one wake cycle uses.
// A new container is built for every boot; nothing survives between cycles
// except what the store committed.
type Services struct {
	cfg *config.Config

	// Core infrastructure
	DB       *db.DB
	Store    *kv.SQLiteStore
	Ledger   *ledger.Ledger
	Clock    clock.Clock
	Location *time.Location

	// Cycle collaborators
	Time      *timesync.NTPProvider
	Sun       *suntime.Client
	Waiter    *daylight.Waiter
	Control   *ControlService
	Sleeper   power.Sleeper
	Metrics   *metrics.Registry
	Publisher report.Publisher
}

// NewServices creates all services. Failure to open the store is fatal.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	loc, err := cfg.Geo.Location()
	if err != nil {
		return nil, err
	}
	s.Location = loc

	// Initialize database
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}
	s.DB = database
	s.Store = kv.NewSQLiteStore(database.DB, cfg.Database.Namespace)

	s.Clock = NewClock(cfg.Clock)
	s.Ledger = ledger.New(database.DB, s.Clock.Now)
	s.Metrics = metrics.New()

	s.Time, err = timesync.NewNTPProvider(cfg.NTP.Servers, s.Clock, cfg.NTP.RetryDelay.Duration())
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Sun = NewSunClient(cfg, suntime.WithObserver(s.Metrics))
	s.Waiter = daylight.NewWaiter(s.Clock, loc, daylight.DefaultPollInterval, clock.Sleep)

	s.Control, err = NewControlService(cfg.Control)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Sleeper = NewSleeper(cfg.Power)
	s.Publisher = NewPublisher(cfg.MQTT)

	return s, nil
}

// NewClock returns the clock selected by cfg.
func NewClock(cfg config.ClockConfig) clock.Clock {
	if cfg.Mode == "soft" {
		return clock.NewSoftClock()
	}
	return clock.SystemClock{}
}

// NewSunClient creates a sun time client from configuration.
func NewSunClient(cfg *config.Config, opts ...suntime.Option) *suntime.Client {
	return suntime.NewClient(suntime.Config{
		Host:       cfg.SunTime.Host,
		Lat:        cfg.Geo.Lat,
		Lon:        cfg.Geo.Lon,
		Timezone:   cfg.Geo.Timezone,
		UserAgent:  cfg.SunTime.UserAgent,
		RetryDelay: cfg.SunTime.RetryDelay.Duration(),
		IOTimeout:  cfg.SunTime.IOTimeout.Duration(),
		BufferSize: cfg.SunTime.BufferSize,
		Hysteresis: cfg.SunTime.Hysteresis.Duration(),
	}, opts...)
}

// NewSleeper returns the sleeper selected by cfg.
func NewSleeper(cfg config.PowerConfig) power.Sleeper {
	if cfg.Mode == "simulate" {
		return power.NewSimulatedSleeper(nil)
	}
	return power.NewRTCSleeper("/", cfg.RTCDevice, cfg.State)
}

// NewPublisher returns an MQTT publisher, or a no-op when no broker is set.
func NewPublisher(cfg config.MQTTConfig) report.Publisher {
	if !cfg.IsEnabled() {
		return report.NopPublisher{}
	}
	return report.NewMQTTPublisher(report.MQTTConfig{
		Broker:   cfg.Broker,
		Topic:    cfg.Topic,
		ClientID: cfg.ClientID,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  cfg.Timeout.Duration(),
	}, nil)
}

// CycleDeps wires the services into orchestrator dependencies.
func (s *Services) CycleDeps() cycle.Deps {
	return cycle.Deps{
		Clock:           s.Clock,
		Location:        s.Location,
		Store:           s.Store,
		Time:            s.Time,
		SyncPollTimeout: s.cfg.NTP.PollTimeout.Duration(),
		Sun:             s.Sun,
		Waiter:          s.Waiter,
		Task:            s.Control.Runner,
		DrainGrace:      s.cfg.Control.DrainGrace.Duration(),
		Sleeper:         s.Sleeper,
		Recorder:        s.Ledger,
		Metrics:         s.Metrics,
		MetricsTextfile: s.cfg.Metrics.Textfile,
		Publisher:       s.Publisher,
	}
}

// PruneLedger applies the ledger retention policy.
func (s *Services) PruneLedger() {
	n, err := s.Ledger.DeleteOlderThan(s.cfg.Ledger.Retention())
	if err != nil {
		log.Warn().Err(err).Msg("Failed to prune ledger")
		return
	}
	if n > 0 {
		log.Debug().Int64("deleted", n).Msg("Pruned ledger")
	}
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Control != nil {
		s.Control.Close()
	}
	if s.Publisher != nil {
		if err := s.Publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close publisher")
		}
	}
	if s.Store != nil {
		_ = s.Store.Close()
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			log.Warn().Err(fmt.Errorf("failed to close database: %w", err)).Send()
		}
	}
}
