package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/duskd/internal/clock"
	"github.com/dokzlo13/duskd/internal/config"
	"github.com/dokzlo13/duskd/internal/control"
	"github.com/dokzlo13/duskd/internal/cycle"
	"github.com/dokzlo13/duskd/internal/db"
	"github.com/dokzlo13/duskd/internal/kv"
	"github.com/dokzlo13/duskd/internal/ledger"
	"github.com/dokzlo13/duskd/internal/power"
	"github.com/dokzlo13/duskd/internal/report"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.Geo.Lat = "44.8125"
	cfg.Geo.Lon = "20.4612"
	cfg.Database.Path = filepath.Join(t.TempDir(), "duskd.sqlite")
	cfg.Clock.Mode = "soft"
	cfg.Power.Mode = "simulate"
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNewServices_WiresCollaborators(t *testing.T) {
	cfg := testConfig(t)

	s, err := NewServices(cfg)
	require.NoError(t, err)
	defer s.Close()

	assert.IsType(t, &clock.SoftClock{}, s.Clock)
	assert.IsType(t, &power.SimulatedSleeper{}, s.Sleeper)
	assert.IsType(t, report.NopPublisher{}, s.Publisher)
	assert.Equal(t, "Europe/Belgrade", s.Location.String())

	deps := s.CycleDeps()
	assert.Same(t, s.Store, deps.Store)
	assert.Same(t, s.Control.Runner, deps.Task)
	assert.Equal(t, cfg.Control.DrainGrace.Duration(), deps.DrainGrace)
	assert.Equal(t, cfg.NTP.PollTimeout.Duration(), deps.SyncPollTimeout)
	assert.NotNil(t, deps.Metrics)
	assert.NotNil(t, deps.Recorder)
}

func TestNewServices_BadDatabasePath(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Path = filepath.Join(t.TempDir(), "missing", "dir", "duskd.sqlite")

	_, err := NewServices(cfg)
	assert.Error(t, err)
}

func TestNewSleeperAndPublisher(t *testing.T) {
	assert.IsType(t, &power.RTCSleeper{}, NewSleeper(config.PowerConfig{Mode: "rtc", RTCDevice: "rtc0", State: "mem"}))
	assert.IsType(t, &power.SimulatedSleeper{}, NewSleeper(config.PowerConfig{Mode: "simulate"}))

	assert.IsType(t, report.NopPublisher{}, NewPublisher(config.MQTTConfig{}))
	assert.IsType(t, &report.MQTTPublisher{}, NewPublisher(config.MQTTConfig{Broker: "tcp://127.0.0.1:1883", Topic: "t"}))
}

func TestNewControlService(t *testing.T) {
	t.Run("idle_without_script", func(t *testing.T) {
		s, err := NewControlService(config.ControlConfig{})
		require.NoError(t, err)
		defer s.Close()

		assert.Equal(t, control.FilterKeys, s.Runner.Keys())
	})

	t.Run("lua_script", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "control.lua")
		require.NoError(t, os.WriteFile(path, []byte("function update(dt) end\n"), 0o644))

		s, err := NewControlService(config.ControlConfig{Script: path})
		require.NoError(t, err)
		defer s.Close()

		assert.Equal(t, control.FilterKeys, s.Runner.Keys())
	})

	t.Run("missing_script", func(t *testing.T) {
		_, err := NewControlService(config.ControlConfig{Script: filepath.Join(t.TempDir(), "nope.lua")})
		assert.Error(t, err)
	})
}

func TestInspect(t *testing.T) {
	cfg := testConfig(t)

	database, err := db.Open(cfg.Database.Path)
	require.NoError(t, err)

	store := kv.NewSQLiteStore(database.DB, cfg.Database.Namespace)
	require.NoError(t, store.SetInt64(clock.KeyEpoch, 1700000000))
	require.NoError(t, store.SetInt64(cycle.KeyBoots, 4))
	require.NoError(t, store.Commit())
	require.NoError(t, ledger.New(database.DB, nil).Append("c1", ledger.EventCycleStarted, nil))
	require.NoError(t, database.Close())

	st, err := Inspect(cfg, 10)
	require.NoError(t, err)

	assert.Equal(t, map[string]int64{clock.KeyEpoch: 1700000000, cycle.KeyBoots: 4}, st.Values)
	require.Len(t, st.Recent, 1)
	assert.Equal(t, "c1", st.Recent[0].CycleID)
}

func TestApp_RunCycleServicesError(t *testing.T) {
	boom := errors.New("boom")
	a := New(testConfig(t))
	a.newServices = func(*config.Config) (*Services, error) { return nil, boom }

	_, err := a.RunCycle(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	a := New(testConfig(t))
	a.newServices = func(*config.Config) (*Services, error) { return nil, errors.New("boom") }

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(t, a.Run(ctx))
}
