package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
geo:
  lat: "44.8125"
  lon: "20.4612"
`))
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "Europe/Belgrade", cfg.Geo.Timezone)
	assert.Equal(t, "api.sunrise-sunset.org", cfg.SunTime.Host)
	assert.Equal(t, 2*time.Second, cfg.SunTime.RetryDelay.Duration())
	assert.Equal(t, 1024, cfg.SunTime.BufferSize)
	assert.Equal(t, 15*time.Minute, cfg.SunTime.Hysteresis.Duration())
	assert.Equal(t, 10*time.Millisecond, cfg.Control.Period.Duration())
	assert.Equal(t, "ts", cfg.Database.Namespace)
	assert.Equal(t, "rtc", cfg.Power.Mode)
	assert.False(t, cfg.MQTT.IsEnabled())
	assert.Equal(t, 30*24*time.Hour, cfg.Ledger.Retention())
}

func TestParse_Durations(t *testing.T) {
	cfg, err := Parse([]byte(`
geo:
  lat: "1"
  lon: "2"
suntime:
  retry_delay: 500ms
ntp:
  poll_timeout: 3s
control:
  drain_grace: 50ms
`))
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, cfg.SunTime.RetryDelay.Duration())
	assert.Equal(t, 3*time.Second, cfg.NTP.PollTimeout.Duration())
	assert.Equal(t, 50*time.Millisecond, cfg.Control.DrainGrace.Duration())
}

func TestParse_EnvExpansion(t *testing.T) {
	t.Setenv("DUSKD_TEST_LAT", "45.25")

	cfg, err := Parse([]byte(`
geo:
  lat: "${DUSKD_TEST_LAT}"
  lon: "${DUSKD_TEST_LON:19.83}"
`))
	require.NoError(t, err)

	assert.Equal(t, "45.25", cfg.Geo.Lat)
	assert.Equal(t, "19.83", cfg.Geo.Lon)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing_location", "log:\n  level: debug\n"},
		{"bad_timezone", "geo:\n  lat: \"1\"\n  lon: \"2\"\n  timezone: Nowhere/Atlantis\n"},
		{"bad_clock_mode", "geo:\n  lat: \"1\"\n  lon: \"2\"\nclock:\n  mode: atomic\n"},
		{"bad_power_mode", "geo:\n  lat: \"1\"\n  lon: \"2\"\npower:\n  mode: hibernate\n"},
		{"fractional_hysteresis", "geo:\n  lat: \"1\"\n  lon: \"2\"\nsuntime:\n  hysteresis: 90s\n"},
		{"bad_duration", "geo:\n  lat: \"1\"\n  lon: \"2\"\nsuntime:\n  retry_delay: soon\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("geo:\n  lat: \"1\"\n  lon: \"2\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "1", cfg.Geo.Lat)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_Example(t *testing.T) {
	cfg, err := Load("../../config.example.yaml")
	require.NoError(t, err)

	assert.Equal(t, "rtc", cfg.Power.Mode)
	assert.Equal(t, 20*time.Millisecond, cfg.Control.DrainGrace.Duration())
	assert.Equal(t, []string{"pool.ntp.org", "132.163.97.2"}, cfg.NTP.Servers)
	assert.False(t, cfg.MQTT.IsEnabled())
}
