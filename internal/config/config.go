package config

import (
	"fmt"
	"os"
	"regexp"
	"time"
	_ "time/tzdata" // devices often ship without zoneinfo

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Log      LogConfig      `yaml:"log"`
	Geo      GeoConfig      `yaml:"geo"`
	SunTime  SunTimeConfig  `yaml:"suntime"`
	NTP      NTPConfig      `yaml:"ntp"`
	Database DatabaseConfig `yaml:"database"`
	Control  ControlConfig  `yaml:"control"`
	Clock    ClockConfig    `yaml:"clock"`
	Power    PowerConfig    `yaml:"power"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Ledger   LedgerConfig   `yaml:"ledger"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"json"`
}

// GetLevel returns the configured level, defaulting to info
func (c LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
}

// GeoConfig contains the device location. Lat/Lon are passed to the sun-time
// API verbatim, so they are kept as strings to avoid float formatting drift.
type GeoConfig struct {
	Lat      string `yaml:"lat"`
	Lon      string `yaml:"lon"`
	Timezone string `yaml:"timezone"`
}

// Location loads the configured time zone
func (c GeoConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SunTimeConfig contains sunrise/sunset API settings
type SunTimeConfig struct {
	Host       string   `yaml:"host"`        // API host, dialled on port 443
	UserAgent  string   `yaml:"user_agent"`  // User-Agent header
	RetryDelay Duration `yaml:"retry_delay"` // Fixed delay between failed attempts
	IOTimeout  Duration `yaml:"io_timeout"`  // Deadline for a single attempt
	BufferSize int      `yaml:"buffer_size"` // Capture buffer capacity in bytes
	Hysteresis Duration `yaml:"hysteresis"`  // Margin applied to sunrise/sunset
}

// NTPConfig contains time synchronisation settings
type NTPConfig struct {
	Servers     []string `yaml:"servers"`
	PollTimeout Duration `yaml:"poll_timeout"` // Bounded wait per status poll
	RetryDelay  Duration `yaml:"retry_delay"`  // Delay between failed queries
}

// DatabaseConfig contains persistent store settings
type DatabaseConfig struct {
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// ControlConfig contains device-control task settings
type ControlConfig struct {
	Script     string   `yaml:"script"`      // Lua control script; empty runs the idle looper
	Period     Duration `yaml:"period"`      // Control loop period
	DrainGrace Duration `yaml:"drain_grace"` // Max wait for the loop to stop
}

// ClockConfig selects how the wall clock is set
type ClockConfig struct {
	Mode string `yaml:"mode"` // "system" or "soft"
}

// PowerConfig selects the low-power sleep implementation
type PowerConfig struct {
	Mode      string `yaml:"mode"`       // "rtc" or "simulate"
	RTCDevice string `yaml:"rtc_device"` // e.g. rtc0
	State     string `yaml:"state"`      // value written to /sys/power/state
}

// MetricsConfig contains metrics export settings
type MetricsConfig struct {
	Textfile string `yaml:"textfile"` // node_exporter textfile path (empty = disabled)
}

// MQTTConfig contains cycle report publishing settings
type MQTTConfig struct {
	Broker   string   `yaml:"broker"` // empty = disabled
	Topic    string   `yaml:"topic"`
	ClientID string   `yaml:"client_id"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	Timeout  Duration `yaml:"timeout"`
}

// IsEnabled returns true if a broker is configured
func (c MQTTConfig) IsEnabled() bool {
	return c.Broker != ""
}

// LedgerConfig contains cycle ledger settings
type LedgerConfig struct {
	RetentionDays int `yaml:"retention_days"`
}

// Retention returns the retention period as a duration
func (c LedgerConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration bytes and applies defaults
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	// Geo defaults
	if cfg.Geo.Timezone == "" {
		cfg.Geo.Timezone = "Europe/Belgrade"
	}

	// Sun time API defaults
	if cfg.SunTime.Host == "" {
		cfg.SunTime.Host = "api.sunrise-sunset.org"
	}
	if cfg.SunTime.UserAgent == "" {
		cfg.SunTime.UserAgent = "duskd/1.0"
	}
	if cfg.SunTime.RetryDelay == 0 {
		cfg.SunTime.RetryDelay = Duration(2 * time.Second)
	}
	if cfg.SunTime.IOTimeout == 0 {
		cfg.SunTime.IOTimeout = Duration(10 * time.Second)
	}
	if cfg.SunTime.BufferSize == 0 {
		cfg.SunTime.BufferSize = 1024
	}
	if cfg.SunTime.Hysteresis == 0 {
		cfg.SunTime.Hysteresis = Duration(15 * time.Minute)
	}

	// NTP defaults
	if len(cfg.NTP.Servers) == 0 {
		cfg.NTP.Servers = []string{"pool.ntp.org", "132.163.97.2"}
	}
	if cfg.NTP.PollTimeout == 0 {
		cfg.NTP.PollTimeout = Duration(2 * time.Second)
	}
	if cfg.NTP.RetryDelay == 0 {
		cfg.NTP.RetryDelay = Duration(2 * time.Second)
	}

	// Store defaults
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./duskd.sqlite"
	}
	if cfg.Database.Namespace == "" {
		cfg.Database.Namespace = "ts"
	}

	// Control task defaults
	if cfg.Control.Period == 0 {
		cfg.Control.Period = Duration(10 * time.Millisecond)
	}
	if cfg.Control.DrainGrace == 0 {
		cfg.Control.DrainGrace = Duration(20 * time.Millisecond)
	}

	if cfg.Clock.Mode == "" {
		cfg.Clock.Mode = "system"
	}

	// Power defaults
	if cfg.Power.Mode == "" {
		cfg.Power.Mode = "rtc"
	}
	if cfg.Power.RTCDevice == "" {
		cfg.Power.RTCDevice = "rtc0"
	}
	if cfg.Power.State == "" {
		cfg.Power.State = "mem"
	}

	// MQTT defaults (only used when a broker is set)
	if cfg.MQTT.Topic == "" {
		cfg.MQTT.Topic = "duskd/cycle"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "duskd"
	}
	if cfg.MQTT.Timeout == 0 {
		cfg.MQTT.Timeout = Duration(5 * time.Second)
	}

	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}
}

// Validate checks values that have no sensible default
func (c *Config) Validate() error {
	if c.Geo.Lat == "" || c.Geo.Lon == "" {
		return fmt.Errorf("geo.lat and geo.lon are required")
	}
	if _, err := c.Geo.Location(); err != nil {
		return err
	}
	switch c.Clock.Mode {
	case "system", "soft":
	default:
		return fmt.Errorf("unknown clock.mode %q", c.Clock.Mode)
	}
	switch c.Power.Mode {
	case "rtc", "simulate":
	default:
		return fmt.Errorf("unknown power.mode %q", c.Power.Mode)
	}
	if c.SunTime.Hysteresis.Duration()%time.Minute != 0 || c.SunTime.Hysteresis < 0 {
		return fmt.Errorf("suntime.hysteresis must be a non-negative whole number of minutes")
	}
	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
