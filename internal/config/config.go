// Package config loads avactl settings from the config file, the environment
// and command-line flags, in increasing order of precedence.
package config

import (
	"os"
	"time"

	"codeberg.org/mutker/avactl/internal/errors"
	"codeberg.org/mutker/avactl/internal/logger"
	"codeberg.org/mutker/avactl/internal/metrics"
	"codeberg.org/mutker/avactl/internal/spectrometer"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultConfigPath      = "/etc/avactl.toml"
	DefaultInterval        = 5
	DefaultIntegrationTime = 10.0
	DefaultAverages        = 1
	DefaultPollInterval    = 10
	DefaultPollAttempts    = 1000
	DefaultLogLevel        = "info"

	envPrefix     = "AVACTL"
	configEnvName = "AVACTL_CONFIG"
)

type Config struct {
	Interval         int     `mapstructure:"interval"`
	Count            int     `mapstructure:"count"`
	IntegrationTime  float64 `mapstructure:"integration_time"`
	Averages         int     `mapstructure:"averages"`
	IntegrationDelay int     `mapstructure:"integration_delay"`
	TemperaturePort  int     `mapstructure:"temperature_port"`
	PollInterval     int     `mapstructure:"poll_interval"`
	PollAttempts     int     `mapstructure:"poll_attempts"`
	LogLevel         string  `mapstructure:"log_level"`
	LogFile          string  `mapstructure:"log_file"`
	LockDir          string  `mapstructure:"lock_dir"`

	Metrics             bool          `mapstructure:"metrics"`
	MetricsDB           string        `mapstructure:"metrics_db"`
	MetricsBatchSize    int           `mapstructure:"metrics_batch_size"`
	MetricsBatchTimeout time.Duration `mapstructure:"metrics_batch_timeout"`
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"interval":              "interval",
	"count":                 "count",
	"integration-time":      "integration_time",
	"averages":              "averages",
	"integration-delay":     "integration_delay",
	"temperature-port":      "temperature_port",
	"poll-interval":         "poll_interval",
	"poll-attempts":         "poll_attempts",
	"log-level":             "log_level",
	"log-file":              "log_file",
	"lock-dir":              "lock_dir",
	"metrics":               "metrics",
	"metrics-db":            "metrics_db",
	"metrics-batch-size":    "metrics_batch_size",
	"metrics-batch-timeout": "metrics_batch_timeout",
}

func setDefaults(v *viper.Viper) {
	metricsDefaults := metrics.DefaultConfig()

	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("count", 0)
	v.SetDefault("integration_time", DefaultIntegrationTime)
	v.SetDefault("averages", DefaultAverages)
	v.SetDefault("integration_delay", 0)
	v.SetDefault("temperature_port", 0)
	v.SetDefault("poll_interval", DefaultPollInterval)
	v.SetDefault("poll_attempts", DefaultPollAttempts)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_file", "")
	v.SetDefault("lock_dir", os.TempDir())
	v.SetDefault("metrics", metricsDefaults.Enabled)
	v.SetDefault("metrics_db", metricsDefaults.DBPath)
	v.SetDefault("metrics_batch_size", metricsDefaults.BatchSize)
	v.SetDefault("metrics_batch_timeout", metricsDefaults.BatchTimeout)
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("avactl", pflag.ContinueOnError)

	fs.Int("interval", DefaultInterval, "Seconds between measurements")
	fs.Int("count", 0, "Number of measurements to take (0 runs until stopped)")
	fs.Float64("integration-time", DefaultIntegrationTime, "Integration time in milliseconds")
	fs.Int("averages", DefaultAverages, "Number of readouts averaged per spectrum")
	fs.Int("integration-delay", 0, "Delay before integration in microseconds")
	fs.Int("temperature-port", 0, "Analog input port of the detector thermistor")
	fs.Int("poll-interval", DefaultPollInterval, "Milliseconds between readiness polls")
	fs.Int("poll-attempts", DefaultPollAttempts, "Readiness polls before a measurement times out")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warn, error)")
	fs.String("log-file", "", "Also write logs to this file, rotated")
	fs.String("lock-dir", os.TempDir(), "Directory holding the instrument lock file")
	fs.Bool("metrics", false, "Record a summary of each measurement")
	fs.String("metrics-db", metrics.DefaultConfig().DBPath, "Path of the measurement log database")
	fs.Int("metrics-batch-size", metrics.DefaultConfig().BatchSize, "Measurements buffered before a write")
	fs.Duration("metrics-batch-timeout", metrics.DefaultConfig().BatchTimeout, "Longest time a measurement stays buffered")

	return fs
}

// Load reads the configuration from the file named by AVACTL_CONFIG (or
// /etc/avactl.toml), AVACTL_* environment variables and os.Args, then
// validates it.
func Load() (*Config, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs is Load with an explicit argument list.
func LoadArgs(args []string) (*Config, error) {
	errFactory := errors.New()

	v := viper.New()
	setDefaults(v)

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func readConfigFile(v *viper.Viper) error {
	errFactory := errors.New()

	v.SetConfigType("toml")

	// An explicit path must exist; the default location is optional.
	if path := os.Getenv(configEnvName); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return errFactory.Wrap(errors.ErrReadConfig, err)
		}
		return nil
	}

	if _, err := os.Stat(DefaultConfigPath); err != nil {
		return nil
	}
	v.SetConfigFile(DefaultConfigPath)
	if err := v.ReadInConfig(); err != nil {
		return errFactory.Wrap(errors.ErrReadConfig, err)
	}

	return nil
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	if _, ok := logger.ParseLevel(c.LogLevel); !ok {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}

	switch {
	case c.Count < 0:
		return errFactory.WithData(errors.ErrInvalidConfig, "count must not be negative")
	case c.IntegrationTime <= 0:
		return errFactory.WithData(errors.ErrInvalidConfig, "integration_time must be positive")
	case c.Averages < 1:
		return errFactory.WithData(errors.ErrInvalidConfig, "averages must be at least 1")
	case c.IntegrationDelay < 0:
		return errFactory.WithData(errors.ErrInvalidConfig, "integration_delay must not be negative")
	case c.TemperaturePort < 0:
		return errFactory.WithData(errors.ErrInvalidConfig, "temperature_port must not be negative")
	case c.PollInterval <= 0 || c.PollAttempts <= 0:
		return errFactory.WithData(errors.ErrInvalidConfig, "poll_interval and poll_attempts must be positive")
	}

	if err := c.MetricsConfig().Validate(); err != nil {
		return errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	return nil
}

// MeasurementConfig returns the per-measurement parameters over the full
// detector range.
func (c *Config) MeasurementConfig() spectrometer.MeasurementConfig {
	m := spectrometer.DefaultMeasurementConfig()
	m.IntegrationTime = c.IntegrationTime
	m.Averages = c.Averages
	m.IntegrationDelay = c.IntegrationDelay
	return m
}

func (c *Config) MetricsConfig() metrics.Config {
	return metrics.Config{
		DBPath:       c.MetricsDB,
		Enabled:      c.Metrics,
		BatchSize:    c.MetricsBatchSize,
		BatchTimeout: c.MetricsBatchTimeout,
	}
}

// Polling returns the readiness poll interval and attempt bound.
func (c *Config) Polling() (time.Duration, int) {
	return time.Duration(c.PollInterval) * time.Millisecond, c.PollAttempts
}

func (c *Config) MeasureEvery() time.Duration {
	return time.Duration(c.Interval) * time.Second
}
