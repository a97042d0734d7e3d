// Package config loads the application configuration from a YAML file,
// filling unset fields from defaults.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stablebook/stablesync/internal/errors"
)

// Duration wraps time.Duration so YAML can carry "15m" notation.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
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

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// APIConfig describes the hosted API the sync engine talks to.
type APIConfig struct {
	BaseURL   string   `yaml:"base_url"`
	Token     string   `yaml:"token"`
	ProbeAddr string   `yaml:"probe_addr"` // host:port for the connectivity probe
	Timeout   Duration `yaml:"timeout"`
}

// SyncConfig carries the scheduler and queue tuning knobs.
type SyncConfig struct {
	Interval    Duration `yaml:"interval"`
	Flex        Duration `yaml:"flex"`
	BackoffBase Duration `yaml:"backoff_base"`
	MaxAttempts int      `yaml:"max_attempts"`
	BatchLimit  int      `yaml:"batch_limit"`
}

// ServeConfig configures the local status endpoint.
type ServeConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Config is the full application configuration.
type Config struct {
	DataDir string      `yaml:"data_dir"`
	UserID  string      `yaml:"user_id"`
	API     APIConfig   `yaml:"api"`
	Sync    SyncConfig  `yaml:"sync"`
	Serve   ServeConfig `yaml:"serve"`
}

// Default returns the stock configuration.
func Default() *Config {
	return &Config{
		DataDir: "./data",
		API: APIConfig{
			BaseURL:   "https://api.stablebook.app",
			ProbeAddr: "api.stablebook.app:443",
			Timeout:   Duration(30 * time.Second),
		},
		Sync: SyncConfig{
			Interval:    Duration(15 * time.Minute),
			Flex:        Duration(5 * time.Minute),
			BackoffBase: Duration(1 * time.Minute),
			MaxAttempts: 5,
			BatchLimit:  50,
		},
		Serve: ServeConfig{
			ListenAddr: "127.0.0.1:8790",
		},
	}
}

// Load reads the YAML file at path over the defaults. A missing path
// returns the defaults untouched.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Fall through to defaults.
		case err != nil:
			return nil, errors.Wrap(errors.ErrConfigInvalid, "failed to read config file", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errors.Wrap(errors.ErrConfigInvalid, "failed to parse config file", err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables on top of the file values.
// The token especially should not have to live in a file on disk.
func (c *Config) applyEnv() {
	if v := os.Getenv("STABLESYNC_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("STABLESYNC_API_TOKEN"); v != "" {
		c.API.Token = v
	}
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return errors.New(errors.ErrConfigInvalid, "data_dir must not be empty")
	}
	if c.API.BaseURL == "" {
		return errors.New(errors.ErrConfigInvalid, "api.base_url must not be empty")
	}
	if c.Sync.Interval.Std() <= 0 {
		return errors.New(errors.ErrConfigInvalid, "sync.interval must be positive")
	}
	if c.Sync.BackoffBase.Std() <= 0 {
		return errors.New(errors.ErrConfigInvalid, "sync.backoff_base must be positive")
	}
	if c.Sync.MaxAttempts <= 0 {
		return errors.New(errors.ErrConfigInvalid, "sync.max_attempts must be positive")
	}
	if c.Sync.BatchLimit <= 0 {
		return errors.New(errors.ErrConfigInvalid, "sync.batch_limit must be positive")
	}
	return nil
}
