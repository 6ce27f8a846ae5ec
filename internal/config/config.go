// Package config loads nbverify settings from defaults, an optional YAML
// file, NBVERIFY_* environment variables, and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides, e.g. NBVERIFY_JOBS.
const EnvPrefix = "NBVERIFY"

// DefaultFile is the config file looked up in the working directory when
// no path is given.
const DefaultFile = "nbverify.yaml"

// Color modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Config holds every setting the run command needs.
type Config struct {
	// ExecTimeout bounds how long a cell may run before it is interrupted.
	ExecTimeout time.Duration `mapstructure:"exec_timeout"`

	// IdleTimeout bounds each wait for output once the reply arrived.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`

	// Lax disables output checking unless a cell opts in.
	Lax bool `mapstructure:"lax"`

	// SanitizeWith is the path of a regex/replace rule file.
	SanitizeWith string `mapstructure:"sanitize_with"`

	// SkipFields are compared fields to ignore in addition to the defaults.
	SkipFields []string `mapstructure:"skip_fields"`

	// Images keeps image payloads in the comparison.
	Images bool `mapstructure:"images"`

	// KernelCommand is the argv of the JSON-lines kernel process.
	KernelCommand []string `mapstructure:"kernel_command"`

	DB         string `mapstructure:"db"`
	Jobs       int    `mapstructure:"jobs"`
	Color      string `mapstructure:"color"`
	MetricsOut string `mapstructure:"metrics_out"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		ExecTimeout: 2000 * time.Second,
		IdleTimeout: 5 * time.Second,
		Jobs:        1,
		Color:       ColorAuto,
	}
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"exec-timeout":   "exec_timeout",
	"idle-timeout":   "idle_timeout",
	"lax":            "lax",
	"sanitize-with":  "sanitize_with",
	"skip-fields":    "skip_fields",
	"images":         "images",
	"kernel-command": "kernel_command",
	"db":             "db",
	"jobs":           "jobs",
	"color":          "color",
	"metrics-out":    "metrics_out",
}

// Load resolves the configuration. path names an explicit config file,
// which must exist; an empty path tries DefaultFile and tolerates its
// absence. Only flags the user changed override lower layers.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("exec_timeout", def.ExecTimeout)
	v.SetDefault("idle_timeout", def.IdleTimeout)
	v.SetDefault("lax", def.Lax)
	v.SetDefault("sanitize_with", def.SanitizeWith)
	v.SetDefault("skip_fields", []string{})
	v.SetDefault("images", def.Images)
	v.SetDefault("kernel_command", []string{})
	v.SetDefault("db", def.DB)
	v.SetDefault("jobs", def.Jobs)
	v.SetDefault("color", def.Color)
	v.SetDefault("metrics_out", def.MetricsOut)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(strings.TrimSuffix(DefaultFile, ".yaml"))
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %q: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.ExecTimeout <= 0 {
		return fmt.Errorf("exec_timeout must be positive, got %s", c.ExecTimeout)
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be positive, got %s", c.IdleTimeout)
	}
	if c.Jobs < 1 {
		return fmt.Errorf("jobs must be at least 1, got %d", c.Jobs)
	}
	switch c.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return fmt.Errorf("color must be one of auto, always, never; got %q", c.Color)
	}
	return nil
}
