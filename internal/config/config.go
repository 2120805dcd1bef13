// Package config loads poolctl configuration from YAML or JSON files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	tperrors "github.com/vnykmshr/threadpool/pkg/common/errors"
	"github.com/vnykmshr/threadpool/pkg/common/validation"
	"github.com/vnykmshr/threadpool/pkg/scheduling/scheduler"
)

// Format is a configuration file format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

var (
	ErrEmptyPath         = errors.New("config: empty config path")
	ErrUnsupportedFormat = errors.New("config: unsupported config format")
	ErrLoadFailed        = errors.New("config: failed to load config")
	ErrParseFailed       = errors.New("config: failed to parse config")
	ErrUnmarshalFailed   = errors.New("config: failed to unmarshal config")
)

// Config is the complete poolctl configuration.
type Config struct {
	Pool      PoolConfig       `koanf:"pool"`
	Log       LogConfig        `koanf:"log"`
	Metrics   MetricsConfig    `koanf:"metrics"`
	Redis     RedisConfig      `koanf:"redis"`
	Schedules []ScheduleConfig `koanf:"schedules"`
}

// PoolConfig sizes the worker pool.
type PoolConfig struct {
	Workers int    `koanf:"workers"`
	Name    string `koanf:"name"`
}

// LogConfig selects level, format and destination of the log output.
type LogConfig struct {
	Level  string     `koanf:"level"`
	Format string     `koanf:"format"`
	File   FileConfig `koanf:"file"`
}

// FileConfig enables rotated file logging when Path is set.
type FileConfig struct {
	Path       string `koanf:"path"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Addr      string `koanf:"addr"`
	Namespace string `koanf:"namespace"`

	// TaskBuckets are upper bounds in seconds for the task wait and run
	// histograms, strictly increasing. Empty uses the Prometheus defaults.
	TaskBuckets []float64 `koanf:"task_buckets"`
}

// RedisConfig enables the Redis feed when Addr is set.
type RedisConfig struct {
	Addr        string        `koanf:"addr"`
	Password    string        `koanf:"password"`
	DB          int           `koanf:"db"`
	Key         string        `koanf:"key"`
	PollTimeout time.Duration `koanf:"poll_timeout"`

	// RateLimit caps payloads per second handed to the pool. Zero
	// disables the limit.
	RateLimit float64 `koanf:"rate_limit"`
	Burst     int     `koanf:"burst"`
	// RateLimitScope is "local" (per process) or "shared" (one budget
	// for every process using the same key).
	RateLimitScope string `koanf:"rate_limit_scope"`

	// LockSchedules makes schedulers sharing this Redis submit each tick
	// from one process only.
	LockSchedules bool `koanf:"lock_schedules"`
}

// Limited reports whether the feed should be rate limited.
func (r RedisConfig) Limited() bool {
	return r.RateLimit > 0
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// ScheduleConfig is one cron entry that logs Message when it fires.
type ScheduleConfig struct {
	Name    string `koanf:"name"`
	Spec    string `koanf:"spec"`
	Message string `koanf:"message"`
}

// Default returns the configuration used for keys a file leaves unset.
func Default() Config {
	return Config{
		Pool: PoolConfig{
			Workers: 4,
			Name:    "default",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File: FileConfig{
				MaxSizeMB:  100,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Addr:      ":9090",
			Namespace: "threadpool",
		},
		Redis: RedisConfig{
			Key:            "threadpool:tasks",
			PollTimeout:    time.Second,
			Burst:          1,
			RateLimitScope: "local",
		},
	}
}

// Load reads path, choosing the parser by file extension (.yaml, .yml or
// .json), and overlays it on Default. The result is validated.
func Load(path string) (Config, error) {
	if path == "" {
		return Config{}, ErrEmptyPath
	}
	format, err := DetectFormat(path)
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrLoadFailed, err)
	}
	return LoadBytes(data, format)
}

// LoadBytes is Load for in-memory data of the given format.
func LoadBytes(data []byte, format Format) (Config, error) {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	k := koanf.New(".")
	if len(data) > 0 {
		if err := k.Load(rawbytes.Provider(data), parser); err != nil {
			return Config{}, fmt.Errorf("%w: %w", ErrParseFailed, err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrUnmarshalFailed, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DetectFormat maps a file extension to a Format.
func DetectFormat(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %q", ErrUnsupportedFormat, ext)
	}
}

// Validate checks every section and returns all problems joined.
func (c Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(validation.ValidatePositive("config", "pool.workers", c.Pool.Workers))
	add(validation.ValidateNotEmpty("config", "pool.name", c.Pool.Name))

	add(validation.ValidateOneOf("config", "log.level", c.Log.Level, "debug", "info", "warn", "error"))
	add(validation.ValidateOneOf("config", "log.format", c.Log.Format, "text", "json"))
	if c.Log.File.Path != "" {
		add(validation.ValidatePositive("config", "log.file.max_size_mb", c.Log.File.MaxSizeMB))
	}

	if c.Metrics.Enabled {
		add(validation.ValidateNotEmpty("config", "metrics.addr", c.Metrics.Addr))
	}
	for i, b := range c.Metrics.TaskBuckets {
		if b <= 0 || (i > 0 && b <= c.Metrics.TaskBuckets[i-1]) {
			errs = append(errs, tperrors.NewValidationError("config", "metrics.task_buckets", c.Metrics.TaskBuckets,
				"must be positive and strictly increasing"))
			break
		}
	}

	if c.Redis.Enabled() {
		add(validation.ValidateNotEmpty("config", "redis.key", c.Redis.Key))
		add(validation.ValidatePositiveDuration("config", "redis.poll_timeout", c.Redis.PollTimeout))
		add(validation.ValidateNonNegative("config", "redis.rate_limit", c.Redis.RateLimit))
		if c.Redis.Limited() {
			add(validation.ValidatePositive("config", "redis.burst", c.Redis.Burst))
			add(validation.ValidateOneOf("config", "redis.rate_limit_scope", c.Redis.RateLimitScope, "local", "shared"))
		}
	}

	seen := make(map[string]bool, len(c.Schedules))
	for i, s := range c.Schedules {
		field := fmt.Sprintf("schedules[%d]", i)
		add(validation.ValidateNotEmpty("config", field+".name", s.Name))
		if err := scheduler.Validate(s.Spec); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
		if s.Name != "" && seen[s.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate schedule name %q", field, s.Name))
		}
		seen[s.Name] = true
	}

	return errors.Join(errs...)
}
