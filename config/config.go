// Package config loads settings of thread pools and the thread tree from
// an optional YAML file and GTHREAD_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/dudk/gthread"
	"github.com/dudk/gthread/internal/rt"
	"github.com/dudk/gthread/log"
	"github.com/dudk/gthread/pool"
)

// EnvPrefix is the prefix of environment variables, e.g. GTHREAD_MAX_THREADS.
const EnvPrefix = "GTHREAD"

// ErrInvalid is returned for settings which can't be applied.
var ErrInvalid = errors.New("invalid config")

// Config holds thread pool and thread settings. RTPriority is SCHED_FIFO
// priority, 0 keeps default scheduling.
type Config struct {
	MaxUnusedThreads int     `mapstructure:"max_unused_threads"`
	MaxThreads       int     `mapstructure:"max_threads"`
	RTPriority       int     `mapstructure:"rt_priority"`
	Frequency        float64 `mapstructure:"frequency"`
	Debug            bool    `mapstructure:"debug"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("max_unused_threads", pool.DefaultMaxUnusedThreads)
	v.SetDefault("max_threads", pool.DefaultMaxThreads)
	v.SetDefault("rt_priority", 0)
	v.SetDefault("frequency", gthread.DefaultFrequency)
	v.SetDefault("debug", false)
}

// Default returns settings used when nothing is configured.
func Default() Config {
	return Config{
		MaxUnusedThreads: pool.DefaultMaxUnusedThreads,
		MaxThreads:       pool.DefaultMaxThreads,
		Frequency:        gthread.DefaultFrequency,
	}
}

// Load reads settings from the YAML file at path, if path is not empty,
// and from the environment. Environment takes precedence over the file.
// Debug setting is applied to the shared logger.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	log.SetDebug(c.Debug)
	return c, nil
}

// Validate checks settings against each other.
func (c Config) Validate() error {
	var errs []error
	if c.MaxThreads < 1 {
		errs = append(errs, fmt.Errorf("max_threads must be at least 1, got %d", c.MaxThreads))
	}
	if c.MaxUnusedThreads < 1 {
		errs = append(errs, fmt.Errorf("max_unused_threads must be at least 1, got %d", c.MaxUnusedThreads))
	}
	if c.MaxUnusedThreads > c.MaxThreads {
		errs = append(errs, fmt.Errorf("max_unused_threads %d exceeds max_threads %d", c.MaxUnusedThreads, c.MaxThreads))
	}
	if c.RTPriority != 0 && (c.RTPriority < rt.MinPriority || c.RTPriority > rt.MaxPriority) {
		errs = append(errs, fmt.Errorf("rt_priority must be in range [%d, %d], got %d", rt.MinPriority, rt.MaxPriority, c.RTPriority))
	}
	if c.Frequency < 0 {
		errs = append(errs, fmt.Errorf("frequency must not be negative, got %v", c.Frequency))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

// PoolOptions returns options of a pool attached to parent. Nil parent
// makes a free-standing pool.
func (c Config) PoolOptions(parent *gthread.Node) []pool.Option {
	options := []pool.Option{
		pool.WithMaxThreads(c.MaxThreads),
		pool.WithMaxUnusedThreads(c.MaxUnusedThreads),
		pool.WithPriority(c.RTPriority),
	}
	if parent != nil {
		options = append(options, pool.WithParent(parent))
	}
	return options
}

// ThreadOptions returns options of a real-time tree thread.
func (c Config) ThreadOptions() []gthread.Option {
	options := []gthread.Option{gthread.WithFrequency(c.Frequency)}
	if c.RTPriority != 0 {
		options = append(options, gthread.WithRealtime(c.RTPriority))
	}
	return options
}
