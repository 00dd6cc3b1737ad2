package jshost

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cryguy/jshost/internal/core"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Config holds runtime construction options. It is captured by New and
// read-only afterwards.
type Config struct {
	// TaskQueue receives Promise continuations. Without a queue,
	// continuations raised by the engine are dropped.
	TaskQueue TaskQueue

	// EnableDebugging starts a debug session at construction.
	EnableDebugging bool

	MemoryLimitMB    int           // engine heap limit, 0 for the engine default
	ExecutionTimeout time.Duration // per script entry, 0 for none

	// DebugSink receives debug events once a session has started. A sink
	// that implements io.Closer is closed with the runtime.
	DebugSink core.DebugSink

	// Logger defaults to a no-op logger.
	Logger *zerolog.Logger
}

func (c Config) engineConfig() core.EngineConfig {
	return core.EngineConfig{
		MemoryLimitMB: c.MemoryLimitMB,
		DebugSink:     c.DebugSink,
	}
}

func (c Config) logger() zerolog.Logger {
	if c.Logger == nil {
		return zerolog.Nop()
	}
	return c.Logger.With().Str("component", "jshost").Logger()
}

// FileConfig is the file and environment configuration read by LoadConfig.
type FileConfig struct {
	Debug  DebugConfig  `mapstructure:"debug"`
	Engine EngineConfig `mapstructure:"engine"`
	Cache  CacheConfig  `mapstructure:"cache"`
	Log    LogConfig    `mapstructure:"log"`
}

// DebugConfig holds debug session settings.
type DebugConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	InspectorAddr string `mapstructure:"inspector_addr"`
}

// EngineConfig holds engine limits.
type EngineConfig struct {
	MemoryLimitMB      int `mapstructure:"memory_limit_mb"`
	ExecutionTimeoutMS int `mapstructure:"execution_timeout_ms"`
}

// CacheConfig selects the bytecode store.
type CacheConfig struct {
	Driver   string `mapstructure:"driver"` // "memory" or "sqlite"
	Path     string `mapstructure:"path"`
	Entries  int    `mapstructure:"entries"`
	Compress bool   `mapstructure:"compress"`
	// MaxAge drops sqlite entries older than this when the cache opens.
	MaxAge time.Duration `mapstructure:"max_age"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// LoadConfig reads configuration from path (TOML, optional) and the
// environment. Environment overrides use the JSHOST_ prefix, for example
// JSHOST_DEBUG_ENABLED=true. An empty path falls back to $JSHOST_CONFIG.
func LoadConfig(path string) (FileConfig, error) {
	v := viper.New()

	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.inspector_addr", "")
	v.SetDefault("engine.memory_limit_mb", 0)
	v.SetDefault("engine.execution_timeout_ms", 0)
	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.path", "jshost-cache.sqlite3")
	v.SetDefault("cache.entries", 256)
	v.SetDefault("cache.compress", false)
	v.SetDefault("cache.max_age", "0s")
	v.SetDefault("log.level", "info")

	v.SetConfigType("toml")
	if path == "" {
		path = os.Getenv("JSHOST_CONFIG")
	}

	v.SetEnvPrefix("JSHOST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return FileConfig{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var c FileConfig
	if err := v.Unmarshal(&c); err != nil {
		return FileConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.validate(); err != nil {
		return FileConfig{}, err
	}
	return c, nil
}

func (c FileConfig) validate() error {
	switch c.Cache.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("%w: unknown cache driver %q", ErrInvalidArgument, c.Cache.Driver)
	}
	if c.Cache.MaxAge < 0 {
		return fmt.Errorf("%w: cache max_age must not be negative", ErrInvalidArgument)
	}
	if c.Engine.MemoryLimitMB < 0 || c.Engine.ExecutionTimeoutMS < 0 {
		return fmt.Errorf("%w: engine limits must not be negative", ErrInvalidArgument)
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log level: %v", ErrInvalidArgument, err)
	}
	return nil
}

// RuntimeConfig converts the file settings into a Config. The caller fills
// in TaskQueue, DebugSink and Logger.
func (c FileConfig) RuntimeConfig() Config {
	return Config{
		EnableDebugging:  c.Debug.Enabled,
		MemoryLimitMB:    c.Engine.MemoryLimitMB,
		ExecutionTimeout: time.Duration(c.Engine.ExecutionTimeoutMS) * time.Millisecond,
	}
}
