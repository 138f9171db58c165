// Package config loads simulator settings with viper and opens the pieces they
// describe.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/xycloo/zephyr-go/host"
	"github.com/xycloo/zephyr-go/store"
	"github.com/xycloo/zephyr-go/store/kvstore"
	"github.com/xycloo/zephyr-go/store/sqlstore"
)

// EnvPrefix prefixes every environment variable, e.g. ZEPHYR_STORE_KIND.
const EnvPrefix = "ZEPHYR"

type StoreKind string

const (
	StoreMemory  StoreKind = "memory"
	StoreSQLite  StoreKind = "sqlite"
	StoreLevelDB StoreKind = "leveldb"
)

// Config represents simulator configuration
type Config struct {
	Backend  host.BackendKind `mapstructure:"backend"`
	Store    StoreConfig      `mapstructure:"store"`
	LogLevel string           `mapstructure:"log_level"`
	ReadOnly bool             `mapstructure:"read_only"`
}

type StoreConfig struct {
	Kind StoreKind `mapstructure:"kind"`
	// Path is the sqlite file or the leveldb directory.
	Path string `mapstructure:"path"`
	// CacheSize bounds the sqlite snapshot cache.
	CacheSize int `mapstructure:"cache_size"`
}

// SetDefaults registers every key on v so that environment variables are
// picked up by Load.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("backend", string(host.KindSim))
	v.SetDefault("store.kind", string(StoreMemory))
	v.SetDefault("store.path", "")
	v.SetDefault("store.cache_size", 64)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_only", false)
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads v, and the config file it names if any, into a validated Config.
func Load(v *viper.Viper) (*Config, error) {
	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &c, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	switch c.Store.Kind {
	case StoreMemory:
	case StoreSQLite, StoreLevelDB:
		if c.Store.Path == "" {
			return fmt.Errorf("store %s needs a path", c.Store.Kind)
		}
	default:
		return fmt.Errorf("unknown store kind %q", c.Store.Kind)
	}
	if c.Store.CacheSize < 0 {
		return fmt.Errorf("invalid cache size: %d", c.Store.CacheSize)
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Backend != host.KindSim {
		return fmt.Errorf("backend %q cannot run on the host side", c.Backend)
	}
	return nil
}

// OpenStore opens the configured store.
func (c *Config) OpenStore(logger *slog.Logger) (store.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch c.Store.Kind {
	case StoreSQLite:
		opts := []sqlstore.Option{sqlstore.WithLogger(logger)}
		if c.Store.CacheSize > 0 {
			opts = append(opts, sqlstore.WithCacheSize(c.Store.CacheSize))
		}
		return sqlstore.Open(c.Store.Path, opts...)
	case StoreLevelDB:
		return kvstore.OpenLevelDB(c.Store.Path, kvstore.WithLogger(logger))
	case StoreMemory:
		return kvstore.NewMemory(nil, kvstore.WithLogger(logger))
	default:
		return nil, fmt.Errorf("unknown store kind %q", c.Store.Kind)
	}
}

// BackendParams returns registry parameters running the backend over s.
func (c *Config) BackendParams(s store.Store) map[string]any {
	return map[string]any{
		"store":     s,
		"read_only": c.ReadOnly,
	}
}

// ParseLevel accepts debug, info, warn, warning and error.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// NewLogger builds a text logger writing to w at the configured level.
func (c *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}
