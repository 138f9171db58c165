package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xycloo/zephyr-go/host"
	"github.com/xycloo/zephyr-go/store/kvstore"
	"github.com/xycloo/zephyr-go/store/sqlstore"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, host.KindSim, c.Backend)
	assert.Equal(t, StoreMemory, c.Store.Kind)
	assert.Equal(t, 64, c.Store.CacheSize)
	assert.Equal(t, "info", c.LogLevel)
	assert.False(t, c.ReadOnly)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ZEPHYR_STORE_KIND", "sqlite")
	t.Setenv("ZEPHYR_STORE_PATH", "/tmp/zephyr.db")
	t.Setenv("ZEPHYR_LOG_LEVEL", "debug")

	c, err := Load(New())
	require.NoError(t, err)
	assert.Equal(t, StoreSQLite, c.Store.Kind)
	assert.Equal(t, "/tmp/zephyr.db", c.Store.Path)
	assert.Equal(t, "debug", c.LogLevel)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zephyr.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store:\n  kind: leveldb\n  path: /tmp/kv\nread_only: true\n"), 0o644))

	v := New()
	v.SetConfigFile(path)
	c, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, StoreLevelDB, c.Store.Kind)
	assert.Equal(t, "/tmp/kv", c.Store.Path)
	assert.True(t, c.ReadOnly)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{Backend: host.KindSim, Store: StoreConfig{Kind: StoreMemory}, LogLevel: "info"}
	}
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(*Config) {}, true},
		{"sqlite without path", func(c *Config) { c.Store.Kind = StoreSQLite }, false},
		{"leveldb with path", func(c *Config) { c.Store.Kind, c.Store.Path = StoreLevelDB, "/tmp/x" }, true},
		{"unknown store", func(c *Config) { c.Store.Kind = "redis" }, false},
		{"negative cache", func(c *Config) { c.Store.CacheSize = -1 }, false},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, false},
		{"guest backend", func(c *Config) { c.Backend = host.KindWasm }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}

	var nilConfig *Config
	assert.Error(t, nilConfig.Validate())
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		kind  StoreKind
		path  string
		check func(t *testing.T, s any)
	}{
		{StoreMemory, "", func(t *testing.T, s any) { assert.IsType(t, &kvstore.Store{}, s) }},
		{StoreSQLite, filepath.Join(dir, "z.db"), func(t *testing.T, s any) { assert.IsType(t, &sqlstore.Store{}, s) }},
		{StoreLevelDB, filepath.Join(dir, "kv"), func(t *testing.T, s any) { assert.IsType(t, &kvstore.Store{}, s) }},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			c := &Config{Store: StoreConfig{Kind: tt.kind, Path: tt.path, CacheSize: 8}}
			s, err := c.OpenStore(nil)
			require.NoError(t, err)
			defer s.Close()
			tt.check(t, s)

			params := c.BackendParams(s)
			assert.Equal(t, s, params["store"])
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := (&Config{LogLevel: "warn"}).NewLogger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", "key", "value")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "key=value")

	level, err := ParseLevel("WARNING")
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = (&Config{LogLevel: "nope"}).NewLogger(&buf)
	assert.Error(t, err)
}
