package jshost

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("JSHOST_CONFIG", "")
	c, err := LoadConfig("")
	require.NoError(t, err)
	require.False(t, c.Debug.Enabled)
	require.Equal(t, "memory", c.Cache.Driver)
	require.Equal(t, 256, c.Cache.Entries)
	require.Equal(t, "info", c.Log.Level)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jshost.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[debug]
enabled = true
inspector_addr = "127.0.0.1:9229"

[engine]
memory_limit_mb = 32
execution_timeout_ms = 1500

[cache]
driver = "sqlite"
path = "/tmp/bc.sqlite3"
compress = true
max_age = "72h"

[log]
level = "debug"
`), 0o644))

	c, err := LoadConfig(path)
	require.NoError(t, err)
	require.True(t, c.Debug.Enabled)
	require.Equal(t, "127.0.0.1:9229", c.Debug.InspectorAddr)
	require.Equal(t, "sqlite", c.Cache.Driver)
	require.True(t, c.Cache.Compress)
	require.Equal(t, 72*time.Hour, c.Cache.MaxAge)

	rc := c.RuntimeConfig()
	require.True(t, rc.EnableDebugging)
	require.Equal(t, 32, rc.MemoryLimitMB)
	require.Equal(t, 1500*time.Millisecond, rc.ExecutionTimeout)
}

func TestLoadConfig_Env(t *testing.T) {
	t.Setenv("JSHOST_CONFIG", "")
	t.Setenv("JSHOST_DEBUG_ENABLED", "true")
	t.Setenv("JSHOST_CACHE_ENTRIES", "16")
	c, err := LoadConfig("")
	require.NoError(t, err)
	require.True(t, c.Debug.Enabled)
	require.Equal(t, 16, c.Cache.Entries)
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("JSHOST_CONFIG", "")

	t.Setenv("JSHOST_CACHE_DRIVER", "redis")
	_, err := LoadConfig("")
	require.ErrorIs(t, err, ErrInvalidArgument)

	t.Setenv("JSHOST_CACHE_DRIVER", "memory")
	t.Setenv("JSHOST_CACHE_MAX_AGE", "-1h")
	_, err = LoadConfig("")
	require.ErrorIs(t, err, ErrInvalidArgument)

	t.Setenv("JSHOST_CACHE_MAX_AGE", "0s")
	t.Setenv("JSHOST_LOG_LEVEL", "loud")
	_, err = LoadConfig("")
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
