package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Setenv("OJSTORE_TEST_DSN", "host=db user=oj dbname=oj")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  listen: ":9000"
  postgresDsn: "${OJSTORE_TEST_DSN}"
  redisAddr: "redis:6379"
  memcachedAddr: "memcached:11211"
store:
  cacheMode: memcached
  cacheTTL: 90s
  revRetryLimit: 3
  logLevel: debug
  logFormat: json
`), 0o600))

	config, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", config.Server.Listen)
	assert.Equal(t, "host=db user=oj dbname=oj", config.Server.PostgresDsn)
	assert.Equal(t, CacheMemcached, config.Store.CacheMode)
	assert.Equal(t, slog.LevelDebug, config.LogLevel())

	d := config.ToDomain()
	assert.Equal(t, 90*time.Second, d.CacheTTL)
	assert.Equal(t, uint64(3), d.RevRetryLimit)
}

func TestParseDefaults(t *testing.T) {
	config, err := Parse([]byte("server:\n  sqlitePath: /tmp/oj.db\n"))
	require.NoError(t, err)

	assert.Equal(t, ":8000", config.Server.Listen)
	assert.Equal(t, CacheNone, config.Store.CacheMode)
	assert.Equal(t, slog.LevelInfo, config.LogLevel())
	assert.Equal(t, Default().ToDomain(), config.ToDomain())
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no database", "server:\n  listen: ':80'\n"},
		{"zero retry limit", "server:\n  sqlitePath: a.db\nstore:\n  revRetryLimit: 0\n"},
		{"bad ttl", "server:\n  sqlitePath: a.db\nstore:\n  cacheTTL: soon\n"},
		{"negative ttl", "server:\n  sqlitePath: a.db\nstore:\n  cacheTTL: -1m\n"},
		{"unknown cache", "server:\n  sqlitePath: a.db\nstore:\n  cacheMode: disk\n"},
		{"local without single replica", "server:\n  sqlitePath: a.db\nstore:\n  cacheMode: local\n"},
		{"memcached without addr", "server:\n  sqlitePath: a.db\nstore:\n  cacheMode: memcached\n"},
		{"trace without endpoint", "server:\n  sqlitePath: a.db\n  enableTrace: true\n"},
		{"bad log level", "server:\n  sqlitePath: a.db\nstore:\n  logLevel: loud\n"},
		{"bad log format", "server:\n  sqlitePath: a.db\nstore:\n  logFormat: xml\n"},
		{"malformed", "server: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			assert.Error(t, err)
		})
	}
}

func TestParseLocalCacheSingleReplica(t *testing.T) {
	config, err := Parse([]byte("server:\n  sqlitePath: a.db\nstore:\n  cacheMode: local\n  singleReplica: true\n"))
	require.NoError(t, err)
	assert.Equal(t, CacheLocal, config.Store.CacheMode)
	assert.True(t, config.Store.SingleReplica)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
