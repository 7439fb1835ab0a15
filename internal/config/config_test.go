package config

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/caarlos0/env/v11"
	"github.com/fyerfyer/fyer-session/logger"
	"github.com/fyerfyer/fyer-session/session"
	"github.com/fyerfyer/fyer-session/session/memsession"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, vars map[string]string) (*Config, error) {
	t.Helper()
	return Parse(env.Options{Environment: vars})
}

func TestDefaults(t *testing.T) {
	cfg, err := parse(t, map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.HTTPAddr)
	assert.Equal(t, BackendMemory, cfg.Backend)
	assert.Equal(t, "connect.sid", cfg.Cookie.Name)
	assert.Equal(t, "/", cfg.Cookie.Path)
	assert.True(t, cfg.Cookie.HTTPOnly)
	assert.False(t, cfg.Cookie.Secure)
	assert.Equal(t, 24*time.Hour, cfg.TTL)
	assert.Equal(t, 15*time.Minute, cfg.SweepInterval)
	assert.True(t, cfg.SlidingExpiration)
	assert.False(t, cfg.SaveUninitialized)
	assert.False(t, cfg.ResaveAlways)
	assert.Equal(t, logger.InfoLevel, cfg.Level())
	assert.Empty(t, cfg.Secrets)

	sameSite, err := cfg.SameSite()
	require.NoError(t, err)
	assert.Equal(t, http.SameSiteLaxMode, sameSite)
	assert.Equal(t, "sessions", cfg.SQLSchema().Table)
	assert.Equal(t, "session_id", cfg.SQLSchema().IDColumn)
}

func TestParseOverrides(t *testing.T) {
	cfg, err := parse(t, map[string]string{
		"SESSION_SECRET":             "new,old",
		"SESSION_COOKIE_NAME":        "sid",
		"SESSION_COOKIE_SECURE":      "true",
		"SESSION_COOKIE_SAME_SITE":   "strict",
		"SESSION_TTL":                "30m",
		"SESSION_SAVE_UNINITIALIZED": "true",
		"SESSION_BACKEND":            "mysql",
		"SESSION_SQL_HOST":           "db",
		"SESSION_SQL_PORT":           "3307",
		"SESSION_SQL_TABLE":          "web_sessions",
		"SESSION_REDIS_KEY_PREFIX":   "app",
		"SESSION_CONNECT_RETRIES":    "2",
		"SESSION_LOG_LEVEL":          "debug",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"new", "old"}, cfg.Secrets)
	assert.Equal(t, "sid", cfg.Cookie.Name)
	assert.True(t, cfg.Cookie.Secure)
	assert.Equal(t, 30*time.Minute, cfg.TTL)
	assert.True(t, cfg.SaveUninitialized)
	assert.Equal(t, logger.DebugLevel, cfg.Level())
	assert.Equal(t, "app", cfg.Redis.KeyPrefix)

	conn := cfg.SQLConnConfig()
	assert.Equal(t, "mysql", conn.Dialect)
	assert.Equal(t, "db", conn.Host)
	assert.Equal(t, 3307, conn.Port)
	assert.Equal(t, 2, conn.Retry.Attempts)
	assert.Equal(t, "web_sessions", cfg.SQLSchema().Table)

	sameSite, err := cfg.SameSite()
	require.NoError(t, err)
	assert.Equal(t, http.SameSiteStrictMode, sameSite)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name string
		vars map[string]string
	}{
		{name: "unknown backend", vars: map[string]string{"SESSION_BACKEND": "mongo"}},
		{name: "short ttl", vars: map[string]string{"SESSION_TTL": "10ms"}},
		{name: "zero sweep interval", vars: map[string]string{"SESSION_SWEEP_INTERVAL": "0s"}},
		{name: "bad same site", vars: map[string]string{"SESSION_COOKIE_SAME_SITE": "sometimes"}},
		{name: "same site none without secure", vars: map[string]string{"SESSION_COOKIE_SAME_SITE": "none"}},
		{name: "bad log level", vars: map[string]string{"SESSION_LOG_LEVEL": "loud"}},
		{name: "bad duration", vars: map[string]string{"SESSION_TTL": "forever"}},
		{name: "no retries", vars: map[string]string{"SESSION_CONNECT_RETRIES": "0"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parse(t, tc.vars)
			assert.ErrorIs(t, err, session.ErrConfiguration)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(file, []byte("SESSION_COOKIE_NAME=from_dotenv\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("SESSION_COOKIE_NAME") })

	cfg, err := Load(file, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "from_dotenv", cfg.Cookie.Name)
}

func TestManagerOptions(t *testing.T) {
	cfg, err := parse(t, map[string]string{
		"SESSION_COOKIE_NAME": "sid",
		"SESSION_TTL":         "1h",
	})
	require.NoError(t, err)

	m, err := session.NewManager(memsession.NewStore(), cfg.ManagerOptions()...)
	require.NoError(t, err)
	assert.Equal(t, "sid", m.CookieName())
	assert.Equal(t, time.Hour, m.TTL())
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		cfg, err := parse(t, map[string]string{})
		require.NoError(t, err)
		reg := prometheus.NewRegistry()
		store, err := OpenStore(ctx, cfg, StoreOptions{Logger: logger.Nop(), Registerer: reg, Tracing: true})
		require.NoError(t, err)
		defer store.Close()

		rec := session.NewRecord(session.NewID(), time.Now().Add(time.Minute))
		require.NoError(t, store.Set(ctx, rec))
		_, err = store.Get(ctx, rec.ID)
		require.NoError(t, err)
		n, err := testutil.GatherAndCount(reg, "fyer_session_store_operation_duration_seconds")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("file", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "sessions")
		cfg, err := parse(t, map[string]string{
			"SESSION_BACKEND":  "file",
			"SESSION_FILE_DIR": dir,
		})
		require.NoError(t, err)
		store, err := OpenStore(ctx, cfg, StoreOptions{Logger: logger.Nop()})
		require.NoError(t, err)
		defer store.Close()

		rec := session.NewRecord(session.NewID(), time.Now().Add(time.Minute))
		require.NoError(t, store.Set(ctx, rec))
		assert.FileExists(t, filepath.Join(dir, rec.ID+".json"))
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg, err := parse(t, map[string]string{
			"SESSION_BACKEND":          "redis",
			"SESSION_REDIS_HOST":       mr.Host(),
			"SESSION_REDIS_PORT":       mr.Port(),
			"SESSION_REDIS_KEY_PREFIX": "app",
		})
		require.NoError(t, err)
		store, err := OpenStore(ctx, cfg, StoreOptions{Logger: logger.Nop()})
		require.NoError(t, err)
		defer store.Close()

		rec := session.NewRecord(session.NewID(), time.Now().Add(time.Minute))
		require.NoError(t, store.Set(ctx, rec))
		assert.True(t, mr.Exists("app:"+rec.ID))
	})

	t.Run("sql backend requires reachable database", func(t *testing.T) {
		cfg, err := parse(t, map[string]string{
			"SESSION_BACKEND":         "postgres",
			"SESSION_SQL_HOST":        "127.0.0.1",
			"SESSION_SQL_PORT":        "1",
			"SESSION_CONNECT_RETRIES": "1",
			"SESSION_CONNECT_TIMEOUT": "1s",
		})
		require.NoError(t, err)
		_, err = OpenStore(ctx, cfg, StoreOptions{Logger: logger.Nop()})
		assert.ErrorIs(t, err, session.ErrBackendUnavailable)
	})
}
