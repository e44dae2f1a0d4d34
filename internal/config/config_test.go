package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msomdec/user-service-mcp/internal/config"
)

// clearEnv unsets every variable Load reads so the host environment cannot
// leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		config.ConfigFileEnv, "DATABASE_URL", "PORT", "TRANSPORT", "LOG_LEVEL",
		"DB_MAX_OPEN_CONNS", "SLOW_SESSION_THRESHOLD", "RATE_LIMIT_RPS",
		"RATE_LIMIT_BURST", "FUZZY_METRIC", "SEARCH_LIMIT",
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load(nil)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
	assert.Equal(t, "sqlite:///users.db", cfg.DatabaseURL)
	assert.Equal(t, ":8001", cfg.Addr())

	level, err := cfg.Level()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoad_Precedence(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
database_url: sqlite:////var/lib/users.db
port: 9000
search_limit: 3
slow_session_threshold: 1s
`)
	t.Setenv(config.ConfigFileEnv, path)
	t.Setenv("PORT", "9100")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load([]string{"--search-limit", "7"})
	require.NoError(t, err)

	assert.Equal(t, "sqlite:////var/lib/users.db", cfg.DatabaseURL, "file beats default")
	assert.Equal(t, 9100, cfg.Port, "env beats file")
	assert.Equal(t, 7, cfg.SearchLimit, "flag beats file")
	assert.Equal(t, time.Second, cfg.SlowSessionThreshold)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_ConfigFlagOverridesEnvPath(t *testing.T) {
	clearEnv(t)
	t.Setenv(config.ConfigFileEnv, filepath.Join(t.TempDir(), "missing.yaml"))
	path := writeFile(t, "fuzzy_metric: indel\n")

	cfg, err := config.Load([]string{"--config", path})
	require.NoError(t, err)
	assert.Equal(t, "indel", cfg.FuzzyMetric)
}

func TestLoad_EmptyFile(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load([]string{"--config", writeFile(t, "")})
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoad_UnknownFileKey(t *testing.T) {
	clearEnv(t)

	_, err := config.Load([]string{"--config", writeFile(t, "prot: 1\n")})
	assert.Error(t, err)
}

func TestLoad_Flags(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load([]string{
		"--transport=stdio",
		"--database-url=:memory:",
		"--rate-limit-rps=2.5",
		"--rate-limit-burst=4",
		"--slow-session-threshold=0",
	})
	require.NoError(t, err)
	assert.Equal(t, config.TransportStdio, cfg.Transport)
	assert.Equal(t, ":memory:", cfg.DatabaseURL)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
	assert.Equal(t, 4, cfg.RateLimitBurst)
	assert.Zero(t, cfg.SlowSessionThreshold)
}

func TestLoad_Help(t *testing.T) {
	clearEnv(t)

	_, err := config.Load([]string{"--help"})
	assert.True(t, errors.Is(err, pflag.ErrHelp), "got %v", err)
}

func TestLoad_BadEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "eighty")

	_, err := config.Load(nil)
	assert.ErrorContains(t, err, "PORT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"transport", func(c *config.Config) { c.Transport = "grpc" }, "transport"},
		{"port", func(c *config.Config) { c.Port = 0 }, "port"},
		{"log level", func(c *config.Config) { c.LogLevel = "chatty" }, "log level"},
		{"conns", func(c *config.Config) { c.DBMaxOpenConns = 0 }, "open conns"},
		{"burst", func(c *config.Config) { c.RateLimitRPS = 1; c.RateLimitBurst = 0 }, "burst"},
		{"metric", func(c *config.Config) { c.FuzzyMetric = "levenshtein" }, "fuzzy metric"},
		{"search limit", func(c *config.Config) { c.SearchLimit = 0 }, "search limit"},
		{"database", func(c *config.Config) { c.DatabaseURL = "" }, "database url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	stdio := config.Default()
	stdio.Transport = config.TransportStdio
	stdio.Port = 0
	assert.NoError(t, stdio.Validate(), "port is ignored for stdio")
}
