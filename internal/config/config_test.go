package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg, err := load(nil)
	require.NoError(t, err)
	require.Empty(t, cfg.AuthSecret)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(nil)
	require.NoError(t, err)

	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, ":8080", cfg.Address())
	require.Equal(t, "sawmill", cfg.MongoDatabase)
	require.True(t, cfg.MongoTransactions)
	require.Equal(t, 8*time.Hour, cfg.AccessTokenTTL)
	require.Equal(t, 10, cfg.LowStockThreshold)
	require.Equal(t, 5*time.Minute, cfg.SimilarCacheTTL)

	loc, err := cfg.Location()
	require.NoError(t, err)
	require.Equal(t, "Africa/Johannesburg", loc.String())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("MONGO_TRANSACTIONS", "false")
	t.Setenv("ACCESS_TOKEN_TTL", "30m")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("AUTH_SECRET", "  0123456789abcdef0123456789abcdef  ")

	cfg, err := load(nil)
	require.NoError(t, err)

	require.Equal(t, ":9090", cfg.Address())
	require.Equal(t, "mongodb://localhost:27017", cfg.MongoURI)
	require.False(t, cfg.MongoTransactions)
	require.Equal(t, 30*time.Minute, cfg.AccessTokenTTL)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	require.Equal(t, "0123456789abcdef0123456789abcdef", cfg.AuthSecret)
}

func TestLoadFromYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("low_stock_threshold: 3\nanalytics_timezone: UTC\n"), 0o600))

	cfg, err := load([]string{path})
	require.NoError(t, err)
	require.Equal(t, 3, cfg.LowStockThreshold)

	loc, err := cfg.Location()
	require.NoError(t, err)
	require.Equal(t, time.UTC, loc)
}

func TestLocationRejectsUnknownZone(t *testing.T) {
	cfg := Config{AnalyticsTimezone: "Mars/Olympus"}
	_, err := cfg.Location()
	require.Error(t, err)
}
