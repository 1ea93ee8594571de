package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"sawmill/backend/internal/config"
)

func strongConfig() config.Config {
	return config.Config{
		Port:              "0",
		AuthSecret:        "0123456789abcdef0123456789abcdef",
		AllowedOrigins:    []string{"http://127.0.0.1:3000"},
		AnalyticsTimezone: "Africa/Johannesburg",
		AccessTokenTTL:    time.Hour,
		SimilarCacheTTL:   time.Minute,
		LowStockThreshold: 10,
	}
}

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	cfg := strongConfig()
	cfg.AuthSecret = "short"
	require.Error(t, validateSecurityConfig(cfg))

	cfg = strongConfig()
	cfg.AllowedOrigins = nil
	require.Error(t, validateSecurityConfig(cfg))

	cfg = strongConfig()
	cfg.AnalyticsTimezone = "Mars/Olympus_Mons"
	require.Error(t, validateSecurityConfig(cfg))
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	require.NoError(t, validateSecurityConfig(strongConfig()))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- run(ctx, zap.NewNop(), strongConfig())
	}()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
