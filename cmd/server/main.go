package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"sawmill/backend/internal/cache"
	"sawmill/backend/internal/config"
	"sawmill/backend/internal/httpapi"
	"sawmill/backend/internal/recommendation"
	"sawmill/backend/internal/service"
	"sawmill/backend/internal/store"
	"sawmill/backend/internal/store/memory"
	"sawmill/backend/internal/store/mongodb"
	pgstore "sawmill/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	lg, err := newLogger(cfg.LogDevelopment)
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, lg, cfg); err != nil {
		lg.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(development bool) (*zap.Logger, error) {
	if development {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

func run(ctx context.Context, lg *zap.Logger, cfg config.Config) error {
	if err := validateSecurityConfig(cfg); err != nil {
		return errors.Wrap(err, "invalid security configuration")
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var (
		repo       store.Repository
		users      httpapi.UserStore
		closers    []closer
		apiOptions = []httpapi.Option{
			httpapi.WithLogger(lg),
			httpapi.WithAllowedOrigins(cfg.AllowedOrigins...),
		}
		svcOptions = []service.Option{
			service.WithLocation(loc),
			service.WithLowStockThreshold(cfg.LowStockThreshold),
		}
	)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].fn(shutdownCtx); err != nil {
				lg.Warn("Close failed", zap.String("resource", closers[i].name), zap.Error(err))
			}
		}
	}()

	if cfg.MongoURI != "" {
		mongoStore, err := mongodb.Open(startCtx, mongodb.Config{
			URI:          cfg.MongoURI,
			Database:     cfg.MongoDatabase,
			Transactions: cfg.MongoTransactions,
		}, lg)
		if err != nil {
			return errors.Wrap(err, "mongodb unavailable and MONGO_URI is set; refusing to start with in-memory fallback")
		}
		repo, users = mongoStore, mongoStore
		closers = append(closers, closer{name: "mongodb", fn: mongoStore.Close})
		apiOptions = append(apiOptions, httpapi.WithHealthCheck("mongodb", mongoStore.Ping))
		lg.Info("Repository ready", zap.String("kind", "mongodb"), zap.String("database", cfg.MongoDatabase))
	} else {
		memStore, err := memory.NewSeeded(lg)
		if err != nil {
			return errors.Wrap(err, "seed in-memory store")
		}
		repo, users = memStore, memStore
		lg.Info("Repository ready", zap.String("kind", "memory"))
	}

	var jsonCache cache.JSONCache = cache.Noop{}
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(startCtx); err != nil {
			lg.Warn("Redis unavailable, using noop cache", zap.Error(err))
			_ = redisCache.Close()
		} else {
			jsonCache = redisCache
			closers = append(closers, closer{name: "redis", fn: func(context.Context) error { return redisCache.Close() }})
			apiOptions = append(apiOptions, httpapi.WithHealthCheck("redis", redisCache.Ping))
			lg.Info("Cache ready", zap.String("kind", "redis"))
		}
	}
	svcOptions = append(svcOptions, service.WithFilterCache(jsonCache, time.Minute))

	if cfg.AuditDatabaseURL != "" {
		ledger, err := pgstore.New(startCtx, cfg.AuditDatabaseURL)
		if err != nil {
			return errors.Wrap(err, "audit ledger unavailable and AUDIT_DATABASE_URL is set")
		}
		svcOptions = append(svcOptions, service.WithAuditSink(ledger))
		closers = append(closers, closer{name: "audit ledger", fn: func(context.Context) error { return ledger.Close() }})
		apiOptions = append(apiOptions, httpapi.WithHealthCheck("audit_ledger", ledger.Ping))
		lg.Info("Audit ledger ready", zap.String("kind", "postgres"))
	}

	recommender := recommendation.NewEngine(jsonCache, cfg.SimilarCacheTTL, lg)
	svc := service.New(repo, recommender, lg, svcOptions...)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL, users)
	api := httpapi.New(svc, auth, apiOptions...)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		lg.Info("Sawmill backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return errors.Wrap(err, "serve")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Warn("Shutdown error", zap.Error(err))
	}
	lg.Info("Server stopped")
	return nil
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return errors.New("AUTH_SECRET must be set and at least 32 characters")
	}
	if len(cfg.AllowedOrigins) == 0 {
		return errors.New("ALLOWED_ORIGINS must list at least one origin")
	}
	if _, err := cfg.Location(); err != nil {
		return err
	}
	return nil
}
