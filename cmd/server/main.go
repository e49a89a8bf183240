package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"mystore/backend/internal/cache"
	"mystore/backend/internal/config"
	"mystore/backend/internal/httpapi"
	"mystore/backend/internal/service"
	"mystore/backend/internal/store"
	"mystore/backend/internal/store/memory"
	pgstore "mystore/backend/internal/store/postgres"
)

func main() {
	config.LoadDotEnv()
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatalf("postgres migration failed: %v", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		logger.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		logger.Info("repository: in-memory")
	}

	productCache := openCache(ctx, cfg, logger, &closers)

	svc := service.New(repo, service.Options{
		Cache:            productCache,
		CacheTTL:         cfg.ProductCacheTTL,
		ReturnWindow:     cfg.ReturnWindow(),
		CreditExpiryDays: cfg.StoreCreditExpiryDays,
		Logger:           logrus.NewEntry(logger),
	})
	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logrus.NewEntry(logger))

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Infof("POS backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		config.LogError(logger, "main", "main", "shutdown", nil, err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			config.LogError(logger, "main", "main", "close", nil, err)
		}
	}

	logger.Info("server stopped")
}

// openCache prefers redis and falls back to an in-process cache when redis
// is not configured or not reachable.
func openCache(ctx context.Context, cfg config.Config, logger *logrus.Logger, closers *[]func() error) cache.ProductCache {
	if cfg.RedisAddr == "" {
		logger.Info("cache: memory")
		return cache.NewMemory()
	}
	redisCache := cache.NewRedisProductCache(cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB))
	if err := redisCache.Ping(ctx); err != nil {
		logger.Warnf("redis unavailable (%v), using memory cache", err)
		_ = redisCache.Close()
		return cache.NewMemory()
	}
	*closers = append(*closers, redisCache.Close)
	logger.Info("cache: redis")
	return redisCache
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.ReturnWindowDays < 1 {
		return fmt.Errorf("RETURN_WINDOW_DAYS must be at least 1")
	}
	if cfg.StoreCreditExpiryDays < 0 {
		return fmt.Errorf("STORE_CREDIT_EXPIRY_DAYS cannot be negative")
	}
	return nil
}
