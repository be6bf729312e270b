package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"inventario/backend/internal/cache"
	"inventario/backend/internal/config"
	"inventario/backend/internal/httpapi"
	"inventario/backend/internal/scheduler"
	"inventario/backend/internal/service"
	"inventario/backend/internal/store"
	"inventario/backend/internal/store/memory"
	pgstore "inventario/backend/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()
	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal("invalid security configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var ledger store.Ledger
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback", zap.Error(err))
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatal("schema migration failed", zap.Error(err))
		}
		ledger = pg
		closers = append(closers, pg.Close)
		logger.Info("ledger: postgres")
	} else {
		ledger = memory.NewSeeded()
		logger.Info("ledger: in-memory (seeded)")
	}

	reports := cache.ReportCache(cache.NoopReportCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisReportCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using noop report cache", zap.Error(err))
		} else {
			reports = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("report cache: redis")
		}
	} else {
		logger.Info("report cache: noop")
	}

	svc := service.New(ledger, reports, logger, service.Options{
		DirectStockUpdates: cfg.DirectStockUpdates,
		ReportCacheTTL:     time.Duration(cfg.ReportCacheTTLSeconds) * time.Second,
	})

	sched := scheduler.New(svc, logger)
	if err := sched.Start(cfg.ReconcileSchedule); err != nil {
		logger.Fatal("invalid RECONCILE_SCHEDULE", zap.Error(err))
	}

	admin := httpapi.NewAdminGate(cfg.AdminPassword, cfg.AdminPasswordHash)
	api := httpapi.New(svc, admin, cfg.AllowedOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("inventory backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}

	sched.Stop()

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

// validateSecurityConfig refuses to start without a usable admin credential.
// Either a bcrypt hash or a plaintext secret of reasonable strength must be
// configured; trivially guessable secrets are rejected outright.
func validateSecurityConfig(cfg config.Config) error {
	if cfg.AdminPasswordHash != "" {
		if !strings.HasPrefix(cfg.AdminPasswordHash, "$2") {
			return fmt.Errorf("ADMIN_PASSWORD_HASH must be a bcrypt hash")
		}
		return nil
	}
	if len(cfg.AdminPassword) < 8 {
		return fmt.Errorf("ADMIN_PASSWORD must be set and at least 8 characters (or set ADMIN_PASSWORD_HASH)")
	}
	if isWeakSecret(cfg.AdminPassword) {
		return fmt.Errorf("ADMIN_PASSWORD is too weak")
	}
	return nil
}

func isWeakSecret(secret string) bool {
	known := map[string]bool{
		"password": true, "12345678": true, "admin123": true,
		"letmein1": true, "qwerty123": true, "password1": true,
	}
	return known[strings.ToLower(secret)]
}
