package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fundportal/internal/cache"
	"fundportal/internal/cli"
	apphttp "fundportal/internal/http"
	"fundportal/internal/log"
	"fundportal/internal/services"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig()
	logger.Info("Starting fundportal", "port", cfg.Port, "backend", cfg.DataBackend)

	be := cli.OpenBackend(context.Background(), cfg, logger)

	reportCache := cache.NewLRUCache[any](cfg.CacheSize, cfg.CacheTTL)
	caches := cache.NewManager(logger)
	caches.Register(reportCache)

	reports := services.NewReports(be.Store, reportCache, logger)
	auth := services.NewAuthService(be.Store, be.Store, cfg.SessionTTL, logger)
	svc := apphttp.Services{
		Auth:       auth,
		Reports:    reports,
		Demands:    services.NewDemandService(be.Store, reports, be.Publisher, logger),
		Assignment: services.NewAssignmentService(be.Store, reports, logger),
		Masters:    services.NewMasterService(be.Store, reports, logger),
		Vendors:    services.NewVendorService(be.Store, reports, logger),
		Budget:     services.NewBudgetService(be.Store, reports, logger),
	}

	srv := apphttp.NewServer(apphttp.Config{
		Addr:            cfg.Addr(),
		WritesPerMinute: cfg.WritesPerMinute,
		LoginsPerMinute: cfg.LoginsPerMinute,
		SecureCookies:   cfg.SecureCookies,
		TrustedProxies:  cfg.TrustedProxies,
	}, svc, be.Store, logger)
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		caches.Stop()
		if err := be.Close(); err != nil {
			logger.Error("Backend close error", log.FieldError, err)
		}
	})

	caches.StartCleanup(ctx, time.Minute)
	go purgeSessions(ctx, auth, logger)

	logger.Info("Listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}

// purgeSessions drops expired sessions every ten minutes.
func purgeSessions(ctx context.Context, auth *services.AuthService, logger *log.Logger) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := auth.PurgeExpired(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("Session purge failed", log.FieldError, err)
			}
		}
	}
}
