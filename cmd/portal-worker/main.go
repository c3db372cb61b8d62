package main

import (
	"context"
	"errors"
	"os"
	"time"

	"fundportal/internal/amqp"
	"fundportal/internal/cli"
	"fundportal/internal/config"
	"fundportal/internal/log"
	gsheet "fundportal/internal/sheets/google"
	"fundportal/internal/worker"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig()
	logger = logger.WithComponent(log.ComponentWorker)
	logger.Info("Starting portal-worker", "backend", cfg.DataBackend)

	if cfg.DataBackend == config.BackendMemory {
		logger.Error("portal-worker needs a shared database: set DATA_BACKEND to sqlite or postgres")
		os.Exit(1)
	}
	if !cfg.LedgerEnabled() {
		logger.Error("Ledger export disabled: GOOGLE_SPREADSHEET_ID is not set")
		os.Exit(1)
	}

	// The worker consumes events; it never publishes them.
	storeCfg := *cfg
	storeCfg.AMQPURL = ""
	be := cli.OpenBackend(context.Background(), &storeCfg, logger)

	ledger, err := gsheet.NewFromEnv(context.Background())
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Google Sheets ledger initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	var consumer *amqp.Client
	if cfg.AMQPURL != "" {
		consumer, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			os.Exit(1)
		}
	} else {
		logger.Info("AMQP disabled, relying on periodic catch-up only", "interval", cfg.SyncInterval)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if consumer != nil {
			if err := consumer.Close(); err != nil {
				logger.Warn("AMQP close error", log.FieldError, err)
			}
		}
	})

	lw := worker.NewLedgerWorker(be.Store, ledger, cfg.SyncBatchSize, logger)

	// Catch up on decisions made while the worker was down.
	if n, err := lw.ProcessPending(ctx); err != nil {
		logger.Error("Startup catch-up failed", log.FieldError, err)
	} else {
		logger.Info("Startup catch-up finished", "exported", n)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return lw.Run(gctx, cfg.SyncInterval) })
	if consumer != nil {
		g.Go(func() error { return consumer.ConsumeDemandEvents(gctx, lw.HandleDemandEvent) })
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped", log.FieldError, err)
	}

	cli.WaitForShutdown(ctx, done)
	if err := be.Close(); err != nil {
		logger.Warn("Backend close error", log.FieldError, err)
	}
	logger.Info("Worker shutdown complete")
}
