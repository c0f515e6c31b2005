// cmd/cartsweep/main.go
//
// cartsweep deletes every cart past its expiry once and exits.
// Run it from a scheduler (Cloud Scheduler / cron).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	appcfg "storefront/internal/infra/config"
	"storefront/internal/infra/logging"
	mallDI "storefront/internal/platform/di/mall"
	shared "storefront/internal/platform/di/shared"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		zap.Must(zap.NewProduction()).Fatal("config load failed", zap.Error(err))
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		zap.Must(zap.NewProduction()).Fatal("logger init failed", zap.Error(err))
	}
	defer func() { _ = log.Sync() }()
	log = log.Named("cartsweep")

	if cfg.CartStore == appcfg.StoreMemory {
		log.Warn("cart store is in-memory; nothing to sweep")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("sweep failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *appcfg.Config, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	infra, err := shared.NewInfra(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("shared infra init: %w", err)
	}
	cont, err := mallDI.NewContainer(ctx, infra)
	if err != nil {
		_ = infra.Close()
		return fmt.Errorf("mall di init: %w", err)
	}
	defer func() {
		if err := cont.Close(); err != nil {
			log.Warn("close failed", zap.Error(err))
		}
	}()

	started := time.Now()
	n, err := cont.CartUC.PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("purge (deleted=%d): %w", n, err)
	}
	log.Info("sweep done", zap.Int("deleted", n), zap.Duration("took", time.Since(started)))
	return nil
}
