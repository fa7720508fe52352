package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/dipteshhh/learnease-backend/internal/app"
	"github.com/dipteshhh/learnease-backend/internal/observability"
	"github.com/dipteshhh/learnease-backend/internal/platform/envutil"
	"github.com/dipteshhh/learnease-backend/internal/platform/logger"
)

func main() {
	_ = godotenv.Load()

	// Logger
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(log); err != nil {
		log.Error("server exited with error", "error", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("Loading environment variables...")
	cfg := app.LoadConfig(log)

	shutdownTracing := observability.InitOTel(ctx, log, cfg.Otel)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn("tracer shutdown failed", "error", err)
		}
	}()

	a, err := app.New(log, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Serve(gctx) })
	g.Go(func() error { return a.Sweep(gctx, cfg.ReconcileInterval) })
	err = g.Wait()
	log.Info("shutting down; waiting for generation runs to finish")
	return err
}
