package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/automaxprocs/maxprocs"

	"github.com/jimmy443dd/S-675-Scrapper/internal/config"
	"github.com/jimmy443dd/S-675-Scrapper/internal/engine"
	"github.com/jimmy443dd/S-675-Scrapper/internal/helper"
	"github.com/jimmy443dd/S-675-Scrapper/internal/metrics"
	"github.com/jimmy443dd/S-675-Scrapper/internal/report"
	"github.com/jimmy443dd/S-675-Scrapper/internal/scanner"
	"github.com/jimmy443dd/S-675-Scrapper/internal/server"
	"github.com/jimmy443dd/S-675-Scrapper/internal/store"
	"github.com/jimmy443dd/S-675-Scrapper/internal/telemetry"
)

func main() {
	// Set the correct number of threads for the service
	_, _ = maxprocs.Set(maxprocs.Logger(log.Printf))

	if err := run(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func run() error {
	log.Printf("[main] GOMAXPROCS=%d", runtime.GOMAXPROCS(0))

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := helper.EnsureDir(cfg.Reports.Dir); err != nil {
		return fmt.Errorf("reports dir: %w", err)
	}

	tp, shutdownTracing, err := telemetry.InitTracing(cfg.Tracing)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownTracing(ctx)
	}()

	collector, err := metrics.New()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	opts := engine.OptionsFromConfig(cfg.Engine)
	client := engine.NewClient(opts)
	tokens := engine.NewTokenManager(client)
	writer := report.NewWriter(cfg.Reports.Dir)
	tester := engine.NewScanner(client, opts, writer)

	st := store.New()
	ctrl := scanner.NewController(st, tokens, tester,
		scanner.WithMetrics(collector),
		scanner.WithTracer(tp.Tracer("scansuite/scanner")),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg.Server, st, ctrl, writer.Dir(), collector)
	runErr := srv.Run(ctx)

	// a scan in flight gets the shutdown window even when the server failed
	if !ctrl.WaitTimeout(cfg.Server.ShutdownTimeout) {
		log.Printf("[main] scan still running after %s, exiting anyway", cfg.Server.ShutdownTimeout)
	}

	return runErr
}
