package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"expenses/internal/amqp"
	"expenses/internal/backend"
	"expenses/internal/cli"
	"expenses/internal/config"
	"expenses/internal/log"
	"expenses/internal/worker"
)

func main() {
	if err := cli.LoadEnvFile(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat)

	if err := run(cfg, logger); err != nil {
		logger.Error("Expenses worker failed", log.FieldError, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
	if !cfg.EventsEnabled() {
		return errors.New("AMQP_URL is required for the worker")
	}
	logger.Info("Starting expenses worker", "backend", cfg.DataBackend, "queue", cfg.AMQPQueue)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	result, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Slog()).CreateBackend(ctx, backendCfg)
	if err != nil {
		return fmt.Errorf("create backend: %w", err)
	}

	amqpClient, err := amqp.NewClient(ctx, amqp.Config{
		URL:             cfg.AMQPURL,
		Exchange:        cfg.AMQPExchange,
		Queue:           cfg.AMQPQueue,
		ConnectAttempts: uint(cfg.AMQPConnectAttempts),
	})
	if err != nil {
		_ = result.Cleanup()
		return fmt.Errorf("connect AMQP: %w", err)
	}

	summaries := worker.NewSummaryWorker(result.Backend, logger.WithComponent(log.ComponentWorker).Slog())

	// Report once at startup so the log reflects the current state before any event arrives.
	if _, err := summaries.ReportSummary(ctx); err != nil {
		logger.Error("Startup summary failed", log.FieldError, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := amqpClient.ConsumeExpenseEvents(gctx, summaries.HandleEvent)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	err = g.Wait()

	shutdownErr := cli.GracefulShutdown(logger, 10*time.Second,
		func(context.Context) error { return amqpClient.Close() },
		func(context.Context) error { return result.Cleanup() },
	)
	last := summaries.LastSummary()
	logger.Info("Worker stopped",
		"events_handled", summaries.EventsHandled(),
		"total_expenses", last.TotalExpenses,
		"total_amount", last.TotalAmount.String())
	return errors.Join(err, shutdownErr)
}
