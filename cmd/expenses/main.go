package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"expenses/internal/amqp"
	"expenses/internal/backend"
	"expenses/internal/cache"
	"expenses/internal/cli"
	"expenses/internal/config"
	apphttp "expenses/internal/http"
	"expenses/internal/log"
	"expenses/internal/middleware/ratelimit"
	"expenses/internal/services"
)

const shutdownTimeout = 30 * time.Second

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
		logger.Error("Expenses server failed", log.FieldError, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *log.Logger) error {
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

	opts := []services.Option{
		services.WithLogger(logger.WithComponent(log.ComponentExpense).Slog()),
		services.WithSummaryCache(cfg.SummaryCacheTTL),
	}

	var amqpClient *amqp.Client
	if cfg.EventsEnabled() {
		amqpClient, err = amqp.NewClient(ctx, amqp.Config{
			URL:             cfg.AMQPURL,
			Exchange:        cfg.AMQPExchange,
			Queue:           cfg.AMQPQueue,
			ConnectAttempts: uint(cfg.AMQPConnectAttempts),
		})
		if err != nil {
			// Events are best-effort; serve without them.
			logger.Error("Failed to connect to AMQP, change events disabled", log.FieldError, err)
		} else {
			opts = append(opts, services.WithPublisher(amqpClient))
			logger.Info("Change events enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	svc := services.NewExpenseService(result.Backend, opts...)

	caches := cache.NewManager(logger.WithComponent(log.ComponentCache).Slog())
	if sc := svc.SummaryCache(); sc != nil {
		caches.Register(sc)
		caches.StartCleanup(time.Minute)
	}

	// Releases everything opened so far; the HTTP server is stopped before these.
	cleanup := []func(context.Context) error{
		func(context.Context) error { caches.Stop(); return nil },
		func(context.Context) error {
			if amqpClient == nil {
				return nil
			}
			return amqpClient.Close()
		},
		func(context.Context) error { return svc.Close() },
	}

	port, _ := strconv.Atoi(cfg.Port)
	ln, err := cli.ListenAvailable(ctx, logger, "", port, cfg.PortScanAttempts)
	if err != nil {
		return errors.Join(err, cli.GracefulShutdown(logger, shutdownTimeout, cleanup...))
	}

	limits := ratelimit.DefaultConfig()
	limits.RequestsPerMinute = cfg.RateLimitPerMinute
	srv := apphttp.NewServer(ln.Addr().String(), svc,
		apphttp.WithLogger(logger),
		apphttp.WithRateLimit(limits))
	logger.Info("Starting expenses server",
		"port", cli.ListenerPort(ln),
		"backend", cfg.DataBackend,
		"events", amqpClient != nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(ln)
	})
	g.Go(func() error {
		<-gctx.Done()
		return cli.GracefulShutdown(logger, shutdownTimeout,
			append([]func(context.Context) error{srv.Shutdown}, cleanup...)...)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Server stopped gracefully")
	return nil
}
