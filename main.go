package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catalog/internal/config"
	"catalog/internal/database"
	"catalog/internal/handlers"
	"catalog/internal/repositories"
	"catalog/internal/server"
	"catalog/internal/services"
	"catalog/internal/telemetry"
	"catalog/pkg/rabbitmq"
	"catalog/pkg/rpc"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, err := telemetry.New(ctx, cfg.OTel, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize telemetry: %v", err)
	}

	runErr := run(ctx, cfg, tel)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := tel.Shutdown(shutdownCtx); err != nil {
		tel.Logger.Error("Error shutting down telemetry", slog.String("error", err.Error()))
	}

	if runErr != nil {
		tel.Logger.Error("Products service stopped with error", slog.String("error", runErr.Error()))
		os.Exit(1)
	}
	tel.Logger.Info("Products service gracefully stopped")
}

// run owns the store and broker for the lifetime of the process and blocks
// until ctx is cancelled or a server fails.
func run(ctx context.Context, cfg *config.Config, tel *telemetry.Telemetry) error {
	logger := tel.Logger

	repo, checks, closeStore, err := openStore(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	productService := services.NewProductService(repo, tel.Tracer(), tel.Meter(), logger)

	mqClient, err := rabbitmq.NewClient(rabbitmq.Config{
		URL:      cfg.RabbitMQ.URL,
		Queue:    cfg.RabbitMQ.Queue,
		Prefetch: cfg.RabbitMQ.Prefetch,
	}, logger)
	if err != nil {
		return err
	}
	defer mqClient.Close()

	checks["rabbitmq"] = func(context.Context) error {
		if mqClient.IsClosed() {
			return errors.New("connection closed")
		}
		return nil
	}

	router := rpc.NewRouter(logger)
	handlers.NewProductRPCHandler(productService).RegisterPatterns(router)

	app := server.New(server.Options{
		Products:       handlers.NewProductHandler(productService, logger),
		Metrics:        tel.MetricsHandler(),
		Checks:         checks,
		RequestLogging: true,
		Tracer:         tel.Tracer(),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return mqClient.Serve(gctx, cfg.RabbitMQ.Queue, router.ServeMessage)
	})
	g.Go(func() error {
		logger.Info("Starting server", slog.String("port", cfg.AppPort))
		return app.Listen(cfg.AppPort)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	return g.Wait()
}

// openStore returns the product repository selected by cfg, the health
// checks for it and a function releasing it.
func openStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (repositories.ProductRepository, map[string]server.CheckFunc, func(), error) {
	checks := make(map[string]server.CheckFunc)

	switch cfg.Driver {
	case "memory":
		logger.Warn("Using in-memory product store; data is lost on exit")
		checks["database"] = func(context.Context) error { return nil }
		return repositories.NewMemoryProductRepository(), checks, func() {}, nil
	case "postgres":
		db, err := database.Open(cfg)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := database.Connect(ctx, db, logger); err != nil {
			database.Close(db)
			return nil, nil, nil, err
		}
		checks["database"] = func(ctx context.Context) error { return database.Ping(ctx, db) }
		closeStore := func() {
			if err := database.Close(db); err != nil {
				logger.Error("Error closing database", slog.String("error", err.Error()))
			}
		}
		return repositories.NewGORMProductRepository(db), checks, closeStore, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}
