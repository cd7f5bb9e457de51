// Command squid-headless runs the microscope without a display and exposes
// it over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"squid-go/application"
	"squid-go/domain/experiment"
	"squid-go/infrastructure/logging"
	"squid-go/infrastructure/repository"
	"squid-go/infrastructure/telemetry"
	"squid-go/presentation/httpapi"
	"squid-go/resources"
)

func main() {
	configPath := flag.String("config", "squid.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, stop, cfg); err != nil {
		slog.Error("squid-headless exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stop context.CancelFunc, cfg config) error {
	logCfg := logging.DefaultConfig()
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logCfg.Level = level
	logCfg.JSON = cfg.Log.JSON
	logCfg.Dir = cfg.Log.Dir

	logger, closeLog, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer closeLog()

	repo, closeRepo := openRepository(ctx, cfg.Mongo, logger)
	defer closeRepo()

	reg := prometheus.NewRegistry()
	collector, err := telemetry.NewPrometheusCollector(reg)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	coordCfg := application.DefaultCoordinatorConfig()
	coordCfg.Resources = resources.Files
	coordCfg.Objective = cfg.Objective
	coordCfg.OutputDir = cfg.OutputDir
	coordCfg.Repository = repo
	coordCfg.Collector = collector
	coordCfg.Logger = logger

	coordinator, err := application.NewCoordinator(coordCfg)
	if err != nil {
		return err
	}
	defer coordinator.Stop()

	router := httpapi.NewRouter(httpapi.Config{
		Coordinator: coordinator,
		Gatherer:    reg,
		Logger:      logger,
	})
	server := httpapi.NewServer(cfg.Addr, router, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	if cfg.Template != "" {
		g.Go(func() error {
			id, err := coordinator.StartTemplate(cfg.Template)
			if err != nil {
				return fmt.Errorf("start %s: %w", cfg.Template, err)
			}
			logger.Info("Acquisition started", "template", cfg.Template, "experiment_id", id)
			if err := coordinator.Acquisition.Wait(gctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}
			logger.Info("Acquisition finished", "experiment_id", id)
			if cfg.ExitAfterRun {
				stop()
			}
			return nil
		})
	}

	logger.Info("Squid headless ready", "addr", cfg.Addr)
	return g.Wait()
}

// openRepository connects to MongoDB when a URI is configured. Experiments
// stay in memory when it is unset or unreachable.
func openRepository(ctx context.Context, cfg mongoConfig, logger *slog.Logger) (experiment.Repository, func()) {
	if cfg.URI == "" {
		return nil, func() {}
	}
	mongoCfg := repository.DefaultMongoDBConfig()
	mongoCfg.URI = cfg.URI
	if cfg.Database != "" {
		mongoCfg.Database = cfg.Database
	}
	db, err := repository.NewMongoDB(ctx, mongoCfg, logger)
	if err != nil {
		logger.Warn("MongoDB unavailable, keeping experiments in memory", "error", err)
		return nil, func() {}
	}
	repo := repository.NewMongoExperimentRepository(db, logger)
	if err := repo.EnsureIndexes(ctx); err != nil {
		logger.Warn("Failed to create indexes", "error", err)
	}
	return repo, func() { _ = db.Close(context.Background()) }
}
