// Package main is the entry point for the Squid desktop application.
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"fyne.io/fyne/v2/app"
	"github.com/prometheus/client_golang/prometheus"

	"squid-go/application"
	"squid-go/domain/experiment"
	"squid-go/infrastructure/logging"
	"squid-go/infrastructure/repository"
	"squid-go/infrastructure/telemetry"
	"squid-go/presentation"
	"squid-go/presentation/httpapi"
	"squid-go/resources"
)

func main() {
	mongoURI := flag.String("mongo", "", "MongoDB URI for experiment records; empty keeps them in memory")
	outputDir := flag.String("output", "", "directory for FITS images; empty disables image files")
	httpAddr := flag.String("http", "", "serve the HTTP API and /metrics on this address; empty disables it")
	level := flag.String("log-level", "info", "log level (debug, info, warn, error)")
	flag.Parse()

	logCfg := logging.DefaultConfig()
	if lvl, err := logging.ParseLevel(*level); err == nil {
		logCfg.Level = lvl
	}

	// Initialize logging (dev: console only, prod: rotating file)
	logger, closeLog, err := logging.Setup(logCfg)
	if err != nil {
		os.Stderr.WriteString("Failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer closeLog()

	logger.Info("Starting Squid")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var repo experiment.Repository
	if *mongoURI != "" {
		mongoCfg := repository.DefaultMongoDBConfig()
		mongoCfg.URI = *mongoURI
		mongoDB, err := repository.NewMongoDB(ctx, mongoCfg, logger)
		if err != nil {
			logger.Warn("MongoDB unavailable, keeping experiments in memory", "error", err)
		} else {
			defer mongoDB.Close(ctx)
			mongoRepo := repository.NewMongoExperimentRepository(mongoDB, logger)
			if err := mongoRepo.EnsureIndexes(ctx); err != nil {
				logger.Warn("Failed to create indexes", "error", err)
			}
			repo = mongoRepo
		}
	}

	reg := prometheus.NewRegistry()
	collector, err := telemetry.NewPrometheusCollector(reg)
	if err != nil {
		logger.Error("Failed to register metrics", "error", err)
		os.Exit(1)
	}

	cfg := application.DefaultCoordinatorConfig()
	cfg.Resources = resources.Files
	cfg.Repository = repo
	cfg.OutputDir = *outputDir
	cfg.Collector = collector
	cfg.Logger = logger

	coordinator, err := application.NewCoordinator(cfg)
	if err != nil {
		logger.Error("Failed to start coordinator", "error", err)
		os.Exit(1)
	}
	defer coordinator.Stop()

	if *httpAddr != "" {
		router := httpapi.NewRouter(httpapi.Config{
			Coordinator: coordinator,
			Gatherer:    reg,
			Logger:      logger,
		})
		server := httpapi.NewServer(*httpAddr, router, logger)
		go func() {
			if err := server.Run(ctx); err != nil {
				logger.Error("HTTP API stopped", "error", err)
			}
		}()
	}

	bridge := presentation.NewUIEventBridge(&presentation.BridgeConfig{
		Coordinator: coordinator,
		Logger:      logger,
	})
	defer bridge.Close()

	fyneApp := app.New()

	mainWindow := presentation.NewMainWindow(&presentation.MainWindowConfig{
		App:    fyneApp,
		Bridge: bridge,
		Stream: coordinator.Stream,
		Logger: logger,
	})
	defer mainWindow.Cleanup()

	mainWindow.ShowAndRun()
	cancel()

	// Force exit if hardware shutdown hangs
	go func() {
		time.Sleep(10 * time.Second)
		logger.Warn("Shutdown timeout, forcing exit")
		os.Exit(0)
	}()

	logger.Info("Application shutdown complete")
}
