package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marlow/finreporter/internal/api"
	"github.com/marlow/finreporter/internal/config"
	"github.com/marlow/finreporter/internal/logger"
	"github.com/marlow/finreporter/internal/pdf"
	"github.com/marlow/finreporter/internal/repository"
	"github.com/marlow/finreporter/internal/service"
	"github.com/marlow/finreporter/internal/storage"
	"github.com/marlow/finreporter/internal/store"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logg := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: "finreporter-api",
		File:        cfg.Log.File,
	})
	logger.SetDefault(logg)

	ctx := context.Background()

	// Record store: Firestore, or in-memory when unconfigured/unreachable
	recordStore := store.Open(ctx, &cfg.Store, logg)
	defer recordStore.Close()

	objectStorage, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		logg.WithError(err).Fatal("Failed to initialize storage")
	}

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		logg.WithError(err).Fatal("Failed to initialize database")
	}
	marketCache := repository.NewMarketCacheRepository(db)

	extractor, err := pdf.NewExtractor()
	if err != nil {
		logg.WithError(err).Fatal("Failed to initialize PDF extractor")
	}

	analyzer, err := service.NewAnalysisService(ctx, &cfg.AI, logg)
	if err != nil {
		logg.WithError(err).Fatal("Failed to initialize analysis service")
	}
	defer analyzer.Close()

	tracker := service.NewStatusTracker(recordStore)
	uploads := service.NewUploadService(recordStore, objectStorage, tracker, logg, &cfg.Upload)
	market := service.NewMarketService(&cfg.Market, marketCache, logg)
	forecasts := service.NewForecastService(market)

	pipeline := service.NewPipeline(
		recordStore,
		objectStorage,
		extractor,
		analyzer,
		tracker,
		logg,
		&cfg.Pipeline,
		&cfg.Extract,
	)
	pipeline.Start(ctx)

	router := api.SetupRouter(&cfg.Server, api.Deps{
		Store:     recordStore,
		Objects:   objectStorage,
		Uploads:   uploads,
		Tracker:   tracker,
		Pipeline:  pipeline,
		Market:    market,
		Forecasts: forecasts,
		Logger:    logg,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logg.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logg.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.WithError(err).Fatal("Server forced to shutdown")
	}

	// Let in-flight pipeline tasks finish before exiting
	pipeline.Stop()

	logg.Info("Server exited")
}
