package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/marlow/finreporter/internal/config"
	"github.com/marlow/finreporter/internal/domain"
	"github.com/marlow/finreporter/internal/logger"
	"github.com/marlow/finreporter/internal/pdf"
	"github.com/marlow/finreporter/internal/service"
	"github.com/marlow/finreporter/internal/storage"
	"github.com/marlow/finreporter/internal/store"
)

// process runs the extraction and analysis pipeline over a local PDF
// without the HTTP layer, printing the resulting record as it goes.
func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		ServiceName: "finreporter-process",
	})
	logger.SetDefault(appLogger)

	filePath := flag.String("file", "", "Path to the PDF file to process")
	userID := flag.String("user", "local", "User ID to record on the report")
	skipAnalysis := flag.Bool("skip-analysis", false, "Extract text only, skip AI analysis")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	if *filePath == "" {
		fmt.Fprintln(os.Stderr, "usage: process -file report.pdf [-user id] [-skip-analysis]")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ctx := context.Background()

	recordStore := store.Open(ctx, &cfg.Store, appLogger)
	defer recordStore.Close()

	objectStorage, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize storage")
	}

	extractor, err := pdf.NewExtractor()
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize PDF extractor")
	}

	analyzer, err := service.NewAnalysisService(ctx, &cfg.AI, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize analysis service")
	}
	defer analyzer.Close()

	tracker := service.NewStatusTracker(recordStore)
	uploads := service.NewUploadService(recordStore, objectStorage, tracker, appLogger, &cfg.Upload)

	pipeline := service.NewPipeline(
		recordStore,
		objectStorage,
		extractor,
		analyzer,
		tracker,
		appLogger,
		&cfg.Pipeline,
		&cfg.Extract,
	)
	pipeline.Start(ctx)

	f, err := os.Open(*filePath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to open input file")
	}

	report, err := uploads.Receive(ctx, filepath.Base(*filePath), *userID, f)
	f.Close()
	if err != nil {
		appLogger.WithError(err).Fatal("Upload failed")
	}
	appLogger.WithField(logger.FieldReportID, report.ID).Info("Report stored")

	if err := pipeline.EnqueueExtract(report.ID); err != nil {
		appLogger.WithError(err).Fatal("Failed to schedule extraction")
	}
	status := waitForOutcome(ctx, recordStore, report.ID)

	if !*skipAnalysis && status == domain.StatusExtracted {
		if err := tracker.Set(ctx, report.ID, domain.StatusAnalyzing, ""); err != nil {
			appLogger.WithError(err).Fatal("Report is not in an analyzable state")
		}
		if err := pipeline.EnqueueAnalyze(report.ID); err != nil {
			appLogger.WithError(err).Fatal("Failed to schedule analysis")
		}
	}
	pipeline.Stop()

	final, err := recordStore.Get(ctx, report.ID)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to read final record")
	}

	// A failed run never writes text_stats, so report and stop here.
	if final.Status == domain.StatusFailed {
		appLogger.WithFields(logger.Fields{
			logger.FieldReportID: final.ID,
			"error":              final.Error,
		}).Fatal("Processing failed")
	}

	appLogger.WithFields(logger.Fields{
		logger.FieldReportID: final.ID,
		logger.FieldStatus:   string(final.Status),
		logger.FieldPages:    final.TextStats.PageCount,
		"words":              final.TextStats.WordCount,
	}).Info("Processing finished")

	if final.Analysis != nil {
		fmt.Printf("\nSummary:\n%s\n\nKey points:\n", final.Analysis.Summary)
		for _, kp := range final.Analysis.KeyPoints {
			fmt.Printf("  - %s\n", kp)
		}
	}
}

// waitForOutcome polls the record until the extract stage has settled.
func waitForOutcome(ctx context.Context, s store.Store, id string) domain.Status {
	for {
		time.Sleep(200 * time.Millisecond)
		r, err := s.Get(ctx, id)
		if err != nil {
			return domain.StatusFailed
		}
		switch r.Status {
		case domain.StatusExtracted, domain.StatusCompleted, domain.StatusFailed:
			return r.Status
		}
	}
}
