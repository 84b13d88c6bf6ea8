package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/marlow/finreporter/internal/config"
	"github.com/marlow/finreporter/internal/domain"
	"github.com/marlow/finreporter/internal/logger"
	"github.com/marlow/finreporter/internal/pdf"
	"github.com/marlow/finreporter/internal/storage"
	"github.com/marlow/finreporter/internal/store"
)

// ErrQueueFull is returned when the pipeline cannot accept more work.
var ErrQueueFull = errors.New("pipeline queue is full")

const (
	textSampleLen = 500
	sampleMarker  = " ... "
)

type stage string

const (
	stageExtract stage = "extract"
	stageAnalyze stage = "analyze"
)

type task struct {
	stage    stage
	reportID string
}

// Pipeline runs extraction and analysis tasks on a fixed pool of workers.
// Tasks for the same report are serialized through a per-report lock so a
// document is never in two stages at once; tasks for different reports run
// concurrently.
type Pipeline struct {
	store     store.Store
	objects   storage.ObjectStorage
	extractor *pdf.Extractor
	analyzer  *AnalysisService
	tracker   *StatusTracker
	logger    *logger.Logger
	cfg       *config.PipelineConfig
	extract   *config.ExtractConfig

	queue chan task
	wg    sync.WaitGroup

	mu    sync.Mutex
	locks map[string]*reportLock
}

// reportLock serializes stages for one report. The waiter count lets the
// map entry be pruned once no task holds or wants the lock.
type reportLock struct {
	mu      sync.Mutex
	waiters int
}

// NewPipeline creates the pipeline. Start must be called before enqueueing.
func NewPipeline(
	s store.Store,
	objects storage.ObjectStorage,
	extractor *pdf.Extractor,
	analyzer *AnalysisService,
	tracker *StatusTracker,
	log *logger.Logger,
	cfg *config.PipelineConfig,
	extract *config.ExtractConfig,
) *Pipeline {
	return &Pipeline{
		store:     s,
		objects:   objects,
		extractor: extractor,
		analyzer:  analyzer,
		tracker:   tracker,
		logger:    log,
		cfg:       cfg,
		extract:   extract,
		queue:     make(chan task, cfg.QueueSize),
		locks:     make(map[string]*reportLock),
	}
}

// Start launches the worker pool. Workers drain the queue until Stop.
func (p *Pipeline) Start(ctx context.Context) {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.WithFields(logger.Fields{"workers": p.cfg.Workers}).Info("Pipeline started")
}

// Stop closes the queue and waits for in-flight tasks to finish.
func (p *Pipeline) Stop() {
	close(p.queue)
	p.wg.Wait()
	p.logger.Info("Pipeline stopped")
}

// EnqueueExtract schedules text extraction for the report.
func (p *Pipeline) EnqueueExtract(reportID string) error {
	return p.enqueue(task{stage: stageExtract, reportID: reportID})
}

// EnqueueAnalyze schedules AI analysis for the report.
func (p *Pipeline) EnqueueAnalyze(reportID string) error {
	return p.enqueue(task{stage: stageAnalyze, reportID: reportID})
}

func (p *Pipeline) enqueue(t task) error {
	select {
	case p.queue <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pipeline) acquireLock(id string) *reportLock {
	p.mu.Lock()
	l, ok := p.locks[id]
	if !ok {
		l = &reportLock{}
		p.locks[id] = l
	}
	l.waiters++
	p.mu.Unlock()

	l.mu.Lock()
	return l
}

func (p *Pipeline) releaseLock(id string, l *reportLock) {
	l.mu.Unlock()

	p.mu.Lock()
	l.waiters--
	if l.waiters == 0 {
		delete(p.locks, id)
	}
	p.mu.Unlock()
}

func (p *Pipeline) worker(ctx context.Context, n int) {
	defer p.wg.Done()
	log := p.logger.WithFields(logger.Fields{"worker": n})
	for t := range p.queue {
		p.run(ctx, log, t)
	}
}

func (p *Pipeline) run(ctx context.Context, log *logger.Logger, t task) {
	l := p.acquireLock(t.reportID)
	defer p.releaseLock(t.reportID, l)

	tlog := log.WithFields(logger.Fields{
		logger.FieldReportID: t.reportID,
		logger.FieldStage:    string(t.stage),
	})
	ctx = tlog.WithContext(ctx)

	defer func() {
		if r := recover(); r != nil {
			tlog.WithFields(logger.Fields{"panic": r}).Error("Task panicked")
			p.fail(ctx, t.reportID, fmt.Sprintf("internal error: %v", r))
		}
	}()

	var err error
	switch t.stage {
	case stageExtract:
		err = p.runExtract(ctx, t.reportID)
	case stageAnalyze:
		err = p.runAnalyze(ctx, t.reportID)
	}
	if err != nil {
		tlog.WithError(err).Error("Pipeline task failed")
		p.fail(ctx, t.reportID, err.Error())
	}
}

// fail records the failure. A failed report that was deleted mid-flight is
// only logged; there is nothing left to mark.
func (p *Pipeline) fail(ctx context.Context, id, msg string) {
	if err := p.tracker.Set(ctx, id, domain.StatusFailed, msg); err != nil && !errors.Is(err, store.ErrNotFound) {
		p.logger.WithError(err).WithField(logger.FieldReportID, id).Error("Failed to record failure")
	}
}

func (p *Pipeline) runExtract(ctx context.Context, id string) error {
	log := logger.FromContext(ctx)

	report, err := p.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := p.tracker.Set(ctx, id, domain.StatusProcessing, ""); err != nil {
		return err
	}

	path, cleanup, err := p.localFile(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to locate report file: %w", err)
	}
	defer cleanup()

	totalPages, err := p.extractor.PageCount(path)
	if err != nil {
		return fmt.Errorf("failed to read page count: %w", err)
	}

	var pages []pdf.PageText
	if report.FileSizeBytes > p.extract.LargeFileBytes {
		pages, err = p.extractBatched(ctx, id, path, totalPages)
	} else {
		pages, err = p.extractor.ExtractPages(path, 1, totalPages)
	}
	if err != nil {
		return fmt.Errorf("text extraction failed: %w", err)
	}

	text := assembleText(pages, totalPages)

	// The record is only advanced once the text blob is durable; a blob
	// write failure fails the stage.
	if err := p.objects.Upload(ctx, storage.TextKey(id),
		bytes.NewReader([]byte(text)), int64(len(text)), "text/plain"); err != nil {
		return fmt.Errorf("failed to store extracted text blob: %w", err)
	}

	stats := &domain.TextStats{
		Length:    len(text),
		WordCount: len(strings.Fields(text)),
		PageCount: totalPages,
		Sample:    sample(text),
	}
	if err := p.store.Update(ctx, id, map[string]interface{}{
		"extracted_text": text,
		"text_stats":     stats,
	}); err != nil {
		return fmt.Errorf("failed to persist extracted text: %w", err)
	}

	log.WithFields(logger.Fields{
		logger.FieldPages: totalPages,
		logger.FieldSize:  len(text),
	}).Info("Text extraction completed")
	return p.tracker.Set(ctx, id, domain.StatusExtracted, "")
}

// extractBatched walks the document in page batches, reporting progress
// after each batch so large files show movement while they grind.
func (p *Pipeline) extractBatched(ctx context.Context, id, path string, totalPages int) ([]pdf.PageText, error) {
	batch := pdf.BatchSize(totalPages, p.extract.MinBatchPages, p.extract.MaxBatchPages)
	pages := make([]pdf.PageText, 0, totalPages)
	for first := 1; first <= totalPages; first += batch {
		last := first + batch - 1
		if last > totalPages {
			last = totalPages
		}
		got, err := p.extractor.ExtractPages(path, first, last)
		if err != nil {
			return nil, err
		}
		pages = append(pages, got...)
		progress := fmt.Sprintf("Extracting page %d of %d", last, totalPages)
		if err := p.tracker.Progress(ctx, id, progress); err != nil {
			return nil, err
		}
	}
	return pages, nil
}

// assembleText joins page texts in order, substituting a placeholder for
// pages the extractor produced nothing for.
func assembleText(pages []pdf.PageText, totalPages int) string {
	byPage := make(map[int]string, len(pages))
	for _, pg := range pages {
		byPage[pg.Number] = pg.Text
	}
	parts := make([]string, 0, totalPages)
	for n := 1; n <= totalPages; n++ {
		text, ok := byPage[n]
		if !ok || strings.TrimSpace(text) == "" {
			text = pdf.Placeholder(n)
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n")
}

// sample keeps a bounded prefix and suffix of the text, the same shape the
// store uses for oversized inline values.
func sample(text string) string {
	if len(text) <= textSampleLen {
		return text
	}
	half := textSampleLen / 2
	return text[:half] + sampleMarker + text[len(text)-half:]
}

// localFile resolves the report binary to an on-disk path, downloading from
// object storage only when the backend has no local file for it.
func (p *Pipeline) localFile(ctx context.Context, id string) (string, func(), error) {
	key := storage.BinaryKey(id)
	if path, ok := p.objects.LocalPath(key); ok {
		return path, func() {}, nil
	}

	rc, err := p.objects.Download(ctx, key)
	if err != nil {
		return "", nil, err
	}
	defer rc.Close()

	tmp, err := os.CreateTemp("", "finreporter-*.pdf")
	if err != nil {
		return "", nil, err
	}
	if _, err := io.Copy(tmp, rc); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", nil, err
	}
	return tmp.Name(), func() { os.Remove(tmp.Name()) }, nil
}

func (p *Pipeline) runAnalyze(ctx context.Context, id string) error {
	log := logger.FromContext(ctx)

	text, err := p.store.GetFullValue(ctx, id, "extracted_text")
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if strings.TrimSpace(text) == "" {
		text = p.textFromBlob(ctx, id)
	}
	if strings.TrimSpace(text) == "" {
		log.Warn("No extracted text found, extracting before analysis")
		text = p.extractInline(ctx, id)
	}

	analysis := p.analyzer.Analyze(ctx, text)
	if err := p.store.Update(ctx, id, map[string]interface{}{
		"analysis": analysis,
	}); err != nil {
		return fmt.Errorf("failed to persist analysis: %w", err)
	}

	log.Info("Analysis completed")
	return p.tracker.Set(ctx, id, domain.StatusCompleted, "")
}

// extractInline pulls text straight from the stored binary for analysis of
// a report that skipped the extract stage. Status and text_stats are left
// alone; this text feeds the model only.
func (p *Pipeline) extractInline(ctx context.Context, id string) string {
	path, cleanup, err := p.localFile(ctx, id)
	if err != nil {
		return ""
	}
	defer cleanup()

	totalPages, err := p.extractor.PageCount(path)
	if err != nil {
		return ""
	}
	pages, err := p.extractor.ExtractPages(path, 1, totalPages)
	if err != nil {
		return ""
	}
	return assembleText(pages, totalPages)
}

// textFromBlob falls back to the stored text blob when the record carries
// no inline text, for example after a partial migration.
func (p *Pipeline) textFromBlob(ctx context.Context, id string) string {
	rc, err := p.objects.Download(ctx, storage.TextKey(id))
	if err != nil {
		return ""
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return ""
	}
	return string(data)
}
