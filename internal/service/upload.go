package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/marlow/finreporter/internal/config"
	"github.com/marlow/finreporter/internal/domain"
	"github.com/marlow/finreporter/internal/logger"
	"github.com/marlow/finreporter/internal/storage"
	"github.com/marlow/finreporter/internal/store"
)

// ErrPayloadTooLarge is returned when an upload exceeds the configured limit.
var ErrPayloadTooLarge = errors.New("payload exceeds size limit")

// ErrNotPDF is returned when the uploaded file name is not a .pdf.
var ErrNotPDF = errors.New("only PDF files are allowed")

// UploadService streams inbound report files to storage in bounded chunks,
// creating and advancing the report record as it goes.
type UploadService struct {
	store   store.Store
	objects storage.ObjectStorage
	tracker *StatusTracker
	logger  *logger.Logger
	cfg     *config.UploadConfig
}

// NewUploadService creates a new upload service.
func NewUploadService(
	s store.Store,
	objects storage.ObjectStorage,
	tracker *StatusTracker,
	log *logger.Logger,
	cfg *config.UploadConfig,
) *UploadService {
	return &UploadService{
		store:   s,
		objects: objects,
		tracker: tracker,
		logger:  log,
		cfg:     cfg,
	}
}

func (s *UploadService) log(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// chunkResult is one bounded read handed from the reader goroutine to the
// writer loop.
type chunkResult struct {
	data []byte
	err  error
}

// Receive validates the upload, creates the report record in uploading
// state, streams the body to storage in bounded chunks with periodic
// progress updates, and transitions the record to uploaded. On a size
// violation the partial file and the record are both removed.
func (s *UploadService) Receive(ctx context.Context, fileName, userID string, body io.Reader) (*domain.Report, error) {
	if !strings.EqualFold(filepath.Ext(fileName), ".pdf") {
		return nil, ErrNotPDF
	}

	report := &domain.Report{
		ID:         uuid.New().String(),
		FileName:   fileName,
		UserID:     userID,
		UploadedAt: time.Now().UTC(),
		Status:     domain.StatusUploading,
	}
	if err := s.store.Save(ctx, report); err != nil {
		return nil, fmt.Errorf("failed to create report record: %w", err)
	}

	log := s.log(ctx).WithFields(logger.Fields{
		logger.FieldReportID: report.ID,
		logger.FieldUserID:   userID,
	})
	log.WithField("file_name", fileName).Info("Receiving upload")

	written, spool, err := s.writeSpool(ctx, report.ID, body)
	if err != nil {
		if errors.Is(err, ErrPayloadTooLarge) {
			// No residual file, no residual record
			if delErr := s.store.Delete(ctx, report.ID); delErr != nil {
				log.WithError(delErr).Warn("Failed to remove record after oversized upload")
			}
			return nil, err
		}
		_ = s.tracker.Set(ctx, report.ID, domain.StatusFailed, err.Error())
		return nil, err
	}
	defer os.Remove(spool)

	key := storage.BinaryKey(report.ID)
	f, err := os.Open(spool)
	if err != nil {
		_ = s.tracker.Set(ctx, report.ID, domain.StatusFailed, err.Error())
		return nil, fmt.Errorf("failed to reopen spool file: %w", err)
	}
	defer f.Close()

	if err := s.objects.Upload(ctx, key, f, written, "application/pdf"); err != nil {
		_ = s.tracker.Set(ctx, report.ID, domain.StatusFailed, err.Error())
		return nil, err
	}

	storedPath := key
	if p, ok := s.objects.LocalPath(key); ok {
		storedPath = p
	}

	if err := s.store.Update(ctx, report.ID, map[string]interface{}{
		"stored_path":     storedPath,
		"file_size_bytes": written,
		"progress":        "100%",
	}); err != nil {
		return nil, err
	}
	if err := s.tracker.Set(ctx, report.ID, domain.StatusUploaded, ""); err != nil {
		return nil, err
	}

	log.WithField(logger.FieldSize, written).Info("Upload complete")

	report.StoredPath = storedPath
	report.FileSizeBytes = written
	report.Status = domain.StatusUploaded
	return report, nil
}

// writeSpool streams body to a temp file in bounded chunks, enforcing the
// size limit and persisting progress as a percentage of that limit. A chunk
// read that exceeds the bounded wait is retried, not aborted.
func (s *UploadService) writeSpool(ctx context.Context, reportID string, body io.Reader) (int64, string, error) {
	tmp, err := os.CreateTemp("", "finreporter-upload-*")
	if err != nil {
		return 0, "", fmt.Errorf("failed to create spool file: %w", err)
	}
	spool := tmp.Name()

	discard := func() {
		tmp.Close()
		os.Remove(spool)
	}

	chunks := make(chan chunkResult)
	// On an early exit the reader goroutine must not stay blocked on send
	drain := func() {
		go func() {
			for range chunks {
			}
		}()
	}
	go func() {
		defer close(chunks)
		for {
			buf := make([]byte, s.cfg.ChunkSizeBytes)
			n, err := body.Read(buf)
			if n > 0 {
				chunks <- chunkResult{data: buf[:n]}
			}
			if err != nil {
				if err != io.EOF {
					chunks <- chunkResult{err: err}
				}
				return
			}
		}
	}()

	var written int64
	var lastProgress int64
	for {
		var res chunkResult
		var open bool
		select {
		case res, open = <-chunks:
		case <-time.After(s.cfg.ChunkReadTimeout):
			s.log(ctx).WithField(logger.FieldReportID, reportID).
				Warn("Chunk read timed out, retrying")
			continue
		}
		if !open {
			break
		}
		if res.err != nil {
			drain()
			discard()
			return 0, "", fmt.Errorf("failed to read upload stream: %w", res.err)
		}

		if written+int64(len(res.data)) > s.cfg.MaxSizeBytes {
			drain()
			discard()
			return 0, "", ErrPayloadTooLarge
		}
		if _, err := tmp.Write(res.data); err != nil {
			drain()
			discard()
			return 0, "", fmt.Errorf("failed to write spool file: %w", err)
		}
		written += int64(len(res.data))

		// The true final size is unknown mid-stream, so progress is
		// reported against the configured limit.
		if written-lastProgress >= s.cfg.ProgressInterval {
			lastProgress = written
			pct := written * 100 / s.cfg.MaxSizeBytes
			if err := s.tracker.Progress(ctx, reportID, fmt.Sprintf("%d%%", pct)); err != nil {
				s.log(ctx).WithError(err).Warn("Failed to persist upload progress")
			}
		}
	}

	if err := tmp.Close(); err != nil {
		os.Remove(spool)
		return 0, "", fmt.Errorf("failed to close spool file: %w", err)
	}
	return written, spool, nil
}
