package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/marlow/finreporter/internal/config"
	"github.com/marlow/finreporter/internal/domain"
	"github.com/marlow/finreporter/internal/logger"
	"github.com/marlow/finreporter/internal/storage"
	"github.com/marlow/finreporter/internal/store"
)

func newUploadFixture(t *testing.T, maxSize int64) (*UploadService, *store.MemoryStore, storage.ObjectStorage) {
	t.Helper()
	ms := store.NewMemoryStore()
	objects, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("local storage: %v", err)
	}
	cfg := &config.UploadConfig{
		MaxSizeBytes:     maxSize,
		ChunkSizeBytes:   1024,
		ProgressInterval: 16 * 1024,
		ChunkReadTimeout: 2 * time.Second,
	}
	svc := NewUploadService(ms, objects, NewStatusTracker(ms), logger.GetDefault(), cfg)
	return svc, ms, objects
}

func TestUploadReceive(t *testing.T) {
	svc, ms, objects := newUploadFixture(t, 1<<20)
	ctx := context.Background()

	payload := bytes.Repeat([]byte("%PDF-1.4 test content "), 500)
	report, err := svc.Receive(ctx, "earnings.pdf", "u1", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}

	if report.Status != domain.StatusUploaded {
		t.Errorf("status = %s", report.Status)
	}
	if report.FileSizeBytes != int64(len(payload)) {
		t.Errorf("size = %d, want %d", report.FileSizeBytes, len(payload))
	}

	stored, err := ms.Get(ctx, report.ID)
	if err != nil {
		t.Fatalf("record missing: %v", err)
	}
	if stored.Status != domain.StatusUploaded || stored.Progress != "100%" {
		t.Errorf("record = %+v", stored)
	}

	exists, err := objects.Exists(ctx, storage.BinaryKey(report.ID))
	if err != nil || !exists {
		t.Errorf("stored binary missing: exists=%v err=%v", exists, err)
	}
}

func TestUploadReceiveRejectsNonPDF(t *testing.T) {
	svc, ms, _ := newUploadFixture(t, 1<<20)
	ctx := context.Background()

	_, err := svc.Receive(ctx, "notes.docx", "u1", strings.NewReader("hello"))
	if !errors.Is(err, ErrNotPDF) {
		t.Fatalf("Receive = %v, want ErrNotPDF", err)
	}

	reports, _ := ms.List(ctx, store.Filter{})
	if len(reports) != 0 {
		t.Errorf("rejected upload left %d records behind", len(reports))
	}
}

func TestUploadReceiveRejectsOversized(t *testing.T) {
	svc, ms, objects := newUploadFixture(t, 4*1024)
	ctx := context.Background()

	payload := bytes.Repeat([]byte("x"), 8*1024)
	_, err := svc.Receive(ctx, "big.pdf", "u1", bytes.NewReader(payload))
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("Receive = %v, want ErrPayloadTooLarge", err)
	}

	// No residual record and no residual file
	reports, _ := ms.List(ctx, store.Filter{})
	if len(reports) != 0 {
		t.Errorf("oversized upload left %d records behind", len(reports))
	}
	for _, r := range reports {
		if exists, _ := objects.Exists(ctx, storage.BinaryKey(r.ID)); exists {
			t.Error("oversized upload left a stored binary behind")
		}
	}
}

func TestUploadReceiveCaseInsensitiveExtension(t *testing.T) {
	svc, _, _ := newUploadFixture(t, 1<<20)
	report, err := svc.Receive(context.Background(), "Q3-REPORT.PDF", "u1", strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if report.Status != domain.StatusUploaded {
		t.Errorf("status = %s", report.Status)
	}
}

func TestUploadReceiveStreamError(t *testing.T) {
	svc, ms, _ := newUploadFixture(t, 1<<20)
	ctx := context.Background()

	_, err := svc.Receive(ctx, "broken.pdf", "u1", &failingReader{after: 2048})
	if err == nil {
		t.Fatal("expected an error from a broken stream")
	}

	// The record survives in failed state for diagnosis
	reports, _ := ms.List(ctx, store.Filter{Status: domain.StatusFailed})
	if len(reports) != 1 {
		t.Fatalf("got %d failed records, want 1", len(reports))
	}
	if reports[0].Error == "" {
		t.Error("failed record must carry the error message")
	}
}

// failingReader yields data until `after` bytes, then errors.
type failingReader struct {
	served int
	after  int
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.served >= r.after {
		return 0, errors.New("connection reset")
	}
	n := len(p)
	if remaining := r.after - r.served; n > remaining {
		n = remaining
	}
	for i := 0; i < n; i++ {
		p[i] = 'a'
	}
	r.served += n
	return n, nil
}
