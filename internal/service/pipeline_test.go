package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/marlow/finreporter/internal/config"
	"github.com/marlow/finreporter/internal/domain"
	"github.com/marlow/finreporter/internal/logger"
	"github.com/marlow/finreporter/internal/pdf"
	"github.com/marlow/finreporter/internal/storage"
	"github.com/marlow/finreporter/internal/store"
)

// buildPDF assembles a minimal single-font PDF with one uncompressed content
// stream per page, computing the cross-reference offsets as it goes. Page
// texts must not contain parentheses or backslashes.
func buildPDF(pageTexts []string) []byte {
	var buf bytes.Buffer
	offsets := []int{0}
	writeObj := func(body string) {
		offsets = append(offsets, buf.Len())
		buf.WriteString(body)
	}

	buf.WriteString("%PDF-1.4\n")

	n := len(pageTexts)
	kids := make([]string, n)
	for i := range pageTexts {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	writeObj("1 0 obj\n<< /Type /Catalog /Pages 2 0 R >>\nendobj\n")
	writeObj(fmt.Sprintf("2 0 obj\n<< /Type /Pages /Kids [%s] /Count %d >>\nendobj\n",
		strings.Join(kids, " "), n))
	writeObj("3 0 obj\n<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>\nendobj\n")

	for i, text := range pageTexts {
		pageObj := 4 + 2*i
		contentObj := pageObj + 1
		writeObj(fmt.Sprintf("%d 0 obj\n<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
			"/Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>\nendobj\n",
			pageObj, contentObj))
		stream := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		writeObj(fmt.Sprintf("%d 0 obj\n<< /Length %d >>\nstream\n%s\nendstream\nendobj\n",
			contentObj, len(stream), stream))
	}

	xrefOffset := buf.Len()
	total := 4 + 2*n
	fmt.Fprintf(&buf, "xref\n0 %d\n", total)
	buf.WriteString("0000000000 65535 f \n")
	for i := 1; i < total; i++ {
		fmt.Fprintf(&buf, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n",
		total, xrefOffset)
	return buf.Bytes()
}

type pipelineFixture struct {
	pipeline *Pipeline
	store    *store.MemoryStore
	objects  storage.ObjectStorage
	tracker  *StatusTracker
	uploads  *UploadService
}

func newPipelineFixture(t *testing.T, objects storage.ObjectStorage) *pipelineFixture {
	t.Helper()
	log := logger.GetDefault()

	ms := store.NewMemoryStore()
	if objects == nil {
		local, err := storage.NewLocalStorage(t.TempDir())
		if err != nil {
			t.Fatalf("local storage: %v", err)
		}
		objects = local
	}
	extractor, err := pdf.NewExtractor()
	if err != nil {
		t.Fatalf("extractor: %v", err)
	}
	analyzer, err := NewAnalysisService(context.Background(), &config.AIConfig{
		Model: "gemini-2.0-flash", MaxInputChars: 30000, Timeout: time.Second,
	}, log)
	if err != nil {
		t.Fatalf("analyzer: %v", err)
	}
	t.Cleanup(func() { analyzer.Close() })

	tracker := NewStatusTracker(ms)
	uploads := NewUploadService(ms, objects, tracker, log, &config.UploadConfig{
		MaxSizeBytes:     10 << 20,
		ChunkSizeBytes:   4096,
		ProgressInterval: 10 << 20,
		ChunkReadTimeout: 2 * time.Second,
	})
	pipeline := NewPipeline(ms, objects, extractor, analyzer, tracker, log,
		&config.PipelineConfig{Workers: 2, QueueSize: 8},
		&config.ExtractConfig{LargeFileBytes: 10 << 20, MinBatchPages: 5, MaxBatchPages: 20},
	)
	return &pipelineFixture{
		pipeline: pipeline,
		store:    ms,
		objects:  objects,
		tracker:  tracker,
		uploads:  uploads,
	}
}

func (f *pipelineFixture) waitForStatus(t *testing.T, id string, want domain.Status) *domain.Report {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		r, err := f.store.Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		switch r.Status {
		case want:
			return r
		case domain.StatusFailed:
			t.Fatalf("report failed: %s", r.Error)
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("report never reached %s", want)
	return nil
}

func TestPipelineProcessesDocument(t *testing.T) {
	f := newPipelineFixture(t, nil)
	ctx := context.Background()

	doc := buildPDF([]string{
		"Quarterly revenue grew steadily across all segments",
		"Operating margin held firm despite input cost pressure",
	})
	report, err := f.uploads.Receive(ctx, "q3.pdf", "u1", bytes.NewReader(doc))
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}

	f.pipeline.Start(ctx)
	if err := f.pipeline.EnqueueExtract(report.ID); err != nil {
		t.Fatalf("EnqueueExtract: %v", err)
	}
	got := f.waitForStatus(t, report.ID, domain.StatusExtracted)

	if got.TextStats == nil {
		t.Fatal("text stats missing")
	}
	if got.TextStats.PageCount != 2 {
		t.Errorf("page count = %d, want 2", got.TextStats.PageCount)
	}
	if got.TextStats.WordCount == 0 {
		t.Error("word count missing")
	}
	text, err := f.store.GetFullValue(ctx, report.ID, "extracted_text")
	if err != nil {
		t.Fatalf("GetFullValue: %v", err)
	}
	for _, want := range []string{"revenue grew steadily", "margin held firm"} {
		if !strings.Contains(text, want) {
			t.Errorf("extracted text missing %q", want)
		}
	}

	// The stored text blob carries exactly the text on the record
	rc, err := f.objects.Download(ctx, storage.TextKey(report.ID))
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	blob, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("read blob: %v", err)
	}
	if string(blob) != text {
		t.Errorf("text blob differs from the record: %d vs %d bytes", len(blob), len(text))
	}

	// The analyze stage completes the report with an analysis attached
	if err := f.tracker.Set(ctx, report.ID, domain.StatusAnalyzing, ""); err != nil {
		t.Fatalf("Set analyzing: %v", err)
	}
	if err := f.pipeline.EnqueueAnalyze(report.ID); err != nil {
		t.Fatalf("EnqueueAnalyze: %v", err)
	}
	f.pipeline.Stop()

	final, err := f.store.Get(ctx, report.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if final.Status != domain.StatusCompleted {
		t.Errorf("status = %s, want completed", final.Status)
	}
	if final.Analysis == nil || final.Analysis.Summary == "" {
		t.Error("analysis missing")
	}
}

func TestPipelineExtractsLargeFileInBatches(t *testing.T) {
	f := newPipelineFixture(t, nil)
	f.pipeline.extract.LargeFileBytes = 1
	ctx := context.Background()

	doc := buildPDF([]string{
		"Segment revenue by region",
		"Cost of goods sold detail",
		"Liquidity and capital resources",
	})
	report, err := f.uploads.Receive(ctx, "annual.pdf", "u1", bytes.NewReader(doc))
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}

	f.pipeline.Start(ctx)
	if err := f.pipeline.EnqueueExtract(report.ID); err != nil {
		t.Fatalf("EnqueueExtract: %v", err)
	}
	got := f.waitForStatus(t, report.ID, domain.StatusExtracted)
	f.pipeline.Stop()

	if got.TextStats == nil || got.TextStats.PageCount != 3 {
		t.Fatalf("text stats = %+v", got.TextStats)
	}
	if got.Progress != "Extracting page 3 of 3" {
		t.Errorf("progress = %q", got.Progress)
	}
	text, err := f.store.GetFullValue(ctx, report.ID, "extracted_text")
	if err != nil {
		t.Fatalf("GetFullValue: %v", err)
	}
	for _, want := range []string{"Segment revenue", "goods sold", "capital resources"} {
		if !strings.Contains(text, want) {
			t.Errorf("extracted text missing %q", want)
		}
	}
}

// textBlobFailStorage fails uploads of extracted-text blobs while passing
// everything else through.
type textBlobFailStorage struct {
	storage.ObjectStorage
}

func (s *textBlobFailStorage) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	if strings.HasSuffix(key, ".txt") {
		return errors.New("object store unavailable")
	}
	return s.ObjectStorage.Upload(ctx, key, reader, size, contentType)
}

func TestPipelineExtractFailsWhenTextBlobWriteFails(t *testing.T) {
	local, err := storage.NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("local storage: %v", err)
	}
	f := newPipelineFixture(t, &textBlobFailStorage{ObjectStorage: local})
	ctx := context.Background()

	doc := buildPDF([]string{"Net income rose on higher services revenue"})
	report, err := f.uploads.Receive(ctx, "fy.pdf", "u1", bytes.NewReader(doc))
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}

	f.pipeline.Start(ctx)
	if err := f.pipeline.EnqueueExtract(report.ID); err != nil {
		t.Fatalf("EnqueueExtract: %v", err)
	}
	f.pipeline.Stop()

	got, err := f.store.Get(ctx, report.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if !strings.Contains(got.Error, "text blob") {
		t.Errorf("error = %q", got.Error)
	}
	if got.TextStats != nil {
		t.Error("a failed extraction must not record text stats")
	}
	if got.ExtractedText != "" {
		t.Error("a failed extraction must not record extracted text")
	}
	if exists, _ := f.objects.Exists(ctx, storage.TextKey(report.ID)); exists {
		t.Error("no text blob may exist after a failed write")
	}
}

func TestPipelineExtractFailsOnCorruptFile(t *testing.T) {
	f := newPipelineFixture(t, nil)
	ctx := context.Background()

	report, err := f.uploads.Receive(ctx, "broken.pdf", "u1",
		bytes.NewReader([]byte("%PDF-1.4\nnot really a document")))
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}

	f.pipeline.Start(ctx)
	if err := f.pipeline.EnqueueExtract(report.ID); err != nil {
		t.Fatalf("EnqueueExtract: %v", err)
	}
	f.pipeline.Stop()

	got, err := f.store.Get(ctx, report.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.Error == "" {
		t.Error("failure message missing")
	}
	if got.TextStats != nil {
		t.Error("a failed extraction must not record text stats")
	}
}

func TestPipelineReleasesReportLocks(t *testing.T) {
	f := newPipelineFixture(t, nil)
	ctx := context.Background()

	doc := buildPDF([]string{"Cash flow from operations covered the dividend"})
	f.pipeline.Start(ctx)
	for i := 0; i < 3; i++ {
		report, err := f.uploads.Receive(ctx, fmt.Sprintf("r%d.pdf", i), "u1", bytes.NewReader(doc))
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		if err := f.pipeline.EnqueueExtract(report.ID); err != nil {
			t.Fatalf("EnqueueExtract: %v", err)
		}
	}
	f.pipeline.Stop()

	f.pipeline.mu.Lock()
	held := len(f.pipeline.locks)
	f.pipeline.mu.Unlock()
	if held != 0 {
		t.Errorf("%d report locks still held after drain", held)
	}
}

func TestSample(t *testing.T) {
	short := "under the limit"
	if got := sample(short); got != short {
		t.Errorf("short text must pass through, got %q", got)
	}

	long := strings.Repeat("a", 400) + strings.Repeat("z", 400)
	got := sample(long)
	if len(got) != textSampleLen+len(sampleMarker) {
		t.Errorf("sample length = %d", len(got))
	}
	if !strings.HasPrefix(got, strings.Repeat("a", textSampleLen/2)) {
		t.Error("sample must start with the text prefix")
	}
	if !strings.HasSuffix(got, strings.Repeat("z", textSampleLen/2)) {
		t.Error("sample must end with the text suffix")
	}
	if !strings.Contains(got, sampleMarker) {
		t.Error("sample must carry the elision marker")
	}
}
