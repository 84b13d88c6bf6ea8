package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/marlow/finreporter/internal/domain"
)

// buildText produces a deterministic non-repeating string of length n.
func buildText(n int) string {
	var b strings.Builder
	b.Grow(n + 16)
	for i := 0; b.Len() < n; i++ {
		b.WriteString("segment-")
		b.WriteRune(rune('a' + i%26))
		b.WriteString("|")
	}
	return b.String()[:n]
}

func TestSplitChunks(t *testing.T) {
	tests := []struct {
		name      string
		size      int
		wantCount int
	}{
		{"single chunk", chunkSize - 1, 1},
		{"exact boundary", chunkSize, 1},
		{"one byte over", chunkSize + 1, 2},
		{"three chunks", 2*chunkSize + 100, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := buildText(tt.size)
			chunks := splitChunks(text)
			if len(chunks) != tt.wantCount {
				t.Fatalf("got %d chunks, want %d", len(chunks), tt.wantCount)
			}
			var rebuilt strings.Builder
			for i, c := range chunks {
				if c.Index != i {
					t.Errorf("chunk %d has index %d", i, c.Index)
				}
				if c.Start != i*chunkSize {
					t.Errorf("chunk %d starts at %d", i, c.Start)
				}
				if c.End-c.Start != len(c.Text) {
					t.Errorf("chunk %d positions disagree with text length", i)
				}
				rebuilt.WriteString(c.Text)
			}
			if rebuilt.String() != text {
				t.Error("concatenated chunks differ from the original text")
			}
		})
	}
}

func TestSummarize(t *testing.T) {
	text := buildText(OverflowThreshold + 50_000)
	got := summarize(text)

	if !strings.HasPrefix(got, text[:summaryBound]) {
		t.Error("summary must start with the original prefix")
	}
	if !strings.HasSuffix(got, text[len(text)-summaryBound:]) {
		t.Error("summary must end with the original suffix")
	}
	if !strings.Contains(got, truncationMarker) {
		t.Error("summary must carry the truncation marker")
	}
	if len(got) != 2*summaryBound+len(truncationMarker) {
		t.Errorf("summary length = %d", len(got))
	}
}

func TestApplyOverflow(t *testing.T) {
	t.Run("small values stay inline and reset the markers", func(t *testing.T) {
		fields := map[string]interface{}{
			"extracted_text": "short text",
			"status":         domain.StatusExtracted,
		}
		overflow, cleared := applyOverflow(fields)
		if overflow != nil {
			t.Fatalf("unexpected overflow: %v", overflow)
		}
		if len(cleared) != 1 || cleared[0] != "extracted_text" {
			t.Errorf("cleared = %v", cleared)
		}
		if fields["extracted_text"] != "short text" {
			t.Error("small value must be stored inline unchanged")
		}
		if fields["extracted_text_truncated"] != false {
			t.Error("truncation marker must be reset alongside a small value")
		}
		if fields["extracted_text_full_size"] != 0 {
			t.Error("full size must be reset alongside a small value")
		}
	})

	t.Run("oversized value is summarized and chunked", func(t *testing.T) {
		text := buildText(OverflowThreshold + 200_000)
		fields := map[string]interface{}{"extracted_text": text}

		overflow, _ := applyOverflow(fields)
		if overflow == nil {
			t.Fatal("expected overflow chunks")
		}
		if fields["extracted_text"] == text {
			t.Error("oversized value must not be stored inline")
		}
		if fields["extracted_text_truncated"] != true {
			t.Error("truncated marker not set")
		}
		if fields["extracted_text_full_size"] != len(text) {
			t.Error("full size not recorded")
		}

		var rebuilt strings.Builder
		for _, c := range overflow["extracted_text"] {
			rebuilt.WriteString(c.Text)
		}
		if rebuilt.String() != text {
			t.Error("chunks do not reassemble to the original text")
		}
	})
}

func TestMemoryStoreGetFullValue(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Save(ctx, newReport("r1", "u1", domain.StatusProcessing, time.Now()))

	t.Run("inline value", func(t *testing.T) {
		if err := s.Update(ctx, "r1", map[string]interface{}{"extracted_text": "plain text"}); err != nil {
			t.Fatalf("Update: %v", err)
		}
		got, err := s.GetFullValue(ctx, "r1", "extracted_text")
		if err != nil {
			t.Fatalf("GetFullValue: %v", err)
		}
		if got != "plain text" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("reassembly is byte-identical", func(t *testing.T) {
		text := buildText(OverflowThreshold + 300_000)
		if err := s.Update(ctx, "r1", map[string]interface{}{"extracted_text": text}); err != nil {
			t.Fatalf("Update: %v", err)
		}

		r, _ := s.Get(ctx, "r1")
		if !r.TextTruncated {
			t.Fatal("record must carry the truncation marker")
		}
		if !strings.Contains(r.ExtractedText, truncationMarker) {
			t.Error("inline value must be the bounded summary")
		}

		got, err := s.GetFullValue(ctx, "r1", "extracted_text")
		if err != nil {
			t.Fatalf("GetFullValue: %v", err)
		}
		if got != text {
			t.Errorf("reassembled text differs: got %d bytes, want %d", len(got), len(text))
		}
	})

	t.Run("rewrite under the threshold replaces the old value wholesale", func(t *testing.T) {
		text := buildText(OverflowThreshold + 300_000)
		if err := s.Update(ctx, "r1", map[string]interface{}{"extracted_text": text}); err != nil {
			t.Fatalf("Update: %v", err)
		}
		if err := s.Update(ctx, "r1", map[string]interface{}{"extracted_text": "fresh small text"}); err != nil {
			t.Fatalf("Update: %v", err)
		}

		r, _ := s.Get(ctx, "r1")
		if r.TextTruncated {
			t.Error("truncation marker must be cleared by the rewrite")
		}
		if r.FullTextSize != 0 {
			t.Errorf("full size = %d, want 0", r.FullTextSize)
		}

		got, err := s.GetFullValue(ctx, "r1", "extracted_text")
		if err != nil {
			t.Fatalf("GetFullValue: %v", err)
		}
		if got != "fresh small text" {
			t.Errorf("got %d bytes, want the rewritten text", len(got))
		}
		if len(s.chunks["r1"]["extracted_text"]) != 0 {
			t.Error("old chunks must be dropped by the rewrite")
		}
	})

	t.Run("unsupported field", func(t *testing.T) {
		if _, err := s.GetFullValue(ctx, "r1", "analysis"); err == nil {
			t.Error("expected an error for a field with no stored value")
		}
	})

	t.Run("chunks removed with record", func(t *testing.T) {
		if err := s.Delete(ctx, "r1"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := s.GetFullValue(ctx, "r1", "extracted_text"); err == nil {
			t.Error("expected ErrNotFound after delete")
		}
	})
}
