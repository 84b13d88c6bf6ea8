package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marlow/finreporter/internal/domain"
)

func newReport(id, userID string, status domain.Status, uploadedAt time.Time) *domain.Report {
	return &domain.Report{
		ID:         id,
		FileName:   id + ".pdf",
		UserID:     userID,
		UploadedAt: uploadedAt,
		Status:     status,
	}
}

func TestMemoryStoreSaveGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	r := newReport("r1", "u1", domain.StatusUploading, time.Now())
	if err := s.Save(ctx, r); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := s.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "r1" || got.UserID != "u1" || got.Status != domain.StatusUploading {
		t.Errorf("unexpected record: %+v", got)
	}

	// Returned records are copies
	got.Status = domain.StatusFailed
	again, _ := s.Get(ctx, "r1")
	if again.Status != domain.StatusUploading {
		t.Error("mutating a returned record must not affect the store")
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreUpdate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Save(ctx, newReport("r1", "u1", domain.StatusUploaded, time.Now()))

	err := s.Update(ctx, "r1", map[string]interface{}{
		"status":         domain.StatusProcessing,
		"progress":       "page 5 of 20",
		"stored_path":    "/data/r1.pdf",
		"file_size_bytes": int64(2048),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _ := s.Get(ctx, "r1")
	if got.Status != domain.StatusProcessing || got.Progress != "page 5 of 20" {
		t.Errorf("update not applied: %+v", got)
	}
	if got.StoredPath != "/data/r1.pdf" || got.FileSizeBytes != 2048 {
		t.Errorf("update not applied: %+v", got)
	}
}

func TestMemoryStoreUpdateRejectsUnknownField(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Save(ctx, newReport("r1", "u1", domain.StatusUploaded, time.Now()))

	err := s.Update(ctx, "r1", map[string]interface{}{"owner": "someone"})
	if err == nil {
		t.Fatal("expected unknown field to be rejected")
	}

	got, _ := s.Get(ctx, "r1")
	if got.Status != domain.StatusUploaded {
		t.Error("rejected update must leave the record untouched")
	}
}

func TestMemoryStoreUpdateMissing(t *testing.T) {
	s := NewMemoryStore()
	err := s.Update(context.Background(), "nope", map[string]interface{}{"status": domain.StatusFailed})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Update missing = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreList(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()
	s.Save(ctx, newReport("r1", "u1", domain.StatusCompleted, base.Add(-2*time.Hour)))
	s.Save(ctx, newReport("r2", "u2", domain.StatusFailed, base.Add(-1*time.Hour)))
	s.Save(ctx, newReport("r3", "u1", domain.StatusCompleted, base))

	t.Run("all sorted newest first", func(t *testing.T) {
		all, err := s.List(ctx, Filter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("got %d records, want 3", len(all))
		}
		if all[0].ID != "r3" || all[2].ID != "r1" {
			t.Errorf("wrong order: %s, %s, %s", all[0].ID, all[1].ID, all[2].ID)
		}
	})

	t.Run("by status", func(t *testing.T) {
		failed, _ := s.List(ctx, Filter{Status: domain.StatusFailed})
		if len(failed) != 1 || failed[0].ID != "r2" {
			t.Errorf("status filter returned %+v", failed)
		}
	})

	t.Run("by user", func(t *testing.T) {
		mine, _ := s.List(ctx, Filter{UserID: "u1"})
		if len(mine) != 2 {
			t.Errorf("user filter returned %d records, want 2", len(mine))
		}
	})
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Save(ctx, newReport("r1", "u1", domain.StatusCompleted, time.Now()))

	if err := s.Delete(ctx, "r1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, "r1"); !errors.Is(err, ErrNotFound) {
		t.Error("record still present after delete")
	}
	if err := s.Delete(ctx, "r1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreFailedUpdateIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.Save(ctx, newReport("r1", "u1", domain.StatusProcessing, time.Now()))

	fields := map[string]interface{}{
		"status": domain.StatusFailed,
		"error":  "extraction blew up",
	}
	if err := s.Update(ctx, "r1", fields); err != nil {
		t.Fatalf("first failed update: %v", err)
	}
	if err := s.Update(ctx, "r1", fields); err != nil {
		t.Fatalf("repeated failed update: %v", err)
	}

	got, _ := s.Get(ctx, "r1")
	if got.Status != domain.StatusFailed || got.Error != "extraction blew up" {
		t.Errorf("unexpected record after repeated failure write: %+v", got)
	}
}
