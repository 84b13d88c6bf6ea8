package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/marlow/finreporter/internal/domain"
)

// ErrNotFound is returned when no record exists for the requested ID.
var ErrNotFound = errors.New("report not found")

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status domain.Status
	UserID string
}

// Store is the narrow contract over the report record database. Each call
// succeeds or fails atomically; partial writes are never observable. The
// remote and in-memory implementations behave identically except for
// durability, so callers never need to know which one is active.
type Store interface {
	// Save creates or replaces the record for report.ID.
	Save(ctx context.Context, report *domain.Report) error

	// Update merges the given fields into an existing record. String values
	// above the overflow threshold are stored as a bounded summary inline
	// with the full value split into ordered chunks.
	Update(ctx context.Context, id string, fields map[string]interface{}) error

	// Get returns the record or ErrNotFound.
	Get(ctx context.Context, id string) (*domain.Report, error)

	// List returns records matching the filter.
	List(ctx context.Context, filter Filter) ([]*domain.Report, error)

	// Delete removes the record and any overflow chunks, or ErrNotFound.
	Delete(ctx context.Context, id string) error

	// GetFullValue returns the complete value of a field, reassembling
	// overflow chunks in order when the record carries a truncation marker.
	GetFullValue(ctx context.Context, id, field string) (string, error)

	// Close releases any underlying connections.
	Close() error
}

// Fields accepted by Update. Unknown fields are rejected before anything is
// written so a typo cannot silently grow the schema.
var updatableFields = map[string]bool{
	"status":          true,
	"error":           true,
	"progress":        true,
	"stored_path":     true,
	"file_size_bytes": true,
	"text_stats":      true,
	"analysis":        true,
	"extracted_text":  true,
}

func validateFields(fields map[string]interface{}) error {
	if len(fields) == 0 {
		return errors.New("update requires at least one field")
	}
	for k := range fields {
		if !updatableFields[k] {
			return fmt.Errorf("unknown report field %q", k)
		}
	}
	return nil
}
