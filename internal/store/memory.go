package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/marlow/finreporter/internal/domain"
)

// MemoryStore keeps records in process memory. It is the degraded mode used
// when the remote store is unreachable at startup, and the natural backend
// for tests. Semantics match the remote store except durability.
type MemoryStore struct {
	mu      sync.RWMutex
	reports map[string]*domain.Report
	chunks  map[string]map[string][]chunk // id -> field -> ordered pieces
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		reports: make(map[string]*domain.Report),
		chunks:  make(map[string]map[string][]chunk),
	}
}

func (s *MemoryStore) Save(ctx context.Context, report *domain.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[report.ID] = report.Clone()
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	if err := validateFields(fields); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reports[id]
	if !ok {
		return ErrNotFound
	}

	// Work on copies so a mid-apply error leaves the record untouched
	merged := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		merged[k] = v
	}
	overflow, cleared := applyOverflow(merged)

	updated := r.Clone()
	if err := applyToReport(updated, merged); err != nil {
		return err
	}

	for field, pieces := range overflow {
		if s.chunks[id] == nil {
			s.chunks[id] = make(map[string][]chunk)
		}
		s.chunks[id][field] = pieces
	}
	for _, field := range cleared {
		delete(s.chunks[id], field)
	}
	s.reports[id] = updated
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]*domain.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reports := make([]*domain.Report, 0, len(s.reports))
	for _, r := range s.reports {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.UserID != "" && r.UserID != filter.UserID {
			continue
		}
		reports = append(reports, r.Clone())
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].UploadedAt.After(reports[j].UploadedAt)
	})
	return reports, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[id]; !ok {
		return ErrNotFound
	}
	delete(s.reports, id)
	delete(s.chunks, id)
	return nil
}

func (s *MemoryStore) GetFullValue(ctx context.Context, id, field string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reports[id]
	if !ok {
		return "", ErrNotFound
	}
	if field != "extracted_text" {
		return "", fmt.Errorf("field %q has no stored value", field)
	}
	if !r.TextTruncated {
		return r.ExtractedText, nil
	}

	pieces := s.chunks[id][field]
	var full string
	for _, p := range pieces {
		full += p.Text
	}
	return full, nil
}

func (s *MemoryStore) Close() error { return nil }

// applyToReport merges validated update fields into a report. The field set
// is closed (see updatableFields) so the type switch is exhaustive.
func applyToReport(r *domain.Report, fields map[string]interface{}) error {
	for name, value := range fields {
		var ok bool
		switch name {
		case "status":
			var s domain.Status
			if s, ok = value.(domain.Status); !ok {
				var str string
				if str, ok = value.(string); ok {
					s = domain.Status(str)
				}
			}
			if ok {
				r.Status = s
			}
		case "error":
			var v string
			if v, ok = value.(string); ok {
				r.Error = v
			}
		case "progress":
			var v string
			if v, ok = value.(string); ok {
				r.Progress = v
			}
		case "stored_path":
			var v string
			if v, ok = value.(string); ok {
				r.StoredPath = v
			}
		case "file_size_bytes":
			var v int64
			if v, ok = value.(int64); ok {
				r.FileSizeBytes = v
			}
		case "text_stats":
			var v *domain.TextStats
			if v, ok = value.(*domain.TextStats); ok {
				r.TextStats = v
			}
		case "analysis":
			var v *domain.Analysis
			if v, ok = value.(*domain.Analysis); ok {
				r.Analysis = v
			}
		case "extracted_text":
			var v string
			if v, ok = value.(string); ok {
				r.ExtractedText = v
			}
		case "extracted_text_truncated":
			var v bool
			if v, ok = value.(bool); ok {
				r.TextTruncated = v
			}
		case "extracted_text_full_size":
			var v int
			if v, ok = value.(int); ok {
				r.FullTextSize = v
			}
		default:
			return fmt.Errorf("unknown report field %q", name)
		}
		if !ok {
			return fmt.Errorf("field %q has unexpected type %T", name, value)
		}
	}
	return nil
}
