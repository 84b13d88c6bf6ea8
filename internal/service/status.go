package service

import (
	"context"
	"fmt"

	"github.com/marlow/finreporter/internal/domain"
	"github.com/marlow/finreporter/internal/store"
)

// StatusTracker is the single path for moving a report through the pipeline
// states. Every transition is validated against the current state and
// persisted immediately; nothing else writes the status field.
type StatusTracker struct {
	store store.Store
}

// NewStatusTracker creates a tracker over the given record store.
func NewStatusTracker(s store.Store) *StatusTracker {
	return &StatusTracker{store: s}
}

// Set transitions the report to next. errMsg is recorded when next is
// failed; on any other transition a previously recorded error is cleared so
// retries leave no stale failure behind. Writing the current state again
// with the same error is a no-op, which keeps failure updates idempotent.
func (t *StatusTracker) Set(ctx context.Context, id string, next domain.Status, errMsg string) error {
	r, err := t.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if r.Status == next && r.Error == errMsg {
		return nil
	}
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, r.Status, next)
	}

	fields := map[string]interface{}{"status": next}
	if next == domain.StatusFailed {
		fields["error"] = errMsg
	} else if r.Error != "" {
		fields["error"] = ""
	}
	return t.store.Update(ctx, id, fields)
}

// Progress persists a transient human-readable progress string. It is
// overwritten freely and carries no meaning once the report is terminal.
func (t *StatusTracker) Progress(ctx context.Context, id, progress string) error {
	return t.store.Update(ctx, id, map[string]interface{}{"progress": progress})
}
