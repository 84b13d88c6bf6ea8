package domain

import "errors"

// Status represents the stage a report has reached in the processing pipeline.
type Status string

const (
	StatusUploading  Status = "uploading"
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusExtracted  Status = "extracted"
	StatusAnalyzing  Status = "analyzing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ErrInvalidTransition is returned when a status change is not permitted
// from the report's current state.
var ErrInvalidTransition = errors.New("invalid status transition")

// StatusValues lists the defined states, for validation messages.
func StatusValues() string {
	return "uploading, uploaded, processing, extracted, analyzing, completed, failed"
}

// Valid reports whether s is one of the defined pipeline states.
func (s Status) Valid() bool {
	switch s {
	case StatusUploading, StatusUploaded, StatusProcessing,
		StatusExtracted, StatusAnalyzing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransitionTo reports whether moving from s to next is permitted.
// failed is reachable from every non-terminal state, and re-entering
// processing or analyzing from failed is allowed for retries. Writing the
// same terminal state again is permitted so failure updates stay idempotent.
func (s Status) CanTransitionTo(next Status) bool {
	if !next.Valid() {
		return false
	}
	if s.Terminal() {
		return next == s || (s == StatusFailed && (next == StatusProcessing || next == StatusAnalyzing))
	}
	if next == StatusFailed {
		return true
	}
	switch s {
	case StatusUploading:
		return next == StatusUploaded
	case StatusUploaded:
		return next == StatusProcessing || next == StatusAnalyzing || next == StatusExtracted
	case StatusProcessing:
		return next == StatusExtracted || next == StatusAnalyzing
	case StatusExtracted:
		return next == StatusAnalyzing || next == StatusProcessing || next == StatusCompleted
	case StatusAnalyzing:
		return next == StatusCompleted
	}
	return false
}

// Analyzable reports whether an analysis request may be accepted in state s.
func (s Status) Analyzable() bool {
	return s == StatusUploaded || s == StatusExtracted
}
