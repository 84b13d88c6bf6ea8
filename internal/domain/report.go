package domain

import "time"

// Report is the central record for an uploaded earnings-report document.
// The full extracted text is never stored on the record itself; it lives in a
// text blob next to the stored binary and, when oversized, in ordered chunks
// managed by the record store.
type Report struct {
	ID            string     `json:"id" firestore:"id"`
	FileName      string     `json:"file_name" firestore:"file_name"`
	UserID        string     `json:"user_id" firestore:"user_id"`
	UploadedAt    time.Time  `json:"uploaded_at" firestore:"uploaded_at"`
	StoredPath    string     `json:"stored_path,omitempty" firestore:"stored_path"`
	Status        Status     `json:"status" firestore:"status"`
	Progress      string     `json:"progress,omitempty" firestore:"progress"`
	FileSizeBytes int64      `json:"file_size_bytes,omitempty" firestore:"file_size_bytes"`
	TextStats     *TextStats `json:"text_stats,omitempty" firestore:"text_stats"`
	Analysis      *Analysis  `json:"analysis,omitempty" firestore:"analysis"`
	Error         string     `json:"error,omitempty" firestore:"error"`

	// ExtractedText holds the inline text value. When the text exceeded the
	// record size limit it holds only a bounded summary, Truncated is set and
	// the full value lives in the store's ordered chunk collection.
	ExtractedText string `json:"extracted_text,omitempty" firestore:"extracted_text"`
	TextTruncated bool   `json:"extracted_text_truncated,omitempty" firestore:"extracted_text_truncated"`
	FullTextSize  int    `json:"extracted_text_full_size,omitempty" firestore:"extracted_text_full_size"`
}

// TextStats summarizes an extraction run. Sample holds a bounded prefix and
// suffix of the full text, never the text itself.
type TextStats struct {
	Length    int    `json:"length" firestore:"length"`
	WordCount int    `json:"word_count" firestore:"word_count"`
	PageCount int    `json:"page_count" firestore:"page_count"`
	Sample    string `json:"sample" firestore:"sample"`
}

// Analysis is the structured summarization result for a report.
type Analysis struct {
	Summary   string    `json:"summary" firestore:"summary"`
	KeyPoints []string  `json:"key_points" firestore:"key_points"`
	Sentiment Sentiment `json:"sentiment" firestore:"sentiment"`
	Topics    []Topic   `json:"topics" firestore:"topics"`
	Quotes    []Quote   `json:"quotes,omitempty" firestore:"quotes"`
}

// Sentiment holds the document-level sentiment assessment.
type Sentiment struct {
	Overall    string             `json:"overall" firestore:"overall"`
	Confidence float64            `json:"confidence" firestore:"confidence"`
	Breakdown  SentimentBreakdown `json:"breakdown" firestore:"breakdown"`
}

// SentimentBreakdown is a percentage split across sentiment classes.
type SentimentBreakdown struct {
	Positive int `json:"positive" firestore:"positive"`
	Neutral  int `json:"neutral" firestore:"neutral"`
	Negative int `json:"negative" firestore:"negative"`
}

// Topic is a recurring subject detected in the document.
type Topic struct {
	Name      string `json:"name" firestore:"name"`
	Sentiment string `json:"sentiment" firestore:"sentiment"`
	Mentions  int    `json:"mentions" firestore:"mentions"`
}

// Quote is a notable quotation attributed to a speaker.
type Quote struct {
	Text      string `json:"text" firestore:"text"`
	Speaker   string `json:"speaker" firestore:"speaker"`
	Sentiment string `json:"sentiment" firestore:"sentiment"`
}

// Clone returns a deep copy of the report. The in-memory store hands out
// clones so callers cannot mutate stored state directly.
func (r *Report) Clone() *Report {
	if r == nil {
		return nil
	}
	cp := *r
	if r.TextStats != nil {
		ts := *r.TextStats
		cp.TextStats = &ts
	}
	if r.Analysis != nil {
		a := *r.Analysis
		a.KeyPoints = append([]string(nil), r.Analysis.KeyPoints...)
		a.Topics = append([]Topic(nil), r.Analysis.Topics...)
		a.Quotes = append([]Quote(nil), r.Analysis.Quotes...)
		cp.Analysis = &a
	}
	return &cp
}
