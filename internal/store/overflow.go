package store

// Overflow policy for record fields that exceed the per-record size limit of
// the backing document database (~1MB per document). The inline value is
// replaced with a bounded prefix/suffix summary and the full value is split
// into fixed-size ordered pieces kept in an auxiliary collection.
const (
	// OverflowThreshold is the size above which a string field is not stored inline.
	OverflowThreshold = 900_000

	// chunkSize is the size of each overflow piece.
	chunkSize = 500_000

	// summaryBound is how much of each end of the value survives inline.
	summaryBound = 1000
)

const truncationMarker = "... [TEXT TRUNCATED DUE TO SIZE] ..."

// chunk is one ordered piece of an oversized field value.
type chunk struct {
	Text  string `firestore:"text"`
	Index int    `firestore:"chunk_index"`
	Start int    `firestore:"start_position"`
	End   int    `firestore:"end_position"`
}

// summarize returns the bounded inline form of an oversized value.
func summarize(value string) string {
	return value[:summaryBound] + truncationMarker + value[len(value)-summaryBound:]
}

// splitChunks cuts value into fixed-size ordered pieces.
func splitChunks(value string) []chunk {
	n := (len(value) + chunkSize - 1) / chunkSize
	chunks := make([]chunk, 0, n)
	for i := 0; i < n; i++ {
		start := i * chunkSize
		end := start + chunkSize
		if end > len(value) {
			end = len(value)
		}
		chunks = append(chunks, chunk{
			Text:  value[start:end],
			Index: i,
			Start: start,
			End:   end,
		})
	}
	return chunks
}

// overflowFields are the fields whose values may exceed the per-record limit
// and carry the truncation bookkeeping.
var overflowFields = map[string]bool{
	"extracted_text": true,
}

// applyOverflow rewrites any oversized string values in fields to their inline
// summary form, adding the truncation marker and original size, and returns
// the overflow chunks per field name. A value under the threshold resets the
// markers and is reported in cleared, so a rewrite replaces an earlier
// oversized value wholesale instead of leaving stale chunks behind. fields is
// modified in place.
func applyOverflow(fields map[string]interface{}) (overflow map[string][]chunk, cleared []string) {
	for name, value := range fields {
		s, ok := value.(string)
		if !ok || !overflowFields[name] {
			continue
		}
		if len(s) <= OverflowThreshold {
			fields[name+"_truncated"] = false
			fields[name+"_full_size"] = 0
			cleared = append(cleared, name)
			continue
		}
		if overflow == nil {
			overflow = make(map[string][]chunk)
		}
		overflow[name] = splitChunks(s)
		fields[name] = summarize(s)
		fields[name+"_truncated"] = true
		fields[name+"_full_size"] = len(s)
	}
	return overflow, cleared
}
