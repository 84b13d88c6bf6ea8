package pdf

// BatchSize returns how many pages to extract per batch for a document with
// the given page count: a fifth of the document, clamped to [min, max].
func BatchSize(totalPages, min, max int) int {
	if min < 1 {
		min = 1
	}
	if max < min {
		max = min
	}
	size := totalPages / 5
	if size < min {
		return min
	}
	if size > max {
		return max
	}
	return size
}
