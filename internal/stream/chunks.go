package stream

import "time"

// Chunk is one half-open [Start, End) slice of the requested range.
type Chunk struct {
	Start time.Time
	End   time.Time
}

// SplitChunks partitions [start, end) into consecutive spans of at most span.
// The final chunk may be shorter. Degenerate inputs yield no chunks.
func SplitChunks(start, end time.Time, span time.Duration) []Chunk {
	if span <= 0 || !start.Before(end) {
		return nil
	}

	var chunks []Chunk
	for cur := start; cur.Before(end); cur = cur.Add(span) {
		ce := cur.Add(span)
		if ce.After(end) {
			ce = end
		}
		chunks = append(chunks, Chunk{Start: cur, End: ce})
	}
	return chunks
}
