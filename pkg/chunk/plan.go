// Package chunk maps an inclusive byte range onto fixed-size remote chunks.
package chunk

// DefaultSize is the fetch granularity used when none is configured.
const DefaultSize int64 = 1024 * 1024

// Plan describes which remote chunks cover a byte range and how much to trim
// from the first and last of them.
type Plan struct {
	// AlignedOffset is the range start floored to a chunk boundary.
	AlignedOffset int64
	// FirstTrim is the number of bytes dropped from the first chunk.
	FirstTrim int64
	// LastTrim is the number of bytes kept from the last chunk.
	LastTrim  int64
	Count     int
	ChunkSize int64
}

// NewPlan computes the plan for the inclusive range [start, end]. The range
// must already be validated: 0 <= start <= end < size, chunkSize > 0.
func NewPlan(start, end, chunkSize int64) Plan {
	aligned := (start / chunkSize) * chunkSize
	return Plan{
		AlignedOffset: aligned,
		FirstTrim:     start - aligned,
		LastTrim:      (end % chunkSize) + 1,
		// chunks spanned, counted by boundary so a range that straddles a
		// boundary but is shorter than a chunk still gets both chunks
		Count:     int(end/chunkSize-start/chunkSize) + 1,
		ChunkSize: chunkSize,
	}
}

// Length is the number of bytes the plan yields.
func (p Plan) Length() int64 {
	if p.Count == 0 {
		return 0
	}
	return int64(p.Count-1)*p.ChunkSize + p.LastTrim - p.FirstTrim
}

// Offset returns the fetch offset of the 1-based part.
func (p Plan) Offset(part int) int64 {
	return p.AlignedOffset + int64(part-1)*p.ChunkSize
}

// Trim cuts the fetched bytes of the 1-based part down to the requested
// range. Indexes are clamped so a chunk shorter than expected never panics.
func (p Plan) Trim(part int, b []byte) []byte {
	switch {
	case p.Count == 1:
		return b[clamp(p.FirstTrim, b):clamp(p.LastTrim, b)]
	case part == 1:
		return b[clamp(p.FirstTrim, b):]
	case part == p.Count:
		return b[:clamp(p.LastTrim, b)]
	default:
		return b
	}
}

func clamp(i int64, b []byte) int64 {
	if i > int64(len(b)) {
		return int64(len(b))
	}
	return i
}
