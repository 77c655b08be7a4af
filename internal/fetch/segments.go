package fetch

import (
	"github.com/pulith-dev/pulith/internal/perr"
)

// Segment is a half-open byte range [Start, End) of a single artifact,
// downloaded as an independent subrequest by SegmentedFetcher.
type Segment struct {
	Index int
	Start int64
	End   int64
}

// Size returns the number of bytes the segment covers.
func (s Segment) Size() int64 {
	return s.End - s.Start
}

// CalculateSegments partitions [0, total) into n half-open, pairwise
// disjoint ranges whose union is exactly [0, total). Segment k starts at
// ceil(k*total/n), rounded so starts never overlap or leave gaps; the last
// segment's end is pinned to total exactly (so integer rounding never
// strands a tail byte). Returns an error instead of panicking for n < 1 or
// total < 1.
func CalculateSegments(total int64, n int) ([]Segment, error) {
	if total < 1 {
		return nil, perr.NewInvalidState("segments", "total size must be >= 1")
	}
	if n < 1 {
		return nil, perr.NewInvalidState("segments", "segment count must be >= 1")
	}

	segments := make([]Segment, n)
	var prevEnd int64

	for k := 0; k < n; k++ {
		start := prevEnd
		if k > 0 {
			start = ceilDiv(int64(k)*total, int64(n))
		}

		var end int64
		if k == n-1 {
			end = total
		} else {
			end = ceilDiv(int64(k+1)*total, int64(n))
		}

		segments[k] = Segment{Index: k, Start: start, End: end}
		prevEnd = end
	}

	return segments, nil
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}
