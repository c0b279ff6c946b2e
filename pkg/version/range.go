package version

import "github.com/pkg/errors"

// Range is the half-open interval [Lo, Hi) over standard versions described
// in spec.md §3.1. Lo/Hi may be the lattice Min()/Max().
type Range struct {
	Lo, Hi Standard
}

// NewRange builds the half-open range [lo, hi). Construction of an empty
// range fails, per spec.md §3.1 "range(lo, lo) is empty and construction of
// an empty range fails".
func NewRange(lo, hi Standard) (Range, error) {
	if !lo.Less(hi) {
		return Range{}, errors.Wrapf(ErrEmptyRange, "%s:%s", lo, hi)
	}
	return Range{Lo: lo, Hi: hi}, nil
}

// NewInclusiveRange builds [lo, next(hi)) from the "@lo:hi" surface syntax.
func NewInclusiveRange(lo, hi Standard) (Range, error) {
	return NewRange(lo, hi.Next())
}

func (r Range) Contains(v Standard) bool {
	return !v.Less(r.Lo) && v.Less(r.Hi)
}

// Compare orders ranges by lower bound, then by upper bound; used to keep a
// List sorted.
func (r Range) Compare(o Range) int {
	if c := r.Lo.Compare(o.Lo); c != 0 {
		return c
	}
	return r.Hi.Compare(o.Hi)
}

func (r Range) Equal(o Range) bool { return r.Lo.Equal(o.Lo) && r.Hi.Equal(o.Hi) }

// Overlaps reports whether r and o share any version, treating adjacency
// (r.Hi == o.Lo) as non-overlapping but coalescible (see List.Insert).
func (r Range) Overlaps(o Range) bool {
	return r.Lo.Less(o.Hi) && o.Lo.Less(r.Hi)
}

// adjacent reports whether r and o meet with no gap, i.e. can be merged into
// a single contiguous range even though they don't overlap.
func (r Range) adjacent(o Range) bool {
	return r.Hi.Equal(o.Lo) || o.Hi.Equal(r.Lo)
}

func minStandard(a, b Standard) Standard {
	if b.Less(a) {
		return b
	}
	return a
}

func maxStandard(a, b Standard) Standard {
	if a.Less(b) {
		return b
	}
	return a
}

func (r Range) union(o Range) Range {
	return Range{Lo: minStandard(r.Lo, o.Lo), Hi: maxStandard(r.Hi, o.Hi)}
}

// Intersect returns the overlapping portion of r and o, and whether any
// overlap exists.
func (r Range) Intersect(o Range) (Range, bool) {
	if !r.Overlaps(o) {
		return Range{}, false
	}
	return Range{Lo: maxStandard(r.Lo, o.Lo), Hi: minStandard(r.Hi, o.Hi)}, true
}

func (r Range) String() string {
	hiPrev := r.Hi.Prev()
	if !r.Lo.IsMin() && r.Lo.Equal(hiPrev) {
		return r.Lo.String()
	}
	lhs := ""
	if !r.Lo.IsMin() {
		lhs = r.Lo.String()
	}
	rhs := ""
	if !hiPrev.IsMax() {
		rhs = hiPrev.String()
	}
	return lhs + ":" + rhs
}
