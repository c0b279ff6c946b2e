package arch

import (
	"strings"

	"github.com/pkg/errors"
)

// targetElem is one member of a Target: either a single microarchitecture
// or a range a:b over the family order, per spec.md §3.3 "Targets may be
// single microarchitectures, ranges a:b, or comma-separated unions".
type targetElem struct {
	single   string
	isRange  bool
	lo, hi   string // empty means open-ended
}

// Target is a comma-separated union of microarchitectures and ranges.
type Target struct {
	elems []targetElem
}

// ParseTarget parses the "a:b,c,d:e" surface syntax.
func ParseTarget(s string) (Target, error) {
	if s == "" {
		return Target{}, nil
	}
	var t Target
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return Target{}, errors.Wrapf(ErrBadTarget, "empty element in %q", s)
		}
		if idx := strings.IndexByte(part, ':'); idx >= 0 {
			t.elems = append(t.elems, targetElem{isRange: true, lo: part[:idx], hi: part[idx+1:]})
			continue
		}
		t.elems = append(t.elems, targetElem{single: part})
	}
	return t, nil
}

// IsConcrete reports whether t denotes exactly one microarchitecture.
func (t Target) IsConcrete() bool {
	return len(t.elems) == 1 && !t.elems[0].isRange
}

// Single returns the sole microarchitecture name, if IsConcrete.
func (t Target) Single() string {
	if !t.IsConcrete() {
		return ""
	}
	return t.elems[0].single
}

// elemContains reports whether name lies within a single targetElem under
// the family order.
func elemContains(e targetElem, name string) bool {
	if !e.isRange {
		return e.single == name
	}
	if e.lo != "" && !LessEqual(e.lo, name) {
		return false
	}
	if e.hi != "" && !LessEqual(name, e.hi) {
		return false
	}
	return true
}

// Contains reports whether name satisfies any element of t.
func (t Target) Contains(name string) bool {
	if len(t.elems) == 0 {
		return true // unconstrained
	}
	for _, e := range t.elems {
		if elemContains(e, name) {
			return true
		}
	}
	return false
}

// Intersect computes the componentwise intersection of t and o over the
// family order (spec.md §4.3). Two ranges intersect only when their
// endpoints share a root family; the result keeps the tighter of the two
// bounds on each side.
func (t Target) Intersect(o Target) (Target, bool) {
	if len(t.elems) == 0 {
		return o, true
	}
	if len(o.elems) == 0 {
		return t, true
	}
	var result Target
	for _, a := range t.elems {
		for _, b := range o.elems {
			if e, ok := intersectElems(a, b); ok {
				result.elems = append(result.elems, e)
			}
		}
	}
	if len(result.elems) == 0 {
		return Target{}, false
	}
	return result, true
}

func bounds(e targetElem) (lo, hi string) {
	if !e.isRange {
		return e.single, e.single
	}
	return e.lo, e.hi
}

// greaterBound returns whichever of two (possibly empty, meaning
// unbounded-low) lower bounds is the tighter (greater) one.
func greaterBound(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	case LessEqual(a, b):
		return b
	default:
		return a
	}
}

// lesserBound returns whichever of two (possibly empty, meaning
// unbounded-high) upper bounds is the tighter (lesser) one.
func lesserBound(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	case LessEqual(a, b):
		return a
	default:
		return b
	}
}

func intersectElems(a, b targetElem) (targetElem, bool) {
	aLo, aHi := bounds(a)
	bLo, bHi := bounds(b)

	for _, pair := range [][2]string{{aLo, bLo}, {aLo, bHi}, {aHi, bLo}, {aHi, bHi}} {
		if pair[0] != "" && pair[1] != "" && !SameFamily(pair[0], pair[1]) {
			return targetElem{}, false
		}
	}

	lo := greaterBound(aLo, bLo)
	hi := lesserBound(aHi, bHi)
	if lo != "" && hi != "" && !LessEqual(lo, hi) {
		return targetElem{}, false
	}
	if lo != "" && lo == hi {
		return targetElem{single: lo}, true
	}
	return targetElem{isRange: true, lo: lo, hi: hi}, true
}

func (e targetElem) String() string {
	if !e.isRange {
		return e.single
	}
	return e.lo + ":" + e.hi
}

func (t Target) String() string {
	parts := make([]string, len(t.elems))
	for i, e := range t.elems {
		parts[i] = e.String()
	}
	return strings.Join(parts, ",")
}
