package version

import "sort"

// elemKind distinguishes the two element shapes a List may hold: a single
// concrete version, or a range. Per spec.md §3.1 a List never directly
// contains a git-ref version.
type elemKind uint8

const (
	elemStd elemKind = iota
	elemRange
)

// Element is one member of a List.
type Element struct {
	kind elemKind
	std  Standard
	rng  Range
}

func ElemStandard(s Standard) Element { return Element{kind: elemStd, std: s} }
func ElemRange(r Range) Element       { return Element{kind: elemRange, rng: r} }

func (e Element) IsStandard() bool { return e.kind == elemStd }
func (e Element) Standard() Standard { return e.std }
func (e Element) Range() Range {
	if e.kind == elemStd {
		return Range{Lo: e.std, Hi: e.std.Next()}
	}
	return e.rng
}

func (e Element) lower() Standard { return e.Range().Lo }

func (e Element) Contains(v Standard) bool { return e.Range().Contains(v) }

func (e Element) Overlaps(o Element) bool { return e.Range().Overlaps(o.Range()) }

func (e Element) adjacent(o Element) bool { return e.Range().adjacent(o.Range()) }

// union assumes e and o overlap or are adjacent; it collapses a run back to
// a single Standard when the merged range is exactly one version wide.
func (e Element) union(o Element) Element {
	r := e.Range().union(o.Range())
	if r.Lo.Next().Equal(r.Hi) {
		return ElemStandard(r.Lo)
	}
	return ElemRange(r)
}

func (e Element) Equal(o Element) bool {
	if e.kind == elemStd && o.kind == elemStd {
		return e.std.Equal(o.std)
	}
	return e.Range().Equal(o.Range())
}

func (e Element) String() string {
	if e.kind == elemStd {
		return e.std.String()
	}
	return e.rng.String()
}

// List is a sorted, disjoint sequence of standard versions and ranges
// (spec.md §3.1). The zero value is the empty list, which is the "any
// version" wildcard element-wise only once constrained; an empty List with
// zero elements matches spec.md's "all" quantifier over zero elements,
// i.e. it is the unconstrained superset.
type List struct {
	Elements []Element
}

// NewList builds a canonical (sorted, coalesced) List from the given
// elements, inserting one at a time.
func NewList(elems ...Element) List {
	var l List
	for _, e := range elems {
		l.Insert(e)
	}
	return l
}

// Insert adds e to the list, coalescing with any overlapping or adjacent
// neighbors so the list remains canonical (spec.md §3.1).
func (l *List) Insert(e Element) {
	i := sort.Search(len(l.Elements), func(i int) bool {
		return l.Elements[i].lower().Compare(e.lower()) >= 0
	})

	for i > 0 {
		prev := l.Elements[i-1]
		if !e.Overlaps(prev) && !e.adjacent(prev) {
			break
		}
		e = e.union(prev)
		l.Elements = append(l.Elements[:i-1], l.Elements[i:]...)
		i--
	}

	for i < len(l.Elements) {
		next := l.Elements[i]
		if !e.Overlaps(next) && !e.adjacent(next) {
			break
		}
		e = e.union(next)
		l.Elements = append(l.Elements[:i], l.Elements[i+1:]...)
	}

	l.Elements = append(l.Elements, Element{})
	copy(l.Elements[i+1:], l.Elements[i:])
	l.Elements[i] = e
}

// Concrete reports the single standard version this list denotes, if it
// contains exactly one concrete (non-range) element.
func (l List) Concrete() (Standard, bool) {
	if len(l.Elements) != 1 || !l.Elements[0].IsStandard() {
		return Standard{}, false
	}
	return l.Elements[0].Standard(), true
}

func (l List) Empty() bool { return len(l.Elements) == 0 }

// Satisfies reports whether every version in l also lies in other: each
// element of l must be contained within some element of other.
func (l List) Satisfies(other List) bool {
	if other.Empty() {
		return true
	}
	if l.Empty() {
		return false
	}
	for _, e := range l.Elements {
		ok := false
		for _, o := range other.Elements {
			if elementSatisfies(e, o) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

func elementSatisfies(a, b Element) bool {
	ar, br := a.Range(), b.Range()
	return !ar.Lo.Less(br.Lo) && !br.Hi.Less(ar.Hi)
}

// Intersects reports whether l and other share any version.
func (l List) Intersects(other List) bool {
	if l.Empty() || other.Empty() {
		return true
	}
	i, j := 0, 0
	for i < len(l.Elements) && j < len(other.Elements) {
		a, b := l.Elements[i], other.Elements[j]
		if a.Overlaps(b) {
			return true
		}
		if a.lower().Less(b.lower()) {
			i++
		} else {
			j++
		}
	}
	return false
}

// Intersection returns the set of versions present in both l and other.
func (l List) Intersection(other List) List {
	if l.Empty() {
		return other
	}
	if other.Empty() {
		return l
	}
	var result List
	for _, a := range l.Elements {
		for _, b := range other.Elements {
			ar, br := a.Range(), b.Range()
			if ix, ok := ar.Intersect(br); ok {
				if ix.Lo.Next().Equal(ix.Hi) {
					result.Insert(ElemStandard(ix.Lo))
				} else {
					result.Insert(ElemRange(ix))
				}
			}
		}
	}
	return result
}

// Union returns the set of versions present in l or other.
func (l List) Union(other List) List {
	result := NewList(l.Elements...)
	for _, e := range other.Elements {
		result.Insert(e)
	}
	return result
}

// Equal reports whether l and other denote exactly the same set of
// versions; both lists are assumed canonical.
func (l List) Equal(other List) bool {
	if len(l.Elements) != len(other.Elements) {
		return false
	}
	for i := range l.Elements {
		if !l.Elements[i].Equal(other.Elements[i]) {
			return false
		}
	}
	return true
}

func (l List) String() string {
	if len(l.Elements) == 0 {
		return ""
	}
	s := l.Elements[0].String()
	for _, e := range l.Elements[1:] {
		s += "," + e.String()
	}
	return s
}
