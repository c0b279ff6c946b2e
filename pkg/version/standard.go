package version

import "strings"

// bound distinguishes an ordinary Standard version from the lattice's
// distinguished minimum/maximum, used as range endpoints (spec.md §3.1:
// "lo and hi may be the distinguished minimum or maximum of the version
// lattice").
type bound int8

const (
	boundNone bound = 0
	boundMin  bound = -1
	boundMax  bound = 1
)

// Standard is a single concrete version: a release tuple plus a prerelease
// tag. Constructed via Parse or the Min/Max lattice bounds.
type Standard struct {
	Release []Component
	Pre     Prerelease
	bound   bound
}

// Min is the distinguished minimum of the version lattice; it is less than
// every other Standard version.
func Min() Standard { return Standard{bound: boundMin} }

// Max is the distinguished maximum of the version lattice; it is greater
// than every other Standard version.
func Max() Standard { return Standard{bound: boundMax} }

func (v Standard) IsMin() bool { return v.bound == boundMin }
func (v Standard) IsMax() bool { return v.bound == boundMax }

// Compare returns <0, 0, >0 as v is less than, equal to, or greater than o.
// Ordering is lexicographic on the release tuple, then by prerelease
// (spec.md §4.1): a shorter tuple that is a strict prefix of a longer one
// compares as less, matching Python tuple-comparison semantics followed by
// the original implementation.
func (v Standard) Compare(o Standard) int {
	if v.bound != boundNone || o.bound != boundNone {
		if v.bound == o.bound {
			return 0
		}
		return int(v.bound) - int(o.bound)
	}

	n := len(v.Release)
	if len(o.Release) < n {
		n = len(o.Release)
	}
	for i := 0; i < n; i++ {
		if c := v.Release[i].Compare(o.Release[i]); c != 0 {
			return c
		}
	}
	if len(v.Release) != len(o.Release) {
		if len(v.Release) < len(o.Release) {
			return -1
		}
		return 1
	}
	return v.Pre.Compare(o.Pre)
}

func (v Standard) Equal(o Standard) bool { return v.Compare(o) == 0 }
func (v Standard) Less(o Standard) bool  { return v.Compare(o) < 0 }

// Next returns the version immediately following v in the total order
// defined by Compare: the next-representable prerelease number, or else the
// release tuple's last component advanced (spec.md §4.1 "next" operation).
func (v Standard) Next() Standard {
	if v.bound != boundNone {
		return v
	}
	if v.Pre.Phase != Final {
		return Standard{Release: v.Release, Pre: v.Pre.next()}
	}
	if len(v.Release) == 0 {
		return Standard{Release: []Component{Str("A")}, Pre: FinalRelease}
	}
	rel := append([]Component(nil), v.Release...)
	rel[len(rel)-1] = rel[len(rel)-1].next()
	return Standard{Release: rel, Pre: FinalRelease}
}

// Prev is the inverse of Next, used only to pretty-print closed-open ranges
// back into inclusive "lo:hi" form.
func (v Standard) Prev() Standard {
	if v.bound != boundNone {
		return v
	}
	if v.Pre.Phase != Final {
		return Standard{Release: v.Release, Pre: v.Pre.prev()}
	}
	if len(v.Release) == 0 {
		return v
	}
	rel := append([]Component(nil), v.Release...)
	rel[len(rel)-1] = rel[len(rel)-1].prev()
	return Standard{Release: rel, Pre: FinalRelease}
}

func (v Standard) String() string {
	if v.bound == boundMin {
		return ""
	}
	if v.bound == boundMax {
		return ""
	}
	parts := make([]string, len(v.Release))
	for i, c := range v.Release {
		parts[i] = c.String()
	}
	s := strings.Join(parts, ".")
	if pre := v.Pre.String(); pre != "" {
		if s != "" {
			s += "-"
		}
		s += pre
	}
	return s
}

// ParseStandard parses a single standard version string per spec.md §4.1:
// split on '.', '_', '-'; a trailing alphabetic token matching
// alpha|beta|rc (optionally followed by digits) becomes the prerelease, and
// all remaining segments are release components.
func ParseStandard(s string) (Standard, error) {
	segs, err := splitSegments(s)
	if err != nil {
		return Standard{}, err
	}
	if len(segs) == 0 {
		return Standard{Pre: FinalRelease}, nil
	}

	pre := FinalRelease
	last := segs[len(segs)-1]
	if phase, ok := prereleasePhase(last); ok {
		segs = segs[:len(segs)-1]
		pre = Prerelease{Phase: phase}
	} else if len(segs) >= 2 {
		if phase, ok := prereleasePhase(segs[len(segs)-2]); ok {
			if n, numOK := parseUint(last); numOK {
				segs = segs[:len(segs)-2]
				pre = Prerelease{Phase: phase, Num: n, HasNum: true}
			}
		}
	}

	rel := make([]Component, len(segs))
	for i, seg := range segs {
		if n, ok := parseUint(seg); ok {
			rel[i] = Num(int64(n))
		} else {
			rel[i] = Str(seg)
		}
	}
	return Standard{Release: rel, Pre: pre}, nil
}

func prereleasePhase(tok string) (Phase, bool) {
	lower := strings.ToLower(tok)
	switch {
	case lower == "alpha" || strings.HasPrefix(lower, "alpha") && isDigits(lower[5:]):
		return Alpha, true
	case lower == "a":
		return Alpha, true
	case lower == "beta" || strings.HasPrefix(lower, "beta") && isDigits(lower[4:]):
		return Beta, true
	case lower == "b":
		return Beta, true
	case lower == "rc":
		return RC, true
	case strings.HasPrefix(lower, "rc") && isDigits(lower[2:]):
		return RC, true
	default:
		return Final, false
	}
}

func isDigits(s string) bool {
	if s == "" {
		return true
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func parseUint(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

// splitSegments splits a version string on '.', '_', '-' while keeping
// digit/letter boundaries within a segment separate, e.g. "3rc1" ->
// ["3","rc","1"], matching spec.md's "trailing alphabetic tokens matching
// alpha|beta|rc (optionally followed by digits)" rule.
func splitSegments(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var segs []string
	var cur strings.Builder
	var curIsDigit *bool

	flush := func() {
		if cur.Len() > 0 {
			segs = append(segs, cur.String())
			cur.Reset()
			curIsDigit = nil
		}
	}

	for _, r := range s {
		switch r {
		case '.', '_', '-':
			flush()
			continue
		}
		isDigit := r >= '0' && r <= '9'
		if curIsDigit != nil && *curIsDigit != isDigit {
			flush()
		}
		cur.WriteRune(r)
		b := isDigit
		curIsDigit = &b
	}
	flush()
	return segs, nil
}
