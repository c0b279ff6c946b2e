package version

import (
	"strings"

	"github.com/pkg/errors"
)

// Kind is the discriminant of the Version sum type (spec.md §3.1, §9
// "Dynamic dispatch on Version ... model as a sum type with the four
// variants"). Every algebra operation below switches on the pair of kinds
// involved so omissions are easy to spot by inspection.
type Kind uint8

const (
	KindStandard Kind = iota
	KindGitRef
	KindRange
	KindList
)

// Version is one of: a standard version, a git-ref version, a range, or a
// list (spec.md §3.1).
type Version struct {
	kind Kind
	std  Standard
	git  *GitRef
	rng  Range
	list List
}

func FromStandard(s Standard) Version { return Version{kind: KindStandard, std: s} }
func FromGitRef(g *GitRef) Version     { return Version{kind: KindGitRef, git: g} }
func FromRange(r Range) Version        { return Version{kind: KindRange, rng: r} }
func FromList(l List) Version          { return Version{kind: KindList, list: l} }

func (v Version) Kind() Kind { return v.kind }

// IsConcrete reports whether v denotes exactly one version.
func (v Version) IsConcrete() bool {
	switch v.kind {
	case KindStandard, KindGitRef:
		return true
	case KindList:
		_, ok := v.list.Concrete()
		return ok
	default:
		return false
	}
}

// Equal reports whether a and b denote the same version set by structural
// comparison (not merely identical string form).
func Equal(a, b Version) (bool, error) {
	if a.kind == KindGitRef || b.kind == KindGitRef {
		if a.kind != b.kind {
			return false, nil
		}
		return a.git.Equal(b.git)
	}
	al, _ := a.asList()
	bl, _ := b.asList()
	return al.Equal(bl), nil
}

func (v Version) GitRef() (*GitRef, bool) {
	if v.kind == KindGitRef {
		return v.git, true
	}
	return nil, false
}

// asList normalizes a non-git-ref Version into its equivalent List form so
// the bulk of the algebra can be expressed once against List.
func (v Version) asList() (List, bool) {
	switch v.kind {
	case KindStandard:
		return NewList(ElemStandard(v.std)), true
	case KindRange:
		return NewList(ElemRange(v.rng)), true
	case KindList:
		return v.list, true
	default:
		return List{}, false
	}
}

func (v Version) String() string {
	switch v.kind {
	case KindStandard:
		return v.std.String()
	case KindGitRef:
		return v.git.String()
	case KindRange:
		return v.rng.String()
	case KindList:
		return v.list.String()
	default:
		return ""
	}
}

// Satisfies reports whether every version denoted by a also lies within b,
// per spec.md §4.1. Git-ref versions never equal a standard version but may
// satisfy one or a range/list: the comparison is performed on the resolved
// ref_version.
func Satisfies(a, b Version) (bool, error) {
	if a.kind == KindGitRef && b.kind == KindGitRef {
		return a.git.Equal(b.git)
	}
	if a.kind == KindGitRef {
		av, err := a.git.RefVersion()
		if err != nil {
			return false, err
		}
		bl, ok := b.asList()
		if !ok {
			return false, nil
		}
		return NewList(ElemStandard(av)).Satisfies(bl), nil
	}
	if b.kind == KindGitRef {
		// A standard/range/list can only satisfy a concrete git-ref by being
		// that exact git-ref; both sides already failed the git/git case above.
		return false, nil
	}
	al, _ := a.asList()
	bl, _ := b.asList()
	return al.Satisfies(bl), nil
}

// Intersects reports whether a and b share any version (spec.md §4.1,
// symmetric with Satisfies per the testable property in spec.md §8.2).
func Intersects(a, b Version) (bool, error) {
	if a.kind == KindGitRef && b.kind == KindGitRef {
		return a.git.Equal(b.git)
	}
	if a.kind == KindGitRef || b.kind == KindGitRef {
		git, other := a, b
		if b.kind == KindGitRef {
			git, other = b, a
		}
		gv, err := git.git.RefVersion()
		if err != nil {
			return false, err
		}
		ol, ok := other.asList()
		if !ok {
			return false, nil
		}
		return ol.Intersects(NewList(ElemStandard(gv))), nil
	}
	al, _ := a.asList()
	bl, _ := b.asList()
	return al.Intersects(bl), nil
}

// Intersection returns the set of versions common to a and b. Fails with
// ErrNoIntersection if the two denote disjoint sets (spec.md §4.1
// "Constrain of a version list intersects the lists; constrain fails when
// the intersection is empty").
func Intersection(a, b Version) (Version, error) {
	ok, err := Intersects(a, b)
	if err != nil {
		return Version{}, err
	}
	if !ok {
		return Version{}, errors.Wrapf(ErrNoIntersection, "%s and %s", a, b)
	}
	if a.kind == KindGitRef {
		return a, nil
	}
	if b.kind == KindGitRef {
		return b, nil
	}
	al, _ := a.asList()
	bl, _ := b.asList()
	return FromList(al.Intersection(bl)), nil
}

// Constrain intersects *a with b in place and reports whether a changed.
func Constrain(a *Version, b Version) (bool, error) {
	before := a.String()
	next, err := Intersection(*a, b)
	if err != nil {
		return false, err
	}
	*a = next
	return before != a.String(), nil
}

// ParseVersion parses a single top-level version token as it appears after
// an "@=" sigil (exact) or as a bare git ref: "git.<ref>[=<version>]" or a
// 40-character commit SHA.
func ParseVersion(s string) (Version, error) {
	if looksLikeGitRef(s) {
		g, err := ParseGitRef(s)
		if err != nil {
			return Version{}, err
		}
		return FromGitRef(&g), nil
	}
	std, err := ParseStandard(s)
	if err != nil {
		return Version{}, err
	}
	return FromStandard(std), nil
}

func looksLikeGitRef(s string) bool {
	if strings.HasPrefix(s, "git.") {
		return true
	}
	if len(s) == 40 {
		for _, r := range s {
			if !isHex(r) {
				return false
			}
		}
		return true
	}
	return false
}

func isHex(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F')
}

// ParseList parses the "vlist" grammar of spec.md §6.1:
//
//	vlist  := vrange (',' vrange)*
//	vrange := version | version ':' | ':' version | version ':' version | '=' version
//
// A bare "version" token (no colon, no leading '=') denotes the half-open
// range [X, next(X)), matching the "@X" rule in spec.md §4.1.
func ParseList(s string) (Version, error) {
	if s == "" {
		return FromList(List{}), nil
	}
	if looksLikeGitRef(s) {
		return ParseVersion(s)
	}

	parts := splitTopLevelComma(s)
	var list List
	for _, p := range parts {
		e, err := parseVRange(p)
		if err != nil {
			return Version{}, err
		}
		list.Insert(e)
	}
	if len(list.Elements) == 1 {
		if v, ok := list.Concrete(); ok {
			return FromStandard(v), nil
		}
	}
	return FromList(list), nil
}

func splitTopLevelComma(s string) []string {
	// Flag values may be quoted and contain commas; version lists never
	// contain quotes, so a plain split is safe here.
	return strings.Split(s, ",")
}

func parseVRange(tok string) (Element, error) {
	tok = strings.TrimSpace(tok)
	if strings.HasPrefix(tok, "=") {
		v, err := ParseStandard(tok[1:])
		if err != nil {
			return Element{}, errors.Wrapf(err, "parsing exact version %q", tok)
		}
		return ElemStandard(v), nil
	}

	if idx := strings.IndexByte(tok, ':'); idx >= 0 {
		loStr, hiStr := tok[:idx], tok[idx+1:]
		lo := Min()
		if loStr != "" {
			v, err := ParseStandard(loStr)
			if err != nil {
				return Element{}, errors.Wrapf(err, "parsing range lower bound %q", tok)
			}
			lo = v
		}
		hi := Max()
		if hiStr != "" {
			v, err := ParseStandard(hiStr)
			if err != nil {
				return Element{}, errors.Wrapf(err, "parsing range upper bound %q", tok)
			}
			hi = v.Next()
		}
		r, err := NewRange(lo, hi)
		if err != nil {
			return Element{}, errors.Wrapf(err, "range %q", tok)
		}
		return ElemRange(r), nil
	}

	v, err := ParseStandard(tok)
	if err != nil {
		return Element{}, errors.Wrapf(err, "parsing version %q", tok)
	}
	r, err := NewRange(v, v.Next())
	if err != nil {
		return Element{}, err
	}
	return ElemRange(r), nil
}
