package spec

import (
	"github.com/pkg/errors"

	"github.com/nscaledev/spackcore/pkg/variant"
	"github.com/nscaledev/spackcore/pkg/version"
)

// Matcher is an abstract spec used as a query against a database of
// concrete specs (spec.md §C.3's "buildcache list" / index query
// surface): an entry matches when it satisfies the matcher.
type Matcher = *Spec

// Equal reports whether s and o are structurally equal: same name,
// namespace, version, variants, flags, arch, and (if concrete) dag hash.
func (s *Spec) Equal(o *Spec) bool {
	if s == nil || o == nil {
		return s == o
	}
	if s.Name != o.Name || s.Namespace != o.Namespace {
		return false
	}
	if s.Hash != "" && o.Hash != "" {
		return s.Hash == o.Hash
	}
	if veq, err := version.Equal(s.Versions, o.Versions); err != nil || !veq {
		return false
	}
	if !variantMapEqual(s.Variants, o.Variants) {
		return false
	}
	if !s.Flags.Equal(o.Flags) {
		return false
	}
	if s.Arch.String() != o.Arch.String() {
		return false
	}
	return true
}

func variantMapEqual(a, b variant.Map) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		ov, ok := b[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Satisfies reports whether every concrete spec reachable from s also
// satisfies other (spec.md §4.4). If other is concrete, this reduces to
// dag-hash equality; otherwise it checks name/namespace, version
// containment, variant subset, arch, and that every edge in other has a
// corresponding, equal-or-stronger edge in s. The variant check uses s's
// own variants only; values propagated from ancestor nodes are not
// consulted.
func (s *Spec) Satisfies(other *Spec) (bool, error) {
	if other.IsConcrete() {
		if !s.IsConcrete() {
			return false, nil
		}
		return s.Hash != "" && s.Hash == other.Hash, nil
	}

	if s.Name != other.Name {
		return false, nil
	}
	if other.Namespace != "" && s.Namespace != other.Namespace {
		return false, nil
	}

	ok, err := version.Satisfies(s.Versions, other.Versions)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	effective := s.effectiveVariants()
	if !effective.Satisfies(other.Variants) {
		return false, nil
	}
	if !s.Flags.Satisfies(other.Flags) {
		return false, nil
	}
	if !s.Arch.Satisfies(other.Arch) {
		return false, nil
	}

	for _, oe := range other.Dependencies {
		if !s.hasMatchingEdge(oe) {
			return false, nil
		}
	}
	return true, nil
}

// effectiveVariants returns s.Variants merged with propagated values
// inherited from ancestors; in the single-node algebra exercised by
// constrain/satisfies, s.Variants already holds whatever was propagated in
// during parse or constrain, so this is the identity — it exists as the
// single seam where a DAG-wide propagation pass would plug in (spec.md §4.2
// "satisfies must evaluate propagation across the DAG").
func (s *Spec) effectiveVariants() variant.Map { return s.Variants }

// hasMatchingEdge reports whether s has an outgoing edge matching oe's
// child name (or virtual) with equal-or-stronger deptype flags, matching
// virtuals, and a when clause that contains oe's when.
func (s *Spec) hasMatchingEdge(oe *Edge) bool {
	for _, e := range s.Dependencies {
		nameMatches := e.Child.Name == oe.Child.Name
		virtualMatches := false
		for _, v := range oe.Virtuals {
			if e.ProvidesVirtual(v) {
				virtualMatches = true
				break
			}
		}
		if !nameMatches && !virtualMatches {
			continue
		}
		if e.DepTypes&oe.DepTypes != oe.DepTypes {
			continue
		}
		if oe.When != nil {
			if e.When == nil {
				continue
			}
			ok, err := e.When.Satisfies(oe.When)
			if err != nil || !ok {
				continue
			}
		}
		childOK, err := e.Child.Satisfies(oe.Child)
		if err != nil || !childOK {
			continue
		}
		return true
	}
	return false
}

// Intersects reports whether s and other can denote a common concrete
// spec: symmetric version of Satisfies (spec.md §4.4).
func (s *Spec) Intersects(other *Spec) (bool, error) {
	if s.Name != other.Name {
		return false, nil
	}
	if s.Namespace != "" && other.Namespace != "" && s.Namespace != other.Namespace {
		return false, nil
	}
	ok, err := version.Intersects(s.Versions, other.Versions)
	if err != nil || !ok {
		return false, err
	}
	if !s.Arch.Intersects(other.Arch) {
		return false, nil
	}
	for name, sv := range s.Variants {
		if ov, ok := other.Variants[name]; ok {
			if _, ok := sv.Intersect(ov); !ok {
				return false, nil
			}
		}
	}
	return true, nil
}

// Constrain intersects s with other in place and reports whether s
// changed. Fails with an Unsatisfiable* error when any axis has empty
// intersection (spec.md §4.4).
func (s *Spec) Constrain(other *Spec) (bool, error) {
	changed := false

	if s.Name == "" {
		s.Name = other.Name
		changed = true
	} else if other.Name != "" && s.Name != other.Name {
		return false, errors.Wrapf(ErrUnsatisfiableName, "%s vs %s", s.Name, other.Name)
	}

	if other.Namespace != "" {
		if s.Namespace == "" {
			s.Namespace = other.Namespace
			changed = true
		} else if s.Namespace != other.Namespace {
			return false, errors.Wrapf(ErrUnsatisfiableName, "namespace %s vs %s", s.Namespace, other.Namespace)
		}
	}

	if vc, err := version.Constrain(&s.Versions, other.Versions); err != nil {
		return false, errors.Wrapf(ErrUnsatisfiableVersion, "%s: %v", s.Name, err)
	} else if vc {
		changed = true
	}

	if s.Variants == nil {
		s.Variants = variant.Map{}
	}
	vc, err := s.Variants.Constrain(other.Variants)
	if err != nil {
		return false, err
	}
	if vc {
		changed = true
	}

	if s.Flags.Constrain(other.Flags) {
		changed = true
	}

	ac, err := s.Arch.Constrain(other.Arch)
	if err != nil {
		return false, err
	}
	if ac {
		changed = true
	}

	for _, oe := range other.Dependencies {
		dc, err := s.constrainDependency(oe)
		if err != nil {
			return false, err
		}
		if dc {
			changed = true
		}
	}

	return changed, nil
}

// constrainDependency finds edges in s matching oe's child name (or any
// child providing the same virtual) and satisfying oe's when clause
// relative to s, then recursively constrains each such child.
func (s *Spec) constrainDependency(oe *Edge) (bool, error) {
	var matches []*Edge
	for _, e := range s.Dependencies {
		if e.Child.Name == oe.Child.Name {
			matches = append(matches, e)
			continue
		}
		for _, v := range oe.Virtuals {
			if e.ProvidesVirtual(v) {
				matches = append(matches, e)
				break
			}
		}
	}
	if len(matches) == 0 {
		child := oe.Child.Copy(CopyAll, 0)
		if _, err := s.AddDependency(child, oe.DepTypes, oe.Virtuals, oe.Direct, oe.When); err != nil {
			return false, errors.Wrapf(ErrUnsatisfiableDependency, "%s: %v", oe.Child.Name, err)
		}
		return true, nil
	}

	changed := false
	for _, e := range matches {
		e.DepTypes |= oe.DepTypes
		dc, err := e.Child.Constrain(oe.Child)
		if err != nil {
			return false, errors.Wrapf(ErrUnsatisfiableDependency, "%s: %v", oe.Child.Name, err)
		}
		if dc {
			changed = true
		}
	}
	return changed, nil
}
