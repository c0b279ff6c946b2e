// Package variant implements the variant algebra of spec.md §3.2 / §4.2:
// boolean, single-valued, and multi-valued variants, propagation, and the
// compiler-flag map.
package variant

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"k8s.io/apimachinery/pkg/util/sets"
)

// Kind is the shape of a Variant's value.
type Kind uint8

const (
	// KindBool is a +/~ presence flag.
	KindBool Kind = iota
	// KindSingle holds exactly one value (name=value).
	KindSingle
	// KindMulti holds a set of values (name=v1,v2,...).
	KindMulti
)

// Wildcard is the reserved value that matches any non-empty value set
// (spec.md §4.2). It may never appear as a literal variant value.
const Wildcard = "*"

// reservedNames cannot carry the propagate flag (spec.md §3.2).
var reservedNames = map[string]bool{
	"patches":   true,
	"dev_path":  true,
	"commit":    true,
	"arch":      true,
	"namespace": true,
	"platform":  true,
	"os":        true,
	"target":    true,
}

// IsReserved reports whether name is one of the names that cannot carry the
// propagate flag.
func IsReserved(name string) bool { return reservedNames[name] }

// Variant is one named, typed option on a spec node.
type Variant struct {
	Name      string
	Kind      Kind
	Values    sets.Set[string] // set membership for KindMulti, single key for KindSingle/KindBool
	Propagate bool
}

// NewBool builds a boolean variant.
func NewBool(name string, value, propagate bool) (Variant, error) {
	if propagate && IsReserved(name) {
		return Variant{}, errors.Wrapf(ErrPropagationOnReserved, "variant %q", name)
	}
	val := "False"
	if value {
		val = "True"
	}
	return Variant{Name: name, Kind: KindBool, Values: sets.New(val), Propagate: propagate}, nil
}

// NewSingle builds a single-valued variant.
func NewSingle(name, value string, propagate bool) (Variant, error) {
	if value == Wildcard {
		return Variant{}, errors.Wrapf(ErrReservedVariantValue, "variant %q", name)
	}
	if propagate && IsReserved(name) {
		return Variant{}, errors.Wrapf(ErrPropagationOnReserved, "variant %q", name)
	}
	return Variant{Name: name, Kind: KindSingle, Values: sets.New(value), Propagate: propagate}, nil
}

// NewMulti builds a multi-valued variant from a set of values.
func NewMulti(name string, values []string, propagate bool) (Variant, error) {
	if propagate && IsReserved(name) {
		return Variant{}, errors.Wrapf(ErrPropagationOnReserved, "variant %q", name)
	}
	set := sets.New[string]()
	for _, v := range values {
		if v == Wildcard {
			return Variant{}, errors.Wrapf(ErrReservedVariantValue, "variant %q", name)
		}
		set.Insert(v)
	}
	return Variant{Name: name, Kind: KindMulti, Values: set, Propagate: propagate}, nil
}

// BoolValue returns the boolean value of a KindBool variant.
func (v Variant) BoolValue() bool { return v.Values.Has("True") }

// SingleValue returns the one value of a KindSingle variant.
func (v Variant) SingleValue() string {
	for k := range v.Values {
		return k
	}
	return ""
}

// SortedValues returns the variant's values in sorted order, for stable
// formatting and hashing.
func (v Variant) SortedValues() []string {
	return sets.List(v.Values)
}

// IsWildcard reports whether v is the value wildcard "*".
func (v Variant) IsWildcard() bool {
	return v.Kind != KindBool && v.Values.Len() == 1 && v.Values.Has(Wildcard)
}

// Satisfies reports whether v (present) satisfies required, per spec.md
// §4.2: boolean/single by equality, multi by subset (required ⊆ present).
func (v Variant) Satisfies(required Variant) bool {
	if required.IsWildcard() {
		return v.Values.Len() > 0
	}
	switch required.Kind {
	case KindBool, KindSingle:
		return v.Equal(required)
	case KindMulti:
		return v.Values.IsSuperset(required.Values)
	default:
		return false
	}
}

// Equal reports whether v and o have identical name, kind, values and
// propagate flag.
func (v Variant) Equal(o Variant) bool {
	if v.Name != o.Name || v.Kind != o.Kind || v.Propagate != o.Propagate {
		return false
	}
	return v.Values.Equal(o.Values)
}

// Intersect returns the intersection of v and o's value sets, for
// multi-valued variants; for bool/single it requires equality.
func (v Variant) Intersect(o Variant) (Variant, bool) {
	if v.IsWildcard() {
		return o, true
	}
	if o.IsWildcard() {
		return v, true
	}
	switch v.Kind {
	case KindBool, KindSingle:
		if v.Equal(o) {
			return v, true
		}
		return Variant{}, false
	case KindMulti:
		merged := v.Values.Intersection(o.Values)
		if merged.Len() == 0 {
			return Variant{}, false
		}
		return Variant{Name: v.Name, Kind: KindMulti, Values: merged, Propagate: v.Propagate && o.Propagate}, true
	default:
		return Variant{}, false
	}
}

// Union returns the union of v and o's value sets for multi-valued
// variants; used when merging propagated values across edges.
func (v Variant) Union(o Variant) Variant {
	if v.Kind != KindMulti {
		return v
	}
	return Variant{Name: v.Name, Kind: KindMulti, Values: v.Values.Union(o.Values), Propagate: v.Propagate || o.Propagate}
}

func (v Variant) String() string {
	switch v.Kind {
	case KindBool:
		sigil := "+"
		if !v.BoolValue() {
			sigil = "~"
		}
		if v.Propagate {
			sigil += sigil[:1]
		}
		return sigil + v.Name
	default:
		eq := "="
		if v.Propagate {
			eq = "=="
		}
		return v.Name + eq + strings.Join(v.SortedValues(), ",")
	}
}

// Map is the set of a node's variants, keyed by name.
type Map map[string]Variant

// Satisfies reports whether every variant required by other is present and
// satisfied in m. Only m's own entries are consulted; values propagated
// from ancestor nodes are not taken into account.
func (m Map) Satisfies(other Map) bool {
	for name, req := range other {
		have, ok := m[name]
		if !ok || !have.Satisfies(req) {
			return false
		}
	}
	return true
}

// Constrain intersects m with other in place, returning whether m changed.
// Fails with ErrUnsatisfiableVariant when any shared name has empty
// intersection.
func (m *Map) Constrain(other Map) (bool, error) {
	changed := false
	for name, ov := range other {
		mv, ok := (*m)[name]
		if !ok {
			(*m)[name] = ov
			changed = true
			continue
		}
		merged, ok := mv.Intersect(ov)
		if !ok {
			return false, errors.Wrapf(ErrUnsatisfiableVariant, "variant %q: %s vs %s", name, mv, ov)
		}
		if !merged.Equal(mv) {
			(*m)[name] = merged
			changed = true
		}
	}
	return changed, nil
}

// Copy returns a deep copy of m.
func (m Map) Copy() Map {
	out := make(Map, len(m))
	for k, v := range m {
		v.Values = v.Values.Clone()
		out[k] = v
	}
	return out
}

// SortedNames returns m's keys in sorted order, for stable formatting and
// hashing.
func (m Map) SortedNames() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m Map) String() string {
	var b strings.Builder
	for _, name := range m.SortedNames() {
		b.WriteString(m[name].String())
	}
	return b.String()
}

// PropagatingNames returns the names of variants in m that carry the
// propagate flag, i.e. that must be pushed onto every dependency declaring
// the same variant name (spec.md §3.2).
func (m Map) PropagatingNames() []string {
	var out []string
	for name, v := range m {
		if v.Propagate {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
