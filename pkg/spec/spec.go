// Package spec implements the Spec DAG and its algebra: satisfies,
// intersects, constrain, copy, traverse, splice, format, and content
// hashing (spec.md §3.4 / §4.4).
package spec

import (
	"sort"

	"github.com/nscaledev/spackcore/pkg/arch"
	"github.com/nscaledev/spackcore/pkg/variant"
	"github.com/nscaledev/spackcore/pkg/version"
)

// DepType is one flag of the dependency-type set (spec.md §3.4).
type DepType uint8

const (
	DepBuild DepType = 1 << iota
	DepLink
	DepRun
	DepTest
)

// DepTypeFlags is a subset of {build, link, run, test}.
type DepTypeFlags uint8

func (f DepTypeFlags) Has(t DepType) bool { return f&DepTypeFlags(t) != 0 }
func (f DepTypeFlags) With(t DepType) DepTypeFlags { return f | DepTypeFlags(t) }

// LinkRunTest is the set of non-build dependency types. DAG hashing and
// splice-target search follow edges whose types intersect it (hashing also
// follows direct build edges).
const LinkRunTest = DepTypeFlags(DepLink | DepRun | DepTest)

func (f DepTypeFlags) String() string {
	names := []struct {
		t DepType
		s string
	}{{DepBuild, "build"}, {DepLink, "link"}, {DepRun, "run"}, {DepTest, "test"}}
	var out []string
	for _, n := range names {
		if f.Has(n.t) {
			out = append(out, n.s)
		}
	}
	s := ""
	for i, n := range out {
		if i > 0 {
			s += ","
		}
		s += n
	}
	return s
}

// Edge connects a parent Spec node to a child Spec node (spec.md §3.4).
// Edge equality considers parent name, child name, type flags, virtuals,
// direct, and when.
type Edge struct {
	Parent   *Spec
	Child    *Spec
	DepTypes DepTypeFlags
	Virtuals []string
	Direct   bool
	When     *Spec // nil/empty = unconditional
}

func (e *Edge) virtualsSorted() []string {
	out := append([]string(nil), e.Virtuals...)
	sort.Strings(out)
	return out
}

// ProvidesVirtual reports whether e carries the named virtual.
func (e *Edge) ProvidesVirtual(name string) bool {
	for _, v := range e.Virtuals {
		if v == name {
			return true
		}
	}
	return false
}

// Equal compares two edges by the fields spec.md §3.4 defines for edge
// equality: parent name, child name, type flags, virtuals, direct, when.
func (e *Edge) Equal(o *Edge) bool {
	if e.Parent.Name != o.Parent.Name || e.Child.Name != o.Child.Name {
		return false
	}
	if e.DepTypes != o.DepTypes || e.Direct != o.Direct {
		return false
	}
	ev, ov := e.virtualsSorted(), o.virtualsSorted()
	if len(ev) != len(ov) {
		return false
	}
	for i := range ev {
		if ev[i] != ov[i] {
			return false
		}
	}
	if (e.When == nil) != (o.When == nil) {
		return false
	}
	if e.When != nil && !e.When.Equal(o.When) {
		return false
	}
	return true
}

// Spec is one node of the dependency DAG plus its edge sets (spec.md
// §3.4). Ownership: a Spec owns its Dependencies edges; Dependents are
// shared back-references maintained alongside them.
type Spec struct {
	Name       string
	Namespace  string
	Versions   version.Version
	Variants   variant.Map
	Flags      variant.FlagMap
	Arch       arch.ArchSpec

	HashPrefix string // abstract "/hash-prefix" reference, pre-resolution
	Hash       string // concrete dag_hash, once stamped
	PackageHash string // package recipe hash, stamped at concretization, never recomputed

	External    bool
	ExternalPath string
	Patches     []string

	BuildSpec *Spec // set by splice: points at the pre-splice original

	Dependencies []*Edge
	Dependents   []*Edge
}

// New builds an empty, unconstrained Spec node with the given name.
func New(name string) *Spec {
	return &Spec{
		Name:     name,
		Versions: version.FromList(version.List{}),
		Variants: variant.Map{},
		Flags:    variant.FlagMap{},
	}
}

// AddDependency links child under s with the given edge metadata, wiring
// both Dependencies (on s) and Dependents (on child).
func (s *Spec) AddDependency(child *Spec, deptypes DepTypeFlags, virtuals []string, direct bool, when *Spec) (*Edge, error) {
	for _, e := range s.Dependencies {
		if e.Child.Name == child.Name && e.DepTypes&deptypes != 0 {
			sameWhen := (e.When == nil && when == nil) || (e.When != nil && when != nil && e.When.Equal(when))
			if !sameWhen {
				continue
			}
			return nil, ErrDuplicateDependency
		}
	}
	e := &Edge{Parent: s, Child: child, DepTypes: deptypes, Virtuals: virtuals, Direct: direct, When: when}
	s.Dependencies = append(s.Dependencies, e)
	child.Dependents = append(child.Dependents, e)
	return e, nil
}

// EdgesTo returns every outgoing edge to a child of the given name.
func (s *Spec) EdgesTo(name string) []*Edge {
	var out []*Edge
	for _, e := range s.Dependencies {
		if e.Child.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// EdgesProvidingVirtual returns every outgoing edge whose child provides
// the named virtual along that edge.
func (s *Spec) EdgesProvidingVirtual(name string) []*Edge {
	var out []*Edge
	for _, e := range s.Dependencies {
		if e.ProvidesVirtual(name) {
			out = append(out, e)
		}
	}
	return out
}

// IsConcrete reports whether every axis of s is fully resolved and every
// edge resolves to a concrete child (spec.md §3.4).
func (s *Spec) IsConcrete() bool {
	if !s.Versions.IsConcrete() {
		return false
	}
	if !s.Arch.IsConcrete() {
		return false
	}
	for _, v := range s.Variants {
		if v.Kind != variant.KindBool && len(v.Values) == 0 {
			return false
		}
	}
	for _, e := range s.Dependencies {
		if e.Child == nil || !e.Child.IsConcrete() {
			return false
		}
	}
	return true
}
