// Package arch implements the architecture tuple algebra of spec.md §3.3 /
// §4.3: (platform, os, target) triples where target is a node in a
// microarchitecture partial order.
package arch

// Microarchitecture is a node in the target family graph: a named CPU
// generation with a vendor and a set of immediate ancestors it is
// backward-compatible with (spec.md §3.3 "a family graph with ancestor
// relations").
type Microarchitecture struct {
	Name      string
	Vendor    string
	Ancestors []string // immediate parents, by name
	Generic   bool      // a bare architecture family, e.g. "x86_64" or "aarch64"
}

// Family is the known microarchitecture graph. Real deployments would load
// this from a vendored archspec-style JSON database; this fixed table
// covers the families exercised by spec.md's examples.
var Family = map[string]Microarchitecture{
	"x86_64":      {Name: "x86_64", Vendor: "generic", Generic: true},
	"nehalem":     {Name: "nehalem", Vendor: "intel", Ancestors: []string{"x86_64"}},
	"haswell":     {Name: "haswell", Vendor: "intel", Ancestors: []string{"nehalem"}},
	"broadwell":   {Name: "broadwell", Vendor: "intel", Ancestors: []string{"haswell"}},
	"skylake":     {Name: "skylake", Vendor: "intel", Ancestors: []string{"broadwell"}},
	"skylake_avx512": {Name: "skylake_avx512", Vendor: "intel", Ancestors: []string{"skylake"}},
	"icelake":     {Name: "icelake", Vendor: "intel", Ancestors: []string{"skylake_avx512"}},
	"zen":         {Name: "zen", Vendor: "amd", Ancestors: []string{"x86_64"}},
	"zen2":        {Name: "zen2", Vendor: "amd", Ancestors: []string{"zen"}},
	"zen3":        {Name: "zen3", Vendor: "amd", Ancestors: []string{"zen2"}},
	"aarch64":     {Name: "aarch64", Vendor: "generic", Generic: true},
	"graviton":    {Name: "graviton", Vendor: "arm", Ancestors: []string{"aarch64"}},
	"graviton2":   {Name: "graviton2", Vendor: "arm", Ancestors: []string{"graviton"}},
	"graviton3":   {Name: "graviton3", Vendor: "arm", Ancestors: []string{"graviton2"}},
	"apple-m1":    {Name: "apple-m1", Vendor: "apple", Ancestors: []string{"aarch64"}},
	"apple-m2":    {Name: "apple-m2", Vendor: "apple", Ancestors: []string{"apple-m1"}},
}

// Lookup returns the named microarchitecture, treating any unknown name as
// a generic, ancestor-less family (spec.md's "generic-vs-vendor
// distinction").
func Lookup(name string) Microarchitecture {
	if m, ok := Family[name]; ok {
		return m
	}
	return Microarchitecture{Name: name, Generic: true}
}

// IsAncestorOf reports whether a is reachable from b by following
// ancestors, i.e. a <= b in the family partial order (every binary built
// for a also runs on b).
func IsAncestorOf(a, b string) bool {
	if a == b {
		return true
	}
	seen := map[string]bool{}
	var visit func(string) bool
	visit = func(name string) bool {
		if name == a {
			return true
		}
		if seen[name] {
			return false
		}
		seen[name] = true
		for _, anc := range Lookup(name).Ancestors {
			if visit(anc) {
				return true
			}
		}
		return false
	}
	return visit(b)
}

// LessEqual is the microarchitecture partial order: a <= b iff a is an
// ancestor of (or equal to) b.
func LessEqual(a, b string) bool { return IsAncestorOf(a, b) }

// SameFamily reports whether a and b trace back to the same root generic
// family (e.g. both under "x86_64").
func SameFamily(a, b string) bool {
	return rootFamily(a) == rootFamily(b)
}

func rootFamily(name string) string {
	m := Lookup(name)
	for len(m.Ancestors) > 0 {
		m = Lookup(m.Ancestors[0])
	}
	return m.Name
}
