package relocate

import (
	"sort"

	"github.com/nscaledev/spackcore/pkg/spec"
	"github.com/nscaledev/spackcore/pkg/tarball"
)

// PrefixMap is an ordered set of (old, new) prefix replacements. Order
// matters: entries are applied longest-old-prefix-first so a nested
// mapping (e.g. the store root) never shadows a more specific one (e.g.
// one package's install prefix within it).
type PrefixMap struct {
	entries []prefixEntry
}

type prefixEntry struct {
	old, new string
}

// Add installs old -> new, dropping the entry if it is an identity
// mapping (spec.md §4.8: "identity mappings are removed").
func (m *PrefixMap) Add(old, new string) {
	if old == "" || old == new {
		return
	}
	for i, e := range m.entries {
		if e.old == old {
			m.entries[i].new = new
			return
		}
	}
	m.entries = append(m.entries, prefixEntry{old: old, new: new})
}

// sorted returns m's entries ordered longest-old-prefix-first.
func (m *PrefixMap) sorted() []prefixEntry {
	out := append([]prefixEntry(nil), m.entries...)
	sort.Slice(out, func(i, j int) bool { return len(out[i].old) > len(out[j].old) })
	return out
}

// Pairs returns the map's (old, new) pairs in application order.
func (m *PrefixMap) Pairs() [][2]string {
	var out [][2]string
	for _, e := range m.sorted() {
		out = append(out, [2]string{e.old, e.new})
	}
	return out
}

// PrefixResolver resolves a concrete spec's dag hash to the install
// prefix the receiving store has assigned it, standing in for the "store
// layout" collaborator spec.md §4.8 refers to.
type PrefixResolver func(dagHash string) (string, bool)

// BuildPrefixMap constructs the prefix_to_prefix map spec.md §4.8
// describes: every buildinfo hash_to_prefix entry is looked up against
// resolve, the old sbang install path maps to newSbangInstallPath, and
// the old store root maps to newStoreRoot.
func BuildPrefixMap(info *tarball.BuildInfo, resolve PrefixResolver, newSbangInstallPath, newStoreRoot string) (PrefixMap, error) {
	if info.HashToPrefix == nil {
		return PrefixMap{}, ErrNewLayoutIncompatible
	}
	var m PrefixMap
	for hash, oldPrefix := range info.HashToPrefix {
		newPrefix, ok := resolve(hash)
		if !ok {
			continue
		}
		m.Add(oldPrefix, newPrefix)
	}
	m.Add(info.SbangInstallPath, newSbangInstallPath)
	m.Add(info.BuildPath, newStoreRoot)
	return m, nil
}

// ApplySpliceMapping extends m per spec.md §4.8's splice clause: for
// every node in buildSpec's dependency closure whose name or provided
// virtual is also present in receiving's closure, a mapping from the
// build_spec node's install prefix to the spliced node's install prefix
// is installed.
func ApplySpliceMapping(m *PrefixMap, receiving, buildSpec *spec.Spec, resolve PrefixResolver) error {
	receivingIndex := closureKeyIndex(receiving)

	opts := spec.TraverseOptions{Order: spec.Preorder, Cover: spec.CoverNodes, Direction: spec.DirectionChildren}
	return buildSpec.Traverse(opts, func(n *spec.Spec) error {
		if n.Hash == "" {
			return nil
		}
		spliced, ok := receivingIndex["name:"+n.Name]
		if !ok {
			for _, e := range n.Dependents {
				for _, v := range e.Virtuals {
					if match, ok2 := receivingIndex["virtual:"+v]; ok2 {
						spliced, ok = match, true
						break
					}
				}
			}
		}
		if !ok {
			return nil
		}
		oldPrefix, ok1 := resolve(n.Hash)
		newPrefix, ok2 := resolve(spliced.Hash)
		if ok1 && ok2 {
			m.Add(oldPrefix, newPrefix)
		}
		return nil
	})
}

// closureKeyIndex indexes every node in root's closure by its own name
// ("name:"+Name) and, for each of its dependency edges, the virtual(s)
// that edge provides to its parent ("virtual:"+name), so a node reached
// via either key can be found by a caller matching a different spec's
// closure against it.
func closureKeyIndex(root *spec.Spec) map[string]*spec.Spec {
	index := map[string]*spec.Spec{}
	opts := spec.TraverseOptions{Order: spec.Preorder, Cover: spec.CoverNodes, Direction: spec.DirectionChildren}
	_ = root.Traverse(opts, func(n *spec.Spec) error {
		index["name:"+n.Name] = n
		for _, e := range n.Dependencies {
			for _, v := range e.Virtuals {
				index["virtual:"+v] = e.Child
			}
		}
		return nil
	})
	return index
}
