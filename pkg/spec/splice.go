package spec

import "github.com/pkg/errors"

// Splice produces a new concrete spec in which every match of other's root
// name or virtuals in s is replaced by other (spec.md §4.4). If
// transitive, other's link/run closure replaces the corresponding closure
// in s; otherwise only the direct match is replaced and s's transitive
// link/run deps are preserved. Every ancestor of the replaced node gets its
// BuildSpec set to a copy of its pre-splice self, and any build-only edges
// on those ancestors are detached. Splice fails if neither the root nor any
// link/run descendant of s shares a name or matching virtual with other.
func (s *Spec) Splice(other *Spec, transitive bool) (*Spec, error) {
	_ = s.Traverse(TraverseOptions{Order: Preorder, Cover: CoverNodes}, func(n *Spec) error {
		if n.Hash == "" {
			if _, err := n.computeHash(map[*Spec]string{}); err != nil {
				return err
			}
		}
		return nil
	})

	root, orig2copy := s.copyWithMapping(CopyAll, 0)

	// preHashes is keyed by the *copy's* node identity (via orig2copy),
	// since root is a fresh object graph distinct from s.
	preHashes := map[*Spec]string{}
	for orig, cp := range orig2copy {
		preHashes[cp] = orig.Hash
	}

	target, ancestors, err := findSpliceTarget(root, other)
	if err != nil {
		return nil, err
	}

	replacement := other.Copy(CopyAll, 0)
	if !transitive {
		replacement = replaceKeepingDescendants(replacement, target)
	}

	// Snapshot each ancestor's pre-splice provenance before any edge is
	// rewired, so BuildSpec records what the ancestor looked like before
	// the replacement, not after.
	ancestorProvenance := make(map[*Spec]*Spec, len(ancestors))
	for _, anc := range ancestors {
		ancestorProvenance[anc] = anc.Copy(CopyAll, 0)
	}
	var rootProvenance *Spec
	if target == root {
		rootProvenance = s.Copy(CopyAll, 0)
	}

	if target == root {
		root = replacement
	} else {
		for _, parent := range ancestors {
			for _, e := range parent.Dependencies {
				if e.Child == target {
					e.Child = replacement
				}
			}
		}
	}

	for _, anc := range ancestors {
		anc.BuildSpec = ancestorProvenance[anc]
		kept := anc.Dependencies[:0]
		for _, e := range anc.Dependencies {
			if e.DepTypes == DepTypeFlags(DepBuild) {
				continue // detach build-only edges on ancestors
			}
			kept = append(kept, e)
		}
		anc.Dependencies = kept
	}
	if target == root {
		root.BuildSpec = rootProvenance
	}

	preserved := map[*Spec]bool{}
	_ = root.Traverse(TraverseOptions{Order: Preorder, Cover: CoverNodes}, func(n *Spec) error {
		if n == replacement {
			return nil
		}
		preserved[n] = true
		return nil
	})

	if _, err := root.computeHash(map[*Spec]string{}); err != nil {
		return nil, err
	}

	_ = root.Traverse(TraverseOptions{Order: Preorder, Cover: CoverNodes}, func(n *Spec) error {
		if preserved[n] {
			if old, ok := preHashes[n]; ok && len(old) >= 7 && len(n.Hash) >= 7 {
				n.Hash = n.Hash[:len(n.Hash)-7] + old[len(old)-7:]
			}
		}
		return nil
	})

	return root, nil
}

// findSpliceTarget locates the node within root matching other's name or
// virtuals, along with the chain of ancestors from root down to (but
// excluding) that node.
func findSpliceTarget(root, other *Spec) (*Spec, []*Spec, error) {
	if root.Name == other.Name {
		return root, nil, nil
	}

	var found *Spec
	var chain []*Spec
	var walk func(n *Spec, path []*Spec) bool
	walk = func(n *Spec, path []*Spec) bool {
		for _, e := range n.Dependencies {
			if e.DepTypes&DepTypeFlags(LinkRunTest) == 0 {
				continue
			}
			child := e.Child
			if child.Name == other.Name || edgeProvidesAny(e, other) {
				found = child
				chain = append(append([]*Spec(nil), path...), n)
				return true
			}
			if walk(child, append(path, n)) {
				return true
			}
		}
		return false
	}
	if walk(root, nil) {
		return found, chain, nil
	}
	return nil, nil, errors.Wrapf(ErrSpliceError, "no match for %q in %q", other.Name, root.Name)
}

// edgeProvidesAny reports whether e's virtuals list includes other's name,
// i.e. other is offered as a replacement provider for a virtual e already
// satisfies (spec.md §4.4 "every match of other's root name or virtuals").
func edgeProvidesAny(e *Edge, other *Spec) bool {
	return e.ProvidesVirtual(other.Name)
}

// replaceKeepingDescendants rewires replacement's own dependency edges to
// reuse target's original children, so a non-transitive splice only swaps
// the matched node itself, not its subtree.
func replaceKeepingDescendants(replacement, target *Spec) *Spec {
	cp := &Spec{
		Name: replacement.Name, Namespace: replacement.Namespace,
		Versions: replacement.Versions, Variants: replacement.Variants.Copy(),
		Flags: replacement.Flags.Copy(), Arch: replacement.Arch,
		Hash: replacement.Hash, PackageHash: replacement.PackageHash,
	}
	for _, e := range target.Dependencies {
		ce := &Edge{Parent: cp, Child: e.Child, DepTypes: e.DepTypes, Virtuals: e.Virtuals, Direct: e.Direct, When: e.When}
		cp.Dependencies = append(cp.Dependencies, ce)
		e.Child.Dependents = append(e.Child.Dependents, ce)
	}
	return cp
}
