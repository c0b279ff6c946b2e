package spec

// DepSelector restricts which edges Copy follows.
type DepSelector uint8

const (
	// CopyAll follows every dependency edge.
	CopyAll DepSelector = iota
	// CopyNone copies only the root node.
	CopyNone
	// CopyTypeMask follows only edges matching a supplied DepTypeFlags mask.
	CopyTypeMask
)

// Copy deep-copies s, preserving DAG structure (a child shared by several
// parents is copied once, keyed by node identity) via a node-id map (spec.md
// §4.4 "copy(deps: all|none|typemask) -> Spec"). selector chooses which
// dependency edges are followed; typeMask is consulted only when selector
// is CopyTypeMask.
func (s *Spec) Copy(selector DepSelector, typeMask DepTypeFlags) *Spec {
	seen := map[*Spec]*Spec{}
	switch selector {
	case CopyNone:
		none := DepTypeFlags(0)
		return s.copyNode(seen, &none)
	case CopyTypeMask:
		return s.copyNode(seen, &typeMask)
	default:
		return s.copyNode(seen, nil)
	}
}

// copyWithMapping behaves like Copy but also returns the original-node ->
// copy-node correspondence, needed by Splice to carry per-node state (like
// pre-splice hashes) across a copy by identity rather than by position.
func (s *Spec) copyWithMapping(selector DepSelector, typeMask DepTypeFlags) (*Spec, map[*Spec]*Spec) {
	seen := map[*Spec]*Spec{}
	switch selector {
	case CopyNone:
		none := DepTypeFlags(0)
		return s.copyNode(seen, &none), seen
	case CopyTypeMask:
		return s.copyNode(seen, &typeMask), seen
	default:
		return s.copyNode(seen, nil), seen
	}
}

func (s *Spec) copyNode(seen map[*Spec]*Spec, mask *DepTypeFlags) *Spec {
	if cp, ok := seen[s]; ok {
		return cp
	}
	cp := &Spec{
		Name:         s.Name,
		Namespace:    s.Namespace,
		Versions:     s.Versions,
		Variants:     s.Variants.Copy(),
		Flags:        s.Flags.Copy(),
		Arch:         s.Arch,
		HashPrefix:   s.HashPrefix,
		Hash:         s.Hash,
		PackageHash:  s.PackageHash,
		External:     s.External,
		ExternalPath: s.ExternalPath,
		Patches:      append([]string(nil), s.Patches...),
	}
	seen[s] = cp

	if s.BuildSpec != nil {
		cp.BuildSpec = s.BuildSpec.copyNode(seen, mask)
	}

	if mask == nil {
		for _, e := range s.Dependencies {
			child := e.copyChild(seen, mask)
			ce := &Edge{Parent: cp, Child: child, DepTypes: e.DepTypes, Virtuals: append([]string(nil), e.Virtuals...), Direct: e.Direct, When: e.When}
			cp.Dependencies = append(cp.Dependencies, ce)
			child.Dependents = append(child.Dependents, ce)
		}
		return cp
	}

	for _, e := range s.Dependencies {
		if e.DepTypes&*mask == 0 {
			continue
		}
		child := e.copyChild(seen, mask)
		ce := &Edge{Parent: cp, Child: child, DepTypes: e.DepTypes, Virtuals: append([]string(nil), e.Virtuals...), Direct: e.Direct, When: e.When}
		cp.Dependencies = append(cp.Dependencies, ce)
		child.Dependents = append(child.Dependents, ce)
	}
	return cp
}

func (e *Edge) copyChild(seen map[*Spec]*Spec, mask *DepTypeFlags) *Spec {
	return e.Child.copyNode(seen, mask)
}
