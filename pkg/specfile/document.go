// Package specfile implements the versioned JSON specfile codec of
// spec.md §4.5/§6.2: encoding a concrete Spec DAG to the
// {"spec": {"_meta": {...}, "nodes": [...]}} document, decoding every prior
// format version, and unwrapping a PGP clear-sign envelope.
package specfile

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/nscaledev/spackcore/pkg/arch"
	"github.com/nscaledev/spackcore/pkg/spec"
	"github.com/nscaledev/spackcore/pkg/variant"
	"github.com/nscaledev/spackcore/pkg/version"
)

// CurrentFormatVersion is the specfile format this package always writes
// (spec.md §4.5: "N ∈ {1..5} ... the encoder always writes the latest").
const CurrentFormatVersion = 5

type document struct {
	Spec docSpec `json:"spec"`
}

// Document is document exported under a stable name for JSON Schema
// reflection (cmd/gen-specfile-schema); Encode/Decode never use it
// directly, since the wire format is driven entirely by document's json
// tags regardless of which name reflects over them.
type Document = document

type docSpec struct {
	Meta  docMeta   `json:"_meta"`
	Nodes []nodeObj `json:"nodes"`
}

type docMeta struct {
	Version int `json:"version"`
}

// nodeObj is one entry of the current (format 5) "nodes" array. A
// dependency is represented by hash reference only (spec.md §4.5: "the
// reader reconstructs edges by a hash lookup pass after all nodes are
// loaded").
type nodeObj struct {
	Name        string          `json:"name"`
	Namespace   string          `json:"namespace,omitempty"`
	Version     string          `json:"version,omitempty"`
	Arch        string          `json:"arch,omitempty"`
	Parameters  *nodeParameters `json:"parameters,omitempty"`
	Patches     []string        `json:"patches,omitempty"`
	External    *externalObj    `json:"external,omitempty"`
	Dependencies []depObj       `json:"dependencies,omitempty"`
	BuildSpec   *buildSpecRef   `json:"build_spec,omitempty"`
	Hash        string          `json:"hash,omitempty"`
	PackageHash string          `json:"package_hash,omitempty"`
	Annotations *annotationsObj `json:"annotations,omitempty"`
}

// nodeParameters carries a node's own variant and flag settings. Dependency
// edges use the distinct depParameters shape for deptypes/virtuals/direct.
type nodeParameters struct {
	Variants map[string]variantObj    `json:"variants,omitempty"`
	Flags    map[string][]flagObj     `json:"flags,omitempty"`
}

type variantObj struct {
	Kind      string   `json:"kind"`
	Values    []string `json:"values"`
	Propagate bool     `json:"propagate,omitempty"`
}

type flagObj struct {
	Value     string `json:"value"`
	Propagate bool   `json:"propagate,omitempty"`
	FlagGroup string `json:"flag_group,omitempty"`
}

type externalObj struct {
	Path string `json:"path,omitempty"`
}

type depObj struct {
	Name       string         `json:"name"`
	Hash       string         `json:"hash"`
	Parameters *depParameters `json:"parameters,omitempty"`
}

type depParameters struct {
	DepTypes []string `json:"deptypes,omitempty"`
	Virtuals []string `json:"virtuals,omitempty"`
	Direct   bool     `json:"direct,omitempty"`
	When     string   `json:"when,omitempty"`
}

type buildSpecRef struct {
	Name string `json:"name"`
	Hash string `json:"hash"`
}

// annotationsObj is a node's annotations record (spec.md §6.2). The legacy
// reader fills in Compiler from the old per-node compiler field (format ≤4
// nodes had one instead of a direct build dependency). No reader in this
// package sets OriginalSpecfileVersion, and Encode writes no annotations.
type annotationsObj struct {
	OriginalSpecfileVersion int    `json:"original_specfile_version,omitempty"`
	Compiler                string `json:"compiler,omitempty"`
}

// Encode serializes s and every node reachable from it to the current
// specfile format. s must be concrete: every node is hashed first
// via ComputeHash if not already stamped.
func Encode(s *spec.Spec) ([]byte, error) {
	if s.Hash == "" {
		if _, err := s.ComputeHash(); err != nil {
			return nil, errors.Wrap(err, "computing hash before encode")
		}
	}

	var nodes []nodeObj
	seen := map[string]bool{}
	err := s.Traverse(spec.TraverseOptions{Order: spec.Preorder, Cover: spec.CoverNodes}, func(n *spec.Spec) error {
		if n.Hash == "" {
			if _, err := n.ComputeHash(); err != nil {
				return err
			}
		}
		if seen[n.Hash] {
			return nil
		}
		seen[n.Hash] = true
		nodes = append(nodes, encodeNode(n))
		return nil
	})
	if err != nil {
		return nil, err
	}

	doc := document{Spec: docSpec{Meta: docMeta{Version: CurrentFormatVersion}, Nodes: nodes}}
	return json.MarshalIndent(doc, "", "  ")
}

func encodeNode(n *spec.Spec) nodeObj {
	obj := nodeObj{
		Name:        n.Name,
		Namespace:   n.Namespace,
		Version:     n.Versions.String(),
		Arch:        n.Arch.String(),
		Patches:     n.Patches,
		Hash:        n.Hash,
		PackageHash: n.PackageHash,
	}
	if n.External {
		obj.External = &externalObj{Path: n.ExternalPath}
	}
	if len(n.Variants) > 0 || len(n.Flags) > 0 {
		obj.Parameters = &nodeParameters{
			Variants: encodeVariants(n.Variants),
			Flags:    encodeFlags(n.Flags),
		}
	}
	for _, e := range n.Dependencies {
		hashWorthy := e.DepTypes&spec.LinkRunTest != 0 || e.Direct
		if !hashWorthy {
			continue
		}
		obj.Dependencies = append(obj.Dependencies, encodeDep(e))
	}
	if n.BuildSpec != nil {
		obj.BuildSpec = &buildSpecRef{Name: n.BuildSpec.Name, Hash: n.BuildSpec.Hash}
	}
	return obj
}

func encodeDep(e *spec.Edge) depObj {
	d := depObj{Name: e.Child.Name, Hash: e.Child.Hash}
	params := &depParameters{DepTypes: depTypeNames(e.DepTypes), Virtuals: e.Virtuals, Direct: e.Direct}
	if e.When != nil {
		params.When = e.When.String()
	}
	d.Parameters = params
	return d
}

func depTypeNames(f spec.DepTypeFlags) []string {
	s := f.String()
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}

func encodeVariants(m variant.Map) map[string]variantObj {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]variantObj, len(m))
	for name, v := range m {
		out[name] = variantObj{Kind: variantKindName(v.Kind), Values: v.SortedValues(), Propagate: v.Propagate}
	}
	return out
}

func variantKindName(k variant.Kind) string {
	switch k {
	case variant.KindBool:
		return "bool"
	case variant.KindMulti:
		return "multi"
	default:
		return "single"
	}
}

func encodeFlags(fm variant.FlagMap) map[string][]flagObj {
	if len(fm) == 0 {
		return nil
	}
	out := map[string][]flagObj{}
	for _, kind := range variant.AllFlagKinds {
		toks := fm[kind]
		if len(toks) == 0 {
			continue
		}
		list := make([]flagObj, len(toks))
		for i, f := range toks {
			list[i] = flagObj{Value: f.Value, Propagate: f.Propagate, FlagGroup: f.FlagGroup}
		}
		out[string(kind)] = list
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Decode parses specfile bytes of any supported format version (1-5),
// unwrapping a clear-sign envelope if present, and reconstructs the Spec
// DAG by a hash lookup pass over the decoded node list.
func Decode(data []byte) (*spec.Spec, error) {
	body, _, err := stripClearSign(data)
	if err != nil {
		return nil, err
	}

	doc, _, err := parseAnyFormat(body)
	if err != nil {
		return nil, err
	}

	byHash := map[string]*spec.Spec{}
	byName := map[string][]*spec.Spec{}
	pending := map[string][]depObj{}
	var order []string

	for _, n := range doc.Nodes {
		s, err := decodeNodeShallow(n)
		if err != nil {
			return nil, err
		}
		key := n.Hash
		if key == "" {
			key = n.Name
		}
		byHash[key] = s
		byName[n.Name] = append(byName[n.Name], s)
		pending[key] = n.Dependencies
		order = append(order, key)
	}

	referenced := map[string]bool{}
	for _, key := range order {
		s := byHash[key]
		for _, d := range pending[key] {
			child, childKey := byHash[d.Hash], d.Hash
			if child == nil {
				if cands := byName[d.Name]; len(cands) == 1 {
					child = cands[0]
					childKey = d.Name
				} else {
					return nil, errors.Wrapf(ErrInvalidSpecfileFormat, "dependency %q (hash %q) not found among decoded nodes", d.Name, d.Hash)
				}
			}
			referenced[childKey] = true
			deptypes, virtuals, direct := spec.DepTypeFlags(0), []string(nil), false
			if d.Parameters != nil {
				deptypes = parseDepTypes(d.Parameters.DepTypes)
				virtuals = d.Parameters.Virtuals
				direct = d.Parameters.Direct
			}
			if _, err := s.AddDependency(child, deptypes, virtuals, direct, nil); err != nil {
				return nil, errors.Wrapf(err, "linking dependency %q of %q", d.Name, s.Name)
			}
		}
	}

	if len(order) == 0 {
		return nil, errors.Wrap(ErrInvalidSpecfileFormat, "specfile has no nodes")
	}
	// The root is the one node no other node depends on. Fall back to the
	// first node in document order (true for every document this package
	// itself writes, since Encode always preorder-visits the root first).
	rootKey := order[0]
	for _, key := range order {
		if !referenced[key] {
			rootKey = key
			break
		}
	}
	return byHash[rootKey], nil
}

func decodeNodeShallow(n nodeObj) (*spec.Spec, error) {
	s := spec.New(n.Name)
	s.Namespace = n.Namespace
	s.Hash = n.Hash
	s.PackageHash = n.PackageHash
	s.Patches = n.Patches

	if n.Version != "" {
		v, err := version.ParseList(n.Version)
		if err != nil {
			return nil, errors.Wrapf(err, "node %q version %q", n.Name, n.Version)
		}
		s.Versions = v
	}
	if n.Arch != "" {
		a, err := arch.Parse(n.Arch)
		if err != nil {
			return nil, errors.Wrapf(err, "node %q arch %q", n.Name, n.Arch)
		}
		s.Arch = a
	}
	if n.External != nil {
		s.External = true
		s.ExternalPath = n.External.Path
	}
	if n.Parameters != nil {
		for name, vo := range n.Parameters.Variants {
			v, err := decodeVariant(name, vo)
			if err != nil {
				return nil, err
			}
			s.Variants[name] = v
		}
		if len(n.Parameters.Flags) > 0 {
			s.Flags = variant.FlagMap{}
			for kindStr, toks := range n.Parameters.Flags {
				kind := variant.FlagKind(kindStr)
				for _, t := range toks {
					s.Flags[kind] = append(s.Flags[kind], variant.Flag{Value: t.Value, Propagate: t.Propagate, FlagGroup: t.FlagGroup})
				}
			}
		}
	}
	return s, nil
}

func decodeVariant(name string, vo variantObj) (variant.Variant, error) {
	switch vo.Kind {
	case "bool":
		val := len(vo.Values) > 0 && vo.Values[0] == "True"
		return variant.NewBool(name, val, vo.Propagate)
	case "multi":
		return variant.NewMulti(name, vo.Values, vo.Propagate)
	default:
		v := ""
		if len(vo.Values) > 0 {
			v = vo.Values[0]
		}
		return variant.NewSingle(name, v, vo.Propagate)
	}
}

func parseDepTypes(names []string) spec.DepTypeFlags {
	var f spec.DepTypeFlags
	for _, n := range names {
		switch n {
		case "build":
			f = f.With(spec.DepBuild)
		case "link":
			f = f.With(spec.DepLink)
		case "run":
			f = f.With(spec.DepRun)
		case "test":
			f = f.With(spec.DepTest)
		}
	}
	return f
}
