package specfile

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// parseAnyFormat detects and normalizes any supported specfile format
// (spec.md §4.5) into the current (format 5) docSpec shape, returning the
// format version the bytes were actually written in.
func parseAnyFormat(body []byte) (docSpec, int, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return docSpec{}, 0, errors.Wrap(ErrInvalidSpecfileFormat, err.Error())
	}

	specRaw, hasSpec := raw["spec"]
	if !hasSpec {
		// Format 1: the document itself is a dict keyed by name, no "spec"
		// wrapper at all.
		nodes, err := decodeFormat1(body)
		if err != nil {
			return docSpec{}, 0, err
		}
		return docSpec{Nodes: nodes}, 1, nil
	}

	var asArray []json.RawMessage
	if err := json.Unmarshal(specRaw, &asArray); err == nil {
		// Format 2: "spec" is directly an array of nodes, each already
		// carrying its own "name" field.
		nodes, err := decodeLegacyNodes(asArray, 2)
		if err != nil {
			return docSpec{}, 0, err
		}
		return docSpec{Nodes: nodes}, 2, nil
	}

	var specObj struct {
		Meta  *docMeta          `json:"_meta"`
		Nodes []json.RawMessage `json:"nodes"`
	}
	if err := json.Unmarshal(specRaw, &specObj); err != nil {
		return docSpec{}, 0, errors.Wrap(ErrInvalidSpecfileFormat, err.Error())
	}
	if specObj.Nodes == nil {
		return docSpec{}, 0, errors.Wrap(ErrInvalidSpecfileFormat, `"spec" object has neither an array shape nor a "nodes" field`)
	}

	version := 3
	if specObj.Meta != nil && specObj.Meta.Version > 0 {
		version = specObj.Meta.Version
	}
	if version < 1 || version > CurrentFormatVersion {
		return docSpec{}, 0, errors.Wrapf(ErrUnsupportedSpecfileVersion, "version %d", version)
	}

	nodes, err := decodeLegacyNodes(specObj.Nodes, version)
	if err != nil {
		return docSpec{}, 0, err
	}
	if version == 4 {
		nodes = migrateCompilersToDeps(nodes)
	}
	return docSpec{Meta: docMeta{Version: version}, Nodes: nodes}, version, nil
}

// decodeFormat1 parses the oldest specfile shape: a top-level object keyed
// by node name, dependencies given as a flat {depname: hash} map.
func decodeFormat1(body []byte) ([]nodeObj, error) {
	var byName map[string]legacyNode
	if err := json.Unmarshal(body, &byName); err != nil {
		return nil, errors.Wrap(ErrInvalidSpecfileFormat, err.Error())
	}
	names := make([]string, 0, len(byName))
	for n := range byName {
		names = append(names, n)
	}
	sort.Strings(names) // deterministic node order for an unordered source map
	var out []nodeObj
	for _, name := range names {
		ln := byName[name]
		ln.Name = name
		out = append(out, ln.toNodeObj(1))
	}
	return out, nil
}

func decodeLegacyNodes(raw []json.RawMessage, version int) ([]nodeObj, error) {
	var out []nodeObj
	for _, r := range raw {
		var ln legacyNode
		if err := json.Unmarshal(r, &ln); err != nil {
			return nil, errors.Wrapf(ErrInvalidSpecfileFormat, "decoding node: %s", err)
		}
		out = append(out, ln.toNodeObj(version))
	}
	return out, nil
}

// legacyNode accepts the union of every prior format's node shape. Variants
// may be a flat {name: value} map (formats 1-3) or the structured form
// (format 4-5, decoded into the Parameters field in the same pass);
// dependencies may be a flat {name: hash} map
// (formats 1-3) or an array of {name, hash, parameters} (format 4-5).
type legacyNode struct {
	Name         string                     `json:"name"`
	Namespace    string                     `json:"namespace"`
	Version      string                     `json:"version"`
	Arch         string                     `json:"arch"`
	Variants     map[string]string          `json:"variants"`
	Parameters   *nodeParameters            `json:"parameters"`
	Patches      []string                   `json:"patches"`
	External     *externalObj               `json:"external"`
	Compiler     string                     `json:"compiler"`
	Hash         string                     `json:"hash"`
	PackageHash  string                     `json:"package_hash"`
	Dependencies json.RawMessage            `json:"dependencies"`
}

func (ln legacyNode) toNodeObj(version int) nodeObj {
	obj := nodeObj{
		Name: ln.Name, Namespace: ln.Namespace, Version: ln.Version, Arch: ln.Arch,
		Patches: ln.Patches, External: ln.External, Hash: ln.Hash, PackageHash: ln.PackageHash,
	}
	if ln.Compiler != "" {
		obj.Annotations = &annotationsObj{Compiler: ln.Compiler}
	}

	switch {
	case ln.Parameters != nil:
		obj.Parameters = ln.Parameters
	case len(ln.Variants) > 0:
		obj.Parameters = &nodeParameters{Variants: legacyVariantsToObj(ln.Variants)}
	}

	obj.Dependencies = decodeLegacyDeps(ln.Dependencies, version)
	return obj
}

func legacyVariantsToObj(m map[string]string) map[string]variantObj {
	out := make(map[string]variantObj, len(m))
	for name, val := range m {
		switch {
		case val == "True" || val == "False":
			out[name] = variantObj{Kind: "bool", Values: []string{val}}
		case strings.Contains(val, ","):
			out[name] = variantObj{Kind: "multi", Values: strings.Split(val, ",")}
		default:
			out[name] = variantObj{Kind: "single", Values: []string{val}}
		}
	}
	return out
}

// decodeLegacyDeps normalizes the "dependencies" field, which is a flat
// {name: hash} map in formats ≤3 (deptypes/virtuals unspecified, defaulted
// to the historical implicit build+link+run) and an array of
// {name, hash, parameters} records from format 4 onward.
func decodeLegacyDeps(raw json.RawMessage, version int) []depObj {
	if len(raw) == 0 {
		return nil
	}
	if version <= 3 {
		var flat map[string]string
		if err := json.Unmarshal(raw, &flat); err != nil {
			return nil
		}
		names := make([]string, 0, len(flat))
		for n := range flat {
			names = append(names, n)
		}
		sort.Strings(names)
		var out []depObj
		for _, n := range names {
			out = append(out, depObj{
				Name: n, Hash: flat[n],
				Parameters: &depParameters{DepTypes: []string{"build", "link", "run"}},
			})
		}
		return out
	}
	var arr []depObj
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil
	}
	return arr
}

// migrateCompilersToDeps implements the format-4-to-5 rule (spec.md §4.5):
// a node's "compiler" field becomes a direct build dependency on a
// synthetic compiler node, carrying the virtuals c/cxx/fortran. A
// synthetic node is appended once per distinct compiler string.
func migrateCompilersToDeps(nodes []nodeObj) []nodeObj {
	compilerHash := map[string]string{}
	var synthetic []nodeObj

	for i := range nodes {
		n := &nodes[i]
		if n.Annotations == nil || n.Annotations.Compiler == "" {
			continue
		}
		compiler := n.Annotations.Compiler
		hash, ok := compilerHash[compiler]
		if !ok {
			name, ver := splitCompilerString(compiler)
			hash = "synthetic-compiler-" + name + "-" + ver
			compilerHash[compiler] = hash
			synthetic = append(synthetic, nodeObj{Name: name, Version: ver, Hash: hash})
		}
		n.Dependencies = append(n.Dependencies, depObj{
			Name: compilerNameOf(compiler), Hash: hash,
			Parameters: &depParameters{DepTypes: []string{"build"}, Virtuals: []string{"c", "cxx", "fortran"}, Direct: true},
		})
	}
	return append(nodes, synthetic...)
}

func splitCompilerString(s string) (name, ver string) {
	if idx := strings.IndexByte(s, '@'); idx >= 0 {
		return s[:idx], s[idx+1:]
	}
	return s, ""
}

func compilerNameOf(s string) string {
	name, _ := splitCompilerString(s)
	return name
}
