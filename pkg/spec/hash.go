package spec

import (
	"crypto/sha256"
	"encoding/json"
	"sort"

	"github.com/nscaledev/spackcore/pkg/variant"
)

// nodeRecord is the canonical JSON shape hashed for one DAG node (spec.md
// §4.4 "DAG hash computation").
type nodeRecord struct {
	Name       string            `json:"name"`
	Namespace  string            `json:"namespace,omitempty"`
	Version    string            `json:"version"`
	Arch       string            `json:"arch,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
	Deps       []depRecord       `json:"dependencies,omitempty"`
	BuildSpec  string            `json:"build_spec,omitempty"`
}

type depRecord struct {
	Name     string   `json:"name"`
	Hash     string   `json:"hash"`
	DepTypes []string `json:"deptypes"`
	Virtuals []string `json:"virtuals,omitempty"`
	Direct   bool     `json:"direct,omitempty"`
}

// ComputeHash walks s in preorder over the link/run/direct-build subgraph,
// builds a canonical JSON record per node, and SHA-256-hashes it, base-32
// encoding the digest (spec.md §4.4). Each node's Hash field is stamped.
// When a node is spliced (BuildSpec != nil and the node itself was not
// rehashed from scratch), the last 7 characters are overwritten with the
// last 7 of build_spec's hash — the "frankenhash" — by Splice instead of
// this function.
func (s *Spec) ComputeHash() (string, error) {
	memo := map[*Spec]string{}
	return s.computeHash(memo)
}

func (s *Spec) computeHash(memo map[*Spec]string) (string, error) {
	if h, ok := memo[s]; ok {
		return h, nil
	}

	rec := nodeRecord{
		Name:      s.Name,
		Namespace: s.Namespace,
		Version:   s.Versions.String(),
		Arch:      s.Arch.String(),
	}
	rec.Parameters = canonicalParameters(s.Variants)

	var deps []depRecord
	for _, e := range s.Dependencies {
		hashWorthy := e.DepTypes&DepTypeFlags(LinkRunTest) != 0 || e.Direct
		if !hashWorthy {
			continue
		}
		childHash, err := e.Child.computeHash(memo)
		if err != nil {
			return "", err
		}
		deps = append(deps, depRecord{
			Name:     e.Child.Name,
			Hash:     childHash,
			DepTypes: depTypeNames(e.DepTypes),
			Virtuals: e.virtualsSorted(),
			Direct:   e.Direct,
		})
	}
	sort.Slice(deps, func(i, j int) bool { return deps[i].Name < deps[j].Name })
	rec.Deps = deps

	if s.BuildSpec != nil {
		bsHash, err := s.BuildSpec.computeHash(map[*Spec]string{})
		if err != nil {
			return "", err
		}
		rec.BuildSpec = bsHash
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	hash := base32Encode(sum[:])
	memo[s] = hash
	s.Hash = hash
	return hash, nil
}

func depTypeNames(f DepTypeFlags) []string {
	var out []string
	for _, t := range []struct {
		flag DepType
		name string
	}{{DepBuild, "build"}, {DepLink, "link"}, {DepRun, "run"}, {DepTest, "test"}} {
		if f.Has(t.flag) {
			out = append(out, t.name)
		}
	}
	return out
}

func canonicalParameters(m variant.Map) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for name, v := range m {
		out[name] = v.String()
	}
	return out
}

const base32Alphabet = "abcdefghijklmnopqrstuvwxyz234567"

// base32Encode is a lowercase, unpadded base-32 encoder matching the
// "base-32 encoded" hash form of spec.md §4.4.
func base32Encode(data []byte) string {
	var out []byte
	var bits uint
	var acc uint32
	for _, b := range data {
		acc = acc<<8 | uint32(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			out = append(out, base32Alphabet[(acc>>bits)&0x1f])
		}
	}
	if bits > 0 {
		out = append(out, base32Alphabet[(acc<<(5-bits))&0x1f])
	}
	return string(out)
}

// HashPrefixMatches reports whether s's hash begins with prefix, used for
// "/hash-prefix" disambiguation (spec.md §4.4's abstract hash-prefix
// reference resolves against a candidate set; AmbiguousHash if more than
// one candidate matches).
func (s *Spec) HashPrefixMatches(prefix string) bool {
	return len(s.Hash) >= len(prefix) && s.Hash[:len(prefix)] == prefix
}

// DisambiguateHash resolves an abstract hash prefix against a set of
// candidate specs, failing with ErrAmbiguousHash if more than one matches
// and ErrInvalidHash if none do.
func DisambiguateHash(prefix string, candidates []*Spec) (*Spec, error) {
	var matches []*Spec
	for _, c := range candidates {
		if c.HashPrefixMatches(prefix) {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 0:
		return nil, ErrInvalidHash
	case 1:
		return matches[0], nil
	default:
		return nil, ErrAmbiguousHash
	}
}
