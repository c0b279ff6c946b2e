package specfile

import (
	"encoding/json"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/nscaledev/spackcore/pkg/spec"
)

func buildConcreteSpec(t *testing.T) *spec.Spec {
	t.Helper()
	mpileaks, err := spec.Parse("mpileaks@=2.3 +shared")
	assert.NilError(t, err)
	callpath, err := spec.Parse("callpath@=1.0")
	assert.NilError(t, err)
	_, err = mpileaks.AddDependency(callpath, spec.DepTypeFlags(spec.DepBuild|spec.DepLink|spec.DepRun), nil, false, nil)
	assert.NilError(t, err)
	_, err = mpileaks.ComputeHash()
	assert.NilError(t, err)
	return mpileaks
}

// Round-trip property: decode(encode(s)) reconstructs a spec with the same
// dag hash (spec.md §8 testable property 1).
func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := buildConcreteSpec(t)

	data, err := Encode(s)
	assert.NilError(t, err)

	decoded, err := Decode(data)
	assert.NilError(t, err)

	assert.Equal(t, decoded.Name, "mpileaks")
	assert.Check(t, decoded.Variants["shared"].BoolValue())
	assert.Equal(t, len(decoded.Dependencies), 1)
	assert.Equal(t, decoded.Dependencies[0].Child.Name, "callpath")

	h1, err := s.ComputeHash()
	assert.NilError(t, err)
	h2, err := decoded.ComputeHash()
	assert.NilError(t, err)
	assert.Equal(t, h1, h2)
}

func TestEncodeWritesCurrentFormatVersion(t *testing.T) {
	s := buildConcreteSpec(t)
	data, err := Encode(s)
	assert.NilError(t, err)

	var doc document
	assert.NilError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, doc.Spec.Meta.Version, CurrentFormatVersion)
}

// Format 1 compatibility: a flat {name: node} document with a flat
// {depname: hash} dependency map must still decode (spec.md §4.5).
func TestDecodeFormat1(t *testing.T) {
	input := []byte(`{
		"mpileaks": {"version": "2.3", "dependencies": {"callpath": "abc1234"}},
		"callpath": {"version": "1.0", "hash": "abc1234"}
	}`)

	s, err := Decode(input)
	assert.NilError(t, err)
	assert.Equal(t, s.Name, "mpileaks")
	assert.Equal(t, len(s.Dependencies), 1)
	assert.Equal(t, s.Dependencies[0].Child.Name, "callpath")
}

// Format 4 compatibility: a per-node "compiler" field migrates to a direct
// build dependency with virtuals c/cxx/fortran (spec.md §4.5).
func TestDecodeFormat4CompilerMigration(t *testing.T) {
	input := []byte(`{
		"spec": {
			"_meta": {"version": 4},
			"nodes": [
				{"name": "mpileaks", "version": "2.3", "hash": "root1", "compiler": "gcc@9.1.0", "dependencies": []}
			]
		}
	}`)

	s, err := Decode(input)
	assert.NilError(t, err)
	assert.Equal(t, s.Name, "mpileaks")
	assert.Equal(t, len(s.Dependencies), 1)
	edge := s.Dependencies[0]
	assert.Equal(t, edge.Child.Name, "gcc")
	assert.Check(t, edge.Direct)
	assert.Check(t, edge.ProvidesVirtual("c"))
	assert.Check(t, edge.ProvidesVirtual("cxx"))
	assert.Check(t, edge.ProvidesVirtual("fortran"))
}

func TestClearSignEnvelopeUnwraps(t *testing.T) {
	s := buildConcreteSpec(t)
	plain, err := Encode(s)
	assert.NilError(t, err)

	wrapped := wrapClearSign("SHA256", plain)
	wrapped = append(wrapped, []byte("-----BEGIN PGP SIGNATURE-----\nfakesigdata\n-----END PGP SIGNATURE-----\n")...)

	decoded, err := Decode(wrapped)
	assert.NilError(t, err)
	assert.Equal(t, decoded.Name, "mpileaks")
}

func TestUnsupportedVersionRejected(t *testing.T) {
	input := []byte(`{"spec": {"_meta": {"version": 99}, "nodes": []}}`)
	_, err := Decode(input)
	assert.ErrorIs(t, err, ErrUnsupportedSpecfileVersion)
}
