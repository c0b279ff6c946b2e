package spec

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"gotest.tools/v3/assert"

	"github.com/nscaledev/spackcore/pkg/arch"
	"github.com/nscaledev/spackcore/pkg/variant"
	"github.com/nscaledev/spackcore/pkg/version"
)

// S1 — parse and format round-trip, per spec.md §8 scenario S1: formatting
// a parsed spec and re-parsing it reaches a stable fixed point.
func TestScenarioS1ParseFormatRoundTrip(t *testing.T) {
	input := `mpileaks@=2.3 +shared cflags="-O2 -g" ^callpath@=1.0 ^[virtuals=mpi] mpich@=3.2`
	s, err := Parse(input)
	assert.NilError(t, err)
	assert.Equal(t, s.Name, "mpileaks")
	assert.Check(t, s.Variants["shared"].BoolValue())

	out1, err := s.FormatTree(DefaultTemplate, false)
	assert.NilError(t, err)

	reparsed, err := Parse(out1)
	assert.NilError(t, err)

	out2, err := reparsed.FormatTree(DefaultTemplate, false)
	assert.NilError(t, err)
	assert.Equal(t, out1, out2, "format must be a fixed point after one round trip")

	h1, err := s.ComputeHash()
	assert.NilError(t, err)
	h2, err := reparsed.ComputeHash()
	assert.NilError(t, err)
	assert.Equal(t, h1, h2)
}

// S2 — variant intersection, per spec.md §8 scenario S2.
func TestScenarioS2VariantIntersection(t *testing.T) {
	a, err := Parse("hdf5+mpi+shared")
	assert.NilError(t, err)
	b, err := Parse("hdf5 foo=bar")
	assert.NilError(t, err)

	changed, err := a.Constrain(b)
	assert.NilError(t, err)
	assert.Check(t, changed)
	assert.Check(t, a.Variants["mpi"].BoolValue())
	assert.Check(t, a.Variants["shared"].BoolValue())
	assert.Equal(t, a.Variants["foo"].SingleValue(), "bar")

	notMPI, err := Parse("hdf5~mpi")
	assert.NilError(t, err)
	_, err = a.Constrain(notMPI)
	assert.ErrorIs(t, err, variant.ErrUnsatisfiableVariant)
}

// S3 — range intersection (here via full specs, to also exercise name
// matching), per spec.md §8 scenario S3.
func TestScenarioS3RangeIntersection(t *testing.T) {
	a, err := Parse("libelf@0:2.5")
	assert.NilError(t, err)
	b, err := Parse("libelf@2.1:3")
	assert.NilError(t, err)

	_, err = a.Constrain(b)
	assert.NilError(t, err)
	assert.Equal(t, a.Versions.String(), "2.1:2.5")
}

// S4 — splice preserves the tail of the hash, per spec.md §8 scenario S4.
func TestScenarioS4SplicePreservesHashTail(t *testing.T) {
	mpileaks := New("mpileaks")
	mpich := New("mpich")
	mpich.Versions = mustVersion(t, "3.2")
	_, err := mpileaks.AddDependency(mpich, DepTypeFlags(DepBuild|DepLink|DepRun), nil, false, nil)
	assert.NilError(t, err)

	h1, err := mpileaks.ComputeHash()
	assert.NilError(t, err)
	mpichHash1 := mpich.Hash

	newMpich := New("mpich")
	newMpich.Versions = mustVersion(t, "4.0")
	h2, err := newMpich.ComputeHash()
	assert.NilError(t, err)

	spliced, err := mpileaks.Splice(newMpich, true)
	assert.NilError(t, err)

	assert.Check(t, spliced.Hash[len(spliced.Hash)-7:] == h1[len(h1)-7:], "root hash tail preserved")
	assert.Check(t, spliced.BuildSpec != nil)

	var splicedMpichHash string
	_ = spliced.Traverse(TraverseOptions{Order: Preorder, Cover: CoverNodes}, func(n *Spec) error {
		if n.Name == "mpich" {
			splicedMpichHash = n.Hash
		}
		return nil
	})
	assert.Check(t, splicedMpichHash[len(splicedMpichHash)-7:] == h2[len(h2)-7:], "spliced subtree hash tail matches replacement")
	assert.Check(t, mpichHash1 != "")
}

func mustVersion(t *testing.T, v string) version.Version {
	t.Helper()
	parsed, err := version.ParseVersion(v)
	assert.NilError(t, err)
	return parsed
}

func TestIntersectsSymmetric(t *testing.T) {
	a, err := Parse("hdf5@1.0:2.0")
	assert.NilError(t, err)
	b, err := Parse("hdf5@1.5:3.0")
	assert.NilError(t, err)

	ab, err := a.Intersects(b)
	assert.NilError(t, err)
	ba, err := b.Intersects(a)
	assert.NilError(t, err)
	assert.Equal(t, ab, ba)
	assert.Check(t, ab)
}

func TestConcreteIdentitySatisfiesSelf(t *testing.T) {
	s, err := Parse("pkg@=1.0")
	assert.NilError(t, err)
	s.Arch.Platform, s.Arch.OS = "linux", "linux"
	tgt, err := arch.ParseTarget("haswell")
	assert.NilError(t, err)
	s.Arch.Target = tgt
	_, err = s.ComputeHash()
	assert.NilError(t, err)

	ok, err := s.Satisfies(s)
	assert.NilError(t, err)
	assert.Check(t, ok)
}

// Per spec.md scenario S2: constraining hdf5+mpi+shared with hdf5 foo=bar
// must leave the single-valued "foo" variant's value set exactly {bar},
// diffed structurally (go-cmp) rather than field-by-field, since a Variant
// carries a set rather than a single scalar.
func TestScenarioS2VariantIntersectionStructuralDiff(t *testing.T) {
	a, err := Parse("hdf5+mpi+shared")
	assert.NilError(t, err)
	b, err := Parse("hdf5 foo=bar")
	assert.NilError(t, err)

	_, err = a.Variants.Constrain(b.Variants)
	assert.NilError(t, err)

	got := a.Variants["foo"].SortedValues()
	want := []string{"bar"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("foo variant values mismatch (-want +got):\n%s", diff)
	}
}
