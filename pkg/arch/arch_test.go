package arch

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestMicroarchAncestry(t *testing.T) {
	assert.Check(t, IsAncestorOf("x86_64", "skylake"))
	assert.Check(t, !IsAncestorOf("skylake", "x86_64"))
	assert.Check(t, IsAncestorOf("zen2", "zen2"))
	assert.Check(t, !SameFamily("zen2", "graviton2"))
}

func TestTargetRangeContains(t *testing.T) {
	tgt, err := ParseTarget("haswell:skylake")
	assert.NilError(t, err)
	assert.Check(t, tgt.Contains("broadwell"))
	assert.Check(t, !tgt.Contains("zen2"))
	assert.Check(t, !tgt.Contains("nehalem"))
}

func TestTargetIntersectNarrows(t *testing.T) {
	a, err := ParseTarget("nehalem:icelake")
	assert.NilError(t, err)
	b, err := ParseTarget("haswell:skylake")
	assert.NilError(t, err)

	merged, ok := a.Intersect(b)
	assert.Check(t, ok)
	assert.Check(t, merged.Contains("broadwell"))
	assert.Check(t, !merged.Contains("nehalem"))
	assert.Check(t, !merged.Contains("icelake"))
}

func TestTargetIntersectDisjointFamilies(t *testing.T) {
	a, err := ParseTarget("haswell")
	assert.NilError(t, err)
	b, err := ParseTarget("zen2")
	assert.NilError(t, err)
	_, ok := a.Intersect(b)
	assert.Check(t, !ok)
}

func TestArchSpecConstrainFillsMissing(t *testing.T) {
	a, err := Parse("-linux-haswell")
	assert.NilError(t, err)
	o, err := Parse("linux-linux-")
	assert.NilError(t, err)
	// Only platform is exercised here; OS already matches.
	o.OS = "linux"

	changed, err := a.Constrain(o)
	assert.NilError(t, err)
	assert.Check(t, changed)
	assert.Equal(t, a.Platform, "linux")
}

func TestArchSpecConstrainConflict(t *testing.T) {
	a, err := Parse("linux-linux-haswell")
	assert.NilError(t, err)
	o, err := Parse("darwin-linux-haswell")
	assert.NilError(t, err)
	_, err = a.Constrain(o)
	assert.ErrorIs(t, err, ErrUnsatisfiableArchitecture)
}

func TestArchSpecConcrete(t *testing.T) {
	a, err := Parse("linux-linux-skylake")
	assert.NilError(t, err)
	assert.Check(t, a.IsConcrete())

	abstract, err := Parse("linux-linux-haswell:skylake")
	assert.NilError(t, err)
	assert.Check(t, !abstract.IsConcrete())
}
