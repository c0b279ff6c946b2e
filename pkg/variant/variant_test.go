package variant

import (
	"testing"

	"gotest.tools/v3/assert"
	"k8s.io/apimachinery/pkg/util/sets"
)

func TestBoolSatisfiesEquality(t *testing.T) {
	a, err := NewBool("shared", true, false)
	assert.NilError(t, err)
	b, err := NewBool("shared", true, false)
	assert.NilError(t, err)
	assert.Check(t, a.Satisfies(b))

	c, err := NewBool("shared", false, false)
	assert.NilError(t, err)
	assert.Check(t, !a.Satisfies(c))
}

func TestMultiSatisfiesSubset(t *testing.T) {
	present, err := NewMulti("fabrics", []string{"verbs", "ofi", "mpi"}, false)
	assert.NilError(t, err)
	required, err := NewMulti("fabrics", []string{"verbs", "ofi"}, false)
	assert.NilError(t, err)
	assert.Check(t, present.Satisfies(required), "present superset must satisfy required subset")

	tooMuch, err := NewMulti("fabrics", []string{"verbs", "ofi", "tcp"}, false)
	assert.NilError(t, err)
	assert.Check(t, !present.Satisfies(tooMuch))
}

func TestWildcardMatchesAnyNonEmpty(t *testing.T) {
	present, err := NewSingle("compiler", "gcc", false)
	assert.NilError(t, err)
	_, err = NewSingle("compiler", Wildcard, false)
	assert.ErrorIs(t, err, ErrReservedVariantValue)
	wild := Variant{Name: "compiler", Kind: KindSingle, Values: sets.New(Wildcard)}
	assert.Check(t, present.Satisfies(wild))
}

func TestReservedNameCannotPropagate(t *testing.T) {
	_, err := NewBool("arch", true, true)
	assert.ErrorIs(t, err, ErrPropagationOnReserved)
}

func TestMapConstrainIntersectsAndFails(t *testing.T) {
	m := Map{}
	foo, _ := NewSingle("foo", "bar", false)
	m["foo"] = foo

	other := Map{}
	fooOther, _ := NewSingle("foo", "baz", false)
	other["foo"] = fooOther

	_, err := m.Constrain(other)
	assert.ErrorIs(t, err, ErrUnsatisfiableVariant)
}

// S2 — variant intersection, per spec.md §8 scenario S2.
func TestScenarioS2VariantIntersection(t *testing.T) {
	m := Map{}
	for _, name := range []string{"mpi", "shared"} {
		v, err := NewBool(name, true, false)
		assert.NilError(t, err)
		m[name] = v
	}
	foobar, err := NewSingle("foo", "bar", false)
	assert.NilError(t, err)
	other := Map{"foo": foobar}

	changed, err := m.Constrain(other)
	assert.NilError(t, err)
	assert.Check(t, changed)
	assert.Equal(t, m["foo"].SingleValue(), "bar")

	notMPI := Map{}
	v, err := NewBool("mpi", false, false)
	assert.NilError(t, err)
	notMPI["mpi"] = v
	_, err = m.Constrain(notMPI)
	assert.ErrorIs(t, err, ErrUnsatisfiableVariant)
}

func TestParseBoolPropagating(t *testing.T) {
	v, err := ParseBool("++mpi")
	assert.NilError(t, err)
	assert.Check(t, v.Propagate)
	assert.Check(t, v.BoolValue())
}

func TestParseKeyValueMulti(t *testing.T) {
	v, err := ParseKeyValue("fabrics=verbs,ofi")
	assert.NilError(t, err)
	assert.Equal(t, v.Kind, KindMulti)
	assert.Check(t, v.Values.Has("verbs") && v.Values.Has("ofi"))
}

func TestFlagMapConstrainWeakensPropagation(t *testing.T) {
	fm := FlagMap{CFlags: {{Value: "-O2", Propagate: true}}}
	other := FlagMap{CFlags: {{Value: "-O2", Propagate: false}}}
	changed := fm.Constrain(other)
	assert.Check(t, changed)
	assert.Check(t, !fm[CFlags][0].Propagate, "non-propagating request weakens propagation")
}

func TestFlagMapConstrainPreservesOrder(t *testing.T) {
	fm := FlagMap{CFlags: {{Value: "-I/a"}, {Value: "-I/b"}}}
	other := FlagMap{CFlags: {{Value: "-I/c"}}}
	fm.Constrain(other)
	var vals []string
	for _, f := range fm[CFlags] {
		vals = append(vals, f.Value)
	}
	assert.DeepEqual(t, vals, []string{"-I/a", "-I/b", "-I/c"})
}
