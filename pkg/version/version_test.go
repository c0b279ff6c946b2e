package version

import (
	"testing"

	"gotest.tools/v3/assert"
)

func mustStd(t *testing.T, s string) Standard {
	t.Helper()
	v, err := ParseStandard(s)
	assert.NilError(t, err)
	return v
}

func TestStandardCompare(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.2.3", "1.2.3", 0},
		{"1.2.3", "1.2.4", -1},
		{"1.2", "1.2.0", -1},
		{"2.0", "1.9.9", 1},
		{"1.0rc1", "1.0", -1},
		{"1.0alpha1", "1.0beta1", -1},
		{"1.0", "develop", -1},
		{"develop", "main", -1},
	}
	for _, c := range cases {
		a, b := mustStd(t, c.a), mustStd(t, c.b)
		got := a.Compare(b)
		switch {
		case c.want < 0:
			assert.Check(t, got < 0, "%s vs %s: got %d", c.a, c.b, got)
		case c.want > 0:
			assert.Check(t, got > 0, "%s vs %s: got %d", c.a, c.b, got)
		default:
			assert.Check(t, got == 0, "%s vs %s: got %d", c.a, c.b, got)
		}
	}
}

func TestNextPrevRoundTrip(t *testing.T) {
	for _, s := range []string{"1.2.3", "2", "1.2rc1", "master"} {
		v := mustStd(t, s)
		n := v.Next()
		assert.Check(t, v.Less(n))
		assert.Check(t, n.Prev().Equal(v), "prev(next(%s)) = %s, want %s", s, n.Prev(), s)
	}
}

// S3 — range intersection, per spec.md §8 scenario S3.
func TestRangeIntersection(t *testing.T) {
	lo1, hi1 := mustStd(t, "0"), mustStd(t, "2.5").Next()
	r1, err := NewRange(lo1, hi1)
	assert.NilError(t, err)

	lo2, hi2 := mustStd(t, "2.1"), mustStd(t, "3").Next()
	r2, err := NewRange(lo2, hi2)
	assert.NilError(t, err)

	ix, ok := r1.Intersect(r2)
	assert.Check(t, ok)
	assert.Equal(t, ix.Lo.String(), "2.1")
	assert.Equal(t, ix.Hi.Prev().String(), "2.5")
}

func TestListCanonicalization(t *testing.T) {
	var l List
	l.Insert(ElemStandard(mustStd(t, "1.0")))
	l.Insert(ElemStandard(mustStd(t, "1.0"))) // duplicate, no-op
	r, err := NewRange(mustStd(t, "2.0"), mustStd(t, "3.0"))
	assert.NilError(t, err)
	l.Insert(ElemRange(r))

	assert.Equal(t, len(l.Elements), 2)
	union := l.Union(l)
	assert.Check(t, union.Equal(l), "L union L == L")
}

func TestListInsertCoalescesAdjacent(t *testing.T) {
	var l List
	r1, _ := NewRange(mustStd(t, "1.0"), mustStd(t, "2.0"))
	r2, _ := NewRange(mustStd(t, "2.0"), mustStd(t, "3.0"))
	l.Insert(ElemRange(r1))
	l.Insert(ElemRange(r2))
	assert.Equal(t, len(l.Elements), 1)
	merged := l.Elements[0].Range()
	assert.Check(t, merged.Lo.Equal(mustStd(t, "1.0")))
	assert.Check(t, merged.Hi.Equal(mustStd(t, "3.0")))
}

func TestParseListAndSatisfies(t *testing.T) {
	constraint, err := ParseList("2.1:2.5")
	assert.NilError(t, err)

	inside, err := ParseVersion("2.3")
	assert.NilError(t, err)

	ok, err := Satisfies(inside, constraint)
	assert.NilError(t, err)
	assert.Check(t, ok)

	outside, err := ParseVersion("2.6")
	assert.NilError(t, err)
	ok, err = Satisfies(outside, constraint)
	assert.NilError(t, err)
	assert.Check(t, !ok)
}

func TestGitRefSatisfiesRange(t *testing.T) {
	g, err := ParseGitRef("abc123")
	assert.NilError(t, err)
	g.AttachResolver("mypkg", func(pkg, ref string) (Standard, int, error) {
		return mustStd(t, "1.2.0"), 3, nil
	})

	v := FromGitRef(&g)
	rng, err := ParseList("1.0:2.0")
	assert.NilError(t, err)

	ok, err := Satisfies(v, rng)
	assert.NilError(t, err)
	assert.Check(t, ok)

	std, err := ParseVersion("1.2.0")
	assert.NilError(t, err)
	eq, err := Equal(v, std)
	assert.NilError(t, err)
	assert.Check(t, !eq, "git ref must never equal a standard version")
}

func TestIntersectsSymmetric(t *testing.T) {
	a, err := ParseList("1.0:3.0")
	assert.NilError(t, err)
	b, err := ParseList("2.0:4.0")
	assert.NilError(t, err)

	ab, err := Intersects(a, b)
	assert.NilError(t, err)
	ba, err := Intersects(b, a)
	assert.NilError(t, err)
	assert.Equal(t, ab, ba)
	assert.Check(t, ab)
}

func TestConstrainEmptyFails(t *testing.T) {
	a, err := ParseList("1.0:2.0")
	assert.NilError(t, err)
	b, err := ParseList("3.0:4.0")
	assert.NilError(t, err)

	_, err = Constrain(&a, b)
	assert.ErrorContains(t, err, "no intersection")
}
