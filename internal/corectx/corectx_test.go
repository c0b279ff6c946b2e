package corectx

import (
	"testing"

	"gotest.tools/v3/assert"
)

func TestNewAppliesDefaults(t *testing.T) {
	c := New()
	assert.Equal(t, c.Concurrency, int64(defaultConcurrency))
	assert.Assert(t, c.Log != nil)
}

func TestMirrorLooksUpByNameOrDefault(t *testing.T) {
	c := New(
		WithMirror(Mirror{Name: "prod", URL: "https://cache.example/prod", Version: "v3"}),
		WithMirror(Mirror{Name: "staging", URL: "https://cache.example/staging", Version: "v3"}),
	)
	c.DefaultMirror = "prod"

	m, err := c.Mirror("")
	assert.NilError(t, err)
	assert.Equal(t, m.Name, "prod")

	m, err = c.Mirror("staging")
	assert.NilError(t, err)
	assert.Equal(t, m.URL, "https://cache.example/staging")

	_, err = c.Mirror("missing")
	assert.ErrorContains(t, err, "missing")
}

func TestBoolFromEnvEmptyIsFalse(t *testing.T) {
	t.Setenv("SPACKCORE_TEST_FLAG", "")
	assert.Equal(t, BoolFromEnv("SPACKCORE_TEST_FLAG"), false)
}

func TestBoolFromEnvParsesTrue(t *testing.T) {
	t.Setenv("SPACKCORE_TEST_FLAG", "true")
	assert.Equal(t, BoolFromEnv("SPACKCORE_TEST_FLAG"), true)
}
