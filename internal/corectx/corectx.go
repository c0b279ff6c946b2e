// Package corectx replaces the process-wide singletons the source
// implementation keeps for its package repository, install database, and
// configuration stack (spec.md §9 "Global mutable state") with one
// explicit Context value, built once at process startup and threaded
// through every operation that consults it.
package corectx

import (
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Mirror names one buildcache mirror this process can push to or fetch
// from. Multiple mirrors may be configured; operations choose among them
// by Name.
type Mirror struct {
	Name    string
	URL     string
	Version string // "v2" or "v3" layout, per spec.md §4.6/§6.3
}

// Context carries the process-wide facts every buildcache/relocation
// operation needs but spec.md's source treats as ambient: the active
// mirrors, a signing key reference, the push/fetch concurrency limit, and
// the configured logger. Construct one with New at startup; tests
// construct a fresh one with NewForTest per case rather than sharing a
// package-level instance.
type Context struct {
	Mirrors        []Mirror
	DefaultMirror  string
	SigningKeyPath string
	Concurrency    int64
	Log            *logrus.Logger
}

// Option configures a Context built by New.
type Option func(*Context)

// WithMirror appends m to the Context's mirror list.
func WithMirror(m Mirror) Option {
	return func(c *Context) { c.Mirrors = append(c.Mirrors, m) }
}

// WithSigningKeyPath sets the path to the key used to sign pushed specfiles.
func WithSigningKeyPath(path string) Option {
	return func(c *Context) { c.SigningKeyPath = path }
}

// WithConcurrency overrides the push/fetch pipeline's worker pool size.
func WithConcurrency(n int64) Option {
	return func(c *Context) { c.Concurrency = n }
}

// WithLogger overrides the default logrus logger.
func WithLogger(l *logrus.Logger) Option {
	return func(c *Context) { c.Log = l }
}

// defaultConcurrency matches pkg/buildcache.Pipeline's own fallback, so a
// Context built without an explicit concurrency still agrees with the
// pipeline's zero-value behavior.
const defaultConcurrency = 4

// New builds a Context from opts, filling in a default logger and
// concurrency limit when not overridden. This is the single construction
// point cmd/spackcore and cmd/spack-buildcache call at startup; every
// operation downstream receives the resulting value rather than reading
// process-wide state itself.
func New(opts ...Option) *Context {
	c := &Context{
		Concurrency: defaultConcurrency,
		Log:         defaultLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewForTest builds a minimal Context suitable for a single test case: no
// mirrors, default concurrency, and a logger discarding output unless the
// caller overrides it with opts.
func NewForTest(opts ...Option) *Context {
	quiet := defaultLogger()
	quiet.SetOutput(io.Discard)
	return New(append([]Option{WithLogger(quiet)}, opts...)...)
}

func defaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return l
}

// Mirror looks up a configured mirror by name, falling back to
// DefaultMirror when name is empty.
func (c *Context) Mirror(name string) (Mirror, error) {
	if name == "" {
		name = c.DefaultMirror
	}
	for _, m := range c.Mirrors {
		if m.Name == name {
			return m, nil
		}
	}
	return Mirror{}, errors.Errorf("corectx: no mirror configured with name %q", name)
}

// BoolFromEnv parses name's environment variable as a bool, matching
// cmd/retagger's boolFromEnv: empty is false, a set-but-invalid value
// panics rather than silently defaulting, since that indicates a
// misconfigured deployment rather than a normal absence.
func BoolFromEnv(name string) bool {
	v := os.Getenv(name)
	if v == "" {
		return false
	}
	vv, err := strconv.ParseBool(v)
	if err != nil {
		panic(errors.Errorf("corectx: invalid value for %s: %s", name, v))
	}
	return vv
}
