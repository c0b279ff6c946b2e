package arch

import "github.com/pkg/errors"

// Sentinel errors for the architecture-tuple layer of spec.md §7.
var (
	ErrBadTarget                = errors.New("bad target string")
	ErrUnsatisfiableArchitecture = errors.New("unsatisfiable architecture")
)
