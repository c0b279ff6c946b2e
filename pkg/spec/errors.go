package spec

import "github.com/pkg/errors"

// Algebra and parse error sentinels for the Spec DAG layer (spec.md §7).
var (
	ErrBadSpecString           = errors.New("bad spec string")
	ErrUnsatisfiableName        = errors.New("unsatisfiable name")
	ErrUnsatisfiableVersion      = errors.New("unsatisfiable version")
	ErrUnsatisfiableDependency   = errors.New("unsatisfiable dependency")
	ErrDuplicateDependency       = errors.New("duplicate dependency")
	ErrDuplicateArchitecture     = errors.New("duplicate architecture")
	ErrAmbiguousHash             = errors.New("ambiguous hash prefix")
	ErrInvalidHash               = errors.New("invalid hash")
	ErrSpecDeprecated            = errors.New("spec is deprecated")
	ErrSpliceError               = errors.New("splice error")
)
