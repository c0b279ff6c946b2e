package specfile

import "github.com/pkg/errors"

// Sentinel errors for the specfile codec layer (spec.md §7).
var (
	ErrInvalidSpecfileFormat    = errors.New("invalid specfile format")
	ErrUnsupportedSpecfileVersion = errors.New("unsupported specfile version")
)
