package variant

import "github.com/pkg/errors"

// Sentinel errors for the variant parse and algebra layers of spec.md §7.
var (
	ErrReservedVariantValue  = errors.New("reserved variant value")
	ErrPropagationOnReserved = errors.New("propagation on reserved variant name")
	ErrUnsatisfiableVariant  = errors.New("unsatisfiable variant")
	ErrBadToken              = errors.New("bad variant token")
)
