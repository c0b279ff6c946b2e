package version

import "github.com/pkg/errors"

// Sentinel errors for the parse and algebra layers of spec.md §7.
var (
	ErrBadVersionString = errors.New("bad version string")
	ErrEmptyRange       = errors.New("empty range")
	ErrUnresolvedGitRef = errors.New("git-ref version has no resolver attached")
	ErrIncomparable     = errors.New("versions are not comparable")
	ErrNoIntersection   = errors.New("no intersection between versions")
)
