// Package relocate rewrites an extracted install prefix's text files,
// binaries, and symlinks from their original ("build-time") prefixes to
// the prefixes of the store they were actually installed into (spec.md
// §4.8).
package relocate

import "github.com/pkg/errors"

// Sentinel errors for the relocation layer (spec.md §7).
var (
	// ErrNewLayoutIncompatible is returned when a tarball predates
	// hash_to_prefix (spec.md §6.4) and so carries no information this
	// engine can use to construct a prefix map.
	ErrNewLayoutIncompatible = errors.New("relocate: tarball predates hash_to_prefix, incompatible layout")
	ErrElfPatchFailure       = errors.New("relocate: ELF patch failure")
	ErrMachoPatchFailure     = errors.New("relocate: Mach-O patch failure")
	ErrSymlinkRelocation     = errors.New("relocate: symlink relocation failure")
	// ErrPrefixTooLong is returned by length-preserving binary
	// replacement when a literal in-place substitution does not fit and
	// the caller has not requested ELF/Mach-O header patching.
	ErrPrefixTooLong = errors.New("relocate: new prefix longer than old prefix in binary content")
)
