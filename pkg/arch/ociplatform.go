package arch

import (
	"github.com/containerd/containerd/platforms"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// ToOCIPlatform converts a concrete ArchSpec's (os, target) pair to an
// OCI platform tuple, used at the pkg/buildcache/ocidist boundary when a
// spec's manifest is pushed as an OCI image manifest (spec.md §4.6 OCI
// adapter). Platform (spack's notion of vendor/OS family) does not map
// onto OCI's (os, architecture) model directly; only OS and the target's
// concrete microarchitecture's generic family are carried across.
func (a ArchSpec) ToOCIPlatform() ocispec.Platform {
	return ocispec.Platform{
		OS:           a.OS,
		Architecture: genericArchFamily(a.Target.Single()),
	}
}

// FromOCIPlatform builds an ArchSpec from an OCI platform tuple. Platform
// is left empty since OCI carries no equivalent axis; Target is set to
// the OCI architecture string verbatim, which downstream microarch
// lookups treat as a generic family name rather than a specific
// microarchitecture.
func FromOCIPlatform(p ocispec.Platform) (ArchSpec, error) {
	norm := platforms.Normalize(p)
	tgt, err := ParseTarget(norm.Architecture)
	if err != nil {
		return ArchSpec{}, err
	}
	return ArchSpec{OS: norm.OS, Target: tgt}, nil
}

// genericArchFamily maps a concrete microarchitecture name to the OCI
// architecture string of its root family (e.g. "icelake" -> "amd64",
// "graviton2" -> "arm64"), since OCI has no notion of microarchitecture
// beyond the generic machine architecture. A name outside Family is its
// own root and is returned unchanged.
func genericArchFamily(microarch string) string {
	switch rootFamily(microarch) {
	case "x86_64":
		return "amd64"
	case "aarch64":
		return "arm64"
	case "":
		return ""
	default:
		return rootFamily(microarch)
	}
}
