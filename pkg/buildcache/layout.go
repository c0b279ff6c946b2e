package buildcache

import (
	"fmt"
	"path"
)

// LayoutVersion selects a mirror's on-disk/remote path convention (spec.md
// §4.6).
type LayoutVersion int

const (
	LayoutV2 LayoutVersion = 2 // legacy
	LayoutV3 LayoutVersion = 3 // current
)

// layoutSentinelPath is the sentinel file at the mirror root declaring the
// active layout version (spec.md §4.6, §6.3).
const layoutSentinelPath = "layout.json"

// LayoutSentinel is the content of layout.json.
type LayoutSentinel struct {
	Version int `json:"version"`
}

// V2 path builders (spec.md §4.6).

func v2SpecPath(dagHash string) string {
	return path.Join("build_cache", dagHash+".spec.json")
}

func v2SpecSigPath(dagHash string) string {
	return v2SpecPath(dagHash) + ".sig"
}

func v2TarballPath(archStr, compiler, name, dagHash string) string {
	return path.Join("build_cache", archStr, compiler, name, dagHash+".spack")
}

func v2KeyIndexPath() string {
	return path.Join("build_cache", "_pgp", "index.json")
}

func v2IndexPath() string {
	return path.Join("build_cache", "index.json")
}

func v2IndexHashPath() string {
	return v2IndexPath() + ".hash"
}

// V3 path builders (spec.md §4.6, §6.3).

// blobPath returns the content-addressed blob path for a sha256 digest
// hex string (without the "sha256:" prefix).
func blobPath(digestHex string) (string, error) {
	if len(digestHex) < 2 {
		return "", fmt.Errorf("buildcache: malformed digest %q", digestHex)
	}
	return path.Join("v3", "blobs", "sha256", digestHex[:2], digestHex), nil
}

func specManifestPath(name, dagHash string) string {
	return path.Join("v3", "manifests", "spec", name, dagHash+".spec.manifest.json")
}

func tarballManifestPath(name, dagHash string) string {
	return path.Join("v3", "manifests", "tarball", name, dagHash+".tarball.manifest.json")
}

func indexManifestPath() string {
	return path.Join("v3", "manifests", "index", "index.manifest.json")
}

func keyManifestPath(fingerprint string) string {
	return path.Join("v3", "manifests", "keys", fingerprint+".key.manifest.json")
}

func keysIndexManifestPath() string {
	return path.Join("v3", "manifests", "keys", "keys.manifest.json")
}
