// Package tarball builds and extracts the reproducible tar+gzip archives
// the buildcache stores one per concrete spec (spec.md §4.7/§6.4).
package tarball

import (
	"github.com/goccy/go-yaml"
	"github.com/pkg/errors"
)

// BuildInfoPath is the fixed member every tarball carries exactly one of,
// used both to locate the package prefix during extraction and to drive
// the relocation engine.
const BuildInfoPath = ".spack/binary_distribution"

// BuildInfo is the buildinfo record embedded as BuildInfoPath (spec.md
// §6.4). Field names match the YAML mapping keys the original Python
// implementation writes, which pkg/relocate and external tooling depend
// on verbatim.
type BuildInfo struct {
	BuildPath         string            `yaml:"buildpath"`
	SpackPrefix       string            `yaml:"spackprefix"`
	SbangInstallPath  string            `yaml:"sbang_install_path"`
	RelativePrefix    string            `yaml:"relative_prefix"`
	HardlinksDeduped  bool              `yaml:"hardlinks_deduped"`
	HashToPrefix      map[string]string `yaml:"hash_to_prefix"`
	RelocateBinaries  []string          `yaml:"relocate_binaries"`
	RelocateTextfiles []string          `yaml:"relocate_textfiles"`
	RelocateLinks     []string          `yaml:"relocate_links"`
}

// EncodeBuildInfo serializes b as the YAML mapping spec.md §6.4 specifies.
func EncodeBuildInfo(b *BuildInfo) ([]byte, error) {
	data, err := yaml.Marshal(b)
	if err != nil {
		return nil, errors.Wrap(err, "encoding buildinfo")
	}
	return data, nil
}

// DecodeBuildInfo parses the .spack/binary_distribution member's content.
func DecodeBuildInfo(data []byte) (*BuildInfo, error) {
	var b BuildInfo
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, errors.Wrap(err, "decoding buildinfo")
	}
	return &b, nil
}
