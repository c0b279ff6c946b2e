package buildcache

import (
	"encoding/json"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

// MediaType names one of the record kinds a manifest's "data" array can
// hold (spec.md §6.3).
type MediaType string

const (
	MediaTypeSpec            MediaType = "application/vnd.spack.spec"
	MediaTypeTarball         MediaType = "application/vnd.spack.tarball"
	MediaTypeBuildcacheIndex MediaType = "application/vnd.spack.buildcache-index"
	MediaTypeKey             MediaType = "application/vnd.spack.key"
	MediaTypeKeyIndex        MediaType = "application/vnd.spack.key-index"
)

// Compression names a record's compression scheme.
type Compression string

const (
	CompressionGzip Compression = "gzip"
	CompressionNone Compression = "none"
)

// ManifestVersion is the manifest schema version this package writes and
// accepts (spec.md §6.3).
const ManifestVersion = 3

// DataRecord describes one blob referenced by a manifest.
type DataRecord struct {
	ContentLength     int64       `json:"content_length"`
	MediaType         MediaType   `json:"media_type"`
	Compression       Compression `json:"compression"`
	ChecksumAlgorithm string      `json:"checksum_algorithm"`
	Checksum          string      `json:"checksum"`
}

// Digest returns d's checksum as an opencontainers digest, assuming
// ChecksumAlgorithm is "sha256" (the only algorithm this package writes).
func (d DataRecord) Digest() digest.Digest {
	return digest.NewDigestFromHex(d.ChecksumAlgorithm, d.Checksum)
}

// Manifest is the top-level manifest document (spec.md §6.3).
type Manifest struct {
	Version int          `json:"version"`
	Data    []DataRecord `json:"data"`
}

// EncodeManifest serializes m as canonical JSON.
func EncodeManifest(m Manifest) ([]byte, error) {
	if m.Version == 0 {
		m.Version = ManifestVersion
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encoding buildcache manifest")
	}
	return b, nil
}

// DecodeManifest parses and validates a manifest document.
func DecodeManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, errors.Wrap(ErrInvalidMetadataFile, err.Error())
	}
	if m.Version == 0 || m.Version > ManifestVersion {
		return Manifest{}, errors.Wrapf(ErrLayoutVersionUnsupported, "manifest version %d", m.Version)
	}
	for _, d := range m.Data {
		if d.Checksum == "" || d.MediaType == "" {
			return Manifest{}, errors.Wrap(ErrInvalidMetadataFile, "data record missing checksum or media type")
		}
	}
	return m, nil
}

// RecordFor returns the first data record of the given media type, if
// any.
func (m Manifest) RecordFor(mt MediaType) (DataRecord, bool) {
	for _, d := range m.Data {
		if d.MediaType == mt {
			return d, true
		}
	}
	return DataRecord{}, false
}
