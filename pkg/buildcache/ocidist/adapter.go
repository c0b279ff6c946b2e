// Package ocidist translates the buildcache blob/manifest model of
// spec.md §4.6 into the OCI Distribution Spec: blobs become OCI blobs,
// each spec's manifest becomes an application/vnd.oci.image.manifest.v1+json
// document with the tarball as a single layer and a synthetic config JSON
// holding the specfile, and the index becomes a manifest tagged
// "index.spack" whose sole layer is the index blob.
package ocidist

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/opencontainers/go-digest"
	specs "github.com/opencontainers/image-spec/specs-go"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/pkg/errors"

	"github.com/nscaledev/spackcore/pkg/arch"
	"github.com/nscaledev/spackcore/pkg/spec"
)

// Media types used on the OCI side; these are distinct from
// pkg/buildcache.MediaType, which names the v3 manifest's own records.
const (
	MediaTypeSpecConfig = "application/vnd.spack.spec.config.v1+json"
	MediaTypeTarballLayer = "application/vnd.spack.tarball.layer.v1.tar+gzip"
	MediaTypeIndexLayer  = "application/vnd.spack.buildcache-index.layer.v1+json"
)

// IndexTag is the fixed tag the buildcache index is pushed under.
const IndexTag = "index.spack"

// TagForSpec returns the default tag a concrete spec's OCI manifest is
// pushed under (spec.md §4.6: "<name>-<version>-<dag-hash>.spack").
func TagForSpec(s *spec.Spec) (string, error) {
	if s.Hash == "" {
		return "", errors.Wrap(spec.ErrInvalidHash, "TagForSpec requires a concrete, hashed spec")
	}
	return fmt.Sprintf("%s-%s-%s.spack", s.Name, s.Versions.String(), s.Hash), nil
}

// SpecConfig is the synthetic OCI image config this package embeds in
// every spec manifest, carrying enough of the spec to resolve it without
// fetching the tarball layer.
type SpecConfig struct {
	Name     string           `json:"name"`
	Hash     string           `json:"hash"`
	Platform ocispec.Platform `json:"platform"`
	// Specfile is the full specfile JSON document (pkg/specfile.Encode
	// output), embedded so a registry-only client can resolve the full
	// Spec DAG from the manifest alone.
	Specfile json.RawMessage `json:"specfile"`
}

// BuildConfigBlob serializes the synthetic config for s, returning both
// the blob bytes and its descriptor.
func BuildConfigBlob(s *spec.Spec, specfileBytes []byte) ([]byte, ocispec.Descriptor, error) {
	cfg := SpecConfig{
		Name:     s.Name,
		Hash:     s.Hash,
		Platform: s.Arch.ToOCIPlatform(),
		Specfile: json.RawMessage(specfileBytes),
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, ocispec.Descriptor{}, errors.Wrap(err, "encoding spec config")
	}
	desc := ocispec.Descriptor{
		MediaType: MediaTypeSpecConfig,
		Digest:    digest.FromBytes(data),
		Size:      int64(len(data)),
		Platform:  &cfg.Platform,
	}
	return data, desc, nil
}

// BuildSpecManifest builds the OCI image manifest for a concrete spec:
// the synthetic config descriptor plus a single tarball layer.
func BuildSpecManifest(configDesc ocispec.Descriptor, tarballDesc ocispec.Descriptor) ocispec.Manifest {
	tarballDesc.MediaType = MediaTypeTarballLayer
	return ocispec.Manifest{
		Versioned: specs.Versioned{SchemaVersion: 2},
		MediaType: ocispec.MediaTypeImageManifest,
		Config:    configDesc,
		Layers:    []ocispec.Descriptor{tarballDesc},
	}
}

// BuildIndexManifest builds the manifest the buildcache index is pushed
// under: an empty synthetic config and the index blob as the sole layer
// (spec.md §4.6: "the index is a manifest tagged index.spack whose
// 'layer' is the index blob").
func BuildIndexManifest(indexBlobDesc ocispec.Descriptor) ocispec.Manifest {
	indexBlobDesc.MediaType = MediaTypeIndexLayer
	emptyConfig := ocispec.DescriptorEmptyJSON
	return ocispec.Manifest{
		Versioned: specs.Versioned{SchemaVersion: 2},
		MediaType: ocispec.MediaTypeImageManifest,
		Config:    emptyConfig,
		Layers:    []ocispec.Descriptor{indexBlobDesc},
	}
}

// ArchFromDescriptor recovers an arch.ArchSpec from a descriptor's
// platform field, the inverse of arch.ArchSpec.ToOCIPlatform used when
// BuildConfigBlob's descriptor is built.
func ArchFromDescriptor(desc ocispec.Descriptor) (arch.ArchSpec, error) {
	if desc.Platform == nil {
		return arch.ArchSpec{}, nil
	}
	return arch.FromOCIPlatform(*desc.Platform)
}

// Pusher is the minimal surface this adapter needs to push a blob or
// manifest to an OCI registry. This module ships no implementation of it;
// cmd/spack-buildcache pushes through pkg/buildcache.Mirror instead.
type Pusher interface {
	PushBlob(ctx context.Context, desc ocispec.Descriptor, data []byte) error
	PushManifest(ctx context.Context, tag string, manifest ocispec.Manifest) error
}
