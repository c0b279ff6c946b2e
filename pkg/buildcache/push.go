package buildcache

import (
	"bytes"
	"context"
	"encoding/json"
	"io"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"

	"github.com/nscaledev/spackcore/pkg/spec"
)

// PushState is a step of the per-spec push state machine (spec.md §4.6).
type PushState int

const (
	PushNeedsPush PushState = iota
	PushSkipped
	PushTarballUploaded
	PushUploaded
)

func (s PushState) String() string {
	switch s {
	case PushSkipped:
		return "skipped"
	case PushTarballUploaded:
		return "tarball-uploaded"
	case PushUploaded:
		return "uploaded"
	default:
		return "needs-push"
	}
}

// Signer clear-signs a manifest before it is uploaded. A nil Signer means
// manifests are pushed unsigned.
type Signer interface {
	Sign(data []byte) (clearSigned []byte, err error)
}

// TarballInfo describes an already-built tarball ready for upload
// (produced by pkg/tarball.Create, which computes both digests in its
// single streaming pass per spec.md §4.7/§C.4).
type TarballInfo struct {
	Reader io.Reader
	Size   int64
	Digest digest.Digest
}

// PushOptions controls one push_binary call.
type PushOptions struct {
	Force  bool
	Signer Signer
}

// PushResult reports the final state a push_binary call reached.
type PushResult struct {
	Spec  *spec.Spec
	State PushState
	Err   error
}

// PushBinary implements spec.md §4.6's push_binary operation: given a
// concrete spec and a tarball already materialized on disk, upload the
// tarball blob, the specfile blob, and a spec manifest referencing both;
// optionally clear-sign the manifest. Idempotent by digest: a tarball
// blob already present is not re-uploaded unless opts.Force is set.
func PushBinary(ctx context.Context, m Mirror, s *spec.Spec, tarball TarballInfo, specfileBytes []byte, opts PushOptions) PushResult {
	if s.Hash == "" {
		return PushResult{Spec: s, Err: errors.Wrap(spec.ErrInvalidHash, "push_binary requires a concrete, hashed spec")}
	}

	state := PushNeedsPush
	if !opts.Force {
		exists, err := m.HasBlob(ctx, tarball.Digest)
		if err != nil {
			return PushResult{Spec: s, State: state, Err: errors.Wrap(err, "checking tarball existence")}
		}
		if exists {
			if _, etag, err := m.HeadManifest(ctx, specManifestPath(s.Name, s.Hash)); err == nil && etag != "" {
				return PushResult{Spec: s, State: PushSkipped}
			}
		}
	}

	if err := m.PutBlob(ctx, tarball.Digest, tarball.Reader, tarball.Size); err != nil {
		return PushResult{Spec: s, State: state, Err: errors.Wrapf(err, "uploading tarball blob for %s", s.Name)}
	}
	state = PushTarballUploaded

	tarballRecord := DataRecord{
		ContentLength: tarball.Size, MediaType: MediaTypeTarball, Compression: CompressionGzip,
		ChecksumAlgorithm: "sha256", Checksum: tarball.Digest.Encoded(),
	}

	tarballManifest, err := EncodeManifest(Manifest{Data: []DataRecord{tarballRecord}})
	if err != nil {
		return PushResult{Spec: s, State: state, Err: err}
	}
	if err := m.PutManifest(ctx, tarballManifestPath(s.Name, s.Hash), tarballManifest); err != nil {
		return PushResult{Spec: s, State: state, Err: errors.Wrapf(err, "uploading tarball manifest for %s", s.Name)}
	}

	specDigest := digest.FromBytes(specfileBytes)
	if err := m.PutBlob(ctx, specDigest, bytes.NewReader(specfileBytes), int64(len(specfileBytes))); err != nil {
		return PushResult{Spec: s, State: state, Err: errors.Wrapf(err, "uploading specfile blob for %s", s.Name)}
	}

	specRecord := DataRecord{
		ContentLength: int64(len(specfileBytes)), MediaType: MediaTypeSpec, Compression: CompressionNone,
		ChecksumAlgorithm: "sha256", Checksum: specDigest.Encoded(),
	}

	specManifestBytes, err := EncodeManifest(Manifest{Data: []DataRecord{specRecord, tarballRecord}})
	if err != nil {
		return PushResult{Spec: s, State: state, Err: err}
	}
	if opts.Signer != nil {
		signed, err := opts.Signer.Sign(specManifestBytes)
		if err != nil {
			return PushResult{Spec: s, State: state, Err: errors.Wrapf(err, "signing manifest for %s", s.Name)}
		}
		specManifestBytes = signed
	}
	if err := m.PutManifest(ctx, specManifestPath(s.Name, s.Hash), specManifestBytes); err != nil {
		return PushResult{Spec: s, State: state, Err: errors.Wrapf(err, "uploading spec manifest for %s", s.Name)}
	}

	return PushResult{Spec: s, State: PushUploaded}
}

// PushLayoutSentinel writes layout.json if absent (at-most-once per
// mirror per push, spec.md §4.6/§5).
func PushLayoutSentinel(ctx context.Context, m Mirror, version LayoutVersion) error {
	exists, _, err := m.HeadManifest(ctx, layoutSentinelPath)
	if err != nil {
		return errors.Wrap(err, "checking layout sentinel")
	}
	if exists {
		return nil
	}
	data, err := json.Marshal(LayoutSentinel{Version: int(version)})
	if err != nil {
		return errors.Wrap(err, "encoding layout sentinel")
	}
	return errors.Wrap(m.PutManifest(ctx, layoutSentinelPath, data), "writing layout sentinel")
}
