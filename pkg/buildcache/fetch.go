package buildcache

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
)

// FetchedSpec is the staged result of fetch_metadata: the manifest plus
// the specfile blob bytes it references.
type FetchedSpec struct {
	Manifest      Manifest
	SpecfileBytes []byte
}

// FetchMetadata implements spec.md §4.6's fetch_metadata: read the spec
// manifest for (name, dagHash), resolve the spec blob, stage it locally,
// and verify its size and sha256 against the manifest record.
func FetchMetadata(ctx context.Context, m Mirror, name, dagHash string) (FetchedSpec, error) {
	data, _, err := m.GetManifest(ctx, specManifestPath(name, dagHash))
	if err != nil {
		return FetchedSpec{}, errors.Wrapf(ErrFetchIndex, "fetching spec manifest for %s/%s: %s", name, dagHash, err)
	}
	manifest, err := DecodeManifest(data)
	if err != nil {
		return FetchedSpec{}, err
	}
	record, ok := manifest.RecordFor(MediaTypeSpec)
	if !ok {
		return FetchedSpec{}, errors.Wrapf(ErrInvalidMetadataFile, "spec manifest %s/%s has no spec record", name, dagHash)
	}

	blobBytes, err := fetchAndVerifyBlob(ctx, m, record)
	if err != nil {
		return FetchedSpec{}, err
	}
	return FetchedSpec{Manifest: manifest, SpecfileBytes: blobBytes}, nil
}

// FetchArchive implements spec.md §4.6's fetch_archive: read the tarball
// manifest for (name, dagHash), resolve the tarball blob, stage it at
// destPath, and verify its size and sha256 against the manifest record.
func FetchArchive(ctx context.Context, m Mirror, name, dagHash, destPath string) (DataRecord, error) {
	data, _, err := m.GetManifest(ctx, tarballManifestPath(name, dagHash))
	if err != nil {
		return DataRecord{}, errors.Wrapf(ErrFetchIndex, "fetching tarball manifest for %s/%s: %s", name, dagHash, err)
	}
	manifest, err := DecodeManifest(data)
	if err != nil {
		return DataRecord{}, err
	}
	record, ok := manifest.RecordFor(MediaTypeTarball)
	if !ok {
		return DataRecord{}, errors.Wrapf(ErrInvalidMetadataFile, "tarball manifest %s/%s has no tarball record", name, dagHash)
	}

	rc, err := m.GetBlob(ctx, record.Digest())
	if err != nil {
		return DataRecord{}, errors.Wrapf(ErrFetchBlob, "fetching tarball blob for %s/%s: %s", name, dagHash, err)
	}
	defer rc.Close()

	f, err := os.Create(destPath)
	if err != nil {
		return DataRecord{}, errors.Wrap(err, "creating destination tarball file")
	}
	defer f.Close()

	verifier := record.Digest().Verifier()
	n, err := io.Copy(io.MultiWriter(f, verifier), rc)
	if err != nil {
		return DataRecord{}, errors.Wrap(err, "staging tarball blob")
	}
	if n != record.ContentLength {
		return DataRecord{}, errors.Wrapf(ErrBuildcacheChecksumMismatch, "tarball %s/%s: staged %d bytes, manifest says %d", name, dagHash, n, record.ContentLength)
	}
	if !verifier.Verified() {
		return DataRecord{}, errors.Wrapf(ErrBuildcacheChecksumMismatch, "tarball %s/%s failed checksum verification", name, dagHash)
	}
	return record, nil
}

func fetchAndVerifyBlob(ctx context.Context, m Mirror, record DataRecord) ([]byte, error) {
	dgst := record.Digest()
	rc, err := m.GetBlob(ctx, dgst)
	if err != nil {
		return nil, errors.Wrapf(ErrFetchBlob, "fetching blob %s: %s", dgst, err)
	}
	defer rc.Close()

	var buf []byte
	verifier := dgst.Verifier()
	w := &sizeCountingWriter{}
	data, err := io.ReadAll(io.TeeReader(rc, io.MultiWriter(verifier, w)))
	if err != nil {
		return nil, errors.Wrap(err, "staging blob")
	}
	buf = data
	if w.n != record.ContentLength {
		return nil, errors.Wrapf(ErrBuildcacheChecksumMismatch, "blob %s: staged %d bytes, manifest says %d", dgst, w.n, record.ContentLength)
	}
	if !verifier.Verified() {
		return nil, errors.Wrapf(ErrBuildcacheChecksumMismatch, "blob %s failed checksum verification", dgst)
	}
	return buf, nil
}

type sizeCountingWriter struct{ n int64 }

func (w *sizeCountingWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	return len(p), nil
}
