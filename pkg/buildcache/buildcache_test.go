package buildcache

import (
	"bytes"
	"context"
	"testing"

	"github.com/opencontainers/go-digest"
	"gotest.tools/v3/assert"

	"github.com/nscaledev/spackcore/pkg/spec"
	"github.com/nscaledev/spackcore/pkg/specfile"
)

func buildConcreteSpec(t *testing.T) *spec.Spec {
	t.Helper()
	s, err := spec.Parse("mpileaks@=2.3 +shared")
	assert.NilError(t, err)
	_, err = s.ComputeHash()
	assert.NilError(t, err)
	return s
}

func buildTarball(t *testing.T) ([]byte, TarballInfo) {
	t.Helper()
	data := []byte("pretend-tarball-bytes")
	dgst := digest.FromBytes(data)
	return data, TarballInfo{Reader: bytes.NewReader(data), Size: int64(len(data)), Digest: dgst}
}

func buildSpecfile(t *testing.T, s *spec.Spec) []byte {
	t.Helper()
	data, err := specfile.Encode(s)
	assert.NilError(t, err)
	return data
}

func TestPushBinaryThenFetch(t *testing.T) {
	ctx := context.Background()
	m, err := NewFileMirror(t.TempDir())
	assert.NilError(t, err)

	s := buildConcreteSpec(t)
	tarballBytes, tarball := buildTarball(t)
	specfileBytes := buildSpecfile(t, s)

	result := PushBinary(ctx, m, s, tarball, specfileBytes, PushOptions{})
	assert.NilError(t, result.Err)
	assert.Equal(t, result.State, PushUploaded)

	fetched, err := FetchMetadata(ctx, m, s.Name, s.Hash)
	assert.NilError(t, err)
	assert.DeepEqual(t, fetched.SpecfileBytes, specfileBytes)

	destPath := t.TempDir() + "/out.tar.gz"
	record, err := FetchArchive(ctx, m, s.Name, s.Hash, destPath)
	assert.NilError(t, err)
	assert.Equal(t, record.ContentLength, int64(len(tarballBytes)))
}

func TestPushIdempotentWithoutForce(t *testing.T) {
	ctx := context.Background()
	m, err := NewFileMirror(t.TempDir())
	assert.NilError(t, err)

	s := buildConcreteSpec(t)
	_, tarball := buildTarball(t)
	specfileBytes := buildSpecfile(t, s)

	r1 := PushBinary(ctx, m, s, tarball, specfileBytes, PushOptions{})
	assert.NilError(t, r1.Err)
	assert.Equal(t, r1.State, PushUploaded)

	tarball.Reader = bytes.NewReader(nil) // re-push shouldn't need to read the tarball again
	r2 := PushBinary(ctx, m, s, tarball, specfileBytes, PushOptions{})
	assert.NilError(t, r2.Err)
	assert.Equal(t, r2.State, PushSkipped)
}

func TestPushLayoutSentinelOnce(t *testing.T) {
	ctx := context.Background()
	m, err := NewFileMirror(t.TempDir())
	assert.NilError(t, err)

	assert.NilError(t, PushLayoutSentinel(ctx, m, LayoutV3))
	exists, etag1, err := m.HeadManifest(ctx, layoutSentinelPath)
	assert.NilError(t, err)
	assert.Check(t, exists)

	assert.NilError(t, PushLayoutSentinel(ctx, m, LayoutV3))
	_, etag2, err := m.HeadManifest(ctx, layoutSentinelPath)
	assert.NilError(t, err)
	assert.Equal(t, etag1, etag2) // at-most-once: second call is a no-op
}

func TestGenerateIndexAndQuery(t *testing.T) {
	ctx := context.Background()
	m, err := NewFileMirror(t.TempDir())
	assert.NilError(t, err)

	s := buildConcreteSpec(t)
	_, tarball := buildTarball(t)
	specfileBytes := buildSpecfile(t, s)
	result := PushBinary(ctx, m, s, tarball, specfileBytes, PushOptions{})
	assert.NilError(t, result.Err)

	db, err := GenerateIndex(ctx, m, GenerateIndexOptions{})
	assert.NilError(t, err)

	entry, ok := db.ByHash(s.Hash)
	assert.Check(t, ok)
	assert.Equal(t, entry.Name, "mpileaks")

	query, err := spec.Parse("mpileaks")
	assert.NilError(t, err)
	matches, err := db.Query(query)
	assert.NilError(t, err)
	assert.Equal(t, len(matches), 1)
}

func TestConditionalFetchIndexFreshOn304Equivalent(t *testing.T) {
	ctx := context.Background()
	m, err := NewFileMirror(t.TempDir())
	assert.NilError(t, err)

	s := buildConcreteSpec(t)
	_, tarball := buildTarball(t)
	specfileBytes := buildSpecfile(t, s)
	assert.NilError(t, PushBinary(ctx, m, s, tarball, specfileBytes, PushOptions{}).Err)
	_, err = GenerateIndex(ctx, m, GenerateIndexOptions{})
	assert.NilError(t, err)

	_, etag, err := m.HeadManifest(ctx, indexManifestPath())
	assert.NilError(t, err)

	result, err := ConditionalFetchIndex(ctx, m, CachedIndex{ManifestETag: etag})
	assert.NilError(t, err)
	assert.Check(t, result.Fresh)
	assert.Check(t, result.Data == nil)
}

func TestConditionalFetchIndexChangedBlob(t *testing.T) {
	ctx := context.Background()
	m, err := NewFileMirror(t.TempDir())
	assert.NilError(t, err)

	s := buildConcreteSpec(t)
	_, tarball := buildTarball(t)
	specfileBytes := buildSpecfile(t, s)
	assert.NilError(t, PushBinary(ctx, m, s, tarball, specfileBytes, PushOptions{}).Err)
	_, err = GenerateIndex(ctx, m, GenerateIndexOptions{})
	assert.NilError(t, err)

	result, err := ConditionalFetchIndex(ctx, m, CachedIndex{ManifestETag: "", BlobDigest: "stale"})
	assert.NilError(t, err)
	assert.Check(t, !result.Fresh)
	assert.Check(t, len(result.Data) > 0)
	assert.Check(t, result.Hash != "stale")
}

func TestPipelinePushAll(t *testing.T) {
	ctx := context.Background()
	m, err := NewFileMirror(t.TempDir())
	assert.NilError(t, err)

	s := buildConcreteSpec(t)
	_, tarball := buildTarball(t)
	specfileBytes := buildSpecfile(t, s)

	p := &Pipeline{Mirror: m, Concurrency: 2, UpdateIndex: true}
	succeeded, failed, err := p.PushAll(ctx, []PushJob{{Spec: s, Tarball: tarball, SpecfileBytes: specfileBytes}})
	assert.NilError(t, err)
	assert.Equal(t, len(failed), 0)
	assert.Equal(t, len(succeeded), 1)

	_, ok := func() (*Entry, bool) {
		db, err := GenerateIndex(ctx, m, GenerateIndexOptions{})
		assert.NilError(t, err)
		return db.ByHash(s.Hash)
	}()
	assert.Check(t, ok)
}
