package buildcache

import (
	"context"

	"github.com/pkg/errors"
)

// CachedIndex is what the caller has cached locally for one mirror's
// index: the manifest ETag and the digest of the blob it resolved to
// last time.
type CachedIndex struct {
	ManifestETag string
	BlobDigest   string
}

// IndexFetchResult is conditional_fetch_index's return value (spec.md
// §4.6, testable properties 10, S7, S8).
type IndexFetchResult struct {
	Fresh bool
	Data  []byte
	Hash  string
	ETag  string
}

// ConditionalFetchIndex implements spec.md §4.6's conditional_fetch_index:
// given a locally cached index-manifest ETag, perform a conditional
// request; on a 304 the local cache is fresh; on 200 fetch the new
// manifest, then fetch the blob if and only if its digest changed.
func ConditionalFetchIndex(ctx context.Context, m Mirror, cached CachedIndex) (IndexFetchResult, error) {
	result, err := m.ConditionalGetManifest(ctx, indexManifestPath(), cached.ManifestETag)
	if err != nil {
		if errors.Is(err, ErrStaleCache) {
			// A 404 during conditional fetch: the cache is stale, retry
			// unconditionally (spec.md §5).
			return ConditionalFetchIndex(ctx, m, CachedIndex{})
		}
		return IndexFetchResult{}, errors.Wrap(ErrFetchIndex, err.Error())
	}
	if result.Fresh {
		return IndexFetchResult{Fresh: true, ETag: cached.ManifestETag}, nil
	}

	manifest, err := DecodeManifest(result.Data)
	if err != nil {
		return IndexFetchResult{}, err
	}
	record, ok := manifest.RecordFor(MediaTypeBuildcacheIndex)
	if !ok {
		return IndexFetchResult{}, errors.Wrap(ErrInvalidMetadataFile, "index manifest has no buildcache-index record")
	}

	if record.Checksum == cached.BlobDigest {
		// Manifest changed (new ETag) but the blob it points at didn't;
		// no need to refetch the blob itself.
		return IndexFetchResult{Fresh: false, Hash: record.Checksum, ETag: result.ETag}, nil
	}

	blobBytes, err := fetchAndVerifyBlob(ctx, m, record)
	if err != nil {
		return IndexFetchResult{}, err
	}
	return IndexFetchResult{Fresh: false, Data: blobBytes, Hash: record.Checksum, ETag: result.ETag}, nil
}
