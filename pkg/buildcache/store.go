package buildcache

import (
	"context"
	"io"

	"github.com/opencontainers/go-digest"
)

// BlobStore is the content-addressed blob half of a mirror (spec.md §4.6).
type BlobStore interface {
	// PutBlob uploads size bytes read from r under dgst. Idempotent: a
	// blob already present at dgst may be left untouched.
	PutBlob(ctx context.Context, dgst digest.Digest, r io.Reader, size int64) error
	// HasBlob reports whether dgst is already present (the existence
	// check behind push idempotence, spec.md §4.9).
	HasBlob(ctx context.Context, dgst digest.Digest) (bool, error)
	// GetBlob opens dgst for reading; the caller must Close it.
	GetBlob(ctx context.Context, dgst digest.Digest) (io.ReadCloser, error)
}

// ConditionalResult is the outcome of a conditional manifest fetch
// (spec.md §4.6 conditional_fetch_index, §4.9).
type ConditionalResult struct {
	Fresh bool   // true on a 304 / unchanged-content short-circuit
	Data  []byte // nil when Fresh is true
	ETag  string
}

// ManifestStore is the manifest half of a mirror: named JSON documents
// addressed by mirror-relative path, with conditional-fetch support.
type ManifestStore interface {
	// PutManifest writes data at path, overwriting any existing content.
	PutManifest(ctx context.Context, path string, data []byte) error
	// HeadManifest reports whether path exists and its current ETag.
	HeadManifest(ctx context.Context, path string) (exists bool, etag string, err error)
	// GetManifest unconditionally fetches path.
	GetManifest(ctx context.Context, path string) (data []byte, etag string, err error)
	// ConditionalGetManifest performs an If-None-Match request against
	// path using ifNoneMatch as the cached ETag. A store that cannot
	// honor conditional requests (e.g. a plain filesystem) may always
	// report Fresh=false and return the current content.
	ConditionalGetManifest(ctx context.Context, path string, ifNoneMatch string) (ConditionalResult, error)
	// ListManifests enumerates manifest paths under the given prefix
	// (used by generate_index to enumerate spec manifests).
	ListManifests(ctx context.Context, prefix string) ([]string, error)
}

// Mirror is the full read/write surface an operation in this package
// needs against one buildcache mirror.
type Mirror interface {
	BlobStore
	ManifestStore
}
