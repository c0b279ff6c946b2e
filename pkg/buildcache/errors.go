// Package buildcache implements the binary mirror layout, manifest
// schema, and push/fetch/index operations of spec.md §4.6/§4.9/§6.3.
package buildcache

import "github.com/pkg/errors"

// Sentinel errors for the buildcache layer (spec.md §7).
var (
	ErrInvalidMetadataFile         = errors.New("invalid metadata file")
	ErrBuildcacheEntryMissingBlob  = errors.New("buildcache entry missing blob")
	ErrBuildcacheChecksumMismatch  = errors.New("buildcache checksum mismatch")
	ErrNoSignatureButRequired      = errors.New("no signature but signature required")
	ErrLayoutVersionUnsupported    = errors.New("layout version unsupported")
	ErrFetchIndex                  = errors.New("fetch index error")
	ErrFetchBlob                   = errors.New("fetch blob error")
	ErrStaleCache                  = errors.New("stale cache")
)

// Retryable reports whether a response with the given HTTP status code
// (0 for a transport-level error) should trigger a retry with backoff
// rather than failing the spec outright. Per spec.md §5, network errors
// and 5xx responses are retryable; 4xx responses (including 404, which
// is fatal here but handled specially by conditional index fetch) are
// not.
func Retryable(statusCode int) bool {
	return statusCode == 0 || statusCode >= 500
}
