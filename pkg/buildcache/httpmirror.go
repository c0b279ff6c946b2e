package buildcache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

// HTTPMirror is a Mirror backed by a remote buildcache server reachable
// over plain HTTP(S), used for the fetch side of spec.md §4.6/§4.9 (push
// targets a Mirror too, but most real pushes go through
// pkg/buildcache/ocidist instead since registries are the common
// transport). No pack library offers an HTTP client with built-in
// conditional-GET/retry semantics, so this is built directly on
// net/http, the stdlib case named in SPEC_FULL.md §B.
type HTTPMirror struct {
	BaseURL    string
	Client     *http.Client
	MaxRetries int
}

// NewHTTPMirror returns an HTTPMirror with sane retry defaults.
func NewHTTPMirror(baseURL string) *HTTPMirror {
	return &HTTPMirror{BaseURL: baseURL, Client: http.DefaultClient, MaxRetries: 3}
}

func (m *HTTPMirror) url(path string) string {
	u, err := url.Parse(m.BaseURL)
	if err != nil {
		return m.BaseURL + "/" + path
	}
	u.Path = joinURLPath(u.Path, path)
	return u.String()
}

func joinURLPath(base, path string) string {
	if base == "" {
		return "/" + path
	}
	if base[len(base)-1] == '/' {
		return base + path
	}
	return base + "/" + path
}

// doWithRetry executes req, retrying on transport errors and 5xx
// responses with exponential backoff (spec.md §5). 4xx responses other
// than those the caller explicitly tolerates are returned immediately.
func (m *HTTPMirror) doWithRetry(ctx context.Context, newReq func() (*http.Request, error)) (*http.Response, error) {
	var lastErr error
	backoff := 100 * time.Millisecond
	for attempt := 0; attempt <= m.MaxRetries; attempt++ {
		req, err := newReq()
		if err != nil {
			return nil, err
		}
		req = req.WithContext(ctx)
		resp, err := m.Client.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			time.Sleep(backoff)
			backoff *= 2
			continue
		}
		if resp.StatusCode >= 500 && attempt < m.MaxRetries {
			resp.Body.Close()
			time.Sleep(backoff)
			backoff *= 2
			continue
		}
		return resp, nil
	}
	return nil, errors.Wrap(lastErr, "exhausted retries")
}

func (m *HTTPMirror) PutBlob(ctx context.Context, dgst digest.Digest, r io.Reader, size int64) error {
	resp, err := m.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPut, m.url(mustBlobPath(dgst)), r)
		if err != nil {
			return nil, err
		}
		if size >= 0 {
			req.ContentLength = size
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		return req, nil
	})
	if err != nil {
		return errors.Wrapf(ErrFetchBlob, "PUT blob %s: %s", dgst, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return errors.Wrapf(ErrFetchBlob, "PUT blob %s: status %d", dgst, resp.StatusCode)
	}
	return nil
}

func (m *HTTPMirror) HasBlob(ctx context.Context, dgst digest.Digest) (bool, error) {
	resp, err := m.doWithRetry(ctx, func() (*http.Request, error) {
		return http.NewRequest(http.MethodHead, m.url(mustBlobPath(dgst)), nil)
	})
	if err != nil {
		return false, errors.Wrapf(ErrFetchBlob, "HEAD blob %s: %s", dgst, err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, errors.Wrapf(ErrFetchBlob, "HEAD blob %s: status %d", dgst, resp.StatusCode)
	}
}

func (m *HTTPMirror) GetBlob(ctx context.Context, dgst digest.Digest) (io.ReadCloser, error) {
	resp, err := m.doWithRetry(ctx, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, m.url(mustBlobPath(dgst)), nil)
	})
	if err != nil {
		return nil, errors.Wrapf(ErrFetchBlob, "GET blob %s: %s", dgst, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, errors.Wrapf(ErrBuildcacheEntryMissingBlob, "blob %s", dgst)
	}
	if resp.StatusCode/100 != 2 {
		resp.Body.Close()
		return nil, errors.Wrapf(ErrFetchBlob, "GET blob %s: status %d", dgst, resp.StatusCode)
	}
	return resp.Body, nil
}

func (m *HTTPMirror) PutManifest(ctx context.Context, path string, data []byte) error {
	resp, err := m.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPut, m.url(path), bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return errors.Wrapf(ErrFetchIndex, "PUT manifest %q: %s", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return errors.Wrapf(ErrFetchIndex, "PUT manifest %q: status %d", path, resp.StatusCode)
	}
	return nil
}

func (m *HTTPMirror) HeadManifest(ctx context.Context, path string) (bool, string, error) {
	resp, err := m.doWithRetry(ctx, func() (*http.Request, error) {
		return http.NewRequest(http.MethodHead, m.url(path), nil)
	})
	if err != nil {
		return false, "", errors.Wrapf(ErrFetchIndex, "HEAD manifest %q: %s", path, err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return true, resp.Header.Get("ETag"), nil
	case http.StatusNotFound:
		return false, "", nil
	default:
		return false, "", errors.Wrapf(ErrFetchIndex, "HEAD manifest %q: status %d", path, resp.StatusCode)
	}
}

func (m *HTTPMirror) GetManifest(ctx context.Context, path string) ([]byte, string, error) {
	resp, err := m.doWithRetry(ctx, func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, m.url(path), nil)
	})
	if err != nil {
		return nil, "", errors.Wrapf(ErrFetchIndex, "GET manifest %q: %s", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, "", errors.Wrapf(ErrFetchIndex, "manifest %q not found", path)
	}
	if resp.StatusCode/100 != 2 {
		return nil, "", errors.Wrapf(ErrFetchIndex, "GET manifest %q: status %d", path, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", errors.Wrap(err, "reading manifest body")
	}
	return data, resp.Header.Get("ETag"), nil
}

// ConditionalGetManifest implements spec.md §4.6's conditional_fetch_index:
// an If-None-Match request; 304 means fresh, 200 means the caller must
// compare the manifest's referenced blob digest itself to decide whether
// to refetch the blob, and 404 means the cache is stale and the caller
// should retry unconditionally (spec.md §5).
func (m *HTTPMirror) ConditionalGetManifest(ctx context.Context, path string, ifNoneMatch string) (ConditionalResult, error) {
	resp, err := m.doWithRetry(ctx, func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodGet, m.url(path), nil)
		if err != nil {
			return nil, err
		}
		if ifNoneMatch != "" {
			req.Header.Set("If-None-Match", strconv.Quote(trimETagQuotes(ifNoneMatch)))
		}
		return req, nil
	})
	if err != nil {
		return ConditionalResult{}, errors.Wrapf(ErrFetchIndex, "conditional GET %q: %s", path, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		return ConditionalResult{Fresh: true, ETag: ifNoneMatch}, nil
	case http.StatusNotFound:
		// A 404 during conditional fetch indicates a stale cache; the
		// caller retries unconditionally rather than treating this as
		// terminal (spec.md §5).
		return ConditionalResult{}, errors.Wrapf(ErrStaleCache, "manifest %q missing, cache stale", path)
	case http.StatusOK:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return ConditionalResult{}, errors.Wrap(err, "reading manifest body")
		}
		return ConditionalResult{Fresh: false, Data: data, ETag: resp.Header.Get("ETag")}, nil
	default:
		return ConditionalResult{}, errors.Wrapf(ErrFetchIndex, "conditional GET %q: status %d", path, resp.StatusCode)
	}
}

func (m *HTTPMirror) ListManifests(ctx context.Context, prefix string) ([]string, error) {
	return nil, errors.Wrap(ErrFetchIndex, "HTTPMirror does not support listing; use the OCI adapter or a FileMirror-backed local cache")
}

func trimETagQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

func mustBlobPath(dgst digest.Digest) string {
	p, err := blobPath(dgst.Encoded())
	if err != nil {
		panic(fmt.Sprintf("buildcache: %s", err))
	}
	return p
}
