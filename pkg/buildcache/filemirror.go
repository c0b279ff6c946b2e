package buildcache

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
)

// FileMirror is a Mirror backed by a local directory laid out exactly as
// spec.md §6.3 describes a v3 mirror (or §4.6's v2 layout, via the
// path-building helpers in layout.go). It is the mirror implementation
// the test suite runs push/fetch/index scenarios against, and doubles as
// the local staging directory a real HTTP-backed mirror push pipeline
// would materialize tarballs into before upload (spec.md §4.9: "each task
// gets its own subdirectory").
type FileMirror struct {
	Root string
}

// NewFileMirror returns a FileMirror rooted at dir, creating it if
// necessary.
func NewFileMirror(dir string) (*FileMirror, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating mirror root")
	}
	return &FileMirror{Root: dir}, nil
}

func (m *FileMirror) blobFile(dgst digest.Digest) (string, error) {
	p, err := blobPath(dgst.Encoded())
	if err != nil {
		return "", err
	}
	return filepath.Join(m.Root, filepath.FromSlash(p)), nil
}

func (m *FileMirror) PutBlob(_ context.Context, dgst digest.Digest, r io.Reader, size int64) error {
	dst, err := m.blobFile(dgst)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dst); err == nil {
		// Already present; idempotent by digest (spec.md §4.6).
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrap(err, "creating blob directory")
	}
	tmp := dst + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.Wrap(err, "creating temp blob file")
	}
	verifier := dgst.Verifier()
	n, err := io.Copy(io.MultiWriter(f, verifier), r)
	f.Close()
	if err != nil {
		os.Remove(tmp)
		return errors.Wrap(err, "writing blob")
	}
	if size >= 0 && n != size {
		os.Remove(tmp)
		return errors.Wrapf(ErrBuildcacheChecksumMismatch, "blob %s: wrote %d bytes, expected %d", dgst, n, size)
	}
	if !verifier.Verified() {
		os.Remove(tmp)
		return errors.Wrapf(ErrBuildcacheChecksumMismatch, "blob %s failed digest verification", dgst)
	}
	return os.Rename(tmp, dst)
}

func (m *FileMirror) HasBlob(_ context.Context, dgst digest.Digest) (bool, error) {
	p, err := m.blobFile(dgst)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrap(err, "statting blob")
}

func (m *FileMirror) GetBlob(_ context.Context, dgst digest.Digest) (io.ReadCloser, error) {
	p, err := m.blobFile(dgst)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrBuildcacheEntryMissingBlob, "blob %s", dgst)
		}
		return nil, errors.Wrap(err, "opening blob")
	}
	return f, nil
}

func (m *FileMirror) manifestFile(path string) string {
	return filepath.Join(m.Root, filepath.FromSlash(path))
}

func (m *FileMirror) PutManifest(_ context.Context, path string, data []byte) error {
	dst := m.manifestFile(path)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrap(err, "creating manifest directory")
	}
	tmp := dst + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(err, "writing manifest")
	}
	return os.Rename(tmp, dst)
}

func (m *FileMirror) HeadManifest(_ context.Context, path string) (bool, string, error) {
	data, err := os.ReadFile(m.manifestFile(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, "", nil
		}
		return false, "", errors.Wrap(err, "statting manifest")
	}
	return true, etagOf(data), nil
}

func (m *FileMirror) GetManifest(_ context.Context, path string) ([]byte, string, error) {
	data, err := os.ReadFile(m.manifestFile(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", errors.Wrapf(ErrFetchIndex, "manifest %q not found", path)
		}
		return nil, "", errors.Wrap(err, "reading manifest")
	}
	return data, etagOf(data), nil
}

// ConditionalGetManifest on a FileMirror always computes the current
// ETag and compares it against ifNoneMatch locally; a real HTTP mirror
// instead relies on the server's 304 response (see HTTPMirror).
func (m *FileMirror) ConditionalGetManifest(ctx context.Context, path string, ifNoneMatch string) (ConditionalResult, error) {
	data, etag, err := m.GetManifest(ctx, path)
	if err != nil {
		return ConditionalResult{}, err
	}
	if ifNoneMatch != "" && ifNoneMatch == etag {
		return ConditionalResult{Fresh: true, ETag: etag}, nil
	}
	return ConditionalResult{Fresh: false, Data: data, ETag: etag}, nil
}

func (m *FileMirror) ListManifests(_ context.Context, prefix string) ([]string, error) {
	root := m.manifestFile(prefix)
	var out []string
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(m.Root, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing manifests")
	}
	sort.Strings(out)
	return out, nil
}

func etagOf(data []byte) string {
	d := digest.FromBytes(data)
	return `"` + strings.TrimPrefix(d.String(), "sha256:") + `"`
}
