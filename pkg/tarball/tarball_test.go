package tarball

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"
)

func writeFile(t *testing.T, p string, mode os.FileMode, content []byte) {
	t.Helper()
	assert.NilError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	assert.NilError(t, os.WriteFile(p, content, mode))
}

func buildPrefix(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	prefix := filepath.Join(dir, "pkg-xyz")
	assert.NilError(t, os.MkdirAll(filepath.Join(prefix, "bin"), 0o755))
	assert.NilError(t, os.MkdirAll(filepath.Join(prefix, "share"), 0o755))

	elfBytes := append([]byte{0x7f, 'E', 'L', 'F'}, bytes.Repeat([]byte{0}, 16)...)
	writeFile(t, filepath.Join(prefix, "bin", "app"), 0o755, elfBytes)
	writeFile(t, filepath.Join(prefix, "share", "cfg"), 0o644, []byte("prefix=/orig/opt/pkg-xyz\n"))
	assert.NilError(t, os.Symlink("app", filepath.Join(prefix, "bin", "relative")))
	assert.NilError(t, os.Symlink("/orig/opt/pkg-xyz/bin/app", filepath.Join(prefix, "bin", "absolute")))
	assert.NilError(t, os.Link(filepath.Join(prefix, "bin", "app"), filepath.Join(prefix, "bin", "app-hardlink")))
	return prefix
}

func baseTemplate() *BuildInfo {
	return &BuildInfo{
		BuildPath:        "/orig/opt",
		SpackPrefix:      "/orig/spack",
		SbangInstallPath: "/orig/spack/bin/sbang",
		RelativePrefix:   "pkg-xyz",
		HashToPrefix:     map[string]string{"abcdef0": "/orig/opt/pkg-xyz"},
	}
}

// Tarball determinism (spec.md §8 testable property 7).
func TestCreateIsDeterministic(t *testing.T) {
	prefix := buildPrefix(t)
	opts := Options{Prefixes: []string{"/orig/opt/pkg-xyz"}}

	var out1, out2 bytes.Buffer
	r1, err := Create(&out1, prefix, baseTemplate(), opts)
	assert.NilError(t, err)
	r2, err := Create(&out2, prefix, baseTemplate(), opts)
	assert.NilError(t, err)

	assert.DeepEqual(t, out1.Bytes(), out2.Bytes())
	assert.Equal(t, r1.BlobDigest, r2.BlobDigest)
	assert.Equal(t, r1.DiffDigest, r2.DiffDigest)
}

func TestCreateClassifiesAndRecordsRelocationTargets(t *testing.T) {
	prefix := buildPrefix(t)
	opts := Options{Prefixes: []string{"/orig/opt/pkg-xyz"}}

	var out bytes.Buffer
	result, err := Create(&out, prefix, baseTemplate(), opts)
	assert.NilError(t, err)

	assert.DeepEqual(t, result.BuildInfo.RelocateBinaries, []string{"bin/app"})
	assert.DeepEqual(t, result.BuildInfo.RelocateTextfiles, []string{"share/cfg"})
	assert.DeepEqual(t, result.BuildInfo.RelocateLinks, []string{"bin/absolute"})
	assert.Check(t, result.BuildInfo.HardlinksDeduped)
}

func TestCreateThenExtractRoundTrip(t *testing.T) {
	prefix := buildPrefix(t)
	opts := Options{Prefixes: []string{"/orig/opt/pkg-xyz"}}

	var out bytes.Buffer
	_, err := Create(&out, prefix, baseTemplate(), opts)
	assert.NilError(t, err)

	destDir := t.TempDir()
	buildInfo, err := Extract(bytes.NewReader(out.Bytes()), destDir)
	assert.NilError(t, err)
	assert.Equal(t, buildInfo.RelativePrefix, "pkg-xyz")

	cfg, err := os.ReadFile(filepath.Join(destDir, "share", "cfg"))
	assert.NilError(t, err)
	assert.Equal(t, string(cfg), "prefix=/orig/opt/pkg-xyz\n")

	target, err := os.Readlink(filepath.Join(destDir, "bin", "relative"))
	assert.NilError(t, err)
	assert.Equal(t, target, "app")

	info, err := os.Lstat(filepath.Join(destDir, BuildInfoPath))
	assert.NilError(t, err)
	assert.Check(t, info.Mode().IsRegular())
}

func TestExtractRejectsMissingBuildInfo(t *testing.T) {
	var buf bytes.Buffer
	_, err := Create(&buf, t.TempDir(), baseTemplate(), Options{})
	assert.NilError(t, err)

	// A plain tar+gzip stream with no buildinfo at all should never be
	// produced by Create, but Extract must still refuse one defensively.
	var empty bytes.Buffer
	gzw := gzip.NewWriter(&empty)
	assert.NilError(t, tar.NewWriter(gzw).Close())
	assert.NilError(t, gzw.Close())
	_, err = Extract(bytes.NewReader(empty.Bytes()), t.TempDir())
	assert.ErrorIs(t, err, ErrBuildInfoNotFound)
}

func TestClassifyDetectsELFAndText(t *testing.T) {
	elf := append([]byte{0x7f, 'E', 'L', 'F'}, 0, 0, 0)
	assert.Equal(t, classify(elf), kindBinary)
	assert.Equal(t, classify([]byte("hello world\n")), kindText)
	assert.Equal(t, classify([]byte{0x00, 0x01, 0x02, 0xff}), kindUnknown)
}
