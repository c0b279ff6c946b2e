package relocate

import (
	"os"
	"path/filepath"
	"testing"

	"gotest.tools/v3/assert"

	"github.com/nscaledev/spackcore/pkg/tarball"
)

func writeFile(t *testing.T, p string, content []byte) {
	t.Helper()
	assert.NilError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	assert.NilError(t, os.WriteFile(p, content, 0o644))
}

func TestPrefixMapDropsIdentityAndOrdersLongestFirst(t *testing.T) {
	var m PrefixMap
	m.Add("/opt/store", "/opt/store")
	m.Add("/opt/store", "/new/store")
	m.Add("/opt/store/pkg-xyz", "/new/store/pkg-xyz")

	pairs := m.Pairs()
	assert.Equal(t, len(pairs), 2)
	assert.Equal(t, pairs[0][0], "/opt/store/pkg-xyz")
	assert.Equal(t, pairs[1][0], "/opt/store")
}

func TestRelocateTextSubstitutesAllOccurrences(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg")
	writeFile(t, p, []byte("prefix=/orig/opt/pkg-xyz\nlib=/orig/opt/pkg-xyz/lib\n"))

	var m PrefixMap
	m.Add("/orig/opt/pkg-xyz", "/new/store/pkg-xyz-abcdef0")

	assert.NilError(t, RelocateText(p, m))
	got, err := os.ReadFile(p)
	assert.NilError(t, err)
	assert.Equal(t, string(got), "prefix=/new/store/pkg-xyz-abcdef0\nlib=/new/store/pkg-xyz-abcdef0/lib\n")
}

func TestRelocateTextBinPadsShorterReplacement(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "bin")
	writeFile(t, p, []byte("RPATH=/orig/opt/pkg-xyz/lib;END"))

	var m PrefixMap
	m.Add("/orig/opt/pkg-xyz", "/short")

	before, err := os.Stat(p)
	assert.NilError(t, err)

	needsPatch, err := RelocateTextBin(p, m, NullPad)
	assert.NilError(t, err)
	assert.Equal(t, len(needsPatch), 0)

	got, err := os.ReadFile(p)
	assert.NilError(t, err)
	after, err := os.Stat(p)
	assert.NilError(t, err)
	assert.Equal(t, before.Size(), after.Size())
	assert.Assert(t, len(got) == int(before.Size()))
}

func TestRelocateTextBinReportsNeedsPatchWhenLonger(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "bin")
	writeFile(t, p, []byte("RPATH=/a/lib;END"))

	var m PrefixMap
	m.Add("/a", "/a-much-longer-prefix")

	needsPatch, err := RelocateTextBin(p, m, NullPad)
	assert.NilError(t, err)
	assert.DeepEqual(t, needsPatch, []string{"/a"})
}

func TestRelocateSymlinkRewritesAbsoluteTarget(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "bin", "absolute")
	assert.NilError(t, os.MkdirAll(filepath.Dir(link), 0o755))
	assert.NilError(t, os.Symlink("/orig/opt/pkg-xyz/bin/app", link))

	var m PrefixMap
	m.Add("/orig/opt/pkg-xyz", "/new/store/pkg-xyz-abcdef0")

	assert.NilError(t, RelocateSymlink(link, m))
	target, err := os.Readlink(link)
	assert.NilError(t, err)
	assert.Equal(t, target, "/new/store/pkg-xyz-abcdef0/bin/app")
}

func TestRelocateSymlinkLeavesRelativeTargetUntouched(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "bin", "relative")
	assert.NilError(t, os.MkdirAll(filepath.Dir(link), 0o755))
	assert.NilError(t, os.Symlink("app", link))

	var m PrefixMap
	m.Add("/orig/opt/pkg-xyz", "/new/store/pkg-xyz-abcdef0")

	assert.NilError(t, RelocateSymlink(link, m))
	target, err := os.Readlink(link)
	assert.NilError(t, err)
	assert.Equal(t, target, "app")
}

// Relocation idempotence under an all-identity mapping (spec.md §8
// testable property 9): relocating a prefix against a map whose only
// entries resolve to themselves must leave every file byte-for-byte
// unchanged.
func TestRelocateIsIdempotentUnderIdentityMapping(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "share", "cfg")
	bin := filepath.Join(dir, "bin", "app")
	link := filepath.Join(dir, "bin", "app-link")
	writeFile(t, cfg, []byte("prefix=/orig/opt/pkg-xyz\n"))
	writeFile(t, bin, []byte("RPATH=/orig/opt/pkg-xyz/lib"))
	assert.NilError(t, os.MkdirAll(filepath.Dir(link), 0o755))
	assert.NilError(t, os.Symlink("/orig/opt/pkg-xyz/bin/app", link))

	before := map[string][]byte{}
	for _, p := range []string{cfg, bin} {
		b, err := os.ReadFile(p)
		assert.NilError(t, err)
		before[p] = b
	}
	beforeLink, err := os.Readlink(link)
	assert.NilError(t, err)

	var m PrefixMap
	m.Add("/orig/opt/pkg-xyz", "/orig/opt/pkg-xyz")

	info := &tarball.BuildInfo{
		RelocateTextfiles: []string{"share/cfg"},
		RelocateBinaries:  []string{"bin/app"},
		RelocateLinks:     []string{"bin/app-link"},
	}
	assert.NilError(t, relocate(dir, info, m, Options{}))

	for p, want := range before {
		got, err := os.ReadFile(p)
		assert.NilError(t, err)
		assert.DeepEqual(t, got, want)
	}
	afterLink, err := os.Readlink(link)
	assert.NilError(t, err)
	assert.Equal(t, afterLink, beforeLink)
}

func TestRelocateDedupesHardlinkedBinaries(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "bin", "app")
	hardlink := filepath.Join(dir, "bin", "app-hardlink")
	writeFile(t, bin, []byte("RPATH=/orig/opt/pkg-xyz/lib;PAD"))
	assert.NilError(t, os.Link(bin, hardlink))

	var m PrefixMap
	m.Add("/orig/opt/pkg-xyz", "/short")

	info := &tarball.BuildInfo{RelocateBinaries: []string{"bin/app", "bin/app-hardlink"}}
	assert.NilError(t, relocate(dir, info, m, Options{}))

	got, err := os.ReadFile(bin)
	assert.NilError(t, err)
	gotLink, err := os.ReadFile(hardlink)
	assert.NilError(t, err)
	assert.DeepEqual(t, got, gotLink)
}

func TestRelocateRemovesInstallDirOnFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "share", "missing-ref"), []byte("ok"))

	info := &tarball.BuildInfo{RelocateTextfiles: []string{"share/does-not-exist"}}
	var m PrefixMap
	m.Add("/orig", "/new")

	err := Relocate(dir, info, m, Options{})
	assert.Assert(t, err != nil)
	_, statErr := os.Stat(dir)
	assert.Assert(t, os.IsNotExist(statErr))
}
