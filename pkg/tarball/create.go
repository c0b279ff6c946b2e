package tarball

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/moby/patternmatcher"
	"github.com/opencontainers/go-digest"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Options controls one Create call.
type Options struct {
	// Prefixes lists the literal byte strings (old install prefix,
	// sbang path, store root) whose presence in a text file's content or
	// a symlink's target marks it for relocation (spec.md §4.7).
	Prefixes []string
	// Exclude is a set of gitignore-style patterns naming paths, relative
	// to the prefix directory, to omit from the archive entirely.
	Exclude []string
}

// Result is the outcome of Create: the two digests spec.md §4.7 requires
// (computed in the same streaming pass that writes the archive) plus the
// buildinfo record actually embedded.
type Result struct {
	BlobDigest digest.Digest // sha256 of the gzipped output
	DiffDigest digest.Digest // sha256 of the uncompressed tar
	BuildInfo  *BuildInfo
}

// inodeKey identifies a file by device and inode, for hardlink
// deduplication (spec.md §4.7).
type inodeKey struct {
	dev, ino uint64
}

// Create walks prefixDir in deterministic order and writes a reproducible
// tar+gzip archive to w. template's BuildPath/SpackPrefix/
// SbangInstallPath/RelativePrefix/HashToPrefix fields are copied
// verbatim into the embedded buildinfo; its Relocate* lists are
// recomputed from the walk.
func Create(w io.Writer, prefixDir string, template *BuildInfo, opts Options) (Result, error) {
	prefixDir = filepath.Clean(prefixDir)
	base := filepath.Base(prefixDir)

	var pm *patternmatcher.PatternMatcher
	if len(opts.Exclude) > 0 {
		var err error
		pm, err = patternmatcher.New(opts.Exclude)
		if err != nil {
			return Result{}, errors.Wrap(err, "compiling exclude patterns")
		}
	}

	info := *template
	info.HardlinksDeduped = true
	info.RelocateBinaries = nil
	info.RelocateTextfiles = nil
	info.RelocateLinks = nil

	diffHasher := sha256.New()
	blobHasher := sha256.New()
	gzw := gzip.NewWriter(io.MultiWriter(w, blobHasher))
	tw := tar.NewWriter(io.MultiWriter(gzw, diffHasher))

	// Entries are rooted at base, a single path element, so parentDirs(base)
	// is empty and this loop writes no parent-directory entries: the
	// archive holds no directories above the prefix itself.
	for _, dir := range parentDirs(base) {
		if err := tw.WriteHeader(dirHeader(dir)); err != nil {
			return Result{}, errors.Wrap(err, "writing parent directory header")
		}
	}

	inodeName := map[inodeKey]string{}

	walkErr := filepath.Walk(prefixDir, func(p string, fi fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(prefixDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			rel = ""
		}

		if rel != "" && pm != nil {
			matched, mErr := pm.Matches(rel)
			if mErr != nil {
				return errors.Wrapf(mErr, "matching exclude pattern against %s", rel)
			}
			if matched {
				if fi.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}

		archiveName := base
		if rel != "" {
			archiveName = path.Join(base, rel)
		}

		switch {
		case fi.IsDir():
			return tw.WriteHeader(dirHeader(archiveName))
		case fi.Mode()&os.ModeSymlink != 0:
			target, rerr := os.Readlink(p)
			if rerr != nil {
				return errors.Wrapf(rerr, "reading symlink %s", rel)
			}
			if hasAnyPrefix(target, opts.Prefixes) {
				info.RelocateLinks = append(info.RelocateLinks, rel)
			}
			return tw.WriteHeader(symlinkHeader(archiveName, target))
		case fi.Mode().IsRegular():
			if key, ok := inodeKeyOf(p); ok {
				if linkName, seen := inodeName[key]; seen {
					return tw.WriteHeader(hardlinkHeader(archiveName, linkName))
				}
				inodeName[key] = archiveName
			}
			content, rerr := os.ReadFile(p)
			if rerr != nil {
				return errors.Wrapf(rerr, "reading %s", rel)
			}
			switch classify(content) {
			case kindBinary:
				info.RelocateBinaries = append(info.RelocateBinaries, rel)
			case kindText:
				if hasAnyPrefix(string(content), opts.Prefixes) {
					info.RelocateTextfiles = append(info.RelocateTextfiles, rel)
				}
			}
			if err := tw.WriteHeader(fileHeader(archiveName, int64(len(content)), fi.Mode())); err != nil {
				return err
			}
			_, err = tw.Write(content)
			return err
		default:
			// Device nodes, sockets, FIFOs: not part of an install
			// prefix, skip rather than fail the whole archive.
			return nil
		}
	})
	if walkErr != nil {
		return Result{}, errors.Wrapf(walkErr, "walking %s", prefixDir)
	}

	sort.Strings(info.RelocateBinaries)
	sort.Strings(info.RelocateTextfiles)
	sort.Strings(info.RelocateLinks)

	buildInfoBytes, err := EncodeBuildInfo(&info)
	if err != nil {
		return Result{}, err
	}
	if err := tw.WriteHeader(dirHeader(path.Join(base, ".spack"))); err != nil {
		return Result{}, errors.Wrap(err, "writing .spack directory header")
	}
	buildInfoName := path.Join(base, BuildInfoPath)
	if err := tw.WriteHeader(fileHeader(buildInfoName, int64(len(buildInfoBytes)), 0o644)); err != nil {
		return Result{}, errors.Wrap(err, "writing buildinfo header")
	}
	if _, err := tw.Write(buildInfoBytes); err != nil {
		return Result{}, errors.Wrap(err, "writing buildinfo content")
	}

	if err := tw.Close(); err != nil {
		return Result{}, errors.Wrap(err, "closing tar writer")
	}
	if err := gzw.Close(); err != nil {
		return Result{}, errors.Wrap(err, "closing gzip writer")
	}

	return Result{
		BlobDigest: digest.NewDigestFromBytes(digest.SHA256, blobHasher.Sum(nil)),
		DiffDigest: digest.NewDigestFromBytes(digest.SHA256, diffHasher.Sum(nil)),
		BuildInfo:  &info,
	}, nil
}

// parentDirs returns the ancestors of name (excluding name itself),
// shallowest first, as slash-separated paths.
func parentDirs(name string) []string {
	var dirs []string
	for d := path.Dir(name); d != "." && d != "/"; d = path.Dir(d) {
		dirs = append(dirs, d)
	}
	for i, j := 0, len(dirs)-1; i < j; i, j = i+1, j-1 {
		dirs[i], dirs[j] = dirs[j], dirs[i]
	}
	return dirs
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// normalizedMode returns the file mode spec.md §4.7 requires: 0o755 for
// directories and user-executable files, 0o644 otherwise.
func normalizedMode(m fs.FileMode, isDir bool) int64 {
	if isDir || m&0o100 != 0 {
		return 0o755
	}
	return 0o644
}

// epoch is the fixed, wall-clock-independent mtime spec.md §4.7 requires
// every entry to carry (uid, gid, mtime all zeroed for reproducibility).
var epoch = time.Unix(0, 0)

func dirHeader(name string) *tar.Header {
	return &tar.Header{
		Name:     name + "/",
		Typeflag: tar.TypeDir,
		Mode:     0o755,
		ModTime:  epoch,
	}
}

func fileHeader(name string, size int64, mode fs.FileMode) *tar.Header {
	return &tar.Header{
		Name:     name,
		Typeflag: tar.TypeReg,
		Size:     size,
		Mode:     normalizedMode(mode, false),
		ModTime:  epoch,
	}
}

func symlinkHeader(name, target string) *tar.Header {
	return &tar.Header{
		Name:     name,
		Typeflag: tar.TypeSymlink,
		Linkname: target,
		ModTime:  epoch,
	}
}

func hardlinkHeader(name, target string) *tar.Header {
	return &tar.Header{
		Name:     name,
		Typeflag: tar.TypeLink,
		Linkname: target,
		ModTime:  epoch,
	}
}

// inodeKeyOf stats p directly via golang.org/x/sys/unix rather than
// relying on fs.FileInfo.Sys() (whose concrete type is package-private to
// the standard library's os package and not assertable to unix.Stat_t).
func inodeKeyOf(p string) (inodeKey, bool) {
	var st unix.Stat_t
	if err := unix.Lstat(p, &st); err != nil {
		return inodeKey{}, false
	}
	return inodeKey{dev: uint64(st.Dev), ino: st.Ino}, true
}
