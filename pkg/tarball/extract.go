package tarball

import (
	"archive/tar"
	"compress/gzip"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ErrBuildInfoNotFound is returned when no .spack/binary_distribution
// member is present in the archive.
var ErrBuildInfoNotFound = errors.New("tarball: no binary_distribution buildinfo found")

// ErrAmbiguousPrefix is returned when more than one top-level directory
// candidate contains a binary_distribution member.
var ErrAmbiguousPrefix = errors.New("tarball: multiple candidate package prefixes")

// ErrPathEscapesDestination is returned when a member's stripped path (or
// a symlink's stripped target) would resolve outside the destination
// directory.
var ErrPathEscapesDestination = errors.New("tarball: entry escapes destination directory")

// Extract reads a gzip-compressed tar archive from r, determines the
// single common top-level directory containing .spack/binary_distribution
// (the "package prefix"), strips it from every member's name and symlink
// target, and writes the result under destDir. It refuses to extract if
// no buildinfo member is found, if multiple candidate prefixes exist, or
// if any entry would resolve outside destDir (spec.md §4.7).
func Extract(r io.Reader, destDir string) (*BuildInfo, error) {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "opening gzip stream")
	}
	defer gzr.Close()

	members, prefix, buildInfoBytes, err := scanMembers(gzr)
	if err != nil {
		return nil, err
	}
	if prefix == "" {
		return nil, ErrBuildInfoNotFound
	}
	buildInfo, err := DecodeBuildInfo(buildInfoBytes)
	if err != nil {
		return nil, err
	}

	for _, m := range members {
		strippedName, ok := stripPrefix(m.header.Name, prefix)
		if !ok {
			continue // belongs to a different top-level entry; ignore
		}
		if strippedName == "" {
			continue // the prefix directory entry itself
		}
		if err := writeMember(destDir, strippedName, prefix, m); err != nil {
			return nil, err
		}
	}
	return buildInfo, nil
}

type member struct {
	header  *tar.Header
	content []byte
}

// scanMembers buffers every member (tarballs produced by this package are
// small enough for build artifacts; a streaming two-pass variant would be
// needed for arbitrarily large installs) and determines the package
// prefix: the single top-level directory name containing a
// .spack/binary_distribution member.
func scanMembers(r io.Reader) ([]member, string, []byte, error) {
	tr := tar.NewReader(r)
	var members []member
	var buildInfoBytes []byte
	prefixCandidates := map[string]bool{}

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", nil, errors.Wrap(err, "reading tar stream")
		}
		name := path.Clean(hdr.Name)
		var content []byte
		if hdr.Typeflag == tar.TypeReg {
			content, err = io.ReadAll(tr)
			if err != nil {
				return nil, "", nil, errors.Wrapf(err, "reading member %s", name)
			}
		}
		members = append(members, member{header: hdr, content: content})

		top := strings.SplitN(name, "/", 2)[0]
		if hdr.Typeflag == tar.TypeReg && strings.TrimPrefix(name, top+"/") == BuildInfoPath {
			prefixCandidates[top] = true
			buildInfoBytes = content
		}
	}

	if len(prefixCandidates) > 1 {
		return nil, "", nil, ErrAmbiguousPrefix
	}
	var prefix string
	for p := range prefixCandidates {
		prefix = p
	}
	return members, prefix, buildInfoBytes, nil
}

// stripPrefix removes prefix+"/" from name, reporting false if name does
// not belong to prefix at all.
func stripPrefix(name, prefix string) (string, bool) {
	name = path.Clean(name)
	if name == prefix {
		return "", true
	}
	if strings.HasPrefix(name, prefix+"/") {
		return strings.TrimPrefix(name, prefix+"/"), true
	}
	return "", false
}

func writeMember(destDir, rel, prefix string, m member) error {
	dest, err := safeJoin(destDir, rel)
	if err != nil {
		return err
	}

	switch m.header.Typeflag {
	case tar.TypeDir:
		return errors.Wrapf(os.MkdirAll(dest, 0o755), "creating directory %s", rel)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return errors.Wrapf(err, "creating parent directory for %s", rel)
		}
		mode := os.FileMode(m.header.Mode)
		if mode == 0 {
			mode = 0o644
		}
		return errors.Wrapf(os.WriteFile(dest, m.content, mode), "writing %s", rel)
	case tar.TypeSymlink:
		target := m.header.Linkname
		if strippedTarget, ok := stripPrefix(target, prefix); ok {
			target = "/" + strippedTarget
			if _, err := safeJoin(destDir, strippedTarget); err != nil {
				return err
			}
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return errors.Wrapf(err, "creating parent directory for %s", rel)
		}
		os.Remove(dest)
		return errors.Wrapf(os.Symlink(target, dest), "creating symlink %s", rel)
	case tar.TypeLink:
		linkRel, ok := stripPrefix(m.header.Linkname, prefix)
		if !ok {
			return errors.Wrapf(ErrPathEscapesDestination, "hardlink target %s", m.header.Linkname)
		}
		linkDest, err := safeJoin(destDir, linkRel)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return errors.Wrapf(err, "creating parent directory for %s", rel)
		}
		return errors.Wrapf(os.Link(linkDest, dest), "creating hardlink %s", rel)
	default:
		return nil
	}
}

// safeJoin joins destDir and rel, refusing any result that would resolve
// outside destDir (spec.md §4.7/§8 testable property 8).
func safeJoin(destDir, rel string) (string, error) {
	cleaned := path.Clean("/" + rel)
	full := filepath.Join(destDir, filepath.FromSlash(cleaned))
	destClean := filepath.Clean(destDir)
	if full != destClean && !strings.HasPrefix(full, destClean+string(filepath.Separator)) {
		return "", errors.Wrapf(ErrPathEscapesDestination, "%s", rel)
	}
	return full, nil
}
