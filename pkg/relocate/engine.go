package relocate

import (
	"debug/elf"
	"debug/macho"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/nscaledev/spackcore/pkg/tarball"
)

// Options controls one Relocate call.
type Options struct {
	// Pad is the byte RelocateTextBin pads a shorter new prefix with;
	// zero value defaults to NullPad.
	Pad byte
	// Signer re-signs a relocated Mach-O binary; nil when not running on
	// macOS or when signing is skipped.
	Signer CodeSigner
}

// inodeKey identifies a file by device and inode, for the hardlink
// deduplication spec.md §4.8 requires: each inode is patched at most
// once.
type inodeKey struct {
	dev, ino uint64
}

// Relocate applies every operation spec.md §4.8 names over installDir,
// using buildInfo's recorded path lists to know which files need which
// treatment. On any failure, installDir is removed entirely and the
// original error is re-raised (spec.md §4.8's last paragraph).
func Relocate(installDir string, buildInfo *tarball.BuildInfo, m PrefixMap, opts Options) error {
	if err := relocate(installDir, buildInfo, m, opts); err != nil {
		os.RemoveAll(installDir)
		return err
	}
	return nil
}

func relocate(installDir string, buildInfo *tarball.BuildInfo, m PrefixMap, opts Options) error {
	pad := opts.Pad
	if pad == 0 {
		pad = NullPad
	}

	patched := map[inodeKey]bool{}

	for _, rel := range buildInfo.RelocateTextfiles {
		if err := RelocateText(filepath.Join(installDir, rel), m); err != nil {
			return errors.Wrapf(err, "relocating text file %s", rel)
		}
	}

	for _, rel := range buildInfo.RelocateBinaries {
		full := filepath.Join(installDir, rel)
		if done, skip := alreadyPatched(full, patched); skip {
			_ = done
			continue
		}
		if err := relocateBinary(full, m, pad, opts.Signer); err != nil {
			return errors.Wrapf(err, "relocating binary %s", rel)
		}
	}

	for _, rel := range buildInfo.RelocateLinks {
		if err := RelocateSymlink(filepath.Join(installDir, rel), m); err != nil {
			return errors.Wrapf(err, "relocating symlink %s", rel)
		}
	}

	return nil
}

// alreadyPatched reports whether full's inode has already been patched
// via some other hardlinked name, recording it as patched if not.
func alreadyPatched(full string, patched map[inodeKey]bool) (inodeKey, bool) {
	var st unix.Stat_t
	if err := unix.Lstat(full, &st); err != nil {
		return inodeKey{}, false
	}
	key := inodeKey{dev: uint64(st.Dev), ino: st.Ino}
	if patched[key] {
		return key, true
	}
	patched[key] = true
	return key, false
}

// relocateBinary classifies full as ELF, Mach-O, or otherwise, runs the
// matching structural patcher first for ELF/Mach-O, and then always runs
// relocate_text_bin over the whole file as the raw-content pass. A prefix
// that relocate_text_bin reports as too long fails with ErrPrefixTooLong.
func relocateBinary(full string, m PrefixMap, pad byte, signer CodeSigner) error {
	switch binaryFormat(full) {
	case formatELF:
		if err := RelocateELFBinary(full, m); err != nil {
			return err
		}
	case formatMachO:
		if err := RelocateMachOBinary(full, m, signer); err != nil {
			return err
		}
	}
	needsPatch, err := RelocateTextBin(full, m, pad)
	if err != nil {
		return err
	}
	if len(needsPatch) > 0 {
		return errors.Wrapf(ErrPrefixTooLong, "%s: prefixes %v need structural patching unsupported outside rpath/load-command fields", full, needsPatch)
	}
	return nil
}

type binFormat int

const (
	formatUnknown binFormat = iota
	formatELF
	formatMachO
)

func binaryFormat(path string) binFormat {
	f, err := os.Open(path)
	if err != nil {
		return formatUnknown
	}
	defer f.Close()

	magic := make([]byte, 4)
	if _, err := f.ReadAt(magic, 0); err != nil {
		return formatUnknown
	}
	if string(magic) == "\x7fELF" {
		return formatELF
	}
	if ef, err := elf.NewFile(f); err == nil {
		ef.Close()
		return formatELF
	}
	if mf, err := macho.NewFile(f); err == nil {
		mf.Close()
		return formatMachO
	}
	return formatUnknown
}
