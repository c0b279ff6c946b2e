package relocate

import (
	"bytes"
	"debug/elf"
	"os"

	"github.com/pkg/errors"
)

// RelocateELFBinary rewrites an ELF binary's DT_RPATH/DT_RUNPATH dynamic
// entries and its PT_INTERP interpreter path in place, preserving every
// section's size (patchelf-equivalent semantics): a replacement that
// would not fit in the existing .dynstr/.interp byte span returns
// ErrElfPatchFailure rather than growing the file (spec.md §4.8
// relocate_elf_binaries).
func RelocateELFBinary(path string, m PrefixMap) error {
	ro, err := elf.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening %s as ELF", path)
	}
	defer ro.Close()

	dynstr := ro.Section(".dynstr")
	var dynstrData []byte
	if dynstr != nil {
		dynstrData, err = dynstr.Data()
		if err != nil {
			return errors.Wrap(err, "reading .dynstr")
		}
	}

	var rpathValues []string
	if v, err := ro.DynString(elf.DT_RPATH); err == nil {
		rpathValues = append(rpathValues, v...)
	}
	if v, err := ro.DynString(elf.DT_RUNPATH); err == nil {
		rpathValues = append(rpathValues, v...)
	}

	interp := ro.Section(".interp")
	var interpData []byte
	if interp != nil {
		interpData, err = interp.Data()
		if err != nil {
			return errors.Wrap(err, "reading .interp")
		}
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return errors.Wrapf(err, "reopening %s for write", path)
	}
	defer f.Close()

	if dynstr != nil {
		for _, rp := range rpathValues {
			idx := bytes.Index(dynstrData, []byte(rp))
			if idx < 0 {
				continue
			}
			replaced, changed, err := padReplace(rp, m, len(rp))
			if err != nil {
				return errors.Wrapf(ErrElfPatchFailure, "%s: rpath %q: %s", path, rp, err)
			}
			if !changed {
				continue
			}
			if _, err := f.WriteAt(replaced, int64(dynstr.Offset)+int64(idx)); err != nil {
				return errors.Wrap(err, "writing relocated rpath")
			}
		}
	}

	if interp != nil {
		nul := bytes.IndexByte(interpData, 0)
		if nul < 0 {
			nul = len(interpData)
		}
		cur := string(interpData[:nul])
		replaced, changed, err := padReplace(cur, m, len(interpData))
		if err != nil {
			return errors.Wrapf(ErrElfPatchFailure, "%s: interpreter %q: %s", path, cur, err)
		}
		if changed {
			if _, err := f.WriteAt(replaced, int64(interp.Offset)); err != nil {
				return errors.Wrap(err, "writing relocated interpreter path")
			}
		}
	}

	return nil
}
