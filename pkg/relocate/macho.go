package relocate

import (
	"bytes"
	"encoding/binary"
	"os"

	"github.com/pkg/errors"
)

// Mach-O magic numbers and load command constants (spec.md §4.8
// relocate_macho_binaries); debug/macho parses these but does not expose
// each load command's on-disk byte offset, which an in-place patch
// needs, so this file walks the load command table directly.
const (
	machoMagic32 = 0xfeedface
	machoCigam32 = 0xcefaedfe
	machoMagic64 = 0xfeedfacf
	machoCigam64 = 0xcffaedfe

	lcRpath     = 0x8000001c
	lcLoadDylib = 0x0000000c
	lcIDDylib   = 0x0000000d
	lcReqDyld   = 0x80000000
)

// RelocateMachOBinary rewrites LC_RPATH, LC_LOAD_DYLIB, and LC_ID_DYLIB
// path strings in place. Only length-preserving substitutions are
// supported: a new prefix longer than its old prefix returns
// ErrMachoPatchFailure, since growing a load command would require
// shifting every later command and is out of scope for this engine. Code
// re-signing (spec.md §4.8: "on macOS, re-sign ... with an ad-hoc code
// signature") is the caller's responsibility via signer, which may be
// nil off macOS.
func RelocateMachOBinary(path string, m PrefixMap, signer CodeSigner) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()

	magicBuf := make([]byte, 4)
	if _, err := f.ReadAt(magicBuf, 0); err != nil {
		return errors.Wrapf(err, "reading mach-o magic from %s", path)
	}
	magic := binary.LittleEndian.Uint32(magicBuf)

	var bo binary.ByteOrder
	var is64 bool
	switch magic {
	case machoMagic32:
		bo, is64 = binary.LittleEndian, false
	case machoCigam32:
		bo, is64 = binary.BigEndian, false
	case machoMagic64:
		bo, is64 = binary.LittleEndian, true
	case machoCigam64:
		bo, is64 = binary.BigEndian, true
	default:
		return errors.Wrapf(ErrMachoPatchFailure, "%s is not a mach-o binary", path)
	}

	headerSize := int64(28)
	if is64 {
		headerSize = 32
	}
	hdr := make([]byte, headerSize)
	if _, err := f.ReadAt(hdr, 0); err != nil {
		return errors.Wrap(err, "reading mach-o header")
	}
	ncmds := bo.Uint32(hdr[16:20])

	changed := false
	offset := headerSize
	for i := uint32(0); i < ncmds; i++ {
		cmdHdr := make([]byte, 8)
		if _, err := f.ReadAt(cmdHdr, offset); err != nil {
			return errors.Wrap(err, "reading load command header")
		}
		cmd := bo.Uint32(cmdHdr[0:4]) &^ lcReqDyld
		cmdsize := int64(bo.Uint32(cmdHdr[4:8]))

		if cmd == lcRpath&^lcReqDyld || cmd == lcLoadDylib || cmd == lcIDDylib {
			c, err := patchMachOLoadCommand(f, bo, offset, cmdsize, m)
			if err != nil {
				return errors.Wrapf(ErrMachoPatchFailure, "%s: %s", path, err)
			}
			changed = changed || c
		}
		offset += cmdsize
	}

	if changed && signer != nil {
		return errors.Wrap(signer.SignAdHoc(path), "re-signing relocated mach-o binary")
	}
	return nil
}

func patchMachOLoadCommand(f *os.File, bo binary.ByteOrder, cmdOffset, cmdsize int64, m PrefixMap) (bool, error) {
	strOffField := make([]byte, 4)
	if _, err := f.ReadAt(strOffField, cmdOffset+8); err != nil {
		return false, err
	}
	strOff := int64(bo.Uint32(strOffField))
	strAt := cmdOffset + strOff
	strLen := cmdsize - strOff
	if strLen <= 0 {
		return false, nil
	}

	raw := make([]byte, strLen)
	if _, err := f.ReadAt(raw, strAt); err != nil {
		return false, err
	}
	nul := bytes.IndexByte(raw, 0)
	if nul < 0 {
		nul = len(raw)
	}
	cur := string(raw[:nul])

	replaced, changed, err := padReplace(cur, m, int(strLen))
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}
	_, err = f.WriteAt(replaced, strAt)
	return true, err
}

// CodeSigner re-signs a Mach-O binary with an ad-hoc signature after its
// load commands have been patched in place.
type CodeSigner interface {
	SignAdHoc(path string) error
}
