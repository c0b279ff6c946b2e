package relocate

import (
	"bytes"
	"fmt"
)

// padReplace substitutes every occurrence of m's old prefixes in s with
// its new prefix, then null-pads the result out to slotLen bytes — the
// shared length-preserving primitive relocate_elf_binaries and
// relocate_macho_binaries both patch structured binary fields with
// (spec.md §4.8). It reports changed=false, a nil error when s contains
// none of m's old prefixes (the field is left untouched), and an error
// when the substituted string would not fit in slotLen bytes.
func padReplace(s string, m PrefixMap, slotLen int) (replaced []byte, changed bool, err error) {
	out := s
	for _, p := range m.Pairs() {
		if bytes.Contains([]byte(out), []byte(p[0])) {
			out = string(bytes.ReplaceAll([]byte(out), []byte(p[0]), []byte(p[1])))
			changed = true
		}
	}
	if !changed {
		return nil, false, nil
	}
	if len(out) > slotLen {
		return nil, false, fmt.Errorf("relocated value %q (%d bytes) does not fit in existing %d-byte slot", out, len(out), slotLen)
	}
	buf := make([]byte, slotLen)
	copy(buf, out)
	return buf, true, nil
}
