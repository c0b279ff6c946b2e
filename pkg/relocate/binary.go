package relocate

import (
	"bytes"
	"os"

	"github.com/pkg/errors"
)

// NullPad is the default placeholder byte relocate_text_bin pads a
// shorter new prefix with.
const NullPad = 0x00

// RelocateTextBin performs the same substitution as RelocateText but
// length-preserving: every old-prefix occurrence is replaced by the new
// prefix padded with trailing pad bytes to the old prefix's length. A
// match whose new prefix is longer than its old prefix cannot be
// substituted in place; NeedsPatch names every such old prefix so the
// caller can fall back to RelocateELFBinary/RelocateMachOBinary, which
// rewrite the containing structure (rpath entries, load-command strings)
// rather than raw content bytes (spec.md §4.8 relocate_text_bin).
func RelocateTextBin(path string, m PrefixMap, pad byte) (needsPatch []string, err error) {
	pairs := m.Pairs()
	if len(pairs) == 0 {
		return nil, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}

	for _, p := range pairs {
		old, new := []byte(p[0]), []byte(p[1])
		if !bytes.Contains(content, old) {
			continue
		}
		if len(new) > len(old) {
			needsPatch = append(needsPatch, p[0])
			continue
		}
		padded := append(append([]byte(nil), new...), bytes.Repeat([]byte{pad}, len(old)-len(new))...)
		content = bytes.ReplaceAll(content, old, padded)
	}

	if len(needsPatch) > 0 {
		return needsPatch, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "statting %s", path)
	}
	return nil, errors.Wrapf(os.WriteFile(path, content, info.Mode()), "writing %s", path)
}
