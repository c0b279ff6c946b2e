package tarball

import "unicode/utf8"

// kind is a regular file's classification for relocation purposes
// (spec.md §4.7).
type kind int

const (
	kindUnknown kind = iota
	kindBinary
	kindText
)

// elfMagic is the four-byte ELF identification prefix.
var elfMagic = []byte{0x7f, 'E', 'L', 'F'}

// machoMagics lists every Mach-O (and fat binary) magic number, 32- and
// 64-bit, both byte orders.
var machoMagics = [][]byte{
	{0xfe, 0xed, 0xfa, 0xce}, // MH_MAGIC
	{0xce, 0xfa, 0xed, 0xfe}, // MH_CIGAM
	{0xfe, 0xed, 0xfa, 0xcf}, // MH_MAGIC_64
	{0xcf, 0xfa, 0xed, 0xfe}, // MH_CIGAM_64
	{0xca, 0xfe, 0xba, 0xbe}, // FAT_MAGIC
	{0xbe, 0xba, 0xfe, 0xca}, // FAT_CIGAM
}

// classify checks the leading bytes of a regular file's content for an ELF
// or Mach-O magic number (binary) and otherwise scans the whole content to
// decide between text (valid UTF-8 or ISO-8859-1 with no control bytes)
// and unknown.
func classify(content []byte) kind {
	if hasMagic(content, elfMagic) {
		return kindBinary
	}
	for _, m := range machoMagics {
		if hasMagic(content, m) {
			return kindBinary
		}
	}
	if isText(content) {
		return kindText
	}
	return kindUnknown
}

func hasMagic(content, magic []byte) bool {
	if len(content) < len(magic) {
		return false
	}
	for i, b := range magic {
		if content[i] != b {
			return false
		}
	}
	return true
}

// isText reports whether content is valid UTF-8, or else plausibly
// ISO-8859-1 (every byte is a valid Latin-1 code point, so this only
// rejects on the presence of control bytes), with no C0 control bytes
// other than tab, newline, and carriage return.
func isText(content []byte) bool {
	if len(content) == 0 {
		return true
	}
	if !utf8.Valid(content) {
		// ISO-8859-1 has no invalid byte sequences; fall through to the
		// control-byte check below.
	}
	for _, b := range content {
		if b == '\t' || b == '\n' || b == '\r' {
			continue
		}
		if b < 0x20 || b == 0x7f {
			return false
		}
	}
	return true
}
