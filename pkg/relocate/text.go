package relocate

import (
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// buildOredRegexp builds a single regex matching any of m's old prefixes,
// longest first so a nested prefix never shadows a more specific one
// (spec.md §4.8: "a single regex built from all old prefixes ORed
// together").
func buildOredRegexp(m PrefixMap) (*regexp.Regexp, error) {
	pairs := m.Pairs()
	if len(pairs) == 0 {
		return nil, nil
	}
	parts := make([]string, len(pairs))
	for i, p := range pairs {
		parts[i] = regexp.QuoteMeta(p[0])
	}
	return regexp.Compile(strings.Join(parts, "|"))
}

// RelocateText rewrites every old prefix in path's content to its
// corresponding new prefix via byte-level substring replacement; new
// prefixes may differ in length from old (spec.md §4.8 relocate_text).
func RelocateText(path string, m PrefixMap) error {
	re, err := buildOredRegexp(m)
	if err != nil {
		return errors.Wrap(err, "compiling prefix regexp")
	}
	if re == nil {
		return nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading %s", path)
	}
	lookup := map[string]string{}
	for _, p := range m.Pairs() {
		lookup[p[0]] = p[1]
	}
	replaced := re.ReplaceAllFunc(content, func(match []byte) []byte {
		return []byte(lookup[string(match)])
	})
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, "statting %s", path)
	}
	return errors.Wrapf(os.WriteFile(path, replaced, info.Mode()), "writing %s", path)
}
