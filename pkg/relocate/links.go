package relocate

import (
	"os"
	"strings"

	"github.com/pkg/errors"
)

// RelocateSymlink reads path's target, substitutes any of m's old
// prefixes for their new prefix, and recreates the symlink with the
// substituted target (spec.md §4.8 relocate_links).
func RelocateSymlink(path string, m PrefixMap) error {
	target, err := os.Readlink(path)
	if err != nil {
		return errors.Wrapf(ErrSymlinkRelocation, "%s: reading link: %s", path, err)
	}
	replaced := target
	changed := false
	for _, p := range m.Pairs() {
		if strings.HasPrefix(replaced, p[0]) {
			replaced = substitutePrefix(replaced, p[0], p[1])
			changed = true
		}
	}
	if !changed {
		return nil
	}
	if err := os.Remove(path); err != nil {
		return errors.Wrapf(ErrSymlinkRelocation, "%s: removing old link: %s", path, err)
	}
	if err := os.Symlink(replaced, path); err != nil {
		return errors.Wrapf(ErrSymlinkRelocation, "%s: creating new link: %s", path, err)
	}
	return nil
}

func substitutePrefix(s, old, new string) string {
	return new + s[len(old):]
}
