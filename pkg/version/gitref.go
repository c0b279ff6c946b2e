package version

import (
	"strings"

	"github.com/pkg/errors"
)

// Resolver looks up the nearest reachable tag (as a Standard version) behind
// a git ref, along with the commit distance to it, for a given package
// identity (spec.md §3.1). It is supplied by the external package
// repository / fetcher, not by this package.
type Resolver func(packageName, ref string) (nearestTag Standard, distance int, err error)

// GitRef is a version pinned to a git ref (branch, tag, or commit) rather
// than a released version number. Its ordering is derived from the nearest
// reachable tag plus commit distance (spec.md §3.1, §4.1).
type GitRef struct {
	Ref      string
	Asserted *Standard // user-asserted version from "ref=version" syntax

	packageName string
	resolver    Resolver
	resolved    *Standard
}

// ParseGitRef parses "git.<ref>" or "<ref>=<version>" forms. A plain ref
// with no "=" is left to be resolved lazily via AttachResolver.
func ParseGitRef(s string) (GitRef, error) {
	ref := strings.TrimPrefix(s, "git.")
	if eq := strings.IndexByte(ref, '='); eq >= 0 {
		refPart, verPart := ref[:eq], ref[eq+1:]
		v, err := ParseStandard(verPart)
		if err != nil {
			return GitRef{}, errors.Wrapf(err, "parsing asserted version in git ref %q", s)
		}
		return GitRef{Ref: refPart, Asserted: &v}, nil
	}
	return GitRef{Ref: ref}, nil
}

// AttachResolver wires up the lazy tag resolver once the owning package
// identity is known (spec.md §3.1 "lazy resolver that, given a package
// identity, returns ...").
func (g *GitRef) AttachResolver(packageName string, r Resolver) {
	g.packageName = packageName
	g.resolver = r
	g.resolved = nil
}

// RefVersion returns the resolved standard version: the user-asserted
// version if present, otherwise the nearest tag with a "-git.<distance>"
// suffix appended when the ref is not exactly on a tag (spec.md §3.1).
func (g *GitRef) RefVersion() (Standard, error) {
	if g.Asserted != nil {
		return *g.Asserted, nil
	}
	if g.resolved != nil {
		return *g.resolved, nil
	}
	if g.resolver == nil {
		return Standard{}, errors.Wrapf(ErrUnresolvedGitRef, "ref %q", g.Ref)
	}
	tag, distance, err := g.resolver(g.packageName, g.Ref)
	if err != nil {
		return Standard{}, errors.Wrapf(err, "resolving git ref %q", g.Ref)
	}
	v := tag
	if distance > 0 {
		rel := append([]Component(nil), tag.Release...)
		rel = append(rel, Str("git"), Num(int64(distance)))
		v = Standard{Release: rel, Pre: tag.Pre}
	}
	g.resolved = &v
	return v, nil
}

// Equal compares two git-ref versions by ref identity and resolved version,
// per spec.md §4.1: git-ref versions never equal a standard version.
func (g *GitRef) Equal(o *GitRef) (bool, error) {
	if g.Ref != o.Ref {
		return false, nil
	}
	gv, err := g.RefVersion()
	if err != nil {
		return false, err
	}
	ov, err := o.RefVersion()
	if err != nil {
		return false, err
	}
	return gv.Equal(ov), nil
}

// Compare orders two git-ref versions by resolved ref version, then by ref
// string to keep a total order when two refs resolve to the same version.
func (g *GitRef) Compare(o *GitRef) (int, error) {
	gv, err := g.RefVersion()
	if err != nil {
		return 0, err
	}
	ov, err := o.RefVersion()
	if err != nil {
		return 0, err
	}
	if c := gv.Compare(ov); c != 0 {
		return c, nil
	}
	return strings.Compare(g.Ref, o.Ref), nil
}

// String prints "git.<ref>" followed by "=<version>" when a version is
// asserted or has already been resolved. It does not call the resolver, so
// a ref that has not been resolved yet prints as "git.<ref>" alone.
func (g *GitRef) String() string {
	s := "git." + g.Ref
	if g.Asserted != nil {
		return s + "=" + g.Asserted.String()
	}
	if g.resolved != nil {
		return s + "=" + g.resolved.String()
	}
	return s
}
