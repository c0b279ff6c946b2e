package arch

import (
	"strings"

	"github.com/pkg/errors"
)

// ArchSpec is (platform, os, target) per spec.md §3.3. Any field may be
// empty in abstract form.
type ArchSpec struct {
	Platform string
	OS       string
	Target   Target
}

// Parse parses the "platform-os-target" surface form; any of the three
// components may be the empty string, denoted by consecutive or missing
// dashes, e.g. "-os-" leaves platform and target unset.
func Parse(s string) (ArchSpec, error) {
	if s == "" {
		return ArchSpec{}, nil
	}
	parts := strings.SplitN(s, "-", 3)
	if len(parts) != 3 {
		return ArchSpec{}, errors.Wrapf(ErrBadTarget, "architecture %q must be platform-os-target", s)
	}
	tgt, err := ParseTarget(parts[2])
	if err != nil {
		return ArchSpec{}, errors.Wrapf(err, "architecture %q", s)
	}
	return ArchSpec{Platform: parts[0], OS: parts[1], Target: tgt}, nil
}

// IsConcrete reports whether platform, os, and target are all set and
// target denotes a single microarchitecture (spec.md §4.3).
func (a ArchSpec) IsConcrete() bool {
	return a.Platform != "" && a.OS != "" && a.Target.IsConcrete()
}

// Intersects reports whether a and o can denote a common architecture:
// platform and OS must match whenever both are set, and targets must
// overlap under the microarchitecture order (spec.md §4.3).
func (a ArchSpec) Intersects(o ArchSpec) bool {
	if a.Platform != "" && o.Platform != "" && a.Platform != o.Platform {
		return false
	}
	if a.OS != "" && o.OS != "" && a.OS != o.OS {
		return false
	}
	_, ok := a.Target.Intersect(o.Target)
	return ok
}

// Constrain fills missing fields in a from o and narrows the target range,
// per spec.md §4.3. Fails with ErrUnsatisfiableArchitecture when platform,
// os, or target have empty intersection. Returns whether a changed.
func (a *ArchSpec) Constrain(o ArchSpec) (bool, error) {
	changed := false
	if a.Platform == "" {
		if o.Platform != "" {
			a.Platform = o.Platform
			changed = true
		}
	} else if o.Platform != "" && a.Platform != o.Platform {
		return false, errors.Wrapf(ErrUnsatisfiableArchitecture, "platform %q vs %q", a.Platform, o.Platform)
	}

	if a.OS == "" {
		if o.OS != "" {
			a.OS = o.OS
			changed = true
		}
	} else if o.OS != "" && a.OS != o.OS {
		return false, errors.Wrapf(ErrUnsatisfiableArchitecture, "os %q vs %q", a.OS, o.OS)
	}

	merged, ok := a.Target.Intersect(o.Target)
	if !ok {
		return false, errors.Wrapf(ErrUnsatisfiableArchitecture, "target %q vs %q", a.Target, o.Target)
	}
	if merged.String() != a.Target.String() {
		a.Target = merged
		changed = true
	}
	return changed, nil
}

// Satisfies reports whether a concretely satisfies the (possibly abstract)
// required architecture: every set field of required must match or be
// contained in a.
func (a ArchSpec) Satisfies(required ArchSpec) bool {
	if required.Platform != "" && required.Platform != a.Platform {
		return false
	}
	if required.OS != "" && required.OS != a.OS {
		return false
	}
	if a.Target.IsConcrete() {
		return required.Target.Contains(a.Target.Single())
	}
	_, ok := a.Target.Intersect(required.Target)
	return ok
}

func (a ArchSpec) String() string {
	if a.Platform == "" && a.OS == "" && a.Target.String() == "" {
		return ""
	}
	return a.Platform + "-" + a.OS + "-" + a.Target.String()
}
