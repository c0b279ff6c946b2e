package spec

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/nscaledev/spackcore/pkg/version"
)

// DefaultTemplate matches the surface syntax Parse accepts, so that
// parse(format(s)) == s for s without edge attributes (spec.md §8
// testable property 1 / scenario S1).
const DefaultTemplate = `{name}{@version}{variants}{flags}{/hash}`

// Format resolves a template string against s, per spec.md §4.4: sigils
// (@, %, /, key=) print only when their value is non-empty; escaping uses
// backslash. color is accepted for interface parity but unused — color
// rendering is an outer-surface concern left to the CLI.
func (s *Spec) Format(template string, color bool) (string, error) {
	var b strings.Builder
	i := 0
	for i < len(template) {
		c := template[i]
		switch {
		case c == '\\' && i+1 < len(template):
			b.WriteByte(template[i+1])
			i += 2
		case c == '{':
			j := strings.IndexByte(template[i:], '}')
			if j < 0 {
				return "", errors.Wrapf(ErrBadSpecString, "unterminated field in template %q", template)
			}
			field := template[i+1 : i+j]
			val, err := s.resolveField(field)
			if err != nil {
				return "", err
			}
			b.WriteString(val)
			i += j + 1
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

func (s *Spec) resolveField(field string) (string, error) {
	switch {
	case field == "name":
		return s.Name, nil
	case field == "namespace":
		return s.Namespace, nil
	case field == "version":
		return s.Versions.String(), nil
	case field == "@version":
		v := s.Versions.String()
		if v == "" {
			return "", nil
		}
		// A concrete standard version is an exact pin ("@=X"); anything
		// else (range/list/git-ref) uses the bare "@" sigil, per
		// spec.md §6.1's vrange grammar.
		if s.Versions.Kind() == version.KindStandard {
			return "@=" + v, nil
		}
		return "@" + v, nil
	case field == "variants":
		return s.formatVariants(), nil
	case field == "flags":
		if f := s.Flags.String(); f != "" {
			return " " + f, nil
		}
		return "", nil
	case field == "arch":
		return s.Arch.String(), nil
	case field == "/hash" || field == "hash":
		if s.Hash == "" {
			return "", nil
		}
		return "/" + s.Hash, nil
	case strings.HasPrefix(field, "/hash:"):
		n := 0
		for _, r := range field[len("/hash:"):] {
			if r < '0' || r > '9' {
				return "", errors.Wrapf(ErrBadSpecString, "bad hash length in field %q", field)
			}
			n = n*10 + int(r-'0')
		}
		if s.Hash == "" {
			return "", nil
		}
		if n > len(s.Hash) {
			n = len(s.Hash)
		}
		return "/" + s.Hash[:n], nil
	case strings.HasPrefix(field, "variants."):
		name := field[len("variants."):]
		if v, ok := s.Variants[name]; ok {
			return v.String(), nil
		}
		return "", nil
	case strings.HasPrefix(field, "^") :
		return s.resolveDepField(field[1:])
	case strings.HasPrefix(field, " key="):
		key := strings.TrimSpace(field[len(" key="):])
		if v, ok := s.Variants[key]; ok {
			return " " + key + "=" + v.SingleValue(), nil
		}
		return "", nil
	default:
		return "", errors.Wrapf(ErrBadSpecString, "unknown template field %q", field)
	}
}

func (s *Spec) resolveDepField(rest string) (string, error) {
	idx := strings.IndexByte(rest, '.')
	if idx < 0 {
		return "", errors.Wrapf(ErrBadSpecString, "expected '^depname.attr' field, got %q", rest)
	}
	depName, attr := rest[:idx], rest[idx+1:]
	for _, e := range s.Dependencies {
		if e.Child.Name == depName {
			return e.Child.resolveField(attr)
		}
	}
	return "", nil
}

func (s *Spec) formatVariants() string {
	var b strings.Builder
	for _, name := range s.Variants.SortedNames() {
		v := s.Variants[name]
		b.WriteByte(' ')
		b.WriteString(v.String())
	}
	return b.String()
}

// FormatTree renders s and its full dependency closure using template for
// each node, emitting a "^" clause per dependency (followed by a separate
// "[deptypes=...]" and/or "[virtuals=...]" bracket when the edge carries
// non-default attributes) so that
// parse(FormatTree(s)) reconstructs an equal tree (spec.md §8 testable
// property 1).
func (s *Spec) FormatTree(template string, color bool) (string, error) {
	head, err := s.Format(template, color)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(head)
	for _, e := range s.Dependencies {
		b.WriteByte(' ')
		b.WriteString(edgeSigil(e))
		sub, err := e.Child.FormatTree(template, color)
		if err != nil {
			return "", err
		}
		b.WriteString(sub)
	}
	return b.String(), nil
}

// edgeSigil renders the "^" clause for e. A non-default edge emits one
// "[key=value]" bracket per attribute (rather than packing several into one
// bracket) so that re-parsing never has to disambiguate a comma serving
// double duty as both an attr separator and a typelist/name-list
// separator.
func edgeSigil(e *Edge) string {
	defaultTypes := DepTypeFlags(DepBuild | DepLink | DepRun)
	if e.DepTypes == defaultTypes && len(e.Virtuals) == 0 {
		return "^"
	}
	var b strings.Builder
	b.WriteByte('^')
	if len(depTypeNames(e.DepTypes)) > 0 {
		b.WriteString("[deptypes=" + strings.Join(depTypeNames(e.DepTypes), ",") + "]")
	}
	if len(e.Virtuals) > 0 {
		b.WriteString("[virtuals=" + strings.Join(e.virtualsSorted(), ",") + "]")
	}
	b.WriteByte(' ')
	return b.String()
}

func (s *Spec) String() string {
	out, err := s.FormatTree(DefaultTemplate, false)
	if err != nil {
		return s.Name
	}
	return out
}
