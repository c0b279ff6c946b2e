package variant

import (
	"strings"

	"github.com/pkg/errors"
)

// ParseBool parses a "+name" or "~name" token, with an optional doubled
// sigil ("++name"/"~~name") marking propagation.
func ParseBool(tok string) (Variant, error) {
	if tok == "" {
		return Variant{}, errors.Wrapf(ErrBadToken, "empty boolean variant token")
	}
	sigil := tok[0]
	if sigil != '+' && sigil != '~' {
		return Variant{}, errors.Wrapf(ErrBadToken, "token %q", tok)
	}
	value := sigil == '+'
	rest := tok[1:]
	propagate := false
	if len(rest) > 0 && rest[0] == sigil {
		propagate = true
		rest = rest[1:]
	}
	if rest == "" {
		return Variant{}, errors.Wrapf(ErrBadToken, "token %q missing name", tok)
	}
	return NewBool(rest, value, propagate)
}

// ParseKeyValue parses a "name=value" or "name==value" (propagating) token.
// A comma-separated value list produces a multi-valued variant unless the
// name is a reserved compiler-flag kind, in which case the caller should use
// ParseFlag instead.
func ParseKeyValue(tok string) (Variant, error) {
	propagate := false
	idx := strings.Index(tok, "==")
	name, value := "", ""
	if idx >= 0 {
		propagate = true
		name, value = tok[:idx], tok[idx+2:]
	} else if idx = strings.IndexByte(tok, '='); idx >= 0 {
		name, value = tok[:idx], tok[idx+1:]
	} else {
		return Variant{}, errors.Wrapf(ErrBadToken, "token %q missing '='", tok)
	}
	if name == "" {
		return Variant{}, errors.Wrapf(ErrBadToken, "token %q missing name", tok)
	}
	if strings.Contains(value, ",") {
		return NewMulti(name, strings.Split(value, ","), propagate)
	}
	return NewSingle(name, value, propagate)
}

// ParseFlag parses a compiler-flag assignment "cflags=\"-O2 -g\"" into a
// FlagMap entry, splitting the quoted value on whitespace into individual
// tokens and assigning them a shared flag_group so their provenance as one
// multi-token string is preserved (spec.md §3.2).
func ParseFlag(kind FlagKind, group string, propagate bool) []Flag {
	fields := strings.Fields(group)
	out := make([]Flag, len(fields))
	for i, f := range fields {
		out[i] = Flag{Value: f, Propagate: propagate, FlagGroup: group}
	}
	return out
}
