package spec

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/nscaledev/spackcore/pkg/variant"
	"github.com/nscaledev/spackcore/pkg/version"
)

// Parse builds the abstract Spec form from the surface syntax of spec.md
// §6.1:
//
//	spec  := name? ('@' vlist)? (sigil clause)*
//	sigil := '+' | '~' | '%' | '^' | '/' | '=' | key'=' | key'=='
//
// A leading "namespace.name" dotted form splits off the namespace. Compiler
// clauses ('%compiler') are modeled as a build-only dependency edge named
// after the compiler, per spec.md's "%compiler-as-build-dep".
func Parse(s string) (*Spec, error) {
	toks := tokenize(s)
	p := &parser{toks: toks}
	root, err := p.parseSpec()
	if err != nil {
		return nil, errors.Wrapf(err, "parsing spec %q", s)
	}
	if p.pos != len(p.toks) {
		return nil, errors.Wrapf(ErrBadSpecString, "trailing input in %q at token %d", s, p.pos)
	}
	return root, nil
}

type tokKind uint8

const (
	tokName tokKind = iota
	tokAt
	tokPlus
	tokTilde
	tokPercent
	tokCaret
	tokSlash
	tokEq
	tokEqEq
	tokLBracket
	tokRBracket
	tokString
)

type token struct {
	kind tokKind
	text string
}

// tokenize splits a spec string into sigil and text tokens, honoring
// double-quoted strings for flag values.
func tokenize(s string) []token {
	var toks []token
	i := 0
	n := len(s)
	flush := func(buf *strings.Builder) {
		if buf.Len() > 0 {
			toks = append(toks, token{kind: tokName, text: buf.String()})
			buf.Reset()
		}
	}
	var buf strings.Builder
	for i < n {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			flush(&buf)
			i++
		case c == '@':
			flush(&buf)
			toks = append(toks, token{kind: tokAt})
			i++
		case c == '+':
			flush(&buf)
			toks = append(toks, token{kind: tokPlus})
			i++
		case c == '~':
			flush(&buf)
			toks = append(toks, token{kind: tokTilde})
			i++
		case c == '%':
			flush(&buf)
			toks = append(toks, token{kind: tokPercent})
			i++
		case c == '^':
			flush(&buf)
			toks = append(toks, token{kind: tokCaret})
			i++
		case c == '/':
			flush(&buf)
			toks = append(toks, token{kind: tokSlash})
			i++
		case c == '[':
			flush(&buf)
			toks = append(toks, token{kind: tokLBracket})
			i++
		case c == ']':
			flush(&buf)
			toks = append(toks, token{kind: tokRBracket})
			i++
		case c == '=':
			flush(&buf)
			if i+1 < n && s[i+1] == '=' {
				toks = append(toks, token{kind: tokEqEq})
				i += 2
			} else {
				toks = append(toks, token{kind: tokEq})
				i++
			}
		case c == '"':
			j := i + 1
			for j < n && s[j] != '"' {
				j++
			}
			toks = append(toks, token{kind: tokString, text: s[i+1 : j]})
			if j < n {
				j++
			}
			i = j
		default:
			buf.WriteByte(c)
			i++
		}
	}
	flush(&buf)
	return toks
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

func (p *parser) next() (token, bool) {
	t, ok := p.peek()
	if ok {
		p.pos++
	}
	return t, ok
}

// parseSpec parses one "spec" production, stopping at a ']' or end of
// input so it composes inside a bracketed "when=" sub-spec.
func (p *parser) parseSpec() (*Spec, error) {
	s := New("")

	if t, ok := p.peek(); ok && t.kind == tokName {
		p.next()
		name := t.text
		if idx := strings.LastIndex(name, "."); idx >= 0 {
			s.Namespace, s.Name = name[:idx], name[idx+1:]
		} else {
			s.Name = name
		}
	}

	for {
		t, ok := p.peek()
		if !ok || t.kind == tokRBracket {
			break
		}
		switch t.kind {
		case tokAt:
			p.next()
			v, err := p.parseVersionClause()
			if err != nil {
				return nil, err
			}
			s.Versions = v
		case tokPlus, tokTilde:
			p.next()
			nt, ok := p.next()
			if !ok || nt.kind != tokName {
				return nil, errors.Wrapf(ErrBadSpecString, "expected variant name after sigil")
			}
			v, err := variant.NewBool(nt.text, t.kind == tokPlus, false)
			if err != nil {
				return nil, err
			}
			s.Variants[v.Name] = v
		case tokPercent:
			p.next()
			nt, ok := p.next()
			if !ok || nt.kind != tokName {
				return nil, errors.Wrapf(ErrBadSpecString, "expected compiler name after '%%'")
			}
			compiler := New(nt.text)
			if t2, ok := p.peek(); ok && t2.kind == tokAt {
				p.next()
				v, err := p.parseVersionClause()
				if err != nil {
					return nil, err
				}
				compiler.Versions = v
			}
			if _, err := s.AddDependency(compiler, DepTypeFlags(DepBuild), nil, true, nil); err != nil {
				return nil, err
			}
		case tokSlash:
			p.next()
			nt, ok := p.next()
			if !ok || nt.kind != tokName {
				return nil, errors.Wrapf(ErrBadSpecString, "expected hash prefix after '/'")
			}
			s.HashPrefix = nt.text
		case tokName:
			if err := p.parseKeyValueOrMultiValue(s); err != nil {
				return nil, err
			}
		case tokCaret:
			p.next()
			var depTypes DepTypeFlags
			var virtuals []string
			var when *Spec
			// Each "[key=value]" bracket carries exactly one edge attribute;
			// consecutive brackets accumulate, avoiding the ambiguity of a
			// bare comma serving double duty as both the attr separator and
			// the typelist/name-list separator within a single bracket.
			for {
				nt, ok := p.peek()
				if !ok || nt.kind != tokLBracket {
					break
				}
				p.next()
				attrs, err := p.parseEdgeAttrs()
				if err != nil {
					return nil, err
				}
				depTypes |= attrs.depTypes
				virtuals = append(virtuals, attrs.virtuals...)
				if attrs.when != nil {
					when = attrs.when
				}
				if nt2, ok := p.peek(); !ok || nt2.kind != tokRBracket {
					return nil, errors.Wrapf(ErrBadSpecString, "expected ']' closing edge attrs")
				}
				p.next()
			}
			if depTypes == 0 {
				depTypes = DepTypeFlags(DepBuild | DepLink | DepRun)
			}
			child, err := p.parseSpec()
			if err != nil {
				return nil, err
			}
			if _, err := s.AddDependency(child, depTypes, virtuals, false, when); err != nil {
				return nil, err
			}
		default:
			return nil, errors.Wrapf(ErrBadSpecString, "unexpected token at position %d", p.pos)
		}
	}

	return s, nil
}

// parseVersionClause parses the vlist grammar of spec.md §6.1 following an
// '@' sigil, including the "@=version" exact form whose leading '=' the
// tokenizer splits off as its own token.
func (p *parser) parseVersionClause() (version.Version, error) {
	prefix := ""
	if t, ok := p.peek(); ok && t.kind == tokEq {
		p.next()
		prefix = "="
	}
	vtok, ok := p.next()
	if !ok || vtok.kind != tokName {
		return version.Version{}, errors.Wrapf(ErrBadSpecString, "expected version after '@'")
	}
	return version.ParseList(prefix + vtok.text)
}

// parseKeyValueOrMultiValue handles "key=value" and "key==value"; a name
// token not followed by "=" or "==" is rejected with ErrBadSpecString.
func (p *parser) parseKeyValueOrMultiValue(s *Spec) error {
	nameTok, _ := p.next()
	name := nameTok.text

	eqTok, ok := p.peek()
	if !ok || (eqTok.kind != tokEq && eqTok.kind != tokEqEq) {
		return errors.Wrapf(ErrBadSpecString, "expected '=' after %q", name)
	}
	propagate := eqTok.kind == tokEqEq
	p.next()

	vt, ok := p.next()
	if !ok {
		return errors.Wrapf(ErrBadSpecString, "expected value after %q=", name)
	}
	value := vt.text

	if isFlagKind(name) {
		kind := variant.FlagKind(name)
		if s.Flags == nil {
			s.Flags = variant.FlagMap{}
		}
		s.Flags[kind] = append(s.Flags[kind], variant.ParseFlag(kind, value, propagate)...)
		return nil
	}

	var v variant.Variant
	var err error
	if strings.Contains(value, ",") {
		v, err = variant.NewMulti(name, strings.Split(value, ","), propagate)
	} else {
		v, err = variant.NewSingle(name, value, propagate)
	}
	if err != nil {
		return err
	}
	s.Variants[name] = v
	return nil
}

func isFlagKind(name string) bool {
	for _, k := range variant.AllFlagKinds {
		if string(k) == name {
			return true
		}
	}
	return false
}

type edgeAttrs struct {
	depTypes DepTypeFlags
	virtuals []string
	when     *Spec
}

// parseEdgeAttrs parses the key=value attributes inside one edge bracket
// (deptypes=..., virtuals=..., when=...). Several attributes in one bracket
// are separated by whitespace; a comma belongs to the current value.
func (p *parser) parseEdgeAttrs() (edgeAttrs, error) {
	var attrs edgeAttrs
	for {
		t, ok := p.peek()
		if !ok || t.kind == tokRBracket {
			return attrs, nil
		}
		if t.kind != tokName {
			return attrs, errors.Wrapf(ErrBadSpecString, "unexpected token in edge attrs")
		}
		p.next()
		key := t.text
		eqTok, ok := p.next()
		if !ok || eqTok.kind != tokEq {
			return attrs, errors.Wrapf(ErrBadSpecString, "expected '=' in edge attrs after %q", key)
		}
		vt, ok := p.next()
		if !ok {
			return attrs, errors.Wrapf(ErrBadSpecString, "expected value in edge attrs after %q=", key)
		}
		switch key {
		case "deptypes":
			for _, name := range strings.Split(vt.text, ",") {
				switch name {
				case "build":
					attrs.depTypes |= DepTypeFlags(DepBuild)
				case "link":
					attrs.depTypes |= DepTypeFlags(DepLink)
				case "run":
					attrs.depTypes |= DepTypeFlags(DepRun)
				case "test":
					attrs.depTypes |= DepTypeFlags(DepTest)
				}
			}
		case "virtuals":
			attrs.virtuals = strings.Split(vt.text, ",")
		case "when":
			when, err := Parse(strings.Trim(vt.text, "'"))
			if err != nil {
				return attrs, err
			}
			attrs.when = when
		}
	}
}
