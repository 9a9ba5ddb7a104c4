// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Namelist implements View over the Fortran-namelist-flavored format
// original_source/parser.cpp parses: a sequence of
//
//	&name
//	    key = value,
//	    key2 = value2,
//	/
//
// blocks, with an int, float, single-quoted string, or bool value per
// key (original_source/ast.hpp's four leaf node types). This grammar
// is specific to this one configuration file and has no ecosystem
// library behind it (it is not TOML/YAML/INI), so it is hand-lexed
// and hand-parsed rather than grounded on a third-party dependency —
// see DESIGN.md.
type Namelist struct {
	sections map[string]map[string]interface{}
}

// Parse reads a namelist document from src.
func Parse(src string) (*Namelist, error) {
	p := &parser{lex: newLexer(src)}
	return p.parse()
}

func (nl *Namelist) Int(namelist, key string) (int, bool) {
	v, ok := nl.lookup(namelist, key)
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case int64:
		return int(x), true
	default:
		return 0, false
	}
}

func (nl *Namelist) Float(namelist, key string) (float64, bool) {
	v, ok := nl.lookup(namelist, key)
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	default:
		return 0, false
	}
}

func (nl *Namelist) String(namelist, key string) (string, bool) {
	v, ok := nl.lookup(namelist, key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (nl *Namelist) Bool(namelist, key string) (bool, bool) {
	v, ok := nl.lookup(namelist, key)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func (nl *Namelist) lookup(namelist, key string) (interface{}, bool) {
	sec, ok := nl.sections[namelist]
	if !ok {
		return nil, false
	}
	v, ok := sec[key]
	return v, ok
}

// --- lexer ---

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokAmp
	tokSlash
	tokEquals
	tokComma
	tokIdent
	tokInt
	tokFloat
	tokString
)

type token struct {
	kind tokenKind
	text string
}

type lexer struct {
	src []rune
	pos int
}

func newLexer(src string) *lexer {
	return &lexer{src: []rune(src)}
}

func (l *lexer) peekRune() (rune, bool) {
	if l.pos >= len(l.src) {
		return 0, false
	}
	return l.src[l.pos], true
}

func (l *lexer) next() (token, error) {
	l.skipSpaceAndComments()
	r, ok := l.peekRune()
	if !ok {
		return token{kind: tokEOF}, nil
	}
	switch {
	case r == '&':
		l.pos++
		return token{kind: tokAmp}, nil
	case r == '/':
		l.pos++
		return token{kind: tokSlash}, nil
	case r == '=':
		l.pos++
		return token{kind: tokEquals}, nil
	case r == ',':
		l.pos++
		return token{kind: tokComma}, nil
	case r == '\'':
		return l.lexString()
	case r == '-' || (r >= '0' && r <= '9'):
		return l.lexNumber()
	case isIdentStart(r):
		return l.lexIdent()
	default:
		return token{}, fmt.Errorf("namelist: unexpected character %q", r)
	}
}

func (l *lexer) skipSpaceAndComments() {
	for {
		r, ok := l.peekRune()
		if !ok {
			return
		}
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			l.pos++
			continue
		}
		if r == '!' {
			for {
				r, ok := l.peekRune()
				if !ok || r == '\n' {
					break
				}
				l.pos++
			}
			continue
		}
		return
	}
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}

func (l *lexer) lexIdent() (token, error) {
	start := l.pos
	for {
		r, ok := l.peekRune()
		if !ok || !isIdentPart(r) {
			break
		}
		l.pos++
	}
	return token{kind: tokIdent, text: string(l.src[start:l.pos])}, nil
}

func (l *lexer) lexString() (token, error) {
	l.pos++ // opening quote
	start := l.pos
	for {
		r, ok := l.peekRune()
		if !ok {
			return token{}, fmt.Errorf("namelist: unterminated string")
		}
		if r == '\'' {
			text := string(l.src[start:l.pos])
			l.pos++
			return token{kind: tokString, text: text}, nil
		}
		l.pos++
	}
}

func (l *lexer) lexNumber() (token, error) {
	start := l.pos
	isFloat := false
	if r, ok := l.peekRune(); ok && r == '-' {
		l.pos++
	}
	for {
		r, ok := l.peekRune()
		if !ok {
			break
		}
		if r >= '0' && r <= '9' {
			l.pos++
			continue
		}
		if r == '.' && !isFloat {
			isFloat = true
			l.pos++
			continue
		}
		break
	}
	text := string(l.src[start:l.pos])
	if isFloat {
		return token{kind: tokFloat, text: text}, nil
	}
	return token{kind: tokInt, text: text}, nil
}

// --- parser ---

type parser struct {
	lex *lexer
	cur token
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.cur = tok
	return nil
}

func (p *parser) parse() (*Namelist, error) {
	nl := &Namelist{sections: make(map[string]map[string]interface{})}
	if err := p.advance(); err != nil {
		return nil, err
	}
	for p.cur.kind != tokEOF {
		if p.cur.kind != tokAmp {
			return nil, fmt.Errorf("namelist: expected '&', got %q", p.cur.text)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.kind != tokIdent {
			return nil, fmt.Errorf("namelist: expected namelist name after '&'")
		}
		name := p.cur.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		section := nl.sections[name]
		if section == nil {
			section = make(map[string]interface{})
			nl.sections[name] = section
		}
		for p.cur.kind != tokSlash {
			if p.cur.kind == tokComma {
				if err := p.advance(); err != nil {
					return nil, err
				}
				continue
			}
			if p.cur.kind != tokIdent {
				return nil, fmt.Errorf("namelist: expected key, got %q in &%s", p.cur.text, name)
			}
			key := p.cur.text
			if err := p.advance(); err != nil {
				return nil, err
			}
			if p.cur.kind != tokEquals {
				return nil, fmt.Errorf("namelist: expected '=' after key %q", key)
			}
			if err := p.advance(); err != nil {
				return nil, err
			}
			val, err := p.parseValue()
			if err != nil {
				return nil, err
			}
			section[key] = val
			if err := p.advance(); err != nil {
				return nil, err
			}
		}
		if err := p.advance(); err != nil { // consume '/'
			return nil, err
		}
	}
	return nl, nil
}

func (p *parser) parseValue() (interface{}, error) {
	switch p.cur.kind {
	case tokInt:
		n, err := strconv.ParseInt(p.cur.text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("namelist: bad integer %q: %v", p.cur.text, err)
		}
		return n, nil
	case tokFloat:
		f, err := strconv.ParseFloat(p.cur.text, 64)
		if err != nil {
			return nil, fmt.Errorf("namelist: bad float %q: %v", p.cur.text, err)
		}
		return f, nil
	case tokString:
		return p.cur.text, nil
	case tokIdent:
		switch strings.ToLower(p.cur.text) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("namelist: unrecognized value %q", p.cur.text)
	default:
		return nil, fmt.Errorf("namelist: expected a value")
	}
}
