package expr

import (
	"strings"
	"unicode/utf8"
)

// cursor is a read position in the source. Methods return a new cursor and
// never modify the receiver, so a failed branch can simply be dropped.
type cursor struct {
	src string
	pos int
}

func (c cursor) eof() bool { return c.pos >= len(c.src) }

func (c cursor) peek() byte {
	if c.eof() {
		return 0
	}
	return c.src[c.pos]
}

func (c cursor) at(i int) byte {
	if c.pos+i >= len(c.src) {
		return 0
	}
	return c.src[c.pos+i]
}

func (c cursor) advance(n int) cursor {
	return cursor{src: c.src, pos: min(c.pos+n, len(c.src))}
}

// skip advances n bytes and past any following whitespace.
func (c cursor) skip(n int) cursor {
	c = c.advance(n)
	for !c.eof() && isSpace(c.peek()) {
		c.pos++
	}
	return c
}

// Parse parses a complete expression. It reports false when the input is not
// a single well-formed expression.
func Parse(src string) (*Expr, bool) {
	src = strings.TrimSpace(src)
	e, n, ok := ParsePrefix(src)
	if !ok || n != len(src) {
		return nil, false
	}
	return e, true
}

// ParsePrefix parses the longest expression at the start of src and returns
// it with the number of bytes consumed, including trailing whitespace.
func ParsePrefix(src string) (*Expr, int, bool) {
	e, c, ok := parseExpr(cursor{src: src})
	if !ok {
		return nil, 0, false
	}
	return e, c.pos, true
}

func parseExpr(c cursor) (*Expr, cursor, bool) {
	kind, n, ok := scanRoot(c)
	if !ok {
		return nil, c, false
	}
	e := &Expr{Root: c.src[c.pos : c.pos+n], Kind: kind}
	c = c.skip(n)

	// The root may be indexed but not called.
	idx, c, ok := parseIndexes(c)
	if !ok {
		return nil, c, false
	}
	for _, ix := range idx {
		e.Accessors = append(e.Accessors, Index{Expr: ix})
	}

	for c.peek() == '.' {
		c = c.skip(1)
		n := scanIdent(c)
		if n == 0 {
			return nil, c, false
		}
		m := Member{Name: c.src[c.pos : c.pos+n]}
		c = c.skip(n)
		if m.Call, m.Indexes, c, ok = parseCallOrIndexes(c); !ok {
			return nil, c, false
		}
		e.Accessors = append(e.Accessors, m)
	}
	return e, c, true
}

// parseIndexes parses zero or more "[expr]" groups.
func parseIndexes(c cursor) ([]*Expr, cursor, bool) {
	var out []*Expr
	for c.peek() == '[' {
		arg, next, ok := parseExpr(c.skip(1))
		if !ok || next.peek() != ']' {
			return nil, next, false
		}
		out = append(out, arg)
		c = next.skip(1)
	}
	return out, c, true
}

// parseCallOrIndexes parses the suffix of a member: either indexes, or an
// optional call followed by indexes.
func parseCallOrIndexes(c cursor) (*Call, []*Expr, cursor, bool) {
	idx, c, ok := parseIndexes(c)
	if !ok {
		return nil, nil, c, false
	}
	if len(idx) > 0 || c.peek() != '(' {
		return nil, idx, c, true
	}

	call := &Call{}
	c = c.skip(1)
	if c.peek() != ')' {
		for {
			arg, next, ok := parseExpr(c)
			if !ok {
				return nil, nil, next, false
			}
			call.Args = append(call.Args, arg)
			c = next
			if c.peek() == ')' {
				break
			}
			if c.peek() != ',' {
				return nil, nil, c, false
			}
			c = c.skip(1)
		}
	}
	c = c.skip(1)

	idx, c, ok = parseIndexes(c)
	if !ok {
		return nil, nil, c, false
	}
	return call, idx, c, true
}

// scanRoot recognises a root term and returns its kind and byte length.
func scanRoot(c cursor) (TermKind, int, bool) {
	for _, kw := range [...]struct {
		word string
		kind TermKind
	}{{"true", TermBoolean}, {"false", TermBoolean}, {"null", TermNull}} {
		if strings.HasPrefix(c.src[c.pos:], kw.word) && !isIdentPart(c.at(len(kw.word))) {
			return kw.kind, len(kw.word), true
		}
	}
	if n := scanIdent(c); n > 0 {
		return TermIdent, n, true
	}
	if n := scanNumber(c); n > 0 {
		return TermNumber, n, true
	}
	return scanQuoted(c)
}

func scanIdent(c cursor) int {
	if !isIdentStart(c.peek()) {
		return 0
	}
	n := 1
	for isIdentPart(c.at(n)) {
		n++
	}
	return n
}

// scanNumber matches -?digits(.digits)?
func scanNumber(c cursor) int {
	n := 0
	if c.peek() == '-' {
		n++
	}
	start := n
	for isDigit(c.at(n)) {
		n++
	}
	if n == start {
		return 0
	}
	if c.at(n) == '.' && isDigit(c.at(n+1)) {
		n++
		for isDigit(c.at(n)) {
			n++
		}
	}
	return n
}

func scanQuoted(c cursor) (TermKind, int, bool) {
	switch c.peek() {
	case '"':
		end := strings.IndexByte(c.src[c.pos+1:], '"')
		if end < 0 {
			return 0, 0, false
		}
		return TermString, end + 2, true
	case '\'':
		if c.at(1) != '\\' {
			r, size := utf8.DecodeRuneInString(c.src[c.pos+1:])
			if size == 0 || r == '\'' || c.at(1+size) != '\'' {
				return 0, 0, false
			}
			return TermChar, size + 2, true
		}
		if strings.IndexByte("frntv0", c.at(2)) >= 0 && c.at(2) != 0 && c.at(3) == '\'' {
			return TermEscapedChar, 4, true
		}
		if c.at(2) == 'u' && c.at(7) == '\'' {
			for i := 3; i < 7; i++ {
				if !isHexDigit(c.at(i)) {
					return 0, 0, false
				}
			}
			return TermUnicodeChar, 8, true
		}
	}
	return 0, 0, false
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r' || b == '\f' || b == '\v'
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isHexDigit(b byte) bool {
	return isDigit(b) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}

func isIdentStart(b byte) bool {
	return b == '_' || b == '$' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentPart(b byte) bool { return isIdentStart(b) || isDigit(b) }
