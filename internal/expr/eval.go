package expr

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/dshills/droidbug/internal/debugger"
	"github.com/dshills/droidbug/internal/jtype"
	"github.com/dshills/droidbug/internal/wideint"
)

// NullReference is the raw value of the null literal.
const NullReference = "0000000000000000"

// Scope resolves identifiers to values of the current frame.
type Scope interface {
	Lookup(name string) (debugger.Value, bool)
}

// Locals is a Scope over a fetched list of frame locals.
type Locals []debugger.Value

// Lookup returns the first local with the given name.
func (l Locals) Lookup(name string) (debugger.Value, bool) {
	for _, v := range l {
		if v.Name == name {
			return v, true
		}
	}
	return debugger.Value{}, false
}

// Remote is the subset of the agent an evaluation may call.
// debugger.Debugger satisfies it.
type Remote interface {
	ArrayValues(ctx context.Context, arr debugger.Value, start, count int) ([]debugger.Value, error)
	FieldValues(ctx context.Context, obj debugger.Value) ([]debugger.Value, error)
	CreateString(ctx context.Context, text string) (debugger.Value, error)
}

// Evaluator evaluates parsed expressions against a scope.
type Evaluator struct {
	scope  Scope
	remote Remote
}

// NewEvaluator returns an evaluator. A nil scope resolves no identifiers.
func NewEvaluator(scope Scope, remote Remote) *Evaluator {
	if scope == nil {
		scope = Locals(nil)
	}
	return &Evaluator{scope: scope, remote: remote}
}

// EvaluateString parses and evaluates src.
func (ev *Evaluator) EvaluateString(ctx context.Context, src string) (debugger.Value, error) {
	e, ok := Parse(src)
	if !ok {
		return debugger.Value{}, ErrNotAvailable
	}
	return ev.Evaluate(ctx, e)
}

// Evaluate resolves e's root term and applies its accessors in order.
// Failures the user should see are returned as *Error; agent failures are
// returned wrapped.
func (ev *Evaluator) Evaluate(ctx context.Context, e *Expr) (debugger.Value, error) {
	v, err := ev.root(ctx, e)
	if err != nil {
		return debugger.Value{}, err
	}
	for _, acc := range e.Accessors {
		switch a := acc.(type) {
		case Index:
			v, err = ev.index(ctx, v, a.Expr)
		case Member:
			v, err = ev.member(ctx, v, a)
		}
		if err != nil {
			return debugger.Value{}, err
		}
	}
	return v, nil
}

func (ev *Evaluator) root(ctx context.Context, e *Expr) (debugger.Value, error) {
	switch e.Kind {
	case TermBoolean:
		return literal(jtype.Boolean, e.Root, false), nil
	case TermNull:
		return literal(jtype.Null, NullReference, true), nil
	case TermIdent:
		v, ok := ev.scope.Lookup(e.Root)
		if !ok || !v.Valid {
			return debugger.Value{}, ErrNotAvailable
		}
		return v, nil
	case TermNumber:
		return Number(e.Root), nil
	case TermChar, TermEscapedChar, TermUnicodeChar:
		return literal(jtype.Char, unescape(e.Root[1:len(e.Root)-1]), false), nil
	case TermString:
		v, err := ev.remote.CreateString(ctx, unescape(e.Root[1:len(e.Root)-1]))
		if err != nil {
			return debugger.Value{}, fmt.Errorf("create string: %w", err)
		}
		return v, nil
	}
	return debugger.Value{}, ErrNotAvailable
}

func (ev *Evaluator) index(ctx context.Context, arr debugger.Value, ix *Expr) (debugger.Value, error) {
	if !arr.Type.IsArray() {
		return debugger.Value{}, ErrNotArray
	}
	if arr.Null {
		return debugger.Value{}, ErrNullPointer
	}
	iv, err := ev.Evaluate(ctx, ix)
	if err != nil {
		return debugger.Value{}, err
	}
	if !iv.Type.IsInteger() {
		return debugger.Value{}, ErrIndexNotInteger
	}
	idx, err := indexValue(iv)
	if err != nil || idx < 0 || idx >= int64(arr.ArrayLen) {
		return debugger.Value{}, ErrOutOfBounds
	}
	els, err := ev.remote.ArrayValues(ctx, arr, int(idx), 1)
	if err != nil {
		return debugger.Value{}, fmt.Errorf("read array element: %w", err)
	}
	if len(els) == 0 {
		return debugger.Value{}, ErrNotAvailable
	}
	return els[0], nil
}

func (ev *Evaluator) member(ctx context.Context, obj debugger.Value, m Member) (debugger.Value, error) {
	if !obj.Type.IsReference() {
		return debugger.Value{}, ErrNotReference
	}
	if obj.Null {
		return debugger.Value{}, ErrNullPointer
	}
	if m.Call != nil {
		return debugger.Value{}, ErrMethodCall
	}

	var v debugger.Value
	if obj.Type.IsArray() && m.Name == "length" {
		v = Number(strconv.Itoa(obj.ArrayLen))
	} else {
		fields, err := ev.remote.FieldValues(ctx, obj)
		if err != nil {
			return debugger.Value{}, fmt.Errorf("read fields: %w", err)
		}
		found := false
		for _, f := range fields {
			if f.Name == m.Name {
				v, found = f, true
				break
			}
		}
		if !found {
			return debugger.Value{}, NoSuchFieldError(m.Name)
		}
	}

	var err error
	for _, ix := range m.Indexes {
		if v, err = ev.index(ctx, v, ix); err != nil {
			return debugger.Value{}, err
		}
	}
	return v, nil
}

var zeroNumber = regexp.MustCompile(`^-?0+(\.0*)?$`)

// Number builds a numeric literal. Text containing a decimal point is a
// double, anything else an int. Null is set when the value is zero.
func Number(text string) debugger.Value {
	t := jtype.Int
	if strings.Contains(text, ".") {
		t = jtype.Double
	}
	return literal(t, text, zeroNumber.MatchString(text))
}

func literal(t jtype.Type, raw string, null bool) debugger.Value {
	return debugger.Value{Kind: debugger.KindLiteral, Type: t, Raw: raw, Null: null, Valid: true}
}

// indexValue reads an integer-kind value. Longs arrive as hex.
func indexValue(v debugger.Value) (int64, error) {
	raw := v.Raw
	if v.Type.Signature == jtype.Long.Signature {
		dec, err := wideint.HexToDecimal(raw, true)
		if err != nil {
			return 0, err
		}
		raw = dec
	}
	return strconv.ParseInt(raw, 10, 64)
}

var escapes = map[byte]string{'f': "\f", 'r': "\r", 'n': "\n", 't': "\t", 'v': "\v", '0': "\x00"}

// unescape replaces backslash and \uXXXX escapes. Unknown escapes yield the
// escaped character itself.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		c := s[i+1]
		if c == 'u' && i+6 <= len(s) {
			if n, err := strconv.ParseUint(s[i+2:i+6], 16, 16); err == nil {
				b.WriteRune(rune(n))
				i += 5
				continue
			}
		}
		if x, ok := escapes[c]; ok {
			b.WriteString(x)
		} else {
			b.WriteByte(c)
		}
		i++
	}
	return b.String()
}
