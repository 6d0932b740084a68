package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/dshills/droidbug/internal/dap"
	"github.com/dshills/droidbug/internal/debugger"
	"github.com/dshills/droidbug/internal/jtype"
	"github.com/dshills/droidbug/internal/wideint"
)

// splitThreshold is the element count above which an array range is shown
// as sub-ranges instead of elements.
const splitThreshold = 110

// variables answers a variables request for ref.
func (s *Session) variables(ctx context.Context, ref int) ([]dap.Variable, error) {
	s.mu.Lock()
	sl, ok := s.handles.resolve(ref)
	if !ok {
		s.mu.Unlock()
		return []dap.Variable{}, nil
	}
	if sl.loaded {
		vars := s.displayLocked(validOnly(sl.cached), true)
		s.mu.Unlock()
		return vars, nil
	}
	switch e := sl.entry.(type) {
	case primitiveView:
		s.mu.Unlock()
		return primitiveRows(e), nil
	case arraySlice:
		if e.count <= 0 {
			s.mu.Unlock()
			return []dap.Variable{}, nil
		}
		if e.count > splitThreshold {
			vars := s.splitLocked(e)
			s.mu.Unlock()
			return vars, nil
		}
	}
	gen := s.handles.gen
	s.mu.Unlock()

	vals, err := s.fetch(ctx, sl.entry)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := sl.entry.(frameLocals); ok {
		s.releaseLocalsLocked()
	}
	if err != nil {
		return nil, err
	}
	live := s.handles.gen == gen
	if _, big := sl.entry.(bigString); !big && live {
		sl.cached = vals
		sl.loaded = true
	}
	return s.displayLocked(validOnly(vals), live), nil
}

// fetch reads the values behind e from the agent. It must be called without
// the session lock.
func (s *Session) fetch(ctx context.Context, e entry) ([]debugger.Value, error) {
	switch e := e.(type) {
	case frameLocals:
		vals, err := s.dbg.Locals(ctx, e.frame.ThreadID, e.frame)
		if err != nil {
			return nil, fmt.Errorf("read locals: %w", err)
		}
		return vals, nil

	case objectFields:
		super, hasSuper, err := s.dbg.SuperType(ctx, e.obj)
		if err != nil {
			return nil, fmt.Errorf("read supertype: %w", err)
		}
		fields, err := s.dbg.FieldValues(ctx, e.obj)
		if err != nil {
			return nil, fmt.Errorf("read fields: %w", err)
		}
		if !hasSuper || super.IsRootObject() {
			return fields, nil
		}
		sv := debugger.Value{
			Kind:  debugger.KindSuper,
			Name:  "super",
			Type:  super,
			Raw:   e.obj.Raw,
			Valid: true,
		}
		return append([]debugger.Value{sv}, fields...), nil

	case arraySlice:
		vals, err := s.dbg.ArrayValues(ctx, e.arr, e.start, e.count)
		if err != nil {
			return nil, fmt.Errorf("read array elements: %w", err)
		}
		return vals, nil

	case bigString:
		text, err := s.dbg.StringChars(ctx, e.str)
		if err != nil {
			return nil, fmt.Errorf("read string: %w", err)
		}
		return []debugger.Value{{
			Kind:   debugger.KindString,
			Name:   "<value>",
			Type:   jtype.String,
			Raw:    e.str.Raw,
			String: text,
			Valid:  true,
		}}, nil
	}
	return nil, fmt.Errorf("unexpected handle entry %T", e)
}

// splitLocked partitions a large range into sub-range handles. Sub-ranges
// hold max(10^(floor(log10 n)-1), 100) elements; the last one may be shorter.
func (s *Session) splitLocked(e arraySlice) []dap.Variable {
	size := int(math.Pow(10, math.Floor(math.Log10(float64(e.count)))-1))
	if size < 100 {
		size = 100
	}
	end := e.start + e.count
	var vars []dap.Variable
	for i := e.start; i < end; i += size {
		n := min(size, end-i)
		ref := s.handles.allocate(arraySlice{arr: e.arr, start: i, count: n})
		vars = append(vars, dap.Variable{
			Name:               fmt.Sprintf("[%d..%d]", i, i+n-1),
			VariablesReference: ref,
		})
	}
	return vars
}

// displayLocked converts values to client variables. Handles are allocated
// only when live is set; values read from a table that was cleared during
// the fetch are shown without expansion.
func (s *Session) displayLocked(vals []debugger.Value, live bool) []dap.Variable {
	expand := s.display().ExpandablePrimitives
	vars := make([]dap.Variable, 0, len(vals))
	for _, v := range vals {
		vars = append(vars, s.displayValueLocked(v, live, expand))
	}
	return vars
}

func (s *Session) displayValueLocked(v debugger.Value, live, expand bool) dap.Variable {
	var e entry
	var text string

	t := v.Type
	switch {
	case t.IsReference() && v.Null:
		text = "null"
	case t.IsRootObject():
		text = t.Name
	case t.IsString():
		text = quote(v.String)
		switch {
		case v.BigLen > 0:
			e = bigString{str: v}
			text = fmt.Sprintf("String (length:%d)", v.BigLen)
		case expand:
			e = primitiveView{signature: t.Signature, value: strconv.Itoa(len([]rune(v.String)))}
		}
	case t.IsArray():
		if v.ArrayLen > 0 {
			e = arraySlice{arr: v, start: 0, count: v.ArrayLen}
		}
		text = arrayLabel(t.Name, v.ArrayLen)
	case t.IsObject():
		e = objectFields{obj: v}
		text = t.Name
	case t.Signature == jtype.Char.Signature:
		text = charLiteral(v.Raw)
	case t.Signature == jtype.Long.Signature:
		text = longDecimal(v.Raw)
	default:
		text = v.Raw
	}

	if expand && strings.Contains("IJBSC", t.Signature) && len(t.Signature) == 1 {
		e = primitiveView{signature: t.Signature, value: v.Raw}
	}

	ref := 0
	if e != nil && live {
		ref = s.handles.allocate(e)
	}
	return dap.Variable{
		Name:               v.Name,
		Type:               t.QualifiedName(),
		Value:              text,
		VariablesReference: ref,
	}
}

func validOnly(vals []debugger.Value) []debugger.Value {
	out := make([]debugger.Value, 0, len(vals))
	for _, v := range vals {
		if v.Valid {
			out = append(out, v)
		}
	}
	return out
}

// quote renders a string the way a JSON encoder would, without HTML escaping.
func quote(s string) string {
	var b strings.Builder
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return strconv.Quote(s)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// arrayLabel inserts the length into the last array bound: "int[][]" with
// length 3 becomes "int[][3]".
func arrayLabel(name string, length int) string {
	i := strings.LastIndex(name, "]")
	if i < 0 {
		return name
	}
	return name[:i] + strconv.Itoa(length) + name[i:]
}

var charEscapes = map[rune]string{
	'\f': `\f`, '\r': `\r`, '\n': `\n`, '\t': `\t`, '\v': `\v`, '\'': `\'`, '\\': `\\`,
}

func charLiteral(raw string) string {
	r := []rune(raw)
	if len(r) == 0 {
		return "''"
	}
	c := r[0]
	if esc, ok := charEscapes[c]; ok {
		return "'" + esc + "'"
	}
	if c == 0 {
		return `'\0'`
	}
	if c < 32 {
		return fmt.Sprintf(`'\u%04x'`, c)
	}
	return "'" + string(c) + "'"
}

// longDecimal renders a 64-bit hex value as signed decimal.
func longDecimal(raw string) string {
	dec, err := wideint.HexToDecimal(hexDigits(raw), true)
	if err != nil {
		return raw
	}
	return dec
}

func hexDigits(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
			return r
		}
		return -1
	}, s)
}

// primitiveRows renders the alternate-base rows of a primitive view.
func primitiveRows(p primitiveView) []dap.Variable {
	row := func(name, value string) dap.Variable {
		return dap.Variable{Name: name, Value: value}
	}
	switch p.signature {
	case jtype.String.Signature:
		return []dap.Variable{row("<length>", p.value)}

	case jtype.Char.Signature:
		code := 0
		if r := []rune(p.value); len(r) > 0 {
			code = int(r[0])
		}
		return []dap.Variable{row("<charCode>", strconv.Itoa(code))}

	case jtype.Long.Signature:
		hex := strings.Repeat("0", 16) + hexDigits(p.value)
		hex = hex[len(hex)-16:]
		hi, _ := strconv.ParseUint(hex[:8], 16, 32)
		lo, _ := strconv.ParseUint(hex[8:], 16, 32)
		dec, err := wideint.HexToDecimal(hex, false)
		if err != nil {
			dec = hex
		}
		return []dap.Variable{
			row("<binary>", fmt.Sprintf("%032b%032b", hi, lo)),
			row("<decimal>", dec),
			row("<hex>", fmt.Sprintf("%08x%08x", hi, lo)),
		}
	}

	bits := jtype.Type{Signature: p.signature}.Bits()
	n, err := strconv.ParseInt(strings.TrimSpace(p.value), 10, 64)
	if err != nil || bits == 0 {
		return []dap.Variable{row("<decimal>", p.value)}
	}
	u := uint64(n) & (1<<bits - 1)
	return []dap.Variable{
		row("<binary>", fmt.Sprintf("%0*b", bits, u)),
		row("<decimal>", strconv.FormatUint(u, 10)),
		row("<hex>", fmt.Sprintf("%0*x", bits/4, u)),
	}
}
