package expr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/droidbug/internal/debugger"
	"github.com/dshills/droidbug/internal/jtype"
)

func TestParseRootKinds(t *testing.T) {
	tests := []struct {
		src  string
		root string
		kind TermKind
	}{
		{"true", "true", TermBoolean},
		{"false", "false", TermBoolean},
		{"null", "null", TermNull},
		{"nullable", "nullable", TermIdent},
		{"$x_1", "$x_1", TermIdent},
		{"42", "42", TermNumber},
		{"-1", "-1", TermNumber},
		{"3.25", "3.25", TermNumber},
		{"'a'", "'a'", TermChar},
		{`'\n'`, `'\n'`, TermEscapedChar},
		{`'\u0041'`, `'\u0041'`, TermUnicodeChar},
		{`"hi there"`, `"hi there"`, TermString},
		{"  value  ", "value", TermIdent},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			e, ok := Parse(tt.src)
			require.True(t, ok)
			assert.Equal(t, tt.root, e.Root)
			assert.Equal(t, tt.kind, e.Kind)
			assert.Empty(t, e.Accessors)
		})
	}
}

func TestParseAccessors(t *testing.T) {
	e, ok := Parse("a[1][i].b.c(x, 2)[0].d[k[3]]")
	require.True(t, ok)
	require.Len(t, e.Accessors, 5)

	ix, ok := e.Accessors[0].(Index)
	require.True(t, ok)
	assert.Equal(t, "1", ix.Expr.Root)
	assert.Equal(t, "i", e.Accessors[1].(Index).Expr.Root)

	b := e.Accessors[2].(Member)
	assert.Equal(t, "b", b.Name)
	assert.Nil(t, b.Call)

	c := e.Accessors[3].(Member)
	require.NotNil(t, c.Call)
	require.Len(t, c.Call.Args, 2)
	assert.Equal(t, "x", c.Call.Args[0].Root)
	require.Len(t, c.Indexes, 1)

	d := e.Accessors[4].(Member)
	require.Len(t, d.Indexes, 1)
	assert.Equal(t, "k", d.Indexes[0].Root)
	assert.Len(t, d.Indexes[0].Accessors, 1)
}

func TestParseMalformed(t *testing.T) {
	for _, src := range []string{
		"", "a +b", "a[", "a[1", "a.", "a.(1)", "f(1)", "'ab'", `"open`, "a b", "a.b(1,", `'\q'`, "1.",
	} {
		_, ok := Parse(src)
		assert.False(t, ok, src)
	}
}

func TestParsePrefix(t *testing.T) {
	e, n, ok := ParsePrefix("a.b rest")
	require.True(t, ok)
	assert.Equal(t, "a", e.Root)
	assert.Equal(t, 4, n)

	_, _, ok = ParsePrefix("+")
	assert.False(t, ok)
}

func TestNumber(t *testing.T) {
	tests := []struct {
		text string
		typ  jtype.Type
		zero bool
	}{
		{"5", jtype.Int, false},
		{"5.0", jtype.Double, false},
		{"0", jtype.Int, true},
		{"0.0", jtype.Double, true},
		{"000", jtype.Int, true},
		{"-0", jtype.Int, true},
		{"10", jtype.Int, false},
	}
	for _, tt := range tests {
		v := Number(tt.text)
		assert.Equal(t, tt.typ, v.Type, tt.text)
		assert.Equal(t, tt.zero, v.Null, tt.text)
		assert.Equal(t, tt.text, v.Raw)
	}
}

type fakeRemote struct {
	arrays  map[string][]debugger.Value
	fields  map[string][]debugger.Value
	strings []string
	err     error
}

func (f *fakeRemote) ArrayValues(_ context.Context, arr debugger.Value, start, count int) ([]debugger.Value, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.arrays[arr.Raw][start : start+count], nil
}

func (f *fakeRemote) FieldValues(_ context.Context, obj debugger.Value) ([]debugger.Value, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.fields[obj.Raw], nil
}

func (f *fakeRemote) CreateString(_ context.Context, text string) (debugger.Value, error) {
	f.strings = append(f.strings, text)
	return debugger.Value{Type: jtype.String, Raw: "00000000000000ff", String: text, Valid: true}, nil
}

var (
	intArray = jtype.Type{Name: "int[]", Signature: "[I"}
	point    = jtype.Type{Name: "Point", Signature: "Lcom/example/Point;", Package: "com.example"}
)

func intValue(name, raw string) debugger.Value {
	return debugger.Value{Name: name, Type: jtype.Int, Raw: raw, Valid: true}
}

func testEvaluator() (*Evaluator, *fakeRemote) {
	remote := &fakeRemote{
		arrays: map[string][]debugger.Value{
			"a1": {intValue("[0]", "7"), intValue("[1]", "8"), intValue("[2]", "9")},
		},
		fields: map[string][]debugger.Value{
			"p1": {
				intValue("x", "3"),
				{Name: "coords", Type: intArray, Raw: "a1", ArrayLen: 3, Valid: true},
				{Name: "next", Type: point, Null: true, Raw: NullReference, Valid: true},
			},
		},
	}
	locals := Locals{
		{Name: "arr", Type: intArray, Raw: "a1", ArrayLen: 3, Valid: true},
		{Name: "obj", Type: point, Raw: "p1", Valid: true},
		{Name: "nothing", Type: intArray, Null: true, Raw: NullReference, Valid: true},
		{Name: "n", Type: jtype.Int, Raw: "2", Valid: true},
		{Name: "big", Type: jtype.Long, Raw: "0000000000000001", Valid: true},
		{Name: "broken", Type: jtype.Int, Valid: false},
	}
	return NewEvaluator(locals, remote), remote
}

func TestEvaluateResults(t *testing.T) {
	ev, _ := testEvaluator()
	ctx := context.Background()

	tests := []struct {
		src string
		raw string
	}{
		{"arr[0]", "7"},
		{"arr[n]", "9"},
		{"arr[big]", "8"},
		{"arr.length", "3"},
		{"obj.x", "3"},
		{"obj.coords[2]", "9"},
		{"obj.coords.length", "3"},
		{"true", "true"},
		{"'x'", "x"},
		{`'\t'`, "\t"},
		{`'\u0041'`, "A"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			v, err := ev.EvaluateString(ctx, tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.raw, v.Raw)
		})
	}
}

func TestEvaluateNull(t *testing.T) {
	ev, _ := testEvaluator()
	v, err := ev.EvaluateString(context.Background(), "null")
	require.NoError(t, err)
	assert.True(t, v.Null)
	assert.Equal(t, jtype.Null, v.Type)
	assert.True(t, v.Type.IsReference())
}

func TestEvaluateErrors(t *testing.T) {
	ev, _ := testEvaluator()
	ctx := context.Background()

	tests := []struct {
		src string
		msg string
	}{
		{"foo[0]", "not available"},
		{"broken", "not available"},
		{"arr[", "not available"},
		{"arr[-1]", "BoundsError: array index out of bounds"},
		{"arr[3]", "BoundsError: array index out of bounds"},
		{"arr[1.0]", "TypeError: array index is not an integer value"},
		{"n[0]", "TypeError: value is not an array"},
		{"n.x", "TypeError: value is not a reference type"},
		{"nothing[0]", "NullPointerException"},
		{"obj.next.x", "NullPointerException"},
		{"null.x", "NullPointerException"},
		{"obj.missing", "no such field: missing"},
		{"obj.toString()", "Error: method calls are not supported"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			_, err := ev.EvaluateString(ctx, tt.src)
			var ee *Error
			require.True(t, errors.As(err, &ee), "got %v", err)
			assert.Equal(t, tt.msg, ee.Message)
		})
	}
}

func TestEvaluateStringLiteral(t *testing.T) {
	ev, remote := testEvaluator()
	v, err := ev.EvaluateString(context.Background(), `"a\tb\u0043"`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a\tbC"}, remote.strings)
	assert.Equal(t, "a\tbC", v.String)
}

func TestEvaluateRemoteFailure(t *testing.T) {
	ev, remote := testEvaluator()
	remote.err = errors.New("agent gone")
	_, err := ev.EvaluateString(context.Background(), "obj.x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent gone")
}
