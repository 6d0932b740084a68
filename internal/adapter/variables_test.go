package adapter

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/droidbug/internal/dap"
	"github.com/dshills/droidbug/internal/debugger"
	"github.com/dshills/droidbug/internal/jtype"
)

func TestHandleTable(t *testing.T) {
	h := newHandleTable()

	a := h.allocate(bigString{})
	b := h.allocate(bigString{})
	assert.NotEqual(t, a, b)
	assert.Greater(t, a, firstHandle)

	h.bind(frameID(3, 2), frameLocals{})
	_, ok := h.resolve(3*frameIDBase + 2)
	assert.True(t, ok)
	assert.Equal(t, 3, h.len())

	h.clear()
	assert.Equal(t, 0, h.len())
	_, ok = h.resolve(a)
	assert.False(t, ok)

	c := h.allocate(bigString{})
	assert.Greater(t, c, b, "handles are not reused after clear")
}

func TestHandlesSkipFrameIDs(t *testing.T) {
	h := newHandleTable()

	// Thread 0x1000 puts its first frame ids right after firstHandle.
	taken := frameID(0x1000, 1)
	require.Equal(t, firstHandle+1, taken)
	h.bind(taken, frameLocals{})

	got := h.allocate(bigString{})
	assert.NotEqual(t, taken, got)
	sl, ok := h.resolve(taken)
	require.True(t, ok)
	assert.IsType(t, frameLocals{}, sl.entry)
}

func TestFrameVariables(t *testing.T) {
	s, dbg, _ := newTestSession(t, loadScenario(t))
	ctx := context.Background()

	_, err := s.stackTrace(ctx, dap.StackTraceArguments{ThreadID: 1})
	require.NoError(t, err)

	vars, err := s.variables(ctx, frameID(1, 0))
	require.NoError(t, err)
	require.Len(t, vars, 4)

	assert.Equal(t, dap.Variable{Name: "count", Value: "42", Type: "int"}, vars[0])
	assert.Equal(t, `"hello"`, vars[1].Value)
	assert.Equal(t, "java.lang.String", vars[1].Type)
	assert.Zero(t, vars[1].VariablesReference)
	assert.Equal(t, "int[3]", vars[2].Value)
	assert.NotZero(t, vars[2].VariablesReference)
	assert.Equal(t, "MainActivity", vars[3].Value)
	assert.Equal(t, "com.example.app.MainActivity", vars[3].Type)

	// cached: a second request makes no agent call
	_, err = s.variables(ctx, frameID(1, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, dbg.Calls("Locals"))

	fields, err := s.variables(ctx, vars[3].VariablesReference)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	assert.Equal(t, "super", fields[0].Name)
	assert.Equal(t, "android.app.Activity", fields[0].Type)
	assert.NotZero(t, fields[0].VariablesReference)
	assert.Equal(t, dap.Variable{Name: "started", Value: "true", Type: "boolean"}, fields[1])

	elems, err := s.variables(ctx, vars[2].VariablesReference)
	require.NoError(t, err)
	require.Len(t, elems, 3)
	assert.Equal(t, "[0]", elems[0].Name)
	assert.Equal(t, "3", elems[2].Value)
}

func TestUnknownHandleIsEmpty(t *testing.T) {
	s, _, _ := newTestSession(t, loadScenario(t))

	vars, err := s.variables(context.Background(), 12345)
	require.NoError(t, err)
	assert.Empty(t, vars)
}

func TestLargeArrayIsPartitioned(t *testing.T) {
	sc := loadScenario(t)
	els := make([]debugger.Value, 250)
	for i := range els {
		els[i] = debugger.Value{
			Kind:  debugger.KindArrayElement,
			Name:  fmt.Sprintf("[%d]", i),
			Type:  jtype.Int,
			Raw:   fmt.Sprint(i),
			Valid: true,
		}
	}
	sc.Arrays["00000000000000b1"] = els
	s, dbg, _ := newTestSession(t, sc)
	ctx := context.Background()

	arr := debugger.Value{Type: jtype.Type{Name: "int[]", Signature: "[I"}, Raw: "00000000000000b1", ArrayLen: 250, Valid: true}
	s.mu.Lock()
	ref := s.handles.allocate(arraySlice{arr: arr, count: 250})
	s.mu.Unlock()

	ranges, err := s.variables(ctx, ref)
	require.NoError(t, err)
	require.Len(t, ranges, 3)
	assert.Equal(t, "[0..99]", ranges[0].Name)
	assert.Equal(t, "[100..199]", ranges[1].Name)
	assert.Equal(t, "[200..249]", ranges[2].Name)
	assert.Zero(t, dbg.Calls("ArrayValues"))

	tail, err := s.variables(ctx, ranges[2].VariablesReference)
	require.NoError(t, err)
	require.Len(t, tail, 50)
	assert.Equal(t, "[200]", tail[0].Name)
	assert.Equal(t, "249", tail[49].Value)
}

func TestBigStringExpandsToValue(t *testing.T) {
	sc := loadScenario(t)
	sc.Strings = map[string]string{"00000000000000c1": "a much longer string"}
	s, _, _ := newTestSession(t, sc)

	s.mu.Lock()
	v := s.displayValueLocked(debugger.Value{
		Name:   "msg",
		Type:   jtype.String,
		Raw:    "00000000000000c1",
		String: "a much",
		BigLen: 20,
		Valid:  true,
	}, true, false)
	s.mu.Unlock()
	assert.Equal(t, "String (length:20)", v.Value)
	require.NotZero(t, v.VariablesReference)

	rows, err := s.variables(context.Background(), v.VariablesReference)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "<value>", rows[0].Name)
	assert.Equal(t, `"a much longer string"`, rows[0].Value)
}

func TestDisplayValue(t *testing.T) {
	s, _, _ := newTestSession(t, loadScenario(t))
	obj := jtype.Type{Name: "Widget", Signature: "Lcom/example/Widget;", Package: "com.example"}

	tests := []struct {
		name      string
		value     debugger.Value
		expand    bool
		want      string
		expanding bool
	}{
		{"null reference", debugger.Value{Type: obj, Null: true, Raw: "0000000000000000"}, false, "null", false},
		{"root object", debugger.Value{Type: jtype.Object, Raw: "00000000000000d1"}, false, "Object", false},
		{"object", debugger.Value{Type: obj, Raw: "00000000000000d2"}, false, "Widget", true},
		{"empty array", debugger.Value{Type: jtype.Type{Name: "int[][]", Signature: "[[I"}}, false, "int[][0]", false},
		{"string", debugger.Value{Type: jtype.String, String: "say \"hi\"\n"}, false, `"say \"hi\"\n"`, false},
		{"string expandable", debugger.Value{Type: jtype.String, String: "abc"}, true, `"abc"`, true},
		{"char", debugger.Value{Type: jtype.Char, Raw: "x"}, false, "'x'", false},
		{"char newline", debugger.Value{Type: jtype.Char, Raw: "\n"}, false, `'\n'`, false},
		{"char quote", debugger.Value{Type: jtype.Char, Raw: "'"}, false, `'\''`, false},
		{"char nul", debugger.Value{Type: jtype.Char, Raw: "\x00"}, false, `'\0'`, false},
		{"char control", debugger.Value{Type: jtype.Char, Raw: "\x01"}, false, `'\u0001'`, false},
		{"long negative", debugger.Value{Type: jtype.Long, Raw: "ffffffffffffffff"}, false, "-1", false},
		{"long large", debugger.Value{Type: jtype.Long, Raw: "7fffffffffffffff"}, false, "9223372036854775807", false},
		{"int", debugger.Value{Type: jtype.Int, Raw: "-5"}, false, "-5", false},
		{"int expandable", debugger.Value{Type: jtype.Int, Raw: "-5"}, true, "-5", true},
		{"boolean expandable", debugger.Value{Type: jtype.Boolean, Raw: "true"}, true, "true", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s.mu.Lock()
			v := s.displayValueLocked(tt.value, true, tt.expand)
			s.mu.Unlock()
			assert.Equal(t, tt.want, v.Value)
			assert.Equal(t, tt.expanding, v.VariablesReference != 0)
		})
	}
}

func TestPrimitiveRows(t *testing.T) {
	values := func(rows []dap.Variable) map[string]string {
		m := make(map[string]string)
		for _, r := range rows {
			m[r.Name] = r.Value
		}
		return m
	}

	got := values(primitiveRows(primitiveView{signature: "I", value: "42"}))
	assert.Equal(t, map[string]string{
		"<binary>":  "00000000000000000000000000101010",
		"<decimal>": "42",
		"<hex>":     "0000002a",
	}, got)

	got = values(primitiveRows(primitiveView{signature: "S", value: "-1"}))
	assert.Equal(t, "1111111111111111", got["<binary>"])
	assert.Equal(t, "65535", got["<decimal>"])
	assert.Equal(t, "ffff", got["<hex>"])

	got = values(primitiveRows(primitiveView{signature: "B", value: "5"}))
	assert.Equal(t, "00000101", got["<binary>"])
	assert.Equal(t, "05", got["<hex>"])

	got = values(primitiveRows(primitiveView{signature: "J", value: "ffffffffffffffff"}))
	assert.Equal(t, "18446744073709551615", got["<decimal>"])
	assert.Equal(t, "ffffffffffffffff", got["<hex>"])
	assert.Len(t, got["<binary>"], 64)

	got = values(primitiveRows(primitiveView{signature: "J", value: "00000001000000ff"}))
	assert.Equal(t, "4294967551", got["<decimal>"])
	assert.Equal(t, "00000001000000ff", got["<hex>"])

	assert.Equal(t, map[string]string{"<charCode>": "65"},
		values(primitiveRows(primitiveView{signature: "C", value: "A"})))
	assert.Equal(t, map[string]string{"<length>": "3"},
		values(primitiveRows(primitiveView{signature: "Ljava/lang/String;", value: "3"})))
}

func TestVariablesAfterClearAreNotExpandable(t *testing.T) {
	s, _, _ := newTestSession(t, loadScenario(t))
	ctx := context.Background()

	_, err := s.stackTrace(ctx, dap.StackTraceArguments{ThreadID: 1})
	require.NoError(t, err)
	vars, err := s.variables(ctx, frameID(1, 0))
	require.NoError(t, err)
	ref := vars[3].VariablesReference

	s.mu.Lock()
	s.handles.clear()
	s.mu.Unlock()

	vars, err = s.variables(ctx, ref)
	require.NoError(t, err)
	assert.Empty(t, vars)
}
