package builtins

import (
	"context"
	"sort"
	"testing"

	"github.com/aledsdavies/rexxgo/core/types"
	"github.com/aledsdavies/rexxgo/runtime/interp"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistries(t *testing.T) (*interp.BuiltinRegistry, *interp.MetadataRegistry) {
	t.Helper()
	funcs := interp.NewBuiltinRegistry()
	meta := interp.NewMetadataRegistry()
	RegisterAll(funcs, meta)
	return funcs, meta
}

func call(t *testing.T, funcs *interp.BuiltinRegistry, name string, positional ...types.Value) types.Value {
	t.Helper()
	fn, ok := funcs.Lookup(name)
	require.True(t, ok, "expected %s to be registered", name)
	v, err := fn(context.Background(), map[string]types.Value{}, positional)
	require.NoError(t, err)
	return v
}

func TestRegisterAllWiresEveryBuiltinIntoBothRegistries(t *testing.T) {
	funcs, meta := newRegistries(t)
	for _, name := range []string{
		"UPPER", "LOWER", "LENGTH", "SUBSTR", "POS", "STRIP", "WORD", "WORDS", "SPLIT",
		"ABS", "SIGN", "MAX", "MIN", "TRUNC", "FORMAT",
		"ARRAY_GET", "ARRAY_SET", "ARRAY_LENGTH", "JOIN",
		"JSON_PARSE", "JSON_STRINGIFY",
	} {
		_, ok := funcs.Lookup(name)
		assert.True(t, ok, "%s should be registered into the BuiltinRegistry", name)
		_, ok = meta.Get(name)
		assert.True(t, ok, "%s should have metadata registered", name)
	}
}

func TestStringBuiltins(t *testing.T) {
	funcs, _ := newRegistries(t)

	assert.Equal(t, "ABC", call(t, funcs, "UPPER", types.String("abc")).Str())
	assert.Equal(t, "abc", call(t, funcs, "LOWER", types.String("ABC")).Str())

	n, _ := call(t, funcs, "LENGTH", types.String("hello")).ToNumber()
	assert.Equal(t, 5.0, n)

	assert.Equal(t, "ell", call(t, funcs, "SUBSTR", types.String("hello"), types.Number(2), types.Number(3)).Str())
	assert.Equal(t, "ello", call(t, funcs, "SUBSTR", types.String("hello"), types.Number(2)).Str())

	n, _ = call(t, funcs, "POS", types.String("l"), types.String("hello")).ToNumber()
	assert.Equal(t, 3.0, n)
	n, _ = call(t, funcs, "POS", types.String("z"), types.String("hello")).ToNumber()
	assert.Equal(t, 0.0, n)

	assert.Equal(t, "hi", call(t, funcs, "STRIP", types.String("  hi  ")).Str())

	assert.Equal(t, "brown", call(t, funcs, "WORD", types.String("the quick brown fox"), types.Number(3)).Str())
	n, _ = call(t, funcs, "WORDS", types.String("the quick brown fox")).ToNumber()
	assert.Equal(t, 4.0, n)

	split := call(t, funcs, "SPLIT", types.String("a,b,c"), types.String(","))
	require.Equal(t, types.KindArray, split.Kind)
	items := split.Items()
	require.Len(t, items, 3)
	assert.Equal(t, "a", items[0].Str())
	assert.Equal(t, "c", items[2].Str())
}

func TestNumericBuiltins(t *testing.T) {
	funcs, _ := newRegistries(t)

	n, _ := call(t, funcs, "ABS", types.Number(-8)).ToNumber()
	assert.Equal(t, 8.0, n)

	n, _ = call(t, funcs, "SIGN", types.Number(-8)).ToNumber()
	assert.Equal(t, -1.0, n)
	n, _ = call(t, funcs, "SIGN", types.Number(0)).ToNumber()
	assert.Equal(t, 0.0, n)

	n, _ = call(t, funcs, "MAX", types.Number(1), types.Number(9), types.Number(4)).ToNumber()
	assert.Equal(t, 9.0, n)
	n, _ = call(t, funcs, "MIN", types.Number(1), types.Number(9), types.Number(4)).ToNumber()
	assert.Equal(t, 1.0, n)

	n, _ = call(t, funcs, "TRUNC", types.Number(3.9)).ToNumber()
	assert.Equal(t, 3.0, n)

	assert.Equal(t, "3.14", call(t, funcs, "FORMAT", types.Number(3.14159), types.Number(2)).Str())
}

func TestMaxRequiresAtLeastOneArgument(t *testing.T) {
	funcs, _ := newRegistries(t)
	fn, ok := funcs.Lookup("MAX")
	require.True(t, ok)
	_, err := fn(context.Background(), map[string]types.Value{}, nil)
	require.Error(t, err)
}

func TestArrayBuiltinsOnNativeArray(t *testing.T) {
	funcs, _ := newRegistries(t)
	arr := types.Array([]types.Value{types.String("a"), types.String("b"), types.String("c")})

	assert.Equal(t, "b", call(t, funcs, "ARRAY_GET", arr, types.Number(2)).Str())

	n, _ := call(t, funcs, "ARRAY_LENGTH", arr).ToNumber()
	assert.Equal(t, 3.0, n)

	assert.Equal(t, "a-b-c", call(t, funcs, "JOIN", arr, types.String("-")).Str())

	replaced := call(t, funcs, "ARRAY_SET", arr, types.Number(2), types.String("X"))
	require.Equal(t, types.KindArray, replaced.Kind)
	assert.Equal(t, "X", replaced.Items()[1].Str())
	// ARRAY_SET must not mutate the original.
	assert.Equal(t, "b", arr.Items()[1].Str())
}

func TestArrayBuiltinsOnStemArrayObject(t *testing.T) {
	funcs, _ := newRegistries(t)
	obj := types.NewObject()
	obj.Set("0", types.Number(2))
	obj.Set("1", types.String("x"))
	obj.Set("2", types.String("y"))
	stem := types.ObjectValue(obj)

	n, _ := call(t, funcs, "ARRAY_LENGTH", stem).ToNumber()
	assert.Equal(t, 2.0, n)
	assert.Equal(t, "x-y", call(t, funcs, "JOIN", stem, types.String("-")).Str())
}

func TestJSONRoundTrip(t *testing.T) {
	funcs, _ := newRegistries(t)

	parsed := call(t, funcs, "JSON_PARSE", types.String(`{"a":1,"b":[true,false,null],"c":"x"}`))
	require.Equal(t, types.KindObject, parsed.Kind)

	a, ok := parsed.Object().Get("A")
	require.False(t, ok) // object keys are not canonicalized like variable names
	a, ok = parsed.Object().Get("a")
	require.True(t, ok)
	n, _ := a.ToNumber()
	assert.Equal(t, 1.0, n)

	b, ok := parsed.Object().Get("b")
	require.True(t, ok)
	require.Equal(t, types.KindArray, b.Kind)
	assert.True(t, b.Items()[0].Bool())
	assert.False(t, b.Items()[1].Bool())

	out := call(t, funcs, "JSON_STRINGIFY", parsed)
	require.Equal(t, types.KindString, out.Kind)

	reparsed := call(t, funcs, "JSON_PARSE", out)
	again, ok := reparsed.Object().Get("c")
	require.True(t, ok)
	assert.Equal(t, "x", again.Str())
}

func TestRegistryNamesMatchExactBuiltinSet(t *testing.T) {
	funcs, _ := newRegistries(t)
	want := []string{
		"ABS", "ARRAY_GET", "ARRAY_LENGTH", "ARRAY_SET",
		"FORMAT", "JOIN", "JSON_PARSE", "JSON_STRINGIFY",
		"LENGTH", "LOWER", "MAX", "MIN", "POS", "SIGN", "SPLIT",
		"STRIP", "SUBSTR", "TRUNC", "UPPER", "WORD", "WORDS",
	}
	got := funcs.Names()
	sort.Strings(got)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("registered builtin set mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONParseRejectsMalformedInput(t *testing.T) {
	funcs, _ := newRegistries(t)
	fn, ok := funcs.Lookup("JSON_PARSE")
	require.True(t, ok)
	_, err := fn(context.Background(), map[string]types.Value{}, []types.Value{types.String("{not valid")})
	require.Error(t, err)
}
