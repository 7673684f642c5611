package builtins

import (
	"context"
	"strings"

	rexxerrors "github.com/aledsdavies/rexxgo/core/errors"
	"github.com/aledsdavies/rexxgo/core/types"
	"github.com/aledsdavies/rexxgo/runtime/interp"
)

func init() {
	register("UPPER", upperFn, interp.FunctionMeta{
		Category: "string", Description: "Uppercases a string.",
		Parameters: []string{"value"}, Returns: "string",
		Examples: []string{`UPPER("abc") -> "ABC"`},
	})
	register("LOWER", lowerFn, interp.FunctionMeta{
		Category: "string", Description: "Lowercases a string.",
		Parameters: []string{"value"}, Returns: "string",
	})
	register("LENGTH", lengthFn, interp.FunctionMeta{
		Category: "string", Description: "Returns the character length of a value's string form.",
		Parameters: []string{"value"}, Returns: "number",
		Examples: []string{`"hello" |> UPPER |> LENGTH -> 5`},
	})
	register("SUBSTR", substrFn, interp.FunctionMeta{
		Category: "string", Description: "Returns a 1-based substring, classic REXX SUBSTR(string, start, length?).",
		Parameters: []string{"value", "start", "length"}, Returns: "string",
	})
	register("POS", posFn, interp.FunctionMeta{
		Category: "string", Description: "Returns the 1-based position of needle in haystack, or 0 if absent.",
		Parameters: []string{"needle", "haystack"}, Returns: "number",
	})
	register("STRIP", stripFn, interp.FunctionMeta{
		Category: "string", Description: "Trims leading and trailing whitespace.",
		Parameters: []string{"value"}, Returns: "string",
	})
	register("WORD", wordFn, interp.FunctionMeta{
		Category: "string", Description: "Returns the n-th (1-based) whitespace-delimited word.",
		Parameters: []string{"value", "n"}, Returns: "string",
	})
	register("WORDS", wordsFn, interp.FunctionMeta{
		Category: "string", Description: "Counts whitespace-delimited words.",
		Parameters: []string{"value"}, Returns: "number",
	})
	register("SPLIT", splitFn, interp.FunctionMeta{
		Category: "string", Description: "Splits value on sep into an array.",
		Parameters: []string{"value", "sep"}, Returns: "array",
	})
}

func upperFn(_ context.Context, args map[string]types.Value, positional []types.Value) (types.Value, error) {
	v, _ := arg(0, "VALUE", args, positional)
	return types.String(strings.ToUpper(v.String())), nil
}

func lowerFn(_ context.Context, args map[string]types.Value, positional []types.Value) (types.Value, error) {
	v, _ := arg(0, "VALUE", args, positional)
	return types.String(strings.ToLower(v.String())), nil
}

func lengthFn(_ context.Context, args map[string]types.Value, positional []types.Value) (types.Value, error) {
	v, _ := arg(0, "VALUE", args, positional)
	return types.Number(float64(len([]rune(v.String())))), nil
}

func substrFn(_ context.Context, args map[string]types.Value, positional []types.Value) (types.Value, error) {
	v, _ := arg(0, "VALUE", args, positional)
	runes := []rune(v.String())

	startV, ok := arg(1, "START", args, positional)
	if !ok {
		return types.Undefined, rexxerrors.New(rexxerrors.KindExpression, "SUBSTR requires a start position")
	}
	start, ok := startV.ToNumber()
	if !ok {
		return types.Undefined, rexxerrors.New(rexxerrors.KindExpression, "SUBSTR start position must be numeric")
	}
	from := int(start) - 1
	if from < 0 {
		from = 0
	}
	if from >= len(runes) {
		return types.String(""), nil
	}

	length := len(runes) - from
	if lenV, ok := arg(2, "LENGTH", args, positional); ok {
		n, ok := lenV.ToNumber()
		if !ok {
			return types.Undefined, rexxerrors.New(rexxerrors.KindExpression, "SUBSTR length must be numeric")
		}
		length = int(n)
	}
	to := from + length
	if to > len(runes) {
		to = len(runes)
	}
	if to < from {
		to = from
	}
	return types.String(string(runes[from:to])), nil
}

func posFn(_ context.Context, args map[string]types.Value, positional []types.Value) (types.Value, error) {
	needle, _ := arg(0, "NEEDLE", args, positional)
	haystack, _ := arg(1, "HAYSTACK", args, positional)
	idx := strings.Index(haystack.String(), needle.String())
	if idx < 0 {
		return types.Number(0), nil
	}
	return types.Number(float64(idx + 1)), nil
}

func stripFn(_ context.Context, args map[string]types.Value, positional []types.Value) (types.Value, error) {
	v, _ := arg(0, "VALUE", args, positional)
	return types.String(strings.TrimSpace(v.String())), nil
}

func wordFn(_ context.Context, args map[string]types.Value, positional []types.Value) (types.Value, error) {
	v, _ := arg(0, "VALUE", args, positional)
	nV, ok := arg(1, "N", args, positional)
	if !ok {
		return types.Undefined, rexxerrors.New(rexxerrors.KindExpression, "WORD requires a word index")
	}
	n, ok := nV.ToNumber()
	if !ok {
		return types.Undefined, rexxerrors.New(rexxerrors.KindExpression, "WORD index must be numeric")
	}
	words := strings.Fields(v.String())
	i := int(n) - 1
	if i < 0 || i >= len(words) {
		return types.String(""), nil
	}
	return types.String(words[i]), nil
}

func wordsFn(_ context.Context, args map[string]types.Value, positional []types.Value) (types.Value, error) {
	v, _ := arg(0, "VALUE", args, positional)
	return types.Number(float64(len(strings.Fields(v.String())))), nil
}

func splitFn(_ context.Context, args map[string]types.Value, positional []types.Value) (types.Value, error) {
	v, _ := arg(0, "VALUE", args, positional)
	sep := argOr(1, "SEP", args, positional, types.String(" "))
	parts := strings.Split(v.String(), sep.String())
	items := make([]types.Value, len(parts))
	for i, p := range parts {
		items[i] = types.String(p)
	}
	return types.Array(items), nil
}
