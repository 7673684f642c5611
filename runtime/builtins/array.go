package builtins

import (
	"context"
	"strconv"
	"strings"

	rexxerrors "github.com/aledsdavies/rexxgo/core/errors"
	"github.com/aledsdavies/rexxgo/core/types"
	"github.com/aledsdavies/rexxgo/runtime/interp"
)

func init() {
	register("ARRAY_GET", arrayGetFn, interp.FunctionMeta{
		Category: "array", Description: "Returns the 1-based i-th element of arr, the REXX-indexed ARRAY_GET(arr, i) workaround for the forbidden arr[i] syntax.",
		Parameters: []string{"arr", "i"}, Returns: "value",
	})
	register("ARRAY_SET", arraySetFn, interp.FunctionMeta{
		Category: "array", Description: "Returns a copy of arr with its 1-based i-th element replaced by value; does not mutate arr in place.",
		Parameters: []string{"arr", "i", "value"}, Returns: "array",
	})
	register("ARRAY_LENGTH", arrayLengthFn, interp.FunctionMeta{
		Category: "array", Description: "Element count of arr, accepting both native arrays and stem-array objects.",
		Parameters: []string{"arr"}, Returns: "number",
	})
	register("JOIN", joinFn, interp.FunctionMeta{
		Category: "array", Description: "Joins arr's elements with sep, accepting both native arrays and stem-array objects.",
		Parameters: []string{"arr", "sep"}, Returns: "string",
	})
}

// itemsOf normalizes either a native Array value or a REXX stem-array
// object (numeric keys plus a "0" count entry) into an ordered slice, per
// spec.md §9: "JOIN and similar built-ins must accept both native ordered
// sequences and stem-array objects transparently."
func itemsOf(v types.Value) ([]types.Value, error) {
	switch v.Kind {
	case types.KindArray:
		return v.Items(), nil
	case types.KindObject:
		obj := v.Object()
		if obj == nil {
			return nil, nil
		}
		countVal, ok := obj.Get("0")
		if !ok {
			return nil, rexxerrors.New(rexxerrors.KindExpression, "object has no stem-array count entry \"0\"")
		}
		count, ok := countVal.ToNumber()
		if !ok {
			return nil, rexxerrors.New(rexxerrors.KindExpression, "stem-array count entry \"0\" is not numeric")
		}
		items := make([]types.Value, int(count))
		for i := 0; i < int(count); i++ {
			val, ok := obj.Get(strconv.Itoa(i + 1))
			if ok {
				items[i] = val
			}
		}
		return items, nil
	default:
		return nil, rexxerrors.Newf(rexxerrors.KindExpression, "expected an array or stem-array object, got %s", v.Kind)
	}
}

func arrayGetFn(_ context.Context, args map[string]types.Value, positional []types.Value) (types.Value, error) {
	arrV, _ := arg(0, "ARR", args, positional)
	items, err := itemsOf(arrV)
	if err != nil {
		return types.Undefined, err
	}
	iV, ok := arg(1, "I", args, positional)
	if !ok {
		return types.Undefined, rexxerrors.New(rexxerrors.KindExpression, "ARRAY_GET requires an index")
	}
	i, ok := iV.ToNumber()
	if !ok {
		return types.Undefined, rexxerrors.New(rexxerrors.KindExpression, "ARRAY_GET index must be numeric")
	}
	idx := int(i) - 1
	if idx < 0 || idx >= len(items) {
		return types.Undefined, nil
	}
	return items[idx], nil
}

func arraySetFn(_ context.Context, args map[string]types.Value, positional []types.Value) (types.Value, error) {
	arrV, _ := arg(0, "ARR", args, positional)
	items, err := itemsOf(arrV)
	if err != nil {
		return types.Undefined, err
	}
	iV, ok := arg(1, "I", args, positional)
	if !ok {
		return types.Undefined, rexxerrors.New(rexxerrors.KindExpression, "ARRAY_SET requires an index")
	}
	i, ok := iV.ToNumber()
	if !ok {
		return types.Undefined, rexxerrors.New(rexxerrors.KindExpression, "ARRAY_SET index must be numeric")
	}
	val, ok := arg(2, "VALUE", args, positional)
	if !ok {
		return types.Undefined, rexxerrors.New(rexxerrors.KindExpression, "ARRAY_SET requires a value")
	}

	idx := int(i) - 1
	if idx < 0 {
		return types.Undefined, rexxerrors.New(rexxerrors.KindExpression, "ARRAY_SET index must be >= 1")
	}
	out := make([]types.Value, len(items))
	copy(out, items)
	for len(out) <= idx {
		out = append(out, types.Undefined)
	}
	out[idx] = val
	return types.Array(out), nil
}

func arrayLengthFn(_ context.Context, args map[string]types.Value, positional []types.Value) (types.Value, error) {
	arrV, _ := arg(0, "ARR", args, positional)
	items, err := itemsOf(arrV)
	if err != nil {
		return types.Undefined, err
	}
	return types.Number(float64(len(items))), nil
}

func joinFn(_ context.Context, args map[string]types.Value, positional []types.Value) (types.Value, error) {
	arrV, _ := arg(0, "ARR", args, positional)
	items, err := itemsOf(arrV)
	if err != nil {
		return types.Undefined, err
	}
	sep := argOr(1, "SEP", args, positional, types.String(" "))
	parts := make([]string, len(items))
	for i, v := range items {
		parts[i] = v.String()
	}
	return types.String(strings.Join(parts, sep.String())), nil
}
