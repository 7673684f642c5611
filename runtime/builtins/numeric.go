package builtins

import (
	"context"
	"math"
	"strconv"

	rexxerrors "github.com/aledsdavies/rexxgo/core/errors"
	"github.com/aledsdavies/rexxgo/core/types"
	"github.com/aledsdavies/rexxgo/runtime/interp"
)

func init() {
	register("ABS", absFn, interp.FunctionMeta{
		Category: "numeric", Description: "Absolute value.",
		Parameters: []string{"value"}, Returns: "number",
		Examples: []string{`5 + 3 |> ABS -> 8`},
	})
	register("SIGN", signFn, interp.FunctionMeta{
		Category: "numeric", Description: "Returns -1, 0, or 1.",
		Parameters: []string{"value"}, Returns: "number",
	})
	register("MAX", maxFn, interp.FunctionMeta{
		Category: "numeric", Description: "Largest of one or more numeric arguments.",
		Parameters: []string{"values..."}, Returns: "number",
	})
	register("MIN", minFn, interp.FunctionMeta{
		Category: "numeric", Description: "Smallest of one or more numeric arguments.",
		Parameters: []string{"values..."}, Returns: "number",
	})
	register("TRUNC", truncFn, interp.FunctionMeta{
		Category: "numeric", Description: "Truncates to an integer, discarding the fractional part.",
		Parameters: []string{"value"}, Returns: "number",
	})
	register("FORMAT", formatFn, interp.FunctionMeta{
		Category: "numeric", Description: "Formats a number to a fixed number of decimal places.",
		Parameters: []string{"value", "decimals"}, Returns: "string",
	})
}

func toNum(v types.Value) (float64, error) {
	n, ok := v.ToNumber()
	if !ok {
		return 0, rexxerrors.Newf(rexxerrors.KindExpression, "expected a numeric value, got %q", v.String())
	}
	return n, nil
}

func absFn(_ context.Context, args map[string]types.Value, positional []types.Value) (types.Value, error) {
	v, _ := arg(0, "VALUE", args, positional)
	n, err := toNum(v)
	if err != nil {
		return types.Undefined, err
	}
	return types.Number(math.Abs(n)), nil
}

func signFn(_ context.Context, args map[string]types.Value, positional []types.Value) (types.Value, error) {
	v, _ := arg(0, "VALUE", args, positional)
	n, err := toNum(v)
	if err != nil {
		return types.Undefined, err
	}
	switch {
	case n > 0:
		return types.Number(1), nil
	case n < 0:
		return types.Number(-1), nil
	default:
		return types.Number(0), nil
	}
}

func maxFn(_ context.Context, _ map[string]types.Value, positional []types.Value) (types.Value, error) {
	if len(positional) == 0 {
		return types.Undefined, rexxerrors.New(rexxerrors.KindExpression, "MAX requires at least one argument")
	}
	best, err := toNum(positional[0])
	if err != nil {
		return types.Undefined, err
	}
	for _, v := range positional[1:] {
		n, err := toNum(v)
		if err != nil {
			return types.Undefined, err
		}
		if n > best {
			best = n
		}
	}
	return types.Number(best), nil
}

func minFn(_ context.Context, _ map[string]types.Value, positional []types.Value) (types.Value, error) {
	if len(positional) == 0 {
		return types.Undefined, rexxerrors.New(rexxerrors.KindExpression, "MIN requires at least one argument")
	}
	best, err := toNum(positional[0])
	if err != nil {
		return types.Undefined, err
	}
	for _, v := range positional[1:] {
		n, err := toNum(v)
		if err != nil {
			return types.Undefined, err
		}
		if n < best {
			best = n
		}
	}
	return types.Number(best), nil
}

func truncFn(_ context.Context, args map[string]types.Value, positional []types.Value) (types.Value, error) {
	v, _ := arg(0, "VALUE", args, positional)
	n, err := toNum(v)
	if err != nil {
		return types.Undefined, err
	}
	return types.Number(math.Trunc(n)), nil
}

func formatFn(_ context.Context, args map[string]types.Value, positional []types.Value) (types.Value, error) {
	v, _ := arg(0, "VALUE", args, positional)
	n, err := toNum(v)
	if err != nil {
		return types.Undefined, err
	}
	decimals := 0
	if decV, ok := arg(1, "DECIMALS", args, positional); ok {
		d, ok := decV.ToNumber()
		if !ok {
			return types.Undefined, rexxerrors.New(rexxerrors.KindExpression, "FORMAT decimals must be numeric")
		}
		decimals = int(d)
	}
	return types.String(strconv.FormatFloat(n, 'f', decimals, 64)), nil
}
