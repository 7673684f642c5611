package builtins

import (
	"context"

	rexxerrors "github.com/aledsdavies/rexxgo/core/errors"
	"github.com/aledsdavies/rexxgo/core/types"
	"github.com/aledsdavies/rexxgo/runtime/interp"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

func init() {
	register("JSON_PARSE", jsonParseFn, interp.FunctionMeta{
		Category: "json", Description: "Parses a JSON string into a Value (object/array/number/string/boolean/null).",
		Parameters: []string{"text"}, Returns: "value",
	})
	register("JSON_STRINGIFY", jsonStringifyFn, interp.FunctionMeta{
		Category: "json", Description: "Serializes a Value to a JSON string.",
		Parameters: []string{"value"}, Returns: "string",
	})
}

// REXX has no native object-literal parser for arbitrary host JSON, so
// JSON_PARSE/JSON_STRINGIFY lean on gjson/sjson rather than this module's
// own encoding/json (reserved for the fixed-shape §6 wire messages).

func jsonParseFn(_ context.Context, args map[string]types.Value, positional []types.Value) (types.Value, error) {
	v, _ := arg(0, "TEXT", args, positional)
	text := v.String()
	if !gjson.Valid(text) {
		return types.Undefined, rexxerrors.Newf(rexxerrors.KindExpression, "JSON_PARSE: malformed JSON: %s", text)
	}
	return gjsonToValue(gjson.Parse(text)), nil
}

func gjsonToValue(r gjson.Result) types.Value {
	switch r.Type {
	case gjson.Null:
		return types.Null
	case gjson.False:
		return types.Bool(false)
	case gjson.True:
		return types.Bool(true)
	case gjson.Number:
		return types.Number(r.Num)
	case gjson.String:
		return types.String(r.Str)
	default:
		if r.IsArray() {
			arr := r.Array()
			items := make([]types.Value, len(arr))
			for i, elem := range arr {
				items[i] = gjsonToValue(elem)
			}
			return types.Array(items)
		}
		if r.IsObject() {
			obj := types.NewObject()
			r.ForEach(func(key, value gjson.Result) bool {
				obj.Set(key.String(), gjsonToValue(value))
				return true
			})
			return types.ObjectValue(obj)
		}
		return types.Null
	}
}

func jsonStringifyFn(_ context.Context, args map[string]types.Value, positional []types.Value) (types.Value, error) {
	v, _ := arg(0, "VALUE", args, positional)
	raw, err := valueToJSON(v)
	if err != nil {
		return types.Undefined, err
	}
	return types.String(raw), nil
}

// valueToJSON serializes v by setting it as the single field of an empty
// JSON document via sjson (which marshals arbitrary Go values), then
// lifting the raw JSON back out with gjson — the library pair's idiom for
// "stringify this value" when there is no bare top-level Set.
func valueToJSON(v types.Value) (string, error) {
	doc, err := sjson.Set(`{}`, "v", toJSONInterface(v))
	if err != nil {
		return "", rexxerrors.Wrap(rexxerrors.KindExpression, "JSON_STRINGIFY failed", err)
	}
	return gjson.Get(doc, "v").Raw, nil
}

func toJSONInterface(v types.Value) interface{} {
	switch v.Kind {
	case types.KindUndefined, types.KindNull:
		return nil
	case types.KindNumber:
		return v.Num()
	case types.KindString:
		return v.Str()
	case types.KindBoolean:
		return v.Bool()
	case types.KindArray:
		items := v.Items()
		out := make([]interface{}, len(items))
		for i, item := range items {
			out[i] = toJSONInterface(item)
		}
		return out
	case types.KindObject:
		obj := v.Object()
		out := make(map[string]interface{})
		if obj != nil {
			obj.Range(func(key string, val types.Value) {
				out[key] = toJSONInterface(val)
			})
		}
		return out
	default:
		return nil
	}
}
