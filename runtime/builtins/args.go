package builtins

import (
	"github.com/aledsdavies/rexxgo/core/types"
)

// arg resolves a single call-site argument: a named argument matching
// paramName (already uppercased by the evaluator) wins over positional
// index i, matching how REXX-style named-parameter calls let callers
// override by name regardless of position.
func arg(i int, paramName string, args map[string]types.Value, positional []types.Value) (types.Value, bool) {
	if v, ok := args[paramName]; ok {
		return v, true
	}
	if i < len(positional) {
		return positional[i], true
	}
	return types.Undefined, false
}

// argOr is arg with a default when the argument is absent.
func argOr(i int, paramName string, args map[string]types.Value, positional []types.Value, def types.Value) types.Value {
	if v, ok := arg(i, paramName, args, positional); ok {
		return v
	}
	return def
}
