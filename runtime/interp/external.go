package interp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aledsdavies/rexxgo/core/ast"
	rexxerrors "github.com/aledsdavies/rexxgo/core/errors"
	"github.com/aledsdavies/rexxgo/core/types"
	"github.com/aledsdavies/rexxgo/runtime/parser"
)

// isExternalTarget reports whether a CALL target is a relative-path
// literal (`./...` or `../...`), which spec.md §4.7 designates an
// external script call rather than a subroutine/function call.
func isExternalTarget(target string) bool {
	return strings.HasPrefix(target, "./") || strings.HasPrefix(target, "../")
}

// externalCycleError is grounded on runtime/validation/recursion.go's
// depth-first cycle detector (a `visiting` set plus path accumulation
// that renders the discovered cycle as "a -> b -> a"), generalized here
// from static `@cmd()` reference cycles to a dynamic runtime guard over
// the chain of external script paths currently executing: the guard is
// pushed/popped around each nested call rather than computed once over a
// fixed command graph, since external scripts are only known at the
// moment a CALL actually runs.
func externalCycleError(chain []string, next string) error {
	cycle := append(append([]string{}, chain...), next)
	return rexxerrors.Newf(rexxerrors.KindStackOverflow, "external script call cycle detected: %s", strings.Join(cycle, " -> "))
}

// enterExternal pushes resolved onto the driver's external-call chain,
// failing if resolved is already on the chain (a cycle).
func (d *Driver) enterExternal(resolved string) error {
	for _, p := range d.externalStack {
		if p == resolved {
			return externalCycleError(d.externalStack, resolved)
		}
	}
	if len(d.externalStack) >= MaxCallDepth {
		return rexxerrors.New(rexxerrors.KindStackOverflow, "Maximum call stack size exceeded")
	}
	d.externalStack = append(d.externalStack, resolved)
	return nil
}

func (d *Driver) exitExternal() {
	d.externalStack = d.externalStack[:len(d.externalStack)-1]
}

// resolveExternalPath resolves a `./...`/`../...` CALL target relative to
// the currently executing script's own directory, per spec.md §4.7.
func (d *Driver) resolveExternalPath(target string) (string, error) {
	base := "."
	if d.scriptPath != "" {
		base = filepath.Dir(d.scriptPath)
	}
	resolved := filepath.Join(base, target)
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return "", rexxerrors.Wrap(rexxerrors.KindFile, "cannot resolve external script path "+target, err)
	}
	return abs, nil
}

// execExternalCall implements spec.md §4.7: the referenced file is read
// and parsed with the same parser, run in an isolated variable frame (no
// leakage either direction), with positional CALL arguments passed to
// PARSE ARG, and its RETURN value becomes the caller's RESULT. External
// calls may nest; enterExternal/exitExternal bound the chain's depth and
// reject cycles.
func (d *Driver) execExternalCall(ctx context.Context, frameID string, c *ast.CallCmd) (flowResult, error) {
	resolved, err := d.resolveExternalPath(c.Target)
	if err != nil {
		return flowResult{}, err
	}
	if err := d.enterExternal(resolved); err != nil {
		return flowResult{}, err
	}
	defer d.exitExternal()

	src, err := os.ReadFile(resolved)
	if err != nil {
		return flowResult{}, rexxerrors.Wrap(rexxerrors.KindFile, fmt.Sprintf("external script not found: %s", resolved), err)
	}

	program, errs := parser.Parse(src)
	if len(errs) > 0 {
		return flowResult{}, rexxerrors.Newf(rexxerrors.KindParse, "external script %s failed to parse: %v", resolved, errs[0])
	}

	positional, _, err := d.evalArgs(ctx, frameID, c.Args)
	if err != nil {
		return flowResult{}, err
	}

	isolatedFrame := "external:" + resolved + "#" + strconv.Itoa(len(d.externalStack))
	d.store.OpenFrame(isolatedFrame)
	defer d.store.CloseFrame(isolatedFrame)

	savedCmds, savedLabels := d.cmds, d.labelIndex
	savedCallStack, savedTopArgs, savedScriptPath := d.callStack, d.topArgs, d.scriptPath
	d.cmds = program.Commands
	d.labelIndex = buildLabelIndex(program.Commands)
	d.callStack = nil
	d.topArgs = positional
	d.scriptPath = resolved

	result, runErr := d.execFrom(ctx, isolatedFrame, 0)

	d.cmds, d.labelIndex = savedCmds, savedLabels
	d.callStack, d.topArgs, d.scriptPath = savedCallStack, savedTopArgs, savedScriptPath

	if runErr != nil {
		return flowResult{}, runErr
	}
	switch result.kind {
	case ctrlExit:
		// EXIT unconditionally terminates the whole program per spec.md
		// §4.4, including from inside an external script.
		return result, nil
	case ctrlReturn:
		d.store.SetResult(result.returnValue)
	default:
		d.store.SetResult(types.Undefined)
	}
	return flowResult{kind: ctrlNone}, nil
}
