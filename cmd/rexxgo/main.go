// Command rexxgo runs REXX-dialect scripts through runtime/rexx, the
// public host-embedding facade. Grounded on the teacher's cli/main.go
// lockdown-and-delegate shape (build flags, dispatch to a run function,
// format errors through one path, map the result to a process exit code),
// narrowed to this language's single Run entrypoint instead of opal's
// four execution modes.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/aledsdavies/rexxgo/core/types"
	"github.com/aledsdavies/rexxgo/runtime/rexx"
	"github.com/spf13/cobra"
)

func main() {
	var (
		policyFlag string
		traceFlag  bool
		noColor    bool
	)

	exitCode := 0

	rootCmd := &cobra.Command{
		Use:           "rexxgo [script] [args...]",
		Short:         "Run REXX-dialect scripts",
		Args:          cobra.ArbitraryArgs,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := runScript(cmd, args, policyFlag, traceFlag)
			if err != nil {
				return err
			}
			exitCode = code
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&policyFlag, "policy", "default",
		"REQUIRE security policy: strict, moderate, default, or permissive")
	rootCmd.PersistentFlags().BoolVar(&traceFlag, "trace", false,
		"Emit \">> <line> <text>\" trace output for every executed command")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored error output")

	rootCmd.AddCommand(newDescribeCmd())

	if err := rootCmd.Execute(); err != nil {
		formatError(os.Stderr, err, !noColor)
		exitCode = 1
	}
	os.Exit(exitCode)
}

// runScript reads a script (from the first positional argument, or stdin
// when none is given), parses and runs it, and returns the process exit
// code: 0 for a NORMAL/RETURN completion, RunResult.Code for EXIT, or
// whatever non-zero code an unhandled error maps to (1).
func runScript(cmd *cobra.Command, args []string, policyFlag string, trace bool) (int, error) {
	var scriptPath string
	var scriptArgs []string
	if len(args) > 0 {
		scriptPath = args[0]
		scriptArgs = args[1:]
	}

	source, err := readSource(scriptPath)
	if err != nil {
		return 1, err
	}

	program, err := rexx.Parse(string(source))
	if err != nil {
		return 1, err
	}

	policy, err := parsePolicy(policyFlag)
	if err != nil {
		return 1, err
	}

	interp := rexx.NewInterpreter()
	interp.SetSecurityPolicy(policy)
	interp.SetOutputHandler(stdoutHandler{})
	if trace {
		interp.EnableTrace(nil)
	}

	ctx, cancel := newCancellableContext()
	defer cancel()

	argValues := make([]types.Value, len(scriptArgs))
	for idx, a := range scriptArgs {
		argValues[idx] = types.String(a)
	}

	result, err := interp.Run(ctx, program, rexx.RunMeta{
		Args:       argValues,
		ScriptPath: scriptPath,
	})
	if err != nil {
		return 1, err
	}

	if result.Type == "EXIT" {
		return result.Code, nil
	}
	return 0, nil
}

// parsePolicy maps a --policy flag value to a *rexx.SecurityPolicy,
// rejecting anything not in spec.md §4.6's four-name vocabulary.
func parsePolicy(name string) (*rexx.SecurityPolicy, error) {
	switch rexx.PolicyName(name) {
	case rexx.PolicyStrict, rexx.PolicyModerate, rexx.PolicyDefault, rexx.PolicyPermissive:
		return rexx.NewSecurityPolicy(rexx.PolicyName(name)), nil
	default:
		return nil, &usageError{
			Message: fmt.Sprintf("unknown --policy value %q", name),
			Hint:    "use one of: strict, moderate, default, permissive",
		}
	}
}

// readSource reads path, or stdin when path is empty (script mode with no
// file argument, matching the teacher's getInputReader fallback).
func readSource(path string) ([]byte, error) {
	if path == "" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

// stdoutHandler is the default OutputHandler: every SAY line goes to
// stdout with a trailing newline.
type stdoutHandler struct{}

func (stdoutHandler) Output(text string) {
	fmt.Println(text)
}

// newCancellableContext cancels on SIGINT/SIGTERM so a running script
// observes ctx.Done() at its next suspension point, the same Ctrl+C
// propagation the teacher's CLI wires up.
func newCancellableContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()
	return ctx, cancel
}
