package interp

import (
	"context"
	"testing"

	"github.com/aledsdavies/rexxgo/core/types"
	"github.com/aledsdavies/rexxgo/runtime/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, src string) (RunResult, *Driver) {
	t.Helper()
	program, errs := parser.Parse([]byte(src))
	require.Empty(t, errs, "unexpected parse errors for %q", src)
	d := NewDriver(NewMetadataRegistry())
	result, err := d.Run(context.Background(), program, RunMeta{})
	require.NoError(t, err)
	return result, d
}

func TestCallSubroutineSharesFrameAndSetsResult(t *testing.T) {
	result, d := run(t, `call greet
say result
exit
greet:
  say "hi"
  return "done"
`)
	assert.Equal(t, "EXIT", result.Type)
	v, ok := d.Store().Get(d.Store().RootFrame(), "RESULT", nil)
	require.True(t, ok)
	assert.Equal(t, "done", v.String())
}

func TestSignalJumpsToLabel(t *testing.T) {
	result, _ := run(t, `signal skip
say "unreachable"
skip:
say "reached"
`)
	assert.Equal(t, "NORMAL", result.Type)
}

func TestSignalToMissingLabelSuggestsClosestName(t *testing.T) {
	program, errs := parser.Parse([]byte(`signal ski
ski_p:
say "x"
`))
	require.Empty(t, errs)
	d := NewDriver(NewMetadataRegistry())
	_, err := d.Run(context.Background(), program, RunMeta{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SKI")
	assert.Contains(t, err.Error(), "did you mean")
	assert.Contains(t, err.Error(), "SKI_P")
}

func TestCallToUndefinedFunctionSuggestsClosestName(t *testing.T) {
	program, errs := parser.Parse([]byte(`say upercase("x")`))
	require.Empty(t, errs)

	d := NewDriver(NewMetadataRegistry())
	d.Registry().Register("UPPERCASE", func(ctx context.Context, args map[string]types.Value, positional []types.Value) (types.Value, error) {
		return types.Undefined, nil
	})
	_, err := d.Run(context.Background(), program, RunMeta{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UPERCASE")
	assert.Contains(t, err.Error(), "did you mean")
	assert.Contains(t, err.Error(), "UPPERCASE")
}

func TestDoCountWithLeaveStopsEarly(t *testing.T) {
	result, d := run(t, `total = 0
do 10
  total = total + 1
  if total = 3 then leave
end
`)
	assert.Equal(t, "NORMAL", result.Type)
	v, ok := d.Store().Get(d.Store().RootFrame(), "TOTAL", nil)
	require.True(t, ok)
	n, _ := v.ToNumber()
	assert.Equal(t, 3.0, n)
}

func TestDoRangeWithIterateSkipsBody(t *testing.T) {
	result, d := run(t, `sum = 0
do i = 1 to 5
  if i = 3 then iterate
  sum = sum + i
end
`)
	assert.Equal(t, "NORMAL", result.Type)
	v, ok := d.Store().Get(d.Store().RootFrame(), "SUM", nil)
	require.True(t, ok)
	n, _ := v.ToNumber()
	assert.Equal(t, 12.0, n) // 1+2+4+5, skipping 3
}

func TestCallStackOverflowReportsMaximumCallStack(t *testing.T) {
	program, errs := parser.Parse([]byte(`call recurse
exit
recurse:
  call recurse
  return
`))
	require.Empty(t, errs)
	d := NewDriver(NewMetadataRegistry())
	_, err := d.Run(context.Background(), program, RunMeta{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Maximum call stack")
}

func TestUnresolvedVariableEvaluatesToItsOwnUppercasedName(t *testing.T) {
	program, errs := parser.Parse([]byte(`say undefinedvar
`))
	require.Empty(t, errs)
	d := NewDriver(NewMetadataRegistry())
	var lines []string
	d.SetOutputFunc(func(line string) { lines = append(lines, line) })
	result, err := d.Run(context.Background(), program, RunMeta{})
	require.NoError(t, err)
	assert.Equal(t, "NORMAL", result.Type)
	require.Len(t, lines, 1)
	assert.Equal(t, "UNDEFINEDVAR", lines[0])
}

func TestScroSpecialVariablesDefaultFalseAndEmpty(t *testing.T) {
	program, errs := parser.Parse([]byte(`say scro_remote
say scro_orchestration_id
`))
	require.Empty(t, errs)
	d := NewDriver(NewMetadataRegistry())
	var lines []string
	d.SetOutputFunc(func(line string) { lines = append(lines, line) })
	_, err := d.Run(context.Background(), program, RunMeta{})
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "0", lines[0])
	assert.Equal(t, "", lines[1])
}
