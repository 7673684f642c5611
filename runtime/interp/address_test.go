package interp

import (
	"context"
	"testing"

	"github.com/aledsdavies/rexxgo/core/types"
	"github.com/aledsdavies/rexxgo/runtime/parser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandler captures every (commandOrMethod, params) pair it is
// invoked with, for asserting MATCHING dispatch counts and payloads.
type recordingHandler struct {
	calls []recordedCall
}

type recordedCall struct {
	payload string
	pattern string
}

func (r *recordingHandler) handle(ctx context.Context, commandOrMethod string, params *types.Object, src SourceContext) (types.Value, error) {
	pattern := ""
	if params != nil {
		if v, ok := params.Get("_addressMatchingPattern"); ok {
			pattern = v.Str()
		}
	}
	r.calls = append(r.calls, recordedCall{payload: commandOrMethod, pattern: pattern})
	return types.Bool(true), nil
}

func runWithAddress(t *testing.T, target string, handler *recordingHandler, src string) RunResult {
	t.Helper()
	program, errs := parser.Parse([]byte(src))
	require.Empty(t, errs, "unexpected parse errors for %q", src)
	d := NewDriver(NewMetadataRegistry())
	d.Address().Register(target, handler.handle)
	result, err := d.Run(context.Background(), program, RunMeta{})
	require.NoError(t, err)
	return result
}

// spec.md §8 scenario 2: a non-MULTILINE MATCHING run over a contiguous
// indented block dispatches exactly once, with the pattern's leading
// whitespace prefix stripped from every joined line.
func TestAddressMatchingSingleLineJoinsContiguousRunIntoOneDispatch(t *testing.T) {
	h := &recordingHandler{}
	runWithAddress(t, "sqlengine", h, "address sqlengine matching \"  (.*)\"\n"+
		"  CREATE TABLE test (\n"+
		"  id INTEGER PRIMARY KEY,\n"+
		"  name TEXT\n"+
		"say \"done\"\n")

	require.Len(t, h.calls, 1)
	assert.Equal(t, "CREATE TABLE test (\nid INTEGER PRIMARY KEY,\nname TEXT", h.calls[0].payload)
	assert.Equal(t, "  (.*)", h.calls[0].pattern)
}

// spec.md §8 scenario 3: MULTILINE interleaves two accumulated blocks with
// a verbatim dispatch of the non-indented line between them, flushing the
// second block at end-of-program.
func TestAddressMatchingMultilineInterleavesBlocksAndVerbatimLines(t *testing.T) {
	h := &recordingHandler{}
	runWithAddress(t, "testhandler", h, "address testhandler matching multiline \"  (.*)\"\n"+
		"  line one\n"+
		"  line two\n"+
		"  line three\n"+
		"not indented\n"+
		"  second block line one\n"+
		"  second block line two\n")

	require.Len(t, h.calls, 3)
	assert.Equal(t, "line one\nline two\nline three", h.calls[0].payload)
	assert.Equal(t, "not indented", h.calls[1].payload)
	assert.Equal(t, "second block line one\nsecond block line two", h.calls[2].payload)
	for _, c := range h.calls {
		assert.Equal(t, "  (.*)", c.pattern)
	}
}

// P4: blank lines inside a MULTILINE run are dropped entirely, never
// forwarded to the handler and never counted toward a flush.
func TestAddressMatchingMultilineIgnoresBlankLines(t *testing.T) {
	h := &recordingHandler{}
	runWithAddress(t, "testhandler", h, "address testhandler matching multiline \"  (.*)\"\n"+
		"  line one\n"+
		"\n"+
		"  line two\n")

	require.Len(t, h.calls, 1)
	assert.Equal(t, "line one\nline two", h.calls[0].payload)
}

// P5: a successful dispatch sets RC to 0 and RESULT to the handler's full
// return value.
func TestAddressMatchingDispatchSetsRCAndResult(t *testing.T) {
	h := &recordingHandler{}
	program, errs := parser.Parse([]byte("address sqlengine matching \"  (.*)\"\n  SELECT 1\n"))
	require.Empty(t, errs)
	d := NewDriver(NewMetadataRegistry())
	d.Address().Register("sqlengine", h.handle)
	_, err := d.Run(context.Background(), program, RunMeta{})
	require.NoError(t, err)

	rc, ok := d.Store().Get(d.Store().RootFrame(), "RC", nil)
	require.True(t, ok)
	n, _ := rc.ToNumber()
	assert.Equal(t, 0.0, n)

	result, ok := d.Store().Get(d.Store().RootFrame(), "RESULT", nil)
	require.True(t, ok)
	assert.True(t, result.Bool())
}
