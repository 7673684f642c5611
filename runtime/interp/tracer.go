package interp

import (
	"log/slog"
	"strconv"

	"github.com/aledsdavies/rexxgo/core/ast"
)

// Tracer emits `>> <line_number> <text>` lines when trace mode is active.
// The text is the command's String() rendering of its parsed form, not
// the original source line: spacing, quoting and letter case may differ
// from what the script file holds. Grounded on the teacher's
// runtime/decorators/logging.go LogEntry/LogFormatter shape, narrowed to
// the one line format, and routed through log/slog at Debug level rather
// than a second bespoke print path.
type Tracer struct {
	enabled bool
	logger  *slog.Logger
	sink    func(line string)
}

// NewTracer returns a disabled tracer; call Enable to turn it on.
func NewTracer() *Tracer {
	return &Tracer{logger: slog.Default().With("component", "trace")}
}

// Enable turns trace emission on, optionally routing lines to sink in
// addition to the slog "trace" channel (e.g. to feed a host-visible
// trace buffer). A nil sink traces through slog only.
func (t *Tracer) Enable(sink func(line string)) {
	t.enabled = true
	t.sink = sink
}

func (t *Tracer) Disable() { t.enabled = false }

// Trace emits a line for cmd if it is an executable command: LabelCmd
// never traces (it performs no action when reached by fall-through).
// IfCmd/DoBlockCmd/SelectCmd trace their own header line via this same
// call (they are ordinary Commands), while WHEN/OTHERWISE headers (not Commands) are
// traced explicitly by the driver via TraceLine. No emitted line ever
// carries a "(no line#)" placeholder: every Command's Line() is > 0 by
// construction (the parser's line-number-totality contract).
func (t *Tracer) Trace(cmd ast.Command) {
	if !t.enabled {
		return
	}
	if _, ok := cmd.(*ast.LabelCmd); ok {
		return
	}
	t.emit(cmd.Line(), cmd.String())
}

// TraceLine emits a header line not represented by its own ast.Command,
// such as a SELECT's WHEN/OTHERWISE clause headers.
func (t *Tracer) TraceLine(line int, text string) {
	if !t.enabled {
		return
	}
	t.emit(line, text)
}

func (t *Tracer) emit(line int, text string) {
	formatted := traceFormat(line, text)
	t.logger.Debug(formatted, "line", line)
	if t.sink != nil {
		t.sink(formatted)
	}
}

func traceFormat(line int, text string) string {
	return ">> " + strconv.Itoa(line) + " " + text
}
