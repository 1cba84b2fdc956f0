package diag

import (
	"context"
	"fmt"
	"io"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"
	"tlog.app/go/tlog/tlwire"
)

type (
	Severity int

	Diagnostic struct {
		Severity Severity
		Kind     Kind
		Line     int
		Msg      string

		from loc.PC
	}

	// Kind classifies a diagnostic for callers that need more than the text.
	Kind string

	// Sink prints diagnostics of one stage as they are reported
	// and keeps them for later inspection.
	Sink struct {
		Stage string
		W     io.Writer

		List []Diagnostic

		errors   int
		warnings int

		tr tlog.Span
		b  []byte
	}
)

const (
	Error Severity = iota
	Warning
)

// New creates a Sink logging to the span from ctx.
func New(ctx context.Context, w io.Writer, stage string) *Sink {
	if w == nil {
		w = io.Discard
	}

	return &Sink{
		Stage: stage,
		W:     w,
		tr:    tlog.SpanFromContext(ctx),
	}
}

func (s *Sink) Errorf(kind Kind, line int, format string, args ...any) {
	s.report(Error, kind, line, format, args)
}

func (s *Sink) Warnf(kind Kind, line int, format string, args ...any) {
	s.report(Warning, kind, line, format, args)
}

func (s *Sink) report(sev Severity, kind Kind, line int, format string, args []any) {
	d := Diagnostic{
		Severity: sev,
		Kind:     kind,
		Line:     line,
		Msg:      fmt.Sprintf(format, args...),
		from:     loc.Caller(2),
	}

	s.List = append(s.List, d)

	if sev == Error {
		s.errors++
	} else {
		s.warnings++
	}

	s.tr.V("diag").Printw("reported", "diag", d, "from", d.from)

	s.b = d.Append(s.b[:0], s.Stage)
	s.b = append(s.b, '\n')

	_, _ = s.W.Write(s.b)
}

// Summary prints the final line of the stage and returns the error count.
func (s *Sink) Summary(stage string) int {
	if s.errors == 0 {
		s.b = hfmt.Appendf(s.b[:0], "%s successful.\n", stage)
	} else {
		s.b = hfmt.Appendf(s.b[:0], "%s found %d error(s).\n", stage, s.errors)
	}

	_, _ = s.W.Write(s.b)

	return s.errors
}

func (s *Sink) Errors() int   { return s.errors }
func (s *Sink) Warnings() int { return s.warnings }

// Count returns the number of diagnostics of the given kind.
func (s *Sink) Count(kind Kind) (n int) {
	for _, d := range s.List {
		if d.Kind == kind {
			n++
		}
	}

	return n
}

// Append formats d as "<stage> Error line <N>: <message>".
func (d Diagnostic) Append(b []byte, stage string) []byte {
	return hfmt.Appendf(b, "%s %v line %d: %s", stage, d.Severity, d.Line, d.Msg)
}

func (d Diagnostic) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 3)
	b = e.AppendString(b, "kind")
	b = e.AppendString(b, string(d.Kind))
	b = e.AppendKeyInt(b, "line", d.Line)
	b = e.AppendString(b, "msg")
	b = e.AppendString(b, d.Msg)

	return b
}

func (s Severity) String() string {
	if s == Warning {
		return "Warning"
	}

	return "Error"
}
