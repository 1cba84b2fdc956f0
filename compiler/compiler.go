package compiler

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/google/uuid"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/mjc/compiler/analyze"
	"github.com/slowlang/mjc/compiler/ast"
	"github.com/slowlang/mjc/compiler/format"
	"github.com/slowlang/mjc/compiler/front"
	"github.com/slowlang/mjc/compiler/ir"
)

type (
	// Backend turns TAC into target text appended to b.
	Backend interface {
		CompileProgram(ctx context.Context, b []byte, p *ir.Program) ([]byte, error)
	}

	// Unit is one source file on its way through the pipeline.
	// Every stage fills in its own field.
	Unit struct {
		ID   uuid.UUID
		Name string

		Program *ast.Program
		Result  *analyze.Result
		Checked *analyze.Checked
		TAC     *ir.Program
	}

	Options struct {
		Entry string

		// Diag receives semantic diagnostics.
		Diag io.Writer

		DumpAST bool
		DumpTAC bool
	}
)

func ParseFile(name string) (*Unit, error) {
	text, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	return Parse(name, text)
}

// Parse decodes the AST handed over by the parser.
func Parse(name string, text []byte) (*Unit, error) {
	p, err := ast.Unmarshal(text)
	if err != nil {
		return nil, errors.Wrap(err, "%v", name)
	}

	return &Unit{
		ID:      uuid.New(),
		Name:    name,
		Program: p,
	}, nil
}

// Span starts the root span of the unit.
func (u *Unit) Span(ctx context.Context, what string) (tlog.Span, context.Context) {
	return tlog.SpawnFromContextAndWrap(ctx, what, "unit", u.ID.String(), "name", u.Name)
}

// Check runs semantic analysis.
// Diagnostics go to opts.Diag, the error wraps analyze.ErrSemantic
// if any of them is an error.
func (u *Unit) Check(ctx context.Context, opts Options) (err error) {
	tr, ctx := u.Span(ctx, "compiler: check")
	defer tr.Finish("err", &err)

	if opts.DumpAST {
		b, err := format.Format(ctx, nil, u.Program)
		if err != nil {
			return errors.Wrap(err, "format")
		}

		tr.Printw("ast", "text", string(b))
	}

	a := analyze.New(opts.Diag)

	if opts.Entry != "" {
		a.Entry = opts.Entry
	}

	u.Result, err = a.Analyze(ctx, u.Program)
	if err != nil {
		return errors.Wrap(err, "analyze")
	}

	u.Checked, err = u.Result.Checked()
	if err != nil {
		return err
	}

	return nil
}

// Lower generates and verifies TAC. Check must have succeeded.
func (u *Unit) Lower(ctx context.Context, opts Options) (err error) {
	tr, ctx := u.Span(ctx, "compiler: lower")
	defer tr.Finish("err", &err)

	if u.Checked == nil {
		return errors.New("unit is not checked")
	}

	u.TAC, err = front.Generate(ctx, u.Checked)
	if err != nil {
		return errors.Wrap(err, "generate")
	}

	rep, err := ir.Verify(ctx, u.TAC)
	if err != nil {
		return errors.Wrap(err, "verify")
	}

	tr.Printw("lowered", "instrs", u.TAC.Len(), "funcs", len(rep.Funcs), "unreachable", len(rep.Unreachable))

	if opts.DumpTAC {
		tr.Printw("tac", "text", u.TAC.String())
	}

	return nil
}

// Build runs Check and Lower.
func (u *Unit) Build(ctx context.Context, opts Options) error {
	err := u.Check(ctx, opts)
	if err != nil {
		return err
	}

	return u.Lower(ctx, opts)
}

// Compile appends the target text of the lowered unit to b.
func (u *Unit) Compile(ctx context.Context, b []byte, be Backend) (_ []byte, err error) {
	tr, ctx := u.Span(ctx, "compiler: compile")
	defer tr.Finish("err", &err)

	if u.TAC == nil {
		return nil, errors.New("unit is not lowered")
	}

	st := len(b)

	b, err = be.CompileProgram(ctx, b, u.TAC)
	if err != nil {
		return nil, errors.Wrap(err, "backend")
	}

	tr.Printw("compiled", "size", len(b)-st, "lines", bytes.Count(b[st:], []byte{'\n'}))

	return b, nil
}
