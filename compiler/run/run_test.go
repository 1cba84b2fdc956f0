package run

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/mjc/compiler/analyze"
	"github.com/slowlang/mjc/compiler/ast"
	"github.com/slowlang/mjc/compiler/front"
	"github.com/slowlang/mjc/compiler/ir"
	"github.com/slowlang/mjc/compiler/tp"
)

func program(res tp.Type, fields []*ast.VarDecl, stmts ...ast.Stmt) *ast.Program {
	return &ast.Program{
		Class: &ast.Class{
			Name:   "P",
			Fields: fields,
			Main: &ast.Method{
				Name:   "main",
				Result: res,
				Body:   &ast.Block{Stmts: stmts},
			},
		},
	}
}

func decl(t tp.Type, name string, init ast.Expr) *ast.VarDecl {
	return &ast.VarDecl{Type: t, Name: name, Init: init}
}

func num(v int32) *ast.IntLit      { return &ast.IntLit{Value: v} }
func ident(name string) *ast.Ident { return &ast.Ident{Name: name} }
func prn(x ast.Expr) *ast.Print    { return &ast.Print{X: x} }

func bin(op ast.Op, l, r ast.Expr) *ast.Binary {
	return &ast.Binary{Op: op, Left: l, Right: r}
}

func lower(t *testing.T, p *ast.Program) *ir.Program {
	t.Helper()

	ctx := context.Background()

	res, err := analyze.New(nil).Analyze(ctx, p)
	require.NoError(t, err)

	c, err := res.Checked()
	require.NoError(t, err)

	tac, err := front.Generate(ctx, c)
	require.NoError(t, err)

	return tac
}

func execProgram(t *testing.T, p *ast.Program) (string, int, error) {
	t.Helper()

	var out bytes.Buffer

	code, err := Run(context.Background(), &out, lower(t, p))

	return out.String(), code, err
}

func TestArith(t *testing.T) {
	out, code, err := execProgram(t, program(tp.Void,
		[]*ast.VarDecl{decl(tp.Int, "n", nil)},
		&ast.Assign{Name: "n", Value: bin(ast.Add, num(3), bin(ast.Mul, num(4), num(2)))},
		prn(ident("n")),
		prn(bin(ast.Div, num(-7), num(2))),
		prn(bin(ast.Mod, num(-7), num(2))),
	))
	require.NoError(t, err)

	assert.Equal(t, 0, code)
	assert.Equal(t, "11\n-3\n-1\n", out)
}

func TestShadowing(t *testing.T) {
	out, _, err := execProgram(t, program(tp.Void, nil,
		decl(tp.Int, "x", num(10)),
		prn(ident("x")),
		&ast.Block{Stmts: []ast.Stmt{
			decl(tp.Int, "x", num(20)),
			prn(ident("x")),
		}},
		prn(ident("x")),
	))
	require.NoError(t, err)

	assert.Equal(t, "10\n20\n10\n", out)
}

func TestLoop(t *testing.T) {
	out, _, err := execProgram(t, program(tp.Void, nil,
		decl(tp.Int, "i", num(0)),
		decl(tp.Int, "s", num(0)),
		&ast.While{
			Cond: bin(ast.Lt, ident("i"), num(5)),
			Body: &ast.Block{Stmts: []ast.Stmt{
				&ast.Assign{Name: "s", Value: bin(ast.Add, ident("s"), ident("i"))},
				&ast.Assign{Name: "i", Value: bin(ast.Add, ident("i"), num(1))},
			}},
		},
		&ast.If{
			Cond: bin(ast.Eq, ident("s"), num(10)),
			Then: prn(&ast.StringLit{Value: "ten"}),
			Else: prn(ident("s")),
		},
	))
	require.NoError(t, err)

	assert.Equal(t, "ten\n", out)
}

func TestValues(t *testing.T) {
	out, _, err := execProgram(t, program(tp.Void, nil,
		decl(tp.Float, "f", num(3)),
		&ast.Assign{Name: "f", Value: bin(ast.Div, ident("f"), num(2))},
		prn(ident("f")),
		prn(&ast.CharLit{Value: 'q'}),
		prn(bin(ast.And, &ast.BoolLit{Value: true}, &ast.Unary{Op: ast.Not, X: &ast.BoolLit{Value: true}})),
		prn(bin(ast.Gt, ident("f"), num(1))),
		prn(&ast.Unary{Op: ast.Neg, X: ident("f")}),
	))
	require.NoError(t, err)

	assert.Equal(t, "1.500000\nq\nfalse\ntrue\n-1.500000\n", out)
}

func TestArrays(t *testing.T) {
	out, _, err := execProgram(t, program(tp.Void, nil,
		decl(tp.IntArray, "a", &ast.NewArray{Size: num(3)}),
		&ast.Assign{Name: "a", Index: num(2), Value: num(7)},
		prn(&ast.Index{Name: "a", Index: num(2)}),
		prn(&ast.Index{Name: "a", Index: num(0)}),
		prn(&ast.Index{Name: "a", Index: num(3)}),
	))
	assert.ErrorIs(t, err, ErrRuntime)

	assert.Equal(t, "7\n0\n", out)
}

func TestExitCode(t *testing.T) {
	out, code, err := execProgram(t, program(tp.Int, nil,
		prn(num(1)),
		&ast.Return{X: num(3)},
		prn(num(2)),
	))
	require.NoError(t, err)

	assert.Equal(t, 3, code)
	assert.Equal(t, "1\n", out)
}

func TestDivisionByZero(t *testing.T) {
	_, _, err := execProgram(t, program(tp.Void, nil,
		decl(tp.Int, "z", num(0)),
		prn(bin(ast.Div, num(1), ident("z"))),
	))
	assert.ErrorIs(t, err, ErrRuntime)
}

func TestStepLimit(t *testing.T) {
	tac := lower(t, program(tp.Void, nil,
		&ast.While{
			Cond: &ast.BoolLit{Value: true},
			Body: &ast.Block{},
		},
	))

	m := &Machine{Out: &bytes.Buffer{}, MaxSteps: 1000}

	_, err := m.Run(context.Background(), tac)
	assert.ErrorIs(t, err, ErrSteps)
}

func TestCall(t *testing.T) {
	p := ir.New()
	r := p.NewTemp(tp.Int)

	p.Emit(1, ir.FuncBegin, nil, ir.Label("main"), nil)
	p.Emit(2, ir.Param, nil, ir.Int(1), nil)
	p.Emit(2, ir.Call, r, ir.Label("seven"), ir.Int(1))
	p.Emit(3, ir.Print, nil, r, nil)
	p.Emit(4, ir.FuncEnd, nil, ir.Label("main"), nil)

	p.Emit(5, ir.FuncBegin, nil, ir.Label("seven"), nil)
	p.Emit(6, ir.Return, nil, ir.Int(7), nil)
	p.Emit(7, ir.FuncEnd, nil, ir.Label("seven"), nil)

	var out bytes.Buffer

	code, err := Run(context.Background(), &out, p)
	require.NoError(t, err)

	assert.Equal(t, 0, code)
	assert.Equal(t, "7\n", out.String())
}
