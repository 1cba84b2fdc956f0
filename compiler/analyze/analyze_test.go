package analyze

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/mjc/compiler/ast"
	"github.com/slowlang/mjc/compiler/scope"
	"github.com/slowlang/mjc/compiler/tp"
)

func program(fields []*ast.VarDecl, stmts ...ast.Stmt) *ast.Program {
	return &ast.Program{
		Base: ast.Base{Line: 1},
		Class: &ast.Class{
			Base:   ast.Base{Line: 1},
			Name:   "P",
			Fields: fields,
			Main: &ast.Method{
				Base:   ast.Base{Line: 2},
				Name:   "main",
				Result: tp.Void,
				Body:   &ast.Block{Base: ast.Base{Line: 2}, Stmts: stmts},
			},
		},
	}
}

func decl(line int, t tp.Type, name string, init ast.Expr) *ast.VarDecl {
	return &ast.VarDecl{Base: ast.Base{Line: line}, Type: t, Name: name, Init: init}
}

func final(line int, t tp.Type, name string, init ast.Expr) *ast.VarDecl {
	v := decl(line, t, name, init)
	v.Final = true

	return v
}

func assign(line int, name string, x ast.Expr) *ast.Assign {
	return &ast.Assign{Base: ast.Base{Line: line}, Name: name, Value: x}
}

func block(line int, stmts ...ast.Stmt) *ast.Block {
	return &ast.Block{Base: ast.Base{Line: line}, Stmts: stmts}
}

func num(v int32) *ast.IntLit      { return &ast.IntLit{Value: v} }
func boolean(v bool) *ast.BoolLit  { return &ast.BoolLit{Value: v} }
func ident(name string) *ast.Ident { return &ast.Ident{Name: name} }
func prn(x ast.Expr) *ast.Print    { return &ast.Print{X: x} }
func bin(op ast.Op, l, r ast.Expr) *ast.Binary {
	return &ast.Binary{Op: op, Left: l, Right: r}
}

func analyze(t *testing.T, p *ast.Program) *Result {
	t.Helper()

	var out bytes.Buffer

	res, err := New(&out).Analyze(context.Background(), p)
	require.NoError(t, err)

	t.Logf("diagnostics:\n%s", out.Bytes())

	return res
}

func TestRedeclaration(t *testing.T) {
	res := analyze(t, program(nil,
		decl(3, tp.Int, "x", num(1)),
		decl(4, tp.Int, "x", num(2)),
	))

	assert.Equal(t, 1, res.Errors())
	assert.Equal(t, 1, res.Diag.Count(Redeclaration))
}

func TestShadowing(t *testing.T) {
	inner := decl(5, tp.Char, "x", &ast.CharLit{Value: 'a'})

	res := analyze(t, program(
		[]*ast.VarDecl{decl(1, tp.Int, "x", num(1))},
		decl(3, tp.Int, "x", num(1)),
		block(4, inner, prn(ident("x"))),
		prn(ident("x")),
	))

	assert.Equal(t, 0, res.Errors())

	var keys []string

	for id := 0; id < res.Scopes.Len(); id++ {
		for _, e := range res.Scopes.Scope(scope.ID(id)).Entries {
			keys = append(keys, e.Key)
		}
	}

	assert.Equal(t, []string{"x", "x.1", "x.2"}, keys)
}

func TestFinal(t *testing.T) {
	t.Run("Uninitialized", func(t *testing.T) {
		res := analyze(t, program(nil, final(3, tp.Int, "x", nil)))

		assert.Equal(t, 1, res.Errors())
		assert.Equal(t, 1, res.Diag.Count(UninitializedFinal))
	})

	t.Run("Reassignment", func(t *testing.T) {
		res := analyze(t, program(nil,
			final(3, tp.Int, "x", num(5)),
			assign(4, "x", num(6)),
		))

		assert.Equal(t, 1, res.Errors())
		assert.Equal(t, 1, res.Diag.Count(FinalReassignment))
	})
}

func TestVarDeclTypes(t *testing.T) {
	for _, tc := range []struct {
		name string
		decl *ast.VarDecl
		errs int
	}{
		{"IntFromBool", decl(3, tp.Int, "x", boolean(true)), 1},
		{"FloatFromInt", decl(3, tp.Float, "x", num(3)), 0},
		{"BoolFromCompare", decl(3, tp.Boolean, "b", bin(ast.Lt, num(1), num(2))), 0},
		{"IntFromFloat", decl(3, tp.Int, "x", &ast.FloatLit{Value: 1.5}), 1},
		{"Void", decl(3, tp.Void, "v", nil), 1},
		{"VoidWithInit", decl(3, tp.Void, "v", num(1)), 1},
		{"StringFromChar", decl(3, tp.String, "s", &ast.CharLit{Value: 'c'}), 1},
		{"ArrayFromNew", decl(3, tp.IntArray, "a", &ast.NewArray{Size: num(4)}), 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			res := analyze(t, program(nil, tc.decl))

			assert.Equal(t, tc.errs, res.Errors())
		})
	}
}

func TestNotAnArray(t *testing.T) {
	access := &ast.Index{Base: ast.Base{Line: 4}, Name: "b", Index: num(0)}

	res := analyze(t, program(nil,
		decl(3, tp.Boolean, "b", nil),
		decl(4, tp.Int, "r", access),
	))

	assert.Equal(t, 1, res.Errors())
	assert.Equal(t, 1, res.Diag.Count(NotAnArray))
	assert.Equal(t, tp.Error, res.Types[access])
}

func TestErrorPropagation(t *testing.T) {
	sum := bin(ast.Add, boolean(true), num(1))
	mul := bin(ast.Mul, &ast.Paren{X: sum}, num(2))

	res := analyze(t, program(nil,
		decl(3, tp.Int, "x", mul),
		prn(bin(ast.And, ident("nope"), bin(ast.Eq, ident("x"), num(1)))),
	))

	assert.Equal(t, 2, res.Errors())
	assert.Equal(t, 1, res.Diag.Count(TypeMismatch))
	assert.Equal(t, 1, res.Diag.Count(UndeclaredIdentifier))

	assert.Equal(t, tp.Error, res.Types[sum])
	assert.Equal(t, tp.Error, res.Types[mul])
}

func TestStatements(t *testing.T) {
	for _, tc := range []struct {
		name  string
		stmts []ast.Stmt
		kind  string
	}{
		{"IfCondition", []ast.Stmt{&ast.If{Cond: num(1), Then: block(3)}}, string(NonBooleanCondition)},
		{"WhileCondition", []ast.Stmt{&ast.While{Cond: &ast.StringLit{Value: "s"}, Body: block(3)}}, string(NonBooleanCondition)},
		{"Unprintable", []ast.Stmt{prn(&ast.NewArray{Size: num(2)})}, string(UnprintableType)},
		{"AssignUndeclared", []ast.Stmt{assign(3, "y", num(1))}, string(UndeclaredIdentifier)},
		{"AssignMismatch", []ast.Stmt{decl(3, tp.Char, "c", nil), assign(4, "c", num(1))}, string(TypeMismatch)},
		{"ReturnValueFromVoid", []ast.Stmt{&ast.Return{X: num(1)}}, string(InvalidReturn)},
		{"IndexNotInt", []ast.Stmt{
			decl(3, tp.IntArray, "a", &ast.NewArray{Size: num(2)}),
			&ast.Assign{Name: "a", Index: boolean(true), Value: num(1)},
		}, string(TypeMismatch)},
		{"StoreNotArray", []ast.Stmt{
			decl(3, tp.Int, "a", num(0)),
			&ast.Assign{Name: "a", Index: num(0), Value: num(1)},
		}, string(NotAnArray)},
		{"NegBool", []ast.Stmt{prn(&ast.Unary{Op: ast.Neg, X: boolean(true)})}, string(TypeMismatch)},
		{"NotInt", []ast.Stmt{prn(&ast.Unary{Op: ast.Not, X: num(1)})}, string(TypeMismatch)},
		{"CharPlusInt", []ast.Stmt{prn(bin(ast.Add, &ast.CharLit{Value: 'a'}, num(1)))}, string(TypeMismatch)},
		{"CharLtInt", []ast.Stmt{prn(bin(ast.Lt, &ast.CharLit{Value: 'a'}, num(1)))}, string(TypeMismatch)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			res := analyze(t, program(nil, tc.stmts...))

			require.Equal(t, 1, res.Errors())
			assert.Equal(t, tc.kind, string(res.Diag.List[0].Kind))
		})
	}
}

func TestReturn(t *testing.T) {
	withResult := func(r tp.Type, stmts ...ast.Stmt) *ast.Program {
		p := program(nil, stmts...)
		p.Class.Main.Result = r

		return p
	}

	res := analyze(t, withResult(tp.Int, &ast.Return{}))
	assert.Equal(t, 1, res.Diag.Count(InvalidReturn))

	res = analyze(t, withResult(tp.Int, &ast.Return{X: boolean(false)}))
	assert.Equal(t, 1, res.Diag.Count(TypeMismatch))

	res = analyze(t, withResult(tp.Float, &ast.Return{X: num(2)}))
	assert.Equal(t, 0, res.Errors())

	res = analyze(t, withResult(tp.Void, &ast.Return{}))
	assert.Equal(t, 0, res.Errors())
}

func TestEntryPoint(t *testing.T) {
	p := program(nil)
	p.Class.Main.Name = "start"

	res := analyze(t, p)
	assert.Equal(t, 1, res.Diag.Count(InvalidEntryPoint))

	p.Class.Main = nil

	res = analyze(t, p)
	assert.Equal(t, 1, res.Diag.Count(InvalidEntryPoint))
}

func TestUninitializedIsWarning(t *testing.T) {
	res := analyze(t, program(nil,
		decl(3, tp.Int, "x", nil),
		prn(ident("x")),
		assign(5, "x", num(2)),
		prn(ident("x")),
	))

	assert.Equal(t, 0, res.Errors())
	assert.Equal(t, 1, res.Warnings())

	_, err := res.Checked()
	assert.NoError(t, err)
}

func TestEndToEndTypes(t *testing.T) {
	n := ident("n")

	p := program(
		[]*ast.VarDecl{decl(1, tp.Int, "n", nil)},
		assign(3, "n", bin(ast.Add, num(3), bin(ast.Mul, num(4), num(2)))),
		prn(n),
	)

	res := analyze(t, p)
	require.Equal(t, 0, res.Errors())
	assert.Equal(t, 0, res.Warnings())

	assert.Equal(t, tp.Int, res.Types[n])

	for x, typ := range res.Types {
		assert.True(t, typ.Valid(), "%T resolved to %v", x, typ)
	}

	c, err := res.Checked()
	require.NoError(t, err)

	cls, ok := c.ScopeOf(p.Class)
	require.True(t, ok)

	m, ok := c.ScopeOf(p.Class.Main)
	require.True(t, ok)

	b, ok := c.ScopeOf(p.Class.Main.Body)
	require.True(t, ok)

	assert.Equal(t, scope.None, c.Scopes().Scope(cls).Parent)
	assert.Equal(t, cls, c.Scopes().Scope(m).Parent)
	assert.Equal(t, m, c.Scopes().Scope(b).Parent)
}

func TestReanalysis(t *testing.T) {
	p := program(nil,
		decl(3, tp.Int, "x", num(1)),
		decl(4, tp.Int, "x", num(2)),
		block(5, decl(6, tp.Int, "x", num(3))),
		assign(7, "y", num(0)),
	)

	first := analyze(t, p)
	second := analyze(t, p)

	assert.Equal(t, first.Errors(), second.Errors())
	assert.Equal(t, 2, second.Errors())

	count := func(r *Result) (n int) {
		for id := 0; id < r.Scopes.Len(); id++ {
			n += len(r.Scopes.Scope(scope.ID(id)).Entries)
		}

		return n
	}

	assert.Equal(t, count(first), count(second))
	assert.Equal(t, 2, count(second))
}

func TestDiagnosticsOutput(t *testing.T) {
	var out bytes.Buffer

	_, err := New(&out).Analyze(context.Background(), program(nil,
		decl(3, tp.Int, "x", num(1)),
		decl(4, tp.Int, "x", num(2)),
	))
	require.NoError(t, err)

	assert.Equal(t, "Semantic Error line 4: Variable 'x' already declared in this scope.\n"+
		"Semantic analysis found 1 error(s).\n", out.String())

	out.Reset()

	_, err = New(&out).Analyze(context.Background(), program(nil, decl(3, tp.Int, "x", num(1))))
	require.NoError(t, err)

	assert.Equal(t, "Semantic analysis successful.\n", out.String())
}

func TestCheckedGate(t *testing.T) {
	res := analyze(t, program(nil, assign(3, "y", num(1))))

	_, err := res.Checked()
	assert.ErrorIs(t, err, ErrSemantic)
}
