package front

import (
	"github.com/slowlang/mjc/compiler/analyze"
	"github.com/slowlang/mjc/compiler/ast"
	"github.com/slowlang/mjc/compiler/ir"
	"github.com/slowlang/mjc/compiler/tp"
)

var binops = map[ast.Op]ir.Op{
	ast.Add: ir.Add,
	ast.Sub: ir.Sub,
	ast.Mul: ir.Mul,
	ast.Div: ir.Div,
	ast.Mod: ir.Mod,
	ast.Lt:  ir.Lt,
	ast.Gt:  ir.Gt,
	ast.Leq: ir.Leq,
	ast.Geq: ir.Geq,
	ast.Eq:  ir.Eq,
	ast.Neq: ir.Neq,
	ast.And: ir.And,
	ast.Or:  ir.Or,
}

// exprAs lowers x and widens the result to t if needed.
func (g *gen) exprAs(x ast.Expr, t tp.Type) ir.Operand {
	return g.convert(g.expr(x), t, x.Pos())
}

// convert widens int to float, other values are returned as is.
func (g *gen) convert(v ir.Operand, t tp.Type, line int) ir.Operand {
	if t != tp.Float || v.Type() != tp.Int {
		return v
	}

	if c, ok := v.(ir.Int); ok {
		return ir.Float(c)
	}

	f := g.p.NewTemp(tp.Float)
	g.p.Emit(line, ir.IToF, f, v, nil)

	return f
}

func (g *gen) expr(x ast.Expr) ir.Operand {
	switch x := x.(type) {
	case *ast.IntLit:
		return ir.Int(x.Value)
	case *ast.FloatLit:
		return ir.Float(x.Value)
	case *ast.CharLit:
		return ir.Char(x.Value)
	case *ast.StringLit:
		return ir.String(x.Value)
	case *ast.BoolLit:
		return ir.Bool(x.Value)
	case *ast.Paren:
		return g.expr(x.X)
	case *ast.Ident:
		return g.varOf(g.lookup(x.Name, x.Line))
	case *ast.Index:
		base := g.varOf(g.lookup(x.Name, x.Line))
		idx := g.expr(x.Index)

		t := g.p.NewTemp(g.typeOf(x))
		g.p.Emit(x.Line, ir.ArrayLoad, t, base, idx)

		return t
	case *ast.NewArray:
		n := g.expr(x.Size)

		t := g.p.NewTemp(tp.IntArray)
		g.p.Emit(x.Line, ir.NewArray, t, n, nil)

		return t
	case *ast.Unary:
		v := g.expr(x.X)

		op := ir.Not
		if x.Op == ast.Neg {
			op = ir.Neg
		}

		t := g.p.NewTemp(g.typeOf(x))
		g.p.Emit(x.Line, op, t, v, nil)

		return t
	case *ast.Binary:
		return g.binary(x)
	default:
		panic(x)
	}
}

// binary evaluates both operands, && and || included.
func (g *gen) binary(x *ast.Binary) ir.Operand {
	op, ok := binops[x.Op]
	if !ok {
		g.fail("unsupported operator %q (line %d)", x.Op, x.Line)
	}

	l := g.expr(x.Left)
	r := g.expr(x.Right)

	// operand type: the wider of both sides for arithmetic and comparisons
	if lt, rt := g.typeOf(x.Left), g.typeOf(x.Right); lt.Numeric() && rt.Numeric() {
		ot := analyze.Promote(lt, rt)

		l = g.convert(l, ot, x.Line)
		r = g.convert(r, ot, x.Line)
	}

	t := g.p.NewTemp(g.typeOf(x))
	g.p.Emit(x.Line, op, t, l, r)

	return t
}

func (g *gen) typeOf(x ast.Expr) tp.Type {
	t := g.c.TypeOf(x)
	if !t.Valid() {
		g.fail("expression %T (line %d) has type %v", x, x.Pos(), t)
	}

	return t
}
