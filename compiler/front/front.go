package front

import (
	"context"
	"fmt"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/mjc/compiler/analyze"
	"github.com/slowlang/mjc/compiler/ast"
	"github.com/slowlang/mjc/compiler/ir"
	"github.com/slowlang/mjc/compiler/scope"
	"github.com/slowlang/mjc/compiler/tp"
)

type (
	// gen lowers a checked program to TAC.
	// It never creates scopes: it switches to the ones
	// the analyzer recorded for every scope owner.
	gen struct {
		c  *analyze.Checked
		sc *scope.Table
		p  *ir.Program

		// visible is the number of declarations lowered so far,
		// names declared later in the same scope are not yet visible.
		visible int
	}

	internalError struct {
		msg string
	}
)

var ErrInternal = errors.New("internal ir generator error")

// Generate lowers a checked program to a TAC program.
// The entry method is bracketed by FUNCTION_BEGIN and FUNCTION_END,
// field initializers run at its start.
func Generate(ctx context.Context, c *analyze.Checked) (p *ir.Program, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "front: generate")
	defer tr.Finish("err", &err)

	g := &gen{
		c:  c,
		sc: c.Scopes(),
		p:  ir.New(),
	}

	defer func() {
		p := recover()
		if p == nil {
			return
		}

		e, ok := p.(internalError)
		if !ok {
			panic(p)
		}

		err = errors.Wrap(ErrInternal, "%v", e.msg)
	}()

	g.class(ctx, c.Program().Class)

	tr.Printw("generated", "instrs", g.p.Len())

	if tr.If("dump_tac") {
		for i, x := range g.p.Code {
			tr.Printw("tac", "i", i, "x", x)
		}
	}

	return g.p, nil
}

func (g *gen) class(ctx context.Context, c *ast.Class) {
	defer g.sc.Switch(g.sc.Switch(g.scopeOf(c)))

	m := c.Main
	name := ir.Label(m.Name)

	g.p.Emit(m.Line, ir.FuncBegin, nil, name, nil)

	for _, f := range c.Fields {
		g.varDecl(f)
	}

	g.method(ctx, m)

	g.p.Emit(m.Line, ir.FuncEnd, nil, name, nil)
}

func (g *gen) method(ctx context.Context, m *ast.Method) {
	defer g.sc.Switch(g.sc.Switch(g.scopeOf(m)))

	g.block(ctx, m.Body)
}

func (g *gen) block(ctx context.Context, b *ast.Block) {
	defer g.sc.Switch(g.sc.Switch(g.scopeOf(b)))

	for _, s := range b.Stmts {
		g.stmt(ctx, s)
	}
}

func (g *gen) stmt(ctx context.Context, s ast.Stmt) {
	switch s := s.(type) {
	case *ast.Block:
		g.block(ctx, s)
	case *ast.VarDecl:
		g.varDecl(s)
	case *ast.Assign:
		g.assign(s)
	case *ast.If:
		g.ifStmt(ctx, s)
	case *ast.While:
		g.while(ctx, s)
	case *ast.Print:
		v := g.expr(s.X)

		g.p.Emit(s.Line, ir.Print, nil, v, nil)
	case *ast.Return:
		var v ir.Operand

		if s.X != nil {
			v = g.exprAs(s.X, g.retType())
		}

		g.p.Emit(s.Line, ir.Return, nil, v, nil)
	default:
		panic(s)
	}
}

func (g *gen) varDecl(v *ast.VarDecl) {
	var val ir.Operand

	if v.Init != nil {
		val = g.exprAs(v.Init, v.Type)
	}

	e := g.sc.LookupLocal(v.Name)
	if e == nil || e.Node != ast.Node(v) {
		g.fail("declaration of %q (line %d) is not in its scope", v.Name, v.Line)
	}

	g.visible = e.Seq + 1

	if val != nil {
		g.p.Emit(v.Line, ir.Assign, g.varOf(e), val, nil)
	}
}

func (g *gen) assign(a *ast.Assign) {
	e := g.lookup(a.Name, a.Line)
	base := g.varOf(e)

	if a.Index == nil {
		v := g.exprAs(a.Value, e.Type)

		g.p.Emit(a.Line, ir.Assign, base, v, nil)

		return
	}

	idx := g.expr(a.Index)
	v := g.exprAs(a.Value, e.Type.Elem())

	g.p.Emit(a.Line, ir.ArrayStore, base, idx, v)
}

// ifStmt lowers to
//
//	IF NOT cond GOTO else
//	then
//	GOTO end      if there is else
//	LABEL else:
//	else
//	LABEL end:    if there is else
func (g *gen) ifStmt(ctx context.Context, s *ast.If) {
	cond := g.expr(s.Cond)

	elseL := g.p.NewLabel()
	endL := g.p.NewLabel()

	g.p.Emit(s.Line, ir.IfNotGoto, elseL, cond, nil)

	g.stmt(ctx, s.Then)

	if s.Else == nil {
		g.p.Emit(s.Line, ir.MkLabel, elseL, nil, nil)
		return
	}

	g.p.Emit(s.Line, ir.Goto, endL, nil, nil)
	g.p.Emit(s.Line, ir.MkLabel, elseL, nil, nil)

	g.stmt(ctx, s.Else)

	g.p.Emit(s.Line, ir.MkLabel, endL, nil, nil)
}

func (g *gen) while(ctx context.Context, s *ast.While) {
	start := g.p.NewLabel()
	end := g.p.NewLabel()

	g.p.Emit(s.Line, ir.MkLabel, start, nil, nil)

	cond := g.expr(s.Cond)

	g.p.Emit(s.Line, ir.IfNotGoto, end, cond, nil)

	g.stmt(ctx, s.Body)

	g.p.Emit(s.Line, ir.Goto, start, nil, nil)
	g.p.Emit(s.Line, ir.MkLabel, end, nil, nil)
}

func (g *gen) retType() tp.Type {
	return g.c.Program().Class.Main.Result
}

func (g *gen) lookup(name string, line int) *scope.Entry {
	e := g.sc.LookupBefore(name, g.visible)
	if e == nil {
		g.fail("identifier %q (line %d) not found", name, line)
	}

	return e
}

func (g *gen) varOf(e *scope.Entry) ir.Var {
	return ir.Var{Name: e.Key, Typ: e.Type}
}

func (g *gen) scopeOf(n ast.Node) scope.ID {
	id, ok := g.c.ScopeOf(n)
	if !ok {
		g.fail("no scope recorded for %T (line %d)", n, n.Pos())
	}

	return id
}

func (g *gen) fail(format string, args ...any) {
	panic(internalError{msg: fmt.Sprintf(format, args...)})
}
