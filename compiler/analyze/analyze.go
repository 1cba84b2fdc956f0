package analyze

import (
	"context"
	"io"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/mjc/compiler/ast"
	"github.com/slowlang/mjc/compiler/diag"
	"github.com/slowlang/mjc/compiler/scope"
	"github.com/slowlang/mjc/compiler/tp"
)

type (
	Analyzer struct {
		// Entry is the required name of the main method.
		Entry string

		Out io.Writer
	}

	// Result is the annotation of one analyzed program.
	// The AST itself is not modified.
	Result struct {
		Program *ast.Program
		Scopes  *scope.Table

		// Types holds the resolved type of every expression.
		Types map[ast.Expr]tp.Type

		// Scope holds the scope owned by every *ast.Class,
		// *ast.Method and *ast.Block.
		Scope map[ast.Node]scope.ID

		Diag *diag.Sink
	}

	// Checked is a Result with no errors.
	// Only Result.Checked makes one.
	Checked struct {
		res *Result
	}

	state struct {
		*Result

		sc *scope.Table
		d  *diag.Sink

		entry string
	}

	// frame is the context of the method being analyzed.
	frame struct {
		ret tp.Type
	}
)

const (
	Redeclaration        diag.Kind = "redeclaration"
	UndeclaredIdentifier diag.Kind = "undeclared_identifier"
	TypeMismatch         diag.Kind = "type_mismatch"
	NotAnArray           diag.Kind = "not_an_array"
	NonBooleanCondition  diag.Kind = "non_boolean_condition"
	FinalReassignment    diag.Kind = "final_reassignment"
	UninitializedFinal   diag.Kind = "uninitialized_final"
	InvalidReturn        diag.Kind = "invalid_return"
	UnprintableType      diag.Kind = "unprintable_type"
	InvalidEntryPoint    diag.Kind = "invalid_entry_point"
	InvalidType          diag.Kind = "invalid_type"

	Uninitialized diag.Kind = "uninitialized"
)

var ErrSemantic = errors.New("semantic errors")

func New(out io.Writer) *Analyzer {
	return &Analyzer{
		Entry: "main",
		Out:   out,
	}
}

// Analyze checks p and annotates it with types and scopes.
// Semantic errors are reported to a.Out and counted in the Result,
// err is only returned if p can't be analyzed at all.
func (a *Analyzer) Analyze(ctx context.Context, p *ast.Program) (res *Result, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "analyze")
	defer tr.Finish("err", &err)

	if p == nil || p.Class == nil {
		return nil, errors.New("no class to analyze")
	}

	entry := a.Entry
	if entry == "" {
		entry = "main"
	}

	s := &state{
		Result: &Result{
			Program: p,
			Scopes:  scope.New(),
			Types:   map[ast.Expr]tp.Type{},
			Scope:   map[ast.Node]scope.ID{},
			Diag:    diag.New(ctx, a.Out, "Semantic"),
		},
		entry: entry,
	}

	s.sc = s.Scopes
	s.d = s.Diag

	s.class(ctx, p.Class)

	if s.sc.Current() != scope.None {
		return nil, errors.New("scope cursor left at %v", s.sc.Current())
	}

	s.d.Summary("Semantic analysis")

	tr.Printw("analyzed", "errors", s.d.Errors(), "warnings", s.d.Warnings(), "scopes", s.sc.Len())

	if tr.If("dump_scopes") {
		for id := 0; id < s.sc.Len(); id++ {
			sc := s.sc.Scope(scope.ID(id))

			tr.Printw("scope", "id", id, "parent", sc.Parent, "depth", sc.Depth, "entries", sc.Entries, "from", sc.From())
		}
	}

	return s.Result, nil
}

func (r *Result) Errors() int   { return r.Diag.Errors() }
func (r *Result) Warnings() int { return r.Diag.Warnings() }

// Checked returns the Result as a Checked value if it has no errors.
func (r *Result) Checked() (*Checked, error) {
	if n := r.Errors(); n != 0 {
		return nil, errors.Wrap(ErrSemantic, "found %d error(s)", n)
	}

	return &Checked{res: r}, nil
}

func (c *Checked) Result() *Result { return c.res }

func (c *Checked) Program() *ast.Program { return c.res.Program }

func (c *Checked) Scopes() *scope.Table { return c.res.Scopes }

func (c *Checked) TypeOf(x ast.Expr) tp.Type {
	t, ok := c.res.Types[x]
	if !ok {
		return tp.Undefined
	}

	return t
}

func (c *Checked) ScopeOf(n ast.Node) (scope.ID, bool) {
	id, ok := c.res.Scope[n]
	return id, ok
}

func (s *state) class(ctx context.Context, c *ast.Class) {
	s.Scope[c] = s.sc.Enter()
	defer s.sc.Exit()

	for _, f := range c.Fields {
		s.varDecl(ctx, f)
	}

	m := c.Main
	if m == nil {
		s.d.Errorf(InvalidEntryPoint, c.Line, "No main method found.")
		return
	}

	if m.Name != s.entry {
		s.d.Errorf(InvalidEntryPoint, m.Line, "Main method must be named '%s'.", s.entry)
	}

	s.method(ctx, m)
}

func (s *state) method(ctx context.Context, m *ast.Method) {
	s.Scope[m] = s.sc.Enter()
	defer s.sc.Exit()

	f := &frame{ret: m.Result}

	s.block(ctx, m.Body, f)
}

func (s *state) block(ctx context.Context, b *ast.Block, f *frame) {
	s.Scope[b] = s.sc.Enter()
	defer s.sc.Exit()

	for _, x := range b.Stmts {
		s.stmt(ctx, x, f)
	}
}

func (s *state) stmt(ctx context.Context, x ast.Stmt, f *frame) {
	switch x := x.(type) {
	case *ast.Block:
		s.block(ctx, x, f)
	case *ast.VarDecl:
		s.varDecl(ctx, x)
	case *ast.Assign:
		s.assign(x)
	case *ast.If:
		s.cond(x.Cond, "If")

		s.stmt(ctx, x.Then, f)

		if x.Else != nil {
			s.stmt(ctx, x.Else, f)
		}
	case *ast.While:
		s.cond(x.Cond, "While")

		s.stmt(ctx, x.Body, f)
	case *ast.Print:
		t := s.expr(x.X)

		if t.Valid() && !t.Printable() {
			s.d.Errorf(UnprintableType, x.Line, "Expression of type %v is not printable.", t)
		}
	case *ast.Return:
		s.ret(x, f)
	default:
		panic(x)
	}
}

func (s *state) varDecl(ctx context.Context, v *ast.VarDecl) {
	typ := v.Type

	if typ == tp.Void {
		s.d.Errorf(InvalidType, v.Line, "Variables cannot be of type 'void'.")
		typ = tp.Error
	}

	if v.Init != nil {
		it := s.expr(v.Init)

		if typ.Valid() && it.Valid() && !it.AssignableTo(typ) {
			s.d.Errorf(TypeMismatch, v.Line, "Type mismatch: cannot initialize variable '%s' of type %v with expression of type %v.", v.Name, typ, it)
		}
	}

	if v.Final && v.Init == nil {
		s.d.Errorf(UninitializedFinal, v.Line, "'final' variable '%s' must be initialized at declaration.", v.Name)
	}

	e, err := s.sc.Insert(v.Name, typ, v.Line, v.Final, v.Init != nil, v)
	if errors.Is(err, scope.ErrRedeclared) {
		s.d.Errorf(Redeclaration, v.Line, "Variable '%s' already declared in this scope.", v.Name)
		return
	}
	if err != nil {
		panic(err)
	}

	tlog.SpanFromContext(ctx).V("symbols").Printw("declared", "entry", e, "scope", s.sc.Current())
}

func (s *state) assign(a *ast.Assign) {
	e := s.sc.Lookup(a.Name)
	if e == nil {
		s.d.Errorf(UndeclaredIdentifier, a.Line, "Variable '%s' not declared.", a.Name)
	}

	if e != nil && e.Final {
		s.d.Errorf(FinalReassignment, a.Line, "Cannot assign to 'final' variable '%s'.", a.Name)
	}

	target := tp.Error
	if e != nil {
		target = e.Type
	}

	if a.Index != nil {
		switch {
		case !target.Valid():
		case target != tp.IntArray:
			s.d.Errorf(NotAnArray, a.Line, "Variable '%s' is not an array.", a.Name)
			target = tp.Error
		default:
			if !e.Initialized {
				s.d.Warnf(Uninitialized, a.Line, "Array '%s' might not have been initialized.", a.Name)
			}

			target = target.Elem()
		}

		if it := s.expr(a.Index); it.Valid() && it != tp.Int {
			s.d.Errorf(TypeMismatch, a.Line, "Array index must be an integer.")
		}
	}

	vt := s.expr(a.Value)

	if target.Valid() && vt.Valid() && !vt.AssignableTo(target) {
		s.d.Errorf(TypeMismatch, a.Line, "Type mismatch: cannot assign expression of type %v to target of type %v for '%s'.", vt, target, a.Name)
		return
	}

	if e != nil && a.Index == nil && !e.Final {
		e.Initialized = true
	}
}

func (s *state) cond(x ast.Expr, what string) {
	t := s.expr(x)

	if t.Valid() && t != tp.Boolean {
		s.d.Errorf(NonBooleanCondition, x.Pos(), "%s condition must be a boolean expression.", what)
	}
}

func (s *state) ret(r *ast.Return, f *frame) {
	if f.ret == tp.Void {
		if r.X != nil {
			s.expr(r.X)
			s.d.Errorf(InvalidReturn, r.Line, "Cannot return a value from a void method.")
		}

		return
	}

	if r.X == nil {
		s.d.Errorf(InvalidReturn, r.Line, "Must return a value of type %v from this method.", f.ret)
		return
	}

	t := s.expr(r.X)

	if t.Valid() && !t.AssignableTo(f.ret) {
		s.d.Errorf(TypeMismatch, r.Line, "Type mismatch: cannot return expression of type %v from method expecting %v.", t, f.ret)
	}
}
