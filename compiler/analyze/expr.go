package analyze

import (
	"github.com/slowlang/mjc/compiler/ast"
	"github.com/slowlang/mjc/compiler/tp"
)

// expr resolves the type of x and records it.
// A subexpression of type Error makes x an Error silently.
func (s *state) expr(x ast.Expr) (t tp.Type) {
	t = s.resolve(x)

	s.Types[x] = t

	return t
}

func (s *state) resolve(x ast.Expr) tp.Type {
	switch x := x.(type) {
	case *ast.IntLit:
		return tp.Int
	case *ast.FloatLit:
		return tp.Float
	case *ast.CharLit:
		return tp.Char
	case *ast.StringLit:
		return tp.String
	case *ast.BoolLit:
		return tp.Boolean
	case *ast.Paren:
		return s.expr(x.X)
	case *ast.Ident:
		e := s.sc.Lookup(x.Name)
		if e == nil {
			s.d.Errorf(UndeclaredIdentifier, x.Line, "Identifier '%s' not declared.", x.Name)
			return tp.Error
		}

		if !e.Initialized {
			s.d.Warnf(Uninitialized, x.Line, "Variable '%s' might not have been initialized.", x.Name)
		}

		return e.Type
	case *ast.Index:
		return s.index(x)
	case *ast.NewArray:
		st := s.expr(x.Size)

		if st.Valid() && st != tp.Int {
			s.d.Errorf(TypeMismatch, x.Line, "Array size must be an integer.")
		}

		return tp.IntArray
	case *ast.Unary:
		return s.unary(x)
	case *ast.Binary:
		return s.binary(x)
	default:
		panic(x)
	}
}

func (s *state) index(x *ast.Index) tp.Type {
	res := tp.Int

	e := s.sc.Lookup(x.Name)

	switch {
	case e == nil:
		s.d.Errorf(UndeclaredIdentifier, x.Line, "Array identifier '%s' not declared.", x.Name)
		res = tp.Error
	case !e.Type.Valid():
		res = tp.Error
	case e.Type != tp.IntArray:
		s.d.Errorf(NotAnArray, x.Line, "Identifier '%s' is not an array.", x.Name)
		res = tp.Error
	case !e.Initialized:
		s.d.Warnf(Uninitialized, x.Line, "Array '%s' might not have been initialized.", x.Name)
	}

	it := s.expr(x.Index)

	switch {
	case !it.Valid():
		return tp.Error
	case it != tp.Int:
		s.d.Errorf(TypeMismatch, x.Line, "Array index must be an integer.")
		return tp.Error
	}

	return res
}

func (s *state) unary(x *ast.Unary) tp.Type {
	t := s.expr(x.X)
	if !t.Valid() {
		return tp.Error
	}

	switch x.Op {
	case ast.Neg:
		if t.Numeric() {
			return t
		}

		s.d.Errorf(TypeMismatch, x.Line, "Operand for unary minus must be numeric (int or float).")
	case ast.Not:
		if t == tp.Boolean {
			return t
		}

		s.d.Errorf(TypeMismatch, x.Line, "Operand for logical NOT '!' must be a boolean.")
	default:
		s.d.Errorf(TypeMismatch, x.Line, "Unsupported unary operator '%s'.", x.Op)
	}

	return tp.Error
}

func (s *state) binary(x *ast.Binary) tp.Type {
	l := s.expr(x.Left)
	r := s.expr(x.Right)

	if !l.Valid() || !r.Valid() {
		return tp.Error
	}

	op := x.Op

	switch {
	case op.Arith():
		if l.Numeric() && r.Numeric() {
			return Promote(l, r)
		}

		s.d.Errorf(TypeMismatch, x.Line, "Arithmetic operands must be numeric (int/float) for operator '%s', got %v and %v.", op, l, r)
	case op.Relational():
		if l.Numeric() && r.Numeric() || l == tp.Char && r == tp.Char {
			return tp.Boolean
		}

		s.d.Errorf(TypeMismatch, x.Line, "Relational operands must be compatible types for operator '%s', got %v and %v.", op, l, r)
	case op.Equality():
		if l == r && l.Printable() || l.Numeric() && r.Numeric() {
			return tp.Boolean
		}

		s.d.Errorf(TypeMismatch, x.Line, "Equality operands must be of the same compatible primitive type for operator '%s', got %v and %v.", op, l, r)
	case op.Logical():
		if l == tp.Boolean && r == tp.Boolean {
			return tp.Boolean
		}

		s.d.Errorf(TypeMismatch, x.Line, "Logical operands must be booleans for operator '%s', got %v and %v.", op, l, r)
	default:
		s.d.Errorf(TypeMismatch, x.Line, "Unsupported binary operator '%s'.", op)
	}

	return tp.Error
}

// Promote is the result type of arithmetic over numeric l and r.
func Promote(l, r tp.Type) tp.Type {
	if l == tp.Float || r == tp.Float {
		return tp.Float
	}

	return tp.Int
}
