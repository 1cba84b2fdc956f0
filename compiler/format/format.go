package format

import (
	"context"
	"strconv"
	"strings"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"

	"github.com/slowlang/mjc/compiler/ast"
	"github.com/slowlang/mjc/compiler/tp"
)

var prec = map[ast.Op]int{
	ast.Or:  1,
	ast.And: 2,
	ast.Eq:  3,
	ast.Neq: 3,
	ast.Lt:  4,
	ast.Gt:  4,
	ast.Leq: 4,
	ast.Geq: 4,
	ast.Add: 5,
	ast.Sub: 5,
	ast.Mul: 6,
	ast.Div: 6,
	ast.Mod: 6,
}

// Format renders a program, a statement or an expression as source text.
func Format(ctx context.Context, b []byte, x any) ([]byte, error) {
	return format(ctx, b, x, 0)
}

func format(ctx context.Context, b []byte, x any, d int) ([]byte, error) {
	switch x := x.(type) {
	case *ast.Program:
		return formatProgram(ctx, b, x, d)
	case ast.Stmt:
		return formatStmt(ctx, b, x, d)
	case ast.Expr:
		return formatExpr(ctx, b, x, 0)
	default:
		return nil, errors.New("unsupported type: %T", x)
	}
}

func formatProgram(ctx context.Context, b []byte, x *ast.Program, d int) (_ []byte, err error) {
	c := x.Class
	if c == nil {
		return nil, errors.New("program without class")
	}

	b = app(b, d, "class %s {\n", c.Name)

	for _, f := range c.Fields {
		b, err = formatStmt(ctx, b, f, d+1)
		if err != nil {
			return nil, errors.Wrap(err, "field %v", f.Name)
		}
	}

	if c.Main != nil {
		if len(c.Fields) != 0 {
			b = append(b, '\n')
		}

		b, err = formatMethod(ctx, b, c.Main, d+1)
		if err != nil {
			return nil, errors.Wrap(err, "method %v", c.Main.Name)
		}
	}

	b = app(b, d, "}\n")

	return b, nil
}

func formatMethod(ctx context.Context, b []byte, x *ast.Method, d int) (_ []byte, err error) {
	res := x.Result
	if res == tp.Undefined {
		res = tp.Void
	}

	b = app(b, d, "public static %v %s() ", res, x.Name)

	b, err = formatBlock(ctx, b, x.Body, d)
	if err != nil {
		return nil, errors.Wrap(err, "body")
	}

	b = append(b, '\n')

	return b, nil
}

// formatBlock renders braces and statements, the opening brace is not indented.
func formatBlock(ctx context.Context, b []byte, x *ast.Block, d int) (_ []byte, err error) {
	b = append(b, "{\n"...)

	if x != nil {
		for _, s := range x.Stmts {
			b, err = formatStmt(ctx, b, s, d+1)
			if err != nil {
				return nil, err
			}
		}
	}

	b = app(b, d, "}")

	return b, nil
}

func formatStmt(ctx context.Context, b []byte, s ast.Stmt, d int) (_ []byte, err error) {
	switch s := s.(type) {
	case *ast.Block:
		b = app(b, d, "")

		b, err = formatBlock(ctx, b, s, d)
		if err != nil {
			return nil, err
		}

		b = append(b, '\n')
	case *ast.VarDecl:
		b = app(b, d, "")

		if s.Final {
			b = append(b, "final "...)
		}

		b = hfmt.Appendf(b, "%v %s", s.Type, s.Name)

		if s.Init != nil {
			b = append(b, " = "...)

			b, err = formatExpr(ctx, b, s.Init, 0)
			if err != nil {
				return nil, errors.Wrap(err, "init")
			}
		}

		b = append(b, ";\n"...)
	case *ast.Assign:
		b = app(b, d, "%s", s.Name)

		if s.Index != nil {
			b = append(b, '[')

			b, err = formatExpr(ctx, b, s.Index, 0)
			if err != nil {
				return nil, errors.Wrap(err, "index")
			}

			b = append(b, ']')
		}

		b = append(b, " = "...)

		b, err = formatExpr(ctx, b, s.Value, 0)
		if err != nil {
			return nil, errors.Wrap(err, "rhs")
		}

		b = append(b, ";\n"...)
	case *ast.If:
		b = app(b, d, "if (")

		b, err = formatExpr(ctx, b, s.Cond, 0)
		if err != nil {
			return nil, errors.Wrap(err, "cond")
		}

		b = append(b, ") "...)

		b, err = formatBody(ctx, b, s.Then, d)
		if err != nil {
			return nil, errors.Wrap(err, "then")
		}

		if s.Else != nil {
			b = append(b, " else "...)

			b, err = formatBody(ctx, b, s.Else, d)
			if err != nil {
				return nil, errors.Wrap(err, "else")
			}
		}

		b = append(b, '\n')
	case *ast.While:
		b = app(b, d, "while (")

		b, err = formatExpr(ctx, b, s.Cond, 0)
		if err != nil {
			return nil, errors.Wrap(err, "cond")
		}

		b = append(b, ") "...)

		b, err = formatBody(ctx, b, s.Body, d)
		if err != nil {
			return nil, errors.Wrap(err, "body")
		}

		b = append(b, '\n')
	case *ast.Print:
		b = app(b, d, "System.out.println(")

		b, err = formatExpr(ctx, b, s.X, 0)
		if err != nil {
			return nil, errors.Wrap(err, "print")
		}

		b = append(b, ");\n"...)
	case *ast.Return:
		b = app(b, d, "return")

		if s.X != nil {
			b = append(b, ' ')

			b, err = formatExpr(ctx, b, s.X, 0)
			if err != nil {
				return nil, errors.Wrap(err, "return")
			}
		}

		b = append(b, ";\n"...)
	default:
		return nil, errors.New("unsupported stmt: %T", s)
	}

	return b, nil
}

// formatBody renders a branch or loop body always in braces.
func formatBody(ctx context.Context, b []byte, s ast.Stmt, d int) ([]byte, error) {
	if blk, ok := s.(*ast.Block); ok {
		return formatBlock(ctx, b, blk, d)
	}

	return formatBlock(ctx, b, &ast.Block{Stmts: []ast.Stmt{s}}, d)
}

// formatExpr renders x adding parentheses where
// the tree binds tighter than the operators would.
func formatExpr(ctx context.Context, b []byte, x ast.Expr, outer int) (_ []byte, err error) {
	switch x := x.(type) {
	case *ast.IntLit:
		b = strconv.AppendInt(b, int64(x.Value), 10)
	case *ast.FloatLit:
		s := strconv.FormatFloat(float64(x.Value), 'g', -1, 32)
		if !strings.ContainsAny(s, ".eENI") {
			s += ".0"
		}

		b = append(b, s...)
	case *ast.CharLit:
		b = strconv.AppendQuoteRuneToASCII(b, rune(x.Value))
	case *ast.StringLit:
		b = strconv.AppendQuote(b, x.Value)
	case *ast.BoolLit:
		b = strconv.AppendBool(b, x.Value)
	case *ast.Ident:
		b = append(b, x.Name...)
	case *ast.Index:
		b = hfmt.Appendf(b, "%s[", x.Name)

		b, err = formatExpr(ctx, b, x.Index, 0)
		if err != nil {
			return nil, errors.Wrap(err, "index")
		}

		b = append(b, ']')
	case *ast.NewArray:
		b = append(b, "new int["...)

		b, err = formatExpr(ctx, b, x.Size, 0)
		if err != nil {
			return nil, errors.Wrap(err, "size")
		}

		b = append(b, ']')
	case *ast.Paren:
		b = append(b, '(')

		b, err = formatExpr(ctx, b, x.X, 0)
		if err != nil {
			return nil, err
		}

		b = append(b, ')')
	case *ast.Unary:
		b = append(b, string(x.Op)...)

		b, err = formatExpr(ctx, b, x.X, 7)
		if err != nil {
			return nil, errors.Wrap(err, "unary")
		}
	case *ast.Binary:
		p, ok := prec[x.Op]
		if !ok {
			return nil, errors.New("unsupported operator: %q", x.Op)
		}

		if p < outer {
			b = append(b, '(')
		}

		b, err = formatExpr(ctx, b, x.Left, p)
		if err != nil {
			return nil, errors.Wrap(err, "left")
		}

		b = hfmt.Appendf(b, " %s ", x.Op)

		b, err = formatExpr(ctx, b, x.Right, p+1)
		if err != nil {
			return nil, errors.Wrap(err, "right")
		}

		if p < outer {
			b = append(b, ')')
		}
	default:
		return nil, errors.New("unsupported expr: %T", x)
	}

	return b, nil
}

func app(b []byte, d int, f string, args ...any) []byte {
	const tabs = "\t\t\t\t\t\t\t\t\t\t\t\t\t\t\t"
	b = append(b, tabs[:d]...)
	b = hfmt.Appendf(b, f, args...)
	return b
}
