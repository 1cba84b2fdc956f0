package ast

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strconv"

	"tlog.app/go/errors"

	"github.com/slowlang/mjc/compiler/tp"
)

type (
	// jnode is the wire form of every node the parser hands over.
	// Kind selects which of the other fields are meaningful.
	jnode struct {
		Kind  string          `json:"kind"`
		Line  int             `json:"line"`
		Name  string          `json:"name,omitempty"`
		Type  string          `json:"type,omitempty"`
		Final bool            `json:"final,omitempty"`
		Op    string          `json:"op,omitempty"`
		Value json.RawMessage `json:"value,omitempty"`

		Class  *jnode   `json:"class,omitempty"`
		Fields []*jnode `json:"fields,omitempty"`
		Main   *jnode   `json:"main,omitempty"`
		Body   *jnode   `json:"body,omitempty"`
		Stmts  []*jnode `json:"stmts,omitempty"`

		Init  *jnode `json:"init,omitempty"`
		Index *jnode `json:"index,omitempty"`
		Rhs   *jnode `json:"rhs,omitempty"`
		Cond  *jnode `json:"cond,omitempty"`
		Then  *jnode `json:"then,omitempty"`
		Else  *jnode `json:"else,omitempty"`
		X     *jnode `json:"x,omitempty"`
		Left  *jnode `json:"left,omitempty"`
		Right *jnode `json:"right,omitempty"`
		Size  *jnode `json:"size,omitempty"`
	}
)

func DecodeFile(name string) (*Program, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}

	defer f.Close()

	return Decode(f)
}

func Decode(r io.Reader) (*Program, error) {
	var n jnode

	d := json.NewDecoder(r)
	d.DisallowUnknownFields()

	err := d.Decode(&n)
	if err != nil {
		return nil, errors.Wrap(err, "decode json")
	}

	return decodeProgram(&n)
}

func Unmarshal(data []byte) (*Program, error) {
	return Decode(bytes.NewReader(data))
}

func decodeProgram(n *jnode) (_ *Program, err error) {
	p := &Program{Base: Base{Line: n.Line}}

	switch n.Kind {
	case "program":
	case "class":
		n = &jnode{Kind: "program", Line: n.Line, Class: n}
	default:
		return nil, errors.New("line %d: expected program, got %q", n.Line, n.Kind)
	}

	if n.Class == nil {
		return nil, errors.New("line %d: program without class", n.Line)
	}

	p.Class, err = decodeClass(n.Class)
	if err != nil {
		return nil, errors.Wrap(err, "class")
	}

	if p.Line == 0 {
		p.Line = p.Class.Line
	}

	return p, nil
}

func decodeClass(n *jnode) (_ *Class, err error) {
	if n.Kind != "class" {
		return nil, errors.New("line %d: expected class, got %q", n.Line, n.Kind)
	}

	c := &Class{
		Base: Base{Line: n.Line},
		Name: n.Name,
	}

	for _, f := range n.Fields {
		s, err := decodeStmt(f)
		if err != nil {
			return nil, errors.Wrap(err, "field")
		}

		v, ok := s.(*VarDecl)
		if !ok {
			return nil, errors.New("line %d: field must be a variable declaration", f.Line)
		}

		c.Fields = append(c.Fields, v)
	}

	if n.Main == nil {
		return c, nil
	}

	c.Main, err = decodeMethod(n.Main)
	if err != nil {
		return nil, errors.Wrap(err, "method %v", n.Main.Name)
	}

	return c, nil
}

func decodeMethod(n *jnode) (_ *Method, err error) {
	if n.Kind != "method" && n.Kind != "main" {
		return nil, errors.New("line %d: expected method, got %q", n.Line, n.Kind)
	}

	m := &Method{
		Base:   Base{Line: n.Line},
		Name:   n.Name,
		Result: tp.Void,
	}

	if n.Type != "" {
		m.Result, err = tp.Parse(n.Type)
		if err != nil {
			return nil, errors.Wrap(err, "line %d: result type", n.Line)
		}
	}

	if n.Body == nil {
		return nil, errors.New("line %d: method without body", n.Line)
	}

	m.Body, err = decodeBlock(n.Body)
	if err != nil {
		return nil, errors.Wrap(err, "body")
	}

	return m, nil
}

func decodeBlock(n *jnode) (*Block, error) {
	if n.Kind != "block" {
		return nil, errors.New("line %d: expected block, got %q", n.Line, n.Kind)
	}

	b := &Block{Base: Base{Line: n.Line}}

	for _, s := range n.Stmts {
		x, err := decodeStmt(s)
		if err != nil {
			return nil, err
		}

		b.Stmts = append(b.Stmts, x)
	}

	return b, nil
}

func decodeStmt(n *jnode) (_ Stmt, err error) {
	if n == nil {
		return nil, errors.New("missing statement")
	}

	base := Base{Line: n.Line}

	switch n.Kind {
	case "block":
		return decodeBlock(n)
	case "var":
		v := &VarDecl{Base: base, Name: n.Name, Final: n.Final}

		v.Type, err = tp.Parse(n.Type)
		if err != nil {
			return nil, errors.Wrap(err, "line %d", n.Line)
		}

		if n.Init != nil {
			v.Init, err = decodeExpr(n.Init)
		}

		return v, err
	case "assign":
		a := &Assign{Base: base, Name: n.Name}

		if n.Index != nil {
			a.Index, err = decodeExpr(n.Index)
			if err != nil {
				return nil, err
			}
		}

		a.Value, err = decodeExpr(n.Rhs)

		return a, err
	case "if":
		s := &If{Base: base}

		s.Cond, err = decodeExpr(n.Cond)
		if err != nil {
			return nil, err
		}

		s.Then, err = decodeStmt(n.Then)
		if err != nil {
			return nil, errors.Wrap(err, "then")
		}

		if n.Else != nil {
			s.Else, err = decodeStmt(n.Else)
		}

		return s, err
	case "while":
		s := &While{Base: base}

		s.Cond, err = decodeExpr(n.Cond)
		if err != nil {
			return nil, err
		}

		s.Body, err = decodeStmt(n.Body)

		return s, err
	case "print":
		s := &Print{Base: base}
		s.X, err = decodeExpr(n.X)

		return s, err
	case "return":
		s := &Return{Base: base}

		if n.X != nil {
			s.X, err = decodeExpr(n.X)
		}

		return s, err
	default:
		return nil, errors.New("line %d: unknown statement kind %q", n.Line, n.Kind)
	}
}

func decodeExpr(n *jnode) (_ Expr, err error) {
	if n == nil {
		return nil, errors.New("missing expression")
	}

	base := Base{Line: n.Line}

	switch n.Kind {
	case "binary":
		x := &Binary{Base: base, Op: Op(n.Op)}

		if !x.Op.Arith() && !x.Op.Relational() && !x.Op.Equality() && !x.Op.Logical() {
			return nil, errors.New("line %d: unknown binary operator %q", n.Line, n.Op)
		}

		x.Left, err = decodeExpr(n.Left)
		if err != nil {
			return nil, err
		}

		x.Right, err = decodeExpr(n.Right)

		return x, err
	case "unary":
		x := &Unary{Base: base, Op: Op(n.Op)}

		if x.Op != Neg && x.Op != Not {
			return nil, errors.New("line %d: unknown unary operator %q", n.Line, n.Op)
		}

		x.X, err = decodeExpr(n.X)

		return x, err
	case "int":
		var v int32

		err = literal(n, &v, "int")
		if err != nil {
			return nil, err
		}

		return &IntLit{Base: base, Value: v}, nil
	case "float":
		var v float32

		err = literal(n, &v, "float")
		if err != nil {
			return nil, err
		}

		return &FloatLit{Base: base, Value: v}, nil
	case "char":
		var s string

		err = literal(n, &s, "char")
		if err != nil {
			return nil, err
		}

		if len(s) != 1 {
			return nil, errors.New("line %d: char literal: want exactly one byte, got %s", n.Line, strconv.Quote(s))
		}

		return &CharLit{Base: base, Value: s[0]}, nil
	case "string":
		var s string

		err = literal(n, &s, "string")
		if err != nil {
			return nil, err
		}

		return &StringLit{Base: base, Value: s}, nil
	case "bool":
		var v bool

		err = literal(n, &v, "boolean")
		if err != nil {
			return nil, err
		}

		return &BoolLit{Base: base, Value: v}, nil
	case "ident":
		return &Ident{Base: base, Name: n.Name}, nil
	case "index":
		x := &Index{Base: base, Name: n.Name}
		x.Index, err = decodeExpr(n.Index)

		return x, err
	case "paren":
		x := &Paren{Base: base}
		x.X, err = decodeExpr(n.X)

		return x, err
	case "new":
		x := &NewArray{Base: base}
		x.Size, err = decodeExpr(n.Size)

		return x, err
	default:
		return nil, errors.New("line %d: unknown expression kind %q", n.Line, n.Kind)
	}
}

func literal(n *jnode, v any, what string) error {
	err := json.Unmarshal(n.Value, v)
	if err != nil {
		return errors.Wrap(err, "line %d: %s literal", n.Line, what)
	}

	return nil
}
