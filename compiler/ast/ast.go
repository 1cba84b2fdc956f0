package ast

import "github.com/slowlang/mjc/compiler/tp"

type (
	Node interface {
		Pos() int
	}

	Stmt interface {
		Node
		stmt()
	}

	Expr interface {
		Node
		expr()
	}

	Op string

	Base struct {
		Line int `json:"line"`
	}

	Program struct {
		Base `tlog:",embed"`

		Class *Class
	}

	Class struct {
		Base `tlog:",embed"`

		Name   string
		Fields []*VarDecl
		Main   *Method
	}

	Method struct {
		Base `tlog:",embed"`

		Name   string
		Result tp.Type
		Body   *Block
	}

	// Statements.

	Block struct {
		Base `tlog:",embed"`

		Stmts []Stmt
	}

	VarDecl struct {
		Base `tlog:",embed"`

		Type  tp.Type
		Name  string
		Final bool
		Init  Expr
	}

	// Assign is a plain assignment if Index is nil
	// and an array element assignment otherwise.
	Assign struct {
		Base `tlog:",embed"`

		Name  string
		Index Expr
		Value Expr
	}

	If struct {
		Base `tlog:",embed"`

		Cond Expr
		Then Stmt
		Else Stmt
	}

	While struct {
		Base `tlog:",embed"`

		Cond Expr
		Body Stmt
	}

	Print struct {
		Base `tlog:",embed"`

		X Expr
	}

	Return struct {
		Base `tlog:",embed"`

		X Expr
	}

	// Expressions.

	Binary struct {
		Base `tlog:",embed"`

		Op    Op
		Left  Expr
		Right Expr
	}

	Unary struct {
		Base `tlog:",embed"`

		Op Op
		X  Expr
	}

	IntLit struct {
		Base `tlog:",embed"`

		Value int32
	}

	FloatLit struct {
		Base `tlog:",embed"`

		Value float32
	}

	CharLit struct {
		Base `tlog:",embed"`

		Value byte
	}

	StringLit struct {
		Base `tlog:",embed"`

		Value string
	}

	BoolLit struct {
		Base `tlog:",embed"`

		Value bool
	}

	Ident struct {
		Base `tlog:",embed"`

		Name string
	}

	Index struct {
		Base `tlog:",embed"`

		Name  string
		Index Expr
	}

	Paren struct {
		Base `tlog:",embed"`

		X Expr
	}

	NewArray struct {
		Base `tlog:",embed"`

		Size Expr
	}
)

const (
	Add Op = "+"
	Sub Op = "-"
	Mul Op = "*"
	Div Op = "/"
	Mod Op = "%"

	Lt  Op = "<"
	Gt  Op = ">"
	Leq Op = "<="
	Geq Op = ">="
	Eq  Op = "=="
	Neq Op = "!="

	And Op = "&&"
	Or  Op = "||"

	Neg Op = "-"
	Not Op = "!"
)

func (b Base) Pos() int { return b.Line }

func (*Block) stmt()   {}
func (*VarDecl) stmt() {}
func (*Assign) stmt()  {}
func (*If) stmt()      {}
func (*While) stmt()   {}
func (*Print) stmt()   {}
func (*Return) stmt()  {}

func (*Binary) expr()    {}
func (*Unary) expr()     {}
func (*IntLit) expr()    {}
func (*FloatLit) expr()  {}
func (*CharLit) expr()   {}
func (*StringLit) expr() {}
func (*BoolLit) expr()   {}
func (*Ident) expr()     {}
func (*Index) expr()     {}
func (*Paren) expr()     {}
func (*NewArray) expr()  {}

func (op Op) Arith() bool {
	switch op {
	case Add, Sub, Mul, Div, Mod:
		return true
	}

	return false
}

func (op Op) Relational() bool {
	switch op {
	case Lt, Gt, Leq, Geq:
		return true
	}

	return false
}

func (op Op) Equality() bool { return op == Eq || op == Neq }

func (op Op) Logical() bool { return op == And || op == Or }
