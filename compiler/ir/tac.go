package ir

import (
	"fmt"

	"github.com/slowlang/mjc/compiler/tp"
)

type (
	Op uint8

	// Operand is one of None, Var, Temp, Int, Float, Char, Bool, String, Label.
	Operand interface {
		Type() tp.Type
		String() string

		operand()
	}

	None struct{}

	Var struct {
		Name string
		Typ  tp.Type
	}

	Temp struct {
		Name string
		Typ  tp.Type
	}

	Int    int32
	Float  float32
	Char   byte
	Bool   bool
	String string
	Label  string

	// Instr is a three-address instruction.
	// Operand roles by opcode:
	//
	//	binary, ITOF, UMINUS, NOT  Result = Op1 OP Op2
	//	ASSIGN                     Result = Op1
	//	LABEL, GOTO                Result is the label
	//	IF_GOTO, IF_NOT_GOTO       Result is the label, Op1 the condition
	//	PRINT, RETURN, PARAM       Op1 is the value, Op1 of RETURN may be None
	//	CALL                       Result = Op1(Op2 params), Result may be None
	//	NEW_ARRAY                  Result = new [Op1]elem
	//	ARRAY_LOAD                 Result = Op1[Op2]
	//	ARRAY_STORE                Result[Op1] = Op2
	//	FUNCTION_BEGIN, _END       Op1 is the function name label
	Instr struct {
		Op     Op
		Result Operand
		Op1    Operand
		Op2    Operand

		Line int
	}

	// Program is a flat list of instructions in emission order.
	// Temp and label names are unique within a Program.
	Program struct {
		Code []Instr

		temps  int
		labels int
	}
)

const (
	Nop Op = iota

	Assign

	Add
	Sub
	Mul
	Div
	Mod

	Lt
	Gt
	Leq
	Geq
	Eq
	Neq

	And
	Or

	Neg
	Not
	IToF

	MkLabel
	Goto
	IfGoto
	IfNotGoto

	Print
	Return
	Param
	Call

	NewArray
	ArrayLoad
	ArrayStore

	FuncBegin
	FuncEnd

	numOps
)

var opNames = [numOps]string{
	Nop:        "NOP",
	Assign:     "ASSIGN",
	Add:        "ADD",
	Sub:        "SUB",
	Mul:        "MUL",
	Div:        "DIV",
	Mod:        "MOD",
	Lt:         "LT",
	Gt:         "GT",
	Leq:        "LEQ",
	Geq:        "GEQ",
	Eq:         "EQ",
	Neq:        "NEQ",
	And:        "AND",
	Or:         "OR",
	Neg:        "UMINUS",
	Not:        "NOT",
	IToF:       "ITOF",
	MkLabel:    "LABEL",
	Goto:       "GOTO",
	IfGoto:     "IF_GOTO",
	IfNotGoto:  "IF_NOT_GOTO",
	Print:      "PRINT",
	Return:     "RETURN",
	Param:      "PARAM",
	Call:       "CALL",
	NewArray:   "NEW_ARRAY",
	ArrayLoad:  "ARRAY_LOAD",
	ArrayStore: "ARRAY_STORE",
	FuncBegin:  "FUNCTION_BEGIN",
	FuncEnd:    "FUNCTION_END",
}

var opSigns = map[Op]string{
	Add: "+",
	Sub: "-",
	Mul: "*",
	Div: "/",
	Mod: "%",
	Lt:  "<",
	Gt:  ">",
	Leq: "<=",
	Geq: ">=",
	Eq:  "==",
	Neq: "!=",
	And: "&&",
	Or:  "||",
}

func New() *Program {
	return &Program{}
}

// NewTemp allocates a fresh temporary of type t.
// Temp names start with a dot so they never meet a variable name.
func (p *Program) NewTemp(t tp.Type) Temp {
	n := p.temps
	p.temps++

	return Temp{Name: fmt.Sprintf(".t%d", n), Typ: t}
}

// NewLabel allocates a fresh label.
func (p *Program) NewLabel() Label {
	n := p.labels
	p.labels++

	return Label(fmt.Sprintf("L%d", n))
}

// Emit appends an instruction. Nil operands become None.
func (p *Program) Emit(line int, op Op, res, a, b Operand) {
	p.Code = append(p.Code, Instr{
		Op:     op,
		Result: orNone(res),
		Op1:    orNone(a),
		Op2:    orNone(b),
		Line:   line,
	})
}

func (p *Program) Len() int { return len(p.Code) }

// Binary reports whether op is a two-operand computation.
func (op Op) Binary() bool { return op >= Add && op <= Or }

func (op Op) Compare() bool { return op >= Lt && op <= Neq }

// Jump reports whether op may transfer control to the label in Result.
func (op Op) Jump() bool { return op == Goto || op == IfGoto || op == IfNotGoto }

// Sign is the infix operator of a binary op.
func (op Op) Sign() string { return opSigns[op] }

func (op Op) String() string {
	if op < numOps {
		return opNames[op]
	}

	return fmt.Sprintf("OP_%d", int(op))
}

func orNone(x Operand) Operand {
	if x == nil {
		return None{}
	}

	return x
}

// IsNone reports whether x is absent.
func IsNone(x Operand) bool {
	if x == nil {
		return true
	}

	_, ok := x.(None)

	return ok
}

// Named reports the slot name of a Var or Temp operand.
func Named(x Operand) (string, bool) {
	switch x := x.(type) {
	case Var:
		return x.Name, true
	case Temp:
		return x.Name, true
	}

	return "", false
}

func (None) operand()   {}
func (Var) operand()    {}
func (Temp) operand()   {}
func (Int) operand()    {}
func (Float) operand()  {}
func (Char) operand()   {}
func (Bool) operand()   {}
func (String) operand() {}
func (Label) operand()  {}

func (None) Type() tp.Type   { return tp.Void }
func (x Var) Type() tp.Type  { return x.Typ }
func (x Temp) Type() tp.Type { return x.Typ }
func (Int) Type() tp.Type    { return tp.Int }
func (Float) Type() tp.Type  { return tp.Float }
func (Char) Type() tp.Type   { return tp.Char }
func (Bool) Type() tp.Type   { return tp.Boolean }
func (String) Type() tp.Type { return tp.String }
func (Label) Type() tp.Type  { return tp.Void }
