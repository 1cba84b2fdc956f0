package ir

import (
	"fmt"
	"math"
	"strconv"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/tlog/tlwire"
)

// Append renders the program one instruction per line.
func (p *Program) Append(b []byte) []byte {
	for _, x := range p.Code {
		b = x.Append(b)
		b = append(b, '\n')
	}

	return b
}

func (p *Program) String() string {
	return string(p.Append(nil))
}

func (x Instr) Append(b []byte) []byte {
	switch {
	case x.Op.Binary():
		return hfmt.Appendf(b, "%v = %v %s %v", x.Result, x.Op1, x.Op.Sign(), x.Op2)
	}

	switch x.Op {
	case Assign:
		return hfmt.Appendf(b, "%v = %v", x.Result, x.Op1)
	case Neg:
		return hfmt.Appendf(b, "%v = -%v", x.Result, x.Op1)
	case Not:
		return hfmt.Appendf(b, "%v = !%v", x.Result, x.Op1)
	case IToF:
		return hfmt.Appendf(b, "%v = (float) %v", x.Result, x.Op1)
	case MkLabel:
		return hfmt.Appendf(b, "LABEL %v:", x.Result)
	case Goto:
		return hfmt.Appendf(b, "GOTO %v", x.Result)
	case IfGoto:
		return hfmt.Appendf(b, "IF %v GOTO %v", x.Op1, x.Result)
	case IfNotGoto:
		return hfmt.Appendf(b, "IF NOT %v GOTO %v", x.Op1, x.Result)
	case Print, Param:
		return hfmt.Appendf(b, "%v %v", x.Op, x.Op1)
	case Return:
		if IsNone(x.Op1) {
			return append(b, "RETURN"...)
		}

		return hfmt.Appendf(b, "RETURN %v", x.Op1)
	case Call:
		if !IsNone(x.Result) {
			b = hfmt.Appendf(b, "%v = ", x.Result)
		}

		return hfmt.Appendf(b, "CALL %v, %v", x.Op1, x.Op2)
	case NewArray:
		return hfmt.Appendf(b, "%v = NEW_ARRAY %v, %v", x.Result, x.Result.Type().Elem(), x.Op1)
	case ArrayLoad:
		return hfmt.Appendf(b, "%v = %v[%v]", x.Result, x.Op1, x.Op2)
	case ArrayStore:
		return hfmt.Appendf(b, "%v[%v] = %v", x.Result, x.Op1, x.Op2)
	case FuncBegin, FuncEnd:
		return hfmt.Appendf(b, "%v %v", x.Op, x.Op1)
	default:
		return hfmt.Appendf(b, "%v %v, %v, %v", x.Op, x.Result, x.Op1, x.Op2)
	}
}

func (x Instr) String() string {
	return string(x.Append(nil))
}

func (None) String() string     { return "_" }
func (x Var) String() string    { return x.Name }
func (x Temp) String() string   { return x.Name }
func (x Int) String() string    { return strconv.FormatInt(int64(x), 10) }
func (x Label) String() string  { return string(x) }
func (x String) String() string { return strconv.Quote(string(x)) }

func (x Float) String() string {
	f := float64(x)

	s := strconv.FormatFloat(f, 'f', -1, 32)
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		s += ".0"
	}

	return s
}

func (x Char) String() string {
	if x >= 32 && x < 127 {
		return "'" + string(rune(x)) + "'"
	}

	return fmt.Sprintf("'\\x%02x'", byte(x))
}

func (x Bool) String() string {
	if x {
		return "true"
	}

	return "false"
}

func (x Instr) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	b = e.AppendMap(b, 2)
	b = e.AppendKeyInt(b, "line", x.Line)
	b = e.AppendString(b, "code")
	b = e.AppendString(b, x.String())

	return b
}

func (op Op) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	return e.AppendString(b, op.String())
}
