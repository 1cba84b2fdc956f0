package run

import (
	"context"
	"fmt"
	"io"
	"math"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/mjc/compiler/ir"
	"github.com/slowlang/mjc/compiler/tp"
)

type (
	// Machine executes TAC directly.
	// It prints exactly what the compiled program prints.
	Machine struct {
		Out   io.Writer
		Entry string

		// MaxSteps bounds the number of executed instructions, 0 means no limit.
		MaxSteps int
	}

	frame struct {
		fn   string
		vals map[string]any // values are int32, float32, byte, bool, string or []int32
	}

	exec struct {
		*Machine

		p      *ir.Program
		funcs  map[ir.Label]int
		labels map[ir.Label]int

		args  []any
		steps int
	}

	// exit unwinds the entry function. It is never wrapped.
	exit struct {
		code int
	}
)

var (
	ErrRuntime = errors.New("runtime error")
	ErrSteps   = errors.New("step limit exceeded")
)

// Run executes the entry function of p writing program output to w.
// It returns the process exit code.
func Run(ctx context.Context, w io.Writer, p *ir.Program) (int, error) {
	m := &Machine{Out: w, Entry: "main"}

	return m.Run(ctx, p)
}

func (m *Machine) Run(ctx context.Context, p *ir.Program) (code int, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "run: program", "instrs", p.Len())
	defer tr.Finish("code", &code, "err", &err)

	e := &exec{
		Machine: m,
		p:       p,
		funcs:   map[ir.Label]int{},
		labels:  map[ir.Label]int{},
	}

	for i, x := range p.Code {
		switch x.Op {
		case ir.FuncBegin:
			e.funcs[x.Op1.(ir.Label)] = i
		case ir.MkLabel:
			e.labels[x.Result.(ir.Label)] = i
		}
	}

	entry := m.Entry
	if entry == "" {
		entry = "main"
	}

	_, err = e.call(ctx, ir.Label(entry))

	if ex, ok := err.(exit); ok {
		code, err = ex.code, nil
	}

	tr.V("steps").Printw("executed", "steps", e.steps)

	return code, err
}

func (e *exec) call(ctx context.Context, fn ir.Label) (ret any, err error) {
	pc, ok := e.funcs[fn]
	if !ok {
		return nil, errors.Wrap(ErrRuntime, "no function %v", fn)
	}

	f := &frame{fn: string(fn), vals: map[string]any{}}

	for pc++; pc < len(e.p.Code); pc++ {
		x := e.p.Code[pc]

		e.steps++

		if e.MaxSteps != 0 && e.steps > e.MaxSteps {
			return nil, errors.Wrap(ErrSteps, "line %d", x.Line)
		}

		if e.steps%1024 == 0 {
			if err = ctx.Err(); err != nil {
				return nil, err
			}
		}

		next, done, ret, err := e.step(ctx, f, pc, x)
		if err != nil {
			if errors.Is(err, ErrRuntime) {
				err = errors.Wrap(err, "line %d: %v", x.Line, x)
			}

			return nil, err
		}

		if done {
			return ret, nil
		}

		pc = next
	}

	return nil, errors.Wrap(ErrRuntime, "function %v: no FUNCTION_END", fn)
}

// step executes x and returns the index of the instruction executed last.
func (e *exec) step(ctx context.Context, f *frame, pc int, x ir.Instr) (next int, done bool, ret any, err error) {
	next = pc

	switch {
	case x.Op.Binary():
		l, r := f.get(x.Op1), f.get(x.Op2)

		v, err := binary(x.Op, l, r)
		if err != nil {
			return next, false, nil, err
		}

		f.set(x.Result, v)

		return next, false, nil, nil
	}

	switch x.Op {
	case ir.Nop, ir.MkLabel:
	case ir.FuncEnd:
		if f.fn == e.entryName() {
			return next, true, nil, exit{code: 0}
		}

		return next, true, nil, nil
	case ir.Assign:
		f.set(x.Result, f.get(x.Op1))
	case ir.Neg:
		switch v := f.get(x.Op1).(type) {
		case float32:
			f.set(x.Result, -v)
		default:
			f.set(x.Result, -asInt(v))
		}
	case ir.Not:
		f.set(x.Result, !asBool(f.get(x.Op1)))
	case ir.IToF:
		f.set(x.Result, asFloat(f.get(x.Op1)))
	case ir.Goto:
		return e.jump(x.Result)
	case ir.IfGoto, ir.IfNotGoto:
		if asBool(f.get(x.Op1)) == (x.Op == ir.IfGoto) {
			return e.jump(x.Result)
		}
	case ir.Print:
		err = e.print(f.get(x.Op1), x.Op1.Type())
	case ir.Param:
		e.args = append(e.args, f.get(x.Op1))
	case ir.Call:
		n, _ := x.Op2.(ir.Int)
		if int(n) > len(e.args) {
			return next, false, nil, errors.Wrap(ErrRuntime, "call %v with %d params, %d pushed", x.Op1, n, len(e.args))
		}

		e.args = e.args[:len(e.args)-int(n)]

		fn, _ := x.Op1.(ir.Label)

		v, err := e.call(ctx, fn)
		if err != nil {
			return next, false, nil, err
		}

		if !ir.IsNone(x.Result) {
			f.set(x.Result, v)
		}
	case ir.Return:
		var v any

		if !ir.IsNone(x.Op1) {
			v = f.get(x.Op1)
		}

		if f.fn != e.entryName() {
			return next, true, v, nil
		}

		switch v := v.(type) {
		case float32:
			return next, true, nil, exit{code: int(v)}
		case nil:
			return next, true, nil, exit{code: 0}
		default:
			return next, true, nil, exit{code: int(asInt(v))}
		}
	case ir.NewArray:
		n := asInt(f.get(x.Op1))
		if n < 0 {
			return next, false, nil, errors.Wrap(ErrRuntime, "negative array size %d", n)
		}

		f.set(x.Result, make([]int32, n))
	case ir.ArrayLoad:
		a, i, err := index(f.get(x.Op1), f.get(x.Op2))
		if err != nil {
			return next, false, nil, err
		}

		f.set(x.Result, a[i])
	case ir.ArrayStore:
		a, i, err := index(f.get(x.Result), f.get(x.Op1))
		if err != nil {
			return next, false, nil, err
		}

		a[i] = asInt(f.get(x.Op2))
	default:
		return next, false, nil, errors.Wrap(ErrRuntime, "unsupported opcode %v", x.Op)
	}

	return next, false, nil, err
}

func (e *exec) jump(l ir.Operand) (int, bool, any, error) {
	pc, ok := e.labels[l.(ir.Label)]
	if !ok {
		return 0, false, nil, errors.Wrap(ErrRuntime, "undefined label %v", l)
	}

	return pc, false, nil, nil
}

func (e *exec) print(v any, t tp.Type) (err error) {
	switch v := v.(type) {
	case bool:
		_, err = fmt.Fprintf(e.Out, "%v\n", v)
	case float32:
		_, err = fmt.Fprintf(e.Out, "%f\n", float64(v))
	case byte:
		_, err = fmt.Fprintf(e.Out, "%c\n", v)
	case string:
		_, err = fmt.Fprintf(e.Out, "%s\n", v)
	case int32:
		_, err = fmt.Fprintf(e.Out, "%d\n", v)
	default:
		return errors.Wrap(ErrRuntime, "can't print %v value", t)
	}

	if err != nil {
		return errors.Wrap(err, "write")
	}

	return nil
}

func (e *exec) entryName() string {
	if e.Entry == "" {
		return "main"
	}

	return e.Entry
}

func (f *frame) get(x ir.Operand) any {
	switch x := x.(type) {
	case ir.Int:
		return int32(x)
	case ir.Float:
		return float32(x)
	case ir.Char:
		return byte(x)
	case ir.Bool:
		return bool(x)
	case ir.String:
		return string(x)
	}

	name, ok := ir.Named(x)
	if !ok {
		return nil
	}

	if v, ok := f.vals[name]; ok {
		return v
	}

	return zero(x.Type())
}

func (f *frame) set(x ir.Operand, v any) {
	name, ok := ir.Named(x)
	if !ok {
		return
	}

	f.vals[name] = v
}

func binary(op ir.Op, l, r any) (any, error) {
	switch op {
	case ir.And:
		return asBool(l) && asBool(r), nil
	case ir.Or:
		return asBool(l) || asBool(r), nil
	}

	_, lf := l.(float32)
	_, rf := r.(float32)

	if lf || rf {
		return floatBinary(op, asFloat(l), asFloat(r))
	}

	if op.Compare() {
		if ls, ok := l.(string); ok {
			rs, _ := r.(string)

			return compareStrings(op, ls, rs)
		}

		if lb, ok := l.(bool); ok {
			return compareBools(op, lb, asBool(r))
		}
	}

	return intBinary(op, asInt(l), asInt(r))
}

func intBinary(op ir.Op, a, b int32) (any, error) {
	switch op {
	case ir.Add:
		return a + b, nil
	case ir.Sub:
		return a - b, nil
	case ir.Mul:
		return a * b, nil
	case ir.Div, ir.Mod:
		if b == 0 {
			return nil, errors.Wrap(ErrRuntime, "integer division by zero")
		}

		if op == ir.Div {
			return a / b, nil
		}

		return a % b, nil
	case ir.Lt:
		return a < b, nil
	case ir.Gt:
		return a > b, nil
	case ir.Leq:
		return a <= b, nil
	case ir.Geq:
		return a >= b, nil
	case ir.Eq:
		return a == b, nil
	case ir.Neq:
		return a != b, nil
	}

	return nil, errors.Wrap(ErrRuntime, "unsupported int operator %v", op)
}

func floatBinary(op ir.Op, a, b float32) (any, error) {
	switch op {
	case ir.Add:
		return a + b, nil
	case ir.Sub:
		return a - b, nil
	case ir.Mul:
		return a * b, nil
	case ir.Div:
		return a / b, nil
	case ir.Mod:
		return float32(math.Mod(float64(a), float64(b))), nil
	case ir.Lt:
		return a < b, nil
	case ir.Gt:
		return a > b, nil
	case ir.Leq:
		return a <= b, nil
	case ir.Geq:
		return a >= b, nil
	case ir.Eq:
		return a == b, nil
	case ir.Neq:
		return a != b, nil
	}

	return nil, errors.Wrap(ErrRuntime, "unsupported float operator %v", op)
}

func compareBools(op ir.Op, a, b bool) (any, error) {
	switch op {
	case ir.Eq:
		return a == b, nil
	case ir.Neq:
		return a != b, nil
	}

	return intBinary(op, b2i(a), b2i(b))
}

// compareStrings compares literals by identity,
// equal literals share storage.
func compareStrings(op ir.Op, a, b string) (any, error) {
	switch op {
	case ir.Eq:
		return a == b, nil
	case ir.Neq:
		return a != b, nil
	}

	return nil, errors.Wrap(ErrRuntime, "unsupported string operator %v", op)
}

func index(a, i any) ([]int32, int32, error) {
	arr, ok := a.([]int32)
	if !ok || arr == nil {
		return nil, 0, errors.Wrap(ErrRuntime, "array is not allocated")
	}

	idx := asInt(i)
	if idx < 0 || int(idx) >= len(arr) {
		return nil, 0, errors.Wrap(ErrRuntime, "index %d out of range [0:%d]", idx, len(arr))
	}

	return arr, idx, nil
}

func zero(t tp.Type) any {
	switch t {
	case tp.Float:
		return float32(0)
	case tp.Char:
		return byte(0)
	case tp.Boolean:
		return false
	case tp.String:
		return ""
	case tp.IntArray:
		return []int32(nil)
	}

	return int32(0)
}

func asInt(v any) int32 {
	switch v := v.(type) {
	case int32:
		return v
	case byte:
		return int32(v)
	case bool:
		return b2i(v)
	case float32:
		return int32(v)
	}

	return 0
}

func asFloat(v any) float32 {
	if f, ok := v.(float32); ok {
		return f
	}

	return float32(asInt(v))
}

func asBool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}

	return asInt(v) != 0
}

func b2i(v bool) int32 {
	if v {
		return 1
	}

	return 0
}

func (x exit) Error() string { return fmt.Sprintf("exit %d", x.code) }
