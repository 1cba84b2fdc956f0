package llvm

import (
	"context"
	"fmt"

	lir "github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/mjc/compiler/ir"
	"github.com/slowlang/mjc/compiler/tp"
)

type (
	// Compiler translates TAC to textual LLVM IR.
	Compiler struct {
		Entry  string
		Triple string
	}

	pkgContext struct {
		m *lir.Module

		printf *lir.Func
		malloc *lir.Func
		exit   *lir.Func

		funcs map[ir.Label]*lir.Func

		fmts map[string]*lir.Global
		strs map[string]*lir.Global
	}

	funContext struct {
		*pkgContext

		f     *lir.Func
		entry bool

		cur    *lir.Block
		labels map[ir.Label]*lir.Block
		slots  map[string]*lir.InstAlloca

		args []value.Value
	}
)

var ErrInternal = errors.New("internal llvm generator error")

var icmp = map[ir.Op]enum.IPred{
	ir.Lt:  enum.IPredSLT,
	ir.Gt:  enum.IPredSGT,
	ir.Leq: enum.IPredSLE,
	ir.Geq: enum.IPredSGE,
	ir.Eq:  enum.IPredEQ,
	ir.Neq: enum.IPredNE,
}

var fcmp = map[ir.Op]enum.FPred{
	ir.Lt:  enum.FPredOLT,
	ir.Gt:  enum.FPredOGT,
	ir.Leq: enum.FPredOLE,
	ir.Geq: enum.FPredOGE,
	ir.Eq:  enum.FPredOEQ,
	ir.Neq: enum.FPredUNE,
}

func New() *Compiler {
	return &Compiler{Entry: "main"}
}

// CompileProgram appends an LLVM module for p to b.
func (c *Compiler) CompileProgram(ctx context.Context, b []byte, p *ir.Program) (_ []byte, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "llvm: compile program", "instrs", p.Len())
	defer tr.Finish("err", &err)

	pc := &pkgContext{
		m:     lir.NewModule(),
		funcs: map[ir.Label]*lir.Func{},
		fmts:  map[string]*lir.Global{},
		strs:  map[string]*lir.Global{},
	}

	pc.m.TargetTriple = c.Triple

	pc.printf = pc.m.NewFunc("printf", types.I32, lir.NewParam("format", types.I8Ptr))
	pc.printf.Sig.Variadic = true

	pc.malloc = pc.m.NewFunc("malloc", types.I8Ptr, lir.NewParam("size", types.I32))
	pc.exit = pc.m.NewFunc("exit", types.Void, lir.NewParam("status", types.I32))

	var starts []int

	for i, x := range p.Code {
		if x.Op != ir.FuncBegin {
			continue
		}

		name, ok := x.Op1.(ir.Label)
		if !ok {
			return nil, errors.Wrap(ErrInternal, "instr %d: function name is %T", i, x.Op1)
		}

		f := pc.m.NewFunc(string(name), types.I32)
		if string(name) != c.entry() {
			f.Sig.Variadic = true
		}

		pc.funcs[name] = f
		starts = append(starts, i)
	}

	for _, i := range starts {
		end := i + 1
		for end < len(p.Code) && p.Code[end].Op != ir.FuncEnd {
			end++
		}

		if end == len(p.Code) {
			return nil, errors.Wrap(ErrInternal, "func %v: no FUNCTION_END", p.Code[i].Op1)
		}

		err = c.compileFunc(ctx, pc, p.Code[i:end+1])
		if err != nil {
			return nil, errors.Wrap(err, "func %v", p.Code[i].Op1)
		}
	}

	tr.Printw("compiled", "funcs", len(pc.funcs), "strings", len(pc.strs))

	return append(b, pc.m.String()...), nil
}

func (c *Compiler) compileFunc(ctx context.Context, pc *pkgContext, code []ir.Instr) (err error) {
	name := code[0].Op1.(ir.Label)

	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "llvm: compile func", "name", name)
	defer tr.Finish("err", &err)

	f := &funContext{
		pkgContext: pc,
		f:          pc.funcs[name],
		entry:      string(name) == c.entry(),
		labels:     map[ir.Label]*lir.Block{},
		slots:      map[string]*lir.InstAlloca{},
	}

	f.cur = f.f.NewBlock(".entry")

	f.allocas(code)

	tr.V("frame").Printw("allocas", "slots", len(f.slots))

	for _, x := range code[1:] {
		err = f.instr(x)
		if err != nil {
			return errors.Wrap(err, "line %d: %v", x.Line, x)
		}
	}

	return nil
}

func (c *Compiler) entry() string {
	if c == nil || c.Entry == "" {
		return "main"
	}

	return c.Entry
}

// allocas reserves a zeroed stack slot for every named operand.
func (f *funContext) allocas(code []ir.Instr) {
	for _, x := range code {
		for _, op := range [...]ir.Operand{x.Result, x.Op1, x.Op2} {
			name, ok := ir.Named(op)
			if !ok {
				continue
			}

			if _, ok := f.slots[name]; ok {
				continue
			}

			t := typeOf(op.Type())

			a := f.cur.NewAlloca(t)
			a.SetName(name)

			f.cur.NewStore(zero(t), a)

			f.slots[name] = a
		}
	}
}

func (f *funContext) instr(x ir.Instr) error {
	if x.Op.Binary() {
		return f.binary(x)
	}

	b := f.cur

	switch x.Op {
	case ir.Nop:
	case ir.FuncEnd:
		if b.Term == nil {
			b.NewRet(constant.NewInt(types.I32, 0))
		}
	case ir.Assign:
		v, err := f.value(x.Op1)
		if err != nil {
			return err
		}

		return f.store(x.Result, v)
	case ir.Neg:
		v, err := f.value(x.Op1)
		if err != nil {
			return err
		}

		if x.Result.Type() == tp.Float {
			return f.store(x.Result, b.NewFNeg(v))
		}

		return f.store(x.Result, b.NewSub(constant.NewInt(types.I32, 0), v))
	case ir.Not:
		v, err := f.value(x.Op1)
		if err != nil {
			return err
		}

		return f.store(x.Result, b.NewXor(v, constant.True))
	case ir.IToF:
		v, err := f.value(x.Op1)
		if err != nil {
			return err
		}

		return f.store(x.Result, b.NewSIToFP(v, types.Float))
	case ir.MkLabel:
		l := f.block(x.Result.(ir.Label))

		if b.Term == nil {
			b.NewBr(l)
		}

		f.cur = l
	case ir.Goto:
		b.NewBr(f.block(x.Result.(ir.Label)))

		f.cur = f.f.NewBlock("")
	case ir.IfGoto, ir.IfNotGoto:
		v, err := f.value(x.Op1)
		if err != nil {
			return err
		}

		v = f.conv(v, types.I1)

		target := f.block(x.Result.(ir.Label))
		next := f.f.NewBlock("")

		if x.Op == ir.IfGoto {
			b.NewCondBr(v, target, next)
		} else {
			b.NewCondBr(v, next, target)
		}

		f.cur = next
	case ir.Print:
		return f.print(x.Op1)
	case ir.Return:
		return f.ret(x.Op1)
	case ir.Param:
		v, err := f.value(x.Op1)
		if err != nil {
			return err
		}

		f.args = append(f.args, v)
	case ir.Call:
		callee, ok := f.funcs[x.Op1.(ir.Label)]
		if !ok {
			return errors.Wrap(ErrInternal, "call of undefined function %v", x.Op1)
		}

		n, _ := x.Op2.(ir.Int)
		if int(n) > len(f.args) {
			return errors.Wrap(ErrInternal, "call %v with %d params, %d pushed", x.Op1, n, len(f.args))
		}

		args := f.args[len(f.args)-int(n):]
		f.args = f.args[:len(f.args)-int(n)]

		r := b.NewCall(callee, args...)

		if !ir.IsNone(x.Result) {
			return f.store(x.Result, r)
		}
	case ir.NewArray:
		n, err := f.value(x.Op1)
		if err != nil {
			return err
		}

		size := b.NewMul(n, constant.NewInt(types.I32, int64(x.Result.Type().Elem().Size())))
		mem := b.NewCall(f.malloc, size)

		return f.store(x.Result, b.NewBitCast(mem, typeOf(tp.IntArray)))
	case ir.ArrayLoad:
		ptr, err := f.elem(x.Op1, x.Op2)
		if err != nil {
			return err
		}

		return f.store(x.Result, b.NewLoad(types.I32, ptr))
	case ir.ArrayStore:
		ptr, err := f.elem(x.Result, x.Op1)
		if err != nil {
			return err
		}

		v, err := f.value(x.Op2)
		if err != nil {
			return err
		}

		b.NewStore(f.conv(v, types.I32), ptr)
	default:
		return errors.Wrap(ErrInternal, "unsupported opcode %v", x.Op)
	}

	return nil
}

func (f *funContext) binary(x ir.Instr) error {
	l, err := f.value(x.Op1)
	if err != nil {
		return err
	}

	r, err := f.value(x.Op2)
	if err != nil {
		return err
	}

	b := f.cur

	if x.Op1.Type() == tp.Float || x.Op2.Type() == tp.Float {
		l, r = f.conv(l, types.Float), f.conv(r, types.Float)

		if p, ok := fcmp[x.Op]; ok {
			return f.store(x.Result, b.NewFCmp(p, l, r))
		}

		switch x.Op {
		case ir.Add:
			return f.store(x.Result, b.NewFAdd(l, r))
		case ir.Sub:
			return f.store(x.Result, b.NewFSub(l, r))
		case ir.Mul:
			return f.store(x.Result, b.NewFMul(l, r))
		case ir.Div:
			return f.store(x.Result, b.NewFDiv(l, r))
		case ir.Mod:
			return f.store(x.Result, b.NewFRem(l, r))
		}

		return errors.Wrap(ErrInternal, "unsupported float operator %v", x.Op)
	}

	if p, ok := icmp[x.Op]; ok {
		return f.store(x.Result, b.NewICmp(p, l, r))
	}

	switch x.Op {
	case ir.Add:
		return f.store(x.Result, b.NewAdd(l, r))
	case ir.Sub:
		return f.store(x.Result, b.NewSub(l, r))
	case ir.Mul:
		return f.store(x.Result, b.NewMul(l, r))
	case ir.Div:
		return f.store(x.Result, b.NewSDiv(l, r))
	case ir.Mod:
		return f.store(x.Result, b.NewSRem(l, r))
	case ir.And:
		return f.store(x.Result, b.NewAnd(l, r))
	case ir.Or:
		return f.store(x.Result, b.NewOr(l, r))
	}

	return errors.Wrap(ErrInternal, "unsupported operator %v", x.Op)
}

func (f *funContext) print(v ir.Operand) error {
	val, err := f.value(v)
	if err != nil {
		return err
	}

	b := f.cur

	switch v.Type() {
	case tp.Int:
		b.NewCall(f.printf, f.format("%d\n"), val)
	case tp.Char:
		b.NewCall(f.printf, f.format("%c\n"), b.NewZExt(val, types.I32))
	case tp.Float:
		b.NewCall(f.printf, f.format("%f\n"), b.NewFPExt(val, types.Double))
	case tp.String:
		b.NewCall(f.printf, f.format("%s\n"), val)
	case tp.Boolean:
		s := b.NewSelect(val, f.str("true"), f.str("false"))

		b.NewCall(f.printf, f.format("%s\n"), s)
	default:
		return errors.Wrap(ErrInternal, "can't print %v of type %v", v, v.Type())
	}

	return nil
}

// ret leaves the function. The entry function exits the process.
func (f *funContext) ret(v ir.Operand) error {
	var code value.Value = constant.NewInt(types.I32, 0)

	if !ir.IsNone(v) {
		val, err := f.value(v)
		if err != nil {
			return err
		}

		code = f.conv(val, types.I32)
	}

	b := f.cur

	if f.entry {
		b.NewCall(f.exit, code)
		b.NewUnreachable()
	} else {
		b.NewRet(code)
	}

	f.cur = f.f.NewBlock("")

	return nil
}

func (f *funContext) value(v ir.Operand) (value.Value, error) {
	switch v := v.(type) {
	case ir.Int:
		return constant.NewInt(types.I32, int64(v)), nil
	case ir.Char:
		return constant.NewInt(types.I8, int64(v)), nil
	case ir.Bool:
		return constant.NewBool(bool(v)), nil
	case ir.Float:
		return constant.NewFloat(types.Float, float64(v)), nil
	case ir.String:
		return f.str(string(v)), nil
	}

	name, ok := ir.Named(v)
	if !ok {
		return nil, errors.Wrap(ErrInternal, "can't load %v (%T)", v, v)
	}

	a, ok := f.slots[name]
	if !ok {
		return nil, errors.Wrap(ErrInternal, "no slot for %v", name)
	}

	return f.cur.NewLoad(a.ElemType, a), nil
}

func (f *funContext) store(dst ir.Operand, v value.Value) error {
	name, ok := ir.Named(dst)
	if !ok {
		return errors.Wrap(ErrInternal, "can't store to %v (%T)", dst, dst)
	}

	a, ok := f.slots[name]
	if !ok {
		return errors.Wrap(ErrInternal, "no slot for %v", name)
	}

	f.cur.NewStore(f.conv(v, a.ElemType), a)

	return nil
}

func (f *funContext) elem(arr, idx ir.Operand) (value.Value, error) {
	base, err := f.value(arr)
	if err != nil {
		return nil, err
	}

	i, err := f.value(idx)
	if err != nil {
		return nil, err
	}

	return f.cur.NewGetElementPtr(types.I32, base, f.conv(i, types.I32)), nil
}

// conv converts v between the scalar types used for TAC values.
func (f *funContext) conv(v value.Value, to types.Type) value.Value {
	from := v.Type()
	if from.Equal(to) {
		return v
	}

	b := f.cur

	switch {
	case to.Equal(types.Float) && from.Equal(types.I32):
		return b.NewSIToFP(v, to)
	case from.Equal(types.Float):
		return b.NewFPToSI(v, to)
	case to.Equal(types.I1):
		return b.NewICmp(enum.IPredNE, v, constant.NewInt(from.(*types.IntType), 0))
	case from.Equal(types.I1), from.Equal(types.I8) && to.Equal(types.I32):
		return b.NewZExt(v, to)
	case from.Equal(types.I32) && to.Equal(types.I8):
		return b.NewTrunc(v, to)
	}

	return b.NewBitCast(v, to)
}

func (f *funContext) block(l ir.Label) *lir.Block {
	if b, ok := f.labels[l]; ok {
		return b
	}

	// dotted like temps, out of reach of variable allocas
	b := f.f.NewBlock("." + string(l))
	f.labels[l] = b

	return b
}

// format returns a pointer to a printf format string.
func (f *funContext) format(s string) value.Value {
	g, ok := f.fmts[s]
	if !ok {
		g = f.global(fmt.Sprintf(".fmt.%d", len(f.fmts)), s)
		f.fmts[s] = g
	}

	return f.ptr(g)
}

// str returns a pointer to a string literal.
func (f *funContext) str(s string) value.Value {
	g, ok := f.strs[s]
	if !ok {
		g = f.global(fmt.Sprintf(".str.%d", len(f.strs)), s)
		f.strs[s] = g
	}

	return f.ptr(g)
}

func (pc *pkgContext) global(name, s string) *lir.Global {
	data := constant.NewCharArrayFromString(s + "\x00")

	g := pc.m.NewGlobal(name, data.Type())
	g.Init = data

	return g
}

func (f *funContext) ptr(g *lir.Global) value.Value {
	z := constant.NewInt(types.I32, 0)

	return f.cur.NewGetElementPtr(g.ContentType, g, z, z)
}

func typeOf(t tp.Type) types.Type {
	switch t {
	case tp.Float:
		return types.Float
	case tp.Char:
		return types.I8
	case tp.Boolean:
		return types.I1
	case tp.String:
		return types.I8Ptr
	case tp.IntArray:
		return types.NewPointer(types.I32)
	}

	return types.I32
}

func zero(t types.Type) constant.Constant {
	switch t := t.(type) {
	case *types.IntType:
		return constant.NewInt(t, 0)
	case *types.FloatType:
		return constant.NewFloat(t, 0)
	case *types.PointerType:
		return constant.NewNull(t)
	}

	return constant.NewZeroInitializer(t)
}
