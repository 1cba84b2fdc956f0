package back

import (
	"context"
	"fmt"
	"math"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/mjc/compiler/asm"
	"github.com/slowlang/mjc/compiler/ir"
	"github.com/slowlang/mjc/compiler/tp"
)

type (
	// Compiler translates TAC to 32-bit NASM assembly
	// calling printf, malloc and exit from the C library.
	Compiler struct {
		Entry string
	}

	pkgContext struct {
		strs  map[string]string // literal -> data label
		order []string

		labels int
	}

	funContext struct {
		*pkgContext

		name  string
		entry bool

		frame asm.Frame

		b   []byte
		err error
	}
)

var ErrInternal = errors.New("internal code generator error")

var conds = map[ir.Op]asm.Cond{
	ir.Lt:  asm.Less,
	ir.Gt:  asm.Greater,
	ir.Leq: asm.LessEq,
	ir.Geq: asm.GreaterEq,
	ir.Eq:  asm.Equal,
	ir.Neq: asm.NotEqual,
}

var intOps = map[ir.Op]string{
	ir.Add: "add",
	ir.Sub: "sub",
	ir.Mul: "imul",
	ir.And: "and",
	ir.Or:  "or",
}

func New() *Compiler {
	return &Compiler{Entry: "main"}
}

// CompileProgram appends assembly for p to b.
// p is expected to be verified.
func (c *Compiler) CompileProgram(ctx context.Context, b []byte, p *ir.Program) (_ []byte, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "back: compile program", "instrs", p.Len())
	defer tr.Finish("err", &err)

	pc := &pkgContext{
		strs: map[string]string{},
	}

	b = fmt.Appendf(b, `bits 32
global %s
extern printf
extern exit
extern malloc

section .text
`, c.entry())

	for i := 0; i < len(p.Code); i++ {
		x := p.Code[i]

		if x.Op != ir.FuncBegin {
			return nil, errors.Wrap(ErrInternal, "instr %d (%v): outside of a function", i, x)
		}

		end := i + 1
		for end < len(p.Code) && p.Code[end].Op != ir.FuncEnd {
			if p.Code[end].Op == ir.FuncBegin {
				return nil, errors.Wrap(ErrInternal, "func %v: nested FUNCTION_BEGIN %v at %d", x.Op1, p.Code[end].Op1, end)
			}

			end++
		}

		if end == len(p.Code) {
			return nil, errors.Wrap(ErrInternal, "func %v: no FUNCTION_END", x.Op1)
		}

		b, err = c.compileFunc(ctx, b, pc, p.Code[i:end+1])
		if err != nil {
			return nil, errors.Wrap(err, "func %v", x.Op1)
		}

		i = end
	}

	b = pc.data(b)

	tr.Printw("compiled", "strings", len(pc.order), "labels", pc.labels, "size", len(b))

	return b, nil
}

func (c *Compiler) compileFunc(ctx context.Context, b []byte, pc *pkgContext, code []ir.Instr) (_ []byte, err error) {
	name, ok := code[0].Op1.(ir.Label)
	if !ok {
		return nil, errors.Wrap(ErrInternal, "function name is %T", code[0].Op1)
	}

	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "back: compile func", "name", name)
	defer tr.Finish("err", &err)

	f := &funContext{
		pkgContext: pc,
		name:       string(name),
		entry:      string(name) == c.entry(),
		b:          b,
	}

	f.inventory(code)

	if tr.If("dump_frame") {
		for _, n := range f.frame.Names() {
			m, _ := f.frame.Slot(n)

			tr.Printw("slot", "name", n, "mem", m)
		}
	}

	tr.V("frame").Printw("frame", "slots", f.frame.Len(), "size", f.frame.Size())

	for _, x := range code {
		f.instr(x)

		if f.err != nil {
			return nil, errors.Wrap(f.err, "line %d: %v", x.Line, x)
		}
	}

	return f.b, nil
}

func (c *Compiler) entry() string {
	if c == nil || c.Entry == "" {
		return "main"
	}

	return c.Entry
}

// inventory reserves a slot for every named operand
// and interns string literals in first use order.
func (f *funContext) inventory(code []ir.Instr) {
	for _, x := range code {
		for _, op := range [...]ir.Operand{x.Result, x.Op1, x.Op2} {
			switch op := op.(type) {
			case ir.Var:
				f.frame.Alloc(op.Name, asm.WidthOf(op.Typ))
			case ir.Temp:
				f.frame.Alloc(op.Name, asm.WidthOf(op.Typ))
			case ir.String:
				f.str(string(op))
			}
		}
	}
}

func (f *funContext) instr(x ir.Instr) {
	f.printf("    ; TAC: %s\n", x.Append(nil))

	switch {
	case x.Op.Binary() && isFloat(x):
		f.floatBinary(x)
		return
	case x.Op.Binary():
		f.intBinary(x)
		return
	}

	switch x.Op {
	case ir.Nop:
		f.printf("    nop\n")
	case ir.FuncBegin:
		f.printf("\n%s:\n", f.name)
		f.printf("    push ebp\n")
		f.printf("    mov ebp, esp\n")

		if n := f.frame.Size(); n > 0 {
			f.printf("    sub esp, %d\n", n)
		}
	case ir.FuncEnd:
		if f.entry {
			f.printf("    mov eax, 0\n")
		}

		f.printf("\n_epilogue_%s:\n", f.name)
		f.printf("    mov esp, ebp\n")
		f.printf("    pop ebp\n")
		f.printf("    ret\n")
	case ir.Assign:
		f.load(x.Op1, asm.EAX)
		f.store(asm.EAX, x.Result)
	case ir.Neg:
		if x.Result.Type() == tp.Float {
			f.fload(x.Op1)
			f.printf("    fchs\n")
			f.fstore(x.Result)

			return
		}

		f.load(x.Op1, asm.EAX)
		f.printf("    neg eax\n")
		f.store(asm.EAX, x.Result)
	case ir.Not:
		f.load(x.Op1, asm.EAX)
		f.printf("    cmp eax, 0\n")
		f.printf("    sete al\n")
		f.printf("    movzx eax, al\n")
		f.store(asm.EAX, x.Result)
	case ir.IToF:
		f.fload(x.Op1)
		f.fstore(x.Result)
	case ir.MkLabel:
		f.printf("%v:\n", x.Result)
	case ir.Goto:
		f.printf("    jmp %v\n", x.Result)
	case ir.IfGoto, ir.IfNotGoto:
		f.load(x.Op1, asm.EAX)
		f.printf("    cmp eax, 0\n")

		c := asm.NotEqual
		if x.Op == ir.IfNotGoto {
			c = asm.Equal
		}

		f.printf("    %s %v\n", c.Jump(), x.Result)
	case ir.Print:
		f.print(x.Op1)
	case ir.Return:
		f.ret(x.Op1)
	case ir.Param:
		f.load(x.Op1, asm.EAX)
		f.printf("    push eax\n")
	case ir.Call:
		f.printf("    call %v\n", x.Op1)

		if n, ok := x.Op2.(ir.Int); ok && n > 0 {
			f.printf("    add esp, %d\n", 4*n)
		}

		if !ir.IsNone(x.Result) {
			f.store(asm.EAX, x.Result)
		}
	case ir.NewArray:
		size := x.Result.Type().Elem().Size()

		f.load(x.Op1, asm.EAX)

		if size > 1 {
			f.printf("    imul eax, %d\n", size)
		}

		f.printf("    push eax\n")
		f.printf("    call malloc\n")
		f.printf("    add esp, 4\n")
		f.store(asm.EAX, x.Result)
	case ir.ArrayLoad:
		f.load(x.Op1, asm.EBX)
		f.load(x.Op2, asm.ECX)
		f.printf("    mov eax, DWORD [ebx + ecx*%d]\n", x.Op1.Type().Elem().Size())
		f.store(asm.EAX, x.Result)
	case ir.ArrayStore:
		f.load(x.Result, asm.EBX)
		f.load(x.Op1, asm.ECX)
		f.load(x.Op2, asm.EDX)
		f.printf("    mov DWORD [ebx + ecx*%d], edx\n", x.Result.Type().Elem().Size())
	default:
		f.errorf("unsupported opcode %v", x.Op)
	}
}

func (f *funContext) intBinary(x ir.Instr) {
	f.load(x.Op1, asm.EAX)
	f.load(x.Op2, asm.EBX)

	if c, ok := conds[x.Op]; ok {
		f.printf("    cmp eax, ebx\n")
		f.printf("    %s al\n", c.Set())
		f.printf("    movzx eax, al\n")
		f.store(asm.EAX, x.Result)

		return
	}

	switch x.Op {
	case ir.Div, ir.Mod:
		f.printf("    cdq\n")
		f.printf("    idiv ebx\n")

		if x.Op == ir.Mod {
			f.store(asm.EDX, x.Result)
		} else {
			f.store(asm.EAX, x.Result)
		}

		return
	}

	op, ok := intOps[x.Op]
	if !ok {
		f.errorf("unsupported int operator %v", x.Op)
		return
	}

	f.printf("    %s eax, ebx\n", op)
	f.store(asm.EAX, x.Result)
}

func (f *funContext) print(v ir.Operand) {
	switch v.Type() {
	case tp.Boolean:
		t := f.label("_print_true")
		end := f.label("_print_end")

		f.load(v, asm.EAX)
		f.printf("    cmp eax, 0\n")
		f.printf("    %s %s\n", asm.NotEqual.Jump(), t)
		f.printf("    push DWORD _false_str\n")
		f.printf("    jmp %s\n", end)
		f.printf("%s:\n", t)
		f.printf("    push DWORD _true_str\n")
		f.printf("%s:\n", end)
		f.call("printf", "_str_nl_fmt", 8)
	case tp.String:
		f.load(v, asm.EAX)
		f.printf("    push eax\n")
		f.call("printf", "_str_nl_fmt", 8)
	case tp.Char:
		f.load(v, asm.EAX)
		f.printf("    push eax\n")
		f.call("printf", "_char_fmt", 8)
	case tp.Int:
		f.load(v, asm.EAX)
		f.printf("    push eax\n")
		f.call("printf", "_int_fmt", 8)
	case tp.Float:
		f.fload(v)
		f.printf("    sub esp, 8\n")
		f.printf("    fstp QWORD [esp]\n")
		f.call("printf", "_float_fmt", 12)
	default:
		f.errorf("can't print %v of type %v", v, v.Type())
	}
}

// ret leaves the function. The entry function exits the process
// with the returned value, 0 if there is none.
func (f *funContext) ret(v ir.Operand) {
	switch {
	case ir.IsNone(v):
		if f.entry {
			f.printf("    mov eax, 0\n")
		}
	case v.Type() == tp.Float:
		f.fload(v)
		f.printf("    sub esp, 4\n")
		f.printf("    fistp DWORD [esp]\n")
		f.printf("    pop eax\n")
	default:
		f.load(v, asm.EAX)
	}

	if !f.entry {
		f.printf("    jmp _epilogue_%s\n", f.name)
		return
	}

	f.printf("    push eax\n")
	f.printf("    call exit\n")
}

func (f *funContext) call(fn, format string, cleanup int) {
	f.printf("    push DWORD %s\n", format)
	f.printf("    call %s\n", fn)
	f.printf("    add esp, %d\n", cleanup)
}

func (f *funContext) load(v ir.Operand, r asm.Reg) {
	switch v := v.(type) {
	case ir.Var, ir.Temp:
		m := f.slot(v)

		if m.W == asm.Byte {
			f.printf("    movzx %v, %v\n", r, m)
		} else {
			f.printf("    mov %v, %v\n", r, m)
		}
	case ir.Int:
		f.printf("    mov %v, %d\n", r, int32(v))
	case ir.Char:
		f.printf("    mov %v, %d\n", r, byte(v))
	case ir.Bool:
		f.printf("    mov %v, %d\n", r, b2i(bool(v)))
	case ir.Float:
		f.printf("    mov %v, 0x%08x\n", r, math.Float32bits(float32(v)))
	case ir.String:
		f.printf("    mov %v, %s\n", r, f.str(string(v)))
	default:
		f.errorf("can't load %v (%T) to %v", v, v, r)
	}
}

func (f *funContext) store(r asm.Reg, dst ir.Operand) {
	if _, ok := ir.Named(dst); !ok {
		f.errorf("can't store %v to %v (%T)", r, dst, dst)
		return
	}

	m := f.slot(dst)

	if m.W != asm.Byte {
		f.printf("    mov %v, %v\n", m, r)
		return
	}

	low, ok := r.Low8()
	if !ok {
		f.errorf("no byte register for %v", r)
		return
	}

	f.printf("    mov %v, %s\n", m, low)
}

func (f *funContext) slot(v ir.Operand) asm.Mem {
	name, _ := ir.Named(v)

	m, ok := f.frame.Slot(name)
	if !ok {
		f.errorf("no frame slot for %v", name)
	}

	return m
}

// str returns the data label of a string literal.
func (pc *pkgContext) str(s string) string {
	if l, ok := pc.strs[s]; ok {
		return l
	}

	l := fmt.Sprintf("_str%d", len(pc.order))

	pc.strs[s] = l
	pc.order = append(pc.order, s)

	return l
}

func (pc *pkgContext) label(prefix string) string {
	n := pc.labels
	pc.labels++

	return fmt.Sprintf("%s%d", prefix, n)
}

func (pc *pkgContext) data(b []byte) []byte {
	b = append(b, `
section .data
    _int_fmt db "%d", 10, 0
    _char_fmt db "%c", 10, 0
    _float_fmt db "%f", 10, 0
    _str_nl_fmt db "%s", 10, 0
    _true_str db "true", 0
    _false_str db "false", 0
`...)

	for _, s := range pc.order {
		b = fmt.Appendf(b, "    %s db ", pc.strs[s])

		for i := 0; i < len(s); i++ {
			b = fmt.Appendf(b, "0x%02x, ", s[i])
		}

		b = fmt.Appendf(b, "0x00 ; %q\n", s)
	}

	return b
}

func (f *funContext) printf(format string, args ...any) {
	f.b = fmt.Appendf(f.b, format, args...)
}

func (f *funContext) errorf(format string, args ...any) {
	if f.err != nil {
		return
	}

	f.err = errors.Wrap(ErrInternal, format, args...)
}

func isFloat(x ir.Instr) bool {
	return x.Op1.Type() == tp.Float || x.Op2.Type() == tp.Float
}

func b2i(v bool) int {
	if v {
		return 1
	}

	return 0
}
