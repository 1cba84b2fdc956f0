package back

import (
	"math"

	"github.com/slowlang/mjc/compiler/asm"
	"github.com/slowlang/mjc/compiler/ir"
	"github.com/slowlang/mjc/compiler/tp"
)

var floatOps = map[ir.Op]string{
	ir.Add: "fadd",
	ir.Sub: "fsub",
	ir.Mul: "fmul",
	ir.Div: "fdiv",
}

// floatBinary computes on the x87 stack with st0 = Op1, st1 = Op2.
func (f *funContext) floatBinary(x ir.Instr) {
	f.fload(x.Op2)
	f.fload(x.Op1)

	if c, ok := conds[x.Op]; ok {
		f.printf("    fcomip st0, st1\n")
		f.printf("    fstp st0\n")
		f.printf("    %s al\n", c.Unsigned().Set())
		f.printf("    movzx eax, al\n")
		f.store(asm.EAX, x.Result)

		return
	}

	if x.Op == ir.Mod {
		l := f.label("_fprem")

		f.printf("%s:\n", l)
		f.printf("    fprem\n")
		f.printf("    fnstsw ax\n")
		f.printf("    sahf\n")
		f.printf("    jp %s\n", l)
		f.printf("    fstp st1\n")
		f.fstore(x.Result)

		return
	}

	op, ok := floatOps[x.Op]
	if !ok {
		f.errorf("unsupported float operator %v", x.Op)
		return
	}

	f.printf("    %s st0, st1\n", op)
	f.fstore(x.Result)
	f.printf("    fstp st0\n")
}

// fload pushes v to the x87 stack converting ints.
func (f *funContext) fload(v ir.Operand) {
	switch v := v.(type) {
	case ir.Var, ir.Temp:
		m := f.slot(v)

		if v.Type() == tp.Float {
			f.printf("    fld %v\n", m)
		} else {
			f.printf("    fild %v\n", m)
		}
	case ir.Float:
		f.printf("    push DWORD 0x%08x\n", math.Float32bits(float32(v)))
		f.printf("    fld DWORD [esp]\n")
		f.printf("    add esp, 4\n")
	case ir.Int:
		f.printf("    push DWORD %d\n", int32(v))
		f.printf("    fild DWORD [esp]\n")
		f.printf("    add esp, 4\n")
	default:
		f.errorf("can't load %v (%T) to st0", v, v)
	}
}

// fstore pops st0 to dst.
func (f *funContext) fstore(dst ir.Operand) {
	if _, ok := ir.Named(dst); !ok {
		f.errorf("can't store st0 to %v (%T)", dst, dst)
		return
	}

	f.printf("    fstp %v\n", f.slot(dst))
}
