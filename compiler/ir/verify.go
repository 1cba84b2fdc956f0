package ir

import (
	"context"

	"nikand.dev/go/heap"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/mjc/compiler/set"
)

type (
	// Block is a basic block: Code[Start:End] of a function.
	Block struct {
		Start int
		End   int

		Succs []int // indexes of successor blocks
	}

	Func struct {
		Name  string
		Begin int // index of FUNCTION_BEGIN
		End   int // index of FUNCTION_END

		Blocks []Block
	}

	// Report is what Verify learned about a valid program.
	Report struct {
		Funcs []Func

		// Unreachable lists [start, end) instruction ranges
		// that can't be reached from their function entry.
		Unreachable [][2]int
	}

	blocks struct {
		heap.Heap[int]
	}

	// names tracks slot names across the program.
	names struct {
		temps map[string]int // assigning instruction
		vars  map[string]int // first use
	}
)

var ErrInvalid = errors.New("invalid program")

// Verify checks structural invariants of p:
// functions are bracketed and not nested, labels are defined once
// and every jump targets a label of its function,
// temporaries are assigned exactly once
// and never share a name with a variable.
func Verify(ctx context.Context, p *Program) (rep Report, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "ir: verify", "instrs", len(p.Code))
	defer tr.Finish("err", &err)

	ns := names{
		temps: map[string]int{},
		vars:  map[string]int{},
	}

	for i := 0; i < len(p.Code); i++ {
		x := p.Code[i]

		if x.Op != FuncBegin {
			return rep, errors.Wrap(ErrInvalid, "instr %d (%v): outside of a function", i, x)
		}

		f, err := scanFunc(p.Code, i, ns)
		if err != nil {
			return rep, errors.Wrap(err, "func %v", x.Op1)
		}

		f.Blocks = splitBlocks(p.Code, f)

		dead := reachable(f)

		dead.Each(func(b int) bool {
			bl := f.Blocks[b]
			rep.Unreachable = append(rep.Unreachable, [2]int{bl.Start, bl.End})

			tr.Printw("unreachable code", "func", f.Name, "from", bl.Start, "to", bl.End, "line", p.Code[bl.Start].Line)

			return true
		})

		rep.Funcs = append(rep.Funcs, f)

		i = f.End
	}

	tr.V("verify").Printw("verified", "funcs", len(rep.Funcs), "temps", len(ns.temps), "vars", len(ns.vars))

	return rep, nil
}

func scanFunc(code []Instr, begin int, ns names) (f Func, err error) {
	name, ok := code[begin].Op1.(Label)
	if !ok {
		return f, errors.Wrap(ErrInvalid, "instr %d: function name is %T", begin, code[begin].Op1)
	}

	f = Func{Name: string(name), Begin: begin, End: -1}

	labels := map[Label]int{}
	var jumps []int

	for i := begin + 1; i < len(code); i++ {
		x := code[i]

		switch x.Op {
		case FuncBegin:
			return f, errors.Wrap(ErrInvalid, "instr %d: nested FUNCTION_BEGIN %v", i, x.Op1)
		case FuncEnd:
			if x.Op1 != name {
				return f, errors.Wrap(ErrInvalid, "instr %d: FUNCTION_END %v closes %v", i, x.Op1, name)
			}

			f.End = i
		case MkLabel:
			l, ok := x.Result.(Label)
			if !ok {
				return f, errors.Wrap(ErrInvalid, "instr %d: label is %T", i, x.Result)
			}

			if prev, ok := labels[l]; ok {
				return f, errors.Wrap(ErrInvalid, "instr %d: label %v already defined at %d", i, l, prev)
			}

			labels[l] = i
		case Goto, IfGoto, IfNotGoto:
			jumps = append(jumps, i)
		}

		if f.End >= 0 {
			break
		}

		if t, ok := x.Result.(Temp); ok && x.Op != ArrayStore {
			if prev, ok := ns.temps[t.Name]; ok {
				return f, errors.Wrap(ErrInvalid, "instr %d: temp %v already assigned at %d", i, t.Name, prev)
			}

			ns.temps[t.Name] = i
		}

		err = ns.use(i, x)
		if err != nil {
			return f, err
		}
	}

	if f.End < 0 {
		return f, errors.Wrap(ErrInvalid, "no FUNCTION_END")
	}

	for _, i := range jumps {
		l, ok := code[i].Result.(Label)
		if !ok {
			return f, errors.Wrap(ErrInvalid, "instr %d: jump target is %T", i, code[i].Result)
		}

		if _, ok := labels[l]; !ok {
			return f, errors.Wrap(ErrInvalid, "instr %d: undefined label %v", i, l)
		}
	}

	return f, nil
}

func (ns names) use(i int, x Instr) error {
	for _, op := range [...]Operand{x.Result, x.Op1, x.Op2} {
		v, ok := op.(Var)
		if !ok {
			continue
		}

		if _, ok := ns.vars[v.Name]; !ok {
			ns.vars[v.Name] = i
		}
	}

	for _, op := range [...]Operand{x.Result, x.Op1, x.Op2} {
		switch op := op.(type) {
		case Var:
			if at, ok := ns.temps[op.Name]; ok {
				return errors.Wrap(ErrInvalid, "instr %d: var %v clashes with temp assigned at %d", i, op.Name, at)
			}
		case Temp:
			if at, ok := ns.vars[op.Name]; ok {
				return errors.Wrap(ErrInvalid, "instr %d: temp %v clashes with var used at %d", i, op.Name, at)
			}
		}
	}

	return nil
}

// splitBlocks cuts the function body into basic blocks.
// A block starts at the body start, at a label
// and after a jump or a return.
func splitBlocks(code []Instr, f Func) []Block {
	var bs []Block

	start := f.Begin + 1
	labels := map[Label]int{}

	cut := func(end int) {
		if end > start {
			bs = append(bs, Block{Start: start, End: end})
		}

		start = end
	}

	for i := f.Begin + 1; i < f.End; i++ {
		switch code[i].Op {
		case MkLabel:
			cut(i)
			labels[code[i].Result.(Label)] = len(bs)
		case Goto, IfGoto, IfNotGoto, Return:
			cut(i + 1)
		}
	}

	cut(f.End)

	for b := range bs {
		last := code[bs[b].End-1]

		if last.Op.Jump() {
			bs[b].Succs = append(bs[b].Succs, labels[last.Result.(Label)])
		}

		if last.Op != Goto && last.Op != Return && b+1 < len(bs) {
			bs[b].Succs = append(bs[b].Succs, b+1)
		}
	}

	return bs
}

// reachable walks blocks from the entry in code order
// and returns the set of blocks never reached.
func reachable(f Func) (dead set.Bitmap) {
	dead = set.Full(len(f.Blocks))

	if len(f.Blocks) == 0 {
		return dead
	}

	q := blocks{Heap: heap.Heap[int]{Less: blocksLess}}

	q.Push(0)
	dead.Remove(0)

	for q.Len() != 0 {
		b := q.Pop()

		for _, s := range f.Blocks[b].Succs {
			if !dead.Has(s) {
				continue
			}

			dead.Remove(s)
			q.Push(s)
		}
	}

	return dead
}

func blocksLess(d []int, i, j int) bool {
	return d[i] < d[j]
}
