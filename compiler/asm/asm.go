package asm

import (
	"fmt"

	"tlog.app/go/tlog/tlwire"

	"github.com/slowlang/mjc/compiler/tp"
)

type (
	// Reg is a 32-bit x86 general purpose register.
	Reg   int
	Cond  string
	Width int

	// Mem is a frame slot addressed relative to ebp.
	Mem struct {
		W   Width
		Off int
	}

	// Frame lays out named slots below the frame pointer.
	Frame struct {
		slots map[string]Mem
		names []string

		low int
	}
)

const (
	EAX Reg = iota
	EBX
	ECX
	EDX
)

const (
	Byte  Width = 1
	Dword Width = 4
)

const (
	Less      Cond = "l"
	Greater   Cond = "g"
	LessEq    Cond = "le"
	GreaterEq Cond = "ge"
	Equal     Cond = "e"
	NotEqual  Cond = "ne"
)

var regNames = []string{"eax", "ebx", "ecx", "edx"}

var low8 = []string{"al", "bl", "cl", "dl"}

func (r Reg) String() string {
	if r >= 0 && int(r) < len(regNames) {
		return regNames[r]
	}

	return fmt.Sprintf("r%d", int(r))
}

// Low8 is the name of the low byte of r.
func (r Reg) Low8() (string, bool) {
	if r >= 0 && int(r) < len(low8) {
		return low8[r], true
	}

	return "", false
}

// WidthOf is the slot width of a value of type t.
func WidthOf(t tp.Type) Width {
	if t.Size() == 1 {
		return Byte
	}

	return Dword
}

func (w Width) String() string {
	if w == Byte {
		return "BYTE"
	}

	return "DWORD"
}

func (m Mem) String() string {
	return fmt.Sprintf("%v [ebp%+d]", m.W, m.Off)
}

func (m Mem) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	return e.AppendString(b, m.String())
}

// Set is the setcc mnemonic.
func (c Cond) Set() string { return "set" + string(c) }

// Jump is the jcc mnemonic.
func (c Cond) Jump() string { return "j" + string(c) }

// Unsigned maps a signed condition to the one used after
// unsigned or floating point compares.
func (c Cond) Unsigned() Cond {
	switch c {
	case Less:
		return "b"
	case Greater:
		return "a"
	case LessEq:
		return "be"
	case GreaterEq:
		return "ae"
	}

	return c
}

// Alloc returns the slot for name, reserving it on first use.
// Slots are aligned to their width.
func (f *Frame) Alloc(name string, w Width) Mem {
	if m, ok := f.slots[name]; ok {
		return m
	}

	if f.slots == nil {
		f.slots = map[string]Mem{}
	}

	off := f.low - int(w)
	if r := off % int(w); r != 0 {
		off -= int(w) + r
	}

	f.low = off

	m := Mem{W: w, Off: off}

	f.slots[name] = m
	f.names = append(f.names, name)

	return m
}

func (f *Frame) Slot(name string) (Mem, bool) {
	m, ok := f.slots[name]
	return m, ok
}

// Size is the frame size rounded up to 4 bytes.
func (f *Frame) Size() int {
	return (-f.low + 3) &^ 3
}

// Names lists slots in allocation order.
func (f *Frame) Names() []string { return f.names }

func (f *Frame) Len() int { return len(f.names) }
