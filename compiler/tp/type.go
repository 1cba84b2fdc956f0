package tp

import (
	"tlog.app/go/errors"
	"tlog.app/go/tlog/tlwire"
)

type (
	Type int8
)

const (
	Error Type = iota - 1
	Undefined
	Void
	Int
	Float
	Char
	Boolean
	String
	IntArray
)

var names = map[Type]string{
	Error:     "<error>",
	Undefined: "<undefined>",
	Void:      "void",
	Int:       "int",
	Float:     "float",
	Char:      "char",
	Boolean:   "boolean",
	String:    "string",
	IntArray:  "int[]",
}

// Parse returns the type named by s as it is spelled in source.
func Parse(s string) (Type, error) {
	switch s {
	case "void":
		return Void, nil
	case "int":
		return Int, nil
	case "float":
		return Float, nil
	case "char":
		return Char, nil
	case "boolean", "bool":
		return Boolean, nil
	case "string", "String":
		return String, nil
	case "int[]":
		return IntArray, nil
	}

	return Undefined, errors.New("unknown type: %q", s)
}

// Size is the number of bytes a value of the type takes in a stack slot.
func (t Type) Size() int {
	switch t {
	case Char:
		return 1
	case Void, Error, Undefined:
		return 0
	default:
		return 4
	}
}

func (t Type) Numeric() bool { return t == Int || t == Float }

func (t Type) Valid() bool { return t != Error && t != Undefined }

func (t Type) Printable() bool {
	switch t {
	case Int, Float, Char, Boolean, String:
		return true
	}

	return false
}

// Elem is the element type of an array type, or Error.
func (t Type) Elem() Type {
	if t == IntArray {
		return Int
	}

	return Error
}

// AssignableTo reports whether a value of type t can be stored
// into a location of type dst, int to float widening included.
func (t Type) AssignableTo(dst Type) bool {
	return t == dst || t == Int && dst == Float
}

func (t Type) String() string {
	if n, ok := names[t]; ok {
		return n
	}

	return "<type>"
}

func (t Type) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	return e.AppendString(b, t.String())
}
