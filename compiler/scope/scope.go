package scope

import (
	"fmt"

	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog/tlwire"

	"github.com/slowlang/mjc/compiler/ast"
	"github.com/slowlang/mjc/compiler/tp"
)

type (
	// ID addresses a Scope in its Table.
	ID int32

	Entry struct {
		Name string
		// Key is unique across the whole Table.
		// It's Name for the first entry with that name.
		Key string

		Type        tp.Type
		Final       bool
		Initialized bool
		Line        int
		Node        ast.Node

		// Seq is the insertion order across the Table.
		Seq int
	}

	Scope struct {
		Parent  ID
		Depth   int
		Entries []*Entry

		from loc.PC
	}

	// Table owns every scope created during one compilation.
	// Scopes are never freed individually, so an ID stays valid
	// after its scope is no longer current.
	Table struct {
		scopes []Scope
		cur    ID

		keys map[string]int
		seq  int
	}

	RedeclarationError struct {
		Name string
		Prev *Entry
	}
)

// None is the parent of the outermost scope.
const None ID = -1

var ErrRedeclared = errors.New("redeclared")

func New() *Table {
	return &Table{
		cur:  None,
		keys: map[string]int{},
	}
}

// Enter creates a child of the current scope and makes it current.
func (t *Table) Enter() ID {
	id := ID(len(t.scopes))

	d := 0
	if t.cur != None {
		d = t.scopes[t.cur].Depth + 1
	}

	t.scopes = append(t.scopes, Scope{
		Parent: t.cur,
		Depth:  d,
		from:   loc.Caller(1),
	})

	t.cur = id

	return id
}

// Exit makes the parent of the current scope current.
func (t *Table) Exit() {
	if t.cur == None {
		panic("exit from the outermost scope")
	}

	t.cur = t.scopes[t.cur].Parent
}

func (t *Table) Current() ID { return t.cur }

// Switch makes id current and returns the previous current scope.
//
//	defer t.Switch(t.Switch(id))
func (t *Table) Switch(id ID) (prev ID) {
	prev, t.cur = t.cur, id

	return prev
}

// Insert adds a name to the current scope.
// An entry is initialized if it has an initializer or is final.
// It fails with *RedeclarationError if the name is already
// declared in the current scope; outer scopes may be shadowed.
func (t *Table) Insert(name string, typ tp.Type, line int, final, init bool, node ast.Node) (*Entry, error) {
	if t.cur == None {
		return nil, errors.New("insert %q: no current scope", name)
	}

	if prev := t.LookupLocal(name); prev != nil {
		return nil, &RedeclarationError{Name: name, Prev: prev}
	}

	e := &Entry{
		Name:        name,
		Key:         t.key(name),
		Type:        typ,
		Final:       final,
		Initialized: init || final,
		Line:        line,
		Node:        node,
		Seq:         t.seq,
	}

	t.seq++

	s := &t.scopes[t.cur]
	s.Entries = append(s.Entries, e)

	return e, nil
}

// Lookup searches the current scope and then its ancestors.
func (t *Table) Lookup(name string) *Entry {
	for id := t.cur; id != None; id = t.scopes[id].Parent {
		if e := t.scopes[id].lookup(name); e != nil {
			return e
		}
	}

	return nil
}

// LookupBefore is Lookup ignoring entries inserted at or after seq.
// It resolves a name as it was visible when seq entries existed.
func (t *Table) LookupBefore(name string, seq int) *Entry {
	for id := t.cur; id != None; id = t.scopes[id].Parent {
		if e := t.scopes[id].lookup(name); e != nil && e.Seq < seq {
			return e
		}
	}

	return nil
}

// LookupLocal searches the current scope only.
func (t *Table) LookupLocal(name string) *Entry {
	if t.cur == None {
		return nil
	}

	return t.scopes[t.cur].lookup(name)
}

func (t *Table) Scope(id ID) *Scope {
	if id < 0 || int(id) >= len(t.scopes) {
		return nil
	}

	return &t.scopes[id]
}

func (t *Table) Len() int { return len(t.scopes) }

func (t *Table) key(name string) string {
	n := t.keys[name]
	t.keys[name] = n + 1

	if n == 0 {
		return name
	}

	return fmt.Sprintf("%s.%d", name, n)
}

func (s *Scope) lookup(name string) *Entry {
	for _, e := range s.Entries {
		if e.Name == name {
			return e
		}
	}

	return nil
}

// From is where the scope was entered.
func (s *Scope) From() loc.PC { return s.from }

func (e *RedeclarationError) Error() string {
	return fmt.Sprintf("variable '%s' already declared in this scope (line %d)", e.Name, e.Prev.Line)
}

func (e *RedeclarationError) Is(target error) bool { return target == ErrRedeclared }

func (id ID) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	if id == None {
		return e.AppendString(b, "none")
	}

	return e.AppendInt(b, int(id))
}

func (e *Entry) TlogAppend(b []byte) []byte {
	var en tlwire.Encoder

	b = en.AppendMap(b, 4)
	b = en.AppendString(b, "key")
	b = en.AppendString(b, e.Key)
	b = en.AppendString(b, "type")
	b = e.Type.TlogAppend(b)
	b = en.AppendKeyInt(b, "line", e.Line)
	b = en.AppendKeyInt(b, "init", btoi(e.Initialized))

	return b
}

func btoi(v bool) int {
	if v {
		return 1
	}

	return 0
}
