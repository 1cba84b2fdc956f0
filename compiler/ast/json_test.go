package ast

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/mjc/compiler/tp"
)

func TestUnmarshal(t *testing.T) {
	p, err := Unmarshal([]byte(`{"kind": "program", "line": 1, "class": {"kind": "class", "line": 1, "name": "P",
		"fields": [{"kind": "var", "line": 2, "type": "int[]", "name": "a"}],
		"main": {"kind": "main", "line": 3, "name": "main", "type": "int", "body": {"kind": "block", "line": 3, "stmts": [
			{"kind": "var", "line": 4, "type": "char", "name": "c", "final": true, "init": {"kind": "char", "line": 4, "value": "z"}},
			{"kind": "assign", "line": 5, "name": "a", "rhs": {"kind": "new", "line": 5, "size": {"kind": "int", "line": 5, "value": 2}}},
			{"kind": "assign", "line": 6, "name": "a", "index": {"kind": "int", "line": 6, "value": 1},
				"rhs": {"kind": "unary", "line": 6, "op": "-", "x": {"kind": "paren", "line": 6, "x": {"kind": "float", "line": 6, "value": 1.5}}}},
			{"kind": "if", "line": 7, "cond": {"kind": "binary", "line": 7, "op": "&&",
					"left": {"kind": "bool", "line": 7, "value": true}, "right": {"kind": "ident", "line": 7, "name": "b"}},
				"then": {"kind": "print", "line": 8, "x": {"kind": "string", "line": 8, "value": "yes"}}},
			{"kind": "while", "line": 9, "cond": {"kind": "bool", "line": 9, "value": false}, "body": {"kind": "block", "line": 9}},
			{"kind": "return", "line": 10, "x": {"kind": "index", "line": 10, "name": "a", "index": {"kind": "int", "line": 10, "value": 0}}}
		]}}}}`))
	require.NoError(t, err)

	c := p.Class
	require.NotNil(t, c)
	assert.Equal(t, "P", c.Name)
	require.Len(t, c.Fields, 1)
	assert.Equal(t, tp.IntArray, c.Fields[0].Type)

	m := c.Main
	require.NotNil(t, m)
	assert.Equal(t, tp.Int, m.Result)
	require.Len(t, m.Body.Stmts, 6)

	v := m.Body.Stmts[0].(*VarDecl)
	assert.True(t, v.Final)
	assert.Equal(t, &CharLit{Base: Base{Line: 4}, Value: 'z'}, v.Init)

	a := m.Body.Stmts[2].(*Assign)
	assert.Equal(t, &IntLit{Base: Base{Line: 6}, Value: 1}, a.Index)

	u := a.Value.(*Unary)
	assert.Equal(t, Neg, u.Op)
	assert.Equal(t, float32(1.5), u.X.(*Paren).X.(*FloatLit).Value)

	s := m.Body.Stmts[3].(*If)
	assert.Equal(t, 7, s.Pos())
	assert.Equal(t, And, s.Cond.(*Binary).Op)
	assert.Nil(t, s.Else)

	r := m.Body.Stmts[5].(*Return)
	assert.Equal(t, "a", r.X.(*Index).Name)
}

func TestUnmarshalClassRoot(t *testing.T) {
	p, err := Unmarshal([]byte(`{"kind": "class", "line": 3, "name": "Q",
		"main": {"kind": "method", "line": 4, "name": "main", "body": {"kind": "block", "line": 4}}}`))
	require.NoError(t, err)

	assert.Equal(t, 3, p.Line)
	assert.Equal(t, tp.Void, p.Class.Main.Result)
}

func TestUnmarshalErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		src  string
		err  string
	}{
		{"unknown field", `{"kind": "class", "bogus": 1}`, "unknown field"},
		{"not a program", `{"kind": "block"}`, "expected program"},
		{"no body", `{"kind": "class", "main": {"kind": "main", "line": 2}}`, "without body"},
		{"bad type", `{"kind": "class", "fields": [{"kind": "var", "type": "long", "name": "x"}]}`, "long"},
		{"bad stmt", `{"kind": "class", "main": {"kind": "main", "body": {"kind": "block", "stmts": [{"kind": "goto", "line": 7}]}}}`, "line 7"},
		{"bad op", `{"kind": "class", "main": {"kind": "main", "body": {"kind": "block", "stmts": [
			{"kind": "print", "x": {"kind": "binary", "op": "<<", "left": {"kind": "int", "value": 1}, "right": {"kind": "int", "value": 1}}}]}}}`, "<<"},
		{"long char", `{"kind": "class", "main": {"kind": "main", "body": {"kind": "block", "stmts": [
			{"kind": "print", "x": {"kind": "char", "value": "ab"}}]}}}`, "one byte"},
		{"int overflow", `{"kind": "class", "main": {"kind": "main", "body": {"kind": "block", "stmts": [
			{"kind": "print", "x": {"kind": "int", "value": 4294967296}}]}}}`, "int literal"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tc.src))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.err)
		})
	}
}
