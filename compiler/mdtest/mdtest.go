// Package mdtest extracts compiler test cases from markdown documents.
//
// Every heading "Test: <name>" opens a case.
// The json fence holds the program, the other fences hold expectations.
package mdtest

import (
	"bytes"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"tlog.app/go/errors"
)

type (
	Kind string

	Case struct {
		Name string
		Line int

		Input  string
		Expect map[Kind]string
	}
)

const (
	Input  Kind = "json"
	Output Kind = "output"
	Diag   Kind = "diag"
	TAC    Kind = "tac"
	Exit   Kind = "exit"
)

var ErrFormat = errors.New("bad test document")

func ParseFile(name string) ([]Case, error) {
	src, err := os.ReadFile(name)
	if err != nil {
		return nil, errors.Wrap(err, "read file")
	}

	cs, err := Parse(src)
	if err != nil {
		return nil, errors.Wrap(err, "%v", name)
	}

	return cs, nil
}

func Parse(src []byte) (cs []Case, err error) {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var cur *Case

	flush := func() error {
		if cur == nil {
			return nil
		}

		if cur.Input == "" {
			return errors.Wrap(ErrFormat, "line %d: test %q has no json fence", cur.Line, cur.Name)
		}

		if len(cur.Expect) == 0 {
			return errors.Wrap(ErrFormat, "line %d: test %q has no expectations", cur.Line, cur.Name)
		}

		cs = append(cs, *cur)
		cur = nil

		return nil
	}

	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch n := n.(type) {
		case *ast.Heading:
			title := plain(n, src)

			name, ok := strings.CutPrefix(title, "Test: ")
			if !ok {
				return ast.WalkContinue, nil
			}

			if err := flush(); err != nil {
				return ast.WalkStop, err
			}

			cur = &Case{
				Name:   strings.TrimSpace(name),
				Line:   line(n, src),
				Expect: map[Kind]string{},
			}
		case *ast.FencedCodeBlock:
			lang := Kind(n.Language(src))
			body := content(n, src)
			l := line(n, src)

			if cur == nil {
				if lang != "" {
					return ast.WalkStop, errors.Wrap(ErrFormat, "line %d: %s fence outside of a test", l, lang)
				}

				return ast.WalkContinue, nil
			}

			switch lang {
			case Input:
				if cur.Input != "" {
					return ast.WalkStop, errors.Wrap(ErrFormat, "line %d: second json fence in %q", l, cur.Name)
				}

				cur.Input = body
			case Output, Diag, TAC, Exit:
				if _, ok := cur.Expect[lang]; ok {
					return ast.WalkStop, errors.Wrap(ErrFormat, "line %d: second %s fence in %q", l, lang, cur.Name)
				}

				cur.Expect[lang] = body
			default:
				return ast.WalkStop, errors.Wrap(ErrFormat, "line %d: unknown fence %q in %q", l, lang, cur.Name)
			}
		}

		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}

	err = flush()
	if err != nil {
		return nil, err
	}

	return cs, nil
}

func (c *Case) Has(k Kind) bool {
	_, ok := c.Expect[k]
	return ok
}

func plain(n ast.Node, src []byte) string {
	var b bytes.Buffer

	_ = ast.Walk(n, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if t, ok := n.(*ast.Text); ok && entering {
			b.Write(t.Segment.Value(src))
		}

		return ast.WalkContinue, nil
	})

	return b.String()
}

func content(n *ast.FencedCodeBlock, src []byte) string {
	var b bytes.Buffer

	lines := n.Lines()

	for i := 0; i < lines.Len(); i++ {
		s := lines.At(i)
		b.Write(s.Value(src))
	}

	return b.String()
}

// line is the 1-based line of the first content line of n.
func line(n ast.Node, src []byte) int {
	if n.Lines().Len() == 0 {
		return 0
	}

	pos := n.Lines().At(0).Start

	return 1 + bytes.Count(src[:pos], []byte{'\n'})
}
