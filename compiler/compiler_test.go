package compiler

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/mjc/compiler/analyze"
	"github.com/slowlang/mjc/compiler/back"
	"github.com/slowlang/mjc/compiler/llvm"
	"github.com/slowlang/mjc/compiler/mdtest"
	"github.com/slowlang/mjc/compiler/run"
)

func cases(t *testing.T) (all []mdtest.Case) {
	t.Helper()

	files, err := filepath.Glob("testdata/*.md")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		cs, err := mdtest.ParseFile(f)
		require.NoError(t, err, "file %v", f)

		all = append(all, cs...)
	}

	return all
}

func TestGolden(t *testing.T) {
	ctx := context.Background()

	for _, c := range cases(t) {
		c := c

		t.Run(c.Name, func(t *testing.T) {
			var diag bytes.Buffer

			opts := Options{Diag: &diag}

			u, err := Parse(c.Name, []byte(c.Input))
			require.NoError(t, err)

			err = u.Check(ctx, opts)

			if exp, ok := c.Expect[mdtest.Diag]; ok {
				assert.Equal(t, exp, diag.String())
			}

			if !c.Has(mdtest.Output) && !c.Has(mdtest.TAC) {
				assert.ErrorIs(t, err, analyze.ErrSemantic)
				return
			}

			require.NoError(t, err, "diagnostics:\n%s", diag.Bytes())

			err = u.Lower(ctx, opts)
			require.NoError(t, err)

			t.Logf("tac:\n%v", u.TAC)

			if exp, ok := c.Expect[mdtest.TAC]; ok {
				assert.Equal(t, exp, u.TAC.String())
			}

			var out bytes.Buffer

			code, err := run.Run(ctx, &out, u.TAC)
			require.NoError(t, err)

			assert.Equal(t, c.Expect[mdtest.Output], out.String())
			assert.Equal(t, exitCode(t, c), code)

			for _, be := range []Backend{back.New(), llvm.New()} {
				obj, err := u.Compile(ctx, nil, be)
				require.NoError(t, err, "%T", be)
				assert.NotEmpty(t, obj)
			}
		})
	}
}

func TestNative(t *testing.T) {
	nasm, err := exec.LookPath("nasm")
	if err != nil {
		t.Skip("nasm not found")
	}

	cc, err := exec.LookPath("cc")
	if err != nil {
		t.Skip("cc not found")
	}

	ctx := context.Background()
	dir := t.TempDir()

	for i, c := range cases(t) {
		if !c.Has(mdtest.Output) {
			continue
		}

		u, err := Parse(c.Name, []byte(c.Input))
		require.NoError(t, err)

		err = u.Build(ctx, Options{})
		require.NoError(t, err, "case %v", c.Name)

		text, err := u.Compile(ctx, nil, back.New())
		require.NoError(t, err)

		base := filepath.Join(dir, strconv.Itoa(i))

		err = os.WriteFile(base+".asm", text, 0o644)
		require.NoError(t, err)

		out, err := exec.Command(nasm, "-f", "elf32", "-o", base+".o", base+".asm").CombinedOutput()
		require.NoError(t, err, "nasm: %s\n%s", out, text)

		out, err = exec.Command(cc, "-m32", "-no-pie", "-o", base, base+".o").CombinedOutput()
		if err != nil {
			t.Skipf("no 32-bit toolchain: %s", out)
		}

		var stdout bytes.Buffer

		cmd := exec.Command(base)
		cmd.Stdout = &stdout

		code := 0

		err = cmd.Run()
		if ee, ok := err.(*exec.ExitError); ok {
			code = ee.ExitCode()
		} else {
			require.NoError(t, err)
		}

		assert.Equal(t, c.Expect[mdtest.Output], stdout.String(), "case %v", c.Name)
		assert.Equal(t, exitCode(t, c), code, "case %v", c.Name)
	}
}

func TestUnitOrder(t *testing.T) {
	ctx := context.Background()

	u, err := Parse("order", []byte(`{"kind": "class", "line": 1, "name": "P",
		"main": {"kind": "main", "line": 2, "name": "main", "body": {"kind": "block", "line": 2}}}`))
	require.NoError(t, err)

	err = u.Lower(ctx, Options{})
	assert.Error(t, err)

	_, err = u.Compile(ctx, nil, back.New())
	assert.Error(t, err)

	err = u.Build(ctx, Options{Entry: "start"})
	assert.ErrorIs(t, err, analyze.ErrSemantic)

	err = u.Build(ctx, Options{})
	require.NoError(t, err)

	obj, err := u.Compile(ctx, []byte("; head\n"), back.New())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(obj, []byte("; head\n")))
}

func TestParseError(t *testing.T) {
	_, err := Parse("bad", []byte(`{"kind": "class", "line": 1, "name": "P", "bogus": 1}`))
	assert.Error(t, err)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func exitCode(t *testing.T, c mdtest.Case) int {
	t.Helper()

	s, ok := c.Expect[mdtest.Exit]
	if !ok {
		return 0
	}

	code, err := strconv.Atoi(strings.TrimSpace(s))
	require.NoError(t, err)

	return code
}
