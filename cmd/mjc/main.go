package main

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/samber/do"
	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/mjc/compiler"
	"github.com/slowlang/mjc/compiler/back"
	"github.com/slowlang/mjc/compiler/config"
	"github.com/slowlang/mjc/compiler/format"
	"github.com/slowlang/mjc/compiler/llvm"
	"github.com/slowlang/mjc/compiler/run"
)

type (
	env struct {
		ctx context.Context
		inj *do.Injector
		cfg *config.Config
	}
)

func main() {
	checkCmd := &cli.Command{
		Name:        "check",
		Description: "run semantic analysis and print diagnostics",
		Action:      checkAct,
		Args:        cli.Args{},
	}

	tacCmd := &cli.Command{
		Name:        "tac",
		Description: "print three address code",
		Action:      tacAct,
		Args:        cli.Args{},
	}

	compileCmd := &cli.Command{
		Name:        "compile",
		Description: "compile to assembly text of the configured target",
		Action:      compileAct,
		Args:        cli.Args{},
	}

	runCmd := &cli.Command{
		Name:        "run",
		Description: "execute three address code directly",
		Action:      runAct,
		Args:        cli.Args{},
	}

	fmtCmd := &cli.Command{
		Name:        "fmt",
		Description: "print the program as source text",
		Action:      fmtAct,
		Args:        cli.Args{},
	}

	configCmd := &cli.Command{
		Name:        "config",
		Description: "print effective configuration",
		Action:      configAct,
	}

	app := &cli.Command{
		Name:        "mjc",
		Description: "mjc is a MiniJava compiler back end, it reads json AST produced by the parser",
		Flags: []*cli.Flag{
			cli.NewFlag("config", config.FileName, "config file"),
			cli.NewFlag("target", "", "code generator: nasm or llvm"),
			cli.NewFlag("entry", "", "entry method and symbol name"),
			cli.NewFlag("output,o", "", "output file, stdout if empty"),
			cli.NewFlag("log", "stderr", "log output file"),
			cli.NewFlag("verbosity,v", "", "logger verbosity topics"),
			cli.NewFlag("dump-ast", false, "log formatted AST"),
			cli.NewFlag("dump-tac", false, "log generated TAC"),
			cli.NewFlag("max-steps", 0, "evaluation step limit for run, 0 is unlimited"),
		},
		Commands: []*cli.Command{
			checkCmd,
			tacCmd,
			compileCmd,
			runCmd,
			fmtCmd,
			configCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func setup(c *cli.Command) (e *env, err error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}

	if v := c.String("target"); v != "" {
		cfg.Target = v
	}
	if v := c.String("entry"); v != "" {
		cfg.Entry = v
	}
	if v := c.String("output"); v != "" {
		cfg.Output = v
	}
	if v := c.String("verbosity"); v != "" {
		cfg.Log.Verbosity = v
	}
	if v := c.Int("max-steps"); v != 0 {
		cfg.MaxSteps = v
	}

	cfg.Dump.AST = cfg.Dump.AST || c.Bool("dump-ast")
	cfg.Dump.TAC = cfg.Dump.TAC || c.Bool("dump-tac")

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	var w io.Writer = os.Stderr

	if name := c.String("log"); name != "" && name != "stderr" {
		f, err := os.Create(name)
		if err != nil {
			return nil, errors.Wrap(err, "open log")
		}

		w = f
	}

	tlog.DefaultLogger = tlog.New(tlog.NewConsoleWriter(w, tlog.LstdFlags))
	tlog.SetVerbosity(cfg.Log.Verbosity)

	ctx := tlog.ContextWithSpan(context.Background(), tlog.Root())

	return &env{
		ctx: ctx,
		inj: injector(cfg),
		cfg: cfg,
	}, nil
}

func injector(cfg *config.Config) *do.Injector {
	inj := do.New()

	do.ProvideValue(inj, cfg)
	do.ProvideNamedValue[io.Writer](inj, "diag", os.Stderr)

	do.Provide(inj, func(i *do.Injector) (compiler.Options, error) {
		cfg := do.MustInvoke[*config.Config](i)

		diag, err := do.InvokeNamed[io.Writer](i, "diag")
		if err != nil {
			return compiler.Options{}, err
		}

		return compiler.Options{
			Entry:   cfg.Entry,
			Diag:    diag,
			DumpAST: cfg.Dump.AST,
			DumpTAC: cfg.Dump.TAC,
		}, nil
	})

	do.ProvideNamed(inj, "nasm", func(i *do.Injector) (compiler.Backend, error) {
		c := back.New()
		c.Entry = do.MustInvoke[*config.Config](i).Entry

		return c, nil
	})

	do.ProvideNamed(inj, "llvm", func(i *do.Injector) (compiler.Backend, error) {
		c := llvm.New()
		c.Entry = do.MustInvoke[*config.Config](i).Entry

		return c, nil
	})

	return inj
}

func (e *env) units(args []string, f func(u *compiler.Unit, opts compiler.Options) error) error {
	if len(args) == 0 {
		return errors.New("no input files")
	}

	opts, err := do.Invoke[compiler.Options](e.inj)
	if err != nil {
		return errors.Wrap(err, "options")
	}

	for _, a := range args {
		u, err := compiler.ParseFile(a)
		if err != nil {
			return errors.Wrap(err, "parse")
		}

		err = f(u, opts)
		if err != nil {
			return errors.Wrap(err, "%v", a)
		}
	}

	return nil
}

// output writes b to the configured output file or stdout.
func (e *env) output(b []byte) error {
	if e.cfg.Output == "" {
		_, err := os.Stdout.Write(b)
		return err
	}

	err := os.WriteFile(e.cfg.Output, b, 0o644)
	if err != nil {
		return errors.Wrap(err, "write output")
	}

	return nil
}

func checkAct(c *cli.Command) error {
	e, err := setup(c)
	if err != nil {
		return err
	}

	return e.units(c.Args, func(u *compiler.Unit, opts compiler.Options) error {
		return u.Check(e.ctx, opts)
	})
}

func tacAct(c *cli.Command) error {
	e, err := setup(c)
	if err != nil {
		return err
	}

	var b []byte

	err = e.units(c.Args, func(u *compiler.Unit, opts compiler.Options) error {
		err := u.Build(e.ctx, opts)
		if err != nil {
			return err
		}

		b = u.TAC.Append(b)

		return nil
	})
	if err != nil {
		return err
	}

	return e.output(b)
}

func compileAct(c *cli.Command) error {
	e, err := setup(c)
	if err != nil {
		return err
	}

	be, err := do.InvokeNamed[compiler.Backend](e.inj, e.cfg.Target)
	if err != nil {
		return errors.Wrap(err, "backend %v", e.cfg.Target)
	}

	var b []byte

	err = e.units(c.Args, func(u *compiler.Unit, opts compiler.Options) error {
		err := u.Build(e.ctx, opts)
		if err != nil {
			return err
		}

		b, err = u.Compile(e.ctx, b, be)

		return err
	})
	if err != nil {
		return err
	}

	return e.output(b)
}

func runAct(c *cli.Command) error {
	e, err := setup(c)
	if err != nil {
		return err
	}

	var out bytes.Buffer
	var code int

	m := &run.Machine{
		Out:      &out,
		Entry:    e.cfg.Entry,
		MaxSteps: e.cfg.MaxSteps,
	}

	err = e.units(c.Args, func(u *compiler.Unit, opts compiler.Options) (err error) {
		err = u.Build(e.ctx, opts)
		if err != nil {
			return err
		}

		code, err = m.Run(e.ctx, u.TAC)

		return err
	})

	if werr := e.output(out.Bytes()); err == nil {
		err = werr
	}

	if err != nil {
		return err
	}

	if code != 0 {
		os.Exit(code)
	}

	return nil
}

func fmtAct(c *cli.Command) error {
	e, err := setup(c)
	if err != nil {
		return err
	}

	var b []byte

	err = e.units(c.Args, func(u *compiler.Unit, opts compiler.Options) (err error) {
		b, err = format.Format(e.ctx, b, u.Program)
		return err
	})
	if err != nil {
		return err
	}

	return e.output(b)
}

func configAct(c *cli.Command) error {
	e, err := setup(c)
	if err != nil {
		return err
	}

	b, err := e.cfg.Encode()
	if err != nil {
		return err
	}

	return e.output(b)
}
