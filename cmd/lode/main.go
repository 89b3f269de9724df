package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/lodelang/lode/compiler"
	"github.com/lodelang/lode/compiler/back"
	"github.com/lodelang/lode/compiler/source"
	"github.com/lodelang/lode/compiler/tree"
)

func main() {
	compileCmd := &cli.Command{
		Name:   "compile",
		Action: compileAct,
		Args:   cli.Args{},
		Flags: []*cli.Flag{
			cli.NewFlag("target", "script", "unit kind: script, predicate or contract"),
			cli.NewFlag("o", "a", "output prefix: <o>.bin, <o>.data, <o>.map"),
		},
	}

	addr2lineCmd := &cli.Command{
		Name:   "addr2line",
		Action: addr2lineAct,
		Args:   cli.Args{},
	}

	app := &cli.Command{
		Name:        "lode",
		Description: "lode is a tool for compiling lode programs",
		Commands: []*cli.Command{
			compileCmd,
			addr2lineCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func compileAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	kind, err := target(c.String("target"))
	if err != nil {
		return err
	}

	reg := source.NewRegistry()

	// TODO: read the program from the args once the frontend lands.
	// Until then the fixture below exercises the full pipeline.
	prog := fixture(kind, reg)

	obj, sink, err := compiler.Compile(ctx, prog, reg)

	for _, d := range sink.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %v\n", d)
	}
	for _, d := range sink.Errors {
		fmt.Fprintf(os.Stderr, "error: %v\n", d)
	}

	if err != nil {
		return errors.Wrap(err, "compile")
	}

	pref := c.String("o")

	m, err := obj.Map.Marshal()
	if err != nil {
		return errors.Wrap(err, "marshal source map")
	}

	for _, f := range []struct {
		name string
		data []byte
	}{
		{pref + ".bin", obj.Bytecode},
		{pref + ".data", obj.Data},
		{pref + ".map", m},
	} {
		err = os.WriteFile(f.name, f.data, 0o644)
		if err != nil {
			return errors.Wrap(err, "write %v", f.name)
		}
	}

	return nil
}

func addr2lineAct(c *cli.Command) (err error) {
	if len(c.Args) < 2 {
		return errors.New("usage: addr2line <map file> <pc>...")
	}

	data, err := os.ReadFile(c.Args[0])
	if err != nil {
		return errors.Wrap(err, "read map")
	}

	m, err := back.UnmarshalSourceMap(data)
	if err != nil {
		return err
	}

	for _, a := range c.Args[1:] {
		pc, err := strconv.ParseUint(a, 0, 64)
		if err != nil {
			return errors.Wrap(err, "pc %v", a)
		}

		e, ok := m.Lookup(pc)
		if !ok {
			fmt.Printf("%#x: ?\n", pc)
			continue
		}

		fmt.Printf("%#x: %v:%d\n", pc, e.File, e.Line)
	}

	return nil
}

func target(s string) (tree.ProgramKind, error) {
	switch s {
	case "script":
		return tree.Script, nil
	case "predicate":
		return tree.Predicate, nil
	case "contract":
		return tree.Contract, nil
	default:
		return 0, errors.New("unknown target %v", s)
	}
}

// fixture is a small checked program covering branching and calls.
func fixture(kind tree.ProgramKind, reg *source.Registry) *tree.Program {
	text := []byte(`fn double(v) = v + v
fn main(s) = match s { 0 => 1, 1 => double(21), 2 => 3 }
`)

	f := reg.AddFile("fixture.ld", text)

	sp := func(start, end uint32) tree.Base {
		return tree.Base{Sp: source.Span{File: f, Start: start, End: end}}
	}

	double := &tree.FuncDecl{
		Name:   "double",
		Params: []tree.Param{{Name: "v", Span: source.Span{File: f, Start: 10, End: 11}}},
		Body: tree.Binary{
			Base: sp(15, 20),
			Op:   tree.Add,
			L:    tree.VarRef{Base: sp(15, 16), Name: "v"},
			R:    tree.VarRef{Base: sp(19, 20), Name: "v"},
		},
		Span: source.Span{File: f, Start: 0, End: 20},
	}

	main := &tree.FuncDecl{
		Name:   "main",
		Params: []tree.Param{{Name: "s", Span: source.Span{File: f, Start: 29, End: 30}}},
		Body: tree.Match{
			Base:      sp(34, 78),
			Scrutinee: tree.VarRef{Base: sp(40, 41), Name: "s"},
			Arms: []tree.Arm{
				{Discriminant: 0, Body: tree.Literal{Base: sp(49, 50), Val: 1}, Span: source.Span{File: f, Start: 44, End: 50}},
				{Discriminant: 1, Body: tree.Apply{Base: sp(57, 67), Callee: double, Args: []tree.Expr{tree.Literal{Base: sp(64, 66), Val: 21}}}, Span: source.Span{File: f, Start: 52, End: 67}},
				{Discriminant: 2, Body: tree.Literal{Base: sp(74, 75), Val: 3}, Span: source.Span{File: f, Start: 69, End: 75}},
			},
		},
		Span: source.Span{File: f, Start: 21, End: 78},
	}

	return &tree.Program{
		Kind:  kind,
		Funcs: []*tree.FuncDecl{double, main},
		Entry: main,
	}
}
