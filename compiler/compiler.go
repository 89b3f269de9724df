package compiler

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/lodelang/lode/compiler/analyze"
	"github.com/lodelang/lode/compiler/asm"
	"github.com/lodelang/lode/compiler/asmgen"
	"github.com/lodelang/lode/compiler/back"
	"github.com/lodelang/lode/compiler/diag"
	"github.com/lodelang/lode/compiler/ir"
	"github.com/lodelang/lode/compiler/irgen"
	"github.com/lodelang/lode/compiler/opt"
	"github.com/lodelang/lode/compiler/source"
	"github.com/lodelang/lode/compiler/tree"
)

// Compile runs the whole pipeline on a checked program. The sink is
// returned in every case: while it carries errors no object is
// emitted, warnings alone do not block emission.
func Compile(ctx context.Context, prog *tree.Program, reg *source.Registry) (obj *back.Object, sink *diag.Sink, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile", "kind", prog.Kind, "funcs", len(prog.Funcs))
	defer tr.Finish("err", &err)

	sink = &diag.Sink{}

	res, err := irgen.Gen(ctx, prog, reg)
	if err != nil {
		return nil, sink, errors.Wrap(err, "irgen")
	}

	ic := res.Context

	funcs := make([]ir.FuncID, 0, len(prog.Funcs))
	for _, f := range prog.Funcs {
		funcs = append(funcs, res.Funcs[f])
	}

	for _, fn := range funcs {
		err = analyze.VerifyPhis(ctx, ic, fn)
		if err != nil {
			return nil, sink, errors.Wrap(err, "verify %v", ic.Func(fn).Name)
		}
	}

	analyze.CheckPurity(ctx, ic, funcs, sink)

	err = opt.Optimize(ctx, ic, funcs, opt.Passes())
	if err != nil {
		return nil, sink, errors.Wrap(err, "optimize")
	}

	unit, err := asmgen.Gen(ctx, ic, res.Funcs[prog.Entry], asm.NewRegisterSequencer(), sink)
	if err != nil {
		return nil, sink, errors.Wrap(err, "asmgen")
	}

	ops, err := back.Allocate(ctx, unit.Ops)
	if err != nil {
		return nil, sink, errors.Wrap(err, "regalloc")
	}

	switch prog.Kind {
	case tree.Script:
		back.CheckScriptOpcodes(ctx, ops, sink)
	case tree.Predicate:
		back.CheckPredicateOpcodes(ctx, ops, sink)
	case tree.Contract:
		back.CheckContractOpcodes(ctx, ops, sink)
	default:
		return nil, sink, errors.New("unknown program kind %v", prog.Kind)
	}

	if sink.HasErrors() {
		return nil, sink, errors.New("%d errors", len(sink.Errors))
	}

	obj, err = back.Emit(ctx, ops, unit.Data, reg, sink)
	if err != nil {
		return nil, sink, errors.Wrap(err, "emit")
	}

	return obj, sink, nil
}
