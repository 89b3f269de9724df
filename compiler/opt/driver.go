package opt

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/lodelang/lode/compiler/ir"
)

type (
	Pass struct {
		Name string
		Run  func(ctx context.Context, ic *ir.Context, fn ir.FuncID) bool
	}
)

// Passes is the default pipeline.
func Passes() []Pass {
	return []Pass{
		{Name: "combine_constants", Run: CombineConstants},
		{Name: "branchless", Run: Branchless},
	}
}

// Optimize runs every pass to its own fixpoint, then re-checks the
// whole sequence until no pass reports a modification.
func Optimize(ctx context.Context, ic *ir.Context, funcs []ir.FuncID, passes []Pass) (err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "optimize", "funcs", len(funcs), "passes", len(passes))
	defer tr.Finish("err", &err)

	for _, fn := range funcs {
		rounds := 0

		for {
			rounds++
			mod := false

			for _, p := range passes {
				if p.Run(ctx, ic, fn) {
					tr.V("opt").Printw("pass modified", "pass", p.Name, "func", ic.Func(fn).Name, "round", rounds)

					mod = true
				}
			}

			if !mod {
				break
			}
		}
	}

	return nil
}
