// Package analyze contains IR analyses: storage purity checking and
// dataflow-based verification helpers.
package analyze

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/lodelang/lode/compiler/diag"
	"github.com/lodelang/lode/compiler/ir"
)

type (
	effects struct {
		reads  bool
		writes bool
	}

	purityChecker struct {
		ic   *ir.Context
		memo map[ir.FuncID]effects
	}
)

// CheckPurity walks every function once, aggregates its storage
// effects and compares them against the declared attribute. Callees
// are memoized so shared functions are not re-walked.
func CheckPurity(ctx context.Context, ic *ir.Context, funcs []ir.FuncID, sink *diag.Sink) {
	tr := tlog.SpanFromContext(ctx)

	c := &purityChecker{
		ic:   ic,
		memo: map[ir.FuncID]effects{},
	}

	for _, fn := range funcs {
		f := ic.Func(fn)
		eff := c.effects(fn)

		tr.V("purity").Printw("function effects", "func", f.Name, "reads", eff.reads, "writes", eff.writes, "declared", f.Purity)

		declared := f.Purity

		switch {
		case eff.writes && !declared.Writes():
			sink.Errorf(diag.Purity, f.Span, "function %v writes storage, declare it %v", f.Name, need(eff))
		case eff.reads && !declared.Reads():
			sink.Errorf(diag.Purity, f.Span, "function %v reads storage, declare it %v", f.Name, need(eff))
		}

		if declared.Writes() && !eff.writes || declared.Reads() && !eff.reads {
			sink.Warnf(diag.Purity, f.Span, "function %v declares %v but does not need it", f.Name, declared)
		}
	}
}

func need(e effects) ir.Purity {
	var p ir.Purity

	if e.reads {
		p |= ir.PurityReads
	}
	if e.writes {
		p |= ir.PurityWrites
	}

	return p
}

func (c *purityChecker) effects(fn ir.FuncID) effects {
	if e, ok := c.memo[fn]; ok {
		return e
	}

	// a self-recursive callee contributes what the rest of its body
	// proves on its own
	c.memo[fn] = effects{}

	var e effects

	f := c.ic.Func(fn)

	for _, b := range f.Blocks {
		for _, id := range c.ic.Block(b).Instrs {
			switch x := c.ic.Value(id).(type) {
			case ir.StateLoad:
				e.reads = true
			case ir.StateStore:
				e.writes = true
			case ir.AsmBlock:
				for _, op := range x.Ops {
					if op.Op.LoadsState() {
						e.reads = true
					}
					if op.Op.StoresState() {
						e.writes = true
					}
				}
			case ir.Call:
				ce := c.effects(x.Callee)
				e.reads = e.reads || ce.reads
				e.writes = e.writes || ce.writes
			}
		}
	}

	c.memo[fn] = e

	return e
}
