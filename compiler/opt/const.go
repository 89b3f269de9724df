// Package opt holds the IR optimization passes and their driver.
package opt

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/lodelang/lode/compiler/ir"
)

// CombineConstants folds InsertValue instructions whose target
// aggregate and inserted value are both constants into a single new
// constant with the field overwritten. The instruction's handle is
// rewritten in place, so every use sees the folded constant. Runs to a
// fixpoint: each fold may expose the next link of a chain.
func CombineConstants(ctx context.Context, ic *ir.Context, fn ir.FuncID) (changed bool) {
	tr := tlog.SpanFromContext(ctx)

	f := ic.Func(fn)

	for {
		mod := false

		for _, b := range f.Blocks {
			for _, id := range ic.Block(b).Instrs {
				iv, ok := ic.Value(id).(ir.InsertValue)
				if !ok {
					continue
				}

				agg, ok := ic.Value(iv.Agg).(ir.Constant)
				if !ok || agg.Kind != ir.ConstStruct {
					continue
				}

				val, ok := ic.Value(iv.Val).(ir.Constant)
				if !ok {
					continue
				}

				if iv.Index < 0 || iv.Index >= len(agg.Fields) {
					panic(ir.Fatalf("insertvalue index %d out of range for aggregate of %d fields", iv.Index, len(agg.Fields)))
				}

				folded := agg
				folded.Fields = append([]ir.Constant(nil), agg.Fields...)
				folded.Fields[iv.Index] = val

				ic.SetValue(id, folded)

				tr.V("opt").Printw("combined constant", "value", id, "field", iv.Index)

				mod = true
				changed = true
			}
		}

		if !mod {
			return changed
		}
	}
}
