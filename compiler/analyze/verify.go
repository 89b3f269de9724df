package analyze

import (
	"context"

	"github.com/lodelang/lode/compiler/df"
	"github.com/lodelang/lode/compiler/ir"
	"github.com/lodelang/lode/compiler/set"
)

// BlockLiveness computes per-block live-in/live-out sets of IR values
// with the generic solver: backward direction, union meet, gen the
// upward-exposed uses and kill the definitions.
func BlockLiveness(ctx context.Context, ic *ir.Context, fn ir.FuncID) df.Result[ir.ValueID] {
	f := ic.Func(fn)

	idx := map[ir.BlockID]int{}
	for i, b := range f.Blocks {
		idx[b] = i
	}

	gen := make([]set.Bits[ir.ValueID], len(f.Blocks))
	kill := make([]set.Bits[ir.ValueID], len(f.Blocks))

	for i, b := range f.Blocks {
		gen[i] = set.Make[ir.ValueID]()
		kill[i] = set.Make[ir.ValueID]()

		for _, id := range ic.Block(b).Instrs {
			x := ic.Value(id)

			// phi operands flow along edges, they are not plain
			// in-block uses
			if _, ok := x.(ir.Phi); !ok {
				for _, op := range ir.Operands(x) {
					if !kill[i].IsSet(op) {
						gen[i].Set(op)
					}
				}
			}

			kill[i].Set(id)
		}
	}

	return df.Solve(ctx, df.Problem[ir.ValueID]{
		Dir:    df.Backward,
		Meet:   df.Union,
		Blocks: len(f.Blocks),
		Succs: func(b int) []int {
			ss := ic.Succs(f.Blocks[b])

			r := make([]int, len(ss))
			for i, s := range ss {
				r[i] = idx[s]
			}

			return r
		},
		Gen:  func(b int) set.Bits[ir.ValueID] { return gen[b] },
		Kill: func(b int) set.Bits[ir.ValueID] { return kill[b] },
	})
}

// VerifyPhis checks that every block's phi carries exactly one entry
// per reachable predecessor and none for non-predecessors. A failure
// is an internal invariant violation.
func VerifyPhis(ctx context.Context, ic *ir.Context, fn ir.FuncID) error {
	f := ic.Func(fn)

	for _, b := range f.Blocks {
		_, phi := ic.BlockPhi(b)

		if len(phi.Entries) == 0 {
			continue
		}

		preds := ic.Preds(b)

		seen := map[ir.BlockID]bool{}

		for _, e := range phi.Entries {
			if seen[e.Pred] {
				return ir.Fatalf("block %v phi has duplicate entry for predecessor %v", ic.Block(b).Label, ic.Block(e.Pred).Label)
			}

			seen[e.Pred] = true

			found := false
			for _, p := range preds {
				if p == e.Pred {
					found = true
					break
				}
			}

			if !found {
				return ir.Fatalf("block %v phi entry names non-predecessor %v", ic.Block(b).Label, ic.Block(e.Pred).Label)
			}
		}

		for _, p := range preds {
			if !seen[p] {
				return ir.Fatalf("block %v phi missing an entry for reachable predecessor %v", ic.Block(b).Label, ic.Block(p).Label)
			}
		}
	}

	return nil
}
