package opt

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/lodelang/lode/compiler/ir"
)

// Branchless rewrites a conditional branch whose two successors are
// trivial (each only branches on to the same joint block, passing a
// constant through the joint phi) into straight-line arithmetic:
// x = c*a + (1-c)*b, then an unconditional branch with x.
//
// The blend is only sound if the removed blocks are side-effect free
// and the condition is a 0/1 value; both are verified before the
// rewrite, not assumed.
func Branchless(ctx context.Context, ic *ir.Context, fn ir.FuncID) (changed bool) {
	tr := tlog.SpanFromContext(ctx)

	f := ic.Func(fn)

	for {
		mod := false

		for _, b := range f.Blocks {
			if rewriteBranch(ic, f, b) {
				tr.V("opt").Printw("branchless rewrite", "block", ic.Block(b).Label)

				mod = true
				changed = true

				break // block list changed under us
			}
		}

		if !mod {
			return changed
		}
	}
}

func rewriteBranch(ic *ir.Context, f *ir.Function, b ir.BlockID) bool {
	cid, term, ok := ic.Terminator(b)
	if !ok {
		return false
	}

	cb, ok := term.(ir.ConditionalBranch)
	if !ok || cb.True == cb.False {
		return false
	}

	if !isBool(ic, cb.Cond) {
		return false
	}

	jt, okT := trivialSuccessor(ic, cb.True)
	jf, okF := trivialSuccessor(ic, cb.False)

	if !okT || !okF || jt != jf {
		return false
	}

	joint := jt

	av, okT := ic.PhiValueFrom(joint, cb.True)
	bv, okF := ic.PhiValueFrom(joint, cb.False)

	if !okT || !okF {
		return false
	}

	if !isConstUint(ic, av) || !isConstUint(ic, bv) {
		return false
	}

	// both arms must be removable: reachable from b and nowhere else
	if !solePred(ic, cb.True, b) || !solePred(ic, cb.False, b) {
		return false
	}

	// blend in the predecessor: x = c*a + (1-c)*b
	ic.RemoveInstr(b, cid)

	one := ic.Append(b, ir.Uint(1))
	ta := ic.Append(b, ir.BinaryOp{Op: ir.OpMul, L: cb.Cond, R: av})
	nc := ic.Append(b, ir.BinaryOp{Op: ir.OpSub, L: one, R: cb.Cond})
	tb := ic.Append(b, ir.BinaryOp{Op: ir.OpMul, L: nc, R: bv})
	x := ic.Append(b, ir.BinaryOp{Op: ir.OpAdd, L: ta, R: tb})

	ic.Append(b, ir.Branch{To: joint})

	// the joint phi now merges from b instead of the removed blocks
	pid, phi := ic.BlockPhi(joint)

	entries := phi.Entries[:0:0]
	for _, e := range phi.Entries {
		if e.Pred == cb.True || e.Pred == cb.False {
			continue
		}

		entries = append(entries, e)
	}

	phi.Entries = append(entries, ir.PhiEntry{Pred: b, Val: x})
	ic.SetValue(pid, phi)

	removeBlock(f, cb.True)
	removeBlock(f, cb.False)

	return true
}

// trivialSuccessor reports the joint block a trivial block falls into:
// nothing but its (empty) phi, pure constant definitions and one
// unconditional branch.
func trivialSuccessor(ic *ir.Context, b ir.BlockID) (ir.BlockID, bool) {
	blk := ic.Block(b)

	for i, id := range blk.Instrs {
		x := ic.Value(id)

		switch x := x.(type) {
		case ir.Phi:
			if i != 0 || len(x.Entries) != 0 {
				return ir.NoBlock, false
			}
		case ir.Constant:
		case ir.Branch:
			if i != len(blk.Instrs)-1 {
				return ir.NoBlock, false
			}

			return x.To, true
		default:
			// anything else may have effects or depend on them
			return ir.NoBlock, false
		}
	}

	return ir.NoBlock, false
}

func solePred(ic *ir.Context, b, pred ir.BlockID) bool {
	preds := ic.Preds(b)

	return len(preds) == 1 && preds[0] == pred
}

func isBool(ic *ir.Context, v ir.ValueID) bool {
	switch x := ic.Value(v).(type) {
	case ir.Constant:
		return x.Kind == ir.ConstUint && x.Uint <= 1
	case ir.BinaryOp:
		return x.Op == ir.OpEq || x.Op == ir.OpLt
	default:
		return false
	}
}

func isConstUint(ic *ir.Context, v ir.ValueID) bool {
	c, ok := ic.Value(v).(ir.Constant)

	return ok && c.Kind == ir.ConstUint
}

func removeBlock(f *ir.Function, b ir.BlockID) {
	for i, x := range f.Blocks {
		if x != b {
			continue
		}

		f.Blocks = append(f.Blocks[:i], f.Blocks[i+1:]...)

		return
	}
}
