// Package back turns symbolic assembly into machine code: it assigns
// machine registers to virtual ones, checks per-target instruction
// legality and emits bytecode with the data section and a source map.
package back

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/lodelang/lode/compiler/asm"
	"github.com/lodelang/lode/compiler/df"
	"github.com/lodelang/lode/compiler/set"
)

// Allocate rewrites virtual registers to machine ones. Two virtual
// registers share a machine register only if their live ranges do not
// overlap. Reserved registers pass through untouched.
func Allocate(ctx context.Context, ops []asm.Op) (_ []asm.AllocatedOp, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "regalloc", "ops", len(ops))
	defer tr.Finish("err", &err)

	live := liveness(ctx, ops, true)

	adj := interference(ops, live)

	colors, err := assign(ops, adj)
	if err != nil {
		return nil, err
	}

	res := make([]asm.AllocatedOp, len(ops))

	for i := range ops {
		op := asm.AllocatedOp(ops[i])

		op.Regs = make([]asm.Reg, len(ops[i].Regs))
		for j, r := range ops[i].Regs {
			op.Regs[j] = mapped(r, colors)
		}

		res[i] = op
	}

	if tr.If("dump_alloc") {
		tr.Printw("allocated", "listing", string(asm.AppendAllocatedListing(nil, res)))
	}

	return res, nil
}

// liveness computes per-op live-out sets over the flat op list. Control
// flow follows labels, everything else falls through. With
// ignoreConstRegs the reserved constant registers stay out of the sets,
// which is what allocation wants; without it they are tracked like any
// other register.
func liveness(ctx context.Context, ops []asm.Op, ignoreConstRegs bool) df.Result[asm.Reg] {
	target := map[asm.Label]int{}

	for i, op := range ops {
		if op.Opcode == asm.LABEL {
			target[op.Label] = i
		}
	}

	succs := func(i int) []int {
		op := &ops[i]

		if l := op.Jump(); l != asm.NoLabel {
			if op.Opcode == asm.JI {
				return []int{target[l]}
			}

			return []int{i + 1, target[l]}
		}

		if op.Opcode.Terminal() || i+1 == len(ops) {
			return nil
		}

		return []int{i + 1}
	}

	tracked := func(r asm.Reg) bool {
		return r.IsVirtual() || !ignoreConstRegs
	}

	gen := func(i int) set.Bits[asm.Reg] {
		s := set.Make[asm.Reg]()

		for _, r := range ops[i].Uses() {
			if tracked(r) {
				s.Set(r)
			}
		}

		return s
	}

	kill := func(i int) set.Bits[asm.Reg] {
		s := set.Make[asm.Reg]()

		if d := ops[i].Def(); d >= 0 && tracked(d) {
			s.Set(d)
		}

		return s
	}

	return df.Solve(ctx, df.Problem[asm.Reg]{
		Dir:  df.Backward,
		Meet: df.Union,

		Blocks: len(ops),
		Succs:  succs,
		Gen:    gen,
		Kill:   kill,
	})
}

// interference builds the conflict graph: a definition conflicts with
// everything live across it.
func interference(ops []asm.Op, live df.Result[asm.Reg]) map[asm.Reg]set.Bits[asm.Reg] {
	adj := map[asm.Reg]set.Bits[asm.Reg]{}

	edge := func(a, b asm.Reg) {
		s, ok := adj[a]
		if !ok {
			s = set.Make[asm.Reg]()
		}

		s.Set(b)
		adj[a] = s
	}

	touch := func(r asm.Reg) {
		if _, ok := adj[r]; !ok {
			adj[r] = set.Make[asm.Reg]()
		}
	}

	// values live into the first op have no visible definition, they
	// still must not share a register
	if len(ops) != 0 {
		live.In[0].Range(func(a asm.Reg) bool {
			live.In[0].Range(func(b asm.Reg) bool {
				if a != b {
					edge(a, b)
				}

				return true
			})

			return true
		})
	}

	for i := range ops {
		for _, r := range ops[i].Regs {
			if r.IsVirtual() {
				touch(r)
			}
		}

		d := ops[i].Def()
		if !d.IsVirtual() {
			continue
		}

		live.Out[i].Range(func(r asm.Reg) bool {
			if r != d {
				edge(d, r)
				edge(r, d)
			}

			return true
		})
	}

	return adj
}

// assign colors machine registers greedily in order of first use.
func assign(ops []asm.Op, adj map[asm.Reg]set.Bits[asm.Reg]) (map[asm.Reg]asm.Reg, error) {
	colors := map[asm.Reg]asm.Reg{}

	var order []asm.Reg
	seen := set.Make[asm.Reg]()

	for i := range ops {
		for _, r := range ops[i].Regs {
			if r.IsVirtual() && !seen.IsSet(r) {
				seen.Set(r)
				order = append(order, r)
			}
		}
	}

	for _, r := range order {
		used := set.Make[asm.Reg]()

		nn := adj[r]
		nn.Range(func(n asm.Reg) bool {
			if c, ok := colors[n]; ok {
				used.Set(c)
			}

			return true
		})

		for c := asm.Reg(asm.NumReserved); ; c++ {
			if c >= asm.NumMachine {
				return nil, errors.New("out of machine registers, %v needs spilling", r)
			}

			if !used.IsSet(c) {
				colors[r] = c
				break
			}
		}
	}

	return colors, nil
}

func mapped(r asm.Reg, colors map[asm.Reg]asm.Reg) asm.Reg {
	if !r.IsVirtual() {
		return r
	}

	return colors[r]
}
