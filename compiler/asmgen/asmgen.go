// Package asmgen lowers optimized IR functions to symbolic assembly.
// Calls are inlined at the call site, so one compilation unit lowers
// to a single flat op list rooted at the entry function.
package asmgen

import (
	"context"
	"encoding/binary"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/lodelang/lode/compiler/asm"
	"github.com/lodelang/lode/compiler/diag"
	"github.com/lodelang/lode/compiler/ir"
	"github.com/lodelang/lode/compiler/source"
)

type (
	Unit struct {
		Ops  []asm.Op
		Data *asm.DataSection
	}

	gen struct {
		ic   *ir.Context
		rs   *asm.RegisterSequencer
		data *asm.DataSection
		sink *diag.Sink

		ops []asm.Op

		inlining []ir.FuncID
	}

	// namespace binds lowered IR values and named arguments to the
	// registers holding them. One namespace per (possibly inlined)
	// function body.
	namespace struct {
		vals  map[ir.ValueID]asm.Reg
		names map[string]asm.Reg

		labels map[ir.BlockID]asm.Label

		// ret receives the body's result; end is where inlined
		// returns jump, NoLabel at top level.
		ret asm.Reg
		end asm.Label
	}
)

// movi covers immediates up to the field width; larger literals go to
// the data section.
const moviMax = 1<<18 - 1

func Gen(ctx context.Context, ic *ir.Context, entry ir.FuncID, rs *asm.RegisterSequencer, sink *diag.Sink) (_ *Unit, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "asmgen", "entry", ic.Func(entry).Name)
	defer tr.Finish("err", &err)

	g := &gen{
		ic:   ic,
		rs:   rs,
		data: asm.NewDataSection(),
		sink: sink,
	}

	ret := rs.Next()

	err = g.fun(ctx, entry, nil, ret, asm.NoLabel)
	if err != nil {
		return nil, errors.Wrap(err, "func %v", ic.Func(entry).Name)
	}

	if tr.If("dump_asm") {
		tr.Printw("symbolic asm", "listing", string(asm.AppendListing(nil, g.ops)))
	}

	return &Unit{Ops: g.ops, Data: g.data}, nil
}

// fun lowers one function body, walking its blocks once in layout
// order. args bind parameter names for inlined calls; end is the label
// returns jump to, NoLabel when the body terminates the unit.
func (g *gen) fun(ctx context.Context, fn ir.FuncID, args map[string]asm.Reg, ret asm.Reg, end asm.Label) (err error) {
	for _, f := range g.inlining {
		if f == fn {
			return errors.New("recursive call cannot be inlined")
		}
	}

	g.inlining = append(g.inlining, fn)
	defer func() { g.inlining = g.inlining[:len(g.inlining)-1] }()

	f := g.ic.Func(fn)

	ns := &namespace{
		vals:   map[ir.ValueID]asm.Reg{},
		names:  map[string]asm.Reg{},
		labels: map[ir.BlockID]asm.Label{},
		ret:    ret,
		end:    end,
	}

	for name, reg := range args {
		ns.names[name] = reg
	}

	for _, b := range f.Blocks {
		ns.labels[b] = g.rs.NextLabel()
	}

	// phi results live in a dedicated register each; predecessors
	// move their contribution in before branching
	for _, b := range f.Blocks {
		pid, phi := g.ic.BlockPhi(b)
		if len(phi.Entries) != 0 {
			ns.vals[pid] = g.rs.Next()
		}
	}

	for _, b := range f.Blocks {
		err = g.block(ctx, b, ns)
		if err != nil {
			return errors.Wrap(err, "block %v", g.ic.Block(b).Label)
		}
	}

	return nil
}

func (g *gen) block(ctx context.Context, b ir.BlockID, ns *namespace) (err error) {
	g.emit(asm.Op{Opcode: asm.LABEL, Label: ns.labels[b], Comment: g.ic.Block(b).Label}, source.Span{})

	for i, id := range g.ic.Block(b).Instrs {
		x := g.ic.Value(id)

		if _, ok := x.(ir.Phi); ok {
			if i != 0 {
				return ir.Fatalf("phi in the middle of block %v", g.ic.Block(b).Label)
			}

			continue
		}

		if ir.Terminator(x) {
			err = g.terminator(ctx, b, id, x, ns)
			if err != nil {
				return err
			}

			continue
		}

		_, err = g.convertExpressionToAsm(ctx, id, ns, g.rs.Next())
		if err != nil {
			return err
		}
	}

	return nil
}

func (g *gen) terminator(ctx context.Context, b ir.BlockID, id ir.ValueID, x ir.Content, ns *namespace) (err error) {
	sp := g.span(id)

	switch x := x.(type) {
	case ir.Branch:
		err = g.phiMove(ctx, b, x.To, ns, sp)
		if err != nil {
			return err
		}

		g.emit(asm.Op{Opcode: asm.JI, Label: ns.labels[x.To]}, sp)
	case ir.ConditionalBranch:
		if _, ok := g.ic.PhiValueFrom(x.True, b); ok {
			return ir.Fatalf("conditional edge %v -> %v carries a phi value", g.ic.Block(b).Label, g.ic.Block(x.True).Label)
		}
		if _, ok := g.ic.PhiValueFrom(x.False, b); ok {
			return ir.Fatalf("conditional edge %v -> %v carries a phi value", g.ic.Block(b).Label, g.ic.Block(x.False).Label)
		}

		cond, err := g.convertExpressionToAsm(ctx, x.Cond, ns, g.rs.Next())
		if err != nil {
			return err
		}

		g.emit(asm.Op{Opcode: asm.JNZI, Regs: []asm.Reg{cond}, Label: ns.labels[x.True]}, sp)

		if !g.fallsThrough(b, x.False) {
			g.emit(asm.Op{Opcode: asm.JI, Label: ns.labels[x.False]}, sp)
		}
	case ir.Ret:
		val, err := g.convertExpressionToAsm(ctx, x.Val, ns, g.rs.Next())
		if err != nil {
			return err
		}

		if ns.end == asm.NoLabel {
			g.emit(asm.Op{Opcode: asm.RET, Regs: []asm.Reg{val}}, sp)

			return nil
		}

		if val != ns.ret {
			g.emit(asm.Op{Opcode: asm.MOVE, Regs: []asm.Reg{ns.ret, val}}, sp)
		}

		g.emit(asm.Op{Opcode: asm.JI, Label: ns.end}, sp)
	default:
		return ir.Fatalf("unhandled terminator %T", x)
	}

	return nil
}

// phiMove loads the value this edge contributes to the target's phi
// into the phi register.
func (g *gen) phiMove(ctx context.Context, from, to ir.BlockID, ns *namespace, sp source.Span) error {
	val, ok := g.ic.PhiValueFrom(to, from)
	if !ok {
		if _, phi := g.ic.BlockPhi(to); len(phi.Entries) != 0 {
			return ir.Fatalf("edge %v -> %v contributes no phi entry", g.ic.Block(from).Label, g.ic.Block(to).Label)
		}

		return nil
	}

	pid, _ := g.ic.BlockPhi(to)
	dst := ns.vals[pid]

	src, err := g.convertExpressionToAsm(ctx, val, ns, g.rs.Next())
	if err != nil {
		return err
	}

	if src != dst {
		g.emit(asm.Op{Opcode: asm.MOVE, Regs: []asm.Reg{dst, src}}, sp)
	}

	return nil
}

// fallsThrough reports whether the target block's label immediately
// follows in the already emitted layout, i.e. the next block lowered
// after b is target.
func (g *gen) fallsThrough(b, target ir.BlockID) bool {
	f := g.ic.Func(g.ic.Block(b).Func)

	for i, x := range f.Blocks {
		if x == b {
			return i+1 < len(f.Blocks) && f.Blocks[i+1] == target
		}
	}

	return false
}

// convertExpressionToAsm lowers one IR value, writing the result into
// ret. A value already held in a register (a bare variable reference,
// a phi, an argument) is a shortcut: its register is returned as is,
// with no move and ret unused.
func (g *gen) convertExpressionToAsm(ctx context.Context, id ir.ValueID, ns *namespace, ret asm.Reg) (_ asm.Reg, err error) {
	if r, ok := ns.vals[id]; ok {
		return r, nil
	}

	sp := g.span(id)

	switch x := g.ic.Value(id).(type) {
	case ir.Argument:
		r, ok := ns.names[x.Name]
		if !ok {
			// top-level arguments materialize on first use
			r = ret
			ns.names[x.Name] = r
		}

		ns.vals[id] = r

		return r, nil
	case ir.Constant:
		return g.constant(id, x, ns, ret, sp)
	case ir.BinaryOp:
		l, err := g.convertExpressionToAsm(ctx, x.L, ns, g.rs.Next())
		if err != nil {
			return 0, err
		}

		r, err := g.convertExpressionToAsm(ctx, x.R, ns, g.rs.Next())
		if err != nil {
			return 0, err
		}

		g.emit(asm.Op{Opcode: x.Op.Asm(), Regs: []asm.Reg{ret, l, r}}, sp)
	case ir.Call:
		return g.call(ctx, id, x, ns, ret)
	case ir.StateLoad:
		slot, err := g.convertExpressionToAsm(ctx, x.Slot, ns, g.rs.Next())
		if err != nil {
			return 0, err
		}

		g.emit(asm.Op{Opcode: asm.SRW, Regs: []asm.Reg{ret, slot}}, sp)
	case ir.StateStore:
		slot, err := g.convertExpressionToAsm(ctx, x.Slot, ns, g.rs.Next())
		if err != nil {
			return 0, err
		}

		val, err := g.convertExpressionToAsm(ctx, x.Val, ns, g.rs.Next())
		if err != nil {
			return 0, err
		}

		g.emit(asm.Op{Opcode: asm.SWW, Regs: []asm.Reg{slot, val}}, sp)
		g.emit(asm.Op{Opcode: asm.MOVE, Regs: []asm.Reg{ret, asm.RegZero}}, sp)
	case ir.AsmBlock:
		r, err := g.asmBlock(x, ret, sp)
		if err != nil {
			return 0, err
		}

		ns.vals[id] = r

		return r, nil
	case ir.InsertValue:
		return g.insertValue(ctx, id, x, ns, ret, sp)
	case ir.ExtractValue:
		agg, err := g.convertExpressionToAsm(ctx, x.Agg, ns, g.rs.Next())
		if err != nil {
			return 0, err
		}

		imm, err := g.imm12(uint64(x.Index), sp)
		if err != nil {
			return 0, err
		}

		g.emit(asm.Op{Opcode: asm.LW, Regs: []asm.Reg{ret, agg}, Imm: imm}, sp)
	default:
		return 0, ir.Fatalf("unhandled value kind %T in lowering", x)
	}

	ns.vals[id] = ret

	return ret, nil
}

func (g *gen) constant(id ir.ValueID, x ir.Constant, ns *namespace, ret asm.Reg, sp source.Span) (asm.Reg, error) {
	switch x.Kind {
	case ir.ConstUnit:
		ns.vals[id] = asm.RegZero

		return asm.RegZero, nil
	case ir.ConstUint:
		if x.Uint <= moviMax {
			imm, err := asm.NewVirtualImmediate18(x.Uint, sp)
			if err != nil {
				return 0, err
			}

			g.emit(asm.Op{Opcode: asm.MOVI, Regs: []asm.Reg{ret}, Imm: imm}, sp)
		} else {
			// wide literals live in the data section
			d := g.data.Word(x.Uint)
			g.emit(asm.Op{Opcode: asm.LWD, Regs: []asm.Reg{ret}, Data: d}, sp)
		}
	case ir.ConstStruct:
		blob := make([]byte, 0, len(x.Fields)*8)
		for _, f := range x.Fields {
			blob = binary.BigEndian.AppendUint64(blob, f.Uint)
		}

		d := g.data.Bytes(blob)
		g.emit(asm.Op{Opcode: asm.LWD, Regs: []asm.Reg{ret}, Data: d, Comment: "aggregate"}, sp)
	default:
		return 0, ir.Fatalf("unhandled constant kind %d", x.Kind)
	}

	ns.vals[id] = ret

	return ret, nil
}

// call inlines the callee: every argument is lowered into a fresh
// register and bound by parameter name into the callee's namespace,
// then the body is lowered in place. There is no call instruction at
// this layer.
func (g *gen) call(ctx context.Context, id ir.ValueID, x ir.Call, ns *namespace, ret asm.Reg) (asm.Reg, error) {
	callee := g.ic.Func(x.Callee)

	args := map[string]asm.Reg{}

	params := paramNames(g.ic, x.Callee)
	if len(params) != len(x.Args) {
		return 0, ir.Fatalf("call to %v with %d args, %d parameters", callee.Name, len(x.Args), len(params))
	}

	for i, a := range x.Args {
		r, err := g.convertExpressionToAsm(ctx, a, ns, g.rs.Next())
		if err != nil {
			return 0, err
		}

		args[params[i]] = r
	}

	end := g.rs.NextLabel()

	err := g.fun(ctx, x.Callee, args, ret, end)
	if err != nil {
		return 0, errors.Wrap(err, "inline %v", callee.Name)
	}

	g.emit(asm.Op{Opcode: asm.LABEL, Label: end, Comment: callee.Name + ".end"}, g.span(id))

	ns.vals[id] = ret

	return ret, nil
}

func paramNames(ic *ir.Context, fn ir.FuncID) []string {
	f := ic.Func(fn)

	var names []string

	for _, id := range ic.Block(f.Entry()).Instrs {
		if a, ok := ic.Value(id).(ir.Argument); ok {
			names = append(names, a.Name)
		}
	}

	return names
}

// asmBlock emits the block's ops verbatim, binding each named pseudo
// register to a fresh virtual one, scoped to the block.
func (g *gen) asmBlock(x ir.AsmBlock, ret asm.Reg, sp source.Span) (asm.Reg, error) {
	regs := map[string]asm.Reg{}

	reg := func(name string) asm.Reg {
		if r, ok := regs[name]; ok {
			return r
		}

		r := g.rs.Next()
		regs[name] = r

		return r
	}

	for _, op := range x.Ops {
		rr := make([]asm.Reg, len(op.Args))
		for i, a := range op.Args {
			rr[i] = reg(a)
		}

		g.emit(asm.Op{Opcode: op.Op, Regs: rr}, sp)
	}

	if x.Ret == "" {
		return asm.RegZero, nil
	}

	r, ok := regs[x.Ret]
	if !ok {
		return 0, ir.Fatalf("asm block returns unknown register %v", x.Ret)
	}

	g.emit(asm.Op{Opcode: asm.MOVE, Regs: []asm.Reg{ret, r}}, sp)

	return ret, nil
}

// insertValue on a non-constant aggregate copies it into fresh memory
// and overwrites the field there.
func (g *gen) insertValue(ctx context.Context, id ir.ValueID, x ir.InsertValue, ns *namespace, ret asm.Reg, sp source.Span) (asm.Reg, error) {
	agg, err := g.convertExpressionToAsm(ctx, x.Agg, ns, g.rs.Next())
	if err != nil {
		return 0, err
	}

	val, err := g.convertExpressionToAsm(ctx, x.Val, ns, g.rs.Next())
	if err != nil {
		return 0, err
	}

	size := g.aggSize(x.Agg)

	sz := g.rs.Next()

	szImm, err := asm.NewVirtualImmediate18(size, sp)
	if err != nil {
		return 0, err
	}

	g.emit(asm.Op{Opcode: asm.MOVI, Regs: []asm.Reg{sz}, Imm: szImm}, sp)
	g.emit(asm.Op{Opcode: asm.ALOC, Regs: []asm.Reg{sz}}, sp)
	g.emit(asm.Op{Opcode: asm.MOVE, Regs: []asm.Reg{ret, asm.RegHP}}, sp)
	g.emit(asm.Op{Opcode: asm.MCP, Regs: []asm.Reg{ret, agg, sz}}, sp)

	imm, err := g.imm12(uint64(x.Index), sp)
	if err != nil {
		return 0, err
	}

	g.emit(asm.Op{Opcode: asm.SW, Regs: []asm.Reg{ret, val}, Imm: imm}, sp)

	ns.vals[id] = ret

	return ret, nil
}

func (g *gen) aggSize(v ir.ValueID) uint64 {
	if c, ok := g.ic.Value(v).(ir.Constant); ok && c.Kind == ir.ConstStruct {
		return uint64(len(c.Fields)) * 8
	}

	if iv, ok := g.ic.Value(v).(ir.InsertValue); ok {
		return g.aggSize(iv.Agg)
	}

	return 8
}

func (g *gen) imm12(raw uint64, sp source.Span) (asm.Immediate, error) {
	imm, err := asm.NewVirtualImmediate12(raw, sp)
	if err != nil {
		var tooBig asm.ImmediateTooLargeError

		if errors.As(err, &tooBig) {
			g.sink.Errorf(diag.Encoding, sp, "%v", err)
		}

		return nil, err
	}

	return imm, nil
}

func (g *gen) emit(op asm.Op, sp source.Span) {
	switch op.Opcode {
	case asm.LABEL, asm.JI, asm.JNZI, asm.JNEI:
	default:
		op.Label = asm.NoLabel
	}

	if op.Opcode != asm.LWD {
		op.Data = asm.NoData
	}

	if op.Span == (source.Span{}) {
		op.Span = sp
	}

	g.ops = append(g.ops, op)
}

func (g *gen) span(id ir.ValueID) source.Span {
	sp, ok := g.ic.ValueSpan(id)
	if !ok {
		return source.Span{File: source.NoFile}
	}

	return sp
}
