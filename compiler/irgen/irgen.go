// Package irgen builds the block IR from the typed tree.
package irgen

import (
	"context"
	"fmt"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/lodelang/lode/compiler/ir"
	"github.com/lodelang/lode/compiler/source"
	"github.com/lodelang/lode/compiler/tree"
)

type (
	Result struct {
		Context *ir.Context
		Funcs   map[*tree.FuncDecl]ir.FuncID
		Aggs    []ir.AggregateID
	}

	gen struct {
		ic *ir.Context

		funcs map[*tree.FuncDecl]ir.FuncID
		aggs  []ir.AggregateID

		fn  ir.FuncID
		cur ir.BlockID

		vars map[string]ir.ValueID

		blocks int
	}
)

func Gen(ctx context.Context, prog *tree.Program, reg *source.Registry) (r Result, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "irgen", "funcs", len(prog.Funcs))
	defer tr.Finish("err", &err)

	g := &gen{
		ic:    ir.NewContext(reg),
		funcs: map[*tree.FuncDecl]ir.FuncID{},
	}

	for _, a := range prog.Aggregates {
		g.aggs = append(g.aggs, g.ic.AddAggregate(ir.Aggregate{
			Kind:   ir.AggStruct,
			Name:   a.Name,
			Fields: a.Fields,
		}))
	}

	for _, f := range prog.Funcs {
		g.funcs[f] = g.ic.NewFunc(f.Name, purity(f.Purity), f.Span)
	}

	for _, f := range prog.Funcs {
		err = g.fun(ctx, f)
		if err != nil {
			return r, errors.Wrap(err, "func %v", f.Name)
		}
	}

	return Result{Context: g.ic, Funcs: g.funcs, Aggs: g.aggs}, nil
}

func purity(p tree.Purity) (q ir.Purity) {
	if p&tree.Reads != 0 {
		q |= ir.PurityReads
	}
	if p&tree.Writes != 0 {
		q |= ir.PurityWrites
	}

	return q
}

func (g *gen) fun(ctx context.Context, f *tree.FuncDecl) (err error) {
	g.fn = g.funcs[f]
	g.vars = map[string]ir.ValueID{}
	g.blocks = 0

	g.cur = g.ic.NewBlock(g.fn, "entry")

	for i, p := range f.Params {
		arg := g.ic.Append(g.cur, ir.Argument{N: i, Name: p.Name})
		g.ic.Attach(arg, g.ic.SpanMetadatum(p.Span))
		g.vars[p.Name] = arg

		g.ic.AddLocal(g.fn, p.Name, p.Span)
	}

	val, err := g.expr(ctx, f.Body)
	if err != nil {
		return err
	}

	g.ic.Append(g.cur, ir.Ret{Val: val})

	return nil
}

func (g *gen) block(pref string) ir.BlockID {
	g.blocks++

	return g.ic.NewBlock(g.fn, fmt.Sprintf("%v%d", pref, g.blocks))
}

func (g *gen) expr(ctx context.Context, x tree.Expr) (res ir.ValueID, err error) {
	switch x := x.(type) {
	case tree.Literal:
		res = g.emit(ir.Uint(x.Val), x.Span())
	case tree.VarRef:
		v, ok := g.vars[x.Name]
		if !ok {
			return ir.NoValue, errors.New("unresolved variable %v escaped the checking stage", x.Name)
		}

		res = v
	case tree.Binary:
		res, err = g.binary(ctx, x)
	case tree.Apply:
		res, err = g.apply(ctx, x)
	case tree.Let:
		res, err = g.let(ctx, x)
	case tree.If:
		res, err = g.iff(ctx, x)
	case tree.Match:
		res, err = g.match(ctx, x)
	case tree.StorageRead:
		slot, err := g.expr(ctx, x.Slot)
		if err != nil {
			return ir.NoValue, err
		}

		res = g.emit(ir.StateLoad{Slot: slot}, x.Span())
	case tree.StorageWrite:
		slot, err := g.expr(ctx, x.Slot)
		if err != nil {
			return ir.NoValue, err
		}

		val, err := g.expr(ctx, x.Val)
		if err != nil {
			return ir.NoValue, err
		}

		res = g.emit(ir.StateStore{Slot: slot, Val: val}, x.Span())
	case tree.Asm:
		ops := make([]ir.AsmInstr, len(x.Ops))
		for i, op := range x.Ops {
			ops[i] = ir.AsmInstr{Op: op.Op, Args: op.Args}
		}

		res = g.emit(ir.AsmBlock{Ops: ops, Ret: x.Ret}, x.Span())
	case tree.StructLit:
		res, err = g.structLit(ctx, x)
	case tree.FieldSet:
		agg, err := g.expr(ctx, x.Target)
		if err != nil {
			return ir.NoValue, err
		}

		val, err := g.expr(ctx, x.Val)
		if err != nil {
			return ir.NoValue, err
		}

		res = g.emit(ir.InsertValue{Agg: agg, Index: x.Index, Val: val}, x.Span())
	default:
		return ir.NoValue, errors.New("unhandled expression %T", x)
	}

	return res, err
}

func (g *gen) emit(x ir.Content, sp source.Span) ir.ValueID {
	id := g.ic.Append(g.cur, x)

	if sp != (source.Span{}) {
		g.ic.Attach(id, g.ic.SpanMetadatum(sp))
	}

	return id
}

func (g *gen) binary(ctx context.Context, x tree.Binary) (ir.ValueID, error) {
	l, err := g.expr(ctx, x.L)
	if err != nil {
		return ir.NoValue, err
	}

	r, err := g.expr(ctx, x.R)
	if err != nil {
		return ir.NoValue, err
	}

	return g.emit(ir.BinaryOp{Op: binop(x.Op), L: l, R: r}, x.Span()), nil
}

func binop(op tree.BinOp) ir.BinOp {
	switch op {
	case tree.Add:
		return ir.OpAdd
	case tree.Sub:
		return ir.OpSub
	case tree.Mul:
		return ir.OpMul
	case tree.Div:
		return ir.OpDiv
	case tree.BitAnd:
		return ir.OpAnd
	case tree.BitOr:
		return ir.OpOr
	case tree.Xor:
		return ir.OpXor
	case tree.Eq:
		return ir.OpEq
	case tree.Lt:
		return ir.OpLt
	default:
		panic(fmt.Sprintf("unhandled binop %d", int(op)))
	}
}

func (g *gen) apply(ctx context.Context, x tree.Apply) (ir.ValueID, error) {
	fid, ok := g.funcs[x.Callee]
	if !ok {
		return ir.NoValue, errors.New("call to undeclared function %v", x.Callee.Name)
	}

	args := make([]ir.ValueID, len(x.Args))

	for i, a := range x.Args {
		v, err := g.expr(ctx, a)
		if err != nil {
			return ir.NoValue, err
		}

		args[i] = v
	}

	return g.emit(ir.Call{Callee: fid, Args: args}, x.Span()), nil
}

func (g *gen) let(ctx context.Context, x tree.Let) (ir.ValueID, error) {
	init, err := g.expr(ctx, x.Init)
	if err != nil {
		return ir.NoValue, err
	}

	g.ic.AddLocal(g.fn, x.Name, x.Span())

	shadow, had := g.vars[x.Name]
	g.vars[x.Name] = init

	res, err := g.expr(ctx, x.Body)

	if had {
		g.vars[x.Name] = shadow
	} else {
		delete(g.vars, x.Name)
	}

	return res, err
}

// iff lowers a conditional into a block diamond with a joint-block phi
// holding one entry per incoming edge.
func (g *gen) iff(ctx context.Context, x tree.If) (ir.ValueID, error) {
	cond, err := g.expr(ctx, x.Cond)
	if err != nil {
		return ir.NoValue, err
	}

	then := g.block("if.then.")
	els := g.block("if.else.")
	join := g.block("if.join.")

	g.emit(ir.ConditionalBranch{Cond: cond, True: then, False: els}, x.Span())

	g.cur = then
	tv, err := g.expr(ctx, x.Then)
	if err != nil {
		return ir.NoValue, err
	}
	tEnd := g.cur
	g.ic.Append(tEnd, ir.Branch{To: join})

	g.cur = els
	ev, err := g.expr(ctx, x.Else)
	if err != nil {
		return ir.NoValue, err
	}
	eEnd := g.cur
	g.ic.Append(eEnd, ir.Branch{To: join})

	g.ic.AddPhiEntry(join, tEnd, tv)
	g.ic.AddPhiEntry(join, eEnd, ev)

	g.cur = join

	phi, _ := g.ic.BlockPhi(join)

	return phi, nil
}

// match lowers to the fixed shape: the scrutinee is evaluated once,
// then one test per arm jumps to that arm's block; every arm ends in a
// branch to a single join block carrying its result through the phi.
func (g *gen) match(ctx context.Context, x tree.Match) (ir.ValueID, error) {
	if len(x.Arms) == 0 {
		return ir.NoValue, errors.New("empty match escaped the checking stage")
	}

	scrut, err := g.expr(ctx, x.Scrutinee)
	if err != nil {
		return ir.NoValue, err
	}

	// blocks are created in layout order: the test chain, then the
	// arm bodies, then the join, so linearization gives the fixed
	// shape of one conditional jump per arm followed by the bodies
	// and a single shared end label.
	n := len(x.Arms)

	tests := make([]ir.BlockID, n-1)
	for i := range tests {
		tests[i] = g.block("match.test.")
	}

	arms := make([]ir.BlockID, n)
	for i := range arms {
		arms[i] = g.block("match.arm.")
	}

	join := g.block("match.join.")

	for i, arm := range x.Arms {
		disc := g.emit(ir.Uint(arm.Discriminant), arm.Span)
		cmp := g.emit(ir.BinaryOp{Op: ir.OpEq, L: scrut, R: disc}, arm.Span)

		next := arms[0]
		if i < n-1 {
			next = tests[i]
		}

		// the last test's miss edge targets the first body: a miss
		// there cannot happen in a checked program, exhaustiveness is
		// proven upstream
		g.emit(ir.ConditionalBranch{Cond: cmp, True: arms[i], False: next}, arm.Span)

		if i < n-1 {
			g.cur = tests[i]
		}
	}

	for i, arm := range x.Arms {
		g.cur = arms[i]

		v, err := g.expr(ctx, arm.Body)
		if err != nil {
			return ir.NoValue, err
		}

		end := g.cur
		g.ic.Append(end, ir.Branch{To: join})
		g.ic.AddPhiEntry(join, end, v)
	}

	g.cur = join

	phi, _ := g.ic.BlockPhi(join)

	return phi, nil
}

func (g *gen) structLit(ctx context.Context, x tree.StructLit) (ir.ValueID, error) {
	if x.Agg < 0 || x.Agg >= len(g.aggs) {
		return ir.NoValue, errors.New("aggregate %d out of range", x.Agg)
	}

	agg := g.aggs[x.Agg]
	n := g.ic.Aggregate(agg).Fields

	zero := ir.StructConst(agg, make([]ir.Constant, n))
	for i := range zero.Fields {
		zero.Fields[i] = ir.Uint(0)
	}

	res := g.emit(zero, x.Span())

	for i, f := range x.Fields {
		v, err := g.expr(ctx, f)
		if err != nil {
			return ir.NoValue, err
		}

		res = g.emit(ir.InsertValue{Agg: res, Index: i, Val: v}, x.Span())
	}

	return res, nil
}
