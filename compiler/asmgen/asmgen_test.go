package asmgen

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodelang/lode/compiler/asm"
	"github.com/lodelang/lode/compiler/diag"
	"github.com/lodelang/lode/compiler/irgen"
	"github.com/lodelang/lode/compiler/source"
	"github.com/lodelang/lode/compiler/tree"
)

func lower(tb testing.TB, prog *tree.Program) (*Unit, *diag.Sink) {
	tb.Helper()

	ctx := context.Background()

	res, err := irgen.Gen(ctx, prog, source.NewRegistry())
	require.NoError(tb, err)

	sink := &diag.Sink{}

	u, err := Gen(ctx, res.Context, res.Funcs[prog.Entry], asm.NewRegisterSequencer(), sink)
	require.NoError(tb, err)

	return u, sink
}

func count(ops []asm.Op, o asm.Opcode) (n int) {
	for _, op := range ops {
		if op.Opcode == o {
			n++
		}
	}

	return n
}

func TestVariableShortcut(t *testing.T) {
	// f(a) = let x = a + 1 in x + x
	f := &tree.FuncDecl{
		Name:   "f",
		Params: []tree.Param{{Name: "a"}},
		Body: tree.Let{
			Name: "x",
			Init: tree.Binary{Op: tree.Add, L: tree.VarRef{Name: "a"}, R: tree.Literal{Val: 1}},
			Body: tree.Binary{Op: tree.Add, L: tree.VarRef{Name: "x"}, R: tree.VarRef{Name: "x"}},
		},
	}

	u, _ := lower(t, &tree.Program{Kind: tree.Script, Funcs: []*tree.FuncDecl{f}, Entry: f})

	// x is computed once and reused through its register, so both
	// additions lower and nothing is copied
	assert.Equal(t, 2, count(u.Ops, asm.ADD))
	assert.Equal(t, 0, count(u.Ops, asm.MOVE))

	adds := opsOf(u.Ops, asm.ADD)
	require.Len(t, adds, 2)

	x := adds[0].Regs[0]
	assert.Equal(t, []asm.Reg{adds[1].Regs[0], x, x}, adds[1].Regs)
}

func TestMatchLinearShape(t *testing.T) {
	// f(s) = match s { 1 => 10, 2 => 20, 3 => 30 }
	f := &tree.FuncDecl{
		Name:   "f",
		Params: []tree.Param{{Name: "s"}},
		Body: tree.Match{
			Scrutinee: tree.VarRef{Name: "s"},
			Arms: []tree.Arm{
				{Discriminant: 1, Body: tree.Literal{Val: 10}},
				{Discriminant: 2, Body: tree.Literal{Val: 20}},
				{Discriminant: 3, Body: tree.Literal{Val: 30}},
			},
		},
	}

	u, _ := lower(t, &tree.Program{Kind: tree.Script, Funcs: []*tree.FuncDecl{f}, Entry: f})

	// one conditional jump per arm, one branch to the join per arm,
	// the tests fall through to each other so no other jumps appear
	assert.Equal(t, 3, count(u.Ops, asm.JNZI))
	assert.Equal(t, 3, count(u.Ops, asm.JI))

	jnzi := opsOf(u.Ops, asm.JNZI)
	ji := opsOf(u.Ops, asm.JI)

	// all three tests precede all three arm bodies
	assert.Less(t, index(u.Ops, jnzi[2]), index(u.Ops, ji[0]))

	// every arm targets the same join label and each arm moves its
	// result into the shared phi register before jumping
	join := ji[0].Label
	for _, op := range ji {
		assert.Equal(t, join, op.Label)
	}

	moves := opsOf(u.Ops, asm.MOVE)
	require.Len(t, moves, 3)

	phi := moves[0].Regs[0]
	for _, op := range moves {
		assert.Equal(t, phi, op.Regs[0])
	}

	// the join is the shared end: its label comes after every body and
	// the unit returns the phi register
	last := u.Ops[len(u.Ops)-1]
	require.Equal(t, asm.RET, last.Opcode)
	assert.Equal(t, phi, last.Regs[0])
}

func TestCallInlined(t *testing.T) {
	callee := &tree.FuncDecl{
		Name:   "add1",
		Params: []tree.Param{{Name: "v"}},
		Body:   tree.Binary{Op: tree.Add, L: tree.VarRef{Name: "v"}, R: tree.Literal{Val: 1}},
	}
	entry := &tree.FuncDecl{
		Name: "main",
		Body: tree.Apply{Callee: callee, Args: []tree.Expr{tree.Literal{Val: 41}}},
	}

	u, _ := lower(t, &tree.Program{Kind: tree.Script, Funcs: []*tree.FuncDecl{callee, entry}, Entry: entry})

	// the callee body lands in place, no call instruction survives
	assert.Equal(t, 0, count(u.Ops, asm.CALL))
	assert.Equal(t, 1, count(u.Ops, asm.ADD))
}

func TestRecursionRejected(t *testing.T) {
	f := &tree.FuncDecl{Name: "loop"}
	f.Body = tree.Apply{Callee: f}

	ctx := context.Background()

	res, err := irgen.Gen(ctx, &tree.Program{Kind: tree.Script, Funcs: []*tree.FuncDecl{f}, Entry: f}, source.NewRegistry())
	require.NoError(t, err)

	_, err = Gen(ctx, res.Context, res.Funcs[f], asm.NewRegisterSequencer(), &diag.Sink{})
	require.ErrorContains(t, err, "recursive")
}

func TestWideLiteralsUseDataSection(t *testing.T) {
	f := &tree.FuncDecl{
		Name: "f",
		Body: tree.Binary{
			Op: tree.Add,
			L:  tree.Literal{Val: 5},
			R:  tree.Literal{Val: 1 << 20},
		},
	}

	u, _ := lower(t, &tree.Program{Kind: tree.Script, Funcs: []*tree.FuncDecl{f}, Entry: f})

	assert.Equal(t, 1, count(u.Ops, asm.MOVI))
	assert.Equal(t, 1, count(u.Ops, asm.LWD))
	assert.Equal(t, 1, u.Data.Len())
}

func opsOf(ops []asm.Op, o asm.Opcode) (r []asm.Op) {
	for _, op := range ops {
		if op.Opcode == o {
			r = append(r, op)
		}
	}

	return r
}

func index(ops []asm.Op, x asm.Op) int {
	for i, op := range ops {
		if op.Opcode == x.Opcode && op.Label == x.Label && len(op.Regs) == len(x.Regs) {
			eq := true
			for j := range op.Regs {
				eq = eq && op.Regs[j] == x.Regs[j]
			}

			if eq {
				return i
			}
		}
	}

	return -1
}
