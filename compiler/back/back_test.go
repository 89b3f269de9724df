package back

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodelang/lode/compiler/asm"
	"github.com/lodelang/lode/compiler/diag"
	"github.com/lodelang/lode/compiler/source"
)

func op(o asm.Opcode, regs ...asm.Reg) asm.Op {
	return asm.Op{Opcode: o, Regs: regs, Label: asm.NoLabel, Data: asm.NoData}
}

func imm18(tb testing.TB, v uint64) asm.Immediate {
	tb.Helper()

	imm, err := asm.NewVirtualImmediate18(v, source.Span{})
	require.NoError(tb, err)

	return imm
}

func TestAllocateDistinctWhenLive(t *testing.T) {
	rs := asm.NewRegisterSequencer()
	a, b, c := rs.Next(), rs.Next(), rs.Next()

	movi := op(asm.MOVI, a)
	movi.Imm = imm18(t, 1)

	movi2 := op(asm.MOVI, b)
	movi2.Imm = imm18(t, 2)

	ops := []asm.Op{
		movi,
		movi2,
		op(asm.ADD, c, a, b), // a and b live together here
		op(asm.RET, c),
	}

	res, err := Allocate(context.Background(), ops)
	require.NoError(t, err)

	ra, rb, rc := res[0].Regs[0], res[1].Regs[0], res[2].Regs[0]

	assert.NotEqual(t, ra, rb)
	assert.False(t, ra.IsVirtual())
	assert.False(t, rb.IsVirtual())

	// c is defined after a and b die, the register file can be reused
	assert.True(t, rc >= asm.NumReserved && rc < asm.NumMachine)
	assert.Equal(t, []asm.Reg{rc, ra, rb}, res[2].Regs)
}

func TestAllocateReusesDeadRegisters(t *testing.T) {
	rs := asm.NewRegisterSequencer()

	var ops []asm.Op

	// a long chain of single-use values needs only two registers
	prev := rs.Next()
	first := op(asm.MOVI, prev)
	first.Imm = imm18(t, 0)
	ops = append(ops, first)

	for i := 0; i < 100; i++ {
		next := rs.Next()
		ops = append(ops, op(asm.ADD, next, prev, prev))
		prev = next
	}

	ops = append(ops, op(asm.RET, prev))

	res, err := Allocate(context.Background(), ops)
	require.NoError(t, err)

	regs := map[asm.Reg]struct{}{}
	for _, o := range res {
		for _, r := range o.Regs {
			require.False(t, r.IsVirtual())
			regs[r] = struct{}{}
		}
	}

	assert.LessOrEqual(t, len(regs), 2)
}

func TestAllocateOverflow(t *testing.T) {
	rs := asm.NewRegisterSequencer()

	var ops []asm.Op
	var all []asm.Reg

	// more simultaneously live values than allocatable registers
	for i := 0; i < asm.NumMachine-int(asm.NumReserved)+1; i++ {
		r := rs.Next()
		all = append(all, r)

		movi := op(asm.MOVI, r)
		movi.Imm = imm18(t, uint64(i))
		ops = append(ops, movi)
	}

	sum := rs.Next()
	ops = append(ops, op(asm.ADD, sum, all[0], all[1]))
	for _, r := range all[2:] {
		next := rs.Next()
		ops = append(ops, op(asm.ADD, next, sum, r))
		sum = next
	}

	ops = append(ops, op(asm.RET, sum))

	_, err := Allocate(context.Background(), ops)
	require.ErrorContains(t, err, "spilling")
}

func TestLivenessAcrossJump(t *testing.T) {
	rs := asm.NewRegisterSequencer()
	a, b := rs.Next(), rs.Next()
	l := rs.NextLabel()

	movi := op(asm.MOVI, a)
	movi.Imm = imm18(t, 1)

	movi2 := op(asm.MOVI, b)
	movi2.Imm = imm18(t, 2)

	jnzi := op(asm.JNZI, b)
	jnzi.Label = l

	lab := asm.Op{Opcode: asm.LABEL, Label: l, Data: asm.NoData}

	ops := []asm.Op{
		movi,  // 0
		movi2, // 1
		jnzi,  // 2: a flows to the label over the edge
		op(asm.RET, b),
		lab, // 4
		op(asm.RET, a),
	}

	live := liveness(context.Background(), ops, true)

	assert.True(t, live.Out[2].IsSet(a))
	assert.True(t, live.In[4].IsSet(a))
	assert.False(t, live.In[5].IsSet(b))
}

func TestLivenessConstRegs(t *testing.T) {
	rs := asm.NewRegisterSequencer()
	a := rs.Next()

	ops := []asm.Op{
		op(asm.ADD, a, asm.RegZero, asm.RegOne), // 0
		op(asm.RET, a),                          // 1
	}

	// allocation never wants the reserved registers in the sets
	live := liveness(context.Background(), ops, true)

	assert.False(t, live.In[0].IsSet(asm.RegZero))
	assert.False(t, live.In[0].IsSet(asm.RegOne))
	assert.True(t, live.In[1].IsSet(a))

	// tracked like any other register otherwise
	live = liveness(context.Background(), ops, false)

	assert.True(t, live.In[0].IsSet(asm.RegZero))
	assert.True(t, live.In[0].IsSet(asm.RegOne))
}

func TestScriptRejectsStateOps(t *testing.T) {
	ops := []asm.AllocatedOp{
		{Opcode: asm.SWW, Regs: []asm.Reg{16, 17}},
		{Opcode: asm.MINT, Regs: []asm.Reg{16}},
		{Opcode: asm.RET, Regs: []asm.Reg{asm.RegZero}},
	}

	sink := &diag.Sink{}
	CheckScriptOpcodes(context.Background(), ops, sink)

	// every violation is reported, not only the first
	require.Len(t, sink.Errors, 2)
	assert.True(t, sink.HasErrorsOf(diag.Legality))

	sink = &diag.Sink{}
	CheckContractOpcodes(context.Background(), ops, sink)
	assert.False(t, sink.HasErrors())
}

func TestPredicateRejectsChainIntrospection(t *testing.T) {
	gm, err := asm.NewVirtualImmediate18(asm.GMGetCaller, source.Span{})
	require.NoError(t, err)

	okGM, err := asm.NewVirtualImmediate18(asm.GMGetVerifyingPredicate, source.Span{})
	require.NoError(t, err)

	ops := []asm.AllocatedOp{
		{Opcode: asm.TIME, Regs: []asm.Reg{16, 17}},
		{Opcode: asm.GM, Regs: []asm.Reg{16}, Imm: gm},
		{Opcode: asm.GM, Regs: []asm.Reg{17}, Imm: okGM},
		{Opcode: asm.RET, Regs: []asm.Reg{asm.RegZero}},
	}

	sink := &diag.Sink{}
	CheckPredicateOpcodes(context.Background(), ops, sink)

	require.Len(t, sink.Errors, 2)
}

func TestContractAllowsCallerIntrospection(t *testing.T) {
	gm, err := asm.NewVirtualImmediate18(asm.GMGetCaller, source.Span{})
	require.NoError(t, err)

	ops := []asm.AllocatedOp{
		{Opcode: asm.GM, Regs: []asm.Reg{16}, Imm: gm},
		{Opcode: asm.SWW, Regs: []asm.Reg{16, 17}},
		{Opcode: asm.RET, Regs: []asm.Reg{asm.RegZero}},
	}

	sink := &diag.Sink{}
	CheckContractOpcodes(context.Background(), ops, sink)

	assert.False(t, sink.HasErrors())
}

func TestEmitEncoding(t *testing.T) {
	data := asm.NewDataSection()

	movi := asm.AllocatedOp{Opcode: asm.MOVI, Regs: []asm.Reg{17}}

	var err error
	movi.Imm, err = asm.NewVirtualImmediate18(5, source.Span{})
	require.NoError(t, err)

	lwd := asm.AllocatedOp{Opcode: asm.LWD, Regs: []asm.Reg{18}, Data: data.Word(1 << 40)}

	l := asm.Label(0)

	ops := []asm.AllocatedOp{
		{Opcode: asm.JI, Label: l}, // 0: jumps over itself
		{Opcode: asm.LABEL, Label: l},
		movi, // 1
		lwd,  // 2
		{Opcode: asm.ADD, Regs: []asm.Reg{19, 17, 18}},
		{Opcode: asm.RET, Regs: []asm.Reg{19}},
	}

	sink := &diag.Sink{}

	o, err := Emit(context.Background(), ops, data, source.NewRegistry(), sink)
	require.NoError(t, err)
	require.False(t, sink.HasErrors())

	require.Len(t, o.Bytecode, 5*InstrSize)
	require.Equal(t, 8, len(o.Data))

	// ji 1: labels resolve to instruction indexes
	w := binary.BigEndian.Uint32(o.Bytecode)
	assert.Equal(t, uint32(asm.JI)<<24|1, w)

	// movi $r17 5
	w = binary.BigEndian.Uint32(o.Bytecode[4:])
	assert.Equal(t, uint32(asm.MOVI)<<24|17<<18|5, w)

	// add $r19 $r17 $r18
	w = binary.BigEndian.Uint32(o.Bytecode[12:])
	assert.Equal(t, uint32(asm.ADD)<<24|19<<18|17<<12|18<<6, w)

	assert.Equal(t, uint64(1<<40), binary.BigEndian.Uint64(o.Data))
}

func TestEmitSourceMap(t *testing.T) {
	reg := source.NewRegistry()
	f := reg.AddFile("main.ld", []byte("line one\nline two\n"))

	sp1 := source.Span{File: f, Start: 0, End: 4}
	sp2 := source.Span{File: f, Start: 9, End: 13}

	ops := []asm.AllocatedOp{
		{Opcode: asm.NOOP, Span: sp1},
		{Opcode: asm.NOOP, Span: sp1},
		{Opcode: asm.NOOP, Span: sp2},
		{Opcode: asm.RET, Regs: []asm.Reg{asm.RegZero}, Span: sp2},
	}

	sink := &diag.Sink{}

	o, err := Emit(context.Background(), ops, asm.NewDataSection(), reg, sink)
	require.NoError(t, err)

	// adjacent instructions on the same line coalesce
	require.Len(t, o.Map.Entries, 2)
	assert.Equal(t, MapEntry{Start: 0, End: 8, File: "main.ld", Line: 1}, o.Map.Entries[0])
	assert.Equal(t, MapEntry{Start: 8, End: 16, File: "main.ld", Line: 2}, o.Map.Entries[1])

	e, ok := o.Map.Lookup(12)
	require.True(t, ok)
	assert.Equal(t, 2, e.Line)

	_, ok = o.Map.Lookup(16)
	assert.False(t, ok)

	// the map round-trips canonically
	b, err := o.Map.Marshal()
	require.NoError(t, err)

	m, err := UnmarshalSourceMap(b)
	require.NoError(t, err)
	require.Equal(t, o.Map.Entries, m.Entries)

	b2, err := m.Marshal()
	require.NoError(t, err)
	assert.Equal(t, b, b2)
}

func TestEmitImmediateOverflowCollected(t *testing.T) {
	l0, l1 := asm.Label(0), asm.Label(1)

	// jnei has a 12-bit target field, put the labels out of reach
	far := make([]asm.AllocatedOp, 0, 5000)

	jnei := asm.AllocatedOp{Opcode: asm.JNEI, Regs: []asm.Reg{16, 17}, Label: l0}
	jnei2 := asm.AllocatedOp{Opcode: asm.JNEI, Regs: []asm.Reg{16, 18}, Label: l1}

	far = append(far, jnei, jnei2)

	for i := 0; i < 4200; i++ {
		far = append(far, asm.AllocatedOp{Opcode: asm.NOOP})
	}

	far = append(far,
		asm.AllocatedOp{Opcode: asm.LABEL, Label: l0},
		asm.AllocatedOp{Opcode: asm.LABEL, Label: l1},
		asm.AllocatedOp{Opcode: asm.RET, Regs: []asm.Reg{asm.RegZero}},
	)

	sink := &diag.Sink{}

	_, err := Emit(context.Background(), far, asm.NewDataSection(), source.NewRegistry(), sink)
	require.Error(t, err)

	// both overflowing jumps are reported
	require.Len(t, sink.Errors, 2)
	assert.True(t, sink.HasErrorsOf(diag.Encoding))
}
