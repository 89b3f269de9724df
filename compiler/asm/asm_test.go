package asm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lodelang/lode/compiler/source"
)

func TestImmediateBounds(t *testing.T) {
	for _, tc := range []struct {
		width int
		make  func(raw uint64) (Immediate, error)
	}{
		{6, func(raw uint64) (Immediate, error) { i, err := NewVirtualImmediate06(raw, source.Span{}); return i, err }},
		{12, func(raw uint64) (Immediate, error) { i, err := NewVirtualImmediate12(raw, source.Span{}); return i, err }},
		{18, func(raw uint64) (Immediate, error) { i, err := NewVirtualImmediate18(raw, source.Span{}); return i, err }},
		{24, func(raw uint64) (Immediate, error) { i, err := NewVirtualImmediate24(raw, source.Span{}); return i, err }},
	} {
		max := uint64(1)<<tc.width - 1

		for _, raw := range []uint64{0, 1, max} {
			im, err := tc.make(raw)
			require.NoError(t, err, "width %d raw %d", tc.width, raw)
			assert.Equal(t, raw, im.Value())
			assert.Equal(t, tc.width, im.Width())
		}

		_, err := tc.make(max + 1)
		require.Error(t, err)

		var tooBig ImmediateTooLargeError
		require.ErrorAs(t, err, &tooBig)
		assert.Equal(t, max+1, tooBig.Raw)
		assert.Equal(t, tc.width, tooBig.Width)
	}
}

func TestSequencer(t *testing.T) {
	s := NewRegisterSequencer()

	a := s.Next()
	b := s.Next()
	c := s.Next()

	assert.True(t, a.IsVirtual())
	assert.True(t, a < b && b < c)

	l0 := s.NextLabel()
	l1 := s.NextLabel()
	assert.True(t, l0 < l1)
}

func TestDataSectionDedup(t *testing.T) {
	d := NewDataSection()

	a := d.Word(42)
	b := d.Word(43)
	c := d.Word(42)

	assert.Equal(t, a, c)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, d.Len())

	assert.Equal(t, uint64(0), d.Offset(a))
	assert.Equal(t, uint64(8), d.Offset(b))
	assert.Len(t, d.Serialize(), 16)
}

func TestListing(t *testing.T) {
	movi := Op{Opcode: MOVI, Regs: []Reg{NumMachine}, Label: NoLabel, Data: NoData}

	var err error
	movi.Imm, err = NewVirtualImmediate18(5, source.Span{})
	require.NoError(t, err)

	ops := []Op{
		{Opcode: LABEL, Label: 0, Data: NoData},
		movi,
		{Opcode: ADD, Regs: []Reg{NumMachine + 1, NumMachine, RegZero}, Label: NoLabel, Data: NoData},
		{Opcode: JI, Label: 0, Data: NoData},
	}

	got := string(AppendListing(nil, ops))

	assert.Equal(t, ".L0:\n\tmovi  $v0 5\n\tadd   $v1 $v0 $zero\n\tji    .L0\n", got)
}

func TestUseDef(t *testing.T) {
	add := Op{Opcode: ADD, Regs: []Reg{100, 101, 102}}
	assert.Equal(t, Reg(100), add.Def())
	assert.Equal(t, []Reg{101, 102}, add.Uses())

	sw := Op{Opcode: SW, Regs: []Reg{100, 101}}
	assert.Equal(t, Reg(-1), sw.Def())
	assert.Equal(t, []Reg{100, 101}, sw.Uses())
}
