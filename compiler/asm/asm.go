package asm

import (
	"fmt"

	"tlog.app/go/tlog/tlwire"
)

type (
	// Reg is either a fixed architectural register or a Virtual(n)
	// placeholder minted by a RegisterSequencer.
	Reg int

	Label int

	// RegisterSequencer mints globally unique, monotonically
	// increasing virtual registers and labels for one compilation
	// unit.
	RegisterSequencer struct {
		reg Reg
		lab Label
	}
)

// Architectural registers. Their values are maintained by the machine,
// allocation never assigns them.
const (
	RegZero Reg = iota // always 0
	RegOne             // always 1
	RegOF              // overflow
	RegPC
	RegSSP
	RegSP
	RegFP
	RegHP
	RegErr
	RegGGas
	RegCGas
	RegBal
	RegIS
	RegRet
	RegRetL
	RegFlag

	NumReserved
)

// NumMachine is the total machine register count; ids
// [NumReserved, NumMachine) are allocatable.
const NumMachine = 64

const NoLabel Label = -1

func NewRegisterSequencer() *RegisterSequencer {
	return &RegisterSequencer{
		reg: NumMachine, // virtual ids start past the machine file
	}
}

func (s *RegisterSequencer) Next() Reg {
	r := s.reg
	s.reg++

	return r
}

func (s *RegisterSequencer) NextLabel() Label {
	l := s.lab
	s.lab++

	return l
}

func (r Reg) IsVirtual() bool {
	return r >= NumMachine
}

// IsReserved reports whether r is a fixed architectural register.
func (r Reg) IsReserved() bool {
	return r >= 0 && r < NumReserved
}

func (r Reg) String() string {
	if r.IsVirtual() {
		return fmt.Sprintf("$v%d", int(r-NumMachine))
	}

	switch r {
	case RegZero:
		return "$zero"
	case RegOne:
		return "$one"
	case RegOF:
		return "$of"
	case RegPC:
		return "$pc"
	case RegSSP:
		return "$ssp"
	case RegSP:
		return "$sp"
	case RegFP:
		return "$fp"
	case RegHP:
		return "$hp"
	case RegErr:
		return "$err"
	case RegGGas:
		return "$ggas"
	case RegCGas:
		return "$cgas"
	case RegBal:
		return "$bal"
	case RegIS:
		return "$is"
	case RegRet:
		return "$ret"
	case RegRetL:
		return "$retl"
	case RegFlag:
		return "$flag"
	default:
		return fmt.Sprintf("$r%d", int(r))
	}
}

func (l Label) String() string {
	return fmt.Sprintf(".L%d", int(l))
}

func (r Reg) TlogAppend(b []byte) []byte {
	var e tlwire.Encoder

	return e.AppendString(b, r.String())
}
