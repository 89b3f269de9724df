package asm

import (
	"github.com/lodelang/lode/compiler/source"
)

type (
	// Opcode is the closed instruction set of the target machine plus
	// the LABEL pseudo op. Purity and legality checks match on it
	// exhaustively, never on mnemonic strings.
	Opcode int

	Immediate interface {
		Value() uint64
		Width() int
	}

	DataID int

	// Op is a symbolic instruction before register allocation:
	// operands may be virtual registers and jump targets are labels.
	Op struct {
		Opcode  Opcode
		Regs    []Reg
		Imm     Immediate
		Label   Label
		Data    DataID
		Comment string
		Span    source.Span
	}

	// AllocatedOp is an op after allocation: machine registers and
	// width-checked immediates only.
	AllocatedOp struct {
		Opcode  Opcode
		Regs    []Reg
		Imm     Immediate
		Label   Label
		Data    DataID
		Comment string
		Span    source.Span
	}

	opInfo struct {
		mnem   string
		regs   int
		imm    int // immediate field width in bits, 0 if none
		writes bool
	}
)

const (
	NOOP Opcode = iota

	// arithmetic and logic
	ADD
	SUB
	MUL
	DIV
	AND
	OR
	XOR
	SLL
	SRL
	EQ
	LT
	NOT
	MOVE
	MOVI

	// memory
	LB
	LW
	SB
	SW
	LWD // load word from the data section
	ALOC
	MCP
	MEQ

	// control
	JI
	JNZI
	JNEI
	JMP
	RET
	RETD

	// blockchain context and contract surface
	BAL
	BHEI
	BHSH
	BURN
	CALL
	CB
	CCP
	CROO
	CSIZ
	LDC
	LOG
	LOGD
	MINT
	SMO
	SRW
	SRWQ
	SWW
	SWWQ
	TIME
	TR
	TRO
	GM

	// pseudo
	LABEL

	numOpcodes
)

// GM submodes. IsCallerExternal and GetCaller observe the call frame
// and are meaningful only inside contract code.
const (
	GMIsCallerExternal uint64 = iota + 1
	GMGetCaller
	GMGetVerifyingPredicate
)

const NoData DataID = -1

var opTable = [numOpcodes]opInfo{
	NOOP: {"noop", 0, 0, false},

	ADD:  {"add", 3, 0, true},
	SUB:  {"sub", 3, 0, true},
	MUL:  {"mul", 3, 0, true},
	DIV:  {"div", 3, 0, true},
	AND:  {"and", 3, 0, true},
	OR:   {"or", 3, 0, true},
	XOR:  {"xor", 3, 0, true},
	SLL:  {"sll", 3, 0, true},
	SRL:  {"srl", 3, 0, true},
	EQ:   {"eq", 3, 0, true},
	LT:   {"lt", 3, 0, true},
	NOT:  {"not", 2, 0, true},
	MOVE: {"move", 2, 0, true},
	MOVI: {"movi", 1, 18, true},

	LB:   {"lb", 2, 12, true},
	LW:   {"lw", 2, 12, true},
	SB:   {"sb", 2, 12, false},
	SW:   {"sw", 2, 12, false},
	LWD:  {"lwd", 1, 18, true},
	ALOC: {"aloc", 1, 0, false},
	MCP:  {"mcp", 3, 0, false},
	MEQ:  {"meq", 4, 0, true},

	JI:   {"ji", 0, 24, false},
	JNZI: {"jnzi", 1, 18, false},
	JNEI: {"jnei", 2, 12, false},
	JMP:  {"jmp", 1, 0, false},
	RET:  {"ret", 1, 0, false},
	RETD: {"retd", 2, 0, false},

	BAL:  {"bal", 3, 0, true},
	BHEI: {"bhei", 1, 0, true},
	BHSH: {"bhsh", 2, 0, false},
	BURN: {"burn", 1, 0, false},
	CALL: {"call", 4, 0, false},
	CB:   {"cb", 1, 0, false},
	CCP:  {"ccp", 4, 0, false},
	CROO: {"croo", 2, 0, false},
	CSIZ: {"csiz", 2, 0, true},
	LDC:  {"ldc", 3, 0, false},
	LOG:  {"log", 4, 0, false},
	LOGD: {"logd", 4, 0, false},
	MINT: {"mint", 1, 0, false},
	SMO:  {"smo", 4, 0, false},
	SRW:  {"srw", 2, 0, true},
	SRWQ: {"srwq", 2, 0, false},
	SWW:  {"sww", 2, 0, false},
	SWWQ: {"swwq", 2, 0, false},
	TIME: {"time", 2, 0, true},
	TR:   {"tr", 3, 0, false},
	TRO:  {"tro", 4, 0, false},
	GM:   {"gm", 1, 18, true},

	LABEL: {"", 0, 0, false},
}

func (o Opcode) Mnemonic() string {
	if o < 0 || o >= numOpcodes {
		return "??"
	}

	return opTable[o].mnem
}

func (o Opcode) String() string { return o.Mnemonic() }

// ImmWidth is the width of the opcode's immediate field in bits, 0 if
// the encoding has none.
func (o Opcode) ImmWidth() int { return opTable[o].imm }

func (o Opcode) regCount() int { return opTable[o].regs }

// WritesDest reports whether the first register operand is written.
func (o Opcode) WritesDest() bool { return opTable[o].writes }

// StoresState reports whether the opcode writes persistent contract
// storage.
func (o Opcode) StoresState() bool {
	return o == SWW || o == SWWQ
}

// LoadsState reports whether the opcode reads persistent contract
// storage.
func (o Opcode) LoadsState() bool {
	return o == SRW || o == SRWQ
}

// Def returns the register defined by the op, or -1.
func (o *Op) Def() Reg {
	if o.Opcode.WritesDest() && len(o.Regs) > 0 {
		return o.Regs[0]
	}

	return -1
}

// Uses returns the registers read by the op.
func (o *Op) Uses() []Reg {
	if o.Opcode.WritesDest() && len(o.Regs) > 0 {
		return o.Regs[1:]
	}

	return o.Regs
}

// Terminal reports whether control never falls through the op.
func (o Opcode) Terminal() bool {
	return o == JI || o == RET || o == RETD
}

// Jump returns the label targeted by a branch op, or NoLabel.
func (o *Op) Jump() Label {
	switch o.Opcode {
	case JI, JNZI, JNEI:
		return o.Label
	default:
		return NoLabel
	}
}
