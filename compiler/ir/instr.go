package ir

import (
	"github.com/lodelang/lode/compiler/asm"
)

type (
	BinOp int

	ConstKind int

	Argument struct {
		N    int
		Name string
	}

	Constant struct {
		Kind   ConstKind
		Uint   uint64
		Agg    AggregateID
		Fields []Constant
	}

	BinaryOp struct {
		Op   BinOp
		L, R ValueID
	}

	Call struct {
		Callee FuncID
		Args   []ValueID
	}

	Branch struct {
		To BlockID
	}

	ConditionalBranch struct {
		Cond        ValueID
		True, False BlockID
	}

	PhiEntry struct {
		Pred BlockID
		Val  ValueID
	}

	Phi struct {
		Entries []PhiEntry
	}

	StateLoad struct {
		Slot ValueID
	}

	StateStore struct {
		Slot ValueID
		Val  ValueID
	}

	AsmInstr struct {
		Op   asm.Opcode
		Args []string
	}

	AsmBlock struct {
		Ops []AsmInstr
		Ret string
	}

	InsertValue struct {
		Agg   ValueID
		Index int
		Val   ValueID
	}

	ExtractValue struct {
		Agg   ValueID
		Index int
	}

	Ret struct {
		Val ValueID
	}
)

const (
	OpAdd BinOp = iota
	OpSub
	OpMul
	OpDiv
	OpAnd
	OpOr
	OpXor
	OpEq
	OpLt
)

const (
	ConstUnit ConstKind = iota
	ConstUint
	ConstStruct
)

func (Argument) content()          {}
func (Constant) content()          {}
func (BinaryOp) content()          {}
func (Call) content()              {}
func (Branch) content()            {}
func (ConditionalBranch) content() {}
func (Phi) content()               {}
func (StateLoad) content()         {}
func (StateStore) content()        {}
func (AsmBlock) content()          {}
func (InsertValue) content()       {}
func (ExtractValue) content()      {}
func (Ret) content()               {}

func (o BinOp) String() string {
	switch o {
	case OpAdd:
		return "add"
	case OpSub:
		return "sub"
	case OpMul:
		return "mul"
	case OpDiv:
		return "div"
	case OpAnd:
		return "and"
	case OpOr:
		return "or"
	case OpXor:
		return "xor"
	case OpEq:
		return "eq"
	case OpLt:
		return "lt"
	default:
		panic(fatal("binop %d", int(o)))
	}
}

// Asm maps the binary op to its machine opcode.
func (o BinOp) Asm() asm.Opcode {
	switch o {
	case OpAdd:
		return asm.ADD
	case OpSub:
		return asm.SUB
	case OpMul:
		return asm.MUL
	case OpDiv:
		return asm.DIV
	case OpAnd:
		return asm.AND
	case OpOr:
		return asm.OR
	case OpXor:
		return asm.XOR
	case OpEq:
		return asm.EQ
	case OpLt:
		return asm.LT
	default:
		panic(fatal("binop %d", int(o)))
	}
}

func Uint(v uint64) Constant {
	return Constant{Kind: ConstUint, Uint: v}
}

func StructConst(agg AggregateID, fields []Constant) Constant {
	return Constant{Kind: ConstStruct, Agg: agg, Fields: fields}
}

// Operands lists the value operands read by the content. Phis are
// handled separately because their operands are keyed by predecessor.
func Operands(x Content) []ValueID {
	switch x := x.(type) {
	case Argument, Constant, Branch, AsmBlock:
		return nil
	case BinaryOp:
		return []ValueID{x.L, x.R}
	case Call:
		return x.Args
	case ConditionalBranch:
		return []ValueID{x.Cond}
	case Phi:
		l := make([]ValueID, len(x.Entries))
		for i, e := range x.Entries {
			l[i] = e.Val
		}

		return l
	case StateLoad:
		return []ValueID{x.Slot}
	case StateStore:
		return []ValueID{x.Slot, x.Val}
	case InsertValue:
		return []ValueID{x.Agg, x.Val}
	case ExtractValue:
		return []ValueID{x.Agg}
	case Ret:
		return []ValueID{x.Val}
	default:
		panic(fatal("unhandled content %T", x))
	}
}

// replaceIn returns a copy of x with every operand reference to old
// replaced by new.
func replaceIn(x Content, old, new ValueID) Content {
	sub := func(v ValueID) ValueID {
		if v == old {
			return new
		}

		return v
	}

	switch x := x.(type) {
	case Argument, Constant, Branch, AsmBlock:
		return x
	case BinaryOp:
		x.L, x.R = sub(x.L), sub(x.R)
		return x
	case Call:
		args := make([]ValueID, len(x.Args))
		for i, a := range x.Args {
			args[i] = sub(a)
		}
		x.Args = args

		return x
	case ConditionalBranch:
		x.Cond = sub(x.Cond)
		return x
	case Phi:
		ee := make([]PhiEntry, len(x.Entries))
		for i, e := range x.Entries {
			ee[i] = PhiEntry{Pred: e.Pred, Val: sub(e.Val)}
		}
		x.Entries = ee

		return x
	case StateLoad:
		x.Slot = sub(x.Slot)
		return x
	case StateStore:
		x.Slot, x.Val = sub(x.Slot), sub(x.Val)
		return x
	case InsertValue:
		x.Agg, x.Val = sub(x.Agg), sub(x.Val)
		return x
	case ExtractValue:
		x.Agg = sub(x.Agg)
		return x
	case Ret:
		x.Val = sub(x.Val)
		return x
	default:
		panic(fatal("unhandled content %T", x))
	}
}

// Terminator reports whether the content ends a block.
func Terminator(x Content) bool {
	switch x.(type) {
	case Branch, ConditionalBranch, Ret:
		return true
	default:
		return false
	}
}
