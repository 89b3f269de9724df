// Package tree is the typed, name-resolved program tree the pipeline
// consumes. Parsing, name resolution and type inference happen
// upstream; everything here is already checked.
package tree

import (
	"github.com/lodelang/lode/compiler/asm"
	"github.com/lodelang/lode/compiler/source"
)

type (
	ProgramKind int

	// Purity is the function's declared storage attribute.
	Purity uint8

	Program struct {
		Kind  ProgramKind
		Funcs []*FuncDecl

		// Entry is the function the unit starts executing at.
		Entry *FuncDecl

		Aggregates []Aggregate
	}

	Aggregate struct {
		Name   string
		Fields int
	}

	FuncDecl struct {
		Name   string
		Params []Param
		Purity Purity
		Body   Expr
		Span   source.Span
	}

	Param struct {
		Name string
		Span source.Span
	}

	Expr interface {
		Span() source.Span
		expr()
	}

	Base struct {
		Sp source.Span
	}

	Literal struct {
		Base

		Val uint64
	}

	VarRef struct {
		Base

		Name string
	}

	BinOp int

	Binary struct {
		Base

		Op   BinOp
		L, R Expr
	}

	// Apply is a call to a named function; callees are resolved
	// upstream, so the declaration is linked directly.
	Apply struct {
		Base

		Callee *FuncDecl
		Args   []Expr
	}

	Arm struct {
		Discriminant uint64
		Body         Expr
		Span         source.Span
	}

	// Match is exhaustive by construction: the excluded checking
	// stage has already proven arm coverage.
	Match struct {
		Base

		Scrutinee Expr
		Arms      []Arm
	}

	Let struct {
		Base

		Name string
		Init Expr
		Body Expr
	}

	If struct {
		Base

		Cond Expr
		Then Expr
		Else Expr
	}

	StorageRead struct {
		Base

		Slot Expr
	}

	StorageWrite struct {
		Base

		Slot Expr
		Val  Expr
	}

	AsmOp struct {
		Op   asm.Opcode
		Args []string
		Span source.Span
	}

	// Asm is an inline assembly block; Ret names the pseudo register
	// holding the block's result, empty for unit.
	Asm struct {
		Base

		Ops []AsmOp
		Ret string
	}

	StructLit struct {
		Base

		Agg    int
		Fields []Expr
	}

	// FieldSet is the source form of InsertValue: a copy of Target
	// with one field overwritten.
	FieldSet struct {
		Base

		Target Expr
		Index  int
		Val    Expr
	}
)

const (
	Script ProgramKind = iota
	Predicate
	Contract
)

const (
	Reads Purity = 1 << iota
	Writes
)

const (
	Add BinOp = iota
	Sub
	Mul
	Div
	BitAnd
	BitOr
	Xor
	Eq
	Lt
)

func (k ProgramKind) String() string {
	switch k {
	case Script:
		return "script"
	case Predicate:
		return "predicate"
	case Contract:
		return "contract"
	default:
		return "program"
	}
}

func (b Base) Span() source.Span { return b.Sp }

func (Literal) expr()      {}
func (VarRef) expr()       {}
func (Binary) expr()       {}
func (Apply) expr()        {}
func (Match) expr()        {}
func (Let) expr()          {}
func (If) expr()           {}
func (StorageRead) expr()  {}
func (StorageWrite) expr() {}
func (Asm) expr()          {}
func (StructLit) expr()    {}
func (FieldSet) expr()     {}
