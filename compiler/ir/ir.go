package ir

import (
	"fmt"

	"tlog.app/go/loc"

	"github.com/lodelang/lode/compiler/source"
)

type (
	FuncID      int
	BlockID     int
	ValueID     int
	MetadataID  int
	AggregateID int
	LocalID     int

	// Context owns the arenas of one compilation unit. All
	// cross-references are arena indices, never pointers. A Context
	// is owned by exactly one goroutine for its whole lifetime.
	Context struct {
		funcs  []Function
		blocks []Block
		values []value
		meta   []Metadatum
		aggs   []Aggregate
		locals []LocalVar

		Source *source.Registry
	}

	Function struct {
		Name   string
		Blocks []BlockID
		Locals []LocalID
		Purity Purity
		Span   source.Span
	}

	Block struct {
		Func   FuncID
		Label  string
		Instrs []ValueID
	}

	value struct {
		content Content
		meta    MetadataID
	}

	// Content of a value: Argument, Constant or one of the closed
	// instruction variants.
	Content interface{ content() }

	LocalVar struct {
		Name string
		Span source.Span
	}

	AggKind int

	// Aggregate is a struct/array type descriptor stored once per
	// Context and referenced by index.
	Aggregate struct {
		Kind   AggKind
		Name   string
		Fields int
	}

	// Purity is the declared storage behavior of a function.
	Purity uint8

	// FatalError marks a broken internal invariant: a dangling
	// handle, a phi missing a reachable predecessor, an impossible
	// variant. It is never presented as a user diagnostic.
	FatalError struct {
		Msg  string
		From loc.PC
	}
)

const (
	AggStruct AggKind = iota
	AggArray
)

const (
	PurityReads Purity = 1 << iota
	PurityWrites
)

const (
	NoValue ValueID    = -1
	NoMeta  MetadataID = -1
	NoBlock BlockID    = -1
)

func (p Purity) Reads() bool  { return p&PurityReads != 0 }
func (p Purity) Writes() bool { return p&PurityWrites != 0 }

func (p Purity) String() string {
	switch {
	case p.Reads() && p.Writes():
		return "storage(read, write)"
	case p.Reads():
		return "storage(read)"
	case p.Writes():
		return "storage(write)"
	default:
		return "pure"
	}
}

func (e FatalError) Error() string {
	return fmt.Sprintf("internal: %v (from %v)", e.Msg, e.From)
}

func fatal(format string, args ...any) FatalError {
	return FatalError{
		Msg:  fmt.Sprintf(format, args...),
		From: loc.Caller(2),
	}
}

// Fatalf builds an internal invariant violation error pinned to the
// caller. These never go through the diagnostic sink.
func Fatalf(format string, args ...any) FatalError {
	return FatalError{
		Msg:  fmt.Sprintf(format, args...),
		From: loc.Caller(1),
	}
}

func NewContext(reg *source.Registry) *Context {
	if reg == nil {
		reg = source.NewRegistry()
	}

	return &Context{Source: reg}
}

func (c *Context) NewFunc(name string, purity Purity, sp source.Span) FuncID {
	c.funcs = append(c.funcs, Function{Name: name, Purity: purity, Span: sp})

	return FuncID(len(c.funcs) - 1)
}

func (c *Context) Func(id FuncID) *Function {
	if id < 0 || int(id) >= len(c.funcs) {
		panic(fatal("dangling func handle %d", id))
	}

	return &c.funcs[id]
}

func (c *Context) Block(id BlockID) *Block {
	if id < 0 || int(id) >= len(c.blocks) {
		panic(fatal("dangling block handle %d", id))
	}

	return &c.blocks[id]
}

func (c *Context) AddValue(x Content) ValueID {
	c.values = append(c.values, value{content: x, meta: NoMeta})

	return ValueID(len(c.values) - 1)
}

func (c *Context) Value(id ValueID) Content {
	if id < 0 || int(id) >= len(c.values) {
		panic(fatal("dangling value handle %d", id))
	}

	return c.values[id].content
}

// SetValue overwrites the content of an existing value in place,
// keeping its handle and metadata. Optimizations use it to replace a
// proven-equivalent instruction.
func (c *Context) SetValue(id ValueID, x Content) {
	if id < 0 || int(id) >= len(c.values) {
		panic(fatal("dangling value handle %d", id))
	}

	c.values[id].content = x
}

func (c *Context) AddAggregate(a Aggregate) AggregateID {
	c.aggs = append(c.aggs, a)

	return AggregateID(len(c.aggs) - 1)
}

func (c *Context) Aggregate(id AggregateID) *Aggregate {
	if id < 0 || int(id) >= len(c.aggs) {
		panic(fatal("dangling aggregate handle %d", id))
	}

	return &c.aggs[id]
}

func (c *Context) AddLocal(fn FuncID, name string, sp source.Span) LocalID {
	c.locals = append(c.locals, LocalVar{Name: name, Span: sp})
	id := LocalID(len(c.locals) - 1)

	f := c.Func(fn)
	f.Locals = append(f.Locals, id)

	return id
}

func (c *Context) Local(id LocalID) *LocalVar {
	if id < 0 || int(id) >= len(c.locals) {
		panic(fatal("dangling local handle %d", id))
	}

	return &c.locals[id]
}

func (c *Context) NumValues() int { return len(c.values) }

func (c *Context) Funcs() int { return len(c.funcs) }

// Entry is the function's first block.
func (f *Function) Entry() BlockID {
	if len(f.Blocks) == 0 {
		panic(fatal("function %v has no blocks", f.Name))
	}

	return f.Blocks[0]
}
