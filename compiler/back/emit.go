package back

import (
	"context"
	"encoding/binary"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/lodelang/lode/compiler/asm"
	"github.com/lodelang/lode/compiler/diag"
	"github.com/lodelang/lode/compiler/source"
)

type (
	// Object is the emitted artifact: fixed-width bytecode, the data
	// section that follows it and the source map.
	Object struct {
		Bytecode []byte
		Data     []byte

		Map SourceMap
	}
)

// InstrSize is the fixed instruction width in bytes. Jump immediates
// count instructions, not bytes.
const InstrSize = 4

// Emit encodes allocated ops into bytecode. Labels become instruction
// indexes, LWD references become byte offsets into the data section.
// Immediates that do not fit their field are reported through the
// sink, all of them, before emission fails.
func Emit(ctx context.Context, ops []asm.AllocatedOp, data *asm.DataSection, reg *source.Registry, sink *diag.Sink) (_ *Object, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "emit", "ops", len(ops))
	defer tr.Finish("err", &err)

	target := map[asm.Label]uint64{}
	pc := uint64(0)

	for i := range ops {
		if ops[i].Opcode == asm.LABEL {
			target[ops[i].Label] = pc
			continue
		}

		pc++
	}

	o := &Object{
		Bytecode: make([]byte, 0, pc*InstrSize),
		Data:     data.Serialize(),
	}

	pc = 0

	for i := range ops {
		op := &ops[i]

		if op.Opcode == asm.LABEL {
			continue
		}

		word, err := encode(op, target, data, sink)
		if err != nil {
			return nil, errors.Wrap(err, "op %d (%v)", i, op.Opcode)
		}

		o.Bytecode = binary.BigEndian.AppendUint32(o.Bytecode, word)

		if p, ok := reg.Resolve(op.Span); ok {
			o.Map.add(pc*InstrSize, (pc+1)*InstrSize, p.Name, p.StartLine)
		}

		pc++
	}

	if sink.HasErrorsOf(diag.Encoding) {
		return nil, errors.New("bytecode does not encode")
	}

	tr.Printw("emitted", "code_bytes", len(o.Bytecode), "data_bytes", len(o.Data))

	return o, nil
}

// encode packs one instruction: an opcode byte, then 6 bits per
// register operand, then the immediate field filling the rest of the
// word.
func encode(op *asm.AllocatedOp, target map[asm.Label]uint64, data *asm.DataSection, sink *diag.Sink) (uint32, error) {
	word := uint32(op.Opcode) << 24

	shift := 24

	for _, r := range op.Regs {
		if r.IsVirtual() {
			return 0, errors.New("virtual register %v survived allocation", r)
		}

		shift -= 6
		word |= uint32(r) << shift
	}

	imm, ok, err := immediate(op, target, data)
	if err != nil {
		return 0, err
	}

	if !ok {
		return word, nil
	}

	width := op.Opcode.ImmWidth()
	if width == 0 {
		return 0, errors.New("%v carries an immediate but has no field for it", op.Opcode)
	}

	if imm >= 1<<width {
		sink.Errorf(diag.Encoding, op.Span, "immediate %d too large for the %d-bit field of %v", imm, width, op.Opcode)

		return word, nil
	}

	return word | uint32(imm), nil
}

func immediate(op *asm.AllocatedOp, target map[asm.Label]uint64, data *asm.DataSection) (uint64, bool, error) {
	if l := jump(op); l != asm.NoLabel {
		pc, ok := target[l]
		if !ok {
			return 0, false, errors.New("unresolved label %v", l)
		}

		return pc, true, nil
	}

	if op.Opcode == asm.LWD {
		if op.Data == asm.NoData {
			return 0, false, errors.New("lwd without a data reference")
		}

		return data.Offset(op.Data), true, nil
	}

	if op.Imm == nil {
		return 0, false, nil
	}

	return op.Imm.Value(), true, nil
}

func jump(op *asm.AllocatedOp) asm.Label {
	x := asm.Op(*op)

	return x.Jump()
}
