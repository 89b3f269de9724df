package asm

import (
	"github.com/nikandfor/hacked/hfmt"
)

// AppendListing renders ops as a readable assembly listing.
func AppendListing(b []byte, ops []Op) []byte {
	for i := range ops {
		b = appendOp(b, &ops[i])
	}

	return b
}

func AppendAllocatedListing(b []byte, ops []AllocatedOp) []byte {
	for i := range ops {
		op := Op(ops[i])
		b = appendOp(b, &op)
	}

	return b
}

func appendOp(b []byte, op *Op) []byte {
	if op.Opcode == LABEL {
		return hfmt.Appendf(b, "%v:\n", op.Label)
	}

	b = hfmt.Appendf(b, "\t%-5s", op.Opcode.Mnemonic())

	for _, r := range op.Regs {
		b = hfmt.Appendf(b, " %v", r)
	}

	switch {
	case op.Data != NoData:
		b = hfmt.Appendf(b, " data_%d", int(op.Data))
	case op.Jump() != NoLabel:
		b = hfmt.Appendf(b, " %v", op.Label)
	case op.Imm != nil:
		b = hfmt.Appendf(b, " %d", op.Imm.Value())
	}

	if op.Comment != "" {
		b = hfmt.Appendf(b, "\t; %s", op.Comment)
	}

	b = append(b, '\n')

	return b
}
