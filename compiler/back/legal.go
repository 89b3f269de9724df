package back

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/lodelang/lode/compiler/asm"
	"github.com/lodelang/lode/compiler/diag"
)

// Opcodes touching state, assets or the contract call frame are
// meaningless outside contract code.
var contractOnly = map[asm.Opcode]struct{}{
	asm.SRW:  {},
	asm.SRWQ: {},
	asm.SWW:  {},
	asm.SWWQ: {},
	asm.MINT: {},
	asm.BURN: {},
}

// Predicates are pure verification code: no state, no side effects, no
// chain introspection.
var predicateBanned = map[asm.Opcode]struct{}{
	asm.BAL:  {},
	asm.BHEI: {},
	asm.BHSH: {},
	asm.BURN: {},
	asm.CALL: {},
	asm.CB:   {},
	asm.CCP:  {},
	asm.CROO: {},
	asm.CSIZ: {},
	asm.LDC:  {},
	asm.LOG:  {},
	asm.LOGD: {},
	asm.MINT: {},
	asm.RETD: {},
	asm.SMO:  {},
	asm.SRW:  {},
	asm.SRWQ: {},
	asm.SWW:  {},
	asm.SWWQ: {},
	asm.TIME: {},
	asm.TR:   {},
	asm.TRO:  {},
}

// CheckScriptOpcodes reports every op a script is not allowed to
// execute. All violations are collected so one run surfaces them all.
func CheckScriptOpcodes(ctx context.Context, ops []asm.AllocatedOp, sink *diag.Sink) {
	tr := tlog.SpanFromContext(ctx)

	for i := range ops {
		op := &ops[i]

		if _, ok := contractOnly[op.Opcode]; ok {
			sink.Errorf(diag.Legality, op.Span, "%v cannot be used in a script", op.Opcode)
			continue
		}

		checkGM(op, sink, false)
	}

	tr.V("legal").Printw("script checked", "ops", len(ops), "errors", len(sink.Errors))
}

// CheckPredicateOpcodes reports every op a predicate is not allowed to
// execute.
func CheckPredicateOpcodes(ctx context.Context, ops []asm.AllocatedOp, sink *diag.Sink) {
	tr := tlog.SpanFromContext(ctx)

	for i := range ops {
		op := &ops[i]

		if _, ok := predicateBanned[op.Opcode]; ok {
			sink.Errorf(diag.Legality, op.Span, "%v cannot be used in a predicate", op.Opcode)
			continue
		}

		checkGM(op, sink, false)
	}

	tr.V("legal").Printw("predicate checked", "ops", len(ops), "errors", len(sink.Errors))
}

// CheckContractOpcodes allows the full instruction set, including the
// caller-observing GM submodes.
func CheckContractOpcodes(ctx context.Context, ops []asm.AllocatedOp, sink *diag.Sink) {
	tr := tlog.SpanFromContext(ctx)

	for i := range ops {
		checkGM(&ops[i], sink, true)
	}

	tr.V("legal").Printw("contract checked", "ops", len(ops), "errors", len(sink.Errors))
}

func checkGM(op *asm.AllocatedOp, sink *diag.Sink, contract bool) {
	if op.Opcode != asm.GM || contract || op.Imm == nil {
		return
	}

	switch op.Imm.Value() {
	case asm.GMIsCallerExternal, asm.GMGetCaller:
		sink.Errorf(diag.Legality, op.Span, "gm submode %d observes the call frame, it is valid only in a contract", op.Imm.Value())
	}
}
