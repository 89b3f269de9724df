package asm

import (
	"fmt"

	"github.com/lodelang/lode/compiler/source"
)

type (
	VirtualImmediate06 struct{ raw uint64 }
	VirtualImmediate12 struct{ raw uint64 }
	VirtualImmediate18 struct{ raw uint64 }
	VirtualImmediate24 struct{ raw uint64 }

	ImmediateTooLargeError struct {
		Raw   uint64
		Width int
		Span  source.Span
	}
)

func (e ImmediateTooLargeError) Error() string {
	return fmt.Sprintf("immediate %d too large for a %d-bit field", e.Raw, e.Width)
}

func immCheck(raw uint64, width int, sp source.Span) error {
	if raw < 1<<width {
		return nil
	}

	return ImmediateTooLargeError{Raw: raw, Width: width, Span: sp}
}

func NewVirtualImmediate06(raw uint64, sp source.Span) (VirtualImmediate06, error) {
	return VirtualImmediate06{raw}, immCheck(raw, 6, sp)
}

func NewVirtualImmediate12(raw uint64, sp source.Span) (VirtualImmediate12, error) {
	return VirtualImmediate12{raw}, immCheck(raw, 12, sp)
}

func NewVirtualImmediate18(raw uint64, sp source.Span) (VirtualImmediate18, error) {
	return VirtualImmediate18{raw}, immCheck(raw, 18, sp)
}

func NewVirtualImmediate24(raw uint64, sp source.Span) (VirtualImmediate24, error) {
	return VirtualImmediate24{raw}, immCheck(raw, 24, sp)
}

func (i VirtualImmediate06) Value() uint64 { return i.raw }
func (i VirtualImmediate12) Value() uint64 { return i.raw }
func (i VirtualImmediate18) Value() uint64 { return i.raw }
func (i VirtualImmediate24) Value() uint64 { return i.raw }

func (i VirtualImmediate06) Width() int { return 6 }
func (i VirtualImmediate12) Width() int { return 12 }
func (i VirtualImmediate18) Width() int { return 18 }
func (i VirtualImmediate24) Width() int { return 24 }
