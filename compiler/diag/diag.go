package diag

import (
	"fmt"

	"github.com/lodelang/lode/compiler/source"
)

type (
	Kind int

	Diagnostic struct {
		Kind Kind
		Span source.Span
		Msg  string
	}

	// Sink accumulates user-facing diagnostics so one invocation
	// surfaces every independent problem. Internal invariant
	// violations never go through it.
	Sink struct {
		Errors   []Diagnostic
		Warnings []Diagnostic
	}
)

const (
	Encoding Kind = iota
	Purity
	Legality
)

func (k Kind) String() string {
	switch k {
	case Encoding:
		return "encoding"
	case Purity:
		return "purity"
	case Legality:
		return "legality"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (s *Sink) Errorf(k Kind, sp source.Span, format string, args ...any) {
	s.Errors = append(s.Errors, Diagnostic{Kind: k, Span: sp, Msg: fmt.Sprintf(format, args...)})
}

func (s *Sink) Warnf(k Kind, sp source.Span, format string, args ...any) {
	s.Warnings = append(s.Warnings, Diagnostic{Kind: k, Span: sp, Msg: fmt.Sprintf(format, args...)})
}

func (s *Sink) HasErrors() bool {
	return len(s.Errors) != 0
}

// HasErrorsOf reports whether any recorded error is of kind k.
func (s *Sink) HasErrorsOf(k Kind) bool {
	for _, d := range s.Errors {
		if d.Kind == k {
			return true
		}
	}

	return false
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%v: %v", d.Kind, d.Msg)
}
