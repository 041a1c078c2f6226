package types

import (
	"fmt"
	"strings"
)

// StackFrame is one entry of a runtime backtrace: the name of the function
// and the source line of the call.
type StackFrame struct {
	Function string
	Line     int
}

// RuntimeError is the fatal error produced by the interpreter, the virtual
// machine or natively-compiled code. It carries a message, the source line
// where the error occurred (0 if unknown), and an optional backtrace
// snapshot frozen when the error was raised, innermost frame first.
type RuntimeError struct {
	Msg    string
	Line   int
	Frames []StackFrame
}

func (e *RuntimeError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("Error: line %d: %s", e.Line, e.Msg)
	}
	return "Error: " + e.Msg
}

// Backtrace renders the frames of the error as one "  at <function> (line
// N)" line per frame, innermost first. It returns the empty string if no
// frames were captured.
func (e *RuntimeError) Backtrace() string {
	if len(e.Frames) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, fr := range e.Frames {
		name := fr.Function
		if name == "" {
			name = "<script>"
		}
		fmt.Fprintf(&sb, "  at %s (line %d)\n", name, fr.Line)
	}
	return sb.String()
}
