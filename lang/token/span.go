package token

import gotoken "go/token"

// A Span identifies a contiguous range of bytes in the source text. Every
// token and AST node carries one; it is the unit of position information used
// for error reporting.
type Span struct {
	Off int // byte offset of the first byte
	Len int // length in bytes
}

// End returns the byte offset one past the last byte of the span.
func (s Span) End() int { return s.Off + s.Len }

// Line returns the 1-based line number of offset off in src, computed by
// counting newlines up to (but excluding) the offset.
func Line(src []byte, off int) int {
	if off > len(src) {
		off = len(src)
	}
	line := 1
	for _, b := range src[:off] {
		if b == '\n' {
			line++
		}
	}
	return line
}

// Position converts a byte offset into src to a go/token.Position with
// 1-based line and column, suitable for use in scanner error lists.
func Position(filename string, src []byte, off int) gotoken.Position {
	if off > len(src) {
		off = len(src)
	}
	line, bol := 1, 0
	for i, b := range src[:off] {
		if b == '\n' {
			line++
			bol = i + 1
		}
	}
	return gotoken.Position{
		Filename: filename,
		Offset:   off,
		Line:     line,
		Column:   off - bol + 1,
	}
}
