// Package scanner tokenizes source files for the parser to consume. It
// collects all scan errors instead of stopping at the first one, and always
// produces a token list terminated by EOF.
package scanner

import (
	"bytes"
	"context"
	"go/scanner"
	gotoken "go/token"
	"os"
	"strconv"
	"strings"

	"github.com/mna/blox/lang/token"
)

type (
	Error     = scanner.Error
	ErrorList = scanner.ErrorList
)

var PrintError = scanner.PrintError

// TokenAndValue combines the token type with the token value type in the same
// struct.
type TokenAndValue struct {
	Token token.Token
	Value token.Value
}

// ScanFile is a helper function that reads and tokenizes a single source
// file. The error, if non-nil, is an ErrorList.
func ScanFile(ctx context.Context, file string) ([]TokenAndValue, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		var el ErrorList
		el.Add(gotoken.Position{Filename: file}, err.Error())
		return nil, el.Err()
	}
	return Scan(file, b)
}

// Scan tokenizes src and returns the token list, terminated by EOF. All scan
// errors are accumulated; if any occurred, the returned error is a non-empty
// ErrorList. The token list is still produced, with illegal characters
// skipped.
func Scan(filename string, src []byte) ([]TokenAndValue, error) {
	var s Scanner
	var el ErrorList
	s.Init(filename, src, el.Add)

	var toks []TokenAndValue
	var tokVal token.Value
	for {
		tok := s.Scan(&tokVal)
		if tok == token.ILLEGAL {
			continue
		}
		toks = append(toks, TokenAndValue{Token: tok, Value: tokVal})
		if tok == token.EOF {
			break
		}
	}
	el.Sort()
	return toks, el.Err()
}

// Scanner tokenizes source text. Init must be called before Scan.
type Scanner struct {
	// immutable state after Init
	filename string
	src      []byte
	err      func(pos gotoken.Position, msg string)

	// mutable scanning state
	sb  strings.Builder // decoded string literal under construction
	off int             // offset of the next byte to read
}

var hashBang = [2]byte{'#', '!'}

// Init initializes the scanner to tokenize a new source. The errHandler, if
// non-nil, is called for each scan error encountered.
func (s *Scanner) Init(filename string, src []byte, errHandler func(gotoken.Position, string)) {
	s.filename = filename
	s.src = src
	s.err = errHandler
	s.sb.Reset()
	s.off = 0

	// skip initial hashbang line if present
	if len(src) >= len(hashBang) && bytes.Equal(src[:len(hashBang)], hashBang[:]) {
		for s.off < len(src) && src[s.off] != '\n' {
			s.off++
		}
		if s.off < len(src) {
			s.off++ // consume the newline too
		}
	}
}

// cur returns the byte at the current offset, or 0 at end of source.
func (s *Scanner) cur() byte {
	if s.off < len(s.src) {
		return s.src[s.off]
	}
	return 0
}

// peek returns the byte following the current one without advancing the
// scanner, or 0 at end of source.
func (s *Scanner) peek() byte {
	if s.off+1 < len(s.src) {
		return s.src[s.off+1]
	}
	return 0
}

func (s *Scanner) eof() bool { return s.off >= len(s.src) }

// advance only if the current byte matches the specified one.
func (s *Scanner) advanceIf(match byte) bool {
	if !s.eof() && s.src[s.off] == match {
		s.off++
		return true
	}
	return false
}

func (s *Scanner) error(off int, msg string) {
	if s.err != nil {
		s.err(token.Position(s.filename, s.src, off), msg)
	}
}

// Scan returns the next token in the source. At end of source it returns
// token.EOF; on an unknown character it reports an error and returns
// token.ILLEGAL with a 1-byte span.
func (s *Scanner) Scan(tokVal *token.Value) token.Token {
	s.skipWhitespaceAndComments()

	start := s.off
	if s.eof() {
		*tokVal = token.Value{Span: token.Span{Off: start}}
		return token.EOF
	}

	cur := s.src[s.off]
	switch {
	case isAlpha(cur):
		lit := s.ident()
		tok := token.IDENT
		if len(lit) > 1 {
			// keywords are longer than one letter - avoid lookup otherwise
			tok = token.LookupKw(lit)
		}
		*tokVal = token.Value{Raw: lit, Span: token.Span{Off: start, Len: len(lit)}}
		return tok

	case isDigit(cur):
		lit := s.number()
		n, _ := strconv.ParseFloat(lit, 64)
		*tokVal = token.Value{Raw: lit, Span: token.Span{Off: start, Len: len(lit)}, Num: n}
		return token.NUMBER

	case cur == '"':
		return s.str(tokVal)
	}

	s.off++
	var tok token.Token
	switch cur {
	case '(':
		tok = token.LPAREN
	case ')':
		tok = token.RPAREN
	case '{':
		tok = token.LBRACE
	case '}':
		tok = token.RBRACE
	case ',':
		tok = token.COMMA
	case '.':
		tok = token.DOT
	case '-':
		tok = token.MINUS
	case '+':
		tok = token.PLUS
	case ';':
		tok = token.SEMICOLON
	case '*':
		tok = token.STAR
	case '/':
		tok = token.SLASH
	case '!':
		tok = token.BANG
		if s.advanceIf('=') {
			tok = token.BANGEQ
		}
	case '=':
		tok = token.EQ
		if s.advanceIf('=') {
			tok = token.EQEQ
		}
	case '>':
		tok = token.GT
		if s.advanceIf('=') {
			tok = token.GE
		}
	case '<':
		tok = token.LT
		if s.advanceIf('=') {
			tok = token.LE
		}
	default:
		s.error(start, "unexpected character '"+string(rune(cur))+"'")
		*tokVal = token.Value{Raw: string(rune(cur)), Span: token.Span{Off: start, Len: 1}}
		return token.ILLEGAL
	}
	raw := string(s.src[start:s.off])
	*tokVal = token.Value{Raw: raw, Span: token.Span{Off: start, Len: s.off - start}}
	return tok
}

func (s *Scanner) skipWhitespaceAndComments() {
	for !s.eof() {
		switch s.src[s.off] {
		case ' ', '\t', '\r', '\n':
			s.off++
		case '/':
			if s.peek() != '/' {
				return
			}
			for !s.eof() && s.src[s.off] != '\n' {
				s.off++
			}
		default:
			return
		}
	}
}

func (s *Scanner) ident() string {
	start := s.off
	for !s.eof() && isAlphaNumeric(s.src[s.off]) {
		s.off++
	}
	return string(s.src[start:s.off])
}

// number scans DIGIT+ ("." DIGIT+)?. A trailing dot not followed by a digit
// is not consumed, so "42.foo" scans as NUMBER(42), DOT, IDENT(foo).
func (s *Scanner) number() string {
	start := s.off
	for !s.eof() && isDigit(s.src[s.off]) {
		s.off++
	}
	if s.cur() == '.' && isDigit(s.peek()) {
		s.off++ // the dot
		for !s.eof() && isDigit(s.src[s.off]) {
			s.off++
		}
	}
	return string(s.src[start:s.off])
}

// str scans a double-quoted string literal, interpreting the \n, \t, \\ and
// \" escape sequences. Unknown escapes pass through as a literal backslash
// followed by the character. An unterminated string is an error at EOF.
func (s *Scanner) str(tokVal *token.Value) token.Token {
	start := s.off
	s.off++ // opening quote
	s.sb.Reset()
	for {
		if s.eof() {
			s.error(start, "unterminated string")
			*tokVal = token.Value{
				Raw:  string(s.src[start:s.off]),
				Span: token.Span{Off: start, Len: s.off - start},
			}
			return token.ILLEGAL
		}
		c := s.src[s.off]
		s.off++
		switch c {
		case '"':
			*tokVal = token.Value{
				Raw:  string(s.src[start:s.off]),
				Span: token.Span{Off: start, Len: s.off - start},
				Str:  s.sb.String(),
			}
			return token.STRING
		case '\\':
			if s.eof() {
				continue // report unterminated on next iteration
			}
			esc := s.src[s.off]
			s.off++
			switch esc {
			case 'n':
				s.sb.WriteByte('\n')
			case 't':
				s.sb.WriteByte('\t')
			case '\\':
				s.sb.WriteByte('\\')
			case '"':
				s.sb.WriteByte('"')
			default:
				// unknown escapes pass through verbatim
				s.sb.WriteByte('\\')
				s.sb.WriteByte(esc)
			}
		default:
			s.sb.WriteByte(c)
		}
	}
}

func isAlpha(b byte) bool {
	return 'a' <= b && b <= 'z' || 'A' <= b && b <= 'Z' || b == '_'
}

func isDigit(b byte) bool { return '0' <= b && b <= '9' }

func isAlphaNumeric(b byte) bool { return isAlpha(b) || isDigit(b) }
