package maincmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/chzyer/readline"
	"github.com/mna/mainer"

	"github.com/mna/blox/lang/ast"
	"github.com/mna/blox/lang/interp"
	"github.com/mna/blox/lang/parser"
	"github.com/mna/blox/lang/resolver"
	"github.com/mna/blox/lang/scanner"
	"github.com/mna/blox/lang/types"
)

const (
	replPrompt     = "> "
	replContPrompt = ".. "
)

// Repl runs the interactive read-eval-print loop. Multi-line input is
// accumulated until braces and parens balance. The global environment
// persists across inputs, and the value of a bare expression is printed.
func (c *Cmd) Repl(ctx context.Context, stdio mainer.Stdio, args []string) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt: replPrompt,
		Stdout: stdio.Stdout,
		Stderr: stdio.Stderr,
	})
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}
	defer rl.Close()

	i := interp.New(stdio.Stdin)
	i.Out = stdio.Stdout

	var pending string
	for {
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			pending = ""
			rl.SetPrompt(replPrompt)
			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			fmt.Fprintln(stdio.Stderr, err)
			return err
		}

		pending += line + "\n"
		if !balanced(pending) {
			rl.SetPrompt(replContPrompt)
			continue
		}
		input := pending
		pending = ""
		rl.SetPrompt(replPrompt)

		c.replEval(stdio, i, input)
	}
}

// replEval compiles and runs one complete input, printing errors without
// terminating the session.
func (c *Cmd) replEval(stdio mainer.Stdio, i *interp.Interp, input string) {
	src := []byte(input)
	prog, err := parser.Parse("<repl>", src)
	if err != nil {
		scanner.PrintError(stdio.Stderr, err)
		return
	}
	info, err := resolver.Resolve("<repl>", src, prog)
	if err != nil {
		scanner.PrintError(stdio.Stderr, err)
		return
	}

	// a single bare expression echoes its value
	if len(prog.Decls) == 1 {
		if sd, ok := prog.Decls[0].(*ast.StmtDecl); ok {
			if es, ok := sd.Stmt.(*ast.ExprStmt); ok {
				v, err := i.Eval("<repl>", src, es.Expr, info)
				if err != nil {
					c.reportError(stdio, err)
					return
				}
				if !types.Equal(v, types.Nil) {
					fmt.Fprintln(stdio.Stdout, v.String())
				}
				return
			}
		}
	}

	if err := i.Run("<repl>", src, prog, info); err != nil {
		c.reportError(stdio, err)
	}
}

// balanced reports whether every brace and paren of s is closed, ignoring
// those inside string literals and comments.
func balanced(s string) bool {
	depth := 0
	inStr, inComment := false, false
	for i := 0; i < len(s); i++ {
		b := s[i]
		switch {
		case inComment:
			if b == '\n' {
				inComment = false
			}
		case inStr:
			if b == '\\' {
				i++
			} else if b == '"' {
				inStr = false
			}
		case b == '"':
			inStr = true
		case b == '/' && i+1 < len(s) && s[i+1] == '/':
			inComment = true
		case b == '{' || b == '(':
			depth++
		case b == '}' || b == ')':
			depth--
		}
	}
	// an unterminated string is left for the scanner to report
	return depth <= 0
}
