package maincmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/mna/blox/lang/ast"
	"github.com/mna/blox/lang/compiler"
	"github.com/mna/blox/lang/interp"
	"github.com/mna/blox/lang/machine"
	"github.com/mna/blox/lang/parser"
	"github.com/mna/blox/lang/resolver"
	"github.com/mna/blox/lang/scanner"
	"github.com/mna/blox/lang/types"
)

// frontend runs the scan, parse and resolve phases. Each phase's errors
// prevent the next phase from running.
func frontend(filename string, src []byte) (*ast.Program, *resolver.Info, error) {
	prog, err := parser.Parse(filename, src)
	if err != nil {
		return nil, nil, err
	}
	info, err := resolver.Resolve(filename, src, prog)
	if err != nil {
		return nil, nil, err
	}
	return prog, info, nil
}

// compileSource runs the full front end plus the bytecode compiler.
func compileSource(filename string, src []byte) (*compiler.Chunk, error) {
	prog, _, err := frontend(filename, src)
	if err != nil {
		return nil, err
	}
	return compiler.Compile(filename, src, prog)
}

// reportError prints a compile error list or a runtime error (with its
// backtrace when enabled) to stderr.
func (c *Cmd) reportError(stdio mainer.Stdio, err error) {
	var el scanner.ErrorList
	if errors.As(err, &el) {
		scanner.PrintError(stdio.Stderr, el)
		return
	}
	fmt.Fprintln(stdio.Stderr, err)
	var rerr *types.RuntimeError
	if errors.As(err, &rerr) && c.config.Backtrace {
		if bt := rerr.Backtrace(); bt != "" {
			fmt.Fprint(stdio.Stderr, bt)
		}
	}
}

// Run executes a source file on the tree-walk interpreter (or the VM with
// --vm), or a .blox bytecode file on the VM. With no file it starts the
// REPL.
func (c *Cmd) Run(ctx context.Context, stdio mainer.Stdio, args []string) error {
	if len(args) == 0 {
		return c.Repl(ctx, stdio, nil)
	}
	path := args[0]
	b, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	// persisted bytecode bypasses the front-end stages entirely
	if compiler.IsCompiled(b) {
		ch, err := compiler.Unmarshal(b)
		if err != nil {
			fmt.Fprintln(stdio.Stderr, err)
			return err
		}
		return c.runChunk(stdio, ch)
	}

	if c.VM {
		ch, err := compileSource(path, b)
		if err != nil {
			c.reportError(stdio, err)
			return err
		}
		return c.runChunk(stdio, ch)
	}

	prog, info, err := frontend(path, b)
	if err != nil {
		c.reportError(stdio, err)
		return err
	}
	i := interp.New(stdio.Stdin)
	i.Out = stdio.Stdout
	if err := i.Run(path, b, prog, info); err != nil {
		c.reportError(stdio, err)
		return err
	}
	return nil
}

func (c *Cmd) runChunk(stdio mainer.Stdio, ch *compiler.Chunk) error {
	vm := machine.New(stdio.Stdin)
	vm.Out = stdio.Stdout
	if err := vm.Run(ch); err != nil {
		c.reportError(stdio, err)
		return err
	}
	return nil
}
