package maincmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mna/mainer"

	"github.com/mna/blox/lang/compiler"
)

// outPath derives the output file path from the input path by swapping the
// extension.
func outPath(path, ext string) string {
	return strings.TrimSuffix(path, ".lox") + ext
}

// Compile compiles a source file to its .blox bytecode file.
func (c *Cmd) Compile(ctx context.Context, stdio mainer.Stdio, args []string) error {
	path := args[0]
	b, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	ch, err := compileSource(path, b)
	if err != nil {
		c.reportError(stdio, err)
		return err
	}
	out, err := compiler.Marshal(ch)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	dst := outPath(path, ".blox")
	if err := os.WriteFile(dst, out, 0600); err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}
	if !c.Quiet {
		fmt.Fprintf(stdio.Stdout, "wrote %s\n", dst)
	}
	return nil
}

// Disasm disassembles a source file or a compiled .blox file, detected by
// sniffing the magic header.
func (c *Cmd) Disasm(ctx context.Context, stdio mainer.Stdio, args []string) error {
	path := args[0]
	b, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}

	var ch *compiler.Chunk
	if compiler.IsCompiled(b) {
		ch, err = compiler.Unmarshal(b)
	} else {
		ch, err = compileSource(path, b)
	}
	if err != nil {
		c.reportError(stdio, err)
		return err
	}
	fmt.Fprint(stdio.Stdout, compiler.Disassemble(ch, path))
	return nil
}
