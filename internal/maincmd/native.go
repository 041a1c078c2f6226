package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/mna/blox/lang/codegen"
)

// Ir compiles a source file to LLVM IR and writes the .ll file next to it.
func (c *Cmd) Ir(ctx context.Context, stdio mainer.Stdio, args []string) error {
	_, err := c.emitIR(stdio, args[0])
	return err
}

// Build compiles a source file to a native executable, linking the C
// runtime configured with BLOX_RUNTIME.
func (c *Cmd) Build(ctx context.Context, stdio mainer.Stdio, args []string) error {
	llPath, err := c.emitIR(stdio, args[0])
	if err != nil {
		return err
	}

	exePath := outPath(args[0], "")
	if exePath == args[0] {
		exePath = args[0] + ".out"
	}
	if err := codegen.BuildExecutable(llPath, exePath, c.config.Runtime); err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return err
	}
	if !c.Quiet {
		fmt.Fprintf(stdio.Stdout, "wrote %s\n", exePath)
	}
	return nil
}

func (c *Cmd) emitIR(stdio mainer.Stdio, path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return "", err
	}

	prog, info, err := frontend(path, b)
	if err != nil {
		c.reportError(stdio, err)
		return "", err
	}
	ir, err := codegen.Compile(path, b, prog, info)
	if err != nil {
		c.reportError(stdio, err)
		return "", err
	}

	dst := outPath(path, ".ll")
	if err := os.WriteFile(dst, []byte(ir), 0600); err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return "", err
	}
	if !c.Quiet {
		fmt.Fprintf(stdio.Stdout, "wrote %s\n", dst)
	}
	return dst, nil
}
