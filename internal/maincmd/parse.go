package maincmd

import (
	"context"
	"fmt"

	"github.com/mna/mainer"

	"github.com/mna/blox/lang/ast"
	"github.com/mna/blox/lang/parser"
	"github.com/mna/blox/lang/scanner"
)

func (c *Cmd) Parse(ctx context.Context, stdio mainer.Stdio, args []string) error {
	return ParseFile(ctx, stdio, args[0], c.ASTFormat)
}

// ParseFile parses a single file and prints its AST in the requested
// format: "json", or s-expressions for anything else.
func ParseFile(ctx context.Context, stdio mainer.Stdio, file, format string) error {
	prog, err := parser.ParseFile(ctx, file)
	if err != nil {
		scanner.PrintError(stdio.Stderr, err)
		return err
	}

	if format == "json" {
		out, err := ast.ToJSON(prog)
		if err != nil {
			fmt.Fprintln(stdio.Stderr, err)
			return err
		}
		fmt.Fprint(stdio.Stdout, out)
		return nil
	}
	fmt.Fprint(stdio.Stdout, ast.ToSexp(prog))
	return nil
}
