package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/mna/blox/lang/scanner"
	"github.com/mna/blox/lang/token"
)

func (c *Cmd) Tokenize(ctx context.Context, stdio mainer.Stdio, args []string) error {
	return TokenizeFile(ctx, stdio, args[0])
}

// TokenizeFile scans a single file and prints one token per line with its
// position, also reporting any scan error. The tokens scanned up to the
// errors are still printed.
func TokenizeFile(ctx context.Context, stdio mainer.Stdio, file string) error {
	b, rerr := os.ReadFile(file)
	if rerr != nil {
		fmt.Fprintln(stdio.Stderr, rerr)
		return rerr
	}

	toks, err := scanner.Scan(file, b)
	for _, tok := range toks {
		pos := token.Position(file, b, tok.Value.Span.Off)
		fmt.Fprintf(stdio.Stdout, "%s: %s", pos, tok.Token)
		if lit := tok.Token.Literal(tok.Value); lit != "" {
			fmt.Fprintf(stdio.Stdout, " %s", lit)
		}
		fmt.Fprintln(stdio.Stdout)
	}
	if err != nil {
		scanner.PrintError(stdio.Stderr, err)
	}
	return err
}
