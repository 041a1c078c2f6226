// Package maincmd implements the blox command-line tool: running source
// files and compiled bytecode, the REPL, and the various compiler phase
// dumps.
package maincmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/mna/mainer"
)

const binName = "blox"

var (
	shortUsage = fmt.Sprintf(`
usage: %s [<option>...] <command> [<path>]
Run '%[1]s --help' for details.
`, binName)

	longUsage = fmt.Sprintf(`usage: %s [<option>...] <command> [<path>]
       %[1]s -h|--help
       %[1]s -v|--version

Interpreter, bytecode compiler and native compiler for the Lox
programming language.

The <command> can be one of:
       run                       Run a source file with the tree-walk
                                 interpreter, or a compiled .blox file
                                 with the virtual machine. With no path,
                                 start the REPL.
       repl                      Start the interactive REPL.
       tokenize                  Execute the scanner phase and print the
                                 resulting tokens.
       parse                     Execute the parser phase and print the
                                 resulting abstract syntax tree (AST).
       compile                   Compile a source file to a .blox
                                 bytecode file.
       disasm                    Disassemble a source or .blox file.
       ir                        Compile a source file to an LLVM IR
                                 (.ll) file.
       build                     Compile a source file to a native
                                 executable (requires clang and the
                                 runtime library, see BLOX_RUNTIME).

Valid flag options are:
       -h --help                 Show this help and exit.
       -v --version              Print version and exit.
       -q --quiet                Suppress informational output.

Valid flag options for the <run> command are:
       --vm                      Compile to bytecode and run on the
                                 virtual machine instead of the
                                 tree-walk interpreter.

Valid flag options for the <parse> command are:
       --ast-format=sexp|json    AST output format (default: sexp).

Environment variables:
       BLOX_BACKTRACE            When set to true, runtime errors print
                                 a stack backtrace.
       BLOX_RUNTIME              Path to the compiled C runtime library
                                 linked by the <build> command.
`, binName)
)

// Config is the process-environment configuration of the tool.
type Config struct {
	// Backtrace enables printing runtime backtraces.
	Backtrace bool `env:"BLOX_BACKTRACE"`

	// Runtime is the path of the C runtime archive linked by build.
	Runtime string `env:"BLOX_RUNTIME"`
}

type Cmd struct {
	BuildVersion string
	BuildDate    string

	Help    bool `flag:"h,help"`
	Version bool `flag:"v,version"`
	Quiet   bool `flag:"q,quiet"`

	VM        bool   `flag:"vm"`
	ASTFormat string `flag:"ast-format"`

	config Config
	args   []string
	flags  map[string]bool
	cmdFn  func(context.Context, mainer.Stdio, []string) error
}

func (c *Cmd) SetArgs(args []string) {
	c.args = args
}

func (c *Cmd) SetFlags(flags map[string]bool) {
	c.flags = flags
}

func (c *Cmd) Validate() error {
	if c.Help || c.Version {
		return nil
	}

	if len(c.args) == 0 {
		return errors.New("no command specified")
	}

	cmdName := c.args[0]
	commands := buildCmds(c)
	c.cmdFn = commands[cmdName]
	if c.cmdFn == nil {
		return fmt.Errorf("unknown command: %s", cmdName)
	}

	switch cmdName {
	case "tokenize", "parse", "compile", "disasm", "ir", "build":
		if len(c.args[1:]) != 1 {
			return fmt.Errorf("%s: a single file must be provided", cmdName)
		}
	case "run":
		if len(c.args[1:]) > 1 {
			return fmt.Errorf("%s: at most one file can be provided", cmdName)
		}
	}

	if c.flags["vm"] && cmdName != "run" {
		return fmt.Errorf("%s: invalid flag 'vm'", cmdName)
	}
	if c.flags["ast-format"] {
		if cmdName != "parse" {
			return fmt.Errorf("%s: invalid flag 'ast-format'", cmdName)
		}
		if c.ASTFormat != "sexp" && c.ASTFormat != "json" {
			return fmt.Errorf("invalid ast-format: %s", c.ASTFormat)
		}
	}
	return nil
}

func (c *Cmd) Main(args []string, stdio mainer.Stdio) mainer.ExitCode {
	p := mainer.Parser{
		EnvVars:   false,
		EnvPrefix: binName + "_",
	}
	if err := p.Parse(args, c); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid arguments: %s\n%s", err, shortUsage)
		return mainer.InvalidArgs
	}

	switch {
	case c.Help:
		fmt.Fprint(stdio.Stdout, longUsage)
		return mainer.Success

	case c.Version:
		fmt.Fprintf(stdio.Stdout, "%s %s %s\n", binName, c.BuildVersion, c.BuildDate)
		return mainer.Success
	}

	if err := env.Parse(&c.config); err != nil {
		fmt.Fprintf(stdio.Stderr, "invalid environment: %s\n", err)
		return mainer.InvalidArgs
	}

	ctx := mainer.CancelOnSignal(context.Background(), os.Interrupt)
	if err := c.cmdFn(ctx, stdio, c.args[1:]); err != nil {
		// each command takes care of printing its errors, just return with an
		// error code
		return mainer.Failure
	}
	return mainer.Success
}

// valid commands are those that take a mainer.Stdio and a slice of strings
// as input, and return an error as output.
func buildCmds(v interface{}) map[string]func(context.Context, mainer.Stdio, []string) error {
	cmds := make(map[string]func(context.Context, mainer.Stdio, []string) error)

	vv := reflect.ValueOf(v)
	vt := vv.Type()
	for i := 0; i < vt.NumMethod(); i++ {
		m := vt.Method(i)
		mt := m.Type

		// must take 4 parameters (including receiver) and return 1
		if mt.NumIn() != 4 || mt.NumOut() != 1 {
			continue
		}

		if rt := mt.Out(0); rt.Kind() != reflect.Interface || rt.Name() != "error" {
			continue
		}
		if p0 := mt.In(0); p0.Kind() != reflect.Ptr || p0.Elem().Name() != "Cmd" {
			continue
		}
		if p1 := mt.In(1); p1.Kind() != reflect.Interface || p1.Name() != "Context" {
			continue
		}
		if p2 := mt.In(2); p2.Kind() != reflect.Struct || p2.Name() != "Stdio" {
			continue
		}
		if p3 := mt.In(3); p3.Kind() != reflect.Slice || p3.Elem().Name() != "string" {
			continue
		}
		cmds[strings.ToLower(m.Name)] = vv.Method(i).Interface().(func(context.Context, mainer.Stdio, []string) error)
	}
	return cmds
}
