package maincmd_test

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mna/mainer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mna/blox/internal/filetest"
	"github.com/mna/blox/internal/maincmd"
)

var testUpdateRunTests = flag.Bool("test.update-run-tests", false, "If set, replace expected run test results with actual results.")

// runCmd invokes the tool like the real binary would, capturing the stdio.
func runCmd(t *testing.T, stdin string, args ...string) (mainer.ExitCode, string, string) {
	t.Helper()
	var out, errb bytes.Buffer
	stdio := mainer.Stdio{
		Stdin:  strings.NewReader(stdin),
		Stdout: &out,
		Stderr: &errb,
	}
	c := maincmd.Cmd{BuildVersion: "test", BuildDate: "test"}
	code := c.Main(append([]string{"blox"}, args...), stdio)
	return code, out.String(), errb.String()
}

func TestRunGolden(t *testing.T) {
	srcDir, resultDir := filepath.Join("testdata", "in"), filepath.Join("testdata", "out")
	for _, file := range filetest.SourceFiles(t, srcDir, ".lox") {
		file := file
		t.Run(filepath.Base(file), func(t *testing.T) {
			_, out, errOut := runCmd(t, "", "run", file)
			filetest.DiffOutput(t, file, ".want", out, resultDir, testUpdateRunTests)
			filetest.DiffOutput(t, file, ".err", errOut, resultDir, testUpdateRunTests)
		})
	}
}

func TestRunVMMatchesInterp(t *testing.T) {
	srcDir := filepath.Join("testdata", "in")
	for _, file := range filetest.SourceFiles(t, srcDir, ".lox") {
		file := file
		t.Run(filepath.Base(file), func(t *testing.T) {
			icode, iout, _ := runCmd(t, "", "run", file)
			vcode, vout, _ := runCmd(t, "", "run", "--vm", file)
			assert.Equal(t, icode == mainer.Success, vcode == mainer.Success)
			assert.Equal(t, iout, vout, "interpreter and VM output must match")
		})
	}
}

func TestCompileThenRunBytecode(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "prog.lox")
	require.NoError(t, os.WriteFile(src, []byte(
		"fun m() { var i = 0; fun c() { i = i + 1; return i; } return c; }\n"+
			"var c = m(); print c(); print c();\n"), 0600))

	code, out, errOut := runCmd(t, "", "-q", "compile", src)
	require.Equal(t, mainer.Success, code, "stderr: %s", errOut)
	assert.Empty(t, out)

	blox := filepath.Join(tmp, "prog.blox")
	b, err := os.ReadFile(blox)
	require.NoError(t, err)
	assert.Equal(t, []byte("blox"), b[:4])

	code, out, errOut = runCmd(t, "", "run", blox)
	require.Equal(t, mainer.Success, code, "stderr: %s", errOut)
	assert.Equal(t, "1\n2\n", out)
}

func TestRunRejectsCorruptBytecode(t *testing.T) {
	tmp := t.TempDir()
	bad := filepath.Join(tmp, "bad.blox")
	require.NoError(t, os.WriteFile(bad, []byte("blot not bytecode"), 0600))

	// without the magic it is treated as source and fails to scan/parse
	code, _, errOut := runCmd(t, "", "run", bad)
	assert.NotEqual(t, mainer.Success, code)
	assert.NotEmpty(t, errOut)
}

func TestTokenizeGolden(t *testing.T) {
	file := filepath.Join("testdata", "in", "arith.lox")
	code, out, _ := runCmd(t, "", "tokenize", file)
	require.Equal(t, mainer.Success, code)
	filetest.DiffOutput(t, file, ".tokens", out, filepath.Join("testdata", "out"), testUpdateRunTests)
}

func TestParseGolden(t *testing.T) {
	file := filepath.Join("testdata", "in", "arith.lox")
	code, out, _ := runCmd(t, "", "parse", file)
	require.Equal(t, mainer.Success, code)
	filetest.DiffOutput(t, file, ".sexp", out, filepath.Join("testdata", "out"), testUpdateRunTests)
}

func TestParseJSON(t *testing.T) {
	file := filepath.Join("testdata", "in", "arith.lox")
	code, out, _ := runCmd(t, "", "--ast-format=json", "parse", file)
	require.Equal(t, mainer.Success, code)
	assert.Contains(t, out, `"type": "print"`)
}

func TestDisasm(t *testing.T) {
	file := filepath.Join("testdata", "in", "arith.lox")
	code, out, _ := runCmd(t, "", "disasm", file)
	require.Equal(t, mainer.Success, code)
	assert.Contains(t, out, "== "+file+" ==")
	assert.Contains(t, out, "Multiply")
	assert.Contains(t, out, "Print")
}

func TestIr(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "prog.lox")
	require.NoError(t, os.WriteFile(src, []byte("print 1 + 2;\n"), 0600))

	code, _, errOut := runCmd(t, "", "-q", "ir", src)
	require.Equal(t, mainer.Success, code, "stderr: %s", errOut)

	b, err := os.ReadFile(filepath.Join(tmp, "prog.ll"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "define i32 @main()")
	assert.Contains(t, string(b), "lox_print")
}

func TestIrRejectsClasses(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "prog.lox")
	require.NoError(t, os.WriteFile(src, []byte("class Foo {}\n"), 0600))

	code, _, errOut := runCmd(t, "", "ir", src)
	assert.NotEqual(t, mainer.Success, code)
	assert.Contains(t, errOut, "not supported by the native backend")
}

func TestReadLineNative(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "prog.lox")
	require.NoError(t, os.WriteFile(src, []byte("print readLine();\n"), 0600))

	code, out, _ := runCmd(t, "hello\n", "run", src)
	require.Equal(t, mainer.Success, code)
	assert.Equal(t, "hello\n", out)
}

func TestExitCodes(t *testing.T) {
	// unknown command
	code, _, _ := runCmd(t, "", "frobnicate")
	assert.NotEqual(t, mainer.Success, code)

	// missing file
	code, _, _ = runCmd(t, "", "run", "does-not-exist.lox")
	assert.NotEqual(t, mainer.Success, code)

	// runtime error
	tmp := t.TempDir()
	src := filepath.Join(tmp, "prog.lox")
	require.NoError(t, os.WriteFile(src, []byte("print x;\n"), 0600))
	code, _, errOut := runCmd(t, "", "run", src)
	assert.NotEqual(t, mainer.Success, code)
	assert.Contains(t, errOut, "undefined variable 'x'")
}

func TestBacktraceEnv(t *testing.T) {
	tmp := t.TempDir()
	src := filepath.Join(tmp, "prog.lox")
	require.NoError(t, os.WriteFile(src, []byte(
		"fun inner() { return missing; }\nfun outer() { return inner(); }\nouter();\n"), 0600))

	// without the flag, no backtrace
	code, _, errOut := runCmd(t, "", "run", src)
	assert.NotEqual(t, mainer.Success, code)
	assert.NotContains(t, errOut, "at inner")

	t.Setenv("BLOX_BACKTRACE", "true")
	code, _, errOut = runCmd(t, "", "run", src)
	assert.NotEqual(t, mainer.Success, code)
	assert.Contains(t, errOut, "at inner (line 2)")
	assert.Contains(t, errOut, "at outer (line 3)")
}

func TestVersionAndHelp(t *testing.T) {
	code, out, _ := runCmd(t, "", "--version")
	assert.Equal(t, mainer.Success, code)
	assert.Contains(t, out, "blox")

	code, out, _ = runCmd(t, "", "--help")
	assert.Equal(t, mainer.Success, code)
	assert.Contains(t, out, "usage: blox")
}
