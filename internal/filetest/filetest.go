// Package filetest implements the golden-file test harness used by the
// command and phase-output tests: each source file in a testdata directory
// is paired with golden files holding its expected outputs, which can be
// regenerated with the update flags.
package filetest

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/kylelemons/godebug/diff"
)

var testUpdateAllTests = flag.Bool("test.update-all-tests", false, "If set, sets all test.update-*-tests.")

// SourceFiles returns the paths of the regular files in dir with the
// specified extension (including the leading dot).
func SourceFiles(t *testing.T, dir, ext string) []string {
	t.Helper()

	dents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}

	res := make([]string, 0, len(dents))
	for _, dent := range dents {
		if !dent.Type().IsRegular() || filepath.Ext(dent.Name()) != ext {
			continue
		}
		res = append(res, filepath.Join(dir, dent.Name()))
	}
	return res
}

// DiffOutput validates that output matches the golden file for srcFile with
// the given extension in resultDir. If updateFlag is set, the golden file
// is rewritten with output instead. A missing golden file is treated as
// empty expected output.
func DiffOutput(t *testing.T, srcFile, ext, output, resultDir string, updateFlag *bool) {
	t.Helper()

	goldFile := filepath.Join(resultDir, filepath.Base(srcFile)+ext)
	if *updateFlag || *testUpdateAllTests {
		if output == "" {
			// drop obsolete golden files instead of keeping empty ones
			if err := os.Remove(goldFile); err != nil && !os.IsNotExist(err) {
				t.Fatal(err)
			}
			return
		}
		if err := os.WriteFile(goldFile, []byte(output), 0600); err != nil {
			t.Fatal(err)
		}
		return
	}

	wantb, err := os.ReadFile(goldFile)
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	want := string(wantb)
	if patch := diff.Diff(want, output); patch != "" {
		if testing.Verbose() {
			t.Logf("got:\n%s\nwant:\n%s\n", output, want)
		}
		t.Errorf("diff %s:\n%s\n", goldFile, patch)
	}
}
