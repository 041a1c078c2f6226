package codegen

import (
	"fmt"
	"os"
	"os/exec"
)

// BuildExecutable compiles the IR at irPath into a native executable at
// exePath, linking the C runtime archive (or object/source file) at
// runtimePath with the system clang.
func BuildExecutable(irPath, exePath, runtimePath string) error {
	if runtimePath == "" {
		return fmt.Errorf("no runtime library configured (set BLOX_RUNTIME)")
	}
	if _, err := os.Stat(runtimePath); err != nil {
		return fmt.Errorf("runtime library: %w", err)
	}

	cmd := exec.Command("clang", "-O2", "-o", exePath, irPath, runtimePath, "-lm")
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("clang: %w\n%s", err, out)
	}
	return nil
}
