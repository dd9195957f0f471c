// Package compile drives cargo over unpacked crate sources to produce LLVM
// IR artifacts. One call builds one crate version; parallelism across
// crates belongs to the orchestrator.
package compile

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/cratelab/painter/internal/crates"
)

// BuildError carries the compiler output of a failed build so the failure
// ledger can record a reason.
type BuildError struct {
	Crate  crates.Crate
	Output string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("compile: %s: build failed", e.Crate)
}

// Driver invokes cargo with flags chosen so that inter-function calls
// survive into the emitted IR: release mode for realistic codegen, LTO off
// so cross-crate calls are not folded away, and both bitcode and textual IR
// emitted so analysis has a toolchain-free path.
type Driver struct {
	// CargoBin is the cargo binary name or path.
	CargoBin string
	// Toolchain pins the rustc toolchain (rustup "+<version>" syntax).
	// Empty uses the default, which must supply LLVM of the major version
	// the analysis stage expects.
	Toolchain string

	Log *slog.Logger
}

// NewDriver returns a Driver using cargo from PATH.
func NewDriver(toolchain string, log *slog.Logger) *Driver {
	if log == nil {
		log = slog.Default()
	}
	return &Driver{CargoBin: "cargo", Toolchain: toolchain, Log: log}
}

// args builds the cargo invocation.
func (d *Driver) args() []string {
	args := []string{}
	if d.Toolchain != "" {
		args = append(args, "+"+d.Toolchain)
	}
	return append(args,
		"rustc", "--release", "--lib", "--",
		"-g",
		"--emit=llvm-bc,llvm-ir",
		"-C", "lto=off",
		"-C", "embed-bitcode=no",
		"-C", "inline-threshold=0",
	)
}

// Build compiles the crate unpacked at srcDir and relocates the produced IR
// files into artifactsRoot/{name}-{version}/. Returns the artifact
// directory. The subprocess runs in its own process group so cancellation
// kills build scripts along with cargo itself.
func (d *Driver) Build(ctx context.Context, srcDir, artifactsRoot string) (string, error) {
	crate, err := crates.ParseFullname(filepath.Base(srcDir))
	if err != nil {
		return "", err
	}

	d.Log.Debug("compiling", "crate", crate.Name, "version", crate.Version)

	cmd := exec.CommandContext(ctx, d.CargoBin, d.args()...)
	cmd.Dir = srcDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &BuildError{Crate: crate, Output: string(out)}
	}

	artifactDir := filepath.Join(artifactsRoot, crate.Fullname())
	n, err := collectArtifacts(srcDir, artifactDir)
	if err != nil {
		return "", fmt.Errorf("compile: %s: %w", crate, err)
	}
	if n == 0 {
		return "", &BuildError{Crate: crate, Output: "build succeeded but emitted no IR artifacts"}
	}

	d.Log.Debug("compiled", "crate", crate.Name, "version", crate.Version, "artifacts", n)
	return artifactDir, nil
}

// collectArtifacts walks srcDir for .bc and .ll files and copies them flat
// into dstDir, overwriting stale copies from earlier runs.
func collectArtifacts(srcDir, dstDir string) (int, error) {
	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return 0, err
	}

	count := 0
	err := filepath.WalkDir(srcDir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".bc" && ext != ".ll" {
			return nil
		}
		if err := copyFile(path, filepath.Join(dstDir, entry.Name())); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Reason condenses compiler output into a single ledger line: the first
// error line if one exists, otherwise the last non-empty line.
func Reason(output string) string {
	lines := strings.Split(output, "\n")
	var last string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "error") {
			return line
		}
		last = line
	}
	return last
}
