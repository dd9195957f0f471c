package ir

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/llir/llvm/asm"

	llir "github.com/llir/llvm/ir"
)

// bitcodeMagic is the first four bytes of every LLVM bitcode wrapper-less
// file.
var bitcodeMagic = []byte{'B', 'C', 0xc0, 0xde}

// ErrTooLarge marks a module refused by the per-worker memory cap.
var ErrTooLarge = errors.New("ir: module exceeds size threshold")

// ErrVersionMismatch marks bitcode whose producing LLVM major version does
// not match the disassembler on PATH. Refusing is deliberate: a mismatched
// reader can silently misparse instead of failing.
var ErrVersionMismatch = errors.New("ir: LLVM major version mismatch")

// Loader reads IR modules from disk. Textual .ll files parse directly;
// binary .bc files go through llvm-dis first.
type Loader struct {
	// MaxBytes refuses modules above this size. Zero means no cap.
	MaxBytes int64
	// DisBin is the llvm-dis binary name or path.
	DisBin string
	// WantMajor is the expected LLVM major version. Zero skips the check.
	WantMajor int

	probeOnce sync.Once
	probeVer  int
	probeErr  error
}

// NewLoader returns a Loader with the given size cap and expected LLVM
// major version.
func NewLoader(maxBytes int64, wantMajor int) *Loader {
	return &Loader{MaxBytes: maxBytes, DisBin: "llvm-dis", WantMajor: wantMajor}
}

// Load parses one module. .ll is parsed in place; .bc is checked for the
// bitcode magic, disassembled to a temporary .ll, and parsed from there.
func (l *Loader) Load(ctx context.Context, path string) (*llir.Module, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("ir: stat %s: %w", path, err)
	}
	if l.MaxBytes > 0 && info.Size() > l.MaxBytes {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, path, info.Size())
	}

	switch filepath.Ext(path) {
	case ".ll":
		m, err := asm.ParseFile(path)
		if err != nil {
			return nil, fmt.Errorf("ir: parse %s: %w", path, err)
		}
		return m, nil
	case ".bc":
		return l.loadBitcode(ctx, path)
	default:
		return nil, fmt.Errorf("ir: %s: not an IR artifact", path)
	}
}

func (l *Loader) loadBitcode(ctx context.Context, path string) (*llir.Module, error) {
	head := make([]byte, 4)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ir: open %s: %w", path, err)
	}
	_, readErr := f.Read(head)
	f.Close()
	if readErr != nil || !bytes.Equal(head, bitcodeMagic) {
		return nil, fmt.Errorf("ir: %s: bad bitcode magic", path)
	}

	if err := l.checkDisVersion(ctx); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp("", "painter-*.ll")
	if err != nil {
		return nil, fmt.Errorf("ir: temp file: %w", err)
	}
	tmp.Close()
	defer os.Remove(tmp.Name())

	cmd := exec.CommandContext(ctx, l.DisBin, "-o", tmp.Name(), path)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("ir: llvm-dis %s: %w: %s", path, err, strings.TrimSpace(string(out)))
	}

	m, err := asm.ParseFile(tmp.Name())
	if err != nil {
		return nil, fmt.Errorf("ir: parse disassembled %s: %w", path, err)
	}
	return m, nil
}

// checkDisVersion probes llvm-dis once and compares its major version with
// the expected one.
func (l *Loader) checkDisVersion(ctx context.Context) error {
	if l.WantMajor == 0 {
		return nil
	}
	l.probeOnce.Do(func() {
		out, err := exec.CommandContext(ctx, l.DisBin, "--version").CombinedOutput()
		if err != nil {
			l.probeErr = fmt.Errorf("ir: probe %s: %w", l.DisBin, err)
			return
		}
		l.probeVer, l.probeErr = parseLLVMMajor(string(out))
	})
	if l.probeErr != nil {
		return l.probeErr
	}
	if l.probeVer != l.WantMajor {
		return fmt.Errorf("%w: want %d, %s is %d", ErrVersionMismatch, l.WantMajor, l.DisBin, l.probeVer)
	}
	return nil
}

var llvmVersionRe = regexp.MustCompile(`LLVM version (\d+)`)

func parseLLVMMajor(versionOutput string) (int, error) {
	m := llvmVersionRe.FindStringSubmatch(versionOutput)
	if m == nil {
		return 0, fmt.Errorf("ir: no LLVM version in %q", strings.TrimSpace(versionOutput))
	}
	return strconv.Atoi(m[1])
}
