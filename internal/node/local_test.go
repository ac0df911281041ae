// SPDX-License-Identifier: MPL-2.0

package node

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/invowk/pystep/internal/testutil"
)

func TestOSSeparators(t *testing.T) {
	t.Parallel()

	tests := []struct {
		os      OS
		pathSep string
		fileSep string
	}{
		{OSUnix, ":", "/"},
		{OSWindows, ";", `\`},
	}
	for _, tt := range tests {
		t.Run(tt.os.String(), func(t *testing.T) {
			t.Parallel()
			if got := tt.os.PathSeparator(); got != tt.pathSep {
				t.Errorf("PathSeparator() = %q, want %q", got, tt.pathSep)
			}
			if got := tt.os.FileSeparator(); got != tt.fileSep {
				t.Errorf("FileSeparator() = %q, want %q", got, tt.fileSep)
			}
		})
	}
}

func TestUnavailableError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := error(&UnavailableError{Node: "builder-1", Cause: cause})

	if !errors.Is(err, ErrUnavailable) {
		t.Error("errors.Is(err, ErrUnavailable) = false")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false")
	}
	if !strings.Contains(err.Error(), "builder-1") {
		t.Errorf("Error() = %q, want node name", err.Error())
	}
}

func TestLocalWriteTempFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	n := NewLocal(dir)

	first, err := n.WriteTempFile(t.Context(), dir, "pystep", ".sh", "echo hi\n")
	if err != nil {
		t.Fatalf("WriteTempFile() error = %v", err)
	}
	second, err := n.WriteTempFile(t.Context(), dir, "pystep", ".sh", "echo hi\n")
	if err != nil {
		t.Fatalf("WriteTempFile() error = %v", err)
	}
	if first == second {
		t.Errorf("WriteTempFile() returned the same path twice: %s", first)
	}

	base := filepath.Base(first)
	if !strings.HasPrefix(base, "pystep") || !strings.HasSuffix(base, ".sh") {
		t.Errorf("file name %q does not match pystep*.sh", base)
	}
	if filepath.Dir(first) != dir {
		t.Errorf("file created in %q, want %q", filepath.Dir(first), dir)
	}

	data, err := os.ReadFile(first)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "echo hi\n" {
		t.Errorf("content = %q, want %q", data, "echo hi\n")
	}

	if err := n.Delete(t.Context(), first); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := os.Stat(first); !os.IsNotExist(err) {
		t.Errorf("file still exists after Delete(): %v", err)
	}
}

func TestLocalWriteTempFileMissingDir(t *testing.T) {
	t.Parallel()

	n := NewLocal("")
	_, err := n.WriteTempFile(t.Context(), filepath.Join(t.TempDir(), "missing"), "pystep", ".sh", "x")
	if err == nil {
		t.Fatal("WriteTempFile() into a missing directory should fail")
	}
}

func TestLocalLaunch(t *testing.T) {
	testutil.SkipWithoutPOSIXShell(t)
	t.Parallel()

	dir := t.TempDir()
	n := NewLocal(dir)

	var stdout bytes.Buffer
	code, err := n.Launch(t.Context(), LaunchSpec{
		Argv:   []string{"/bin/sh", "-c", `printf '%s|%s' "$GREETING" "$(pwd)"; exit 3`},
		Env:    []string{"GREETING=hello"},
		Dir:    dir,
		Stdout: &stdout,
	})
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	if code != 3 {
		t.Errorf("exit code = %d, want 3", code)
	}

	resolved, _ := filepath.EvalSymlinks(dir)
	got := stdout.String()
	if got != "hello|"+dir && got != "hello|"+resolved {
		t.Errorf("stdout = %q, want %q", got, "hello|"+dir)
	}
}

func TestLocalLaunchMissingBinary(t *testing.T) {
	t.Parallel()

	n := NewLocal(t.TempDir())
	code, err := n.Launch(t.Context(), LaunchSpec{Argv: []string{"/definitely/not/a/shell"}})
	if err == nil {
		t.Fatal("Launch() of a missing binary should fail")
	}
	if code != ExitCodeUnknown {
		t.Errorf("exit code = %d, want %d", code, ExitCodeUnknown)
	}
}

func TestLocalLaunchCancelled(t *testing.T) {
	testutil.SkipWithoutPOSIXShell(t)
	t.Parallel()

	ctx, cancel := context.WithTimeout(t.Context(), 200*time.Millisecond)
	defer cancel()

	n := &Local{WaitDelay: time.Second}
	start := time.Now()
	code, err := n.Launch(ctx, LaunchSpec{Argv: []string{"/bin/sh", "-c", "sleep 30"}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Launch() error = %v, want context.DeadlineExceeded", err)
	}
	if code != ExitCodeUnknown {
		t.Errorf("exit code = %d, want %d", code, ExitCodeUnknown)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("Launch() took %v after cancellation", elapsed)
	}
}

func TestLocalOnline(t *testing.T) {
	t.Parallel()

	n := NewLocal("")
	if err := n.Online(t.Context()); err != nil {
		t.Errorf("Online() error = %v", err)
	}

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	if err := n.Online(ctx); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Online() on cancelled ctx = %v, want ErrUnavailable", err)
	}
}

func TestLocalToolHome(t *testing.T) {
	t.Parallel()

	n := &Local{ToolHomes: map[string]string{"py311": "/opt/py311"}}
	if home, ok := n.ToolHome("py311"); !ok || home != "/opt/py311" {
		t.Errorf("ToolHome(py311) = %q, %v", home, ok)
	}
	if _, ok := n.ToolHome("missing"); ok {
		t.Error("ToolHome(missing) should not be found")
	}
}
