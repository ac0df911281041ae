// SPDX-License-Identifier: MPL-2.0

package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// Stopper is implemented by servers such as the agent.
type Stopper interface {
	Stop() error
}

// SkipWithoutPOSIXShell skips tests that run scripts through /bin/sh.
func SkipWithoutPOSIXShell(t testing.TB) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

// MustWriteFile writes content to dir/name with mode 0o600 and returns the path.
func MustWriteFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	return writeFile(t, dir, name, content, 0o600)
}

// MustWriteExecutable writes an executable script to dir/name, creating dir
// if needed, and returns the path.
func MustWriteExecutable(t testing.TB, dir, name, content string) string {
	t.Helper()
	MustMkdirAll(t, dir)
	return writeFile(t, dir, name, content, 0o755)
}

func writeFile(t testing.TB, dir, name, content string, perm os.FileMode) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), perm); err != nil {
		t.Fatalf("failed to write %s: %v", p, err)
	}
	return p
}

// MustMkdirAll creates a directory along with any necessary parents.
func MustMkdirAll(t testing.TB, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("failed to create directory %s: %v", path, err)
	}
}

// StopOnCleanup registers s.Stop as a test cleanup. Stop errors are logged,
// not failed, as shutdown errors during cleanup are typically non-fatal.
func StopOnCleanup(t testing.TB, s Stopper) {
	t.Helper()
	t.Cleanup(func() {
		if err := s.Stop(); err != nil {
			t.Logf("warning: stop returned error: %v", err)
		}
	})
}

// SetHomeDir points the platform home variable (USERPROFILE on Windows,
// HOME elsewhere) at dir for the rest of the test.
func SetHomeDir(t *testing.T, dir string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Setenv("USERPROFILE", dir)
		return
	}
	t.Setenv("HOME", dir)
}
