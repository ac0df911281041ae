// SPDX-License-Identifier: MPL-2.0

package environ

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseTOML(t *testing.T) {
	t.Parallel()

	content := `
PYTHON = "3.12"
parallel = true
jobs = 4
ratio = 0.5
released = 2024-05-01

[axis]
os = "linux"

[axis.toolchain]
cc = "gcc"
`
	env, err := ParseTOML([]byte(content), "vars.toml")
	if err != nil {
		t.Fatalf("ParseTOML() error = %v", err)
	}

	want := map[string]string{
		"PYTHON":            "3.12",
		"parallel":          "true",
		"jobs":              "4",
		"ratio":             "0.5",
		"released":          "2024-05-01",
		"AXIS_OS":           "linux",
		"AXIS_TOOLCHAIN_CC": "gcc",
	}
	for key, value := range want {
		if got, ok := env.Lookup(key); !ok || got != value {
			t.Errorf("%s = %q (set=%v), want %q", key, got, ok, value)
		}
	}
	if env.Len() != len(want) {
		t.Errorf("Len() = %d, want %d: %q", env.Len(), len(want), env.Slice())
	}
}

func TestParseTOMLErrors(t *testing.T) {
	t.Parallel()

	if _, err := ParseTOML([]byte("list = [1, 2]"), "vars.toml"); err == nil || !strings.Contains(err.Error(), "list") {
		t.Errorf("ParseTOML() with an array = %v, want unsupported value error", err)
	}
	if _, err := ParseTOML([]byte("= broken"), "vars.toml"); err == nil || !strings.HasPrefix(err.Error(), "vars.toml") {
		t.Errorf("ParseTOML() with invalid syntax = %v, want error prefixed with file name", err)
	}
}

func TestLoadTOML(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "vars.toml")
	if err := os.WriteFile(path, []byte(`A = "1"`), 0o600); err != nil {
		t.Fatal(err)
	}
	env, err := LoadTOML(path)
	if err != nil {
		t.Fatalf("LoadTOML() error = %v", err)
	}
	if env.Get("A") != "1" {
		t.Errorf("A = %q, want 1", env.Get("A"))
	}
}
