// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestActionableError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *ActionableError
		expected string
	}{
		{
			name:     "operation only",
			err:      &ActionableError{Operation: "load configuration"},
			expected: "failed to load configuration",
		},
		{
			name:     "operation with resource",
			err:      &ActionableError{Operation: "resolve virtualenv", Resource: "py311"},
			expected: "failed to resolve virtualenv: py311",
		},
		{
			name:     "operation with cause",
			err:      &ActionableError{Operation: "connect to node", Cause: errors.New("connection refused")},
			expected: "failed to connect to node: connection refused",
		},
		{
			name: "full context",
			err: &ActionableError{
				Operation: "read variables",
				Resource:  "build.toml",
				Cause:     errors.New("file not found"),
			},
			expected: "failed to read variables: build.toml: file not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestActionableError_Format(t *testing.T) {
	t.Parallel()

	root := errors.New("permission denied")
	err := &ActionableError{
		Operation:   "write script",
		Suggestions: []string{"Check the temp dir", "Check disk space"},
		Cause:       fmt.Errorf("create temp file: %w", root),
	}

	short := err.Format(false)
	if !strings.Contains(short, "  • Check the temp dir") || !strings.Contains(short, "  • Check disk space") {
		t.Errorf("Format(false) missing suggestions: %q", short)
	}
	if strings.Contains(short, "Error chain") {
		t.Errorf("Format(false) should not include the chain: %q", short)
	}

	long := err.Format(true)
	if !strings.Contains(long, "Error chain:") {
		t.Fatalf("Format(true) missing chain: %q", long)
	}
	if !strings.Contains(long, "1. create temp file: permission denied") || !strings.Contains(long, "2. permission denied") {
		t.Errorf("Format(true) chain incomplete: %q", long)
	}
}

func TestErrorContext_Build(t *testing.T) {
	t.Parallel()

	cause := errors.New("boom")
	err := NewErrorContext().
		WithOperation("load configuration").
		WithResource("config.cue").
		WithSuggestion("first").
		WithSuggestion("second").
		WithIssue(ConfigLoadFailedId).
		Wrap(cause).
		Build()

	if err == nil {
		t.Fatal("Build() returned nil")
	}
	if err.Operation != "load configuration" || err.Resource != "config.cue" {
		t.Errorf("unexpected fields: %+v", err)
	}
	if len(err.Suggestions) != 2 {
		t.Errorf("Suggestions = %v, want 2 entries", err.Suggestions)
	}
	if err.Issue != ConfigLoadFailedId {
		t.Errorf("Issue = %d, want %d", err.Issue, ConfigLoadFailedId)
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}

func TestErrorContext_BuildWithoutOperation(t *testing.T) {
	t.Parallel()

	if NewErrorContext().WithResource("x").Build() != nil {
		t.Error("Build() without operation should return nil")
	}
	if err := NewErrorContext().BuildError(); err != nil {
		t.Errorf("BuildError() without operation = %v, want untyped nil", err)
	}
}

func TestWrapWithOperation(t *testing.T) {
	t.Parallel()

	if WrapWithOperation(nil, "x") != nil {
		t.Error("WrapWithOperation(nil) should return nil")
	}

	cause := errors.New("boom")
	err := WrapWithOperation(cause, "launch step")
	if err.Error() != "failed to launch step: boom" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}

func TestIssueOf(t *testing.T) {
	t.Parallel()

	inner := NewErrorContext().WithOperation("connect").WithIssue(NodeUnavailableId).BuildError()
	outer := NewErrorContext().WithOperation("run step").Wrap(fmt.Errorf("node: %w", inner)).BuildError()

	is, ok := IssueOf(outer)
	if !ok {
		t.Fatal("IssueOf() found nothing")
	}
	if is.Id() != NodeUnavailableId {
		t.Errorf("IssueOf() = %d, want %d", is.Id(), NodeUnavailableId)
	}

	if _, ok := IssueOf(errors.New("plain")); ok {
		t.Error("IssueOf(plain error) should report false")
	}
	if _, ok := IssueOf(NewErrorContext().WithOperation("x").BuildError()); ok {
		t.Error("IssueOf() without a linked page should report false")
	}
}
