// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"errors"
	"fmt"
	"strings"
)

type (
	// ActionableError is an error carrying what operation failed, the resource
	// it failed on and hints for the user. It may point at a catalog page.
	//
	//	err := issue.NewErrorContext().
	//		WithOperation("load configuration").
	//		WithResource("~/.config/pystep/config.cue").
	//		WithSuggestion("Run 'pystep config show' to inspect the merged values").
	//		WithIssue(issue.ConfigLoadFailedId).
	//		Wrap(cause).
	//		BuildError()
	ActionableError struct {
		// Operation is a verb phrase such as "resolve virtualenv".
		Operation string
		// Resource names the file, node or installation involved (optional).
		Resource string
		// Suggestions are rendered as a bullet list under the message.
		Suggestions []string
		// Issue links the error to a troubleshooting page; zero means none.
		Issue Id
		// Cause is the underlying error.
		Cause error
	}

	// ErrorContext incrementally builds an ActionableError.
	ErrorContext struct {
		operation   string
		resource    string
		suggestions []string
		issue       Id
		cause       error
	}
)

// NewErrorContext creates an empty builder.
func NewErrorContext() *ErrorContext {
	return &ErrorContext{}
}

// WrapWithOperation wraps err with an operation. A nil err yields nil.
func WrapWithOperation(err error, operation string) error {
	if err == nil {
		return nil
	}
	return &ActionableError{Operation: operation, Cause: err}
}

// Error renders "failed to <operation>: <resource>: <cause>".
func (e *ActionableError) Error() string {
	var msg strings.Builder
	msg.WriteString("failed to ")
	msg.WriteString(e.Operation)
	if e.Resource != "" {
		msg.WriteString(": ")
		msg.WriteString(e.Resource)
	}
	if e.Cause != nil {
		msg.WriteString(": ")
		msg.WriteString(e.Cause.Error())
	}
	return msg.String()
}

func (e *ActionableError) Unwrap() error {
	return e.Cause
}

// Format returns the message followed by the suggestions. In verbose mode the
// whole unwrap chain is appended.
func (e *ActionableError) Format(verbose bool) string {
	var msg strings.Builder
	msg.WriteString(e.Error())

	if len(e.Suggestions) > 0 {
		msg.WriteString("\n")
		for _, s := range e.Suggestions {
			msg.WriteString("\n  • ")
			msg.WriteString(s)
		}
	}

	if verbose && e.Cause != nil {
		msg.WriteString("\n\nError chain:")
		depth := 1
		for err := e.Cause; err != nil; err = errors.Unwrap(err) {
			fmt.Fprintf(&msg, "\n  %d. %s", depth, err.Error())
			depth++
		}
	}
	return msg.String()
}

// WithOperation sets the operation being performed.
func (c *ErrorContext) WithOperation(op string) *ErrorContext {
	c.operation = op
	return c
}

// WithResource sets the resource involved.
func (c *ErrorContext) WithResource(res string) *ErrorContext {
	c.resource = res
	return c
}

// WithSuggestion appends a hint. It may be called repeatedly.
func (c *ErrorContext) WithSuggestion(s string) *ErrorContext {
	c.suggestions = append(c.suggestions, s)
	return c
}

// WithIssue links the error to a catalog page.
func (c *ErrorContext) WithIssue(id Id) *ErrorContext {
	c.issue = id
	return c
}

// Wrap sets the cause.
func (c *ErrorContext) Wrap(err error) *ErrorContext {
	c.cause = err
	return c
}

// Build returns nil when no operation was set.
func (c *ErrorContext) Build() *ActionableError {
	if c.operation == "" {
		return nil
	}
	return &ActionableError{
		Operation:   c.operation,
		Resource:    c.resource,
		Suggestions: c.suggestions,
		Issue:       c.issue,
		Cause:       c.cause,
	}
}

// BuildError is Build returned as an error, keeping a nil result untyped.
func (c *ErrorContext) BuildError() error {
	if ae := c.Build(); ae != nil {
		return ae
	}
	return nil
}

// IssueOf returns the catalog page linked anywhere in err's chain.
func IssueOf(err error) (*Issue, bool) {
	var ae *ActionableError
	for err != nil {
		if !errors.As(err, &ae) {
			return nil, false
		}
		if ae.Issue != 0 {
			if is := Get(ae.Issue); is != nil {
				return is, true
			}
		}
		err = ae.Cause
	}
	return nil, false
}
