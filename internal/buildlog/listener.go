// SPDX-License-Identifier: MPL-2.0

package buildlog

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

type (
	// Listener is the reporting side channel of a build step. Process output
	// is written to it as it arrives; diagnostics never influence control flow.
	Listener interface {
		io.Writer
		// Diagnostic reports a human-readable explanation of err.
		Diagnostic(err error)
		// FatalError writes a fatal marker line carrying msg and returns a
		// writer for the details that follow it.
		FatalError(msg string) io.Writer
	}

	// Console is a Listener that writes everything to a single stream.
	// Diagnostics go through a charmbracelet logger sharing that stream.
	Console struct {
		mu     sync.Mutex
		out    io.Writer
		logger *log.Logger
		fatal  lipgloss.Style
	}

	// Recorder is an in-memory Listener, safe for concurrent use.
	Recorder struct {
		mu          sync.Mutex
		output      bytes.Buffer
		diagnostics []error
		fatals      []string
	}

	lockedWriter struct {
		mu *sync.Mutex
		w  io.Writer
	}
)

// NewConsole creates a Console writing to out.
func NewConsole(out io.Writer) *Console {
	c := &Console{out: out}
	c.logger = log.NewWithOptions(lockedWriter{mu: &c.mu, w: out}, log.Options{
		Prefix: "pystep",
	})
	c.fatal = lipgloss.NewRenderer(out).NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444"))
	return c
}

// Logger returns the logger used for diagnostics.
func (c *Console) Logger() *log.Logger { return c.logger }

func (c *Console) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.out.Write(p)
}

// Diagnostic logs err and every error it wraps.
func (c *Console) Diagnostic(err error) {
	if err == nil {
		return
	}
	c.logger.Error(err.Error())
	for _, cause := range causes(err) {
		c.logger.Debug("caused by", "error", cause)
	}
}

// causes lists every error wrapped by err, depth first, following both
// single and multi-error Unwrap methods.
func causes(err error) []error {
	var out []error
	var walk func(error)
	walk = func(e error) {
		var wrapped []error
		switch u := e.(type) {
		case interface{ Unwrap() error }:
			wrapped = []error{u.Unwrap()}
		case interface{ Unwrap() []error }:
			wrapped = u.Unwrap()
		}
		for _, cause := range wrapped {
			if cause != nil {
				out = append(out, cause)
				walk(cause)
			}
		}
	}
	walk(err)
	return out
}

// FatalError writes a styled "FATAL: msg" line.
func (c *Console) FatalError(msg string) io.Writer {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, c.fatal.Render("FATAL: "+msg))
	return lockedWriter{mu: &c.mu, w: c.out}
}

func (w lockedWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.w.Write(p)
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.output.Write(p)
}

// Diagnostic records err.
func (r *Recorder) Diagnostic(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.diagnostics = append(r.diagnostics, err)
}

// FatalError records msg and returns the output buffer as detail writer.
func (r *Recorder) FatalError(msg string) io.Writer {
	r.mu.Lock()
	r.fatals = append(r.fatals, msg)
	r.mu.Unlock()
	return r
}

// Output returns everything written so far.
func (r *Recorder) Output() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.output.String()
}

// Diagnostics returns the reported errors.
func (r *Recorder) Diagnostics() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.diagnostics...)
}

// Fatals returns the fatal marker messages.
func (r *Recorder) Fatals() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.fatals...)
}

// HasFatal reports whether a fatal marker containing substr was written.
func (r *Recorder) HasFatal(substr string) bool {
	for _, msg := range r.Fatals() {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}
