// SPDX-License-Identifier: MPL-2.0

package node

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
	"mvdan.cc/sh/v3/syntax"
)

// DefaultDialTimeout bounds connection setup to an SSH node.
const DefaultDialTimeout = 10 * time.Second

var errNoHostKeyPolicy = errors.New("no known_hosts file configured and host key checking not disabled")

type (
	// SSHConfig describes how to reach a remote worker over SSH.
	SSHConfig struct {
		// Name identifies the node.
		Name string
		// Address is host:port.
		Address string
		// User is the login name.
		User string
		// Token is sent as the password.
		Token string
		// KnownHostsFile verifies the server host key.
		KnownHostsFile string
		// InsecureIgnoreHostKey accepts any host key when no known_hosts file is set.
		InsecureIgnoreHostKey bool
		// RootDir is the remote base for node-relative paths.
		RootDir string
		// ToolHomes maps tool names to install locations on the remote machine.
		ToolHomes map[string]string
		// DialTimeout overrides DefaultDialTimeout.
		DialTimeout time.Duration
		// Logger receives connection logs; defaults to stderr with prefix "ssh-node".
		Logger *log.Logger
	}

	// SSH is a remote POSIX node driven through an SSH connection. Every
	// operation is a separate session on one shared connection.
	SSH struct {
		cfg    SSHConfig
		logger *log.Logger

		mu     sync.Mutex
		client *ssh.Client
	}
)

// NewSSH creates an SSH node. No connection is made until first use.
func NewSSH(cfg SSHConfig) *SSH {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "ssh-node"})
	}
	return &SSH{cfg: cfg, logger: logger}
}

// Name returns the node name, defaulting to the address.
func (n *SSH) Name() string {
	if n.cfg.Name != "" {
		return n.cfg.Name
	}
	return n.cfg.Address
}

// OS returns OSUnix; Windows hosts are not supported over SSH.
func (n *SSH) OS() OS { return OSUnix }

// Root returns the remote root directory.
func (n *SSH) Root() string { return n.cfg.RootDir }

// ToolHome returns a configured remote tool location.
func (n *SSH) ToolHome(name string) (string, bool) {
	home, ok := n.cfg.ToolHomes[name]
	return home, ok
}

// Online dials the node if not connected yet.
func (n *SSH) Online(ctx context.Context) error {
	if _, err := n.connect(ctx); err != nil {
		return &UnavailableError{Node: n.Name(), Cause: err}
	}
	return nil
}

// Close drops the connection. The node reconnects on next use.
func (n *SSH) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.client == nil {
		return nil
	}
	err := n.client.Close()
	n.client = nil
	return err
}

// Environment runs env on the remote machine.
func (n *SSH) Environment(ctx context.Context) ([]string, error) {
	var stdout, stderr bytes.Buffer
	code, err := n.run(ctx, "env", nil, &stdout, &stderr)
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, fmt.Errorf("env exited with %d: %s", code, strings.TrimSpace(stderr.String()))
	}

	var entries []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		key, _, ok := strings.Cut(line, "=")
		if !ok || key == "" || strings.ContainsAny(key, " \t") {
			continue
		}
		entries = append(entries, line)
	}
	return entries, nil
}

// WriteTempFile streams content into a new remote file. The shell's
// noclobber option makes creation fail rather than overwrite.
func (n *SSH) WriteTempFile(ctx context.Context, dir, prefix, ext, content string) (string, error) {
	target := path.Join(dir, prefix+uuid.NewString()+ext)
	quoted, err := quote(target)
	if err != nil {
		return "", err
	}

	var stderr bytes.Buffer
	code, started, err := n.session(ctx, "umask 077 && set -C && cat > "+quoted, strings.NewReader(content), io.Discard, &stderr)
	if err != nil {
		if started && ctx.Err() != nil {
			n.discard(ctx, target, quoted)
		}
		return "", err
	}
	if code != 0 {
		return "", fmt.Errorf("failed to create %s on %s (exit %d): %s", target, n.Name(), code, strings.TrimSpace(stderr.String()))
	}
	return target, nil
}

// discard removes a partially written file after cancellation; the path is
// never returned to the caller.
func (n *SSH) discard(ctx context.Context, target, quoted string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), n.cfg.DialTimeout)
	defer cancel()
	if _, err := n.run(cleanupCtx, "rm -f -- "+quoted, nil, io.Discard, io.Discard); err != nil {
		n.logger.Warn("failed to remove partial script", "node", n.Name(), "path", target, "error", err)
	}
}

// Delete removes a remote file.
func (n *SSH) Delete(ctx context.Context, p string) error {
	quoted, err := quote(p)
	if err != nil {
		return err
	}

	var stderr bytes.Buffer
	code, err := n.run(ctx, "rm -- "+quoted, nil, io.Discard, &stderr)
	if err != nil {
		return err
	}
	if code != 0 {
		return fmt.Errorf("failed to delete %s on %s (exit %d): %s", p, n.Name(), code, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Launch runs argv remotely with exactly spec.Env as its environment.
func (n *SSH) Launch(ctx context.Context, spec LaunchSpec) (int, error) {
	if len(spec.Argv) == 0 {
		return ExitCodeUnknown, errors.New("empty command line")
	}
	cmdline, err := remoteCommandLine(spec)
	if err != nil {
		return ExitCodeUnknown, err
	}
	return n.run(ctx, cmdline, nil, spec.Stdout, spec.Stderr)
}

// remoteCommandLine renders "cd DIR && exec env -i K=V... ARGV..." with every
// word quoted for a POSIX shell.
func remoteCommandLine(spec LaunchSpec) (string, error) {
	var b strings.Builder
	if spec.Dir != "" {
		dir, err := quote(spec.Dir)
		if err != nil {
			return "", err
		}
		b.WriteString("cd " + dir + " && ")
	}
	b.WriteString("exec env -i")
	for _, word := range append(append([]string{}, spec.Env...), spec.Argv...) {
		q, err := quote(word)
		if err != nil {
			return "", err
		}
		b.WriteString(" " + q)
	}
	return b.String(), nil
}

func quote(word string) (string, error) {
	q, err := syntax.Quote(word, syntax.LangPOSIX)
	if err != nil {
		return "", fmt.Errorf("cannot quote %q for the remote shell: %w", word, err)
	}
	return q, nil
}

// run executes cmd in a new session. Cancelling ctx kills the remote
// process and closes the session.
func (n *SSH) run(ctx context.Context, cmd string, stdin io.Reader, stdout, stderr io.Writer) (int, error) {
	code, _, err := n.session(ctx, cmd, stdin, stdout, stderr)
	return code, err
}

// session is run that also reports whether the remote command was started.
func (n *SSH) session(ctx context.Context, cmd string, stdin io.Reader, stdout, stderr io.Writer) (int, bool, error) {
	client, err := n.connect(ctx)
	if err != nil {
		return ExitCodeUnknown, false, &UnavailableError{Node: n.Name(), Cause: err}
	}

	sess, err := client.NewSession()
	if err != nil {
		n.dropClient(client)
		return ExitCodeUnknown, false, fmt.Errorf("failed to open session on %s: %w", n.Name(), err)
	}
	defer func() { _ = sess.Close() }()

	sess.Stdin = stdin
	sess.Stdout = stdout
	sess.Stderr = stderr

	if err := sess.Start(cmd); err != nil {
		return ExitCodeUnknown, false, fmt.Errorf("failed to start remote command on %s: %w", n.Name(), err)
	}

	done := make(chan error, 1)
	go func() { done <- sess.Wait() }()

	select {
	case err := <-done:
		code, err := remoteExitCode(err)
		return code, true, err
	case <-ctx.Done():
		n.logger.Debug("killing remote command", "node", n.Name())
		_ = sess.Signal(ssh.SIGKILL) // Best-effort; the session close below ends it regardless
		_ = sess.Close()
		<-done
		return ExitCodeUnknown, true, ctx.Err()
	}
}

func remoteExitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitStatus(), nil
	}
	return ExitCodeUnknown, err
}

func (n *SSH) connect(ctx context.Context) (*ssh.Client, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.client != nil {
		return n.client, nil
	}

	hostKeyCallback, err := n.hostKeyCallback()
	if err != nil {
		return nil, err
	}
	clientCfg := &ssh.ClientConfig{
		User:            n.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.Password(n.cfg.Token)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         n.cfg.DialTimeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, n.cfg.DialTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(dialCtx, "tcp", n.cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", n.cfg.Address, err)
	}

	// The handshake is bounded by the dial timeout and aborted by closing
	// the connection when ctx ends.
	_ = conn.SetDeadline(time.Now().Add(n.cfg.DialTimeout))
	stop := context.AfterFunc(dialCtx, func() { _ = conn.Close() })
	c, chans, reqs, err := ssh.NewClientConn(conn, n.cfg.Address, clientCfg)
	if !stop() {
		if err == nil {
			_ = c.Close()
		}
		return nil, fmt.Errorf("ssh handshake with %s aborted: %w", n.cfg.Address, context.Cause(dialCtx))
	}
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", n.cfg.Address, err)
	}
	_ = conn.SetDeadline(time.Time{})

	n.client = ssh.NewClient(c, chans, reqs)
	n.logger.Debug("connected", "node", n.Name(), "address", n.cfg.Address)
	return n.client, nil
}

func (n *SSH) dropClient(c *ssh.Client) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.client == c {
		_ = n.client.Close()
		n.client = nil
	}
}

func (n *SSH) hostKeyCallback() (ssh.HostKeyCallback, error) {
	switch {
	case n.cfg.KnownHostsFile != "":
		cb, err := knownhosts.New(n.cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
		return cb, nil
	case n.cfg.InsecureIgnoreHostKey:
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // explicitly opted into by configuration
	default:
		return nil, errNoHostKeyPolicy
	}
}
