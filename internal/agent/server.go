// SPDX-License-Identifier: MPL-2.0

package agent

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
)

const (
	// DefaultListen is the address the agent binds when none is configured.
	DefaultListen = "127.0.0.1:2222"
	// DefaultShell runs exec requests.
	DefaultShell = "/bin/sh"
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultStartupTimeout bounds listener setup.
	DefaultStartupTimeout = 5 * time.Second
	// DefaultWaitDelay bounds output draining after a command is killed.
	DefaultWaitDelay = 5 * time.Second
)

type (
	// Config holds the immutable agent configuration.
	Config struct {
		// Listen is host:port; port 0 picks a free port.
		Listen string
		// Token is the shared password. A random token is generated when empty.
		Token string
		// Root is the working directory of every command.
		Root string
		// Shell runs each exec request as `Shell -c COMMAND`.
		Shell string
		// HostKeyPath persists the host key; an ephemeral key is used when empty.
		HostKeyPath string
		ShutdownTimeout time.Duration
		StartupTimeout  time.Duration
		WaitDelay       time.Duration
		// Logger defaults to stderr with prefix "agent".
		Logger *log.Logger
	}

	// Server is a single-use SSH agent.
	Server struct {
		cfg    Config
		logger *log.Logger
		life   *lifecycle

		mu       sync.Mutex
		srv      *ssh.Server
		listener net.Listener
		addr     string
	}
)

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Listen:          DefaultListen,
		Shell:           DefaultShell,
		ShutdownTimeout: DefaultShutdownTimeout,
		StartupTimeout:  DefaultStartupTimeout,
		WaitDelay:       DefaultWaitDelay,
	}
}

// New creates an agent. Start must be called before it accepts connections.
func New(cfg Config) (*Server, error) {
	defaults := DefaultConfig()
	if cfg.Listen == "" {
		cfg.Listen = defaults.Listen
	}
	if cfg.Shell == "" {
		cfg.Shell = defaults.Shell
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = defaults.StartupTimeout
	}
	if cfg.WaitDelay == 0 {
		cfg.WaitDelay = defaults.WaitDelay
	}
	if cfg.Root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine agent root: %w", err)
		}
		cfg.Root = wd
	}
	if cfg.Token == "" {
		token, err := generateToken()
		if err != nil {
			return nil, err
		}
		cfg.Token = token
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "agent"})
	}

	return &Server{cfg: cfg, logger: logger, life: newLifecycle()}, nil
}

// Token returns the password clients must present.
func (s *Server) Token() string { return s.cfg.Token }

// Root returns the directory commands run in.
func (s *Server) Root() string { return s.cfg.Root }

// State returns the current lifecycle state.
func (s *Server) State() State { return s.life.current() }

// Err delivers fatal serve errors after Start has returned. It is closed
// when the agent stops.
func (s *Server) Err() <-chan error { return s.life.errCh }

// Start binds the listener and blocks until the agent is serving, startup
// fails, or ctx is done.
func (s *Server) Start(ctx context.Context) error {
	if err := s.life.toStarting(ctx); err != nil {
		return err
	}

	startupCtx, cancel := context.WithTimeout(ctx, s.cfg.StartupTimeout)
	defer cancel()

	var lc net.ListenConfig
	listener, err := lc.Listen(startupCtx, "tcp", s.cfg.Listen)
	if err != nil {
		s.life.toFailed(fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err))
		return s.life.lastError()
	}

	opts := []ssh.Option{
		wish.WithAddress(listener.Addr().String()),
		wish.WithPublicKeyAuth(s.publicKeyHandler),
		wish.WithPasswordAuth(s.passwordHandler),
		wish.WithMiddleware(s.sessionMiddleware()),
	}
	if s.cfg.HostKeyPath != "" {
		opts = append(opts, wish.WithHostKeyPath(s.cfg.HostKeyPath))
	}
	srv, err := wish.NewServer(opts...)
	if err != nil {
		_ = listener.Close() // Best-effort cleanup on error
		s.life.toFailed(fmt.Errorf("failed to create SSH server: %w", err))
		return s.life.lastError()
	}

	s.mu.Lock()
	s.srv = srv
	s.listener = listener
	s.addr = listener.Addr().String()
	s.mu.Unlock()

	s.life.wg.Add(1)
	go s.serve(srv, listener)

	select {
	case <-s.life.startedCh:
		s.logger.Info("agent listening", "address", s.addr, "root", s.cfg.Root)
		return nil
	case err := <-s.life.errCh:
		s.life.toFailed(err)
		return err
	case <-startupCtx.Done():
		s.life.toFailed(fmt.Errorf("startup timeout: %w", startupCtx.Err()))
		return s.life.lastError()
	}
}

// Address returns the bound host:port, or "" before a successful Start.
func (s *Server) Address() string {
	select {
	case <-s.life.startedCh:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.addr
	default:
		return ""
	}
}

// Stop shuts the agent down gracefully. Safe to call more than once.
func (s *Server) Stop() error {
	if !s.life.toStopping() {
		s.life.wg.Wait()
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	var shutdownErr error
	s.mu.Lock()
	if s.srv != nil {
		if err := s.srv.Shutdown(shutdownCtx); err != nil && !isClosedConnError(err) {
			s.logger.Error("shutdown error", "error", err)
			shutdownErr = err
		}
	}
	if s.listener != nil {
		_ = s.listener.Close() // Best-effort cleanup during shutdown
	}
	s.mu.Unlock()

	s.life.wg.Wait()
	s.life.toStopped()
	close(s.life.errCh)
	s.logger.Info("agent stopped")
	return shutdownErr
}

// Wait blocks until the agent stops and returns the failure, if any.
func (s *Server) Wait() error {
	s.life.wg.Wait()
	if s.State() == StateFailed {
		return s.life.lastError()
	}
	return nil
}

func (s *Server) serve(srv *ssh.Server, listener net.Listener) {
	defer s.life.wg.Done()

	s.life.toRunning()

	err := srv.Serve(listener)
	if err == nil || errors.Is(err, ssh.ErrServerClosed) || errors.Is(err, net.ErrClosed) {
		return
	}
	s.life.sendError(fmt.Errorf("serve error: %w", err))
}

// passwordHandler accepts exactly the configured token.
func (s *Server) passwordHandler(ctx ssh.Context, password string) bool {
	if subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.Token)) != 1 {
		s.logger.Warn("rejected authentication attempt", "user", ctx.User(), "remote", ctx.RemoteAddr())
		return false
	}
	s.logger.Debug("authenticated", "user", ctx.User(), "remote", ctx.RemoteAddr())
	return true
}

// publicKeyHandler rejects all public keys; only the token is accepted.
func (s *Server) publicKeyHandler(ssh.Context, ssh.PublicKey) bool {
	return false
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func isClosedConnError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, net.ErrClosed)
	}
	return errors.Is(err, net.ErrClosed)
}
