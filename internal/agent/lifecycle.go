// SPDX-License-Identifier: MPL-2.0

package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	// StateCreated means Start has not been called.
	StateCreated State = iota
	// StateStarting means the listener is being set up.
	StateStarting
	// StateRunning means the agent accepts connections.
	StateRunning
	// StateStopping means graceful shutdown is in progress.
	StateStopping
	// StateStopped is terminal.
	StateStopped
	// StateFailed is terminal: startup or serving failed.
	StateFailed
)

type (
	// State is the lifecycle state of a Server.
	State int32

	// lifecycle tracks the single-use Created -> ... -> Stopped|Failed
	// progression of a server and the goroutines it owns.
	lifecycle struct {
		state atomic.Int32

		mu      sync.Mutex
		lastErr error

		ctx       context.Context
		cancel    context.CancelFunc
		wg        sync.WaitGroup
		startedCh chan struct{}
		errCh     chan error
	}
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s State) IsTerminal() bool {
	return s == StateStopped || s == StateFailed
}

func newLifecycle() *lifecycle {
	return &lifecycle{
		startedCh: make(chan struct{}),
		errCh:     make(chan error, 1),
	}
}

func (l *lifecycle) current() State {
	return State(l.state.Load())
}

func (l *lifecycle) lastError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// toStarting moves Created -> Starting. A cancelled ctx fails the server
// before anything is set up.
func (l *lifecycle) toStarting(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		l.toFailed(fmt.Errorf("context cancelled before start: %w", err))
		return l.lastError()
	}
	if !l.state.CompareAndSwap(int32(StateCreated), int32(StateStarting)) {
		return fmt.Errorf("cannot start agent in state %s", l.current())
	}
	l.ctx, l.cancel = context.WithCancel(context.Background())
	return nil
}

func (l *lifecycle) toRunning() {
	if l.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		close(l.startedCh)
	}
}

func (l *lifecycle) toFailed(err error) {
	l.mu.Lock()
	l.lastErr = err
	l.mu.Unlock()

	l.state.Store(int32(StateFailed))
	if l.cancel != nil {
		l.cancel()
	}
	l.sendError(err)
}

// toStopping reports whether the caller owns the shutdown.
func (l *lifecycle) toStopping() bool {
	for {
		cur := l.current()
		switch cur {
		case StateCreated:
			if l.state.CompareAndSwap(int32(StateCreated), int32(StateStopped)) {
				return false
			}
		case StateStarting, StateRunning:
			if l.state.CompareAndSwap(int32(cur), int32(StateStopping)) {
				if l.cancel != nil {
					l.cancel()
				}
				return true
			}
		default:
			return false
		}
	}
}

func (l *lifecycle) toStopped() {
	l.state.Store(int32(StateStopped))
}

func (l *lifecycle) sendError(err error) {
	select {
	case l.errCh <- err:
	default:
	}
}
