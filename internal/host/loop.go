// Package host provides the single-threaded host execution context. All
// registry mutation and all completion delivery happens on one loop
// goroutine: callers post closures with Call, and the loop drains the
// callback bridge whenever a worker signals it. The loop never blocks on a
// running job — submission returns immediately and results arrive through
// the bridge.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/seantiz/tensord/internal/engine"
)

// taskBuffer bounds how many posted closures may wait before Call blocks.
const taskBuffer = 64

// ErrStopped is returned by Call once the loop has shut down.
var ErrStopped = errors.New("host loop is stopped")

// Loop is the host execution context.
type Loop struct {
	tasks  chan func()
	bridge *engine.Bridge
	logger *slog.Logger
	quit   chan struct{}
	done   chan struct{}
}

// NewLoop creates a loop draining the given bridge. Call Start to run it.
func NewLoop(bridge *engine.Bridge, logger *slog.Logger) *Loop {
	return &Loop{
		tasks:  make(chan func(), taskBuffer),
		bridge: bridge,
		logger: logger,
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start launches the loop goroutine.
func (l *Loop) Start() {
	go l.run()
}

func (l *Loop) run() {
	defer close(l.done)
	for {
		select {
		case fn := <-l.tasks:
			fn()
		case <-l.bridge.Ready():
			l.bridge.Drain()
		case <-l.quit:
			l.shutdown()
			return
		}
	}
}

// shutdown runs remaining posted tasks and performs a final bridge drain.
// The worker pool must already be closed, so no new completions can arrive
// after the drain.
func (l *Loop) shutdown() {
	for {
		select {
		case fn := <-l.tasks:
			fn()
		default:
			if n := l.bridge.Drain(); n > 0 {
				l.logger.Info("delivered remaining jobs at shutdown", "count", n)
			}
			return
		}
	}
}

// Call posts fn to the loop and blocks until it has run. A panic in fn is
// contained on the loop goroutine and surfaces here as an error. fn must not
// call back into Call — the loop is single-threaded and would deadlock.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	var panicErr error
	task := func() {
		defer close(ran)
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error("host task panicked", "panic", r)
				panicErr = fmt.Errorf("host task panicked: %v", r)
			}
		}()
		fn()
	}

	select {
	case l.tasks <- task:
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-ran:
		return panicErr
	case <-l.done:
		// The shutdown path drains the task queue, so fn normally still ran.
		select {
		case <-ran:
			return panicErr
		default:
			return ErrStopped
		}
	}
}

// Stop shuts the loop down and waits for it to exit. Close the worker pool
// first so every in-flight job has reached the bridge.
func (l *Loop) Stop() {
	close(l.quit)
	<-l.done
}
