package commands

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wpsim/hairpin/src/internal/log"
)

// PeriodicRunner calls a function on a fixed interval in its own goroutine.
// A panic or error in one pass is logged and the next tick runs as usual.
type PeriodicRunner struct {
	name     string
	interval time.Duration
	runFunc  func(ctx context.Context) error

	mu        sync.RWMutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	lastError error
	runs      int
	failures  int
}

// NewPeriodicRunner creates a new periodic runner.
func NewPeriodicRunner(name string, interval time.Duration, runFunc func(ctx context.Context) error) *PeriodicRunner {
	return &PeriodicRunner{
		name:     name,
		interval: interval,
		runFunc:  runFunc,
	}
}

// Start starts the runner. The first pass runs after one interval.
func (r *PeriodicRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return fmt.Errorf("%s is already running", r.name)
	}
	if r.interval <= 0 {
		return fmt.Errorf("%s: interval must be positive, got %v", r.name, r.interval)
	}

	ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	r.running = true

	go r.runLoop(ctx, r.done)

	return nil
}

// Stop cancels the current pass and waits for the loop to exit.
func (r *PeriodicRunner) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	cancel()

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		return fmt.Errorf("%s: timeout waiting for stop", r.name)
	}

	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	return nil
}

// IsRunning returns true if the runner is currently running.
func (r *PeriodicRunner) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// LastError returns the error of the last pass.
func (r *PeriodicRunner) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastError
}

// Runs returns the number of completed passes and how many of them failed.
func (r *PeriodicRunner) Runs() (int, int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.runs, r.failures
}

func (r *PeriodicRunner) runLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Infof("%s: context cancelled, stopping", r.name)
			return
		case <-ticker.C:
		}

		err := r.runWithRecovery(ctx)

		r.mu.Lock()
		r.lastError = err
		r.runs++
		if err != nil {
			r.failures++
		}
		r.mu.Unlock()

		if err != nil {
			log.Errorf("%s: pass failed: %v", r.name, err)
		}
	}
}

// runWithRecovery runs the function and recovers from panics.
func (r *PeriodicRunner) runWithRecovery(ctx context.Context) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("panic: %v", recovered)
		}
	}()

	return r.runFunc(ctx)
}
