// Package lifecycle coordinates the shutdown of the engine's background
// goroutines — the admin server and each open database's recovery
// checkpointer — through a single errgroup so cmd/engine can bring them
// down together on exit instead of leaking goroutines.
package lifecycle

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Supervisor runs a set of context-aware background tasks and waits for
// all of them to finish on Shutdown.
type Supervisor struct {
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a Supervisor rooted at a cancelable context derived from
// parent.
func New(parent context.Context) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	group, ctx := errgroup.WithContext(ctx)
	return &Supervisor{group: group, ctx: ctx, cancel: cancel}
}

// Go launches fn under the supervisor's errgroup. fn must return once
// ctx.Done() fires.
func (s *Supervisor) Go(fn func(ctx context.Context) error) {
	s.group.Go(func() error { return fn(s.ctx) })
}

// Shutdown cancels every task's context and waits for them all to return,
// propagating the first non-nil error.
func (s *Supervisor) Shutdown() error {
	s.cancel()
	return s.group.Wait()
}
