package recovery

import (
	"context"
	"time"

	"github.com/nainya/treestore/internal/logger"
)

// Checkpointer runs periodic checkpoints against a Manager on a ticker,
// mirroring the teacher's WAL checkpointer shape but driven by a context
// instead of its own stop channel so it composes with an errgroup-based
// supervisor.
type Checkpointer struct {
	mgr      *Manager
	interval time.Duration
	log      *logger.Logger

	latest *Checkpoint
}

// NewCheckpointer builds a checkpointer over mgr, firing every interval.
func NewCheckpointer(mgr *Manager, interval time.Duration, log *logger.Logger) *Checkpointer {
	return &Checkpointer{mgr: mgr, interval: interval, log: log.Component("checkpointer")}
}

// Latest returns the most recent checkpoint taken, or nil if none yet.
func (c *Checkpointer) Latest() *Checkpoint { return c.latest }

// Run fires a checkpoint every interval until ctx is canceled. Intended to
// be launched under an errgroup so its shutdown is coordinated with the
// rest of the engine's background goroutines.
func (c *Checkpointer) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			ck := c.mgr.Checkpoint()
			c.latest = ck
			if c.log != nil {
				c.log.Debug("checkpoint taken").Uint64("persisted_lsn", ck.PersistedLSN).Int("active_txns", len(ck.ATT)).Send()
			}
		}
	}
}
