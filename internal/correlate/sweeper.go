package correlate

import (
	"context"
	"time"
)

// defaultSweepInterval and defaultSweepBudget match §4.3's background
// sweeper defaults: a 10s tick bounded to a 100ms budget so sweeping never
// competes meaningfully with the fast path for CPU.
const (
	defaultSweepInterval = 10 * time.Second
	defaultSweepBudget   = 100 * time.Millisecond
)

// RunSweeper blocks, periodically expiring below-threshold windows, until
// ctx is canceled.
func (c *Correlator) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(defaultSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep(defaultSweepBudget)
		}
	}
}
