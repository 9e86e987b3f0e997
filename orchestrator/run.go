package orchestrator

import (
	"context"
	"time"

	"imagecleanse/logging"
)

// Run executes a cycle immediately and then one per interval until ctx is
// cancelled. Triggered requests run between ticks. Cycle errors are logged
// and the loop keeps going.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator started", logging.Duration("interval", o.opts.Interval))

	ticker := time.NewTicker(o.opts.Interval)
	defer ticker.Stop()

	o.cycle(ctx, nil)
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator stopped")
			return nil
		case <-ticker.C:
			o.cycle(ctx, nil)
		case <-o.wake:
			paths, full := o.takeTriggered()
			switch {
			case full:
				o.cycle(ctx, nil)
			case len(paths) > 0:
				o.cycle(ctx, paths)
			}
		}
	}
}

func (o *Orchestrator) cycle(ctx context.Context, restrictTo []string) {
	if ctx.Err() != nil {
		return
	}
	// RunCycle logs its own outcome.
	_, _ = o.RunCycle(ctx, restrictTo)
}
