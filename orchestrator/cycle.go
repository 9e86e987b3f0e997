package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"imagecleanse/logging"
	"imagecleanse/scanner"
)

// Steps at which a cycle can stop early.
const (
	SkippedIngest  = "ingest"
	SkippedResolve = "resolve"
)

// RunCycle runs one scan → ingest → resolve cycle. A non-nil restrictTo
// limits the scan to those root-relative paths. Persistence steps are not
// interrupted by ctx; a cancelled scan discards its partial report.
func (o *Orchestrator) RunCycle(ctx context.Context, restrictTo []string) (CycleResult, error) {
	if !o.cycleMu.TryLock() {
		o.logger.Warn("cycle already running; request skipped",
			logging.String(logging.FieldEventType, "cycle_overlap"))
		return CycleResult{}, ErrCycleRunning
	}
	defer o.cycleMu.Unlock()

	o.state.Store(int32(StateRunningCycle))
	defer o.state.Store(int32(StateIdle))

	res := CycleResult{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Targeted:  restrictTo != nil,
	}
	logger := o.logger.With(logging.String(logging.FieldCycleID, res.ID))

	err := o.guardedCycle(ctx, logger, restrictTo, &res)
	res.Duration = time.Since(res.StartedAt)

	switch {
	case err == nil:
		o.setLast(res)
		logger.Info("cleanse cycle complete",
			logging.Bool("targeted", res.Targeted),
			logging.Int("files_seen", res.FilesSeen),
			logging.Int("images", res.Images),
			logging.Int("errors", res.Errors),
			logging.Int("created", res.Ingest.ImagesCreated),
			logging.Int("updated", res.Ingest.ImagesUpdated),
			logging.Int("unchanged", res.Ingest.ImagesUnchanged),
			logging.Int("groups", res.Groups),
			logging.String("skipped", res.Skipped),
			logging.Duration("elapsed", res.Duration),
		)
	case scanner.IsCancelled(err):
		logger.Info("cleanse cycle cancelled", logging.Duration("elapsed", res.Duration))
	default:
		logger.Error("cleanse cycle failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "cycle_failed"),
			logging.Duration("elapsed", res.Duration),
		)
	}
	return res, err
}

// guardedCycle converts a panic anywhere in the cycle into an error so the
// loop in Run keeps going.
func (o *Orchestrator) guardedCycle(ctx context.Context, logger *slog.Logger, restrictTo []string, res *CycleResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("cleanse cycle panic",
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())))
			err = fmt.Errorf("cycle panic: %v", r)
		}
	}()
	return o.runCycle(ctx, logger, restrictTo, res)
}

func (o *Orchestrator) runCycle(ctx context.Context, logger *slog.Logger, restrictTo []string, res *CycleResult) error {
	opts := o.opts.Scan
	opts.RestrictTo = restrictTo

	report, err := o.scanner.Scan(ctx, opts)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	res.FilesSeen = report.FilesSeen
	res.Images = len(report.Images)
	res.Errors = len(report.Errors)

	// Past this point the catalog is written; finish even if ctx is cancelled.
	persistCtx := context.WithoutCancel(ctx)

	changed := false
	if len(report.Images) > 0 {
		summary, err := o.catalog.Ingest(persistCtx, report)
		if err != nil {
			return fmt.Errorf("ingest: %w", err)
		}
		res.Ingest = summary
		changed = summary.Changed()
	}

	pendingScope, pendingFull, pending := o.takePending()
	if !changed && !pending {
		if len(report.Images) == 0 {
			res.Skipped = SkippedIngest
		} else {
			res.Skipped = SkippedResolve
		}
		logger.Debug("nothing to resolve", logging.String("skipped", res.Skipped))
		return nil
	}

	var scope []string
	if !pendingFull {
		scope = make([]string, 0, len(pendingScope)+len(report.Images))
		scope = append(scope, pendingScope...)
		if changed {
			scope = append(scope, report.Paths()...)
		}
	}

	groups, err := o.resolver.Rebuild(persistCtx, scope)
	if err != nil {
		o.markPending(scope)
		return fmt.Errorf("resolve: %w", err)
	}
	res.Groups = len(groups)
	res.Resolved = true
	return nil
}
