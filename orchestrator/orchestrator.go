// Package orchestrator drives scan → ingest → resolve cycles on a fixed
// interval, plus targeted cycles requested through Trigger.
package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"imagecleanse/logging"
	"imagecleanse/resolver"
	"imagecleanse/scanner"
	"imagecleanse/types"
)

// ErrCycleRunning is returned when a cycle is requested while another one holds the loop.
var ErrCycleRunning = errors.New("cycle already running")

// Catalog is everything a cycle needs from the catalog store.
type Catalog interface {
	resolver.Catalog
	Ingest(ctx context.Context, report *types.ScanReport) (types.IngestSummary, error)
}

// Scanner produces a scan report for one cycle.
type Scanner interface {
	Scan(ctx context.Context, opts scanner.Options) (*types.ScanReport, error)
}

// State is the orchestrator lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunningCycle
)

func (s State) String() string {
	if s == StateRunningCycle {
		return "RUNNING_CYCLE"
	}
	return "IDLE"
}

// CycleResult summarizes one cycle.
type CycleResult struct {
	ID        string              `json:"cycle_id"`
	StartedAt time.Time           `json:"started_at"`
	Duration  time.Duration       `json:"duration"`
	Targeted  bool                `json:"targeted"`
	FilesSeen int                 `json:"files_seen"`
	Images    int                 `json:"images"`
	Errors    int                 `json:"errors"`
	Ingest    types.IngestSummary `json:"ingest"`
	Groups    int                 `json:"groups"`
	Resolved  bool                `json:"resolved"`
	// Skipped names the step at which the cycle stopped early, if any.
	Skipped string `json:"skipped,omitempty"`
}

// Options configures the cycle loop.
type Options struct {
	Scan     scanner.Options
	Interval time.Duration
}

// Orchestrator owns the cycle loop.
type Orchestrator struct {
	scanner  Scanner
	catalog  Catalog
	resolver *resolver.Resolver
	opts     Options
	logger   *slog.Logger

	cycleMu sync.Mutex
	state   atomic.Int32

	mu        sync.Mutex
	pending   []string
	pendFull  bool
	triggered map[string]struct{}
	fullScan  bool
	last      *CycleResult

	wake chan struct{}
}

// New builds an orchestrator. Interval defaults to one minute.
func New(sc Scanner, catalog Catalog, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	return &Orchestrator{
		scanner:   sc,
		catalog:   catalog,
		resolver:  resolver.New(catalog, logger),
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "orchestrator"),
		triggered: make(map[string]struct{}),
		wake:      make(chan struct{}, 1),
	}
}

// State reports whether a cycle is in progress.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// LastCycle returns the most recent completed cycle, if any.
func (o *Orchestrator) LastCycle() (CycleResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.last == nil {
		return CycleResult{}, false
	}
	return *o.last, true
}

// Trigger requests a targeted cycle over paths relative to the media root. An
// empty list requests a full scan. Requests made while a cycle runs are merged
// and served once it finishes.
func (o *Orchestrator) Trigger(paths []string) {
	o.mu.Lock()
	if len(paths) == 0 {
		o.fullScan = true
	}
	for _, p := range paths {
		o.triggered[p] = struct{}{}
	}
	o.mu.Unlock()

	select {
	case o.wake <- struct{}{}:
	default:
	}
}

// takeTriggered drains pending trigger requests. full is true when any
// request asked for a full scan.
func (o *Orchestrator) takeTriggered() (paths []string, full bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	full = o.fullScan
	for p := range o.triggered {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	o.triggered = make(map[string]struct{})
	o.fullScan = false
	return paths, full
}

// markPending records a rebuild that failed so the next cycle retries it.
func (o *Orchestrator) markPending(scope []string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if scope == nil {
		o.pendFull = true
		return
	}
	o.pending = append(o.pending, scope...)
}

func (o *Orchestrator) takePending() (scope []string, full, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	scope, full = o.pending, o.pendFull
	ok = full || len(scope) > 0
	o.pending, o.pendFull = nil, false
	return scope, full, ok
}

func (o *Orchestrator) setLast(res CycleResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.last = &res
}
