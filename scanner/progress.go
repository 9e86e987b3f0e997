package scanner

import (
	"log/slog"
	"sync"
	"time"

	"imagecleanse/logging"
)

// ProgressTracker counts extraction outcomes and logs them periodically.
type ProgressTracker struct {
	mu         sync.Mutex
	logger     *slog.Logger
	ticker     *time.Ticker
	done       chan struct{}
	stopOnce   sync.Once
	totalFiles int
	processed  int
	errors     int
}

// NewProgressTracker starts periodic progress logging.
func NewProgressTracker(logger *slog.Logger, totalFiles int, interval time.Duration) *ProgressTracker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	p := &ProgressTracker{
		logger:     logger,
		ticker:     time.NewTicker(interval),
		done:       make(chan struct{}),
		totalFiles: totalFiles,
	}
	go p.displayProgress()
	return p
}

func (p *ProgressTracker) displayProgress() {
	for {
		select {
		case <-p.done:
			return
		case <-p.ticker.C:
			processed, errs := p.Counts()
			p.logger.Info("scan progress",
				logging.Int("processed", processed),
				logging.Int("errors", errs),
				logging.Int("total", p.totalFiles),
			)
		}
	}
}

// Record notes the outcome for one file.
func (p *ProgressTracker) Record(path string, err error) {
	p.mu.Lock()
	p.processed++
	if err != nil {
		p.errors++
	}
	p.mu.Unlock()

	logging.ImageProcessed(p.logger, path, err)
}

// Counts returns files processed so far and how many failed.
func (p *ProgressTracker) Counts() (processed, errors int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processed, p.errors
}

// Stop ends periodic logging. It is safe to call more than once.
func (p *ProgressTracker) Stop() {
	p.stopOnce.Do(func() {
		p.ticker.Stop()
		close(p.done)
	})
}
