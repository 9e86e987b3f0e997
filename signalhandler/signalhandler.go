package signalhandler

import (
	"context"
	"os/signal"
	"runtime"
	"syscall"
)

// NotifyContext returns a context cancelled on SIGINT or SIGTERM. Cancellation is
// the graceful-stop signal: loops stop starting new work and let in-flight
// commits finish.
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// OptimalWorkers returns the number of concurrent feature extractions to run.
func OptimalWorkers() int {
	numCPU := runtime.NumCPU()

	// Image decoding through cgo stalls with too many goroutines.
	maxProcs := (numCPU * 3) / 4
	if maxProcs < 1 {
		maxProcs = 1
	}

	return maxProcs
}
