package main

import (
	"errors"
	"fmt"

	"github.com/gofrs/flock"

	"imagecleanse/config"
)

var errCatalogLocked = errors.New("another imagecleanse process is running cycles on this catalog")

// acquireCycleLock takes the process lock that serialises scan, resolve and
// prune work across processes sharing one catalog. The returned func releases it.
func acquireCycleLock(cfg *config.Config) (func(), error) {
	lock := flock.New(cfg.Paths.LockFile)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w (lock %s)", errCatalogLocked, cfg.Paths.LockFile)
	}
	return func() { _ = lock.Unlock() }, nil
}
