package testsupport

import (
	"context"
	"testing"
	"time"

	"imagecleanse/config"
	"imagecleanse/database"
	"imagecleanse/logging"
	"imagecleanse/types"
)

// MustOpenStore opens a catalog store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *database.Store {
	t.Helper()

	store, err := database.Open(cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// NewReport builds a valid scan report over folder from (path, features) pairs.
func NewReport(folder string, images ...types.ImageFeature) *types.ScanReport {
	now := time.Now().UTC()
	return &types.ScanReport{
		Folder:     folder,
		StartedAt:  now.Add(-time.Second),
		FinishedAt: now,
		Images:     images,
		FilesSeen:  len(images),
	}
}

// Image pairs a path with features.
func Image(path, hash string, blur float64) types.ImageFeature {
	return types.ImageFeature{Path: path, Features: Features(hash, blur)}
}

// MustIngest ingests report and fails the test on error.
func MustIngest(t testing.TB, store *database.Store, report *types.ScanReport) types.IngestSummary {
	t.Helper()

	summary, err := store.Ingest(context.Background(), report)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	return summary
}
