package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"imagecleanse/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config rooted in per-test temp directories.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.MediaRoot = filepath.Join(base, "media")
	cfg.Paths.Database = filepath.Join(base, "state", "catalog.db")
	cfg.Paths.LogDir = filepath.Join(base, "state", "logs")
	cfg.Paths.LockFile = filepath.Join(base, "state", "imagecleanse.lock")
	cfg.Scan.Workers = 2
	cfg.API.Bind = "127.0.0.1:0"

	if err := os.MkdirAll(cfg.Paths.MediaRoot, 0o755); err != nil {
		t.Fatalf("mkdir media root: %v", err)
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithBlurThreshold overrides the blur threshold.
func WithBlurThreshold(v float64) ConfigOption {
	return func(c *config.Config) {
		c.Analysis.BlurThreshold = v
	}
}
