package config

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"strings"
)

// Validate reports configuration errors. A missing or unreadable media root is
// fatal: the daemon refuses to start rather than scanning nothing forever.
func (c *Config) Validate() error {
	var errs []error

	if err := c.validateMediaRoot(); err != nil {
		errs = append(errs, err)
	}
	if strings.TrimSpace(c.Paths.Database) == "" && !c.Remote() {
		errs = append(errs, errors.New("paths.database is required when no remote catalog is configured"))
	}
	if math.IsNaN(c.Analysis.BlurThreshold) || c.Analysis.BlurThreshold < 0 {
		errs = append(errs, fmt.Errorf("analysis.blur_threshold must be >= 0, got %v", c.Analysis.BlurThreshold))
	}
	if c.Orchestrator.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("orchestrator.poll_interval must be positive, got %d", c.Orchestrator.PollInterval))
	}
	if c.Scan.Workers < 1 {
		errs = append(errs, fmt.Errorf("scan.workers must be at least 1, got %d", c.Scan.Workers))
	}
	if len(c.Scan.Extensions) == 0 {
		errs = append(errs, errors.New("scan.extensions must list at least one extension"))
	}
	switch c.Scan.Extractor {
	case ExtractorNative, ExtractorOpenCV:
	default:
		errs = append(errs, fmt.Errorf("scan.extractor: unsupported value %q", c.Scan.Extractor))
	}
	if c.Scan.FaceCascade != "" {
		if _, err := os.Stat(c.Scan.FaceCascade); err != nil {
			errs = append(errs, fmt.Errorf("scan.face_cascade: %w", err))
		}
	}
	if c.Remote() {
		parsed, err := url.Parse(c.API.RemoteURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			errs = append(errs, fmt.Errorf("api.remote_url: invalid URL %q", c.API.RemoteURL))
		}
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format))
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level))
	}

	return errors.Join(errs...)
}

func (c *Config) validateMediaRoot() error {
	if strings.TrimSpace(c.Paths.MediaRoot) == "" {
		return fmt.Errorf("%w: paths.media_root is required", ErrMediaRoot)
	}
	info, err := os.Stat(c.Paths.MediaRoot)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMediaRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrMediaRoot, c.Paths.MediaRoot)
	}
	dir, err := os.Open(c.Paths.MediaRoot)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMediaRoot, err)
	}
	_ = dir.Close()
	return nil
}
