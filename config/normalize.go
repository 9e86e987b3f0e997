package config

import (
	"fmt"
	"strconv"
	"strings"

	"imagecleanse/utils"
)

// Environment variables honoured on top of the config file.
const (
	EnvMediaRoot     = "CLEANSE_MEDIA_ROOT"
	EnvMediaMount    = "MEDIA_MOUNT"
	EnvIgnoreFolders = "CLEANSE_IGNORE_FOLDERS"
	EnvIgnoreFiles   = "CLEANSE_IGNORE_FILES"
	EnvBlurThreshold = "BLUR_THRESHOLD"
	EnvPollInterval  = "CLEANSE_POLL_INTERVAL"
	EnvAPIURL        = "CLEANSE_API_URL"
	EnvDatabase      = "CLEANSE_DB_PATH"
	EnvLogLevel      = "CLEANSE_LOG_LEVEL"
)

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	get := func(key string) (string, bool) {
		value, ok := lookup(key)
		if !ok || strings.TrimSpace(value) == "" {
			return "", false
		}
		return strings.TrimSpace(value), true
	}

	if value, ok := get(EnvMediaRoot); ok {
		c.Paths.MediaRoot = value
	} else if value, ok := get(EnvMediaMount); ok {
		c.Paths.MediaRoot = value
	}
	if value, ok := get(EnvIgnoreFolders); ok {
		c.Scan.IgnoreFolders = utils.SplitList(value)
	}
	if value, ok := get(EnvIgnoreFiles); ok {
		c.Scan.IgnoreFiles = utils.SplitList(value)
	}
	if value, ok := get(EnvBlurThreshold); ok {
		threshold, err := utils.ParseBlurThreshold(value)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvBlurThreshold, err)
		}
		c.Analysis.BlurThreshold = threshold
	}
	if value, ok := get(EnvPollInterval); ok {
		seconds, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s: invalid interval %q", EnvPollInterval, value)
		}
		c.Orchestrator.PollInterval = seconds
	}
	if value, ok := get(EnvAPIURL); ok {
		c.API.RemoteURL = value
	}
	if value, ok := get(EnvDatabase); ok {
		c.Paths.Database = value
	}
	if value, ok := get(EnvLogLevel); ok {
		c.Logging.Level = value
	}
	return nil
}

func (c *Config) normalize() error {
	var err error
	if c.Paths.MediaRoot, err = expandPath(strings.TrimSpace(c.Paths.MediaRoot)); err != nil {
		return fmt.Errorf("media_root: %w", err)
	}
	if c.Paths.Database, err = expandPath(strings.TrimSpace(c.Paths.Database)); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("log_dir: %w", err)
	}
	if c.Paths.LockFile, err = expandPath(strings.TrimSpace(c.Paths.LockFile)); err != nil {
		return fmt.Errorf("lock_file: %w", err)
	}
	if c.Scan.FaceCascade, err = expandPath(strings.TrimSpace(c.Scan.FaceCascade)); err != nil {
		return fmt.Errorf("face_cascade: %w", err)
	}

	c.Scan.IgnoreFolders = utils.CleanList(c.Scan.IgnoreFolders)
	c.Scan.IgnoreFiles = utils.CleanList(c.Scan.IgnoreFiles)

	exts := utils.CleanList(c.Scan.Extensions)
	for i, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[i] = ext
	}
	c.Scan.Extensions = exts

	c.Scan.Extractor = strings.ToLower(strings.TrimSpace(c.Scan.Extractor))
	if c.Scan.Extractor == "" {
		c.Scan.Extractor = defaultExtractor
	}
	c.API.RemoteURL = strings.TrimRight(strings.TrimSpace(c.API.RemoteURL), "/")
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Orchestrator.WatchDebounce <= 0 {
		c.Orchestrator.WatchDebounce = defaultWatchDebounce
	}
	if c.API.TimeoutSeconds <= 0 {
		c.API.TimeoutSeconds = defaultAPITimeout
	}
	return nil
}
