package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Paths contains filesystem locations.
type Paths struct {
	MediaRoot string `toml:"media_root"`
	Database  string `toml:"database"`
	LogDir    string `toml:"log_dir"`
	LockFile  string `toml:"lock_file"`
}

// Scan contains scanner and feature extraction settings.
type Scan struct {
	IgnoreFolders []string `toml:"ignore_folders"`
	IgnoreFiles   []string `toml:"ignore_files"`
	Extensions    []string `toml:"extensions"`
	Workers       int      `toml:"workers"`
	// Extractor selects the feature extractor: "native" (pure Go) or "opencv".
	Extractor string `toml:"extractor"`
	// FaceCascade is a Haar cascade XML used by the opencv extractor. Empty disables face detection.
	FaceCascade string `toml:"face_cascade"`
}

// Analysis contains derived-field thresholds.
type Analysis struct {
	BlurThreshold float64 `toml:"blur_threshold"`
}

// Orchestrator contains cycle timing.
type Orchestrator struct {
	PollInterval  int  `toml:"poll_interval"`
	Watch         bool `toml:"watch"`
	WatchDebounce int  `toml:"watch_debounce"`
}

// API contains the catalog sync protocol settings. When RemoteURL is set the
// daemon ingests through that server instead of the local database.
type API struct {
	Bind           string `toml:"bind"`
	RemoteURL      string `toml:"remote_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Logging contains log output settings.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config encapsulates every setting the CLI and daemon need.
type Config struct {
	Paths        Paths        `toml:"paths"`
	Scan         Scan         `toml:"scan"`
	Analysis     Analysis     `toml:"analysis"`
	Orchestrator Orchestrator `toml:"orchestrator"`
	API          API          `toml:"api"`
	Logging      Logging      `toml:"logging"`
}

// ErrMediaRoot indicates the configured media root cannot be used.
var ErrMediaRoot = errors.New("media root unavailable")

// DefaultConfigPath returns the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/imagecleanse/config.toml")
}

// Load reads the config file (if any), applies environment overrides, then
// normalizes and validates the result.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, "", false, err
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("imagecleanse.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories holding the database, logs and lock file.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.LogDir}
	if c.Paths.Database != "" {
		dirs = append(dirs, filepath.Dir(c.Paths.Database))
	}
	if c.Paths.LockFile != "" {
		dirs = append(dirs, filepath.Dir(c.Paths.LockFile))
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// Remote reports whether the catalog lives behind the HTTP sync protocol.
func (c *Config) Remote() bool {
	return strings.TrimSpace(c.API.RemoteURL) != ""
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() (string, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode config: %w", err)
	}
	return string(data), nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
