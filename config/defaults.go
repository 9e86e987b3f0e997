package config

import (
	"os"
	"path/filepath"
	"strings"

	"imagecleanse/signalhandler"
	"imagecleanse/types"
)

const (
	defaultPollInterval   = 60
	defaultWatchDebounce  = 2
	defaultAPIBind        = "127.0.0.1:8000"
	defaultAPITimeout     = 30
	defaultExtractor      = ExtractorNative
	defaultLogLevel       = "info"
	defaultLogFormat      = "console"
	defaultMediaRootValue = "../mnt"
)

// Extractor names accepted in [scan].extractor.
const (
	ExtractorNative = "native"
	ExtractorOpenCV = "opencv"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	stateDir := defaultStateDir()
	return Config{
		Paths: Paths{
			MediaRoot: defaultMediaRootValue,
			Database:  filepath.Join(stateDir, "catalog.db"),
			LogDir:    filepath.Join(stateDir, "logs"),
			LockFile:  filepath.Join(stateDir, "imagecleanse.lock"),
		},
		Scan: Scan{
			IgnoreFolders: []string{".thumbnails", "ignore_dir"},
			IgnoreFiles:   []string{".DS_Store", "ignore_file"},
			Extensions:    []string{".jpg", ".jpeg", ".png"},
			Workers:       signalhandler.OptimalWorkers(),
			Extractor:     defaultExtractor,
		},
		Analysis: Analysis{
			BlurThreshold: types.DefaultBlurThreshold,
		},
		Orchestrator: Orchestrator{
			PollInterval:  defaultPollInterval,
			WatchDebounce: defaultWatchDebounce,
		},
		API: API{
			Bind:           defaultAPIBind,
			TimeoutSeconds: defaultAPITimeout,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
	}
}

func defaultStateDir() string {
	if base, ok := os.LookupEnv("XDG_STATE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "imagecleanse")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "imagecleanse")
	}
	return filepath.Join(home, ".local", "state", "imagecleanse")
}
