package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"imagecleanse/api"
	"imagecleanse/config"
	"imagecleanse/database"
	"imagecleanse/imageprocessor"
	"imagecleanse/imageprocessor/opencv"
	"imagecleanse/logging"
	"imagecleanse/orchestrator"
	"imagecleanse/scanner"
	"imagecleanse/types"
)

type commandContext struct {
	configFlag *string
	verbose    *bool

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error
}

func newCommandContext(configFlag *string, verbose *bool) *commandContext {
	return &commandContext{configFlag: configFlag, verbose: verbose}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config, c.configPath, c.configExists = cfg, resolved, exists
	})
	return c.config, c.configErr
}

// logger builds the process logger. fileName, when set, is created inside the
// configured log directory.
func (c *commandContext) logger(cfg *config.Config, fileName string) (*slog.Logger, error) {
	level := cfg.Logging.Level
	if c.verbose != nil && *c.verbose {
		level = "debug"
	}
	opts := logging.Options{Level: level, Format: cfg.Logging.Format}
	if fileName != "" && cfg.Paths.LogDir != "" {
		opts.LogFile = filepath.Join(cfg.Paths.LogDir, fileName)
	}
	logger, err := logging.New(opts)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

// catalog is the catalog surface shared by the SQLite store and the HTTP client.
type catalog interface {
	orchestrator.Catalog
	Groups(ctx context.Context, ids []string) ([]types.DuplicateGroup, error)
	Stats(ctx context.Context) (types.CatalogStats, error)
}

var (
	_ catalog = (*database.Store)(nil)
	_ catalog = (*api.Client)(nil)
)

// openCatalog returns the remote catalog when api.remote_url is set, else the
// local store. The returned close func is never nil.
func openCatalog(cfg *config.Config, logger *slog.Logger) (catalog, func() error, error) {
	if cfg.Remote() {
		client, err := api.NewClient(cfg.API.RemoteURL, time.Duration(cfg.API.TimeoutSeconds)*time.Second)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using remote catalog", logging.String("url", cfg.API.RemoteURL))
		return client, func() error { return nil }, nil
	}
	store, err := database.Open(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

var errRemoteCatalog = errors.New("this command needs the local catalog database; unset api.remote_url")

func openStore(cfg *config.Config, logger *slog.Logger) (*database.Store, error) {
	if cfg.Remote() {
		return nil, errRemoteCatalog
	}
	return database.Open(cfg, logger)
}

// newExtractor builds the configured feature extractor. The two extractors
// produce different hash families, so a catalog should stick with one.
func newExtractor(cfg *config.Config) (imageprocessor.Extractor, func(), error) {
	switch cfg.Scan.Extractor {
	case config.ExtractorOpenCV:
		ex, err := opencv.New(cfg.Scan.FaceCascade)
		if err != nil {
			return nil, nil, err
		}
		return ex, func() { _ = ex.Close() }, nil
	default:
		return imageprocessor.NewNativeExtractor(), func() {}, nil
	}
}

func scanOptions(cfg *config.Config) scanner.Options {
	return scanner.Options{
		Root:          cfg.Paths.MediaRoot,
		IgnoreFolders: cfg.Scan.IgnoreFolders,
		IgnoreFiles:   cfg.Scan.IgnoreFiles,
		Extensions:    cfg.Scan.Extensions,
		Workers:       cfg.Scan.Workers,
	}
}

// cycleEnv bundles everything a scan cycle needs.
type cycleEnv struct {
	logger  *slog.Logger
	catalog catalog
	orch    *orchestrator.Orchestrator
	closers []func()
}

func (e *cycleEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func (c *commandContext) newCycleEnv(cfg *config.Config, logFile string) (*cycleEnv, error) {
	logger, err := c.logger(cfg, logFile)
	if err != nil {
		return nil, err
	}
	env := &cycleEnv{logger: logger}

	cat, closeCatalog, err := openCatalog(cfg, logger)
	if err != nil {
		return nil, err
	}
	env.catalog = cat
	env.closers = append(env.closers, func() {
		if err := closeCatalog(); err != nil {
			logger.Warn("close catalog", logging.Error(err))
		}
	})

	extractor, closeExtractor, err := newExtractor(cfg)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.closers = append(env.closers, closeExtractor)

	sc := scanner.New(extractor, logger)
	env.orch = orchestrator.New(sc, cat, orchestrator.Options{
		Scan:     scanOptions(cfg),
		Interval: time.Duration(cfg.Orchestrator.PollInterval) * time.Second,
	}, logger)
	return env, nil
}
