package main

import (
	"time"

	"github.com/spf13/cobra"

	"imagecleanse/api"
	"imagecleanse/database"
	"imagecleanse/logging"
	"imagecleanse/signalhandler"
	"imagecleanse/watcher"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var noAPI bool
	var watch bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run scan cycles on an interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			unlock, err := acquireCycleLock(cfg)
			if err != nil {
				return err
			}
			defer unlock()

			runCtx, cancel := signalhandler.NotifyContext(cmd.Context())
			defer cancel()

			env, err := ctx.newCycleEnv(cfg, "imagecleanse.log")
			if err != nil {
				return err
			}
			defer env.Close()
			logger := env.logger

			if store, local := env.catalog.(*database.Store); local && !noAPI && cfg.API.Bind != "" {
				srv := api.NewServer(store, env.orch, logger)
				if err := srv.Start(runCtx, cfg.API.Bind); err != nil {
					return err
				}
				defer srv.Stop()
			}

			if watch || cfg.Orchestrator.Watch {
				w, err := watcher.New(watcher.Options{
					Root:          cfg.Paths.MediaRoot,
					IgnoreFolders: cfg.Scan.IgnoreFolders,
					Debounce:      time.Duration(cfg.Orchestrator.WatchDebounce) * time.Second,
				}, env.orch, logger)
				if err != nil {
					return err
				}
				go func() {
					if err := w.Run(runCtx); err != nil {
						logger.Warn("watcher stopped", logging.Error(err))
					}
				}()
			}

			logger.Info("imagecleanse daemon started",
				logging.String("media_root", cfg.Paths.MediaRoot),
				logging.String("lock", cfg.Paths.LockFile),
				logging.Bool("remote_catalog", cfg.Remote()),
			)
			err = env.orch.Run(runCtx)
			logger.Info("imagecleanse daemon stopped")
			return err
		},
	}

	cmd.Flags().BoolVar(&noAPI, "no-api", false, "Do not serve the catalog API")
	cmd.Flags().BoolVar(&watch, "watch", false, "Trigger targeted scans on filesystem changes")
	return cmd
}
