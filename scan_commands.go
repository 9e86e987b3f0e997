package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"imagecleanse/logging"
	"imagecleanse/resolver"
	"imagecleanse/signalhandler"
	"imagecleanse/types"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var paths []string

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one scan, ingest and resolve cycle",
		Long:  "Run one cycle over the media root. With --path only those root-relative files are scanned.",
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

			env, err := ctx.newCycleEnv(cfg, "")
			if err != nil {
				return err
			}
			defer env.Close()

			var restrict []string
			if len(paths) > 0 {
				restrict = paths
			}
			res, err := env.orch.RunCycle(runCtx, restrict)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Cycle %s\n", res.ID)
			fmt.Fprintf(out, "  files seen: %d, analyzed: %d, errors: %d\n", res.FilesSeen, res.Images, res.Errors)
			fmt.Fprintf(out, "  created: %d, updated: %d, unchanged: %d\n",
				res.Ingest.ImagesCreated, res.Ingest.ImagesUpdated, res.Ingest.ImagesUnchanged)
			if res.Resolved {
				fmt.Fprintf(out, "  duplicate groups touched: %d\n", res.Groups)
			} else if res.Skipped != "" {
				fmt.Fprintf(out, "  skipped: %s\n", res.Skipped)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&paths, "path", nil, "Root-relative file to scan (repeatable)")
	return cmd
}

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var paths []string

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Rebuild duplicate groups from the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cfg, "")
			if err != nil {
				return err
			}
			unlock, err := acquireCycleLock(cfg)
			if err != nil {
				return err
			}
			defer unlock()
			cat, closeCatalog, err := openCatalog(cfg, logger)
			if err != nil {
				return err
			}
			defer closeCatalog()

			var scope []string
			if len(paths) > 0 {
				scope = paths
			}
			groups, err := resolver.New(cat, logger).Rebuild(cmd.Context(), scope)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d duplicate groups written\n", len(groups))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&paths, "path", nil, "Only regroup around these root-relative paths (repeatable)")
	return cmd
}

func newPruneCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove catalog entries whose files no longer exist",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cfg, "")
			if err != nil {
				return err
			}
			unlock, err := acquireCycleLock(cfg)
			if err != nil {
				return err
			}
			defer unlock()
			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			missing, err := missingImages(cmd.Context(), store, cfg.Paths.MediaRoot)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if dryRun || len(missing) == 0 {
				for _, p := range missing {
					fmt.Fprintln(out, p)
				}
				fmt.Fprintf(out, "%d missing images\n", len(missing))
				return nil
			}

			removed, survivors, err := store.RemoveImages(cmd.Context(), missing)
			if err != nil {
				return err
			}
			groups := 0
			if len(survivors) > 0 {
				rebuilt, err := resolver.New(store, logger).Rebuild(cmd.Context(), survivors)
				if err != nil {
					return fmt.Errorf("regroup survivors: %w", err)
				}
				groups = len(rebuilt)
			}
			logger.Info("prune complete", logging.Int("removed", removed), logging.Int("groups", groups))
			fmt.Fprintf(out, "removed %d images, regrouped %d duplicate groups\n", removed, groups)
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List missing images without removing them")
	return cmd
}

type imageLister interface {
	Images(ctx context.Context, q types.ImageQuery) ([]types.ImageRecord, error)
}

// missingImages lists catalog paths with no regular file under root.
func missingImages(ctx context.Context, cat imageLister, root string) ([]string, error) {
	images, err := cat.Images(ctx, types.ImageQuery{})
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, img := range images {
		info, err := os.Stat(filepath.Join(root, filepath.FromSlash(img.Path)))
		switch {
		case errors.Is(err, fs.ErrNotExist):
			missing = append(missing, img.Path)
		case err != nil:
			return nil, fmt.Errorf("stat %s: %w", img.Path, err)
		case !info.Mode().IsRegular():
			missing = append(missing, img.Path)
		}
	}
	return missing, nil
}
