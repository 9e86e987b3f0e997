package main

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"imagecleanse/api"
	"imagecleanse/logging"
	"imagecleanse/signalhandler"
)

func newDuplicatesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "duplicates",
		Short: "List duplicate groups, primary first",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cfg, "")
			if err != nil {
				return err
			}
			cat, closeCatalog, err := openCatalog(cfg, logger)
			if err != nil {
				return err
			}
			defer closeCatalog()

			groups, err := cat.Groups(cmd.Context(), nil)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(groups) == 0 {
				fmt.Fprintln(out, "No duplicate groups")
				return nil
			}

			var rows [][]string
			var reclaimable uint64
			for _, g := range groups {
				for _, m := range g.Members {
					role := "copy"
					if m.IsPrimary {
						role = "keep"
					} else {
						reclaimable += uint64(m.FileSize)
					}
					rows = append(rows, []string{
						g.ID,
						role,
						m.Path,
						strconv.FormatFloat(m.BlurScore, 'f', 1, 64),
						fmt.Sprintf("%dx%d", m.Width, m.Height),
						humanize.Bytes(uint64(m.FileSize)),
						strconv.Itoa(m.HashDistance),
					})
				}
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Group", "Role", "Path", "Blur", "Size", "Bytes", "Distance"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
			))
			fmt.Fprintf(out, "%d groups, %s reclaimable\n", len(groups), humanize.Bytes(reclaimable))
			return nil
		},
	}
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show catalog counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cfg, "")
			if err != nil {
				return err
			}
			cat, closeCatalog, err := openCatalog(cfg, logger)
			if err != nil {
				return err
			}
			defer closeCatalog()

			st, err := cat.Stats(cmd.Context())
			if err != nil {
				return err
			}
			rows := [][]string{
				{"Folders", humanize.Comma(int64(st.Folders))},
				{"Images", humanize.Comma(int64(st.Images))},
				{"Analyzed", humanize.Comma(int64(st.AnalyzedImages))},
				{"Blurry", humanize.Comma(int64(st.BlurryImages))},
				{"With faces", humanize.Comma(int64(st.FaceImages))},
				{"Unique hashes", humanize.Comma(int64(st.UniqueHashes))},
				{"Duplicate groups", humanize.Comma(int64(st.DuplicateGroups))},
				{"Images in groups", humanize.Comma(int64(st.DuplicateImages))},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Metric", "Value"}, rows,
				[]columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the catalog API without running scan cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.logger(cfg, "imagecleanse-api.log")
			if err != nil {
				return err
			}
			store, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			if bind == "" {
				bind = cfg.API.Bind
			}
			runCtx, cancel := signalhandler.NotifyContext(cmd.Context())
			defer cancel()

			srv := api.NewServer(store, nil, logger)
			if err := srv.Start(runCtx, bind); err != nil {
				return err
			}
			<-runCtx.Done()
			srv.Stop()
			logger.Info("api server stopped", logging.String("address", srv.Addr()))
			return nil
		},
	}
	cmd.Flags().StringVar(&bind, "bind", "", "Listen address (defaults to api.bind)")
	return cmd
}
