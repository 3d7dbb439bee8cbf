package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentic-research/tracegen/internal/store"
)

var (
	historyArchive string
	historyRepo    string
	historyModel   string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived generation runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		archive := flagOr(cmd, "archive", historyArchive, cfg.Archive.Path)
		repoName := flagOr(cmd, "repository", historyRepo, cfg.Generation.Repository)
		if archive == "" {
			return fmt.Errorf("no archive: pass --archive or set archive.path")
		}
		arc, err := store.Open(archive)
		if err != nil {
			return err
		}
		defer func() { _ = arc.Close() }() // safe to ignore

		w := cmd.OutOrStdout()
		if historyModel != "" {
			latest, err := arc.Latest(ctx, repoName)
			if err != nil {
				return err
			}
			files, err := arc.FilesForModel(ctx, latest.ID, historyModel)
			if err != nil {
				return err
			}
			for _, f := range files {
				_, _ = fmt.Fprintln(w, f)
			}
			return nil
		}

		gens, err := arc.List(ctx, repoName)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(tw, "GENERATION\tSTRATEGY\tFILES\tCREATED")
		for _, g := range gens {
			_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", g.ID, g.Strategy, g.Files, g.Created.Format(time.RFC3339))
		}
		return tw.Flush()
	},
}

func init() {
	f := historyCmd.Flags()
	f.StringVar(&historyArchive, "archive", "", "SQLite archive")
	f.StringVar(&historyRepo, "repository", "", "Repository name")
	f.StringVar(&historyModel, "model", "", "List the files of this model element in the latest run")
	rootCmd.AddCommand(historyCmd)
}
