package cmd

import (
	"fmt"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/agentic-research/tracegen/internal/generate"
	"github.com/agentic-research/tracegen/internal/repo"
	"github.com/agentic-research/tracegen/internal/store"
	"github.com/agentic-research/tracegen/internal/trace"
)

var (
	planPath        string
	outDir          string
	genMode         string
	orderedSlots    []string
	archivePath     string
	repository      string
	generationID    string
	priorGeneration string
	validateOutput  bool
	strictOutput    bool
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate files from a plan, keeping hand edits of the previous run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		out := flagOr(cmd, "out", outDir, cfg.Output.Dir)
		modeName := flagOr(cmd, "mode", genMode, cfg.Generation.Mode)
		repoName := flagOr(cmd, "repository", repository, cfg.Generation.Repository)
		archive := flagOr(cmd, "archive", archivePath, cfg.Archive.Path)
		slots := cfg.Generation.OrderedSlots
		if cmd.Flags().Changed("ordered-slot") {
			slots = orderedSlots
		}
		validate := cfg.Output.Validate
		if cmd.Flags().Changed("validate") {
			validate = validateOutput
		}
		strict := cfg.Output.Strict
		if cmd.Flags().Changed("strict") {
			strict = strictOutput
		}

		mode, err := generate.ParseMode(modeName)
		if err != nil {
			return err
		}
		plan, err := generate.LoadPlan(planPath)
		if err != nil {
			return err
		}

		ws := repo.NewWorkspace(osfs.New(out), cfg.Output.TracesDir)

		var arc *store.Archive
		if archive != "" {
			if arc, err = store.Open(archive); err != nil {
				return err
			}
			defer func() { _ = arc.Close() }() // safe to ignore
		}

		var prior *trace.TraceModel
		var priorErrs map[string]error
		switch {
		case mode == generate.Initial:
		case priorGeneration != "":
			if arc == nil {
				return fmt.Errorf("--prior-generation needs an archive")
			}
			if prior, err = arc.Snapshot(ctx, priorGeneration); err != nil {
				return err
			}
		default:
			if prior, priorErrs, err = ws.Load(); err != nil {
				return err
			}
		}

		res, err := generate.NewGenerator().Run(ctx, generate.Request{
			Repository:   repoName,
			Plan:         plan,
			Prior:        prior,
			PriorErrors:  priorErrs,
			Mode:         mode,
			OrderedSlots: slots,
			GenerationID: generationID,
			Validate:     validate,
			Strict:       strict,
		})
		if err != nil {
			return err
		}

		removed, err := ws.Persist(res.Model, res.FailedPaths()...)
		if err != nil {
			return err
		}
		if arc != nil {
			if err := arc.Record(ctx, repoName, string(mode), res.Model); err != nil {
				return err
			}
		}

		w := cmd.OutOrStdout()
		for _, f := range res.Files {
			switch {
			case f.Err != nil:
				_, _ = fmt.Fprintf(w, "FAIL %s: %v\n", f.Path, f.Err)
			case f.Reused:
				_, _ = fmt.Fprintf(w, "sync %s\n", f.Path)
			default:
				_, _ = fmt.Fprintf(w, "new  %s\n", f.Path)
			}
			for _, o := range f.Outcomes {
				_, _ = fmt.Fprintf(w, "     %s\n", o)
			}
			for _, d := range f.Diagnostics {
				_, _ = fmt.Fprintf(w, "     %s\n", d)
			}
		}
		for _, p := range removed {
			_, _ = fmt.Fprintf(w, "del  %s\n", p)
		}
		_, _ = fmt.Fprintf(w, "generation %s\n", res.Model.GenerationID)

		if n := len(res.Failed()); n > 0 {
			return fmt.Errorf("%d of %d files failed", n, len(res.Files))
		}
		return nil
	},
}

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&planPath, "plan", "p", "", "Generation plan (YAML or JSON)")
	f.StringVarP(&outDir, "out", "o", ".", "Repository directory to generate into")
	f.StringVarP(&genMode, "mode", "m", "sync", "Strategy: initial, sync or ordered")
	f.StringArrayVar(&orderedSlots, "ordered-slot", nil, "Slot variable kept in prior order (ordered mode; repeatable)")
	f.StringVar(&archivePath, "archive", "", "SQLite archive to record the run in")
	f.StringVar(&repository, "repository", "", "Repository name used for locking and the archive")
	f.StringVar(&generationID, "id", "", "Generation id (default: random UUID)")
	f.StringVar(&priorGeneration, "prior-generation", "", "Use an archived generation as prior state")
	f.BoolVar(&validateOutput, "validate", true, "Attach syntax and formatting diagnostics")
	f.BoolVar(&strictOutput, "strict", false, "Fail files whose output does not parse")
	_ = generateCmd.MarkFlagRequired("plan")
	rootCmd.AddCommand(generateCmd)
}
