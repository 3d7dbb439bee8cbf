package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"github.com/agentic-research/tracegen/internal/guidance"
	"github.com/agentic-research/tracegen/internal/repo"
)

var (
	checkOut     string
	catalogPath  string
	checkJSON    bool
	checkWorkers int
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check hand-written regions against a guidance catalog",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := flagOr(cmd, "out", checkOut, cfg.Output.Dir)
		catalog := flagOr(cmd, "catalog", catalogPath, cfg.Guidance.Catalog)
		workers := cfg.Guidance.Workers
		if cmd.Flags().Changed("workers") {
			workers = checkWorkers
		}
		if catalog == "" {
			return fmt.Errorf("no guidance catalog: pass --catalog or set guidance.catalog")
		}

		c, skipped, err := guidance.LoadCatalog(catalog)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		errOut := cmd.ErrOrStderr()
		for _, s := range skipped {
			_, _ = fmt.Fprintf(errOut, "skipped %v\n", s)
		}

		ws := repo.NewWorkspace(osfs.New(out), cfg.Output.TracesDir)
		docs, readErrs, err := ws.Documents()
		if err != nil {
			return err
		}
		inputs := make([]guidance.FileInput, len(docs))
		for i, d := range docs {
			inputs[i] = guidance.FileInput{Path: d.Path, Content: d.Content, Traces: d.Traces}
		}
		results, err := guidance.NewChecker(c, workers).Check(cmd.Context(), inputs)
		if err != nil {
			return err
		}

		failures := len(readErrs)
		for _, e := range readErrs {
			_, _ = fmt.Fprintf(errOut, "error: %v\n", e)
		}
		for _, r := range results {
			if r.Err != nil {
				failures++
				_, _ = fmt.Fprintf(errOut, "error: %v\n", r.Err)
			}
		}

		vs := guidance.Violations(results)
		if checkJSON {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			if vs == nil {
				vs = []guidance.Violation{}
			}
			if err := enc.Encode(vs); err != nil {
				return err
			}
		} else {
			for _, v := range vs {
				_, _ = fmt.Fprintln(w, formatViolation(v))
			}
		}

		if len(vs) > 0 || failures > 0 {
			return fmt.Errorf("%d violations, %d unreadable files", len(vs), failures)
		}
		return nil
	},
}

func formatViolation(v guidance.Violation) string {
	spans := make([]string, len(v.Segments))
	for i, s := range v.Segments {
		spans[i] = fmt.Sprintf("%s[%d:%d]", s.ID, s.Start, s.End)
	}
	line := fmt.Sprintf("%s: %s (%s) %s: %s", v.File, v.ModelID, v.Type, strings.Join(spans, ","), v.Message)
	for _, h := range v.Helps {
		line += "\n  help: " + h
	}
	return line
}

func init() {
	f := checkCmd.Flags()
	f.StringVarP(&checkOut, "out", "o", ".", "Repository directory to check")
	f.StringVar(&catalogPath, "catalog", "", "Guidance catalog (JSON, YAML or HCL)")
	f.BoolVar(&checkJSON, "json", false, "Print violations as JSON")
	f.IntVar(&checkWorkers, "workers", 0, "Files checked in parallel (0: GOMAXPROCS)")
	rootCmd.AddCommand(checkCmd)
}
