package cmd

import (
	"fmt"
	"os"

	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"

	"github.com/agentic-research/tracegen/internal/trace"
)

var inspectPath string

var inspectCmd = &cobra.Command{
	Use:   "inspect FILE.traces",
	Short: "Query a trace document with JSONPath",
	Example: `  tracegen inspect traces/svc/service.go.traces --path "$.traceSegments..[?(@.type == 'unprotected')].id"
  tracegen inspect traces/svc/service.go.traces --path "$.traces.*.type"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		results, err := trace.Query(doc, inspectPath)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		for _, r := range results {
			_, _ = fmt.Fprintln(w, oj.JSON(r, &oj.Options{Sort: true}))
		}
		return nil
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectPath, "path", "$.traceSegments..id", "JSONPath expression")
	rootCmd.AddCommand(inspectCmd)
}
