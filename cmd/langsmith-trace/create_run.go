package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/langsmith-go/internal/runtree"
)

var (
	createRunType string
	createRunTags []string
)

var createRunCmd = &cobra.Command{
	Use:   "create-run <name>",
	Short: "Create, end, and flush a single root run",
	Long: `Creates a root run, ends it immediately with a trivial output, patches it,
then flushes and cleans up the pipeline before exiting. Prints the run's
langsmith-trace header so it can be fed to "update-run --trace" to demonstrate
cross-process propagation.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		rt := traceClient.CreateRun(ctx, runtree.RunType(createRunType), args[0],
			runtree.WithTags(createRunTags))

		rt.End(map[string]any{"ok": true}, nil, nil)
		traceClient.UpdateRun(rt)

		if err := traceClient.Flush(ctx); err != nil {
			return fmt.Errorf("flush: %w", err)
		}
		traceClient.Cleanup()

		headers := rt.ToHeaders()
		fmt.Printf("run_id=%s\n%s=%s\n", rt.ID, runtree.HeaderTrace, headers[runtree.HeaderTrace])
		return nil
	},
}

func init() {
	createRunCmd.Flags().StringVar(&createRunType, "type", string(runtree.RunTypeChain), "Run type (llm, chain, tool, retriever, embedding, prompt, parser)")
	createRunCmd.Flags().StringSliceVar(&createRunTags, "tag", nil, "Tag to attach, may be repeated")
}
