package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/langsmith-go/internal/runtree"
)

var updateRunTrace string

var updateRunCmd = &cobra.Command{
	Use:   "update-run <name>",
	Short: "Create a child run under a propagated trace header, then end and flush it",
	Long: `Decodes --trace (the langsmith-trace header value printed by create-run),
reconstructs its parent, creates a child run under it, ends and patches the
child, then flushes. Demonstrates the cross-process propagation path spec.md
describes for a single incoming "langsmith-trace" header, without a second
baggage header.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if updateRunTrace == "" {
			return fmt.Errorf("--trace is required")
		}
		stub, err := runtree.FromHeaders(updateRunTrace, "")
		if err != nil {
			return fmt.Errorf("decode --trace: %w", err)
		}
		parent, err := stub.AsParent(traceClient)
		if err != nil {
			return fmt.Errorf("reconstruct parent: %w", err)
		}

		child := parent.CreateChild(runtree.RunTypeChain, args[0])
		child.Post()
		child.End(map[string]any{"ok": true}, nil, nil)
		child.Patch()

		ctx := context.Background()
		if err := traceClient.Flush(ctx); err != nil {
			return fmt.Errorf("flush: %w", err)
		}
		traceClient.Cleanup()

		fmt.Printf("run_id=%s parent_id=%s\n", child.ID, parent.ID)
		return nil
	},
}

func init() {
	updateRunCmd.Flags().StringVar(&updateRunTrace, "trace", "", "langsmith-trace header value from a prior create-run")
}
