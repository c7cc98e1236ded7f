package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var flushTimeout time.Duration

var flushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Block until the queue drains, without enqueueing anything",
	Long:  `Useful to confirm the configured endpoint is reachable: an empty client flushes immediately.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
		defer cancel()

		if err := traceClient.Flush(ctx); err != nil {
			return fmt.Errorf("flush: %w", err)
		}
		traceClient.Cleanup()
		fmt.Println("flushed")
		return nil
	},
}

func init() {
	flushCmd.Flags().DurationVar(&flushTimeout, "timeout", 10*time.Second, "Maximum time to wait for the queue to drain")
}
