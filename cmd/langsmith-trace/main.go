// Command langsmith-trace is a thin cobra CLI over internal/client, for
// manual smoke testing of create-run/update-run/flush against a real or
// local ingest endpoint. Grounded on the teacher's cmd/bd root command
// wiring (persistent flags bound to package vars, one cobra.Command per
// subcommand file).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/steveyegge/langsmith-go/internal/client"
	"github.com/steveyegge/langsmith-go/internal/config"
)

var (
	configPath string
	endpoint   string
	apiKey     string
	project    string

	traceClient *client.Client
)

var rootCmd = &cobra.Command{
	Use:           "langsmith-trace",
	Short:         "Exercise the langsmith-go ingestion client from the command line",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if endpoint != "" {
			cfg.Endpoint = endpoint
		}
		if apiKey != "" {
			cfg.APIKey = apiKey
		}
		if project != "" {
			cfg.Project = project
		}

		traceClient, err = client.New(client.FromConfig(*cfg))
		if err != nil {
			return fmt.Errorf("construct client: %w", err)
		}
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to langsmith.toml (default: ./langsmith.toml if present)")
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "Ingest endpoint base URL, overrides config/env")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "API key, overrides config/env")
	rootCmd.PersistentFlags().StringVar(&project, "project", "", "Default session name for runs with no explicit project")

	rootCmd.AddCommand(createRunCmd, updateRunCmd, flushCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
