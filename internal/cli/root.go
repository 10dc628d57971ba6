// Package cli provides the command-line interface for qaharvest.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/qaharvest/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose   bool
	serverURL string

	apiClient *client.Client
)

// offline commands run without talking to a server.
var offline = map[string]bool{
	"serve":   true,
	"mcp":     true,
	"dedup":   true,
	"version": true,
	"help":    true,
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "qaharvest",
	Short: "Harvest interview Q&A from technical articles",
	Long: `qaharvest scrapes technical articles, asks a language model to extract
interview-style questions and answers, drops near-duplicates and stores
the rest.

Run 'qaharvest serve' to start the server, then submit URLs with
'qaharvest submit'.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if offline[cmd.Name()] {
			return nil
		}
		apiClient = client.New(serverURL)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default $QAH_SERVER_URL or http://localhost:8080)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(jobCmd)
	rootCmd.AddCommand(resultsCmd)
	rootCmd.AddCommand(qaCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(dedupCmd)
}

// printf writes to the command's stdout so tests can capture it.
func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}

func isTerminal(f *os.File) bool {
	return isTerminalFD(int(f.Fd()))
}
