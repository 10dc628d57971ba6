package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/raphaelgruber/qaharvest/internal/app"
	"github.com/raphaelgruber/qaharvest/internal/config"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server and extraction workers",
	Long: `Run the HTTP API, the extraction workers and the cleanup scheduler in
one process. Configuration comes from QAH_* environment variables and the
optional YAML file named by QAH_CONFIG.`,
	RunE: runServe,
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the extraction workers behind an MCP server on stdio",
	Long: `Run the extraction workers and the cleanup scheduler, and expose job
submission, job lookup, Q&A listing and stats as MCP tools over stdin and
stdout. Logs go to stderr and the optional log file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return ServeMCP(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (overrides QAH_LISTEN_ADDR)")
}

func runServe(cmd *cobra.Command, args []string) error {
	return Serve(cmd.Context(), serveListen)
}

// Serve loads the configuration and runs the app until SIGINT or SIGTERM.
func Serve(ctx context.Context, listen string) error {
	return runApp(ctx, listen, func(ctx context.Context, a *app.App) error {
		return a.Run(ctx)
	})
}

// ServeMCP runs the app with MCP on stdio until the client disconnects,
// SIGINT or SIGTERM.
func ServeMCP(ctx context.Context) error {
	return runApp(ctx, "", func(ctx context.Context, a *app.App) error {
		return a.RunMCP(ctx, Version, &mcp.StdioTransport{})
	})
}

func runApp(ctx context.Context, listen string, run func(context.Context, *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if listen != "" {
		cfg.ListenAddr = listen
	}

	logger, closeLog := config.SetupLogger(cfg)
	defer func() {
		if err := closeLog(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
		}
	}()

	logger.Info("starting qaharvest", "version", Version, "backend", cfg.Backend, "addr", cfg.ListenAddr)

	initCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	a, err := app.New(initCtx, cfg, logger)
	cancel()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return run(ctx, a)
}
