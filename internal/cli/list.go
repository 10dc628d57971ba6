package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/qaharvest/internal/metrics"
)

var (
	qaLimit       int
	qaOffset      int
	discoverCount int
)

var qaCmd = &cobra.Command{
	Use:   "qa",
	Short: "List stored Q&A pairs, newest first",
	Long: `List stored Q&A pairs across all jobs, newest first.

Examples:
  qaharvest qa
  qaharvest qa --limit 20 --offset 40`,
	RunE: runQA,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show job and Q&A statistics",
	RunE:  runStats,
}

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Preview article URLs the server would pick for random scraping",
	RunE:  runDiscover,
}

func init() {
	qaCmd.Flags().IntVarP(&qaLimit, "limit", "n", 50, "max results (server caps at 500)")
	qaCmd.Flags().IntVar(&qaOffset, "offset", 0, "results to skip")
	discoverCmd.Flags().IntVarP(&discoverCount, "count", "n", 5, "number of URLs (1-20)")
}

func runQA(cmd *cobra.Command, args []string) error {
	page, err := apiClient.ListQA(cmd.Context(), qaLimit, qaOffset)
	if err != nil {
		return fmt.Errorf("list qa: %w", err)
	}

	if len(page.Items) == 0 {
		printf(cmd, "No Q&A pairs found.\n")
		return nil
	}

	printf(cmd, "Q&A pairs %d-%d of %d:\n\n", page.Offset+1, page.Offset+len(page.Items), page.Total)
	for _, p := range page.Items {
		printf(cmd, "- Q: %s\n", p.Question)
		if verbose {
			printf(cmd, "  A: %s\n", p.Answer)
			printf(cmd, "  Source: %s\n", p.SourceURL)
		}
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	st, err := apiClient.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	printf(cmd, "Jobs\n")
	printf(cmd, "═══════════════════════════════════════\n")
	printf(cmd, "Total:      %d\n", st.TotalJobs)
	printf(cmd, "Completed:  %d\n", st.Completed)
	printf(cmd, "Failed:     %d\n", st.Failed)
	printf(cmd, "Success:    %s\n", st.SuccessRate)
	printf(cmd, "Queued now: %d\n", st.QueueSize)
	printf(cmd, "\nQ&A pairs:  %d from %d articles\n", st.TotalQA, st.UniqueURLs)

	printServerStats(cmd, st.Metrics)
	return nil
}

// printServerStats displays server runtime statistics.
func printServerStats(cmd *cobra.Command, snap metrics.Snapshot) {
	printf(cmd, "\nServer (in-memory, since restart)\n")
	printf(cmd, "═══════════════════════════════════════\n")
	printf(cmd, "Uptime: %.1f seconds\n", snap.UptimeSeconds)

	for _, name := range snap.Names() {
		op := snap.Operations[name]
		printf(cmd, "\n%s:\n", name)
		printf(cmd, "  Calls: %d, Failures: %d, Total: %dms\n", op.Count, op.Failures, op.TotalTimeMs)
		printf(cmd, "  Time: avg %.1fms, min %dms, max %dms\n", op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
	}
}

func runDiscover(cmd *cobra.Command, args []string) error {
	urls, err := apiClient.Discover(cmd.Context(), discoverCount)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}

	if len(urls) == 0 {
		printf(cmd, "No articles discovered.\n")
		return nil
	}
	for _, u := range urls {
		printf(cmd, "%s\n", u)
	}
	return nil
}
