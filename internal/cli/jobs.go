package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var jobCmd = &cobra.Command{
	Use:   "job <job-id>",
	Short: "Show the status of a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runJob,
}

var resultsCmd = &cobra.Command{
	Use:   "results <job-id>",
	Short: "Show the Q&A pairs extracted by a job",
	Args:  cobra.ExactArgs(1),
	RunE:  runResults,
}

var cleanupOlderThan time.Duration

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete finished jobs older than a given age",
	Long: `Delete completed and failed jobs created before the given age.
Queued and processing jobs are never removed. Whether their Q&A pairs are
removed too is decided by the server's cleanup cascade setting.

Examples:
  qaharvest cleanup
  qaharvest cleanup --older-than 168h`,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().DurationVar(&cleanupOlderThan, "older-than", 720*time.Hour, "minimum job age")
}

func runJob(cmd *cobra.Command, args []string) error {
	job, err := apiClient.GetJob(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	printf(cmd, "Job: %s\n", job.ID)
	printf(cmd, "  URL: %s\n", job.URL)
	printf(cmd, "  Status: %s\n", job.Status)
	printf(cmd, "  Created: %s\n", job.CreatedAt.Format(time.RFC3339))
	if job.CompletedAt != nil {
		printf(cmd, "  Completed: %s\n", job.CompletedAt.Format(time.RFC3339))
		printf(cmd, "  Duration: %s\n", job.CompletedAt.Sub(job.CreatedAt).Round(time.Second))
	}
	if job.Status.IsTerminal() {
		printf(cmd, "  Q&A pairs: %d\n", job.QACount)
	}
	if job.Error != nil && *job.Error != "" {
		printf(cmd, "  Error: %s\n", *job.Error)
	}
	return nil
}

func runResults(cmd *cobra.Command, args []string) error {
	pairs, err := apiClient.Results(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get results: %w", err)
	}

	if len(pairs) == 0 {
		printf(cmd, "No Q&A pairs for this job.\n")
		return nil
	}

	for i, p := range pairs {
		printf(cmd, "%d. Q: %s\n   A: %s\n\n", i+1, p.Question, p.Answer)
	}
	return nil
}

func runCleanup(cmd *cobra.Command, args []string) error {
	n, err := apiClient.Cleanup(cmd.Context(), cleanupOlderThan)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	printf(cmd, "Deleted %d jobs older than %s\n", n, cleanupOlderThan)
	return nil
}
