package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	submitWait   bool
	submitRandom int
)

var submitCmd = &cobra.Command{
	Use:   "submit [url...]",
	Short: "Submit article URLs for Q&A extraction",
	Long: `Submit one or more article URLs. Each URL becomes a job; a URL that was
submitted before returns its existing job.

Use --random to let the server discover unprocessed articles instead.
Use --wait to follow a single job until it finishes.

Examples:
  qaharvest submit https://medium.com/@dev/swift-actors-explained
  qaharvest submit --wait https://medium.com/@dev/swiftui-layout
  qaharvest submit --random 5`,
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().BoolVarP(&submitWait, "wait", "w", false, "follow the job until it finishes (single URL only)")
	submitCmd.Flags().IntVar(&submitRandom, "random", 0, "discover and submit this many articles (1-10)")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	if submitRandom > 0 {
		if len(args) > 0 {
			return errors.New("--random cannot be combined with URLs")
		}
		res, err := apiClient.SubmitRandom(ctx, submitRandom)
		if err != nil {
			return fmt.Errorf("submit random: %w", err)
		}
		printf(cmd, "%s\n", res.Message)
		for _, j := range res.Jobs {
			printf(cmd, "  %s  %-10s %s\n", j.JobID, j.Status, j.URL)
		}
		return nil
	}

	if len(args) == 0 {
		return errors.New("at least one URL is required")
	}
	if submitWait && len(args) > 1 {
		return errors.New("--wait accepts a single URL")
	}

	var failed int
	for _, u := range args {
		res, err := apiClient.Submit(ctx, u)
		if err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "✗ %s: %v\n", u, err)
			failed++
			continue
		}
		printf(cmd, "%s  %-10s %s\n", res.JobID, res.Status, res.URL)
		if verbose {
			printf(cmd, "  %s\n", res.Message)
		}

		if submitWait {
			if isTerminal(os.Stdout) {
				return RunJobProgress(ctx, apiClient, res.JobID)
			}
			return WatchPlain(ctx, cmd.OutOrStdout(), apiClient, res.JobID)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d submissions failed", failed, len(args))
	}
	return nil
}
