package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/qaharvest/internal/dedup"
	"github.com/raphaelgruber/qaharvest/internal/parser"
)

var dedupThreshold float64

var dedupCmd = &cobra.Command{
	Use:   "dedup <file>",
	Short: "Check a Q&A text file for duplicate questions",
	Long: `Parse a file of "Q: ... / A: ..." blocks, skipping questions without an
answer, and report which questions the exact and fuzzy passes would drop.
Runs locally; no server or language model is needed.

Examples:
  qaharvest dedup extracted.txt
  qaharvest dedup extracted.txt --threshold 0.9`,
	Args: cobra.ExactArgs(1),
	RunE: runDedup,
}

func init() {
	dedupCmd.Flags().Float64Var(&dedupThreshold, "threshold", dedup.ThresholdBalanced, "similarity threshold in (0, 1]")
}

func runDedup(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	cfg := dedup.DefaultConfig()
	cfg.Threshold = dedupThreshold
	if err := cfg.Validate(); err != nil {
		return err
	}

	pairs := parser.ParseQA(string(data), parser.SkipUnanswered)
	if len(pairs) == 0 {
		return errors.New("no answered questions found")
	}

	questions := make([]string, len(pairs))
	for i, p := range pairs {
		questions[i] = p.Question
	}

	res := dedup.New(cfg, nil, nil).Filter(cmd.Context(), questions, nil)

	printf(cmd, "Parsed %d questions, kept %d, dropped %d\n", len(questions), len(res.Kept), len(res.Dropped))
	for _, d := range res.Dropped {
		printf(cmd, "\n[%s %.2f] %s\n", d.Pass, d.Score, d.Question)
		printf(cmd, "  duplicate of: %s\n", d.Matched)
	}

	if verbose {
		printf(cmd, "\nKept:\n")
		for _, i := range res.Kept {
			printf(cmd, "- %s\n", questions[i])
		}
	}
	return nil
}
