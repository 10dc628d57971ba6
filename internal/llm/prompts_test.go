package llm

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/qaharvest/internal/metrics"
)

// testLogger creates a logger that writes to stderr for test visibility.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type generatorFunc func(ctx context.Context, prompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func TestExtractionPrompt(t *testing.T) {
	p := ExtractionPrompt("iOS/Swift", "ARC counts references.", "")

	assert.Contains(t, p, "Extract iOS/Swift interview questions")
	assert.Contains(t, p, `return "NO_IOS_QA"`)
	assert.Contains(t, p, "Article:\nARC counts references.\n")
	assert.Contains(t, p, "Q: [question]")
}

func TestPairOracle(t *testing.T) {
	var gotPrompt string
	gen := generatorFunc(func(_ context.Context, prompt string) (string, error) {
		gotPrompt = prompt
		return "Similar: 1, 3 (both ask about ARC)\nSimilar: 2, 9", nil
	})
	c := metrics.NewCollector()
	o := NewPairOracle(gen, "iOS/Swift", c)

	pairs, err := o.SimilarPairs(context.Background(), []string{"What is ARC?", "Explain GCD", "How does ARC work?"})
	require.NoError(t, err)

	assert.Equal(t, [][2]int{{0, 2}}, pairs)
	assert.Contains(t, gotPrompt, "iOS/Swift interview questions")
	assert.Contains(t, gotPrompt, "3. How does ARC work?")
	assert.Equal(t, int64(1), c.Snapshot().Operations[metrics.OpOracle].Count)
}

func TestPairOracleError(t *testing.T) {
	gen := generatorFunc(func(context.Context, string) (string, error) {
		return "", ErrAllProvidersFailed
	})
	o := NewPairOracle(gen, "", nil)

	_, err := o.SimilarPairs(context.Background(), []string{"a", "b"})
	assert.True(t, errors.Is(err, ErrAllProvidersFailed))
}
