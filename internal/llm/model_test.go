package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/qaharvest/internal/config"
	"github.com/raphaelgruber/qaharvest/internal/metrics"
)

func TestIsFatalAPIError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil error", nil, false},
		{"generic error", errors.New("connection reset"), false},
		{"credit balance", errors.New("insufficient credit balance"), true},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"quota exceeded", errors.New("quota exceeded for model"), true},
		{"billing issue", errors.New("billing account inactive"), true},
		{"invalid api key", errors.New("invalid api key"), true},
		{"authentication failed", errors.New("authentication failed"), true},
		{"unauthorized", errors.New("unauthorized request"), true},
		{"401 status", errors.New("HTTP 401: not allowed"), true},
		{"403 status", errors.New("HTTP 403: forbidden"), true},
		{"429 status", errors.New("HTTP 429: too many requests"), true},
		{"wrapped error", fmt.Errorf("generate: %w", errors.New("credit balance too low")), true},
		{"404 not fatal", errors.New("HTTP 404: not found"), false},
		{"timeout not fatal", errors.New("context deadline exceeded"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isFatalAPIError(tt.err)
			if got != tt.fatal {
				t.Errorf("isFatalAPIError(%v) = %v, want %v", tt.err, got, tt.fatal)
			}
		})
	}
}

func TestWrapFatalError(t *testing.T) {
	t.Run("wraps fatal error", func(t *testing.T) {
		err := errors.New("invalid api key provided")
		wrapped := wrapFatalError(err)
		if !errors.Is(wrapped, ErrFatalAPI) {
			t.Errorf("expected wrapped error to match ErrFatalAPI")
		}
		if !errors.Is(wrapped, err) {
			t.Errorf("expected wrapped error to keep the original")
		}
	})

	t.Run("passes through non-fatal error", func(t *testing.T) {
		err := errors.New("network timeout")
		if result := wrapFatalError(err); result != err {
			t.Errorf("expected original error returned, got %v", result)
		}
	})

	t.Run("nil error", func(t *testing.T) {
		if result := wrapFatalError(nil); result != nil {
			t.Errorf("expected nil, got %v", result)
		}
	})
}

type fakeProvider struct {
	name  string
	text  string
	err   error
	delay time.Duration
	calls int
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Generate(ctx context.Context, _ string) (string, error) {
	f.calls++
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

func TestModelFallsBackInOrder(t *testing.T) {
	groq := &fakeProvider{name: "groq", err: errors.New("HTTP 500")}
	gemini := &fakeProvider{name: "gemini", text: "  Q: What is ARC?\nA: Counting.  "}
	hf := &fakeProvider{name: "huggingface", text: "unused"}

	m := NewModelWithProviders([]Provider{groq, gemini, hf}, time.Second, nil, metrics.NewCollector())

	got, err := m.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "Q: What is ARC?\nA: Counting.", got)
	assert.Equal(t, 1, groq.calls)
	assert.Equal(t, 1, gemini.calls)
	assert.Zero(t, hf.calls)
	assert.Equal(t, []string{"groq", "gemini", "huggingface"}, m.Providers())
}

func TestModelAllProvidersFail(t *testing.T) {
	long := strings.Repeat("x", 300)
	m := NewModelWithProviders([]Provider{
		&fakeProvider{name: "groq", err: errors.New("rate limit exceeded")},
		&fakeProvider{name: "gemini", err: errors.New(long)},
		&fakeProvider{name: "huggingface", text: "   "},
	}, time.Second, nil, nil)

	_, err := m.Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
	assert.ErrorIs(t, err, ErrFatalAPI)

	var chain *ChainError
	require.ErrorAs(t, err, &chain)
	require.Len(t, chain.Failures, 3)
	assert.Contains(t, err.Error(), "groq: ")
	assert.Contains(t, err.Error(), "huggingface: empty completion")
	assert.NotContains(t, err.Error(), long, "provider errors are truncated")
}

func TestModelTimeoutPerProvider(t *testing.T) {
	slow := &fakeProvider{name: "slow", text: "late", delay: time.Second}
	fast := &fakeProvider{name: "fast", text: "ok"}
	m := NewModelWithProviders([]Provider{slow, fast}, 20*time.Millisecond, nil, nil)

	got, err := m.Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}

func TestModelCooldownReordersProviders(t *testing.T) {
	bad := &fakeProvider{name: "groq", err: errors.New("invalid api key")}
	good := &fakeProvider{name: "gemini", text: "ok"}
	m := NewModelWithProviders([]Provider{bad, good}, time.Second, nil, nil)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	_, err := m.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, 1, bad.calls)

	// Cooling provider is tried last, so the healthy one answers first.
	_, err = m.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, 1, bad.calls)

	now = now.Add(DefaultCooldown + time.Second)
	_, err = m.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, 2, bad.calls)
}

func TestModelNoProviders(t *testing.T) {
	m := NewModelWithProviders(nil, time.Second, nil, nil)
	_, err := m.Generate(context.Background(), "p")
	assert.ErrorIs(t, err, ErrNoProviders)
}

func TestNewModelSkipsUnconfiguredProviders(t *testing.T) {
	cfg := config.Defaults()
	cfg.LLMProviders = []string{config.ProviderGroq, config.ProviderAnthropic}

	_, err := NewModel(context.Background(), cfg, testLogger(), nil)
	assert.ErrorIs(t, err, ErrNoProviders)
}

func TestNewProviderUnknown(t *testing.T) {
	_, err := NewProvider(context.Background(), "skynet", config.Defaults())
	assert.Error(t, err)
}

func TestNewProviderMissingCredentials(t *testing.T) {
	tests := []struct {
		provider string
		want     string
	}{
		{config.ProviderGroq, "groq API key required"},
		{config.ProviderOpenAI, "openai API key required"},
		{config.ProviderAnthropic, "anthropic API key required"},
		{config.ProviderHuggingFace, "huggingface token required"},
		{config.ProviderGemini, "gemini API key required"},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			_, err := NewProvider(context.Background(), tt.provider, config.Defaults())
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestModelRecordsMetrics(t *testing.T) {
	c := metrics.NewCollector()
	m := NewModelWithProviders([]Provider{&fakeProvider{name: "a", text: "ok"}}, time.Second, nil, c)

	_, err := m.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Snapshot().Operations[metrics.OpLLMGenerate].Count)
}
