// Package llm runs text completions against an ordered chain of language
// model providers and builds the prompts qaharvest sends them.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/qaharvest/internal/config"
	"github.com/raphaelgruber/qaharvest/internal/metrics"
)

// DefaultCooldown is how long a provider that returned a fatal API error is
// moved to the back of the chain.
const DefaultCooldown = time.Minute

// Model generates text by trying each provider in order until one succeeds.
type Model struct {
	providers []Provider
	timeout   time.Duration
	cooldown  time.Duration
	logger    *slog.Logger
	metrics   *metrics.Collector

	mu        sync.Mutex
	coolUntil map[string]time.Time
	now       func() time.Time
}

// NewModel creates the provider chain named by cfg.LLMProviders. Providers
// that cannot be constructed (typically a missing API key) are skipped with a
// warning; an error is returned only if none remain.
func NewModel(ctx context.Context, cfg config.Config, logger *slog.Logger, m *metrics.Collector) (*Model, error) {
	var providers []Provider
	for _, name := range cfg.LLMProviders {
		p, err := NewProvider(ctx, name, cfg)
		if err != nil {
			logger.Warn("skipping LLM provider", "provider", name, "error", err)
			continue
		}
		providers = append(providers, p)
	}
	if len(providers) == 0 {
		return nil, ErrNoProviders
	}
	return NewModelWithProviders(providers, cfg.LLMTimeout, logger, m), nil
}

// NewModelWithProviders creates a Model from explicit providers.
// A zero timeout disables the per-call bound.
func NewModelWithProviders(providers []Provider, timeout time.Duration, logger *slog.Logger, m *metrics.Collector) *Model {
	if logger == nil {
		logger = slog.Default()
	}
	return &Model{
		providers: providers,
		timeout:   timeout,
		cooldown:  DefaultCooldown,
		logger:    logger,
		metrics:   m,
		coolUntil: make(map[string]time.Time),
		now:       time.Now,
	}
}

// Providers returns the configured provider names in chain order.
func (m *Model) Providers() []string {
	names := make([]string, len(m.providers))
	for i, p := range m.providers {
		names[i] = p.Name()
	}
	return names
}

// Generate returns the first successful completion. Each provider attempt is
// bounded by the model timeout. When every provider fails the error is a
// *ChainError wrapping ErrAllProvidersFailed.
func (m *Model) Generate(ctx context.Context, prompt string) (string, error) {
	if len(m.providers) == 0 {
		return "", ErrNoProviders
	}

	start := time.Now()
	chainErr := &ChainError{}

	for _, p := range m.order() {
		if err := ctx.Err(); err != nil {
			chainErr.Failures = append(chainErr.Failures, ProviderError{Provider: p.Name(), Err: err})
			break
		}

		text, err := m.try(ctx, p, prompt)
		if err == nil {
			m.metrics.RecordTiming(metrics.OpLLMGenerate, time.Since(start))
			return text, nil
		}

		err = wrapFatalError(err)
		if errors.Is(err, ErrFatalAPI) {
			m.markCooling(p.Name())
		}
		m.logger.Warn("LLM provider failed", "provider", p.Name(), "fatal", errors.Is(err, ErrFatalAPI), "error", err)
		chainErr.Failures = append(chainErr.Failures, ProviderError{Provider: p.Name(), Err: err})
	}

	m.metrics.RecordFailure(metrics.OpLLMGenerate, time.Since(start))
	return "", chainErr
}

func (m *Model) try(ctx context.Context, p Provider, prompt string) (string, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := p.Generate(ctx, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("timed out after %s: %w", m.timeout, err)
		}
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("empty completion")
	}

	m.logger.Debug("LLM provider succeeded", "provider", p.Name(), "duration_ms", time.Since(start).Milliseconds(), "response_len", len(text))
	return text, nil
}

// order returns the providers with cooling ones moved to the end, keeping
// relative order within each group.
func (m *Model) order() []Provider {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	ready := make([]Provider, 0, len(m.providers))
	var cooling []Provider
	for _, p := range m.providers {
		if until, ok := m.coolUntil[p.Name()]; ok && now.Before(until) {
			cooling = append(cooling, p)
			continue
		}
		ready = append(ready, p)
	}
	return append(ready, cooling...)
}

func (m *Model) markCooling(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coolUntil[name] = m.now().Add(m.cooldown)
}
