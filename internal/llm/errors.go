package llm

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrFatalAPI marks provider errors that will not succeed on retry
	// (exhausted credit, bad credentials, rate limits).
	ErrFatalAPI = errors.New("fatal API error")

	// ErrAllProvidersFailed is returned when every provider in the chain
	// failed for a call.
	ErrAllProvidersFailed = errors.New("all LLM providers failed")

	// ErrNoProviders is returned when the chain is empty.
	ErrNoProviders = errors.New("no LLM providers configured")
)

var fatalMarkers = []string{
	"credit balance",
	"rate limit",
	"quota exceeded",
	"billing",
	"invalid api key",
	"authentication",
	"unauthorized",
	"401",
	"403",
	"429",
}

func isFatalAPIError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range fatalMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// wrapFatalError tags err with ErrFatalAPI when it looks permanent.
func wrapFatalError(err error) error {
	if err == nil {
		return nil
	}
	if isFatalAPIError(err) {
		return fmt.Errorf("%w: %w", ErrFatalAPI, err)
	}
	return err
}

// ProviderError records one provider's failure within a chain call.
type ProviderError struct {
	Provider string
	Err      error
}

func (e ProviderError) Error() string {
	return e.Provider + ": " + truncate(e.Err.Error(), 100)
}

func (e ProviderError) Unwrap() error {
	return e.Err
}

// ChainError aggregates the failures of every provider tried.
type ChainError struct {
	Failures []ProviderError
}

func (e *ChainError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Error()
	}
	return ErrAllProvidersFailed.Error() + ": " + strings.Join(parts, " | ")
}

func (e *ChainError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	errs = append(errs, ErrAllProvidersFailed)
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

func truncate(s string, maxRunes int) string {
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	return string(r[:maxRunes]) + "..."
}
