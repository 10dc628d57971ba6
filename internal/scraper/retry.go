package scraper

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"slices"
	"time"
)

// RetryPolicy defines retry behavior with exponential backoff.
type RetryPolicy struct {
	MaxAttempts          int
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
	BackoffMultiplier    float64
	RetryableStatusCodes []int
}

// DefaultRetryPolicy retries transient HTTP failures up to maxAttempts times.
func DefaultRetryPolicy(maxAttempts int) RetryPolicy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return RetryPolicy{
		MaxAttempts:       maxAttempts,
		InitialBackoff:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		RetryableStatusCodes: []int{
			408, // Request Timeout
			429, // Too Many Requests
			500, // Internal Server Error
			502, // Bad Gateway
			503, // Service Unavailable
			504, // Gateway Timeout
		},
	}
}

func (p RetryPolicy) retryable(statusCode int, err error) bool {
	if statusCode > 0 {
		return slices.Contains(p.RetryableStatusCodes, statusCode)
	}
	return isRetryableError(err)
}

// backoff returns the delay before attempt+1, with ±25% jitter.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := float64(p.InitialBackoff) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if d > float64(p.MaxBackoff) {
		d = float64(p.MaxBackoff)
	}
	d += d * 0.25 * (rand.Float64()*2 - 1)
	if d < 0 {
		d = float64(p.InitialBackoff)
	}
	return time.Duration(d)
}

// do runs fn until it succeeds, fails permanently, or attempts run out.
// fn reports the HTTP status (0 when no response) and an error.
func (p RetryPolicy) do(ctx context.Context, logger *slog.Logger, fn func() (int, error)) error {
	var (
		status int
		err    error
	)

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		status, err = fn()
		if err == nil {
			return nil
		}
		if !p.retryable(status, err) || ctx.Err() != nil {
			return err
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		wait := p.backoff(attempt)
		logger.Debug("retrying fetch", "attempt", attempt+1, "status_code", status, "backoff", wait, "error", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}

	logger.Warn("all fetch attempts exhausted", "max_attempts", p.MaxAttempts, "status_code", status, "error", err)
	return err
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
