// Package retry decides which upstream failures are retried and how long to back off.
package retry

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Config tunes the exponential policy.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Statuses lists retryable HTTP status codes.
	Statuses []int
}

// DefaultConfig retries 403/429/500/502/503 up to five attempts with 1s..8s backoff.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    8 * time.Second,
		Statuses: []int{
			http.StatusForbidden,
			http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
		},
	}
}

// Policy implements capped exponential backoff without jitter.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	retryable   map[int]struct{}
}

// New builds a Policy, filling zero fields from DefaultConfig.
func New(cfg Config) *Policy {
	def := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if len(cfg.Statuses) == 0 {
		cfg.Statuses = def.Statuses
	}
	retryable := make(map[int]struct{}, len(cfg.Statuses))
	for _, code := range cfg.Statuses {
		retryable[code] = struct{}{}
	}
	return &Policy{
		maxAttempts: cfg.MaxAttempts,
		baseDelay:   cfg.BaseDelay,
		maxDelay:    cfg.MaxDelay,
		retryable:   retryable,
	}
}

// MaxAttempts returns the total attempt budget.
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// RetryableStatus reports whether a status code is transient.
func (p *Policy) RetryableStatus(code int) bool {
	_, ok := p.retryable[code]
	return ok
}

// ShouldRetry decides whether another attempt follows attempt (1-based).
// A nil err with a retryable status, or a transport error, qualifies while
// budget remains; caller cancellation never does.
func (p *Policy) ShouldRetry(statusCode int, err error, attempt int) bool {
	if attempt >= p.maxAttempts {
		return false
	}
	if err != nil {
		return !errors.Is(err, context.Canceled)
	}
	return p.RetryableStatus(statusCode)
}

// Backoff returns min(base * 2^(attempt-1), max) for the wait after attempt.
func (p *Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.maxDelay {
			return p.maxDelay
		}
	}
	if delay > p.maxDelay {
		return p.maxDelay
	}
	return delay
}
