package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

type retrying struct {
	next       Completer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// WithRetry retries transient failures with exponential backoff and jitter.
func WithRetry(next Completer, maxRetries int, baseDelay, maxDelay time.Duration) Completer {
	return &retrying{next: next, maxRetries: maxRetries, baseDelay: baseDelay, maxDelay: maxDelay}
}

func (r *retrying) Model() string { return r.next.Model() }

func (r *retrying) Complete(ctx context.Context, system, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		out, err := r.next.Complete(ctx, system, prompt)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil || !isRetryable(err) || attempt == r.maxRetries {
			break
		}

		delay := r.delay(attempt)
		slog.Warn("LLM call failed, retrying", "attempt", attempt+1, "delay", delay, "error", err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	return "", fmt.Errorf("request failed after retries: %w", lastErr)
}

func (r *retrying) delay(attempt int) time.Duration {
	attempt = min(max(attempt, 0), 30)
	d := r.baseDelay * time.Duration(1<<uint(attempt))
	// ±25% jitter
	d = d - d/4 + time.Duration(rand.Float64()*float64(d)/2)
	if r.maxDelay > 0 && d > r.maxDelay {
		d = r.maxDelay
	}
	return d
}

var retryablePatterns = []string{
	"rate limit", "too many requests", "timeout", "temporarily unavailable",
	"connection reset", "connection refused", "overloaded", "eof",
}

// isRetryable reports whether err looks transient: 429 or 5xx from the API,
// or a network-level failure.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	msg := strings.ToLower(err.Error())
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

type rateLimited struct {
	next    Completer
	limiter *rate.Limiter
}

// WithRateLimit paces calls with a token bucket of limit requests per second.
func WithRateLimit(next Completer, limit rate.Limit, burst int) Completer {
	return &rateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

func (r *rateLimited) Model() string { return r.next.Model() }

func (r *rateLimited) Complete(ctx context.Context, system, prompt string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}
	return r.next.Complete(ctx, system, prompt)
}
