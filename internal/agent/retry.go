package agent

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
)

// retryPolicy bounds how often a turn retries a transient API failure.
// Retries only happen before the first text delta reaches the user.
type retryPolicy struct {
	maxRetries    int
	baseDelay     time.Duration
	maxDelay      time.Duration
	jitterPercent int // ±jitterPercent% jitter
}

var defaultRetryPolicy = retryPolicy{
	maxRetries:    3,
	baseDelay:     2 * time.Second,
	maxDelay:      30 * time.Second,
	jitterPercent: 30,
}

// isRetryableError checks if an error is worth retrying (rate limit, server error, network).
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	// Context cancelled is NOT retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var oaErr *openai.Error
	if errors.As(err, &oaErr) {
		return retryableStatus(oaErr.StatusCode)
	}
	var anErr *anthropic.Error
	if errors.As(err, &anErr) {
		return retryableStatus(anErr.StatusCode)
	}

	msg := err.Error()

	// Rate limit (429)
	if strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit") {
		return true
	}
	// Anthropic overloaded (529)
	if strings.Contains(msg, "529") || strings.Contains(msg, "overloaded") {
		return true
	}
	// Server errors (500, 502, 503, 504)
	for _, code := range []string{"500", "502", "503", "504"} {
		if strings.Contains(msg, code) {
			return true
		}
	}
	// Network errors
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "temporary failure")
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code == 529 || code >= 500
}

// delay returns the wait before retry attempt n (0-indexed) with jitter.
func (p retryPolicy) delay(attempt int) time.Duration {
	d := p.baseDelay
	for range attempt {
		d *= 2
	}
	if d > p.maxDelay {
		d = p.maxDelay
	}
	span := int(d) * p.jitterPercent / 100
	if span <= 0 {
		return d
	}
	return d + time.Duration(rand.IntN(2*span)) - time.Duration(span)
}

// sleepWithContext sleeps for d, but returns early if ctx is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// formatRetryMessage creates a user-friendly retry message.
func formatRetryMessage(attempt, maxAttempts int, delay time.Duration, err error) string {
	return fmt.Sprintf("Retrying (%d/%d) in %s... (%s)",
		attempt+1, maxAttempts, delay.Round(time.Millisecond), truncate(err.Error(), 80))
}

// truncate shortens s to maxLen bytes, appending "..." if cut.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
