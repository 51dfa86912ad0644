package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/testforge/casegen/internal/domain"
)

// IsTransientStatus reports whether an HTTP status means the backend is
// overloaded or rate limiting. 529 is Anthropic's "overloaded".
func IsTransientStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
		529:
		return true
	}
	return false
}

// ClassifyStatus turns a non-2xx response into a typed backend error.
func ClassifyStatus(backend domain.Backend, status int, retryAfter time.Duration, message string) error {
	cause := fmt.Errorf("status %d: %s", status, truncate(message, 300))
	if IsTransientStatus(status) {
		return domain.ErrTransientBackend(backend.String(), retryAfter, cause).
			WithMetadata("status", status)
	}
	return domain.ErrFatalBackend(backend.String(), cause).
		WithMetadata("status", status)
}

// classifyTransportError handles failures before a response arrived.
// Caller cancellation is returned unchanged so it is never retried.
func classifyTransportError(ctx context.Context, backend domain.Backend, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return domain.ErrTransientBackend(backend.String(), 0, err)
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an
// HTTP date. Unparseable values yield zero.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
