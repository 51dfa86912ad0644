package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/testforge/casegen/internal/domain"
	"github.com/testforge/casegen/internal/observability"
	"github.com/testforge/casegen/internal/resilience"
)

// RetryConfig configures dispatch retries.
type RetryConfig struct {
	MaxAttempts int           // total attempts including the first
	BaseDelay   time.Duration // wait before attempt 2, doubled each retry
	MaxDelay    time.Duration // cap on a single wait
}

// DefaultRetryConfig returns 3 attempts with 1s, 2s waits capped at 10s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
	}
}

// Backoff returns the wait before the given retry; retry 1 precedes attempt 2.
func (c RetryConfig) Backoff(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	d := c.BaseDelay
	for i := 1; i < retry; i++ {
		d *= 2
		if d >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if d > c.MaxDelay {
		return c.MaxDelay
	}
	return d
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Dispatcher sends prompts to a backend, retrying transient failures with
// exponential backoff. Each attempt passes through the backend's circuit
// breaker. Fatal and malformed errors are returned at once, and another
// backend is never substituted.
type Dispatcher struct {
	retry    RetryConfig
	breakers *resilience.Manager
	metrics  *observability.Metrics
	sleep    SleepFunc
	logger   *zap.Logger
}

// DispatcherOption customizes a Dispatcher
type DispatcherOption func(*Dispatcher)

// WithSleep replaces the backoff sleep, mostly for tests.
func WithSleep(fn SleepFunc) DispatcherOption {
	return func(d *Dispatcher) { d.sleep = fn }
}

// WithBreakers replaces the circuit breaker manager.
func WithBreakers(m *resilience.Manager) DispatcherOption {
	return func(d *Dispatcher) { d.breakers = m }
}

// WithMetrics records attempts on m.
func WithMetrics(m *observability.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher creates a dispatcher. Zero retry fields take defaults.
func NewDispatcher(retry RetryConfig, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	def := DefaultRetryConfig()
	if retry.MaxAttempts < 1 {
		retry.MaxAttempts = def.MaxAttempts
	}
	if retry.BaseDelay <= 0 {
		retry.BaseDelay = def.BaseDelay
	}
	if retry.MaxDelay <= 0 {
		retry.MaxDelay = def.MaxDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Dispatcher{
		retry:  retry,
		sleep:  sleepContext,
		logger: logger.Named("dispatcher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.breakers == nil {
		d.breakers = resilience.NewManager(d.breakerConfig())
	}
	return d
}

func (d *Dispatcher) breakerConfig() resilience.Config {
	cfg := resilience.DefaultConfig()
	cfg.IsFailure = domain.IsTransient
	cfg.OnStateChange = func(name string, from, to resilience.State) {
		d.logger.Warn("circuit breaker state changed",
			zap.String("backend", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		d.metrics.SetCircuitBreakerState(name, int(to))
	}
	return cfg
}

// Dispatch returns the backend's completion for prompt and images.
func (d *Dispatcher) Dispatch(ctx context.Context, backend Backend, prompt Prompt, images []Image) (string, error) {
	name := backend.Name().String()
	breaker := d.breakers.Get(name)

	var lastErr error
	for attempt := 1; attempt <= d.retry.MaxAttempts; attempt++ {
		if attempt > 1 {
			wait := d.retry.Backoff(attempt - 1)
			d.logger.Info("retrying backend",
				zap.String("backend", name),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", wait),
			)
			if err := d.sleep(ctx, wait); err != nil {
				return "", err
			}
		}

		var text string
		start := time.Now()
		err := breaker.Execute(ctx, func(ctx context.Context) error {
			var err error
			text, err = backend.Complete(ctx, prompt, images)
			return err
		})
		if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
			err = domain.ErrTransientBackend(name, 0, err)
		}
		d.metrics.RecordDispatch(name, outcome(err), time.Since(start))

		if err == nil {
			if attempt > 1 {
				d.logger.Info("backend succeeded after retry",
					zap.String("backend", name),
					zap.Int("attempt", attempt),
				)
			}
			return text, nil
		}

		lastErr = err
		if !domain.IsTransient(err) {
			d.logger.Warn("backend call failed",
				zap.String("backend", name),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return "", err
		}

		d.logger.Warn("transient backend failure",
			zap.String("backend", name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", d.retry.MaxAttempts),
			zap.Error(err),
		)
	}

	return "", lastErr
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case domain.IsTransient(err):
		return "transient"
	case domain.IsFatal(err):
		return "fatal"
	case domain.IsMalformed(err):
		return "malformed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
