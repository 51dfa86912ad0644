package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errBackend = errors.New("backend overloaded")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(config Config) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := New("test", config)
	cb.now = clock.Now
	cb.toNewGeneration(clock.Now())
	return cb, clock
}

func fail(context.Context) error    { return errBackend }
func succeed(context.Context) error { return nil }

func tripAfter(n uint32) Config {
	return Config{
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= n
		},
	}
}

func TestCircuitBreaker_StartsInClosedState(t *testing.T) {
	cb := New("claude", DefaultConfig())

	if cb.State() != StateClosed {
		t.Errorf("initial state = %v, want Closed", cb.State())
	}
	if cb.Name() != "claude" {
		t.Errorf("Name() = %q, want claude", cb.Name())
	}
}

func TestCircuitBreaker_TripsToOpen(t *testing.T) {
	cb, _ := newTestBreaker(tripAfter(3))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Execute(ctx, fail); !errors.Is(err, errBackend) {
			t.Fatalf("attempt %d: err = %v, want backend error", i, err)
		}
	}

	if cb.State() != StateOpen {
		t.Errorf("state after failures = %v, want Open", cb.State())
	}

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("error = %v, want ErrCircuitOpen", err)
	}
	if called {
		t.Error("request should not run while open")
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, clock := newTestBreaker(tripAfter(1))
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	if cb.State() != StateOpen {
		t.Fatalf("state = %v, want Open", cb.State())
	}

	clock.Advance(11 * time.Second)
	if cb.State() != StateHalfOpen {
		t.Fatalf("state after timeout = %v, want HalfOpen", cb.State())
	}

	if err := cb.Execute(ctx, succeed); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("state after probe = %v, want Closed", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(tripAfter(1))
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock.Advance(11 * time.Second)

	_ = cb.Execute(ctx, fail)
	if cb.State() != StateOpen {
		t.Errorf("state = %v, want Open", cb.State())
	}
}

func TestCircuitBreaker_IgnoresNonFailures(t *testing.T) {
	errFatal := errors.New("invalid api key")
	config := tripAfter(1)
	config.IsFailure = func(err error) bool { return errors.Is(err, errBackend) }
	cb, _ := newTestBreaker(config)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := cb.Execute(ctx, func(context.Context) error { return errFatal }); !errors.Is(err, errFatal) {
			t.Fatalf("err = %v, want passthrough", err)
		}
	}

	if cb.State() != StateClosed {
		t.Errorf("state = %v, want Closed", cb.State())
	}
	if c := cb.Counts(); c.TotalFailures != 0 {
		t.Errorf("TotalFailures = %d, want 0", c.TotalFailures)
	}
}

func TestCircuitBreaker_CancelledContext(t *testing.T) {
	cb, _ := newTestBreaker(tripAfter(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := cb.Execute(ctx, succeed); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("state = %v, want Closed", cb.State())
	}
}

func TestCircuitBreaker_IntervalClearsCounts(t *testing.T) {
	config := tripAfter(3)
	config.Interval = time.Minute
	cb, clock := newTestBreaker(config)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	_ = cb.Execute(ctx, fail)
	clock.Advance(2 * time.Minute)
	_ = cb.Execute(ctx, fail)

	if cb.State() != StateClosed {
		t.Errorf("state = %v, want Closed after interval reset", cb.State())
	}
}

func TestCircuitBreaker_StateChangeCallback(t *testing.T) {
	var transitions []string
	config := tripAfter(1)
	config.OnStateChange = func(name string, from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}
	cb, clock := newTestBreaker(config)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock.Advance(11 * time.Second)
	_ = cb.Execute(ctx, succeed)

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition[%d] = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestManager_Get(t *testing.T) {
	m := NewManager(DefaultConfig())

	a := m.Get("claude")
	b := m.Get("claude")
	if a != b {
		t.Error("Get should return the same breaker for a name")
	}
	m.Get("gemini")

	states := m.AllStates()
	if len(states) != 2 {
		t.Errorf("AllStates() len = %d, want 2", len(states))
	}
	if states["gemini"] != StateClosed {
		t.Errorf("gemini state = %v, want Closed", states["gemini"])
	}
}

func TestManager_ConcurrentGet(t *testing.T) {
	m := NewManager(DefaultConfig())
	var wg sync.WaitGroup
	results := make([]*CircuitBreaker, 20)

	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = m.Get("shared")
		}(i)
	}
	wg.Wait()

	for _, cb := range results {
		if cb != results[0] {
			t.Fatal("concurrent Get returned different breakers")
		}
	}
}
