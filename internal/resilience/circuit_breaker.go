// Package resilience guards model backends with circuit breakers so a
// backend that keeps failing is rejected fast instead of being hammered.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the state of a circuit breaker
type State int32

const (
	// StateClosed - requests flow normally
	StateClosed State = iota
	// StateOpen - requests are rejected immediately
	StateOpen
	// StateHalfOpen - a limited number of probes are let through
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned when the circuit breaker is open
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrTooManyRequests is returned when all half-open probes are in flight
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Config holds configuration for a circuit breaker
type Config struct {
	// MaxRequests is the number of probes allowed in half-open state and the
	// consecutive successes needed to close again
	MaxRequests uint32

	// Interval clears counts periodically while closed. Zero never clears.
	Interval time.Duration

	// Timeout is how long the breaker stays open before probing
	Timeout time.Duration

	// ReadyToTrip decides, after a failure, whether to open the circuit
	ReadyToTrip func(counts Counts) bool

	// IsFailure decides whether an error counts against the backend. Errors
	// for which it returns false are passed through without being recorded.
	IsFailure func(err error) bool

	// OnStateChange is called whenever the state changes
	OnStateChange func(name string, from, to State)
}

// DefaultConfig trips after five consecutive failures and probes after 30s.
func DefaultConfig() Config {
	return Config{
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsFailure: func(err error) bool {
			return err != nil
		},
	}
}

// Counts holds the numbers of requests and their outcomes in a generation
type Counts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

func (c *Counts) onSuccess() {
	c.TotalSuccesses++
	c.ConsecutiveSuccesses++
	c.ConsecutiveFailures = 0
}

func (c *Counts) onFailure() {
	c.TotalFailures++
	c.ConsecutiveFailures++
	c.ConsecutiveSuccesses = 0
}

// CircuitBreaker implements the circuit breaker pattern. All state is
// guarded by mu.
type CircuitBreaker struct {
	name   string
	config Config
	now    func() time.Time

	mu          sync.Mutex
	state       State
	generation  uint64
	counts      Counts
	expiry      time.Time
	halfOpenReq uint32
}

// New creates a circuit breaker; zero config fields take DefaultConfig values.
func New(name string, config Config) *CircuitBreaker {
	def := DefaultConfig()
	if config.MaxRequests == 0 {
		config.MaxRequests = def.MaxRequests
	}
	if config.Timeout == 0 {
		config.Timeout = def.Timeout
	}
	if config.ReadyToTrip == nil {
		config.ReadyToTrip = def.ReadyToTrip
	}
	if config.IsFailure == nil {
		config.IsFailure = def.IsFailure
	}

	cb := &CircuitBreaker{name: name, config: config, now: time.Now}
	cb.toNewGeneration(cb.now())
	return cb
}

// Name returns the breaker name
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state, _ := cb.currentState(cb.now())
	return state
}

// Counts returns current counts (for monitoring)
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.counts
}

// Execute runs fn if the breaker allows it and records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	generation, err := cb.beforeRequest()
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		cb.release(generation)
		return err
	}

	err = fn(ctx)

	if err != nil && !cb.config.IsFailure(err) {
		cb.release(generation)
		return err
	}
	cb.afterRequest(generation, err == nil)
	return err
}

func (cb *CircuitBreaker) beforeRequest() (uint64, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	state, generation := cb.currentState(cb.now())

	switch state {
	case StateOpen:
		return generation, ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenReq >= cb.config.MaxRequests {
			return generation, ErrTooManyRequests
		}
		cb.halfOpenReq++
	}

	cb.counts.Requests++
	return generation, nil
}

// release frees a half-open slot for a request whose outcome says nothing
// about backend health.
func (cb *CircuitBreaker) release(before uint64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if state, generation := cb.currentState(cb.now()); generation == before && state == StateHalfOpen && cb.halfOpenReq > 0 {
		cb.halfOpenReq--
	}
}

func (cb *CircuitBreaker) afterRequest(before uint64, success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	state, generation := cb.currentState(now)

	// Counts were reset since the request started
	if generation != before {
		return
	}

	if success {
		cb.counts.onSuccess()
		if state == StateHalfOpen && cb.counts.ConsecutiveSuccesses >= cb.config.MaxRequests {
			cb.setState(StateClosed, now)
		}
		return
	}

	switch state {
	case StateClosed:
		cb.counts.onFailure()
		if cb.config.ReadyToTrip(cb.counts) {
			cb.setState(StateOpen, now)
		}
	case StateHalfOpen:
		cb.setState(StateOpen, now)
	}
}

func (cb *CircuitBreaker) currentState(now time.Time) (State, uint64) {
	switch cb.state {
	case StateClosed:
		if !cb.expiry.IsZero() && cb.expiry.Before(now) {
			cb.toNewGeneration(now)
		}
	case StateOpen:
		if cb.expiry.Before(now) {
			cb.setState(StateHalfOpen, now)
		}
	}
	return cb.state, cb.generation
}

func (cb *CircuitBreaker) setState(state State, now time.Time) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state

	cb.toNewGeneration(now)

	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(cb.name, prev, state)
	}
}

func (cb *CircuitBreaker) toNewGeneration(now time.Time) {
	cb.generation++
	cb.counts = Counts{}
	cb.halfOpenReq = 0

	switch cb.state {
	case StateClosed:
		if cb.config.Interval > 0 {
			cb.expiry = now.Add(cb.config.Interval)
		} else {
			cb.expiry = time.Time{}
		}
	case StateOpen:
		cb.expiry = now.Add(cb.config.Timeout)
	case StateHalfOpen:
		cb.expiry = time.Time{}
	}
}

// Manager hands out one breaker per name, all sharing one config
type Manager struct {
	config Config

	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewManager creates a new manager
func NewManager(config Config) *Manager {
	return &Manager{
		config:   config,
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns the circuit breaker for the given name, creating it if needed
func (m *Manager) Get(name string) *CircuitBreaker {
	m.mu.RLock()
	cb, ok := m.breakers[name]
	m.mu.RUnlock()

	if ok {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if cb, ok := m.breakers[name]; ok {
		return cb
	}

	cb = New(name, m.config)
	m.breakers[name] = cb
	return cb
}

// AllStates returns the state of all circuit breakers
func (m *Manager) AllStates() map[string]State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make(map[string]State, len(m.breakers))
	for name, cb := range m.breakers {
		states[name] = cb.State()
	}
	return states
}
