package llm

import (
	"context"
	"sort"
	"sync"

	"github.com/testforge/casegen/internal/domain"
)

// Prompt is the text part of a model request.
type Prompt struct {
	System string
	User   string
}

// Image is one screenshot attached to a request. Tag is the caption placed
// before the image, e.g. "[Image 1: Login Page]".
type Image struct {
	Tag      string
	MimeType string
	Data     []byte
}

// Backend is an LLM provider that accepts a prompt plus ordered images and
// returns a single text completion. Implementations report failures as
// *domain.AppError with TRANSIENT_BACKEND or FATAL_BACKEND codes.
type Backend interface {
	Name() domain.Backend
	Complete(ctx context.Context, prompt Prompt, images []Image) (string, error)
}

// Usage contains token usage information
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Registry selects a backend by its enum tag.
type Registry struct {
	mu       sync.RWMutex
	backends map[domain.Backend]Backend
}

// NewRegistry creates a registry holding the given backends.
func NewRegistry(backends ...Backend) *Registry {
	r := &Registry{backends: make(map[domain.Backend]Backend)}
	for _, b := range backends {
		r.Register(b)
	}
	return r
}

// Register adds or replaces a backend.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Name()] = b
}

// Get returns the backend for name or UNKNOWN_BACKEND.
func (r *Registry) Get(name domain.Backend) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	if !ok {
		return nil, domain.ErrUnknownBackend(string(name))
	}
	return b, nil
}

// Names lists registered backends in sorted order.
func (r *Registry) Names() []domain.Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Backend, 0, len(r.backends))
	for name := range r.backends {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
