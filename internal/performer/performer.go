package performer

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"actioner/internal/catalog"
	"actioner/internal/match"
)

// Result is the outcome of one Perform call. A non-2xx response is a result,
// not an error; Err is set only when no response was received.
type Result struct {
	Performer  string
	StatusCode int
	Duration   time.Duration
	Err        error
}

func (r Result) Success() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Permanent reports a client error that retrying will not fix.
func (r Result) Permanent() bool {
	return r.Err == nil && r.StatusCode >= 400 && r.StatusCode < 500 && r.StatusCode != http.StatusTooManyRequests
}

// Failure describes an unsuccessful result, or nil.
func (r Result) Failure() error {
	switch {
	case r.Success():
		return nil
	case r.Err != nil:
		return fmt.Errorf("performer %s: %w", r.Performer, r.Err)
	default:
		return fmt.Errorf("performer %s: endpoint returned status %d", r.Performer, r.StatusCode)
	}
}

// Performer carries out one action for a match. Implementations never retry.
type Performer interface {
	Name() string
	Perform(ctx context.Context, m match.Message) Result
}

// Constructor builds a performer from its catalog entry.
type Constructor func(cfg catalog.PerformerConfig, client *http.Client) (Performer, error)

// Registry maps a performer subtype to its constructor.
type Registry struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
}

func NewRegistry() *Registry {
	return &Registry{constructors: make(map[string]Constructor)}
}

// DefaultRegistry knows the four webhook subtypes.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(SubtypeWebhookPost, NewWebhookConstructor(http.MethodPost))
	r.Register(SubtypeWebhookGet, NewWebhookConstructor(http.MethodGet))
	r.Register(SubtypeWebhookPut, NewWebhookConstructor(http.MethodPut))
	r.Register(SubtypeWebhookDelete, NewWebhookConstructor(http.MethodDelete))
	return r
}

func (r *Registry) Register(subtype string, c Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.constructors[subtype] = c
}

func (r *Registry) Subtypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.constructors))
	for s := range r.constructors {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) Build(cfg catalog.PerformerConfig, client *http.Client) (Performer, error) {
	r.mu.RLock()
	c, ok := r.constructors[cfg.Subtype]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown performer subtype %q for %s", cfg.Subtype, cfg.Name)
	}
	return c(cfg, client)
}
