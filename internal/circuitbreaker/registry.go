package circuitbreaker

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry hands out one breaker per provider app, created on first use.
type Registry struct {
	mu       sync.Mutex
	template Config
	breakers map[string]*CircuitBreaker
	logger   *zap.Logger
}

// NewRegistry creates breakers from base; Name is replaced by the app id.
func NewRegistry(base Config, logger *zap.Logger) *Registry {
	return &Registry{
		template: base,
		breakers: make(map[string]*CircuitBreaker),
		logger:   logger,
	}
}

// For returns the breaker for appID.
func (r *Registry) For(appID string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[appID]; ok {
		return cb
	}
	cfg := r.template
	cfg.Name = appID
	cb := New(cfg, r.logger)
	r.breakers[appID] = cb
	return cb
}

// Stats returns a snapshot of every breaker, ordered by name.
func (r *Registry) Stats() []Stats {
	r.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(r.breakers))
	for _, cb := range r.breakers {
		breakers = append(breakers, cb)
	}
	r.mu.Unlock()

	out := make([]Stats, 0, len(breakers))
	for _, cb := range breakers {
		out = append(out, cb.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
