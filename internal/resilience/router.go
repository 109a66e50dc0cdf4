package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/twinvoice/pkg/provider/llm"
)

// ErrNotConfigured is returned by [Router.Ask] for a provider ID that has no
// usable adapter, typically because its credential is missing.
var ErrNotConfigured = errors.New("resilience: provider not configured")

type route struct {
	provider llm.Provider
	breaker  *CircuitBreaker
}

// Router dispatches completion requests to named providers. Each configured
// provider has its own circuit breaker. The registration order is the
// priority order reported by [Router.Order].
type Router struct {
	breaker BreakerConfig

	mu     sync.RWMutex
	order  []string
	routes map[string]*route
	skip   map[string]string
}

// NewRouter creates an empty [Router]. breaker is the template for the
// per-provider circuit breakers.
func NewRouter(breaker BreakerConfig) *Router {
	return &Router{
		breaker: breaker,
		routes:  make(map[string]*route),
		skip:    make(map[string]string),
	}
}

// Register adds a configured provider under p.Name().
func (r *Router) Register(p llm.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := p.Name()
	bc := r.breaker
	bc.Name = "llm/" + id
	if _, seen := r.routes[id]; !seen {
		r.order = append(r.order, id)
	}
	delete(r.skip, id)
	r.routes[id] = &route{provider: p, breaker: NewCircuitBreaker(bc)}
}

// RegisterUnconfigured records a provider that appears in the priority order
// but cannot be called. reason is reported in logs.
func (r *Router) RegisterUnconfigured(id, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.routes[id]; ok {
		return
	}
	if _, seen := r.skip[id]; !seen {
		r.order = append(r.order, id)
	}
	r.skip[id] = reason
}

// Order returns all provider IDs, configured or not, in priority order.
func (r *Router) Order() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Configured reports whether id has a callable adapter.
func (r *Router) Configured(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.routes[id]
	return ok
}

// Reason returns why id is unconfigured, or "" if it is configured or unknown.
func (r *Router) Reason(id string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.skip[id]
}

// Ask sends req to the provider registered as id and returns its classified
// result. It makes exactly one attempt and never retries.
//
// An unknown or unconfigured id yields [ErrNotConfigured]. Every other
// failure, including an open breaker, is returned as a Result.
func (r *Router) Ask(ctx context.Context, req llm.Request, id string) (res llm.Result, err error) {
	r.mu.RLock()
	rt, ok := r.routes[id]
	reason := r.skip[id]
	r.mu.RUnlock()
	if !ok {
		if reason == "" {
			reason = "unknown provider"
		}
		return llm.Result{}, fmt.Errorf("%w: %s (%s)", ErrNotConfigured, id, reason)
	}

	if !rt.breaker.Allow() {
		return llm.Failed(id, llm.TransportFailure, "circuit open"), nil
	}

	defer func() {
		if p := recover(); p != nil {
			slog.Error("llm adapter panicked", "provider", id, "panic", p)
			res = llm.Failed(id, llm.SchemaMismatch, "adapter panic: %v", p)
		}
		// Content blocks are a property of the request, not of provider health.
		rt.breaker.Record(res.Kind == llm.Success || res.Kind == llm.Blocked)
	}()

	res = rt.provider.Ask(ctx, req)
	res.Provider = id
	if res.Kind == llm.Success && res.Text == "" {
		res = llm.Failed(id, llm.SchemaMismatch, "empty answer")
	}
	return res, nil
}
