package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [Group] fails or has an open
// circuit breaker.
var ErrAllFailed = errors.New("resilience: all backends failed")

// ErrEmptyGroup is returned when a [Group] has no entries.
var ErrEmptyGroup = errors.New("resilience: no backends configured")

// GroupConfig configures a [Group].
type GroupConfig struct {
	// Breaker is the template for the per-entry circuit breakers. Name is
	// replaced with the entry name.
	Breaker BreakerConfig

	// Terminal reports errors that end the attempt chain immediately. A
	// terminal error is returned as-is, is not counted against the entry's
	// breaker and does not cause the next entry to be tried. Use it for
	// answers that another backend would not change, such as "no speech".
	Terminal func(error) bool
}

type groupEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// Group holds an ordered set of interchangeable backends, each guarded by its
// own [CircuitBreaker]. Entries are tried in registration order.
type Group[T any] struct {
	cfg     GroupConfig
	entries []groupEntry[T]
}

// NewGroup creates an empty [Group].
func NewGroup[T any](cfg GroupConfig) *Group[T] {
	return &Group[T]{cfg: cfg}
}

// Add appends a backend. Not safe to call concurrently with [Do].
func (g *Group[T]) Add(name string, value T) {
	bc := g.cfg.Breaker
	bc.Name = name
	g.entries = append(g.entries, groupEntry[T]{name: name, value: value, breaker: NewCircuitBreaker(bc)})
}

// Len returns the number of registered backends.
func (g *Group[T]) Len() int { return len(g.entries) }

// Names returns the backend names in order.
func (g *Group[T]) Names() []string {
	out := make([]string, len(g.entries))
	for i, e := range g.entries {
		out[i] = e.name
	}
	return out
}

// Do runs fn against each backend of g in order until one succeeds or returns
// a terminal error. It returns the successful value and the name of the
// backend that produced it. If every backend fails, the error wraps
// [ErrAllFailed] and the last backend error. This is a package-level function
// because Go does not support method-level type parameters.
func Do[T, R any](g *Group[T], fn func(T) (R, error)) (R, string, error) {
	var zero R
	if len(g.entries) == 0 {
		return zero, "", ErrEmptyGroup
	}

	var lastErr error
	for i := range g.entries {
		entry := &g.entries[i]
		if !entry.breaker.Allow() {
			slog.Debug("skipping backend (circuit open)", "backend", entry.name)
			lastErr = fmt.Errorf("%s: %w", entry.name, ErrCircuitOpen)
			continue
		}

		result, err := fn(entry.value)
		if err == nil {
			entry.breaker.Record(true)
			return result, entry.name, nil
		}
		if g.cfg.Terminal != nil && g.cfg.Terminal(err) {
			entry.breaker.Record(true)
			return zero, entry.name, err
		}
		entry.breaker.Record(false)
		lastErr = err
		slog.Warn("backend failed, trying next", "backend", entry.name, "err", err)
	}
	return zero, "", fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
