// Package mock provides a test double for the llm.Provider interface.
//
// Example:
//
//	p := &mock.Provider{ID: "gemini", Result: llm.Succeeded("gemini", "Hello!")}
//	res := p.Ask(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/twinvoice/pkg/provider/llm"
)

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// ID is returned by Name.
	ID string

	// Result is returned by Ask. The Provider field is filled with ID when empty.
	Result llm.Result

	// AskFunc, if set, replaces Result.
	AskFunc func(ctx context.Context, req llm.Request) llm.Result

	// Requests records every request passed to Ask in order.
	Requests []llm.Request
}

var _ llm.Provider = (*Provider)(nil)

// Name implements llm.Provider.
func (p *Provider) Name() string { return p.ID }

// Ask records the call and returns the configured result.
func (p *Provider) Ask(ctx context.Context, req llm.Request) llm.Result {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	fn := p.AskFunc
	res := p.Result
	p.mu.Unlock()

	if fn != nil {
		res = fn(ctx, req)
	}
	if res.Provider == "" {
		res.Provider = p.ID
	}
	return res
}

// CallCount returns the number of Ask calls made so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}
