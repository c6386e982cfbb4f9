// Copyright 2026 CarePilot
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llm

import (
	"context"
	"fmt"
)

// Router selects among configured providers in preference order. The
// first healthy provider receives each completion call. Selection is
// health-flag based only: a failed call is not re-dispatched to another
// provider, so a single request never fans out.
type Router struct {
	providers []Provider
}

// NewRouter creates a router over providers in preference order. The
// primary provider comes first.
func NewRouter(providers ...Provider) *Router {
	return &Router{providers: providers}
}

// Providers returns the configured providers in preference order.
func (r *Router) Providers() []Provider {
	out := make([]Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// Complete dispatches the request to the first healthy provider.
func (r *Router) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	provider := r.selectProvider()
	if provider == nil {
		return nil, fmt.Errorf("no healthy providers available")
	}
	resp, err := provider.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", provider.Name(), err)
	}
	resp.Provider = provider.Name()
	return resp, nil
}

func (r *Router) selectProvider() Provider {
	for _, p := range r.providers {
		if p.IsHealthy() {
			return p
		}
	}
	return nil
}

// HealthSnapshot reports the current health flag of every provider,
// keyed by provider name.
func (r *Router) HealthSnapshot() map[string]bool {
	snapshot := make(map[string]bool, len(r.providers))
	for _, p := range r.providers {
		snapshot[p.Name()] = p.IsHealthy()
	}
	return snapshot
}

// TextCompleter adapts the router to a plain prompt-in, text-out
// collaborator. It satisfies the planner's Completer interface.
type TextCompleter struct {
	router      *Router
	maxTokens   int
	temperature float64
}

// TextCompleter returns a prompt-level completer over the router with
// the given generation settings.
func (r *Router) TextCompleter(maxTokens int, temperature float64) *TextCompleter {
	return &TextCompleter{router: r, maxTokens: maxTokens, temperature: temperature}
}

// Complete sends one prompt and returns the completion text.
func (c *TextCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.router.Complete(ctx, CompletionRequest{
		Prompt:      prompt,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}
