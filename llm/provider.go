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

// Package llm defines the completion-provider abstraction the planner
// talks to, and a router that selects among configured providers.
// Concrete providers live in the groq, anthropic, and bedrock
// subpackages.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Provider is a completion backend.
type Provider interface {
	// Name identifies the provider ("groq", "anthropic", "bedrock").
	Name() string

	// Model returns the default model the provider completes with.
	Model() string

	// Complete generates a completion. Implementations make exactly one
	// upstream call per invocation; there is no retry at this layer.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// IsHealthy reports whether the provider expects calls to succeed.
	// Providers mark themselves unhealthy after transport failures and
	// 5xx responses, and healthy again after a success.
	IsHealthy() bool
}

// CompletionRequest is a provider-independent completion request.
type CompletionRequest struct {
	Prompt       string
	SystemPrompt string
	Model        string // override of the provider default
	MaxTokens    int
	Temperature  float64
}

// CompletionResponse is a provider-independent completion result.
// Provider is stamped by the router with the name of the provider that
// served the call.
type CompletionResponse struct {
	Content    string
	Provider   string
	Model      string
	StopReason string
	Usage      UsageStats
	Latency    time.Duration
}

// UsageStats contains token usage statistics
type UsageStats struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// APIError represents an HTTP error response from a provider API.
type APIError struct {
	Provider   string
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d, type %s): %s", e.Provider, e.StatusCode, e.Type, e.Message)
}

// IsRateLimitError returns true if this is a rate limit error
func (e *APIError) IsRateLimitError() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.Type == "rate_limit_error"
}

// IsAuthError returns true if this is an authentication error
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized || e.Type == "authentication_error"
}

// IsOverloadedError returns true if the API is overloaded
func (e *APIError) IsOverloadedError() bool {
	return e.StatusCode == http.StatusServiceUnavailable || e.Type == "overloaded_error"
}
