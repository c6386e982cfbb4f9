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

package anthropic

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"carepilot/backend/llm"
)

// MockHTTPClient is a mock HTTP client for testing
type MockHTTPClient struct {
	mock.Mock
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*http.Response), args.Error(1)
}

// =============================================================================
// Provider Creation Tests
// =============================================================================

func TestNewProvider_Success(t *testing.T) {
	provider, err := NewProvider(Config{
		APIKey: "test-api-key",
	})

	require.NoError(t, err)
	require.NotNil(t, provider)
	assert.Equal(t, "anthropic", provider.Name())
	assert.Equal(t, DefaultModel, provider.Model())
	assert.Equal(t, DefaultBaseURL, provider.baseURL)
	assert.Equal(t, DefaultAPIVersion, provider.apiVersion)
	assert.True(t, provider.IsHealthy())
}

func TestNewProvider_CustomConfig(t *testing.T) {
	provider, err := NewProvider(Config{
		APIKey:     "test-api-key",
		BaseURL:    "https://proxy.example.com/anthropic/",
		APIVersion: "2024-01-01",
		Model:      "claude-3-haiku-20240307",
		Timeout:    45 * time.Second,
	})

	require.NoError(t, err)
	assert.Equal(t, "https://proxy.example.com/anthropic", provider.baseURL)
	assert.Equal(t, "2024-01-01", provider.apiVersion)
	assert.Equal(t, "claude-3-haiku-20240307", provider.Model())
	assert.Equal(t, 45*time.Second, provider.timeout)
}

func TestNewProvider_MissingAPIKey(t *testing.T) {
	provider, err := NewProvider(Config{})

	require.Error(t, err)
	assert.Nil(t, provider)
	assert.Contains(t, err.Error(), "API key is required")
}

// =============================================================================
// Completion Tests
// =============================================================================

func TestProvider_Complete_Success(t *testing.T) {
	provider, err := NewProvider(Config{APIKey: "test-api-key"})
	require.NoError(t, err)

	mockClient := new(MockHTTPClient)
	provider.client = mockClient

	respBody := []byte(`{
		"id": "msg_01",
		"type": "message",
		"role": "assistant",
		"model": "claude-3-5-sonnet-20241022",
		"stop_reason": "end_turn",
		"content": [{"type": "text", "text": "Follow-up plan drafted."}],
		"usage": {"input_tokens": 210, "output_tokens": 34}
	}`)

	mockClient.On("Do", mock.MatchedBy(func(req *http.Request) bool {
		return req.URL.String() == DefaultBaseURL+"/v1/messages" &&
			req.Header.Get("x-api-key") == "test-api-key" &&
			req.Header.Get("anthropic-version") == DefaultAPIVersion
	})).Return(&http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(respBody)),
	}, nil)

	resp, err := provider.Complete(context.Background(), llm.CompletionRequest{
		Prompt:      "Summarize the consultation",
		MaxTokens:   1024,
		Temperature: 0.3,
	})

	require.NoError(t, err)
	assert.Equal(t, "Follow-up plan drafted.", resp.Content)
	assert.Equal(t, "claude-3-5-sonnet-20241022", resp.Model)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, 210, resp.Usage.InputTokens)
	assert.Equal(t, 34, resp.Usage.OutputTokens)
	assert.Equal(t, 244, resp.Usage.TotalTokens)
	assert.True(t, provider.IsHealthy())
	mockClient.AssertExpectations(t)
}

func TestProvider_Complete_MultipleContentBlocks(t *testing.T) {
	provider, err := NewProvider(Config{APIKey: "test-api-key"})
	require.NoError(t, err)

	mockClient := new(MockHTTPClient)
	provider.client = mockClient

	respBody := []byte(`{
		"model": "claude-3-5-sonnet-20241022",
		"stop_reason": "end_turn",
		"content": [
			{"type": "text", "text": "Part one. "},
			{"type": "tool_use", "text": "ignored"},
			{"type": "text", "text": "Part two."}
		],
		"usage": {"input_tokens": 10, "output_tokens": 8}
	}`)

	mockClient.On("Do", mock.Anything).Return(&http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(respBody)),
	}, nil)

	resp, err := provider.Complete(context.Background(), llm.CompletionRequest{Prompt: "test"})

	require.NoError(t, err)
	assert.Equal(t, "Part one. Part two.", resp.Content)
	mockClient.AssertExpectations(t)
}

func TestProvider_Complete_WithSystemPrompt(t *testing.T) {
	provider, err := NewProvider(Config{APIKey: "test-api-key"})
	require.NoError(t, err)

	mockClient := new(MockHTTPClient)
	provider.client = mockClient

	respBody := []byte(`{
		"model": "claude-3-5-sonnet-20241022",
		"stop_reason": "end_turn",
		"content": [{"type": "text", "text": "ok"}],
		"usage": {"input_tokens": 5, "output_tokens": 1}
	}`)

	mockClient.On("Do", mock.MatchedBy(func(req *http.Request) bool {
		body, _ := io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewReader(body))
		return strings.Contains(string(body), `"system":"You are a clinical scribe assistant"`)
	})).Return(&http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(respBody)),
	}, nil)

	_, err = provider.Complete(context.Background(), llm.CompletionRequest{
		Prompt:       "test",
		SystemPrompt: "You are a clinical scribe assistant",
	})

	require.NoError(t, err)
	mockClient.AssertExpectations(t)
}

func TestProvider_Complete_ModelOverride(t *testing.T) {
	provider, err := NewProvider(Config{APIKey: "test-api-key"})
	require.NoError(t, err)

	mockClient := new(MockHTTPClient)
	provider.client = mockClient

	respBody := []byte(`{
		"model": "claude-3-haiku-20240307",
		"stop_reason": "end_turn",
		"content": [{"type": "text", "text": "ok"}],
		"usage": {"input_tokens": 5, "output_tokens": 1}
	}`)

	mockClient.On("Do", mock.MatchedBy(func(req *http.Request) bool {
		body, _ := io.ReadAll(req.Body)
		req.Body = io.NopCloser(bytes.NewReader(body))
		return strings.Contains(string(body), `"model":"claude-3-haiku-20240307"`)
	})).Return(&http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(respBody)),
	}, nil)

	resp, err := provider.Complete(context.Background(), llm.CompletionRequest{
		Prompt: "test",
		Model:  "claude-3-haiku-20240307",
	})

	require.NoError(t, err)
	assert.Equal(t, "claude-3-haiku-20240307", resp.Model)
	mockClient.AssertExpectations(t)
}

func TestProvider_Complete_HTTPError(t *testing.T) {
	provider, err := NewProvider(Config{APIKey: "test-api-key"})
	require.NoError(t, err)

	mockClient := new(MockHTTPClient)
	provider.client = mockClient

	errBody := []byte(`{"type": "error", "error": {"type": "api_error", "message": "Internal server error"}}`)

	mockClient.On("Do", mock.Anything).Return(&http.Response{
		StatusCode: http.StatusInternalServerError,
		Body:       io.NopCloser(bytes.NewReader(errBody)),
	}, nil)

	_, err = provider.Complete(context.Background(), llm.CompletionRequest{Prompt: "test"})

	require.Error(t, err)
	assert.False(t, provider.IsHealthy())

	var apiErr *llm.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "anthropic", apiErr.Provider)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Equal(t, "api_error", apiErr.Type)
	mockClient.AssertExpectations(t)
}

func TestProvider_Complete_RateLimitError(t *testing.T) {
	provider, err := NewProvider(Config{APIKey: "test-api-key"})
	require.NoError(t, err)

	mockClient := new(MockHTTPClient)
	provider.client = mockClient

	errBody := []byte(`{"type": "error", "error": {"type": "rate_limit_error", "message": "Rate limited"}}`)

	mockClient.On("Do", mock.Anything).Return(&http.Response{
		StatusCode: http.StatusTooManyRequests,
		Body:       io.NopCloser(bytes.NewReader(errBody)),
	}, nil)

	_, err = provider.Complete(context.Background(), llm.CompletionRequest{Prompt: "test"})

	require.Error(t, err)
	assert.True(t, provider.IsHealthy())

	var apiErr *llm.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.IsRateLimitError())
	mockClient.AssertExpectations(t)
}

func TestProvider_Complete_AuthError(t *testing.T) {
	provider, err := NewProvider(Config{APIKey: "bad-key"})
	require.NoError(t, err)

	mockClient := new(MockHTTPClient)
	provider.client = mockClient

	errBody := []byte(`{"type": "error", "error": {"type": "authentication_error", "message": "Invalid API key"}}`)

	mockClient.On("Do", mock.Anything).Return(&http.Response{
		StatusCode: http.StatusUnauthorized,
		Body:       io.NopCloser(bytes.NewReader(errBody)),
	}, nil)

	_, err = provider.Complete(context.Background(), llm.CompletionRequest{Prompt: "test"})

	require.Error(t, err)

	var apiErr *llm.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.IsAuthError())
	mockClient.AssertExpectations(t)
}

func TestProvider_Complete_NetworkError(t *testing.T) {
	provider, err := NewProvider(Config{APIKey: "test-api-key"})
	require.NoError(t, err)

	mockClient := new(MockHTTPClient)
	provider.client = mockClient

	mockClient.On("Do", mock.Anything).Return(nil, fmt.Errorf("dial tcp: connection refused"))

	_, err = provider.Complete(context.Background(), llm.CompletionRequest{Prompt: "test"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic API error")
	assert.False(t, provider.IsHealthy())
	mockClient.AssertExpectations(t)
}

// =============================================================================
// Health Check Tests
// =============================================================================

func TestProvider_IsHealthy(t *testing.T) {
	tests := []struct {
		name     string
		provider *Provider
		expected bool
	}{
		{
			name:     "healthy provider",
			provider: &Provider{apiKey: "key", healthy: true},
			expected: true,
		},
		{
			name:     "unhealthy after failure",
			provider: &Provider{apiKey: "key", healthy: false},
			expected: false,
		},
		{
			name:     "missing API key",
			provider: &Provider{apiKey: "", healthy: true},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.provider.IsHealthy())
		})
	}
}
