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

// Package scribe is a client for the medical-scribe open API: JWT
// exchange, session and transcript retrieval, document and clinical-code
// listings, document creation and the streaming ask-ai endpoint.
package scribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// DefaultTimeout is the default HTTP timeout for non-streaming calls
	DefaultTimeout = 60 * time.Second

	// DefaultVoiceStyle is the default document voice style
	DefaultVoiceStyle = "GOLDILOCKS"

	// DefaultBrain is the default document generation brain
	DefaultBrain = "LEFT"

	// DefaultContentType is the default document content type
	DefaultContentType = "MARKDOWN"

	// apiKeyHeader carries the API key on the JWT exchange
	apiKeyHeader = "Scribe-Api-Key"
)

// HTTPClient is an interface for HTTP client operations (enables testing)
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the scribe open API. All session-scoped calls are
// Bearer-authenticated with a JWT obtained through the key exchange and
// cached per account (see TokenCache).
type Client struct {
	baseURL      string
	apiKey       string
	email        string
	internalID   string
	client       HTTPClient
	streamClient HTTPClient
	tokens       *TokenCache
}

// Config contains configuration for the scribe client
type Config struct {
	BaseURL    string        // Required: open API base URL
	APIKey     string        // Required: scribe API key
	Email      string        // Required: account email for the JWT exchange
	InternalID string        // Optional: third-party internal ID (default: 12345)
	HTTPClient HTTPClient    // Optional: HTTP client override
	Timeout    time.Duration // Optional: non-streaming timeout (default: 60s)
	Redis      *redis.Client // Optional: token cache backend (nil disables caching)
}

// NewClient creates a new scribe client
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("scribe base URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("scribe API key is required")
	}
	if cfg.Email == "" {
		return nil, fmt.Errorf("scribe account email is required")
	}
	if cfg.InternalID == "" {
		cfg.InternalID = "12345"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		email:        cfg.Email,
		internalID:   cfg.InternalID,
		client:       cfg.HTTPClient,
		streamClient: cfg.HTTPClient,
	}

	if c.client == nil {
		c.client = &http.Client{Timeout: cfg.Timeout}
		// Streaming responses can outlive a fixed request timeout;
		// the caller's context bounds those instead.
		c.streamClient = &http.Client{}
	}

	c.tokens = NewTokenCache(cfg.Redis, cfg.Email, cfg.InternalID, c.FetchToken)
	return c, nil
}

// FetchToken exchanges the API key for a JWT. Most callers want Token,
// which consults the cache first.
func (c *Client) FetchToken(ctx context.Context) (string, error) {
	query := url.Values{}
	query.Set("email", c.email)
	query.Set("third_party_internal_id", c.internalID)

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/jwt?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("scribe API error: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", requestFailed("jwt", resp)
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode jwt response: %w", err)
	}
	if payload.Token == "" {
		return "", fmt.Errorf("scribe jwt response missing token field")
	}

	return payload.Token, nil
}

// Token returns a JWT for the configured account, cached when a cache
// backend is configured.
func (c *Client) Token(ctx context.Context) (string, error) {
	return c.tokens.Token(ctx)
}

// Session fetches a session by ID. The service sometimes nests the
// payload under a "session" key; both shapes are accepted.
func (c *Client) Session(ctx context.Context, sessionID string) (*Session, error) {
	resp, err := c.get(ctx, "/sessions/"+sessionID)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, requestFailed("session", resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read session response: %w", err)
	}

	payload := body
	var envelope struct {
		Session json.RawMessage `json:"session"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && len(envelope.Session) > 0 && string(envelope.Session) != "null" {
		payload = envelope.Session
	}

	var session Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session response: %w", err)
	}

	return &session, nil
}

// Transcript fetches the transcript text for a session. The text
// arrives in either the "transcript" or the "data" field.
func (c *Client) Transcript(ctx context.Context, sessionID string) (string, error) {
	resp, err := c.get(ctx, "/sessions/"+sessionID+"/transcript")
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", requestFailed("transcript", resp)
	}

	var payload struct {
		Transcript string `json:"transcript"`
		Data       string `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode transcript response: %w", err)
	}

	if payload.Transcript != "" {
		return payload.Transcript, nil
	}
	return payload.Data, nil
}

// Documents lists the documents attached to a session. A non-200
// answer means no documents rather than a failure.
func (c *Client) Documents(ctx context.Context, sessionID string) ([]Document, error) {
	resp, err := c.get(ctx, "/sessions/"+sessionID+"/documents")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	var payload struct {
		Documents []Document `json:"documents"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode documents response: %w", err)
	}

	return payload.Documents, nil
}

// ClinicalCodes lists the coded clinical entities for a session. Coding
// is organisation-gated, so a non-200 answer yields an empty result.
func (c *Client) ClinicalCodes(ctx context.Context, sessionID string) ([]ClinicalEntity, error) {
	resp, err := c.get(ctx, "/sessions/"+sessionID+"/clinical-codes")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}

	var payload struct {
		ClinicalEntities []ClinicalEntity `json:"clinical_entities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode clinical codes response: %w", err)
	}

	return payload.ClinicalEntities, nil
}

// DocumentTemplates lists the global consult-note and document templates.
func (c *Client) DocumentTemplates(ctx context.Context) ([]DocumentTemplate, error) {
	resp, err := c.get(ctx, "/templates/document-templates")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, requestFailed("template", resp)
	}

	var payload struct {
		Templates []DocumentTemplate `json:"templates"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode templates response: %w", err)
	}

	return payload.Templates, nil
}

// CreateDocument creates a template-generated document in a session.
// The service answers 200 or 201 on success depending on version.
func (c *Client) CreateDocument(ctx context.Context, sessionID string, docReq CreateDocumentRequest) (*CreatedDocument, error) {
	if docReq.VoiceStyle == "" {
		docReq.VoiceStyle = DefaultVoiceStyle
	}
	if docReq.Brain == "" {
		docReq.Brain = DefaultBrain
	}
	if docReq.ContentType == "" {
		docReq.ContentType = DefaultContentType
	}

	payload := map[string]string{
		"document_tab_type": "DOCUMENT",
		"generation_method": "TEMPLATE",
		"brain":             docReq.Brain,
		"content_type":      docReq.ContentType,
		"voice_style":       docReq.VoiceStyle,
	}
	if docReq.TemplateID != "" {
		payload["template_id"] = docReq.TemplateID
	}

	resp, err := c.post(ctx, "/sessions/"+sessionID+"/documents", payload, c.client)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, requestFailed("document creation", resp)
	}

	var created CreatedDocument
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("failed to decode document response: %w", err)
	}

	return &created, nil
}

// get issues an authenticated GET against the open API.
func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scribe API error: %w", err)
	}
	return resp, nil
}

// post issues an authenticated JSON POST against the open API using the
// given HTTP client (streaming calls use the unbounded client).
func (c *Client) post(ctx context.Context, path string, payload interface{}, client HTTPClient) (*http.Response, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("scribe API error: %w", err)
	}
	return resp, nil
}

// requestFailed builds the error for a non-2xx open API answer.
func requestFailed(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return fmt.Errorf("scribe %s request failed: status %d: %s", operation, resp.StatusCode, strings.TrimSpace(string(body)))
}
