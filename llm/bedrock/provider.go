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

// Package bedrock provides an LLM provider implementation for AWS
// Bedrock using the AWS SDK v2. Requests are signed with AWS Signature
// V4, so clinics that keep all traffic inside their AWS account can run
// the planner without a third-party inference API.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"carepilot/backend/llm"
)

const (
	// DefaultRegion is the default AWS region
	DefaultRegion = "us-east-1"

	// DefaultModel is the default Bedrock model ID
	DefaultModel = "anthropic.claude-3-5-sonnet-20240620-v1:0"

	// DefaultMaxTokens is the default max tokens for completions
	DefaultMaxTokens = 1024

	// DefaultTemperature is the default temperature for completions
	DefaultTemperature = 0.7
)

// invokeClient is the Bedrock runtime surface the provider uses
// (enables testing).
type invokeClient interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Provider implements the llm.Provider interface for AWS Bedrock
type Provider struct {
	client  invokeClient
	region  string
	model   string
	healthy bool
	mu      sync.RWMutex
}

// Config contains configuration for the Bedrock provider
type Config struct {
	Region string // Optional: AWS region (default: us-east-1)
	Model  string // Optional: Bedrock model ID (default: Claude 3.5 Sonnet)

	// Optional explicit credentials. When unset the default AWS
	// credential chain applies (IAM role, environment, shared config).
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// NewProvider creates a new Bedrock provider instance
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if detectModelFamily(cfg.Model) == "" {
		return nil, fmt.Errorf("unsupported bedrock model: %s", cfg.Model)
	}

	optFns := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}

	// Use explicit credentials if provided, otherwise use default credential chain
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)
		optFns = append(optFns, config.WithCredentialsProvider(creds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &Provider{
		client:  bedrockruntime.NewFromConfig(awsCfg),
		region:  cfg.Region,
		model:   cfg.Model,
		healthy: true,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "bedrock"
}

// Model returns the default model ID
func (p *Provider) Model() string {
	return p.model
}

// IsHealthy returns whether the provider is healthy
func (p *Provider) IsHealthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.healthy && p.region != ""
}

func (p *Provider) setHealthy(healthy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthy = healthy
}

// Complete generates a completion for the given request
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	start := time.Now()

	model := req.Model
	if model == "" {
		model = p.model
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	temperature := req.Temperature
	if temperature < 0 {
		temperature = DefaultTemperature
	}

	prompt := req.Prompt
	if req.SystemPrompt != "" {
		// Bedrock text models take a single prompt; fold the system
		// prompt in ahead of the user prompt.
		prompt = req.SystemPrompt + "\n\n" + req.Prompt
	}

	requestBody, err := buildRequestBody(model, prompt, maxTokens, temperature)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	requestJSON, err := json.Marshal(requestBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		Body:        requestJSON,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		p.setHealthy(false)
		return nil, fmt.Errorf("bedrock API error: %w", err)
	}

	p.setHealthy(true)

	content, usage, err := parseResponseBody(model, output.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	return &llm.CompletionResponse{
		Content: content,
		Model:   model,
		Usage:   usage,
		Latency: time.Since(start),
	}, nil
}

// buildRequestBody builds the request body based on model family
func buildRequestBody(model, prompt string, maxTokens int, temperature float64) (map[string]interface{}, error) {
	family := detectModelFamily(model)

	switch family {
	case "anthropic":
		return map[string]interface{}{
			"anthropic_version": "bedrock-2023-05-31",
			"max_tokens":        maxTokens,
			"temperature":       temperature,
			"messages": []map[string]string{
				{"role": "user", "content": prompt},
			},
		}, nil
	case "amazon":
		return map[string]interface{}{
			"inputText": prompt,
			"textGenerationConfig": map[string]interface{}{
				"maxTokenCount": maxTokens,
				"temperature":   temperature,
				"topP":          0.9,
			},
		}, nil
	case "meta":
		return map[string]interface{}{
			"prompt":      prompt,
			"max_gen_len": maxTokens,
			"temperature": temperature,
			"top_p":       0.9,
		}, nil
	case "mistral":
		return map[string]interface{}{
			"prompt":      prompt,
			"max_tokens":  maxTokens,
			"temperature": temperature,
			"top_p":       0.9,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported model family for %q", model)
	}
}

// parseResponseBody parses the response body based on model family
func parseResponseBody(model string, body []byte) (string, llm.UsageStats, error) {
	switch detectModelFamily(model) {
	case "anthropic":
		return parseAnthropicResponse(body)
	case "amazon":
		return parseAmazonTitanResponse(body)
	case "meta":
		return parseMetaLlamaResponse(body)
	case "mistral":
		return parseMistralResponse(body)
	default:
		return "", llm.UsageStats{}, fmt.Errorf("unsupported model family for %q", model)
	}
}

func parseAnthropicResponse(body []byte) (string, llm.UsageStats, error) {
	var resp struct {
		Content []struct {
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return "", llm.UsageStats{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	content := ""
	if len(resp.Content) > 0 {
		content = resp.Content[0].Text
	}

	return content, llm.UsageStats{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
	}, nil
}

func parseAmazonTitanResponse(body []byte) (string, llm.UsageStats, error) {
	var resp struct {
		Results []struct {
			OutputText string `json:"outputText"`
			TokenCount int    `json:"tokenCount"`
		} `json:"results"`
		InputTextTokenCount int `json:"inputTextTokenCount"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return "", llm.UsageStats{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	content := ""
	outputTokens := 0
	if len(resp.Results) > 0 {
		content = resp.Results[0].OutputText
		outputTokens = resp.Results[0].TokenCount
	}

	return content, llm.UsageStats{
		InputTokens:  resp.InputTextTokenCount,
		OutputTokens: outputTokens,
		TotalTokens:  resp.InputTextTokenCount + outputTokens,
	}, nil
}

func parseMetaLlamaResponse(body []byte) (string, llm.UsageStats, error) {
	var resp struct {
		Generation       string `json:"generation"`
		PromptTokenCount int    `json:"prompt_token_count"`
		GenTokenCount    int    `json:"generation_token_count"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return "", llm.UsageStats{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return resp.Generation, llm.UsageStats{
		InputTokens:  resp.PromptTokenCount,
		OutputTokens: resp.GenTokenCount,
		TotalTokens:  resp.PromptTokenCount + resp.GenTokenCount,
	}, nil
}

func parseMistralResponse(body []byte) (string, llm.UsageStats, error) {
	var resp struct {
		Outputs []struct {
			Text string `json:"text"`
		} `json:"outputs"`
	}

	if err := json.Unmarshal(body, &resp); err != nil {
		return "", llm.UsageStats{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	content := ""
	if len(resp.Outputs) > 0 {
		content = resp.Outputs[0].Text
	}

	// Mistral does not report token counts
	return content, llm.UsageStats{}, nil
}

// inferenceProfilePrefixes are the known Bedrock inference profile prefixes.
var inferenceProfilePrefixes = []string{"eu", "us", "apac", "global"}

// supportedFamilies are the model families this provider can talk to.
var supportedFamilies = []string{"anthropic", "amazon", "meta", "mistral"}

// detectModelFamily detects the model family from a model ID such as
// "anthropic.claude-3-5-sonnet-20240620-v1:0" or an inference profile ID
// such as "eu.anthropic.claude-sonnet-4-20250514-v1:0". It returns the
// empty string for unsupported families.
func detectModelFamily(modelID string) string {
	segments := strings.Split(modelID, ".")
	if len(segments) < 2 {
		return ""
	}

	first := segments[0]
	for _, prefix := range inferenceProfilePrefixes {
		if first == prefix {
			return validateFamily(segments[1])
		}
	}
	return validateFamily(first)
}

func validateFamily(family string) string {
	for _, supported := range supportedFamilies {
		if family == supported {
			return family
		}
	}
	return ""
}
