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

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManager resolves a secret reference to its credential fields.
type SecretsManager interface {
	GetSecret(ctx context.Context, ref string) (map[string]string, error)
}

// NewSecretsManager builds the secrets backing selected by cfg. An empty
// provider disables resolution and returns nil.
func NewSecretsManager(ctx context.Context, cfg SecretsConfig) (SecretsManager, error) {
	switch cfg.Provider {
	case "":
		return nil, nil
	case "aws":
		return NewAWSSecretsManager(ctx, AWSSecretsManagerOptions{Region: cfg.Region})
	case "env":
		return NewEnvSecretsManager(nil), nil
	default:
		return nil, fmt.Errorf("config: unknown secrets provider %q", cfg.Provider)
	}
}

// ResolveSecrets fills API keys whose *_secret_ref is configured and whose
// literal value is empty. A nil manager leaves the config untouched.
func (c *Config) ResolveSecrets(ctx context.Context, secrets SecretsManager) error {
	if secrets == nil {
		return nil
	}

	targets := []struct {
		ref  string
		dest *string
	}{
		{c.Scribe.APIKeySecretRef, &c.Scribe.APIKey},
		{c.LLM.Groq.APIKeySecretRef, &c.LLM.Groq.APIKey},
		{c.LLM.Anthropic.APIKeySecretRef, &c.LLM.Anthropic.APIKey},
	}

	for _, target := range targets {
		if target.ref == "" || *target.dest != "" {
			continue
		}
		value, err := resolveAPIKey(ctx, secrets, target.ref)
		if err != nil {
			return err
		}
		*target.dest = value
	}

	return nil
}

func resolveAPIKey(ctx context.Context, secrets SecretsManager, ref string) (string, error) {
	fields, err := secrets.GetSecret(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("config: resolve secret %s: %w", maskRef(ref), err)
	}
	if value := fields["api_key"]; value != "" {
		return value, nil
	}
	if value := fields["value"]; value != "" {
		return value, nil
	}
	return "", fmt.Errorf("config: secret %s carries neither api_key nor value", maskRef(ref))
}

// AWSSecretsManager implements SecretsManager using AWS Secrets Manager
type AWSSecretsManager struct {
	client *secretsmanager.Client
	cache  map[string]*secretCacheEntry
	mu     sync.RWMutex
	ttl    time.Duration
	logger *log.Logger
}

type secretCacheEntry struct {
	value     map[string]string
	expiresAt time.Time
}

// AWSSecretsManagerOptions holds options for creating an AWSSecretsManager
type AWSSecretsManagerOptions struct {
	Region   string
	CacheTTL time.Duration
	Logger   *log.Logger
}

// NewAWSSecretsManager creates a new AWS Secrets Manager client
func NewAWSSecretsManager(ctx context.Context, opts AWSSecretsManagerOptions) (*AWSSecretsManager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[SECRETS] ", log.LstdFlags)
	}

	cfgOpts := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		cfgOpts = append(cfgOpts, awsconfig.WithRegion(opts.Region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, cfgOpts...)
	if err != nil {
		return nil, fmt.Errorf("config: load AWS config: %w", err)
	}

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute // Cache secrets for 5 minutes by default
	}

	return &AWSSecretsManager{
		client: secretsmanager.NewFromConfig(cfg),
		cache:  make(map[string]*secretCacheEntry),
		ttl:    ttl,
		logger: logger,
	}, nil
}

// GetSecret retrieves a secret from AWS Secrets Manager. The secret value
// is expected to be a JSON object with string values; a non-JSON secret is
// returned under the "value" key.
func (s *AWSSecretsManager) GetSecret(ctx context.Context, ref string) (map[string]string, error) {
	s.mu.RLock()
	entry, exists := s.cache[ref]
	s.mu.RUnlock()

	if exists && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	s.logger.Printf("Fetching secret %s from AWS Secrets Manager", maskRef(ref))

	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(ref),
	})
	if err != nil {
		return nil, fmt.Errorf("get secret %s: %w", maskRef(ref), err)
	}

	if result.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", maskRef(ref))
	}

	var fields map[string]string
	if err := json.Unmarshal([]byte(*result.SecretString), &fields); err != nil {
		// Secrets holding a bare API key are not JSON objects
		fields = map[string]string{"value": *result.SecretString}
	}

	s.mu.Lock()
	s.cache[ref] = &secretCacheEntry{
		value:     fields,
		expiresAt: time.Now().Add(s.ttl),
	}
	s.mu.Unlock()

	return fields, nil
}

// Invalidate removes a secret from the cache
func (s *AWSSecretsManager) Invalidate(ref string) {
	s.mu.Lock()
	delete(s.cache, ref)
	s.mu.Unlock()
}

// maskRef masks a secret reference for logging (shows only last 8 characters)
func maskRef(ref string) string {
	if len(ref) <= 12 {
		return "***"
	}
	return "..." + ref[len(ref)-8:]
}

// LocalSecretsManager implements SecretsManager from an in-process map.
// Useful for development and tests without AWS Secrets Manager.
type LocalSecretsManager struct {
	secrets map[string]map[string]string
	mu      sync.RWMutex
}

// NewLocalSecretsManager creates a local secrets manager for development
func NewLocalSecretsManager() *LocalSecretsManager {
	return &LocalSecretsManager{
		secrets: make(map[string]map[string]string),
	}
}

// GetSecret retrieves a secret from local storage
func (s *LocalSecretsManager) GetSecret(ctx context.Context, ref string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if secret, exists := s.secrets[ref]; exists {
		return secret, nil
	}

	return nil, fmt.Errorf("secret %s not found in local secrets manager", ref)
}

// SetSecret stores a secret locally (for testing/development)
func (s *LocalSecretsManager) SetSecret(ref string, value map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[ref] = value
}

// EnvSecretsManager implements SecretsManager using environment variables.
// The ref is used as an environment variable name prefix.
type EnvSecretsManager struct {
	logger *log.Logger
}

// NewEnvSecretsManager creates a secrets manager that reads from environment variables
func NewEnvSecretsManager(logger *log.Logger) *EnvSecretsManager {
	if logger == nil {
		logger = log.New(os.Stdout, "[ENV_SECRETS] ", log.LstdFlags)
	}
	return &EnvSecretsManager{logger: logger}
}

// GetSecret retrieves credentials from environment variables. The ref is
// an env var prefix, so "SCRIBE" reads SCRIBE_API_KEY, SCRIBE_TOKEN, ...
func (s *EnvSecretsManager) GetSecret(ctx context.Context, ref string) (map[string]string, error) {
	fields := []string{"API_KEY", "API_SECRET", "TOKEN", "VALUE"}

	credentials := make(map[string]string)
	for _, field := range fields {
		if value := os.Getenv(ref + "_" + field); value != "" {
			credentials[strings.ToLower(field)] = value
		}
	}

	if len(credentials) == 0 {
		return nil, fmt.Errorf("no credentials found for prefix %s", ref)
	}

	return credentials, nil
}
