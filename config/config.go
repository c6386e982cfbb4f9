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

// Package config loads gateway configuration from a YAML file with
// environment variable expansion, or from the environment directly.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the gateway process.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Scribe      ScribeConfig      `yaml:"scribe"`
	LLM         LLMConfig         `yaml:"llm"`
	Redis       RedisConfig       `yaml:"redis"`
	Database    DatabaseConfig    `yaml:"database"`
	Prescribing PrescribingConfig `yaml:"prescribing"`
	Patient     PatientConfig     `yaml:"patient"`
	Secrets     SecretsConfig     `yaml:"secrets"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// RateLimitPerMinute of 0 disables rate limiting.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
}

// ScribeConfig holds the scribe vendor API account.
type ScribeConfig struct {
	BaseURL         string `yaml:"base_url"`
	APIKey          string `yaml:"api_key"`
	APIKeySecretRef string `yaml:"api_key_secret_ref"`
	Email           string `yaml:"email"`
	InternalID      string `yaml:"internal_id"`
	// DefaultSessionID is the consultation used when a request names none.
	DefaultSessionID string `yaml:"default_session_id"`
	// DemoFallback serves canned fixtures when the scribe API is not
	// configured or unreachable.
	DemoFallback bool `yaml:"demo_fallback"`
}

// LLMConfig selects the completion provider and its generation settings.
type LLMConfig struct {
	Provider    string          `yaml:"provider"` // "groq", "anthropic", "bedrock"
	MaxTokens   int             `yaml:"max_tokens"`
	Temperature float64         `yaml:"temperature"`
	Groq        GroqConfig      `yaml:"groq"`
	Anthropic   AnthropicConfig `yaml:"anthropic"`
	Bedrock     BedrockConfig   `yaml:"bedrock"`
}

type GroqConfig struct {
	APIKey          string `yaml:"api_key"`
	APIKeySecretRef string `yaml:"api_key_secret_ref"`
	BaseURL         string `yaml:"base_url"`
	Model           string `yaml:"model"`
}

type AnthropicConfig struct {
	APIKey          string `yaml:"api_key"`
	APIKeySecretRef string `yaml:"api_key_secret_ref"`
	Model           string `yaml:"model"`
}

type BedrockConfig struct {
	Region string `yaml:"region"`
	Model  string `yaml:"model"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// PrescribingConfig is the letterhead printed on prescribing summaries.
type PrescribingConfig struct {
	PrescriberName   string `yaml:"prescriber_name"`
	PracticeName     string `yaml:"practice_name"`
	Address          string `yaml:"address"`
	Phone            string `yaml:"phone"`
	ProviderNumber   string `yaml:"provider_number"`
	PrescriberNumber string `yaml:"prescriber_number"`
}

// PatientConfig is the demo patient served by GET /api/patient.
type PatientConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	DateOfBirth string `yaml:"date_of_birth"`
}

// SecretsConfig selects the secrets backing store for *_secret_ref fields.
type SecretsConfig struct {
	Provider string `yaml:"provider"` // "aws", "env"; empty disables resolution
	Region   string `yaml:"region"`
}

// Load reads configuration from the YAML file at path, expanding
// ${VAR} and ${VAR:-default} references first. An empty path loads
// configuration from the environment instead.
func Load(path string) (*Config, error) {
	if path == "" {
		return FromEnv(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file %s: %w", path, err)
	}

	expanded := expandEnvVars(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("config: parse file %s: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// FromEnv builds configuration from environment variables alone.
func FromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Addr:               ":" + getEnv("PORT", "8081"),
			AllowedOrigins:     splitList(os.Getenv("ALLOWED_ORIGINS")),
			RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
		},
		Scribe: ScribeConfig{
			BaseURL:          os.Getenv("SCRIBE_BASE_URL"),
			APIKey:           os.Getenv("SCRIBE_API_KEY"),
			APIKeySecretRef:  os.Getenv("SCRIBE_API_KEY_SECRET_REF"),
			Email:            os.Getenv("SCRIBE_EMAIL"),
			InternalID:       getEnv("SCRIBE_INTERNAL_ID", "12345"),
			DefaultSessionID: os.Getenv("SCRIBE_DEFAULT_SESSION_ID"),
			DemoFallback:     getEnvBool("SCRIBE_DEMO_FALLBACK", true),
		},
		LLM: LLMConfig{
			Provider:    getEnv("LLM_PROVIDER", "groq"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 1024),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.2),
			Groq: GroqConfig{
				APIKey:          os.Getenv("GROQ_API_KEY"),
				APIKeySecretRef: os.Getenv("GROQ_API_KEY_SECRET_REF"),
				BaseURL:         os.Getenv("GROQ_BASE_URL"),
				Model:           os.Getenv("GROQ_MODEL"),
			},
			Anthropic: AnthropicConfig{
				APIKey:          os.Getenv("ANTHROPIC_API_KEY"),
				APIKeySecretRef: os.Getenv("ANTHROPIC_API_KEY_SECRET_REF"),
				Model:           os.Getenv("ANTHROPIC_MODEL"),
			},
			Bedrock: BedrockConfig{
				Region: os.Getenv("AWS_REGION"),
				Model:  os.Getenv("BEDROCK_MODEL"),
			},
		},
		Redis:    RedisConfig{URL: os.Getenv("REDIS_URL")},
		Database: DatabaseConfig{URL: os.Getenv("DATABASE_URL")},
		Prescribing: PrescribingConfig{
			PrescriberName:   os.Getenv("PRESCRIBER_NAME"),
			PracticeName:     os.Getenv("PRACTICE_NAME"),
			Address:          os.Getenv("PRACTICE_ADDRESS"),
			Phone:            os.Getenv("PRACTICE_PHONE"),
			ProviderNumber:   os.Getenv("PROVIDER_NUMBER"),
			PrescriberNumber: os.Getenv("PRESCRIBER_NUMBER"),
		},
		Patient: PatientConfig{
			ID:          os.Getenv("PATIENT_ID"),
			Name:        os.Getenv("PATIENT_NAME"),
			DateOfBirth: os.Getenv("PATIENT_DOB"),
		},
		Secrets: SecretsConfig{
			Provider: os.Getenv("SECRETS_PROVIDER"),
			Region:   os.Getenv("SECRETS_REGION"),
		},
	}

	cfg.applyDefaults()
	return cfg
}

// applyDefaults fills fields whose zero value is never a usable setting.
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8081"
	}
	if c.Scribe.InternalID == "" {
		c.Scribe.InternalID = "12345"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "groq"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 1024
	}
	if c.Patient.ID == "" {
		c.Patient.ID = "patient-001"
	}
	if c.Patient.Name == "" {
		c.Patient.Name = "John Doe"
	}
	if c.Patient.DateOfBirth == "" {
		c.Patient.DateOfBirth = "1980-03-15"
	}
}

// Validate checks the minimum viable settings for the gateway to start.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config: server addr is required")
	}
	if c.Server.RateLimitPerMinute < 0 {
		return fmt.Errorf("config: rate limit per minute cannot be negative")
	}

	switch c.LLM.Provider {
	case "groq", "anthropic", "bedrock":
	default:
		return fmt.Errorf("config: unknown LLM provider %q", c.LLM.Provider)
	}

	if c.Scribe.BaseURL != "" {
		if c.Scribe.APIKey == "" && c.Scribe.APIKeySecretRef == "" {
			return fmt.Errorf("config: scribe api key or secret ref is required when a base URL is set")
		}
		if c.Scribe.Email == "" {
			return fmt.Errorf("config: scribe account email is required when a base URL is set")
		}
	}

	switch c.Secrets.Provider {
	case "", "aws", "env":
	default:
		return fmt.Errorf("config: unknown secrets provider %q", c.Secrets.Provider)
	}

	return nil
}

// envVarRegex matches ${VAR_NAME} or $VAR_NAME patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars expands environment variable references in the string.
// Supports both ${VAR_NAME} and $VAR_NAME syntax, plus ${VAR_NAME:-default}
// fallbacks. Undefined variables without a default expand to the empty
// string.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		// Handle default values: ${VAR_NAME:-default}
		defaultVal := ""
		if idx := strings.Index(varName, ":-"); idx != -1 {
			defaultVal = varName[idx+2:]
			varName = varName[:idx]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultVal
	})
}

// GenerateExampleConfig returns a commented example configuration file.
func GenerateExampleConfig() string {
	return `# CarePilot gateway configuration
# Environment variables can be referenced using ${VAR_NAME} or
# ${VAR_NAME:-default} syntax.

server:
  addr: ":${PORT:-8081}"
  allowed_origins: []          # empty allows any origin (prototype posture)
  rate_limit_per_minute: ${RATE_LIMIT_PER_MINUTE:-60}

scribe:
  base_url: ${SCRIBE_BASE_URL}
  api_key: ${SCRIBE_API_KEY}
  email: ${SCRIBE_EMAIL}
  internal_id: "${SCRIBE_INTERNAL_ID:-12345}"
  default_session_id: ${SCRIBE_DEFAULT_SESSION_ID}
  demo_fallback: ${SCRIBE_DEMO_FALLBACK:-true}

llm:
  provider: ${LLM_PROVIDER:-groq}
  max_tokens: ${LLM_MAX_TOKENS:-1024}
  temperature: ${LLM_TEMPERATURE:-0.2}
  groq:
    api_key: ${GROQ_API_KEY}
    model: ${GROQ_MODEL:-llama-3.1-8b-instant}
  anthropic:
    api_key: ${ANTHROPIC_API_KEY}
    model: ${ANTHROPIC_MODEL:-claude-3-5-sonnet-20241022}
  bedrock:
    region: ${AWS_REGION:-us-east-1}
    model: ${BEDROCK_MODEL:-anthropic.claude-3-5-sonnet-20240620-v1:0}

redis:
  url: ${REDIS_URL}

database:
  url: ${DATABASE_URL}

prescribing:
  prescriber_name: "${PRESCRIBER_NAME:-Dr Example Clinician}"
  practice_name: "${PRACTICE_NAME:-Example Medical Centre}"
  address: "${PRACTICE_ADDRESS:-1 Lygon St, Carlton VIC 3053}"
  phone: "${PRACTICE_PHONE:-(03) 9000 0000}"
  provider_number: "${PROVIDER_NUMBER:-123456A}"
  prescriber_number: "${PRESCRIBER_NUMBER:-123456}"

patient:
  id: ${PATIENT_ID:-patient-001}
  name: "${PATIENT_NAME:-John Doe}"
  date_of_birth: "${PATIENT_DOB:-1980-03-15}"

secrets:
  provider: ${SECRETS_PROVIDER}  # "aws" or "env"; empty reads literal keys only
  region: ${SECRETS_REGION}
`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
