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

package gateway

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"carepilot/backend/audit"
	"carepilot/backend/config"
	"carepilot/backend/llm"
	"carepilot/backend/llm/anthropic"
	"carepilot/backend/llm/bedrock"
	"carepilot/backend/llm/groq"
	"carepilot/backend/planner"
	"carepilot/backend/prescribing"
	"carepilot/backend/scribe"
	"carepilot/backend/shared/logger"
)

// Run assembles every component from the configuration and serves the
// gateway until SIGINT or SIGTERM.
func Run(cfg *config.Config) error {
	lg := logger.New("gateway")
	ctx := context.Background()

	rdb := connectRedis(cfg.Redis.URL)

	var scribeClient *scribe.Client
	if cfg.Scribe.APIKey != "" && cfg.Scribe.Email != "" {
		var err error
		scribeClient, err = scribe.NewClient(scribe.Config{
			BaseURL:    cfg.Scribe.BaseURL,
			APIKey:     cfg.Scribe.APIKey,
			Email:      cfg.Scribe.Email,
			InternalID: cfg.Scribe.InternalID,
			Redis:      rdb,
		})
		if err != nil {
			return fmt.Errorf("scribe client: %w", err)
		}
		lg.Info("", "", "Scribe client configured", map[string]interface{}{
			"base_url": cfg.Scribe.BaseURL,
		})
	} else {
		lg.Warn("", "", "Scribe credentials not set, scribe-backed endpoints run degraded", nil)
	}

	providers, err := buildProviders(ctx, cfg)
	if err != nil {
		return err
	}
	if len(providers) == 0 {
		lg.Warn("", "", "No LLM providers configured, task endpoints will fail", nil)
	} else {
		lg.Info("", "", "LLM providers configured", map[string]interface{}{
			"primary": providers[0].Name(),
			"count":   len(providers),
		})
	}
	router := llm.NewRouter(providers...)

	registry := planner.NewRegistry()
	completer := &meteredCompleter{
		router:      router,
		maxTokens:   cfg.LLM.MaxTokens,
		temperature: cfg.LLM.Temperature,
	}
	decomposer := planner.NewDecomposer(registry, completer)
	runner := planner.NewRunner(registry, decomposer)

	sessions := &sessionSource{
		fallback: cfg.Scribe.DemoFallback,
		patient:  cfg.Patient,
	}
	if scribeClient != nil {
		sessions.live = scribeClient
	}

	var letters *prescribing.Builder
	if scribeClient != nil || cfg.Scribe.DemoFallback {
		letters, err = prescribing.NewBuilder(prescribing.BuilderConfig{
			Sessions:          sessions,
			Decomposer:        decomposer,
			Prescriber:        prescriberFromConfig(cfg.Prescribing),
			FillSampleAddress: cfg.Scribe.DemoFallback,
		})
		if err != nil {
			return fmt.Errorf("letter builder: %w", err)
		}
	}

	auditLog := audit.NewLogger(cfg.Database.URL)
	defer auditLog.Close()

	var limiter *RateLimiter
	if cfg.Server.RateLimitPerMinute > 0 {
		limiter = NewRateLimiter(rdb, cfg.Server.RateLimitPerMinute)
	}

	srv := NewServer(Options{
		Config:    cfg,
		Log:       lg,
		Runner:    runner,
		Scribe:    scribeClient,
		Letters:   letters,
		Audit:     auditLog,
		Limiter:   limiter,
		Providers: router,
		Redis:     rdb,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("", "", "CarePilot backend listening", map[string]interface{}{
			"addr": cfg.Server.Addr,
		})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case sig := <-stop:
		lg.Info("", "", "Shutting down", map[string]interface{}{"signal": sig.String()})
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	lg.Info("", "", "Shutdown complete", nil)
	return nil
}

// connectRedis opens the shared Redis client used for token caching,
// rate limiting, and health reporting. Redis is optional: any failure
// logs and returns nil so every dependent feature degrades.
func connectRedis(redisURL string) *redis.Client {
	if redisURL == "" {
		return nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("Invalid Redis URL, continuing without Redis: %v", err)
		return nil
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("Redis unreachable at %s, continuing without Redis: %v", opts.Addr, err)
		_ = client.Close()
		return nil
	}
	return client
}

// buildProviders constructs every provider whose credentials are
// configured and orders them so the preferred provider is tried first.
// Bedrock uses the ambient AWS credential chain, so it is only built
// when explicitly selected.
func buildProviders(ctx context.Context, cfg *config.Config) ([]llm.Provider, error) {
	var providers []llm.Provider

	if cfg.LLM.Groq.APIKey != "" {
		p, err := groq.NewProvider(groq.Config{
			APIKey:  cfg.LLM.Groq.APIKey,
			BaseURL: cfg.LLM.Groq.BaseURL,
			Model:   cfg.LLM.Groq.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("groq provider: %w", err)
		}
		providers = append(providers, p)
	}
	if cfg.LLM.Anthropic.APIKey != "" {
		p, err := anthropic.NewProvider(anthropic.Config{
			APIKey: cfg.LLM.Anthropic.APIKey,
			Model:  cfg.LLM.Anthropic.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("anthropic provider: %w", err)
		}
		providers = append(providers, p)
	}
	if cfg.LLM.Provider == "bedrock" {
		p, err := bedrock.NewProvider(ctx, bedrock.Config{
			Region: cfg.LLM.Bedrock.Region,
			Model:  cfg.LLM.Bedrock.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("bedrock provider: %w", err)
		}
		providers = append(providers, p)
	}

	ordered := make([]llm.Provider, 0, len(providers))
	for _, p := range providers {
		if p.Name() == cfg.LLM.Provider {
			ordered = append(ordered, p)
		}
	}
	for _, p := range providers {
		if p.Name() != cfg.LLM.Provider {
			ordered = append(ordered, p)
		}
	}
	return ordered, nil
}

func prescriberFromConfig(pc config.PrescribingConfig) prescribing.PrescriberInfo {
	if pc == (config.PrescribingConfig{}) {
		return prescribing.SamplePrescriber()
	}
	return prescribing.PrescriberInfo{
		Name:             pc.PrescriberName,
		PracticeName:     pc.PracticeName,
		Address:          pc.Address,
		Phone:            pc.Phone,
		ProviderNumber:   pc.ProviderNumber,
		PrescriberNumber: pc.PrescriberNumber,
	}
}

// meteredCompleter adapts the provider router to the planner's
// prompt-in, text-out collaborator and counts calls per provider.
type meteredCompleter struct {
	router      *llm.Router
	maxTokens   int
	temperature float64
}

func (m *meteredCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := m.router.Complete(ctx, llm.CompletionRequest{
		Prompt:      prompt,
		MaxTokens:   m.maxTokens,
		Temperature: m.temperature,
	})
	if err != nil {
		promProviderRequests.WithLabelValues("unknown", "error").Inc()
		return "", err
	}
	promProviderRequests.WithLabelValues(resp.Provider, "success").Inc()
	return resp.Content, nil
}
