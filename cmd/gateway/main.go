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

// Package main is the entry point for the CarePilot backend gateway.
//
// The gateway serves the clinical-assistant REST API:
// - Decomposes follow-up tasks into validated clinical actions
// - Routes completion calls across LLM providers (Groq, Anthropic, Bedrock)
// - Generates task content through the scribe ask-ai endpoint
// - Builds prescribing letter summaries for consultation sessions
//
// Usage:
//
//	./gateway [-config path] [-print-example-config]
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8081)
//	CONFIG_PATH - YAML configuration file (optional)
//	SCRIBE_API_KEY - scribe vendor API key (optional)
//	SCRIBE_EMAIL - scribe account email (optional)
//	GROQ_API_KEY - Groq API key (optional)
//	ANTHROPIC_API_KEY - Anthropic API key (optional)
//	DATABASE_URL - PostgreSQL audit store (optional)
//	REDIS_URL - Redis cache and rate-limit backend (optional)
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"carepilot/backend/config"
	"carepilot/backend/gateway"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("CONFIG_PATH"), "path to YAML configuration file")
	printExample := flag.Bool("print-example-config", false, "print an example configuration file and exit")
	flag.Parse()

	if *printExample {
		fmt.Print(config.GenerateExampleConfig())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()
	secrets, err := config.NewSecretsManager(ctx, cfg.Secrets)
	if err != nil {
		log.Fatalf("Failed to initialise secrets manager: %v", err)
	}
	if err := cfg.ResolveSecrets(ctx, secrets); err != nil {
		log.Fatalf("Failed to resolve secret references: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := gateway.Run(cfg); err != nil {
		log.Fatalf("Gateway terminated: %v", err)
	}
}
