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

// Package gateway serves the clinical-assistant REST API: patient and
// task endpoints for the consultation frontend, the task-run pipeline
// over /api/plan, prescribing letters, and health plus Prometheus
// metrics endpoints.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"carepilot/backend/audit"
	"carepilot/backend/config"
	"carepilot/backend/llm"
	"carepilot/backend/planner"
	"carepilot/backend/prescribing"
	"carepilot/backend/scribe"
	"carepilot/backend/shared/logger"
)

type contextKey string

const ctxKeyRequestID contextKey = "request_id"

// requestIDFrom returns the request ID the middleware attached to the
// context, or empty when none is set.
func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return id
	}
	return ""
}

// Options carries the gateway's collaborators. Config and Runner are
// required; nil optional collaborators disable the corresponding
// endpoint or feature.
type Options struct {
	Config    *config.Config
	Log       *logger.Logger
	Runner    *planner.Runner
	Scribe    *scribe.Client
	Letters   *prescribing.Builder
	Audit     *audit.Logger
	Limiter   *RateLimiter
	Providers *llm.Router
	Redis     *redis.Client
}

// Server is the gateway HTTP server.
type Server struct {
	cfg       *config.Config
	log       *logger.Logger
	runner    *planner.Runner
	scribe    *scribe.Client
	letters   *prescribing.Builder
	audit     *audit.Logger
	limiter   *RateLimiter
	providers *llm.Router
	rdb       *redis.Client
}

// NewServer assembles the gateway around the given collaborators.
func NewServer(opts Options) *Server {
	if opts.Log == nil {
		opts.Log = logger.New("gateway")
	}
	if opts.Audit == nil {
		opts.Audit = audit.NewLogger("")
	}

	return &Server{
		cfg:       opts.Config,
		log:       opts.Log,
		runner:    opts.Runner,
		scribe:    opts.Scribe,
		letters:   opts.Letters,
		audit:     opts.Audit,
		limiter:   opts.Limiter,
		providers: opts.Providers,
		rdb:       opts.Redis,
	}
}

// Routes builds the gateway handler: router, request-ID and logging
// middleware, rate limiting on the API surface, and CORS around the
// whole thing.
func (s *Server) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestIDMiddleware, s.loggingMiddleware)

	// Health check
	r.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Prometheus native format
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.rateLimitMiddleware)
	api.HandleFunc("/patient", s.handlePatient).Methods("GET")
	api.HandleFunc("/tasks", s.handleTasks).Methods("GET")
	api.HandleFunc("/tasks/generate", s.handleGenerateTask).Methods("POST")
	api.HandleFunc("/tasks/execute-batch", s.handleExecuteBatch).Methods("POST")
	api.HandleFunc("/plan", s.handlePlan).Methods("POST")
	api.HandleFunc("/prescriptions/letter", s.handlePrescriptionLetter).Methods("POST")

	// CORS middleware
	allowedOrigins := s.cfg.Server.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	return c.Handler(r)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), ctxKeyRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		endpoint := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				endpoint = tpl
			}
		}

		promRequestsTotal.WithLabelValues(endpoint, statusLabel(rec.status)).Inc()
		promRequestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())

		s.log.InfoWithDuration("", requestIDFrom(r.Context()),
			fmt.Sprintf("%s %s", r.Method, r.URL.Path),
			float64(duration.Milliseconds()),
			map[string]interface{}{"status": rec.status})
	})
}

func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil {
			if err := s.limiter.Allow(r.Context(), clientIP(r)); err != nil {
				sendErrorResponse(w, err.Error(), http.StatusTooManyRequests)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func statusLabel(code int) string {
	switch {
	case code == http.StatusTooManyRequests:
		return "blocked"
	case code >= 400:
		return "error"
	default:
		return "success"
	}
}

// errorResponse is the gateway's JSON error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

func sendErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: message}); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}

func sendJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
