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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"carepilot/backend/audit"
	"carepilot/backend/planner"
	"carepilot/backend/prescribing"
)

// followUpTask is the high-level task the task list is derived from.
const followUpTask = "Generate follow-up actions for this consultation"

// Request and response structures. Field names follow the consultation
// frontend's contract, hence the camelCase tags.

type patientResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DateOfBirth string `json:"dateOfBirth"`
	SessionID   string `json:"sessionId"`
}

type taskResponse struct {
	Title  string `json:"title"`
	Type   string `json:"type"`
	Prompt string `json:"prompt"`
}

type taskDetails struct {
	Title  string `json:"title"`
	Prompt string `json:"prompt"`
}

type generateRequest struct {
	TaskType    string      `json:"taskType"`
	TaskDetails taskDetails `json:"taskDetails"`
}

type generateResponse struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type executeItem struct {
	TaskType string          `json:"taskType"`
	Content  json.RawMessage `json:"content"`
}

type executeBatchRequest struct {
	Tasks      []executeItem `json:"tasks"`
	ExecutedAt string        `json:"executedAt"`
}

type executeResult struct {
	TaskType string `json:"taskType"`
	Status   string `json:"status"`
}

type executeBatchResponse struct {
	Status        string          `json:"status"`
	ExecutedCount int             `json:"executedCount"`
	Results       []executeResult `json:"results"`
}

type planRequest struct {
	Task string `json:"task"`
}

type planValidAction struct {
	Type        string `json:"type"`
	Instruction string `json:"instruction"`
}

type planInvalidAction struct {
	Type   string   `json:"type"`
	Issues []string `json:"issues"`
}

type planResponse struct {
	Valid   []planValidAction   `json:"valid"`
	Invalid []planInvalidAction `json:"invalid"`
}

type letterRequest struct {
	SessionID string `json:"sessionId"`
}

type letterResponse struct {
	SessionID       string `json:"sessionId"`
	Letter          string `json:"letter"`
	MedicationCount int    `json:"medicationCount"`
}

func (s *Server) handlePatient(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, patientResponse{
		ID:          s.cfg.Patient.ID,
		Name:        s.cfg.Patient.Name,
		DateOfBirth: s.cfg.Patient.DateOfBirth,
		SessionID:   s.cfg.Scribe.DefaultSessionID,
	})
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		sendErrorResponse(w, "planner not configured", http.StatusServiceUnavailable)
		return
	}

	result, err := s.runTask(r.Context(), "/api/tasks", followUpTask)
	if err != nil {
		s.log.ErrorWithCode("", requestIDFrom(r.Context()), "Task decomposition failed",
			http.StatusBadGateway, err, nil)
		sendErrorResponse(w, "task decomposition failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	tasks := make([]taskResponse, 0, len(result.Valid))
	for _, action := range result.Valid {
		tasks = append(tasks, taskResponse{
			Title:  humanTitle(action.Kind),
			Type:   action.Kind,
			Prompt: action.Instruction,
		})
	}
	sendJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleGenerateTask(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.TaskType == "" {
		sendErrorResponse(w, "taskType is required", http.StatusBadRequest)
		return
	}

	sessionID := s.cfg.Scribe.DefaultSessionID
	start := time.Now()
	raw, err := s.taskContent(r.Context(), sessionID, req)
	promGenerationDuration.Observe(time.Since(start).Seconds())

	entry := &audit.Entry{
		RequestID:  requestIDFrom(r.Context()),
		Endpoint:   "/api/tasks/generate",
		Task:       req.TaskType,
		SessionID:  sessionID,
		DurationMS: time.Since(start).Milliseconds(),
		Status:     audit.StatusOK,
	}
	if err != nil {
		entry.Status = audit.StatusError
		entry.ErrorMessage = err.Error()
	}
	s.audit.Record(entry)

	if err != nil {
		s.log.ErrorWithCode(sessionID, requestIDFrom(r.Context()), "Content generation failed",
			http.StatusBadGateway, err, map[string]interface{}{"task_type": req.TaskType})
		sendErrorResponse(w, "content generation failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	// Generated output is sometimes a JSON envelope around the content.
	content := raw
	var probe struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &probe); err == nil && probe.Content != "" {
		content = probe.Content
	}

	sendJSON(w, http.StatusOK, generateResponse{
		Type:    req.TaskType,
		Content: quickClean(content),
	})
}

// taskContent generates preview content through the scribe ask-ai
// endpoint, serving the demo fixture when the scribe API is not
// available and the demo fallback is enabled.
func (s *Server) taskContent(ctx context.Context, sessionID string, req generateRequest) (string, error) {
	if s.scribe != nil {
		raw, err := s.scribe.AskAI(ctx, sessionID, req.TaskDetails.Prompt, "")
		if err == nil {
			return raw, nil
		}
		if !s.cfg.Scribe.DemoFallback {
			return "", err
		}
		s.log.Warn(sessionID, requestIDFrom(ctx), "Scribe unreachable, serving demo content",
			map[string]interface{}{"error": err.Error()})
	} else if !s.cfg.Scribe.DemoFallback {
		return "", fmt.Errorf("scribe client not configured")
	}
	return demoTaskContent(req.TaskType, req.TaskDetails.Title), nil
}

func (s *Server) handleExecuteBatch(w http.ResponseWriter, r *http.Request) {
	var req executeBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	results := make([]executeResult, 0, len(req.Tasks))
	for _, task := range req.Tasks {
		results = append(results, executeResult{
			TaskType: task.TaskType,
			Status:   fmt.Sprintf("Executed %s", task.TaskType),
		})
	}

	sendJSON(w, http.StatusOK, executeBatchResponse{
		Status:        "ok",
		ExecutedCount: len(req.Tasks),
		Results:       results,
	})
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		sendErrorResponse(w, "planner not configured", http.StatusServiceUnavailable)
		return
	}

	var req planRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Task) == "" {
		sendErrorResponse(w, "task is required", http.StatusBadRequest)
		return
	}

	result, err := s.runTask(r.Context(), "/api/plan", req.Task)
	if err != nil {
		s.log.ErrorWithCode("", requestIDFrom(r.Context()), "Task run failed",
			http.StatusBadGateway, err, nil)
		sendErrorResponse(w, "task run failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	resp := planResponse{
		Valid:   make([]planValidAction, 0, len(result.Valid)),
		Invalid: make([]planInvalidAction, 0, len(result.Invalid)),
	}
	for _, action := range result.Valid {
		resp.Valid = append(resp.Valid, planValidAction{
			Type:        action.Kind,
			Instruction: action.Instruction,
		})
	}
	for _, action := range result.Invalid {
		resp.Invalid = append(resp.Invalid, planInvalidAction{
			Type:   action.Kind,
			Issues: action.Issues,
		})
	}
	sendJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePrescriptionLetter(w http.ResponseWriter, r *http.Request) {
	if s.letters == nil {
		sendErrorResponse(w, "prescribing not configured", http.StatusServiceUnavailable)
		return
	}

	var req letterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		sendErrorResponse(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = s.cfg.Scribe.DefaultSessionID
	}
	if sessionID == "" {
		sendErrorResponse(w, "sessionId is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	letter, err := s.letters.BuildForSession(r.Context(), sessionID)

	provider, model := s.activeProvider()
	entry := &audit.Entry{
		RequestID:  requestIDFrom(r.Context()),
		Endpoint:   "/api/prescriptions/letter",
		Task:       prescribing.PrescriptionTask,
		SessionID:  sessionID,
		Provider:   provider,
		Model:      model,
		DurationMS: time.Since(start).Milliseconds(),
		Status:     audit.StatusOK,
	}
	if err != nil {
		entry.Status = audit.StatusError
		entry.ErrorMessage = err.Error()
	} else {
		entry.ValidCount = len(letter.Medications)
	}
	s.audit.Record(entry)

	if err != nil {
		s.log.ErrorWithCode(sessionID, requestIDFrom(r.Context()), "Letter build failed",
			http.StatusBadGateway, err, nil)
		sendErrorResponse(w, "letter build failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	sendJSON(w, http.StatusOK, letterResponse{
		SessionID:       letter.SessionID,
		Letter:          letter.Text,
		MedicationCount: len(letter.Medications),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]bool{
		"scribe":    s.scribe != nil,
		"planner":   s.runner != nil && s.anyProviderHealthy(),
		"audit_log": s.audit.IsHealthy(),
		"redis":     s.redisHealthy(r.Context()),
	}

	health := map[string]interface{}{
		"status":     "healthy",
		"service":    "carepilot-backend",
		"version":    "1.0.0",
		"timestamp":  time.Now().UTC(),
		"components": components,
		"providers":  s.providerHealth(),
		"features": map[string]bool{
			"demo_fallback":     s.cfg.Scribe.DemoFallback,
			"rate_limiting":     s.limiter != nil,
			"audit_persistence": s.audit.Enabled(),
		},
	}
	sendJSON(w, http.StatusOK, health)
}

// runTask runs the pipeline for one task and records the outcome in the
// audit trail and action metrics.
func (s *Server) runTask(ctx context.Context, endpoint, task string) (*planner.TaskRunResult, error) {
	start := time.Now()
	result, err := s.runner.Run(ctx, task)

	provider, model := s.activeProvider()
	entry := &audit.Entry{
		RequestID:  requestIDFrom(ctx),
		Endpoint:   endpoint,
		Task:       task,
		SessionID:  s.cfg.Scribe.DefaultSessionID,
		Provider:   provider,
		Model:      model,
		DurationMS: time.Since(start).Milliseconds(),
		Status:     audit.StatusOK,
	}
	if err != nil {
		entry.Status = audit.StatusError
		entry.ErrorMessage = err.Error()
	} else {
		entry.ValidCount = len(result.Valid)
		entry.InvalidCount = len(result.Invalid)
		recordActionOutcomes(result)
	}
	s.audit.Record(entry)

	return result, err
}

func recordActionOutcomes(result *planner.TaskRunResult) {
	for _, action := range result.Valid {
		promActionsTotal.WithLabelValues(action.Kind, "valid").Inc()
	}
	for _, action := range result.Invalid {
		promActionsTotal.WithLabelValues(action.Kind, "invalid").Inc()
	}
}

// activeProvider names the provider and model the router would select
// for the next call.
func (s *Server) activeProvider() (string, string) {
	if s.providers == nil {
		return "", ""
	}
	for _, p := range s.providers.Providers() {
		if p.IsHealthy() {
			return p.Name(), p.Model()
		}
	}
	return "", ""
}

func (s *Server) anyProviderHealthy() bool {
	if s.providers == nil {
		return false
	}
	for _, healthy := range s.providers.HealthSnapshot() {
		if healthy {
			return true
		}
	}
	return false
}

func (s *Server) providerHealth() map[string]bool {
	if s.providers == nil {
		return map[string]bool{}
	}
	return s.providers.HealthSnapshot()
}

func (s *Server) redisHealthy(ctx context.Context) bool {
	if s.rdb == nil {
		return false
	}
	pingCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return s.rdb.Ping(pingCtx).Err() == nil
}

// humanTitle turns "write_referral_letter" into "Write Referral Letter".
func humanTitle(kind string) string {
	words := strings.Split(kind, "_")
	for i, word := range words {
		if word == "" {
			continue
		}
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}
