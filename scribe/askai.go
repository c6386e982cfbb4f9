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

package scribe

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// askAIRequest is the ask-ai request payload.
type askAIRequest struct {
	AICommandText string `json:"ai_command_text"`
	Content       string `json:"content"`
	ContentType   string `json:"content_type"`
}

// AskAI runs an AI command against a session and returns the collected
// output. The service streams Server-Sent Events; each "data: {...}"
// line carries a JSON chunk whose "data" field is a fragment of the
// answer. Malformed chunks are skipped.
func (c *Client) AskAI(ctx context.Context, sessionID, command, content string) (string, error) {
	payload := askAIRequest{
		AICommandText: command,
		Content:       content,
		ContentType:   DefaultContentType,
	}

	resp, err := c.post(ctx, "/sessions/"+sessionID+"/ask-ai", payload, c.streamClient)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", requestFailed("ask-ai", resp)
	}

	var output strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		line = strings.TrimPrefix(line, "data: ")

		var chunk struct {
			Data *string `json:"data"`
		}
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			continue
		}
		if chunk.Data != nil {
			output.WriteString(*chunk.Data)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("scribe ask-ai stream: %w", err)
	}

	return output.String(), nil
}

// SessionGenerator binds a session ID to the ask-ai endpoint so action
// instructions can be executed against that session's context. It
// satisfies the planner's ContentGenerator contract.
type SessionGenerator struct {
	client    *Client
	sessionID string
}

// SessionGenerator returns a generator scoped to the given session.
func (c *Client) SessionGenerator(sessionID string) *SessionGenerator {
	return &SessionGenerator{client: c, sessionID: sessionID}
}

// Generate executes one AI command against the bound session.
func (g *SessionGenerator) Generate(ctx context.Context, command, content string) (string, error) {
	return g.client.AskAI(ctx, g.sessionID, command, content)
}
