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

package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Completer is the completion collaborator the decomposer sends its
// prompt to. Implementations must not retry on failure; the decomposer
// makes exactly one call per task.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// ProposedAction is one candidate action emitted by the model. It is
// untrusted input: the kind may be unregistered and argument values may
// be null or non-string scalars.
type ProposedAction struct {
	Action string                 `json:"action"`
	Args   map[string]interface{} `json:"args"`
}

// maxProposedActions is the cap stated in the decomposition prompt. The
// model is asked to honor it; the parsed array is not truncated here, so
// consumers that need a hard limit impose their own.
const maxProposedActions = 5

const decomposePromptFormat = `You are a task planner. Convert the following clinical task
into an array of executable actions.

Rules:
1. Only use these action types: %s
2. For each action if chosen, use **exactly the arguments listed below**.
%s
IMPORTANT:
- Output **exactly one JSON array** of objects.
- Each object must have "action" and "args".
- Only %d objects of "action" and "args" can be returned.
- Do NOT include explanations, notes, or anything aside from these objects.
- Do not invent new argument names.
- Be strict with chosen action types, any action not explicitly mentioned should be carefully considered.
- Example:
[
  {
    "action": "action_name",
    "args": { "arg1": "value", "arg2": "value" }
  }
]

Task: "%s"`

// Decomposer turns a free-text task into proposed actions with a single
// completion call.
type Decomposer struct {
	registry  *Registry
	completer Completer
}

// NewDecomposer creates a Decomposer over the given registry and
// completion collaborator.
func NewDecomposer(registry *Registry, completer Completer) *Decomposer {
	return &Decomposer{registry: registry, completer: completer}
}

// Prompt builds the decomposition prompt for task. The action-type list
// and per-kind argument lines are derived from the registry, so a kind
// registered later is advertised without touching the prompt text.
func (d *Decomposer) Prompt(task string) string {
	kinds := d.registry.Kinds()
	names := make([]string, len(kinds))
	var argLines strings.Builder
	for i, kind := range kinds {
		names[i] = string(kind)
		spec, _ := d.registry.Spec(kind)
		parts := make([]string, len(spec.Args))
		for j, arg := range spec.Args {
			requirement := "optional"
			if arg.Required {
				requirement = "required"
			}
			parts[j] = fmt.Sprintf("%s (%s)", arg.Name, requirement)
		}
		argLines.WriteString(fmt.Sprintf("   - %s: %s\n", kind, strings.Join(parts, ", ")))
	}
	return fmt.Sprintf(decomposePromptFormat, strings.Join(names, ", "), argLines.String(), maxProposedActions, task)
}

// Decompose makes one completion call for task and parses the response
// into proposed actions. Any failure is returned as a *DecompositionError
// wrapping the cause, so callers can match both the wrapper and the
// ErrNoJSONArray / ErrMalformedJSON sentinels.
func (d *Decomposer) Decompose(ctx context.Context, task string) ([]ProposedAction, error) {
	raw, err := d.completer.Complete(ctx, d.Prompt(task))
	if err != nil {
		return nil, &DecompositionError{Err: fmt.Errorf("completion call: %w", err)}
	}

	jsonText, err := extractJSONArray(raw)
	if err != nil {
		return nil, &DecompositionError{Err: err}
	}

	var actions []ProposedAction
	if err := json.Unmarshal([]byte(jsonText), &actions); err != nil {
		return nil, &DecompositionError{Err: fmt.Errorf("%w: %v (raw: %s)", ErrMalformedJSON, err, snippet(jsonText))}
	}
	return actions, nil
}

// extractJSONArray returns the first JSON array of objects in raw. It
// scans for a '[' whose first non-whitespace successor is '{' and walks
// to the matching ']', tracking string literals so brackets inside quoted
// values do not affect nesting depth.
func extractJSONArray(raw string) (string, error) {
	for i := 0; i < len(raw); i++ {
		if raw[i] != '[' {
			continue
		}
		j := i + 1
		for j < len(raw) && isJSONSpace(raw[j]) {
			j++
		}
		if j >= len(raw) || raw[j] != '{' {
			continue
		}
		if end := matchingBracket(raw, i); end >= 0 {
			return raw[i : end+1], nil
		}
	}
	return "", fmt.Errorf("%w (raw: %s)", ErrNoJSONArray, snippet(raw))
}

// matchingBracket returns the index of the ']' closing the '[' at start,
// or -1 when the array is never closed.
func matchingBracket(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// snippet trims raw model output for error messages.
func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 240 {
		return s[:240] + "..."
	}
	return s
}
