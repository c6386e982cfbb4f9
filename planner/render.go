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
	"fmt"
	"strings"
)

// Outcome is the result of validating and rendering one proposed action.
// Kind carries the action tag as proposed, even when it is unregistered.
type Outcome struct {
	Kind        string
	Instruction string
	Issues      []string
}

// Valid reports whether the action rendered without issues.
func (o Outcome) Valid() bool { return len(o.Issues) == 0 }

// Render validates a proposed action against the registry and, when
// valid, fills the kind's instruction template.
//
// An unregistered kind yields a single "invalid_action_type" issue.
// Otherwise every declared argument is bound in declaration order: a
// missing or null required argument is recorded as an issue and bound to
// the empty string, a missing optional argument is bound to the empty
// string, a present optional argument is bound as a parenthetical, and a
// present required argument is bound verbatim. An empty string counts as
// present. Arguments the model invented are ignored. Any issue makes the
// outcome invalid with no instruction; the issue list preserves argument
// order and is always complete.
func (r *Registry) Render(a ProposedAction) Outcome {
	spec, ok := r.specs[ActionKind(a.Action)]
	if !ok {
		return Outcome{Kind: a.Action, Issues: []string{IssueInvalidActionType}}
	}

	filled := make(map[string]string, len(spec.Args))
	var missing []string
	for _, arg := range spec.Args {
		val, present := a.Args[arg.Name]
		if val == nil {
			present = false
		}
		switch {
		case !present:
			if arg.Required {
				missing = append(missing, arg.Name)
			}
			filled[arg.Name] = ""
		case arg.Required:
			filled[arg.Name] = argString(val)
		default:
			filled[arg.Name] = " (" + argString(val) + ")"
		}
	}

	if len(missing) > 0 {
		return Outcome{Kind: a.Action, Issues: missing}
	}

	pairs := make([]string, 0, 2*len(filled))
	for name, value := range filled {
		pairs = append(pairs, "{"+name+"}", value)
	}
	return Outcome{
		Kind:        a.Action,
		Instruction: strings.NewReplacer(pairs...).Replace(spec.Template),
	}
}

// argString renders an argument value for template substitution. Model
// output is JSON, so non-string scalars arrive as float64 or bool.
func argString(val interface{}) string {
	if s, ok := val.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", val)
}
