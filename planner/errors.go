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
	"errors"
	"fmt"
)

var (
	// ErrUnknownKind is returned when an action kind is not registered.
	ErrUnknownKind = errors.New("unknown action kind")

	// ErrNoJSONArray is returned when completion output contains no JSON
	// array of objects.
	ErrNoJSONArray = errors.New("no JSON array found in completion output")

	// ErrMalformedJSON is returned when the extracted array does not parse.
	ErrMalformedJSON = errors.New("malformed JSON array in completion output")
)

// IssueInvalidActionType is the validation issue recorded for a proposed
// action whose kind is not registered.
const IssueInvalidActionType = "invalid_action_type"

// DecompositionError wraps any failure to turn a task into proposed
// actions: the completion call itself, array extraction, or parsing.
type DecompositionError struct {
	Err error
}

func (e *DecompositionError) Error() string {
	return fmt.Sprintf("decompose task: %v", e.Err)
}

func (e *DecompositionError) Unwrap() error { return e.Err }

// DispatchError reports a content-generation failure for one valid action.
// Dispatch of the remaining actions is abandoned when it occurs.
type DispatchError struct {
	Kind string
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s: %v", e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }
