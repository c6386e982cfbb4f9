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

import "context"

// ContentGenerator is the collaborator valid instructions are dispatched
// to. Command is the rendered instruction; content is supplementary
// material for the generation and is empty for task runs.
type ContentGenerator interface {
	Generate(ctx context.Context, command, content string) (string, error)
}

// ExecutedAction is one valid action of a task run. Output holds the
// generated content when the run dispatched to a ContentGenerator and is
// empty otherwise.
type ExecutedAction struct {
	Kind        string
	Instruction string
	Output      string
}

// InvalidAction records one proposed action that failed validation.
type InvalidAction struct {
	Kind   string
	Issues []string
}

// TaskRunResult holds the outcomes of one task run. Valid and Invalid
// each preserve the order the model proposed the actions in. Duplicate
// kinds are kept as separate entries.
type TaskRunResult struct {
	Valid   []ExecutedAction
	Invalid []InvalidAction
}

// Runner drives the decompose-validate-dispatch pipeline for a task.
type Runner struct {
	registry   *Registry
	decomposer *Decomposer
}

// NewRunner creates a Runner over the given registry and decomposer.
func NewRunner(registry *Registry, decomposer *Decomposer) *Runner {
	return &Runner{registry: registry, decomposer: decomposer}
}

// Registry returns the registry the runner validates against.
func (r *Runner) Registry() *Registry { return r.registry }

// Run decomposes task and validates every proposed action, partitioning
// the outcomes into valid instructions and invalid records. No external
// dispatch happens. A decomposition failure returns a *DecompositionError
// and no result.
func (r *Runner) Run(ctx context.Context, task string) (*TaskRunResult, error) {
	proposals, err := r.decomposer.Decompose(ctx, task)
	if err != nil {
		return nil, err
	}

	result := &TaskRunResult{}
	for _, p := range proposals {
		outcome := r.registry.Render(p)
		if outcome.Valid() {
			result.Valid = append(result.Valid, ExecutedAction{
				Kind:        outcome.Kind,
				Instruction: outcome.Instruction,
			})
		} else {
			result.Invalid = append(result.Invalid, InvalidAction{
				Kind:   outcome.Kind,
				Issues: outcome.Issues,
			})
		}
	}
	return result, nil
}

// RunWithGeneration runs the task and then dispatches each valid
// instruction to gen sequentially, in order, with empty supplementary
// content. Generated output is stored on the corresponding action.
//
// A generation failure aborts the remaining dispatches: the partial
// result is returned together with a *DispatchError naming the action
// kind, and outputs produced before the failure are retained. There is
// no retry and no deduplication.
func (r *Runner) RunWithGeneration(ctx context.Context, task string, gen ContentGenerator) (*TaskRunResult, error) {
	result, err := r.Run(ctx, task)
	if err != nil {
		return nil, err
	}

	for i := range result.Valid {
		output, err := gen.Generate(ctx, result.Valid[i].Instruction, "")
		if err != nil {
			return result, &DispatchError{Kind: result.Valid[i].Kind, Err: err}
		}
		result.Valid[i].Output = output
	}
	return result, nil
}
