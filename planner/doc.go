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

/*
Package planner turns free-text clinical tasks into validated, executable
action instructions.

The pipeline has three stages:

  - Decomposer sends a single completion request that asks the model to
    break the task into a JSON array of {action, args} objects drawn from
    the registered action kinds.
  - Registry.Render validates each proposed action against the registered
    argument schema and fills the kind's instruction template.
  - Runner drives both stages for a whole task and, optionally, dispatches
    every valid instruction to a content-generation collaborator.

The registry is the single source of truth for action kinds: the
decomposition prompt, argument validation, and instruction templates are
all derived from it. Model output is treated as untrusted throughout; a
proposed action never reaches dispatch without passing validation.
*/
package planner
