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
	"regexp"
)

// ActionKind identifies a kind of clinical follow-up action.
type ActionKind string

// Built-in action kinds.
const (
	PrintDocument       ActionKind = "print_document"
	SendToLab           ActionKind = "send_to_lab"
	CreatePrescription  ActionKind = "create_prescription"
	WriteReferralLetter ActionKind = "write_referral_letter"
	SendEmail           ActionKind = "send_email"
	BookAppointment     ActionKind = "book_appointment"
	OrderTest           ActionKind = "order_test"
)

// ArgSpec declares one argument of an action kind.
type ArgSpec struct {
	Name     string
	Required bool
}

// ActionSpec declares an action kind: its arguments in order and the
// instruction template the argument values are substituted into.
// Placeholders use {name} syntax and must name a declared argument.
type ActionSpec struct {
	Kind     ActionKind
	Args     []ArgSpec
	Template string
}

// Registry holds the known action kinds. It is immutable after
// construction and safe for concurrent readers.
type Registry struct {
	specs map[ActionKind]ActionSpec
	order []ActionKind
}

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z0-9_]+)\}`)

// NewRegistry returns the registry of built-in clinical action kinds.
func NewRegistry() *Registry {
	r, err := NewRegistryWithSpecs(builtinSpecs())
	if err != nil {
		// Built-in specs are static; a failure here is a programming error.
		panic(err)
	}
	return r
}

// NewRegistryWithSpecs builds a registry from the given action specs.
// Declaration order is preserved: it drives the decomposition prompt and
// the order missing-argument issues are reported in.
func NewRegistryWithSpecs(specs []ActionSpec) (*Registry, error) {
	r := &Registry{
		specs: make(map[ActionKind]ActionSpec, len(specs)),
		order: make([]ActionKind, 0, len(specs)),
	}
	for _, spec := range specs {
		if spec.Kind == "" {
			return nil, fmt.Errorf("registry: action spec with empty kind")
		}
		if _, dup := r.specs[spec.Kind]; dup {
			return nil, fmt.Errorf("registry: duplicate action kind %q", spec.Kind)
		}
		if err := validateTemplate(spec); err != nil {
			return nil, err
		}
		r.specs[spec.Kind] = spec
		r.order = append(r.order, spec.Kind)
	}
	return r, nil
}

// validateTemplate checks that every template placeholder names a declared
// argument of the spec.
func validateTemplate(spec ActionSpec) error {
	declared := make(map[string]bool, len(spec.Args))
	for _, arg := range spec.Args {
		declared[arg.Name] = true
	}
	for _, m := range placeholderPattern.FindAllStringSubmatch(spec.Template, -1) {
		if !declared[m[1]] {
			return fmt.Errorf("registry: template for %q references undeclared argument %q", spec.Kind, m[1])
		}
	}
	return nil
}

// Kinds returns the registered action kinds in declaration order.
func (r *Registry) Kinds() []ActionKind {
	kinds := make([]ActionKind, len(r.order))
	copy(kinds, r.order)
	return kinds
}

// Spec returns the action spec for kind, or ErrUnknownKind.
func (r *Registry) Spec(kind ActionKind) (ActionSpec, error) {
	spec, ok := r.specs[kind]
	if !ok {
		return ActionSpec{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return spec, nil
}

func builtinSpecs() []ActionSpec {
	return []ActionSpec{
		{
			Kind: PrintDocument,
			Args: []ArgSpec{
				{Name: "title", Required: true},
				{Name: "body", Required: false},
			},
			Template: "Print document titled {title}{body}. Consider the session context. Return a JSON object with keys: 'title', 'body'.",
		},
		{
			Kind: SendToLab,
			Args: []ArgSpec{
				{Name: "specimen_type", Required: true},
				{Name: "test", Required: true},
			},
			Template: "Send {specimen_type} to lab for {test}. Include session context. Return a JSON object with keys: 'specimen_type', 'test'.",
		},
		{
			Kind: CreatePrescription,
			Args: []ArgSpec{
				{Name: "medication", Required: true},
				{Name: "dose", Required: false},
				{Name: "instruction", Required: false},
			},
			Template: "Create prescription of {medication}. Consider the session context. Return a JSON object with keys: 'medication', 'dose', 'instructions'.",
		},
		{
			Kind: WriteReferralLetter,
			Args: []ArgSpec{
				{Name: "to", Required: true},
				{Name: "purpose", Required: true},
			},
			Template: "Write referral letter to {to} for {purpose}. Consider the session context. Return a JSON object with keys: 'recipient', 'purpose', 'notes'.",
		},
		{
			Kind: SendEmail,
			Args: []ArgSpec{
				{Name: "to", Required: true},
				{Name: "subject", Required: true},
			},
			Template: "Send email to {to} considering the subject of {subject}. Consider session context. Return a JSON object with keys: 'subject_line', 'body'.",
		},
		{
			Kind: BookAppointment,
			Args: []ArgSpec{
				{Name: "clinic", Required: true},
				{Name: "date", Required: true},
				{Name: "reason", Required: false},
			},
			Template: "Book appointment with {clinic}, {date} for {reason}. Consider session context. Return a JSON object with keys: 'clinic', 'date', 'reason'.",
		},
		{
			Kind: OrderTest,
			Args: []ArgSpec{
				{Name: "test_name", Required: true},
			},
			Template: "Order test {test_name}. Include session context. Return a JSON object with keys: 'test_name', 'patient_id'.",
		},
	}
}
