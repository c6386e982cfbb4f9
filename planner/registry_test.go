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
	"strings"
	"testing"
)

// TestNewRegistry tests the built-in registry contents
func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()

	expectedOrder := []ActionKind{
		PrintDocument,
		SendToLab,
		CreatePrescription,
		WriteReferralLetter,
		SendEmail,
		BookAppointment,
		OrderTest,
	}

	kinds := reg.Kinds()
	if len(kinds) != len(expectedOrder) {
		t.Fatalf("Expected %d kinds, got %d", len(expectedOrder), len(kinds))
	}
	for i, kind := range expectedOrder {
		if kinds[i] != kind {
			t.Errorf("Kind %d: expected %s, got %s", i, kind, kinds[i])
		}
	}
}

// TestRegistrySpec tests spec lookup
func TestRegistrySpec(t *testing.T) {
	reg := NewRegistry()

	spec, err := reg.Spec(SendToLab)
	if err != nil {
		t.Fatalf("Expected spec for send_to_lab, got error: %v", err)
	}
	if len(spec.Args) != 2 {
		t.Errorf("Expected 2 args for send_to_lab, got %d", len(spec.Args))
	}
	for _, arg := range spec.Args {
		if !arg.Required {
			t.Errorf("Expected send_to_lab arg %s to be required", arg.Name)
		}
	}

	_, err = reg.Spec("teleport_patient")
	if err == nil {
		t.Fatal("Expected error for unregistered kind")
	}
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Expected ErrUnknownKind, got %v", err)
	}
}

// TestRegistryArgumentSchema tests the per-kind argument declarations
func TestRegistryArgumentSchema(t *testing.T) {
	tests := []struct {
		kind     ActionKind
		required []string
		optional []string
	}{
		{PrintDocument, []string{"title"}, []string{"body"}},
		{SendToLab, []string{"specimen_type", "test"}, nil},
		{CreatePrescription, []string{"medication"}, []string{"dose", "instruction"}},
		{WriteReferralLetter, []string{"to", "purpose"}, nil},
		{SendEmail, []string{"to", "subject"}, nil},
		{BookAppointment, []string{"clinic", "date"}, []string{"reason"}},
		{OrderTest, []string{"test_name"}, nil},
	}

	reg := NewRegistry()
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			spec, err := reg.Spec(tt.kind)
			if err != nil {
				t.Fatalf("Spec(%s): %v", tt.kind, err)
			}

			var required, optional []string
			for _, arg := range spec.Args {
				if arg.Required {
					required = append(required, arg.Name)
				} else {
					optional = append(optional, arg.Name)
				}
			}

			if !equalStrings(required, tt.required) {
				t.Errorf("Required args: expected %v, got %v", tt.required, required)
			}
			if !equalStrings(optional, tt.optional) {
				t.Errorf("Optional args: expected %v, got %v", tt.optional, optional)
			}
		})
	}
}

// TestNewRegistryWithSpecs tests custom registry validation
func TestNewRegistryWithSpecs(t *testing.T) {
	tests := []struct {
		name        string
		specs       []ActionSpec
		expectError string
	}{
		{
			name: "valid custom spec",
			specs: []ActionSpec{
				{
					Kind:     "schedule_recall",
					Args:     []ArgSpec{{Name: "patient", Required: true}, {Name: "interval", Required: false}},
					Template: "Schedule recall for {patient}{interval}.",
				},
			},
		},
		{
			name: "template references undeclared argument",
			specs: []ActionSpec{
				{
					Kind:     "schedule_recall",
					Args:     []ArgSpec{{Name: "patient", Required: true}},
					Template: "Schedule recall for {patient} at {clinic}.",
				},
			},
			expectError: "undeclared argument",
		},
		{
			name: "duplicate kind",
			specs: []ActionSpec{
				{Kind: "order_test", Args: []ArgSpec{{Name: "test_name", Required: true}}, Template: "Order {test_name}."},
				{Kind: "order_test", Args: []ArgSpec{{Name: "test_name", Required: true}}, Template: "Order {test_name}."},
			},
			expectError: "duplicate action kind",
		},
		{
			name:        "empty kind",
			specs:       []ActionSpec{{Kind: "", Template: "Do nothing."}},
			expectError: "empty kind",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := NewRegistryWithSpecs(tt.specs)
			if tt.expectError == "" {
				if err != nil {
					t.Fatalf("Expected no error, got %v", err)
				}
				if len(reg.Kinds()) != len(tt.specs) {
					t.Errorf("Expected %d kinds, got %d", len(tt.specs), len(reg.Kinds()))
				}
				return
			}
			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.expectError) {
				t.Errorf("Expected error containing %q, got %v", tt.expectError, err)
			}
		})
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
