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

package prescribing

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"carepilot/backend/planner"
	"carepilot/backend/scribe"
)

func proposed(action string, args map[string]interface{}) planner.ProposedAction {
	return planner.ProposedAction{Action: action, Args: args}
}

// TestExtractPrescriptions tests the candidate filtering rules
func TestExtractPrescriptions(t *testing.T) {
	sessionContext := "Consult note:\nStarted Metformin 500 mg for type 2 diabetes. Atorvastatin 20 mg continued."

	tests := []struct {
		name     string
		actions  []planner.ProposedAction
		max      int
		expected []Prescription
	}{
		{
			name: "keeps matching medication with dose",
			actions: []planner.ProposedAction{
				proposed("create_prescription", map[string]interface{}{"medication": "Metformin", "dose": "500 mg"}),
			},
			expected: []Prescription{{Medication: "Metformin", Dose: "500 mg"}},
		},
		{
			name: "ignores other action kinds",
			actions: []planner.ProposedAction{
				proposed("order_test", map[string]interface{}{"test_name": "HbA1c"}),
				proposed("create_prescription", map[string]interface{}{"medication": "Metformin", "dose": "500 mg"}),
			},
			expected: []Prescription{{Medication: "Metformin", Dose: "500 mg"}},
		},
		{
			name: "drops medication absent from context",
			actions: []planner.ProposedAction{
				proposed("create_prescription", map[string]interface{}{"medication": "Oxycodone", "dose": "5 mg"}),
			},
			expected: nil,
		},
		{
			name: "drops empty medication",
			actions: []planner.ProposedAction{
				proposed("create_prescription", map[string]interface{}{"medication": "  ", "dose": "5 mg"}),
			},
			expected: nil,
		},
		{
			name: "drops entry with neither dose nor instructions",
			actions: []planner.ProposedAction{
				proposed("create_prescription", map[string]interface{}{"medication": "Metformin"}),
			},
			expected: nil,
		},
		{
			name: "accepts instruction spelling",
			actions: []planner.ProposedAction{
				proposed("create_prescription", map[string]interface{}{"medication": "Metformin", "instruction": "Take with meals"}),
			},
			expected: []Prescription{{Medication: "Metformin", Instructions: "Take with meals"}},
		},
		{
			name: "instructions field wins over instruction",
			actions: []planner.ProposedAction{
				proposed("create_prescription", map[string]interface{}{
					"medication":   "Metformin",
					"instructions": "Take with meals",
					"instruction":  "ignored",
				}),
			},
			expected: []Prescription{{Medication: "Metformin", Instructions: "Take with meals"}},
		},
		{
			name: "dedupes by medication case-insensitively",
			actions: []planner.ProposedAction{
				proposed("create_prescription", map[string]interface{}{"medication": "Metformin", "dose": "500 mg"}),
				proposed("create_prescription", map[string]interface{}{"medication": "METFORMIN", "dose": "850 mg"}),
			},
			expected: []Prescription{{Medication: "Metformin", Dose: "500 mg"}},
		},
		{
			name: "caps at max",
			actions: []planner.ProposedAction{
				proposed("create_prescription", map[string]interface{}{"medication": "Metformin", "dose": "500 mg"}),
				proposed("create_prescription", map[string]interface{}{"medication": "Atorvastatin", "dose": "20 mg"}),
			},
			max:      1,
			expected: []Prescription{{Medication: "Metformin", Dose: "500 mg"}},
		},
		{
			name: "nil args skipped",
			actions: []planner.ProposedAction{
				proposed("create_prescription", nil),
			},
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			max := tt.max
			if max == 0 {
				max = DefaultMaxPrescriptions
			}
			got := ExtractPrescriptions(tt.actions, sessionContext, max)
			if len(got) != len(tt.expected) {
				t.Fatalf("Expected %d prescriptions, got %d: %+v", len(tt.expected), len(got), got)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("Prescription %d: expected %+v, got %+v", i, tt.expected[i], got[i])
				}
			}
		})
	}
}

// TestPrescriptionItem tests the directions mapping
func TestPrescriptionItem(t *testing.T) {
	tests := []struct {
		name               string
		prescription       Prescription
		expectedName       string
		expectedDirections string
	}{
		{
			name:               "dose and instructions joined",
			prescription:       Prescription{Medication: "Metformin", Dose: "500 mg", Instructions: "Take with meals"},
			expectedName:       "Metformin",
			expectedDirections: "500 mg. Take with meals",
		},
		{
			name:               "dose only",
			prescription:       Prescription{Medication: "Metformin", Dose: "500 mg"},
			expectedName:       "Metformin",
			expectedDirections: "500 mg",
		},
		{
			name:               "instructions only",
			prescription:       Prescription{Medication: "Metformin", Instructions: "Take with meals"},
			expectedName:       "Metformin",
			expectedDirections: "Take with meals",
		},
		{
			name:               "neither uses placeholder",
			prescription:       Prescription{Medication: "Metformin"},
			expectedName:       "Metformin",
			expectedDirections: "[dose / instructions]",
		},
		{
			name:               "empty medication uses placeholder",
			prescription:       Prescription{Dose: "500 mg"},
			expectedName:       "[medicine name]",
			expectedDirections: "500 mg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := tt.prescription.Item()
			if item.Name != tt.expectedName {
				t.Errorf("Expected name %q, got %q", tt.expectedName, item.Name)
			}
			if item.Directions != tt.expectedDirections {
				t.Errorf("Expected directions %q, got %q", tt.expectedDirections, item.Directions)
			}
		})
	}
}

// TestSessionContext tests the model context assembly
func TestSessionContext(t *testing.T) {
	t.Run("note and transcript", func(t *testing.T) {
		got := SessionContext("Type 2 diabetes review.", "Doctor: how are the sugars?")
		expected := "Consult note:\nType 2 diabetes review.\n\nTranscript excerpt:\nDoctor: how are the sugars?"
		if got != expected {
			t.Errorf("Expected %q, got %q", expected, got)
		}
	})

	t.Run("note only", func(t *testing.T) {
		got := SessionContext("Type 2 diabetes review.", "")
		if got != "Consult note:\nType 2 diabetes review." {
			t.Errorf("Unexpected context: %q", got)
		}
	})

	t.Run("neither uses fallback", func(t *testing.T) {
		if got := SessionContext("", ""); got != "No additional context." {
			t.Errorf("Expected fallback, got %q", got)
		}
	})

	t.Run("long transcript truncated", func(t *testing.T) {
		transcript := strings.Repeat("x", 5000)
		got := SessionContext("", transcript)
		expected := "Transcript excerpt:\n" + strings.Repeat("x", 2000)
		if got != expected {
			t.Errorf("Expected 2000-byte excerpt, got %d bytes", len(got))
		}
	})
}

// TestComposeLetter tests the full letter layout
func TestComposeLetter(t *testing.T) {
	patient := PatientDetails{
		Name:         "John Doe",
		DOB:          "1980-03-15",
		AddressLine1: "123 Rathdowne St",
		Suburb:       "Carlton North",
		State:        "VIC",
		Postcode:     "3054",
		Country:      "Australia",
	}
	medications := []MedicationItem{
		{Name: "Metformin", Directions: "500 mg twice daily. Take with meals"},
		{Name: "Atorvastatin", Directions: "20 mg nightly"},
	}
	issued := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	got := ComposeLetter(patient, SamplePrescriber(), "Type 2 diabetes review. Metformin started.", medications, issued)

	expected := strings.Join([]string{
		"Example Medical Centre",
		"1 Lygon St, Carlton VIC 3053",
		"Phone: (03) 9000 0000",
		"",
		"Date: 14/03/2026",
		"",
		"Prescriber: Dr Example Clinician",
		"Provider number: 123456A",
		"Prescriber number: 123456",
		"",
		strings.Repeat("=", 60),
		" PRESCRIBING SUMMARY (NOT A LEGAL PRESCRIPTION)",
		strings.Repeat("=", 60),
		"",
		"Patient",
		"  Name   : John Doe",
		"  DOB    : 1980-03-15",
		"  Address: 123 Rathdowne St, Carlton North, VIC, 3054, Australia",
		"",
		"Prescribed medicine(s)",
		"1. Metformin",
		"   Sig: 500 mg twice daily. Take with meals",
		"   Qty:           Repeats:      ",
		"",
		"2. Atorvastatin",
		"   Sig: 20 mg nightly",
		"   Qty:           Repeats:",
		"",
		"Clinical context / indication",
		"Type 2 diabetes review. Metformin started.",
		"",
		"Administrative",
		"  Date written : 14/03/2026",
		"  Signature    : _______________________________",
		"",
		"Note: This document is a generated prescribing-style summary based " +
			"on the consultation record and AI-extracted prescription data. " +
			"A valid prescription must be issued and signed via an approved " +
			"prescribing system.",
	}, "\n")

	if got != expected {
		t.Errorf("Letter layout mismatch.\nExpected:\n%s\n\nGot:\n%s", expected, got)
	}
}

// TestComposeLetterNoMedications tests the empty medicines block
func TestComposeLetterNoMedications(t *testing.T) {
	got := ComposeLetter(PatientDetails{Name: "John Doe"}, SamplePrescriber(), "", nil, time.Now())

	if !strings.Contains(got, "No medication prescribed.") {
		t.Error("Expected empty-medicines placeholder")
	}
	if !strings.Contains(got, "[Brief clinical context / indication for treatment]") {
		t.Error("Expected context placeholder without a consult note")
	}
	if !strings.Contains(got, "  Address: [Address]") {
		t.Error("Expected address placeholder")
	}
}

// TestComposeLetterLongNoteTruncated tests the context paragraph bound
func TestComposeLetterLongNoteTruncated(t *testing.T) {
	note := strings.Repeat("Patient reviewed for ongoing management of chronic conditions. ", 30)
	got := ComposeLetter(PatientDetails{Name: "John Doe"}, SamplePrescriber(), note, nil, time.Now())

	lines := strings.Split(got, "\n")
	var contextLine string
	for i, line := range lines {
		if line == "Clinical context / indication" && i+1 < len(lines) {
			contextLine = lines[i+1]
			break
		}
	}

	if contextLine == "" {
		t.Fatal("Context line not found")
	}
	if !strings.HasSuffix(contextLine, " ... [truncated]") {
		t.Errorf("Expected truncation placeholder, got %q", contextLine)
	}
	if len(contextLine) > 800 {
		t.Errorf("Context line exceeds 800 chars: %d", len(contextLine))
	}
}

// TestShorten tests the word-boundary truncation helper
func TestShorten(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		width    int
		expected string
	}{
		{
			name:     "fits untouched",
			text:     "short text",
			width:    20,
			expected: "short text",
		},
		{
			name:     "whitespace collapsed even when fitting",
			text:     "spaced   out\n\ttext",
			width:    40,
			expected: "spaced out text",
		},
		{
			name:     "truncates at word boundary",
			text:     "alpha beta gamma delta epsilon",
			width:    25,
			expected: "alpha ... [truncated]",
		},
		{
			name:     "placeholder alone when nothing fits",
			text:     "supercalifragilisticexpialidocious words",
			width:    20,
			expected: "... [truncated]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := shorten(tt.text, tt.width, " ... [truncated]")
			if got != tt.expected {
				t.Errorf("Expected %q, got %q", tt.expected, got)
			}
		})
	}
}

// Fakes for the builder tests

type fakeSessions struct {
	session       *scribe.Session
	transcript    string
	sessionErr    error
	transcriptErr error
}

func (f *fakeSessions) Session(ctx context.Context, sessionID string) (*scribe.Session, error) {
	if f.sessionErr != nil {
		return nil, f.sessionErr
	}
	return f.session, nil
}

func (f *fakeSessions) Transcript(ctx context.Context, sessionID string) (string, error) {
	if f.transcriptErr != nil {
		return "", f.transcriptErr
	}
	return f.transcript, nil
}

type fakeDecomposer struct {
	actions  []planner.ProposedAction
	err      error
	lastTask string
}

func (f *fakeDecomposer) Decompose(ctx context.Context, task string) ([]planner.ProposedAction, error) {
	f.lastTask = task
	if f.err != nil {
		return nil, f.err
	}
	return f.actions, nil
}

// TestNewBuilderValidation tests required dependencies
func TestNewBuilderValidation(t *testing.T) {
	if _, err := NewBuilder(BuilderConfig{Decomposer: &fakeDecomposer{}}); err == nil {
		t.Error("Expected error without session source")
	}
	if _, err := NewBuilder(BuilderConfig{Sessions: &fakeSessions{}}); err == nil {
		t.Error("Expected error without decomposer")
	}
}

// TestBuildForSession tests the end-to-end letter flow
func TestBuildForSession(t *testing.T) {
	sessions := &fakeSessions{
		session: &scribe.Session{
			SessionID: "sess-1",
			Patient:   scribe.Patient{Name: "John Doe", DOB: "1980-03-15"},
			ConsultNote: scribe.ConsultNote{
				Result: "Started Metformin 500 mg for type 2 diabetes.",
			},
		},
		transcript: "Doctor: we will start metformin today.",
	}
	decomposer := &fakeDecomposer{
		actions: []planner.ProposedAction{
			proposed("create_prescription", map[string]interface{}{"medication": "Metformin", "dose": "500 mg"}),
			proposed("teleport_patient", map[string]interface{}{}),
		},
	}

	builder, err := NewBuilder(BuilderConfig{
		Sessions:          sessions,
		Decomposer:        decomposer,
		Prescriber:        SamplePrescriber(),
		FillSampleAddress: true,
	})
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}

	letter, err := builder.BuildForSession(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("BuildForSession: %v", err)
	}

	if letter.SessionID != "sess-1" {
		t.Errorf("Expected session ID sess-1, got %q", letter.SessionID)
	}
	if len(letter.Medications) != 1 {
		t.Fatalf("Expected 1 medication, got %d", len(letter.Medications))
	}
	if !strings.Contains(letter.Text, "1. Metformin") {
		t.Error("Expected medication line in letter")
	}
	if !strings.Contains(letter.Text, "  Address: 123 Rathdowne St, Carlton North, VIC, 3054, Australia") {
		t.Error("Expected sample address fill")
	}

	if !strings.HasPrefix(decomposer.lastTask, PrescriptionTask) {
		t.Errorf("Task should start with the prescription instruction, got %q", decomposer.lastTask)
	}
	if !strings.Contains(decomposer.lastTask, "SESSION CONTEXT:\nConsult note:\nStarted Metformin") {
		t.Errorf("Task should embed the session context, got %q", decomposer.lastTask)
	}
	if !strings.Contains(decomposer.lastTask, "Transcript excerpt:\nDoctor: we will start metformin today.") {
		t.Errorf("Task should embed the transcript excerpt, got %q", decomposer.lastTask)
	}
}

// TestBuildForSessionErrors tests failure wrapping
func TestBuildForSessionErrors(t *testing.T) {
	decomposer := &fakeDecomposer{}

	t.Run("session fetch failure", func(t *testing.T) {
		builder, _ := NewBuilder(BuilderConfig{
			Sessions:   &fakeSessions{sessionErr: fmt.Errorf("scribe session request failed: status 404")},
			Decomposer: decomposer,
		})
		_, err := builder.BuildForSession(context.Background(), "missing")
		if err == nil || !strings.Contains(err.Error(), "fetch session") {
			t.Errorf("Expected fetch session error, got %v", err)
		}
	})

	t.Run("transcript fetch failure", func(t *testing.T) {
		builder, _ := NewBuilder(BuilderConfig{
			Sessions: &fakeSessions{
				session:       &scribe.Session{SessionID: "sess-1"},
				transcriptErr: fmt.Errorf("scribe transcript request failed: status 500"),
			},
			Decomposer: decomposer,
		})
		_, err := builder.BuildForSession(context.Background(), "sess-1")
		if err == nil || !strings.Contains(err.Error(), "fetch transcript") {
			t.Errorf("Expected fetch transcript error, got %v", err)
		}
	})

	t.Run("decomposition failure", func(t *testing.T) {
		builder, _ := NewBuilder(BuilderConfig{
			Sessions: &fakeSessions{session: &scribe.Session{SessionID: "sess-1"}},
			Decomposer: &fakeDecomposer{
				err: fmt.Errorf("decompose task: completion call failed"),
			},
		})
		_, err := builder.BuildForSession(context.Background(), "sess-1")
		if err == nil || !strings.Contains(err.Error(), "extract prescriptions") {
			t.Errorf("Expected extract prescriptions error, got %v", err)
		}
	})
}
