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

// Package prescribing turns a consultation session into a
// prescribing-style summary letter. Prescription candidates come from
// the planner's create_prescription actions and are filtered against
// the session context before they reach the letter; the output is a
// summary document, never a legal prescription.
package prescribing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"carepilot/backend/planner"
	"carepilot/backend/scribe"
)

const (
	// PrescriptionTask is the decomposition instruction used to extract
	// prescription actions from a session.
	PrescriptionTask = "Create prescription for appropriate medicines for this patient."

	// DefaultMaxPrescriptions caps how many medicines a letter keeps.
	DefaultMaxPrescriptions = 5

	// transcriptExcerptLimit bounds the transcript portion of the
	// session context handed to the model.
	transcriptExcerptLimit = 2000

	// contextWidth bounds the clinical-context paragraph in the letter.
	contextWidth = 800

	noContextFallback = "No additional context."
)

// PrescriberInfo is the letterhead block.
type PrescriberInfo struct {
	Name             string
	PracticeName     string
	Address          string
	Phone            string
	ProviderNumber   string
	PrescriberNumber string
}

// SamplePrescriber returns the non-secret development letterhead.
func SamplePrescriber() PrescriberInfo {
	return PrescriberInfo{
		Name:             "Dr Example Clinician",
		PracticeName:     "Example Medical Centre",
		Address:          "1 Lygon St, Carlton VIC 3053",
		Phone:            "(03) 9000 0000",
		ProviderNumber:   "123456A",
		PrescriberNumber: "123456",
	}
}

// Prescription is one extracted create_prescription action. Dose and
// instructions are optional; the model omits them when it cannot infer
// them safely.
type Prescription struct {
	Medication   string
	Dose         string
	Instructions string
}

// MedicationItem is one medicine line of the letter.
type MedicationItem struct {
	Name       string
	Strength   string
	Form       string
	Directions string
}

// Item maps a prescription onto its letter line. Directions join dose
// and instructions when both are present.
func (p Prescription) Item() MedicationItem {
	name := p.Medication
	if name == "" {
		name = "[medicine name]"
	}

	var directions string
	switch {
	case p.Dose != "" && p.Instructions != "":
		directions = p.Dose + ". " + p.Instructions
	case p.Dose != "":
		directions = p.Dose
	case p.Instructions != "":
		directions = p.Instructions
	default:
		directions = "[dose / instructions]"
	}

	return MedicationItem{Name: name, Directions: directions}
}

// ExtractPrescriptions filters proposed actions down to safe
// prescription candidates: only create_prescription actions, the
// medication must appear in the session context (hallucination guard),
// entries with neither dose nor instructions are dropped, duplicates
// collapse by medication name, and the result is capped at max.
func ExtractPrescriptions(actions []planner.ProposedAction, sessionContext string, max int) []Prescription {
	if max <= 0 {
		max = DefaultMaxPrescriptions
	}

	contextLower := strings.ToLower(sessionContext)
	seen := make(map[string]bool)
	var meds []Prescription

	for _, a := range actions {
		if a.Action != string(planner.CreatePrescription) {
			continue
		}

		med := strings.TrimSpace(stringArg(a.Args["medication"]))
		if med == "" {
			continue
		}
		medLower := strings.ToLower(med)
		if !strings.Contains(contextLower, medLower) {
			continue
		}

		dose := strings.TrimSpace(stringArg(a.Args["dose"]))
		// The action schema spells this argument "instruction"; model
		// output uses either form.
		instructions := stringArg(a.Args["instructions"])
		if instructions == "" {
			instructions = stringArg(a.Args["instruction"])
		}
		instructions = strings.TrimSpace(instructions)

		if dose == "" && instructions == "" {
			continue
		}
		if seen[medLower] {
			continue
		}
		seen[medLower] = true

		meds = append(meds, Prescription{Medication: med, Dose: dose, Instructions: instructions})
		if len(meds) >= max {
			break
		}
	}

	return meds
}

// SessionContext assembles the model context from the consult note and
// a transcript excerpt.
func SessionContext(consultNote, transcript string) string {
	var pieces []string
	if consultNote != "" {
		pieces = append(pieces, "Consult note:\n"+consultNote)
	}
	if transcript != "" {
		excerpt := transcript
		if len(excerpt) > transcriptExcerptLimit {
			excerpt = excerpt[:transcriptExcerptLimit]
		}
		pieces = append(pieces, "Transcript excerpt:\n"+excerpt)
	}

	combined := strings.Join(pieces, "\n\n")
	if combined == "" {
		return noContextFallback
	}
	return combined
}

// ComposeLetter renders the prescribing summary. The layout is fixed;
// callers control content only through the structured inputs.
func ComposeLetter(patient PatientDetails, prescriber PrescriberInfo, consultNote string, medications []MedicationItem, issued time.Time) string {
	dateStr := issued.Format("02/01/2006")

	var medsBlock string
	if len(medications) == 0 {
		medsBlock = "No medication prescribed."
	} else {
		var lines []string
		for i, m := range medications {
			nameParts := []string{}
			for _, part := range []string{m.Name, m.Strength, m.Form} {
				if part != "" {
					nameParts = append(nameParts, part)
				}
			}
			directions := m.Directions
			if directions == "" {
				directions = "[dose/route/frequency]"
			}

			lines = append(lines, fmt.Sprintf("%d. %s", i+1, strings.Join(nameParts, " ")))
			lines = append(lines, "   Sig: "+directions)
			lines = append(lines, "   Qty:           Repeats:      ")
			lines = append(lines, "")
		}
		medsBlock = strings.TrimRight(strings.Join(lines, "\n"), " \n\t")
	}

	contextBlock := "[Brief clinical context / indication for treatment]"
	if consultNote != "" {
		contextBlock = shorten(strings.ReplaceAll(consultNote, "\n", " "), contextWidth, " ... [truncated]")
	}

	out := []string{
		prescriber.PracticeName,
		prescriber.Address,
		"Phone: " + prescriber.Phone,
		"",
		"Date: " + dateStr,
		"",
		"Prescriber: " + prescriber.Name,
		"Provider number: " + prescriber.ProviderNumber,
		"Prescriber number: " + prescriber.PrescriberNumber,
		"",
		strings.Repeat("=", 60),
		" PRESCRIBING SUMMARY (NOT A LEGAL PRESCRIPTION)",
		strings.Repeat("=", 60),
		"",
		"Patient",
		"  Name   : " + patient.Name,
		"  DOB    : " + patient.DOB,
		"  Address: " + patient.AddressString(),
		"",
		"Prescribed medicine(s)",
		medsBlock,
		"",
		"Clinical context / indication",
		contextBlock,
		"",
		"Administrative",
		"  Date written : " + dateStr,
		"  Signature    : _______________________________",
		"",
		"Note: This document is a generated prescribing-style summary based " +
			"on the consultation record and AI-extracted prescription data. " +
			"A valid prescription must be issued and signed via an approved " +
			"prescribing system.",
	}

	return strings.Join(out, "\n")
}

// SessionReader is the slice of the scribe client the builder needs.
type SessionReader interface {
	Session(ctx context.Context, sessionID string) (*scribe.Session, error)
	Transcript(ctx context.Context, sessionID string) (string, error)
}

// ActionDecomposer turns a task into proposed actions.
type ActionDecomposer interface {
	Decompose(ctx context.Context, task string) ([]planner.ProposedAction, error)
}

// BuilderConfig contains configuration for the letter builder
type BuilderConfig struct {
	Sessions          SessionReader    // Required: session source
	Decomposer        ActionDecomposer // Required: action extraction
	Prescriber        PrescriberInfo   // Letterhead
	MaxPrescriptions  int              // Optional: medicine cap (default: 5)
	FillSampleAddress bool             // Development: fill a fixture address when none present
}

// Builder assembles prescribing letters for sessions.
type Builder struct {
	sessions          SessionReader
	decomposer        ActionDecomposer
	prescriber        PrescriberInfo
	maxPrescriptions  int
	fillSampleAddress bool
}

// NewBuilder creates a new letter builder
func NewBuilder(cfg BuilderConfig) (*Builder, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("prescribing session source is required")
	}
	if cfg.Decomposer == nil {
		return nil, fmt.Errorf("prescribing action decomposer is required")
	}
	if cfg.MaxPrescriptions <= 0 {
		cfg.MaxPrescriptions = DefaultMaxPrescriptions
	}

	return &Builder{
		sessions:          cfg.Sessions,
		decomposer:        cfg.Decomposer,
		prescriber:        cfg.Prescriber,
		maxPrescriptions:  cfg.MaxPrescriptions,
		fillSampleAddress: cfg.FillSampleAddress,
	}, nil
}

// Letter is a built prescribing summary.
type Letter struct {
	SessionID   string
	Text        string
	Patient     PatientDetails
	Medications []MedicationItem
	GeneratedAt time.Time
}

// BuildForSession fetches the session and transcript, extracts
// prescription actions through one decomposition call and renders the
// letter.
func (b *Builder) BuildForSession(ctx context.Context, sessionID string) (*Letter, error) {
	session, err := b.sessions.Session(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("fetch session: %w", err)
	}

	transcript, err := b.sessions.Transcript(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("fetch transcript: %w", err)
	}

	patient := NormalizePatient(session.Patient)
	if b.fillSampleAddress {
		patient = fillSampleAddress(patient)
	}

	note := session.ConsultNote.Result
	sessionContext := SessionContext(note, transcript)

	actions, err := b.decomposer.Decompose(ctx, PrescriptionTask+"\n\nSESSION CONTEXT:\n"+sessionContext)
	if err != nil {
		return nil, fmt.Errorf("extract prescriptions: %w", err)
	}

	prescriptions := ExtractPrescriptions(actions, sessionContext, b.maxPrescriptions)
	medications := make([]MedicationItem, 0, len(prescriptions))
	for _, p := range prescriptions {
		medications = append(medications, p.Item())
	}

	now := time.Now()
	return &Letter{
		SessionID:   sessionID,
		Text:        ComposeLetter(patient, b.prescriber, note, medications, now),
		Patient:     patient,
		Medications: medications,
		GeneratedAt: now,
	}, nil
}

// stringArg renders an argument value for filtering; nil is empty.
func stringArg(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// shorten collapses whitespace and trims the text to width at a word
// boundary, appending the placeholder when anything was cut.
func shorten(text string, width int, placeholder string) string {
	words := strings.Fields(text)
	collapsed := strings.Join(words, " ")
	if len(collapsed) <= width {
		return collapsed
	}

	budget := width - len(placeholder)
	kept := ""
	for _, word := range words {
		candidate := word
		if kept != "" {
			candidate = kept + " " + word
		}
		if len(candidate) > budget {
			break
		}
		kept = candidate
	}

	if kept == "" {
		return strings.TrimLeft(placeholder, " ")
	}
	return kept + placeholder
}
