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

// Session is a scribe consultation session.
type Session struct {
	SessionID      string      `json:"session_id"`
	SessionName    string      `json:"session_name"`
	CreatedAt      string      `json:"created_at"`
	Patient        Patient     `json:"patient"`
	ClinicianNotes []string    `json:"clinician_notes"`
	ConsultNote    ConsultNote `json:"consult_note"`
}

// ConsultNote is the generated consult note attached to a session.
type ConsultNote struct {
	Result string `json:"result"`
}

// Patient carries the demographic fields the scribe service returns.
// Field coverage varies by organisation, so several spellings of the
// same fact (name, date of birth) may arrive.
type Patient struct {
	Name              string `json:"name"`
	FullName          string `json:"full_name"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	DOB               string `json:"dob"`
	DateOfBirth       string `json:"date_of_birth"`
	BirthDate         string `json:"birth_date"`
	DemographicString string `json:"demographic_string"`
	AdditionalContext string `json:"additional_context"`
	AddressLine1      string `json:"address_line1"`
	Suburb            string `json:"suburb"`
	State             string `json:"state"`
	Postcode          string `json:"postcode"`
	Country           string `json:"country"`
}

// Document is a document attached to a session.
type Document struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	TemplateID string `json:"template_id"`
	Content    string `json:"content"`
}

// ClinicalEntity is a coded clinical finding for a session. Only
// organisations with coding enabled receive these.
type ClinicalEntity struct {
	PrimaryCode ClinicalCode `json:"primary_code"`
}

// ClinicalCode is a single code within a clinical entity.
type ClinicalCode struct {
	Code         string `json:"code"`
	CodingSystem string `json:"coding_system"`
	Description  string `json:"description"`
}

// DocumentTemplate is a global consult-note or document template.
type DocumentTemplate struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	TemplateCategory  string `json:"template_category"`
	StructureTemplate string `json:"structure_template"`
}

// CreateDocumentRequest configures document creation in a session.
// Zero-value fields fall back to the service defaults (GOLDILOCKS
// voice, LEFT brain, MARKDOWN content).
type CreateDocumentRequest struct {
	TemplateID  string
	VoiceStyle  string // GOLDILOCKS, DETAILED, BRIEF, SUPER_DETAILED or MY_VOICE
	Brain       string // LEFT or RIGHT
	ContentType string // MARKDOWN or HTML
}

// CreatedDocument is the service's acknowledgement of a created document.
type CreatedDocument struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}
