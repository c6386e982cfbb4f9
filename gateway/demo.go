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

package gateway

import (
	"context"
	"fmt"
	"log"
	"strings"

	"carepilot/backend/config"
	"carepilot/backend/prescribing"
	"carepilot/backend/scribe"
)

// Demo fixtures keep the API usable without scribe credentials. The
// fixture session mirrors the open-API payload shape; the patient block
// comes from configuration.

const demoConsultNote = `Presenting complaint:
Follow-up of type 2 diabetes and hyperlipidaemia. Reports improved energy since the last visit. No hypoglycaemic episodes.

Examination:
BP 128/82. BMI 29.1. Foot check unremarkable.

Assessment:
Type 2 diabetes, suboptimal control (HbA1c 8.1%). Hyperlipidaemia, stable on current therapy.

Plan:
Started Metformin 500 mg twice daily with meals. Continue Atorvastatin 20 mg once daily at night. Repeat HbA1c and fasting lipids in three months. Review in two weeks to check tolerance.`

const demoTranscript = `Doctor: Thanks for coming back in. How have you been going with the diet changes?
Patient: Pretty well, though the sugar readings are still up in the mornings.
Doctor: Your HbA1c came back at 8.1, so we will start metformin today, 500 milligrams twice a day with food.
Patient: Okay. Anything I should watch out for?
Doctor: Some people get an upset stomach in the first week. Taking it with meals helps.
Doctor: We will also keep the atorvastatin going, 20 milligrams each night.
Patient: Sounds good.
Doctor: I want to see you again in two weeks, and we will repeat the bloods in three months.`

const demoReferralContent = `Nearby specialists:

1. Carlton Endocrine & Diabetes Centre
   Diabetes, thyroid, osteoporosis and hormone disorder management. Located in Carlton (3053).
   https://example.com/carlton-endocrine

2. South East Endocrinology Clinic
   Specialists in metabolic bone disease, diabetes care and hormonal conditions. Located in Bentleigh (3204).
   https://example.com/bentleigh-endocrinology`

// demoSession builds the offline fixture session for the configured
// demo patient. The fixture echoes the requested session ID so callers
// keyed by session stay consistent.
func demoSession(sessionID string, patient config.PatientConfig) *scribe.Session {
	return &scribe.Session{
		SessionID:   sessionID,
		SessionName: "Follow-up consultation",
		CreatedAt:   "2026-03-14T09:30:00Z",
		Patient: scribe.Patient{
			Name: patient.Name,
			DOB:  patient.DateOfBirth,
		},
		ClinicianNotes: []string{"Repeat HbA1c before next visit."},
		ConsultNote:    scribe.ConsultNote{Result: demoConsultNote},
	}
}

// demoTaskContent serves canned preview content for a task kind. The
// substring branches mirror the action names the registry proposes.
func demoTaskContent(taskType, title string) string {
	if title == "" {
		title = "this task"
	}
	kind := strings.ToLower(taskType)

	switch {
	case strings.Contains(kind, "referral"):
		return demoReferralContent
	case strings.Contains(kind, "email") || strings.Contains(kind, "send"):
		return fmt.Sprintf("Generated email for: %s", title)
	case strings.Contains(kind, "document") || strings.Contains(kind, "note") || strings.Contains(kind, "pamphlet"):
		return fmt.Sprintf("Generated document for: %s", title)
	case strings.Contains(kind, "order") || strings.Contains(kind, "test") || strings.Contains(kind, "prescription"):
		return fmt.Sprintf("Generated order for: %s", title)
	case strings.Contains(kind, "book") || strings.Contains(kind, "appointment"):
		return fmt.Sprintf("Generated appointment details for: %s", title)
	default:
		return fmt.Sprintf("Generated content for action: %s", taskType)
	}
}

// sessionSource reads sessions from the live scribe API and falls back
// to the demo fixture when the API is unconfigured or unreachable.
type sessionSource struct {
	live     prescribing.SessionReader // nil when the scribe API is unconfigured
	fallback bool
	patient  config.PatientConfig
}

func (s *sessionSource) Session(ctx context.Context, sessionID string) (*scribe.Session, error) {
	if s.live != nil {
		session, err := s.live.Session(ctx, sessionID)
		if err == nil {
			return session, nil
		}
		if !s.fallback {
			return nil, err
		}
		log.Printf("Scribe session fetch failed, serving demo fixture: %v", err)
	} else if !s.fallback {
		return nil, fmt.Errorf("scribe client not configured")
	}
	return demoSession(sessionID, s.patient), nil
}

func (s *sessionSource) Transcript(ctx context.Context, sessionID string) (string, error) {
	if s.live != nil {
		transcript, err := s.live.Transcript(ctx, sessionID)
		if err == nil {
			return transcript, nil
		}
		if !s.fallback {
			return "", err
		}
		log.Printf("Scribe transcript fetch failed, serving demo fixture: %v", err)
	} else if !s.fallback {
		return "", fmt.Errorf("scribe client not configured")
	}
	return demoTranscript, nil
}
