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
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carepilot/backend/config"
	"carepilot/backend/scribe"
)

func TestDemoTaskContentBranches(t *testing.T) {
	cases := []struct {
		taskType string
		title    string
		want     string
	}{
		{"write_referral_letter", "Referral", "Nearby specialists:"},
		{"send_email", "Email to patient", "Generated email for: Email to patient"},
		{"send_to_lab", "Lipid panel", "Generated email for: Lipid panel"},
		{"print_document", "Care plan", "Generated document for: Care plan"},
		{"create_prescription", "Metformin script", "Generated order for: Metformin script"},
		{"order_test", "HbA1c", "Generated order for: HbA1c"},
		{"book_appointment", "Review visit", "Generated appointment details for: Review visit"},
		{"custom_kind", "Anything", "Generated content for action: custom_kind"},
		{"send_email", "", "Generated email for: this task"},
	}
	for _, tc := range cases {
		got := demoTaskContent(tc.taskType, tc.title)
		assert.True(t, strings.HasPrefix(got, tc.want),
			"%s/%q: got %q, want prefix %q", tc.taskType, tc.title, got, tc.want)
	}
}

func TestDemoSessionEchoesRequestedID(t *testing.T) {
	patient := config.PatientConfig{Name: "John Doe", DateOfBirth: "1980-03-15"}

	session := demoSession("sess-42", patient)

	assert.Equal(t, "sess-42", session.SessionID)
	assert.Equal(t, "John Doe", session.Patient.Name)
	assert.Equal(t, "1980-03-15", session.Patient.DOB)
	assert.Contains(t, session.ConsultNote.Result, "Metformin")
}

// fakeSessionReader stands in for the live scribe client.
type fakeSessionReader struct {
	session    *scribe.Session
	transcript string
	err        error
}

func (f *fakeSessionReader) Session(_ context.Context, _ string) (*scribe.Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.session, nil
}

func (f *fakeSessionReader) Transcript(_ context.Context, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.transcript, nil
}

func TestSessionSourcePrefersLive(t *testing.T) {
	live := &fakeSessionReader{
		session:    &scribe.Session{SessionID: "live-1", Patient: scribe.Patient{Name: "Live Patient"}},
		transcript: "live transcript",
	}
	source := &sessionSource{live: live, fallback: true}

	session, err := source.Session(context.Background(), "live-1")
	require.NoError(t, err)
	assert.Equal(t, "Live Patient", session.Patient.Name)

	transcript, err := source.Transcript(context.Background(), "live-1")
	require.NoError(t, err)
	assert.Equal(t, "live transcript", transcript)
}

func TestSessionSourceFallsBackOnLiveFailure(t *testing.T) {
	live := &fakeSessionReader{err: errors.New("connection refused")}
	source := &sessionSource{
		live:     live,
		fallback: true,
		patient:  config.PatientConfig{Name: "John Doe"},
	}

	session, err := source.Session(context.Background(), "sess-7")
	require.NoError(t, err)
	assert.Equal(t, "sess-7", session.SessionID)
	assert.Equal(t, "John Doe", session.Patient.Name)

	transcript, err := source.Transcript(context.Background(), "sess-7")
	require.NoError(t, err)
	assert.Equal(t, demoTranscript, transcript)
}

func TestSessionSourceSurfacesErrorWithoutFallback(t *testing.T) {
	live := &fakeSessionReader{err: errors.New("connection refused")}
	source := &sessionSource{live: live, fallback: false}

	_, err := source.Session(context.Background(), "sess-7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSessionSourceUnconfigured(t *testing.T) {
	source := &sessionSource{fallback: false}

	_, err := source.Session(context.Background(), "sess-7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")

	_, err = source.Transcript(context.Background(), "sess-7")
	require.Error(t, err)
}
