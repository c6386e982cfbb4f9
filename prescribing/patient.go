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
	"strings"

	"carepilot/backend/scribe"
)

// PatientDetails is the normalized patient block for the letter.
type PatientDetails struct {
	Name         string
	DOB          string
	AddressLine1 string
	Suburb       string
	State        string
	Postcode     string
	Country      string
}

// sampleAddress is a development fixture used when a session carries no
// structured address and the builder opts in to filling one.
var sampleAddress = PatientDetails{
	AddressLine1: "123 Rathdowne St",
	Suburb:       "Carlton North",
	State:        "VIC",
	Postcode:     "3054",
	Country:      "Australia",
}

// NormalizePatient folds the scribe service's alternative demographic
// spellings into one patient block. Name comes from name, full_name or
// first+last; date of birth from dob, date_of_birth or birth_date.
func NormalizePatient(p scribe.Patient) PatientDetails {
	name := p.Name
	if name == "" {
		name = p.FullName
	}
	if name == "" {
		parts := []string{}
		if p.FirstName != "" {
			parts = append(parts, p.FirstName)
		}
		if p.LastName != "" {
			parts = append(parts, p.LastName)
		}
		name = strings.Join(parts, " ")
	}

	dob := p.DOB
	if dob == "" {
		dob = p.DateOfBirth
	}
	if dob == "" {
		dob = p.BirthDate
	}

	return PatientDetails{
		Name:         name,
		DOB:          dob,
		AddressLine1: p.AddressLine1,
		Suburb:       p.Suburb,
		State:        p.State,
		Postcode:     p.Postcode,
		Country:      p.Country,
	}
}

// HasAddress reports whether any structured address field is present.
func (d PatientDetails) HasAddress() bool {
	return d.AddressLine1 != "" || d.Suburb != "" || d.State != "" || d.Postcode != "" || d.Country != ""
}

// AddressString joins the present address fields for display, with a
// placeholder when none are set.
func (d PatientDetails) AddressString() string {
	parts := []string{}
	for _, part := range []string{d.AddressLine1, d.Suburb, d.State, d.Postcode, d.Country} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "[Address]"
	}
	return strings.Join(parts, ", ")
}

// fillSampleAddress applies the development address when the patient has
// no structured address at all.
func fillSampleAddress(d PatientDetails) PatientDetails {
	if d.HasAddress() {
		return d
	}
	d.AddressLine1 = sampleAddress.AddressLine1
	d.Suburb = sampleAddress.Suburb
	d.State = sampleAddress.State
	d.Postcode = sampleAddress.Postcode
	d.Country = sampleAddress.Country
	return d
}
