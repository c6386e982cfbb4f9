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
	"regexp"
	"strings"
)

var (
	headingRe  = regexp.MustCompile(`(?m)^#{1,6}\s*`)
	bulletRe   = regexp.MustCompile(`(?m)^\s*[-*]\s*`)
	blankRunRe = regexp.MustCompile(`\n{3,}`)
)

// quickClean reduces model markdown to plain text for the task preview.
// The steps run in a fixed order: later steps see the output of earlier
// ones, so heading markers are stripped before bullets and brace removal
// happens before blank-line collapsing.
func quickClean(md string) string {
	s := strings.ReplaceAll(md, "```", "")
	s = strings.ReplaceAll(s, "`", "")

	// Model output often carries literal \n escapes instead of newlines.
	s = strings.ReplaceAll(s, `\n`, "\n")

	s = headingRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "json", "")
	s = strings.ReplaceAll(s, "{", "")
	s = strings.ReplaceAll(s, "}", "")
	s = bulletRe.ReplaceAllString(s, "")
	s = blankRunRe.ReplaceAllString(s, "\n\n")

	return strings.TrimSpace(s)
}

// stripFences unwraps one fenced code block so the content can be probed
// as JSON. The fence label line ("```json") goes with the opening fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if i := strings.Index(s, "\n"); i != -1 {
			s = s[i+1:]
		}
	}
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
