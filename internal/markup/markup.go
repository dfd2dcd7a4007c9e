// Copyright 2025 The dmpworks Authors
//
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

// Package markup strips embedded HTML and XML tags from metadata text.
// Titles and abstracts arrive with JATS and HTML markup baked in
// ("<jats:p>...</jats:p>", "<i>E. coli</i>") which must not leak into
// output columns.
package markup

import "strings"

// Strip removes comments and tag spans from s and trims the result. An
// unterminated tag drops the remainder of the string. Entities are left
// as-is.
func Strip(s string) string {
	if !strings.ContainsRune(s, '<') {
		return strings.TrimSpace(s)
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		c := s[i]
		if c != '<' {
			b.WriteByte(c)
			i++
			continue
		}
		if strings.HasPrefix(s[i:], "<!--") {
			end := strings.Index(s[i+4:], "-->")
			if end < 0 {
				break
			}
			i += 4 + end + 3
			continue
		}
		end := strings.IndexByte(s[i:], '>')
		if end < 0 {
			break
		}
		i += end + 1
	}
	return strings.TrimSpace(b.String())
}

// StripToNull strips s and reports false when the result is empty or exactly
// equals one of the given sentinel values. Sources use placeholder strings
// such as ":unav" where a null belongs.
func StripToNull(s string, nullValues ...string) (string, bool) {
	stripped := Strip(s)
	if stripped == "" {
		return "", false
	}
	for _, v := range nullValues {
		if stripped == v {
			return "", false
		}
	}
	return stripped, true
}
