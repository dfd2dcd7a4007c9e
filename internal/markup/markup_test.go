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

package markup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrip(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain text untouched", "A plain title", "A plain title"},
		{"jats tags", "<jats:p>An abstract.</jats:p>", "An abstract."},
		{"inline tags", "Effects of <i>E. coli</i> on <b>mice</b>", "Effects of E. coli on mice"},
		{"attributes", `<a href="http://x">link text</a>`, "link text"},
		{"comment with gt inside", "before <!-- a > b --> after", "before  after"},
		{"unterminated tag drops rest", "kept <i unterminated", "kept"},
		{"unterminated comment drops rest", "kept <!-- never closed", "kept"},
		{"whitespace trimmed", "  <p> padded </p>  ", "padded"},
		{"empty after strip", "<p></p>", ""},
		{"bare less than is a tag open", "a < b", "a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Strip(tt.input))
		})
	}
}

func TestStripToNull(t *testing.T) {
	got, ok := StripToNull("<p>The Title</p>")
	assert.True(t, ok)
	assert.Equal(t, "The Title", got)

	_, ok = StripToNull(":unav", ":unav", "Cover title.")
	assert.False(t, ok)

	_, ok = StripToNull("  <p></p> ")
	assert.False(t, ok)

	// Sentinel comparison is exact, not case-folded.
	got, ok = StripToNull(":UNAV", ":unav")
	assert.True(t, ok)
	assert.Equal(t, ":UNAV", got)
}
