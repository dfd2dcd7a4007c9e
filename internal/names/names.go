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

// Package names splits person names into their conventional parts. Source
// records carry names in every shape imaginable ("J. K. Rowling",
// "Rowling, J.K.", "Vincent van Gogh", bare surnames), and downstream
// matching keys on initials and surnames, so parsing must be deterministic
// and tolerant rather than clever.
package names

import "strings"

// Name holds the parsed parts of a person name. Absent parts are empty
// strings. A name that could not be split still carries the cleaned input in
// Full.
type Name struct {
	FirstInitial   string
	GivenName      string
	MiddleInitials string
	MiddleNames    string
	Surname        string
	Full           string
}

// IsZero reports whether nothing was parsed at all.
func (n Name) IsZero() bool {
	return n == Name{}
}

// surnameParticles are lowercase tokens that attach to the following surname
// rather than standing as middle names ("Vincent van Gogh" -> surname
// "van Gogh").
var surnameParticles = map[string]struct{}{
	"van": {}, "von": {}, "de": {}, "del": {}, "della": {}, "der": {},
	"den": {}, "di": {}, "da": {}, "das": {}, "dos": {}, "du": {},
	"le": {}, "la": {}, "ter": {}, "ten": {}, "bin": {}, "ibn": {},
}

// Parse splits a free-form person name. Comma forms ("Surname, Given") are
// re-ordered first; the remaining tokens are assigned given, middle and
// surname positions, with surname particles folded into the surname. A
// single token cannot be split and is returned in Full alone.
func Parse(full string) Name {
	tokens := tokenize(full)
	switch len(tokens) {
	case 0:
		return Name{}
	case 1:
		return Name{Full: tokens[0]}
	}
	return fromTokens(tokens)
}

// FromParts parses a name given as separate fields. A non-empty full name
// wins over the parts; otherwise given and family are joined and parsed, so
// both shapes go through identical splitting rules.
func FromParts(given, family, full string) Name {
	if s := strings.TrimSpace(full); s != "" {
		return Parse(s)
	}
	parts := make([]string, 0, 2)
	if s := strings.TrimSpace(given); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(family); s != "" {
		parts = append(parts, s)
	}
	if len(parts) == 0 {
		return Name{}
	}
	return Parse(strings.Join(parts, " "))
}

// tokenize normalizes whitespace, re-orders "Surname, Given Middle" into
// "Given Middle Surname" token order, and splits run-together initials
// ("J.K." -> "J." "K.").
func tokenize(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var raw []string
	if surname, given, ok := strings.Cut(s, ","); ok {
		surname = strings.TrimSpace(surname)
		given = strings.TrimSpace(given)
		raw = strings.Fields(given)
		if surname != "" {
			raw = append(raw, strings.Fields(surname)...)
		}
	} else {
		raw = strings.Fields(s)
	}
	tokens := make([]string, 0, len(raw))
	for _, tok := range raw {
		tokens = append(tokens, splitInitialRun(tok)...)
	}
	return tokens
}

// splitInitialRun breaks tokens of the form "J.K." or "J.K" into one token
// per initial. Anything that is not strictly alternating letter-dot pairs is
// returned unchanged.
func splitInitialRun(tok string) []string {
	runes := []rune(tok)
	var out []string
	for i := 0; i < len(runes); {
		if !isLetter(runes[i]) {
			return []string{tok}
		}
		letter := runes[i]
		i++
		if i < len(runes) {
			if runes[i] != '.' {
				return []string{tok}
			}
			i++
		}
		out = append(out, string(letter)+".")
	}
	if len(out) < 2 {
		return []string{tok}
	}
	return out
}

func isLetter(r rune) bool {
	return ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || r > 127
}

func fromTokens(tokens []string) Name {
	// Walk back from the final token, folding particles into the surname.
	start := len(tokens) - 1
	for start > 1 {
		if _, ok := surnameParticles[strings.ToLower(tokens[start-1])]; !ok {
			break
		}
		start--
	}
	surname := strings.Join(tokens[start:], " ")
	head := tokens[:start]

	n := Name{Surname: surname}
	if len(head) > 0 {
		first := head[0]
		n.FirstInitial = initialOf(first)
		if !isInitial(first) {
			n.GivenName = first
		}
		var midNames []string
		var midInitials strings.Builder
		for _, tok := range head[1:] {
			midInitials.WriteString(initialOf(tok))
			if !isInitial(tok) {
				midNames = append(midNames, tok)
			}
		}
		n.MiddleInitials = midInitials.String()
		n.MiddleNames = strings.Join(midNames, " ")
	}
	n.Full = strings.Join(tokens, " ")
	return n
}

// isInitial reports whether a token is a single-letter abbreviation such as
// "J" or "J.".
func isInitial(tok string) bool {
	letters := []rune(strings.ReplaceAll(tok, ".", ""))
	return len(letters) == 1
}

func initialOf(tok string) string {
	for _, r := range tok {
		if r == '.' {
			continue
		}
		return strings.ToUpper(string(r))
	}
	return ""
}
