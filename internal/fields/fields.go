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

// Package fields provides the scalar normalization primitives shared by the
// source transforms: identifier extraction (DOI, ROR, ORCID), string cleaning,
// and ISO 8601 date handling. All functions are pure; "not present" is
// reported with a false second return rather than an error because missing or
// malformed values are routine in bibliographic corpora.
package fields

import (
	"regexp"
	"strings"
	"time"
)

var (
	doiPattern   = regexp.MustCompile(`(?i)10\.[\d.]+/[^\s]+`)
	rorPattern   = regexp.MustCompile(`(?i)0[a-hj-km-np-tv-z0-9]{6}[0-9]{2}`)
	orcidPattern = regexp.MustCompile(`(?i)\d{4}-\d{4}-\d{4}-\d{3}[\dx]`)
	urlPrefix    = regexp.MustCompile(`(?i)https?://[^/]+/`)
)

// Clean trims surrounding whitespace. Empty results report false.
func Clean(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != ""
}

// CleanLower is Clean followed by lowercasing.
func CleanLower(s string) (string, bool) {
	s, ok := Clean(s)
	return strings.ToLower(s), ok
}

// ExtractDOI returns the first DOI found in s, lowercased. DOIs are matched
// from the "10." directory indicator onward, so values wrapped in URLs or
// surrounding prose still resolve.
func ExtractDOI(s string) (string, bool) {
	if m := doiPattern.FindString(s); m != "" {
		return CleanLower(m)
	}
	return "", false
}

// ExtractROR returns the first bare ROR ID found in s, lowercased. The
// character class is the ROR base32 alphabet (no i, l, o or u).
func ExtractROR(s string) (string, bool) {
	if m := rorPattern.FindString(s); m != "" {
		return CleanLower(m)
	}
	return "", false
}

// ExtractORCID returns the first ORCID ID found in s, lowercased.
func ExtractORCID(s string) (string, bool) {
	if m := orcidPattern.FindString(s); m != "" {
		return CleanLower(m)
	}
	return "", false
}

// NormalizeIdentifier removes every "http(s)://<host>/" prefix embedded in s,
// not just a leading one, then trims and lowercases. Identifier fields in the
// wild hold bare IDs, URL forms, and occasionally doubled URL forms.
func NormalizeIdentifier(s string) (string, bool) {
	return CleanLower(urlPrefix.ReplaceAllString(s, ""))
}

var dateLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
}

func parseISO8601(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseDate parses an ISO 8601 calendar date, accepting full timestamps and
// truncating them to their date component. The date is taken from the value's
// own timezone before normalization, so "2025-01-01T01:00:00+05:00" stays
// 2025-01-01. The result is midnight UTC.
func ParseDate(s string) (time.Time, bool) {
	t, ok := parseISO8601(s)
	if !ok {
		return time.Time{}, false
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
}

// ParseDateTime parses an ISO 8601 datetime and normalizes it to UTC.
func ParseDateTime(s string) (time.Time, bool) {
	t, ok := parseISO8601(s)
	if !ok {
		return time.Time{}, false
	}
	return t.UTC(), true
}
