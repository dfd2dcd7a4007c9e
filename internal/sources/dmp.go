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

package sources

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dmpworks/corpusrunner/internal/fields"
	"github.com/dmpworks/corpusrunner/internal/jsonl"
	"github.com/dmpworks/corpusrunner/internal/names"
	"github.com/dmpworks/corpusrunner/internal/parquetwriter"
)

// awardIDExcludes are placeholder values people type into award ID fields.
// Matching is case-insensitive against the trimmed value; matches are
// stored as nulls.
var awardIDExcludes = map[string]struct{}{
	"":                               {},
	"-":                              {},
	"0":                              {},
	"0000":                           {},
	"001":                            {},
	"1":                              {},
	"12":                             {},
	"123":                            {},
	"1234":                           {},
	"12345":                          {},
	"123456":                         {},
	"12345678":                       {},
	"123456789":                      {},
	"123457":                         {},
	"none":                           {},
	"abc123":                         {},
	"abcdef":                         {},
	"em elaboração":                  {},
	"independent departmental funds": {},
	"internally funded":              {},
	"n/a":                            {},
	"na":                             {},
	"na.com":                         {},
	"nil":                            {},
	"no aplica":                      {},
	"no grat numbered yet":           {},
	"no numbered yet":                {},
	"not applicable":                 {},
	"not assigned":                   {},
	"not yet assigned":               {},
	"pending":                        {},
	"sem numero":                     {},
	"sem numeros":                    {},
	"tbd":                            {},
	"unspecified":                    {},
	"xxxxxxxxxxxxxxxxx":              {},
}

// dmpDOIPrefix matches the protocol and doi.org prefix of DMP Tool DOI
// values that the general DOI pattern could not resolve.
var dmpDOIPrefix = regexp.MustCompile(`^https?://(doi\.org/)?`)

// DMPsSchema is the output layout for DMP Tool data management plans.
var DMPsSchema = parquetwriter.MustSchema("dmps",
	parquetwriter.Field("doi", parquetwriter.String(), false),
	parquetwriter.Field("created", parquetwriter.Timestamp(), true),
	parquetwriter.Field("registered", parquetwriter.Timestamp(), true),
	parquetwriter.Field("modified", parquetwriter.Timestamp(), true),
	parquetwriter.Field("title", parquetwriter.String(), true),
	parquetwriter.Field("abstract_text", parquetwriter.String(), true),
	parquetwriter.Field("project_start", parquetwriter.Date(), true),
	parquetwriter.Field("project_end", parquetwriter.Date(), true),
	parquetwriter.Field("institutions", parquetwriter.ListOf(parquetwriter.StructOf(
		parquetwriter.Field("name", parquetwriter.String(), true),
		parquetwriter.Field("ror", parquetwriter.String(), true),
	)), false),
	parquetwriter.Field("authors", parquetwriter.ListOf(authorType()), false),
	parquetwriter.Field("funding", parquetwriter.ListOf(parquetwriter.StructOf(
		parquetwriter.Field("funder", parquetwriter.StructOf(
			parquetwriter.Field("name", parquetwriter.String(), true),
			parquetwriter.Field("ror", parquetwriter.String(), true),
		), true),
		parquetwriter.Field("funding_opportunity_id", parquetwriter.String(), true),
		parquetwriter.Field("status", parquetwriter.String(), true),
		parquetwriter.Field("award_id", parquetwriter.String(), true),
	)), false),
	parquetwriter.Field("published_outputs", parquetwriter.ListOf(parquetwriter.StructOf(
		parquetwriter.Field("doi", parquetwriter.String(), false),
	)), false),
)

// DMPs returns the DMP Tool source descriptor.
func DMPs() Source {
	return Source{
		Name:        "dmps",
		Title:       "DMP Tool DMPs",
		Schema:      DMPsSchema,
		FilePattern: "*.jsonl.gz",
		FilePrefix:  "dmps_",
		Transform:   TransformDMP,
	}
}

// TransformDMP maps one DMP Tool plan to an output row. DMP exports are
// stricter than the harvested corpora: the list fields arrive as embedded
// JSON strings that must parse, and malformed record timestamps are
// reported as errors rather than nulled, because they indicate a broken
// export, not dirty upstream data.
func TransformDMP(rec jsonl.Record) (parquetwriter.Row, error) {
	created, err := dmpDateTime(rec, "created")
	if err != nil {
		return nil, err
	}
	registered, err := dmpDateTime(rec, "registered")
	if err != nil {
		return nil, err
	}
	modified, err := dmpDateTime(rec, "modified")
	if err != nil {
		return nil, err
	}

	institutions, err := dmpEmbedded(rec, "institutions")
	if err != nil {
		return nil, err
	}
	authors, err := dmpEmbedded(rec, "authors")
	if err != nil {
		return nil, err
	}
	funding, err := dmpEmbedded(rec, "funding")
	if err != nil {
		return nil, err
	}
	outputs, err := dmpEmbedded(rec, "published_outputs")
	if err != nil {
		return nil, err
	}

	return parquetwriter.Row{
		"doi":               nullable(dmpDOI(rec.Get("doi"))),
		"created":           created,
		"registered":        registered,
		"modified":          modified,
		"title":             nullable(stripped(rec.Get("title"))),
		"abstract_text":     nullable(stripped(rec.Get("abstract_text"))),
		"project_start":     nullableTime(parseDate(rec.Get("project_start"))),
		"project_end":       nullableTime(parseDate(rec.Get("project_end"))),
		"institutions":      dmpInstitutions(institutions),
		"authors":           dmpAuthors(authors),
		"funding":           dmpFunding(funding),
		"published_outputs": dmpPublishedOutputs(outputs),
	}, nil
}

// dmpDOI resolves a DMP DOI value. Values that do not contain a DOI are
// assumed to be bare DMP Tool suffixes: the protocol and doi.org prefix are
// stripped and the DMP Tool prefix 10.48321 is prepended before trying
// again.
func dmpDOI(v gjson.Result) (string, bool) {
	s, ok := text(v)
	if !ok {
		return "", false
	}
	if doi, ok := fields.ExtractDOI(s); ok {
		return doi, true
	}
	cleaned, _ := fields.CleanLower(s)
	cleaned = dmpDOIPrefix.ReplaceAllString(cleaned, "")
	if !strings.HasPrefix(cleaned, "10.") {
		cleaned = "10.48321/" + cleaned
	}
	return fields.ExtractDOI(cleaned)
}

// dmpDateTime parses a record timestamp. Absent is fine; unparseable is an
// error.
func dmpDateTime(rec jsonl.Record, field string) (any, error) {
	s, ok := text(rec.Get(field))
	if !ok {
		return nil, nil
	}
	t, ok := fields.ParseDateTime(s)
	if !ok {
		return nil, fmt.Errorf("field %s: invalid datetime %q", field, s)
	}
	return t, nil
}

// dmpEmbedded parses a field holding a JSON array embedded as a string.
func dmpEmbedded(rec jsonl.Record, field string) ([]gjson.Result, error) {
	v := rec.Get(field)
	if v.Type != gjson.String {
		return nil, fmt.Errorf("field %s: expected an embedded JSON string", field)
	}
	if !gjson.Valid(v.Str) {
		return nil, fmt.Errorf("field %s: invalid embedded JSON", field)
	}
	parsed := gjson.Parse(v.Str)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("field %s: embedded JSON is not an array", field)
	}
	return parsed.Array(), nil
}

// dmpInstitutions sorts by name and deduplicates.
func dmpInstitutions(entries []gjson.Result) []any {
	sortByStringKey(entries, func(el gjson.Result) (string, bool) {
		return text(el.Get("name"))
	})

	out := []any{}
	type instKey struct{ name, ror string }
	seen := map[instKey]struct{}{}
	for _, el := range entries {
		name, hasName := clean(el.Get("name"))
		ror, hasROR := extractROR(el.Get("affiliation_id"))
		if name == "" && ror == "" {
			continue
		}
		key := instKey{name: name, ror: ror}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, map[string]any{
			"name": nullable(name, hasName),
			"ror":  nullable(ror, hasROR),
		})
	}
	return out
}

// dmpAuthors sorts primary contacts first, then by creation time, and
// deduplicates.
func dmpAuthors(entries []gjson.Result) []any {
	sort.SliceStable(entries, func(i, j int) bool {
		pi, pj := entries[i].Get("is_primary_contact").Bool(), entries[j].Get("is_primary_contact").Bool()
		if pi != pj {
			return pi
		}
		ci, oki := text(entries[i].Get("created"))
		cj, okj := text(entries[j].Get("created"))
		if oki != okj {
			return oki
		}
		return ci < cj
	})

	al := newAuthorList()
	for _, el := range entries {
		orcid, _ := extractORCID(el.Get("orcid"))
		given, _ := clean(el.Get("given_name"))
		family, _ := clean(el.Get("surname"))
		al.add(Author{ORCID: orcid, Name: names.FromParts(given, family, "")})
	}
	return al.rows
}

// dmpFunding sorts by creation time and deduplicates. The status field
// never qualifies an entry on its own but still distinguishes two
// otherwise identical entries.
func dmpFunding(entries []gjson.Result) []any {
	sortByStringKey(entries, func(el gjson.Result) (string, bool) {
		return text(el.Get("created"))
	})

	out := []any{}
	type fundingKey struct{ name, ror, status, opportunityID, awardID string }
	seen := map[fundingKey]struct{}{}
	for _, el := range entries {
		name, hasName := clean(el.Get("funder_name"))
		ror, hasROR := extractROR(el.Get("funder_id"))
		status, hasStatus := text(el.Get("status"))
		opportunityID, hasOpportunityID := replaceWithNull(el.Get("funder_opportunity_id"))
		awardID, hasAwardID := replaceWithNull(el.Get("grant_id"))
		if name == "" && ror == "" && opportunityID == "" && awardID == "" {
			continue
		}
		key := fundingKey{name: name, ror: ror, status: status, opportunityID: opportunityID, awardID: awardID}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, map[string]any{
			"funder": map[string]any{
				"name": nullable(name, hasName),
				"ror":  nullable(ror, hasROR),
			},
			"funding_opportunity_id": nullable(opportunityID, hasOpportunityID),
			"status":                 nullable(status, hasStatus),
			"award_id":               nullable(awardID, hasAwardID),
		})
	}
	return out
}

// dmpPublishedOutputs keeps entries with a resolvable DOI, sorted by DOI.
func dmpPublishedOutputs(entries []gjson.Result) []any {
	dois := make([]string, 0, len(entries))
	for _, el := range entries {
		if doi, ok := extractDOI(el.Get("doi")); ok {
			dois = append(dois, doi)
		}
	}
	sort.Strings(dois)
	out := make([]any, 0, len(dois))
	for _, doi := range dois {
		out = append(out, map[string]any{"doi": doi})
	}
	return out
}

// replaceWithNull trims the value and drops it when the lowercased result
// is a known placeholder.
func replaceWithNull(v gjson.Result) (string, bool) {
	s, ok := text(v)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if _, excluded := awardIDExcludes[strings.ToLower(s)]; excluded {
		return "", false
	}
	return s, true
}

// sortByStringKey stably sorts entries by an optional string key, absent
// keys last.
func sortByStringKey(entries []gjson.Result, key func(el gjson.Result) (string, bool)) {
	sort.SliceStable(entries, func(i, j int) bool {
		ki, oki := key(entries[i])
		kj, okj := key(entries[j])
		if oki != okj {
			return oki
		}
		return ki < kj
	})
}
