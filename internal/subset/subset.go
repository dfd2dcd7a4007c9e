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

// Package subset builds demo-sized subsets of full corpus releases. A
// record is kept when it is affiliated with one of the configured
// institutions, matched by ROR ID or display name, or when its DOI appears
// on an explicit include list. Filtering runs against the raw release
// files, so a subset can be fed back through the transforms unchanged.
package subset

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dmpworks/corpusrunner/internal/fields"
	"github.com/dmpworks/corpusrunner/internal/jsonl"
)

// Dataset identifies a corpus release layout that can be subset.
type Dataset string

const (
	CrossrefMetadata Dataset = "crossref-metadata"
	DataCite         Dataset = "datacite"
	OpenAlexWorks    Dataset = "openalex-works"
)

// Datasets lists every dataset a subset can be built from.
func Datasets() []Dataset {
	return []Dataset{CrossrefMetadata, DataCite, OpenAlexWorks}
}

// ParseDataset resolves a dataset name given on the command line.
func ParseDataset(s string) (Dataset, error) {
	for _, d := range Datasets() {
		if string(d) == s {
			return d, nil
		}
	}
	known := make([]string, 0, 3)
	for _, d := range Datasets() {
		known = append(known, string(d))
	}
	return "", fmt.Errorf("unknown dataset %q, expected one of: %s", s, strings.Join(known, ", "))
}

// FilePattern returns the glob matching this dataset's release files.
// OpenAlex snapshots nest files under updated_date partitions, DataCite
// releases nest under prefix directories, and Crossref public data files
// are a single flat directory.
func (d Dataset) FilePattern() string {
	switch d {
	case OpenAlexWorks:
		return "**/*.gz"
	case DataCite:
		return "**/*jsonl.gz"
	case CrossrefMetadata:
		return "*.jsonl.gz"
	}
	return ""
}

// Institution selects the works affiliated with one institution. Either
// field may be empty; whichever is set participates in matching. ROR IDs
// must be bare lowercase IDs such as "0168r3w48".
type Institution struct {
	Name string `json:"name"`
	ROR  string `json:"ror"`
}

// LoadInstitutions reads a JSON file holding a list of institutions, e.g.
// [{"name": "University of California, San Diego", "ror": "0168r3w48"}].
func LoadInstitutions(path string) ([]Institution, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load institutions: %w", err)
	}
	var institutions []Institution
	if err := json.Unmarshal(data, &institutions); err != nil {
		return nil, fmt.Errorf("load institutions %s: %w", path, err)
	}
	return institutions, nil
}

// LoadDOIs reads a JSON file holding a list of DOI strings, e.g.
// ["10.0000/abc", "10.0000/123"].
func LoadDOIs(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load DOIs: %w", err)
	}
	var dois []string
	if err := json.Unmarshal(data, &dois); err != nil {
		return nil, fmt.Errorf("load DOIs %s: %w", path, err)
	}
	return dois, nil
}

// Filter is the keep rule for one dataset. It satisfies
// engine.RecordPredicate.
type Filter struct {
	dataset Dataset
	rors    map[string]struct{}
	names   map[string]struct{}
	dois    map[string]struct{}
}

// NewFilter builds the match sets for a dataset. Record-side identifiers
// are reduced to bare lowercase form before lookup, so the configured ROR
// IDs must already be bare and lowercase. Names match case-insensitively.
// DOIs are compared against each dataset's own DOI field as stored, except
// OpenAlex, whose DOI column is a URL and is reduced to a bare lowercase
// DOI first.
func NewFilter(dataset Dataset, institutions []Institution, dois []string) *Filter {
	f := &Filter{
		dataset: dataset,
		rors:    make(map[string]struct{}),
		names:   make(map[string]struct{}),
		dois:    make(map[string]struct{}),
	}
	for _, inst := range institutions {
		if inst.ROR != "" {
			f.rors[inst.ROR] = struct{}{}
		}
		if name := normalizeName(inst.Name); name != "" {
			f.names[name] = struct{}{}
		}
	}
	for _, doi := range dois {
		if doi = strings.TrimSpace(doi); doi != "" {
			f.dois[doi] = struct{}{}
		}
	}
	return f
}

// Keep reports whether the record belongs in the subset.
func (f *Filter) Keep(rec jsonl.Record) bool {
	switch f.dataset {
	case OpenAlexWorks:
		return f.keepOpenAlexWork(rec)
	case DataCite:
		return f.keepDataCiteRecord(rec)
	case CrossrefMetadata:
		return f.keepCrossrefWork(rec)
	}
	return false
}

func (f *Filter) keepOpenAlexWork(rec jsonl.Record) bool {
	if s, ok := stringValue(rec.Get("doi")); ok {
		if doi, ok := fields.ExtractDOI(s); ok {
			if _, hit := f.dois[doi]; hit {
				return true
			}
		}
	}
	keep := false
	eachElement(rec.Get("authorships"), func(authorship gjson.Result) bool {
		eachElement(authorship.Get("institutions"), func(inst gjson.Result) bool {
			if f.matchInstitution(inst.Get("ror"), inst.Get("display_name")) {
				keep = true
			}
			return !keep
		})
		return !keep
	})
	return keep
}

func (f *Filter) keepDataCiteRecord(rec jsonl.Record) bool {
	if s, ok := stringValue(rec.Get("id")); ok {
		if _, hit := f.dois[s]; hit {
			return true
		}
	}
	keep := false
	eachElement(rec.Get("attributes.creators"), func(creator gjson.Result) bool {
		eachAffiliation(creator.Get("affiliation"), func(aff gjson.Result) bool {
			if f.matchInstitution(aff.Get("affiliationIdentifier"), aff.Get("name")) {
				keep = true
			}
			return !keep
		})
		return !keep
	})
	return keep
}

func (f *Filter) keepCrossrefWork(rec jsonl.Record) bool {
	if s, ok := stringValue(rec.Get("DOI")); ok {
		if _, hit := f.dois[s]; hit {
			return true
		}
	}
	keep := false
	eachElement(rec.Get("author"), func(author gjson.Result) bool {
		eachElement(author.Get("affiliation"), func(aff gjson.Result) bool {
			if s, ok := stringValue(aff.Get("name")); ok {
				if _, hit := f.names[normalizeName(s)]; hit {
					keep = true
					return false
				}
			}
			// Crossref nests identifiers one level deeper than the other
			// datasets, as a list of {id, id-type, asserted-by} structs.
			eachElement(aff.Get("id"), func(id gjson.Result) bool {
				if s, ok := stringValue(id.Get("id")); ok {
					if _, hit := f.rors[normalizeIdentifier(s)]; hit {
						keep = true
					}
				}
				return !keep
			})
			return !keep
		})
		return !keep
	})
	return keep
}

func (f *Filter) matchInstitution(identifier, name gjson.Result) bool {
	if s, ok := stringValue(identifier); ok {
		if _, hit := f.rors[normalizeIdentifier(s)]; hit {
			return true
		}
	}
	if s, ok := stringValue(name); ok {
		if _, hit := f.names[normalizeName(s)]; hit {
			return true
		}
	}
	return false
}

// urlPrefix matches a leading scheme and host, the shape of ROR URL forms
// such as "https://ror.org/0168r3w48".
var urlPrefix = regexp.MustCompile(`(?i)^https?://[^/]+/`)

// normalizeIdentifier reduces a URL identifier form to a bare lowercase ID.
func normalizeIdentifier(s string) string {
	return strings.ToLower(urlPrefix.ReplaceAllString(strings.TrimSpace(s), ""))
}

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// stringValue returns the value of a JSON string. Fields holding other
// types never match anything; they do not error.
func stringValue(v gjson.Result) (string, bool) {
	if v.Type == gjson.String {
		return v.Str, true
	}
	return "", false
}

// eachElement iterates the elements of a JSON array. Non-arrays yield
// nothing.
func eachElement(v gjson.Result, fn func(el gjson.Result) bool) {
	if !v.IsArray() {
		return
	}
	v.ForEach(func(_, el gjson.Result) bool { return fn(el) })
}

// eachAffiliation tolerates DataCite affiliation fields holding either a
// single object or an array of objects; both shapes occur in releases.
func eachAffiliation(v gjson.Result, fn func(el gjson.Result) bool) {
	if v.IsObject() {
		fn(v)
		return
	}
	eachElement(v, fn)
}

// EnsureEmptyDir verifies that dir exists and holds nothing. Shards from a
// previous run would otherwise be mixed with or clobbered by the new one.
func EnsureEmptyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	if len(entries) > 0 {
		return fmt.Errorf("output directory is not empty: %s", dir)
	}
	return nil
}
