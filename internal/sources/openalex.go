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
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dmpworks/corpusrunner/internal/fields"
	"github.com/dmpworks/corpusrunner/internal/jsonl"
	"github.com/dmpworks/corpusrunner/internal/names"
	"github.com/dmpworks/corpusrunner/internal/parquetwriter"
)

// OpenAlexWorksSchema is the output layout for OpenAlex work records.
var OpenAlexWorksSchema = parquetwriter.MustSchema("openalex_works",
	parquetwriter.Field("id", parquetwriter.String(), false),
	parquetwriter.Field("doi", parquetwriter.String(), false),
	parquetwriter.Field("is_xpac", parquetwriter.Bool(), false),
	parquetwriter.Field("ids", parquetwriter.StructOf(
		parquetwriter.Field("doi", parquetwriter.String(), true),
		parquetwriter.Field("mag", parquetwriter.String(), true),
		parquetwriter.Field("openalex", parquetwriter.String(), true),
		parquetwriter.Field("pmid", parquetwriter.String(), true),
		parquetwriter.Field("pmcid", parquetwriter.String(), true),
	), false),
	parquetwriter.Field("title", parquetwriter.String(), true),
	parquetwriter.Field("abstract", parquetwriter.String(), true),
	parquetwriter.Field("work_type", parquetwriter.String(), true),
	parquetwriter.Field("publication_date", parquetwriter.Date(), true),
	parquetwriter.Field("updated_date", parquetwriter.Timestamp(), true),
	parquetwriter.Field("publication_venue", parquetwriter.String(), true),
	parquetwriter.Field("authors", parquetwriter.ListOf(authorType()), false),
	parquetwriter.Field("institutions", parquetwriter.ListOf(parquetwriter.StructOf(
		parquetwriter.Field("name", parquetwriter.String(), true),
		parquetwriter.Field("ror", parquetwriter.String(), true),
	)), false),
	parquetwriter.Field("funders", parquetwriter.ListOf(parquetwriter.StructOf(
		parquetwriter.Field("id", parquetwriter.String(), true),
		parquetwriter.Field("display_name", parquetwriter.String(), true),
		parquetwriter.Field("ror", parquetwriter.String(), true),
	)), false),
	parquetwriter.Field("awards", parquetwriter.ListOf(parquetwriter.StructOf(
		parquetwriter.Field("id", parquetwriter.String(), true),
		parquetwriter.Field("display_name", parquetwriter.String(), true),
		parquetwriter.Field("funder_award_id", parquetwriter.String(), true),
		parquetwriter.Field("funder_id", parquetwriter.String(), true),
		parquetwriter.Field("funder_display_name", parquetwriter.String(), true),
		parquetwriter.Field("doi", parquetwriter.String(), true),
	)), false),
)

// OpenAlexWorks returns the OpenAlex Works source descriptor. OpenAlex
// snapshots nest files under per-date directories with bare .gz names, so
// the pattern is wider than the other sources'.
func OpenAlexWorks() Source {
	return Source{
		Name:        "openalex-works",
		Title:       "OpenAlex Works",
		Schema:      OpenAlexWorksSchema,
		FilePattern: "**/*.gz",
		FilePrefix:  "openalex_works_",
		Transform:   TransformOpenAlexWorks,
	}
}

// TransformOpenAlexWorks maps one OpenAlex work to an output row. Works
// without a resolvable DOI and xPAC works are dropped, not failed; OpenAlex
// carries far more DOI-less records than the other sources and they are of
// no use downstream.
func TransformOpenAlexWorks(rec jsonl.Record) (parquetwriter.Row, error) {
	workDOI, hasDOI := extractDOI(rec.Get("doi"))
	isXPAC := rec.Get("is_xpac")
	if !hasDOI || isXPAC.Bool() {
		return nil, nil
	}

	authors, institutions := openalexAuthorships(rec.Get("authorships"))
	return parquetwriter.Row{
		"id":                nullable(identifier(rec.Get("id"))),
		"doi":               workDOI,
		"is_xpac":           openalexBool(isXPAC),
		"ids":               openalexIDs(rec.Get("ids")),
		"title":             nullable(stripped(rec.Get("title"))),
		"abstract":          nullable(revertInvertedIndex(rec.Get("abstract_inverted_index"))),
		"work_type":         nullable(text(rec.Get("type"))),
		"publication_date":  nullableTime(parseDate(rec.Get("publication_date"))),
		"updated_date":      nullableTime(parseDateTime(rec.Get("updated_date"))),
		"publication_venue": nullable(text(rec.Get("primary_location.source.display_name"))),
		"authors":           authors,
		"institutions":      institutions,
		"funders":           openalexFunders(rec.Get("funders")),
		"awards":            openalexAwards(rec.Get("awards")),
	}, nil
}

// openalexBool keeps real JSON booleans and maps everything else to nil, so
// records missing the flag fail schema validation instead of being guessed
// at.
func openalexBool(v gjson.Result) any {
	switch v.Type {
	case gjson.True, gjson.False:
		return v.Bool()
	}
	return nil
}

func openalexIDs(ids gjson.Result) map[string]any {
	return map[string]any{
		"doi":      nullable(extractDOI(ids.Get("doi"))),
		"mag":      nullable(identifier(ids.Get("mag"))),
		"openalex": nullable(identifier(ids.Get("openalex"))),
		"pmid":     nullable(identifier(ids.Get("pmid"))),
		"pmcid":    nullable(identifier(ids.Get("pmcid"))),
	}
}

// openalexAuthorships extracts authors and their institutions from the
// authorships array, deduplicating both in first-seen order.
func openalexAuthorships(authorships gjson.Result) (authors, institutions []any) {
	al := newAuthorList()
	institutions = []any{}
	type instKey struct{ name, ror string }
	seen := map[instKey]struct{}{}

	authorships.ForEach(func(_, a gjson.Result) bool {
		orcid, _ := extractORCID(a.Get("author.orcid"))
		full, _ := text(a.Get("author.display_name"))
		al.add(Author{ORCID: orcid, Name: names.Parse(full)})

		a.Get("institutions").ForEach(func(_, inst gjson.Result) bool {
			name, hasName := text(inst.Get("display_name"))
			ror, hasROR := identifier(inst.Get("ror"))
			if name == "" && ror == "" {
				return true
			}
			key := instKey{name: name, ror: ror}
			if _, dup := seen[key]; dup {
				return true
			}
			seen[key] = struct{}{}
			institutions = append(institutions, map[string]any{
				"name": nullable(name, hasName),
				"ror":  nullable(ror, hasROR),
			})
			return true
		})
		return true
	})
	return al.rows, institutions
}

// openalexFunders maps the funders array. Entries are not deduplicated; a
// funder listed twice funded the work twice as far as the record says.
func openalexFunders(funders gjson.Result) []any {
	out := []any{}
	funders.ForEach(func(_, f gjson.Result) bool {
		id, hasID := identifier(f.Get("id"))
		name, hasName := clean(f.Get("display_name"))
		ror, hasROR := identifier(f.Get("ror"))
		if id == "" && name == "" && ror == "" {
			return true
		}
		out = append(out, map[string]any{
			"id":           nullable(id, hasID),
			"display_name": nullable(name, hasName),
			"ror":          nullable(ror, hasROR),
		})
		return true
	})
	return out
}

// openalexAwards flattens the awards array into one entry per comma
// separated grant ID, mirroring the funder handling of the other sources.
func openalexAwards(awards gjson.Result) []any {
	out := []any{}
	awards.ForEach(func(_, a gjson.Result) bool {
		id, hasID := identifier(a.Get("id"))
		name, hasName := clean(a.Get("display_name"))
		funderID, hasFunderID := identifier(a.Get("funder_id"))
		funderName, hasFunderName := clean(a.Get("funder_display_name"))
		awardDOI, hasDOI := extractDOI(a.Get("doi"))
		raw, hasRaw := text(a.Get("funder_award_id"))
		if !hasRaw {
			return true
		}
		for _, part := range strings.Split(raw, ",") {
			grantID, hasGrantID := fields.Clean(part)
			if id == "" && name == "" && grantID == "" && funderID == "" && funderName == "" && awardDOI == "" {
				continue
			}
			out = append(out, map[string]any{
				"id":                  nullable(id, hasID),
				"display_name":        nullable(name, hasName),
				"funder_award_id":     nullable(grantID, hasGrantID),
				"funder_id":           nullable(funderID, hasFunderID),
				"funder_display_name": nullable(funderName, hasFunderName),
				"doi":                 nullable(awardDOI, hasDOI),
			})
		}
		return true
	})
	return out
}

// revertInvertedIndex rebuilds abstract text from OpenAlex's inverted
// index, a map from word to the positions it occupies. Malformed indexes
// are logged and treated as no abstract. When two words claim the same
// position the lexicographically greater one wins, which keeps rebuilds
// deterministic across map iteration orders.
func revertInvertedIndex(v gjson.Result) (string, bool) {
	if !v.Exists() {
		return "", false
	}
	var index map[string][]uint32
	if err := json.Unmarshal([]byte(v.Raw), &index); err != nil {
		slog.Warn("invalid abstract inverted index", slog.Any("error", err))
		return "", false
	}

	var words []string
	for word, positions := range index {
		for _, pos := range positions {
			idx := int(pos)
			if len(words) <= idx {
				words = append(words, make([]string, idx+1-len(words))...)
			}
			if words[idx] == "" || word > words[idx] {
				words[idx] = word
			}
		}
	}

	present := make([]string, 0, len(words))
	for _, w := range words {
		if w != "" {
			present = append(present, w)
		}
	}
	if len(present) == 0 {
		return "", false
	}
	return fields.Clean(strings.Join(present, " "))
}
