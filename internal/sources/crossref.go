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
	"strings"

	"github.com/tidwall/gjson"

	"github.com/dmpworks/corpusrunner/internal/fields"
	"github.com/dmpworks/corpusrunner/internal/jsonl"
	"github.com/dmpworks/corpusrunner/internal/markup"
	"github.com/dmpworks/corpusrunner/internal/parquetwriter"
)

// CrossrefSchema is the output layout for Crossref Metadata works, matching
// the public data file's record structure.
var CrossrefSchema = parquetwriter.MustSchema("crossref_metadata",
	parquetwriter.Field("doi", parquetwriter.String(), false),
	parquetwriter.Field("title", parquetwriter.String(), true),
	parquetwriter.Field("abstract", parquetwriter.String(), true),
	parquetwriter.Field("updated_date", parquetwriter.Timestamp(), true),
	parquetwriter.Field("funders", parquetwriter.ListOf(parquetwriter.StructOf(
		parquetwriter.Field("name", parquetwriter.String(), true),
		parquetwriter.Field("funder_doi", parquetwriter.String(), true),
		parquetwriter.Field("award", parquetwriter.String(), true),
	)), false),
	parquetwriter.Field("relations", parquetwriter.ListOf(parquetwriter.StructOf(
		parquetwriter.Field("relation_type", parquetwriter.String(), true),
		parquetwriter.Field("relation_id", parquetwriter.String(), true),
		parquetwriter.Field("id_type", parquetwriter.String(), true),
		parquetwriter.Field("asserted_by", parquetwriter.String(), true),
	)), false),
)

// Crossref returns the Crossref Metadata source descriptor.
func Crossref() Source {
	return Source{
		Name:        "crossref-metadata",
		Title:       "Crossref Metadata",
		Schema:      CrossrefSchema,
		FilePattern: "**/*.jsonl.gz",
		FilePrefix:  "crossref_metadata_",
		Transform:   TransformCrossref,
	}
}

// TransformCrossref maps one Crossref Metadata work to an output row. Every
// record produces a row; a record without a resolvable DOI fails schema
// validation downstream rather than being dropped silently.
func TransformCrossref(rec jsonl.Record) (parquetwriter.Row, error) {
	return parquetwriter.Row{
		"doi":          nullable(extractDOI(rec.Get("DOI"))),
		"title":        nullable(crossrefTitle(rec.Get("title"))),
		"abstract":     nullable(stripped(rec.Get("abstract"))),
		"updated_date": nullableTime(parseDateTime(rec.Get("deposited.date-time"))),
		"funders":      crossrefFunders(rec.Get("funder")),
		"relations":    crossrefRelations(rec.Get("relation")),
	}, nil
}

// crossrefTitle returns the first title entry that survives markup
// stripping. Crossref stores titles as an array; most works have one.
func crossrefTitle(titles gjson.Result) (title string, ok bool) {
	titles.ForEach(func(_, el gjson.Result) bool {
		s, present := text(el)
		if !present {
			return true
		}
		if t, kept := markup.StripToNull(s); kept {
			title, ok = t, true
			return false
		}
		return true
	})
	return title, ok
}

// crossrefFunders flattens the funder array into one entry per award. Award
// values may pack several grant numbers separated by commas, and a funder
// without any award value yields no entries at all.
func crossrefFunders(funders gjson.Result) []any {
	out := []any{}
	funders.ForEach(func(_, f gjson.Result) bool {
		funderDOI, hasDOI := extractDOI(f.Get("DOI"))
		name, hasName := text(f.Get("name"))
		f.Get("award").ForEach(func(_, el gjson.Result) bool {
			raw, present := text(el)
			if !present {
				return true
			}
			for _, part := range strings.Split(raw, ",") {
				award, hasAward := fields.Clean(part)
				if funderDOI == "" && name == "" && award == "" {
					continue
				}
				out = append(out, map[string]any{
					"name":       nullable(name, hasName),
					"funder_doi": nullable(funderDOI, hasDOI),
					"award":      nullable(award, hasAward),
				})
			}
			return true
		})
		return true
	})
	return out
}

// crossrefRelations flattens the relation map, whose keys are the relation
// types and whose values are arrays of relation targets. Document order is
// preserved.
func crossrefRelations(relations gjson.Result) []any {
	out := []any{}
	relations.ForEach(func(relType, targets gjson.Result) bool {
		targets.ForEach(func(_, rel gjson.Result) bool {
			relID, hasRelID := identifier(rel.Get("id"))
			idType, hasIDType := text(rel.Get("id-type"))
			assertedBy, hasAssertedBy := text(rel.Get("asserted-by"))
			if relType.Str == "" && relID == "" && idType == "" && assertedBy == "" {
				return true
			}
			out = append(out, map[string]any{
				"relation_type": relType.Str,
				"relation_id":   nullable(relID, hasRelID),
				"id_type":       nullable(idType, hasIDType),
				"asserted_by":   nullable(assertedBy, hasAssertedBy),
			})
			return true
		})
		return true
	})
	return out
}
