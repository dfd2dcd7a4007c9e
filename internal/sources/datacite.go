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
	"github.com/dmpworks/corpusrunner/internal/names"
	"github.com/dmpworks/corpusrunner/internal/parquetwriter"
)

// abstractSentinels are DataCite description values that mean "no
// abstract" and are stored as nulls.
var abstractSentinels = []string{":unav", "Cover title."}

// DataCiteSchema is the output layout for DataCite DOI records.
var DataCiteSchema = parquetwriter.MustSchema("datacite",
	parquetwriter.Field("doi", parquetwriter.String(), false),
	parquetwriter.Field("title", parquetwriter.String(), true),
	parquetwriter.Field("abstract", parquetwriter.String(), true),
	parquetwriter.Field("work_type", parquetwriter.String(), true),
	parquetwriter.Field("publication_date", parquetwriter.Date(), true),
	parquetwriter.Field("updated_date", parquetwriter.Timestamp(), true),
	parquetwriter.Field("publication_venue", parquetwriter.String(), true),
	parquetwriter.Field("authors", parquetwriter.ListOf(authorType()), false),
	parquetwriter.Field("institutions", parquetwriter.ListOf(parquetwriter.StructOf(
		parquetwriter.Field("affiliation_identifier", parquetwriter.String(), true),
		parquetwriter.Field("affiliation_identifier_scheme", parquetwriter.String(), true),
		parquetwriter.Field("name", parquetwriter.String(), true),
		parquetwriter.Field("scheme_uri", parquetwriter.String(), true),
	)), false),
	parquetwriter.Field("funders", parquetwriter.ListOf(parquetwriter.StructOf(
		parquetwriter.Field("funder_identifier", parquetwriter.String(), true),
		parquetwriter.Field("funder_identifier_type", parquetwriter.String(), true),
		parquetwriter.Field("funder_name", parquetwriter.String(), true),
		parquetwriter.Field("award_number", parquetwriter.String(), true),
		parquetwriter.Field("award_uri", parquetwriter.String(), true),
	)), false),
	parquetwriter.Field("relations", parquetwriter.ListOf(parquetwriter.StructOf(
		parquetwriter.Field("relation_type", parquetwriter.String(), true),
		parquetwriter.Field("related_identifier", parquetwriter.String(), true),
		parquetwriter.Field("related_identifier_type", parquetwriter.String(), true),
	)), false),
)

// DataCite returns the DataCite source descriptor.
func DataCite() Source {
	return Source{
		Name:        "datacite",
		Title:       "DataCite",
		Schema:      DataCiteSchema,
		FilePattern: "**/*.jsonl.gz",
		FilePrefix:  "datacite_",
		Transform:   TransformDataCite,
	}
}

// TransformDataCite maps one DataCite DOI record to an output row. Authors
// and institutions come from Personal creators only; organizational
// creators carry no usable affiliation data.
func TransformDataCite(rec jsonl.Record) (parquetwriter.Row, error) {
	attrs := rec.Get("attributes")
	authors, institutions := dataciteCreators(attrs.Get("creators"))
	return parquetwriter.Row{
		"doi":               nullable(extractDOI(rec.Get("id"))),
		"title":             nullable(dataciteTitle(attrs.Get("titles"))),
		"abstract":          nullable(dataciteAbstract(attrs.Get("descriptions"))),
		"work_type":         nullable(text(attrs.Get("types.resourceTypeGeneral"))),
		"publication_date":  nullableTime(parseDate(attrs.Get("created"))),
		"updated_date":      nullableTime(parseDateTime(attrs.Get("updated"))),
		"publication_venue": nullable(text(attrs.Get("publisher.name"))),
		"authors":           authors,
		"institutions":      institutions,
		"funders":           dataciteFunders(attrs.Get("fundingReferences")),
		"relations":         dataciteRelations(attrs.Get("relatedIdentifiers")),
	}, nil
}

func dataciteTitle(titles gjson.Result) (title string, ok bool) {
	titles.ForEach(func(_, el gjson.Result) bool {
		s, present := text(el.Get("title"))
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

func dataciteAbstract(descriptions gjson.Result) (abstract string, ok bool) {
	descriptions.ForEach(func(_, el gjson.Result) bool {
		s, present := text(el.Get("description"))
		if !present {
			return true
		}
		if a, kept := markup.StripToNull(s, abstractSentinels...); kept {
			abstract, ok = a, true
			return false
		}
		return true
	})
	return abstract, ok
}

// dataciteCreators extracts authors and institutions from the creators that
// have nameType Personal. Both lists are deduplicated in first-seen order.
// Affiliation and nameIdentifiers fields sometimes hold a bare object
// instead of an array.
func dataciteCreators(creators gjson.Result) (authors, institutions []any) {
	al := newAuthorList()
	institutions = []any{}
	type instKey struct{ id, scheme, name, schemeURI string }
	seen := map[instKey]struct{}{}

	creators.ForEach(func(_, c gjson.Result) bool {
		if nameType, _ := text(c.Get("nameType")); nameType != "Personal" {
			return true
		}

		orcid := dataciteORCID(c.Get("nameIdentifiers"))
		given, _ := text(c.Get("givenName"))
		family, _ := text(c.Get("familyName"))
		full, _ := text(c.Get("name"))
		al.add(Author{ORCID: orcid, Name: names.FromParts(given, family, full)})

		forEachObject(c.Get("affiliation"), func(aff gjson.Result) bool {
			id, hasID := identifier(aff.Get("affiliationIdentifier"))
			scheme, hasScheme := text(aff.Get("affiliationIdentifierScheme"))
			name, hasName := text(aff.Get("name"))
			schemeURI, hasURI := text(aff.Get("schemeUri"))
			if id == "" && scheme == "" && name == "" && schemeURI == "" {
				return true
			}
			key := instKey{id: id, scheme: scheme, name: name, schemeURI: schemeURI}
			if _, dup := seen[key]; dup {
				return true
			}
			seen[key] = struct{}{}
			institutions = append(institutions, map[string]any{
				"affiliation_identifier":        nullable(id, hasID),
				"affiliation_identifier_scheme": nullable(scheme, hasScheme),
				"name":                          nullable(name, hasName),
				"scheme_uri":                    nullable(schemeURI, hasURI),
			})
			return true
		})
		return true
	})
	return al.rows, institutions
}

// dataciteORCID returns the first name identifier that parses as an ORCID.
func dataciteORCID(nameIdentifiers gjson.Result) string {
	var orcid string
	forEachObject(nameIdentifiers, func(obj gjson.Result) bool {
		if id, ok := extractORCID(obj.Get("nameIdentifier")); ok {
			orcid = id
			return false
		}
		return true
	})
	return orcid
}

// dataciteFunders flattens funding references into one entry per award
// number. Like Crossref, a reference without an awardNumber value yields no
// entries; comma separated award numbers are split apart.
func dataciteFunders(refs gjson.Result) []any {
	out := []any{}
	refs.ForEach(func(_, ref gjson.Result) bool {
		funderID, hasFunderID := identifier(ref.Get("funderIdentifier"))
		idType, hasIDType := text(ref.Get("funderIdentifierType"))
		name, hasName := text(ref.Get("funderName"))
		awardURI, hasURI := text(ref.Get("awardUri"))
		awards, hasAwards := text(ref.Get("awardNumber"))
		if !hasAwards {
			return true
		}
		for _, part := range strings.Split(awards, ",") {
			award, hasAward := fields.Clean(part)
			if funderID == "" && idType == "" && name == "" && award == "" && awardURI == "" {
				continue
			}
			out = append(out, map[string]any{
				"funder_identifier":      nullable(funderID, hasFunderID),
				"funder_identifier_type": nullable(idType, hasIDType),
				"funder_name":            nullable(name, hasName),
				"award_number":           nullable(award, hasAward),
				"award_uri":              nullable(awardURI, hasURI),
			})
		}
		return true
	})
	return out
}

// dataciteRelations maps relatedIdentifiers. Identifiers that contain a DOI
// are reduced to the bare DOI and their type forced to "DOI", whatever the
// record claimed.
func dataciteRelations(relatedIdentifiers gjson.Result) []any {
	out := []any{}
	relatedIdentifiers.ForEach(func(_, rel gjson.Result) bool {
		relType, hasRelType := text(rel.Get("relationType"))
		rawID, _ := text(rel.Get("relatedIdentifier"))
		idType, hasIDType := text(rel.Get("relatedIdentifierType"))

		relID, hasRelID := fields.ExtractDOI(rawID)
		if hasRelID {
			idType, hasIDType = "DOI", true
		} else {
			relID, hasRelID = fields.NormalizeIdentifier(rawID)
		}

		if relType == "" && relID == "" && idType == "" {
			return true
		}
		out = append(out, map[string]any{
			"relation_type":           nullable(relType, hasRelType),
			"related_identifier":      nullable(relID, hasRelID),
			"related_identifier_type": nullable(idType, hasIDType),
		})
		return true
	})
	return out
}
