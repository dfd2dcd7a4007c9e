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

// Package sources defines the supported corpora and their record
// transformers: Crossref Metadata, DataCite, OpenAlex Works and DMPs. Each
// source contributes an output schema, a file pattern that discovers its
// input files, and a transform from raw JSON records to schema rows.
//
// The transforms share a small vocabulary: scalar JSON fields are read
// through text, absent values travel as empty strings with a false flag,
// and rows store absent columns as nil. List entries are appended only when
// at least one of their members is set, and entry order always follows
// document order (or an explicit sort, for DMPs).
package sources

import (
	"time"

	"github.com/tidwall/gjson"

	"github.com/dmpworks/corpusrunner/internal/engine"
	"github.com/dmpworks/corpusrunner/internal/fields"
	"github.com/dmpworks/corpusrunner/internal/markup"
	"github.com/dmpworks/corpusrunner/internal/names"
	"github.com/dmpworks/corpusrunner/internal/parquetwriter"
)

// Source describes one supported corpus.
type Source struct {
	// Name is the CLI-facing dataset name, e.g. "crossref-metadata".
	Name string

	// Title is the human readable corpus name, e.g. "Crossref Metadata".
	Title string

	// Schema is the Parquet output schema.
	Schema *parquetwriter.Schema

	// FilePattern selects the source files below the input directory.
	FilePattern string

	// FilePrefix is prepended to every output file name.
	FilePrefix string

	// Transform maps one raw record to an output row.
	Transform engine.TransformerFunc
}

// All returns every supported source in display order.
func All() []Source {
	return []Source{Crossref(), DataCite(), OpenAlexWorks(), DMPs()}
}

// text returns the value of a scalar JSON field as a string. Missing
// fields, JSON nulls, arrays and objects report false. Numbers and booleans
// are rendered from their literals, because identifier fields occasionally
// arrive as bare numbers.
func text(v gjson.Result) (string, bool) {
	switch v.Type {
	case gjson.String:
		return v.Str, true
	case gjson.Number, gjson.True, gjson.False:
		return v.Raw, true
	}
	return "", false
}

// clean is text followed by whitespace trimming.
func clean(v gjson.Result) (string, bool) {
	s, ok := text(v)
	if !ok {
		return "", false
	}
	return fields.Clean(s)
}

func extractDOI(v gjson.Result) (string, bool) {
	s, ok := text(v)
	if !ok {
		return "", false
	}
	return fields.ExtractDOI(s)
}

func extractROR(v gjson.Result) (string, bool) {
	s, ok := text(v)
	if !ok {
		return "", false
	}
	return fields.ExtractROR(s)
}

func extractORCID(v gjson.Result) (string, bool) {
	s, ok := text(v)
	if !ok {
		return "", false
	}
	return fields.ExtractORCID(s)
}

func identifier(v gjson.Result) (string, bool) {
	s, ok := text(v)
	if !ok {
		return "", false
	}
	return fields.NormalizeIdentifier(s)
}

func parseDate(v gjson.Result) (time.Time, bool) {
	s, ok := text(v)
	if !ok {
		return time.Time{}, false
	}
	return fields.ParseDate(s)
}

func parseDateTime(v gjson.Result) (time.Time, bool) {
	s, ok := text(v)
	if !ok {
		return time.Time{}, false
	}
	return fields.ParseDateTime(s)
}

// stripped returns the markup-stripped value of a scalar JSON field.
// Values that are empty after stripping, or that equal one of nullValues,
// report false.
func stripped(v gjson.Result, nullValues ...string) (string, bool) {
	s, ok := text(v)
	if !ok {
		return "", false
	}
	return markup.StripToNull(s, nullValues...)
}

// nullable converts a (value, ok) pair into a column value, mapping absent
// to nil. It composes directly with the two-result helpers above:
// nullable(text(v)), nullable(extractDOI(v)) and so on.
func nullable(s string, ok bool) any {
	if !ok {
		return nil
	}
	return s
}

// nullableTime is nullable for date and timestamp columns.
func nullableTime(t time.Time, ok bool) any {
	if !ok {
		return nil
	}
	return t
}

// forEachObject iterates a field that should hold an array of objects but
// sometimes holds a bare object, which is treated as a one-element array.
// fn returning false stops the iteration.
func forEachObject(v gjson.Result, fn func(obj gjson.Result) bool) {
	if v.IsObject() {
		fn(v)
		return
	}
	if v.IsArray() {
		v.ForEach(func(_, el gjson.Result) bool {
			return fn(el)
		})
	}
}

// Author is one parsed author entry. The struct doubles as the
// deduplication key: two authors are the same entry when every part
// matches.
type Author struct {
	ORCID string
	Name  names.Name
}

func (a Author) isZero() bool {
	return a.ORCID == "" && a.Name.IsZero()
}

func (a Author) row() map[string]any {
	n := a.Name
	return map[string]any{
		"orcid":           nullable(a.ORCID, a.ORCID != ""),
		"first_initial":   nullable(n.FirstInitial, n.FirstInitial != ""),
		"given_name":      nullable(n.GivenName, n.GivenName != ""),
		"middle_initials": nullable(n.MiddleInitials, n.MiddleInitials != ""),
		"middle_names":    nullable(n.MiddleNames, n.MiddleNames != ""),
		"surname":         nullable(n.Surname, n.Surname != ""),
		"full":            nullable(n.Full, n.Full != ""),
	}
}

// authorType is the author struct layout shared by every schema with an
// authors column.
func authorType() parquetwriter.Type {
	return parquetwriter.StructOf(
		parquetwriter.Field("orcid", parquetwriter.String(), true),
		parquetwriter.Field("first_initial", parquetwriter.String(), true),
		parquetwriter.Field("given_name", parquetwriter.String(), true),
		parquetwriter.Field("middle_initials", parquetwriter.String(), true),
		parquetwriter.Field("middle_names", parquetwriter.String(), true),
		parquetwriter.Field("surname", parquetwriter.String(), true),
		parquetwriter.Field("full", parquetwriter.String(), true),
	)
}

// authorList collects deduplicated author rows in first-seen order.
type authorList struct {
	rows []any
	seen map[Author]struct{}
}

func newAuthorList() *authorList {
	return &authorList{rows: []any{}, seen: map[Author]struct{}{}}
}

// add appends the author unless it is empty or a duplicate.
func (l *authorList) add(a Author) {
	if a.isZero() {
		return
	}
	if _, dup := l.seen[a]; dup {
		return
	}
	l.seen[a] = struct{}{}
	l.rows = append(l.rows, a.row())
}
