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

package parquetwriter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSchema_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		schema  string
		fields  []FieldDef
		wantErr string
	}{
		{
			name:    "empty name",
			schema:  "",
			fields:  []FieldDef{Field("id", String(), false)},
			wantErr: "Name cannot be empty",
		},
		{
			name:    "no fields",
			schema:  "works",
			fields:  nil,
			wantErr: "Fields cannot be empty",
		},
		{
			name:    "unnamed field",
			schema:  "works",
			fields:  []FieldDef{Field("", String(), false)},
			wantErr: "field 0 has no name",
		},
		{
			name:   "duplicate field",
			schema: "works",
			fields: []FieldDef{
				Field("doi", String(), false),
				Field("doi", String(), true),
			},
			wantErr: `duplicate field "doi"`,
		},
		{
			name:    "list without element type",
			schema:  "works",
			fields:  []FieldDef{Field("ids", Type{Kind: KindList}, true)},
			wantErr: `list field "ids" has no element type`,
		},
		{
			name:    "struct without members",
			schema:  "works",
			fields:  []FieldDef{Field("author", StructOf(), true)},
			wantErr: `struct field "author" has no members`,
		},
		{
			name:   "struct with unnamed member",
			schema: "works",
			fields: []FieldDef{
				Field("author", StructOf(Field("", String(), true)), true),
			},
			wantErr: `struct field "author" has an unnamed member`,
		},
		{
			name:   "struct with duplicate member",
			schema: "works",
			fields: []FieldDef{
				Field("author", StructOf(
					Field("name", String(), true),
					Field("name", String(), true),
				), true),
			},
			wantErr: `duplicate member "name"`,
		},
		{
			name:   "nested list element invalid",
			schema: "works",
			fields: []FieldDef{
				Field("authors", ListOf(StructOf()), true),
			},
			wantErr: `struct field "authors[]" has no members`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSchema(tt.schema, tt.fields...)
			require.Error(t, err)
			assert.Nil(t, s)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMustSchema_PanicsOnInvalid(t *testing.T) {
	assert.Panics(t, func() {
		MustSchema("", Field("id", String(), false))
	})
}

func TestSchema_Fingerprint(t *testing.T) {
	a := MustSchema("works",
		Field("doi", String(), false),
		Field("title", String(), true),
		Field("year", Int64(), true),
	)
	// Declaration order must not affect the fingerprint.
	b := MustSchema("works",
		Field("year", Int64(), true),
		Field("title", String(), true),
		Field("doi", String(), false),
	)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	renamed := MustSchema("datasets",
		Field("doi", String(), false),
		Field("title", String(), true),
		Field("year", Int64(), true),
	)
	assert.NotEqual(t, a.Fingerprint(), renamed.Fingerprint())

	retyped := MustSchema("works",
		Field("doi", String(), false),
		Field("title", String(), true),
		Field("year", String(), true),
	)
	assert.NotEqual(t, a.Fingerprint(), retyped.Fingerprint())

	relaxed := MustSchema("works",
		Field("doi", String(), true),
		Field("title", String(), true),
		Field("year", Int64(), true),
	)
	assert.NotEqual(t, a.Fingerprint(), relaxed.Fingerprint())
}

func normalizeTestSchema(t *testing.T) *Schema {
	t.Helper()
	return MustSchema("works",
		Field("doi", String(), false),
		Field("title", String(), true),
		Field("cited_by", Int64(), true),
		Field("score", Float64(), true),
		Field("is_retracted", Bool(), true),
		Field("published", Date(), true),
		Field("updated", Timestamp(), true),
		Field("isbns", ListOf(String()), true),
		Field("authors", ListOf(StructOf(
			Field("name", String(), true),
			Field("orcid", String(), true),
		)), true),
	)
}

func TestSchema_NormalizeRow(t *testing.T) {
	s := normalizeTestSchema(t)

	t.Run("full row", func(t *testing.T) {
		out, err := s.NormalizeRow(Row{
			"doi":          "10.1234/abc",
			"title":        "On Things",
			"cited_by":     int64(12),
			"score":        0.5,
			"is_retracted": false,
			"published":    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			"updated":      time.Date(2024, 3, 1, 12, 30, 0, 0, time.FixedZone("EET", 2*3600)),
			"isbns":        []any{"978-3-16-148410-0"},
			"authors": []any{
				map[string]any{"name": "A. Author", "orcid": "0000-0001-2345-6789"},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "10.1234/abc", out["doi"])
		assert.Equal(t, int64(12), out["cited_by"])
		assert.Equal(t, int32(19783), out["published"], "epoch days for 2024-03-01")
		assert.Equal(t, int64(1709289000000000), out["updated"], "epoch micros, converted to UTC")
		assert.Equal(t, []any{"978-3-16-148410-0"}, out["isbns"])
		authors, ok := out["authors"].([]any)
		require.True(t, ok)
		require.Len(t, authors, 1)
		assert.Equal(t, map[string]any{"name": "A. Author", "orcid": "0000-0001-2345-6789"}, authors[0])
	})

	t.Run("dates beyond the duration range", func(t *testing.T) {
		// "9999" and similar literal years pass date parsing, so epoch
		// days must not be clamped by time.Duration saturation.
		out, err := s.NormalizeRow(Row{
			"doi":       "10.1/x",
			"published": time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		assert.Equal(t, int32(2932896), out["published"], "epoch days for 9999-12-31")

		out, err = s.NormalizeRow(Row{
			"doi":       "10.1/x",
			"published": time.Date(1, 1, 1, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		assert.Equal(t, int32(-719162), out["published"], "epoch days for 0001-01-01")
	})

	t.Run("nullable columns may be absent", func(t *testing.T) {
		out, err := s.NormalizeRow(Row{"doi": "10.1234/abc"})
		require.NoError(t, err)
		assert.Equal(t, "10.1234/abc", out["doi"])
		assert.Nil(t, out["title"])
		assert.Nil(t, out["authors"])
	})

	t.Run("required column missing", func(t *testing.T) {
		_, err := s.NormalizeRow(Row{"title": "No DOI"})
		require.ErrorIs(t, err, ErrSchemaViolation)
		assert.Contains(t, err.Error(), `column "doi" is required`)
	})

	t.Run("unknown column", func(t *testing.T) {
		_, err := s.NormalizeRow(Row{"doi": "10.1/x", "publisher": "ACME"})
		require.ErrorIs(t, err, ErrSchemaViolation)
		assert.Contains(t, err.Error(), `unexpected column "publisher"`)
	})

	t.Run("wrong scalar type", func(t *testing.T) {
		_, err := s.NormalizeRow(Row{"doi": 42})
		require.ErrorIs(t, err, ErrSchemaViolation)
		assert.Contains(t, err.Error(), `column "doi" expects string, got int`)
	})

	t.Run("int widens to int64 and float64", func(t *testing.T) {
		out, err := s.NormalizeRow(Row{"doi": "10.1/x", "cited_by": 7, "score": 3})
		require.NoError(t, err)
		assert.Equal(t, int64(7), out["cited_by"])
		assert.Equal(t, float64(3), out["score"])
	})

	t.Run("list rejects nil element", func(t *testing.T) {
		_, err := s.NormalizeRow(Row{"doi": "10.1/x", "isbns": []any{"a", nil}})
		require.ErrorIs(t, err, ErrSchemaViolation)
		assert.Contains(t, err.Error(), `column "isbns[1]" is required`)
	})

	t.Run("list rejects non-slice", func(t *testing.T) {
		_, err := s.NormalizeRow(Row{"doi": "10.1/x", "isbns": "not-a-list"})
		require.ErrorIs(t, err, ErrSchemaViolation)
		assert.Contains(t, err.Error(), `column "isbns" expects list`)
	})

	t.Run("struct member accepts Row", func(t *testing.T) {
		out, err := s.NormalizeRow(Row{
			"doi":     "10.1/x",
			"authors": []any{Row{"name": "B. Author"}},
		})
		require.NoError(t, err)
		authors := out["authors"].([]any)
		assert.Equal(t, map[string]any{"name": "B. Author", "orcid": nil}, authors[0])
	})

	t.Run("struct rejects unknown member", func(t *testing.T) {
		_, err := s.NormalizeRow(Row{
			"doi":     "10.1/x",
			"authors": []any{map[string]any{"name": "C", "email": "c@example.org"}},
		})
		require.ErrorIs(t, err, ErrSchemaViolation)
		assert.Contains(t, err.Error(), `unexpected member "email"`)
	})

	t.Run("timestamp rejects non-time", func(t *testing.T) {
		_, err := s.NormalizeRow(Row{"doi": "10.1/x", "updated": "2024-03-01"})
		require.ErrorIs(t, err, ErrSchemaViolation)
		assert.Contains(t, err.Error(), `column "updated" expects timestamp, got string`)
	})

	t.Run("input row is not modified", func(t *testing.T) {
		row := Row{"doi": "10.1/x", "published": time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)}
		_, err := s.NormalizeRow(row)
		require.NoError(t, err)
		_, isTime := row["published"].(time.Time)
		assert.True(t, isTime)
	})
}
