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

package subset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmpworks/corpusrunner/internal/jsonl"
)

func record(t *testing.T, line string) jsonl.Record {
	t.Helper()
	return jsonl.Record{Line: []byte(line)}
}

var testInstitutions = []Institution{
	{Name: "University of California, San Diego", ROR: "0168r3w48"},
	{Name: "Institute of Art"},
	{ROR: "02t274463"},
}

func TestParseDataset(t *testing.T) {
	for _, d := range Datasets() {
		parsed, err := ParseDataset(string(d))
		require.NoError(t, err)
		assert.Equal(t, d, parsed)
	}

	_, err := ParseDataset("openalex")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openalex-works")
}

func TestFilePattern(t *testing.T) {
	assert.Equal(t, "**/*.gz", OpenAlexWorks.FilePattern())
	assert.Equal(t, "**/*jsonl.gz", DataCite.FilePattern())
	assert.Equal(t, "*.jsonl.gz", CrossrefMetadata.FilePattern())
}

func TestLoadInstitutions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "institutions.json")
	data := `[
		{"name": "University of Science", "ror": "01234"},
		{"name": "Institute of Art", "ror": null},
		{"ror": "56789", "country": "ignored"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	institutions, err := LoadInstitutions(path)
	require.NoError(t, err)
	require.Len(t, institutions, 3)
	assert.Equal(t, Institution{Name: "University of Science", ROR: "01234"}, institutions[0])
	assert.Equal(t, Institution{Name: "Institute of Art"}, institutions[1])
	assert.Equal(t, Institution{ROR: "56789"}, institutions[2])
}

func TestLoadInstitutionsErrors(t *testing.T) {
	_, err := LoadInstitutions(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "institutions.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"name": "not a list"}`), 0o644))
	_, err = LoadInstitutions(path)
	require.Error(t, err)
}

func TestLoadDOIs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dois.json")
	require.NoError(t, os.WriteFile(path, []byte(`["10.1234/example.1", "10.5678/example.2"]`), 0o644))

	dois, err := LoadDOIs(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.1234/example.1", "10.5678/example.2"}, dois)

	require.NoError(t, os.WriteFile(path, []byte(`[{"doi": "10.1/x"}]`), 0o644))
	_, err = LoadDOIs(path)
	require.Error(t, err)
}

func TestFilterOpenAlexWorks(t *testing.T) {
	f := NewFilter(OpenAlexWorks, testInstitutions, []string{"10.1234/included", " 10.9999/spaced "})

	tests := []struct {
		name string
		line string
		keep bool
	}{
		{
			"doi on the include list",
			`{"doi": "https://doi.org/10.1234/INCLUDED", "authorships": []}`,
			true,
		},
		{
			"include list entries are trimmed",
			`{"doi": "https://doi.org/10.9999/spaced"}`,
			true,
		},
		{
			"ror url form matches a bare configured id",
			`{"doi": null, "authorships": [{"institutions": [{"ror": "https://ror.org/0168R3W48", "display_name": "UCSD"}]}]}`,
			true,
		},
		{
			"display name matches case-insensitively",
			`{"authorships": [{"institutions": [{"display_name": "INSTITUTE OF ART"}]}]}`,
			true,
		},
		{
			"second authorship still checked",
			`{"authorships": [{"institutions": []}, {"institutions": [{"ror": "02t274463"}]}]}`,
			true,
		},
		{
			"unrelated work",
			`{"doi": "https://doi.org/10.5555/other", "authorships": [{"institutions": [{"ror": "https://ror.org/zzzzzzzzz", "display_name": "Elsewhere College"}]}]}`,
			false,
		},
		{
			"no authorships",
			`{"doi": "https://doi.org/10.5555/other"}`,
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.keep, f.Keep(record(t, tt.line)))
		})
	}
}

func TestFilterDataCite(t *testing.T) {
	f := NewFilter(DataCite, testInstitutions, []string{"10.1234/included"})

	tests := []struct {
		name string
		line string
		keep bool
	}{
		{
			"doi field matches as stored",
			`{"id": "10.1234/included", "attributes": {"creators": []}}`,
			true,
		},
		{
			"doi matching is exact, not normalized",
			`{"id": "https://doi.org/10.1234/included", "attributes": {"creators": []}}`,
			false,
		},
		{
			"affiliation identifier url form",
			`{"id": "10.5/x", "attributes": {"creators": [{"affiliation": [{"affiliationIdentifier": "https://ror.org/0168r3w48"}]}]}}`,
			true,
		},
		{
			"affiliation as a bare object",
			`{"id": "10.5/x", "attributes": {"creators": [{"affiliation": {"name": "Institute of Art"}}]}}`,
			true,
		},
		{
			"affiliation name mismatch",
			`{"id": "10.5/x", "attributes": {"creators": [{"affiliation": [{"name": "Elsewhere College"}]}]}}`,
			false,
		},
		{
			"no creators",
			`{"id": "10.5/x"}`,
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.keep, f.Keep(record(t, tt.line)))
		})
	}
}

func TestFilterCrossrefMetadata(t *testing.T) {
	f := NewFilter(CrossrefMetadata, testInstitutions, []string{"10.1234/included"})

	tests := []struct {
		name string
		line string
		keep bool
	}{
		{
			"doi field matches as stored",
			`{"DOI": "10.1234/included"}`,
			true,
		},
		{
			"affiliation name matches case-insensitively",
			`{"DOI": "10.5/x", "author": [{"affiliation": [{"name": "institute of art"}]}]}`,
			true,
		},
		{
			"nested affiliation id struct carries the ror",
			`{"DOI": "10.5/x", "author": [{"affiliation": [{"name": "UCSD", "id": [{"id": "https://ror.org/0168r3w48", "id-type": "ROR", "asserted-by": "publisher"}]}]}]}`,
			true,
		},
		{
			"second author still checked",
			`{"DOI": "10.5/x", "author": [{"family": "Doe"}, {"affiliation": [{"id": [{"id": "02t274463"}]}]}]}`,
			true,
		},
		{
			"unrelated work",
			`{"DOI": "10.5/x", "author": [{"affiliation": [{"name": "Elsewhere College", "id": [{"id": "https://ror.org/zzzzzzzzz"}]}]}]}`,
			false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.keep, f.Keep(record(t, tt.line)))
		})
	}
}

func TestFilterIgnoresNonStringValues(t *testing.T) {
	f := NewFilter(OpenAlexWorks, testInstitutions, []string{"10.1234/included"})
	rec := record(t, `{"doi": 42, "authorships": [{"institutions": [{"ror": 7, "display_name": ["not", "a", "string"]}]}]}`)
	assert.False(t, f.Keep(rec))
}

func TestNewFilterSkipsEmptyEntries(t *testing.T) {
	f := NewFilter(OpenAlexWorks, []Institution{{Name: "   "}, {}}, []string{"", "   "})
	assert.Empty(t, f.rors)
	assert.Empty(t, f.names)
	assert.Empty(t, f.dois)

	rec := record(t, `{"authorships": [{"institutions": [{"ror": "", "display_name": ""}]}]}`)
	assert.False(t, f.Keep(rec))
}

func TestEnsureEmptyDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, EnsureEmptyDir(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "part_001.jsonl.gz"), []byte("x"), 0o644))
	err := EnsureEmptyDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not empty")

	require.Error(t, EnsureEmptyDir(filepath.Join(dir, "missing")))
}
