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

package engine

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dmpworks/corpusrunner/internal/jsonl"
	"github.com/dmpworks/corpusrunner/internal/parquetwriter"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func writeSourceFile(t *testing.T, path string, lines []string, compress bool) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	var w io.Writer = f
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(f)
		w = gz
	}
	for _, line := range lines {
		_, err := fmt.Fprintln(w, line)
		require.NoError(t, err)
	}
	if gz != nil {
		require.NoError(t, gz.Close())
	}
	require.NoError(t, f.Close())
}

// writeCorpus lays down numFiles gzip JSONL files of recordsPerFile records
// each, every record shaped {"id":"fNN-NNNN","n":N}.
func writeCorpus(t *testing.T, dir string, numFiles, recordsPerFile int) {
	t.Helper()
	for i := 0; i < numFiles; i++ {
		lines := make([]string, recordsPerFile)
		for n := 0; n < recordsPerFile; n++ {
			lines[n] = fmt.Sprintf(`{"id":"f%02d-%04d","n":%d}`, i, n, n)
		}
		name := fmt.Sprintf("chunk_%02d.jsonl.gz", i)
		writeSourceFile(t, filepath.Join(dir, name), lines, true)
	}
}

func recordSchema(t *testing.T) *parquetwriter.Schema {
	t.Helper()
	return parquetwriter.MustSchema("records",
		parquetwriter.Field("id", parquetwriter.String(), false),
		parquetwriter.Field("n", parquetwriter.Int64(), false),
	)
}

var keepAll = TransformerFunc(func(rec jsonl.Record) (parquetwriter.Row, error) {
	return parquetwriter.Row{"id": rec.Get("id").String(), "n": rec.Get("n").Int()}, nil
})

func countParquetRows(t *testing.T, dir string) int64 {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var total int64
	for _, e := range entries {
		require.True(t, strings.HasSuffix(e.Name(), ".parquet"), "unexpected artifact %s", e.Name())
		f, err := os.Open(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		stat, err := f.Stat()
		require.NoError(t, err)
		pf, err := parquet.OpenFile(f, stat.Size())
		require.NoError(t, err)
		total += pf.NumRows()
		require.NoError(t, f.Close())
	}
	return total
}

func TestTransform_EndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t)

	inDir := t.TempDir()
	outDir := t.TempDir()
	writeCorpus(t, inDir, 10, 100)

	// Multiples of ten are dropped, so each file keeps 90 of 100 records.
	dropTens := TransformerFunc(func(rec jsonl.Record) (parquetwriter.Row, error) {
		n := rec.Get("n").Int()
		if n%10 == 0 {
			return nil, nil
		}
		return parquetwriter.Row{"id": rec.Get("id").String(), "n": n}, nil
	})

	result, err := Transform(context.Background(), TransformConfig{
		InputDir:         inDir,
		FilePattern:      "*.jsonl.gz",
		OutputDir:        outDir,
		FilePrefix:       "records_",
		Schema:           recordSchema(t),
		Transformer:      dropTens,
		BatchSize:        3,
		RowGroupSize:     40,
		RowGroupsPerFile: 2,
		MaxWorkers:       4,
		ShuffleSeed:      42,
	})
	require.NoError(t, err)

	assert.Equal(t, 10, result.TotalFiles)
	assert.Equal(t, int64(10), result.FilesDone)
	assert.Equal(t, int64(900), result.RowsWritten)
	assert.Equal(t, int64(100), result.RowsDropped)
	assert.False(t, result.Aborted)
	assert.Zero(t, result.Failures)

	// Batches of sizes 3,3,3,1 keep 270,270,270,90 rows. At 40 rows per
	// group and 2 groups per file that is 4+4+4+2 output files.
	assert.Equal(t, 14, result.OutputFiles)
	assert.Equal(t, int64(900), countParquetRows(t, outDir))

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 14)
	for _, e := range entries {
		assert.Regexp(t, `^records_batch_0000[0-3]_part_0000[0-3]\.parquet$`, e.Name())
	}
}

func TestTransform_UncompressedInput(t *testing.T) {
	defer goleak.VerifyNone(t)

	inDir := t.TempDir()
	outDir := t.TempDir()
	writeSourceFile(t, filepath.Join(inDir, "plain.jsonl"),
		[]string{`{"id":"a","n":1}`, `{"id":"b","n":2}`}, false)

	result, err := Transform(context.Background(), TransformConfig{
		InputDir:         inDir,
		FilePattern:      "*.jsonl",
		OutputDir:        outDir,
		Schema:           recordSchema(t),
		Transformer:      keepAll,
		BatchSize:        1,
		RowGroupSize:     10,
		RowGroupsPerFile: 1,
		MaxWorkers:       1,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.RowsWritten)
	assert.Equal(t, int64(2), countParquetRows(t, outDir))
}

func TestTransform_AbortOnTransformerError(t *testing.T) {
	defer goleak.VerifyNone(t)

	inDir := t.TempDir()
	outDir := t.TempDir()
	writeCorpus(t, inDir, 1, 10)
	boom := errors.New("unparseable author block")

	failAtFive := TransformerFunc(func(rec jsonl.Record) (parquetwriter.Row, error) {
		n := rec.Get("n").Int()
		if n == 5 {
			return nil, boom
		}
		return parquetwriter.Row{"id": rec.Get("id").String(), "n": n}, nil
	})

	result, err := Transform(context.Background(), TransformConfig{
		InputDir:         inDir,
		FilePattern:      "*.jsonl.gz",
		OutputDir:        outDir,
		Schema:           recordSchema(t),
		Transformer:      failAtFive,
		BatchSize:        1,
		RowGroupSize:     2,
		RowGroupsPerFile: 2,
		MaxWorkers:       1,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "file ")
	assert.True(t, result.Aborted)
	assert.Equal(t, 1, result.Failures)
	assert.Zero(t, result.FilesDone, "the file never completed")
	assert.Equal(t, int64(1), result.FilesAbandoned())

	// Records 0..4 were read before the failure; the partial buffer is
	// drained on close, so all five rows reach disk.
	assert.Equal(t, int64(5), result.RowsWritten)
	assert.Equal(t, int64(5), countParquetRows(t, outDir))
}

func TestTransform_SchemaViolationAborts(t *testing.T) {
	defer goleak.VerifyNone(t)

	inDir := t.TempDir()
	outDir := t.TempDir()
	writeCorpus(t, inDir, 1, 10)

	badAtThree := TransformerFunc(func(rec jsonl.Record) (parquetwriter.Row, error) {
		n := rec.Get("n").Int()
		if n == 3 {
			return parquetwriter.Row{"id": rec.Get("id").String(), "n": "not-a-number"}, nil
		}
		return parquetwriter.Row{"id": rec.Get("id").String(), "n": n}, nil
	})

	result, err := Transform(context.Background(), TransformConfig{
		InputDir:         inDir,
		FilePattern:      "*.jsonl.gz",
		OutputDir:        outDir,
		Schema:           recordSchema(t),
		Transformer:      badAtThree,
		BatchSize:        1,
		RowGroupSize:     2,
		RowGroupsPerFile: 4,
		MaxWorkers:       1,
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, parquetwriter.ErrSchemaViolation)
	assert.True(t, result.Aborted)

	// The first row group was flushed before the bad row arrived and must
	// still be readable.
	assert.Equal(t, int64(2), result.RowsWritten)
	assert.Equal(t, int64(2), countParquetRows(t, outDir))
}

func TestTransform_NoMatchingFiles(t *testing.T) {
	_, err := Transform(context.Background(), TransformConfig{
		InputDir:         t.TempDir(),
		FilePattern:      "*.jsonl.gz",
		OutputDir:        t.TempDir(),
		Schema:           recordSchema(t),
		Transformer:      keepAll,
		BatchSize:        1,
		RowGroupSize:     1,
		RowGroupsPerFile: 1,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no files matching")
}

func TestTransformConfig_Validate(t *testing.T) {
	valid := TransformConfig{
		InputDir:         "/in",
		FilePattern:      "*.jsonl.gz",
		OutputDir:        "/out",
		Schema:           recordSchema(t),
		Transformer:      keepAll,
		BatchSize:        1,
		RowGroupSize:     1,
		RowGroupsPerFile: 1,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name    string
		mutate  func(c *TransformConfig)
		wantErr string
	}{
		{"empty input dir", func(c *TransformConfig) { c.InputDir = "" }, "InputDir cannot be empty"},
		{"empty pattern", func(c *TransformConfig) { c.FilePattern = "" }, "FilePattern cannot be empty"},
		{"empty output dir", func(c *TransformConfig) { c.OutputDir = "" }, "OutputDir cannot be empty"},
		{"nil schema", func(c *TransformConfig) { c.Schema = nil }, "Schema cannot be nil"},
		{"nil transformer", func(c *TransformConfig) { c.Transformer = nil }, "Transformer cannot be nil"},
		{"zero batch size", func(c *TransformConfig) { c.BatchSize = 0 }, "BatchSize must be at least 1"},
		{"zero row group size", func(c *TransformConfig) { c.RowGroupSize = 0 }, "RowGroupSize must be at least 1"},
		{"zero row groups per file", func(c *TransformConfig) { c.RowGroupsPerFile = 0 }, "RowGroupsPerFile must be at least 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			var cerr *ConfigError
			assert.ErrorAs(t, err, &cerr)
		})
	}
}
