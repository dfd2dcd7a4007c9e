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
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dmpworks/corpusrunner/internal/jsonl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// readShards returns the union of all shard lines in dir, counting how often
// each line occurs so tests can assert disjointness.
func readShards(t *testing.T, dir string) map[string]int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	lines := make(map[string]int)
	for _, e := range entries {
		require.Regexp(t, `^part_\d{3}\.jsonl\.gz$`, e.Name())
		f, err := os.Open(filepath.Join(dir, e.Name()))
		require.NoError(t, err)
		gz, err := gzip.NewReader(f)
		require.NoError(t, err)
		scanner := bufio.NewScanner(gz)
		for scanner.Scan() {
			lines[scanner.Text()]++
		}
		require.NoError(t, scanner.Err())
		require.NoError(t, gz.Close())
		require.NoError(t, f.Close())
	}
	return lines
}

var keepOdd = PredicateFunc(func(rec jsonl.Record) bool {
	return rec.Get("n").Int()%2 == 1
})

func TestFilter_ShardsAreDisjointAndComplete(t *testing.T) {
	defer goleak.VerifyNone(t)

	inDir := t.TempDir()
	outDir := t.TempDir()
	writeCorpus(t, inDir, 5, 20)

	result, err := Filter(context.Background(), FilterConfig{
		InputDir:    inDir,
		FilePattern: "*.jsonl.gz",
		OutputDir:   outDir,
		Predicate:   keepOdd,
		MaxWorkers:  3,
	})
	require.NoError(t, err)

	assert.Equal(t, 5, result.TotalFiles)
	assert.Equal(t, int64(5), result.FilesDone)
	assert.Equal(t, int64(50), result.LinesKept)
	assert.Zero(t, result.Errors)
	assert.False(t, result.Aborted)
	assert.NotEmpty(t, result.Shards)
	assert.LessOrEqual(t, len(result.Shards), 3)

	want := make(map[string]int)
	for i := 0; i < 5; i++ {
		for n := 1; n < 20; n += 2 {
			want[fmt.Sprintf(`{"id":"f%02d-%04d","n":%d}`, i, n, n)] = 1
		}
	}
	got := readShards(t, outDir)
	assert.Equal(t, want, got, "shards hold each kept line exactly once, byte for byte")
}

func TestFilter_AlwaysFalsePredicateLeavesNoShards(t *testing.T) {
	defer goleak.VerifyNone(t)

	inDir := t.TempDir()
	outDir := t.TempDir()
	writeCorpus(t, inDir, 3, 10)

	result, err := Filter(context.Background(), FilterConfig{
		InputDir:    inDir,
		FilePattern: "*.jsonl.gz",
		OutputDir:   outDir,
		Predicate:   PredicateFunc(func(jsonl.Record) bool { return false }),
		MaxWorkers:  2,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3), result.FilesDone)
	assert.Zero(t, result.LinesKept)
	assert.Zero(t, result.Errors)
	assert.Empty(t, result.Shards)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "a worker that keeps nothing leaves no shard file")
}

// A broken source file is counted as an error without failing the run or
// stopping its siblings.
func TestFilter_FileErrorsAreIsolated(t *testing.T) {
	defer goleak.VerifyNone(t)

	inDir := t.TempDir()
	outDir := t.TempDir()
	writeCorpus(t, inDir, 3, 10)
	require.NoError(t, os.WriteFile(filepath.Join(inDir, "zz_corrupt.jsonl.gz"), []byte("not gzip at all"), 0o644))

	result, err := Filter(context.Background(), FilterConfig{
		InputDir:    inDir,
		FilePattern: "*.jsonl.gz",
		OutputDir:   outDir,
		Predicate:   keepOdd,
		MaxWorkers:  2,
	})
	require.NoError(t, err, "per-file failures do not fail the run")

	assert.Equal(t, 4, result.TotalFiles)
	assert.Equal(t, int64(3), result.FilesDone)
	assert.Equal(t, 1, result.Errors)
	assert.False(t, result.Aborted)
	assert.Equal(t, int64(15), result.LinesKept)
}

func TestFilter_CancellationStopsIntake(t *testing.T) {
	defer goleak.VerifyNone(t)

	inDir := t.TempDir()
	outDir := t.TempDir()
	writeCorpus(t, inDir, 4, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := Filter(ctx, FilterConfig{
		InputDir:    inDir,
		FilePattern: "*.jsonl.gz",
		OutputDir:   outDir,
		Predicate:   keepOdd,
		MaxWorkers:  2,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)

	// Whatever was kept before cancellation still lives in finalized,
	// readable shards.
	total := 0
	for line := range readShards(t, outDir) {
		assert.True(t, strings.Contains(line, `"n":`))
		total++
	}
	assert.Equal(t, int64(total), result.LinesKept)
}

func TestFilter_NoMatchingFiles(t *testing.T) {
	_, err := Filter(context.Background(), FilterConfig{
		InputDir:    t.TempDir(),
		FilePattern: "*.jsonl.gz",
		OutputDir:   t.TempDir(),
		Predicate:   keepOdd,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no files matching")
}

func TestFilterConfig_Validate(t *testing.T) {
	valid := FilterConfig{
		InputDir:    "/in",
		FilePattern: "*.jsonl.gz",
		OutputDir:   "/out",
		Predicate:   keepOdd,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name    string
		mutate  func(c *FilterConfig)
		wantErr string
	}{
		{"empty input dir", func(c *FilterConfig) { c.InputDir = "" }, "InputDir cannot be empty"},
		{"empty pattern", func(c *FilterConfig) { c.FilePattern = "" }, "FilePattern cannot be empty"},
		{"empty output dir", func(c *FilterConfig) { c.OutputDir = "" }, "OutputDir cannot be empty"},
		{"nil predicate", func(c *FilterConfig) { c.Predicate = nil }, "Predicate cannot be nil"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
