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
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/dmpworks/corpusrunner/internal/jsonl"
	"github.com/dmpworks/corpusrunner/internal/parquetwriter"
)

// TransformConfig configures a transform run: every record of every matched
// source file is mapped to a row and written to rotated Parquet files.
type TransformConfig struct {
	// InputDir is the root of the source file tree.
	InputDir string

	// FilePattern selects source files under InputDir, e.g. "**/*.jsonl.gz".
	FilePattern string

	// OutputDir receives the Parquet files. Must exist.
	OutputDir string

	// FilePrefix is prepended to every output file name.
	FilePrefix string

	// Schema all transformed rows are validated against.
	Schema *parquetwriter.Schema

	// Transformer maps raw records to rows.
	Transformer RecordTransformer

	// Reader opens source files. Defaults to ReadJSONL.
	Reader RecordReader

	// BatchSize is the maximum number of files per batch.
	BatchSize int

	// RowGroupSize is the number of rows per Parquet row group.
	RowGroupSize int

	// RowGroupsPerFile is the number of row groups per Parquet file.
	RowGroupsPerFile int

	// MaxWorkers is the number of concurrent batch workers. Defaults to
	// GOMAXPROCS when zero.
	MaxWorkers int

	// ShuffleSeed seeds the partitioner. Zero derives a seed from the
	// clock; pass a fixed value for a reproducible partitioning.
	ShuffleSeed int64

	// PollInterval is the progress poll cadence. Defaults to one second.
	PollInterval time.Duration

	// ProgressTo receives the progress line. Nil disables progress output.
	ProgressTo io.Writer

	// TmpDir holds spilled column page buffers. Defaults to os.TempDir().
	TmpDir string
}

// Validate checks that the configuration is valid and returns an error if not.
func (c *TransformConfig) Validate() error {
	if c.InputDir == "" {
		return &ConfigError{Field: "InputDir", Message: "cannot be empty"}
	}
	if c.FilePattern == "" {
		return &ConfigError{Field: "FilePattern", Message: "cannot be empty"}
	}
	if c.OutputDir == "" {
		return &ConfigError{Field: "OutputDir", Message: "cannot be empty"}
	}
	if c.Schema == nil {
		return &ConfigError{Field: "Schema", Message: "cannot be nil"}
	}
	if c.Transformer == nil {
		return &ConfigError{Field: "Transformer", Message: "cannot be nil"}
	}
	if c.BatchSize < 1 {
		return &ConfigError{Field: "BatchSize", Message: "must be at least 1"}
	}
	if c.RowGroupSize < 1 {
		return &ConfigError{Field: "RowGroupSize", Message: "must be at least 1"}
	}
	if c.RowGroupsPerFile < 1 {
		return &ConfigError{Field: "RowGroupsPerFile", Message: "must be at least 1"}
	}
	return nil
}

// Transform discovers the source files, partitions them into batches and
// runs the transformer over every record, writing schema validated Parquet
// output. The run aborts on the first failure; see Run for the semantics.
func Transform(ctx context.Context, cfg TransformConfig) (*RunResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	reader := cfg.Reader
	if reader == nil {
		reader = ReadJSONL
	}

	files, err := jsonl.FindFiles(cfg.InputDir, cfg.FilePattern)
	if err != nil {
		return nil, fmt.Errorf("discover input files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files matching %q under %s", cfg.FilePattern, cfg.InputDir)
	}

	seed := resolveSeed(cfg.ShuffleSeed)
	batches := PartitionFiles(files, cfg.BatchSize, seed)
	slog.Info("partitioned input files",
		slog.String("schema", cfg.Schema.Name),
		slog.String("schemaFingerprint", fmt.Sprintf("%016x", cfg.Schema.Fingerprint())),
		slog.Int("files", len(files)),
		slog.Int("batches", len(batches)),
		slog.Int("batchSize", cfg.BatchSize),
		slog.Int64("shuffleSeed", seed))

	runCfg := RunConfig{
		MaxWorkers:   cfg.MaxWorkers,
		PollInterval: cfg.PollInterval,
		Description:  cfg.Schema.Name,
		ProgressTo:   cfg.ProgressTo,
	}
	return Run(ctx, batches, runCfg, func(_ context.Context, wctx *WorkerContext, batch Batch) (BatchStats, error) {
		return transformBatch(wctx, batch, &cfg, reader)
	})
}

// transformBatch processes one batch of source files through a single
// rotating writer. The writer is always closed, so buffered rows are drained
// to disk whether the batch finished, aborted, or failed.
func transformBatch(wctx *WorkerContext, batch Batch, cfg *TransformConfig, reader RecordReader) (BatchStats, error) {
	var stats BatchStats
	writer, err := parquetwriter.NewRotatingWriter(parquetwriter.WriterConfig{
		OutputDir:        cfg.OutputDir,
		FilePrefix:       cfg.FilePrefix,
		BatchIndex:       batch.Index,
		Schema:           cfg.Schema,
		RowGroupSize:     cfg.RowGroupSize,
		RowGroupsPerFile: cfg.RowGroupsPerFile,
		TmpDir:           cfg.TmpDir,
	})
	if err != nil {
		return stats, fmt.Errorf("open writer for batch %d: %w", batch.Index, err)
	}

	werr := func() error {
		for _, path := range batch.Files {
			if wctx.Aborted() {
				return nil
			}
			aborted, err := transformFile(wctx, path, writer, cfg.Transformer, reader, &stats)
			if err != nil {
				return fmt.Errorf("file %s: %w", path, err)
			}
			if aborted {
				return nil
			}
			wctx.FileDone()
		}
		return nil
	}()

	results, cerr := writer.Close()
	stats.RowsWritten = writer.RowsWritten()
	stats.OutputFiles = len(results)
	if werr != nil {
		return stats, werr
	}
	if cerr != nil {
		return stats, fmt.Errorf("finalize output of batch %d: %w", batch.Index, cerr)
	}
	return stats, nil
}

// transformFile runs the transformer over one source file. It returns true
// when the abort flag stopped the read early; the file then does not count
// as fully processed.
func transformFile(wctx *WorkerContext, path string, writer *parquetwriter.RotatingWriter, transformer RecordTransformer, reader RecordReader, stats *BatchStats) (bool, error) {
	it, err := reader.ReadFile(path)
	if err != nil {
		return false, err
	}
	defer func() { _ = it.Close() }()

	for it.Next() {
		if wctx.Aborted() {
			return true, nil
		}
		row, err := transformer.Transform(it.Record())
		if err != nil {
			return false, fmt.Errorf("transform record: %w", err)
		}
		if row == nil {
			stats.RowsDropped++
			continue
		}
		if err := writer.Append(row); err != nil {
			return false, err
		}
	}
	return false, it.Err()
}
