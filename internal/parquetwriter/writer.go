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

// Package parquetwriter writes schema-validated rows to rotated Parquet
// files. Rows buffer in memory up to one row group, each flush writes one
// physical row group, and files rotate after a fixed number of row groups so
// output sizes stay within their tuning targets.
package parquetwriter

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
)

// Row is one transformed record, keyed by column name.
type Row map[string]any

var (
	ErrWriterClosed    = errors.New("parquetwriter: writer is already closed")
	ErrSchemaViolation = errors.New("parquetwriter: row violates schema")
	ErrWriteFailed     = errors.New("parquetwriter: failed to write data")
)

// Result contains metadata about a single output Parquet file.
type Result struct {
	// FileName is the path of the created file.
	FileName string

	// RecordCount is the number of rows written to this file.
	RecordCount int64

	// RowGroups is the number of row groups the file holds.
	RowGroups int

	// FileSize is the size of the file in bytes.
	FileSize int64
}

// WriterConfig configures a RotatingWriter.
type WriterConfig struct {
	// OutputDir is the directory output files are created in.
	OutputDir string

	// FilePrefix is prepended to every output file name.
	FilePrefix string

	// BatchIndex namespaces this writer's file names; no two concurrent
	// writers may share one.
	BatchIndex int

	// Schema all rows are validated against.
	Schema *Schema

	// RowGroupSize is the number of rows buffered per flush; each flush
	// becomes one row group.
	RowGroupSize int

	// RowGroupsPerFile is the number of row groups written to a file
	// before rotating to the next one.
	RowGroupsPerFile int

	// TmpDir holds spilled column page buffers. Defaults to os.TempDir().
	TmpDir string
}

// Validate checks that the configuration is valid and returns an error if not.
func (c *WriterConfig) Validate() error {
	if c.OutputDir == "" {
		return &ConfigError{Field: "OutputDir", Message: "cannot be empty"}
	}
	if c.BatchIndex < 0 {
		return &ConfigError{Field: "BatchIndex", Message: "cannot be negative"}
	}
	if c.Schema == nil {
		return &ConfigError{Field: "Schema", Message: "cannot be nil"}
	}
	if c.RowGroupSize < 1 {
		return &ConfigError{Field: "RowGroupSize", Message: "must be at least 1"}
	}
	if c.RowGroupsPerFile < 1 {
		return &ConfigError{Field: "RowGroupsPerFile", Message: "must be at least 1"}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "parquetwriter config: " + e.Field + " " + e.Message
}

// RotatingWriter owns the row buffer and all output files of one batch. It
// is used by exactly one goroutine; no locking inside.
type RotatingWriter struct {
	cfg    WriterConfig
	pq     *parquet.Schema
	buffer []Row

	file         *os.File
	writer       *parquet.GenericWriter[map[string]any]
	fileIndex    int
	groupsInFile int
	rowsInFile   int64

	results     []Result
	rowsWritten int64
	closed      bool
	failed      bool
}

// NewRotatingWriter validates cfg and returns a writer. No file is created
// until the first flush, so a batch that yields no rows leaves no artifact.
func NewRotatingWriter(cfg WriterConfig) (*RotatingWriter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.TmpDir == "" {
		cfg.TmpDir = os.TempDir()
	}
	return &RotatingWriter{
		cfg: cfg,
		pq:  cfg.Schema.Parquet(),
	}, nil
}

// Append buffers one row, flushing a full row group and rotating files as
// thresholds are reached. A schema violation is fatal to the writer: the
// offending row is logged, the current file is finalized with the row groups
// it already holds, and the error is returned.
func (w *RotatingWriter) Append(row Row) error {
	if w.closed || w.failed {
		return ErrWriterClosed
	}
	w.buffer = append(w.buffer, row)
	if len(w.buffer) >= w.cfg.RowGroupSize {
		return w.flushGroup()
	}
	return nil
}

// RowsWritten returns the number of rows flushed to disk so far.
func (w *RotatingWriter) RowsWritten() int64 {
	return w.rowsWritten
}

// Close drains any partial buffer as a final row group, finalizes the open
// file, and returns the metadata of every file written. After Close the
// writer cannot be used.
func (w *RotatingWriter) Close() ([]Result, error) {
	if w.closed {
		return nil, ErrWriterClosed
	}
	w.closed = true
	if w.failed {
		return w.results, nil
	}
	if err := w.flushGroup(); err != nil {
		return w.results, err
	}
	if w.writer != nil {
		if err := w.closeFile(); err != nil {
			return w.results, err
		}
	}
	return w.results, nil
}

// flushGroup writes the buffered rows as one row group.
func (w *RotatingWriter) flushGroup() error {
	if len(w.buffer) == 0 {
		return nil
	}
	if w.writer == nil {
		if err := w.openFile(); err != nil {
			w.fail()
			return err
		}
	}

	batch := make([]map[string]any, len(w.buffer))
	for i, row := range w.buffer {
		normalized, err := w.cfg.Schema.NormalizeRow(row)
		if err != nil {
			w.logBadRow(i, row, err)
			w.fail()
			return fmt.Errorf("convert row %d of buffered group for %s: %w", i, w.currentName(), err)
		}
		batch[i] = normalized
	}

	if _, err := w.writer.Write(batch); err != nil {
		w.fail()
		return fmt.Errorf("%w: %s: %s", ErrWriteFailed, w.currentName(), err)
	}
	if err := w.writer.Flush(); err != nil {
		w.fail()
		return fmt.Errorf("%w: flush %s: %s", ErrWriteFailed, w.currentName(), err)
	}

	rows := len(w.buffer)
	w.buffer = w.buffer[:0]
	w.groupsInFile++
	w.rowsInFile += int64(rows)
	w.rowsWritten += int64(rows)

	if w.groupsInFile >= w.cfg.RowGroupsPerFile {
		return w.closeFile()
	}
	return nil
}

func (w *RotatingWriter) openFile() error {
	name := fmt.Sprintf("%sbatch_%05d_part_%05d.parquet", w.cfg.FilePrefix, w.cfg.BatchIndex, w.fileIndex)
	path := filepath.Join(w.cfg.OutputDir, name)
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file %s: %w", path, err)
	}
	w.file = file
	w.writer = parquet.NewGenericWriter[map[string]any](file, writerOptions(w.cfg.TmpDir, w.pq, w.cfg.RowGroupSize)...)
	return nil
}

func (w *RotatingWriter) closeFile() error {
	name := w.file.Name()
	if err := w.writer.Close(); err != nil {
		w.fail()
		return fmt.Errorf("%w: close %s: %s", ErrWriteFailed, name, err)
	}
	var size int64
	if info, err := w.file.Stat(); err == nil {
		size = info.Size()
	}
	if err := w.file.Close(); err != nil {
		w.fail()
		return fmt.Errorf("failed to close output file %s: %w", name, err)
	}
	w.results = append(w.results, Result{
		FileName:    name,
		RecordCount: w.rowsInFile,
		RowGroups:   w.groupsInFile,
		FileSize:    size,
	})
	w.file = nil
	w.writer = nil
	w.fileIndex++
	w.groupsInFile = 0
	w.rowsInFile = 0
	return nil
}

// fail finalizes the current file so already written row groups stay
// readable, then marks the writer unusable.
func (w *RotatingWriter) fail() {
	if w.failed {
		return
	}
	w.failed = true
	if w.writer != nil {
		name := w.file.Name()
		_ = w.writer.Close()
		var size int64
		if info, err := w.file.Stat(); err == nil {
			size = info.Size()
		}
		_ = w.file.Close()
		if w.groupsInFile > 0 {
			w.results = append(w.results, Result{
				FileName:    name,
				RecordCount: w.rowsInFile,
				RowGroups:   w.groupsInFile,
				FileSize:    size,
			})
		}
		w.file = nil
		w.writer = nil
	}
}

func (w *RotatingWriter) currentName() string {
	if w.file != nil {
		return w.file.Name()
	}
	return fmt.Sprintf("%sbatch_%05d_part_%05d.parquet", w.cfg.FilePrefix, w.cfg.BatchIndex, w.fileIndex)
}

// logBadRow renders the offending row for diagnostics before the writer
// fails. The rest of the buffer is lost with the failure; knowing which row
// broke conversion is what makes that debuggable.
func (w *RotatingWriter) logBadRow(position int, row Row, err error) {
	rendered, merr := json.Marshal(row)
	if merr != nil {
		rendered = []byte(fmt.Sprintf("%v", row))
	}
	slog.Error("row failed schema conversion",
		slog.String("schema", w.cfg.Schema.Name),
		slog.Int("bufferPosition", position),
		slog.String("row", string(rendered)),
		slog.Any("error", err))
}

func writerOptions(tmpDir string, schema *parquet.Schema, rowGroupSize int) []parquet.WriterOption {
	return []parquet.WriterOption{
		schema,
		parquet.Compression(&parquet.Snappy),
		parquet.PageBufferSize(256 * 1024),
		parquet.ColumnIndexSizeLimit(1024),
		parquet.MaxRowsPerRowGroup(int64(rowGroupSize)),
		parquet.ColumnPageBuffers(
			parquet.NewFileBufferPool(tmpDir, "buffers.*"),
		),
	}
}
