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

// Package jsonl reads newline-delimited JSON files, transparently
// decompressing gzip by file extension. Records keep their original line
// bytes so filter output can reproduce input lines exactly, and field access
// is lazy so transform code pays only for the fields it touches.
package jsonl

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	initialLineSize = 1024 * 1024
	// OpenAlex works lines routinely run to several megabytes once the
	// inverted abstract index is included.
	maxLineSize = 64 * 1024 * 1024
)

// Record is one parsed line of a source file. Line holds the original JSON
// bytes, owned by the record.
type Record struct {
	Line []byte
}

// Get resolves a dotted path inside the record without materializing the
// whole document.
func (r Record) Get(path string) gjson.Result {
	return gjson.GetBytes(r.Line, path)
}

// String returns the record's original line.
func (r Record) String() string {
	return string(r.Line)
}

type multiReadCloser struct {
	io.Reader
	closers []io.Closer
}

func (m *multiReadCloser) Close() error {
	var firstErr error
	for _, c := range m.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Reader iterates the records of one newline-delimited JSON file. Blank
// lines are skipped silently; lines that are not valid JSON are logged and
// skipped without failing the file.
type Reader struct {
	path    string
	scanner *bufio.Scanner
	closer  io.Closer
	record  Record
	line    int
	skipped int
	err     error
	closed  bool
}

// Open opens path for record iteration, layering gzip decompression when the
// name ends in ".gz". The caller owns the returned reader and must Close it.
func Open(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input file: %w", err)
	}

	var rc io.ReadCloser = file
	if strings.HasSuffix(path, ".gz") {
		gzipReader, err := gzip.NewReader(file)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("failed to create gzip reader for %s: %w", path, err)
		}
		rc = &multiReadCloser{
			Reader:  gzipReader,
			closers: []io.Closer{gzipReader, file},
		}
	}

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, initialLineSize), maxLineSize)

	return &Reader{
		path:    path,
		scanner: scanner,
		closer:  rc,
	}, nil
}

// Next advances to the next record, reporting false at end of file or on a
// read error. After Next returns false the caller must check Err.
func (r *Reader) Next() bool {
	if r.closed || r.err != nil {
		return false
	}
	for r.scanner.Scan() {
		r.line++
		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if !gjson.ValidBytes(line) {
			r.skipped++
			slog.Warn("skipping invalid JSON line",
				slog.String("file", r.path),
				slog.Int("line", r.line))
			continue
		}
		r.record = Record{Line: append([]byte(nil), line...)}
		return true
	}
	if err := r.scanner.Err(); err != nil {
		r.err = fmt.Errorf("read error in %s at line %d: %w", r.path, r.line+1, err)
	}
	return false
}

// Record returns the current record. Valid only after a true Next.
func (r *Reader) Record() Record {
	return r.record
}

// Err returns the first read error encountered, if any.
func (r *Reader) Err() error {
	return r.err
}

// Lines returns the number of lines consumed so far, including skipped ones.
func (r *Reader) Lines() int {
	return r.line
}

// Skipped returns the number of invalid JSON lines that were passed over.
func (r *Reader) Skipped() int {
	return r.skipped
}

// Close releases the underlying file handles.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	if r.closer != nil {
		err = r.closer.Close()
		r.closer = nil
	}
	r.scanner = nil
	return err
}
