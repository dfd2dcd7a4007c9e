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

// Package engine runs record pipelines over large sets of newline delimited
// JSON files. It partitions the files into batches, fans the batches out to
// a bounded worker pool, tracks progress through shared state, and aborts
// cooperatively when a worker fails. Source formats plug in through the
// RecordReader, RecordTransformer and RecordPredicate interfaces.
package engine

import (
	"github.com/dmpworks/corpusrunner/internal/jsonl"
	"github.com/dmpworks/corpusrunner/internal/parquetwriter"
)

// RecordReader opens one source file as an iterator over its records.
type RecordReader interface {
	ReadFile(path string) (RecordIterator, error)
}

// RecordIterator yields records one at a time. Next reports whether a record
// is available; Err surfaces the failure that stopped iteration, if any.
type RecordIterator interface {
	Next() bool
	Record() jsonl.Record
	Err() error
	Close() error
}

// ReaderFunc adapts a function to the RecordReader interface.
type ReaderFunc func(path string) (RecordIterator, error)

func (f ReaderFunc) ReadFile(path string) (RecordIterator, error) {
	return f(path)
}

// ReadJSONL is the default RecordReader. It handles both plain and gzip
// compressed newline delimited JSON.
var ReadJSONL RecordReader = ReaderFunc(func(path string) (RecordIterator, error) {
	r, err := jsonl.Open(path)
	if err != nil {
		return nil, err
	}
	return r, nil
})

// RecordTransformer maps one raw record to an output row. Returning a nil
// row with a nil error drops the record. An error aborts the whole run.
type RecordTransformer interface {
	Transform(rec jsonl.Record) (parquetwriter.Row, error)
}

// TransformerFunc adapts a function to the RecordTransformer interface.
type TransformerFunc func(rec jsonl.Record) (parquetwriter.Row, error)

func (f TransformerFunc) Transform(rec jsonl.Record) (parquetwriter.Row, error) {
	return f(rec)
}

// RecordPredicate decides whether a raw record is kept in filter mode.
type RecordPredicate interface {
	Keep(rec jsonl.Record) bool
}

// PredicateFunc adapts a function to the RecordPredicate interface.
type PredicateFunc func(rec jsonl.Record) bool

func (f PredicateFunc) Keep(rec jsonl.Record) bool {
	return f(rec)
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "engine config: " + e.Field + " " + e.Message
}
