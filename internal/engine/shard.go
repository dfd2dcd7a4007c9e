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
	"fmt"
	"os"
	"path/filepath"
)

var newline = []byte("\n")

// shardWriter appends kept lines to one filter worker's gzip shard. The file
// is created on the first append, so a worker that keeps nothing leaves no
// shard behind. Each worker owns exactly one shardWriter; no locking.
type shardWriter struct {
	path string
	file *os.File
	gz   *gzip.Writer
}

func newShardWriter(dir string, identity int) *shardWriter {
	return &shardWriter{
		path: filepath.Join(dir, fmt.Sprintf("part_%03d.jsonl.gz", identity)),
	}
}

// Append writes one source line, terminated with a newline, to the shard.
func (s *shardWriter) Append(line []byte) error {
	if s.gz == nil {
		file, err := os.Create(s.path)
		if err != nil {
			return fmt.Errorf("failed to create shard %s: %w", s.path, err)
		}
		s.file = file
		s.gz = gzip.NewWriter(file)
	}
	if _, err := s.gz.Write(line); err != nil {
		return fmt.Errorf("failed to write shard %s: %w", s.path, err)
	}
	if _, err := s.gz.Write(newline); err != nil {
		return fmt.Errorf("failed to write shard %s: %w", s.path, err)
	}
	return nil
}

// Created reports whether any line was appended.
func (s *shardWriter) Created() bool {
	return s.gz != nil
}

// Close finalizes the gzip stream. A close failure leaves the shard
// truncated and must be treated as a run error.
func (s *shardWriter) Close() error {
	if s.gz == nil {
		return nil
	}
	if err := s.gz.Close(); err != nil {
		_ = s.file.Close()
		return fmt.Errorf("failed to finalize shard %s: %w", s.path, err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("failed to close shard %s: %w", s.path, err)
	}
	return nil
}
