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
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmpworks/corpusrunner/internal/jsonl"
	"github.com/oklog/ulid/v2"
)

// FilterConfig configures a filter run: every matched source file is
// streamed through the predicate, and kept lines are appended verbatim to
// per worker gzip shards.
type FilterConfig struct {
	// InputDir is the root of the source file tree.
	InputDir string

	// FilePattern selects source files under InputDir.
	FilePattern string

	// OutputDir receives the shard files. Must exist.
	OutputDir string

	// Predicate decides which lines are kept.
	Predicate RecordPredicate

	// Reader opens source files. Defaults to ReadJSONL.
	Reader RecordReader

	// MaxWorkers is the number of concurrent workers, and therefore the
	// maximum number of shards. Defaults to GOMAXPROCS when zero.
	MaxWorkers int

	// PollInterval is the progress poll cadence. Defaults to one second.
	PollInterval time.Duration

	// ProgressTo receives the progress line. Nil disables progress output.
	ProgressTo io.Writer
}

// Validate checks that the configuration is valid and returns an error if not.
func (c *FilterConfig) Validate() error {
	if c.InputDir == "" {
		return &ConfigError{Field: "InputDir", Message: "cannot be empty"}
	}
	if c.FilePattern == "" {
		return &ConfigError{Field: "FilePattern", Message: "cannot be empty"}
	}
	if c.OutputDir == "" {
		return &ConfigError{Field: "OutputDir", Message: "cannot be empty"}
	}
	if c.Predicate == nil {
		return &ConfigError{Field: "Predicate", Message: "cannot be nil"}
	}
	return nil
}

// FilterResult summarizes a completed filter run.
type FilterResult struct {
	RunID      string
	TotalFiles int
	FilesDone  int64
	LinesKept  int64
	Errors     int
	Shards     []string
	Aborted    bool
	Elapsed    time.Duration
}

// Filter streams every matched source file through the predicate on a pool
// of workers. Files are independent units of work: a failure on one file is
// logged and counted, and its siblings keep running. This is deliberately
// more lenient than Transform, which treats the first failure as fatal to
// the whole run. Canceling ctx stops intake of new records; workers finalize
// their shards before returning.
func Filter(ctx context.Context, cfg FilterConfig) (*FilterResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	reader := cfg.Reader
	if reader == nil {
		reader = ReadJSONL
	}
	maxWorkers := cfg.MaxWorkers
	if maxWorkers < 1 {
		maxWorkers = runtime.GOMAXPROCS(0)
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	files, err := jsonl.FindFiles(cfg.InputDir, cfg.FilePattern)
	if err != nil {
		return nil, fmt.Errorf("discover input files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files matching %q under %s", cfg.FilePattern, cfg.InputDir)
	}

	result := &FilterResult{
		RunID:      ulid.Make().String(),
		TotalFiles: len(files),
	}
	started := time.Now()
	wctx := NewWorkerContext()

	slog.Info("filter starting",
		slog.String("runId", result.RunID),
		slog.Int("files", len(files)),
		slog.Int("maxWorkers", maxWorkers))

	type fileResult struct {
		path    string
		kept    int64
		skipped bool
		err     error
	}

	workChan := make(chan string, len(files))
	resultChan := make(chan fileResult, len(files))

	var (
		shardsMu    sync.Mutex
		shards      []string
		shardErrors atomic.Int64
	)

	var wg sync.WaitGroup
	for w := 0; w < maxWorkers; w++ {
		wg.Add(1)
		// Shard names are 1-based on worker identity.
		go func(identity int) {
			defer wg.Done()
			shard := newShardWriter(cfg.OutputDir, identity)
			defer func() {
				if err := shard.Close(); err != nil {
					shardErrors.Add(1)
					slog.Error("shard close failed",
						slog.String("runId", result.RunID),
						slog.Any("error", err))
				} else if shard.Created() {
					shardsMu.Lock()
					shards = append(shards, shard.path)
					shardsMu.Unlock()
				}
			}()
			for path := range workChan {
				if wctx.Aborted() {
					resultChan <- fileResult{path: path, skipped: true}
					continue
				}
				kept, aborted, err := filterFile(wctx, path, reader, cfg.Predicate, shard)
				if err != nil {
					slog.Error("failed to filter file",
						slog.String("runId", result.RunID),
						slog.String("file", path),
						slog.Any("error", err))
				} else if !aborted {
					wctx.FileDone()
				}
				resultChan <- fileResult{path: path, kept: kept, skipped: aborted, err: err}
			}
		}(w + 1)
	}

	for _, path := range files {
		workChan <- path
	}
	close(workChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	prog := newProgress(cfg.ProgressTo, "filter", len(files))
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	postfix := func() string {
		return fmt.Sprintf("kept=%d errors=%d", result.LinesKept, result.Errors)
	}

	done := ctx.Done()
	results := resultChan
	for results != nil {
		select {
		case <-done:
			wctx.SignalAbort()
			slog.Warn("filter canceled, draining workers",
				slog.String("runId", result.RunID),
				slog.Any("error", ctx.Err()))
			done = nil

		case <-ticker.C:
			prog.Update(wctx.FilesDone(), postfix())

		case res, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			result.LinesKept += res.kept
			if res.err != nil {
				result.Errors++
			}
		}
	}

	result.Errors += int(shardErrors.Load())
	result.FilesDone = wctx.FilesDone()
	result.Aborted = wctx.Aborted()
	result.Elapsed = time.Since(started)
	sort.Strings(shards)
	result.Shards = shards
	prog.Finish(result.FilesDone, postfix())

	slog.Info("filter complete",
		slog.String("runId", result.RunID),
		slog.Int64("filesProcessed", result.FilesDone),
		slog.Int64("filesAbandoned", int64(result.TotalFiles)-result.FilesDone),
		slog.Int64("linesKept", result.LinesKept),
		slog.Int("shards", len(result.Shards)),
		slog.Int("errors", result.Errors),
		slog.Duration("elapsed", result.Elapsed))

	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, nil
}

// filterFile streams one source file through the predicate, appending kept
// lines to the worker's shard. It returns true when the abort flag stopped
// the read early.
func filterFile(wctx *WorkerContext, path string, reader RecordReader, pred RecordPredicate, shard *shardWriter) (int64, bool, error) {
	it, err := reader.ReadFile(path)
	if err != nil {
		return 0, false, err
	}
	defer func() { _ = it.Close() }()

	var kept int64
	for it.Next() {
		if wctx.Aborted() {
			return kept, true, nil
		}
		rec := it.Record()
		if !pred.Keep(rec) {
			continue
		}
		// The original line bytes are written, not a re-encoded copy.
		if err := shard.Append(rec.Line); err != nil {
			return kept, false, err
		}
		kept++
	}
	return kept, false, it.Err()
}
