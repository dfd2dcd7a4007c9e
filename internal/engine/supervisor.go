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
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/oklog/ulid/v2"
)

// RunConfig configures the worker pool supervisor.
type RunConfig struct {
	// MaxWorkers is the number of concurrent batch workers. Defaults to
	// GOMAXPROCS when zero or negative.
	MaxWorkers int

	// PollInterval is the cadence of the progress poll. Defaults to one
	// second.
	PollInterval time.Duration

	// Description labels the progress line.
	Description string

	// ProgressTo receives the progress line. Nil disables progress output.
	ProgressTo io.Writer
}

// BatchStats is what one worker reports back for its batch.
type BatchStats struct {
	RowsWritten int64
	RowsDropped int64
	OutputFiles int
}

// BatchFunc processes one batch. It is called from a worker goroutine and
// must confine all mutable state to the batch, except for wctx.
type BatchFunc func(ctx context.Context, wctx *WorkerContext, batch Batch) (BatchStats, error)

// RunResult summarizes a completed run.
type RunResult struct {
	RunID       string
	TotalFiles  int
	FilesDone   int64
	RowsWritten int64
	RowsDropped int64
	OutputFiles int
	Failures    int
	Aborted     bool
	Elapsed     time.Duration
}

// FilesAbandoned returns the number of files never fully processed because
// the run aborted.
func (r *RunResult) FilesAbandoned() int64 {
	return int64(r.TotalFiles) - r.FilesDone
}

// Run executes fn over every batch on a pool of cfg.MaxWorkers workers and
// polls shared progress until all batches have finished. The first worker
// failure signals abort; the remaining workers observe the flag, drain their
// buffered output and stop. Canceling ctx aborts the same way. Run always
// waits for every worker to finish, so partially written files are left in a
// structurally valid state. The returned error aggregates all worker
// failures; the result is returned alongside it either way.
func Run(ctx context.Context, batches []Batch, cfg RunConfig, fn BatchFunc) (*RunResult, error) {
	maxWorkers := cfg.MaxWorkers
	if maxWorkers < 1 {
		maxWorkers = runtime.GOMAXPROCS(0)
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}

	totalFiles := 0
	for _, b := range batches {
		totalFiles += len(b.Files)
	}

	result := &RunResult{
		RunID:      ulid.Make().String(),
		TotalFiles: totalFiles,
	}
	started := time.Now()
	wctx := NewWorkerContext()

	slog.Info("run starting",
		slog.String("runId", result.RunID),
		slog.Int("batches", len(batches)),
		slog.Int("files", totalFiles),
		slog.Int("maxWorkers", maxWorkers))

	type batchResult struct {
		batch Batch
		stats BatchStats
		err   error
	}

	workChan := make(chan Batch, len(batches))
	resultChan := make(chan batchResult, len(batches))

	var wg sync.WaitGroup
	for w := 0; w < maxWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range workChan {
				stats, err := fn(ctx, wctx, batch)
				resultChan <- batchResult{batch: batch, stats: stats, err: err}
			}
		}()
	}

	for _, batch := range batches {
		workChan <- batch
	}
	close(workChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	prog := newProgress(cfg.ProgressTo, cfg.Description, totalFiles)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var errs *multierror.Error
	done := ctx.Done()
	results := resultChan
	for results != nil {
		select {
		case <-done:
			wctx.SignalAbort()
			errs = multierror.Append(errs, ctx.Err())
			slog.Warn("run canceled, draining workers",
				slog.String("runId", result.RunID),
				slog.Any("error", ctx.Err()))
			done = nil

		case <-ticker.C:
			prog.Update(wctx.FilesDone(), "")

		case res, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			result.RowsWritten += res.stats.RowsWritten
			result.RowsDropped += res.stats.RowsDropped
			result.OutputFiles += res.stats.OutputFiles
			if res.err != nil {
				result.Failures++
				first := !wctx.Aborted()
				wctx.SignalAbort()
				if first {
					slog.Error("worker failed, aborting run",
						slog.String("runId", result.RunID),
						slog.Int("batch", res.batch.Index),
						slog.Any("error", res.err))
				} else {
					slog.Error("worker failed",
						slog.String("runId", result.RunID),
						slog.Int("batch", res.batch.Index),
						slog.Any("error", res.err))
				}
				errs = multierror.Append(errs, fmt.Errorf("batch %d: %w", res.batch.Index, res.err))
			}
		}
	}

	result.FilesDone = wctx.FilesDone()
	result.Aborted = wctx.Aborted()
	result.Elapsed = time.Since(started)
	prog.Finish(result.FilesDone, "")

	if result.Aborted {
		slog.Warn("run aborted",
			slog.String("runId", result.RunID),
			slog.Int64("filesProcessed", result.FilesDone),
			slog.Int64("filesAbandoned", result.FilesAbandoned()),
			slog.Int64("rowsWritten", result.RowsWritten),
			slog.Int("failures", result.Failures),
			slog.Duration("elapsed", result.Elapsed))
	} else {
		slog.Info("run complete",
			slog.String("runId", result.RunID),
			slog.Int64("filesProcessed", result.FilesDone),
			slog.Int64("rowsWritten", result.RowsWritten),
			slog.Int64("rowsDropped", result.RowsDropped),
			slog.Int("outputFiles", result.OutputFiles),
			slog.Duration("elapsed", result.Elapsed))
	}
	return result, errs.ErrorOrNil()
}
