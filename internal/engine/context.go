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

import "sync/atomic"

// WorkerContext holds the only two pieces of state shared across the workers
// of a run: the processed file counter and the abort flag. Everything else a
// worker touches is owned by that worker alone.
type WorkerContext struct {
	filesDone atomic.Int64
	abort     atomic.Bool
}

// NewWorkerContext returns a fresh context for one run.
func NewWorkerContext() *WorkerContext {
	return &WorkerContext{}
}

// FileDone records one fully processed source file.
func (c *WorkerContext) FileDone() {
	c.filesDone.Add(1)
}

// FilesDone returns the number of files fully processed so far.
func (c *WorkerContext) FilesDone() int64 {
	return c.filesDone.Load()
}

// SignalAbort sets the abort flag. The flag is one way; once set it is never
// cleared for the remainder of the run.
func (c *WorkerContext) SignalAbort() {
	c.abort.Store(true)
}

// Aborted reports whether abort has been signaled. Workers poll this once
// per record so the latency between a failure anywhere and all workers
// ceasing new work is bounded by one record's processing time.
func (c *WorkerContext) Aborted() bool {
	return c.abort.Load()
}
