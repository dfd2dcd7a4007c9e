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
	"math/rand"
	"time"
)

// Batch is a group of source files processed end to end by one worker.
type Batch struct {
	// Index is unique within a run and namespaces the batch's output file
	// names, so concurrent workers never write to the same path.
	Index int

	// Files are processed in order.
	Files []string
}

// PartitionFiles shuffles the file list with the given seed and slices the
// result into consecutive batches of at most batchSize files. Shuffling
// spreads size clusters (corpus dumps tend to group their largest files
// together) across workers. The same seed always yields the same
// partitioning; every file lands in exactly one batch.
func PartitionFiles(files []string, batchSize int, seed int64) []Batch {
	if batchSize < 1 {
		batchSize = 1
	}

	shuffled := make([]string, len(files))
	copy(shuffled, files)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	batches := make([]Batch, 0, (len(shuffled)+batchSize-1)/batchSize)
	for start := 0; start < len(shuffled); start += batchSize {
		end := start + batchSize
		if end > len(shuffled) {
			end = len(shuffled)
		}
		batches = append(batches, Batch{Index: len(batches), Files: shuffled[start:end]})
	}
	return batches
}

// resolveSeed substitutes a clock derived seed for the zero value, so
// unseeded runs still shuffle differently from each other.
func resolveSeed(seed int64) int64 {
	if seed != 0 {
		return seed
	}
	return time.Now().UnixNano()
}
