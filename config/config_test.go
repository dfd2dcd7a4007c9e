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

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CORPUSRUNNER_TRANSFORM_DATACITE_BATCH_SIZE", "300")
	t.Setenv("CORPUSRUNNER_TRANSFORM_SHUFFLE_SEED", "42")
	t.Setenv("CORPUSRUNNER_SUBSET_MAX_WORKERS", "3")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 300, cfg.Transform.DataCite.BatchSize)
	require.Equal(t, int64(42), cfg.Transform.ShuffleSeed)
	require.Equal(t, 3, cfg.Subset.MaxWorkers)

	// Untouched values keep their defaults.
	require.Equal(t, 250_000, cfg.Transform.DataCite.RowGroupSize)
	require.Equal(t, 500, cfg.Transform.CrossrefMetadata.BatchSize)
	require.Equal(t, time.Second, cfg.Subset.PollInterval)
}

func TestLoadDurationEnv(t *testing.T) {
	t.Setenv("CORPUSRUNNER_TRANSFORM_POLL_INTERVAL", "250ms")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, cfg.Transform.PollInterval)
}

func TestPipelineLookup(t *testing.T) {
	cfg := Default()

	p, ok := cfg.Transform.Pipeline("datacite")
	require.True(t, ok)
	require.Equal(t, 150, p.BatchSize)
	require.Equal(t, 8, p.MaxWorkers)

	_, ok = cfg.Transform.Pipeline("wikidata")
	require.False(t, ok)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Transform.DataCite.BatchSize = 0
	cfg.Transform.DMPs.MaxWorkers = -1
	cfg.Subset.PollInterval = 0

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "transform.datacite")
	require.Contains(t, err.Error(), "transform.dmps")
	require.Contains(t, err.Error(), "subset.poll_interval")
}
