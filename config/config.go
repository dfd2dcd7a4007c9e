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
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
)

// Config aggregates configuration for the application. Values come from an
// optional config file in the working directory and from environment
// variables; command line flags override both.
type Config struct {
	Transform TransformConfig `mapstructure:"transform"`
	Subset    SubsetConfig    `mapstructure:"subset"`
}

// PipelineConfig tunes one source's transform pipeline.
type PipelineConfig struct {
	// BatchSize is the number of input files per batch. One batch is one
	// unit of work for a worker and one output file sequence.
	BatchSize int `mapstructure:"batch_size"`

	// RowGroupSize is the number of rows per Parquet row group. A row group
	// is buffered fully before it is flushed, so this bounds per worker
	// memory. Target row group sizes of 128-512MB.
	RowGroupSize int `mapstructure:"row_group_size"`

	// RowGroupsPerFile is the number of row groups per output Parquet file.
	// Target file sizes of 512MB-1GB.
	RowGroupsPerFile int `mapstructure:"row_groups_per_file"`

	// MaxWorkers is the number of batches processed in parallel.
	MaxWorkers int `mapstructure:"max_workers"`
}

// Validate checks that the tuning values are usable.
func (p PipelineConfig) Validate() error {
	var errs *multierror.Error
	if p.BatchSize < 1 {
		errs = multierror.Append(errs, fmt.Errorf("batch_size must be >= 1, got %d", p.BatchSize))
	}
	if p.RowGroupSize < 1 {
		errs = multierror.Append(errs, fmt.Errorf("row_group_size must be >= 1, got %d", p.RowGroupSize))
	}
	if p.RowGroupsPerFile < 1 {
		errs = multierror.Append(errs, fmt.Errorf("row_groups_per_file must be >= 1, got %d", p.RowGroupsPerFile))
	}
	if p.MaxWorkers < 1 {
		errs = multierror.Append(errs, fmt.Errorf("max_workers must be >= 1, got %d", p.MaxWorkers))
	}
	return errs.ErrorOrNil()
}

// TransformConfig holds per source pipeline tuning plus the knobs shared by
// every transform run.
type TransformConfig struct {
	CrossrefMetadata PipelineConfig `mapstructure:"crossref_metadata"`
	DataCite         PipelineConfig `mapstructure:"datacite"`
	OpenAlexWorks    PipelineConfig `mapstructure:"openalex_works"`
	DMPs             PipelineConfig `mapstructure:"dmps"`

	// PollInterval is the progress reporting cadence.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// ShuffleSeed seeds the shuffle that spreads large input files across
	// batches. Zero derives a seed from the clock; set a fixed value to make
	// the batch partitioning reproducible.
	ShuffleSeed int64 `mapstructure:"shuffle_seed"`
}

// Pipeline returns the tuning for the named source.
func (t TransformConfig) Pipeline(source string) (PipelineConfig, bool) {
	switch source {
	case "crossref-metadata":
		return t.CrossrefMetadata, true
	case "datacite":
		return t.DataCite, true
	case "openalex-works":
		return t.OpenAlexWorks, true
	case "dmps":
		return t.DMPs, true
	}
	return PipelineConfig{}, false
}

// SubsetConfig tunes subset runs.
type SubsetConfig struct {
	// MaxWorkers is the number of files filtered in parallel, and therefore
	// the maximum number of output shards.
	MaxWorkers int `mapstructure:"max_workers"`

	// PollInterval is the progress reporting cadence.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// InstitutionsPath locates the institutions match list when the
	// --institutions flag is not given.
	InstitutionsPath string `mapstructure:"institutions_path"`

	// DOIsPath locates the DOI match list when the --dois flag is not given.
	DOIsPath string `mapstructure:"dois_path"`
}

// Default returns the built-in configuration. The per source tuning differs
// because the corpora do: Crossref ships tens of thousands of small files,
// OpenAlex ships a few hundred very large ones, and DataCite rows are wide
// enough that worker memory is the binding constraint.
func Default() *Config {
	cpus := runtime.GOMAXPROCS(0)
	return &Config{
		Transform: TransformConfig{
			CrossrefMetadata: PipelineConfig{
				BatchSize:        500,
				RowGroupSize:     500_000,
				RowGroupsPerFile: 4,
				MaxWorkers:       cpus,
			},
			DataCite: PipelineConfig{
				BatchSize:        150,
				RowGroupSize:     250_000,
				RowGroupsPerFile: 8,
				MaxWorkers:       8,
			},
			OpenAlexWorks: PipelineConfig{
				BatchSize:        16,
				RowGroupSize:     200_000,
				RowGroupsPerFile: 4,
				MaxWorkers:       cpus,
			},
			DMPs: PipelineConfig{
				BatchSize:        64,
				RowGroupSize:     100_000,
				RowGroupsPerFile: 4,
				MaxWorkers:       cpus,
			},
			PollInterval: time.Second,
		},
		Subset: SubsetConfig{
			MaxWorkers:   cpus,
			PollInterval: time.Second,
		},
	}
}

// Load reads configuration from files and environment variables on top of
// the defaults. Environment variables use the prefix "CORPUSRUNNER" and the
// dot character in keys is replaced by an underscore. For example,
// "transform.datacite.batch_size" becomes
// "CORPUSRUNNER_TRANSFORM_DATACITE_BATCH_SIZE".
func Load() (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("CORPUSRUNNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks every section, reporting all problems at once.
func (c *Config) Validate() error {
	var errs *multierror.Error
	pipelines := []struct {
		name string
		cfg  PipelineConfig
	}{
		{"crossref_metadata", c.Transform.CrossrefMetadata},
		{"datacite", c.Transform.DataCite},
		{"openalex_works", c.Transform.OpenAlexWorks},
		{"dmps", c.Transform.DMPs},
	}
	for _, p := range pipelines {
		if err := p.cfg.Validate(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("transform.%s: %w", p.name, err))
		}
	}
	if c.Transform.PollInterval <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("transform.poll_interval must be positive, got %s", c.Transform.PollInterval))
	}
	if c.Subset.MaxWorkers < 1 {
		errs = multierror.Append(errs, fmt.Errorf("subset.max_workers must be >= 1, got %d", c.Subset.MaxWorkers))
	}
	if c.Subset.PollInterval <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("subset.poll_interval must be positive, got %s", c.Subset.PollInterval))
	}
	return errs.ErrorOrNil()
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
