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

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmpworks/corpusrunner/config"
	"github.com/dmpworks/corpusrunner/internal/engine"
	"github.com/dmpworks/corpusrunner/internal/sources"
)

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Transform a corpus into schema validated Parquet files",
	Long: `Discover the gzipped JSON Lines files of a corpus release, partition them
into batches, and map every record to a row of the corpus schema. Each worker
writes its own sequence of Parquet files, so batches never contend on output.`,
}

func init() {
	for _, src := range sources.All() {
		transformCmd.AddCommand(newTransformCmd(src))
	}
	rootCmd.AddCommand(transformCmd)
}

// newTransformCmd builds the transform subcommand for one source. Flag
// defaults come from the built-in per source tuning; at run time the
// resolution order is defaults, then config file and environment, then any
// flag the caller set explicitly.
func newTransformCmd(src sources.Source) *cobra.Command {
	defaults, ok := config.Default().Transform.Pipeline(src.Name)
	if !ok {
		panic(fmt.Errorf("no default pipeline tuning for source %s", src.Name))
	}

	var (
		batchSize        int
		rowGroupSize     int
		rowGroupsPerFile int
		maxWorkers       int
		shuffleSeed      int64
		filePrefix       string
	)

	cmd := &cobra.Command{
		Use:   src.Name + " IN_DIR OUT_DIR",
		Short: "Transform " + src.Title + " files to Parquet",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			servicename := "corpusrunner-transform-" + src.Name
			doneCtx, doneCancel := handleSignals(context.Background())
			defer doneCancel()
			if err := setupLogging(servicename); err != nil {
				return fmt.Errorf("failed to setup logging: %w", err)
			}

			inDir, outDir := args[0], args[1]
			if err := ensureDirectory(inDir); err != nil {
				return err
			}
			if err := ensureDirectory(outDir); err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			pipeline, _ := cfg.Transform.Pipeline(src.Name)
			if c.Flags().Changed("batch-size") {
				pipeline.BatchSize = batchSize
			}
			if c.Flags().Changed("row-group-size") {
				pipeline.RowGroupSize = rowGroupSize
			}
			if c.Flags().Changed("row-groups-per-file") {
				pipeline.RowGroupsPerFile = rowGroupsPerFile
			}
			if c.Flags().Changed("max-workers") {
				pipeline.MaxWorkers = maxWorkers
			}
			if err := pipeline.Validate(); err != nil {
				return fmt.Errorf("invalid tuning for %s: %w", src.Name, err)
			}

			seed := cfg.Transform.ShuffleSeed
			if c.Flags().Changed("shuffle-seed") {
				seed = shuffleSeed
			}
			prefix := src.FilePrefix
			if c.Flags().Changed("file-prefix") {
				prefix = filePrefix
			}

			slog.Info("starting transform",
				slog.String("source", src.Name),
				slog.String("inDir", inDir),
				slog.String("outDir", outDir),
				slog.Int("batchSize", pipeline.BatchSize),
				slog.Int("rowGroupSize", pipeline.RowGroupSize),
				slog.Int("rowGroupsPerFile", pipeline.RowGroupsPerFile),
				slog.Int("maxWorkers", pipeline.MaxWorkers))

			result, err := engine.Transform(doneCtx, engine.TransformConfig{
				InputDir:         inDir,
				FilePattern:      src.FilePattern,
				OutputDir:        outDir,
				FilePrefix:       prefix,
				Schema:           src.Schema,
				Transformer:      src.Transform,
				BatchSize:        pipeline.BatchSize,
				RowGroupSize:     pipeline.RowGroupSize,
				RowGroupsPerFile: pipeline.RowGroupsPerFile,
				MaxWorkers:       pipeline.MaxWorkers,
				ShuffleSeed:      seed,
				PollInterval:     cfg.Transform.PollInterval,
				ProgressTo:       os.Stderr,
			})
			if err != nil {
				return fmt.Errorf("transform %s: %w", src.Name, err)
			}
			if result.Aborted {
				return fmt.Errorf("transform %s aborted after %d of %d files", src.Name, result.FilesDone, result.TotalFiles)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", defaults.BatchSize, "Number of input files per batch")
	cmd.Flags().IntVar(&rowGroupSize, "row-group-size", defaults.RowGroupSize, "Rows per Parquet row group")
	cmd.Flags().IntVar(&rowGroupsPerFile, "row-groups-per-file", defaults.RowGroupsPerFile, "Row groups per output file")
	cmd.Flags().IntVar(&maxWorkers, "max-workers", defaults.MaxWorkers, "Number of batches processed in parallel")
	cmd.Flags().Int64Var(&shuffleSeed, "shuffle-seed", 0, "Shuffle seed for batch partitioning (0 derives one from the clock)")
	cmd.Flags().StringVar(&filePrefix, "file-prefix", src.FilePrefix, "Prefix for output file names")

	return cmd
}
