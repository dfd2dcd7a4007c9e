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
	"strings"

	"github.com/spf13/cobra"

	"github.com/dmpworks/corpusrunner/config"
	"github.com/dmpworks/corpusrunner/internal/engine"
	"github.com/dmpworks/corpusrunner/internal/subset"
)

func init() {
	var (
		institutionsPath string
		doisPath         string
		maxWorkers       int
	)

	datasetNames := make([]string, 0, len(subset.Datasets()))
	for _, d := range subset.Datasets() {
		datasetNames = append(datasetNames, string(d))
	}

	cmd := &cobra.Command{
		Use:   "subset DATASET IN_DIR OUT_DIR",
		Short: "Cut an affiliation matched subset out of a corpus",
		Long: `Stream every file of a corpus release through an institution and DOI
filter, appending matched lines verbatim to per worker gzip shards. DATASET is
one of: ` + strings.Join(datasetNames, ", ") + `.

The institutions file is a JSON list of {"name", "ror"} objects; the optional
DOIs file is a JSON list of strings. The output directory must be empty.`,
		Args: cobra.ExactArgs(3),
		RunE: func(c *cobra.Command, args []string) error {
			ds, err := subset.ParseDataset(args[0])
			if err != nil {
				return err
			}
			inDir, outDir := args[1], args[2]

			servicename := "corpusrunner-subset-" + string(ds)
			doneCtx, doneCancel := handleSignals(context.Background())
			defer doneCancel()
			if err := setupLogging(servicename); err != nil {
				return fmt.Errorf("failed to setup logging: %w", err)
			}

			if err := ensureDirectory(inDir); err != nil {
				return err
			}
			if err := subset.EnsureEmptyDir(outDir); err != nil {
				return err
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			workers := cfg.Subset.MaxWorkers
			if c.Flags().Changed("max-workers") {
				workers = maxWorkers
			}
			if workers < 1 {
				return fmt.Errorf("max workers must be >= 1, got %d", workers)
			}

			if institutionsPath == "" {
				institutionsPath = cfg.Subset.InstitutionsPath
			}
			if institutionsPath == "" {
				return fmt.Errorf("an institutions file is required: pass --institutions or set subset.institutions_path")
			}
			if doisPath == "" {
				doisPath = cfg.Subset.DOIsPath
			}

			institutions, err := subset.LoadInstitutions(institutionsPath)
			if err != nil {
				return err
			}
			var dois []string
			if doisPath != "" {
				if dois, err = subset.LoadDOIs(doisPath); err != nil {
					return err
				}
			}
			slog.Info("loaded match lists",
				slog.String("dataset", string(ds)),
				slog.Int("institutions", len(institutions)),
				slog.Int("dois", len(dois)))

			result, err := engine.Filter(doneCtx, engine.FilterConfig{
				InputDir:     inDir,
				FilePattern:  ds.FilePattern(),
				OutputDir:    outDir,
				Predicate:    subset.NewFilter(ds, institutions, dois),
				MaxWorkers:   workers,
				PollInterval: cfg.Subset.PollInterval,
				ProgressTo:   os.Stderr,
			})
			if err != nil {
				return fmt.Errorf("subset %s: %w", ds, err)
			}
			if result.Errors > 0 {
				return fmt.Errorf("subset %s: %d of %d files failed to filter", ds, result.Errors, result.TotalFiles)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&institutionsPath, "institutions", "", "JSON file with the institutions to match")
	cmd.Flags().StringVar(&doisPath, "dois", "", "JSON file with the DOIs to match")
	cmd.Flags().IntVar(&maxWorkers, "max-workers", config.Default().Subset.MaxWorkers, "Number of files filtered in parallel (also the shard count)")

	rootCmd.AddCommand(cmd)
}
