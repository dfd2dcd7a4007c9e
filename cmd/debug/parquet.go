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

package debug

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/spf13/cobra"
)

func GetParquetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parquet",
		Short: "Parquet file debugging utilities",
		Long:  `Various utilities for debugging and inspecting transform output files.`,
	}

	cmd.AddCommand(getParquetCatSubCmd())
	cmd.AddCommand(getParquetSchemaSubCmd())

	return cmd
}

func getParquetCatSubCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat",
		Short: "Output parquet file contents as JSON lines",
		Long:  `Reads a parquet file and outputs each row as a JSON line for debugging purposes.`,
		RunE: func(c *cobra.Command, _ []string) error {
			filename, err := c.Flags().GetString("file")
			if err != nil {
				return fmt.Errorf("failed to get file flag: %w", err)
			}

			limit, err := c.Flags().GetInt("limit")
			if err != nil {
				return fmt.Errorf("failed to get limit flag: %w", err)
			}

			compact, err := c.Flags().GetBool("compact")
			if err != nil {
				return fmt.Errorf("failed to get compact flag: %w", err)
			}

			return runParquetCat(filename, limit, compact)
		},
	}

	cmd.Flags().String("file", "", "Parquet file to read")
	if err := cmd.MarkFlagRequired("file"); err != nil {
		panic(fmt.Errorf("failed to mark file flag as required: %w", err))
	}

	cmd.Flags().Int("limit", 0, "Maximum number of rows to output (0 for unlimited)")
	cmd.Flags().Bool("compact", false, "Drop null columns, matching the shape of the source JSON Lines")

	return cmd
}

func getParquetSchemaSubCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the schema of a Parquet file",
		Long:  `Prints the parquet schema structure as defined in the file metadata.`,
		RunE: func(c *cobra.Command, _ []string) error {
			filename, err := c.Flags().GetString("file")
			if err != nil {
				return fmt.Errorf("failed to get file flag: %w", err)
			}

			return runParquetSchema(filename)
		},
	}

	cmd.Flags().String("file", "", "Parquet file to read")
	if err := cmd.MarkFlagRequired("file"); err != nil {
		panic(fmt.Errorf("failed to mark file flag as required: %w", err))
	}

	return cmd
}

func runParquetCat(filename string, limit int, compact bool) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", filename, err)
	}
	defer func() { _ = file.Close() }()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file %s: %w", filename, err)
	}

	pf, err := parquet.OpenFile(file, stat.Size())
	if err != nil {
		return fmt.Errorf("failed to open parquet file: %w", err)
	}

	reader := parquet.NewGenericReader[map[string]any](pf, pf.Schema())
	defer func() { _ = reader.Close() }()

	rowsOutput := 0
	batchSize := 1000
	if limit > 0 && limit < batchSize {
		batchSize = limit
	}

	for limit <= 0 || rowsOutput < limit {

		currentBatchSize := batchSize
		if limit > 0 && rowsOutput+batchSize > limit {
			currentBatchSize = limit - rowsOutput
		}

		rows := make([]map[string]any, currentBatchSize)
		for i := range rows {
			rows[i] = make(map[string]any)
		}

		n, err := reader.Read(rows)
		if err != nil && err != io.EOF {
			return fmt.Errorf("error reading parquet rows: %w", err)
		}

		if n == 0 {
			break
		}

		for i := 0; i < n; i++ {
			row := rows[i]
			if compact {
				row = dropNullColumns(row)
			}
			jsonBytes, err := json.Marshal(row)
			if err != nil {
				return fmt.Errorf("error marshaling row to JSON: %w", err)
			}
			fmt.Println(string(jsonBytes))
			rowsOutput++

			if limit > 0 && rowsOutput >= limit {
				return nil
			}
		}

		if err == io.EOF {
			break
		}
	}

	return nil
}

// dropNullColumns removes nil valued entries. Absent optional columns read
// back as nils, while the source JSON Lines simply omit the keys.
func dropNullColumns(row map[string]any) map[string]any {
	compacted := make(map[string]any, len(row))
	for key, value := range row {
		if value == nil {
			continue
		}
		compacted[key] = value
	}
	return compacted
}

func runParquetSchema(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", filename, err)
	}
	defer func() { _ = file.Close() }()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file %s: %w", filename, err)
	}

	pf, err := parquet.OpenFile(file, stat.Size())
	if err != nil {
		return fmt.Errorf("failed to open parquet file: %w", err)
	}

	fmt.Println(pf.Schema().String())
	return nil
}
