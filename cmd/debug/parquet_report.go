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
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/parquet-go/parquet-go"
	"github.com/spf13/cobra"

	"github.com/dmpworks/corpusrunner/internal/jsonl"
)

// FileReport represents sizing information for a single transform output file.
type FileReport struct {
	Filename            string
	Records             int64
	RowGroups           int
	ParquetSize         int64
	UncompressedJSONL   int64
	CompressedJSONL     int64
	BytesPerRecordPQ    float64
	BytesPerRecordJSONL float64
	BytesPerRecordGZ    float64
	PQvsJSONL           float64 // Reduction percent
	PQvsGZ              float64 // Reduction percent
}

// SummaryReport represents the aggregate sizing information.
type SummaryReport struct {
	TotalFiles          int
	TotalRecords        int64
	TotalRowGroups      int
	TotalParquetSize    int64
	TotalJSONLSize      int64
	TotalGZSize         int64
	AvgBytesPerRecPQ    float64
	AvgBytesPerRecJSONL float64
	AvgBytesPerRecGZ    float64
	AvgRowsPerGroup     float64
	AvgRowGroupSize     float64
	AvgFileSize         float64
	OverallPQvsJSONL    float64
	OverallPQvsGZ       float64
}

func GetParquetReportCmd() *cobra.Command {
	var (
		detailed bool
		sample   int
		workers  int
	)

	cmd := &cobra.Command{
		Use:   "parquet-report DIR",
		Short: "Generate a sizing report for transform output",
		Long: `Analyze the Parquet files under a directory: row and row group counts, and
size versus the equivalent JSON Lines and gzipped JSON Lines. The row group
figures show whether the transform tuning hits the 128MB-512MB row group and
512MB-1GB file targets.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := args[0]
			return runParquetReport(cmd.Context(), dir, detailed, sample, workers)
		},
	}

	cmd.Flags().BoolVar(&detailed, "detailed", false, "Show detailed per-file statistics")
	cmd.Flags().IntVar(&sample, "sample", 0, "Randomly sample N files (0 = process all files)")
	cmd.Flags().IntVar(&workers, "workers", 0, "Number of parallel workers (0 = NumCPU)")

	return cmd
}

func runParquetReport(ctx context.Context, dir string, detailed bool, sampleSize, workers int) error {
	parquetFiles, err := jsonl.FindFiles(dir, "**/*.parquet")
	if err != nil {
		return fmt.Errorf("failed to find parquet files: %w", err)
	}

	if len(parquetFiles) == 0 {
		return fmt.Errorf("no parquet files found in %s", dir)
	}

	// Apply sampling if requested
	originalCount := len(parquetFiles)
	if sampleSize > 0 && len(parquetFiles) > sampleSize {
		fmt.Printf("Found %d parquet files, randomly sampling %d\n", len(parquetFiles), sampleSize)
		parquetFiles = sampleFiles(parquetFiles, sampleSize)
	} else {
		fmt.Printf("Found %d parquet files to analyze\n", len(parquetFiles))
	}

	numWorkers := workers
	if numWorkers < 1 {
		numWorkers = runtime.NumCPU()
	}
	if len(parquetFiles) < numWorkers {
		numWorkers = len(parquetFiles)
	}
	fmt.Printf("Using %d parallel workers\n", numWorkers)
	if sampleSize > 0 && originalCount > len(parquetFiles) {
		fmt.Printf("Processing %d sampled files out of %d total files\n", len(parquetFiles), originalCount)
	}
	fmt.Printf("\n")

	type workItem struct {
		index int
		path  string
	}

	type result struct {
		index  int
		report *FileReport
		err    error
	}

	workChan := make(chan workItem, len(parquetFiles))
	resultChan := make(chan result, len(parquetFiles))

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for work := range workChan {
				report, err := analyzeParquetFile(ctx, work.path)
				resultChan <- result{
					index:  work.index,
					report: report,
					err:    err,
				}
			}
		}()
	}

	for i, filePath := range parquetFiles {
		workChan <- workItem{index: i, path: filePath}
	}
	close(workChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	results := make([]result, 0, len(parquetFiles))
	processedCount := 0
	for res := range resultChan {
		results = append(results, res)
		processedCount++
		fmt.Printf("\rProcessed %d/%d files", processedCount, len(parquetFiles))
	}
	fmt.Printf("\n\n")

	// Sort results by original index to maintain order
	sort.Slice(results, func(i, j int) bool {
		return results[i].index < results[j].index
	})

	var reports []FileReport
	var totalRecords int64
	var totalRowGroups int
	var totalParquetSize int64
	var totalJSONLSize int64
	var totalGZSize int64

	for _, res := range results {
		if res.err != nil {
			fmt.Printf("Warning: Failed to analyze %s: %v\n", parquetFiles[res.index], res.err)
			continue
		}
		if res.report != nil {
			reports = append(reports, *res.report)
			totalRecords += res.report.Records
			totalRowGroups += res.report.RowGroups
			totalParquetSize += res.report.ParquetSize
			totalJSONLSize += res.report.UncompressedJSONL
			totalGZSize += res.report.CompressedJSONL
		}
	}

	summary := SummaryReport{
		TotalFiles:       len(reports),
		TotalRecords:     totalRecords,
		TotalRowGroups:   totalRowGroups,
		TotalParquetSize: totalParquetSize,
		TotalJSONLSize:   totalJSONLSize,
		TotalGZSize:      totalGZSize,
	}

	if totalRecords > 0 {
		summary.AvgBytesPerRecPQ = float64(totalParquetSize) / float64(totalRecords)
		summary.AvgBytesPerRecJSONL = float64(totalJSONLSize) / float64(totalRecords)
		summary.AvgBytesPerRecGZ = float64(totalGZSize) / float64(totalRecords)
	}
	if totalRowGroups > 0 {
		summary.AvgRowsPerGroup = float64(totalRecords) / float64(totalRowGroups)
		summary.AvgRowGroupSize = float64(totalParquetSize) / float64(totalRowGroups)
	}
	if len(reports) > 0 {
		summary.AvgFileSize = float64(totalParquetSize) / float64(len(reports))
	}

	if totalJSONLSize > 0 {
		summary.OverallPQvsJSONL = (1 - float64(totalParquetSize)/float64(totalJSONLSize)) * 100
	}
	if totalGZSize > 0 {
		summary.OverallPQvsGZ = (1 - float64(totalParquetSize)/float64(totalGZSize)) * 100
	}

	printParquetReport(reports, summary, detailed)

	return nil
}

func analyzeParquetFile(ctx context.Context, filePath string) (*FileReport, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	parquetSize := stat.Size()

	pf, err := parquet.OpenFile(file, parquetSize)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	rowGroups := len(pf.RowGroups())

	reader := parquet.NewGenericReader[map[string]any](pf, pf.Schema())
	defer func() { _ = reader.Close() }()

	// Re-encode every row as JSON Lines and as gzipped JSON Lines, which is
	// what the source corpora ship as.
	var recordCount int64
	var jsonlBuffer bytes.Buffer
	gzipWriter := gzip.NewWriter(&jsonlBuffer)
	encoder := json.NewEncoder(gzipWriter)

	var uncompressedSize int64

	batchSize := 1000
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows := make([]map[string]any, batchSize)
		for i := range rows {
			rows[i] = make(map[string]any)
		}

		n, err := reader.Read(rows)
		if err != nil && err != io.EOF {
			return nil, fmt.Errorf("error reading parquet rows: %w", err)
		}

		if n == 0 {
			break
		}

		for i := 0; i < n; i++ {
			// Absent columns read back as nils; the source JSON Lines omit
			// the keys instead.
			row := dropNullColumns(rows[i])

			jsonBytes, err := json.Marshal(row)
			if err != nil {
				return nil, fmt.Errorf("error marshaling row to JSON: %w", err)
			}
			// Add newline as we would in JSON lines format
			uncompressedSize += int64(len(jsonBytes)) + 1

			if err := encoder.Encode(row); err != nil {
				return nil, fmt.Errorf("error encoding to gzip: %w", err)
			}

			recordCount++
		}

		if err == io.EOF {
			break
		}
	}

	if err := gzipWriter.Close(); err != nil {
		return nil, fmt.Errorf("error closing gzip writer: %w", err)
	}

	compressedSize := int64(jsonlBuffer.Len())

	report := &FileReport{
		Filename:          filepath.Base(filePath),
		Records:           recordCount,
		RowGroups:         rowGroups,
		ParquetSize:       parquetSize,
		UncompressedJSONL: uncompressedSize,
		CompressedJSONL:   compressedSize,
	}

	if recordCount > 0 {
		report.BytesPerRecordPQ = float64(parquetSize) / float64(recordCount)
		report.BytesPerRecordJSONL = float64(uncompressedSize) / float64(recordCount)
		report.BytesPerRecordGZ = float64(compressedSize) / float64(recordCount)
	}

	if uncompressedSize > 0 {
		report.PQvsJSONL = (1 - float64(parquetSize)/float64(uncompressedSize)) * 100
	}
	if compressedSize > 0 {
		report.PQvsGZ = (1 - float64(parquetSize)/float64(compressedSize)) * 100
	}

	return report, nil
}

func printParquetReport(reports []FileReport, summary SummaryReport, detailed bool) {
	fmt.Printf("%s\n", strings.Repeat("=", 100))
	fmt.Printf("PARQUET SIZING REPORT\n")
	fmt.Printf("%s\n\n", strings.Repeat("=", 100))

	fmt.Printf("SUMMARY\n")
	fmt.Printf("  Total files analyzed: %d\n", summary.TotalFiles)
	fmt.Printf("  Total records: %s\n", formatNumber(summary.TotalRecords))
	fmt.Printf("  Total row groups: %s\n", formatNumber(int64(summary.TotalRowGroups)))
	fmt.Printf("\n")

	fmt.Printf("ROW GROUP TUNING\n")
	fmt.Printf("%-25s %15s\n", strings.Repeat("-", 25), strings.Repeat("-", 15))
	fmt.Printf("%-25s %15.0f\n", "Avg Rows/Group", summary.AvgRowsPerGroup)
	fmt.Printf("%-25s %15s\n", "Avg Row Group Size", formatBytes(int64(summary.AvgRowGroupSize)))
	fmt.Printf("%-25s %15s\n", "Avg File Size", formatBytes(int64(summary.AvgFileSize)))
	fmt.Printf("%-25s %15s\n", strings.Repeat("-", 25), strings.Repeat("-", 15))
	fmt.Printf("\n")

	// Combined metrics table with formats as columns
	fmt.Printf("SIZE COMPARISON\n")
	fmt.Printf("%-25s %15s %15s %15s\n", strings.Repeat("-", 25), strings.Repeat("-", 15), strings.Repeat("-", 15), strings.Repeat("-", 15))
	fmt.Printf("%-25s %15s %15s %15s\n", "Metric", "Parquet", "JSONL", "JSONL.gz")
	fmt.Printf("%-25s %15s %15s %15s\n", strings.Repeat("-", 25), strings.Repeat("-", 15), strings.Repeat("-", 15), strings.Repeat("-", 15))

	fmt.Printf("%-25s %15s %15s %15s\n", "Total Size",
		formatBytes(summary.TotalParquetSize),
		formatBytes(summary.TotalJSONLSize),
		formatBytes(summary.TotalGZSize))

	fmt.Printf("%-25s %15.1f %15.1f %15.1f\n", "Avg Bytes/Record",
		summary.AvgBytesPerRecPQ,
		summary.AvgBytesPerRecJSONL,
		summary.AvgBytesPerRecGZ)

	fmt.Printf("%-25s %15s %15s %15s\n", strings.Repeat("-", 25), strings.Repeat("-", 15), strings.Repeat("-", 15), strings.Repeat("-", 15))
	fmt.Printf("\n")

	fmt.Printf("PARQUET SPACE SAVINGS\n")
	fmt.Printf("%-25s %15s\n", strings.Repeat("-", 25), strings.Repeat("-", 15))
	fmt.Printf("%-25s %15s\n", "Comparison", "Reduction")
	fmt.Printf("%-25s %15s\n", strings.Repeat("-", 25), strings.Repeat("-", 15))
	if summary.OverallPQvsJSONL >= 0 {
		fmt.Printf("%-25s %14.1f%%\n", "Parquet vs JSONL", summary.OverallPQvsJSONL)
	} else {
		fmt.Printf("%-25s %14.1f%% larger\n", "Parquet vs JSONL", -summary.OverallPQvsJSONL)
	}
	if summary.OverallPQvsGZ >= 0 {
		fmt.Printf("%-25s %14.1f%%\n", "Parquet vs JSONL.gz", summary.OverallPQvsGZ)
	} else {
		fmt.Printf("%-25s %14.1f%% larger\n", "Parquet vs JSONL.gz", -summary.OverallPQvsGZ)
	}
	fmt.Printf("%-25s %15s\n", strings.Repeat("-", 25), strings.Repeat("-", 15))

	if detailed && len(reports) > 0 {
		fmt.Printf("\n%s\n", strings.Repeat("=", 100))
		fmt.Printf("DETAILED FILE STATISTICS\n")
		fmt.Printf("%s\n\n", strings.Repeat("=", 100))

		sort.Slice(reports, func(i, j int) bool {
			return reports[i].Filename < reports[j].Filename
		})

		fmt.Printf("FILE SIZES\n")
		fmt.Printf("%-30s %10s %7s %12s %12s %12s %9s %9s\n",
			strings.Repeat("-", 30), strings.Repeat("-", 10), strings.Repeat("-", 7), strings.Repeat("-", 12),
			strings.Repeat("-", 12), strings.Repeat("-", 12), strings.Repeat("-", 9), strings.Repeat("-", 9))
		fmt.Printf("%-30s %10s %7s %12s %12s %12s %9s %9s\n",
			"File", "Records", "Groups", "Parquet", "JSONL", "JSONL.gz", "vs JSONL", "vs GZ")
		fmt.Printf("%-30s %10s %7s %12s %12s %12s %9s %9s\n",
			strings.Repeat("-", 30), strings.Repeat("-", 10), strings.Repeat("-", 7), strings.Repeat("-", 12),
			strings.Repeat("-", 12), strings.Repeat("-", 12), strings.Repeat("-", 9), strings.Repeat("-", 9))

		for _, report := range reports {
			fmt.Printf("%-30s %10s %7d %12s %12s %12s %8.1f%% %8.1f%%\n",
				truncateFilename(report.Filename, 30),
				formatNumber(report.Records),
				report.RowGroups,
				formatBytes(report.ParquetSize),
				formatBytes(report.UncompressedJSONL),
				formatBytes(report.CompressedJSONL),
				report.PQvsJSONL,
				report.PQvsGZ,
			)
		}
		fmt.Printf("%-30s %10s %7s %12s %12s %12s %9s %9s\n",
			strings.Repeat("-", 30), strings.Repeat("-", 10), strings.Repeat("-", 7), strings.Repeat("-", 12),
			strings.Repeat("-", 12), strings.Repeat("-", 12), strings.Repeat("-", 9), strings.Repeat("-", 9))
	}

	fmt.Printf("\n%s\n", strings.Repeat("=", 100))
}

func formatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/GB)
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/MB)
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/KB)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	result := ""
	for i, ch := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(ch)
	}
	return result
}

func truncateFilename(filename string, maxLen int) string {
	if len(filename) <= maxLen {
		return filename
	}
	return filename[:maxLen-3] + "..."
}

// sampleFiles randomly samples n files from the input slice
func sampleFiles(files []string, n int) []string {
	if n >= len(files) {
		return files
	}

	// Create a copy to avoid modifying the original slice
	shuffled := make([]string, len(files))
	copy(shuffled, files)

	// Fisher-Yates shuffle for the first n elements
	for i := 0; i < n; i++ {
		j := i + rand.IntN(len(shuffled)-i)
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}

	return shuffled[:n]
}
