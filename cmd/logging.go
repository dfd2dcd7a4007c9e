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
	"fmt"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// setupLogging installs the process wide slog default. Text logs go to
// stdout; progress lines go to stderr, so the two streams can be split.
// Setting CORPUSRUNNER_LOG_FILE additionally appends JSON logs to that file,
// which is how long corpus runs keep a machine readable record. DEBUG or
// CORPUSRUNNER_DEBUG in the environment lowers the level to debug.
func setupLogging(servicename string) error {
	var opts *slog.HandlerOptions
	if os.Getenv("DEBUG") != "" || os.Getenv("CORPUSRUNNER_DEBUG") != "" {
		opts = &slog.HandlerOptions{Level: slog.LevelDebug}
	}

	handlers := []slog.Handler{slog.NewTextHandler(os.Stdout, opts)}

	if path := os.Getenv("CORPUSRUNNER_LOG_FILE"); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", path, err)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, opts))
	}

	slog.SetDefault(slog.New(slogmulti.Fanout(handlers...)).With(
		slog.String("service", servicename),
	))
	return nil
}
