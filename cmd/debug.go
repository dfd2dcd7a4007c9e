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
	"github.com/spf13/cobra"

	debugcmd "github.com/dmpworks/corpusrunner/cmd/debug"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Debug commands for troubleshooting",
	Long:  `Debug commands for inspecting transform output and normalization behavior.`,
}

func init() {
	debugCmd.AddCommand(debugcmd.GetParquetCmd())
	debugCmd.AddCommand(debugcmd.GetParquetReportCmd())
	debugCmd.AddCommand(debugcmd.GetNormalizeCmd())
}
