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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dmpworks/corpusrunner/internal/fields"
	"github.com/dmpworks/corpusrunner/internal/names"
)

// GetNormalizeCmd returns a command that previews how the transforms
// normalize values, to answer "why did this identifier not match" without
// rerunning a whole corpus.
func GetNormalizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Preview identifier and name normalization",
		Long:  `Shows how the transforms normalize DOI, ROR and ORCID identifiers and how person names split into parts.`,
	}

	cmd.AddCommand(getNormalizeExtractSubCmd("doi", "DOI", fields.ExtractDOI))
	cmd.AddCommand(getNormalizeExtractSubCmd("ror", "ROR ID", fields.ExtractROR))
	cmd.AddCommand(getNormalizeExtractSubCmd("orcid", "ORCID ID", fields.ExtractORCID))
	cmd.AddCommand(getNormalizeNameSubCmd())

	return cmd
}

func getNormalizeExtractSubCmd(use, kind string, extract func(string) (string, bool)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " VALUE...",
		Short: "Extract the " + kind + " from each value",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			for _, arg := range args {
				id, ok := extract(arg)
				if !ok {
					id = "<none>"
				}
				fmt.Printf("%s\t%s\n", arg, id)
			}
			return nil
		},
	}
}

func getNormalizeNameSubCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "name FULL_NAME...",
		Short: "Split each full name into its parts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			for _, arg := range args {
				n := names.Parse(arg)
				fmt.Printf("%s\tgiven=%q middle=%q surname=%q\n", arg, n.GivenName, n.MiddleNames, n.Surname)
			}
			return nil
		},
	}
}
