// Copyright 2026 Conductor OSS
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.

package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nicholasgasior/docconv-go"
)

func newFormatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "formats [FORMAT]",
		Short: "List supported formats and conversions",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			if len(args) == 1 {
				f, ok := docconv.ParseFormat(args[0])
				if !ok {
					return &docconv.UnsupportedFormatError{Input: docconv.Format(args[0])}
				}
				fmt.Fprintf(w, "%s converts to: %s\n", f, formatList(docconv.SupportedConversions(f)))
				return nil
			}

			var rows [][]string
			for _, f := range docconv.SupportedFormats() {
				rows = append(rows, []string{string(f), strings.Join(f.Extensions(), " "), formatList(docconv.SupportedConversions(f))})
			}
			renderTable(w, []string{"FORMAT", "EXTENSIONS", "CONVERTS TO"}, rows)
			return nil
		},
	}
}

func newVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "docconv %s\n", version)
		},
	}
}
