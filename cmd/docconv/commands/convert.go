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
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nicholasgasior/docconv-go"
)

func newConvertCommand(a *app) *cobra.Command {
	var (
		to      string
		quality string
		options map[string]string
	)

	cmd := &cobra.Command{
		Use:   "convert INPUT [OUTPUT]",
		Short: "Convert a single file",
		Long: `Convert a single file. The target format is taken from --to or, when
omitted, from the extension of OUTPUT. Without OUTPUT the result is written
next to the input. Existing files are never overwritten; a numeric suffix is
added instead.`,
		Example: `  docconv convert report.docx report.pdf
  docconv convert sales.xlsx --to csv --option sheet=Q3
  docconv convert data.csv --to json --quality low`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			req := docconv.Request{
				Input:   args[0],
				Format:  docconv.Format(to),
				Quality: docconv.Quality(quality),
				Options: options,
			}
			if len(args) == 2 {
				req.Output = args[1]
			}
			if req.Output == "" && req.Format == "" {
				return errors.New("either OUTPUT or --to is required")
			}
			if req.Quality == "" {
				req.Quality = a.cfg.Conversion.DefaultQuality
			}

			res := a.converter().Convert(cmd.Context(), req)
			if res.Err != nil {
				return res.Err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%s, %d bytes, %s)\n",
				res.Input, res.Output, res.Quality, res.Size, res.Duration.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVarP(&to, "to", "t", "", "target format (pdf, docx, xlsx, csv, json, txt)")
	cmd.Flags().StringVarP(&quality, "quality", "q", "", "quality tier: low, medium or high (default from config)")
	cmd.Flags().StringToStringVarP(&options, "option", "o", nil, "codec option, e.g. sheet=Summary or delimiter=;")

	return cmd
}
