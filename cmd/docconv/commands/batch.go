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
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nicholasgasior/docconv-go"
	"github.com/nicholasgasior/docconv-go/internal/discover"
)

func newBatchCommand(a *app) *cobra.Command {
	var (
		out       string
		to        string
		quality   string
		recursive bool
		workers   int
		timeout   time.Duration
		retries   int
		options   map[string]string
	)

	cmd := &cobra.Command{
		Use:   "batch PATH...",
		Short: "Convert many files concurrently",
		Long: `Convert every PATH into --out. Directories are expanded to the supported
files they contain. One failing file never stops the others; press Ctrl-C to
stop dispatching and let running conversions finish.`,
		Example: `  docconv batch --to json --out ./json ./exports
  docconv batch --to pdf --out ./pdf --recursive --workers 8 ./docs a.docx`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(); err != nil {
				return err
			}
			inputs, err := expandInputs(args, recursive, out)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			b := a.cfg.Batch
			job := docconv.BatchJob{
				Inputs:      inputs,
				OutputDir:   out,
				Format:      docconv.Format(to),
				Quality:     docconv.Quality(quality),
				Concurrency: b.Concurrency,
				Timeout:     b.Timeout,
				Retries:     jobRetries(b.Retries),
				RetryDelay:  b.RetryDelay,
				Options:     options,
			}
			if job.Quality == "" {
				job.Quality = a.cfg.Conversion.DefaultQuality
			}
			if flags.Changed("workers") {
				job.Concurrency = workers
			}
			if flags.Changed("timeout") {
				job.Timeout = timeout
			}
			if flags.Changed("retries") {
				job.Retries = jobRetries(retries)
			}
			job.Progress = func(p docconv.BatchProgress) {
				a.log.WithFields(logrus.Fields{
					"completed": p.Completed,
					"total":     p.Total,
					"failed":    p.Failed,
				}).Infof("processed %s", p.Current)
			}

			res, err := a.converter().Batch(cmd.Context(), job)
			if err != nil {
				return err
			}
			printBatchResult(cmd.OutOrStdout(), res)
			if n := len(res.Failed) + len(res.Cancelled); n > 0 {
				return fmt.Errorf("%d of %d files were not converted", n, res.TotalFiles)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&out, "out", "", "output directory (created when missing)")
	flags.StringVarP(&to, "to", "t", "", "target format (pdf, docx, xlsx, csv, json, txt)")
	flags.StringVarP(&quality, "quality", "q", "", "quality tier: low, medium or high (default from config)")
	flags.BoolVarP(&recursive, "recursive", "r", false, "descend into subdirectories of directory arguments")
	flags.IntVarP(&workers, "workers", "w", 0, "concurrent conversions (default from config, 0 = CPU count)")
	flags.DurationVar(&timeout, "timeout", 0, "per-file timeout (default from config, 0 = none)")
	flags.IntVar(&retries, "retries", 0, "re-attempts for failed conversions (default from config)")
	flags.StringToStringVarP(&options, "option", "o", nil, "codec option, e.g. sheet=Summary or delimiter=;")
	_ = cmd.MarkFlagRequired("out")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

// expandInputs replaces directory arguments with the supported files they
// contain, skipping the output directory.
func expandInputs(args []string, recursive bool, out string) ([]string, error) {
	var inputs []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil || !info.IsDir() {
			// Missing files are reported per file by the batch.
			inputs = append(inputs, arg)
			continue
		}
		files, err := discover.Discover(arg, docconv.AllExtensions(), recursive, out)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, files...)
	}
	return inputs, nil
}

func printBatchResult(w io.Writer, res *docconv.BatchResult) {
	fmt.Fprintf(w, "%d files: %d converted, %d failed, %d cancelled in %s (%.0f%% success)\n",
		res.TotalFiles, len(res.Successful), len(res.Failed), len(res.Cancelled),
		res.Elapsed.Round(time.Millisecond), res.SuccessRate()*100)
	for _, f := range res.Failed {
		fmt.Fprintf(w, "  failed    %s: %v\n", f.Input, f.Err)
	}
	for _, c := range res.Cancelled {
		fmt.Fprintf(w, "  cancelled %s\n", c.Input)
	}
}
