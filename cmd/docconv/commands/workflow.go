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
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/nicholasgasior/docconv-go"
	"github.com/nicholasgasior/docconv-go/workflow"
)

func newWorkflowCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "workflow",
		Aliases: []string{"wf"},
		Args:    cobra.NoArgs,
		Short:   "Manage saved batch workflows",
		Long: `Workflows are named batch configurations (input directory, output
directory, target format, quality) persisted in the configured store and run
on demand.`,
	}

	cmd.AddCommand(
		newWorkflowCreateCommand(a),
		newWorkflowUpdateCommand(a),
		newWorkflowListCommand(a),
		newWorkflowRunCommand(a),
		newWorkflowRunAllCommand(a),
		newWorkflowStateCommand(a, "enable", "Allow a workflow to run", (*workflow.Scheduler).Enable),
		newWorkflowStateCommand(a, "disable", "Prevent a workflow from running", (*workflow.Scheduler).Disable),
		newWorkflowStateCommand(a, "delete", "Delete a workflow and its history", (*workflow.Scheduler).Delete),
		newWorkflowRunsCommand(a),
	)

	return cmd
}

// definitionFlags binds the editable fields of a definition.
type definitionFlags struct {
	in        string
	out       string
	to        string
	quality   string
	recursive bool
}

func (f *definitionFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.in, "in", "", "input directory")
	flags.StringVar(&f.out, "out", "", "output directory")
	flags.StringVarP(&f.to, "to", "t", "", "target format (pdf, docx, xlsx, csv, json, txt)")
	flags.StringVarP(&f.quality, "quality", "q", "", "quality tier: low, medium or high")
	flags.BoolVarP(&f.recursive, "recursive", "r", false, "include subdirectories")
}

// apply copies the flags the user set onto def.
func (f *definitionFlags) apply(cmd *cobra.Command, def *workflow.Definition) {
	flags := cmd.Flags()
	if flags.Changed("in") {
		def.InputDir = f.in
	}
	if flags.Changed("out") {
		def.OutputDir = f.out
	}
	if flags.Changed("to") {
		def.Format = docconv.Format(f.to)
	}
	if flags.Changed("quality") {
		def.Quality = docconv.Quality(f.quality)
	}
	if flags.Changed("recursive") {
		def.Recursive = f.recursive
	}
}

func newWorkflowCreateCommand(a *app) *cobra.Command {
	var f definitionFlags
	cmd := &cobra.Command{
		Use:     "create NAME",
		Short:   "Create an enabled workflow",
		Example: `  docconv workflow create invoices --in ./inbox --out ./pdf --to pdf --quality medium`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeStore, err := a.scheduler(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			def := workflow.Definition{Name: args[0], Quality: a.cfg.Conversion.DefaultQuality}
			f.apply(cmd, &def)
			created, err := s.Create(cmd.Context(), def)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created workflow %q: %s -> %s (%s, %s)\n",
				created.Name, created.InputDir, created.OutputDir, created.Format, created.Quality)
			return nil
		},
	}
	f.register(cmd)
	_ = cmd.MarkFlagRequired("in")
	_ = cmd.MarkFlagRequired("out")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newWorkflowUpdateCommand(a *app) *cobra.Command {
	var f definitionFlags
	cmd := &cobra.Command{
		Use:   "update NAME",
		Short: "Change the directories, format or quality of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeStore, err := a.scheduler(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			def, err := s.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			f.apply(cmd, def)
			updated, err := s.Update(cmd.Context(), *def)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "updated workflow %q: %s -> %s (%s, %s)\n",
				updated.Name, updated.InputDir, updated.OutputDir, updated.Format, updated.Quality)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newWorkflowListCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List workflows",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, closeStore, err := a.scheduler(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			defs, err := s.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(defs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no workflows")
				return nil
			}
			rows := make([][]string, 0, len(defs))
			for _, d := range defs {
				state := "enabled"
				if !d.Enabled {
					state = "disabled"
				}
				rows = append(rows, []string{
					d.Name, state, string(d.Format), string(d.Quality),
					d.InputDir, d.OutputDir, strconv.Itoa(d.RunCount), formatTime(d.LastRunAt),
				})
			}
			renderTable(cmd.OutOrStdout(),
				[]string{"NAME", "STATE", "FORMAT", "QUALITY", "INPUT", "OUTPUT", "RUNS", "LAST RUN"}, rows)
			return nil
		},
	}
}

func newWorkflowRunCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run NAME",
		Short: "Run a workflow now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeStore, err := a.scheduler(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			res, err := s.Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printBatchResult(cmd.OutOrStdout(), res)
			return nil
		},
	}
}

func newWorkflowRunAllCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run-all",
		Short: "Run every enabled workflow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, closeStore, err := a.scheduler(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			agg, err := s.RunAllEnabled(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(agg.Outcomes) == 0 {
				fmt.Fprintln(w, "no enabled workflows")
				return nil
			}
			for _, o := range agg.Outcomes {
				if o.Err != nil {
					fmt.Fprintf(w, "%s: error: %v\n", o.Name, o.Err)
					continue
				}
				fmt.Fprintf(w, "%s: ", o.Name)
				printBatchResult(w, o.Result)
			}
			fmt.Fprintf(w, "%d of %d workflows completed in %s\n",
				agg.Succeeded(), len(agg.Outcomes), agg.Elapsed.Round(time.Millisecond))
			if failed := agg.Failed(); len(failed) > 0 {
				return fmt.Errorf("%d workflows failed", len(failed))
			}
			return nil
		},
	}
}

func newWorkflowStateCommand(a *app, use, short string, op func(*workflow.Scheduler, context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " NAME",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeStore, err := a.scheduler(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			if err := op(s, cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %sd\n", args[0], use)
			return nil
		},
	}
}

func newWorkflowRunsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "runs NAME",
		Short: "Show the run history of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeStore, err := a.scheduler(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()

			runs, err := s.Runs(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no runs")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, r := range runs {
				rows = append(rows, []string{
					r.ID, formatTime(&r.StartedAt), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
					strconv.Itoa(r.TotalFiles), strconv.Itoa(r.Successful), strconv.Itoa(r.Failed),
					strconv.Itoa(r.Cancelled), r.Error,
				})
			}
			renderTable(cmd.OutOrStdout(),
				[]string{"RUN", "STARTED", "DURATION", "FILES", "OK", "FAILED", "CANCELLED", "ERROR"}, rows)
			return nil
		},
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "never"
	}
	return t.Local().Format(time.DateTime)
}
