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

// Package commands implements the docconv command line.
package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nicholasgasior/docconv-go"
	"github.com/nicholasgasior/docconv-go/internal/config"
	"github.com/nicholasgasior/docconv-go/internal/logging"
	"github.com/nicholasgasior/docconv-go/workflow"
)

// app holds the state shared by every subcommand. Configuration and the
// logger are loaded lazily so that formats and version work without a
// valid configuration.
type app struct {
	configPath string
	cfg        *config.Config
	log        *logrus.Logger
	cleanup    func()
}

// NewRootCmd creates the root command. The returned function releases the
// logger output and must be called once the command has finished, whether
// or not it failed.
func NewRootCmd(version string) (*cobra.Command, func()) {
	a := &app{cleanup: func() {}}
	return newRootCmd(a, version), a.close
}

func newRootCmd(a *app, version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "docconv",
		Short:        "Convert documents between pdf, docx, xlsx, csv, json and txt",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "configuration file (default: ./docconv.yaml, $HOME/.docconv, /etc/docconv)")

	rootCmd.AddCommand(
		newConvertCommand(a),
		newBatchCommand(a),
		newFormatsCommand(),
		newWorkflowCommand(a),
		newVersionCommand(version),
	)

	return rootCmd
}

// close releases the logger output. It is safe to call more than once.
func (a *app) close() {
	a.cleanup()
	a.cleanup = func() {}
}

func (a *app) load() error {
	if a.cfg != nil {
		return nil
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	log, cleanup, err := logging.New(cfg.Logger)
	if err != nil {
		return err
	}
	a.cfg, a.log, a.cleanup = cfg, log, cleanup
	if cfg.File != "" {
		log.WithField("file", cfg.File).Debug("configuration loaded")
	}
	return nil
}

func (a *app) converter() *docconv.Converter {
	opts := append(a.cfg.ConverterOptions(), docconv.WithLogger(a.log))
	return docconv.New(opts...)
}

// scheduler opens the configured workflow store. The returned function
// closes it.
func (a *app) scheduler(ctx context.Context) (*workflow.Scheduler, func(), error) {
	if err := a.load(); err != nil {
		return nil, nil, err
	}
	st := a.cfg.Workflow.Store
	store, err := workflow.OpenStore(ctx, workflow.StoreConfig{
		Driver:   st.Driver,
		Source:   st.Source,
		Password: st.Password,
		DB:       st.DB,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open workflow store: %w", err)
	}
	b := a.cfg.Batch
	s := workflow.NewScheduler(store, a.converter(),
		workflow.WithLogger(a.log),
		workflow.WithConcurrency(b.Concurrency),
		workflow.WithParallel(a.cfg.Workflow.Parallel),
		workflow.WithBatchDefaults(b.Timeout, jobRetries(b.Retries), b.RetryDelay),
	)
	return s, func() { _ = store.Close() }, nil
}

// jobRetries maps a configured retry count onto BatchJob.Retries, where 0
// selects the default and negative disables retries.
func jobRetries(n int) int {
	if n <= 0 {
		return -1
	}
	return n
}

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// renderTable writes rows as a bordered table.
func renderTable(w io.Writer, headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Fprintln(w, t.String())
}

func formatList(fs []docconv.Format) string {
	names := make([]string, len(fs))
	for i, f := range fs {
		names[i] = string(f)
	}
	return strings.Join(names, ", ")
}
