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

// Package workflow persists named batch configurations and runs them on
// demand through a docconv.Converter.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/nicholasgasior/docconv-go"
	"github.com/nicholasgasior/docconv-go/internal/discover"
)

// Runner executes batch jobs. *docconv.Converter satisfies it.
type Runner interface {
	Batch(ctx context.Context, job docconv.BatchJob) (*docconv.BatchResult, error)
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the logger for workflow events.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.log = l
		}
	}
}

// WithConcurrency sets the total number of conversion workers across all
// concurrently running workflows. 0 selects GOMAXPROCS.
func WithConcurrency(n int) Option {
	return func(s *Scheduler) { s.concurrency = max(n, 0) }
}

// WithParallel sets how many workflows RunAllEnabled runs at once.
func WithParallel(n int) Option {
	return func(s *Scheduler) { s.parallel = max(n, 1) }
}

// WithBatchDefaults sets the per-file timeout and retry policy of every run.
func WithBatchDefaults(timeout time.Duration, retries int, retryDelay time.Duration) Option {
	return func(s *Scheduler) {
		s.timeout = timeout
		s.retries = retries
		s.retryDelay = retryDelay
	}
}

// Scheduler manages workflow definitions and runs them. Mutations of one
// workflow are serialized; distinct workflows proceed independently.
type Scheduler struct {
	store  Store
	runner Runner
	locks  *keyedMutex
	log    logrus.FieldLogger
	now    func() time.Time

	concurrency int
	parallel    int
	timeout     time.Duration
	retries     int
	retryDelay  time.Duration
}

// NewScheduler creates a Scheduler over store that runs batches with runner.
func NewScheduler(store Store, runner Runner, opts ...Option) *Scheduler {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	s := &Scheduler{
		store:    store,
		runner:   runner,
		locks:    newKeyedMutex(),
		log:      discard,
		now:      time.Now,
		parallel: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates and stores a new, enabled workflow.
func (s *Scheduler) Create(ctx context.Context, def Definition) (*Definition, error) {
	d := def.Clone()
	d.normalize()
	if err := d.Validate(); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(d.Name)
	defer unlock()

	if _, err := s.store.Get(ctx, d.Name); err == nil {
		return nil, &DuplicateWorkflowError{Name: d.Name}
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	now := s.now()
	d.Enabled = true
	d.CreatedAt = now
	d.UpdatedAt = now
	d.LastRunAt = nil
	d.RunCount = 0
	if err := s.store.Put(ctx, d); err != nil {
		return nil, err
	}
	s.log.WithField("workflow", d.Name).Info("workflow created")
	return d, nil
}

// Get returns the named workflow.
func (s *Scheduler) Get(ctx context.Context, name string) (*Definition, error) {
	d, err := s.store.Get(ctx, name)
	if err != nil {
		return nil, notFound(name, err)
	}
	return d, nil
}

// Update replaces the directories, format, quality and recursion flag of an
// existing workflow. Its state and history are kept.
func (s *Scheduler) Update(ctx context.Context, def Definition) (*Definition, error) {
	in := def.Clone()
	in.normalize()

	unlock := s.locks.Lock(in.Name)
	defer unlock()

	d, err := s.store.Get(ctx, in.Name)
	if err != nil {
		return nil, notFound(in.Name, err)
	}
	d.InputDir = in.InputDir
	d.OutputDir = in.OutputDir
	d.Format = in.Format
	d.Quality = in.Quality
	d.Recursive = in.Recursive
	if err := d.Validate(); err != nil {
		return nil, err
	}
	d.UpdatedAt = s.now()
	if err := s.store.Put(ctx, d); err != nil {
		return nil, err
	}
	s.log.WithField("workflow", d.Name).Info("workflow updated")
	return d, nil
}

// Enable allows the workflow to run.
func (s *Scheduler) Enable(ctx context.Context, name string) error {
	return s.setEnabled(ctx, name, true)
}

// Disable prevents the workflow from running. It stays listable and editable.
func (s *Scheduler) Disable(ctx context.Context, name string) error {
	return s.setEnabled(ctx, name, false)
}

func (s *Scheduler) setEnabled(ctx context.Context, name string, enabled bool) error {
	unlock := s.locks.Lock(name)
	defer unlock()

	d, err := s.store.Get(ctx, name)
	if err != nil {
		return notFound(name, err)
	}
	if d.Enabled == enabled {
		return nil
	}
	d.Enabled = enabled
	d.UpdatedAt = s.now()
	if err := s.store.Put(ctx, d); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"workflow": name, "enabled": enabled}).Info("workflow state changed")
	return nil
}

// Delete removes the workflow and its run history.
func (s *Scheduler) Delete(ctx context.Context, name string) error {
	unlock := s.locks.Lock(name)
	defer unlock()

	if err := s.store.Delete(ctx, name); err != nil {
		return notFound(name, err)
	}
	s.log.WithField("workflow", name).Info("workflow deleted")
	return nil
}

// List returns every workflow ordered by creation time.
func (s *Scheduler) List(ctx context.Context) ([]*Definition, error) {
	return s.store.List(ctx)
}

// Runs returns the recorded runs of a workflow, oldest first.
func (s *Scheduler) Runs(ctx context.Context, name string) ([]*Run, error) {
	if _, err := s.Get(ctx, name); err != nil {
		return nil, err
	}
	return s.store.ListRuns(ctx, name)
}

// Run converts every supported file in the workflow's input directory. The
// returned error covers lookup, state and discovery failures; per-file
// failures are in the result.
func (s *Scheduler) Run(ctx context.Context, name string) (*docconv.BatchResult, error) {
	return s.run(ctx, name, s.concurrency)
}

func (s *Scheduler) run(ctx context.Context, name string, concurrency int) (*docconv.BatchResult, error) {
	unlock := s.locks.Lock(name)
	def, err := s.store.Get(ctx, name)
	unlock()
	if err != nil {
		return nil, notFound(name, err)
	}
	if !def.Enabled {
		return nil, &WorkflowDisabledError{Name: name}
	}

	run := &Run{
		ID:        uuid.NewString(),
		Workflow:  name,
		Format:    def.Format,
		Quality:   def.Quality,
		StartedAt: s.now(),
	}
	log := s.log.WithFields(logrus.Fields{"workflow": name, "run_id": run.ID})
	log.Info("workflow run started")

	res, err := s.execute(ctx, def, concurrency)
	run.FinishedAt = s.now()
	if err != nil {
		run.Error = err.Error()
	} else {
		run.TotalFiles = res.TotalFiles
		run.Successful = len(res.Successful)
		run.Failed = len(res.Failed)
		run.Cancelled = len(res.Cancelled)
	}

	// History is written even when the caller has gone away.
	recordCtx := context.WithoutCancel(ctx)
	if rerr := s.store.AppendRun(recordCtx, run); rerr != nil {
		log.WithError(rerr).Error("failed to record workflow run")
	}
	if rerr := s.bump(recordCtx, name, run.FinishedAt); rerr != nil {
		log.WithError(rerr).Error("failed to update workflow statistics")
	}

	if err != nil {
		log.WithError(err).Error("workflow run failed")
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"total":      run.TotalFiles,
		"successful": run.Successful,
		"failed":     run.Failed,
		"cancelled":  run.Cancelled,
	}).Info("workflow run finished")
	return res, nil
}

func (s *Scheduler) execute(ctx context.Context, def *Definition, concurrency int) (*docconv.BatchResult, error) {
	files, err := discover.Discover(def.InputDir, docconv.AllExtensions(), def.Recursive, def.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("discover files in %s: %w", def.InputDir, err)
	}
	if len(files) == 0 {
		s.log.WithField("workflow", def.Name).Warn("no files to process")
	}
	return s.runner.Batch(ctx, docconv.BatchJob{
		Inputs:      files,
		OutputDir:   def.OutputDir,
		Format:      def.Format,
		Quality:     def.Quality,
		Concurrency: concurrency,
		Timeout:     s.timeout,
		Retries:     s.retries,
		RetryDelay:  s.retryDelay,
	})
}

// bump records a finished run on the definition unless it was deleted
// while running.
func (s *Scheduler) bump(ctx context.Context, name string, at time.Time) error {
	unlock := s.locks.Lock(name)
	defer unlock()

	d, err := s.store.Get(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	d.RunCount++
	d.LastRunAt = &at
	return s.store.Put(ctx, d)
}

// Outcome is the result of one workflow within RunAllEnabled.
type Outcome struct {
	Name   string
	Result *docconv.BatchResult
	Err    error
}

// Aggregate reports every workflow started by RunAllEnabled, in list order.
type Aggregate struct {
	Outcomes []Outcome
	Elapsed  time.Duration
}

// Succeeded returns the number of workflows that ran without a
// workflow-level error.
func (a *Aggregate) Succeeded() int {
	n := 0
	for _, o := range a.Outcomes {
		if o.Err == nil {
			n++
		}
	}
	return n
}

// Failed returns the outcomes that ended with a workflow-level error.
func (a *Aggregate) Failed() []Outcome {
	var failed []Outcome
	for _, o := range a.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// RunAllEnabled runs every enabled workflow, up to the configured number at
// once. One workflow's failure never stops the others. The returned error
// only reports a failure to list the workflows.
func (s *Scheduler) RunAllEnabled(ctx context.Context) (*Aggregate, error) {
	start := time.Now()
	defs, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	var enabled []*Definition
	for _, d := range defs {
		if d.Enabled {
			enabled = append(enabled, d)
		}
	}

	agg := &Aggregate{Outcomes: make([]Outcome, len(enabled))}
	if len(enabled) == 0 {
		return agg, nil
	}

	total := s.concurrency
	if total == 0 {
		total = runtime.GOMAXPROCS(0)
	}
	// Every running batch needs at least one worker, so no more batches run
	// at once than the budget allows.
	parallel := max(min(s.parallel, len(enabled), total), 1)
	share := max(total/parallel, 1)

	var g errgroup.Group
	g.SetLimit(parallel)
	for i, d := range enabled {
		g.Go(func() error {
			res, err := s.run(ctx, d.Name, share)
			agg.Outcomes[i] = Outcome{Name: d.Name, Result: res, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	agg.Elapsed = time.Since(start)

	s.log.WithFields(logrus.Fields{
		"workflows": len(enabled),
		"failed":    len(agg.Failed()),
	}).Info("enabled workflows finished")
	return agg, nil
}
