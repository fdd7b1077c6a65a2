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

package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nicholasgasior/docconv-go"
)

// fakeRunner reports every input as converted and records the jobs it saw.
type fakeRunner struct {
	mu   sync.Mutex
	jobs []docconv.BatchJob
}

func (f *fakeRunner) Batch(_ context.Context, job docconv.BatchJob) (*docconv.BatchResult, error) {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	f.mu.Unlock()
	return &docconv.BatchResult{
		Successful: make([]docconv.Result, len(job.Inputs)),
		TotalFiles: len(job.Inputs),
	}, nil
}

func (f *fakeRunner) snapshot() []docconv.BatchJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]docconv.BatchJob(nil), f.jobs...)
}

func newTestScheduler(t *testing.T, runner Runner, opts ...Option) *Scheduler {
	t.Helper()
	s := NewScheduler(NewMemoryStore(), runner, opts...)
	// A strictly increasing clock keeps creation order deterministic.
	var mu sync.Mutex
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
	return s
}

// inputDir creates a directory holding the named files.
func inputDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("id,name\n1,alpha\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func definition(t *testing.T, name string, files ...string) Definition {
	return Definition{
		Name:      name,
		InputDir:  inputDir(t, files...),
		OutputDir: filepath.Join(t.TempDir(), "out"),
		Format:    docconv.JSON,
	}
}

func TestScheduler_Create(t *testing.T) {
	s := newTestScheduler(t, &fakeRunner{})
	ctx := context.Background()

	def := definition(t, "  reports ")
	def.Format = "JSON"
	def.Enabled = false
	got, err := s.Create(ctx, def)
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "reports" || got.Format != docconv.JSON || got.Quality != docconv.DefaultQuality {
		t.Errorf("not normalized: %+v", got)
	}
	if !got.Enabled || got.CreatedAt.IsZero() || !got.CreatedAt.Equal(got.UpdatedAt) || got.RunCount != 0 {
		t.Errorf("unexpected initial state: %+v", got)
	}

	_, err = s.Create(ctx, definition(t, "reports"))
	var dup *DuplicateWorkflowError
	if !errors.As(err, &dup) || dup.Name != "reports" {
		t.Fatalf("expected DuplicateWorkflowError, got %v", err)
	}

	defs, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(defs) != 1 {
		t.Errorf("duplicate create changed the store: %d definitions", len(defs))
	}
}

func TestScheduler_CreateInvalid(t *testing.T) {
	s := newTestScheduler(t, &fakeRunner{})
	tests := []struct {
		name   string
		mutate func(*Definition)
		field  string
	}{
		{"empty name", func(d *Definition) { d.Name = "   " }, "name"},
		{"slash in name", func(d *Definition) { d.Name = "a/b" }, "name"},
		{"long name", func(d *Definition) { d.Name = strings.Repeat("x", 129) }, "name"},
		{"no input dir", func(d *Definition) { d.InputDir = "" }, "input_dir"},
		{"no output dir", func(d *Definition) { d.OutputDir = "" }, "output_dir"},
		{"unknown format", func(d *Definition) { d.Format = "rtf" }, "output_format"},
		{"missing format", func(d *Definition) { d.Format = "" }, "output_format"},
		{"unknown quality", func(d *Definition) { d.Quality = "ultra" }, "quality"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := definition(t, "valid")
			tt.mutate(&def)
			_, err := s.Create(context.Background(), def)
			var invalid *InvalidDefinitionError
			if !errors.As(err, &invalid) {
				t.Fatalf("expected InvalidDefinitionError, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q does not mention %s", err, tt.field)
			}
		})
	}
}

func TestScheduler_NotFound(t *testing.T) {
	s := newTestScheduler(t, &fakeRunner{})
	ctx := context.Background()

	ops := map[string]func() error{
		"get":     func() error { _, err := s.Get(ctx, "ghost"); return err },
		"update":  func() error { _, err := s.Update(ctx, definition(t, "ghost")); return err },
		"enable":  func() error { return s.Enable(ctx, "ghost") },
		"disable": func() error { return s.Disable(ctx, "ghost") },
		"delete":  func() error { return s.Delete(ctx, "ghost") },
		"run":     func() error { _, err := s.Run(ctx, "ghost"); return err },
		"runs":    func() error { _, err := s.Runs(ctx, "ghost"); return err },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			err := op()
			var nf *WorkflowNotFoundError
			if !errors.As(err, &nf) || nf.Name != "ghost" {
				t.Fatalf("expected WorkflowNotFoundError, got %v", err)
			}
			if !errors.Is(err, ErrNotFound) {
				t.Error("error does not match ErrNotFound")
			}
		})
	}
}

func TestScheduler_Update(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestScheduler(t, runner)
	ctx := context.Background()

	created, err := s.Create(ctx, definition(t, "sales", "q1.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(ctx, "sales"); err != nil {
		t.Fatal(err)
	}
	if err := s.Disable(ctx, "sales"); err != nil {
		t.Fatal(err)
	}

	s.now = func() time.Time { return created.CreatedAt.Add(time.Hour) }
	upd := definition(t, "sales")
	upd.Format = docconv.XLSX
	upd.Quality = docconv.QualityLow
	upd.Recursive = true
	got, err := s.Update(ctx, upd)
	if err != nil {
		t.Fatal(err)
	}
	if got.Format != docconv.XLSX || got.Quality != docconv.QualityLow || !got.Recursive || got.InputDir != upd.InputDir {
		t.Errorf("fields not replaced: %+v", got)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) || got.Enabled || got.RunCount != 1 || got.LastRunAt == nil {
		t.Errorf("state not preserved: %+v", got)
	}
	if !got.UpdatedAt.After(created.UpdatedAt) {
		t.Errorf("UpdatedAt not advanced: %v", got.UpdatedAt)
	}

	bad := upd
	bad.Format = "rtf"
	if _, err := s.Update(ctx, bad); err == nil {
		t.Fatal("expected validation error")
	}
	stored, err := s.Get(ctx, "sales")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Format != docconv.XLSX {
		t.Errorf("invalid update was persisted: %q", stored.Format)
	}
}

func TestScheduler_Disabled(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestScheduler(t, runner)
	ctx := context.Background()

	if _, err := s.Create(ctx, definition(t, "archive", "a.csv")); err != nil {
		t.Fatal(err)
	}
	if err := s.Disable(ctx, "archive"); err != nil {
		t.Fatal(err)
	}
	// Disabling twice is a no-op.
	if err := s.Disable(ctx, "archive"); err != nil {
		t.Fatal(err)
	}

	_, err := s.Run(ctx, "archive")
	var disabled *WorkflowDisabledError
	if !errors.As(err, &disabled) {
		t.Fatalf("expected WorkflowDisabledError, got %v", err)
	}
	if len(runner.snapshot()) != 0 {
		t.Error("disabled workflow reached the runner")
	}
	runs, err := s.Runs(ctx, "archive")
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Errorf("disabled run was recorded: %d", len(runs))
	}

	if err := s.Enable(ctx, "archive"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(ctx, "archive"); err != nil {
		t.Fatalf("run after enable: %v", err)
	}
}

func TestScheduler_RunRecordsHistory(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestScheduler(t, runner, WithConcurrency(3), WithBatchDefaults(time.Minute, -1, 0))
	ctx := context.Background()

	def := definition(t, "ledger", "a.csv", "b.json", "notes.txt", "skip.bin", "sub/c.csv")
	def.Quality = docconv.QualityLow
	if _, err := s.Create(ctx, def); err != nil {
		t.Fatal(err)
	}

	res, err := s.Run(ctx, "ledger")
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalFiles != 3 {
		t.Errorf("TotalFiles = %d, want 3", res.TotalFiles)
	}

	jobs := runner.snapshot()
	if len(jobs) != 1 {
		t.Fatalf("runner called %d times", len(jobs))
	}
	job := jobs[0]
	if job.Format != docconv.JSON || job.Quality != docconv.QualityLow || job.OutputDir != def.OutputDir {
		t.Errorf("unexpected job %+v", job)
	}
	if job.Concurrency != 3 || job.Timeout != time.Minute || job.Retries != -1 {
		t.Errorf("batch defaults not applied: %+v", job)
	}
	var bases []string
	for _, in := range job.Inputs {
		bases = append(bases, filepath.Base(in))
	}
	if strings.Join(bases, ",") != "a.csv,b.json,notes.txt" {
		t.Errorf("inputs = %v", bases)
	}

	if _, err := s.Run(ctx, "ledger"); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, "ledger")
	if err != nil {
		t.Fatal(err)
	}
	if got.RunCount != 2 || got.LastRunAt == nil {
		t.Errorf("statistics not updated: %+v", got)
	}

	runs, err := s.Runs(ctx, "ledger")
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Fatalf("recorded %d runs, want 2", len(runs))
	}
	if runs[0].ID == "" || runs[0].ID == runs[1].ID {
		t.Errorf("run IDs not unique: %q %q", runs[0].ID, runs[1].ID)
	}
	if runs[0].TotalFiles != 3 || runs[0].Successful != 3 || runs[0].Quality != docconv.QualityLow || runs[0].Error != "" {
		t.Errorf("unexpected run %+v", runs[0])
	}
}

func TestScheduler_RunRecursive(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestScheduler(t, runner)
	ctx := context.Background()

	def := definition(t, "tree", "a.csv", "sub/b.csv", "sub/deeper/c.txt")
	def.Recursive = true
	def.OutputDir = filepath.Join(def.InputDir, "converted")
	if err := os.MkdirAll(def.OutputDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(def.OutputDir, "old.json"), []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(ctx, def); err != nil {
		t.Fatal(err)
	}

	res, err := s.Run(ctx, "tree")
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalFiles != 3 {
		t.Errorf("TotalFiles = %d, want 3 (output dir must be skipped)", res.TotalFiles)
	}
}

func TestScheduler_RunMissingInputDir(t *testing.T) {
	s := newTestScheduler(t, &fakeRunner{})
	ctx := context.Background()

	def := definition(t, "gone")
	def.InputDir = filepath.Join(t.TempDir(), "missing")
	if _, err := s.Create(ctx, def); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(ctx, "gone"); err == nil {
		t.Fatal("expected discovery error")
	}

	runs, err := s.Runs(ctx, "gone")
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Error == "" {
		t.Fatalf("failed run not recorded: %+v", runs)
	}
}

func TestScheduler_Delete(t *testing.T) {
	s := newTestScheduler(t, &fakeRunner{})
	ctx := context.Background()

	if _, err := s.Create(ctx, definition(t, "temp", "a.csv")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(ctx, "temp"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "temp"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "temp"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete: %v", err)
	}

	// The name is free again and starts without history.
	if _, err := s.Create(ctx, definition(t, "temp")); err != nil {
		t.Fatal(err)
	}
	runs, err := s.Runs(ctx, "temp")
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 0 {
		t.Errorf("history survived delete: %d runs", len(runs))
	}
}

func TestScheduler_RunAllEnabled(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestScheduler(t, runner, WithConcurrency(4), WithParallel(2))
	ctx := context.Background()

	for _, name := range []string{"one", "two", "three", "four"} {
		if _, err := s.Create(ctx, definition(t, name, "x.csv")); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Disable(ctx, "three"); err != nil {
		t.Fatal(err)
	}

	agg, err := s.RunAllEnabled(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(agg.Outcomes) != 3 || agg.Succeeded() != 3 || len(agg.Failed()) != 0 {
		t.Fatalf("unexpected aggregate %+v", agg)
	}
	var names []string
	for _, o := range agg.Outcomes {
		names = append(names, o.Name)
		if o.Result == nil || o.Result.TotalFiles != 1 {
			t.Errorf("%s: unexpected result %+v", o.Name, o.Result)
		}
	}
	if strings.Join(names, ",") != "one,two,four" {
		t.Errorf("outcome order = %v", names)
	}

	for _, job := range runner.snapshot() {
		if job.Concurrency != 2 {
			t.Errorf("per-workflow concurrency = %d, want 2", job.Concurrency)
		}
	}
	three, err := s.Get(ctx, "three")
	if err != nil {
		t.Fatal(err)
	}
	if three.RunCount != 0 {
		t.Error("disabled workflow was run")
	}
}

// budgetRunner tracks how many batch workers are live at once.
type budgetRunner struct {
	mu   sync.Mutex
	live int
	peak int
}

func (b *budgetRunner) Batch(_ context.Context, job docconv.BatchJob) (*docconv.BatchResult, error) {
	b.mu.Lock()
	b.live += job.Concurrency
	b.peak = max(b.peak, b.live)
	b.mu.Unlock()

	time.Sleep(20 * time.Millisecond)

	b.mu.Lock()
	b.live -= job.Concurrency
	b.mu.Unlock()
	return &docconv.BatchResult{TotalFiles: len(job.Inputs), Successful: make([]docconv.Result, len(job.Inputs))}, nil
}

func TestScheduler_RunAllEnabled_RespectsWorkerBudget(t *testing.T) {
	tests := []struct {
		name        string
		concurrency int
		parallel    int
	}{
		{"more parallel than workers", 2, 4},
		{"single worker", 1, 3},
		{"even split", 4, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &budgetRunner{}
			s := newTestScheduler(t, runner, WithConcurrency(tt.concurrency), WithParallel(tt.parallel))
			ctx := context.Background()
			for _, name := range []string{"w1", "w2", "w3", "w4"} {
				if _, err := s.Create(ctx, definition(t, name, "x.csv")); err != nil {
					t.Fatal(err)
				}
			}

			agg, err := s.RunAllEnabled(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if agg.Succeeded() != 4 {
				t.Fatalf("Succeeded = %d, want 4", agg.Succeeded())
			}
			if runner.peak > tt.concurrency {
				t.Errorf("peak live workers = %d, budget %d", runner.peak, tt.concurrency)
			}
		})
	}
}

func TestScheduler_RunAllEnabled_IsolatesFailures(t *testing.T) {
	s := newTestScheduler(t, &fakeRunner{}, WithParallel(4))
	ctx := context.Background()

	for _, name := range []string{"ok-a", "broken", "ok-b"} {
		def := definition(t, name, "x.csv")
		if name == "broken" {
			def.InputDir = filepath.Join(def.InputDir, "nope")
		}
		if _, err := s.Create(ctx, def); err != nil {
			t.Fatal(err)
		}
	}

	agg, err := s.RunAllEnabled(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if agg.Succeeded() != 2 {
		t.Errorf("Succeeded = %d, want 2", agg.Succeeded())
	}
	failed := agg.Failed()
	if len(failed) != 1 || failed[0].Name != "broken" {
		t.Errorf("unexpected failures %+v", failed)
	}
}

func TestScheduler_RunAllEnabled_None(t *testing.T) {
	s := newTestScheduler(t, &fakeRunner{})
	agg, err := s.RunAllEnabled(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(agg.Outcomes) != 0 {
		t.Errorf("unexpected outcomes %+v", agg.Outcomes)
	}
}

func TestScheduler_ConcurrentRunsOfSameWorkflow(t *testing.T) {
	s := newTestScheduler(t, &fakeRunner{})
	ctx := context.Background()
	if _, err := s.Create(ctx, definition(t, "busy", "a.csv")); err != nil {
		t.Fatal(err)
	}

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Run(ctx, "busy"); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, "busy")
	if err != nil {
		t.Fatal(err)
	}
	if got.RunCount != n {
		t.Errorf("RunCount = %d, want %d", got.RunCount, n)
	}
	if size := s.locks.size(); size != 0 {
		t.Errorf("lock table holds %d entries after all runs", size)
	}
}

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()
	counters := map[string]int{}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		key := []string{"a", "b", "c"}[i%3]
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock(key)
			defer unlock()
			mu.Lock()
			counters[key]++
			mu.Unlock()
		}()
	}
	wg.Wait()
	if k.size() != 0 {
		t.Errorf("size = %d after all unlocks", k.size())
	}
	if counters["a"]+counters["b"]+counters["c"] != 50 {
		t.Errorf("counters = %v", counters)
	}

	unlock := k.Lock("held")
	acquired := make(chan struct{})
	go func() {
		release := k.Lock("held")
		close(acquired)
		release()
	}()
	select {
	case <-acquired:
		t.Fatal("second Lock acquired a held key")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	<-acquired
}

func TestScheduler_EndToEnd(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "workflows.json"))
	if err != nil {
		t.Fatal(err)
	}
	s := NewScheduler(store, docconv.New(), WithConcurrency(2))
	ctx := context.Background()

	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "json")
	files := map[string]string{
		"people.csv": "name,age\nada,36\nalan,41\n",
		"notes.txt":  "Quarterly notes\nsecond line\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(in, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := s.Create(ctx, Definition{Name: "to-json", InputDir: in, OutputDir: out, Format: docconv.JSON}); err != nil {
		t.Fatal(err)
	}
	res, err := s.Run(ctx, "to-json")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Successful) != 2 || len(res.Failed) != 0 {
		t.Fatalf("unexpected result: %d ok, %d failed", len(res.Successful), len(res.Failed))
	}

	entries, err := os.ReadDir(out)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	if strings.Join(names, ",") != "notes.json,people.json" {
		t.Fatalf("output files = %v", names)
	}

	data, err := os.ReadFile(filepath.Join(out, "people.json"))
	if err != nil {
		t.Fatal(err)
	}
	var people struct {
		Data []map[string]any `json:"data"`
	}
	if err := json.Unmarshal(data, &people); err != nil {
		t.Fatal(err)
	}
	if len(people.Data) != 2 || people.Data[0]["name"] != "ada" {
		t.Errorf("unexpected JSON %s", data)
	}

	runs, err := s.Runs(ctx, "to-json")
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Successful != 2 {
		t.Errorf("unexpected history %+v", runs)
	}
}
