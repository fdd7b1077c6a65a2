package docconv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func makeInputs(t *testing.T, dir string, n int, ext string) []string {
	t.Helper()
	inputs := make([]string, n)
	for i := range inputs {
		inputs[i] = writeFile(t, filepath.Join(dir, fmt.Sprintf("file%02d%s", i, ext)), fmt.Sprintf("a,b\n%d,%d\n", i, i*i))
	}
	return inputs
}

func TestBatch_PartialFailure(t *testing.T) {
	dir := t.TempDir()
	inputs := makeInputs(t, dir, 5, ".csv")
	inputs = append(inputs[:2], append([]string{filepath.Join(dir, "missing.csv")}, inputs[2:]...)...)
	inputs = append(inputs, filepath.Join(dir, "also-missing.csv"))
	c, _ := countingConverter(copyHandler)

	res, err := c.Batch(context.Background(), BatchJob{
		Inputs:      inputs,
		OutputDir:   filepath.Join(dir, "out"),
		Format:      JSON,
		Concurrency: 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalFiles != 7 {
		t.Fatalf("total = %d, want 7", res.TotalFiles)
	}
	if got := len(res.Successful) + len(res.Failed); got != res.TotalFiles {
		t.Errorf("successful+failed = %d, want %d", got, res.TotalFiles)
	}
	if len(res.Failed) != 2 || len(res.Cancelled) != 0 {
		t.Fatalf("failed = %d cancelled = %d", len(res.Failed), len(res.Cancelled))
	}
	if res.Failed[0].Index != 2 || res.Failed[1].Index != 6 {
		t.Errorf("failed indices = %d, %d", res.Failed[0].Index, res.Failed[1].Index)
	}
	for _, f := range res.Failed {
		if KindOf(f.Err) != KindValidation {
			t.Errorf("%s: kind = %s", f.Input, KindOf(f.Err))
		}
		if f.Attempts != 1 {
			t.Errorf("%s: validation failure retried (%d attempts)", f.Input, f.Attempts)
		}
		if f.Request.Format != JSON || !strings.HasSuffix(f.Request.Output, ".json") {
			t.Errorf("%s: request not resubmittable: %+v", f.Input, f.Request)
		}
	}
	if rate := res.SuccessRate(); rate < 0.71 || rate > 0.72 {
		t.Errorf("success rate = %v", rate)
	}
}

func TestBatch_PreservesInputOrder(t *testing.T) {
	dir := t.TempDir()
	inputs := makeInputs(t, dir, 16, ".csv")
	c, _ := countingConverter(func(ctx context.Context, t Task) error {
		time.Sleep(time.Duration(rand.IntN(15)) * time.Millisecond)
		return copyHandler(ctx, t)
	})

	res, err := c.Batch(context.Background(), BatchJob{
		Inputs:      inputs,
		OutputDir:   filepath.Join(dir, "out"),
		Format:      TXT,
		Concurrency: 5,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Successful) != len(inputs) {
		t.Fatalf("successful = %d, want %d", len(res.Successful), len(inputs))
	}
	for i, r := range res.Successful {
		if r.Input != inputs[i] {
			t.Errorf("position %d holds %s, want %s", i, r.Input, inputs[i])
		}
		if want := filepath.Join(dir, "out", fmt.Sprintf("file%02d.txt", i)); r.Output != want {
			t.Errorf("output %d = %s, want %s", i, r.Output, want)
		}
	}
}

func TestBatch_CancelMidway(t *testing.T) {
	dir := t.TempDir()
	inputs := makeInputs(t, dir, 10, ".csv")
	c, calls := countingConverter(copyHandler)

	handles := make(chan *BatchHandle, 1)
	var progress []BatchProgress
	h, err := c.StartBatch(context.Background(), BatchJob{
		Inputs:      inputs,
		OutputDir:   filepath.Join(dir, "out"),
		Format:      JSON,
		Concurrency: 1,
		Progress: func(p BatchProgress) {
			progress = append(progress, p)
			if p.Completed == 3 {
				(<-handles).Cancel()
			}
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	handles <- h

	res := h.Wait()
	select {
	case <-h.Done():
	default:
		t.Error("Done not closed after Wait")
	}
	if len(res.Successful) != 3 {
		t.Errorf("successful = %d, want 3", len(res.Successful))
	}
	if len(res.Cancelled) != 7 {
		t.Errorf("cancelled = %d, want 7", len(res.Cancelled))
	}
	if got := len(res.Successful) + len(res.Failed) + len(res.Cancelled); got != len(inputs) {
		t.Errorf("accounted for %d of %d files", got, len(inputs))
	}
	for i, r := range res.Successful {
		if r.Input != inputs[i] {
			t.Errorf("successful[%d] = %s, want prefix input %s", i, r.Input, inputs[i])
		}
	}
	for i, cf := range res.Cancelled {
		if cf.Index != i+3 || cf.Input != inputs[i+3] {
			t.Errorf("cancelled[%d] = %+v", i, cf)
		}
	}
	if calls.Load() != 3 {
		t.Errorf("handler calls = %d, want 3", calls.Load())
	}
	if len(progress) != 3 || progress[2].Total != 10 || progress[2].Succeeded != 3 {
		t.Errorf("progress = %+v", progress)
	}
}

func TestBatch_ContextCancelStopsDispatch(t *testing.T) {
	dir := t.TempDir()
	inputs := makeInputs(t, dir, 20, ".csv")
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{}, len(inputs))
	c, _ := countingConverter(func(ctx context.Context, t Task) error {
		started <- struct{}{}
		time.Sleep(20 * time.Millisecond)
		return copyHandler(ctx, t)
	})

	h, err := c.StartBatch(ctx, BatchJob{
		Inputs:      inputs,
		OutputDir:   filepath.Join(dir, "out"),
		Format:      JSON,
		Concurrency: 2,
	})
	if err != nil {
		t.Fatal(err)
	}
	<-started
	cancel()
	res := h.Wait()

	if len(res.Cancelled) == 0 {
		t.Fatal("expected cancelled files")
	}
	// In-flight conversions run to completion rather than failing.
	if len(res.Failed) != 0 {
		t.Errorf("failed = %d, want 0", len(res.Failed))
	}
	if got := len(res.Successful) + len(res.Cancelled); got != len(inputs) {
		t.Errorf("accounted for %d of %d files", got, len(inputs))
	}
}

func TestBatch_Retries(t *testing.T) {
	dir := t.TempDir()
	inputs := makeInputs(t, dir, 3, ".csv")
	flaky := errors.New("transient")

	var mu sync.Mutex
	attempts := map[string]int{}
	// file00 fails twice then succeeds, file01 always fails, file02 succeeds.
	h := func(ctx context.Context, t Task) error {
		mu.Lock()
		attempts[filepath.Base(t.Input)]++
		n := attempts[filepath.Base(t.Input)]
		mu.Unlock()
		switch filepath.Base(t.Input) {
		case "file00.csv":
			if n <= 2 {
				return flaky
			}
		case "file01.csv":
			return flaky
		}
		_, err := io.Copy(t.Output, t.Source)
		return err
	}

	tests := []struct {
		name         string
		retries      int
		wantOK       int
		wantAttempts map[string]int
	}{
		{"default", 0, 2, map[string]int{"file00.csv": 3, "file01.csv": 3, "file02.csv": 1}},
		{"disabled", -1, 1, map[string]int{"file00.csv": 1, "file01.csv": 1, "file02.csv": 1}},
		{"one", 1, 1, map[string]int{"file00.csv": 2, "file01.csv": 2, "file02.csv": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mu.Lock()
			clear(attempts)
			mu.Unlock()
			c, _ := countingConverter(h)
			res, err := c.Batch(context.Background(), BatchJob{
				Inputs:     inputs,
				OutputDir:  t.TempDir(),
				Format:     JSON,
				Retries:    tt.retries,
				RetryDelay: time.Millisecond,
			})
			if err != nil {
				t.Fatal(err)
			}
			if len(res.Successful) != tt.wantOK {
				t.Errorf("successful = %d, want %d", len(res.Successful), tt.wantOK)
			}
			mu.Lock()
			defer mu.Unlock()
			for name, want := range tt.wantAttempts {
				if attempts[name] != want {
					t.Errorf("%s attempts = %d, want %d", name, attempts[name], want)
				}
			}
			for _, f := range res.Failed {
				if !errors.Is(f.Err, flaky) {
					t.Errorf("%s: error = %v", f.Input, f.Err)
				}
				if f.Attempts != tt.wantAttempts[filepath.Base(f.Input)] {
					t.Errorf("%s: reported attempts = %d", f.Input, f.Attempts)
				}
			}
		})
	}
}

func TestBatch_CancelDuringRetryDelay(t *testing.T) {
	dir := t.TempDir()
	inputs := makeInputs(t, dir, 1, ".csv")
	flaky := errors.New("transient")
	firstFailure := make(chan struct{}, 1)
	c, calls := countingConverter(func(ctx context.Context, t Task) error {
		select {
		case firstFailure <- struct{}{}:
		default:
		}
		return flaky
	})

	h, err := c.StartBatch(context.Background(), BatchJob{
		Inputs:     inputs,
		OutputDir:  filepath.Join(dir, "out"),
		Format:     JSON,
		RetryDelay: time.Hour,
	})
	if err != nil {
		t.Fatal(err)
	}
	<-firstFailure
	h.Cancel()

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("batch still waiting on the retry delay after Cancel")
	}
	res := h.Wait()
	if len(res.Failed) != 1 || res.Failed[0].Attempts != 1 || calls.Load() != 1 {
		t.Errorf("failed = %d, calls = %d", len(res.Failed), calls.Load())
	}
}

func TestBatch_Timeout(t *testing.T) {
	dir := t.TempDir()
	inputs := makeInputs(t, dir, 2, ".csv")
	release := make(chan struct{})
	defer close(release)
	c, _ := countingConverter(func(ctx context.Context, t Task) error {
		<-release
		return nil
	})

	res, err := c.Batch(context.Background(), BatchJob{
		Inputs:    inputs,
		OutputDir: filepath.Join(dir, "out"),
		Format:    TXT,
		Timeout:   20 * time.Millisecond,
		Retries:   -1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Failed) != 2 {
		t.Fatalf("failed = %d, want 2", len(res.Failed))
	}
	for _, f := range res.Failed {
		var te *TimeoutError
		if !errors.As(f.Err, &te) || te.Timeout != 20*time.Millisecond {
			t.Errorf("%s: error = %v", f.Input, f.Err)
		}
	}
}

func TestBatch_TimeoutLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	inputs := makeInputs(t, dir, 2, ".csv")
	release := make(chan struct{})
	defer close(release)
	c, calls := countingConverter(func(ctx context.Context, t Task) error {
		_, _ = io.WriteString(t.Output, "partial")
		<-release
		return nil
	})

	res, err := c.Batch(context.Background(), BatchJob{
		Inputs:    inputs,
		OutputDir: out,
		Format:    TXT,
		Timeout:   20 * time.Millisecond,
		Retries:   1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Failed) != 2 || calls.Load() != 4 {
		t.Fatalf("failed = %d, handler calls = %d", len(res.Failed), calls.Load())
	}
	for _, f := range res.Failed {
		if KindOf(f.Err) != KindTimeout || f.Attempts != 2 {
			t.Errorf("%s: kind = %s, attempts = %d", f.Input, KindOf(f.Err), f.Attempts)
		}
	}
	// The handlers are still blocked; nothing may be left in the output dir.
	assertNoTempFiles(t, out)
}

func TestBatch_Dedupe(t *testing.T) {
	dir := t.TempDir()
	inputs := makeInputs(t, dir, 2, ".csv")
	sep := string(filepath.Separator)
	dup := dir + sep + "." + sep + filepath.Base(inputs[0])
	c, calls := countingConverter(copyHandler)

	res, err := c.Batch(context.Background(), BatchJob{
		Inputs:    []string{inputs[0], inputs[1], dup, inputs[1]},
		OutputDir: filepath.Join(dir, "out"),
		Format:    JSON,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalFiles != 2 || len(res.Successful) != 2 || calls.Load() != 2 {
		t.Errorf("total = %d successful = %d calls = %d", res.TotalFiles, len(res.Successful), calls.Load())
	}
}

func TestBatch_Empty(t *testing.T) {
	res, err := New().Batch(context.Background(), BatchJob{OutputDir: t.TempDir(), Format: CSV})
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalFiles != 0 || res.SuccessRate() != 0 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestStartBatch_InvalidJob(t *testing.T) {
	tests := []struct {
		name string
		job  BatchJob
		kind ErrorKind
	}{
		{"unknown format", BatchJob{OutputDir: "out", Format: "odt"}, KindUnsupported},
		{"unknown quality", BatchJob{OutputDir: "out", Format: CSV, Quality: "best"}, KindConfiguration},
		{"no output dir", BatchJob{Format: CSV}, KindConfiguration},
		{"negative concurrency", BatchJob{OutputDir: "out", Format: CSV, Concurrency: -2}, KindConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := New().StartBatch(context.Background(), tt.job)
			if h != nil || err == nil {
				t.Fatalf("StartBatch = %v, %v", h, err)
			}
			if KindOf(err) != tt.kind {
				t.Errorf("kind = %s, want %s", KindOf(err), tt.kind)
			}
		})
	}
}

func TestBatch_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	inputs := []string{
		writeFile(t, filepath.Join(dir, "a.json"), `[{"name":"Ada","age":36},{"name":"Bob","age":41}]`),
		writeFile(t, filepath.Join(dir, "b.csv"), "city,country\nOslo,Norway\n"),
		writeFile(t, filepath.Join(dir, "c.json"), `{not json`),
	}

	res, err := New().Batch(context.Background(), BatchJob{
		Inputs:    inputs,
		OutputDir: filepath.Join(dir, "out"),
		Format:    TXT,
		Quality:   QualityMedium,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.TotalFiles != 3 || len(res.Successful) != 2 || len(res.Failed) != 1 {
		t.Fatalf("total = %d successful = %d failed = %d", res.TotalFiles, len(res.Successful), len(res.Failed))
	}
	f := res.Failed[0]
	if f.Input != inputs[2] || KindOf(f.Err) != KindConversion {
		t.Errorf("failed = %s (%s)", f.Input, KindOf(f.Err))
	}
	if !strings.Contains(f.Err.Error(), "c.json") {
		t.Errorf("error does not reference the input: %v", f.Err)
	}
	for _, r := range res.Successful {
		if r.Size == 0 || r.Quality != QualityMedium {
			t.Errorf("%s: size = %d quality = %s", r.Input, r.Size, r.Quality)
		}
	}
}
