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

package docconv

import (
	"context"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultRetries is the number of re-attempts for a retryable failure.
const DefaultRetries = 2

// BatchJob describes a set of files converted to one target format.
type BatchJob struct {
	Inputs    []string
	OutputDir string
	Format    Format
	Quality   Quality
	// Concurrency is the worker count; 0 selects GOMAXPROCS.
	Concurrency int
	// Timeout bounds each conversion attempt; 0 means no limit.
	Timeout time.Duration
	// Retries is the number of re-attempts for retryable failures.
	// 0 selects DefaultRetries and a negative value disables retries.
	Retries    int
	RetryDelay time.Duration
	// Progress, when set, is called after each file finishes. Calls are
	// serialized.
	Progress func(BatchProgress)
	Options  map[string]string
}

// BatchProgress is a snapshot passed to BatchJob.Progress.
type BatchProgress struct {
	Completed int
	Succeeded int
	Failed    int
	Total     int
	Current   string
}

// FailedFile is a file whose conversion failed after all attempts.
type FailedFile struct {
	Index    int
	Input    string
	Request  Request
	Attempts int
	Err      error
}

// CancelledFile is a file that was never started because the batch was cancelled.
type CancelledFile struct {
	Index int
	Input string
}

// BatchResult is the report of a batch. Every input appears in exactly one of
// Successful, Failed or Cancelled, each ordered by input index.
type BatchResult struct {
	Successful []Result
	Failed     []FailedFile
	Cancelled  []CancelledFile
	TotalFiles int
	Elapsed    time.Duration
}

// SuccessRate returns the fraction of files converted successfully.
func (r *BatchResult) SuccessRate() float64 {
	if r.TotalFiles == 0 {
		return 0
	}
	return float64(len(r.Successful)) / float64(r.TotalFiles)
}

// BatchHandle tracks a running batch.
type BatchHandle struct {
	cancelled  atomic.Bool
	cancelOnce sync.Once
	cancelCh   chan struct{}
	done       chan struct{}
	result     *BatchResult
	stop       func() bool
}

// Cancel stops dispatching new files. Files already converting run to
// completion; files never started are reported as cancelled. Pending
// retries are abandoned.
func (h *BatchHandle) Cancel() {
	h.cancelled.Store(true)
	h.cancelOnce.Do(func() { close(h.cancelCh) })
}

// Done is closed when the batch has finished.
func (h *BatchHandle) Done() <-chan struct{} { return h.done }

// Wait blocks until the batch finishes and returns its report.
func (h *BatchHandle) Wait() *BatchResult {
	<-h.done
	return h.result
}

// Batch converts every input of job and blocks until done. The error reports
// only job-level misconfiguration; per-file failures are in the result.
func (c *Converter) Batch(ctx context.Context, job BatchJob) (*BatchResult, error) {
	h, err := c.StartBatch(ctx, job)
	if err != nil {
		return nil, err
	}
	return h.Wait(), nil
}

type slotState int

const (
	slotPending slotState = iota
	slotSucceeded
	slotFailed
	slotCancelled
)

type batchSlot struct {
	state  slotState
	result Result
}

type batchRun struct {
	c       *Converter
	job     BatchJob
	handle  *BatchHandle
	inputs  []string
	slots   []batchSlot
	retries int
	log     logrus.FieldLogger

	mu       sync.Mutex
	progress BatchProgress
}

// StartBatch validates job and starts it in the background. Cancelling ctx
// has the same effect as BatchHandle.Cancel.
func (c *Converter) StartBatch(ctx context.Context, job BatchJob) (*BatchHandle, error) {
	to, ok := ParseFormat(string(job.Format))
	if !ok {
		return nil, &UnsupportedFormatError{Output: job.Format}
	}
	job.Format = to
	q, err := ParseQuality(string(job.Quality))
	if err != nil {
		return nil, err
	}
	job.Quality = q
	if strings.TrimSpace(job.OutputDir) == "" {
		return nil, &ConfigurationError{Key: "output_dir", Reason: "must not be empty"}
	}
	if job.Concurrency < 0 {
		return nil, &ConfigurationError{Key: "concurrency", Value: strconv.Itoa(job.Concurrency), Reason: "must not be negative"}
	}

	retries := job.Retries
	switch {
	case retries == 0:
		retries = DefaultRetries
	case retries < 0:
		retries = 0
	}

	inputs := dedupeInputs(job.Inputs)
	h := &BatchHandle{done: make(chan struct{}), cancelCh: make(chan struct{})}
	run := &batchRun{
		c:       c,
		job:     job,
		handle:  h,
		inputs:  inputs,
		slots:   make([]batchSlot, len(inputs)),
		retries: retries,
		log: c.log.WithFields(logrus.Fields{
			"format":  job.Format,
			"quality": job.Quality,
		}),
		progress: BatchProgress{Total: len(inputs)},
	}
	h.stop = context.AfterFunc(ctx, h.Cancel)

	go run.execute(ctx)
	return h, nil
}

// dedupeInputs drops repeated paths, comparing cleaned absolute paths and
// keeping the first occurrence.
func dedupeInputs(inputs []string) []string {
	seen := make(map[string]bool, len(inputs))
	out := make([]string, 0, len(inputs))
	for _, in := range inputs {
		key := filepath.Clean(in)
		if abs, err := filepath.Abs(in); err == nil {
			key = abs
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, in)
	}
	return out
}

func (r *batchRun) workers() int {
	n := r.job.Concurrency
	if n == 0 {
		n = runtime.GOMAXPROCS(0)
	}
	n = min(n, len(r.inputs))
	return max(n, 1)
}

func (r *batchRun) execute(ctx context.Context) {
	start := time.Now()
	defer func() {
		r.handle.stop()
		r.handle.result = r.report(time.Since(start))
		close(r.handle.done)
	}()

	r.log.WithFields(logrus.Fields{"files": len(r.inputs), "workers": r.workers()}).Info("batch started")

	// In-flight conversions must not be torn down by cancellation.
	workCtx := context.WithoutCancel(ctx)

	indices := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < r.workers(); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indices {
				if r.handle.cancelled.Load() {
					r.slots[i].state = slotCancelled
					continue
				}
				r.process(workCtx, i)
			}
		}()
	}

	for i := range r.inputs {
		if r.handle.cancelled.Load() {
			break
		}
		indices <- i
	}
	close(indices)
	wg.Wait()
}

func (r *batchRun) request(i int) Request {
	in := r.inputs[i]
	stem := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in))
	return Request{
		Input:   in,
		Output:  filepath.Join(r.job.OutputDir, stem+r.job.Format.Extension()),
		Format:  r.job.Format,
		Quality: r.job.Quality,
		Options: r.job.Options,
	}
}

// process converts input i, retrying retryable failures with identical
// parameters.
func (r *batchRun) process(ctx context.Context, i int) {
	req := r.request(i)
	log := r.log.WithField("input", req.Input)

	var res Result
	attempts := 0
	for {
		attempts++
		attemptCtx, cancel := withTimeout(ctx, r.job.Timeout)
		res = r.c.Convert(attemptCtx, req)
		cancel()

		if res.Err == nil || !IsRetryable(res.Err) || attempts > r.retries {
			break
		}
		if !r.backoff(ctx) {
			log.WithField("attempt", attempts).Debug("batch cancelled, not retrying")
			break
		}
		log.WithFields(logrus.Fields{"attempt": attempts, "kind": KindOf(res.Err)}).WithError(res.Err).Warn("conversion failed, retrying")
	}
	res.Attempts = attempts

	slot := &r.slots[i]
	slot.result = res
	if res.Err == nil {
		slot.state = slotSucceeded
	} else {
		slot.state = slotFailed
		log.WithFields(logrus.Fields{"attempt": attempts, "kind": KindOf(res.Err)}).WithError(res.Err).Warn("conversion failed")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.Completed++
	if res.Err == nil {
		r.progress.Succeeded++
	} else {
		r.progress.Failed++
	}
	r.progress.Current = req.Input
	if r.job.Progress != nil {
		r.job.Progress(r.progress)
	}
}

// backoff waits RetryDelay before the next attempt. It reports false when
// the batch is cancelled first.
func (r *batchRun) backoff(ctx context.Context) bool {
	if r.handle.cancelled.Load() {
		return false
	}
	if r.job.RetryDelay <= 0 {
		return true
	}
	timer := time.NewTimer(r.job.RetryDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return !r.handle.cancelled.Load()
	case <-r.handle.cancelCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// report assembles the result in input order. It runs after every worker has
// exited, so slots are read without locking.
func (r *batchRun) report(elapsed time.Duration) *BatchResult {
	res := &BatchResult{TotalFiles: len(r.inputs), Elapsed: elapsed}
	for i, slot := range r.slots {
		switch slot.state {
		case slotSucceeded:
			res.Successful = append(res.Successful, slot.result)
		case slotFailed:
			res.Failed = append(res.Failed, FailedFile{
				Index:    i,
				Input:    r.inputs[i],
				Request:  r.request(i),
				Attempts: slot.result.Attempts,
				Err:      slot.result.Err,
			})
		default:
			res.Cancelled = append(res.Cancelled, CancelledFile{Index: i, Input: r.inputs[i]})
		}
	}
	r.log.WithFields(logrus.Fields{
		"total":      res.TotalFiles,
		"successful": len(res.Successful),
		"failed":     len(res.Failed),
		"cancelled":  len(res.Cancelled),
		"elapsed":    elapsed,
	}).Info("batch finished")
	return res
}
