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
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/nicholasgasior/docconv-go/internal/fsutil"
)

// convert runs the pipeline: validate, resolve quality, delegate,
// materialize, package.
func (c *Converter) convert(ctx context.Context, req Request) Result {
	res := Result{Input: req.Input, Format: req.Format, Quality: req.Quality}
	if res.Quality == "" {
		res.Quality = DefaultQuality
	}

	to, err := targetFormat(req)
	if err != nil {
		res.Err = err
		return res
	}
	res.Format = to

	from, ok := FormatFromPath(req.Input)
	if !ok {
		res.Err = &ValidationError{Input: req.Input, Reason: fmt.Sprintf("unrecognised extension %q", filepath.Ext(req.Input))}
		return res
	}

	h, err := c.Resolve(from, to)
	if err != nil {
		var ufe *UnsupportedFormatError
		if errors.As(err, &ufe) {
			ufe.Path = req.Input
		}
		res.Err = err
		return res
	}

	out, err := outputPathFor(req, to)
	if err != nil {
		res.Err = err
		return res
	}

	in, err := c.validate(req.Input, from)
	if err != nil {
		res.Err = err
		return res
	}
	defer in.Close()

	quality, err := ParseQuality(string(req.Quality))
	if err != nil {
		res.Err = err
		return res
	}
	res.Quality = quality
	params, err := c.rules.Resolve(to, quality)
	if err != nil {
		res.Err = err
		return res
	}

	dir := filepath.Dir(out)
	if err := fsutil.EnsureDir(dir); err != nil {
		res.Err = &ConversionError{Input: req.Input, Format: to, Quality: quality, Cause: err}
		return res
	}
	tmp, err := fsutil.CreateTemp(dir)
	if err != nil {
		res.Err = &ConversionError{Input: req.Input, Format: to, Quality: quality, Cause: err}
		return res
	}

	task := Task{
		Input:   req.Input,
		From:    from,
		To:      to,
		Quality: quality,
		Params:  params,
		Options: req.Options,
		Source:  in,
		Output:  tmp,
	}
	if err := c.delegate(ctx, h, task, tmp); err != nil {
		res.Err = err
		return res
	}

	final, err := fsutil.Publish(tmp.Name(), out)
	if err != nil {
		_ = os.Remove(tmp.Name())
		res.Err = &ConversionError{Input: req.Input, Format: to, Quality: quality, Cause: err}
		return res
	}
	res.Output = final
	if fi, err := os.Stat(final); err == nil {
		res.Size = fi.Size()
	}
	return res
}

// validate checks the input before any handler sees it and returns it opened
// and rewound.
func (c *Converter) validate(path string, claimed Format) (*os.File, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &ValidationError{Input: path, Reason: "file does not exist"}
		}
		return nil, &ValidationError{Input: path, Reason: "cannot stat file", Err: err}
	}
	if !fi.Mode().IsRegular() {
		return nil, &ValidationError{Input: path, Reason: "not a regular file"}
	}
	if c.maxFileSize > 0 && fi.Size() > c.maxFileSize {
		return nil, &ValidationError{Input: path, Reason: fmt.Sprintf("file size %d exceeds limit of %d bytes", fi.Size(), c.maxFileSize)}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &ValidationError{Input: path, Reason: "cannot open file", Err: err}
	}

	ext := strings.ToLower(filepath.Ext(path))
	mime := detectMIMEType(f, ext)
	if sniffed, ok := binaryFormatForMIME(mime); ok && sniffed != claimed {
		f.Close()
		return nil, &ValidationError{Input: path, Reason: fmt.Sprintf("content looks like %s (%s), not %s", sniffed, mime, claimed)}
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, &ValidationError{Input: path, Reason: "cannot rewind file", Err: err}
	}
	return f, nil
}

// delegate runs the handler against the temp artifact. The handler runs on
// its own goroutine so a deadline is honoured even when the handler ignores
// ctx. The artifact is unlinked before any error is returned; an abandoned
// handler only closes its handle when it finally returns.
func (c *Converter) delegate(ctx context.Context, h Handler, t Task, tmp *os.File) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("handler panic: %v\n%s", r, debug.Stack())
			}
		}()
		done <- h.Convert(ctx, t)
	}()

	var herr error
	select {
	case herr = <-done:
	case <-ctx.Done():
		_ = os.Remove(tmp.Name())
		go func() {
			<-done
			_ = tmp.Close()
		}()
		return c.contextError(ctx, t)
	}

	discard := func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}
	if herr != nil {
		discard()
		if ctx.Err() != nil {
			return c.contextError(ctx, t)
		}
		return &ConversionError{Input: t.Input, Format: t.To, Quality: t.Quality, Cause: herr}
	}
	if err := tmp.Sync(); err != nil {
		discard()
		return &ConversionError{Input: t.Input, Format: t.To, Quality: t.Quality, Cause: err}
	}
	if err := tmp.Chmod(0o644); err != nil {
		discard()
		return &ConversionError{Input: t.Input, Format: t.To, Quality: t.Quality, Cause: err}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return &ConversionError{Input: t.Input, Format: t.To, Quality: t.Quality, Cause: err}
	}
	return nil
}

func (c *Converter) contextError(ctx context.Context, t Task) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		timeout, _ := ctx.Value(timeoutKey{}).(time.Duration)
		return &TimeoutError{Input: t.Input, Format: t.To, Timeout: timeout}
	}
	return &ConversionError{Input: t.Input, Format: t.To, Quality: t.Quality, Cause: ctx.Err()}
}

type timeoutKey struct{}

// withTimeout bounds ctx by d and records d for TimeoutError. A zero d
// leaves ctx unbounded.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(context.WithValue(ctx, timeoutKey{}, d), d)
}
