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

// Package docconv converts documents between pdf, docx, xlsx, csv, json and
// txt, one file at a time or in concurrent batches.
package docconv

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"
)

// DefaultMaxFileSize is the largest input accepted unless overridden.
const DefaultMaxFileSize int64 = 100 << 20

type pair struct {
	in, out Format
}

// Converter resolves conversion pairs to handlers and runs the conversion
// pipeline. It is safe for concurrent use.
type Converter struct {
	handlers    map[pair]Handler
	overrides   map[pair]Handler
	rules       QualityRules
	maxFileSize int64
	log         logrus.FieldLogger
}

// Request describes a single conversion.
type Request struct {
	Input  string
	Output string
	// Format is the target format. When empty it is inferred from Output.
	Format  Format
	Quality Quality
	Options map[string]string
}

// Result is the outcome of a single conversion.
type Result struct {
	Input    string
	Output   string
	Format   Format
	Quality  Quality
	Size     int64
	Duration time.Duration
	Attempts int
	Err      error
}

// Success reports whether the conversion produced an output file.
func (r Result) Success() bool { return r.Err == nil }

// New creates a Converter. The handler table is fixed once New returns.
func New(opts ...Option) *Converter {
	discard := logrus.New()
	discard.SetOutput(io.Discard)

	c := &Converter{
		overrides:   make(map[pair]Handler),
		rules:       DefaultQualityRules(),
		maxFileSize: DefaultMaxFileSize,
		log:         discard,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.buildHandlers()
	return c
}

func (c *Converter) buildHandlers() {
	codecs := builtinCodecs()
	c.handlers = make(map[pair]Handler, len(formatOrder)*(len(formatOrder)-1))
	for _, in := range formatOrder {
		for _, out := range SupportedConversions(in) {
			c.handlers[pair{in, out}] = codecHandler{dec: codecs[in].dec, enc: codecs[out].enc}
		}
	}
	for p, h := range c.overrides {
		if !IsSupported(p.in, p.out) {
			c.log.WithFields(logrus.Fields{"from": p.in, "to": p.out}).Warn("ignoring handler for unsupported conversion")
			continue
		}
		c.handlers[p] = h
	}
	c.overrides = nil
}

// Resolve returns the handler for a conversion pair.
func (c *Converter) Resolve(in, out Format) (Handler, error) {
	if !IsSupported(in, out) {
		return nil, &UnsupportedFormatError{Input: in, Output: out}
	}
	h, ok := c.handlers[pair{in, out}]
	if !ok {
		return nil, &UnsupportedFormatError{Input: in, Output: out}
	}
	return h, nil
}

// SupportedFormats returns the six formats in declaration order.
func (c *Converter) SupportedFormats() []Format { return SupportedFormats() }

// SupportedConversions returns the targets reachable from f.
func (c *Converter) SupportedConversions(f Format) []Format { return SupportedConversions(f) }

// AllConversions returns the full support matrix.
func (c *Converter) AllConversions() map[Format][]Format { return AllConversions() }

// ConvertFile converts inputPath into outputPath at the given quality. The
// target format is taken from the output extension.
func (c *Converter) ConvertFile(ctx context.Context, inputPath, outputPath string, quality Quality) (Result, error) {
	res := c.Convert(ctx, Request{Input: inputPath, Output: outputPath, Quality: quality})
	return res, res.Err
}

// Convert runs a single conversion. Failures are reported in Result.Err as
// one of the typed errors of this package.
func (c *Converter) Convert(ctx context.Context, req Request) Result {
	start := time.Now()
	res := c.convert(ctx, req)
	res.Duration = time.Since(start)
	if res.Attempts == 0 {
		res.Attempts = 1
	}

	entry := c.log.WithFields(logrus.Fields{
		"input":   res.Input,
		"output":  res.Output,
		"format":  res.Format,
		"quality": res.Quality,
	})
	if res.Err != nil {
		entry.WithField("kind", KindOf(res.Err)).WithError(res.Err).Debug("conversion failed")
	} else {
		entry.WithField("size", res.Size).Debug("conversion complete")
	}
	return res
}

// targetFormat determines the output format of a request.
func targetFormat(req Request) (Format, error) {
	if req.Format != "" {
		f, ok := ParseFormat(string(req.Format))
		if !ok {
			return "", &UnsupportedFormatError{Output: req.Format, Path: req.Input}
		}
		return f, nil
	}
	if req.Output == "" {
		return "", &ValidationError{Input: req.Input, Reason: "no output path or target format"}
	}
	f, ok := FormatFromPath(req.Output)
	if !ok {
		return "", &UnsupportedFormatError{Output: Format(strings.TrimPrefix(filepath.Ext(req.Output), ".")), Path: req.Input}
	}
	return f, nil
}

// outputPathFor names the output of req, defaulting to the input's stem next
// to the input with the target's canonical extension.
func outputPathFor(req Request, to Format) (string, error) {
	out := req.Output
	if out == "" {
		out = strings.TrimSuffix(req.Input, filepath.Ext(req.Input)) + to.Extension()
		return out, nil
	}
	ext := filepath.Ext(out)
	if ext == "" {
		return out + to.Extension(), nil
	}
	if f, ok := FormatFromPath(out); !ok || f != to {
		return "", &ValidationError{Input: req.Input, Reason: "output extension " + ext + " does not match target format " + string(to)}
	}
	// Legacy .xls workbooks are read-only; the encoder writes xlsx packages.
	if strings.EqualFold(ext, ".xls") {
		return "", &ValidationError{Input: req.Input, Reason: "cannot write legacy .xls workbooks, use .xlsx"}
	}
	return out, nil
}

// detectMIMEType detects the MIME type from content and extension.
func detectMIMEType(r io.ReadSeeker, ext string) string {
	mtype, err := mimetype.DetectReader(r)
	if err == nil && mtype.String() != "application/octet-stream" {
		return mtype.String()
	}
	return mimeFromExtension(ext)
}

// mimeFromExtension returns a MIME type for the supported extensions.
func mimeFromExtension(ext string) string {
	extMap := map[string]string{
		".pdf":  "application/pdf",
		".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		".xls":  "application/vnd.ms-excel",
		".csv":  "text/csv",
		".txt":  "text/plain",
		".text": "text/plain",
		".md":   "text/markdown",
		".json": "application/json",
	}
	if m, ok := extMap[ext]; ok {
		return m
	}
	return "application/octet-stream"
}

// binaryFormatForMIME maps a sniffed MIME type to the binary format it
// identifies. Text-like content returns false.
func binaryFormatForMIME(mime string) (Format, bool) {
	m := mimetype.Lookup(mime)
	for ; m != nil; m = m.Parent() {
		switch m.String() {
		case "application/pdf":
			return PDF, true
		case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
			return DOCX, true
		case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			"application/vnd.ms-excel":
			return XLSX, true
		}
	}
	return "", false
}
