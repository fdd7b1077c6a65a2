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

//go:build !nopdfium

package docconv

import (
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/responses"
	"github.com/klippa-app/go-pdfium/webassembly"
)

var (
	pdfiumPool     pdfium.Pool
	pdfiumPoolOnce sync.Once
	pdfiumPoolErr  error
)

// pdfiumWorkers bounds the WebAssembly instances shared by all decoders.
const pdfiumWorkers = 2

func initPdfiumPool() {
	pdfiumPool, pdfiumPoolErr = webassembly.Init(webassembly.Config{
		MinIdle:  1,
		MaxIdle:  pdfiumWorkers,
		MaxTotal: pdfiumWorkers,
	})
}

// PdfDecoder extracts text from PDF files using PDFium via WebAssembly.
// Font sizes drive heading detection.
type PdfDecoder struct{}

// NewPdfDecoder creates a new PdfDecoder.
func NewPdfDecoder() *PdfDecoder {
	return &PdfDecoder{}
}

func (d *PdfDecoder) Decode(ctx context.Context, r io.Reader, opts CodecOptions) (*Document, error) {
	pdfiumPoolOnce.Do(initPdfiumPool)
	if pdfiumPoolErr != nil {
		return nil, fmt.Errorf("init pdfium: %w", pdfiumPoolErr)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read PDF: %w", err)
	}

	instance, err := pdfiumPool.GetInstance(30 * time.Second)
	if err != nil {
		return nil, fmt.Errorf("get pdfium instance: %w", err)
	}
	defer instance.Close()

	doc, err := instance.OpenDocument(&requests.OpenDocument{File: &data})
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}
	defer instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: doc.Document})

	count, err := instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{Document: doc.Document})
	if err != nil {
		return nil, fmt.Errorf("get page count: %w", err)
	}
	pages := count.PageCount
	if limit := opts.Params.MaxPages; limit > 0 && pages > limit {
		pages = limit
	}

	out := &Document{}
	for i := 0; i < pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lines := pageLines(instance, doc, i)
		appendPdfPage(out, lines, detectBodyFontSize(lines))
	}
	return out, nil
}

// pdfRect is a text rectangle with font metadata from PDFium.
type pdfRect struct {
	text     string
	left     float64
	top      float64
	bottom   float64
	fontSize float64
}

// pageLines returns the text lines of a page, top to bottom. Pages without
// structured text fall back to plain extraction.
func pageLines(instance pdfium.Pdfium, doc *responses.OpenDocument, pageIdx int) []pdfLine {
	page := requests.Page{ByIndex: &requests.PageByIndex{Document: doc.Document, Index: pageIdx}}
	structured, err := instance.GetPageTextStructured(&requests.GetPageTextStructured{
		Page:                   page,
		Mode:                   requests.GetPageTextStructuredModeRects,
		CollectFontInformation: true,
	})
	if err != nil || len(structured.Rects) == 0 {
		plain, err := instance.GetPageText(&requests.GetPageText{Page: page})
		if err != nil {
			return nil
		}
		var lines []pdfLine
		for _, l := range strings.Split(plain.Text, "\n") {
			lines = append(lines, pdfLine{text: l})
		}
		return lines
	}

	var rects []pdfRect
	for _, r := range structured.Rects {
		if strings.TrimSpace(r.Text) == "" {
			continue
		}
		pr := pdfRect{
			text:   r.Text,
			left:   r.PointPosition.Left,
			top:    r.PointPosition.Top,
			bottom: r.PointPosition.Bottom,
		}
		if r.FontInformation != nil {
			pr.fontSize = r.FontInformation.Size
		}
		rects = append(rects, pr)
	}
	return groupRectsIntoLines(rects)
}

// groupRectsIntoLines merges rects sharing a baseline into lines, sorted
// top-to-bottom with rects left-to-right.
func groupRectsIntoLines(rects []pdfRect) []pdfLine {
	sort.Slice(rects, func(i, j int) bool {
		if math.Abs(rects[i].top-rects[j].top) < 2 {
			return rects[i].left < rects[j].left
		}
		return rects[i].top > rects[j].top
	})

	type group struct {
		top, bottom float64
		rects       []pdfRect
	}
	var groups []*group
	for _, r := range rects {
		var g *group
		for _, cand := range groups {
			if math.Abs(cand.top-r.top) < 3 {
				g = cand
				break
			}
		}
		if g == nil {
			g = &group{top: r.top, bottom: r.bottom}
			groups = append(groups, g)
		}
		g.rects = append(g.rects, r)
	}

	lines := make([]pdfLine, 0, len(groups))
	for _, g := range groups {
		sort.Slice(g.rects, func(a, b int) bool { return g.rects[a].left < g.rects[b].left })
		var b strings.Builder
		sizes := map[float64]int{}
		for _, r := range g.rects {
			b.WriteString(r.text)
			sizes[math.Round(r.fontSize*10)/10] += len(r.text)
		}
		var size float64
		best := 0
		for s, n := range sizes {
			if n > best {
				best, size = n, s
			}
		}
		lines = append(lines, pdfLine{text: b.String(), fontSize: size, top: g.top, bottom: g.bottom})
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].top > lines[j].top })
	return lines
}
