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

//go:build nopdfium

package docconv

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PdfDecoder extracts text from PDF files with a pure-Go reader.
type PdfDecoder struct{}

// NewPdfDecoder creates a new PdfDecoder.
func NewPdfDecoder() *PdfDecoder {
	return &PdfDecoder{}
}

func (d *PdfDecoder) Decode(ctx context.Context, r io.Reader, opts CodecOptions) (doc *Document, err error) {
	// The reader panics on some malformed cross-reference tables.
	defer func() {
		if rec := recover(); rec != nil {
			doc, err = nil, fmt.Errorf("open PDF: malformed document: %v", rec)
		}
	}()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read PDF: %w", err)
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	pages := reader.NumPage()
	if limit := opts.Params.MaxPages; limit > 0 && pages > limit {
		pages = limit
	}

	doc = &Document{}
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		lines := rowLines(page)
		appendPdfPage(doc, lines, detectBodyFontSize(lines))
	}
	return doc, nil
}

// rowLines extracts the text rows of a page. An empty word between two
// non-empty words marks a word boundary.
func rowLines(page pdf.Page) []pdfLine {
	rows, err := page.GetTextByRow()
	if err != nil {
		return nil
	}

	lines := make([]pdfLine, 0, len(rows))
	for _, row := range rows {
		var b strings.Builder
		var size float64
		gap := false
		for _, word := range row.Content {
			if word.S == "" {
				gap = true
				continue
			}
			if b.Len() > 0 && gap && !strings.HasSuffix(b.String(), " ") {
				b.WriteString(" ")
			}
			b.WriteString(word.S)
			size = max(size, word.FontSize)
			gap = false
		}
		if strings.TrimSpace(b.String()) == "" {
			continue
		}
		y := float64(row.Position)
		lines = append(lines, pdfLine{text: b.String(), fontSize: size, top: y + size, bottom: y})
	}
	return lines
}
