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
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"
)

// ptToMM converts points to millimetres.
const ptToMM = 0.3528

var pdfHeadingScale = [...]float64{0, 1.8, 1.5, 1.3, 1.15, 1.05, 1.0}

// PdfEncoder renders a Document as a simple A4 PDF using the standard
// Helvetica fonts. Text outside Windows-1252 is approximated.
type PdfEncoder struct{}

// NewPdfEncoder creates a new PdfEncoder.
func NewPdfEncoder() *PdfEncoder {
	return &PdfEncoder{}
}

func (e *PdfEncoder) Encode(ctx context.Context, w io.Writer, doc *Document, opts CodecOptions) error {
	size := opts.Params.FontSize
	if size <= 0 {
		size = 11
	}
	lineHeight := size * ptToMM * 1.4

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(opts.Params.Compression > 0)
	pdf.SetCreator("docconv", true)
	if doc.Title != "" {
		pdf.SetTitle(doc.Title, true)
	}
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for _, blk := range doc.Blocks {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch blk.Kind {
		case BlockHeading:
			hs := size * pdfHeadingScale[min(max(blk.Level, 1), 6)]
			pdf.SetFont("Helvetica", "B", hs)
			pdf.Ln(lineHeight / 2)
			pdf.MultiCell(0, hs*ptToMM*1.3, tr(blk.Text), "", "L", false)
			pdf.Ln(lineHeight / 3)
		case BlockTable:
			if blk.Name != "" {
				pdf.SetFont("Helvetica", "B", size*pdfHeadingScale[3])
				pdf.MultiCell(0, lineHeight, tr(blk.Name), "", "L", false)
			}
			writePdfTable(pdf, tr, limitRows(blk.Rows, opts.Params.MaxRows), size, lineHeight, opts.Params.StyledHeaders)
			pdf.Ln(lineHeight / 2)
		default:
			pdf.SetFont("Helvetica", "", size)
			pdf.MultiCell(0, lineHeight, tr(blk.Text), "", "L", false)
			pdf.Ln(lineHeight / 2)
		}
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render PDF: %w", err)
	}
	return pdf.Output(w)
}

// writePdfTable draws rows as a grid of equal-width columns. Cells that do
// not fit are truncated with an ellipsis.
func writePdfTable(pdf *fpdf.Fpdf, tr func(string) string, rows [][]string, size, lineHeight float64, styledHeader bool) {
	cols := 0
	for _, row := range rows {
		cols = max(cols, len(row))
	}
	if cols == 0 {
		return
	}
	pageW, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	colW := (pageW - left - right) / float64(cols)

	cellSize := size * 0.9
	pdf.SetFillColor(217, 225, 242)
	for r, row := range rows {
		header := r == 0 && styledHeader
		if header {
			pdf.SetFont("Helvetica", "B", cellSize)
		} else {
			pdf.SetFont("Helvetica", "", cellSize)
		}
		for c := 0; c < cols; c++ {
			cell := ""
			if c < len(row) {
				cell = fitText(pdf, tr(cleanCell(row[c])), colW-2)
			}
			pdf.CellFormat(colW, lineHeight, cell, "1", 0, "L", header, 0, "")
		}
		pdf.Ln(-1)
	}
}

func fitText(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	const ellipsis = "..."
	for len(s) > 0 && pdf.GetStringWidth(s+ellipsis) > width {
		s = s[:len(s)-1]
	}
	return s + ellipsis
}
