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
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
)

// oleMagic starts every legacy (BIFF) workbook.
var oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// XlsxDecoder reads workbooks into one named table per non-empty sheet.
// Legacy .xls workbooks are detected by content and read with the BIFF reader.
type XlsxDecoder struct{}

// NewXlsxDecoder creates a new XlsxDecoder.
func NewXlsxDecoder() *XlsxDecoder {
	return &XlsxDecoder{}
}

func (d *XlsxDecoder) Decode(ctx context.Context, r io.Reader, opts CodecOptions) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read workbook: %w", err)
	}
	if bytes.HasPrefix(data, oleMagic) {
		return decodeXls(ctx, data)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open XLSX: %w", err)
	}
	defer f.Close()

	doc := &Document{}
	for _, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		doc.AddTable(sheet, trimEmptyRows(rows))
	}
	if want := opts.Option("sheet", ""); want != "" {
		if _, err := selectTable(doc, want); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// trimEmptyRows drops trailing rows without content.
func trimEmptyRows(rows [][]string) [][]string {
	end := len(rows)
	for end > 0 && rowIsEmpty(rows[end-1]) {
		end--
	}
	return rows[:end]
}

func rowIsEmpty(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// XlsxEncoder writes one worksheet per table. Documents without tables get a
// single "Document" sheet with one line of text per row.
type XlsxEncoder struct{}

// NewXlsxEncoder creates a new XlsxEncoder.
func NewXlsxEncoder() *XlsxEncoder {
	return &XlsxEncoder{}
}

func (e *XlsxEncoder) Encode(ctx context.Context, w io.Writer, doc *Document, opts CodecOptions) error {
	tables := doc.Tables()
	if len(tables) == 0 {
		rows, err := selectTable(doc, "")
		if err != nil {
			return err
		}
		tables = []Block{{Kind: BlockTable, Name: "Document", Rows: rows}}
	}

	f := excelize.NewFile()
	defer f.Close()

	var headerStyle int
	if opts.Params.StyledHeaders {
		id, err := f.NewStyle(&excelize.Style{
			Font: &excelize.Font{Bold: true},
			Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"D9E1F2"}},
		})
		if err != nil {
			return fmt.Errorf("create header style: %w", err)
		}
		headerStyle = id
	}

	used := map[string]bool{}
	for i, t := range tables {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := uniqueSheetName(t.Name, i+1, used)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("create sheet %q: %w", name, err)
		}
		if err := writeSheet(f, name, limitRows(t.Rows, opts.Params.MaxRows), opts.Params, headerStyle); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write XLSX: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, rows [][]string, params QualityParams, headerStyle int) error {
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("open sheet %q: %w", sheet, err)
	}

	if params.FitColumns {
		for col, width := range columnWidths(rows) {
			if err := sw.SetColWidth(col+1, col+1, width); err != nil {
				return fmt.Errorf("set column width: %w", err)
			}
		}
	}

	for r, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, r+1)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(row))
		for i, v := range row {
			values[i] = v
		}
		var rowOpts []excelize.RowOpts
		if r == 0 && headerStyle != 0 {
			rowOpts = append(rowOpts, excelize.RowOpts{StyleID: headerStyle})
		}
		if err := sw.SetRow(cell, values, rowOpts...); err != nil {
			return fmt.Errorf("write row %d of %q: %w", r+1, sheet, err)
		}
	}
	return sw.Flush()
}

// columnWidths estimates a display width per column from its longest cell.
func columnWidths(rows [][]string) []float64 {
	var widths []float64
	for _, row := range rows {
		for i, cell := range row {
			for len(widths) <= i {
				widths = append(widths, 8)
			}
			w := float64(utf8.RuneCountInString(cell)) + 2
			if w > widths[i] {
				widths[i] = min(w, 80)
			}
		}
	}
	return widths
}

// uniqueSheetName makes name a valid, unused worksheet name: no []:*?/\
// characters, at most 31 runes, and distinct from earlier sheets.
func uniqueSheetName(name string, n int, used map[string]bool) string {
	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, strings.TrimSpace(name))
	if name == "" {
		name = fmt.Sprintf("Sheet%d", n)
	}
	name = truncateRunes(name, 31)

	candidate := name
	for i := 2; used[strings.ToLower(candidate)]; i++ {
		suffix := fmt.Sprintf(" (%d)", i)
		candidate = truncateRunes(name, 31-len(suffix)) + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
