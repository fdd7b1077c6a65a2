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
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// CsvDecoder reads delimited text into a single table.
type CsvDecoder struct{}

// NewCsvDecoder creates a new CsvDecoder.
func NewCsvDecoder() *CsvDecoder {
	return &CsvDecoder{}
}

func (d *CsvDecoder) Decode(ctx context.Context, r io.Reader, opts CodecOptions) (*Document, error) {
	text, err := readText(ctx, r, opts)
	if err != nil {
		return nil, err
	}
	delim, err := delimiterOption(opts)
	if err != nil {
		return nil, err
	}

	cr := csv.NewReader(strings.NewReader(text))
	cr.Comma = delim
	cr.FieldsPerRecord = -1 // allow variable fields
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse CSV: %w", err)
	}

	doc := &Document{}
	doc.AddTable("", records)
	return doc, nil
}

// CsvEncoder writes one table as delimited text. Documents without tables
// are written one line per row under a "text" header.
type CsvEncoder struct{}

// NewCsvEncoder creates a new CsvEncoder.
func NewCsvEncoder() *CsvEncoder {
	return &CsvEncoder{}
}

func (e *CsvEncoder) Encode(ctx context.Context, w io.Writer, doc *Document, opts CodecOptions) error {
	delim, err := delimiterOption(opts)
	if err != nil {
		return err
	}
	rows, err := selectTable(doc, opts.Option("sheet", ""))
	if err != nil {
		return err
	}
	rows = limitRows(rows, opts.Params.MaxRows)

	cw := csv.NewWriter(w)
	cw.Comma = delim
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write CSV: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// selectTable picks the table written by single-table encoders: the one named
// sheet when given, else the first.
func selectTable(doc *Document, sheet string) ([][]string, error) {
	tables := doc.Tables()
	if sheet != "" {
		for _, t := range tables {
			if t.Name == sheet {
				return t.Rows, nil
			}
		}
		return nil, fmt.Errorf("sheet %q not found", sheet)
	}
	if len(tables) > 0 {
		return tables[0].Rows, nil
	}

	rows := [][]string{{"text"}}
	for _, line := range doc.Lines() {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, []string{line})
	}
	return rows, nil
}

func delimiterOption(opts CodecOptions) (rune, error) {
	d := opts.Option("delimiter", ",")
	switch d {
	case `\t`, "tab":
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(d)
	if size != len(d) || r == utf8.RuneError || r == '"' || r == '\r' || r == '\n' {
		return 0, fmt.Errorf("invalid delimiter %q", d)
	}
	return r, nil
}
