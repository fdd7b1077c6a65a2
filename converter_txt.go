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
	"regexp"
	"strings"
)

// TextDecoder reads plain text and markdown. ATX headings and pipe tables
// are recognised; everything else becomes paragraphs split on blank lines.
type TextDecoder struct{}

// NewTextDecoder creates a new TextDecoder.
func NewTextDecoder() *TextDecoder {
	return &TextDecoder{}
}

var (
	reHeading      = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)
	reTableDivider = regexp.MustCompile(`^\|?\s*:?-{3,}:?\s*(\|\s*:?-{3,}:?\s*)*\|?\s*$`)
)

func (d *TextDecoder) Decode(ctx context.Context, r io.Reader, opts CodecOptions) (*Document, error) {
	text, err := readText(ctx, r, opts)
	if err != nil {
		return nil, err
	}
	return parseText(text), nil
}

func parseText(text string) *Document {
	text = reCRLF.ReplaceAllString(text, "\n")
	lines := strings.Split(text, "\n")

	doc := &Document{}
	var para []string
	flush := func() {
		if len(para) > 0 {
			doc.AddParagraph(strings.Join(para, "\n"))
			para = nil
		}
	}

	for i := 0; i < len(lines); i++ {
		line := strings.TrimRight(lines[i], " \t")
		switch {
		case strings.TrimSpace(line) == "":
			flush()
		case reHeading.MatchString(line):
			flush()
			m := reHeading.FindStringSubmatch(line)
			doc.AddHeading(len(m[1]), m[2])
		case isPipeRow(line) && i+1 < len(lines) && reTableDivider.MatchString(strings.TrimSpace(lines[i+1])):
			flush()
			rows := [][]string{splitPipeRow(line)}
			i += 2
			for ; i < len(lines) && isPipeRow(lines[i]); i++ {
				rows = append(rows, splitPipeRow(lines[i]))
			}
			i--
			doc.AddTable("", rows)
		default:
			para = append(para, line)
		}
	}
	flush()
	return doc
}

func isPipeRow(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "|")
}

// splitPipeRow splits "| a | b |" into its cells, honouring "\|" escapes.
func splitPipeRow(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	line = strings.TrimSuffix(line, "|")

	var cells []string
	var cur strings.Builder
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '\\' && i+1 < len(line) && line[i+1] == '|':
			cur.WriteByte('|')
			i++
		case line[i] == '|':
			cells = append(cells, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(line[i])
		}
	}
	return append(cells, strings.TrimSpace(cur.String()))
}

// TextEncoder writes markdown-flavoured plain text.
type TextEncoder struct{}

// NewTextEncoder creates a new TextEncoder.
func NewTextEncoder() *TextEncoder {
	return &TextEncoder{}
}

func (e *TextEncoder) Encode(ctx context.Context, w io.Writer, doc *Document, opts CodecOptions) error {
	var b strings.Builder
	named := len(doc.Tables()) > 1
	for _, blk := range doc.Blocks {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch blk.Kind {
		case BlockHeading:
			fmt.Fprintf(&b, "%s %s\n\n", strings.Repeat("#", blk.Level), blk.Text)
		case BlockTable:
			if named && blk.Name != "" {
				fmt.Fprintf(&b, "## %s\n\n", blk.Name)
			}
			b.WriteString(renderMarkdownTable(limitRows(blk.Rows, opts.Params.MaxRows)))
			b.WriteString("\n")
		default:
			if blk.Markdown != "" {
				b.WriteString(blk.Markdown)
			} else {
				b.WriteString(blk.Text)
			}
			b.WriteString("\n\n")
		}
	}
	_, err := io.WriteString(w, normalizeOutput(b.String()))
	return err
}

// renderMarkdownTable renders rows as a markdown table with the first row as
// header. Ragged rows are padded to the widest row.
func renderMarkdownTable(records [][]string) string {
	if len(records) == 0 {
		return ""
	}
	numCols := 0
	for _, row := range records {
		numCols = max(numCols, len(row))
	}

	var b strings.Builder
	writeRow := func(row []string) {
		b.WriteString("|")
		for i := 0; i < numCols; i++ {
			cell := ""
			if i < len(row) {
				cell = strings.ReplaceAll(cleanCell(row[i]), "|", `\|`)
			}
			b.WriteString(" ")
			b.WriteString(cell)
			b.WriteString(" |")
		}
		b.WriteString("\n")
	}

	writeRow(records[0])
	b.WriteString("|")
	for i := 0; i < numCols; i++ {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, row := range records[1:] {
		writeRow(row)
	}
	return b.String()
}

// limitRows caps rows at n data rows plus the header; n <= 0 keeps all.
func limitRows(rows [][]string, n int) [][]string {
	if n <= 0 || len(rows) <= n+1 {
		return rows
	}
	return rows[:n+1]
}
