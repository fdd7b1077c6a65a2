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
	"io"
	"strings"
)

// BlockKind identifies the type of a Document block.
type BlockKind int

const (
	BlockParagraph BlockKind = iota
	BlockHeading
	BlockTable
)

// Block is one unit of document content.
type Block struct {
	Kind BlockKind
	// Level is the heading level (1-6) for BlockHeading.
	Level int
	// Text is the plain text of a heading or paragraph.
	Text string
	// Markdown optionally carries an inline-formatted rendering of Text.
	Markdown string
	// Name labels a table, for example the worksheet it came from.
	Name string
	Rows [][]string
}

// Document is the format-neutral representation every decoder produces and
// every encoder consumes.
type Document struct {
	Title  string
	Blocks []Block
}

// AddHeading appends a heading block. Levels are clamped to 1-6.
func (d *Document) AddHeading(level int, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	d.Blocks = append(d.Blocks, Block{Kind: BlockHeading, Level: min(max(level, 1), 6), Text: text})
	if d.Title == "" {
		d.Title = text
	}
}

// AddParagraph appends a paragraph block; blank paragraphs are dropped.
func (d *Document) AddParagraph(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	d.Blocks = append(d.Blocks, Block{Kind: BlockParagraph, Text: text})
}

// AddTable appends a table block; empty tables are dropped.
func (d *Document) AddTable(name string, rows [][]string) {
	if len(rows) == 0 {
		return
	}
	d.Blocks = append(d.Blocks, Block{Kind: BlockTable, Name: name, Rows: rows})
}

// Tables returns the table blocks in document order.
func (d *Document) Tables() []Block {
	var tables []Block
	for _, b := range d.Blocks {
		if b.Kind == BlockTable {
			tables = append(tables, b)
		}
	}
	return tables
}

// OnlyTables reports whether the document holds at least one table and
// nothing else.
func (d *Document) OnlyTables() bool {
	if len(d.Blocks) == 0 {
		return false
	}
	for _, b := range d.Blocks {
		if b.Kind != BlockTable {
			return false
		}
	}
	return true
}

// Lines flattens the document into text lines. Tables contribute one
// tab-separated line per row.
func (d *Document) Lines() []string {
	var lines []string
	for _, b := range d.Blocks {
		switch b.Kind {
		case BlockTable:
			for _, row := range b.Rows {
				lines = append(lines, strings.Join(row, "\t"))
			}
		default:
			lines = append(lines, strings.Split(b.Text, "\n")...)
		}
	}
	return lines
}

// PlainText renders the document as plain text with blank lines between blocks.
func (d *Document) PlainText() string {
	parts := make([]string, 0, len(d.Blocks))
	for _, b := range d.Blocks {
		if b.Kind == BlockTable {
			rows := make([]string, 0, len(b.Rows))
			for _, row := range b.Rows {
				rows = append(rows, strings.Join(row, "\t"))
			}
			parts = append(parts, strings.Join(rows, "\n"))
			continue
		}
		parts = append(parts, b.Text)
	}
	return strings.Join(parts, "\n\n")
}

// CodecOptions is what a codec sees of the request being served.
type CodecOptions struct {
	// Path is the input path, used for diagnostics and extension-specific decoding.
	Path    string
	Params  QualityParams
	Options map[string]string
}

// Option returns a format-specific option or def when unset.
func (o CodecOptions) Option(key, def string) string {
	if v, ok := o.Options[key]; ok && v != "" {
		return v
	}
	return def
}

// Decoder reads one format into a Document.
type Decoder interface {
	Decode(ctx context.Context, r io.Reader, opts CodecOptions) (*Document, error)
}

// Encoder writes a Document in one format.
type Encoder interface {
	Encode(ctx context.Context, w io.Writer, doc *Document, opts CodecOptions) error
}

// Task is a single unit of work handed to a Handler.
type Task struct {
	Input   string
	From    Format
	To      Format
	Quality Quality
	Params  QualityParams
	Options map[string]string
	Source  io.Reader
	Output  io.Writer
}

// Handler converts one input stream into one output stream.
type Handler interface {
	Convert(ctx context.Context, t Task) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, t Task) error

func (f HandlerFunc) Convert(ctx context.Context, t Task) error { return f(ctx, t) }

// codecHandler decodes with the input codec and encodes with the output codec.
type codecHandler struct {
	dec Decoder
	enc Encoder
}

func (h codecHandler) Convert(ctx context.Context, t Task) error {
	opts := CodecOptions{Path: t.Input, Params: t.Params, Options: t.Options}
	doc, err := h.dec.Decode(ctx, t.Source, opts)
	if err != nil {
		return err
	}
	if title := opts.Option("title", ""); title != "" {
		doc.Title = title
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return h.enc.Encode(ctx, t.Output, doc, opts)
}

// codec pairs the decoder and encoder of a format.
type codec struct {
	dec Decoder
	enc Encoder
}

// builtinCodecs returns a codec for every supported format.
func builtinCodecs() map[Format]codec {
	return map[Format]codec{
		PDF:  {dec: NewPdfDecoder(), enc: NewPdfEncoder()},
		DOCX: {dec: NewDocxDecoder(), enc: NewDocxEncoder()},
		XLSX: {dec: NewXlsxDecoder(), enc: NewXlsxEncoder()},
		CSV:  {dec: NewCsvDecoder(), enc: NewCsvEncoder()},
		JSON: {dec: NewJSONDecoder(), enc: NewJSONEncoder()},
		TXT:  {dec: NewTextDecoder(), enc: NewTextEncoder()},
	}
}
