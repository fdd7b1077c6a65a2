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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// jsonField is one member of a JSON object, kept in source order.
type jsonField struct {
	Key   string
	Value any
}

// jsonObject is a JSON object that preserves member order.
type jsonObject []jsonField

func (o jsonObject) get(key string) (any, bool) {
	for _, f := range o {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

func (o jsonObject) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	for i, f := range o {
		if i > 0 {
			b.WriteByte(',')
		}
		k, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		b.Write(k)
		b.WriteByte(':')
		b.Write(v)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// decodeOrdered parses one JSON value, keeping object member order.
func decodeOrdered(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			var obj jsonObject
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := kt.(string)
				if !ok {
					return nil, fmt.Errorf("expected object key, got %v", kt)
				}
				v, err := decodeOrdered(dec)
				if err != nil {
					return nil, err
				}
				obj = append(obj, jsonField{Key: key, Value: v})
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := []any{}
			for dec.More() {
				v, err := decodeOrdered(dec)
				if err != nil {
					return nil, err
				}
				arr = append(arr, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	default:
		return t, nil
	}
}

// JSONDecoder reads JSON documents. Arrays of objects and arrays of arrays
// become tables, {"data": [...]} and objects of such arrays become (named)
// tables, {"content": "..."} becomes text, and anything else is kept as
// pretty-printed JSON text.
type JSONDecoder struct{}

// NewJSONDecoder creates a new JSONDecoder.
func NewJSONDecoder() *JSONDecoder {
	return &JSONDecoder{}
}

func (d *JSONDecoder) Decode(ctx context.Context, r io.Reader, opts CodecOptions) (*Document, error) {
	text, err := readText(ctx, r, opts)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	v, err := decodeOrdered(dec)
	if err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("parse JSON: trailing data after top-level value")
	}

	doc := &Document{}
	if rows, ok := tableFromJSON(v); ok {
		doc.AddTable("", rows)
		return doc, nil
	}
	if obj, ok := v.(jsonObject); ok {
		if data, ok := obj.get("data"); ok && len(obj) == 1 {
			if rows, ok := tableFromJSON(data); ok {
				doc.AddTable("", rows)
				return doc, nil
			}
		}
		if content, ok := obj.get("content"); ok {
			if s, ok := content.(string); ok {
				return parseText(s), nil
			}
		}
		if sheets, ok := sheetsFromJSON(obj); ok {
			for _, s := range sheets {
				doc.AddTable(s.Name, s.Rows)
			}
			return doc, nil
		}
	}

	pretty, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("format JSON: %w", err)
	}
	doc.AddParagraph(string(pretty))
	return doc, nil
}

// tableFromJSON converts an array of objects (header = union of keys in
// first-seen order) or an array of arrays into rows.
func tableFromJSON(v any) ([][]string, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return nil, false
	}

	if _, ok := arr[0].([]any); ok {
		rows := make([][]string, 0, len(arr))
		for _, item := range arr {
			inner, ok := item.([]any)
			if !ok {
				return nil, false
			}
			row := make([]string, len(inner))
			for i, cell := range inner {
				row[i] = jsonScalar(cell)
			}
			rows = append(rows, row)
		}
		return rows, true
	}

	var header []string
	index := map[string]int{}
	for _, item := range arr {
		obj, ok := item.(jsonObject)
		if !ok {
			return nil, false
		}
		for _, f := range obj {
			if _, seen := index[f.Key]; !seen {
				index[f.Key] = len(header)
				header = append(header, f.Key)
			}
		}
	}
	rows := [][]string{header}
	for _, item := range arr {
		row := make([]string, len(header))
		for _, f := range item.(jsonObject) {
			row[index[f.Key]] = jsonScalar(f.Value)
		}
		rows = append(rows, row)
	}
	return rows, true
}

func sheetsFromJSON(obj jsonObject) ([]Block, bool) {
	if len(obj) == 0 {
		return nil, false
	}
	sheets := make([]Block, 0, len(obj))
	for _, f := range obj {
		rows, ok := tableFromJSON(f.Value)
		if !ok {
			return nil, false
		}
		sheets = append(sheets, Block{Kind: BlockTable, Name: f.Key, Rows: rows})
	}
	return sheets, true
}

func jsonScalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

// JSONEncoder writes a Document as JSON. A single unnamed table is written
// as {"data": records}, named tables as {sheet: records}, and text documents
// as {"title", "content", "lines", "line_count"} with any tables appended.
type JSONEncoder struct{}

// NewJSONEncoder creates a new JSONEncoder.
func NewJSONEncoder() *JSONEncoder {
	return &JSONEncoder{}
}

func (e *JSONEncoder) Encode(ctx context.Context, w io.Writer, doc *Document, opts CodecOptions) error {
	maxRows := opts.Params.MaxRows
	var out jsonObject

	switch tables := doc.Tables(); {
	case doc.OnlyTables() && len(tables) == 1 && tables[0].Name == "":
		out = jsonObject{{Key: "data", Value: tableRecords(limitRows(tables[0].Rows, maxRows))}}
	case doc.OnlyTables():
		for i, t := range tables {
			name := t.Name
			if name == "" {
				name = fmt.Sprintf("table_%d", i+1)
			}
			out = append(out, jsonField{Key: name, Value: tableRecords(limitRows(t.Rows, maxRows))})
		}
	default:
		var lines []string
		for _, l := range doc.Lines() {
			if strings.TrimSpace(l) != "" {
				lines = append(lines, l)
			}
		}
		if lines == nil {
			lines = []string{}
		}
		if doc.Title != "" {
			out = append(out, jsonField{Key: "title", Value: doc.Title})
		}
		out = append(out,
			jsonField{Key: "content", Value: doc.PlainText()},
			jsonField{Key: "lines", Value: lines},
			jsonField{Key: "line_count", Value: len(lines)},
		)
		if len(tables) > 0 {
			var ts []jsonObject
			for i, t := range tables {
				ts = append(ts, jsonObject{
					{Key: "table_id", Value: i + 1},
					{Key: "name", Value: t.Name},
					{Key: "rows", Value: limitRows(t.Rows, maxRows)},
				})
			}
			out = append(out, jsonField{Key: "tables", Value: ts})
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if opts.Params.Indent > 0 {
		enc.SetIndent("", strings.Repeat(" ", opts.Params.Indent))
	}
	return enc.Encode(out)
}

// tableRecords turns rows into objects keyed by the header row. Blank
// header cells are named column_N.
func tableRecords(rows [][]string) []jsonObject {
	records := []jsonObject{}
	if len(rows) == 0 {
		return records
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		if strings.TrimSpace(h) == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		header[i] = h
	}
	for _, row := range rows[1:] {
		rec := make(jsonObject, 0, len(header))
		for i, h := range header {
			v := ""
			if i < len(row) {
				v = row[i]
			}
			rec = append(rec, jsonField{Key: h, Value: v})
		}
		for i := len(header); i < len(row); i++ {
			rec = append(rec, jsonField{Key: fmt.Sprintf("column_%d", i+1), Value: row[i]})
		}
		records = append(records, rec)
	}
	return records
}
