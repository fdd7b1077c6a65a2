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
	"path/filepath"
	"strings"
)

// Format identifies one of the supported document representations.
type Format string

const (
	PDF  Format = "pdf"
	DOCX Format = "docx"
	XLSX Format = "xlsx"
	CSV  Format = "csv"
	JSON Format = "json"
	TXT  Format = "txt"
)

// formatOrder is the declaration order used by every introspection call.
var formatOrder = []Format{PDF, DOCX, XLSX, CSV, JSON, TXT}

// formatExtensions lists the file extensions owned by each format. The first
// entry is the canonical extension used when naming output files.
var formatExtensions = map[Format][]string{
	PDF:  {".pdf"},
	DOCX: {".docx"},
	XLSX: {".xlsx", ".xls"},
	CSV:  {".csv"},
	JSON: {".json"},
	TXT:  {".txt", ".text", ".md"},
}

// ParseFormat maps a format name or extension ("pdf", ".PDF", "xls") to a Format.
func ParseFormat(s string) (Format, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}
	if !strings.HasPrefix(s, ".") {
		if _, ok := formatExtensions[Format(s)]; ok {
			return Format(s), true
		}
		s = "." + s
	}
	return formatForExtension(s)
}

// FormatFromPath infers the format of a file from its extension.
func FormatFromPath(path string) (Format, bool) {
	return formatForExtension(strings.ToLower(filepath.Ext(path)))
}

func formatForExtension(ext string) (Format, bool) {
	for _, f := range formatOrder {
		for _, e := range formatExtensions[f] {
			if e == ext {
				return f, true
			}
		}
	}
	return "", false
}

// Valid reports whether f is one of the six supported formats.
func (f Format) Valid() bool {
	_, ok := formatExtensions[f]
	return ok
}

// Extension returns the canonical extension for f, including the leading dot.
func (f Format) Extension() string {
	if exts, ok := formatExtensions[f]; ok {
		return exts[0]
	}
	return ""
}

// Extensions returns every extension accepted as input for f.
func (f Format) Extensions() []string {
	return append([]string(nil), formatExtensions[f]...)
}

// String implements fmt.Stringer.
func (f Format) String() string { return string(f) }

// AllExtensions returns the input extensions of every supported format.
func AllExtensions() []string {
	var exts []string
	for _, f := range formatOrder {
		exts = append(exts, formatExtensions[f]...)
	}
	return exts
}

// IsSupported reports whether a conversion from in to out is legal.
// Every pair of distinct formats converts both ways; self pairs are rejected.
func IsSupported(in, out Format) bool {
	return in.Valid() && out.Valid() && in != out
}

// SupportedFormats returns the six formats in declaration order.
func SupportedFormats() []Format {
	return append([]Format(nil), formatOrder...)
}

// SupportedConversions returns the formats f converts into, in declaration order.
// Unknown formats have no conversions.
func SupportedConversions(f Format) []Format {
	if !f.Valid() {
		return nil
	}
	targets := make([]Format, 0, len(formatOrder)-1)
	for _, t := range formatOrder {
		if IsSupported(f, t) {
			targets = append(targets, t)
		}
	}
	return targets
}

// AllConversions returns the full support matrix keyed by input format.
func AllConversions() map[Format][]Format {
	m := make(map[Format][]Format, len(formatOrder))
	for _, f := range formatOrder {
		m[f] = SupportedConversions(f)
	}
	return m
}
