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
	"regexp"
	"strings"
	"unicode"
)

var (
	reTrailingWhitespace = regexp.MustCompile(`[ \t]+\n`)
	reMultipleNewlines   = regexp.MustCompile(`\n{3,}`)
	reCRLF               = regexp.MustCompile(`\r\n?`)
)

// normalizeOutput cleans text before it is written: LF line endings, no
// control characters other than tab and newline, no trailing blanks, at most
// one empty line in a row, valid UTF-8, and a single final newline.
func normalizeOutput(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = reCRLF.ReplaceAllString(s, "\n")
	s = stripControl(s)
	s = reTrailingWhitespace.ReplaceAllString(s+"\n", "\n")
	s = reMultipleNewlines.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return s + "\n"
}

// stripControl removes control characters except tab and newline.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// cleanCell flattens a table cell to one line.
func cleanCell(s string) string {
	s = stripControl(strings.ReplaceAll(s, "\n", " "))
	return strings.TrimSpace(strings.ReplaceAll(s, "\t", " "))
}
