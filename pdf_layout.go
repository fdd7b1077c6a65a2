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
	"math"
	"strings"
)

// pdfLine is one line of extracted PDF text with its dominant font size and
// vertical extent (PDF coordinates grow upwards).
type pdfLine struct {
	text     string
	fontSize float64
	top      float64
	bottom   float64
}

// detectBodyFontSize finds the most common font size, weighted by character
// count, which represents the body text.
func detectBodyFontSize(lines []pdfLine) float64 {
	counts := map[float64]int{}
	for _, l := range lines {
		counts[math.Round(l.fontSize*10)/10] += len(strings.TrimSpace(l.text))
	}
	var body float64
	best := 0
	for size, n := range counts {
		if n > best || (n == best && size < body) {
			best, body = n, size
		}
	}
	return body
}

// headingLevel derives a heading level from the ratio of a line's font size
// to the body size. It returns 0 for body text.
func headingLevel(fontSize, bodySize float64) int {
	if bodySize <= 0 || fontSize <= 0 {
		return 0
	}
	switch ratio := fontSize / bodySize; {
	case ratio >= 2.0:
		return 1
	case ratio >= 1.5:
		return 2
	case ratio >= 1.2:
		return 3
	default:
		return 0
	}
}

// appendPdfPage adds the lines of one page to doc. Large lines become
// headings; the rest are joined into paragraphs, broken where the vertical
// gap exceeds 1.5 line heights.
func appendPdfPage(doc *Document, lines []pdfLine, bodySize float64) {
	var para []string
	flush := func() {
		doc.AddParagraph(strings.Join(para, "\n"))
		para = nil
	}

	for i, line := range lines {
		text := strings.TrimSpace(line.text)
		if text == "" {
			continue
		}
		if level := headingLevel(line.fontSize, bodySize); level > 0 && len(text) < 120 {
			flush()
			doc.AddHeading(level, text)
			continue
		}
		if i > 0 && len(para) > 0 {
			prev := lines[i-1]
			height := line.top - line.bottom
			if height <= 0 {
				height = bodySize
			}
			if prev.bottom-line.top > height*1.5 {
				flush()
			}
		}
		para = append(para, text)
	}
	flush()
}
