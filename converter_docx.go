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
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"golang.org/x/net/html"

	"github.com/nicholasgasior/docconv-go/internal/ooxml"
)

// DocxDecoder reads Word documents. Heading levels come from paragraph
// styles; run formatting and hyperlinks are kept as inline markdown.
type DocxDecoder struct{}

// NewDocxDecoder creates a new DocxDecoder.
func NewDocxDecoder() *DocxDecoder {
	return &DocxDecoder{}
}

func (d *DocxDecoder) Decode(ctx context.Context, r io.Reader, opts CodecOptions) (*Document, error) {
	zr, err := ooxml.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open DOCX: %w", err)
	}

	rels, err := ooxml.ParseRelationships(zr, "word/_rels/document.xml.rels")
	if err != nil {
		return nil, err
	}
	styles := parseStyles(zr)

	docData, err := ooxml.ReadFileFromZip(zr, "word/document.xml")
	if err != nil {
		return nil, fmt.Errorf("read document.xml: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := &docxParser{
		rels:   rels,
		styles: styles,
		inline: newInlineConverter(),
		doc:    &Document{},
	}
	if err := p.parse(docData); err != nil {
		return nil, fmt.Errorf("parse document.xml: %w", err)
	}
	if title := coreTitle(zr); title != "" {
		p.doc.Title = title
	}
	return p.doc, nil
}

// parseStyles maps style IDs to their display names.
func parseStyles(zr *zip.Reader) map[string]string {
	styles := make(map[string]string)
	data, err := ooxml.ReadFileFromZip(zr, "word/styles.xml")
	if err != nil {
		return styles
	}

	decoder := xml.NewDecoder(bytes.NewReader(data))
	var currentStyleID string
	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "style":
				currentStyleID = attrValue(t, "styleId")
			case "name":
				if currentStyleID != "" {
					styles[currentStyleID] = attrValue(t, "val")
				}
			}
		case xml.EndElement:
			if t.Name.Local == "style" {
				currentStyleID = ""
			}
		}
	}
	return styles
}

// coreTitle reads dc:title from the core properties, if present.
func coreTitle(zr *zip.Reader) string {
	data, err := ooxml.ReadFileFromZip(zr, "docProps/core.xml")
	if err != nil {
		return ""
	}
	var props struct {
		Title string `xml:"title"`
	}
	if err := xml.Unmarshal(data, &props); err != nil {
		return ""
	}
	return strings.TrimSpace(props.Title)
}

func attrValue(t xml.StartElement, local string) string {
	for _, attr := range t.Attr {
		if attr.Name.Local == local {
			return attr.Value
		}
	}
	return ""
}

// headingLevelForStyle returns the heading level (1-6) for a style, or 0 if
// the style is not a heading.
func headingLevelForStyle(styleID string, styles map[string]string) int {
	if styleID == "" {
		return 0
	}
	for _, name := range []string{styleID, styles[styleID]} {
		lower := strings.ToLower(strings.ReplaceAll(name, " ", ""))
		if lower == "title" {
			return 1
		}
		if n, ok := strings.CutPrefix(lower, "heading"); ok {
			if level, err := strconv.Atoi(n); err == nil && level >= 1 && level <= 6 {
				return level
			}
		}
	}
	return 0
}

// inlineConverter renders paragraph HTML fragments as markdown.
type inlineConverter struct {
	conv *converter.Converter
}

func newInlineConverter() *inlineConverter {
	return &inlineConverter{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

func (c *inlineConverter) markdown(fragment string) string {
	md, err := c.conv.ConvertString("<p>" + fragment + "</p>")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(md)
}

// docxRun holds the formatting of the current run.
type docxRun struct {
	bold   bool
	italic bool
	strike bool
}

// docxParagraph accumulates one paragraph as plain text and as HTML.
type docxParagraph struct {
	styleID   string
	list      bool
	plain     strings.Builder
	rich      strings.Builder
	formatted bool
}

type docxParser struct {
	rels   map[string]ooxml.Relationship
	styles map[string]string
	inline *inlineConverter
	doc    *Document

	para     *docxParagraph
	run      docxRun
	inRun    bool
	inText   bool
	text     strings.Builder
	hyperRef string

	tableDepth int
	rows       [][]string
	row        []string
	cell       []string
}

func (p *docxParser) parse(data []byte) error {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			p.start(t)
		case xml.CharData:
			if p.inText {
				p.text.Write(t)
			}
		case xml.EndElement:
			p.end(t)
		}
	}
}

func (p *docxParser) start(t xml.StartElement) {
	switch t.Name.Local {
	case "p":
		p.para = &docxParagraph{}
	case "pStyle":
		if p.para != nil {
			p.para.styleID = attrValue(t, "val")
		}
	case "numPr":
		if p.para != nil {
			p.para.list = true
		}
	case "r":
		p.inRun = true
		p.run = docxRun{}
	case "b":
		p.run.bold = p.inRun && attrValue(t, "val") != "0" && attrValue(t, "val") != "false"
	case "i":
		p.run.italic = p.inRun && attrValue(t, "val") != "0" && attrValue(t, "val") != "false"
	case "strike":
		p.run.strike = p.inRun
	case "t":
		p.inText = true
		p.text.Reset()
	case "tab":
		if p.inRun {
			p.appendText("\t")
		}
	case "br", "cr":
		if p.inRun && p.para != nil {
			p.para.plain.WriteString("\n")
			p.para.rich.WriteString("<br/>")
		}
	case "hyperlink":
		for _, attr := range t.Attr {
			if attr.Name.Space == ooxml.NSRelDoc && attr.Name.Local == "id" {
				if rel, ok := p.rels[attr.Value]; ok {
					p.hyperRef = rel.Target
				}
			}
		}
	case "tbl":
		p.tableDepth++
		if p.tableDepth == 1 {
			p.rows = nil
		}
	case "tr":
		if p.tableDepth == 1 {
			p.row = nil
		}
	case "tc":
		if p.tableDepth == 1 {
			p.cell = nil
		}
	}
}

func (p *docxParser) end(t xml.EndElement) {
	switch t.Name.Local {
	case "t":
		if p.inText {
			p.appendText(p.text.String())
			p.inText = false
		}
	case "r":
		p.inRun = false
		p.run = docxRun{}
	case "hyperlink":
		p.hyperRef = ""
	case "p":
		p.finishParagraph()
	case "tc":
		if p.tableDepth == 1 {
			p.row = append(p.row, strings.Join(p.cell, " "))
		}
	case "tr":
		if p.tableDepth == 1 {
			p.rows = append(p.rows, p.row)
		}
	case "tbl":
		if p.tableDepth == 1 {
			p.doc.AddTable("", p.rows)
		}
		p.tableDepth--
	}
}

// appendText adds run text to the current paragraph in both renderings.
func (p *docxParser) appendText(s string) {
	if p.para == nil || s == "" {
		return
	}
	p.para.plain.WriteString(s)

	frag := html.EscapeString(s)
	if p.run.bold {
		frag = "<strong>" + frag + "</strong>"
	}
	if p.run.italic {
		frag = "<em>" + frag + "</em>"
	}
	if p.run.strike {
		frag = "<del>" + frag + "</del>"
	}
	if p.hyperRef != "" {
		frag = `<a href="` + html.EscapeString(p.hyperRef) + `">` + frag + "</a>"
	}
	if p.run.bold || p.run.italic || p.run.strike || p.hyperRef != "" {
		p.para.formatted = true
	}
	p.para.rich.WriteString(frag)
}

func (p *docxParser) finishParagraph() {
	para := p.para
	p.para = nil
	if para == nil {
		return
	}
	text := strings.TrimSpace(para.plain.String())
	if text == "" {
		return
	}

	if p.tableDepth > 0 {
		p.cell = append(p.cell, strings.ReplaceAll(text, "\n", " "))
		return
	}

	if level := headingLevelForStyle(para.styleID, p.styles); level > 0 {
		p.doc.AddHeading(level, text)
		return
	}

	blk := Block{Kind: BlockParagraph, Text: text}
	if para.formatted {
		blk.Markdown = p.inline.markdown(para.rich.String())
	}
	if para.list {
		if blk.Markdown == "" {
			blk.Markdown = text
		}
		blk.Markdown = "- " + blk.Markdown
	}
	p.doc.Blocks = append(p.doc.Blocks, blk)
}

// DocxEncoder writes a minimal WordprocessingML package with heading
// styles and bordered tables.
type DocxEncoder struct{}

// NewDocxEncoder creates a new DocxEncoder.
func NewDocxEncoder() *DocxEncoder {
	return &DocxEncoder{}
}

func (e *DocxEncoder) Encode(ctx context.Context, w io.Writer, doc *Document, opts CodecOptions) error {
	var body strings.Builder
	body.WriteString(xml.Header)
	body.WriteString(`<w:document xmlns:w="` + ooxml.NSWordprocessingML + `" xmlns:r="` + ooxml.NSRelDoc + `"><w:body>`)

	for _, blk := range doc.Blocks {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch blk.Kind {
		case BlockHeading:
			writeDocxParagraph(&body, fmt.Sprintf("Heading%d", blk.Level), blk.Text, false)
		case BlockTable:
			if blk.Name != "" {
				writeDocxParagraph(&body, "Heading2", blk.Name, false)
			}
			writeDocxTable(&body, limitRows(blk.Rows, opts.Params.MaxRows), opts.Params.StyledHeaders)
		default:
			writeDocxParagraph(&body, "", blk.Text, false)
		}
	}
	body.WriteString(`<w:sectPr><w:pgSz w:w="11906" w:h="16838"/><w:pgMar w:top="1440" w:right="1440" w:bottom="1440" w:left="1440" w:header="708" w:footer="708" w:gutter="0"/></w:sectPr>`)
	body.WriteString(`</w:body></w:document>`)

	docRels, err := ooxml.MarshalRelationships([]ooxml.Relationship{
		{ID: "rId1", Type: ooxml.RelTypeStyles, Target: "styles.xml"},
	})
	if err != nil {
		return err
	}

	pkg := ooxml.NewWriter(opts.Params.Compression)
	pkg.AddRelationship(ooxml.RelTypeOfficeDocument, "word/document.xml")
	pkg.AddRelationship(ooxml.RelTypeCoreProps, "docProps/core.xml")
	pkg.AddPart("word/document.xml", "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml", []byte(body.String()))
	pkg.AddPart("word/_rels/document.xml.rels", "", docRels)
	pkg.AddPart("word/styles.xml", "application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml", []byte(docxStyles(opts.Params.FontSize)))
	pkg.AddPart("docProps/core.xml", ooxml.ContentTypeCoreProps, []byte(docxCoreProps(doc.Title)))
	return pkg.Write(w)
}

func escapeXML(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func writeDocxParagraph(b *strings.Builder, style, text string, bold bool) {
	b.WriteString("<w:p>")
	if style != "" {
		b.WriteString(`<w:pPr><w:pStyle w:val="` + style + `"/></w:pPr>`)
	}
	b.WriteString("<w:r>")
	if bold {
		b.WriteString("<w:rPr><w:b/></w:rPr>")
	}
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			b.WriteString("<w:br/>")
		}
		for j, seg := range strings.Split(line, "\t") {
			if j > 0 {
				b.WriteString("<w:tab/>")
			}
			b.WriteString(`<w:t xml:space="preserve">` + escapeXML(seg) + "</w:t>")
		}
	}
	b.WriteString("</w:r></w:p>")
}

func writeDocxTable(b *strings.Builder, rows [][]string, boldHeader bool) {
	cols := 0
	for _, row := range rows {
		cols = max(cols, len(row))
	}
	if cols == 0 {
		return
	}
	b.WriteString(`<w:tbl><w:tblPr><w:tblStyle w:val="TableGrid"/><w:tblW w:w="0" w:type="auto"/></w:tblPr><w:tblGrid>`)
	for i := 0; i < cols; i++ {
		b.WriteString(`<w:gridCol/>`)
	}
	b.WriteString(`</w:tblGrid>`)
	for r, row := range rows {
		b.WriteString("<w:tr>")
		for c := 0; c < cols; c++ {
			cell := ""
			if c < len(row) {
				cell = row[c]
			}
			b.WriteString(`<w:tc><w:tcPr><w:tcW w:w="0" w:type="auto"/></w:tcPr>`)
			writeDocxParagraph(b, "", cell, boldHeader && r == 0)
			b.WriteString("</w:tc>")
		}
		b.WriteString("</w:tr>")
	}
	b.WriteString("</w:tbl>")
}

// docxStyles renders styles.xml. Sizes are in half-points.
func docxStyles(fontSize float64) string {
	if fontSize <= 0 {
		fontSize = 11
	}
	base := int(fontSize * 2)

	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString(`<w:styles xmlns:w="` + ooxml.NSWordprocessingML + `">`)
	fmt.Fprintf(&b, `<w:docDefaults><w:rPrDefault><w:rPr><w:rFonts w:ascii="Calibri" w:hAnsi="Calibri" w:cs="Calibri"/><w:sz w:val="%d"/></w:rPr></w:rPrDefault></w:docDefaults>`, base)
	b.WriteString(`<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/><w:qFormat/></w:style>`)
	scale := []float64{2.0, 1.6, 1.4, 1.2, 1.1, 1.0}
	for i, s := range scale {
		level := i + 1
		fmt.Fprintf(&b, `<w:style w:type="paragraph" w:styleId="Heading%d"><w:name w:val="heading %d"/><w:basedOn w:val="Normal"/><w:next w:val="Normal"/><w:qFormat/><w:pPr><w:keepNext/><w:spacing w:before="240" w:after="120"/><w:outlineLvl w:val="%d"/></w:pPr><w:rPr><w:b/><w:sz w:val="%d"/></w:rPr></w:style>`,
			level, level, i, int(float64(base)*s))
	}
	b.WriteString(`<w:style w:type="table" w:styleId="TableGrid"><w:name w:val="Table Grid"/><w:tblPr><w:tblBorders>`)
	for _, edge := range []string{"top", "left", "bottom", "right", "insideH", "insideV"} {
		fmt.Fprintf(&b, `<w:%s w:val="single" w:sz="4" w:space="0" w:color="auto"/>`, edge)
	}
	b.WriteString(`</w:tblBorders></w:tblPr></w:style>`)
	b.WriteString(`</w:styles>`)
	return b.String()
}

func docxCoreProps(title string) string {
	return xml.Header +
		`<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" xmlns:dc="http://purl.org/dc/elements/1.1/">` +
		`<dc:title>` + escapeXML(title) + `</dc:title>` +
		`</cp:coreProperties>`
}
