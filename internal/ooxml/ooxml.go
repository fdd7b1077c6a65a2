// Package ooxml reads and writes the Open Packaging Convention containers
// used by docx and xlsx files.
package ooxml

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"encoding/xml"
	"fmt"
	"io"
)

// Common OOXML namespaces and types.
const (
	NSRelationships = "http://schemas.openxmlformats.org/package/2006/relationships"
	NSContentTypes  = "http://schemas.openxmlformats.org/package/2006/content-types"

	NSWordprocessingML = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	NSRelDoc           = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"

	RelTypeOfficeDocument = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument"
	RelTypeStyles         = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles"
	RelTypeHyperlink      = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/hyperlink"
	RelTypeCoreProps      = "http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties"

	ContentTypeRels      = "application/vnd.openxmlformats-package.relationships+xml"
	ContentTypeCoreProps = "application/vnd.openxmlformats-package.core-properties+xml"
)

// Relationship represents an OOXML relationship.
type Relationship struct {
	ID         string `xml:"Id,attr"`
	Type       string `xml:"Type,attr"`
	Target     string `xml:"Target,attr"`
	TargetMode string `xml:"TargetMode,attr,omitempty"`
}

// Relationships is the root element for .rels files.
type Relationships struct {
	XMLName       xml.Name       `xml:"Relationships"`
	Xmlns         string         `xml:"xmlns,attr,omitempty"`
	Relationships []Relationship `xml:"Relationship"`
}

// ParseRelationships parses a .rels part, keyed by relationship ID. A
// missing part yields an empty map.
func ParseRelationships(zr *zip.Reader, relsPath string) (map[string]Relationship, error) {
	data, err := ReadFileFromZip(zr, relsPath)
	if err != nil {
		return make(map[string]Relationship), nil
	}
	var rels Relationships
	if err := xml.Unmarshal(data, &rels); err != nil {
		return nil, fmt.Errorf("decode relationships: %w", err)
	}
	result := make(map[string]Relationship, len(rels.Relationships))
	for _, rel := range rels.Relationships {
		result[rel.ID] = rel
	}
	return result, nil
}

// ReadFileFromZip reads a file from a zip archive.
func ReadFileFromZip(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
	}
	return nil, fmt.Errorf("file %q not found in ZIP", name)
}

// OpenReader opens an OOXML container held in r.
func OpenReader(r io.Reader) (*zip.Reader, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read package: %w", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open package: %w", err)
	}
	return zr, nil
}

type contentTypes struct {
	XMLName   xml.Name          `xml:"Types"`
	Xmlns     string            `xml:"xmlns,attr"`
	Defaults  []contentDefault  `xml:"Default"`
	Overrides []contentOverride `xml:"Override"`
}

type contentDefault struct {
	Extension   string `xml:"Extension,attr"`
	ContentType string `xml:"ContentType,attr"`
}

type contentOverride struct {
	PartName    string `xml:"PartName,attr"`
	ContentType string `xml:"ContentType,attr"`
}

type part struct {
	name string
	data []byte
}

// Writer assembles an OOXML package. Parts are written in the order added,
// after [Content_Types].xml and the package relationships.
type Writer struct {
	level int
	parts []part
	types contentTypes
	rels  []Relationship
}

// NewWriter creates a package writer using the given deflate level (0-9).
func NewWriter(level int) *Writer {
	return &Writer{
		level: min(max(level, flate.NoCompression), flate.BestCompression),
		types: contentTypes{
			Xmlns: NSContentTypes,
			Defaults: []contentDefault{
				{Extension: "rels", ContentType: ContentTypeRels},
				{Extension: "xml", ContentType: "application/xml"},
			},
		},
	}
}

// AddPart adds a part with an explicit content type override.
func (w *Writer) AddPart(name, contentType string, data []byte) {
	w.parts = append(w.parts, part{name: name, data: data})
	if contentType != "" {
		w.types.Overrides = append(w.types.Overrides, contentOverride{PartName: "/" + name, ContentType: contentType})
	}
}

// AddRelationship adds a package-level relationship and returns its ID.
func (w *Writer) AddRelationship(relType, target string) string {
	id := fmt.Sprintf("rId%d", len(w.rels)+1)
	w.rels = append(w.rels, Relationship{ID: id, Type: relType, Target: target})
	return id
}

// MarshalRelationships renders a .rels part.
func MarshalRelationships(rels []Relationship) ([]byte, error) {
	return marshalXML(Relationships{Xmlns: NSRelationships, Relationships: rels})
}

// Write streams the package to out.
func (w *Writer) Write(out io.Writer) error {
	zw := zip.NewWriter(out)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, w.level)
	})

	types, err := marshalXML(w.types)
	if err != nil {
		return err
	}
	rels, err := MarshalRelationships(w.rels)
	if err != nil {
		return err
	}

	all := append([]part{{"[Content_Types].xml", types}, {"_rels/.rels", rels}}, w.parts...)
	for _, p := range all {
		fw, err := zw.CreateHeader(&zip.FileHeader{Name: p.name, Method: zip.Deflate})
		if err != nil {
			return fmt.Errorf("create %s: %w", p.name, err)
		}
		if _, err := fw.Write(p.data); err != nil {
			return fmt.Errorf("write %s: %w", p.name, err)
		}
	}
	return zw.Close()
}

func marshalXML(v any) ([]byte, error) {
	body, err := xml.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}
