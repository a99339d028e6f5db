package epub

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"golang.org/x/net/html/charset"
)

const (
	containerPath = "META-INF/container.xml"
	opfMediaType  = "application/oebps-package+xml"
)

type containerXML struct {
	XMLName   xml.Name `xml:"container"`
	RootFiles []struct {
		FullPath  string `xml:"full-path,attr"`
		MediaType string `xml:"media-type,attr"`
	} `xml:"rootfiles>rootfile"`
}

type opfPackage struct {
	XMLName  xml.Name `xml:"package"`
	Metadata struct {
		Titles   []string `xml:"http://purl.org/dc/elements/1.1/ title"`
		Creators []string `xml:"http://purl.org/dc/elements/1.1/ creator"`
	} `xml:"metadata"`
	Manifest struct {
		Items []manifestItem `xml:"item"`
	} `xml:"manifest"`
}

type manifestItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

// isDocument reports whether the item is a content document. Navigation
// documents are excluded.
func (m manifestItem) isDocument() bool {
	mt := strings.ToLower(strings.TrimSpace(m.MediaType))
	if mt != "application/xhtml+xml" && mt != "text/html" {
		return false
	}
	for _, p := range strings.Fields(m.Properties) {
		if p == "nav" {
			return false
		}
	}
	return true
}

// locateOPF returns the package document path, preferring container.xml and
// falling back to the first .opf entry in the archive.
func locateOPF(a *archive) (string, error) {
	if f := a.find(containerPath); f != nil {
		data, err := readEntry(f, maxEntrySize)
		if err != nil {
			return "", err
		}
		var c containerXML
		if err := decodeXML(data, &c); err != nil {
			return "", fmt.Errorf("parse container.xml: %w", err)
		}
		var fallback string
		for _, rf := range c.RootFiles {
			p := strings.TrimSpace(rf.FullPath)
			if p == "" {
				continue
			}
			if strings.EqualFold(strings.TrimSpace(rf.MediaType), opfMediaType) {
				return p, nil
			}
			if fallback == "" {
				fallback = p
			}
		}
		if fallback != "" {
			return fallback, nil
		}
		return "", fmt.Errorf("container.xml has no rootfile: %w", ErrInvalidEPub)
	}
	for _, f := range a.zr.File {
		if strings.HasSuffix(strings.ToLower(f.Name), ".opf") {
			return f.Name, nil
		}
	}
	return "", fmt.Errorf("no package document: %w", ErrInvalidEPub)
}

func parseOPF(data []byte) (*opfPackage, error) {
	var pkg opfPackage
	if err := decodeXML(data, &pkg); err != nil {
		return nil, fmt.Errorf("parse package document: %w", err)
	}
	return &pkg, nil
}

func firstNonBlank(values []string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// decodeXML unmarshals package metadata, tolerating HTML named entities and
// non-UTF-8 encoding declarations that real-world files carry.
func decodeXML(data []byte, v any) error {
	d := xml.NewDecoder(bytes.NewReader(stripBOM(data)))
	d.Entity = xml.HTMLEntity
	d.CharsetReader = charset.NewReaderLabel
	return d.Decode(v)
}
