// Package epub extracts metadata and ordered content documents from EPUB
// containers.
package epub

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"golang.org/x/text/unicode/norm"
)

// Defaults used when the package metadata omits a field.
const (
	DefaultTitle  = "Untitled"
	DefaultAuthor = "Unknown Author"
)

// Document is one raw content document in manifest order.
type Document struct {
	ID        string
	Href      string
	MediaType string
	Content   []byte
}

// Container is the result of extracting an EPUB file.
type Container struct {
	Title     string
	Author    string
	Documents []Document
}

// ExtractFile opens the file at p and extracts it.
func ExtractFile(ctx context.Context, p string) (*Container, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, &ExtractionError{Path: p, Op: "open", Err: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, &ExtractionError{Path: p, Op: "stat", Err: err}
	}
	c, err := Extract(ctx, f, info.Size())
	if err != nil {
		var ee *ExtractionError
		if errors.As(err, &ee) {
			ee.Path = p
		}
		return nil, err
	}
	return c, nil
}

// Extract reads title, author and the content documents of the container.
// Documents keep manifest order, which defines chapter indexes downstream.
// The context is checked between documents.
func Extract(ctx context.Context, r io.ReaderAt, size int64) (*Container, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, extractionErr("open zip", err)
	}
	a := newArchive(zr)

	opfPath, err := locateOPF(a)
	if err != nil {
		return nil, extractionErr("locate package", err)
	}
	opfData, err := a.read(opfPath)
	if err != nil {
		return nil, extractionErr("read package", err)
	}
	pkg, err := parseOPF(opfData)
	if err != nil {
		return nil, extractionErr("parse package", err)
	}

	c := &Container{
		Title:  normalize(firstNonBlank(pkg.Metadata.Titles), DefaultTitle),
		Author: normalize(firstNonBlank(pkg.Metadata.Creators), DefaultAuthor),
	}

	opfDir := path.Dir(opfPath)
	for _, item := range pkg.Manifest.Items {
		if !item.isDocument() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, extractionErr("read documents", err)
		}
		name := resolveHref(opfDir, item.Href)
		if name == "" {
			return nil, extractionErr("resolve document", fmt.Errorf("bad href %q: %w", item.Href, ErrInvalidEPub))
		}
		data, err := a.read(name)
		if err != nil {
			return nil, extractionErr("read document", err)
		}
		c.Documents = append(c.Documents, Document{
			ID:        item.ID,
			Href:      name,
			MediaType: item.MediaType,
			Content:   data,
		})
	}
	return c, nil
}

func normalize(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return norm.NFC.String(v)
}
