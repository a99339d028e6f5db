package testutil

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// EPUB describes a minimal container for tests.
type EPUB struct {
	Title    string
	Author   string
	Chapters []string // XHTML bodies, one document per entry
	OPFDir   string   // directory holding the package document; "OEBPS" when empty, "." for the root
	NoNav    bool     // omit the EPUB3 navigation document
}

// Bytes builds the container as a zip archive.
func (e EPUB) Bytes(t testing.TB) []byte {
	t.Helper()
	prefix := "OEBPS/"
	switch e.OPFDir {
	case "":
	case ".":
		prefix = ""
	default:
		prefix = e.OPFDir + "/"
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	write := func(name, body string) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}

	write("mimetype", "application/epub+zip")
	write("META-INF/container.xml", fmt.Sprintf(`<?xml version="1.0"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="%scontent.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>`, prefix))

	var meta strings.Builder
	if e.Title != "" {
		fmt.Fprintf(&meta, "<dc:title>%s</dc:title>", e.Title)
	}
	if e.Author != "" {
		fmt.Fprintf(&meta, "<dc:creator>%s</dc:creator>", e.Author)
	}

	var manifest strings.Builder
	if !e.NoNav {
		manifest.WriteString(`<item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>`)
		write(prefix+"nav.xhtml", `<html xmlns="http://www.w3.org/1999/xhtml"><body><nav>toc</nav></body></html>`)
	}
	manifest.WriteString(`<item id="css" href="style.css" media-type="text/css"/>`)
	write(prefix+"style.css", "p { margin: 0 }")
	for i, body := range e.Chapters {
		name := fmt.Sprintf("ch%03d.xhtml", i)
		fmt.Fprintf(&manifest, `<item id="c%d" href="text/%s" media-type="application/xhtml+xml"/>`, i, name)
		write(prefix+"text/"+name, fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<html xmlns="http://www.w3.org/1999/xhtml"><head><title>t%d</title></head><body>%s</body></html>`, i, body))
	}

	write(prefix+"content.opf", fmt.Sprintf(`<?xml version="1.0" encoding="utf-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">%s</metadata>
  <manifest>%s</manifest>
  <spine></spine>
</package>`, meta.String(), manifest.String()))

	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

// WriteFile writes the container into dir under name and returns its path.
func (e EPUB) WriteFile(t testing.TB, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, e.Bytes(t), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}
