package epub

import (
	"archive/zip"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
)

// maxEntrySize bounds the decompressed size of a single archive entry.
const maxEntrySize int64 = 256 << 20

// archive indexes zip entries for exact and case-insensitive lookup.
type archive struct {
	zr    *zip.Reader
	exact map[string]*zip.File
	lower map[string]*zip.File
}

func newArchive(zr *zip.Reader) *archive {
	a := &archive{
		zr:    zr,
		exact: make(map[string]*zip.File, len(zr.File)),
		lower: make(map[string]*zip.File, len(zr.File)),
	}
	for _, f := range zr.File {
		if _, ok := a.exact[f.Name]; !ok {
			a.exact[f.Name] = f
		}
		l := strings.ToLower(f.Name)
		if _, ok := a.lower[l]; !ok {
			a.lower[l] = f
		}
	}
	return a
}

func (a *archive) find(name string) *zip.File {
	if f, ok := a.exact[name]; ok {
		return f
	}
	return a.lower[strings.ToLower(name)]
}

func (a *archive) read(name string) ([]byte, error) {
	f := a.find(name)
	if f == nil {
		return nil, fmt.Errorf("entry %s missing: %w", name, ErrInvalidEPub)
	}
	return readEntry(f, maxEntrySize)
}

// readEntry reads a zip entry, refusing unsafe names and anything that
// decompresses past limit.
func readEntry(f *zip.File, limit int64) ([]byte, error) {
	if !isSafePath(f.Name) {
		return nil, fmt.Errorf("unsafe entry path %s: %w", f.Name, ErrInvalidEPub)
	}
	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("entry %s too large: %d bytes", f.Name, f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read entry %s: %w", f.Name, err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("entry %s exceeds %d bytes", f.Name, limit)
	}
	return data, nil
}

// resolveHref resolves a manifest href against the OPF directory. An empty
// result means the href escapes the archive root.
func resolveHref(opfDir, href string) string {
	href = strings.TrimSpace(href)
	if i := strings.IndexByte(href, '#'); i >= 0 {
		href = href[:i]
	}
	if href == "" || strings.HasPrefix(href, "/") {
		return ""
	}
	if decoded, err := url.PathUnescape(href); err == nil {
		href = decoded
	}
	p := path.Clean(path.Join(opfDir, href))
	if !isSafePath(p) {
		return ""
	}
	return p
}

func isSafePath(p string) bool {
	cleaned := path.Clean(p)
	if strings.HasPrefix(cleaned, "/") {
		return false
	}
	return cleaned != ".." && !strings.HasPrefix(cleaned, "../")
}

func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}
