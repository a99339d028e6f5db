package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/starford/catread/internal/models"
)

// ErrInvalidName is returned for names that are not plain files directly
// under the library root.
var ErrInvalidName = errors.New("storage: invalid file name")

// FS implements Provider backed by the local file system.
type FS struct {
	root string // absolute path to the library directory
}

var _ Provider = (*FS)(nil)

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute library directory.
func (f *FS) Root() string { return f.root }

// safePath resolves name against the root. Only plain file names directly
// under the root are accepted.
func (f *FS) safePath(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	cleaned := filepath.Clean(name)
	if filepath.IsAbs(cleaned) || cleaned != filepath.Base(cleaned) || cleaned == ".." || cleaned == "." {
		return "", fmt.Errorf("%w: %s", ErrInvalidName, name)
	}
	abs := filepath.Join(f.root, cleaned)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: escapes library root: %s", ErrInvalidName, name)
	}
	return abs, nil
}

// List returns files directly under the root matching exts.
func (f *FS) List(exts ...string) ([]models.LibraryFile, error) {
	entries, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	var out []models.LibraryFile
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !HasExt(e.Name(), exts...) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		out = append(out, models.LibraryFile{
			Name:    e.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Stat returns metadata for a single library file.
func (f *FS) Stat(name string) (models.LibraryFile, error) {
	abs, err := f.safePath(name)
	if err != nil {
		return models.LibraryFile{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return models.LibraryFile{}, fmt.Errorf("storage: stat %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return models.LibraryFile{}, fmt.Errorf("storage: not a regular file: %s", name)
	}
	return models.LibraryFile{Name: name, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Read returns the raw bytes of a library file.
func (f *FS) Read(name string) ([]byte, error) {
	abs, err := f.safePath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", name, err)
	}
	return data, nil
}

// Write atomically writes content: tmp file → fsync → rename. Temp files
// start with a dot so List never reports them.
func (f *FS) Write(name string, content []byte) error {
	abs, err := f.safePath(name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.root, ".catread-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

// HasExt reports whether name ends with one of exts, ignoring case. An empty
// exts list matches everything.
func HasExt(name string, exts ...string) bool {
	if len(exts) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}
