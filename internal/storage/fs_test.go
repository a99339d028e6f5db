package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempLibrary(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	require.NoError(t, err)
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempLibrary(t)
	content := []byte("PK\x03\x04 fake archive")
	require.NoError(t, s.Write("book.epub", content))

	got, err := s.Read("book.epub")
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestList_FiltersByExtension(t *testing.T) {
	s := tempLibrary(t)
	require.NoError(t, s.Write("b.epub", []byte("b")))
	require.NoError(t, s.Write("A.EPUB", []byte("a")))
	require.NoError(t, s.Write("notes.txt", []byte("n")))
	require.NoError(t, os.Mkdir(filepath.Join(s.Root(), "sub.epub"), 0o755))

	items, err := s.List(".epub")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "A.EPUB", items[0].Name)
	assert.Equal(t, "b.epub", items[1].Name)
	assert.EqualValues(t, 1, items[1].Size)

	all, err := s.List()
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStat(t *testing.T) {
	s := tempLibrary(t)
	require.NoError(t, s.Write("x.epub", []byte("xyz")))

	f, err := s.Stat("x.epub")
	require.NoError(t, err)
	assert.EqualValues(t, 3, f.Size)

	_, err = s.Stat("missing.epub")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestTraversalBlocked(t *testing.T) {
	s := tempLibrary(t)
	for _, p := range []string{"../../etc/passwd", "../outside.epub", "/etc/shadow", "sub/inner.epub", ""} {
		_, err := s.Read(p)
		assert.ErrorIs(t, err, ErrInvalidName, "read %q", p)
		assert.ErrorIs(t, s.Write(p, []byte("x")), ErrInvalidName, "write %q", p)
	}
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	s := tempLibrary(t)
	require.NoError(t, s.Write("atomic.epub", []byte("v1")))
	require.NoError(t, s.Write("atomic.epub", []byte("v2")))

	got, _ := s.Read("atomic.epub")
	assert.Equal(t, "v2", string(got))

	matches, _ := filepath.Glob(filepath.Join(s.Root(), ".catread-tmp-*"))
	assert.Empty(t, matches)
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestNewFS_FileNotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(f, nil, 0o644))
	_, err := NewFS(f)
	assert.Error(t, err)
}
