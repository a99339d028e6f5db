// Package testutil provides shared test helpers for setting up libraries and databases.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/starford/catread/internal/models"
	"github.com/starford/catread/internal/storage"
	"github.com/starford/catread/internal/store"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "catread-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestLibrary creates a temporary library directory with a storage.Provider.
func TestLibrary(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}

// SeedBook stores a book with n placeholder chapters.
func SeedBook(t *testing.T, db *store.DB, filename, title, author string, n int) *models.Book {
	t.Helper()
	chapters := make([]models.Chapter, n)
	for i := range chapters {
		chapters[i] = models.Chapter{Content: fmt.Sprintf("<p>Paragraph of chapter %d.</p>", i+1)}
	}
	b, err := db.CreateBook(context.Background(), models.Book{Filename: filename, Title: title, Author: author}, chapters)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// SeedUser stores a user with a placeholder password hash.
func SeedUser(t *testing.T, db *store.DB, username string) *models.User {
	t.Helper()
	u, err := db.CreateUser(context.Background(), username, "x")
	if err != nil {
		t.Fatal(err)
	}
	return u
}
