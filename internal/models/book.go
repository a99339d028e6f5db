// Package models defines the domain types for catread.
package models

import (
	"fmt"
	"time"
)

// Book is one ingested container file. Filename is its identity.
type Book struct {
	ID           int64     `json:"id"`
	Filename     string    `json:"filename"`
	Title        string    `json:"title"`
	Author       string    `json:"author"`
	ChapterCount int       `json:"chapter_count"`
	Hidden       bool      `json:"hidden"`
	CreatedAt    time.Time `json:"created_at"`
}

// Chapter is one sanitized content document of a Book.
type Chapter struct {
	ID      int64  `json:"id"`
	BookID  int64  `json:"book_id"`
	Index   int    `json:"index"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

// ChapterTitle returns the display title for the chapter at a zero-based index.
func ChapterTitle(index int) string {
	return fmt.Sprintf("Chapter %d", index+1)
}

// LibraryFile is a candidate container file in the library directory.
type LibraryFile struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}
