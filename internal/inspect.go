package internal

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/starford/catread/internal/epub"
	"github.com/starford/catread/internal/models"
	"github.com/starford/catread/internal/sanitize"
)

// Inspect extracts the book at path without storing it and writes the
// metadata and chapter list that ingestion would produce.
func Inspect(ctx context.Context, path string, w io.Writer) error {
	c, err := epub.ExtractFile(ctx, path)
	if err != nil {
		return err
	}
	s := sanitize.New()

	fmt.Fprintf(w, "Title:    %s\nAuthor:   %s\nChapters: %d\n", c.Title, c.Author, len(c.Documents))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, doc := range c.Documents {
		res := s.Sanitize(doc.Content)
		note := ""
		if res.Lossy {
			note = "lossy"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d paragraphs\t%s\n",
			models.ChapterTitle(i), doc.Href, len(sanitize.Paragraphs(res.Content)), note)
	}
	return tw.Flush()
}
