package internal

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/catread/internal/epub"
	"github.com/starford/catread/internal/testutil"
)

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	p := testutil.EPUB{
		Title:    "Dune",
		Author:   "Frank Herbert",
		Chapters: []string{"<p>one</p><p>two</p>", "<p>caf\xe9</p>"},
	}.WriteFile(t, dir, "dune.epub")

	var out bytes.Buffer
	require.NoError(t, Inspect(context.Background(), p, &out))
	text := out.String()
	assert.Contains(t, text, "Title:    Dune")
	assert.Contains(t, text, "Author:   Frank Herbert")
	assert.Contains(t, text, "Chapters: 2")
	assert.Regexp(t, `Chapter 1\s+\S+ch000\.xhtml\s+2 paragraphs`, text)
	assert.Regexp(t, `Chapter 2\s+\S+ch001\.xhtml\s+1 paragraphs\s+lossy`, text)
}

func TestInspect_Unreadable(t *testing.T) {
	p := filepath.Join(t.TempDir(), "junk.epub")
	require.NoError(t, os.WriteFile(p, []byte("junk"), 0o644))

	err := Inspect(context.Background(), p, &bytes.Buffer{})
	var ee *epub.ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, p, ee.Path)
}
