package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/catread/internal/catalog"
	"github.com/starford/catread/internal/ingest"
	"github.com/starford/catread/internal/models"
	"github.com/starford/catread/internal/progress"
	"github.com/starford/catread/internal/sanitize"
	"github.com/starford/catread/internal/store"
	"github.com/starford/catread/internal/testutil"
)

type testEnv struct {
	srv *Server
	db  *store.DB
	dir string
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir, lib := testutil.TestLibrary(t)
	db := testutil.TestDB(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(Deps{
		Books:    db,
		Library:  lib,
		Ingestor: ingest.NewIngestor(db, lib, sanitize.New(), logger),
		Tracker:  progress.NewTracker(db),
		Catalog:  catalog.NewService(db, time.Now),
	})
	return testEnv{srv: srv, db: db, dir: dir}
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_books":
		result, err = srv.listBooks(ctx, req)
	case "read_chapter":
		result, err = srv.readChapter(ctx, req)
	case "get_progress":
		result, err = srv.getProgress(ctx, req)
	case "record_progress":
		result, err = srv.recordProgress(ctx, req)
	case "get_catalog":
		result, err = srv.getCatalog(ctx, req)
	case "ingest_library":
		result, err = srv.ingestLibrary(ctx, req)
	case "upload_book":
		result, err = srv.uploadBook(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	require.NoError(t, err, "tool %s", name)
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestListBooks(t *testing.T) {
	e := newTestEnv(t)
	testutil.SeedBook(t, e.db, "b.epub", "Beta", "Zed", 2)
	testutil.SeedBook(t, e.db, "a.epub", "Alpha", "Adams", 3)

	r := callTool(t, e.srv, "list_books", map[string]interface{}{"sort": "title"})
	require.False(t, r.IsError, resultText(r))

	var out struct {
		Books []models.Book `json:"books"`
		Total int           `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(r)), &out))
	assert.Equal(t, 2, out.Total)
	require.Len(t, out.Books, 2)
	assert.Equal(t, "Alpha", out.Books[0].Title)

	r = callTool(t, e.srv, "list_books", map[string]interface{}{"limit": float64(1), "offset": float64(1), "sort": "title"})
	require.NoError(t, json.Unmarshal([]byte(resultText(r)), &out))
	require.Len(t, out.Books, 1)
	assert.Equal(t, "Beta", out.Books[0].Title)
}

func TestReadChapter(t *testing.T) {
	e := newTestEnv(t)
	b := testutil.SeedBook(t, e.db, "a.epub", "Alpha", "Adams", 3)

	r := callTool(t, e.srv, "read_chapter", map[string]interface{}{
		"book_id": float64(b.ID), "chapter_index": float64(1),
	})
	require.False(t, r.IsError, resultText(r))
	text := resultText(r)
	assert.Contains(t, text, "# Alpha: Chapter 2 (2/3)")
	assert.Contains(t, text, "Paragraph of chapter 2.")
	assert.NotContains(t, text, "<p>")
}

func TestReadChapter_RecordsPosition(t *testing.T) {
	e := newTestEnv(t)
	b := testutil.SeedBook(t, e.db, "a.epub", "Alpha", "Adams", 3)
	u := testutil.SeedUser(t, e.db, "reader")

	r := callTool(t, e.srv, "read_chapter", map[string]interface{}{
		"book_id": float64(b.ID), "chapter_index": float64(2), "user_id": float64(u.ID),
	})
	require.False(t, r.IsError, resultText(r))

	rec, err := e.db.GetProgress(context.Background(), u.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.ChapterIndex)
}

func TestReadChapter_NotFound(t *testing.T) {
	e := newTestEnv(t)
	b := testutil.SeedBook(t, e.db, "a.epub", "Alpha", "Adams", 1)

	r := callTool(t, e.srv, "read_chapter", map[string]interface{}{
		"book_id": float64(b.ID), "chapter_index": float64(5),
	})
	assert.True(t, r.IsError)

	r = callTool(t, e.srv, "read_chapter", map[string]interface{}{
		"book_id": float64(999), "chapter_index": float64(0),
	})
	assert.True(t, r.IsError)
	assert.Equal(t, "not found", resultText(r))

	r = callTool(t, e.srv, "read_chapter", map[string]interface{}{"book_id": float64(b.ID)})
	assert.True(t, r.IsError)
}

func TestRecordAndGetProgress(t *testing.T) {
	e := newTestEnv(t)
	b := testutil.SeedBook(t, e.db, "a.epub", "Alpha", "Adams", 3)
	u := testutil.SeedUser(t, e.db, "reader")

	r := callTool(t, e.srv, "get_progress", map[string]interface{}{"user_id": float64(u.ID), "book_id": float64(b.ID)})
	require.False(t, r.IsError, resultText(r))
	var got progressResult
	require.NoError(t, json.Unmarshal([]byte(resultText(r)), &got))
	assert.Nil(t, got.Progress)
	assert.Equal(t, models.StatusUnread, got.Status)

	r = callTool(t, e.srv, "record_progress", map[string]interface{}{
		"user_id": float64(u.ID), "book_id": float64(b.ID),
		"chapter_index": float64(1), "paragraph_index": float64(4),
	})
	require.False(t, r.IsError, resultText(r))

	r = callTool(t, e.srv, "record_progress", map[string]interface{}{
		"user_id": float64(u.ID), "book_id": float64(b.ID), "chapter_index": float64(1),
	})
	require.False(t, r.IsError, resultText(r))
	var rec models.ProgressRecord
	require.NoError(t, json.Unmarshal([]byte(resultText(r)), &rec))
	assert.Equal(t, 4, rec.ParagraphIndex)

	r = callTool(t, e.srv, "record_progress", map[string]interface{}{
		"user_id": float64(u.ID), "book_id": float64(b.ID), "chapter_index": float64(2),
	})
	require.False(t, r.IsError, resultText(r))

	r = callTool(t, e.srv, "get_progress", map[string]interface{}{"user_id": float64(u.ID), "book_id": float64(b.ID)})
	require.NoError(t, json.Unmarshal([]byte(resultText(r)), &got))
	require.NotNil(t, got.Progress)
	assert.Equal(t, 2, got.Progress.ChapterIndex)
	assert.Equal(t, 0, got.Progress.ParagraphIndex)
	assert.Equal(t, models.StatusFinished, got.Status)
}

func TestRecordProgress_Invalid(t *testing.T) {
	e := newTestEnv(t)
	b := testutil.SeedBook(t, e.db, "a.epub", "Alpha", "Adams", 2)
	u := testutil.SeedUser(t, e.db, "reader")

	r := callTool(t, e.srv, "record_progress", map[string]interface{}{
		"user_id": float64(u.ID), "book_id": float64(b.ID), "chapter_index": float64(2),
	})
	assert.True(t, r.IsError)
	assert.True(t, strings.HasPrefix(resultText(r), "invalid position"), resultText(r))

	r = callTool(t, e.srv, "record_progress", map[string]interface{}{
		"user_id": float64(0), "book_id": float64(b.ID), "chapter_index": float64(0),
	})
	assert.True(t, r.IsError)
}

func TestGetCatalog(t *testing.T) {
	e := newTestEnv(t)
	a := testutil.SeedBook(t, e.db, "a.epub", "Alpha", "Adams", 3)
	testutil.SeedBook(t, e.db, "b.epub", "Beta", "Zed", 2)
	u := testutil.SeedUser(t, e.db, "reader")

	p := 0
	_, err := progress.NewTracker(e.db).RecordPosition(context.Background(), u.ID, a.ID, 1, &p)
	require.NoError(t, err)

	r := callTool(t, e.srv, "get_catalog", map[string]interface{}{"user_id": float64(u.ID)})
	require.False(t, r.IsError, resultText(r))
	var v catalog.View
	require.NoError(t, json.Unmarshal([]byte(resultText(r)), &v))
	require.Len(t, v.InProgress, 1)
	assert.Equal(t, "Alpha", v.InProgress[0].Book.Title)
	require.Len(t, v.Unread, 1)
	assert.Empty(t, v.Finished)

	r = callTool(t, e.srv, "get_catalog", map[string]interface{}{"user_id": float64(999)})
	assert.True(t, r.IsError)
}

func TestIngestLibrary(t *testing.T) {
	e := newTestEnv(t)
	testutil.EPUB{Title: "Dropped", Author: "A", Chapters: []string{"<p>one</p>", "<p>two</p>"}}.
		WriteFile(t, e.dir, "dropped.epub")

	r := callTool(t, e.srv, "ingest_library", nil)
	require.False(t, r.IsError, resultText(r))
	assert.Equal(t, "added: 1", resultText(r))

	r = callTool(t, e.srv, "ingest_library", nil)
	assert.Equal(t, "added: 0", resultText(r))
}

func TestUploadBook_DataURI(t *testing.T) {
	e := newTestEnv(t)
	data := testutil.EPUB{Title: "Uploaded", Author: "A", Chapters: []string{"<p>one</p>"}}.Bytes(t)
	uri := "data:application/epub+zip;base64," + base64.StdEncoding.EncodeToString(data)

	r := callTool(t, e.srv, "upload_book", map[string]interface{}{"url": uri, "filename": "my book.epub"})
	require.False(t, r.IsError, resultText(r))

	var out uploadResult
	require.NoError(t, json.Unmarshal([]byte(resultText(r)), &out))
	assert.Equal(t, "my_book.epub", out.Filename)
	assert.Equal(t, "Uploaded", out.Title)
	assert.Equal(t, 1, out.ChapterCount)

	r = callTool(t, e.srv, "upload_book", map[string]interface{}{"url": uri, "filename": "my book.epub"})
	assert.True(t, r.IsError)
	assert.Contains(t, resultText(r), "already exists")
}

func TestUploadBook_Rejects(t *testing.T) {
	e := newTestEnv(t)
	notZip := "data:application/epub+zip;base64," + base64.StdEncoding.EncodeToString([]byte("plain text"))

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing url", map[string]interface{}{}, "url"},
		{"bad mime", map[string]interface{}{"url": "data:text/plain;base64,aGk="}, "unsupported MIME"},
		{"not base64 uri", map[string]interface{}{"url": "data:application/epub+zip,abc"}, "only base64"},
		{"bad extension", map[string]interface{}{"url": notZip, "filename": "x.txt"}, "unsupported file extension"},
		{"not a zip", map[string]interface{}{"url": notZip, "filename": "x.epub"}, "not a zip"},
		{"bad scheme", map[string]interface{}{"url": "ftp://example.com/a.epub"}, "unsupported scheme"},
		{"loopback", map[string]interface{}{"url": "http://127.0.0.1/a.epub"}, "blocked host"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := callTool(t, e.srv, "upload_book", tt.args)
			assert.True(t, r.IsError)
			assert.Contains(t, resultText(r), tt.want)
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	assert.Equal(t, "passwd", sanitizeFilename("../../etc/passwd"))
	assert.Equal(t, "a_b.epub", sanitizeFilename("a b.epub"))
	assert.NotEqual(t, "..", sanitizeFilename(".."))
}

func TestFilenameFromURL(t *testing.T) {
	assert.Equal(t, "book.epub", filenameFromURL("https://example.com/files/book.epub?x=1", ".epub"))
	assert.True(t, strings.HasSuffix(filenameFromURL("https://example.com/download", ""), ".epub"))
	assert.True(t, strings.HasSuffix(filenameFromURL("data:application/epub+zip;base64,AA", ".epub"), ".epub"))
}

func TestReadingGuideResource(t *testing.T) {
	e := newTestEnv(t)
	contents, err := e.srv.readGuideResource(context.Background(), mcp.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	tc, ok := contents[0].(mcp.TextResourceContents)
	require.True(t, ok)
	assert.Equal(t, guideURI, tc.URI)
	assert.Contains(t, tc.Text, "chapter_index")
}
