// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes catread tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/catread/internal/apperr"
	"github.com/starford/catread/internal/catalog"
	"github.com/starford/catread/internal/ingest"
	"github.com/starford/catread/internal/models"
	"github.com/starford/catread/internal/progress"
	"github.com/starford/catread/internal/storage"
	"github.com/starford/catread/internal/store"
)

const guideURI = "catread://reading-guide"

// BookStore is the book persistence the tools read.
type BookStore interface {
	GetBook(ctx context.Context, id int64) (*models.Book, error)
	GetChapter(ctx context.Context, bookID int64, index int) (*models.Chapter, error)
	ListBooks(ctx context.Context, opts store.ListOptions) ([]models.Book, int, error)
}

// Deps are the services the tools call.
type Deps struct {
	Books    BookStore
	Library  storage.Provider
	Ingestor *ingest.Ingestor
	Tracker  *progress.Tracker
	Catalog  *catalog.Service
}

// Server wraps the MCP server with catread tools.
type Server struct {
	mcp  *server.MCPServer
	deps Deps
}

// New creates a new MCP server with all catread tools registered.
func New(deps Deps) *Server {
	s := &Server{deps: deps}

	s.mcp = server.NewMCPServer(
		"catread",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_books",
		mcp.WithDescription("List books in the library. Hidden books are included only when asked for."),
		mcp.WithString("tag", mcp.Description("Only books carrying this tag")),
		mcp.WithString("sort", mcp.Description("author (default), title, date_asc or date_desc")),
		mcp.WithBoolean("include_hidden", mcp.Description("Include hidden books")),
		mcp.WithNumber("limit", mcp.Description("Page size (0 for all)")),
		mcp.WithNumber("offset", mcp.Description("Page offset")),
	), s.listBooks)

	s.mcp.AddTool(mcp.NewTool("read_chapter",
		mcp.WithDescription("Read one chapter of a book as Markdown. "+
			"Passing user_id also records the chapter as that user's reading position."),
		mcp.WithNumber("book_id", mcp.Required(), mcp.Description("Book id")),
		mcp.WithNumber("chapter_index", mcp.Required(), mcp.Description("Zero-based chapter index")),
		mcp.WithNumber("user_id", mcp.Description("Reader to record the position for")),
	), s.readChapter)

	s.mcp.AddTool(mcp.NewTool("get_progress",
		mcp.WithDescription("Get a user's reading position and status in a book."),
		mcp.WithNumber("user_id", mcp.Required(), mcp.Description("Reader id")),
		mcp.WithNumber("book_id", mcp.Required(), mcp.Description("Book id")),
	), s.getProgress)

	s.mcp.AddTool(mcp.NewTool("record_progress",
		mcp.WithDescription("Record a user's reading position. Read the guide via the "+
			guideURI+" resource for the paragraph reset rule."),
		mcp.WithNumber("user_id", mcp.Required(), mcp.Description("Reader id")),
		mcp.WithNumber("book_id", mcp.Required(), mcp.Description("Book id")),
		mcp.WithNumber("chapter_index", mcp.Required(), mcp.Description("Zero-based chapter index")),
		mcp.WithNumber("paragraph_index", mcp.Description("Zero-based paragraph index")),
	), s.recordProgress)

	s.mcp.AddTool(mcp.NewTool("get_catalog",
		mcp.WithDescription("A user's library split into unread, in-progress and finished books."),
		mcp.WithNumber("user_id", mcp.Required(), mcp.Description("Reader id")),
		mcp.WithString("sort", mcp.Description("author (default), date_asc or date_desc")),
	), s.getCatalog)

	s.mcp.AddTool(mcp.NewTool("ingest_library",
		mcp.WithDescription("Scan the library directory and ingest files that are not yet stored."),
	), s.ingestLibrary)

	s.mcp.AddTool(mcp.NewTool("upload_book",
		mcp.WithDescription("Download a book from an http(s) URL or a base64 data URI, "+
			"store it in the library and ingest it."),
		mcp.WithString("url", mcp.Required(), mcp.Description("http(s) URL or data:application/epub+zip;base64,... URI")),
		mcp.WithString("filename", mcp.Description("Library file name (derived from the URL when empty)")),
	), s.uploadBook)

	s.mcp.AddResource(
		mcp.NewResource(guideURI, "Reading Guide",
			mcp.WithResourceDescription("How books, chapters and reading positions are addressed."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGuideResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

// toolError turns a domain error into a tool error result.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found")
	case errors.Is(err, apperr.ErrInvalidPosition):
		return mcp.NewToolResultError("invalid position: " + err.Error())
	case errors.Is(err, apperr.ErrAlreadyExists):
		return mcp.NewToolResultError("already exists")
	default:
		return mcp.NewToolResultError(err.Error())
	}
}

func requireID(req mcp.CallToolRequest, name string) (int64, error) {
	v, err := req.RequireInt(name)
	if err != nil {
		return 0, err
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be positive", name)
	}
	return int64(v), nil
}

func (s *Server) listBooks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	books, total, err := s.deps.Books.ListBooks(ctx, store.ListOptions{
		Tag:           req.GetString("tag", ""),
		Sort:          req.GetString("sort", ""),
		IncludeHidden: req.GetBool("include_hidden", false),
		Limit:         req.GetInt("limit", 0),
		Offset:        req.GetInt("offset", 0),
	})
	if err != nil {
		return toolError(err), nil
	}
	if books == nil {
		books = []models.Book{}
	}
	return jsonResult(map[string]any{"books": books, "total": total}), nil
}

func (s *Server) readChapter(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bookID, err := requireID(req, "book_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	index, err := req.RequireInt("chapter_index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := s.deps.Books.GetBook(ctx, bookID)
	if err != nil {
		return toolError(err), nil
	}
	ch, err := s.deps.Books.GetChapter(ctx, bookID, index)
	if err != nil {
		return toolError(err), nil
	}
	if userID := int64(req.GetInt("user_id", 0)); userID > 0 {
		if _, err := s.deps.Tracker.RecordPosition(ctx, userID, bookID, index, nil); err != nil {
			return toolError(err), nil
		}
	}

	body, err := htmltomarkdown.ConvertString(ch.Content)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("convert chapter: %v", err)), nil
	}
	header := fmt.Sprintf("# %s: %s (%d/%d)\n\n", b.Title, ch.Title, ch.Index+1, b.ChapterCount)
	return mcp.NewToolResultText(header + body), nil
}

type progressResult struct {
	Progress *models.ProgressRecord `json:"progress"`
	Status   models.Status          `json:"status"`
}

func (s *Server) getProgress(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := requireID(req, "user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bookID, err := requireID(req, "book_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := s.deps.Books.GetBook(ctx, bookID)
	if err != nil {
		return toolError(err), nil
	}
	rec, err := s.deps.Tracker.Position(ctx, userID, bookID)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return toolError(err), nil
	}
	return jsonResult(progressResult{Progress: rec, Status: progress.StatusOf(*b, rec)}), nil
}

func (s *Server) recordProgress(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := requireID(req, "user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	bookID, err := requireID(req, "book_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	chapter, err := req.RequireInt("chapter_index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var paragraph *int
	if _, ok := req.GetArguments()["paragraph_index"]; ok {
		p, err := req.RequireInt("paragraph_index")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		paragraph = &p
	}
	rec, err := s.deps.Tracker.RecordPosition(ctx, userID, bookID, chapter, paragraph)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(rec), nil
}

func (s *Server) getCatalog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := requireID(req, "user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	v, err := s.deps.Catalog.View(ctx, userID, catalog.Filter{}, catalog.ParseSortKey(req.GetString("sort", "")))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(v), nil
}

func (s *Server) ingestLibrary(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := s.deps.Ingestor.Ingest(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("added: %d", n)), nil
}

func (s *Server) readGuideResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      guideURI,
			MIMEType: "text/markdown",
			Text:     ReadingGuide,
		},
	}, nil
}
