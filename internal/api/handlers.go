package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/starford/catread/internal/account"
	"github.com/starford/catread/internal/catalog"
	"github.com/starford/catread/internal/ingest"
	"github.com/starford/catread/internal/models"
	"github.com/starford/catread/internal/progress"
	"github.com/starford/catread/internal/sanitize"
	"github.com/starford/catread/internal/sse"
	"github.com/starford/catread/internal/storage"
)

// BookStore is the book persistence the handlers read and mutate.
type BookStore interface {
	GetBook(ctx context.Context, id int64) (*models.Book, error)
	GetChapter(ctx context.Context, bookID int64, index int) (*models.Chapter, error)
	ListChapters(ctx context.Context, bookID int64) ([]models.Chapter, error)
	BookTags(ctx context.Context, bookID int64) ([]string, error)
	SetHidden(ctx context.Context, id int64, hidden bool) error
	DeleteBook(ctx context.Context, id int64) error
}

// Services are the collaborators exposed over HTTP. Events may be nil.
type Services struct {
	Books    BookStore
	Library  storage.Provider
	Ingestor *ingest.Ingestor
	Tracker  *progress.Tracker
	Catalog  *catalog.Service
	Accounts *account.Service
	Events   *sse.Broker
}

// Handler holds API route handlers.
type Handler struct {
	svc Services
}

// NewHandler creates a new Handler.
func NewHandler(svc Services) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) publishBook(kind string, b models.Book) {
	if h.svc.Events != nil {
		h.svc.Events.PublishBookEvent(kind, b)
	}
}

// GetBook handles GET /api/books/{bookID}.
//
//	@Summary	Get a book with its chapter list
//	@Tags		books
//	@Produce	json
//	@Param		bookID	path		int	true	"Book ID"
//	@Success	200		{object}	BookDetail
//	@Failure	404		{object}	errResponse
//	@Router		/books/{bookID} [get]
func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "bookID")
	if !ok {
		return
	}
	ctx := r.Context()
	b, err := h.svc.Books.GetBook(ctx, id)
	if err != nil {
		writeError(w, "get book", err)
		return
	}
	chapters, err := h.svc.Books.ListChapters(ctx, id)
	if err != nil {
		writeError(w, "list chapters", err)
		return
	}
	tags, err := h.svc.Books.BookTags(ctx, id)
	if err != nil {
		writeError(w, "book tags", err)
		return
	}
	if chapters == nil {
		chapters = []models.Chapter{}
	}
	if tags == nil {
		tags = []string{}
	}
	writeJSON(w, http.StatusOK, BookDetail{Book: *b, Chapters: chapters, Tags: tags})
}

// SetHidden handles PUT /api/books/{bookID}/hidden.
func (h *Handler) SetHidden(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "bookID")
	if !ok {
		return
	}
	var req HiddenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	ctx := r.Context()
	if err := h.svc.Books.SetHidden(ctx, id, *req.Hidden); err != nil {
		writeError(w, "set hidden", err)
		return
	}
	b, err := h.svc.Books.GetBook(ctx, id)
	if err != nil {
		writeError(w, "get book", err)
		return
	}
	h.publishBook(sse.TypeBookUpdated, *b)
	writeJSON(w, http.StatusOK, b)
}

// DeleteBook handles DELETE /api/books/{bookID}. The library file stays on
// disk; chapters, tags and progress records are removed with the book.
func (h *Handler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "bookID")
	if !ok {
		return
	}
	ctx := r.Context()
	b, err := h.svc.Books.GetBook(ctx, id)
	if err != nil {
		writeError(w, "get book", err)
		return
	}
	if err := h.svc.Books.DeleteBook(ctx, id); err != nil {
		writeError(w, "delete book", err)
		return
	}
	h.publishBook(sse.TypeBookDeleted, *b)
	w.WriteHeader(http.StatusNoContent)
}

// LoadBook handles POST /api/books/load.
//
//	@Summary	Ingest one named file from the library directory
//	@Tags		books
//	@Accept		json
//	@Produce	json
//	@Param		body	body		LoadBookRequest	true	"File to load"
//	@Success	201		{object}	models.Book
//	@Failure	400		{object}	errResponse
//	@Failure	404		{object}	errResponse
//	@Failure	409		{object}	errResponse
//	@Router		/books/load [post]
func (h *Handler) LoadBook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req LoadBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	b, err := h.svc.Ingestor.IngestFile(r.Context(), req.Filename)
	if err != nil {
		writeError(w, "load book", err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// Login handles POST /api/login. It checks reader credentials and returns the
// user whose id addresses the /users/{userID} routes.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	u, err := h.svc.Accounts.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// Ingest handles POST /api/ingest.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Ingestor.Ingest(r.Context())
	if err != nil {
		writeError(w, "ingest", err)
		return
	}
	writeJSON(w, http.StatusOK, IngestResponse{Added: n})
}

// Catalog handles GET /api/users/{userID}/catalog.
//
// Query parameters: sort (author, date_asc, date_desc), hidden (exclude,
// only, include) and repeatable author, title and tag terms where a leading
// "!" negates the term.
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	userID, ok := idParam(w, r, "userID")
	if !ok {
		return
	}
	q := r.URL.Query()
	hidden, err := catalog.ParseHiddenMode(q.Get("hidden"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	f := catalog.Filter{
		Hidden:  hidden,
		Tags:    catalog.ParseMatches(q["tag"]),
		Authors: catalog.ParseMatches(q["author"]),
		Titles:  catalog.ParseMatches(q["title"]),
	}
	v, err := h.svc.Catalog.View(r.Context(), userID, f, catalog.ParseSortKey(q.Get("sort")))
	if err != nil {
		writeError(w, "catalog", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// ReadChapter handles GET /api/users/{userID}/books/{bookID}/chapters/{chapterIndex}.
// Serving a chapter records it as the reader's position.
func (h *Handler) ReadChapter(w http.ResponseWriter, r *http.Request) {
	userID, ok := idParam(w, r, "userID")
	if !ok {
		return
	}
	bookID, ok := idParam(w, r, "bookID")
	if !ok {
		return
	}
	index, ok := indexParam(w, r, "chapterIndex")
	if !ok {
		return
	}
	ctx := r.Context()
	b, err := h.svc.Books.GetBook(ctx, bookID)
	if err != nil {
		writeError(w, "get book", err)
		return
	}
	ch, err := h.svc.Books.GetChapter(ctx, bookID, index)
	if err != nil {
		writeError(w, "get chapter", err)
		return
	}
	rec, err := h.svc.Tracker.RecordPosition(ctx, userID, bookID, index, nil)
	if err != nil {
		writeError(w, "record position", err)
		return
	}
	h.publishProgress(*rec)
	writeJSON(w, http.StatusOK, ChapterResponse{
		BookID:       bookID,
		Index:        ch.Index,
		Title:        ch.Title,
		Content:      ch.Content,
		Paragraphs:   len(sanitize.Paragraphs(ch.Content)),
		ChapterCount: b.ChapterCount,
		Progress:     rec,
	})
}

func (h *Handler) publishProgress(rec models.ProgressRecord) {
	if h.svc.Events != nil {
		h.svc.Events.PublishProgress(rec)
	}
}

func (h *Handler) userAndBook(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	userID, ok := idParam(w, r, "userID")
	if !ok {
		return 0, 0, false
	}
	bookID, ok := idParam(w, r, "bookID")
	if !ok {
		return 0, 0, false
	}
	return userID, bookID, true
}

// GetProgress handles GET /api/users/{userID}/books/{bookID}/progress.
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	userID, bookID, ok := h.userAndBook(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Tracker.Position(r.Context(), userID, bookID)
	if err != nil {
		writeError(w, "get progress", err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// PutProgress handles PUT /api/users/{userID}/books/{bookID}/progress.
func (h *Handler) PutProgress(w http.ResponseWriter, r *http.Request) {
	userID, bookID, ok := h.userAndBook(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req ProgressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON"))
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	rec, err := h.svc.Tracker.RecordPosition(r.Context(), userID, bookID, *req.ChapterIndex, req.ParagraphIndex)
	if err != nil {
		writeError(w, "record position", err)
		return
	}
	h.publishProgress(*rec)
	writeJSON(w, http.StatusOK, rec)
}

// DeleteProgress handles DELETE /api/users/{userID}/books/{bookID}/progress.
func (h *Handler) DeleteProgress(w http.ResponseWriter, r *http.Request) {
	userID, bookID, ok := h.userAndBook(w, r)
	if !ok {
		return
	}
	if err := h.svc.Tracker.RemovePosition(r.Context(), userID, bookID); err != nil {
		writeError(w, "remove position", err)
		return
	}
	h.publishRemoved(userID, bookID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) publishRemoved(userID, bookID int64) {
	if h.svc.Events != nil {
		h.svc.Events.Publish(sse.Event{Type: sse.TypeProgressRemoved, Data: sse.ProgressData{UserID: userID, BookID: bookID}})
	}
}

// Resume handles GET /api/users/{userID}/books/{bookID}/resume.
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	userID, bookID, ok := h.userAndBook(w, r)
	if !ok {
		return
	}
	ch, err := h.svc.Tracker.Resume(r.Context(), userID, bookID)
	if err != nil {
		writeError(w, "resume", err)
		return
	}
	writeJSON(w, http.StatusOK, ResumeResponse{ChapterIndex: ch})
}

// DeleteProgressRecord handles DELETE /api/users/{userID}/progress/{progressID}.
func (h *Handler) DeleteProgressRecord(w http.ResponseWriter, r *http.Request) {
	userID, ok := idParam(w, r, "userID")
	if !ok {
		return
	}
	recordID, ok := idParam(w, r, "progressID")
	if !ok {
		return
	}
	if err := h.svc.Tracker.RemoveRecord(r.Context(), userID, recordID); err != nil {
		writeError(w, "remove progress record", err)
		return
	}
	slog.Debug("progress record removed", slog.Int64("user", userID), slog.Int64("record", recordID))
	w.WriteHeader(http.StatusNoContent)
}
