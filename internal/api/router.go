package api

import (
	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// When svc.Events is non-nil it is mounted at GET /events inside the auth group.
func NewRouter(svc Services, authEnabled bool, token string) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	if svc.Accounts != nil {
		r.Post("/login", h.Login)
	}

	// Library.
	r.Post("/books/load", h.LoadBook)
	r.Post("/books/upload", h.UploadBook)
	r.Get("/books/{bookID}", h.GetBook)
	r.Put("/books/{bookID}/hidden", h.SetHidden)
	r.Delete("/books/{bookID}", h.DeleteBook)
	r.Post("/ingest", h.Ingest)

	// Per-user reading state.
	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/catalog", h.Catalog)
		r.Get("/books/{bookID}/chapters/{chapterIndex}", h.ReadChapter)
		r.Get("/books/{bookID}/progress", h.GetProgress)
		r.Put("/books/{bookID}/progress", h.PutProgress)
		r.Delete("/books/{bookID}/progress", h.DeleteProgress)
		r.Get("/books/{bookID}/resume", h.Resume)
		r.Delete("/progress/{progressID}", h.DeleteProgressRecord)
	})

	if svc.Events != nil {
		r.Get("/events", svc.Events.ServeHTTP)
	}

	return r
}
