package api

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/starford/catread/internal/storage"
)

const maxUploadBytes = 200 << 20 // 200 MB

// UploadBook handles POST /api/books/upload (multipart/form-data, field
// "file"). The file is written to the library directory and then loaded.
func (h *Handler) UploadBook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if !storage.HasExt(name, h.svc.Ingestor.Extensions()...) {
		writeJSON(w, http.StatusBadRequest, errorBody("unsupported file type"))
		return
	}
	_, err = h.svc.Library.Stat(name)
	switch {
	case err == nil:
		writeJSON(w, http.StatusConflict, errorBody("already exists"))
		return
	case errors.Is(err, storage.ErrInvalidName):
		writeJSON(w, http.StatusBadRequest, errorBody("invalid filename"))
		return
	case !errors.Is(err, os.ErrNotExist):
		writeError(w, "stat upload", err)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read upload"))
		return
	}
	if err := h.svc.Library.Write(name, data); err != nil {
		writeError(w, "write upload", err)
		return
	}

	b, err := h.svc.Ingestor.IngestUploaded(r.Context(), name)
	if err != nil {
		writeError(w, "load upload", err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}
