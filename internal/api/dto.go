package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/catread/internal/models"
)

// LoadBookRequest is the request body for loading a single library file.
type LoadBookRequest struct {
	Filename string `json:"filename" example:"dune.epub"`
}

// Validate validates the request.
func (r LoadBookRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Filename, validation.Required),
	)
}

// LoginRequest carries reader credentials.
type LoginRequest struct {
	Username string `json:"username" example:"reader"`
	Password string `json:"password"`
}

// Validate validates the request.
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// HiddenRequest is the request body for toggling the hidden flag.
type HiddenRequest struct {
	Hidden *bool `json:"hidden"`
}

// Validate validates the request.
func (r HiddenRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Hidden, validation.NotNil),
	)
}

// ProgressRequest is the request body for recording a position. An omitted
// paragraph_index follows the tracker's reset rule.
type ProgressRequest struct {
	ChapterIndex   *int `json:"chapter_index"`
	ParagraphIndex *int `json:"paragraph_index,omitempty"`
}

// Validate validates the request.
func (r ProgressRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ChapterIndex, validation.NotNil),
	)
}

// BookDetail is a book with its chapter list and tags.
type BookDetail struct {
	models.Book
	Chapters []models.Chapter `json:"chapters"`
	Tags     []string         `json:"tags"`
}

// ChapterResponse is a chapter as served to a reader.
type ChapterResponse struct {
	BookID       int64                  `json:"book_id"`
	Index        int                    `json:"index"`
	Title        string                 `json:"title"`
	Content      string                 `json:"content"`
	Paragraphs   int                    `json:"paragraphs"`
	ChapterCount int                    `json:"chapter_count"`
	Progress     *models.ProgressRecord `json:"progress"`
}

// IngestResponse reports the outcome of a library scan.
type IngestResponse struct {
	Added int `json:"added" example:"3"`
}

// ResumeResponse names the chapter to continue at.
type ResumeResponse struct {
	ChapterIndex int `json:"chapter_index"`
}
