package store

import (
	"context"

	"github.com/starford/catread/internal/models"
)

// Repository defines the persistence operations used by the service layer.
// Consumers declare narrower interfaces next to themselves; this one exists
// so tests can swap the whole store.
type Repository interface {
	CreateBook(ctx context.Context, b models.Book, chapters []models.Chapter) (*models.Book, error)
	KnownFilenames(ctx context.Context) (map[string]struct{}, error)
	GetBook(ctx context.Context, id int64) (*models.Book, error)
	GetBookByFilename(ctx context.Context, filename string) (*models.Book, error)
	ListBooks(ctx context.Context, opts ListOptions) ([]models.Book, int, error)
	SetHidden(ctx context.Context, id int64, hidden bool) error
	DeleteBook(ctx context.Context, id int64) error

	GetChapter(ctx context.Context, bookID int64, index int) (*models.Chapter, error)
	ListChapters(ctx context.Context, bookID int64) ([]models.Chapter, error)

	SetBookTags(ctx context.Context, bookID int64, tags []string) error
	BookTags(ctx context.Context, bookID int64) ([]string, error)
	AllBookTags(ctx context.Context) (map[int64][]string, error)

	CreateUser(ctx context.Context, username, passwordHash string) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)

	UpdateProgress(ctx context.Context, userID, bookID int64, fn func(models.Book, *models.ProgressRecord) (models.ProgressRecord, error)) (*models.ProgressRecord, error)
	GetProgress(ctx context.Context, userID, bookID int64) (*models.ProgressRecord, error)
	GetProgressByID(ctx context.Context, id int64) (*models.ProgressRecord, error)
	DeleteProgress(ctx context.Context, userID, bookID int64) error
	DeleteProgressByID(ctx context.Context, id int64) error
	ProgressByUser(ctx context.Context, userID int64) (map[int64]*models.ProgressRecord, error)

	Ping(ctx context.Context) error
	Close() error
}

// Verify *DB satisfies Repository at compile time.
var _ Repository = (*DB)(nil)
