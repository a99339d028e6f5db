package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/catread/internal/apperr"
	"github.com/starford/catread/internal/models"
)

// ListOptions narrows and orders ListBooks. The zero value lists every book
// ordered by author then title.
type ListOptions struct {
	Tag           string
	Sort          string // "author" (default), "title", "date_asc", "date_desc"
	IncludeHidden bool
	Limit         int
	Offset        int
}

const bookColumns = `id, filename, title, author, chapter_count, hidden, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(r rowScanner) (*models.Book, error) {
	var b models.Book
	if err := r.Scan(&b.ID, &b.Filename, &b.Title, &b.Author, &b.ChapterCount, &b.Hidden, &b.CreatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

// CreateBook inserts a book and its chapters in one transaction. chapter_count
// is taken from len(chapters) and chapter indexes from their position.
// A book with the same filename yields apperr.ErrAlreadyExists.
func (db *DB) CreateBook(ctx context.Context, b models.Book, chapters []models.Chapter) (*models.Book, error) {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	b.ChapterCount = len(chapters)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx, `
		INSERT INTO books (filename, title, author, chapter_count, hidden, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(filename) DO NOTHING
	`, b.Filename, b.Title, b.Author, b.ChapterCount, b.Hidden, b.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: insert book: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("store: insert book: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("store: book %q: %w", b.Filename, apperr.ErrAlreadyExists)
	}
	if b.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("store: book id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chapters (book_id, idx, title, content) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("store: prepare chapter insert: %w", err)
	}
	defer stmt.Close()
	for i, ch := range chapters {
		title := ch.Title
		if title == "" {
			title = models.ChapterTitle(i)
		}
		if _, err := stmt.ExecContext(ctx, b.ID, i, title, ch.Content); err != nil {
			return nil, fmt.Errorf("store: insert chapter %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit book: %w", err)
	}
	return &b, nil
}

// KnownFilenames returns the filename of every stored book.
func (db *DB) KnownFilenames(ctx context.Context) (map[string]struct{}, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT filename FROM books`)
	if err != nil {
		return nil, fmt.Errorf("store: known filenames: %w", err)
	}
	defer rows.Close()
	out := make(map[string]struct{})
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		out[f] = struct{}{}
	}
	return out, rows.Err()
}

// GetBook returns a book by id.
func (db *DB) GetBook(ctx context.Context, id int64) (*models.Book, error) {
	b, err := scanBook(db.conn.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: book %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get book: %w", err)
	}
	return b, nil
}

// GetBookByFilename returns a book by its filename.
func (db *DB) GetBookByFilename(ctx context.Context, filename string) (*models.Book, error) {
	b, err := scanBook(db.conn.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE filename = ?`, filename))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: book %q: %w", filename, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get book: %w", err)
	}
	return b, nil
}

// ListBooks returns a page of books and the total number matching opts.
func (db *DB) ListBooks(ctx context.Context, opts ListOptions) ([]models.Book, int, error) {
	var (
		where []string
		args  []any
	)
	if !opts.IncludeHidden {
		where = append(where, "hidden = 0")
	}
	if opts.Tag != "" {
		where = append(where, "id IN (SELECT book_id FROM book_tags WHERE tag = ?)")
		args = append(args, normalizeTag(opts.Tag))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.conn.QueryRowContext(ctx, `SELECT count(*) FROM books`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("store: count books: %w", err)
	}

	var orderBy string
	switch opts.Sort {
	case "title":
		orderBy = "title COLLATE NOCASE ASC, id ASC"
	case "date_asc":
		orderBy = "created_at ASC, id ASC"
	case "date_desc":
		orderBy = "created_at DESC, id DESC"
	default:
		orderBy = "author COLLATE NOCASE ASC, title COLLATE NOCASE ASC, id ASC"
	}
	q := `SELECT ` + bookColumns + ` FROM books` + clause + ` ORDER BY ` + orderBy
	if opts.Limit > 0 {
		q += ` LIMIT ? OFFSET ?`
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := db.conn.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("store: list books: %w", err)
	}
	defer rows.Close()
	var out []models.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *b)
	}
	return out, total, rows.Err()
}

// SetHidden sets the hidden flag of a book.
func (db *DB) SetHidden(ctx context.Context, id int64, hidden bool) error {
	res, err := db.conn.ExecContext(ctx, `UPDATE books SET hidden = ? WHERE id = ?`, hidden, id)
	if err != nil {
		return fmt.Errorf("store: set hidden: %w", err)
	}
	return expectOne(res, fmt.Sprintf("book %d", id))
}

// DeleteBook removes a book. Chapters, tags and progress records cascade.
func (db *DB) DeleteBook(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM books WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete book: %w", err)
	}
	return expectOne(res, fmt.Sprintf("book %d", id))
}

// GetChapter returns the chapter at a zero-based index.
func (db *DB) GetChapter(ctx context.Context, bookID int64, index int) (*models.Chapter, error) {
	var ch models.Chapter
	err := db.conn.QueryRowContext(ctx, `
		SELECT id, book_id, idx, title, content FROM chapters WHERE book_id = ? AND idx = ?
	`, bookID, index).Scan(&ch.ID, &ch.BookID, &ch.Index, &ch.Title, &ch.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: chapter %d of book %d: %w", index, bookID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get chapter: %w", err)
	}
	return &ch, nil
}

// ListChapters returns the chapters of a book ordered by index, without content.
func (db *DB) ListChapters(ctx context.Context, bookID int64) ([]models.Chapter, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, book_id, idx, title FROM chapters WHERE book_id = ? ORDER BY idx
	`, bookID)
	if err != nil {
		return nil, fmt.Errorf("store: list chapters: %w", err)
	}
	defer rows.Close()
	var out []models.Chapter
	for rows.Next() {
		var ch models.Chapter
		if err := rows.Scan(&ch.ID, &ch.BookID, &ch.Index, &ch.Title); err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

func expectOne(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: %s: %w", what, apperr.ErrNotFound)
	}
	return nil
}
