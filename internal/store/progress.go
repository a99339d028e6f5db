package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/catread/internal/apperr"
	"github.com/starford/catread/internal/models"
)

const progressColumns = `id, user_id, book_id, chapter_index, paragraph_index, updated_at`

func scanProgress(r rowScanner) (*models.ProgressRecord, error) {
	var p models.ProgressRecord
	if err := r.Scan(&p.ID, &p.UserID, &p.BookID, &p.ChapterIndex, &p.ParagraphIndex, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func notFound(kind string, id int64) error {
	return fmt.Errorf("store: %s %d: %w", kind, id, apperr.ErrNotFound)
}

// UpdateProgress runs a read-modify-write of the (userID, bookID) record in a
// single write transaction. fn receives the book and the current record (nil
// if none) and returns the record to store. The stored chapter index must lie
// in [0, chapter_count).
func (db *DB) UpdateProgress(ctx context.Context, userID, bookID int64, fn func(models.Book, *models.ProgressRecord) (models.ProgressRecord, error)) (*models.ProgressRecord, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	book, err := scanBook(tx.QueryRowContext(ctx, `SELECT `+bookColumns+` FROM books WHERE id = ?`, bookID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("book", bookID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get book: %w", err)
	}

	var users int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM users WHERE id = ?`, userID).Scan(&users); err != nil {
		return nil, fmt.Errorf("store: get user: %w", err)
	}
	if users == 0 {
		return nil, notFound("user", userID)
	}

	current, err := scanProgress(tx.QueryRowContext(ctx,
		`SELECT `+progressColumns+` FROM book_progress WHERE user_id = ? AND book_id = ?`, userID, bookID))
	if errors.Is(err, sql.ErrNoRows) {
		current, err = nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get progress: %w", err)
	}

	next, err := fn(*book, current)
	if err != nil {
		return nil, err
	}
	if next.ChapterIndex < 0 || next.ChapterIndex >= book.ChapterCount || next.ParagraphIndex < 0 {
		return nil, fmt.Errorf("store: chapter %d of %d: %w", next.ChapterIndex, book.ChapterCount, apperr.ErrInvalidPosition)
	}
	next.UserID, next.BookID = userID, bookID
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = time.Now().UTC()
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO book_progress (user_id, book_id, chapter_index, paragraph_index, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, book_id) DO UPDATE SET
			chapter_index   = excluded.chapter_index,
			paragraph_index = excluded.paragraph_index,
			updated_at      = excluded.updated_at
		RETURNING id
	`, userID, bookID, next.ChapterIndex, next.ParagraphIndex, next.UpdatedAt).Scan(&next.ID)
	if err != nil {
		return nil, fmt.Errorf("store: upsert progress: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("store: commit progress: %w", err)
	}
	return &next, nil
}

// GetProgress returns the record for (userID, bookID).
func (db *DB) GetProgress(ctx context.Context, userID, bookID int64) (*models.ProgressRecord, error) {
	p, err := scanProgress(db.conn.QueryRowContext(ctx,
		`SELECT `+progressColumns+` FROM book_progress WHERE user_id = ? AND book_id = ?`, userID, bookID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: progress of user %d on book %d: %w", userID, bookID, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get progress: %w", err)
	}
	return p, nil
}

// GetProgressByID returns a record by its id.
func (db *DB) GetProgressByID(ctx context.Context, id int64) (*models.ProgressRecord, error) {
	p, err := scanProgress(db.conn.QueryRowContext(ctx,
		`SELECT `+progressColumns+` FROM book_progress WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("progress", id)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get progress: %w", err)
	}
	return p, nil
}

// DeleteProgress removes the record for (userID, bookID). Deleting an absent
// record is not an error.
func (db *DB) DeleteProgress(ctx context.Context, userID, bookID int64) error {
	if _, err := db.conn.ExecContext(ctx,
		`DELETE FROM book_progress WHERE user_id = ? AND book_id = ?`, userID, bookID); err != nil {
		return fmt.Errorf("store: delete progress: %w", err)
	}
	return nil
}

// DeleteProgressByID removes a record by its id.
func (db *DB) DeleteProgressByID(ctx context.Context, id int64) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM book_progress WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete progress: %w", err)
	}
	return expectOne(res, fmt.Sprintf("progress %d", id))
}

// ProgressByUser returns every record of a user keyed by book id.
func (db *DB) ProgressByUser(ctx context.Context, userID int64) (map[int64]*models.ProgressRecord, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+progressColumns+` FROM book_progress WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list progress: %w", err)
	}
	defer rows.Close()
	out := make(map[int64]*models.ProgressRecord)
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, err
		}
		out[p.BookID] = p
	}
	return out, rows.Err()
}
