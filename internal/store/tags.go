package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

func normalizeTag(t string) string {
	return strings.ToLower(strings.TrimSpace(t))
}

// SetBookTags replaces the tag set of a book. Tags are lower-cased and
// blanks are dropped.
func (db *DB) SetBookTags(ctx context.Context, bookID int64, tags []string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM books WHERE id = ?`, bookID).Scan(&exists); err != nil {
		return fmt.Errorf("store: set tags: %w", err)
	}
	if exists == 0 {
		return notFound("book", bookID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM book_tags WHERE book_id = ?`, bookID); err != nil {
		return fmt.Errorf("store: clear tags: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO book_tags (book_id, tag) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare tag insert: %w", err)
	}
	defer stmt.Close()
	for _, t := range tags {
		t = normalizeTag(t)
		if t == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, bookID, t); err != nil {
			return fmt.Errorf("store: insert tag: %w", err)
		}
	}
	return tx.Commit()
}

// BookTags returns the sorted tags of one book.
func (db *DB) BookTags(ctx context.Context, bookID int64) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT tag FROM book_tags WHERE book_id = ? ORDER BY tag`, bookID)
	if err != nil {
		return nil, fmt.Errorf("store: book tags: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// AllBookTags returns the tags of every tagged book keyed by book id.
func (db *DB) AllBookTags(ctx context.Context) (map[int64][]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT book_id, tag FROM book_tags`)
	if err != nil {
		return nil, fmt.Errorf("store: all tags: %w", err)
	}
	defer rows.Close()
	out := make(map[int64][]string)
	for rows.Next() {
		var (
			id  int64
			tag string
		)
		if err := rows.Scan(&id, &tag); err != nil {
			return nil, err
		}
		out[id] = append(out[id], tag)
	}
	for _, tags := range out {
		sort.Strings(tags)
	}
	return out, rows.Err()
}
