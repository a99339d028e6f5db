// Package progress tracks per-user reading positions.
package progress

import (
	"context"
	"errors"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/catread/internal/apperr"
	"github.com/starford/catread/internal/models"
)

// Store is the persistence the tracker needs.
type Store interface {
	GetBook(ctx context.Context, id int64) (*models.Book, error)
	UpdateProgress(ctx context.Context, userID, bookID int64, fn func(models.Book, *models.ProgressRecord) (models.ProgressRecord, error)) (*models.ProgressRecord, error)
	GetProgress(ctx context.Context, userID, bookID int64) (*models.ProgressRecord, error)
	GetProgressByID(ctx context.Context, id int64) (*models.ProgressRecord, error)
	DeleteProgress(ctx context.Context, userID, bookID int64) error
	DeleteProgressByID(ctx context.Context, id int64) error
}

// Tracker records and answers reading positions.
type Tracker struct {
	store Store
	now   func() time.Time
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithClock overrides the time source used for updated_at.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a Tracker over store.
func NewTracker(store Store, opts ...TrackerOption) *Tracker {
	t := &Tracker{store: store, now: func() time.Time { return time.Now().UTC() }}
	for _, o := range opts {
		o(t)
	}
	return t
}

// position is a requested cursor checked against the book it points into.
type position struct {
	Chapter      int
	Paragraph    int
	chapterCount int
}

func (p position) Validate() error {
	if p.chapterCount <= 0 {
		return errors.New("book has no chapters")
	}
	return validation.ValidateStruct(&p,
		validation.Field(&p.Chapter, validation.Min(0), validation.Max(p.chapterCount-1)),
		validation.Field(&p.Paragraph, validation.Min(0)),
	)
}

// RecordPosition stores the reader's position in a book, creating the record
// on first use. A nil paragraphIndex keeps the stored paragraph while the
// chapter is unchanged and resets it to 0 otherwise; a non-nil one is stored
// as given.
func (t *Tracker) RecordPosition(ctx context.Context, userID, bookID int64, chapterIndex int, paragraphIndex *int) (*models.ProgressRecord, error) {
	rec, err := t.store.UpdateProgress(ctx, userID, bookID, func(book models.Book, cur *models.ProgressRecord) (models.ProgressRecord, error) {
		next := models.ProgressRecord{ChapterIndex: chapterIndex, UpdatedAt: t.now()}
		switch {
		case paragraphIndex != nil:
			next.ParagraphIndex = *paragraphIndex
		case cur != nil && cur.ChapterIndex == chapterIndex:
			next.ParagraphIndex = cur.ParagraphIndex
		}
		pos := position{Chapter: next.ChapterIndex, Paragraph: next.ParagraphIndex, chapterCount: book.ChapterCount}
		if err := pos.Validate(); err != nil {
			return models.ProgressRecord{}, fmt.Errorf("%w: %v", apperr.ErrInvalidPosition, err)
		}
		if cur != nil {
			next.ID = cur.ID
		}
		return next, nil
	})
	if err != nil {
		return nil, fmt.Errorf("progress: record position: %w", err)
	}
	return rec, nil
}

// Position returns the stored record or apperr.ErrNotFound.
func (t *Tracker) Position(ctx context.Context, userID, bookID int64) (*models.ProgressRecord, error) {
	rec, err := t.store.GetProgress(ctx, userID, bookID)
	if err != nil {
		return nil, fmt.Errorf("progress: position: %w", err)
	}
	return rec, nil
}

// RemovePosition deletes the record for (userID, bookID) if there is one.
func (t *Tracker) RemovePosition(ctx context.Context, userID, bookID int64) error {
	if err := t.store.DeleteProgress(ctx, userID, bookID); err != nil {
		return fmt.Errorf("progress: remove position: %w", err)
	}
	return nil
}

// RemoveRecord deletes a record by id on behalf of userID. Records owned by
// another user yield apperr.ErrPermission.
func (t *Tracker) RemoveRecord(ctx context.Context, userID, recordID int64) error {
	rec, err := t.store.GetProgressByID(ctx, recordID)
	if err != nil {
		return fmt.Errorf("progress: remove record: %w", err)
	}
	if rec.UserID != userID {
		return fmt.Errorf("progress: record %d: %w", recordID, apperr.ErrPermission)
	}
	if err := t.store.DeleteProgressByID(ctx, recordID); err != nil {
		return fmt.Errorf("progress: remove record: %w", err)
	}
	return nil
}

// Resume returns the chapter a reader should continue at: the stored
// chapter, or 0 when the book has not been opened.
func (t *Tracker) Resume(ctx context.Context, userID, bookID int64) (int, error) {
	if _, err := t.store.GetBook(ctx, bookID); err != nil {
		return 0, fmt.Errorf("progress: resume: %w", err)
	}
	rec, err := t.store.GetProgress(ctx, userID, bookID)
	if errors.Is(err, apperr.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("progress: resume: %w", err)
	}
	return rec.ChapterIndex, nil
}

// StatusOf derives the reading status of book from rec (nil when the user has
// no record).
func StatusOf(book models.Book, rec *models.ProgressRecord) models.Status {
	switch {
	case rec == nil:
		return models.StatusUnread
	case rec.ChapterIndex+1 >= book.ChapterCount:
		return models.StatusFinished
	default:
		return models.StatusInProgress
	}
}
