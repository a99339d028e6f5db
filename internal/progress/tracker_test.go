package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/catread/internal/apperr"
	"github.com/starford/catread/internal/models"
	"github.com/starford/catread/internal/testutil"
)

func intp(v int) *int { return &v }

type fixture struct {
	tracker *Tracker
	book    *models.Book
	user    *models.User
	other   *models.User
}

func newFixture(t *testing.T, chapters int) fixture {
	t.Helper()
	db := testutil.TestDB(t)
	return fixture{
		tracker: NewTracker(db),
		book:    testutil.SeedBook(t, db, "book.epub", "Book", "Author", chapters),
		user:    testutil.SeedUser(t, db, "reader"),
		other:   testutil.SeedUser(t, db, "someone"),
	}
}

func TestRecordPosition_RoundTrip(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	rec, err := f.tracker.RecordPosition(ctx, f.user.ID, f.book.ID, 2, intp(4))
	require.NoError(t, err)
	assert.NotZero(t, rec.ID)

	got, err := f.tracker.Position(ctx, f.user.ID, f.book.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ChapterIndex)
	assert.Equal(t, 4, got.ParagraphIndex)
	assert.Equal(t, rec.ID, got.ID)
}

func TestRecordPosition_ParagraphRules(t *testing.T) {
	type step struct {
		chapter   int
		paragraph *int
	}
	tests := []struct {
		name  string
		steps []step
		want  int
	}{
		{"explicit paragraph on chapter change", []step{{2, intp(5)}, {3, intp(9)}}, 9},
		{"omitted paragraph on chapter change resets", []step{{2, intp(5)}, {3, nil}}, 0},
		{"going back resets", []step{{3, intp(0)}, {2, nil}}, 0},
		{"same chapter keeps paragraph", []step{{2, intp(5)}, {2, nil}}, 5},
		{"new record without paragraph", []step{{1, nil}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 10)
			ctx := context.Background()
			var last *models.ProgressRecord
			for _, s := range tt.steps {
				rec, err := f.tracker.RecordPosition(ctx, f.user.ID, f.book.ID, s.chapter, s.paragraph)
				require.NoError(t, err)
				last = rec
			}
			assert.Equal(t, tt.want, last.ParagraphIndex)
		})
	}
}

func TestRecordPosition_Invalid(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()

	for _, tc := range []struct {
		chapter   int
		paragraph *int
	}{{-1, nil}, {3, nil}, {10, nil}, {0, intp(-2)}} {
		_, err := f.tracker.RecordPosition(ctx, f.user.ID, f.book.ID, tc.chapter, tc.paragraph)
		assert.ErrorIs(t, err, apperr.ErrInvalidPosition, "chapter %d", tc.chapter)
	}

	_, err := f.tracker.Position(ctx, f.user.ID, f.book.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound, "rejected updates store nothing")

	_, err = f.tracker.RecordPosition(ctx, f.user.ID, 9999, 0, nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRecordPosition_Clock(t *testing.T) {
	db := testutil.TestDB(t)
	book := testutil.SeedBook(t, db, "c.epub", "C", "A", 2)
	user := testutil.SeedUser(t, db, "u")
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTracker(db, WithClock(func() time.Time { return at }))

	rec, err := tr.RecordPosition(context.Background(), user.ID, book.ID, 1, nil)
	require.NoError(t, err)
	got, err := tr.Position(context.Background(), user.ID, book.ID)
	require.NoError(t, err)
	assert.True(t, at.Equal(rec.UpdatedAt))
	assert.True(t, at.Equal(got.UpdatedAt))
}

func TestRecordPosition_ConcurrentSingleRecord(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(ch int) {
			defer wg.Done()
			_, err := f.tracker.RecordPosition(ctx, f.user.ID, f.book.ID, ch, nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := f.tracker.Position(ctx, f.user.ID, f.book.ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, got.ChapterIndex, 0)
	assert.Less(t, got.ChapterIndex, 10)
}

func TestRemovePosition(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	_, err := f.tracker.RecordPosition(ctx, f.user.ID, f.book.ID, 1, nil)
	require.NoError(t, err)

	require.NoError(t, f.tracker.RemovePosition(ctx, f.user.ID, f.book.ID))
	require.NoError(t, f.tracker.RemovePosition(ctx, f.user.ID, f.book.ID))
	_, err = f.tracker.Position(ctx, f.user.ID, f.book.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRemoveRecord(t *testing.T) {
	f := newFixture(t, 4)
	ctx := context.Background()
	rec, err := f.tracker.RecordPosition(ctx, f.user.ID, f.book.ID, 1, nil)
	require.NoError(t, err)

	assert.ErrorIs(t, f.tracker.RemoveRecord(ctx, f.other.ID, rec.ID), apperr.ErrPermission)
	assert.ErrorIs(t, f.tracker.RemoveRecord(ctx, f.user.ID, rec.ID+100), apperr.ErrNotFound)
	require.NoError(t, f.tracker.RemoveRecord(ctx, f.user.ID, rec.ID))
	assert.ErrorIs(t, f.tracker.RemoveRecord(ctx, f.user.ID, rec.ID), apperr.ErrNotFound)
}

func TestResume(t *testing.T) {
	f := newFixture(t, 6)
	ctx := context.Background()

	ch, err := f.tracker.Resume(ctx, f.user.ID, f.book.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, ch)

	_, err = f.tracker.RecordPosition(ctx, f.user.ID, f.book.ID, 4, nil)
	require.NoError(t, err)
	ch, err = f.tracker.Resume(ctx, f.user.ID, f.book.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, ch)

	_, err = f.tracker.Resume(ctx, f.user.ID, 9999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStatusOf(t *testing.T) {
	book := models.Book{ChapterCount: 10}
	tests := []struct {
		name string
		rec  *models.ProgressRecord
		want models.Status
	}{
		{"no record", nil, models.StatusUnread},
		{"first chapter", &models.ProgressRecord{ChapterIndex: 0}, models.StatusInProgress},
		{"penultimate", &models.ProgressRecord{ChapterIndex: 8}, models.StatusInProgress},
		{"last chapter", &models.ProgressRecord{ChapterIndex: 9}, models.StatusFinished},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusOf(book, tt.rec))
		})
	}
	assert.Equal(t, models.StatusFinished, StatusOf(models.Book{ChapterCount: 1}, &models.ProgressRecord{}))
}

func TestTenChapterScenario(t *testing.T) {
	f := newFixture(t, 10)
	ctx := context.Background()

	book := *f.book
	rec, err := f.tracker.Position(ctx, f.user.ID, f.book.ID)
	require.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, models.StatusUnread, StatusOf(book, nil))

	rec, err = f.tracker.RecordPosition(ctx, f.user.ID, f.book.ID, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, StatusOf(book, rec))

	rec, err = f.tracker.RecordPosition(ctx, f.user.ID, f.book.ID, 4, intp(12))
	require.NoError(t, err)
	assert.Equal(t, 12, rec.ParagraphIndex)
	assert.Equal(t, models.StatusInProgress, StatusOf(book, rec))

	rec, err = f.tracker.RecordPosition(ctx, f.user.ID, f.book.ID, 9, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, rec.ParagraphIndex)
	assert.Equal(t, models.StatusFinished, StatusOf(book, rec))

	_, err = f.tracker.RecordPosition(ctx, f.user.ID, f.book.ID, 10, nil)
	require.ErrorIs(t, err, apperr.ErrInvalidPosition)
	rec, err = f.tracker.Position(ctx, f.user.ID, f.book.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, rec.ChapterIndex)

	require.NoError(t, f.tracker.RemovePosition(ctx, f.user.ID, f.book.ID))
	_, err = f.tracker.Position(ctx, f.user.ID, f.book.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
