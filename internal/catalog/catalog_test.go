package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/catread/internal/apperr"
	"github.com/starford/catread/internal/models"
	"github.com/starford/catread/internal/progress"
	"github.com/starford/catread/internal/testutil"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func book(id int64, author, title string, chapters int, createdDay int) models.Book {
	return models.Book{
		ID: id, Author: author, Title: title, ChapterCount: chapters,
		Filename: title + ".epub", CreatedAt: epoch.AddDate(0, 0, createdDay),
	}
}

func ids(es []Entry) []int64 {
	out := make([]int64, 0, len(es))
	for _, e := range es {
		out = append(out, e.Book.ID)
	}
	return out
}

func TestBuild_Partitions(t *testing.T) {
	books := []models.Book{
		book(1, "Le Guin", "Earthsea", 10, 0),
		book(2, "Asimov", "Foundation", 10, 1),
		book(3, "Banks", "Excession", 10, 2),
		book(4, "Clarke", "Rama", 3, 3),
		book(5, "Dick", "Ubik", 8, 4),
	}
	now := epoch.AddDate(0, 1, 0)
	recs := map[int64]*models.ProgressRecord{
		3: {BookID: 3, ChapterIndex: 4, UpdatedAt: now.Add(-2 * time.Hour)},
		4: {BookID: 4, ChapterIndex: 2, UpdatedAt: now.Add(-time.Hour)},
		5: {BookID: 5, ChapterIndex: 0, UpdatedAt: now.Add(-time.Minute)},
	}

	v := Build(books, recs, nil, Filter{}, SortAuthor, now)

	assert.Equal(t, []int64{2, 1}, ids(v.Unread))
	assert.Equal(t, []int64{5, 3}, ids(v.InProgress), "most recently read first")
	assert.Equal(t, []int64{4}, ids(v.Finished))
	assert.Equal(t, "2 hours ago", v.InProgress[1].LastRead)
	assert.Empty(t, v.Unread[0].LastRead)
	for _, e := range v.InProgress {
		assert.Equal(t, progress.StatusOf(e.Book, e.Progress), e.Status)
	}
}

func TestBuild_SortKeys(t *testing.T) {
	books := []models.Book{
		book(1, "B", "x", 2, 2),
		book(2, "a", "z", 2, 0),
		book(3, "A", "y", 2, 1),
	}
	tests := []struct {
		key  SortKey
		want []int64
	}{
		{SortAuthor, []int64{3, 2, 1}},
		{SortDateAsc, []int64{2, 3, 1}},
		{SortDateDesc, []int64{1, 3, 2}},
		{"bogus", []int64{3, 2, 1}},
	}
	for _, tt := range tests {
		t.Run(string(tt.key), func(t *testing.T) {
			v := Build(books, nil, nil, Filter{}, tt.key, epoch)
			assert.Equal(t, tt.want, ids(v.Unread))
		})
	}
}

func TestBuild_Filters(t *testing.T) {
	books := []models.Book{
		book(1, "Ursula K. Le Guin", "The Dispossessed", 5, 0),
		book(2, "Iain M. Banks", "Use of Weapons", 5, 1),
		book(3, "Ursula K. Le Guin", "The Lathe of Heaven", 5, 2),
	}
	books[2].Hidden = true
	tags := map[int64][]string{1: {"scifi", "classic"}, 2: {"scifi"}, 3: {"classic"}}

	tests := []struct {
		name string
		f    Filter
		want []int64
	}{
		{"default hides hidden", Filter{}, []int64{2, 1}},
		{"only hidden", Filter{Hidden: HiddenOnly}, []int64{3}},
		{"include hidden", Filter{Hidden: HiddenInclude}, []int64{2, 1, 3}},
		{"author substring", Filter{Hidden: HiddenInclude, Authors: []Match{{Value: "le guin"}}}, []int64{1, 3}},
		{"negated author", Filter{Authors: []Match{{Value: "GUIN", Negate: true}}}, []int64{2}},
		{"title substring", Filter{Titles: []Match{{Value: "weapons"}}}, []int64{2}},
		{"tag equality", Filter{Tags: []Match{{Value: "SciFi"}}}, []int64{2, 1}},
		{"tag is not substring", Filter{Tags: []Match{{Value: "sci"}}}, []int64{}},
		{"negated tag", Filter{Hidden: HiddenInclude, Tags: []Match{{Value: "scifi", Negate: true}}}, []int64{3}},
		{"conditions AND", Filter{Tags: []Match{{Value: "scifi"}, {Value: "classic"}}}, []int64{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Build(books, nil, tags, tt.f, SortAuthor, epoch)
			assert.Equal(t, tt.want, ids(v.Unread))
		})
	}
}

func TestParsers(t *testing.T) {
	assert.Equal(t, Match{Value: "x", Negate: true}, ParseMatch("!x"))
	assert.Equal(t, Match{Value: "x"}, ParseMatch(" x "))
	assert.Equal(t, []Match{{Value: "a"}, {Value: "b", Negate: true}}, ParseMatches([]string{"a", "", "!b", "!"}))

	m, err := ParseHiddenMode("")
	require.NoError(t, err)
	assert.Equal(t, HiddenExclude, m)
	m, err = ParseHiddenMode("only")
	require.NoError(t, err)
	assert.Equal(t, HiddenOnly, m)
	_, err = ParseHiddenMode("sometimes")
	assert.Error(t, err)

	assert.Equal(t, SortDateDesc, ParseSortKey("DATE_DESC"))
	assert.Equal(t, SortAuthor, ParseSortKey(""))
}

func TestService_View(t *testing.T) {
	db := testutil.TestDB(t)
	ctx := context.Background()
	u := testutil.SeedUser(t, db, "reader")
	a := testutil.SeedBook(t, db, "a.epub", "Alpha", "Author A", 3)
	b := testutil.SeedBook(t, db, "b.epub", "Beta", "Author B", 3)
	c := testutil.SeedBook(t, db, "c.epub", "Gamma", "Author C", 3)
	require.NoError(t, db.SetHidden(ctx, c.ID, true))
	require.NoError(t, db.SetBookTags(ctx, a.ID, []string{"fav"}))

	tr := progress.NewTracker(db)
	_, err := tr.RecordPosition(ctx, u.ID, b.ID, 1, nil)
	require.NoError(t, err)

	svc := NewService(db, nil)
	v, err := svc.View(ctx, u.ID, Filter{}, SortAuthor)
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID}, ids(v.Unread))
	assert.Equal(t, []string{"fav"}, v.Unread[0].Tags)
	assert.Equal(t, []int64{b.ID}, ids(v.InProgress))
	assert.Empty(t, v.Finished)

	v, err = svc.View(ctx, u.ID, Filter{Hidden: HiddenOnly}, SortAuthor)
	require.NoError(t, err)
	assert.Equal(t, []int64{c.ID}, ids(v.Unread))

	_, err = svc.View(ctx, 9999, Filter{}, SortAuthor)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
