// Package catalog partitions a user's library into unread, in-progress and
// finished books.
package catalog

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/starford/catread/internal/models"
	"github.com/starford/catread/internal/progress"
	"github.com/starford/catread/internal/store"
)

// SortKey orders the unread and finished buckets.
type SortKey string

const (
	SortAuthor   SortKey = "author"
	SortDateAsc  SortKey = "date_asc"
	SortDateDesc SortKey = "date_desc"
)

// ParseSortKey returns the key named by s, falling back to SortAuthor.
func ParseSortKey(s string) SortKey {
	switch k := SortKey(strings.ToLower(strings.TrimSpace(s))); k {
	case SortDateAsc, SortDateDesc:
		return k
	default:
		return SortAuthor
	}
}

// Entry is one book in a view.
type Entry struct {
	Book     models.Book            `json:"book"`
	Progress *models.ProgressRecord `json:"progress,omitempty"`
	Status   models.Status          `json:"status"`
	Tags     []string               `json:"tags,omitempty"`
	LastRead string                 `json:"last_read,omitempty"`
}

// View is the partitioned catalog. InProgress is ordered most recently read
// first regardless of Sort.
type View struct {
	Unread     []Entry `json:"unread"`
	InProgress []Entry `json:"in_progress"`
	Finished   []Entry `json:"finished"`
	Sort       SortKey `json:"sort"`
}

// Build partitions books by the reading status derived from progress.
// progress and tags are keyed by book id; missing keys mean no record and no
// tags. now anchors the humanized last-read time.
func Build(books []models.Book, progressByBook map[int64]*models.ProgressRecord, tags map[int64][]string, f Filter, key SortKey, now time.Time) View {
	v := View{Unread: []Entry{}, InProgress: []Entry{}, Finished: []Entry{}, Sort: ParseSortKey(string(key))}
	for _, b := range books {
		if !f.keep(b, tags[b.ID]) {
			continue
		}
		rec := progressByBook[b.ID]
		e := Entry{Book: b, Progress: rec, Status: progress.StatusOf(b, rec), Tags: tags[b.ID]}
		if rec != nil {
			e.LastRead = humanize.RelTime(rec.UpdatedAt, now, "ago", "from now")
		}
		switch e.Status {
		case models.StatusUnread:
			v.Unread = append(v.Unread, e)
		case models.StatusFinished:
			v.Finished = append(v.Finished, e)
		default:
			v.InProgress = append(v.InProgress, e)
		}
	}

	sortEntries(v.Unread, v.Sort)
	sortEntries(v.Finished, v.Sort)
	sort.SliceStable(v.InProgress, func(i, j int) bool {
		a, b := v.InProgress[i], v.InProgress[j]
		if !a.Progress.UpdatedAt.Equal(b.Progress.UpdatedAt) {
			return a.Progress.UpdatedAt.After(b.Progress.UpdatedAt)
		}
		return a.Book.ID < b.Book.ID
	})
	return v
}

func sortEntries(es []Entry, key SortKey) {
	sort.SliceStable(es, func(i, j int) bool {
		a, b := es[i].Book, es[j].Book
		switch key {
		case SortDateAsc:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		case SortDateDesc:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.ID > b.ID
		default:
			if x, y := strings.ToLower(a.Author), strings.ToLower(b.Author); x != y {
				return x < y
			}
			if x, y := strings.ToLower(a.Title), strings.ToLower(b.Title); x != y {
				return x < y
			}
			return a.ID < b.ID
		}
	})
}

// Source is the data a Service reads.
type Source interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	ListBooks(ctx context.Context, opts store.ListOptions) ([]models.Book, int, error)
	ProgressByUser(ctx context.Context, userID int64) (map[int64]*models.ProgressRecord, error)
	AllBookTags(ctx context.Context) (map[int64][]string, error)
}

// Service builds views from a Source.
type Service struct {
	src Source
	now func() time.Time
}

// NewService creates a Service. A nil now uses time.Now.
func NewService(src Source, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{src: src, now: now}
}

// View returns the catalog of userID. Unknown users yield apperr.ErrNotFound.
func (s *Service) View(ctx context.Context, userID int64, f Filter, key SortKey) (View, error) {
	if _, err := s.src.GetUser(ctx, userID); err != nil {
		return View{}, fmt.Errorf("catalog: %w", err)
	}
	books, _, err := s.src.ListBooks(ctx, store.ListOptions{IncludeHidden: f.Hidden != HiddenExclude})
	if err != nil {
		return View{}, fmt.Errorf("catalog: %w", err)
	}
	recs, err := s.src.ProgressByUser(ctx, userID)
	if err != nil {
		return View{}, fmt.Errorf("catalog: %w", err)
	}
	tags, err := s.src.AllBookTags(ctx)
	if err != nil {
		return View{}, fmt.Errorf("catalog: %w", err)
	}
	return Build(books, recs, tags, f, key, s.now()), nil
}
