// Package ingest turns container files in the library directory into stored
// books with sanitized chapters.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/starford/catread/internal/apperr"
	"github.com/starford/catread/internal/epub"
	"github.com/starford/catread/internal/models"
	"github.com/starford/catread/internal/sanitize"
	"github.com/starford/catread/internal/storage"
)

// ErrInvalidFilename is returned by IngestFile for names that cannot denote a
// library file.
var ErrInvalidFilename = errors.New("ingest: invalid filename")

// Defaults applied by NewIngestor.
const (
	DefaultFileTimeout = 2 * time.Minute
	DefaultExtension   = ".epub"
)

// BookStore is the persistence the ingestor needs.
type BookStore interface {
	KnownFilenames(ctx context.Context) (map[string]struct{}, error)
	CreateBook(ctx context.Context, b models.Book, chapters []models.Chapter) (*models.Book, error)
	GetBookByFilename(ctx context.Context, filename string) (*models.Book, error)
}

// Ingestor loads new container files from a library into a BookStore.
type Ingestor struct {
	store       BookStore
	library     storage.Provider
	sanitizer   *sanitize.Sanitizer
	logger      *slog.Logger
	exts        []string
	fileTimeout time.Duration
	onAdded     func(models.Book)

	group singleflight.Group

	mu  sync.Mutex
	run *libraryRun
}

// libraryRun is one pass over the library shared by overlapping Ingest
// calls. Its context does not follow any single caller and is cancelled when
// the last caller leaves.
type libraryRun struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// fileResult carries the book produced under a per-file key and the token of
// the caller whose function produced it.
type fileResult struct {
	book  *models.Book
	owner *byte
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithExtensions sets the recognized file extensions (case-insensitive).
func WithExtensions(exts ...string) Option {
	return func(i *Ingestor) {
		if len(exts) > 0 {
			i.exts = exts
		}
	}
}

// WithFileTimeout bounds the time spent on a single file.
func WithFileTimeout(d time.Duration) Option {
	return func(i *Ingestor) {
		if d > 0 {
			i.fileTimeout = d
		}
	}
}

// WithOnAdded registers a callback invoked after each committed book.
func WithOnAdded(fn func(models.Book)) Option {
	return func(i *Ingestor) { i.onAdded = fn }
}

// NewIngestor creates an Ingestor.
func NewIngestor(store BookStore, library storage.Provider, sanitizer *sanitize.Sanitizer, logger *slog.Logger, opts ...Option) *Ingestor {
	i := &Ingestor{
		store:       store,
		library:     library,
		sanitizer:   sanitizer,
		logger:      logger,
		exts:        []string{DefaultExtension},
		fileTimeout: DefaultFileTimeout,
	}
	for _, o := range opts {
		o(i)
	}
	return i
}

// Extensions returns the recognized file extensions.
func (i *Ingestor) Extensions() []string { return i.exts }

// Ingest adds every library file whose filename is not yet stored and
// returns the number of books added. Unreadable or malformed files are logged
// and skipped. Overlapping calls share one run; a caller whose ctx ends while
// others still wait returns ctx.Err() and leaves the run going. The last
// caller to leave stops the run after the current file and gets the count so
// far with ctx.Err().
func (i *Ingestor) Ingest(ctx context.Context) (int, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		r := i.joinRun(ctx)
		ch := i.group.DoChan("library", func() (any, error) {
			return i.ingestAll(r.ctx)
		})
		select {
		case res := <-ch:
			i.leaveRun(r)
			if errors.Is(res.Err, context.Canceled) && ctx.Err() == nil {
				// Joined a run its own callers had abandoned.
				continue
			}
			n, _ := res.Val.(int)
			return n, res.Err
		case <-ctx.Done():
			if !i.leaveRun(r) {
				return 0, ctx.Err()
			}
			res := <-ch
			n, _ := res.Val.(int)
			return n, ctx.Err()
		}
	}
}

func (i *Ingestor) joinRun(ctx context.Context) *libraryRun {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.run == nil || i.run.ctx.Err() != nil {
		rctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		i.run = &libraryRun{ctx: rctx, cancel: cancel}
	}
	i.run.waiters++
	return i.run
}

// leaveRun reports whether r has no callers left, in which case it is
// cancelled.
func (i *Ingestor) leaveRun(r *libraryRun) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	r.waiters--
	if r.waiters > 0 {
		return false
	}
	r.cancel()
	if i.run == r {
		i.run = nil
	}
	return true
}

// ingestShared runs fn under the per-file key so a library pass and
// IngestFile never process the same file at once. own reports whether this
// caller's fn produced the result.
func (i *Ingestor) ingestShared(name string, fn func() (*models.Book, error)) (book *models.Book, own bool, err error) {
	token := new(byte)
	v, err, _ := i.group.Do("file:"+name, func() (any, error) {
		b, err := fn()
		return fileResult{book: b, owner: token}, err
	})
	res, _ := v.(fileResult)
	return res.book, res.owner == token, err
}

func (i *Ingestor) ingestAll(ctx context.Context) (int, error) {
	logger := i.logger.With(slog.String("run", uuid.NewString()))
	start := time.Now()

	known, err := i.store.KnownFilenames(ctx)
	if err != nil {
		return 0, fmt.Errorf("ingest: known filenames: %w", err)
	}
	files, err := i.library.List(i.exts...)
	if err != nil {
		return 0, fmt.Errorf("ingest: list library: %w", err)
	}

	var added, skipped, failed int
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			logger.Info("ingest: cancelled", slog.Int("added", added))
			return added, err
		}
		if _, ok := known[f.Name]; ok {
			continue
		}
		_, own, err := i.ingestShared(f.Name, func() (*models.Book, error) {
			return i.ingestOne(ctx, logger, f.Name)
		})
		switch {
		case err == nil && own:
			added++
		case err == nil, errors.Is(err, apperr.ErrAlreadyExists):
			skipped++
			logger.Debug("ingest: already present", slog.String("file", f.Name))
		default:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return added, ctxErr
			}
			failed++
			logger.Warn("ingest: skipped file", slog.String("file", f.Name), slog.String("error", err.Error()))
		}
	}

	logger.Info("ingest: done",
		slog.Int("added", added),
		slog.Int("skipped", skipped),
		slog.Int("failed", failed),
		slog.Duration("took", time.Since(start)))
	return added, nil
}

// IngestFile adds one named library file.
func (i *Ingestor) IngestFile(ctx context.Context, filename string) (*models.Book, error) {
	name := strings.TrimSpace(filename)
	if name == "" || !storage.HasExt(name, i.exts...) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
	}
	b, _, err := i.ingestShared(name, func() (*models.Book, error) {
		if _, err := i.library.Stat(name); err != nil {
			switch {
			case errors.Is(err, storage.ErrInvalidName):
				return nil, fmt.Errorf("%w: %q", ErrInvalidFilename, filename)
			case errors.Is(err, os.ErrNotExist):
				return nil, fmt.Errorf("ingest: %s: %w", name, apperr.ErrNotFound)
			default:
				return nil, fmt.Errorf("ingest: %w", err)
			}
		}
		known, err := i.store.KnownFilenames(ctx)
		if err != nil {
			return nil, fmt.Errorf("ingest: known filenames: %w", err)
		}
		if _, ok := known[name]; ok {
			return nil, fmt.Errorf("ingest: %s: %w", name, apperr.ErrAlreadyExists)
		}
		return i.ingestOne(ctx, i.logger, name)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// IngestUploaded is IngestFile for a file the caller has just written. A
// scan triggered by the write may store it first; that book is returned
// instead of apperr.ErrAlreadyExists.
func (i *Ingestor) IngestUploaded(ctx context.Context, filename string) (*models.Book, error) {
	b, err := i.IngestFile(ctx, filename)
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		return b, err
	}
	b, err = i.store.GetBookByFilename(ctx, strings.TrimSpace(filename))
	if err != nil {
		return nil, fmt.Errorf("ingest: uploaded %s: %w", filename, err)
	}
	return b, nil
}

// ingestOne extracts, sanitizes and stores a single file under the per-file
// timeout. A started file is finished even if ctx is cancelled; callers stop
// between files.
func (i *Ingestor) ingestOne(ctx context.Context, logger *slog.Logger, name string) (*models.Book, error) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.fileTimeout)
	defer cancel()

	data, err := i.library.Read(name)
	if err != nil {
		return nil, &epub.ExtractionError{Path: name, Op: "read", Err: err}
	}
	c, err := epub.Extract(fctx, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		var ee *epub.ExtractionError
		if errors.As(err, &ee) {
			ee.Path = name
		}
		return nil, err
	}

	chapters := make([]models.Chapter, 0, len(c.Documents))
	for idx, doc := range c.Documents {
		if err := fctx.Err(); err != nil {
			return nil, &epub.ExtractionError{Path: name, Op: "sanitize", Err: err}
		}
		res := i.sanitizer.Sanitize(doc.Content)
		if res.Lossy {
			logger.Warn("ingest: chapter is not valid text, sanitized raw bytes",
				slog.String("file", name),
				slog.String("document", doc.Href))
		}
		chapters = append(chapters, models.Chapter{
			Index:   idx,
			Title:   models.ChapterTitle(idx),
			Content: res.Content,
		})
	}

	book, err := i.store.CreateBook(fctx, models.Book{
		Filename: name,
		Title:    c.Title,
		Author:   c.Author,
	}, chapters)
	if err != nil {
		return nil, fmt.Errorf("ingest: store %s: %w", name, err)
	}

	logger.Info("ingest: added book",
		slog.String("file", name),
		slog.Int64("id", book.ID),
		slog.String("title", book.Title),
		slog.Int("chapters", book.ChapterCount))
	if i.onAdded != nil {
		i.onAdded(*book)
	}
	return book, nil
}
