package ingest

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/catread/internal/storage"
)

// DefaultDebounce is the quiet period after a file event before a run starts.
const DefaultDebounce = 2 * time.Second

// SchedulerConfig controls when the Scheduler runs the ingestor.
type SchedulerConfig struct {
	Interval time.Duration // periodic runs; 0 disables
	Watch    bool          // run after fsnotify events in the library root
	Debounce time.Duration
}

// Scheduler runs an Ingestor on start, on a ticker, and after file events.
type Scheduler struct {
	ingestor *Ingestor
	root     string
	cfg      SchedulerConfig
	logger   *slog.Logger
}

// NewScheduler creates a Scheduler for ing watching the given library root.
func NewScheduler(ing *Ingestor, root string, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	return &Scheduler{ingestor: ing, root: root, cfg: cfg, logger: logger}
}

// Run blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	var (
		tick   <-chan time.Time
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if s.cfg.Interval > 0 {
		t := time.NewTicker(s.cfg.Interval)
		defer t.Stop()
		tick = t.C
	}
	if s.cfg.Watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		defer w.Close()
		if err := w.Add(s.root); err != nil {
			return err
		}
		events, errs = w.Events, w.Errors
	}

	s.logger.Info("scheduler: started",
		slog.String("root", s.root),
		slog.Duration("interval", s.cfg.Interval),
		slog.Bool("watch", s.cfg.Watch))
	s.run(ctx, "start")

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time
	schedule := func() {
		if debounceTimer == nil {
			debounceTimer = time.NewTimer(s.cfg.Debounce)
			debounceCh = debounceTimer.C
		} else {
			debounceTimer.Reset(s.cfg.Debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			s.logger.Info("scheduler: stopped")
			return nil

		case <-tick:
			s.run(ctx, "interval")

		case <-debounceCh:
			s.run(ctx, "watch")

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if !storage.HasExt(filepath.Base(ev.Name), s.ingestor.Extensions()...) {
				continue
			}
			s.logger.Debug("scheduler: file event", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			schedule()

		case err, ok := <-errs:
			if !ok {
				return nil
			}
			s.logger.Error("scheduler: watch error", slog.String("error", err.Error()))
		}
	}
}

func (s *Scheduler) run(ctx context.Context, trigger string) {
	n, err := s.ingestor.Ingest(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Warn("scheduler: ingest failed", slog.String("trigger", trigger), slog.String("error", err.Error()))
		}
		return
	}
	if n > 0 {
		s.logger.Info("scheduler: ingested", slog.String("trigger", trigger), slog.Int("added", n))
	}
}
