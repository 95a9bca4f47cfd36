package notify

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	ierrors "github.com/Aman-CERP/indexgen/internal/errors"
)

// Spool defaults.
const (
	DefaultSettleWindow = 200 * time.Millisecond
	DefaultPollInterval = 5 * time.Second
	spoolSuffix         = ".json"
	failedDir           = "failed"
)

// SpoolOptions configures a SpoolSource.
type SpoolOptions struct {
	// SettleWindow is how long a file must stay quiet before it is read.
	SettleWindow time.Duration

	// PollInterval is the directory rescan interval. Rescans pick up
	// anything fsnotify missed and are the only mechanism when fsnotify
	// cannot be initialised.
	PollInterval time.Duration
}

// WithDefaults returns a copy with zero values replaced by defaults.
func (o SpoolOptions) WithDefaults() SpoolOptions {
	if o.SettleWindow <= 0 {
		o.SettleWindow = DefaultSettleWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}

// SpoolSource watches a directory for *.json Event files. A handled file is
// removed; a file that cannot be decoded or handled moves to failed/.
type SpoolSource struct {
	dir     string
	opts    SpoolOptions
	handler Handler

	mu      sync.Mutex
	pending map[string]time.Time
}

// NewSpoolSource creates the spool directory if needed.
func NewSpoolSource(dir string, h Handler, opts SpoolOptions) (*SpoolSource, error) {
	if dir == "" {
		return nil, ierrors.ConfigError("spool directory is empty", nil)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, ierrors.ConfigError("cannot resolve spool directory", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, failedDir), 0o755); err != nil {
		return nil, ierrors.ConfigError("cannot create spool directory", err).
			WithDetail("dir", abs)
	}
	return &SpoolSource{
		dir:     abs,
		opts:    opts.WithDefaults(),
		handler: h,
		pending: make(map[string]time.Time),
	}, nil
}

// Dir returns the watched directory.
func (s *SpoolSource) Dir() string {
	return s.dir
}

// Run processes existing files, then watches for new ones until ctx is done.
func (s *SpoolSource) Run(ctx context.Context) error {
	s.Drain(ctx)

	var events chan fsnotify.Event
	var errs chan error
	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		err = fsw.Add(s.dir)
	}
	if err != nil {
		slog.Warn("fsnotify unavailable, falling back to polling",
			slog.String("dir", s.dir),
			slog.String("error", err.Error()))
		if fsw != nil {
			_ = fsw.Close()
		}
	} else {
		defer func() { _ = fsw.Close() }()
		events, errs = fsw.Events, fsw.Errors
	}

	poll := time.NewTicker(s.opts.PollInterval)
	defer poll.Stop()
	settle := time.NewTicker(s.opts.SettleWindow / 2)
	defer settle.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				s.mark(ev.Name)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			slog.Warn("spool watcher error", slog.String("error", err.Error()))
		case <-settle.C:
			s.flush(ctx, time.Now())
		case <-poll.C:
			s.Drain(ctx)
		}
	}
}

func (s *SpoolSource) mark(path string) {
	if !isSpoolFile(path) || filepath.Dir(path) != s.dir {
		return
	}
	s.mu.Lock()
	s.pending[path] = time.Now()
	s.mu.Unlock()
}

// flush processes pending files that have been quiet for the settle window.
func (s *SpoolSource) flush(ctx context.Context, now time.Time) {
	s.mu.Lock()
	var ready []string
	for p, seen := range s.pending {
		if now.Sub(seen) >= s.opts.SettleWindow {
			ready = append(ready, p)
			delete(s.pending, p)
		}
	}
	s.mu.Unlock()

	sort.Strings(ready)
	for _, p := range ready {
		s.process(ctx, p)
	}
}

// Drain processes every spool file currently in the directory, in name order.
func (s *SpoolSource) Drain(ctx context.Context) int {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		slog.Warn("cannot list spool directory",
			slog.String("dir", s.dir),
			slog.String("error", err.Error()))
		return 0
	}
	n := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		if e.IsDir() || !isSpoolFile(e.Name()) {
			continue
		}
		if s.process(ctx, filepath.Join(s.dir, e.Name())) {
			n++
		}
	}
	return n
}

func (s *SpoolSource) process(ctx context.Context, path string) bool {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false
	}
	if err != nil {
		slog.Warn("cannot read spool file",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return false
	}

	ev, err := DecodeEvent(data)
	if err == nil {
		err = ev.Dispatch(ctx, s.handler)
	}
	if err != nil {
		attrs := append([]any{slog.String("path", path)}, ierrors.LogAttrs(err)...)
		slog.Error("spool event failed", attrs...)
		s.quarantine(path)
		return false
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("cannot remove spool file",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
	return true
}

func (s *SpoolSource) quarantine(path string) {
	dst := filepath.Join(s.dir, failedDir, filepath.Base(path))
	if err := os.Rename(path, dst); err != nil {
		slog.Warn("cannot move spool file to failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
}

func isSpoolFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasSuffix(base, spoolSuffix) && !strings.HasPrefix(base, ".")
}
