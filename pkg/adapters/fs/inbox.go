// Package fs implements an inbox: a directory peers drop operation logs into.
package fs

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"

	"github.com/aretw0/concord/pkg/core"
	"github.com/aretw0/concord/pkg/oplog"
)

// DefaultDebounce is how long a file must stay quiet before it is read.
const DefaultDebounce = 50 * time.Millisecond

// Batch is the content of one log file.
type Batch struct {
	File       string
	Operations []core.Operation
}

// Handler consumes the batches read from the inbox.
type Handler func(ctx context.Context, b Batch) error

type options struct {
	logger       *slog.Logger
	errorHandler func(error)
	debounce     time.Duration
	pattern      string
}

// Option configures an Inbox.
type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithErrorHandler receives the errors that do not stop the inbox, such as an
// unreadable log file.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) { o.errorHandler = fn }
}

func WithDebounce(d time.Duration) Option {
	return func(o *options) { o.debounce = d }
}

// WithPattern restricts the inbox to file names matching a doublestar
// pattern, such as "alice-*.ndjson".
func WithPattern(pattern string) Option {
	return func(o *options) { o.pattern = pattern }
}

// Inbox reads operation logs from a directory.
type Inbox struct {
	Dir string

	logger       *slog.Logger
	errorHandler func(error)
	debounce     time.Duration
	pattern      string
	cache        *cache

	mu            sync.RWMutex
	watcherActive bool
	lastDrain     *time.Time
}

// NewInbox creates an inbox over dir. The directory must exist.
func NewInbox(dir string, opts ...Option) (*Inbox, error) {
	o := options{debounce: DefaultDebounce, pattern: "*"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}
	if !doublestar.ValidatePattern(o.pattern) {
		return nil, errors.Wrapf(doublestar.ErrBadPattern, "inbox pattern %q", o.pattern)
	}

	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrap(err, "inbox")
	}
	if !info.IsDir() {
		return nil, errors.Errorf("inbox %s is not a directory", dir)
	}

	return &Inbox{
		Dir:          dir,
		logger:       o.logger,
		errorHandler: o.errorHandler,
		debounce:     o.debounce,
		pattern:      o.pattern,
		cache:        newCache(),
	}, nil
}

// accepts reports whether a file name belongs to the inbox.
func (in *Inbox) accepts(name string) bool {
	if !oplog.IsLogFile(name) {
		return false
	}
	ok, _ := doublestar.Match(in.pattern, filepath.Base(name))
	return ok
}

// Drain reads every log file that is new or changed since it was last read,
// in file name order. Files that cannot be read are reported to the error
// handler and skipped.
func (in *Inbox) Drain(ctx context.Context) ([]Batch, error) {
	entries, err := os.ReadDir(in.Dir)
	if err != nil {
		return nil, errors.Wrap(err, "read inbox")
	}

	var names []string
	keep := make(map[string]bool)
	for _, e := range entries {
		if e.IsDir() || !in.accepts(e.Name()) {
			continue
		}
		names = append(names, e.Name())
		keep[e.Name()] = true
	}
	sort.Strings(names)
	in.cache.Prune(keep)

	var batches []Batch
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return batches, err
		}
		b, ok := in.read(ctx, name)
		if ok {
			batches = append(batches, b)
		}
	}

	now := time.Now()
	in.mu.Lock()
	in.lastDrain = &now
	in.mu.Unlock()
	return batches, nil
}

// read loads one file unless the cache says it is unchanged.
func (in *Inbox) read(ctx context.Context, name string) (Batch, bool) {
	path := filepath.Join(in.Dir, name)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			in.cache.Delete(name)
			return Batch{}, false
		}
		in.report(ctx, errors.Wrapf(err, "stat %s", name))
		return Batch{}, false
	}
	if in.cache.Fresh(name, info.ModTime(), info.Size()) {
		return Batch{}, false
	}

	ops, err := oplog.ReadFile(path)
	in.cache.Set(name, indexEntry{LastModified: info.ModTime(), Size: info.Size(), Operations: len(ops)})
	if err != nil {
		in.report(ctx, err)
		return Batch{}, false
	}
	in.logger.DebugContext(ctx, "inbox file read", "file", name, "operations", len(ops))
	return Batch{File: name, Operations: ops}, true
}

func (in *Inbox) report(ctx context.Context, err error) {
	in.logger.WarnContext(ctx, "inbox file skipped", "error", err)
	if in.errorHandler != nil {
		in.errorHandler(err)
	}
}

// Watch drains the inbox, then hands every file that appears or changes to
// handler until ctx is cancelled.
func (in *Inbox) Watch(ctx context.Context, handler Handler) error {
	w := newWatchWorker(in, handler)
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return w.Stop(stopCtx)
}

func (in *Inbox) setWatcherActive(active bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.watcherActive = active
}
