package fs

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"sort"
	"time"

	"github.com/aretw0/lifecycle/pkg/core/worker"
	"github.com/fsnotify/fsnotify"
)

type watchWorker struct {
	*worker.BaseWorker
	inbox     *Inbox
	handler   Handler
	watcher   *fsnotify.Watcher
	debouncer *debouncer
	cancel    context.CancelFunc
}

func newWatchWorker(inbox *Inbox, handler Handler) *watchWorker {
	return &watchWorker{
		BaseWorker: worker.NewBaseWorker("inbox-watcher"),
		inbox:      inbox,
		handler:    handler,
	}
}

func (w *watchWorker) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	status := w.State().Status
	if status != worker.StatusCreated && status != worker.StatusPending {
		return fmt.Errorf("watcher already started (status: %s)", status)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(w.inbox.Dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", w.inbox.Dir, err)
	}

	w.watcher = watcher
	w.debouncer = newDebouncer(w.inbox.debounce)
	w.inbox.setWatcherActive(true)

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.SetStatus(worker.StatusRunning)
	return w.StartFunc(runCtx, w.run)
}

func (w *watchWorker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.StopRequested = true
		w.cancel()
	}

	return w.BaseWorker.Stop(ctx)
}

func (w *watchWorker) State() worker.State {
	return w.ExportState(func(s *worker.State) {
		s.Metadata = map[string]string{
			worker.MetadataType: string(worker.TypeGoroutine),
		}
	})
}

// dispatch hands a batch to the handler. Handler failures are reported and
// do not stop the watcher.
func (w *watchWorker) dispatch(ctx context.Context, b Batch) {
	if err := w.handler(ctx, b); err != nil {
		w.inbox.report(ctx, fmt.Errorf("handle %s: %w", b.File, err))
	}
}

// processFilesystemEvent schedules a read of the file behind a relevant event.
func (w *watchWorker) processFilesystemEvent(ctx context.Context, event fsnotify.Event) {
	w.inbox.logger.DebugContext(ctx, "event received", "name", event.Name, "op", event.Op.String())

	name := filepath.Base(event.Name)
	if !w.inbox.accepts(name) {
		return
	}
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		w.inbox.cache.Delete(name)
		return
	}
	if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
		w.debouncer.add(name, time.Now())
	}
}

func (w *watchWorker) flush(ctx context.Context) {
	for _, name := range w.debouncer.due(time.Now()) {
		if b, ok := w.inbox.read(ctx, name); ok {
			w.dispatch(ctx, b)
		}
	}
}

// handleWatcherError processes errors from the fsnotify watcher.
func (w *watchWorker) handleWatcherError(ctx context.Context, err error) {
	w.inbox.logger.ErrorContext(ctx, "fsnotify error", "error", err)
	if w.inbox.errorHandler != nil {
		w.inbox.errorHandler(err)
	}
}

// run is the main event loop for the watcher worker.
func (w *watchWorker) run(ctx context.Context) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("watcher panic: %v", recovered)
			if w.inbox.logger.Enabled(ctx, slog.LevelDebug) {
				w.inbox.logger.Error("watcher panic", "error", err, "stack", string(debug.Stack()))
			} else {
				w.inbox.logger.Error("watcher panic", "error", err)
			}
		}
	}()
	defer w.inbox.setWatcherActive(false)
	defer w.watcher.Close()
	defer w.debouncer.stop()

	batches, err := w.inbox.Drain(ctx)
	if err != nil && ctx.Err() == nil {
		w.inbox.report(ctx, err)
	}
	for _, b := range batches {
		w.dispatch(ctx, b)
	}

	return w.mainEventLoop(ctx)
}

func (w *watchWorker) mainEventLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-w.debouncer.C():
			w.flush(ctx)

		case event, ok := <-w.watcher.Events:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher events channel closed")
			}
			w.processFilesystemEvent(ctx, event)

		case wErr, ok := <-w.watcher.Errors:
			if !ok {
				if w.StopRequested || ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("watcher errors channel closed")
			}
			w.handleWatcherError(ctx, wErr)
		}
	}
}

// debouncer delays reads until a file has been quiet for delay. It is owned by
// the event loop goroutine and needs no locking.
type debouncer struct {
	delay   time.Duration
	pending map[string]time.Time
	timer   *time.Timer
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{delay: delay, pending: make(map[string]time.Time)}
}

func (d *debouncer) add(name string, now time.Time) {
	d.pending[name] = now.Add(d.delay)
	d.arm(now)
}

// C fires when the earliest pending file is due. It is nil when nothing is
// pending, which blocks forever in a select.
func (d *debouncer) C() <-chan time.Time {
	if d.timer == nil || len(d.pending) == 0 {
		return nil
	}
	return d.timer.C
}

// due removes and returns the files whose quiet period is over, sorted.
func (d *debouncer) due(now time.Time) []string {
	var names []string
	for name, at := range d.pending {
		if !at.After(now) {
			names = append(names, name)
			delete(d.pending, name)
		}
	}
	sort.Strings(names)
	d.arm(now)
	return names
}

func (d *debouncer) arm(now time.Time) {
	if len(d.pending) == 0 {
		return
	}
	var next time.Time
	for _, at := range d.pending {
		if next.IsZero() || at.Before(next) {
			next = at
		}
	}
	wait := next.Sub(now)
	if wait < 0 {
		wait = 0
	}
	if d.timer == nil {
		d.timer = time.NewTimer(wait)
		return
	}
	d.timer.Reset(wait)
}

func (d *debouncer) stop() {
	if d.timer != nil {
		d.timer.Stop()
	}
}
