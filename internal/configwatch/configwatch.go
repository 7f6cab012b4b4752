// Package configwatch hot-reloads chorus.json: a project registry edited by
// hand (or by another chorusctl invocation) while a long-running command
// such as "config watch" is observing it.
package configwatch

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kestrelhq/chorus/internal/config"
)

// debounce absorbs the burst of events a single save produces (most
// editors write-then-rename, firing Write and Create back to back).
const debounce = 250 * time.Millisecond

// Watcher reloads a chorus.json file on change and reports the result.
type Watcher struct {
	path     string
	fsw      *fsnotify.Watcher
	logger   *slog.Logger
	onReload func(cfg *config.Config, err error)
	stop     chan struct{}
	done     chan struct{}
}

// New starts watching path's containing directory for changes to path
// itself (watching the directory, not the file, survives editors that
// replace the file instead of writing in place). onReload fires once per
// debounced burst of changes, after LoadFromFile and Validate have both
// run; err is non-nil if either failed, in which case cfg is nil.
func New(path string, logger *slog.Logger, onReload func(cfg *config.Config, err error)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	w := &Watcher{
		path:     path,
		fsw:      fsw,
		logger:   logger,
		onReload: onReload,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Close stops the watcher and releases its underlying file descriptor.
func (w *Watcher) Close() error {
	close(w.stop)
	<-w.done
	return w.fsw.Close()
}

func (w *Watcher) run() {
	defer close(w.done)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.stop:
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !(ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create)) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				if !timer.Stop() {
					<-drainIfReady(timer)
				}
				timer.Reset(debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Error("config watcher error", "error", err)
			}
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := config.LoadFromFile(w.path)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		cfg = nil
	}
	if w.onReload != nil {
		w.onReload(cfg, err)
	}
}

// drainIfReady returns a channel that already has the timer's fired value
// queued, if any, so a stopped-but-fired timer doesn't leak a stale tick.
func drainIfReady(t *time.Timer) <-chan time.Time {
	select {
	case v := <-t.C:
		ch := make(chan time.Time, 1)
		ch <- v
		return ch
	default:
		ch := make(chan time.Time)
		close(ch)
		return ch
	}
}
