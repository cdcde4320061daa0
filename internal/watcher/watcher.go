// Package watcher reports changes to the config file. It watches the
// containing directory rather than the file itself so that the
// replace-by-rename strategy editors use does not silently detach the
// watch, and debounces bursts of events into a single notification.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mkranta/relink/internal/log"
)

const debounceInterval = 250 * time.Millisecond

// Watcher delivers a signal on Changes after the config file is written,
// created, or renamed into place.
type Watcher struct {
	path    string
	fsw     *fsnotify.Watcher
	changes chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

// New starts watching the directory containing path.
func New(ctx context.Context, path string) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		path:    abs,
		fsw:     fsw,
		changes: make(chan struct{}, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go w.run(ctx)
	log.Debug(log.CatWatcher, "watching config file", "path", abs)
	return w, nil
}

// Changes signals after a debounced change to the watched file. The
// channel has capacity one; a pending signal coalesces with later ones.
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Close stops the watcher and releases the fsnotify handle.
func (w *Watcher) Close() {
	w.cancel()
	<-w.done
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	defer w.fsw.Close()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			log.Trace(log.CatWatcher, "fs event", "op", ev.Op.String(), "name", ev.Name)
			if timer == nil {
				timer = time.NewTimer(debounceInterval)
				fire = timer.C
			} else {
				if !timer.Stop() {
					<-fire
				}
				timer.Reset(debounceInterval)
			}

		case <-fire:
			timer = nil
			fire = nil
			select {
			case w.changes <- struct{}{}:
			default:
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.ErrorErr(log.CatWatcher, "fs watcher error", err)
		}
	}
}

// relevant filters directory events down to mutations of the config
// file itself. Rename and Create cover editors that write a temp file
// and move it over the original.
func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if filepath.Clean(ev.Name) != w.path {
		return false
	}
	return ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename)
}
