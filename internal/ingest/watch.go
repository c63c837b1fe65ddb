package ingest

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchOptions controls the source watcher.
type WatchOptions struct {
	// Locations are source URIs; remote ones are skipped.
	Locations []string
	// Debounce collapses bursts of writes into one refresh request. Defaults to 750ms.
	Debounce time.Duration
	Logger   *log.Logger
}

// Watcher requests a refresh when a file-backed source changes on disk.
type Watcher struct {
	opts    WatchOptions
	trigger func() bool
	targets map[string]bool
	dirs    []string

	requested int
	swallowed int
}

// NewWatcher builds a watcher calling trigger after changes settle.
// trigger returns false when the request was dropped because a cycle is in flight.
func NewWatcher(trigger func() bool, opts WatchOptions) *Watcher {
	if opts.Logger == nil {
		opts.Logger = log.New(log.Writer(), "[ingest-watch] ", log.LstdFlags)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = 750 * time.Millisecond
	}
	w := &Watcher{
		opts:    opts,
		trigger: trigger,
		targets: make(map[string]bool),
	}
	seen := make(map[string]bool)
	for _, loc := range opts.Locations {
		if loc == "" || IsRemote(loc) {
			continue
		}
		p, err := filepath.Abs(LocalPath(loc))
		if err != nil {
			continue
		}
		w.targets[p] = true
		dir := filepath.Dir(p)
		if !seen[dir] {
			seen[dir] = true
			w.dirs = append(w.dirs, dir)
		}
	}
	sort.Strings(w.dirs)
	return w
}

// Enabled reports whether any source is file-backed.
func (w *Watcher) Enabled() bool { return len(w.targets) > 0 }

// Run watches until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.Enabled() {
		w.opts.Logger.Printf("No file-backed sources; watcher idle")
		<-ctx.Done()
		return ctx.Err()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer fw.Close()

	for _, dir := range w.dirs {
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("watch add %s: %w", dir, err)
		}
	}
	w.opts.Logger.Printf("Watching %d source file(s) in: %s", len(w.targets), strings.Join(w.dirs, ","))

	// nil until a relevant change arrives; each change re-arms it.
	var settle <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			w.opts.Logger.Printf("Watch stopping: requested=%d swallowed=%d", w.requested, w.swallowed)
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			settle = time.After(w.opts.Debounce)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			if err != nil {
				w.opts.Logger.Printf("watch error: %v", err)
			}
		case <-settle:
			settle = nil
			w.requested++
			if !w.trigger() {
				w.swallowed++
			}
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return false
	}
	p, err := filepath.Abs(ev.Name)
	if err != nil {
		return false
	}
	return w.targets[p]
}
