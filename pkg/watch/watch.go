// Package watch reports problem directories appearing in and disappearing
// from a base directory.
//
// Directories under construction carry the ".new" suffix and are ignored,
// so the rename that publishes a problem is reported as its creation.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/marmos91/probdir/internal/logger"
	"github.com/marmos91/probdir/pkg/dumpdir"
)

// Kind is the type of an Event.
type Kind int

const (
	Created Kind = iota + 1
	Removed
)

func (k Kind) String() string {
	switch k {
	case Created:
		return "created"
	case Removed:
		return "removed"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Event describes one published or removed problem directory.
type Event struct {
	Kind Kind
	Path string
	Time time.Time
}

// Options controls Watch.
type Options struct {
	// Debounce drops an event identical to the previous one for the same
	// directory when it arrives within this interval.
	Debounce time.Duration
}

// Watcher reports events under one base directory.
type Watcher struct {
	base string
	opts Options
	fw   *fsnotify.Watcher
}

// New starts watching base. Events are delivered by Run.
func New(base string, opts Options) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(base); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", base, err)
	}
	logger.Debug("watching problem directories", logger.Dir(base))
	return &Watcher{base: base, opts: opts, fw: fw}, nil
}

// Close stops the watch. A running Run returns.
func (w *Watcher) Close() error {
	return w.fw.Close()
}

// Run passes events to handle until ctx is done or the watcher is closed.
// handle runs on the calling goroutine.
func (w *Watcher) Run(ctx context.Context, handle func(Event)) error {
	last := make(map[string]Event)
	for {
		select {
		case <-ctx.Done():
			return nil

		case fe, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			ev, ok := translate(fe)
			if !ok {
				continue
			}
			if prev, seen := last[ev.Path]; seen && prev.Kind == ev.Kind && ev.Time.Sub(prev.Time) < w.opts.Debounce {
				continue
			}
			last[ev.Path] = ev
			handle(ev)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			// queue overflow loses events but the watch itself survives
			logger.Warn("watcher error", logger.Dir(w.base), logger.Err(err))
		}
	}
}

// Watch is New followed by Run.
func Watch(ctx context.Context, base string, opts Options, handle func(Event)) error {
	w, err := New(base, opts)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()
	return w.Run(ctx, handle)
}

// translate maps a filesystem event to a problem directory event.
func translate(fe fsnotify.Event) (Event, bool) {
	name := filepath.Base(fe.Name)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, dumpdir.NewSuffix) {
		return Event{}, false
	}

	ev := Event{Path: fe.Name, Time: time.Now()}
	switch {
	case fe.Has(fsnotify.Create):
		st, err := os.Lstat(fe.Name)
		if err != nil || !st.IsDir() {
			return Event{}, false
		}
		ev.Kind = Created
	case fe.Has(fsnotify.Remove), fe.Has(fsnotify.Rename):
		ev.Kind = Removed
	default:
		return Event{}, false
	}
	return ev, true
}
