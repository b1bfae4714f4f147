// Package watch observes a drop directory for new session summary files and
// emits advisory events. Events are best-effort: when the buffer is full the
// newest event is dropped and counted rather than blocking the watcher.
package watch

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event is one advisory file notification.
type Event struct {
	Path string    `json:"path"`
	Op   string    `json:"op"`
	At   time.Time `json:"at"`
}

// Watcher wraps an fsnotify watcher with a bounded event channel.
type Watcher struct {
	fs      *fsnotify.Watcher
	events  chan Event
	dropped atomic.Int64
	done    chan struct{}
}

// New starts watching dir. buffer bounds how many undelivered events are
// held before new ones get dropped.
func New(dir string, buffer int) (*Watcher, error) {
	if buffer <= 0 {
		buffer = 64
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fs.Add(dir); err != nil {
		fs.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &Watcher{
		fs:     fs,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Events returns the advisory event channel. The channel closes when the
// watcher is closed.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Dropped reports how many events were discarded due to a full buffer.
func (w *Watcher) Dropped() int64 {
	return w.dropped.Load()
}

// Close stops the watcher and closes the event channel.
func (w *Watcher) Close() error {
	err := w.fs.Close()
	<-w.done
	return err
}

func (w *Watcher) loop() {
	defer close(w.done)
	defer close(w.events)
	for {
		select {
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			e := Event{Path: ev.Name, Op: ev.Op.String(), At: time.Now()}
			select {
			case w.events <- e:
			default:
				// Buffer full: advisory events may be lost.
				w.dropped.Add(1)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Printf("[watch] error: %v", err)
		}
	}
}
