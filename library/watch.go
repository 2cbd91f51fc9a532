package library

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

type EventKind uint8

const (
	EventIndexed EventKind = iota
	EventRemoved
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventRemoved:
		return "removed"
	case EventFailed:
		return "failed"
	}
	return "indexed"
}

// Event reports what Watch did about one file change.
type Event struct {
	Kind  EventKind
	Path  string
	Entry *Entry
	Err   error
}

// PanicError carries a panic out of the watch loop.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v\n\n%s", e.Value, e.Stack)
}

func recoverTo(err *error) {
	if r := recover(); r != nil {
		buf := make([]byte, 64<<10)
		buf = buf[:runtime.Stack(buf, false)]
		*err = &PanicError{Value: r, Stack: buf}
	}
}

// Watch keeps the catalog in sync with dir until ctx is done: created or
// written charts are re-indexed, removed or renamed ones are dropped. notify,
// if set, sees every event. A panic in notify ends Watch with a
// *PanicError.
func (l *Library) Watch(ctx context.Context, dir string, notify func(Event)) (err error) {
	defer recoverTo(&err)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	defer w.Close()

	if err := addTree(w, dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	l.log.WithField("dir", dir).Info("watching for chart changes")

	emit := func(ev Event) {
		if notify != nil {
			notify(ev)
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.log.WithError(werr).Warn("watcher error")
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			l.handle(ctx, w, ev, emit)
		}
	}
}

func (l *Library) handle(ctx context.Context, w *fsnotify.Watcher, ev fsnotify.Event, emit func(Event)) {
	log := l.log.WithFields(logrus.Fields{"path": ev.Name, "op": ev.Op.String()})

	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		if !isChart(ev.Name) {
			return
		}
		err := l.Remove(ctx, ev.Name)
		if errors.Is(err, ErrNotFound) {
			return
		}
		if err != nil {
			log.WithError(err).Warn("remove failed")
			emit(Event{Kind: EventFailed, Path: ev.Name, Err: err})
			return
		}
		emit(Event{Kind: EventRemoved, Path: ev.Name})

	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := addTree(w, ev.Name); err != nil {
				log.WithError(err).Warn("cannot watch new directory")
			}
			return
		}
		if !isChart(ev.Name) {
			return
		}
		e, err := l.Index(ctx, ev.Name)
		if err != nil {
			log.WithError(err).Warn("index failed")
			emit(Event{Kind: EventFailed, Path: ev.Name, Err: err})
			return
		}
		emit(Event{Kind: EventIndexed, Path: ev.Name, Entry: e})
	}
}

// addTree watches dir and every directory below it.
func addTree(w *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
