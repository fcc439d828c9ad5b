package dsync

import (
	"context"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/docsync/docsync/catalog"
)

// watcher watches the source roots
// and every directory holding a candidate.
type watcher struct {
	w       *fsnotify.Watcher
	watched map[string]bool
}

func newWatcher() (*watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "creating fsnotify watcher")
	}
	return &watcher{w: w, watched: make(map[string]bool)}, nil
}

// update makes the watched set match the latest scan.
func (w *watcher) update(roots []*catalog.Root, files []*catalog.File) {
	want := make(map[string]bool)
	for _, r := range roots {
		want[r.Path] = true
	}
	for _, f := range files {
		want[filepath.Dir(f.Path())] = true
	}

	for dir := range w.watched {
		if !want[dir] {
			w.w.Remove(dir)
			delete(w.watched, dir)
		}
	}
	for dir := range want {
		if w.watched[dir] {
			continue
		}
		if err := w.w.Add(dir); err != nil {
			log.Printf("WARNING cannot watch %s: %s", dir, err)
			continue
		}
		w.watched[dir] = true
	}
}

// run calls wake for every change event until ctx is canceled,
// then closes the watcher.
func (w *watcher) run(ctx context.Context, wake func()) {
	defer w.w.Close()

	for {
		select {
		case <-ctx.Done():
			log.Print("context canceled, exiting filesystem watcher")
			return

		case ev, ok := <-w.w.Events:
			if !ok {
				log.Print("file-events channel closed, exiting filesystem watcher")
				return
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if catalog.Excluded(filepath.Base(ev.Name)) {
				continue
			}
			wake()

		case err, ok := <-w.w.Errors:
			if !ok {
				return
			}
			log.Printf("ERROR from filesystem watcher: %s", err)
		}
	}
}
