// Package watch turns a directory of precomputed block files into a
// live stream of blockfile.Path values, feeding the Watching state
// after cold-start discovery has caught the indexer up to the tip of
// an existing archive.
package watch

import (
	"github.com/fsnotify/fsnotify"

	"github.com/mina-witness/indexer/internal/blockfile"
	"github.com/mina-witness/indexer/internal/obslog"
)

// Watcher emits a blockfile.Path for every file created in a watched
// directory that parses as a valid block filename. Rename events are
// treated the same as creates and write events are ignored: precomputed
// block files are written once and never modified in place, but some
// producers stage a file under a temp name and rename it into place on
// completion.
type Watcher struct {
	fsw  *fsnotify.Watcher
	out  chan blockfile.Path
	quit chan struct{}
}

// New starts watching dir and returns a Watcher whose Paths channel
// receives every recognised block file already watch-visible from
// this point forward. Callers that need the files already on disk at
// startup should run discovery separately before consuming Paths.
func New(dir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		fsw:  fsw,
		out:  make(chan blockfile.Path, 256),
		quit: make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Paths is the stream of newly observed block files.
func (w *Watcher) Paths() <-chan blockfile.Path {
	return w.out
}

// Close stops the watcher and closes Paths.
func (w *Watcher) Close() error {
	close(w.quit)
	return w.fsw.Close()
}

func (w *Watcher) loop() {
	log := obslog.For("watch")
	defer close(w.out)

	for {
		select {
		case <-w.quit:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			p, ok := blockfile.NewPath(ev.Name)
			if !ok {
				continue
			}
			select {
			case w.out <- p:
			case <-w.quit:
				return
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warnw("watch error", "error", err)
		}
	}
}
