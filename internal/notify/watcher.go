// Package notify watches a chunk directory and reports chunk files that
// appear, change or disappear, so cached copies can be dropped.
package notify

import (
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/scrypster/orderscope/internal/logger"
	"github.com/scrypster/orderscope/internal/remote"
)

// ChangeKind classifies a chunk file change.
type ChangeKind int

const (
	ChunkCreated ChangeKind = iota
	ChunkModified
	ChunkRemoved
)

func (k ChangeKind) String() string {
	switch k {
	case ChunkCreated:
		return "created"
	case ChunkModified:
		return "modified"
	default:
		return "removed"
	}
}

// ChunkEvent reports a change to chunk Index.
type ChunkEvent struct {
	Index int
	Kind  ChangeKind
}

// ChunkWatcher watches a directory of chunk_N.json files.
type ChunkWatcher struct {
	dir      string
	callback func(ChunkEvent)
	log      *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewChunkWatcher creates a watcher for dir. callback runs on the watcher
// goroutine, one event at a time.
func NewChunkWatcher(dir string, callback func(ChunkEvent), log *slog.Logger) *ChunkWatcher {
	return &ChunkWatcher{
		dir:      dir,
		callback: callback,
		log:      logger.OrDefault(log),
		done:     make(chan struct{}),
	}
}

// Start begins watching, creating the directory if needed. Call Stop to
// clean up.
func (cw *ChunkWatcher) Start() error {
	if err := os.MkdirAll(cw.dir, 0o755); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(cw.dir); err != nil {
		_ = w.Close()
		return err
	}

	cw.mu.Lock()
	cw.watcher = w
	cw.mu.Unlock()

	go cw.loop(w)
	cw.log.Info("watching chunk directory", "dir", cw.dir)
	return nil
}

// Stop shuts down the watcher and waits for the loop to exit. It is a
// no-op when Start never succeeded.
func (cw *ChunkWatcher) Stop() {
	cw.mu.Lock()
	w := cw.watcher
	cw.watcher = nil
	cw.mu.Unlock()
	if w == nil {
		return
	}
	_ = w.Close()
	<-cw.done
}

func (cw *ChunkWatcher) loop(w *fsnotify.Watcher) {
	defer close(cw.done)
	for {
		select {
		case evt, ok := <-w.Events:
			if !ok {
				return
			}
			cw.dispatch(evt)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			cw.log.Warn("chunk watcher error", "dir", cw.dir, "error", err)
		}
	}
}

func (cw *ChunkWatcher) dispatch(evt fsnotify.Event) {
	index := remote.ChunkIndex(evt.Name)
	if index < 0 || cw.callback == nil {
		return
	}

	var kind ChangeKind
	switch {
	case evt.Has(fsnotify.Create):
		kind = ChunkCreated
	case evt.Has(fsnotify.Write):
		kind = ChunkModified
	case evt.Has(fsnotify.Remove), evt.Has(fsnotify.Rename):
		kind = ChunkRemoved
	default:
		return
	}
	cw.log.Debug("chunk file changed", "chunk", index, "change", kind.String())
	cw.callback(ChunkEvent{Index: index, Kind: kind})
}
