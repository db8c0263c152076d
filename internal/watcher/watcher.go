package watcher

import (
	"context"
	"log"

	"github.com/fsnotify/fsnotify"
)

// Watcher turns OS-level change notifications on the trace log directory
// into wake signals for the follow loop. It is an accelerator only: the
// loop's poll ticker stays authoritative, so a lost or unsupported
// notification costs at most one poll interval of latency.
type Watcher struct {
	fsw  *fsnotify.Watcher
	Wake chan struct{}
}

// New creates a Watcher on the given directory.
func New(dir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		fsw:  fsw,
		Wake: make(chan struct{}, 1),
	}, nil
}

// Start forwards write/create/rename activity as wake signals. It blocks
// until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			switch {
			case ev.Op&fsnotify.Write != 0,
				ev.Op&fsnotify.Create != 0,
				ev.Op&fsnotify.Rename != 0:
				w.nudge()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("watcher error: %v", err)
		}
	}
}

// nudge signals the follow loop without ever blocking; a pending signal
// already covers any number of coalesced events.
func (w *Watcher) nudge() {
	select {
	case w.Wake <- struct{}{}:
	default:
	}
}
