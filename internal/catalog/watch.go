package catalog

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "studybot/pkg/logx"
)

// Holder hands out the current tree and lets the watcher swap it atomically.
// Navigation always works against a single consistent snapshot.
type Holder struct {
	v atomic.Pointer[Tree]
}

func NewHolder(t *Tree) *Holder {
	h := &Holder{}
	h.v.Store(t)
	return h
}

func (h *Holder) Tree() *Tree { return h.v.Load() }

// Swap replaces the current tree. Callers must pass a validated tree.
func (h *Holder) Swap(t *Tree) { h.v.Store(t) }

// Watch reloads the catalog file when it changes, swapping the holder on
// success and keeping the previous tree on parse errors. Editors tend to
// emit bursts of write events, so reloads are debounced.
func Watch(ctx context.Context, path string, h *Holder, log logx.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Watch the directory: editors often replace the file via rename,
	// which would drop a watch on the file itself.
	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}

	base := filepath.Base(path)
	var pending *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if pending == nil {
				pending = time.NewTimer(500 * time.Millisecond)
				fire = pending.C
			} else {
				pending.Reset(500 * time.Millisecond)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("catalog watch error", logx.Err(err))
		case <-fire:
			pending = nil
			fire = nil
			t, err := LoadFile(path)
			if err != nil {
				log.Warn("catalog reload failed, keeping previous tree", logx.Err(err))
				continue
			}
			h.Swap(t)
			log.Info("catalog reloaded", logx.Int("years", len(t.Years)))
		}
	}
}
