// Package storage persists named documents (whole-document granularity).
//
// Drivers:
//   - "file": one JSON file per document, atomic tmp+rename writes
//   - "sqlite": a single documents table (modernc.org/sqlite, WAL)
//
// Documents wraps a Store with a per-document lock so concurrent
// load-mutate-save cycles on the same document never lose updates.
package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	logx "studybot/pkg/logx"
)

// ErrNoChange can be returned by an Update callback to commit nothing:
// the document is left as-is and Update returns nil.
var ErrNoChange = errors.New("storage: no change")

type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the raw driver API.
type Store interface {
	Load(ctx context.Context, name string) (data []byte, ok bool, err error)
	Save(ctx context.Context, name string, data []byte) error
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + cfg.Driver)
	}
}

// Documents serializes read-modify-write cycles per document name.
type Documents struct {
	store Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewDocuments(s Store) *Documents {
	return &Documents{store: s, locks: map[string]*sync.Mutex{}}
}

func (d *Documents) lockFor(name string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := d.locks[name]
	if l == nil {
		l = &sync.Mutex{}
		d.locks[name] = l
	}
	return l
}

// Load reads the current document. ok is false when it does not exist.
func (d *Documents) Load(ctx context.Context, name string) ([]byte, bool, error) {
	l := d.lockFor(name)
	l.Lock()
	defer l.Unlock()
	return d.store.Load(ctx, name)
}

// Update runs fn on the current document contents and saves the result,
// holding the document lock for the whole cycle. fn receives (nil, false)
// when the document does not exist yet. Returning an error from fn aborts
// the update without writing.
func (d *Documents) Update(ctx context.Context, name string, fn func(data []byte, ok bool) ([]byte, error)) error {
	l := d.lockFor(name)
	l.Lock()
	defer l.Unlock()

	cur, ok, err := d.store.Load(ctx, name)
	if err != nil {
		return err
	}
	next, err := fn(cur, ok)
	if errors.Is(err, ErrNoChange) {
		return nil
	}
	if err != nil {
		return err
	}
	return d.store.Save(ctx, name, next)
}
