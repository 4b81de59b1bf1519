package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	logx "studybot/pkg/logx"
)

func newDocs(t *testing.T) (*Documents, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := Open(Config{Driver: "file", Path: dir}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return NewDocuments(store), dir
}

func TestFileStoreRoundtrip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := openFile(Config{Path: dir}, logx.Nop())
	if err != nil {
		t.Fatalf("openFile: %v", err)
	}
	ctx := context.Background()

	if _, ok, err := store.Load(ctx, "missing"); err != nil || ok {
		t.Fatalf("Load(missing) = ok=%v err=%v, want ok=false err=nil", ok, err)
	}

	want := []byte(`{"k":"v"}`)
	if err := store.Save(ctx, "doc", want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, ok, err := store.Load(ctx, "doc")
	if err != nil || !ok {
		t.Fatalf("Load = ok=%v err=%v", ok, err)
	}
	if string(got) != string(want) {
		t.Fatalf("Load = %q, want %q", got, want)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Fatalf("leftover temp file %s", e.Name())
		}
	}
}

func TestSanitizeName(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"registered_users", "registered_users"},
		{"with space", "with_space"},
		{"../escape", "___escape"},
		{"", "_"},
	}
	for _, tt := range tests {
		if got := sanitizeName(tt.in); got != tt.want {
			t.Errorf("sanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDocumentsUpdateCreatesDocument(t *testing.T) {
	t.Parallel()
	docs, _ := newDocs(t)
	ctx := context.Background()

	err := docs.Update(ctx, "counter", func(data []byte, ok bool) ([]byte, error) {
		if ok {
			t.Fatal("document should not exist yet")
		}
		return []byte("1"), nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	data, ok, err := docs.Load(ctx, "counter")
	if err != nil || !ok {
		t.Fatalf("Load = ok=%v err=%v", ok, err)
	}
	if string(data) != "1" {
		t.Fatalf("Load = %q, want \"1\"", data)
	}
}

func TestDocumentsNoChangeWritesNothing(t *testing.T) {
	t.Parallel()
	docs, dir := newDocs(t)
	ctx := context.Background()

	err := docs.Update(ctx, "untouched", func(data []byte, ok bool) ([]byte, error) {
		return nil, ErrNoChange
	})
	if err != nil {
		t.Fatalf("Update with ErrNoChange: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "untouched.json")); !os.IsNotExist(err) {
		t.Fatalf("document file was created despite ErrNoChange (err=%v)", err)
	}
}

func TestDocumentsConcurrentUpdatesSerialize(t *testing.T) {
	t.Parallel()
	docs, _ := newDocs(t)
	ctx := context.Background()

	const workers = 16
	const perWorker = 10

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				err := docs.Update(ctx, "counter", func(data []byte, ok bool) ([]byte, error) {
					n := 0
					if ok {
						if err := json.Unmarshal(data, &n); err != nil {
							return nil, err
						}
					}
					return json.Marshal(n + 1)
				})
				if err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	wg.Wait()

	data, ok, err := docs.Load(ctx, "counter")
	if err != nil || !ok {
		t.Fatalf("Load = ok=%v err=%v", ok, err)
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		t.Fatal(err)
	}
	if n != workers*perWorker {
		t.Fatalf("counter = %d, want %d (lost updates)", n, workers*perWorker)
	}
}
