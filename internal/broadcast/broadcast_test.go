package broadcast

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"studybot/internal/relay"
	"studybot/internal/storage"
	"studybot/internal/transport"
	logx "studybot/pkg/logx"
)

type fakeTransport struct {
	mu        sync.Mutex
	delivered []int64
	copied    []int64

	failWith map[int64]transport.FailureKind
	roles    map[int64]transport.Role
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		failWith: map[int64]transport.FailureKind{},
		roles:    map[int64]transport.Role{},
	}
}

func (f *fakeTransport) SendText(_ context.Context, to transport.ChatTarget, _ string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if kind, bad := f.failWith[to.ChatID]; bad {
		return transport.MessageRef{}, &transport.SendFailure{Kind: kind, Err: errors.New("delivery failed")}
	}
	f.delivered = append(f.delivered, to.ChatID)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.delivered)}, nil
}

func (f *fakeTransport) CopyMessage(_ context.Context, to transport.ChatTarget, _ transport.MessageRef, _ int) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if kind, bad := f.failWith[to.ChatID]; bad {
		return transport.MessageRef{}, &transport.SendFailure{Kind: kind, Err: errors.New("copy failed")}
	}
	f.copied = append(f.copied, to.ChatID)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.copied)}, nil
}

func (f *fakeTransport) GetRole(_ context.Context, _ transport.ChatTarget, userID int64) (transport.Role, error) {
	if r, ok := f.roles[userID]; ok {
		return r, nil
	}
	return transport.RoleMember, nil
}

func newTestEngine(t *testing.T, cfg Config, tr Transport) (*Engine, *relay.Registry) {
	t.Helper()
	store, err := storage.Open(storage.Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	reg := relay.NewRegistry(storage.NewDocuments(store))
	return New(cfg, tr, reg, logx.Nop()), reg
}

func registerUsers(t *testing.T, reg *relay.Registry, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		if err := reg.Register(context.Background(), id); err != nil {
			t.Fatal(err)
		}
	}
}

func TestAnnounceCountsAndPrunes(t *testing.T) {
	t.Parallel()
	tr := newFakeTransport()
	tr.failWith[2] = transport.FailureBlocked
	tr.failWith[4] = transport.FailureDeactivated
	tr.failWith[5] = transport.FailureOther // transient, not pruned

	e, reg := newTestEngine(t, Config{ModeratorChat: -1, Workers: 3}, tr)
	registerUsers(t, reg, 1, 2, 3, 4, 5)
	ctx := context.Background()

	res, err := e.Announce(ctx, Content{Text: "إعلان"})
	if err != nil {
		t.Fatalf("Announce: %v", err)
	}
	if res.Delivered+res.Failed != 5 {
		t.Fatalf("delivered(%d)+failed(%d) != 5", res.Delivered, res.Failed)
	}
	if res.Delivered != 2 || res.Failed != 3 {
		t.Fatalf("res = %+v, want 2 delivered / 3 failed", res)
	}
	if res.Pruned != 2 {
		t.Fatalf("pruned = %d, want 2 (blocked + deactivated)", res.Pruned)
	}

	users, err := reg.Users(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want := []int64{1, 3, 5}; !reflect.DeepEqual(users, want) {
		t.Fatalf("registry after prune = %v, want %v", users, want)
	}
}

func TestAnnounceEmptyRegistry(t *testing.T) {
	t.Parallel()
	e, _ := newTestEngine(t, Config{ModeratorChat: -1}, newFakeTransport())

	res, err := e.Announce(context.Background(), Content{Text: "x"})
	if err != nil {
		t.Fatalf("Announce on empty registry: %v", err)
	}
	if res != (Result{}) {
		t.Fatalf("res = %+v, want zero", res)
	}
}

func TestAnnounceCopyContent(t *testing.T) {
	t.Parallel()
	tr := newFakeTransport()
	e, reg := newTestEngine(t, Config{ModeratorChat: -1}, tr)
	registerUsers(t, reg, 10, 11)

	ref := transport.MessageRef{ChatID: -1, MessageID: 77}
	res, err := e.Announce(context.Background(), Content{Copy: &ref})
	if err != nil {
		t.Fatal(err)
	}
	if res.Delivered != 2 {
		t.Fatalf("delivered = %d, want 2", res.Delivered)
	}
	if len(tr.copied) != 2 || len(tr.delivered) != 0 {
		t.Fatalf("copy content must use CopyMessage: copied=%v sent=%v", tr.copied, tr.delivered)
	}
}

func TestBroadcastRequiresModeratorRole(t *testing.T) {
	t.Parallel()
	tr := newFakeTransport()
	tr.roles[1] = transport.RoleMember
	tr.roles[2] = transport.RoleAdministrator

	e, reg := newTestEngine(t, Config{ModeratorChat: -1}, tr)
	registerUsers(t, reg, 30)
	ctx := context.Background()

	if _, err := e.Broadcast(ctx, 1, Content{Text: "x"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("member broadcast err = %v, want ErrUnauthorized", err)
	}
	if len(tr.delivered) != 0 {
		t.Fatal("unauthorized broadcast must not deliver anything")
	}

	res, err := e.Broadcast(ctx, 2, Content{Text: "x"})
	if err != nil {
		t.Fatalf("admin broadcast: %v", err)
	}
	if res.Delivered != 1 {
		t.Fatalf("delivered = %d, want 1", res.Delivered)
	}
}

func TestCustomPrunePolicy(t *testing.T) {
	t.Parallel()
	tr := newFakeTransport()
	tr.failWith[2] = transport.FailureBlocked
	tr.failWith[3] = transport.FailureNotFound

	e, reg := newTestEngine(t, Config{
		ModeratorChat: -1,
		PruneOn:       []transport.FailureKind{transport.FailureNotFound},
	}, tr)
	registerUsers(t, reg, 1, 2, 3)
	ctx := context.Background()

	res, err := e.Announce(ctx, Content{Text: "x"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Pruned != 1 {
		t.Fatalf("pruned = %d, want 1 (only not_found)", res.Pruned)
	}
	users, err := reg.Users(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want := []int64{1, 2}; !reflect.DeepEqual(users, want) {
		t.Fatalf("registry = %v, want %v (blocked kept under custom policy)", users, want)
	}
}
