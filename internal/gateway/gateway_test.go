package gateway

import (
	"context"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	"studybot/internal/broadcast"
	"studybot/internal/catalog"
	"studybot/internal/nav"
	"studybot/internal/relay"
	"studybot/internal/storage"
	"studybot/internal/transport"
	logx "studybot/pkg/logx"
)

const modChat = int64(-100700)

// fakeAdapter implements transport.Adapter in memory.
type fakeAdapter struct {
	nextID int

	sent     []fakeSent
	edits    []fakeEdit
	copied   []fakeCopy
	answered []string

	roles map[int64]transport.Role
}

type fakeSent struct {
	id      int
	chatID  int64
	text    string
	replyTo int
	markup  *tele.ReplyMarkup
}

type fakeEdit struct {
	ref    transport.MessageRef
	text   string
	markup *tele.ReplyMarkup
}

type fakeCopy struct {
	toChat  int64
	from    transport.MessageRef
	replyTo int
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{nextID: 100, roles: map[int64]transport.Role{}}
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                           { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.nextID++
	s := fakeSent{id: f.nextID, chatID: to.ChatID, text: text}
	if opt != nil {
		s.replyTo = opt.ReplyTo
		s.markup, _ = opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	}
	f.sent = append(f.sent, s)
	return transport.MessageRef{ChatID: to.ChatID, MessageID: f.nextID}, nil
}

func (f *fakeAdapter) EditText(_ context.Context, ref transport.MessageRef, text string, opt *transport.SendOptions) error {
	e := fakeEdit{ref: ref, text: text}
	if opt != nil {
		e.markup, _ = opt.ReplyMarkupAdapter.(*tele.ReplyMarkup)
	}
	f.edits = append(f.edits, e)
	return nil
}

func (f *fakeAdapter) CopyMessage(_ context.Context, to transport.ChatTarget, from transport.MessageRef, replyTo int) (transport.MessageRef, error) {
	f.nextID++
	f.copied = append(f.copied, fakeCopy{toChat: to.ChatID, from: from, replyTo: replyTo})
	return transport.MessageRef{ChatID: to.ChatID, MessageID: f.nextID}, nil
}

func (f *fakeAdapter) AnswerCallback(_ context.Context, callbackID string, _ string) error {
	f.answered = append(f.answered, callbackID)
	return nil
}

func (f *fakeAdapter) GetRole(_ context.Context, _ transport.ChatTarget, userID int64) (transport.Role, error) {
	if r, ok := f.roles[userID]; ok {
		return r, nil
	}
	return transport.RoleMember, nil
}

func testTree() *catalog.Tree {
	return &catalog.Tree{Years: []catalog.Year{{
		Name: "السنة الأولى",
		Specializations: []catalog.Specialization{{
			Name: "رياضيات",
			Semesters: []catalog.Semester{{
				Name: "السداسي الأول",
				Subjects: []catalog.Subject{{
					Name: "تحليل",
					Items: []catalog.Item{
						{Title: "الدرس 1", Ref: &catalog.ContentRef{ChatID: -200, MessageID: 9}},
					},
				}},
			}},
		}},
	}}}
}

func newTestGateway(t *testing.T) (*Gateway, *fakeAdapter, *relay.Registry) {
	t.Helper()
	store, err := storage.Open(storage.Config{Driver: "file", Path: t.TempDir()}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ad := newFakeAdapter()
	docs := storage.NewDocuments(store)
	reg := relay.NewRegistry(docs)
	router := relay.NewRouter(relay.Config{ModeratorChat: modChat}, ad, reg, logx.Nop())
	bc := broadcast.New(broadcast.Config{ModeratorChat: modChat}, ad, reg, logx.Nop())
	navEngine := nav.NewEngine(catalog.NewHolder(testTree()), nav.NewStore())

	g := New(Config{ModeratorChat: modChat}, ad, navEngine, router, bc, reg, logx.Nop())
	return g, ad, reg
}

func privateMsg(userID int64, text string) transport.Update {
	return transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{
		ID: 1, ChatID: userID, FromID: userID, FromName: "طالب", Text: text,
	}}
}

func groupMsg(fromID int64, text string, replyTo int) transport.Update {
	return transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{
		ID: 2, ChatID: modChat, FromID: fromID, Text: text, IsGroup: true, ReplyToID: replyTo,
	}}
}

func TestStartSendsWelcomeKeyboard(t *testing.T) {
	t.Parallel()
	g, ad, reg := newTestGateway(t)
	ctx := context.Background()

	if err := g.handle(ctx, privateMsg(42, "/start")); err != nil {
		t.Fatalf("handle /start: %v", err)
	}
	if len(ad.sent) != 1 || ad.sent[0].chatID != 42 {
		t.Fatalf("welcome not sent: %+v", ad.sent)
	}
	if ad.sent[0].markup == nil {
		t.Fatal("welcome should carry an inline keyboard")
	}

	// Every interaction registers the user.
	users, err := reg.Users(ctx)
	if err != nil || len(users) != 1 || users[0] != 42 {
		t.Fatalf("Users = %v err=%v, want [42]", users, err)
	}
}

func TestPrivateTextIsRelayed(t *testing.T) {
	t.Parallel()
	g, ad, _ := newTestGateway(t)
	ctx := context.Background()

	if err := g.handle(ctx, privateMsg(50, "عندي سؤال في التحليل")); err != nil {
		t.Fatalf("handle: %v", err)
	}
	// Notice to moderators, ack to the user.
	var toMod, toUser int
	for _, s := range ad.sent {
		switch s.chatID {
		case modChat:
			toMod++
		case 50:
			toUser++
			if s.text != textAckSent {
				t.Errorf("ack text = %q", s.text)
			}
		}
	}
	if toMod != 1 || toUser != 1 {
		t.Fatalf("sends: mod=%d user=%d, want 1/1", toMod, toUser)
	}
	if len(ad.copied) != 1 || ad.copied[0].toChat != modChat {
		t.Fatalf("question not copied to moderators: %+v", ad.copied)
	}
}

func TestButtonLabelTypedAsTextIsRelayed(t *testing.T) {
	t.Parallel()
	g, ad, _ := newTestGateway(t)

	// The browse button is inline, so its label only ever arrives as a
	// callback; the same characters typed as a message are a question.
	if err := g.handle(context.Background(), privateMsg(55, labelBrowse)); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(ad.copied) != 1 || ad.copied[0].toChat != modChat {
		t.Fatalf("typed label should be relayed to moderators: %+v", ad.copied)
	}
}

func TestModeratorReplyRoutesBack(t *testing.T) {
	t.Parallel()
	g, ad, _ := newTestGateway(t)
	ctx := context.Background()

	if err := g.handle(ctx, privateMsg(60, "سؤال")); err != nil {
		t.Fatal(err)
	}
	noticeID := 0
	for _, s := range ad.sent {
		if s.chatID == modChat {
			noticeID = s.id
			break
		}
	}
	if noticeID == 0 {
		t.Fatal("no moderator-side message recorded")
	}

	ad.sent = nil
	if err := g.handle(ctx, groupMsg(999, "الجواب هنا", noticeID)); err != nil {
		t.Fatal(err)
	}
	if len(ad.sent) != 1 || ad.sent[0].chatID != 60 {
		t.Fatalf("reply should reach user 60: %+v", ad.sent)
	}
	if !strings.Contains(ad.sent[0].text, "الجواب هنا") {
		t.Errorf("reply text = %q", ad.sent[0].text)
	}
}

func TestAnnounceAuthorization(t *testing.T) {
	t.Parallel()
	g, ad, reg := newTestGateway(t)
	ctx := context.Background()

	if err := reg.Register(ctx, 70); err != nil {
		t.Fatal(err)
	}
	ad.roles[5] = transport.RoleMember
	ad.roles[6] = transport.RoleAdministrator

	// Member: refused.
	if err := g.handle(ctx, groupMsg(5, "/announce إعلان", 0)); err != nil {
		t.Fatal(err)
	}
	if len(ad.sent) != 1 || ad.sent[0].text != textNotModerator {
		t.Fatalf("member announce should be refused: %+v", ad.sent)
	}

	// Admin: delivered to the registered user plus a summary.
	ad.sent = nil
	if err := g.handle(ctx, groupMsg(6, "/announce إعلان مهم", 0)); err != nil {
		t.Fatal(err)
	}
	var gotUser, gotSummary bool
	for _, s := range ad.sent {
		if s.chatID == 70 && s.text == "إعلان مهم" {
			gotUser = true
		}
		if s.chatID == modChat && strings.Contains(s.text, "وصل إلى 1") {
			gotSummary = true
		}
	}
	if !gotUser || !gotSummary {
		t.Fatalf("announce results: user=%v summary=%v sends=%+v", gotUser, gotSummary, ad.sent)
	}
}

func TestAnnounceReplyCopiesMessage(t *testing.T) {
	t.Parallel()
	g, ad, reg := newTestGateway(t)
	ctx := context.Background()

	if err := reg.Register(ctx, 80); err != nil {
		t.Fatal(err)
	}
	ad.roles[6] = transport.RoleAdministrator

	if err := g.handle(ctx, groupMsg(6, "/announce", 777)); err != nil {
		t.Fatal(err)
	}
	if len(ad.copied) != 1 || ad.copied[0].toChat != 80 || ad.copied[0].from.MessageID != 777 {
		t.Fatalf("replied-to message should be copied to user 80: %+v", ad.copied)
	}
}

func TestAnnounceWithoutContentShowsUsage(t *testing.T) {
	t.Parallel()
	g, ad, _ := newTestGateway(t)
	ad.roles[6] = transport.RoleAdministrator

	if err := g.handle(context.Background(), groupMsg(6, "/announce", 0)); err != nil {
		t.Fatal(err)
	}
	if len(ad.sent) != 1 || ad.sent[0].text != textAnnounceUse {
		t.Fatalf("bare announce should show usage: %+v", ad.sent)
	}
}

func TestCallbackNavigationEditsMenu(t *testing.T) {
	t.Parallel()
	g, ad, _ := newTestGateway(t)
	ctx := context.Background()

	up := transport.Update{Kind: transport.UpdateCallback, Callback: &transport.Callback{
		ID: "cb1", FromID: 90, ChatID: 90, MessageID: 33, Data: nav.RootData(),
	}}
	if err := g.handle(ctx, up); err != nil {
		t.Fatal(err)
	}
	if len(ad.edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(ad.edits))
	}
	if ad.edits[0].ref.MessageID != 33 || ad.edits[0].markup == nil {
		t.Fatalf("menu edit wrong: %+v", ad.edits[0])
	}
	if len(ad.answered) != 1 || ad.answered[0] != "cb1" {
		t.Fatalf("callback not answered: %v", ad.answered)
	}
}

func TestForeignCallbackIsDismissed(t *testing.T) {
	t.Parallel()
	g, ad, _ := newTestGateway(t)

	up := transport.Update{Kind: transport.UpdateCallback, Callback: &transport.Callback{
		ID: "cb2", FromID: 91, ChatID: 91, MessageID: 1, Data: "someplugin:whatever",
	}}
	if err := g.handle(context.Background(), up); err != nil {
		t.Fatal(err)
	}
	if len(ad.edits) != 0 || len(ad.sent) != 0 {
		t.Fatal("foreign callback must not render anything")
	}
	if len(ad.answered) != 1 {
		t.Fatal("foreign callback still gets answered")
	}
}

func TestParseCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		cmd  string
		args string
		ok   bool
	}{
		{"/announce hello world", "announce", "hello world", true},
		{"/announce@studybot hi", "announce", "hi", true},
		{"/START", "start", "", true},
		{"no command", "", "", false},
		{"/", "", "", false},
	}
	for _, tt := range tests {
		cmd, args, ok := parseCommand(tt.in)
		if cmd != tt.cmd || args != tt.args || ok != tt.ok {
			t.Errorf("parseCommand(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tt.in, cmd, args, ok, tt.cmd, tt.args, tt.ok)
		}
	}
}
