// Package gateway is the single entry point for inbound updates. It runs a
// sequential dispatch loop (one update at a time) and routes each update to
// the navigation engine, the relay router or the broadcast engine.
package gateway

import (
	"context"
	"errors"
	"strings"

	tele "gopkg.in/telebot.v4"

	"studybot/internal/broadcast"
	"studybot/internal/nav"
	"studybot/internal/relay"
	"studybot/internal/transport"
	logx "studybot/pkg/logx"
	"studybot/pkg/tgui"
)

type Config struct {
	// ModeratorChat is the moderator group; messages originating there are
	// treated as replies or commands, never relayed as questions.
	ModeratorChat int64
}

type Gateway struct {
	cfg    Config
	tr     transport.Adapter
	nav    *nav.Engine
	relay  *relay.Router
	bc     *broadcast.Engine
	reg    *relay.Registry
	log    logx.Logger
	handle HandlerFunc
}

func New(cfg Config, tr transport.Adapter, navEngine *nav.Engine, router *relay.Router, bc *broadcast.Engine, reg *relay.Registry, log logx.Logger) *Gateway {
	if log.IsZero() {
		log = logx.Nop()
	}
	g := &Gateway{
		cfg:   cfg,
		tr:    tr,
		nav:   navEngine,
		relay: router,
		bc:    bc,
		reg:   reg,
		log:   log,
	}
	g.handle = Chain(g.dispatch, MWPanicRecover(log), MWRequestLog(log))
	return g
}

// Run consumes updates until ctx is canceled or the channel closes.
// Updates are handled strictly one at a time; ordering within a chat is
// whatever the transport delivered.
func (g *Gateway) Run(ctx context.Context, updates <-chan transport.Update) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			// Errors are already logged by the middleware; one bad update
			// must not stop the loop.
			_ = g.handle(ctx, up)
		}
	}
}

func (g *Gateway) dispatch(ctx context.Context, up transport.Update) error {
	switch up.Kind {
	case transport.UpdateCallback:
		if up.Callback == nil {
			return nil
		}
		return g.handleCallback(ctx, up.Callback)
	case transport.UpdateMessage:
		if up.Message == nil {
			return nil
		}
		if up.Message.IsGroup {
			return g.handleGroupMessage(ctx, up.Message)
		}
		return g.handlePrivateMessage(ctx, up.Message)
	default:
		return nil
	}
}

func (g *Gateway) handlePrivateMessage(ctx context.Context, msg *transport.Message) error {
	if err := g.reg.Register(ctx, msg.FromID); err != nil {
		g.log.Warn("user registration failed", logx.Int64("user_id", msg.FromID), logx.Err(err))
	}

	text := strings.TrimSpace(msg.Text)
	switch {
	case text == "/start" || strings.HasPrefix(text, "/start "):
		return g.sendWelcome(ctx, msg.ChatID)
	case strings.HasPrefix(text, "/"):
		// Unknown command: show the welcome screen rather than relaying
		// a command to the moderators.
		return g.sendWelcome(ctx, msg.ChatID)
	case text == "":
		return nil
	default:
		return g.relayQuestion(ctx, msg)
	}
}

func (g *Gateway) sendWelcome(ctx context.Context, chatID int64) error {
	markup := tgui.NewInline().
		Row(tgui.Btn(labelBrowse, nav.RootData())).
		Markup()
	_, err := g.tr.SendText(ctx, transport.ChatTarget{ChatID: chatID}, textWelcome,
		&transport.SendOptions{ReplyMarkupAdapter: markup})
	return err
}

func (g *Gateway) relayQuestion(ctx context.Context, msg *transport.Message) error {
	to := transport.ChatTarget{ChatID: msg.ChatID}
	if _, err := g.relay.RelayInbound(ctx, msg); err != nil {
		g.log.Warn("inbound relay failed", logx.Int64("user_id", msg.FromID), logx.Err(err))
		_, _ = g.tr.SendText(ctx, to, textSendFailed, nil)
		return err
	}
	_, err := g.tr.SendText(ctx, to, textAckSent, nil)
	return err
}

func (g *Gateway) handleGroupMessage(ctx context.Context, msg *transport.Message) error {
	if msg.ChatID != g.cfg.ModeratorChat {
		return nil
	}
	text := strings.TrimSpace(msg.Text)
	if cmd, args, ok := parseCommand(text); ok && cmd == "announce" {
		return g.handleAnnounce(ctx, msg, args)
	}
	// Anything else is either a reply to a relayed question or ordinary
	// moderator conversation; RelayReply distinguishes the two itself.
	g.relay.RelayReply(ctx, msg)
	return nil
}

// handleAnnounce broadcasts either the command's text or, when the command
// replies to another message, a copy of that message.
func (g *Gateway) handleAnnounce(ctx context.Context, msg *transport.Message, args string) error {
	mod := transport.ChatTarget{ChatID: g.cfg.ModeratorChat}

	var content broadcast.Content
	switch {
	case msg.ReplyToID != 0:
		content.Copy = &transport.MessageRef{ChatID: g.cfg.ModeratorChat, MessageID: msg.ReplyToID}
	case args != "":
		content.Text = args
	default:
		_, err := g.tr.SendText(ctx, mod, textAnnounceUse, &transport.SendOptions{ReplyTo: msg.ID})
		return err
	}

	res, err := g.bc.Broadcast(ctx, msg.FromID, content)
	if errors.Is(err, broadcast.ErrUnauthorized) {
		_, serr := g.tr.SendText(ctx, mod, textNotModerator, &transport.SendOptions{ReplyTo: msg.ID})
		return serr
	}
	if err != nil {
		g.log.Warn("broadcast failed", logx.Int64("sender_id", msg.FromID), logx.Err(err))
		return err
	}
	_, err = g.tr.SendText(ctx, mod, announceSummary(res.Delivered, res.Failed, res.Pruned),
		&transport.SendOptions{ReplyTo: msg.ID})
	return err
}

func (g *Gateway) handleCallback(ctx context.Context, cb *transport.Callback) error {
	if err := g.reg.Register(ctx, cb.FromID); err != nil {
		g.log.Warn("user registration failed", logx.Int64("user_id", cb.FromID), logx.Err(err))
	}

	action, ok := nav.ParseCallback(cb.Data)
	if !ok {
		// Foreign or corrupted payload; just dismiss the spinner.
		return g.tr.AnswerCallback(ctx, cb.ID, "")
	}

	screen := g.nav.Navigate(cb.FromID, action)

	if screen.Item != nil {
		if err := g.tr.AnswerCallback(ctx, cb.ID, ""); err != nil {
			g.log.Debug("callback answer failed", logx.Err(err))
		}
		return g.deliverItem(ctx, cb, screen)
	}

	ref := transport.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}
	err := g.tr.EditText(ctx, ref, screen.Text, &transport.SendOptions{ReplyMarkupAdapter: screenMarkup(screen)})
	if err != nil {
		// Usually "message is not modified" when a stale button re-renders
		// the same screen; never worth failing the update over.
		g.log.Debug("menu edit failed", logx.Err(err))
	}
	return g.tr.AnswerCallback(ctx, cb.ID, "")
}

// deliverItem sends a leaf's content into the user's chat as a fresh
// message, leaving the menu message in place.
func (g *Gateway) deliverItem(ctx context.Context, cb *transport.Callback, screen nav.Screen) error {
	to := transport.ChatTarget{ChatID: cb.ChatID}
	item := screen.Item

	if item.Ref != nil {
		from := transport.MessageRef{ChatID: item.Ref.ChatID, MessageID: item.Ref.MessageID}
		if _, err := g.tr.CopyMessage(ctx, to, from, 0); err != nil {
			g.log.Warn("item copy failed",
				logx.String("item", item.Title),
				logx.Int64("src_chat", item.Ref.ChatID),
				logx.Err(err))
			_, serr := g.tr.SendText(ctx, to, textItemFailed, nil)
			return serr
		}
		return nil
	}
	_, err := g.tr.SendText(ctx, to, item.Title+"\n"+item.URL, nil)
	return err
}

// screenMarkup converts a rendered screen into Telegram inline markup.
func screenMarkup(screen nav.Screen) *tele.ReplyMarkup {
	kb := tgui.NewInline()
	for _, row := range screen.Rows {
		btns := make([]tele.Btn, 0, len(row))
		for _, b := range row {
			if b.URL != "" {
				btns = append(btns, tgui.URLBtn(b.Label, b.URL))
			} else {
				btns = append(btns, tgui.Btn(b.Label, b.Data))
			}
		}
		kb.Row(btns...)
	}
	return kb.Markup()
}

// parseCommand splits "/cmd@botname args" into its command and argument
// string. ok is false for non-command text.
func parseCommand(text string) (cmd, args string, ok bool) {
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	rest := text[1:]
	if i := strings.IndexAny(rest, " \n"); i >= 0 {
		cmd, args = rest[:i], strings.TrimSpace(rest[i+1:])
	} else {
		cmd = rest
	}
	if j := strings.IndexByte(cmd, '@'); j >= 0 {
		cmd = cmd[:j]
	}
	return strings.ToLower(cmd), args, cmd != ""
}
