// Package relay forwards free-form user messages to the moderator channel
// and routes moderator replies back, preserving per-conversation
// addressability through the persisted message map.
package relay

import (
	"context"
	"fmt"

	"studybot/internal/transport"
	logx "studybot/pkg/logx"
)

// Sender is the slice of the transport the router needs.
type Sender interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
	CopyMessage(ctx context.Context, to transport.ChatTarget, from transport.MessageRef, replyTo int) (transport.MessageRef, error)
}

type Config struct {
	// ModeratorChat is the moderator group the bot forwards into.
	ModeratorChat int64
}

type Router struct {
	cfg    Config
	sender Sender
	reg    *Registry
	log    logx.Logger
}

func NewRouter(cfg Config, sender Sender, reg *Registry, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{cfg: cfg, sender: sender, reg: reg, log: log}
}

// RelayInbound forwards a user's message into the moderator channel:
// first a notice naming the sender, then a copy of the content linked as a
// reply to the notice. Both moderator-side message ids are mapped back to
// the user so a reply to either resolves correctly.
//
// The moderator channel is assumed reachable; any forwarding failure is
// fatal to this attempt and must be surfaced to the user by the caller.
func (r *Router) RelayInbound(ctx context.Context, msg *transport.Message) ([]Mapping, error) {
	if err := r.reg.Register(ctx, msg.FromID); err != nil {
		return nil, fmt.Errorf("register user: %w", err)
	}

	mod := transport.ChatTarget{ChatID: r.cfg.ModeratorChat}
	notice, err := r.sender.SendText(ctx, mod, noticeText(msg.FromName, msg.FromID), nil)
	if err != nil {
		return nil, fmt.Errorf("forward notice: %w", err)
	}

	// The copy is linked under the notice, so ordering is fixed:
	// the notice must exist before the copy.
	copied, err := r.sender.CopyMessage(ctx, mod, transport.MessageRef{ChatID: msg.ChatID, MessageID: msg.ID}, notice.MessageID)
	if err != nil {
		return nil, fmt.Errorf("forward content: %w", err)
	}

	entries := []Mapping{
		{ModeratorMessageID: notice.MessageID, UserID: msg.FromID},
		{ModeratorMessageID: copied.MessageID, UserID: msg.FromID},
	}
	if err := r.reg.MapMessages(ctx, entries); err != nil {
		return nil, fmt.Errorf("record mapping: %w", err)
	}

	r.log.Info("relayed inbound message",
		logx.Int64("user_id", msg.FromID),
		logx.Int("notice_id", notice.MessageID),
		logx.Int("copy_id", copied.MessageID))
	return entries, nil
}

// RelayReply routes a moderator-channel reply back to the origin user.
// It acts only when the message replies to a mapped moderator message;
// everything else in the channel is ordinary conversation and is ignored.
// Delivery failures toward the user are absorbed: a blocked or departed
// recipient is not an error for a single reply.
func (r *Router) RelayReply(ctx context.Context, msg *transport.Message) bool {
	if msg.ReplyToID == 0 {
		return false
	}
	userID, ok, err := r.reg.LookupOrigin(ctx, msg.ReplyToID)
	if err != nil {
		r.log.Warn("message map lookup failed", logx.Err(err))
		return false
	}
	if !ok {
		return false
	}

	to := transport.ChatTarget{ChatID: userID}
	if _, err := r.sender.SendText(ctx, to, replyText(msg.Text), nil); err != nil {
		r.log.Debug("reply delivery failed", logx.Int64("user_id", userID), logx.Err(err))
	}
	return true
}
