package transport

import (
	"context"
	"errors"
	"fmt"
)

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromName     string // sender display name ("first last")
	FromUsername string
	Text         string
	IsGroup      bool
	// ReplyToID is the id of the message this one replies to (0 if none).
	ReplyToID int
}

type Callback struct {
	ID        string
	FromID    int64
	FromName  string
	ChatID    int64
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	// ReplyTo links the outgoing message as a reply to an existing one (0 = no link).
	ReplyTo            int
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

// Role is the membership role of a user within a chat.
type Role string

const (
	RoleCreator       Role = "creator"
	RoleAdministrator Role = "administrator"
	RoleMember        Role = "member"
	RoleRestricted    Role = "restricted"
	RoleLeft          Role = "left"
	RoleKicked        Role = "kicked"
)

// IsPrivileged reports whether the role may perform moderator-only actions.
func (r Role) IsPrivileged() bool {
	return r == RoleCreator || r == RoleAdministrator
}

// FailureKind classifies a delivery error against a specific recipient.
type FailureKind string

const (
	// FailureBlocked: the recipient blocked the bot.
	FailureBlocked FailureKind = "blocked"
	// FailureDeactivated: the recipient account no longer exists.
	FailureDeactivated FailureKind = "deactivated"
	// FailureNotFound: the chat cannot be resolved (never started, migrated away).
	FailureNotFound FailureKind = "not_found"
	// FailureOther: anything else (rate limit, bad request, network).
	FailureOther FailureKind = "other"
)

// SendFailure wraps a delivery error with its classification so callers can
// decide between pruning a recipient and counting a transient failure.
type SendFailure struct {
	Kind FailureKind
	Err  error
}

func (f *SendFailure) Error() string { return fmt.Sprintf("send failed (%s): %v", f.Kind, f.Err) }
func (f *SendFailure) Unwrap() error { return f.Err }

// KindOf extracts the failure kind from err, defaulting to FailureOther.
func KindOf(err error) FailureKind {
	var sf *SendFailure
	if errors.As(err, &sf) {
		return sf.Kind
	}
	return FailureOther
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	CopyMessage(ctx context.Context, to ChatTarget, from MessageRef, replyTo int) (MessageRef, error)
	AnswerCallback(ctx context.Context, callbackID string, text string) error
	GetRole(ctx context.Context, chat ChatTarget, userID int64) (Role, error)
}
