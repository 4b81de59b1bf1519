package telegram

import (
	"errors"

	tele "gopkg.in/telebot.v4"

	"studybot/internal/transport"
)

// classify wraps Telegram API errors so callers can distinguish recipients
// that are permanently gone from transient delivery problems.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, tele.ErrBlockedByUser):
		return &transport.SendFailure{Kind: transport.FailureBlocked, Err: err}
	case errors.Is(err, tele.ErrUserIsDeactivated):
		return &transport.SendFailure{Kind: transport.FailureDeactivated, Err: err}
	case errors.Is(err, tele.ErrChatNotFound), errors.Is(err, tele.ErrNotStartedByUser):
		return &transport.SendFailure{Kind: transport.FailureNotFound, Err: err}
	default:
		return &transport.SendFailure{Kind: transport.FailureOther, Err: err}
	}
}
