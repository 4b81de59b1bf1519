package gateway

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"studybot/internal/transport"
	logx "studybot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, up transport.Update) error

type Middleware func(next HandlerFunc) HandlerFunc

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, up transport.Update) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.Error("panic recovered",
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, up)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, up transport.Update) error {
			start := time.Now()
			err := next(ctx, up)
			d := time.Since(start)

			fields := []logx.Field{
				logx.String("kind", string(up.Kind)),
				logx.Duration("dur", d),
			}
			switch {
			case up.Message != nil:
				fields = append(fields, logx.Int64("chat_id", up.Message.ChatID), logx.Int64("from_id", up.Message.FromID))
			case up.Callback != nil:
				fields = append(fields, logx.Int64("chat_id", up.Callback.ChatID), logx.Int64("from_id", up.Callback.FromID))
			}
			if err != nil {
				log.Warn("update failed", append(fields, logx.Err(err))...)
			} else if d >= 750*time.Millisecond {
				log.Info("update ok", fields...)
			} else {
				log.Debug("update ok", fields...)
			}
			return err
		}
	}
}
