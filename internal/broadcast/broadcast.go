// Package broadcast fans one message out to every registered user.
//
// Partial failure is the expected steady state: recipients block the bot,
// delete their accounts, or trip rate limits. Each outcome is classified
// per recipient; only permanently-unreachable recipients are pruned from
// the registry, in a single write after the whole pass.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"studybot/internal/relay"
	"studybot/internal/transport"
	logx "studybot/pkg/logx"
)

// ErrUnauthorized is returned when the sender does not hold a moderator
// role in the moderator channel.
var ErrUnauthorized = errors.New("broadcast: sender is not a moderator")

// Content is either a text announcement or a copy of an existing message.
type Content struct {
	Text string
	Copy *transport.MessageRef
}

// Transport is the slice of the adapter the engine needs.
type Transport interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
	CopyMessage(ctx context.Context, to transport.ChatTarget, from transport.MessageRef, replyTo int) (transport.MessageRef, error)
	GetRole(ctx context.Context, chat transport.ChatTarget, userID int64) (transport.Role, error)
}

type Config struct {
	ModeratorChat int64
	Workers       int
	RatePerSec    int
	// PruneOn lists the failure kinds treated as permanently unreachable.
	// Empty means the default policy (blocked + deactivated).
	PruneOn []transport.FailureKind
}

type Result struct {
	Delivered int
	Failed    int
	// Pruned counts the failed recipients removed from the registry.
	Pruned int
}

type Engine struct {
	cfg     Config
	tr      Transport
	reg     *relay.Registry
	log     logx.Logger
	limiter *rate.Limiter
	prune   map[transport.FailureKind]bool
}

func New(cfg Config, tr Transport, reg *relay.Registry, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 10
	}
	kinds := cfg.PruneOn
	if len(kinds) == 0 {
		kinds = []transport.FailureKind{transport.FailureBlocked, transport.FailureDeactivated}
	}
	prune := make(map[transport.FailureKind]bool, len(kinds))
	for _, k := range kinds {
		prune[k] = true
	}
	return &Engine{
		cfg:     cfg,
		tr:      tr,
		reg:     reg,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		prune:   prune,
	}
}

// Broadcast verifies the sender's moderator role against the moderator
// channel and then announces. Verification failures reject the call; the
// registry is untouched.
func (e *Engine) Broadcast(ctx context.Context, senderID int64, c Content) (Result, error) {
	mod := transport.ChatTarget{ChatID: e.cfg.ModeratorChat}
	role, err := e.tr.GetRole(ctx, mod, senderID)
	if err != nil {
		return Result{}, fmt.Errorf("verify moderator role: %w", err)
	}
	if !role.IsPrivileged() {
		return Result{}, ErrUnauthorized
	}
	return e.Announce(ctx, c)
}

// Announce snapshots the registered set and fans the content out with
// bounded concurrency. No authorization check: this entry is for the
// system itself (scheduler slots). The pruned set is persisted once at
// the end; users registered mid-broadcast are untouched.
func (e *Engine) Announce(ctx context.Context, c Content) (Result, error) {
	users, err := e.reg.Users(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load registered users: %w", err)
	}

	workers := e.cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	if workers > len(users) {
		workers = len(users)
	}

	var (
		mu   sync.Mutex
		res  Result
		gone []int64
		wg   sync.WaitGroup
		jobs = make(chan int64)
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for userID := range jobs {
				err := e.sendOne(ctx, userID, c)
				mu.Lock()
				switch {
				case err == nil:
					res.Delivered++
				case e.prune[transport.KindOf(err)]:
					res.Failed++
					gone = append(gone, userID)
				default:
					res.Failed++
				}
				mu.Unlock()
				if err != nil {
					e.log.Debug("broadcast delivery failed", logx.Int64("user_id", userID), logx.Err(err))
				}
			}
		}()
	}

	for _, userID := range users {
		jobs <- userID
	}
	close(jobs)
	wg.Wait()

	res.Pruned = len(gone)
	if err := e.reg.Remove(ctx, gone); err != nil {
		// The broadcast itself is done; only the prune write failed.
		return res, fmt.Errorf("prune unreachable users: %w", err)
	}

	e.log.Info("broadcast finished",
		logx.Int("total", len(users)),
		logx.Int("delivered", res.Delivered),
		logx.Int("failed", res.Failed),
		logx.Int("pruned", res.Pruned))
	return res, nil
}

func (e *Engine) sendOne(ctx context.Context, userID int64, c Content) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	to := transport.ChatTarget{ChatID: userID}
	if c.Copy != nil {
		_, err := e.tr.CopyMessage(ctx, to, *c.Copy, 0)
		return err
	}
	_, err := e.tr.SendText(ctx, to, c.Text, nil)
	return err
}
