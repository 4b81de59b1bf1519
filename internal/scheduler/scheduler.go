// Package scheduler fires a fixed set of daily notification slots at most
// once per slot per calendar day.
//
// There is no precise timer per slot: a cron-driven poll wakes every few
// seconds and asks, for the current minute in the configured timezone,
// "is there a slot for this minute that has not been sent today?". Sent
// markers are persisted right after the dispatch attempt, so a restart
// mid-day neither re-fires sent slots nor loses not-yet-sent ones. Slots
// whose minute passed while the process was down are not fired late.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"studybot/internal/storage"
	logx "studybot/pkg/logx"
)

const docSchedulerState = "scheduler_state"

// Slot is one named daily trigger.
type Slot struct {
	ID   string
	At   string // "HH:MM" in the scheduler timezone
	Text string
}

type Config struct {
	Timezone     string // IANA TZ, e.g. "Africa/Algiers"
	Slots        []Slot
	PollInterval time.Duration // default 20s
}

// DispatchFunc delivers a slot's canned content (typically a broadcast).
type DispatchFunc func(ctx context.Context, slot Slot) error

type Service struct {
	cfg      Config
	docs     *storage.Documents
	dispatch DispatchFunc
	log      logx.Logger
	loc      *time.Location

	mu sync.Mutex
	c  *cron.Cron

	// tickMu serializes tick invocations. Cron fires every trigger in its
	// own goroutine, so a dispatch that outlasts the poll interval would
	// otherwise race a second tick past isPending before the sent marker
	// lands, double-sending the slot.
	tickMu sync.Mutex
}

func New(cfg Config, docs *storage.Documents, dispatch DispatchFunc, log logx.Logger) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	seen := map[string]bool{}
	for _, slot := range cfg.Slots {
		if strings.TrimSpace(slot.ID) == "" {
			return nil, fmt.Errorf("scheduler: slot with empty id")
		}
		if seen[slot.ID] {
			return nil, fmt.Errorf("scheduler: duplicate slot id %q", slot.ID)
		}
		seen[slot.ID] = true
		if _, _, err := parseHHMM(slot.At); err != nil {
			return nil, fmt.Errorf("scheduler: slot %q: %w", slot.ID, err)
		}
	}

	loc := time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("scheduler: timezone %q: %w", tz, err)
		}
		loc = l
	}
	return &Service{cfg: cfg, docs: docs, dispatch: dispatch, log: log, loc: loc}, nil
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	every := s.cfg.PollInterval
	if every <= 0 {
		every = 20 * time.Second
	}

	c := cron.New(cron.WithLocation(s.loc))
	_, err := c.AddFunc(fmt.Sprintf("@every %s", every), func() {
		s.tick(ctx, time.Now().In(s.loc))
	})
	if err != nil {
		return err
	}
	s.c = c
	c.Start()
	s.log.Info("scheduler started",
		logx.Int("slots", len(s.cfg.Slots)),
		logx.String("tz", s.loc.String()),
		logx.Duration("poll", every))
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return
	}
	<-s.c.Stop().Done()
	s.c = nil
	s.log.Info("scheduler stopped")
}

// tick evaluates all slots against the current minute. It is idempotent
// within a minute: the sent marker is persisted before tick returns, so a
// second call in the same minute finds the slot already marked. Calls are
// serialized; an overlapping tick waits and then sees the marker.
func (s *Service) tick(ctx context.Context, now time.Time) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	date := now.Format("2006-01-02")
	minute := now.Format("15:04")

	for _, slot := range s.cfg.Slots {
		if !slotMatches(slot.At, minute) {
			continue
		}
		pending, err := s.isPending(ctx, slot.ID, date)
		if err != nil {
			// Can't trust the state; skip rather than risk a double send.
			s.log.Warn("scheduler state unavailable", logx.String("slot", slot.ID), logx.Err(err))
			continue
		}
		if !pending {
			continue
		}

		if err := s.dispatch(ctx, slot); err != nil {
			s.log.Warn("slot dispatch failed", logx.String("slot", slot.ID), logx.Err(err))
		} else {
			s.log.Info("slot dispatched", logx.String("slot", slot.ID), logx.String("date", date))
		}
		// Mark after the attempt regardless of outcome: at-most-once per
		// slot per day, even when the broadcast partially failed.
		if err := s.markSent(ctx, slot.ID, date); err != nil {
			s.log.Error("failed persisting sent marker", logx.String("slot", slot.ID), logx.Err(err))
		}
	}
}

// slotMatches normalizes "8:05" vs "08:05" before comparing.
func slotMatches(at, minute string) bool {
	h, m, err := parseHHMM(at)
	if err != nil {
		return false
	}
	return fmt.Sprintf("%02d:%02d", h, m) == minute
}

// isPending reports whether the slot has not yet been sent on the given
// date. A date absent from the persisted state means all slots pending.
func (s *Service) isPending(ctx context.Context, slotID, date string) (bool, error) {
	data, ok, err := s.docs.Load(ctx, docSchedulerState)
	if err != nil {
		return false, err
	}
	state, err := decodeState(data, ok)
	if err != nil {
		return false, err
	}
	for _, id := range state[date] {
		if id == slotID {
			return false, nil
		}
	}
	return true, nil
}

func (s *Service) markSent(ctx context.Context, slotID, date string) error {
	return s.docs.Update(ctx, docSchedulerState, func(data []byte, ok bool) ([]byte, error) {
		state, err := decodeState(data, ok)
		if err != nil {
			return nil, err
		}
		for _, id := range state[date] {
			if id == slotID {
				return nil, storage.ErrNoChange
			}
		}
		state[date] = append(state[date], slotID)
		// Older dates can never fire again; drop them to keep the
		// document from growing forever.
		for d := range state {
			if d != date {
				delete(state, d)
			}
		}
		return json.Marshal(state)
	})
}

func decodeState(data []byte, ok bool) (map[string][]string, error) {
	if !ok || len(data) == 0 {
		return map[string][]string{}, nil
	}
	var state map[string][]string
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%s: %w", docSchedulerState, err)
	}
	return state, nil
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
