// Package app wires the components together: config, logging, storage,
// catalog, navigation, relay, broadcast, scheduler and the Telegram
// transport, all supervised under one context.
package app

import (
	"context"
	"fmt"
	"time"

	"studybot/internal/broadcast"
	"studybot/internal/catalog"
	"studybot/internal/config"
	"studybot/internal/gateway"
	"studybot/internal/nav"
	"studybot/internal/relay"
	rtsup "studybot/internal/runtime/supervisor"
	"studybot/internal/scheduler"
	"studybot/internal/storage"
	"studybot/internal/transport"
	"studybot/internal/transport/telegram"
	logx "studybot/pkg/logx"
)

type App struct {
	cfg *config.Config

	log      logx.Logger
	logClose func() error

	store  storage.Store
	docs   *storage.Documents
	holder *catalog.Holder

	adapter transport.Adapter
	gw      *gateway.Gateway
	sched   *scheduler.Service // nil when disabled

	sup     *rtsup.Supervisor
	updates chan transport.Update
}

func New(cfgPath string) (*App, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	log, logClose := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	a := &App{
		cfg:      cfg,
		log:      log.With(logx.String("comp", "app")),
		logClose: logClose,
		updates:  make(chan transport.Update, 256),
	}
	if err := a.build(cfg, log); err != nil {
		_ = logClose()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, log logx.Logger) error {
	pollTimeout, err := config.ParseDuration(cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return fmt.Errorf("telegram.poll_timeout: %w", err)
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return err
	}
	a.adapter = adapter

	busyTimeout, err := config.ParseDuration(cfg.Storage.BusyTimeout, 0)
	if err != nil {
		return fmt.Errorf("storage.busy_timeout: %w", err)
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return err
	}
	a.store = store
	a.docs = storage.NewDocuments(store)

	tree, err := catalog.LoadFile(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	a.holder = catalog.NewHolder(tree)

	reg := relay.NewRegistry(a.docs)
	router := relay.NewRouter(relay.Config{ModeratorChat: cfg.Relay.ModeratorChat},
		adapter, reg, log.With(logx.String("comp", "relay")))

	pruneOn := make([]transport.FailureKind, 0, len(cfg.Broadcast.PruneOn))
	for _, k := range cfg.Broadcast.PruneOn {
		pruneOn = append(pruneOn, transport.FailureKind(k))
	}
	bc := broadcast.New(broadcast.Config{
		ModeratorChat: cfg.Relay.ModeratorChat,
		Workers:       cfg.Broadcast.Workers,
		RatePerSec:    cfg.Broadcast.RatePerSec,
		PruneOn:       pruneOn,
	}, adapter, reg, log.With(logx.String("comp", "broadcast")))

	navEngine := nav.NewEngine(a.holder, nav.NewStore())
	a.gw = gateway.New(gateway.Config{ModeratorChat: cfg.Relay.ModeratorChat},
		adapter, navEngine, router, bc, reg, log.With(logx.String("comp", "gateway")))

	if cfg.Scheduler.Enabled {
		poll, err := config.ParseDuration(cfg.Scheduler.PollInterval, 20*time.Second)
		if err != nil {
			return fmt.Errorf("scheduler.poll_interval: %w", err)
		}
		slots := make([]scheduler.Slot, 0, len(cfg.Scheduler.Slots))
		for _, s := range cfg.Scheduler.Slots {
			slots = append(slots, scheduler.Slot{ID: s.ID, At: s.At, Text: s.Text})
		}
		sched, err := scheduler.New(scheduler.Config{
			Timezone:     cfg.Scheduler.Timezone,
			Slots:        slots,
			PollInterval: poll,
		}, a.docs, func(ctx context.Context, slot scheduler.Slot) error {
			// Scheduled slots are system announcements; no sender to authorize.
			_, err := bc.Announce(ctx, broadcast.Content{Text: slot.Text})
			return err
		}, log.With(logx.String("comp", "scheduler")))
		if err != nil {
			return err
		}
		a.sched = sched
	}
	return nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}

	a.sup.Go("gateway.dispatch", func(c context.Context) error {
		return a.gw.Run(c, a.updates)
	})

	if a.cfg.Catalog.Watch {
		a.sup.GoRestart("catalog.watch", func(c context.Context) error {
			return catalog.Watch(c, a.cfg.Catalog.Path, a.holder, a.log.With(logx.String("comp", "catalog")))
		})
	}

	if a.sched != nil {
		if err := a.sched.Start(a.sup.Context()); err != nil {
			return err
		}
	}

	a.log.Info("app started",
		logx.String("storage", a.cfg.Storage.Driver),
		logx.Bool("scheduler", a.sched != nil),
		logx.Bool("catalog_watch", a.cfg.Catalog.Watch))
	return nil
}

// Done is closed when the supervised context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	// Bounded shutdown steps so one stuck component cannot stall the rest.
	a.step(ctx, "scheduler", 2*time.Second, func(context.Context) error {
		if a.sched != nil {
			a.sched.Stop()
		}
		return nil
	})
	a.step(ctx, "adapter", 3*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.step(ctx, "storage", 1*time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logClose != nil {
		_ = a.logClose()
	}
	return nil
}

func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		} else {
			a.log.Debug("stop step done", logx.String("name", name), logx.Duration("took", time.Since(start)))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)))
	}
}
