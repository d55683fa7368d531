// Package core assembles the daemon: config, logging, storage, the namespace
// store, the event batcher, the notification dispatcher, and the reminder
// scheduler, with hot reload and ordered shutdown.
package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"pawtrack/internal/batcher"
	"pawtrack/internal/config"
	"pawtrack/internal/eventbus"
	"pawtrack/internal/notify"
	"pawtrack/internal/reminder"
	rtsup "pawtrack/internal/runtime/supervisor"
	"pawtrack/internal/storage"
	"pawtrack/internal/store"
	"pawtrack/internal/transport/telegram"
	logx "pawtrack/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service

	store   *store.Store
	persist *storage.Manager
	bus     eventbus.Bus
	batch   *batcher.Service
	notif   *notify.Service
	rem     *reminder.Service

	cleanupMu sync.Mutex
	cleanup   cleanupSettings
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogging(cfg))
	log = log.With(logx.String("comp", "app"))

	driver, err := storage.Open(mapStorage(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	persist := storage.NewManager(driver, mapStorageManager(cfg), log.With(logx.String("comp", "storage")))

	st := store.New(cfg.Engine.MaxHistory)
	hydrate(st, persist)

	bus := eventbus.New()
	batch := batcher.New(mapBatcher(cfg), st, persist, bus, log)

	sender := logSender(log.With(logx.String("comp", "notify")))
	if telegramConfigured(cfg) {
		tg, err := telegram.New(telegram.Config{
			Token:         cfg.Telegram.Token,
			ChatID:        cfg.Telegram.ChatID,
			ClientTimeout: durationOf(cfg.Telegram.PollTimeout),
		}, log.With(logx.String("comp", "telegram")))
		if err != nil {
			persist.Close(context.Background())
			logSvc.Close()
			return nil, fmt.Errorf("telegram transport: %w", err)
		}
		sender = tg
	}

	notif := notify.New(mapNotifier(cfg), sender, log.With(logx.String("comp", "notify")))
	rem := reminder.New(mapReminders(cfg), notif, log.With(logx.String("comp", "reminders")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   st,
		persist: persist,
		bus:     bus,
		batch:   batch,
		notif:   notif,
		rem:     rem,
		cleanup: mapCleanup(cfg),
	}, nil
}

// Store exposes the namespace store for read-side integrations.
func (a *App) Store() *store.Store { return a.store }

// Bus exposes the signal bus so integrations can subscribe to completions.
func (a *App) Bus() eventbus.Bus { return a.bus }

// Batcher is the ingestion point for producers.
func (a *App) Batcher() *batcher.Service { return a.batch }

// Notifier exposes the dispatcher so producers can enqueue directly.
func (a *App) Notifier() *notify.Service { return a.notif }

// Done is closed when the app run context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})

	a.batch.Start(a.sup.Context())
	a.notif.Start(a.sup.Context())
	if err := a.rem.Start(); err != nil {
		return fmt.Errorf("reminders: %w", err)
	}

	if a.persist.Persistent() {
		a.sup.Go0("storage.cleanup", a.cleanupLoop)
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started",
		logx.Bool("persistent", a.persist.Persistent()),
		logx.Bool("notifier", a.notif.Enabled()))
	return nil
}

func (a *App) cleanupLoop(c context.Context) {
	for {
		cs := a.cleanupConfig()
		if cs.interval <= 0 {
			// Cleanup disabled via hot reload; park until re-enabled or done.
			cs.interval = time.Minute
		}
		select {
		case <-c.Done():
			return
		case <-time.After(cs.interval):
			if cs = a.cleanupConfig(); cs.interval > 0 {
				a.persist.CleanupCache(cs.maxAge)
			}
		}
	}
}

func (a *App) cleanupConfig() cleanupSettings {
	a.cleanupMu.Lock()
	defer a.cleanupMu.Unlock()
	return a.cleanup
}

// reloadLoop applies committed config updates to running components.
func (a *App) reloadLoop(c context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-c.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest update.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs := config.SummarizeChange(lastApplied, newCfg)
			lastApplied = newCfg

			a.logs.Apply(mapLogging(newCfg))
			a.batch.Apply(mapBatcher(newCfg))
			a.notif.Apply(mapNotifier(newCfg))
			if err := a.rem.Apply(mapReminders(newCfg)); err != nil {
				a.log.Warn("reminder config not applied", logx.Err(err))
			}
			a.cleanupMu.Lock()
			a.cleanup = mapCleanup(newCfg)
			a.cleanupMu.Unlock()

			if len(sections) > 0 {
				a.log.Info("config reloaded",
					append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
			} else {
				a.log.Info("config reloaded (no changes)")
			}
		}
	}
}

// Stop tears the app down in dependency order: reminders stop producing,
// the batcher drains into the store and schedules its final save, the
// dispatcher finishes its in-flight send, storage flushes and closes.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	a.step(ctx, "reminders", 2*time.Second, func(c context.Context) error {
		a.rem.Stop(c)
		return nil
	})
	a.step(ctx, "batcher", 3*time.Second, func(c context.Context) error {
		a.batch.Stop(c)
		return nil
	})
	a.step(ctx, "notifier", 2*time.Second, func(c context.Context) error {
		a.notif.Stop(c)
		return nil
	})
	a.step(ctx, "storage", 3*time.Second, func(c context.Context) error {
		return a.persist.Close(c)
	})
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error {
		return a.sup.Wait(c)
	})

	a.log.Info("stopped")
	a.logs.Close()
	return nil
}

// step runs one shutdown action with an upper bound so a single component
// can't stall the whole stop. The caller's deadline is respected, never
// extended.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()

	stepCtx := ctx
	var cancel context.CancelFunc
	if max > 0 {
		if dl, ok := ctx.Deadline(); ok {
			if rem := time.Until(dl); rem > 0 && rem < max {
				max = rem
			}
		}
		stepCtx, cancel = context.WithTimeout(ctx, max)
		defer cancel()
	}

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
		}
		a.log.Debug("stop step done", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
	}
}

// hydrate loads every namespace from storage into the in-memory store. Load
// failures already degraded to empty namespaces inside the manager.
func hydrate(st *store.Store, persist *storage.Manager) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, ns := range store.Namespaces() {
		st.Load(ns, persist.Load(ctx, ns))
	}
}
