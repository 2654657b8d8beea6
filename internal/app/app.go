// Package app assembles the engine: configuration, logging, storage,
// the sync and broadcast executors, and the scheduler, wired together
// with hot reload.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/MKWorldWide/MKronoSphere/internal/broadcast"
	"github.com/MKWorldWide/MKronoSphere/internal/broadcast/channels"
	"github.com/MKWorldWide/MKronoSphere/internal/config"
	"github.com/MKWorldWide/MKronoSphere/internal/eventbus"
	"github.com/MKWorldWide/MKronoSphere/internal/scheduler"
	"github.com/MKWorldWide/MKronoSphere/internal/storage"
	"github.com/MKWorldWide/MKronoSphere/internal/syncer"
	"github.com/MKWorldWide/MKronoSphere/internal/syncer/strategies"
	"github.com/MKWorldWide/MKronoSphere/pkg/logx"
)

// Built-in strategy priorities. HTTP outranks file so a target that
// could match both goes over the wire.
const (
	prioHTTP      = 10
	prioWebSocket = 8
	prioFile      = 5
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger

	bus   eventbus.Bus
	store storage.Store

	sync  *syncer.Executor
	bcast *broadcast.Executor
	sched *scheduler.Scheduler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		// No file is fine for a first run; defaults carry the engine.
		cfg = config.Default()
		cfgm.Commit(cfg)
	}

	logSvc, log := logx.New(logConfig(cfg))
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	store, err := storage.Open(storageConfig(cfg), log.With(logx.String("comp", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	bus := eventbus.New()

	syncExec := syncer.New(syncConfig(cfg),
		log.With(logx.String("comp", "sync")), bus, store)
	bcast := broadcast.New(broadcastConfig(cfg),
		log.With(logx.String("comp", "broadcast")), bus, store)
	sched := scheduler.New(scheduler.Config{Timezone: cfg.Scheduler.Timezone},
		syncExec, log.With(logx.String("comp", "scheduler")))
	syncExec.SetScheduleHook(sched)

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		logs:    logSvc,
		log:     log,
		bus:     bus,
		store:   store,
		sync:    syncExec,
		bcast:   bcast,
		sched:   sched,
	}
	a.registerBuiltins(cfg)
	return a, nil
}

func (a *App) Sync() *syncer.Executor          { return a.sync }
func (a *App) Broadcast() *broadcast.Executor  { return a.bcast }
func (a *App) Scheduler() *scheduler.Scheduler { return a.sched }
func (a *App) Bus() eventbus.Bus               { return a.bus }
func (a *App) Store() storage.Store            { return a.store }
func (a *App) Config() *config.Config          { return a.cfgm.Get() }
func (a *App) Logger() logx.Logger             { return a.log }

func (a *App) registerBuiltins(cfg *config.Config) {
	a.sync.Strategies().Register(strategies.NewHTTP(prioHTTP))
	a.sync.Strategies().Register(strategies.NewWebSocket(prioWebSocket))
	a.sync.Strategies().Register(strategies.NewFile(prioFile))

	ch := cfg.Broadcast.Channels
	if cfg.ConsoleChannel() {
		a.bcast.RegisterChannel(channels.NewConsole(ch.Console.Priority, nil))
	}
	if ch.File.Enabled {
		a.bcast.RegisterChannel(channels.NewFile(ch.File.Priority, ch.File.Path))
	}
	if ch.Webhook.Enabled {
		a.bcast.RegisterChannel(channels.NewWebhook("webhook", ch.Webhook.Priority, ch.Webhook.URL, ch.Webhook.Token))
	}
	if ch.Telegram.Enabled {
		tg, err := channels.NewTelegram(ch.Telegram.Priority, ch.Telegram.Token, ch.Telegram.ChatID)
		if err != nil {
			a.log.Warn("telegram channel disabled", logx.Err(err))
		} else {
			a.bcast.RegisterChannel(tg)
		}
	}
	if ch.Sound.Enabled {
		a.bcast.RegisterChannel(channels.NewSound(ch.Sound.Priority, nil))
	}
}

// Start brings up the scheduler, the config watcher, and the reload
// fan-out. It returns immediately; cancellation of ctx begins shutdown
// but Stop must still be called to flush and close.
func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.sched.Start(runCtx)

	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts, keeping only the newest config.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							cfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(cfg)
			}
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	a.log.Info("engine started")
	return nil
}

func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	a.logs.Apply(logConfig(cfg))
	a.sync.Apply(syncConfig(cfg))
	a.bcast.Apply(broadcastConfig(cfg))
	a.sched.Apply(scheduler.Config{Timezone: cfg.Scheduler.Timezone})
	a.log.Info("config reloaded")
}

// Stop unwinds in reverse dependency order. Each step is bounded so a
// stuck component cannot stall the whole shutdown.
func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	a.log.Info("stopping")

	a.step(ctx, "scheduler", 3*time.Second, func(c context.Context) error {
		a.sched.Stop(c)
		return nil
	})
	a.step(ctx, "watchers", 2*time.Second, func(c context.Context) error {
		done := make(chan struct{})
		go func() { a.wg.Wait(); close(done) }()
		select {
		case <-done:
			return nil
		case <-c.Done():
			return c.Err()
		}
	})
	if a.store != nil {
		a.step(ctx, "storage", time.Second, func(context.Context) error {
			return a.store.Close()
		})
	}

	a.log.Info("stopped")
	return a.logs.Close()
}

func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	stepCtx := ctx
	var cancel context.CancelFunc
	if max > 0 {
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
			a.log.Warn("stop step error", logx.String("step", name), logx.Err(err))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("step", name), logx.Err(stepCtx.Err()))
	}
}
