// Package app assembles the service: config, logging, storage, the Discord
// adapter, and the single event loop that owns all mutable state.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"voicely/internal/adapters/discord"
	"voicely/internal/commands"
	"voicely/internal/config"
	"voicely/internal/eventbus"
	"voicely/internal/presence"
	"voicely/internal/registry"
	"voicely/internal/runtime/supervisor"
	"voicely/internal/settings"
	"voicely/internal/storage"
	"voicely/internal/transport"
	logx "voicely/pkg/logx"
)

const (
	eventBuffer    = 256
	eventTimeout   = 30 * time.Second
	defaultSend    = 10 * time.Second
	defaultJanitor = "@every 10m"
)

type App struct {
	log    logx.Logger
	logSvc *logx.Service
	cfgm   *config.Manager

	store    storage.Store
	registry *registry.Registry
	settings *settings.Service
	tracker  *presence.Tracker
	proc     *presence.Processor
	router   *commands.Router
	gateway  *discord.Adapter
	bus      eventbus.Bus

	events chan transport.Event
}

// New loads the config file and constructs every component. Nothing is
// connected or running yet; Run does that.
func New(ctx context.Context, configPath string) (*App, error) {
	cfgm := config.NewManager(configPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", configPath, err)
	}

	logSvc, log := logx.New(logConfig(cfg.Logging), nil)
	cfgm.SetLogger(log.With(logx.String("svc", "config")))

	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.Storage.BusyTimeout,
	}, log.With(logx.String("svc", "storage")))
	if err != nil {
		logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	gw, err := discord.New(discord.Config{Token: cfg.Discord.Token},
		log.With(logx.String("svc", "discord")))
	if err != nil {
		_ = store.Close()
		logSvc.Close()
		return nil, err
	}
	logSvc.SetGateway(gw)
	logSvc.SetOperator(cfg.Discord.OperatorUserID)

	reg := registry.Open(ctx, store, log.With(logx.String("svc", "registry")))
	sett := settings.Open(ctx, store, log.With(logx.String("svc", "settings")))
	tracker := presence.NewTracker()
	bus := eventbus.New()

	proc := presence.NewProcessor(reg, tracker, gw, bus,
		log.With(logx.String("svc", "presence")))
	sendTimeout, err := config.ParseDurationOrDefault("discord.send_timeout", cfg.Discord.SendTimeout, defaultSend)
	if err != nil {
		_ = store.Close()
		logSvc.Close()
		return nil, err
	}
	proc.SetSendTimeout(sendTimeout)

	router := commands.NewRouter(reg, sett, gw, commands.NewSessionStore(0),
		log.With(logx.String("svc", "commands")))

	return &App{
		log:      log.With(logx.String("svc", "app")),
		logSvc:   logSvc,
		cfgm:     cfgm,
		store:    store,
		registry: reg,
		settings: sett,
		tracker:  tracker,
		proc:     proc,
		router:   router,
		gateway:  gw,
		bus:      bus,
		events:   make(chan transport.Event, eventBuffer),
	}, nil
}

// Run connects the gateway and blocks until ctx is cancelled or a component
// fails. Shutdown is orderly: gateway first, then the loop drains out.
func (a *App) Run(ctx context.Context) error {
	defer a.logSvc.Close()
	defer a.store.Close()

	sup := supervisor.New(ctx,
		supervisor.WithLogger(a.log),
		supervisor.WithCancelOnError(true),
	)

	sup.Go("gateway", func(ctx context.Context) error {
		if err := a.gateway.Start(ctx, a.events); err != nil {
			return err
		}
		<-ctx.Done()
		return a.gateway.Stop(context.Background())
	})

	sup.Go("config-watch", a.cfgm.Watch)
	sup.Go("config-apply", a.applyConfigUpdates)
	sup.Go("bus-log", a.logBusEvents)
	sup.Go("loop", a.loop)

	if c := a.startJanitor(); c != nil {
		defer c.Stop()
	}

	a.log.Info("service started")
	err := sup.Wait(context.Background())
	a.log.Info("service stopped", logx.Err(err))
	return err
}

// loop is the single writer of the registry, settings, tracker and session
// state. Every presence update, interaction and janitor tick flows through
// here, one at a time.
func (a *App) loop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-a.events:
			a.dispatch(ctx, ev)
		}
	}
}

func (a *App) dispatch(ctx context.Context, ev transport.Event) {
	cctx, cancel := context.WithTimeout(ctx, eventTimeout)
	defer cancel()

	switch ev.Kind {
	case transport.EventPresence:
		a.proc.HandlePresence(cctx, ev.Presence)
	case transport.EventInteraction:
		a.router.Handle(cctx, ev.Interaction)
	case transport.EventJanitor:
		a.proc.Janitor(cctx)
	default:
		a.log.Warn("unknown event kind", logx.String("kind", string(ev.Kind)))
	}
}

// logBusEvents mirrors notification outcomes into the debug log. It is a
// bus subscriber like any other; dropped events under load are acceptable.
func (a *App) logBusEvents(ctx context.Context) error {
	ch, unsub := a.bus.Subscribe(64)
	defer unsub()

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			ne, ok := e.Data.(presence.NotifyEvent)
			if !ok {
				continue
			}
			a.log.Debug("notification outcome",
				logx.String("type", e.Type),
				logx.String("tenant", ne.Tenant),
				logx.String("room", ne.Room),
				logx.String("subscriber", ne.Subscriber),
				logx.Int("threshold", ne.Threshold),
			)
		}
	}
}

// startJanitor schedules periodic tracker sweeps. The tick is enqueued into
// the event loop rather than run here, preserving the single-writer rule; a
// tick that finds the loop busy is skipped.
func (a *App) startJanitor() *cron.Cron {
	cfg := a.cfgm.Get()
	if cfg == nil || !cfg.Janitor.Enabled {
		return nil
	}
	schedule := cfg.Janitor.Schedule
	if schedule == "" {
		schedule = defaultJanitor
	}

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		select {
		case a.events <- transport.Event{Kind: transport.EventJanitor}:
		default:
			a.log.Debug("janitor tick skipped (loop busy)")
		}
	})
	if err != nil {
		a.log.Warn("janitor schedule rejected",
			logx.String("schedule", schedule), logx.Err(err))
		return nil
	}
	c.Start()
	a.log.Info("janitor scheduled", logx.String("schedule", schedule))
	return c
}

// applyConfigUpdates handles live reloads. Only logging settings, the
// operator and the send timeout apply at runtime; token and storage changes
// need a restart.
func (a *App) applyConfigUpdates(ctx context.Context) error {
	ch := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg, ok := <-ch:
			if !ok {
				return nil
			}
			if cfg == nil {
				continue
			}
			a.logSvc.Apply(logConfig(cfg.Logging))
			a.logSvc.SetOperator(cfg.Discord.OperatorUserID)
			if d, err := config.ParseDurationOrDefault("discord.send_timeout", cfg.Discord.SendTimeout, defaultSend); err == nil {
				a.proc.SetSendTimeout(d)
			}
			a.log.Info("runtime config applied")
		}
	}
}

func logConfig(c config.LoggingConfig) logx.Config {
	return logx.Config{
		Level:   c.Level,
		Console: c.Console,
		File: logx.FileConfig{
			Enabled: c.File.Enabled,
			Path:    c.File.Path,
		},
		Gateway: logx.GatewayConfig{
			Enabled:    c.Gateway.Enabled,
			MinLevel:   c.Gateway.MinLevel,
			RatePerSec: c.Gateway.RatePerSec,
		},
	}
}
