// Package app wires the bridge together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"pushbridge/internal/bridge"
	"pushbridge/internal/config"
	"pushbridge/internal/consumer"
	"pushbridge/internal/control"
	"pushbridge/internal/eventbus"
	"pushbridge/internal/host"
	"pushbridge/internal/metrics"
	"pushbridge/internal/platform"
	"pushbridge/internal/platform/httpin"
	"pushbridge/internal/platform/natsin"
	"pushbridge/internal/runtime/supervisor"
	"pushbridge/internal/server"
	"pushbridge/internal/storage"
	"pushbridge/internal/topics"
	logx "pushbridge/pkg/logx"
	"pushbridge/pkg/systemd"
)

type App struct {
	cfgm *config.Manager
	cfg  *config.Config

	logs *logx.Service
	log  logx.Logger

	bus     eventbus.Bus
	metrics *metrics.Metrics
	store   storage.Store

	hub     *platform.Hub
	channel *consumer.Channel
	bridge  *bridge.Bridge
	tracker *host.Tracker
	surface *control.Surface
	topics  *topics.Client
	server  *server.Server
	nats    *natsin.Client
	notify  *systemd.Notifier

	cron   *cron.Cron
	cronMu sync.Mutex
	cronID cron.EntryID

	stdin  io.Reader
	stdout io.Writer

	sup *supervisor.Supervisor
}

type Option func(*App)

// WithStdio replaces stdin/stdout for the stdio consumer transport.
func WithStdio(r io.Reader, w io.Writer) Option {
	return func(a *App) { a.stdin, a.stdout = r, w }
}

// NewApp loads the config at cfgPath (empty means defaults plus environment)
// and builds every component. Nothing runs until Start.
func NewApp(cfgPath string, opts ...Option) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs, log := logx.New(mapLogging(cfg))
	a := &App{
		cfgm:    cfgm,
		cfg:     cfg,
		logs:    logs,
		log:     log,
		bus:     eventbus.New(),
		metrics: metrics.New(),
		stdin:   os.Stdin,
		stdout:  os.Stdout,
	}
	for _, o := range opts {
		o(a)
	}
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	sc, enabled, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	if enabled {
		a.store, err = storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
	}

	var tokenStore storage.Store
	if cfg.Token.Persist {
		tokenStore = a.store
	}
	tokens := platform.NewTokenCache(tokenStore, log)
	if tokenStore != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		tokens.Load(ctx)
		cancel()
	}
	a.hub = platform.NewHub(cfg.Ingress.Buffer, tokens, log.With(logx.String("comp", "platform")), a.bus)

	// The surface needs the bridge, which needs the channel; bind it late.
	a.channel = consumer.NewChannel(
		consumer.HandlerFunc(func(ctx context.Context, req control.Request) control.Response {
			return a.surface.Handle(ctx, req)
		}),
		consumer.WithLogger(log),
		consumer.WithBus(a.bus),
		consumer.WithMetrics(a.metrics),
		consumer.WithQueueSize(cfg.Consumer.QueueSize),
	)
	a.bridge = bridge.New(a.channel,
		bridge.WithLogger(log.With(logx.String("comp", "bridge"))),
		bridge.WithBus(a.bus),
		bridge.WithMetrics(a.metrics),
	)
	a.tracker = host.NewTracker(a.bridge, log.With(logx.String("comp", "host")))

	deps := control.Deps{
		Tokens:  a.hub,
		Host:    a.tracker,
		Bridge:  a.bridge,
		Store:   a.store,
		Log:     log,
		Metrics: a.metrics,
	}
	if cfg.Topics.Enabled {
		tc, err := mapTopicsConfig(cfg)
		if err != nil {
			return nil, err
		}
		a.topics = topics.New(tc, tokens, log, a.bus, a.metrics)
		deps.Topics = a.topics
	}
	a.surface = control.New(deps)
	a.surface.SetFlagLocation(mapFlagLocation(cfg))

	if cfg.HTTP.Enabled {
		sc, err := mapServerConfig(cfg)
		if err != nil {
			return nil, err
		}
		d := server.Deps{
			Ingress:  httpin.New(a.hub, a.tracker, log),
			Attached: a.channel.Attached,
			Store:    a.store,
			Metrics:  a.metrics,
		}
		if cfg.Consumer.Transport == config.TransportWebsocket {
			d.Consumer = consumer.NewWSAcceptor(a.channel, log)
		}
		a.server = server.New(sc, d, log)
	}

	a.notify = systemd.NewNotifier(cfg.Systemd.Notify, log)
	clog := cronLogger{log: log.With(logx.String("comp", "cron"))}
	a.cron = cron.New(cron.WithLogger(clog), cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)))
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error,
// end of stdio input or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// HTTPAddr is the bound HTTP address, empty when HTTP is disabled or not
// started.
func (a *App) HTTPAddr() string {
	if a.server == nil {
		return ""
	}
	return a.server.Addr()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	if err := a.start(); err != nil {
		a.sup.Cancel()
		return err
	}
	a.notify.Ready()
	a.notify.Status("consumer transport " + a.cfg.Consumer.Transport)
	a.log.Info("started",
		logx.String("transport", a.cfg.Consumer.Transport),
		logx.Bool("http", a.server != nil),
		logx.Bool("nats", a.nats != nil),
		logx.Bool("topics", a.topics != nil),
	)
	return nil
}

func (a *App) start() error {
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	a.sup.Go("consumer.writer", a.channel.Run)
	a.sup.Go("bridge", func(c context.Context) error { return a.bridge.Run(c, a.hub.Events()) })
	if a.topics != nil {
		a.topics.Start(a.sup)
	}

	if a.server != nil {
		if err := a.server.Listen(); err != nil {
			return fmt.Errorf("http listen: %w", err)
		}
		a.sup.Go("http", a.server.Serve)
	}

	if a.cfg.Ingress.NATS.Enabled {
		nc, err := natsin.Connect(mapNATSConfig(a.cfg), a.hub, a.log)
		if err != nil {
			return err
		}
		a.nats = nc
	}

	if a.cfg.Consumer.Transport == config.TransportStdio {
		a.sup.Go("consumer.stdio", func(c context.Context) error {
			err := a.channel.Serve(c, consumer.NewStdioConn(a.stdin, a.stdout))
			if err == nil && c.Err() == nil {
				a.log.Info("consumer input closed; shutting down")
				a.sup.Cancel()
			}
			return err
		})
	}

	if err := a.scheduleRebroadcast(a.cfg.Token.Rebroadcast); err != nil {
		return err
	}
	a.cron.Start()

	a.sup.Go("config.watch", a.cfgm.Watch)
	a.startReloadLoop()

	a.sup.Go0("systemd.watchdog", a.notify.Watchdog)
	return nil
}

// scheduleRebroadcast replaces the token rebroadcast job. An empty spec
// removes it.
func (a *App) scheduleRebroadcast(spec string) error {
	a.cronMu.Lock()
	defer a.cronMu.Unlock()
	if a.cronID != 0 {
		a.cron.Remove(a.cronID)
		a.cronID = 0
	}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil
	}
	id, err := a.cron.AddFunc(spec, func() {
		a.log.Debug("scheduled token rebroadcast")
		a.hub.RequestToken()
	})
	if err != nil {
		return fmt.Errorf("token.rebroadcast: %w", err)
	}
	a.cronID = id
	return nil
}

func (a *App) startReloadLoop() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				newCfg = latest(sub, newCfg)
				a.notify.Reloading()
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
				a.notify.Ready()
			}
		}
	})
}

// latest drains pending revisions and keeps the newest.
func latest(sub chan *config.Config, cfg *config.Config) *config.Config {
	for {
		select {
		case newer := <-sub:
			if newer != nil {
				cfg = newer
			}
		default:
			return cfg
		}
	}
}

func (a *App) applyConfig(old, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(old, newCfg)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("restart required for changes to take effect", logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLogging(newCfg))
	a.surface.SetFlagLocation(mapFlagLocation(newCfg))

	if newCfg.Topics.Enabled != (a.topics != nil) {
		a.log.Warn("topics.enabled changed; restart required")
	}
	if a.topics != nil {
		tc, err := mapTopicsConfig(newCfg)
		if err != nil {
			a.log.Warn("invalid topics config; keeping previous", logx.Err(err))
		} else {
			a.topics.Apply(tc)
		}
	}

	if old == nil || old.Token.Rebroadcast != newCfg.Token.Rebroadcast {
		if err := a.scheduleRebroadcast(newCfg.Token.Rebroadcast); err != nil {
			a.log.Warn("token rebroadcast not rescheduled", logx.Err(err))
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.notify.Stopping()

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	// step runs one shutdown step with an upper bound so one component
	// can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if dl, ok := ctx.Deadline(); ok && time.Until(dl) < max {
			max = time.Until(dl)
		}
		if max > 0 {
			var cancel context.CancelFunc
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
				return
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Err(stepCtx.Err()))
		}
	}

	step("nats", time.Second, func(context.Context) error { a.nats.Close(); return nil })
	step("cron", 2*time.Second, func(c context.Context) error {
		select {
		case <-a.cron.Stop().Done():
			return nil
		case <-c.Done():
			return c.Err()
		}
	})
	step("consumer", time.Second, func(context.Context) error { a.channel.Close(); return nil })
	step("platform", 2*time.Second, func(context.Context) error { a.hub.Close(); return nil })
	step("supervisor", 5*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped")
	return a.logs.Close()
}

// cronLogger routes cron's own logging through logx. cron's default logger
// writes to stdout, which the stdio transport owns.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug(msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Warn(msg, logx.Err(err), logx.Any("kv", kv))
}
