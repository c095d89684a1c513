package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"eventpulse/internal/clock"
	"eventpulse/internal/config"
	"eventpulse/internal/eventbus"
	"eventpulse/internal/lifecycle"
	"eventpulse/internal/observability/diag"
	"eventpulse/internal/runtime/supervisor"
	"eventpulse/internal/scheduler"
	"eventpulse/internal/source"
	"eventpulse/internal/storage"
	logx "eventpulse/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor
	clk  clock.Clock

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store
	src   source.Source

	sched      *scheduler.Service
	refresher  *source.Refresher
	countdowns *countdowns
	diag       *diag.Service

	// reloadMu serializes source reloads with each other and with Stop.
	reloadMu sync.Mutex
	stopping atomic.Bool

	mu     sync.RWMutex
	events []lifecycle.EventRecord
}

type Option func(*App)

// WithClock replaces the wall clock for the scheduler and countdowns.
func WithClock(c clock.Clock) Option { return func(a *App) { a.clk = clock.OrReal(c) } }

func NewApp(cfgPath string, opts ...Option) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	a := &App{cfgPath: cfgPath, cfgm: cfgm, clk: clock.New()}
	for _, o := range opts {
		if o != nil {
			o(a)
		}
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	a.logs = logSvc
	a.log = log.With(logx.String("comp", "app"))
	a.bus = eventbus.New()

	// Storage (optional)
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		logSvc.Close()
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			logSvc.Close()
			return nil, err
		}
		a.store = st
		a.log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	src, err := source.Open(cfg.Source, a.store, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.src = src

	schedOpts := []scheduler.Option{
		scheduler.WithClock(a.clk),
		scheduler.WithLogger(log.With(logx.String("comp", "scheduler"))),
		scheduler.WithBus(a.bus),
		scheduler.WithConfig(mapSchedulerConfig(cfg)),
	}
	if a.store != nil {
		schedOpts = append(schedOpts, scheduler.WithRecorder(storeRecorder{store: a.store}))
	}
	a.sched = scheduler.New(schedOpts...)
	a.countdowns = newCountdowns(a.clk, log.With(logx.String("comp", "countdown")))
	a.diag = diag.New(mapDiagConfig(cfg), func() any { return a.Status() }, log.With(logx.String("comp", "diag")))

	return a, nil
}

// Scheduler exposes the lifecycle scheduler, e.g. for OnStatusChange.
func (a *App) Scheduler() *scheduler.Service { return a.sched }

// Bus exposes the in-process event bus.
func (a *App) Bus() eventbus.Bus { return a.bus }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
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

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if strings.TrimSpace(cfg.Source.Refresh) != "" {
			if _, err := source.ParseRefresh(cfg.Source.Refresh); err != nil {
				return fmt.Errorf("source.refresh: %w", err)
			}
		}
		return nil
	})

	cfg := a.cfgm.Get()
	if err := a.Reload(a.sup.Context(), "startup"); err != nil {
		a.sup.Cancel()
		return fmt.Errorf("initial load: %w", err)
	}

	a.refresher = source.NewRefresher(func() {
		_ = a.Reload(a.sup.Context(), "refresh")
	}, refreshLocation(cfg.Scheduler.Timezone), a.log.With(logx.String("comp", "refresh")))
	if err := a.refresher.Apply(cfg.Source.Refresh); err != nil {
		a.sup.Cancel()
		return fmt.Errorf("source.refresh: %w", err)
	}

	if w, ok := a.src.(source.Watcher); ok && cfg.Source.Watch {
		a.sup.GoRestart("source.watch", func(c context.Context) error {
			return w.Watch(c, func() { _ = a.Reload(c, "watch") })
		}, time.Second, 30*time.Second)
	}

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
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})

	// hot reload config fan-out
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
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.diag.Reconfigure(a.sup.Context(), mapDiagConfig(cfg))

	st := a.Status()
	a.log.Info("app started",
		logx.String("source", st.Source),
		logx.Int("events", st.Scheduler.TrackedEvents),
		logx.Int("triggers", st.Scheduler.TriggerCount),
		logx.Time("next_refresh", st.NextRefresh),
	)
	return nil
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	if restartRequired(oldCfg, newCfg) {
		a.log.Warn("source or storage config changed; restart required for changes to take effect")
	}

	a.logs.Apply(mapLogConfig(newCfg))
	a.sched.Apply(mapSchedulerConfig(newCfg))
	if a.refresher != nil {
		if err := a.refresher.Apply(newCfg.Source.Refresh); err != nil {
			a.log.Warn("invalid source.refresh; keeping previous", logx.Err(err))
		}
	}
	a.countdowns.sync(a.currentEvents(), newCfg.Countdown.Targets, newCfg.Countdown.IntervalOrDefault())
	a.diag.Reconfigure(a.sup.Context(), mapDiagConfig(newCfg))

	a.bus.Publish(eventbus.Event{Type: eventbus.TopicConfigReloaded, Time: a.clk.Now(), Data: sections})
	a.log.Info("config reloaded", fields...)
}

// restartRequired reports changes that are only picked up by a new process.
func restartRequired(oldCfg, newCfg *config.Config) bool {
	o, n := oldCfg.Source, newCfg.Source
	if o.Driver != n.Driver || o.Path != n.Path || o.Watch != n.Watch {
		return true
	}
	var oStore, nStore config.StorageConfig
	if oldCfg.Storage != nil {
		oStore = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nStore = *newCfg.Storage
	}
	return oStore != nStore
}

// Reload loads the source and restarts the scheduler with the full new set.
// A failed load keeps the previous events scheduled.
func (a *App) Reload(ctx context.Context, reason string) error {
	a.reloadMu.Lock()
	defer a.reloadMu.Unlock()
	if a.stopping.Load() {
		return nil
	}

	events, err := a.src.Load(ctx)
	if err != nil {
		a.log.Warn("source load failed; keeping previous events",
			logx.String("source", a.src.Name()),
			logx.String("reason", reason),
			logx.Err(err),
		)
		return err
	}

	cfg := a.cfgm.Get()
	if a.store != nil && strings.TrimSpace(cfg.Source.Driver) != config.SourceStorage {
		if err := a.store.SaveEvents(ctx, events); err != nil {
			a.log.Warn("save events failed", logx.Err(err))
		}
	}

	a.sched.Start(events)
	a.mu.Lock()
	a.events = events
	a.mu.Unlock()
	a.reportQuality(events)

	st := a.sched.Status()
	a.bus.Publish(eventbus.Event{
		Type: eventbus.TopicEventsReloaded,
		Time: a.clk.Now(),
		Data: eventbus.ReloadInfo{Source: a.src.Name(), Events: len(events), Triggers: st.TriggerCount},
	})
	a.countdowns.sync(events, cfg.Countdown.Targets, cfg.Countdown.IntervalOrDefault())

	fields := []logx.Field{
		logx.String("source", a.src.Name()),
		logx.String("reason", reason),
		logx.Int("events", len(events)),
		logx.Int("triggers", st.TriggerCount),
	}
	if st.Next != nil {
		fields = append(fields,
			logx.String("next_event", st.Next.EventID),
			logx.String("next_kind", st.Next.Kind.String()),
			logx.String("next_in", st.Next.TimeUntil),
		)
	}
	a.log.Info("events loaded", fields...)
	return nil
}

// reportQuality logs record warnings and venue conflicts of a fresh load.
func (a *App) reportQuality(events []lifecycle.EventRecord) {
	res := a.sched.BatchProcessEvents(events, lifecycle.BatchOptions{IncludeConflictDetection: true})
	for _, e := range res.Events {
		if len(e.Warnings) == 0 {
			continue
		}
		a.log.Warn("event record has issues",
			logx.String("event", e.ID),
			logx.String("warnings", strings.Join(e.Warnings, "; ")),
		)
	}
	for _, c := range res.Conflicts {
		a.log.Warn("venue conflict",
			logx.String("venue", c.Venue),
			logx.String("event1", c.Event1.ID),
			logx.String("event2", c.Event2.ID),
			logx.String("details", c.Details),
		)
	}
}

func (a *App) currentEvents() []lifecycle.EventRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.events
}

// Snapshot loads the source once and computes every batch field for it.
// It does not touch the running scheduler.
func (a *App) Snapshot(ctx context.Context) (lifecycle.BatchResult, error) {
	events, err := a.src.Load(ctx)
	if err != nil {
		return lifecycle.BatchResult{}, err
	}
	return a.sched.BatchProcessEvents(events, lifecycle.AllComputations()), nil
}

// Transitions reads the recorded status changes from storage.
func (a *App) Transitions(ctx context.Context, eventID string, limit int) ([]storage.Transition, error) {
	if a.store == nil {
		return nil, storage.ErrDisabled
	}
	return a.store.Transitions(ctx, eventID, limit)
}

// Status is a diagnostics view of the running daemon.
type Status struct {
	Source      string              `json:"source"`
	Scheduler   scheduler.Snapshot  `json:"scheduler"`
	NextRefresh time.Time           `json:"next_refresh,omitempty"`
	Countdowns  int                 `json:"countdowns"`
	Supervisor  supervisor.Counters `json:"supervisor"`
	BusDropped  uint64              `json:"bus_dropped"`
}

func (a *App) Status() Status {
	st := Status{
		Source:     a.src.Name(),
		Scheduler:  a.sched.Status(),
		Countdowns: a.countdowns.active(),
		BusDropped: a.bus.Dropped(),
	}
	if a.refresher != nil {
		st.NextRefresh = a.refresher.Next()
	}
	if a.sup != nil {
		st.Supervisor = a.sup.Counters()
	}
	return st
}

// Close releases storage and log sinks of an app that was never started.
func (a *App) Close() error {
	var err error
	if a.store != nil {
		err = a.store.Close()
	}
	if a.logs != nil {
		a.logs.Close()
	}
	return err
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return a.Close()
	}
	a.stopping.Store(true)
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// Helper: run a shutdown step with an upper bound so one component can't stall the whole stop.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
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
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}

	step("diag", 2*time.Second, func(c context.Context) error { a.diag.Stop(c); return nil })
	step("refresh", 2*time.Second, func(context.Context) error {
		if a.refresher != nil {
			a.refresher.Stop()
		}
		return nil
	})
	step("countdowns", time.Second, func(context.Context) error { a.countdowns.stopAll(); return nil })
	step("scheduler", 2*time.Second, func(context.Context) error {
		a.reloadMu.Lock()
		defer a.reloadMu.Unlock()
		a.sched.Stop()
		return nil
	})
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	// Finally, wait for supervised goroutines (config watch/reload, source watch, bus log).
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

func refreshLocation(tz string) *time.Location {
	if tz = strings.TrimSpace(tz); tz != "" {
		if loc, err := time.LoadLocation(tz); err == nil {
			return loc
		}
	}
	return time.Local
}
