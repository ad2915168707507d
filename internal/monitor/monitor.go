package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/pulsr/internal/config"
	"github.com/loykin/pulsr/internal/history"
	"github.com/loykin/pulsr/internal/metrics"
	"github.com/loykin/pulsr/internal/process"
	"github.com/loykin/pulsr/internal/registry"
)

// ErrAlreadyStarted is returned when Start is called more than once.
var ErrAlreadyStarted = errors.New("monitor already started")

// State is the lifecycle state of a Monitor.
type State string

const (
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// Store is the part of the registry the monitor needs.
type Store interface {
	ListAll() []process.Status
	RenewAs(id, source string)
	Now() time.Time
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger; nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithPublisher receives expired events.
func WithPublisher(p registry.Publisher) Option {
	return func(m *Monitor) { m.pub = p }
}

// Monitor periodically logs live processes and renews keep-alive ones.
type Monitor struct {
	store    Store
	interval time.Duration
	logger   *slog.Logger
	pub      registry.Publisher

	// ids alive at the previous tick; touched only by the loop goroutine
	prevAlive map[string]struct{}

	running atomic.Bool
	started atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
}

// New creates a monitor ticking at hb.Interval().
func New(store Store, hb config.HeartbeatSettings, opts ...Option) *Monitor {
	interval := hb.Interval()
	if interval <= 0 {
		interval = time.Duration(config.DefaultMonitorIntervalInSeconds) * time.Second
	}
	m := &Monitor{
		store:     store,
		interval:  interval,
		logger:    slog.Default(),
		prevAlive: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Interval returns the tick period.
func (m *Monitor) Interval() time.Duration { return m.interval }

// State reports whether the loop is currently running.
func (m *Monitor) State() State {
	if m.running.Load() {
		return StateRunning
	}
	return StateStopped
}

// Start runs the loop in a background goroutine until ctx is done or Stop is
// called. A monitor can be started only once.
func (m *Monitor) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.Run(ctx)
	}()
	return nil
}

// Stop cancels the loop and waits for the current tick to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// Run executes ticks inline until ctx is done. Cancellation is observed only
// between ticks.
func (m *Monitor) Run(ctx context.Context) {
	m.running.Store(true)
	defer m.running.Store(false)

	m.logger.Info("monitor started", "interval", m.interval)
	defer m.logger.Info("monitor stopped")

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		if ctx.Err() != nil {
			return
		}
		m.tick()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (m *Monitor) tick() {
	start := time.Now()
	all := m.store.ListAll()
	now := m.store.Now()

	alive := make([]process.Status, 0, len(all))
	nextAlive := make(map[string]struct{}, len(all))
	for _, rec := range all {
		if rec.IsAliveAt(now) {
			alive = append(alive, rec)
			nextAlive[rec.ID] = struct{}{}
			continue
		}
		if _, was := m.prevAlive[rec.ID]; was {
			m.logger.Info("process expired", "process_id", rec.ID, "last_heartbeat", rec.LastHeartbeat)
			metrics.IncExpired()
			if m.pub != nil {
				m.pub.Publish(history.Event{Type: history.EventExpired, OccurredAt: now, Record: rec})
			}
		}
	}
	m.prevAlive = nextAlive

	if len(alive) == 0 {
		m.logger.Info("no active processes")
	}
	for _, rec := range alive {
		m.logger.Info("process status",
			"process_id", rec.ID,
			"last_heartbeat", rec.LastHeartbeat,
			"alive", true,
			"keep_alive", rec.KeepAlive)
	}
	for _, rec := range alive {
		if rec.KeepAlive {
			m.store.RenewAs(rec.ID, metrics.SourceMonitor)
		}
	}

	metrics.SetTracked(len(all))
	metrics.SetActive(len(alive))
	metrics.ObserveTick(time.Since(start).Seconds())
}
