package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultBufferSize  = 1024
	DefaultSendTimeout = 5 * time.Second
)

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// BufferSize bounds the number of queued events. Events published while the
	// buffer is full are dropped.
	BufferSize int
	// SendTimeout bounds a single Sink.Send call.
	SendTimeout time.Duration
	// Renewals controls whether EventRenewed is forwarded. Renewals are the
	// bulk of the traffic (the monitor renews every keep-alive process each tick).
	Renewals bool
	Logger   *slog.Logger
}

// Dispatcher fans events out to sinks from a single background goroutine so
// that publishers never block on I/O.
type Dispatcher struct {
	sinks    []Sink
	events   chan Event
	timeout  time.Duration
	renewals bool
	logger   *slog.Logger

	dropped  atomic.Uint64
	stopOnce sync.Once
	closed   atomic.Bool
	mu       sync.RWMutex
	done     chan struct{}
}

// NewDispatcher starts a dispatcher delivering to the given sinks.
func NewDispatcher(cfg DispatcherConfig, sinks ...Sink) *Dispatcher {
	size := cfg.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		sinks:    append([]Sink(nil), sinks...),
		events:   make(chan Event, size),
		timeout:  timeout,
		renewals: cfg.Renewals,
		logger:   logger,
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

// Publish queues an event without blocking. It reports whether the event was accepted.
func (d *Dispatcher) Publish(e Event) bool {
	if e.Type == EventRenewed && !d.renewals {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed.Load() {
		return false
	}
	select {
	case d.events <- e:
		return true
	default:
		d.dropped.Add(1)
		return false
	}
}

// Dropped returns the number of events discarded because the buffer was full.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

func (d *Dispatcher) run() {
	defer close(d.done)
	for e := range d.events {
		for _, s := range d.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			if err := s.Send(ctx, e); err != nil {
				d.logger.Debug("history sink send failed", "event", e.Type, "process_id", e.Record.ID, "error", err)
			}
			cancel()
		}
	}
}

// Close drains queued events, then closes every sink.
func (d *Dispatcher) Close() error {
	var errs []error
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.closed.Store(true)
		close(d.events)
		d.mu.Unlock()
		<-d.done
		for _, s := range d.sinks {
			if err := s.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
