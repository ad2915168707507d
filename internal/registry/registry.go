package registry

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/pulsr/internal/config"
	"github.com/loykin/pulsr/internal/history"
	"github.com/loykin/pulsr/internal/metrics"
	"github.com/loykin/pulsr/internal/process"
)

// ErrNotFound is returned by RenewStrict for ids that are not tracked.
var ErrNotFound = errors.New("process not found")

// Publisher receives lifecycle events. *history.Dispatcher implements it.
// Publish must not block.
type Publisher interface {
	Publish(e history.Event) bool
}

// Option customizes a Registry.
type Option func(*Registry)

// WithClock replaces the wall clock used for heartbeats and liveness checks.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger; nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithPublisher attaches a history event publisher.
func WithPublisher(p Publisher) Option {
	return func(r *Registry) { r.pub = p }
}

type entry struct {
	mu      sync.Mutex
	rec     process.Status
	removed bool
}

// Registry is the in-memory liveness store. All methods are safe for
// concurrent use and never block on I/O.
type Registry struct {
	entries    sync.Map // id -> *entry
	count      atomic.Int64
	expiration int
	now        func() time.Time
	logger     *slog.Logger
	pub        Publisher
}

// New returns an empty registry bound to the heartbeat settings. The
// expiration is captured once here and copied into every new record.
func New(hb config.HeartbeatSettings, opts ...Option) *Registry {
	exp := hb.ProcessExpirationInSeconds
	if exp <= 0 {
		exp = config.DefaultProcessExpirationInSeconds
	}
	r := &Registry{
		expiration: exp,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Now returns the registry clock reading.
func (r *Registry) Now() time.Time { return r.now() }

// ExpirationSeconds returns the TTL assigned to new records.
func (r *Registry) ExpirationSeconds() int { return r.expiration }

func (r *Registry) newEntry(id string, keepAlive bool) *entry {
	return &entry{rec: process.Status{
		ID:                id,
		LastHeartbeat:     r.now(),
		ExpirationSeconds: r.expiration,
		KeepAlive:         keepAlive,
	}}
}

// insert stores e under id if absent. The count is raised before the entry
// becomes visible so a concurrent Remove can never drive it below zero.
func (r *Registry) insert(id string, e *entry) bool {
	r.count.Add(1)
	if _, loaded := r.entries.LoadOrStore(id, e); loaded {
		r.count.Add(-1)
		return false
	}
	return true
}

func (r *Registry) publish(t history.EventType, rec process.Status) {
	if r.pub == nil {
		return
	}
	r.pub.Publish(history.Event{Type: t, OccurredAt: r.now(), Record: rec})
}

// Create registers a new process with a freshly generated id and returns the id.
// An existing id is never overwritten; a colliding id is simply redrawn.
func (r *Registry) Create(keepAlive bool) string {
	for {
		id := process.NewID(keepAlive)
		e := r.newEntry(id, keepAlive)
		if !r.insert(id, e) {
			continue
		}
		rec := e.rec
		r.logger.Info("process created",
			"process_id", id,
			"class", process.Class(keepAlive),
			"expiration_seconds", rec.ExpirationSeconds)
		metrics.IncCreated(process.Class(keepAlive))
		r.publish(history.EventCreated, rec)
		return id
	}
}

// Renew records a heartbeat for id. Unknown ids are created on the fly as
// short-lived processes with the configured expiration.
func (r *Registry) Renew(id string) {
	r.RenewAs(id, metrics.SourceAPI)
}

// RenewAs is Renew with an explicit metrics source label.
func (r *Registry) RenewAs(id, source string) {
	for {
		v, ok := r.entries.Load(id)
		if !ok {
			e := r.newEntry(id, false)
			if !r.insert(id, e) {
				// another writer inserted it first; renew that one
				continue
			}
			r.logger.Debug("heartbeat for unknown process, created implicitly", "process_id", id)
			metrics.IncCreated(process.Class(false))
			metrics.IncRenewal(metrics.SourceImplicit)
			r.publish(history.EventCreated, e.rec)
			return
		}
		if rec, ok := r.touch(v.(*entry)); ok {
			r.logger.Debug("heartbeat renewed", "process_id", id, "source", source)
			metrics.IncRenewal(source)
			r.publish(history.EventRenewed, rec)
			return
		}
		// entry was removed between Load and Lock; start over
	}
}

// RenewStrict is Renew without implicit creation.
func (r *Registry) RenewStrict(id string) error {
	v, ok := r.entries.Load(id)
	if !ok {
		return ErrNotFound
	}
	rec, ok := r.touch(v.(*entry))
	if !ok {
		return ErrNotFound
	}
	r.logger.Debug("heartbeat renewed", "process_id", id, "source", metrics.SourceAPI)
	metrics.IncRenewal(metrics.SourceAPI)
	r.publish(history.EventRenewed, rec)
	return nil
}

func (r *Registry) touch(e *entry) (process.Status, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed {
		return process.Status{}, false
	}
	e.rec.LastHeartbeat = r.now()
	return e.rec, true
}

func (e *entry) snapshot() (process.Status, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec, !e.removed
}

// Get returns a copy of the record for id.
func (r *Registry) Get(id string) (process.Status, bool) {
	v, ok := r.entries.Load(id)
	if !ok {
		return process.Status{}, false
	}
	return v.(*entry).snapshot()
}

// ListAll returns copies of every tracked record in no particular order.
// Each record is internally consistent; the list as a whole is not a
// point-in-time view.
func (r *Registry) ListAll() []process.Status {
	out := make([]process.Status, 0, r.Count())
	r.entries.Range(func(_, v any) bool {
		if rec, ok := v.(*entry).snapshot(); ok {
			out = append(out, rec)
		}
		return true
	})
	return out
}

// ListActive returns the records alive at call time.
func (r *Registry) ListActive() []process.Status {
	return process.FilterAlive(r.ListAll(), r.now())
}

// Remove deletes id. Removing an unknown id is a no-op.
func (r *Registry) Remove(id string) {
	v, ok := r.entries.LoadAndDelete(id)
	if !ok {
		return
	}
	e := v.(*entry)
	e.mu.Lock()
	e.removed = true
	rec := e.rec
	e.mu.Unlock()
	r.count.Add(-1)

	r.logger.Info("process removed", "process_id", id)
	metrics.IncRemoved()
	r.publish(history.EventRemoved, rec)
}

// Count returns the number of tracked records. An insert in flight may be
// counted just before it shows up in ListAll.
func (r *Registry) Count() int { return int(max(r.count.Load(), 0)) }
