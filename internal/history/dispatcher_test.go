package history

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/pulsr/internal/process"
)

type memSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
	err    error
	block  chan struct{}
}

func (s *memSink) Send(_ context.Context, e Event) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *memSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func ev(typ EventType, id string) Event {
	return Event{Type: typ, OccurredAt: time.Now().UTC(), Record: process.Status{ID: id, LastHeartbeat: time.Now().UTC(), ExpirationSeconds: 30}}
}

func TestDispatcherDeliversInOrderToAllSinks(t *testing.T) {
	a, b := &memSink{}, &memSink{}
	d := NewDispatcher(DispatcherConfig{Renewals: true}, a, b)

	require.True(t, d.Publish(ev(EventCreated, "p1")))
	require.True(t, d.Publish(ev(EventRenewed, "p1")))
	require.True(t, d.Publish(ev(EventRemoved, "p1")))
	require.NoError(t, d.Close())

	for _, s := range []*memSink{a, b} {
		got := s.snapshot()
		require.Len(t, got, 3)
		assert.Equal(t, EventCreated, got[0].Type)
		assert.Equal(t, EventRenewed, got[1].Type)
		assert.Equal(t, EventRemoved, got[2].Type)
		assert.True(t, s.closed)
	}
}

func TestDispatcherSuppressesRenewalsByDefault(t *testing.T) {
	s := &memSink{}
	d := NewDispatcher(DispatcherConfig{}, s)
	assert.False(t, d.Publish(ev(EventRenewed, "p1")))
	assert.True(t, d.Publish(ev(EventExpired, "p1")))
	require.NoError(t, d.Close())

	got := s.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, EventExpired, got[0].Type)
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	s := &memSink{block: make(chan struct{})}
	d := NewDispatcher(DispatcherConfig{BufferSize: 1}, s)

	// the worker takes at most one event and blocks in Send; the buffer holds one more
	accepted := 0
	for i := 0; i < 10; i++ {
		if d.Publish(ev(EventCreated, "p")) {
			accepted++
		}
	}
	assert.LessOrEqual(t, accepted, 2)
	assert.GreaterOrEqual(t, d.Dropped(), uint64(8))

	close(s.block)
	require.NoError(t, d.Close())
	assert.Len(t, s.snapshot(), accepted)
}

func TestDispatcherSinkErrorsDoNotStopDelivery(t *testing.T) {
	bad := &memSink{err: errors.New("boom")}
	good := &memSink{}
	d := NewDispatcher(DispatcherConfig{}, bad, good)
	d.Publish(ev(EventCreated, "a"))
	d.Publish(ev(EventCreated, "b"))
	require.NoError(t, d.Close())
	assert.Len(t, good.snapshot(), 2)
	assert.Len(t, bad.snapshot(), 2)
}

func TestDispatcherPublishAfterClose(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{})
	require.NoError(t, d.Close())
	assert.False(t, d.Publish(ev(EventCreated, "late")))
	// second Close is a no-op
	require.NoError(t, d.Close())
}
