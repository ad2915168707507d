package process

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsAliveAtBoundary(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := Status{ID: "p", LastHeartbeat: base, ExpirationSeconds: 2}

	assert.True(t, s.IsAliveAt(base))
	assert.True(t, s.IsAliveAt(base.Add(2*time.Second)), "boundary is inclusive")
	assert.False(t, s.IsAliveAt(base.Add(2*time.Second+time.Nanosecond)))
	assert.False(t, s.IsAliveAt(base.Add(3*time.Second)))
}

func TestIsAliveZeroExpiration(t *testing.T) {
	base := time.Now()
	s := Status{ID: "p", LastHeartbeat: base}
	assert.True(t, s.IsAliveAt(base))
	assert.False(t, s.IsAliveAt(base.Add(time.Millisecond)))
}

func TestFilterAlive(t *testing.T) {
	now := time.Now()
	in := []Status{
		{ID: "a", LastHeartbeat: now, ExpirationSeconds: 5},
		{ID: "b", LastHeartbeat: now.Add(-10 * time.Second), ExpirationSeconds: 5},
		{ID: "c", LastHeartbeat: now.Add(-4 * time.Second), ExpirationSeconds: 5},
	}
	out := FilterAlive(in, now)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "c", out[1].ID)
}

func TestStatusJSONIncludesDerivedAlive(t *testing.T) {
	s := Status{ID: "p1", LastHeartbeat: time.Now().UTC(), ExpirationSeconds: 30, KeepAlive: true}
	b, err := json.Marshal(s)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "p1", raw["process_id"])
	assert.Equal(t, true, raw["is_alive"])
	assert.Equal(t, true, raw["keep_alive"])
	assert.EqualValues(t, 30, raw["process_expiration_in_seconds"])

	expired := Status{ID: "p2", LastHeartbeat: time.Now().Add(-time.Minute).UTC(), ExpirationSeconds: 1}
	b, err = json.Marshal(expired)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"is_alive":false`)

	var back Status
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, "p2", back.ID)
	assert.Equal(t, 1, back.ExpirationSeconds)
	assert.False(t, back.IsAlive())
}

func TestViewAtUsesGivenInstant(t *testing.T) {
	base := time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC)
	s := Status{ID: "p", LastHeartbeat: base, ExpirationSeconds: 10, KeepAlive: true}

	v := s.ViewAt(base.Add(10 * time.Second))
	assert.True(t, v.IsAlive)
	assert.Equal(t, "p", v.ID)
	assert.True(t, v.KeepAlive)
	assert.False(t, s.ViewAt(base.Add(11*time.Second)).IsAlive)

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"is_alive":false`, "MarshalJSON uses the wall clock")

	views := ViewsAt([]Status{s, {ID: "q", LastHeartbeat: base}}, base)
	require.Len(t, views, 2)
	assert.True(t, views[0].IsAlive)
	assert.True(t, views[1].IsAlive)
}

func TestNewIDPrefixAndSuffix(t *testing.T) {
	long := NewID(true)
	short := NewID(false)
	require.True(t, strings.HasPrefix(long, LongLivedPrefix), long)
	require.True(t, strings.HasPrefix(short, ShortLivedPrefix), short)
	assert.Len(t, strings.TrimPrefix(long, LongLivedPrefix), 4)
	assert.Len(t, strings.TrimPrefix(short, ShortLivedPrefix), 4)
	assert.True(t, IsSafeID(long))
	assert.True(t, IsSafeID(short))
}

func TestClass(t *testing.T) {
	assert.Equal(t, "long-lived", Class(true))
	assert.Equal(t, "short-lived", Class(false))
}

func TestIsSafeID(t *testing.T) {
	cases := map[string]bool{
		"ShortLivedProcess_ab12": true,
		"worker-1.a":             true,
		"":                       false,
		"../etc":                 false,
		"a/b":                    false,
		"a b":                    false,
		"a\\b":                   false,
		strings.Repeat("x", 257): false,
	}
	for in, want := range cases {
		assert.Equal(t, want, IsSafeID(in), "id %q", in)
	}
}
