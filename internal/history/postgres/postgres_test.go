package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/loykin/pulsr/internal/history"
	"github.com/loykin/pulsr/internal/process"
)

func TestPostgresSink_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	postgresContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		t.Skipf("PostgreSQL container unavailable: %v", err)
	}
	defer func() {
		if err := postgresContainer.Terminate(ctx); err != nil {
			t.Errorf("Failed to terminate PostgreSQL container: %v", err)
		}
	}()

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	sink, err := New(connStr)
	require.NoError(t, err)
	defer func() { assert.NoError(t, sink.Close()) }()

	rec := process.Status{
		ID:                "LongLivedProcess_9f3c",
		LastHeartbeat:     time.Now().UTC(),
		ExpirationSeconds: 30,
		KeepAlive:         true,
	}
	for _, typ := range []history.EventType{history.EventCreated, history.EventRenewed, history.EventRemoved} {
		require.NoError(t, sink.Send(ctx, history.Event{Type: typ, OccurredAt: time.Now().UTC(), Record: rec}))
	}

	count, err := sink.CountByProcess(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestPostgresSink_EmptyDSN(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
}
