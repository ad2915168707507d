package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/pulsr/internal/config"
	"github.com/loykin/pulsr/internal/registry"
	"github.com/loykin/pulsr/internal/server"
	ptls "github.com/loykin/pulsr/internal/tls"
)

func newTestServer(t *testing.T, strict bool) (*Client, *registry.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := registry.New(config.HeartbeatSettings{ProcessExpirationInSeconds: 30, MonitorIntervalInSeconds: 5})
	ts := httptest.NewServer(server.NewRouter(reg, "/api", server.WithStrictRenew(strict)).Handler())
	t.Cleanup(ts.Close)
	return New(Config{BaseURL: ts.URL + "/api", Timeout: 2 * time.Second}), reg
}

func TestClientLifecycle(t *testing.T) {
	c, reg := newTestServer(t, false)
	ctx := context.Background()

	require.True(t, c.IsReachable(ctx))

	created, err := c.CreateProcess(ctx, true)
	require.NoError(t, err)
	require.NotEmpty(t, created.ProcessID)
	st, ok := reg.Get(created.ProcessID)
	require.True(t, ok)
	assert.True(t, st.KeepAlive)

	require.NoError(t, c.Heartbeat(ctx, created.ProcessID))

	one, err := c.Status(ctx, created.ProcessID)
	require.NoError(t, err)
	assert.Equal(t, created.ProcessID, one.ProcessID)
	assert.True(t, one.IsAlive)
	assert.True(t, one.KeepAlive)
	assert.Equal(t, 30, one.ExpirationSeconds)

	short, err := c.CreateProcess(ctx, false)
	require.NoError(t, err)

	all, err := c.Statuses(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	active, err := c.ActiveStatuses(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	require.NoError(t, c.Remove(ctx, short.ProcessID))
	require.NoError(t, c.Remove(ctx, short.ProcessID))
	_, err = c.Status(ctx, short.ProcessID)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestClientStrictHeartbeatNotFound(t *testing.T) {
	c, _ := newTestServer(t, true)
	err := c.Heartbeat(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "ghost")
}

func TestClientBadRequest(t *testing.T) {
	c, _ := newTestServer(t, false)
	err := c.Heartbeat(context.Background(), "a..b")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.False(t, IsNotFound(err))
}

func TestClientNonJSONError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer ts.Close()
	c := New(Config{BaseURL: ts.URL})
	_, err := c.Statuses(context.Background())
	require.Error(t, err)
	assert.Equal(t, "HTTP 502", err.Error())
}

func TestClientUnreachable(t *testing.T) {
	c := New(Config{BaseURL: "http://127.0.0.1:1/api", Timeout: 200 * time.Millisecond})
	assert.False(t, c.IsReachable(context.Background()))
	_, err := c.CreateProcess(context.Background(), false)
	require.Error(t, err)
}

func TestClientDefaults(t *testing.T) {
	c := New(Config{})
	assert.Equal(t, DefaultBaseURL, c.BaseURL())
	assert.Equal(t, DefaultTimeout, c.client.Timeout)

	c = New(Config{BaseURL: "http://x/api/"})
	assert.True(t, strings.HasSuffix(c.BaseURL(), "/api"))
}

func TestClientTLSWithCACert(t *testing.T) {
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()
	tlsCfg, err := ptls.SelfSigned(dir)
	require.NoError(t, err)

	reg := registry.New(config.HeartbeatSettings{ProcessExpirationInSeconds: 30})
	srv, err := server.NewServer("127.0.0.1:0", "/api", reg, tlsCfg)
	require.NoError(t, err)
	defer func() { _ = srv.Shutdown(context.Background()) }()
	port := srv.Addr[strings.LastIndex(srv.Addr, ":"):]

	c := New(Config{
		BaseURL: "https://localhost" + port + "/api",
		TLS:     &TLSClientConfig{Enabled: true, CACert: filepath.Join(dir, "tls_ca.crt")},
	})
	_, err = c.CreateProcess(context.Background(), false)
	require.NoError(t, err)

	insecure := New(Config{BaseURL: "https://127.0.0.1" + port + "/api", Insecure: true})
	assert.True(t, insecure.IsReachable(context.Background()))
}

func TestSetupClientTLSErrors(t *testing.T) {
	_, err := setupClientTLS(Config{TLS: &TLSClientConfig{Enabled: true, CACert: "/does/not/exist"}})
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not a cert"), 0o600))
	_, err = setupClientTLS(Config{TLS: &TLSClientConfig{Enabled: true, CACert: bad}})
	require.Error(t, err)
}
