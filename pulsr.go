package pulsr

import (
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/pulsr/internal/config"
	"github.com/loykin/pulsr/internal/history"
	"github.com/loykin/pulsr/internal/history/factory"
	"github.com/loykin/pulsr/internal/metrics"
	"github.com/loykin/pulsr/internal/monitor"
	"github.com/loykin/pulsr/internal/process"
	"github.com/loykin/pulsr/internal/registry"
	iapi "github.com/loykin/pulsr/internal/server"
	itls "github.com/loykin/pulsr/internal/tls"
)

// Public facade types
type (
	Status            = process.Status
	Config            = cfg.Config
	HeartbeatSettings = cfg.HeartbeatSettings
	HistoryConfig     = cfg.HistoryConfig
	ServerConfig      = cfg.ServerConfig
	TLSConfig         = cfg.TLSConfig
	Registry          = registry.Registry
	RegistryOption    = registry.Option
	Monitor           = monitor.Monitor
	MonitorOption     = monitor.Option
	MonitorState      = monitor.State
	Event             = history.Event
	Dispatcher        = history.Dispatcher
)

var (
	ErrNotFound       = registry.ErrNotFound
	ErrAlreadyStarted = monitor.ErrAlreadyStarted
)

// Registry options
var (
	WithClock     = registry.WithClock
	WithLogger    = registry.WithLogger
	WithPublisher = registry.WithPublisher
)

// Monitor options
var (
	WithMonitorLogger    = monitor.WithLogger
	WithMonitorPublisher = monitor.WithPublisher
)

// New returns an empty registry bound to hb.
func New(hb HeartbeatSettings, opts ...RegistryOption) *Registry { return registry.New(hb, opts...) }

// NewMonitor creates a monitor over reg; call Start or Run to begin ticking.
func NewMonitor(reg *Registry, hb HeartbeatSettings, opts ...MonitorOption) *Monitor {
	return monitor.New(reg, hb, opts...)
}

func LoadConfig(path string) (*Config, error) { return cfg.LoadConfig(path) }
func DefaultConfig() *Config                  { return cfg.Default() }

// ConfigFromEnv returns the defaults with PULSR_* environment overrides applied.
func ConfigFromEnv() (*Config, error) { return cfg.FromEnv() }

// SetupTLS builds the server TLS configuration, or nil when TLS is disabled.
func SetupTLS(server ServerConfig) (*tls.Config, error) { return itls.SetupTLS(server) }

// Handler returns the heartbeat API as an http.Handler for mounting in another server.
func Handler(reg *Registry, basePath string, strictRenew bool) http.Handler {
	return iapi.NewRouter(reg, basePath, iapi.WithStrictRenew(strictRenew)).Handler()
}

// NewHTTPServer starts an HTTP(S) server exposing the heartbeat API.
func NewHTTPServer(addr, basePath string, reg *Registry, tlsCfg *tls.Config, strictRenew bool) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, reg, tlsCfg, iapi.WithStrictRenew(strictRenew))
}

// NewHistory opens the sink named by hc.DSN and starts a dispatcher for it.
func NewHistory(hc HistoryConfig, logger *slog.Logger) (*Dispatcher, error) {
	sink, err := factory.NewSinkFromDSN(hc.DSN)
	if err != nil {
		return nil, err
	}
	return history.NewDispatcher(history.DispatcherConfig{
		BufferSize: hc.BufferSize,
		Renewals:   hc.Renewals,
		Logger:     logger,
	}, sink), nil
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics serves /metrics from the default registry in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
