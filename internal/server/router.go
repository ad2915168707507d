package server

import (
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/pulsr/internal/metrics"
	"github.com/loykin/pulsr/internal/process"
	"github.com/loykin/pulsr/internal/registry"
)

// Registry is the liveness store the router serves.
type Registry interface {
	Create(keepAlive bool) string
	Renew(id string)
	RenewStrict(id string) error
	ListAll() []process.Status
	ListActive() []process.Status
	Get(id string) (process.Status, bool)
	Remove(id string)
	Now() time.Time
}

// Router provides embeddable HTTP handlers for the heartbeat API.
// Endpoints, relative to basePath:
//
//	POST   /process/short-lived          create a process without keep-alive
//	POST   /process/long-lived           create a keep-alive process
//	POST   /heartbeat/:processId         renew
//	GET    /heartbeat/status             every tracked process
//	GET    /heartbeat/active-status      alive processes only
//	GET    /heartbeat/status/:processId  one process
//	DELETE /heartbeat/:processId         remove
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	reg      Registry
	basePath string
	strict   bool
	logger   *slog.Logger
}

// Option customizes a Router.
type Option func(*Router)

// WithStrictRenew makes heartbeats for unknown ids fail with 404 instead of
// creating the process.
func WithStrictRenew(strict bool) Option {
	return func(r *Router) { r.strict = strict }
}

// WithLogger sets the request logger; nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRouter constructs a Router mounted at basePath.
func NewRouter(reg Registry, basePath string, opts ...Option) *Router {
	r := &Router{reg: reg, basePath: sanitizeBase(basePath), logger: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery(), r.requestLog())
	r.Register(g.Group(r.basePath))
	return g
}

// Register adds the routes to an existing gin group.
func (r *Router) Register(group *gin.RouterGroup) {
	group.POST("/process/short-lived", r.handleCreate(false))
	group.POST("/process/long-lived", r.handleCreate(true))
	group.POST("/heartbeat/:processId", r.handleRenew)
	group.GET("/heartbeat/status", r.handleStatusAll)
	group.GET("/heartbeat/active-status", r.handleStatusActive)
	group.GET("/heartbeat/status/:processId", r.handleStatusOne)
	group.DELETE("/heartbeat/:processId", r.handleRemove)
}

func (r *Router) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		r.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

// NewServer binds addr and serves the router in the background. A non-nil
// tlsCfg switches the listener to HTTPS. Bind errors are returned; errors
// after that are logged.
func NewServer(addr, basePath string, reg Registry, tlsCfg *tls.Config, opts ...Option) (*http.Server, error) {
	r := NewRouter(reg, basePath, opts...)
	return serve(addr, r.Handler(), tlsCfg, r.logger)
}

// NewMetricsServer serves /metrics on its own listener.
func NewMetricsServer(addr string) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return serve(addr, mux, nil, slog.Default())
}

func serve(addr string, h http.Handler, tlsCfg *tls.Config, logger *slog.Logger) (*http.Server, error) {
	server := &http.Server{
		Addr:              addr,
		Handler:           h,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	// keep the resolved address when addr used port 0
	server.Addr = ln.Addr().String()
	go func() {
		var err error
		if tlsCfg != nil {
			err = server.ServeTLS(ln, "", "")
		} else {
			err = server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "addr", server.Addr, "error", err)
		}
	}()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type createResp struct {
	ProcessID string `json:"process_id"`
	Message   string `json:"message"`
}

type messageResp struct {
	Message string `json:"message"`
}

func (r *Router) handleCreate(keepAlive bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := r.reg.Create(keepAlive)
		writeJSON(c, http.StatusOK, createResp{
			ProcessID: id,
			Message:   process.Class(keepAlive) + " process created",
		})
	}
}

// processID extracts and validates the path parameter, writing 400 on failure.
func processID(c *gin.Context) (string, bool) {
	id := c.Param("processId")
	if !process.IsSafeID(id) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid process id: allowed [A-Za-z0-9._-] and no '..'"})
		return "", false
	}
	return id, true
}

func (r *Router) handleRenew(c *gin.Context) {
	id, ok := processID(c)
	if !ok {
		return
	}
	if r.strict {
		if err := r.reg.RenewStrict(id); err != nil {
			if errors.Is(err, registry.ErrNotFound) {
				writeJSON(c, http.StatusNotFound, errorResp{Error: "process not found: " + id})
				return
			}
			writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
			return
		}
	} else {
		r.reg.Renew(id)
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

// Liveness in responses is evaluated on the registry clock. For the active
// list, now is read before ListActive so every returned record stays alive
// at now.

func (r *Router) handleStatusAll(c *gin.Context) {
	now := r.reg.Now()
	writeJSON(c, http.StatusOK, process.ViewsAt(r.reg.ListAll(), now))
}

func (r *Router) handleStatusActive(c *gin.Context) {
	now := r.reg.Now()
	writeJSON(c, http.StatusOK, process.ViewsAt(r.reg.ListActive(), now))
}

func (r *Router) handleStatusOne(c *gin.Context) {
	id, ok := processID(c)
	if !ok {
		return
	}
	st, found := r.reg.Get(id)
	if !found {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "process not found: " + id})
		return
	}
	writeJSON(c, http.StatusOK, st.ViewAt(r.reg.Now()))
}

func (r *Router) handleRemove(c *gin.Context) {
	id, ok := processID(c)
	if !ok {
		return
	}
	r.reg.Remove(id)
	writeJSON(c, http.StatusOK, messageResp{Message: "process " + id + " removed"})
}
