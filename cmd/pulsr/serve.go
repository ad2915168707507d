package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loykin/pulsr"
	"github.com/loykin/pulsr/internal/logger"
	"github.com/loykin/pulsr/internal/server"
)

const shutdownTimeout = 5 * time.Second

// daemon is a running serve instance.
type daemon struct {
	cfg        *pulsr.Config
	log        *slog.Logger
	logCloser  io.Closer
	reg        *pulsr.Registry
	mon        *pulsr.Monitor
	hist       *pulsr.Dispatcher
	api        *http.Server
	metricsSrv *http.Server
}

// startDaemon wires config → logger → metrics → history → registry →
// monitor → HTTP server. Everything started so far is torn down on error.
func startDaemon(cfg *pulsr.Config) (*daemon, error) {
	d := &daemon{cfg: cfg}
	if err := d.start(); err != nil {
		d.close()
		return nil, err
	}
	return d, nil
}

func (d *daemon) start() (err error) {
	cfg := d.cfg
	d.log, d.logCloser, err = logger.New(cfg.Log.Logger())
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	slog.SetDefault(d.log)
	for _, w := range cfg.Warnings() {
		d.log.Warn(w)
	}

	if cfg.Metrics.Enabled {
		if err = pulsr.RegisterMetricsDefault(); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
		if d.metricsSrv, err = server.NewMetricsServer(cfg.Metrics.Listen); err != nil {
			return fmt.Errorf("metrics listener: %w", err)
		}
		d.log.Info("metrics listening", "addr", d.metricsSrv.Addr)
	}

	regOpts := []pulsr.RegistryOption{pulsr.WithLogger(d.log)}
	monOpts := []pulsr.MonitorOption{pulsr.WithMonitorLogger(d.log)}
	if cfg.History.Enabled {
		if d.hist, err = pulsr.NewHistory(cfg.History, d.log); err != nil {
			return fmt.Errorf("history: %w", err)
		}
		regOpts = append(regOpts, pulsr.WithPublisher(d.hist))
		monOpts = append(monOpts, pulsr.WithMonitorPublisher(d.hist))
	}

	d.reg = pulsr.New(cfg.Heartbeat, regOpts...)
	d.mon = pulsr.NewMonitor(d.reg, cfg.Heartbeat, monOpts...)

	tlsCfg, err := pulsr.SetupTLS(cfg.Server)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	d.api, err = server.NewServer(cfg.Server.Listen, cfg.Server.BasePath, d.reg, tlsCfg,
		server.WithStrictRenew(cfg.Heartbeat.StrictRenew), server.WithLogger(d.log))
	if err != nil {
		return fmt.Errorf("api listener: %w", err)
	}
	d.log.Info("api listening",
		"addr", d.api.Addr,
		"base_path", cfg.Server.BasePath,
		"tls", tlsCfg != nil,
		"expiration_seconds", cfg.Heartbeat.ProcessExpirationInSeconds,
		"monitor_interval_seconds", cfg.Heartbeat.MonitorIntervalInSeconds)
	return nil
}

// run blocks until ctx is done, then shuts everything down.
func (d *daemon) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d.mon.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var errs []error
		for _, s := range []*http.Server{d.api, d.metricsSrv} {
			if s == nil {
				continue
			}
			if err := s.Shutdown(sctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
	err := g.Wait()
	d.api, d.metricsSrv = nil, nil
	d.close()
	return err
}

func (d *daemon) close() {
	for _, s := range []*http.Server{d.api, d.metricsSrv} {
		if s != nil {
			_ = s.Close()
		}
	}
	if d.hist != nil {
		if err := d.hist.Close(); err != nil && d.log != nil {
			d.log.Warn("history close failed", "error", err)
		}
		if n := d.hist.Dropped(); n > 0 && d.log != nil {
			d.log.Warn("history events dropped", "count", n)
		}
		d.hist = nil
	}
	if d.log != nil {
		d.log.Info("pulsr stopped")
	}
	if d.logCloser != nil {
		_ = d.logCloser.Close()
		d.logCloser = nil
	}
}
