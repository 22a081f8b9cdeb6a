package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/finview/internal/config"
	"github.com/fyrsmithlabs/finview/internal/deletion"
	"github.com/fyrsmithlabs/finview/internal/logging"
	"github.com/fyrsmithlabs/finview/internal/notify"
	"github.com/fyrsmithlabs/finview/internal/projectsvc"
	"github.com/fyrsmithlabs/finview/internal/replace"
	"github.com/fyrsmithlabs/finview/internal/session"
	"github.com/fyrsmithlabs/finview/internal/store"
	"github.com/fyrsmithlabs/finview/internal/telemetry"
	"github.com/fyrsmithlabs/finview/internal/wizard"
)

// app wires the client, the session gate, the store and the flows.
type app struct {
	cfg      *config.Config
	logger   *logging.Logger
	tel      *telemetry.Telemetry
	client   *projectsvc.Client
	gate     *session.Gate
	store    *store.Store
	wizard   *wizard.Controller
	replace  *replace.Flow
	deletion *deletion.Flow

	metrics *echo.Echo
}

// newApp builds the object graph. Notifications go to pub and redirects to
// nav.
func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger, pub notify.Publisher, nav session.Navigator, opts ...projectsvc.Option) (*app, error) {
	tel, err := telemetry.New(ctx, telemetry.FromAppConfig(cfg.Telemetry, version))
	if err != nil {
		return nil, err
	}
	if h := tel.Health(); h.Degraded {
		logger.Warn(ctx, "telemetry degraded", zap.String("reason", h.Reason))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	base := []projectsvc.Option{
		projectsvc.WithLogger(logger),
		projectsvc.WithMetrics(projectsvc.NewMetrics(reg)),
		projectsvc.WithTracerProvider(tel.TracerProvider()),
	}
	client, err := projectsvc.NewFromConfig(cfg, append(base, opts...)...)
	if err != nil {
		_ = tel.Shutdown(ctx)
		return nil, fmt.Errorf("creating project service client: %w", err)
	}

	gate := session.NewGate(client, nav, logger)
	client.OnUnauthorized(gate.Expire)
	st := store.New(client, pub, store.WithGate(gate), store.WithLogger(logger))

	a := &app{
		cfg:      cfg,
		logger:   logger,
		tel:      tel,
		client:   client,
		gate:     gate,
		store:    st,
		wizard:   wizard.NewController(client, st, pub, logger),
		replace:  replace.New(client, st, pub, logger),
		deletion: deletion.New(client, st, pub, logger),
	}
	if cfg.Metrics.Addr != "" {
		a.serveMetrics(ctx, reg)
	}
	return a, nil
}

// serveMetrics exposes reg on /metrics in the background.
func (a *app) serveMetrics(ctx context.Context, reg *prometheus.Registry) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	a.metrics = e

	go func() {
		if err := e.Start(a.cfg.Metrics.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error(ctx, "metrics endpoint stopped", zap.Error(err))
		}
	}()
	a.logger.Info(ctx, "metrics endpoint listening", zap.String("addr", a.cfg.Metrics.Addr))
}

// Close stops the metrics endpoint and flushes telemetry and logs.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if a.metrics != nil {
		_ = a.metrics.Shutdown(ctx)
	}
	if err := a.tel.Shutdown(ctx); err != nil {
		a.logger.Warn(ctx, "telemetry shutdown failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// requireSession resolves the session before any fetch.
func (a *app) requireSession(ctx context.Context) error {
	if err := a.gate.Resolve(ctx); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	return nil
}

// newLogger builds the CLI logger. Logs go to w, or to logging.file when set.
func newLogger(cfg *config.Config, w io.Writer) (*logging.Logger, error) {
	lcfg, err := logging.FromAppConfig(cfg.Logging)
	if err != nil {
		return nil, err
	}
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		w = f
	}
	return logging.NewLogger(lcfg, w)
}

// printer publishes notifications as lines on w.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) Publish(n notify.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	mark := "ok"
	if n.Kind == notify.KindError {
		mark = "error"
	}
	fmt.Fprintf(p.w, "%s: %s\n", mark, n.Message)
}

// redirectPrinter reports the login redirect once on w.
type redirectPrinter struct {
	once sync.Once
	w    io.Writer
}

func (r *redirectPrinter) GoTo(route string) {
	r.once.Do(func() {
		fmt.Fprintf(r.w, "session expired or missing, sign in again at %s and update session.cookie\n", route)
	})
}
