// Package projectsvc is the client for the remote Project Service.
//
// Every call is a single attempt. Non-2xx responses are classified into the
// error kinds of this package; a 401 additionally invokes the unauthorized
// hook so the session gate can redirect the user.
package projectsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/finview/internal/config"
	"github.com/fyrsmithlabs/finview/internal/logging"
)

const (
	tracerName      = "finview.projectsvc"
	requestIDHeader = "X-Request-ID"
	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 64 << 10
)

// Client talks to the Project Service. It is safe for concurrent use.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	limiter *rate.Limiter
	logger  *logging.Logger
	metrics *Metrics
	tracer  trace.Tracer

	mu             sync.RWMutex
	onUnauthorized func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its Jar, if any, holds
// the session cookie.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l.Named("projectsvc")
		}
	}
}

// WithMetrics records call metrics.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTracerProvider sets where spans are sent. Defaults to the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithRateLimit paces outgoing calls. rps <= 0 disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// New creates a Client for baseURL with a cookie jar and the given timeout.
func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url %q must use http or https", baseURL)
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: timeout, Jar: jar},
		logger:  logging.NewNop(),
		tracer:  otel.GetTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewFromConfig builds a Client from the server and session sections and
// installs the configured session cookie.
func NewFromConfig(cfg *config.Config, opts ...Option) (*Client, error) {
	base := []Option{WithRateLimit(cfg.Server.RequestsPerSecond, cfg.Server.Burst)}
	c, err := New(cfg.Server.BaseURL, cfg.Server.Timeout.Duration(), append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	if cfg.Session.Cookie.IsSet() {
		c.SetSessionCookie(cfg.Session.CookieName, cfg.Session.Cookie.Value())
	}
	return c, nil
}

// SetSessionCookie stores the session cookie for the service origin.
func (c *Client) SetSessionCookie(name, value string) {
	if c.http.Jar == nil {
		return
	}
	c.http.Jar.SetCookies(c.baseURL, []*http.Cookie{{Name: name, Value: value, Path: "/"}})
}

// OnUnauthorized registers fn to run on every 401. It replaces any previous hook.
func (c *Client) OnUnauthorized(fn func()) {
	c.mu.Lock()
	c.onUnauthorized = fn
	c.mu.Unlock()
}

func (c *Client) unauthorized() {
	if c.metrics != nil {
		c.metrics.UnauthorizedTotal.Inc()
	}
	c.mu.RLock()
	fn := c.onUnauthorized
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// request describes one call.
type request struct {
	op          string
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	projectID   ID
}

// do performs req and decodes a 2xx JSON body into out (if non-nil).
func (c *Client) do(ctx context.Context, req request, out any) (err error) {
	requestID := uuid.NewString()
	ctx = logging.WithRequestID(ctx, requestID)
	if req.projectID != "" {
		ctx = logging.WithProjectID(ctx, req.projectID.String())
	}

	ctx, span := c.tracer.Start(ctx, "projectsvc."+req.op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("http.method", req.method),
		attribute.String("http.route", req.path),
	)
	if req.projectID != "" {
		span.SetAttributes(attribute.String("project.id", req.projectID.String()))
	}
	start := time.Now()
	defer func() {
		c.metrics.observe(req.op, err, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			c.logger.Warn(ctx, "project service call failed",
				zap.String("op", req.op), zap.Stringer("kind", KindOf(err)), zap.Error(err))
		} else {
			span.SetStatus(codes.Ok, "")
			c.logger.Debug(ctx, "project service call succeeded",
				zap.String("op", req.op), zap.Duration("elapsed", time.Since(start)))
		}
		span.End()
	}()

	if c.limiter != nil {
		if werr := c.limiter.Wait(ctx); werr != nil {
			return &Error{Kind: KindNetwork, Op: req.op, Err: werr}
		}
	}

	u := c.baseURL.JoinPath(req.path)
	if strings.HasSuffix(req.path, "/") && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if req.query != nil {
		u.RawQuery = req.query.Encode()
	}

	httpReq, rerr := http.NewRequestWithContext(ctx, req.method, u.String(), req.body)
	if rerr != nil {
		return &Error{Kind: KindNetwork, Op: req.op, Err: rerr}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(requestIDHeader, requestID)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}

	c.logger.Debug(ctx, "project service call", zap.String("op", req.op), zap.String("method", req.method))

	resp, derr := c.http.Do(httpReq)
	if derr != nil {
		return &Error{Kind: KindNetwork, Op: req.op, Err: derr}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := &Error{
			Kind:    statusKind(resp.StatusCode),
			Op:      req.op,
			Status:  resp.StatusCode,
			Message: errorMessage(resp.Body),
		}
		if e.Kind == KindAuth {
			c.unauthorized()
		}
		return e
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if jerr := json.NewDecoder(resp.Body).Decode(out); jerr != nil {
		if errors.Is(jerr, context.Canceled) || errors.Is(jerr, context.DeadlineExceeded) {
			return &Error{Kind: KindNetwork, Op: req.op, Status: resp.StatusCode, Err: jerr}
		}
		return &Error{Kind: KindServer, Op: req.op, Status: resp.StatusCode,
			Err: fmt.Errorf("decoding response: %w", jerr)}
	}
	return nil
}

// errorMessage extracts the `error` field of a JSON error body.
func errorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return ""
	}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	if body.Error != "" {
		return body.Error
	}
	return body.Message
}
