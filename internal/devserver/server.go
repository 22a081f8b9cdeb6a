// Package devserver serves the Project Service wire contract from memory.
//
// It backs integration tests and `finview devserver`, so the client can be
// exercised end to end without the real backend. A single static session
// token stands in for login.
package devserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/finview/internal/logging"
)

// Config holds dev server configuration.
type Config struct {
	Host string
	Port int
	// CookieName is the session cookie checked on protected routes.
	CookieName string
	// Token is the only session value accepted.
	Token string
}

// Server is the in-memory Project Service.
type Server struct {
	echo   *echo.Echo
	logger *logging.Logger
	config *Config
	now    func() time.Time

	mu       sync.Mutex
	projects map[uint]*project
	nextID   uint
	failures map[string]failure
	user     User
}

// User is the account the static session belongs to.
type User struct {
	ID    uint   `json:"ID"`
	Email string `json:"Email"`
}

type failure struct {
	status  int
	message string
}

// NewServer creates a dev server. A nil cfg listens on localhost:3000 with
// cookie "Authorization" and token "dev-session".
func NewServer(logger *logging.Logger, cfg *Config) (*Server, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 3000
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "Authorization"
	}
	if cfg.Token == "" {
		cfg.Token = "dev-session"
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:     e,
		logger:   logger.Named("devserver"),
		config:   cfg,
		now:      time.Now,
		projects: make(map[uint]*project),
		nextID:   1,
		failures: make(map[string]failure),
		user:     User{ID: 1, Email: "dev@finview.local"},
	}

	e.HTTPErrorHandler = s.handleError
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			s.logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return nil
		}
	})

	s.registerRoutes()
	return s, nil
}

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/validate", s.handleValidate, s.requireAuth)

	p := s.echo.Group("/projects", s.requireAuth)
	p.POST("/", s.handleUpload)
	p.GET("/", s.handleList)
	p.PUT("/:id/settings", s.handleSettings)
	p.PUT("/:id/file", s.handleReplaceFile)
	p.GET("/:id/analysis", s.handleAnalysis)
	p.DELETE("/:id", s.handleDelete)
}

// Handler exposes the router, for httptest.
func (s *Server) Handler() http.Handler { return s.echo }

// Addr is the configured listen address.
func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Start listens on Addr until Shutdown.
func (s *Server) Start() error {
	s.logger.Info(context.Background(), "starting dev server", zap.String("addr", s.Addr()))
	return s.echo.Start(s.Addr())
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down dev server")
	return s.echo.Shutdown(ctx)
}

// FailNext makes the next request whose route is route ("METHOD /path" as
// registered, e.g. "PUT /projects/:id/settings") answer status with message.
func (s *Server) FailNext(route string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = failure{status: status, message: message}
}

func (s *Server) takeFailure(c echo.Context) (failure, bool) {
	key := c.Request().Method + " " + c.Path()
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.failures[key]
	if ok {
		delete(s.failures, key)
	}
	return f, ok
}

// requireAuth rejects requests without the session cookie.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ck, err := c.Cookie(s.config.CookieName)
		if err != nil || ck.Value != s.config.Token {
			return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
		}
		if f, ok := s.takeFailure(c); ok {
			return echo.NewHTTPError(f.status, f.message)
		}
		return next(c)
	}
}

// handleError writes every error as {"error": message}.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := http.StatusInternalServerError
	msg := http.StatusText(status)
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		msg = fmt.Sprint(he.Message)
	}
	if status >= 500 {
		s.logger.Warn(c.Request().Context(), "request failed", zap.Int("status", status), zap.Error(err))
	}
	if werr := c.JSON(status, errorResponse{Error: msg}); werr != nil {
		s.logger.Warn(c.Request().Context(), "writing error response", zap.Error(werr))
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleValidate(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"user": s.user})
}
