// Package http exposes the prediction pipeline over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"firequest/db"
	"firequest/monitoring"
	"firequest/pipeline"
	"firequest/session"
)

// ServerConfig configures the listener and the middleware stack.
type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// DefaultServerConfig listens on :8080 and allows any origin.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8080,
		Timeout:        30 * time.Second,
		AllowedOrigins: []string{"*"},
		MaxBodyBytes:   1 << 20,
	}
}

// AuditReader serves the audit log endpoint. *db.AuditLog satisfies it.
type AuditReader interface {
	RecentPredictions(ctx context.Context, limit int) ([]db.PredictionRecord, error)
}

// Deps are the collaborators the handlers use. Audit, Hub and Metrics may be
// nil; their endpoints then answer 404.
type Deps struct {
	Pipeline *pipeline.Pipeline
	Sessions *session.Manager
	Model    interface{ SupportsConfidence() bool }
	Audit    AuditReader
	Hub      *monitoring.Hub
	Metrics  *monitoring.MetricsCollector
	Logger   *zap.Logger
}

// Server is the HTTP listener of the service.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

type handlers struct {
	Deps
	validate *validator.Validate
}

// NewRouter builds the routed, middleware-wrapped handler.
func NewRouter(config ServerConfig, deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	h := &handlers{Deps: deps, validate: newValidator()}

	r := chi.NewRouter()
	r.Use(middlewareStack(config, deps.Logger))
	registerHandlers(r, h)
	return r
}

// middlewareStack runs the logger outermost so that recovery, and every
// handler, sees the request id.
func middlewareStack(config ServerConfig, logger *zap.Logger) Middleware {
	return Chain(
		LoggerMiddleware(logger),
		RecoveryMiddleware(logger),
		SecurityHeadersMiddleware,
		CORSMiddleware(config.AllowedOrigins),
		RequestSizeMiddleware(config.MaxBodyBytes),
	)
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// NewServer builds the server; call Start to listen.
func NewServer(config ServerConfig, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", config.Port),
			Handler: NewRouter(config, deps),
			// Only headers are time-limited; websocket streams stay open.
			ReadHeaderTimeout: config.Timeout,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

// Start listens until Stop is called. A clean shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop drains open requests for at most five seconds.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	s.logger.Info("shutting down HTTP server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
