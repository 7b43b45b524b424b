// Package http serves the Prometheus endpoint and run status of a training
// process.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/worldmodel/internal/logging"
)

// StatusFunc reports the current run status. It is called from request
// goroutines and must be safe for concurrent use.
type StatusFunc func() StatusResponse

// HealthFunc reports telemetry health. Nil means always healthy.
type HealthFunc func() HealthResponse

// Server provides the HTTP endpoints of a run.
type Server struct {
	echo   *echo.Echo
	logger *logging.Logger
	config *Config
	status StatusFunc
	health HealthFunc
}

// Config holds HTTP server configuration. A nil Meter uses the global
// otel meter provider.
type Config struct {
	Addr  string
	Meter metric.Meter
}

// NewServer creates a server exposing reg on /metrics.
func NewServer(reg *prometheus.Registry, status StatusFunc, health HealthFunc, logger *logging.Logger, cfg *Config) (*Server, error) {
	if reg == nil {
		return nil, errors.New("registry cannot be nil")
	}
	if status == nil {
		return nil, errors.New("status func cannot be nil")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Addr == "" {
		cfg.Addr = "localhost:9090"
	}
	meter := cfg.Meter
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	obs, err := newRequestObserver(meter, logger.Named("http"))
	if err != nil {
		return nil, fmt.Errorf("http instruments: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(obs.middleware)

	s := &Server{
		echo:   e,
		logger: logger.Named("http"),
		config: cfg,
		status: status,
		health: health,
	}
	s.registerRoutes(reg)
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.echo }

// registerRoutes sets up the HTTP endpoints.
func (s *Server) registerRoutes(reg *prometheus.Registry) {
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/status", s.handleStatus)
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	if s.health != nil {
		resp = s.health()
	}
	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, resp)
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.status())
}

// Run serves until ctx is cancelled, then shuts down within timeout.
func (s *Server) Run(ctx context.Context, timeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "starting http server", zap.String("addr", s.config.Addr))
		errCh <- s.echo.Start(s.config.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	s.logger.Info(ctx, "shutting down http server")
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
