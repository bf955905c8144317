package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quantlab/backgrid/internal/api/handler"
	"github.com/quantlab/backgrid/internal/metrics"
	"go.uber.org/zap"
)

// Server is the engine's HTTP surface.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	MetricsPath string // empty disables the metrics endpoint
}

// NewServer wires the handlers into an HTTP server.
func NewServer(cfg Config, backtest *handler.Backtest, gridHandler *handler.Grid, registry *metrics.Registry, logger *zap.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/backtest", backtest.Create)
	mux.HandleFunc("GET /api/backtest/{id}", backtest.Get)

	mux.HandleFunc("POST /api/grid/run", gridHandler.RunBatch)
	mux.HandleFunc("GET /api/grid/status", gridHandler.Status)
	mux.HandleFunc("POST /api/grid/reset", gridHandler.Reset)
	mux.HandleFunc("GET /api/grid/results", gridHandler.Results)

	mux.HandleFunc("GET /api/health", handleHealth)

	var root http.Handler = mux
	if registry != nil {
		if cfg.MetricsPath != "" {
			mux.Handle("GET "+cfg.MetricsPath, promhttp.HandlerFor(registry.Registry, promhttp.HandlerOpts{}))
		}
		root = metrics.HTTPMiddleware(registry)(mux)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      root,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second, // batches may run up to their budget
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}
