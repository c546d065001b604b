package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/randomizedcoder/go-genset-supervisor/internal/engine"
	"github.com/randomizedcoder/go-genset-supervisor/internal/sensor"
	"github.com/randomizedcoder/go-genset-supervisor/internal/supervisor"
)

// Controller is the part of the supervisor the server exposes.
type Controller interface {
	Submit(req engine.Request) error
	View() supervisor.View
}

// Server provides HTTP endpoints for Prometheus metrics, health checks,
// engine status and operator control.
type Server struct {
	addr    string
	server  *http.Server
	handler http.Handler
	ctrl    Controller
	logger  *slog.Logger
}

// NewServer creates a new metrics server. A nil gatherer serves the default
// registry; a nil controller disables /status and /control.
func NewServer(addr string, gatherer prometheus.Gatherer, ctrl Controller, logger *slog.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		addr:   addr,
		ctrl:   ctrl,
		logger: logger,
	}

	mux := http.NewServeMux()

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// Health check endpoint
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/healthz", healthHandler)

	// Ready once the supervisor has completed a tick with good readings
	mux.HandleFunc("/ready", s.readyHandler)
	mux.HandleFunc("/readyz", s.readyHandler)

	if ctrl != nil {
		mux.HandleFunc("GET /status", s.statusHandler)
		mux.HandleFunc("POST /control/{action}", s.controlHandler)
	}

	s.handler = mux
	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	return s
}

// healthHandler handles health check requests.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if s.ctrl != nil {
		if v := s.ctrl.View(); v.Ticks == 0 || !v.SensorOK {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintln(w, "not ready")
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status       engine.Status   `json:"status"`
	Snapshot     sensor.Snapshot `json:"snapshot"`
	SensorOK     bool            `json:"sensor_ok"`
	SensorErrors int             `json:"sensor_errors"`
	Ticks        uint64          `json:"ticks"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	v := s.ctrl.View()
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:       v.Status,
		Snapshot:     v.Snapshot,
		SensorOK:     v.SensorOK,
		SensorErrors: v.SensorErrors,
		Ticks:        v.Ticks,
		UpdatedAt:    v.UpdatedAt,
	})
}

// ControlResponse is the body of POST /control/{action}. Queued means the
// request will be handled on the next tick; the outcome is reported through
// events and /status.
type ControlResponse struct {
	Request string `json:"request"`
	Queued  bool   `json:"queued"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) controlHandler(w http.ResponseWriter, r *http.Request) {
	action := r.PathValue("action")
	req, err := engine.ParseRequest(action)
	if err != nil {
		writeJSON(w, http.StatusNotFound, ControlResponse{Request: action, Error: err.Error()})
		return
	}

	if err := s.ctrl.Submit(req); err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, engine.ErrQueueFull) {
			code = http.StatusServiceUnavailable
		}
		s.logger.Warn("control_request_failed", "request", req.String(), "remote", r.RemoteAddr, "error", err)
		writeJSON(w, code, ControlResponse{Request: req.String(), Error: err.Error()})
		return
	}

	s.logger.Info("control_request", "request", req.String(), "remote", r.RemoteAddr)
	writeJSON(w, http.StatusAccepted, ControlResponse{Request: req.String(), Queued: true})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the metrics server in a goroutine.
// Returns immediately. Use Shutdown to stop.
func (s *Server) Start() error {
	s.logger.Info("metrics_server_starting", "addr", s.addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("metrics_server_error", "error", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Debug("metrics_server_shutting_down")
	return s.server.Shutdown(ctx)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.addr
}
