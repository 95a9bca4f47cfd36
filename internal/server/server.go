// Package server exposes the HTTP surface of the daemon: Prometheus metrics,
// liveness and readiness probes, and event ingestion.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	ierrors "github.com/Aman-CERP/indexgen/internal/errors"
	"github.com/Aman-CERP/indexgen/internal/metrics"
	"github.com/Aman-CERP/indexgen/internal/notify"
)

// Defaults.
const (
	DefaultAddr            = ":9464"
	DefaultShutdownTimeout = 10 * time.Second
	maxEventBytes          = 1 << 20
	readyTimeout           = 2 * time.Second
)

// Config configures the HTTP server.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// ReadyFunc reports whether a dependency is usable.
type ReadyFunc func(ctx context.Context) error

// Server serves the daemon's HTTP endpoints.
type Server struct {
	cfg     Config
	handler notify.Handler
	metrics *metrics.Metrics
	checks  map[string]ReadyFunc
	router  chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithReadiness adds a named dependency probe to /readyz.
func WithReadiness(name string, fn ReadyFunc) Option {
	return func(s *Server) { s.checks[name] = fn }
}

// New builds the router. h receives ingested events.
func New(cfg Config, h notify.Handler, m *metrics.Metrics, opts ...Option) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	s := &Server{cfg: cfg, handler: h, metrics: m, checks: make(map[string]ReadyFunc)}
	for _, o := range opts {
		o(s)
	}

	r := chi.NewRouter()
	r.Use(m.Instrument)
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}
	r.Post("/v1/events", s.ingest)
	s.router = r
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return ierrors.ConfigError("cannot listen", err).WithDetail("addr", s.cfg.Addr)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	slog.Info("http server listening", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return ierrors.InternalError("http shutdown failed", err)
	}
	slog.Info("http server stopped")
	return nil
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type readyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := readyResponse{Status: "ready", Checks: make(map[string]string, len(names))}
	status := http.StatusOK
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "not_ready"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}

type ingestResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (s *Server) ingest(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge,
			ierrors.New(ierrors.ErrCodeInvalidEvent, "event body too large", err))
		return
	}

	ev, err := notify.DecodeEvent(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}

	if err := ev.Dispatch(r.Context(), s.handler); err != nil {
		status := http.StatusInternalServerError
		if ierrors.GetCategory(err) == ierrors.CategoryValidation {
			status = http.StatusBadRequest
		}
		attrs := append([]any{
			slog.String("id", ev.ID),
			slog.String("pid", ev.Snapshot.Identifier),
		}, ierrors.LogAttrs(err)...)
		slog.Error("event ingestion failed", attrs...)
		writeError(w, status, err)
		return
	}

	writeJSON(w, http.StatusAccepted, ingestResponse{ID: ev.ID, Status: "accepted"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	body, jerr := ierrors.FormatJSON(err)
	if jerr != nil {
		body = []byte(`{"code":"` + ierrors.ErrCodeInternal + `"}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
