// Package server exposes the gate over HTTP.
//
// Routes:
//
//	GET  /healthz, /readyz   liveness and readiness
//	GET  /metrics            Prometheus exposition
//	POST /v1/detect          classify an audio body, no transcription
//	POST /v1/transcribe      gate and transcribe an audio body
//	GET  /v1/stream          WebSocket: stream packets, get one result per utterance
//	GET  /v1/verdicts        recent entries of the verdict log
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/voxgate/internal/gate"
	"github.com/MrWong99/voxgate/internal/health"
	"github.com/MrWong99/voxgate/internal/observe"
	"github.com/MrWong99/voxgate/internal/verdict"
)

const (
	defaultMaxBodyBytes  = 32 << 20
	defaultMaxConcurrent = 4
	defaultRecentLimit   = 50
	maxRecentLimit       = 1000
)

// Server routes HTTP requests to a [gate.Gate].
type Server struct {
	gate     *gate.Gate
	verdicts verdict.Store
	health   *health.Handler
	metrics  *observe.Metrics
	promHTTP http.Handler

	maxBodyBytes int64
	transcribe   *semaphore.Weighted

	router chi.Router
}

// Option is a functional option for configuring a Server.
type Option func(*Server)

// WithVerdicts serves GET /v1/verdicts from store.
func WithVerdicts(store verdict.Store) Option {
	return func(s *Server) { s.verdicts = store }
}

// WithHealth replaces the default health handler, which has no readiness
// checks.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics records request metrics into m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler mounts h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.promHTTP = h }
}

// WithLimits bounds request bodies and stream utterances to maxBodyBytes and
// runs at most maxConcurrent transcriptions at once. Non-positive values
// keep the defaults.
func WithLimits(maxBodyBytes, maxConcurrent int64) Option {
	return func(s *Server) {
		if maxBodyBytes > 0 {
			s.maxBodyBytes = maxBodyBytes
		}
		if maxConcurrent > 0 {
			s.transcribe = semaphore.NewWeighted(maxConcurrent)
		}
	}
}

// New builds a Server for g.
func New(g *gate.Gate, opts ...Option) *Server {
	s := &Server{
		gate:         g,
		maxBodyBytes: defaultMaxBodyBytes,
		transcribe:   semaphore.NewWeighted(defaultMaxConcurrent),
	}
	for _, o := range opts {
		o(s)
	}
	if s.health == nil {
		s.health = health.New()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(observe.Middleware(s.metrics))

	s.health.Register(r)
	if s.promHTTP != nil {
		r.Method(http.MethodGet, "/metrics", s.promHTTP)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/detect", s.handleDetect)
		r.Post("/transcribe", s.handleTranscribe)
		r.Get("/stream", s.handleStream)
		r.Get("/verdicts", s.handleVerdicts)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down,
// giving in-flight requests up to shutdownTimeout to finish.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("http server stopped")
	return nil
}
