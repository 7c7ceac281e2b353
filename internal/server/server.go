// Package server exposes the analytics tools over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/open_interest/internal/metrics"
	"github.com/eddiefleurent/open_interest/internal/service"
)

// Analytics is the tool surface the server exposes.
type Analytics interface {
	ComputeSentiment(ctx context.Context, symbol string) (*service.SentimentResponse, error)
	ComputeMaxPain(ctx context.Context, req service.MaxPainRequest) (*service.MaxPainResponse, error)
}

// Config holds the HTTP listener settings.
type Config struct {
	Host           string
	Port           int
	AuthToken      string
	RequestTimeout time.Duration
}

// Server is the HTTP transport.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	analytics Analytics
	metrics   *metrics.Metrics
	logger    *logrus.Logger
	cfg       Config
}

// NewServer builds the router. m may be nil, which disables /metrics.
func NewServer(cfg Config, analytics Analytics, m *metrics.Metrics, logger *logrus.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		router:    chi.NewRouter(),
		analytics: analytics,
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.cfg.RequestTimeout))

	if s.cfg.AuthToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/sentiment/{symbol}", s.handleSentiment)
		r.Get("/maxpain/{symbol}", s.handleMaxPain)
	})
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AuthToken)) != 1 {
			s.writeJSON(w, http.StatusUnauthorized, service.ErrorResponse{Error: "unauthorized"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// requestLogger logs each request through logrus and records HTTP metrics
// under the matched route pattern.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)
		s.metrics.ObserveHTTP(r.Method, route, ww.Status(), elapsed)
		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   elapsed,
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("HTTP request")
	})
}

// Start listens until Shutdown. It returns http.ErrServerClosed after a
// clean shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting HTTP server on %s", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSentiment(w http.ResponseWriter, r *http.Request) {
	resp, err := s.analytics.ComputeSentiment(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMaxPain(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := s.analytics.ComputeMaxPain(r.Context(), service.MaxPainRequest{
		Symbol:     chi.URLParam(r, "symbol"),
		Date:       q.Get("date"),
		Expiration: q.Get("expiration"),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// writeError maps request errors to 400 and every other tool failure to 422.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusUnprocessableEntity
	if service.IsInvalidRequest(err) {
		status = http.StatusBadRequest
	}
	s.writeJSON(w, status, service.ErrorPayload(err))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}
