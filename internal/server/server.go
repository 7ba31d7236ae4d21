// Package server exposes the analysis runner over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/sells-group/dokanalyse/internal/analysis"
	"github.com/sells-group/dokanalyse/internal/model"
	"github.com/sells-group/dokanalyse/internal/resilience"
)

const defaultMaxBody = 10 << 20

// Analyzer runs an analysis request.
type Analyzer interface {
	Run(ctx context.Context, req analysis.Request) (*analysis.Response, error)
}

// UpstreamStates reports the circuit state of each upstream host.
type UpstreamStates interface {
	States() map[string]resilience.State
}

// DatasetLister lists the configured datasets.
type DatasetLister interface {
	Datasets() ([]*model.DatasetConfig, error)
}

// Option configures the server.
type Option func(*Server)

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// WithGatherer sets the registry served on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithUpstreams reports per-host circuit state on /health.
func WithUpstreams(u UpstreamStates) Option {
	return func(s *Server) { s.upstreams = u }
}

// WithRequestTimeout bounds each request.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// Server holds the HTTP handlers.
type Server struct {
	analyzer  Analyzer
	datasets  DatasetLister
	upstreams UpstreamStates
	gatherer  prometheus.Gatherer
	origins   []string
	timeout   time.Duration
	maxBody   int64
}

// New creates a Server.
func New(analyzer Analyzer, datasets DatasetLister, opts ...Option) *Server {
	s := &Server{
		analyzer: analyzer,
		datasets: datasets,
		gatherer: prometheus.DefaultGatherer,
		origins:  []string{"*"},
		timeout:  2 * time.Minute,
		maxBody:  defaultMaxBody,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(s.timeout))
		r.Post("/analyze", s.handleAnalyze)
		r.Get("/datasets", s.handleDatasets)
	})

	return r
}

type healthResponse struct {
	Status    string            `json:"status"`
	Upstreams map[string]string `json:"upstreams,omitempty"`
}

// handleHealth reports "degraded" while any upstream circuit is open.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.upstreams != nil {
		states := s.upstreams.States()
		if len(states) > 0 {
			resp.Upstreams = make(map[string]string, len(states))
		}
		for host, st := range states {
			resp.Upstreams[host] = st.String()
			if st == resilience.Open {
				resp.Status = "degraded"
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analysis.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBody))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.analyzer.Run(r.Context(), req)
	if err != nil {
		if errors.Is(err, analysis.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		zap.L().Error("server: analysis failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type datasetSummary struct {
	DatasetID string   `json:"datasetId"`
	Title     string   `json:"title"`
	Themes    []string `json:"themes"`
	Backend   string   `json:"backend"`
	Layers    []string `json:"layers"`
}

func (s *Server) handleDatasets(w http.ResponseWriter, _ *http.Request) {
	configs, err := s.datasets.Datasets()
	if err != nil {
		zap.L().Error("server: list datasets", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "dataset configuration unavailable")
		return
	}

	out := make([]datasetSummary, 0, len(configs))
	for _, cfg := range configs {
		sum := datasetSummary{
			DatasetID: cfg.DatasetID.String(),
			Title:     cfg.Title,
			Themes:    cfg.Themes,
			Backend:   string(cfg.Backend()),
		}
		for _, l := range cfg.Layers {
			sum.Layers = append(sum.Layers, l.Name())
		}
		out = append(out, sum)
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("server: write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
