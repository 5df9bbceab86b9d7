// Package api exposes the lead workflow and the history view over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Headers identifying the caller.
const (
	HeaderUser = "X-User-ID"
	HeaderTab  = "X-Tab-ID"
)

const defaultUser = "anonymous"

var validate = validator.New()

// Option configures a Server.
type Option func(*Server)

// WithGatherer serves metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithAllowedOrigins sets the CORS origins.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = origins }
}

// Server routes HTTP requests to per-tab workflow state.
type Server struct {
	registry *Registry
	gatherer prometheus.Gatherer
	origins  []string
}

// NewServer creates a Server over registry.
func NewServer(registry *Registry, opts ...Option) *Server {
	s := &Server{
		registry: registry,
		gatherer: prometheus.DefaultGatherer,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.origins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders:   []string{"Content-Type", HeaderUser, HeaderTab},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "tabs": s.registry.Len()})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/session", func(r chi.Router) {
		r.Use(s.withTab)
		r.Get("/", s.getSession)
		r.Post("/define", s.define)
		r.Post("/refine", s.refine)
		r.Post("/choose", s.choose)
		r.Post("/finish", s.finish)
		r.Post("/refresh", s.refresh)
		r.Post("/back", s.back)
		r.Post("/reset", s.reset)
		r.Post("/leads", s.saveLead)
	})

	r.Route("/history", func(r chi.Router) {
		r.Use(s.withTab)
		r.Get("/", s.listHistory)
		r.Post("/select", s.selectHistory)
		r.Post("/deselect", s.deselectHistory)
		r.Post("/save", s.saveHistory)
		r.Put("/preferences", s.putPreferences)
	})

	return r
}

type tabCtxKey struct{}

// withTab resolves the caller's tab and stores it in the request context.
func (s *Server) withTab(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := r.Header.Get(HeaderUser)
		if user == "" {
			user = defaultUser
		}
		tabID := r.Header.Get(HeaderTab)
		if err := validate.Var(tabID, "required,max=64,printascii,excludesall=/\\ "); err != nil {
			writeError(w, http.StatusBadRequest, HeaderTab+" header is required (max 64 printable characters)")
			return
		}
		if err := validate.Var(user, "max=128,printascii"); err != nil {
			writeError(w, http.StatusBadRequest, "invalid "+HeaderUser+" header")
			return
		}

		tab, err := s.registry.Get(r.Context(), user, tabID)
		if err != nil {
			zap.L().Error("api: tab unavailable", zap.String("tab", tabID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "session unavailable")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tabCtxKey{}, tab)))
	})
}

func tabFrom(r *http.Request) *Tab {
	return r.Context().Value(tabCtxKey{}).(*Tab)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
