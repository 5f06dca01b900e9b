package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/terra-clan/gmfm-scoring/internal/assessment"
	"github.com/terra-clan/gmfm-scoring/internal/config"
	"github.com/terra-clan/gmfm-scoring/internal/metrics"
	"github.com/terra-clan/gmfm-scoring/internal/models"
	"github.com/terra-clan/gmfm-scoring/internal/services"
	"github.com/terra-clan/gmfm-scoring/internal/storage"
)

// Server represents the HTTP API server
type Server struct {
	config         config.ServerConfig
	router         *chi.Mux
	service        *assessment.Service
	registry       *services.Registry
	metrics        *metrics.Collector
	authMiddleware *AuthMiddleware
	limiter        *RateLimiter
	validator      *requestValidator
}

// NewServer creates a new API server. registry and collector may be nil.
func NewServer(
	cfg config.ServerConfig,
	svc *assessment.Service,
	repo storage.Repository,
	registry *services.Registry,
	collector *metrics.Collector,
) *Server {
	if registry == nil {
		registry = services.NewRegistry()
	}

	s := &Server{
		config:         cfg,
		service:        svc,
		registry:       registry,
		metrics:        collector,
		authMiddleware: NewAuthMiddleware(repo),
		limiter:        NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		validator:      newRequestValidator(),
	}
	s.setupRouter()
	return s
}

// Router returns the configured router
func (s *Server) Router() http.Handler {
	return s.router
}

// Close stops background work of the server
func (s *Server) Close() {
	s.limiter.Stop()
}

// setupRouter configures all routes and middleware
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public endpoints
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	// API v1 routes (protected by authentication)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware.Authenticate)
		r.Use(s.limiter.Middleware)

		perm := s.authMiddleware.RequirePermission

		// Live scoring keeps the connection open, so it is outside the request timeout
		r.With(perm(models.PermScoreCompute)).Get("/sessions/live/{scale}", s.handleLiveScoring)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			// Catalog
			r.Route("/catalog/{scale}", func(r chi.Router) {
				r.Use(perm(models.PermCatalogRead))
				r.Get("/domains", s.handleListDomains)
				r.Get("/items", s.handleListItems)
			})

			// Stateless scoring
			r.Route("/score", func(r chi.Router) {
				r.Use(perm(models.PermScoreCompute))
				r.Post("/", s.handleScore)
				r.Post("/missing", s.handleMissingItems)
			})

			// Patients
			r.Route("/patients", func(r chi.Router) {
				r.With(perm(models.PermPatientsRead)).Get("/", s.handleListPatients)
				r.With(perm(models.PermPatientsWrite)).Post("/", s.handleCreatePatient)

				r.Route("/{id}", func(r chi.Router) {
					r.With(perm(models.PermPatientsRead)).Get("/", s.handleGetPatient)
					r.With(perm(models.PermPatientsWrite)).Put("/", s.handleUpdatePatient)
					r.With(perm(models.PermPatientsWrite)).Delete("/", s.handleDeletePatient)
					r.With(perm(models.PermSessionsRead)).Get("/history", s.handlePatientHistory)
					r.With(perm(models.PermSessionsRead)).Get("/sessions", s.handleListPatientSessions)
					r.With(perm(models.PermSessionsRead)).Get("/sessions/latest", s.handleLatestSession)
					r.With(perm(models.PermSessionsWrite)).Post("/sessions", s.handleRecordSession)
				})
			})

			// Sessions
			r.Route("/sessions", func(r chi.Router) {
				r.With(perm(models.PermSessionsRead)).Get("/compare", s.handleCompareSessions)

				r.Route("/{id}", func(r chi.Router) {
					r.With(perm(models.PermSessionsRead)).Get("/", s.handleGetSession)
					r.With(perm(models.PermSessionsWrite)).Put("/", s.handleUpdateSession)
					r.With(perm(models.PermSessionsWrite)).Delete("/", s.handleDeleteSession)
				})
			})
		})
	})

	s.router = r
}

func (s *Server) allowedOrigins() []string {
	if len(s.config.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.config.AllowedOrigins
}

// loggingMiddleware logs HTTP requests using slog and records request metrics
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			elapsed := time.Since(start)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}

			// hijacked websocket connections never call WriteHeader
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
				if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
					status = http.StatusSwitchingProtocols
				}
			}
			s.metrics.ObserveRequest(r.Method, route, status, elapsed)

			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"route", route,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", elapsed.Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
