package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"devmarket/internal/activity"
	"devmarket/internal/auth"
	"devmarket/internal/config"
	"devmarket/internal/db"
	"devmarket/internal/lifecycle"
	"devmarket/internal/metrics"
)

// maxJSONBody caps JSON request bodies. Uploads use the file store limit instead.
const maxJSONBody = 1 << 20

// Server holds the application dependencies
type Server struct {
	db       *db.DB
	config   *config.Config
	logger   *zap.Logger
	auth     *auth.Service
	projects *lifecycle.ProjectEngine
	phases   *lifecycle.PhaseEngine
	activity *activity.Recorder
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	limiter  Limiter
}

// Services are the collaborators the handlers delegate to
type Services struct {
	Projects *lifecycle.ProjectEngine
	Phases   *lifecycle.PhaseEngine
	Activity *activity.Recorder
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	// Limiter defaults to an in-memory token bucket sized by RateLimitRequests.
	Limiter Limiter
}

// NewServer creates a new API server
func NewServer(database *db.DB, cfg *config.Config, logger *zap.Logger, svc Services) *Server {
	if svc.Limiter == nil {
		svc.Limiter = NewMemoryLimiter(cfg.RateLimitRequests)
	}
	if svc.Gatherer == nil {
		svc.Gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		db:       database,
		config:   cfg,
		logger:   logger,
		auth:     auth.NewService(cfg.JWTSecret, cfg.JWTExpiry()),
		projects: svc.Projects,
		phases:   svc.Phases,
		activity: svc.Activity,
		metrics:  svc.Metrics,
		gatherer: svc.Gatherer,
		limiter:  svc.Limiter,
	}
}

// Router builds the HTTP handler with the full middleware stack.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(s.logger, s.metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.CORSAllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.HandleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/version", s.HandleVersion)

		r.Group(func(r chi.Router) {
			r.Use(s.Authenticate)
			r.Use(RateLimit(s.limiter, s.logger))
			r.Use(limitJSONBody)

			r.Post("/projects", s.HandleCreateProject)
			r.Get("/projects/{id}", s.HandleGetProject)
			r.Delete("/projects/{id}", s.HandleDeleteProject)
			r.Post("/projects/{id}/recruitment", s.HandleSetRecruitment)
			r.Post("/projects/{id}/join", s.projectAction(s.projects.Join))
			r.Post("/projects/{id}/leave", s.projectAction(s.projects.Leave))
			r.Post("/projects/{id}/confirm-ready", s.projectAction(s.projects.ConfirmReady))
			r.Post("/projects/{id}/mark-ready", s.projectAction(s.projects.MarkReady))
			r.Post("/projects/{id}/start", s.projectAction(s.projects.Start))
			r.Post("/projects/{id}/stop", s.projectAction(s.projects.Stop))
			r.Post("/projects/{id}/complete", s.projectAction(s.projects.Complete))
			r.Post("/projects/{id}/cancel", s.projectAction(s.projects.Cancel))
			r.Post("/projects/{id}/set-holding", s.projectAction(s.projects.SetHolding))
			r.Post("/projects/{id}/set-ready", s.projectAction(s.projects.SetReady))
			r.Post("/projects/{id}/assign", s.HandleAssign)
			r.Post("/projects/{id}/accept", s.projectAction(s.projects.Accept))
			r.Post("/projects/{id}/reject", s.projectAction(s.projects.Reject))
			r.Post("/projects/{id}/unassign", s.projectAction(s.projects.Unassign))
			r.Post("/projects/{id}/analyses", s.HandleAttachAnalysis)
			r.Get("/projects/{id}/activity", s.HandleListActivity)

			r.Get("/projects/{id}/phase-proposal", s.HandlePhaseProposal)
			r.Post("/projects/{id}/phases/confirm", s.HandleConfirmPhases)
			r.Get("/projects/{id}/phases", s.HandleListPhases)

			r.Get("/phases/{id}", s.HandleGetPhase)
			r.Patch("/phases/{id}", s.HandleUpdatePhase)
			r.Get("/phases/{id}/advance-check", s.HandleAdvanceCheck)
			r.Post("/phases/{id}/sub-steps", s.HandleSaveSubStep)
			r.Post("/phases/{id}/questions/answer", s.HandleAnswerQuestion)
			r.Post("/phases/{id}/approve", s.HandleApprovePhase)
			r.Post("/phases/{id}/attachments", s.HandleAddAttachment)
			r.Get("/phases/{id}/attachments/{attachmentId}", s.HandleDownloadAttachment)
			r.Delete("/phases/{id}/attachments/{attachmentId}", s.HandleRemoveAttachment)

			r.Get("/notifications", s.HandleListNotifications)

			r.Get("/api-keys", s.HandleListAPIKeys)
			r.Post("/api-keys", s.HandleCreateAPIKey)
			r.Delete("/api-keys/{id}", s.HandleDeleteAPIKey)
		})
	})

	return otelhttp.NewHandler(r, "devmarket.http")
}

// limitJSONBody caps non-multipart request bodies.
func limitJSONBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isMultipart(r) {
			r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
		}
		next.ServeHTTP(w, r)
	})
}

// HandleHealth pings the database
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.db.HealthCheck(ctx); err != nil {
		s.logger.Warn("Health check failed", zap.Error(err))
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "message": "database unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "database": "connected"})
}
