package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"devmarket/internal/apperr"
	"devmarket/internal/metrics"
	"devmarket/internal/model"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

// ActorKey is the context key for the resolved caller
const ActorKey contextKey = "actor"

// Authenticate resolves the caller from a Bearer JWT or an ApiKey credential
// and rejects unknown or deactivated accounts.
func (s *Server) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			respondError(w, http.StatusUnauthorized, "missing authorization header", "unauthorized")
			return
		}

		authType, credential, ok := strings.Cut(authHeader, " ")
		if !ok || credential == "" {
			respondError(w, http.StatusUnauthorized, "invalid authorization header format", "unauthorized")
			return
		}

		var user *model.User
		switch authType {
		case "Bearer":
			claims, err := s.auth.ValidateToken(credential)
			if err != nil {
				s.logger.Debug("Token validation failed", zap.Error(err))
				respondError(w, http.StatusUnauthorized, "invalid or expired token", "unauthorized")
				return
			}
			user, err = s.db.GetUser(r.Context(), claims.UserID)
			if err != nil {
				s.rejectCredential(w, r, err, "unknown account")
				return
			}

		case "ApiKey":
			var err error
			user, err = s.db.GetUserByAPIKey(r.Context(), credential)
			if err != nil {
				s.rejectCredential(w, r, err, "invalid or expired API key")
				return
			}

		default:
			respondError(w, http.StatusUnauthorized, "unsupported authorization type", "unauthorized")
			return
		}

		if !user.IsActive {
			respondError(w, http.StatusUnauthorized, "account is inactive", "unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), ActorKey, user.Actor())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) rejectCredential(w http.ResponseWriter, r *http.Request, err error, message string) {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound, apperr.KindUnauthorized:
		respondError(w, http.StatusUnauthorized, message, "unauthorized")
	default:
		s.respondAppError(w, r, err)
	}
}

// GetActor extracts the resolved caller from request context
func GetActor(r *http.Request) (model.Actor, bool) {
	actor, ok := r.Context().Value(ActorKey).(model.Actor)
	return actor, ok
}

// RequestLogger logs every request with zap and records its latency.
func RequestLogger(logger *zap.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Wrap response writer to capture status code
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			elapsed := time.Since(start)
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			m.ObserveRequest(r.Method, route, strconv.Itoa(wrapped.statusCode), elapsed)

			logger.Info("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", wrapped.statusCode),
				zap.Duration("duration", elapsed),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// RateLimit rejects callers that exceed the limiter's budget. Limiter failures
// let the request through.
func RateLimit(limiter Limiter, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := limiter.Allow(r.Context(), rateLimitKey(r))
			if err != nil {
				logger.Warn("Rate limiter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				respondError(w, http.StatusTooManyRequests, "rate limit exceeded", "rate_limit_exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimitKey buckets by caller when authenticated and by client address otherwise.
func rateLimitKey(r *http.Request) string {
	if actor, ok := GetActor(r); ok {
		return "user:" + formatID(actor.ID)
	}
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return "ip:" + ip
}
