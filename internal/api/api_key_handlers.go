package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/samber/lo"

	"devmarket/internal/apperr"
	"devmarket/internal/db"
)

const (
	maxAPIKeyName     = 100
	maxAPIKeyLifetime = 365
)

// CreateAPIKeyRequest names a new integration key. ExpiresIn is in days.
type CreateAPIKeyRequest struct {
	Name      string `json:"name"`
	ExpiresIn *int   `json:"expires_in,omitempty"`
}

// APIKeyResponse is a listed key without its secret
type APIKeyResponse = db.APIKey

// CreateAPIKeyResponse includes the secret, shown once
type CreateAPIKeyResponse = db.APIKeyWithSecret

func (req *CreateAPIKeyRequest) validate() error {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return apperr.Validation("name is required")
	}
	if len(req.Name) > maxAPIKeyName {
		return apperr.Validation("name must be %d characters or less", maxAPIKeyName)
	}
	if req.ExpiresIn != nil {
		if *req.ExpiresIn <= 0 {
			return apperr.Validation("expires_in must be positive")
		}
		if *req.ExpiresIn > maxAPIKeyLifetime {
			return apperr.Validation("expires_in cannot exceed %d days", maxAPIKeyLifetime)
		}
	}
	return nil
}

// HandleCreateAPIKey issues a key for the caller
func (s *Server) HandleCreateAPIKey(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req CreateAPIKeyRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondAppError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		s.respondAppError(w, r, err)
		return
	}

	var expiresAt *time.Time
	if req.ExpiresIn != nil {
		expiresAt = lo.ToPtr(time.Now().UTC().AddDate(0, 0, *req.ExpiresIn))
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	key, err := s.db.CreateAPIKey(ctx, actor.ID, req.Name, expiresAt)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, key)
}

// HandleListAPIKeys lists the caller's keys
func (s *Server) HandleListAPIKeys(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	keys, err := s.db.GetAPIKeysByUserID(ctx, actor.ID)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, keys)
}

// HandleDeleteAPIKey revokes one of the caller's keys
func (s *Server) HandleDeleteAPIKey(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	keyID, err := urlID(r, "id")
	if err != nil {
		s.respondAppError(w, r, apperr.Validation("invalid API key ID"))
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	if err := s.db.DeleteAPIKey(ctx, keyID, actor.ID); err != nil {
		s.respondAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
