package api

import (
	"context"
	"net/http"
	"time"

	"devmarket/internal/apperr"
	"devmarket/internal/lifecycle"
	"devmarket/internal/model"
)

// SetRecruitmentRequest opens or closes recruitment
type SetRecruitmentRequest struct {
	Open *bool `json:"open"`
}

// AssignRequest names the single assignee
type AssignRequest struct {
	ProgrammerID int64 `json:"programmer_id"`
}

// AttachAnalysisRequest carries a phase-definition artifact
type AttachAnalysisRequest struct {
	Content string `json:"content"`
}

// requestContext bounds a handler's store and engine calls.
func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	timeout := s.config.DBQueryTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(r.Context(), timeout)
}

// projectAction adapts a body-less project transition to a handler.
func (s *Server) projectAction(fn func(ctx context.Context, actor model.Actor, id int64) (*model.Project, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		projectID, err := urlID(r, "id")
		if err != nil {
			s.respondAppError(w, r, err)
			return
		}

		ctx, cancel := s.requestContext(r)
		defer cancel()

		p, err := fn(ctx, actor, projectID)
		if err != nil {
			s.respondAppError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, p)
	}
}

// HandleCreateProject posts a new project for the calling client
func (s *Server) HandleCreateProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req lifecycle.CreateProjectInput
	if err := decodeJSON(r, &req); err != nil {
		s.respondAppError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	p, err := s.projects.Create(ctx, actor, req)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

// HandleGetProject returns a single project by ID
func (s *Server) HandleGetProject(w http.ResponseWriter, r *http.Request) {
	projectID, err := urlID(r, "id")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	p, err := s.projects.Get(ctx, projectID)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// HandleDeleteProject removes a project and its phases
func (s *Server) HandleDeleteProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	projectID, err := urlID(r, "id")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	if err := s.projects.Delete(ctx, actor, projectID); err != nil {
		s.respondAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleSetRecruitment opens or closes the project to programmers
func (s *Server) HandleSetRecruitment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	projectID, err := urlID(r, "id")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	var req SetRecruitmentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondAppError(w, r, err)
		return
	}
	if req.Open == nil {
		s.respondAppError(w, r, apperr.Validation("open is required"))
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	p, err := s.projects.SetRecruitment(ctx, actor, projectID, *req.Open)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// HandleAssign assigns a single programmer directly
func (s *Server) HandleAssign(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	projectID, err := urlID(r, "id")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	var req AssignRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondAppError(w, r, err)
		return
	}
	if req.ProgrammerID <= 0 {
		s.respondAppError(w, r, apperr.Validation("programmer_id is required"))
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	p, err := s.projects.Assign(ctx, actor, projectID, req.ProgrammerID)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// HandleAttachAnalysis stores a completed phase-definition artifact
func (s *Server) HandleAttachAnalysis(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	projectID, err := urlID(r, "id")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	var req AttachAnalysisRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondAppError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	a, err := s.projects.AttachAnalysis(ctx, actor, projectID, req.Content)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, a)
}

// HandleListActivity returns a page of the project's audit feed
func (s *Server) HandleListActivity(w http.ResponseWriter, r *http.Request) {
	projectID, err := urlID(r, "id")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	page, err := queryInt(r, "page")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	if _, err := s.projects.Get(ctx, projectID); err != nil {
		s.respondAppError(w, r, err)
		return
	}

	result, err := s.activity.List(ctx, projectID, page, limit, r.URL.Query().Get("action"))
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
