package api

import (
	"errors"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"

	"devmarket/internal/apperr"
	"devmarket/internal/lifecycle"
	"devmarket/internal/model"
)

// multipartOverhead is the allowance for form boundaries and headers on top of
// the file size limit.
const multipartOverhead = 1 << 20

// ConfirmPhasesRequest is the reviewed phase batch
type ConfirmPhasesRequest struct {
	Phases []model.PhaseDraft `json:"phases"`
}

// AnswerQuestionRequest selects a question by id or order
type AnswerQuestionRequest struct {
	lifecycle.QuestionRef
	Answer string `json:"answer"`
}

// ApproveRequest records the client's decision
type ApproveRequest struct {
	Approved *bool `json:"approved"`
}

// SubStepResponse returns the saved entry with its phase
type SubStepResponse struct {
	Phase   *model.Phase   `json:"phase"`
	SubStep *model.SubStep `json:"sub_step"`
}

// AttachmentResponse returns the stored attachment with its phase
type AttachmentResponse struct {
	Phase      *model.Phase      `json:"phase"`
	Attachment *model.Attachment `json:"attachment"`
}

// HandlePhaseProposal returns the drafts the client reviews before confirming
func (s *Server) HandlePhaseProposal(w http.ResponseWriter, r *http.Request) {
	projectID, err := urlID(r, "id")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	drafts, err := s.phases.Propose(ctx, projectID)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, drafts)
}

// HandleConfirmPhases creates the project's phases in one batch
func (s *Server) HandleConfirmPhases(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	projectID, err := urlID(r, "id")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	var req ConfirmPhasesRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondAppError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	phases, err := s.phases.ConfirmPhases(ctx, actor, projectID, req.Phases)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, phases)
}

// HandleListPhases returns a project's phases in order
func (s *Server) HandleListPhases(w http.ResponseWriter, r *http.Request) {
	projectID, err := urlID(r, "id")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	phases, err := s.phases.List(ctx, projectID)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, phases)
}

// HandleGetPhase returns a single phase
func (s *Server) HandleGetPhase(w http.ResponseWriter, r *http.Request) {
	phaseID, err := urlID(r, "id")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	ph, err := s.phases.Get(ctx, phaseID)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ph)
}

// HandleUpdatePhase applies an allow-listed patch
func (s *Server) HandleUpdatePhase(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	phaseID, err := urlID(r, "id")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	var patch lifecycle.PhasePatch
	if err := decodeJSON(r, &patch); err != nil {
		s.respondAppError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	ph, err := s.phases.UpdatePhase(ctx, actor, phaseID, patch)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ph)
}

// HandleAdvanceCheck reports whether the phase could be completed now
func (s *Server) HandleAdvanceCheck(w http.ResponseWriter, r *http.Request) {
	phaseID, err := urlID(r, "id")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	result, err := s.phases.AdvanceCheck(ctx, phaseID)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// HandleSaveSubStep adds or edits a checklist entry
func (s *Server) HandleSaveSubStep(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	phaseID, err := urlID(r, "id")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	var req lifecycle.SubStepInput
	if err := decodeJSON(r, &req); err != nil {
		s.respondAppError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	ph, step, err := s.phases.SaveSubStep(ctx, actor, phaseID, req)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	status := http.StatusOK
	if req.ID == "" {
		status = http.StatusCreated
	}
	respondJSON(w, status, SubStepResponse{Phase: ph, SubStep: step})
}

// HandleAnswerQuestion writes a client question's answer
func (s *Server) HandleAnswerQuestion(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	phaseID, err := urlID(r, "id")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	var req AnswerQuestionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondAppError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	ph, err := s.phases.AnswerQuestion(ctx, actor, phaseID, req.QuestionRef, req.Answer)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ph)
}

// HandleApprovePhase records client approval
func (s *Server) HandleApprovePhase(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	phaseID, err := urlID(r, "id")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	var req ApproveRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondAppError(w, r, err)
		return
	}
	if req.Approved == nil {
		s.respondAppError(w, r, apperr.Validation("approved is required"))
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	ph, err := s.phases.Approve(ctx, actor, phaseID, *req.Approved)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ph)
}

// HandleAddAttachment stores a multipart "file" and links it to the phase
func (s *Server) HandleAddAttachment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	phaseID, err := urlID(r, "id")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.config.UploadMaxBytes()+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.respondAppError(w, r, apperr.Validation("file exceeds %d MB", s.config.UploadMaxMB))
			return
		}
		s.respondAppError(w, r, apperr.Validation("a multipart file field named \"file\" is required"))
		return
	}
	defer file.Close()

	ctx, cancel := s.requestContext(r)
	defer cancel()

	ph, att, err := s.phases.AddAttachment(ctx, actor, phaseID, lifecycle.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, AttachmentResponse{Phase: ph, Attachment: att})
}

// HandleRemoveAttachment unlinks and deletes an attachment
func (s *Server) HandleRemoveAttachment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	phaseID, err := urlID(r, "id")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	ph, err := s.phases.RemoveAttachment(ctx, actor, phaseID, chi.URLParam(r, "attachmentId"))
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ph)
}

// HandleDownloadAttachment streams an attachment body to a project participant
func (s *Server) HandleDownloadAttachment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	phaseID, err := urlID(r, "id")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	att, f, err := s.phases.OpenAttachment(ctx, actor, phaseID, chi.URLParam(r, "attachmentId"))
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", att.Type)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": att.Filename}))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, r, att.Filename, att.UploadedAt, f)
}
