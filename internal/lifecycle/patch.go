package lifecycle

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"devmarket/internal/apperr"
	"devmarket/internal/model"
	"devmarket/internal/permission"
)

// PhasePatch is the allow-listed set of directly editable phase fields. Nil
// means "leave unchanged".
type PhasePatch struct {
	Status                *model.PhaseStatus `json:"status,omitempty"`
	Title                 *string            `json:"title,omitempty"`
	Description           *string            `json:"description,omitempty"`
	Notes                 *string            `json:"notes,omitempty"`
	Deliverables          *[]string          `json:"deliverables,omitempty"`
	EstimatedDurationDays *int               `json:"estimated_duration_days,omitempty"`
	DueDate               *time.Time         `json:"due_date,omitempty"`
	ClientQuestions       *[]model.Question  `json:"client_questions,omitempty"`
	ClientApproved        *bool              `json:"client_approved,omitempty"`
}

// fields lists the set field names in a stable order.
func (pp PhasePatch) fields() []string {
	var out []string
	add := func(set bool, name string) {
		if set {
			out = append(out, name)
		}
	}
	add(pp.Status != nil, "status")
	add(pp.Title != nil, "title")
	add(pp.Description != nil, "description")
	add(pp.Notes != nil, "notes")
	add(pp.Deliverables != nil, "deliverables")
	add(pp.EstimatedDurationDays != nil, "estimated_duration_days")
	add(pp.DueDate != nil, "due_date")
	add(pp.ClientQuestions != nil, "client_questions")
	add(pp.ClientApproved != nil, "client_approved")
	return out
}

func (pp PhasePatch) validate() error {
	if len(pp.fields()) == 0 {
		return apperr.Validation("no fields to update")
	}
	if pp.Status != nil && !pp.Status.Valid() {
		return apperr.Validation("invalid phase status %q", *pp.Status)
	}
	if pp.Title != nil {
		t := strings.TrimSpace(*pp.Title)
		if t == "" {
			return apperr.Validation("title cannot be empty")
		}
		if len(t) > maxTitleLen {
			return apperr.Validation("title must be at most %d characters", maxTitleLen)
		}
	}
	if pp.Description != nil && len(*pp.Description) > maxDescriptionLen {
		return apperr.Validation("description must be at most %d characters", maxDescriptionLen)
	}
	if pp.Notes != nil && len(*pp.Notes) > maxNotes {
		return apperr.Validation("notes must be at most %d characters", maxNotes)
	}
	if pp.EstimatedDurationDays != nil && *pp.EstimatedDurationDays < 0 {
		return apperr.Validation("estimated_duration_days cannot be negative")
	}
	return nil
}

// authorize checks every set field against the caller's capabilities.
func (pp PhasePatch) authorize(c permission.Capabilities, _ *model.Phase) error {
	teamFields := pp.Status != nil || pp.Title != nil || pp.Description != nil || pp.Notes != nil ||
		pp.Deliverables != nil || pp.EstimatedDurationDays != nil || pp.DueDate != nil
	if teamFields && !c.TeamOrAdmin() {
		return apperr.Forbidden("only team members can edit phase details")
	}
	if pp.ClientQuestions != nil && !c.Participant() {
		return apperr.Forbidden("only project participants can edit client questions")
	}
	if pp.ClientApproved != nil && !c.OwnerOrAdmin() {
		return apperr.Forbidden("only the client can set approval")
	}
	return nil
}

// mergeAnswers copies answers from incoming onto existing. Question text and
// order are fixed at creation and may not change.
func mergeAnswers(existing []model.Question, incoming []model.Question) error {
	for _, in := range incoming {
		i := findQuestion(existing, in.ID, in.Order)
		if i < 0 {
			return apperr.Validation("unknown question %s", questionRef(in.ID, in.Order))
		}
		q := &existing[i]
		if (in.Question != "" && in.Question != q.Question) || (in.Order != 0 && in.Order != q.Order) {
			return apperr.Validation("question %q can only have its answer changed", q.Question)
		}
		q.Answer = strings.TrimSpace(in.Answer)
	}
	return nil
}

func questionRef(id string, order int) string {
	if id != "" {
		return strconv.Quote(id)
	}
	return fmt.Sprintf("order %d", order)
}

// UpdatePhase applies an allow-listed patch.
func (e *PhaseEngine) UpdatePhase(ctx context.Context, actor model.Actor, phaseID int64, patch PhasePatch) (*model.Phase, error) {
	if err := patch.validate(); err != nil {
		return nil, err
	}

	var from model.PhaseStatus
	m, err := e.mutate(ctx, actor, phaseID, patch.authorize, func(ph *model.Phase, now time.Time) error {
		from = ph.Status
		if patch.Status != nil {
			if err := setStatus(ph, *patch.Status, now); err != nil {
				return err
			}
		}
		if patch.Title != nil {
			ph.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Description != nil {
			ph.Description = patch.Description
		}
		if patch.Notes != nil {
			ph.Notes = patch.Notes
		}
		if patch.Deliverables != nil {
			ph.Deliverables = sanitizeList(*patch.Deliverables)
		}
		if patch.EstimatedDurationDays != nil {
			ph.EstimatedDurationDays = patch.EstimatedDurationDays
		}
		if patch.DueDate != nil {
			ph.DueDate = patch.DueDate
		}
		if patch.ClientQuestions != nil {
			if err := mergeAnswers(ph.ClientQuestions, *patch.ClientQuestions); err != nil {
				return err
			}
		}
		if patch.ClientApproved != nil {
			ph.ClientApproved = *patch.ClientApproved
			ph.ClientApprovedAt = nil
			if ph.ClientApproved {
				ph.ClientApprovedAt = &now
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ph := m.phase
	meta := map[string]any{"fields": patch.fields()}
	action := model.ActionPhaseUpdated
	if ph.Status != from {
		action = statusAction(from, ph.Status)
		meta["from"] = from
		meta["to"] = ph.Status
	}
	e.record(ctx, actor, ph, action, meta)
	if patch.ClientApproved != nil && *patch.ClientApproved {
		e.record(ctx, actor, ph, model.ActionPhaseApproved, map[string]any{"approved": true})
	}

	if action == model.ActionPhaseCompleted && m.caps.IsTeamMember {
		e.notifyAll(ctx, actor.ID, []int64{m.project.ClientID}, model.NotifyPhaseCompleted,
			"Phase completed", fmt.Sprintf("%q has been completed", ph.Title), ph.ProjectID)
	}
	return ph, nil
}
