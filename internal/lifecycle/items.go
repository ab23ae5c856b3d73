package lifecycle

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"devmarket/internal/apperr"
	"devmarket/internal/model"
	"devmarket/internal/permission"
)

const maxAnswerLen = 10000

// SubStepInput adds a sub-step (no ID) or edits an existing one (ID set).
type SubStepInput struct {
	ID        string  `json:"id,omitempty"`
	Title     *string `json:"title,omitempty"`
	Completed *bool   `json:"completed,omitempty"`
	Notes     *string `json:"notes,omitempty"`
	Order     *int    `json:"order,omitempty"`
}

func (in SubStepInput) validate() error {
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return apperr.Validation("sub-step title cannot be empty")
	}
	if in.ID == "" && in.Title == nil {
		return apperr.Validation("sub-step title is required")
	}
	if in.Notes != nil && len(*in.Notes) > maxNotes {
		return apperr.Validation("notes must be at most %d characters", maxNotes)
	}
	return nil
}

// SaveSubStep upserts a sub-step. New entries are appended after the current
// highest order.
func (e *PhaseEngine) SaveSubStep(ctx context.Context, actor model.Actor, phaseID int64, in SubStepInput) (*model.Phase, *model.SubStep, error) {
	if err := in.validate(); err != nil {
		return nil, nil, err
	}

	var saved model.SubStep
	m, err := e.mutate(ctx, actor, phaseID,
		require(permission.Capabilities.TeamOrAdmin, "only team members can edit sub-steps"),
		func(ph *model.Phase, _ time.Time) error {
			if in.ID == "" {
				s := model.SubStep{ID: uuid.NewString(), Order: nextOrder(ph.SubSteps)}
				applySubStep(&s, in)
				ph.SubSteps = append(ph.SubSteps, s)
				saved = s
				return nil
			}
			for i := range ph.SubSteps {
				if ph.SubSteps[i].ID == in.ID {
					applySubStep(&ph.SubSteps[i], in)
					saved = ph.SubSteps[i]
					return nil
				}
			}
			return apperr.NotFound("sub-step %s not found", in.ID)
		})
	if err != nil {
		return nil, nil, err
	}

	e.record(ctx, actor, m.phase, model.ActionSubStepSaved, map[string]any{
		"sub_step_id": saved.ID, "completed": saved.Completed,
	})
	return m.phase, &saved, nil
}

func nextOrder(steps []model.SubStep) int {
	highest := 0
	for _, s := range steps {
		highest = max(highest, s.Order)
	}
	return highest + 1
}

func applySubStep(s *model.SubStep, in SubStepInput) {
	if in.Title != nil {
		s.Title = strings.TrimSpace(*in.Title)
	}
	if in.Completed != nil {
		s.Completed = *in.Completed
	}
	if in.Notes != nil {
		s.Notes = *in.Notes
	}
	if in.Order != nil && in.ID != "" {
		s.Order = *in.Order
	}
}

// QuestionRef selects a question by id, or by order when the id is empty.
type QuestionRef struct {
	ID    string `json:"id,omitempty"`
	Order int    `json:"order,omitempty"`
}

func findQuestion(qs []model.Question, id string, order int) int {
	if id != "" {
		for i, q := range qs {
			if q.ID == id {
				return i
			}
		}
		return -1
	}
	if order == 0 {
		return -1
	}
	for i, q := range qs {
		if q.Order == order {
			return i
		}
	}
	return -1
}

// AnswerQuestion writes the answer of one client question.
func (e *PhaseEngine) AnswerQuestion(ctx context.Context, actor model.Actor, phaseID int64, ref QuestionRef, answer string) (*model.Phase, error) {
	if ref.ID == "" && ref.Order == 0 {
		return nil, apperr.Validation("question id or order is required")
	}
	answer = strings.TrimSpace(answer)
	if len(answer) > maxAnswerLen {
		return nil, apperr.Validation("answer must be at most %d characters", maxAnswerLen)
	}

	var question string
	m, err := e.mutate(ctx, actor, phaseID,
		require(permission.Capabilities.Participant, "only project participants can answer questions"),
		func(ph *model.Phase, _ time.Time) error {
			i := findQuestion(ph.ClientQuestions, ref.ID, ref.Order)
			if i < 0 {
				return apperr.NotFound("question %s not found", questionRef(ref.ID, ref.Order))
			}
			ph.ClientQuestions[i].Answer = answer
			question = ph.ClientQuestions[i].Question
			return nil
		})
	if err != nil {
		return nil, err
	}

	e.record(ctx, actor, m.phase, model.ActionQuestionAnswered, map[string]any{"question": question})
	return m.phase, nil
}
