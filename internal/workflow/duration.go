package workflow

import (
	"math"
	"time"

	"devmarket/internal/model"
)

// ActualDurationDays returns the whole days between startedAt and completedAt
// (or now, if the phase is still open), rounded up. It returns nil when the
// phase never started.
func ActualDurationDays(startedAt, completedAt *time.Time, now time.Time) *int {
	if startedAt == nil {
		return nil
	}
	end := now
	if completedAt != nil {
		end = *completedAt
	}
	days := int(math.Ceil(end.Sub(*startedAt).Hours() / 24))
	days = max(days, 1)
	return &days
}

// Result is the advance diagnostic for one phase.
type Result struct {
	CanProceed bool     `json:"can_proceed"`
	Reasons    []string `json:"reasons"`
}

// CanAdvance lists what still stands between phase and the next one. It is
// informational and blocks nothing.
func CanAdvance(phase *model.Phase) Result {
	reasons := []string{}
	if phase.Status != model.PhaseCompleted {
		reasons = append(reasons, "phase is not completed")
	}
	if phase.RequiresClientApproval && !phase.ClientApproved {
		reasons = append(reasons, "client approval is required")
	}
	for _, q := range phase.ClientQuestions {
		if q.Required && !q.Answered() {
			reasons = append(reasons, "required question unanswered: "+q.Question)
		}
	}
	for _, s := range phase.SubSteps {
		if !s.Completed {
			reasons = append(reasons, "sub-step not completed: "+s.Title)
		}
	}
	return Result{CanProceed: len(reasons) == 0, Reasons: reasons}
}
