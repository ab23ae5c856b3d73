package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"devmarket/internal/activity"
	"devmarket/internal/apperr"
	"devmarket/internal/model"
	"devmarket/internal/permission"
	"devmarket/internal/telemetry"
	"devmarket/internal/workflow"
)

const (
	enginePhase = "phase"

	maxPhases = 20
	maxNotes  = 10000
)

// PhaseEngine drives per-phase status, approval, checklist and attachments.
type PhaseEngine struct {
	store  PhaseStore
	source PhaseSource
	files  FileStore
	Deps
}

// NewPhaseEngine creates a PhaseEngine.
func NewPhaseEngine(store PhaseStore, source PhaseSource, files FileStore, deps Deps) *PhaseEngine {
	deps.defaults()
	return &PhaseEngine{store: store, source: source, files: files, Deps: deps}
}

// Propose returns the draft phase plan for a project. It never persists.
func (e *PhaseEngine) Propose(ctx context.Context, projectID int64) ([]model.PhaseDraft, error) {
	p, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return e.source.Propose(ctx, p), nil
}

// List returns a project's phases in order.
func (e *PhaseEngine) List(ctx context.Context, projectID int64) ([]model.Phase, error) {
	if _, err := e.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	return e.store.ListPhases(ctx, projectID)
}

// Get loads one phase.
func (e *PhaseEngine) Get(ctx context.Context, phaseID int64) (*model.Phase, error) {
	return e.store.GetPhase(ctx, phaseID)
}

// AdvanceCheck reports what still blocks moving past a phase. It blocks nothing.
func (e *PhaseEngine) AdvanceCheck(ctx context.Context, phaseID int64) (workflow.Result, error) {
	ph, err := e.store.GetPhase(ctx, phaseID)
	if err != nil {
		return workflow.Result{}, err
	}
	return workflow.CanAdvance(ph), nil
}

func validateDrafts(drafts []model.PhaseDraft) error {
	if len(drafts) == 0 {
		return apperr.Validation("at least one phase is required")
	}
	if len(drafts) > maxPhases {
		return apperr.Validation("at most %d phases are allowed", maxPhases)
	}
	for i, d := range drafts {
		title := strings.TrimSpace(d.Title)
		if title == "" {
			return apperr.Validation("phase %d: title is required", i+1)
		}
		if len(title) > maxTitleLen {
			return apperr.Validation("phase %d: title must be at most %d characters", i+1, maxTitleLen)
		}
		if d.EstimatedWeeks != nil && *d.EstimatedWeeks < 0 {
			return apperr.Validation("phase %d: estimated weeks cannot be negative", i+1)
		}
	}
	return nil
}

// ConfirmPhases creates the project's phase plan from caller-edited drafts.
// The list order is the phase order. A project gets exactly one plan.
func (e *PhaseEngine) ConfirmPhases(ctx context.Context, actor model.Actor, projectID int64, drafts []model.PhaseDraft) ([]model.Phase, error) {
	if err := validateDrafts(drafts); err != nil {
		return nil, err
	}

	p, err := e.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.Status.Terminal() {
		return nil, apperr.InvalidTransition("project is %s", p.Status)
	}
	if !permission.Resolve(actor, p).TeamOrAdmin() {
		return nil, apperr.Forbidden("only team members can confirm phases")
	}
	if p.Status != model.StatusReady && p.Status != model.StatusDevelopment {
		return nil, apperr.InvalidTransition("phases can only be confirmed once the team is ready, project is %s", p.Status)
	}

	titles := make([]string, len(drafts))
	for i, d := range drafts {
		titles[i] = strings.TrimSpace(d.Title)
	}
	questions := e.source.Questions(ctx, projectID, titles)

	phases := make([]model.Phase, 0, len(drafts))
	for i, d := range drafts {
		phases = append(phases, phaseFromDraft(projectID, i+1, titles[i], d, questions[i]))
	}

	created, err := e.store.CreatePhases(ctx, projectID, phases)
	if err != nil {
		return nil, err
	}

	e.committed(ctx, enginePhase, activity.Entry{
		ProjectID:  projectID,
		ActorID:    actor.ID,
		Action:     model.ActionPhasesConfirmed,
		TargetType: model.TargetProject,
		Metadata:   map[string]any{"count": len(created)},
	})
	return created, nil
}

func phaseFromDraft(projectID int64, order int, title string, d model.PhaseDraft, questions []model.Question) model.Phase {
	deliverables := sanitizeList(d.Deliverables)

	for i := range questions {
		questions[i].ID = uuid.NewString()
		questions[i].Answer = ""
	}

	subSteps := make([]model.SubStep, 0, len(deliverables))
	for i, item := range deliverables {
		subSteps = append(subSteps, model.SubStep{ID: uuid.NewString(), Title: item, Order: i + 1})
	}

	ph := model.Phase{
		ProjectID:              projectID,
		Title:                  title,
		Description:            d.Description,
		Order:                  order,
		Status:                 model.PhaseNotStarted,
		Deliverables:           deliverables,
		RequiresClientApproval: workflow.InferApprovalRequirement(title),
		ClientQuestions:        questions,
		SubSteps:               subSteps,
		Attachments:            []model.Attachment{},
	}
	if d.EstimatedWeeks != nil {
		ph.EstimatedDurationDays = lo.ToPtr(*d.EstimatedWeeks * 7)
	}
	return ph
}

func sanitizeList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// gate decides whether the caller may perform a phase mutation.
type gate func(c permission.Capabilities, ph *model.Phase) error

func require(check func(permission.Capabilities) bool, msg string) gate {
	return func(c permission.Capabilities, _ *model.Phase) error {
		if !check(c) {
			return apperr.Forbidden("%s", msg)
		}
		return nil
	}
}

// mutation is the result of a committed phase change.
type mutation struct {
	phase   *model.Phase
	project *model.Project
	caps    permission.Capabilities
}

// authorize loads the phase and its project and checks g. Phases of a
// finished project are frozen.
func (e *PhaseEngine) authorize(ctx context.Context, actor model.Actor, phaseID int64, g gate) (*model.Project, permission.Capabilities, error) {
	current, err := e.store.GetPhase(ctx, phaseID)
	if err != nil {
		return nil, permission.Capabilities{}, err
	}
	p, err := e.store.GetProject(ctx, current.ProjectID)
	if err != nil {
		return nil, permission.Capabilities{}, err
	}
	if p.Status.Terminal() {
		return nil, permission.Capabilities{}, apperr.InvalidTransition("project is %s; its phases can no longer change", p.Status)
	}
	caps := permission.Resolve(actor, p)
	if err := g(caps, current); err != nil {
		return nil, permission.Capabilities{}, err
	}
	return p, caps, nil
}

// mutate authorizes the caller and applies fn to the phase under compare-and-set.
func (e *PhaseEngine) mutate(ctx context.Context, actor model.Actor, phaseID int64, g gate, fn func(ph *model.Phase, now time.Time) error) (_ *mutation, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, "phase.mutate", trace.WithAttributes(
		attribute.Int64("phase.id", phaseID),
		attribute.Int64("actor.id", actor.ID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(apperr.KindOf(err)))
		}
		span.End()
	}()

	p, caps, err := e.authorize(ctx, actor, phaseID, g)
	if err != nil {
		return nil, err
	}
	ph, err := e.store.UpdatePhase(ctx, phaseID, func(ph *model.Phase) error {
		return fn(ph, e.Now())
	})
	if err != nil {
		return nil, err
	}
	return &mutation{phase: ph, project: p, caps: caps}, nil
}

// setStatus moves ph to status, maintaining the start/completion stamps. The
// only backward move allowed is out of completed.
func setStatus(ph *model.Phase, status model.PhaseStatus, now time.Time) error {
	if !status.Valid() {
		return apperr.Validation("invalid phase status %q", status)
	}
	if status == ph.Status {
		return nil
	}
	if ph.Status == model.PhaseInProgress && status == model.PhaseNotStarted {
		return apperr.InvalidTransition("a phase in progress cannot return to not_started")
	}

	if ph.Status == model.PhaseCompleted {
		ph.CompletedAt = nil
		ph.ActualDurationDays = nil
	}
	switch status {
	case model.PhaseNotStarted:
		ph.StartedAt = nil
	case model.PhaseInProgress:
		if ph.StartedAt == nil {
			ph.StartedAt = &now
		}
	case model.PhaseCompleted:
		ph.CompletedAt = &now
		ph.ActualDurationDays = workflow.ActualDurationDays(ph.StartedAt, ph.CompletedAt, now)
	}
	ph.Status = status
	return nil
}

// statusAction names the activity for a status change.
func statusAction(from, to model.PhaseStatus) model.Action {
	switch {
	case from == model.PhaseNotStarted && to == model.PhaseInProgress:
		return model.ActionPhaseStarted
	case to == model.PhaseCompleted && from != model.PhaseCompleted:
		return model.ActionPhaseCompleted
	}
	return model.ActionPhaseUpdated
}

func (e *PhaseEngine) record(ctx context.Context, actor model.Actor, ph *model.Phase, action model.Action, meta map[string]any) {
	e.committed(ctx, enginePhase, activity.Entry{
		ProjectID:  ph.ProjectID,
		ActorID:    actor.ID,
		Action:     action,
		TargetType: model.TargetPhase,
		TargetID:   fmt.Sprint(ph.ID),
		Metadata:   meta,
	})
}

// Approve records the client's decision on an approval-gated phase. Granting
// approval to an in-progress phase whose required questions are all answered
// also completes it.
func (e *PhaseEngine) Approve(ctx context.Context, actor model.Actor, phaseID int64, approved bool) (*model.Phase, error) {
	var autoCompleted bool
	m, err := e.mutate(ctx, actor, phaseID,
		require(permission.Capabilities.OwnerOrAdmin, "only the client can approve a phase"),
		func(ph *model.Phase, now time.Time) error {
			autoCompleted = false
			if !ph.RequiresClientApproval {
				return apperr.InvalidTransition("phase %q does not require client approval", ph.Title)
			}
			if ph.Status == model.PhaseNotStarted {
				return apperr.InvalidTransition("phase %q has not started", ph.Title)
			}
			ph.ClientApproved = approved
			ph.ClientApprovedAt = nil
			if approved {
				ph.ClientApprovedAt = &now
			}
			if approved && ph.Status == model.PhaseInProgress && ph.RequiredAnswered() {
				autoCompleted = true
				return setStatus(ph, model.PhaseCompleted, now)
			}
			return nil
		})
	if err != nil {
		return nil, err
	}

	ph := m.phase
	e.record(ctx, actor, ph, model.ActionPhaseApproved, map[string]any{"approved": approved})
	if autoCompleted {
		e.record(ctx, actor, ph, model.ActionPhaseCompleted, map[string]any{
			"from": model.PhaseInProgress, "to": model.PhaseCompleted, "via": "approval",
		})
		e.notifyAll(ctx, actor.ID, m.project.TeamIDs, model.NotifyPhaseApproved,
			"Phase approved", fmt.Sprintf("%q was approved and completed", ph.Title), ph.ProjectID)
	}
	return ph, nil
}
