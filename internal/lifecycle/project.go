package lifecycle

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"devmarket/internal/activity"
	"devmarket/internal/apperr"
	"devmarket/internal/db"
	"devmarket/internal/model"
	"devmarket/internal/permission"
	"devmarket/internal/telemetry"
)

const (
	engineProject = "project"

	maxTitleLen       = 200
	maxDescriptionLen = 10000
	maxAnalysisBytes  = 1 << 20
)

// ProjectEngine drives the project status machine and both team-entry paths.
type ProjectEngine struct {
	store ProjectStore
	Deps
}

// NewProjectEngine creates a ProjectEngine.
func NewProjectEngine(store ProjectStore, deps Deps) *ProjectEngine {
	deps.defaults()
	return &ProjectEngine{store: store, Deps: deps}
}

// CreateProjectInput is the client-supplied part of a new project.
type CreateProjectInput struct {
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	ProjectType string     `json:"project_type,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
}

func (in *CreateProjectInput) validate() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return apperr.Validation("title is required")
	}
	if len(in.Title) > maxTitleLen {
		return apperr.Validation("title must be at most %d characters", maxTitleLen)
	}
	if in.Description != nil && len(*in.Description) > maxDescriptionLen {
		return apperr.Validation("description must be at most %d characters", maxDescriptionLen)
	}
	return nil
}

// Create posts a new project owned by the calling client, in Holding.
func (e *ProjectEngine) Create(ctx context.Context, actor model.Actor, in CreateProjectInput) (*model.Project, error) {
	if !actor.Role.IsClient() {
		return nil, apperr.Forbidden("only clients can create projects")
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	p := &model.Project{
		Title:            in.Title,
		Description:      in.Description,
		ProjectType:      strings.TrimSpace(in.ProjectType),
		ClientID:         actor.ID,
		Status:           model.StatusHolding,
		TeamClosed:       true,
		TeamIDs:          []int64{},
		ReadyConfirmedBy: []int64{},
		DueDate:          in.DueDate,
	}
	if err := e.store.CreateProject(ctx, p); err != nil {
		return nil, err
	}

	e.committed(ctx, engineProject, activity.Entry{
		ProjectID:  p.ID,
		ActorID:    actor.ID,
		Action:     model.ActionProjectCreated,
		TargetType: model.TargetProject,
		Metadata:   map[string]any{"to": p.Status, "title": p.Title},
	})
	return p, nil
}

// Get loads a project. Any resolved caller may read.
func (e *ProjectEngine) Get(ctx context.Context, id int64) (*model.Project, error) {
	return e.store.GetProject(ctx, id)
}

// transition describes one guarded status change.
type transition struct {
	action model.Action
	// allowed is the permission gate.
	allowed   func(c permission.Capabilities, actor model.Actor) bool
	forbidden string
	// from lists the accepted source statuses; empty means any non-terminal.
	from []model.ProjectStatus
	// apply mutates the project; it may return db.ErrSkipWrite for a no-op.
	apply func(p *model.Project, actor model.Actor, now time.Time) error
	// after runs once the change is committed.
	after func(ctx context.Context, p *model.Project, actor model.Actor)
}

// run applies t under compare-and-set. Checks run in this order: terminal
// status, permission, source status, transition-specific guards.
func (e *ProjectEngine) run(ctx context.Context, actor model.Actor, id int64, t transition) (_ *model.Project, err error) {
	ctx, span := telemetry.Tracer().Start(ctx, string(t.action), trace.WithAttributes(
		attribute.Int64("project.id", id),
		attribute.Int64("actor.id", actor.ID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(apperr.KindOf(err)))
		}
		span.End()
	}()

	var (
		from    model.ProjectStatus
		changed bool
	)
	p, err := e.store.UpdateProject(ctx, id, func(p *model.Project) error {
		changed = false
		from = p.Status
		if err := t.check(p, actor); err != nil {
			return err
		}
		if err := t.apply(p, actor, e.Now()); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return p, nil
	}

	e.committed(ctx, engineProject, activity.Entry{
		ProjectID:  p.ID,
		ActorID:    actor.ID,
		Action:     t.action,
		TargetType: model.TargetProject,
		Metadata:   map[string]any{"from": from, "to": p.Status},
	})
	if t.after != nil {
		t.after(ctx, p, actor)
	}
	return p, nil
}

// check applies the gates in order: terminal status, permission, source status.
func (t transition) check(p *model.Project, actor model.Actor) error {
	if p.Status.Terminal() {
		return apperr.InvalidTransition("project is %s; no further transitions are allowed", p.Status)
	}
	if !t.allowed(permission.Resolve(actor, p), actor) {
		return apperr.Forbidden("%s", t.forbidden)
	}
	if len(t.from) > 0 && !slices.Contains(t.from, p.Status) {
		return apperr.InvalidTransition("cannot %s a project in %s", verb(t.action), p.Status)
	}
	return nil
}

func verb(a model.Action) string {
	s := strings.TrimPrefix(string(a), "project.")
	return strings.ReplaceAll(s, "_", " ")
}

func ownerOrAdmin(c permission.Capabilities, _ model.Actor) bool { return c.OwnerOrAdmin() }
func participant(c permission.Capabilities, _ model.Actor) bool  { return c.Participant() }
func teamMember(c permission.Capabilities, _ model.Actor) bool   { return c.IsTeamMember }
func clientOwner(c permission.Capabilities, _ model.Actor) bool  { return c.IsClientOwner }
func programmer(_ permission.Capabilities, a model.Actor) bool   { return a.Role == model.RoleProgrammer }

// toHolding locks recruitment and empties the team.
func toHolding(p *model.Project) {
	p.Status = model.StatusHolding
	p.TeamClosed = true
	p.ClearTeam()
}

// SetRecruitment opens (Holding to Open) or closes (Open to Holding) recruitment.
func (e *ProjectEngine) SetRecruitment(ctx context.Context, actor model.Actor, id int64, open bool) (*model.Project, error) {
	if open {
		return e.run(ctx, actor, id, transition{
			action:    model.ActionRecruitmentOpened,
			allowed:   ownerOrAdmin,
			forbidden: "only the project owner can open recruitment",
			from:      []model.ProjectStatus{model.StatusHolding},
			apply: func(p *model.Project, _ model.Actor, _ time.Time) error {
				p.Status = model.StatusOpen
				p.TeamClosed = false
				return nil
			},
		})
	}
	return e.run(ctx, actor, id, transition{
		action:    model.ActionRecruitmentClosed,
		allowed:   ownerOrAdmin,
		forbidden: "only the project owner can close recruitment",
		from:      []model.ProjectStatus{model.StatusOpen},
		apply: func(p *model.Project, _ model.Actor, _ time.Time) error {
			toHolding(p)
			return nil
		},
	})
}

func requireRecruiting(p *model.Project) error {
	if p.TeamClosed {
		return apperr.InvalidTransition("recruitment is closed")
	}
	return nil
}

// Join adds the calling programmer to an Open project's team.
func (e *ProjectEngine) Join(ctx context.Context, actor model.Actor, id int64) (*model.Project, error) {
	return e.run(ctx, actor, id, transition{
		action:    model.ActionMemberJoined,
		allowed:   programmer,
		forbidden: "only programmers can join a project",
		from:      []model.ProjectStatus{model.StatusOpen},
		apply: func(p *model.Project, a model.Actor, _ time.Time) error {
			if err := requireRecruiting(p); err != nil {
				return err
			}
			if p.IsTeamMember(a.ID) {
				return db.ErrSkipWrite
			}
			p.AddMember(a.ID)
			return nil
		},
	})
}

// Leave removes the calling team member while recruitment is still open.
func (e *ProjectEngine) Leave(ctx context.Context, actor model.Actor, id int64) (*model.Project, error) {
	return e.run(ctx, actor, id, transition{
		action:    model.ActionMemberLeft,
		allowed:   teamMember,
		forbidden: "you are not a member of this project's team",
		from:      []model.ProjectStatus{model.StatusOpen},
		apply: func(p *model.Project, a model.Actor, _ time.Time) error {
			if err := requireRecruiting(p); err != nil {
				return err
			}
			p.RemoveMember(a.ID)
			return nil
		},
	})
}

// ConfirmReady records the calling team member's readiness. Confirming twice is a no-op.
func (e *ProjectEngine) ConfirmReady(ctx context.Context, actor model.Actor, id int64) (*model.Project, error) {
	return e.run(ctx, actor, id, transition{
		action:    model.ActionReadyConfirmed,
		allowed:   teamMember,
		forbidden: "only team members can confirm readiness",
		from:      []model.ProjectStatus{model.StatusOpen},
		apply: func(p *model.Project, a model.Actor, _ time.Time) error {
			if err := requireRecruiting(p); err != nil {
				return err
			}
			if !p.ConfirmReady(a.ID) {
				return db.ErrSkipWrite
			}
			return nil
		},
	})
}

// MarkReady locks the team once every member has confirmed (Open to Ready).
func (e *ProjectEngine) MarkReady(ctx context.Context, actor model.Actor, id int64) (*model.Project, error) {
	return e.run(ctx, actor, id, transition{
		action:    model.ActionMarkedReady,
		allowed:   ownerOrAdmin,
		forbidden: "only the project owner can mark it ready",
		from:      []model.ProjectStatus{model.StatusOpen},
		apply: func(p *model.Project, _ model.Actor, _ time.Time) error {
			if !p.HasProgrammers() {
				return apperr.InvalidTransition("no programmers have joined the project")
			}
			if !p.AllConfirmed() {
				return apperr.InvalidTransition("not every team member has confirmed readiness")
			}
			p.TeamClosed = true
			p.Status = model.StatusReady
			return nil
		},
		after: func(ctx context.Context, p *model.Project, a model.Actor) {
			e.notifyAll(ctx, a.ID, p.TeamIDs, model.NotifyProjectReady,
				"Project ready", fmt.Sprintf("%q is ready for development", p.Title), p.ID)
		},
	})
}

// Start begins development (Ready to Development).
func (e *ProjectEngine) Start(ctx context.Context, actor model.Actor, id int64) (*model.Project, error) {
	return e.run(ctx, actor, id, transition{
		action:    model.ActionDevelopmentStarted,
		allowed:   teamMember,
		forbidden: "only team members can start development",
		from:      []model.ProjectStatus{model.StatusReady},
		apply: func(p *model.Project, _ model.Actor, now time.Time) error {
			p.Status = model.StatusDevelopment
			if p.StartDate == nil {
				p.StartDate = &now
			}
			return nil
		},
		after: func(ctx context.Context, p *model.Project, a model.Actor) {
			e.notifyAll(ctx, a.ID, []int64{p.ClientID}, model.NotifyProjectStarted,
				"Development started", fmt.Sprintf("Work on %q has started", p.Title), p.ID)
		},
	})
}

// Stop pauses development (Development to Ready).
func (e *ProjectEngine) Stop(ctx context.Context, actor model.Actor, id int64) (*model.Project, error) {
	return e.run(ctx, actor, id, transition{
		action:    model.ActionDevelopmentStopped,
		allowed:   participant,
		forbidden: "only project participants can stop development",
		from:      []model.ProjectStatus{model.StatusDevelopment},
		apply: func(p *model.Project, _ model.Actor, _ time.Time) error {
			p.Status = model.StatusReady
			return nil
		},
	})
}

// Complete finishes the project (Development to Completed).
func (e *ProjectEngine) Complete(ctx context.Context, actor model.Actor, id int64) (*model.Project, error) {
	return e.run(ctx, actor, id, transition{
		action:    model.ActionProjectCompleted,
		allowed:   participant,
		forbidden: "only project participants can complete it",
		from:      []model.ProjectStatus{model.StatusDevelopment},
		apply: func(p *model.Project, _ model.Actor, now time.Time) error {
			p.Status = model.StatusCompleted
			p.CompletedDate = &now
			return nil
		},
		after: func(ctx context.Context, p *model.Project, a model.Actor) {
			e.notifyAll(ctx, a.ID, append([]int64{p.ClientID}, p.TeamIDs...), model.NotifyProjectCompleted,
				"Project completed", fmt.Sprintf("%q has been completed", p.Title), p.ID)
		},
	})
}

// Cancel ends the project from any non-terminal status.
func (e *ProjectEngine) Cancel(ctx context.Context, actor model.Actor, id int64) (*model.Project, error) {
	return e.run(ctx, actor, id, transition{
		action:    model.ActionProjectCancelled,
		allowed:   ownerOrAdmin,
		forbidden: "only the project owner can cancel it",
		apply: func(p *model.Project, _ model.Actor, _ time.Time) error {
			p.Status = model.StatusCancelled
			return nil
		},
		after: func(ctx context.Context, p *model.Project, a model.Actor) {
			e.notifyAll(ctx, a.ID, p.TeamIDs, model.NotifyProjectCancelled,
				"Project cancelled", fmt.Sprintf("%q was cancelled", p.Title), p.ID)
		},
	})
}

// SetHolding sends a Ready project back to Holding and releases its team.
func (e *ProjectEngine) SetHolding(ctx context.Context, actor model.Actor, id int64) (*model.Project, error) {
	return e.run(ctx, actor, id, transition{
		action:    model.ActionSetHolding,
		allowed:   clientOwner,
		forbidden: "only the project owner can put it on hold",
		from:      []model.ProjectStatus{model.StatusReady},
		apply: func(p *model.Project, _ model.Actor, _ time.Time) error {
			toHolding(p)
			return nil
		},
	})
}

// SetReady moves a Holding project directly to Ready.
func (e *ProjectEngine) SetReady(ctx context.Context, actor model.Actor, id int64) (*model.Project, error) {
	return e.run(ctx, actor, id, transition{
		action:    model.ActionSetReady,
		allowed:   clientOwner,
		forbidden: "only the project owner can set it ready",
		from:      []model.ProjectStatus{model.StatusHolding},
		apply: func(p *model.Project, _ model.Actor, _ time.Time) error {
			p.Status = model.StatusReady
			return nil
		},
	})
}

// Delete removes the project and its phases. Its activity feed is kept.
func (e *ProjectEngine) Delete(ctx context.Context, actor model.Actor, id int64) error {
	p, err := e.store.GetProject(ctx, id)
	if err != nil {
		return err
	}
	if !permission.Resolve(actor, p).OwnerOrAdmin() {
		return apperr.Forbidden("only the project owner can delete it")
	}
	if err := e.store.DeleteProject(ctx, id); err != nil {
		return err
	}

	e.committed(ctx, engineProject, activity.Entry{
		ProjectID:  id,
		ActorID:    actor.ID,
		Action:     model.ActionProjectDeleted,
		TargetType: model.TargetProject,
		Metadata:   map[string]any{"from": p.Status, "title": p.Title},
	})
	return nil
}

// AttachAnalysis stores a phase-definition artifact for later proposals.
func (e *ProjectEngine) AttachAnalysis(ctx context.Context, actor model.Actor, id int64, content string) (*model.Analysis, error) {
	if strings.TrimSpace(content) == "" {
		return nil, apperr.Validation("content is required")
	}
	if len(content) > maxAnalysisBytes {
		return nil, apperr.Validation("content must be at most %d bytes", maxAnalysisBytes)
	}

	p, err := e.store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if !permission.Resolve(actor, p).OwnerOrAdmin() {
		return nil, apperr.Forbidden("only the project owner can attach an analysis")
	}

	a := &model.Analysis{ProjectID: id, Status: model.AnalysisCompleted, Content: content}
	if err := e.store.CreateAnalysis(ctx, a); err != nil {
		return nil, err
	}

	e.committed(ctx, engineProject, activity.Entry{
		ProjectID:  id,
		ActorID:    actor.ID,
		Action:     model.ActionAnalysisAttached,
		TargetType: model.TargetProject,
		Metadata:   map[string]any{"analysis_id": a.ID},
	})
	return a, nil
}
