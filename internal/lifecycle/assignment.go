package lifecycle

import (
	"context"
	"fmt"
	"time"

	"devmarket/internal/apperr"
	"devmarket/internal/model"
	"devmarket/internal/permission"
)

// The single-assignee path: a Ready project with nobody on it can be handed
// straight to one programmer, skipping recruitment. The programmer becomes the
// primary assignee and the only member of the team set.

func requireUnstaffed(p *model.Project) error {
	if p.HasProgrammers() {
		return apperr.InvalidTransition("project already has programmers assigned")
	}
	return nil
}

func assignPrimary(p *model.Project, programmerID int64, now time.Time) {
	p.AssignedProgrammerID = &programmerID
	p.TeamIDs = []int64{programmerID}
	p.ReadyConfirmedBy = []int64{}
	p.TeamClosed = true
	p.Status = model.StatusDevelopment
	if p.StartDate == nil {
		p.StartDate = &now
	}
}

// Assign hands the project to programmerID (Ready to Development). The target
// account is only looked up once the caller passes the project gates.
func (e *ProjectEngine) Assign(ctx context.Context, actor model.Actor, id, programmerID int64) (*model.Project, error) {
	t := transition{
		action:    model.ActionProgrammerAssigned,
		allowed:   ownerOrAdmin,
		forbidden: "only the project owner can assign a programmer",
		from:      []model.ProjectStatus{model.StatusReady},
		apply: func(p *model.Project, _ model.Actor, now time.Time) error {
			if err := requireUnstaffed(p); err != nil {
				return err
			}
			assignPrimary(p, programmerID, now)
			return nil
		},
		after: func(ctx context.Context, p *model.Project, a model.Actor) {
			e.notifyAll(ctx, a.ID, []int64{programmerID}, model.NotifyAssigned,
				"Project assigned", fmt.Sprintf("You have been assigned to %q", p.Title), p.ID)
		},
	}

	current, err := e.store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := t.check(current, actor); err != nil {
		return nil, err
	}
	if err := e.requireProgrammer(ctx, programmerID); err != nil {
		return nil, err
	}
	return e.run(ctx, actor, id, t)
}

func (e *ProjectEngine) requireProgrammer(ctx context.Context, programmerID int64) error {
	if programmerID <= 0 {
		return apperr.Validation("programmer_id is required")
	}
	u, err := e.store.GetUser(ctx, programmerID)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return apperr.Validation("programmer %d does not exist", programmerID)
	}
	if err != nil {
		return err
	}
	if u.Role != model.RoleProgrammer || !u.IsActive {
		return apperr.Validation("user %d is not an active programmer", programmerID)
	}
	return nil
}

// Accept lets the calling programmer take an unstaffed Ready project.
func (e *ProjectEngine) Accept(ctx context.Context, actor model.Actor, id int64) (*model.Project, error) {
	return e.run(ctx, actor, id, transition{
		action:    model.ActionAssignmentAccepted,
		allowed:   programmer,
		forbidden: "only programmers can accept a project",
		from:      []model.ProjectStatus{model.StatusReady},
		apply: func(p *model.Project, a model.Actor, now time.Time) error {
			if err := requireUnstaffed(p); err != nil {
				return err
			}
			assignPrimary(p, a.ID, now)
			return nil
		},
		after: func(ctx context.Context, p *model.Project, a model.Actor) {
			e.notifyAll(ctx, a.ID, []int64{p.ClientID}, model.NotifyAssigned,
				"Project accepted", fmt.Sprintf("A programmer accepted %q", p.Title), p.ID)
		},
	})
}

// Reject lets the primary assignee hand the project back (Development to Ready).
func (e *ProjectEngine) Reject(ctx context.Context, actor model.Actor, id int64) (*model.Project, error) {
	return e.run(ctx, actor, id, transition{
		action: model.ActionAssignmentRejected,
		allowed: func(c permission.Capabilities, _ model.Actor) bool {
			return c.IsAssignedProgrammer
		},
		forbidden: "only the assigned programmer can reject the project",
		from:      []model.ProjectStatus{model.StatusDevelopment},
		apply: func(p *model.Project, a model.Actor, _ time.Time) error {
			p.RemoveMember(a.ID)
			p.Status = model.StatusReady
			return nil
		},
		after: func(ctx context.Context, p *model.Project, a model.Actor) {
			e.notifyAll(ctx, a.ID, []int64{p.ClientID}, model.NotifyAssignmentChange,
				"Assignment rejected", fmt.Sprintf("The assigned programmer released %q", p.Title), p.ID)
		},
	})
}

// Unassign removes the primary assignee (Development to Ready).
func (e *ProjectEngine) Unassign(ctx context.Context, actor model.Actor, id int64) (*model.Project, error) {
	var removed int64
	return e.run(ctx, actor, id, transition{
		action:    model.ActionProgrammerUnassign,
		allowed:   ownerOrAdmin,
		forbidden: "only the project owner can unassign the programmer",
		from:      []model.ProjectStatus{model.StatusDevelopment},
		apply: func(p *model.Project, _ model.Actor, _ time.Time) error {
			if p.AssignedProgrammerID == nil {
				return apperr.InvalidTransition("project has no assigned programmer")
			}
			removed = *p.AssignedProgrammerID
			p.RemoveMember(removed)
			p.Status = model.StatusReady
			return nil
		},
		after: func(ctx context.Context, p *model.Project, a model.Actor) {
			e.notifyAll(ctx, a.ID, []int64{removed}, model.NotifyAssignmentChange,
				"Unassigned", fmt.Sprintf("You were unassigned from %q", p.Title), p.ID)
		},
	})
}
