package model

import (
	"slices"
	"time"

	"github.com/samber/lo"
)

// ProjectStatus is the project-level lifecycle state.
type ProjectStatus string

const (
	StatusHolding     ProjectStatus = "Holding"
	StatusOpen        ProjectStatus = "Open"
	StatusReady       ProjectStatus = "Ready"
	StatusDevelopment ProjectStatus = "Development"
	StatusCompleted   ProjectStatus = "Completed"
	StatusCancelled   ProjectStatus = "Cancelled"
)

// ProjectStatuses lists every valid project status.
var ProjectStatuses = []ProjectStatus{
	StatusHolding, StatusOpen, StatusReady, StatusDevelopment, StatusCompleted, StatusCancelled,
}

// Valid reports whether s is one of the fixed project statuses.
func (s ProjectStatus) Valid() bool {
	return slices.Contains(ProjectStatuses, s)
}

// Terminal reports whether no further status transitions are permitted.
func (s ProjectStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Project is a client-owned marketplace project.
type Project struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	ProjectType string  `json:"project_type,omitempty"`
	ClientID    int64   `json:"client_id"`

	// AssignedProgrammerID is the primary assignee and is always a member of TeamIDs.
	AssignedProgrammerID *int64  `json:"assigned_programmer_id,omitempty"`
	TeamIDs              []int64 `json:"assigned_programmer_ids"`

	Status           ProjectStatus `json:"status"`
	TeamClosed       bool          `json:"team_closed"`
	ReadyConfirmedBy []int64       `json:"ready_confirmed_by"`

	StartDate         *time.Time `json:"start_date,omitempty"`
	DueDate           *time.Time `json:"due_date,omitempty"`
	CompletedDate     *time.Time `json:"completed_date,omitempty"`
	PhasesConfirmedAt *time.Time `json:"phases_confirmed_at,omitempty"`

	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Reconcile folds the primary assignee into the team set and normalises both sets.
func (p *Project) Reconcile() {
	if p.AssignedProgrammerID != nil {
		p.TeamIDs = append(p.TeamIDs, *p.AssignedProgrammerID)
	}
	p.TeamIDs = sortedSet(p.TeamIDs)
	p.ReadyConfirmedBy = sortedSet(p.ReadyConfirmedBy)
}

// IsTeamMember reports whether userID is the primary assignee or in the team set.
func (p *Project) IsTeamMember(userID int64) bool {
	if p.AssignedProgrammerID != nil && *p.AssignedProgrammerID == userID {
		return true
	}
	return slices.Contains(p.TeamIDs, userID)
}

// HasProgrammers reports whether anyone is on the team.
func (p *Project) HasProgrammers() bool {
	return p.AssignedProgrammerID != nil || len(p.TeamIDs) > 0
}

// AllConfirmed reports whether every team member has confirmed readiness.
func (p *Project) AllConfirmed() bool {
	return lo.Every(p.ReadyConfirmedBy, p.TeamIDs)
}

// AddMember adds userID to the team set. Adding twice is a no-op.
func (p *Project) AddMember(userID int64) {
	p.TeamIDs = sortedSet(append(p.TeamIDs, userID))
}

// RemoveMember drops userID from the team, the ready set and the primary slot.
func (p *Project) RemoveMember(userID int64) {
	p.TeamIDs = lo.Without(p.TeamIDs, userID)
	p.ReadyConfirmedBy = lo.Without(p.ReadyConfirmedBy, userID)
	if p.AssignedProgrammerID != nil && *p.AssignedProgrammerID == userID {
		p.AssignedProgrammerID = nil
	}
}

// ConfirmReady adds userID to the ready set and reports whether it changed.
func (p *Project) ConfirmReady(userID int64) bool {
	if slices.Contains(p.ReadyConfirmedBy, userID) {
		return false
	}
	p.ReadyConfirmedBy = sortedSet(append(p.ReadyConfirmedBy, userID))
	return true
}

// ClearTeam empties the team, the primary assignee and the ready set.
func (p *Project) ClearTeam() {
	p.AssignedProgrammerID = nil
	p.TeamIDs = []int64{}
	p.ReadyConfirmedBy = []int64{}
}

func sortedSet(ids []int64) []int64 {
	out := lo.Uniq(ids)
	slices.Sort(out)
	if out == nil {
		out = []int64{}
	}
	return out
}
