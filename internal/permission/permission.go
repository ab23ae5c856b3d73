// Package permission resolves what a caller may do on a loaded project.
package permission

import "devmarket/internal/model"

// Capabilities are the booleans every transition guard is built from.
type Capabilities struct {
	IsClientOwner        bool
	IsAssignedProgrammer bool
	IsTeamMember         bool
	IsAdmin              bool
}

// Resolve computes the caller's capabilities on project. It never fails; an
// unknown role or a nil project yields no capabilities.
func Resolve(actor model.Actor, project *model.Project) Capabilities {
	if project == nil || !actor.Role.Valid() {
		return Capabilities{}
	}

	caps := Capabilities{IsAdmin: actor.Role == model.RoleAdmin}
	if project.ClientID == actor.ID {
		caps.IsClientOwner = true
	}
	if project.AssignedProgrammerID != nil && *project.AssignedProgrammerID == actor.ID {
		caps.IsAssignedProgrammer = true
	}
	caps.IsTeamMember = project.IsTeamMember(actor.ID)
	return caps
}

// OwnerOrAdmin reports whether the caller owns the project or is an admin.
func (c Capabilities) OwnerOrAdmin() bool { return c.IsClientOwner || c.IsAdmin }

// TeamOrAdmin reports whether the caller is on the team or is an admin.
func (c Capabilities) TeamOrAdmin() bool { return c.IsTeamMember || c.IsAdmin }

// Participant reports whether the caller is the owner, on the team, or an admin.
func (c Capabilities) Participant() bool { return c.IsClientOwner || c.IsTeamMember || c.IsAdmin }
