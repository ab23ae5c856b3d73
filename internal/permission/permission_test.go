package permission

import (
	"testing"

	"devmarket/internal/model"
)

func ptr(v int64) *int64 { return &v }

func TestResolve(t *testing.T) {
	project := &model.Project{
		ID:                   1,
		ClientID:             10,
		AssignedProgrammerID: ptr(20),
		TeamIDs:              []int64{20, 21},
	}

	tests := []struct {
		name  string
		actor model.Actor
		want  Capabilities
	}{
		{
			name:  "client owner",
			actor: model.Actor{ID: 10, Role: model.RoleClient, IsActive: true},
			want:  Capabilities{IsClientOwner: true},
		},
		{
			name:  "legacy user role owns project",
			actor: model.Actor{ID: 10, Role: model.RoleUser, IsActive: true},
			want:  Capabilities{IsClientOwner: true},
		},
		{
			name:  "primary assignee",
			actor: model.Actor{ID: 20, Role: model.RoleProgrammer, IsActive: true},
			want:  Capabilities{IsAssignedProgrammer: true, IsTeamMember: true},
		},
		{
			name:  "team member",
			actor: model.Actor{ID: 21, Role: model.RoleProgrammer, IsActive: true},
			want:  Capabilities{IsTeamMember: true},
		},
		{
			name:  "outsider programmer",
			actor: model.Actor{ID: 22, Role: model.RoleProgrammer, IsActive: true},
			want:  Capabilities{},
		},
		{
			name:  "admin",
			actor: model.Actor{ID: 99, Role: model.RoleAdmin, IsActive: true},
			want:  Capabilities{IsAdmin: true},
		},
		{
			name:  "unknown role resolves nothing",
			actor: model.Actor{ID: 10, Role: "auditor", IsActive: true},
			want:  Capabilities{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.actor, project)
			if got != tt.want {
				t.Errorf("Resolve() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestResolve_NilProject(t *testing.T) {
	got := Resolve(model.Actor{ID: 1, Role: model.RoleAdmin}, nil)
	if got != (Capabilities{}) {
		t.Errorf("Resolve(nil) = %+v, want zero", got)
	}
}

func TestCapabilityCombinations(t *testing.T) {
	c := Capabilities{IsTeamMember: true}
	if c.OwnerOrAdmin() {
		t.Error("team member should not pass OwnerOrAdmin")
	}
	if !c.TeamOrAdmin() || !c.Participant() {
		t.Error("team member should pass TeamOrAdmin and Participant")
	}
	if (Capabilities{}).Participant() {
		t.Error("empty capabilities should not be a participant")
	}
}
