package model

import "time"

// Action names a recorded transition.
type Action string

const (
	ActionProjectCreated     Action = "project.created"
	ActionProjectDeleted     Action = "project.deleted"
	ActionRecruitmentOpened  Action = "project.recruitment_opened"
	ActionRecruitmentClosed  Action = "project.recruitment_closed"
	ActionMemberJoined       Action = "project.member_joined"
	ActionMemberLeft         Action = "project.member_left"
	ActionReadyConfirmed     Action = "project.ready_confirmed"
	ActionMarkedReady        Action = "project.marked_ready"
	ActionDevelopmentStarted Action = "project.started"
	ActionDevelopmentStopped Action = "project.stopped"
	ActionProjectCompleted   Action = "project.completed"
	ActionProjectCancelled   Action = "project.cancelled"
	ActionSetHolding         Action = "project.set_holding"
	ActionSetReady           Action = "project.set_ready"
	ActionProgrammerAssigned Action = "project.assigned"
	ActionAssignmentAccepted Action = "project.accepted"
	ActionAssignmentRejected Action = "project.rejected"
	ActionProgrammerUnassign Action = "project.unassigned"
	ActionAnalysisAttached   Action = "project.analysis_attached"
	ActionPhasesConfirmed    Action = "phases.confirmed"
	ActionPhaseStarted       Action = "phase.started"
	ActionPhaseCompleted     Action = "phase.completed"
	ActionPhaseApproved      Action = "phase.approved"
	ActionPhaseUpdated       Action = "phase.updated"
	ActionSubStepSaved       Action = "phase.substep_saved"
	ActionQuestionAnswered   Action = "phase.question_answered"
	ActionAttachmentAdded    Action = "phase.attachment_added"
	ActionAttachmentRemoved  Action = "phase.attachment_removed"
)

// Target types for activity records.
const (
	TargetProject    = "project"
	TargetPhase      = "phase"
	TargetAttachment = "attachment"
)

// Activity is one immutable audit event.
type Activity struct {
	ID         int64          `json:"id"`
	ProjectID  int64          `json:"project_id"`
	ActorID    int64          `json:"actor_id"`
	Action     Action         `json:"action"`
	TargetType *string        `json:"target_type,omitempty"`
	TargetID   *string        `json:"target_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Notification types sent by the engines.
const (
	NotifyPhaseCompleted   = "phase_completed"
	NotifyPhaseApproved    = "phase_approved"
	NotifyProjectReady     = "project_ready"
	NotifyProjectStarted   = "project_started"
	NotifyProjectCompleted = "project_completed"
	NotifyProjectCancelled = "project_cancelled"
	NotifyAssigned         = "project_assigned"
	NotifyAssignmentChange = "assignment_changed"
)

// Notification is a stored user notification.
type Notification struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	ProjectID *int64     `json:"project_id,omitempty"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Analysis is a phase-definition artifact produced by the external generator.
type Analysis struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	Status    string    `json:"status"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// AnalysisCompleted marks an artifact that may be used for phase proposals.
const AnalysisCompleted = "completed"
