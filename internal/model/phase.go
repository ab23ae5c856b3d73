package model

import (
	"strings"
	"time"
)

// PhaseStatus is the per-phase lifecycle state.
type PhaseStatus string

const (
	PhaseNotStarted PhaseStatus = "not_started"
	PhaseInProgress PhaseStatus = "in_progress"
	PhaseCompleted  PhaseStatus = "completed"
)

// Valid reports whether s is a known phase status.
func (s PhaseStatus) Valid() bool {
	switch s {
	case PhaseNotStarted, PhaseInProgress, PhaseCompleted:
		return true
	}
	return false
}

// Question is a client-facing clarifying question attached to a phase.
type Question struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Required bool   `json:"required"`
	Order    int    `json:"order"`
	Answer   string `json:"answer,omitempty"`
}

// Answered reports whether the question has a non-blank answer.
func (q Question) Answered() bool {
	return strings.TrimSpace(q.Answer) != ""
}

// SubStep is a team-maintained checklist entry.
type SubStep struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	Order     int    `json:"order"`
	Notes     string `json:"notes,omitempty"`
}

// Attachment references a stored file.
type Attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	// URL is the file store path. Bodies are only served through DownloadURL.
	URL         string    `json:"url"`
	DownloadURL string    `json:"download_url"`
	UploadedBy  int64     `json:"uploaded_by"`
	UploadedAt  time.Time `json:"uploaded_at"`
	Type        string    `json:"type"`
}

// Phase is one ordered step of a project's delivery plan.
type Phase struct {
	ID          int64       `json:"id"`
	ProjectID   int64       `json:"project_id"`
	Title       string      `json:"title"`
	Description *string     `json:"description,omitempty"`
	Order       int         `json:"order"`
	Status      PhaseStatus `json:"status"`

	Deliverables          []string `json:"deliverables"`
	EstimatedDurationDays *int     `json:"estimated_duration_days,omitempty"`
	ActualDurationDays    *int     `json:"actual_duration_days,omitempty"`

	RequiresClientApproval bool       `json:"requires_client_approval"`
	ClientApproved         bool       `json:"client_approved"`
	ClientApprovedAt       *time.Time `json:"client_approved_at,omitempty"`

	ClientQuestions []Question   `json:"client_questions"`
	SubSteps        []SubStep    `json:"sub_steps"`
	Attachments     []Attachment `json:"attachments"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Notes       *string    `json:"notes,omitempty"`

	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RequiredAnswered reports whether every required question has an answer.
func (p *Phase) RequiredAnswered() bool {
	for _, q := range p.ClientQuestions {
		if q.Required && !q.Answered() {
			return false
		}
	}
	return true
}

// PhaseDraft is a proposed phase before it is persisted.
type PhaseDraft struct {
	Title          string   `json:"title"`
	Description    *string  `json:"description,omitempty"`
	Order          int      `json:"order"`
	Deliverables   []string `json:"deliverables"`
	EstimatedWeeks *int     `json:"estimated_weeks,omitempty"`
}
