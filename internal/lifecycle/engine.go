// Package lifecycle implements the project and phase state machines. Every
// transition is authorized against the caller's capabilities, persisted with
// an optimistic compare-and-set, and only then followed by its activity record,
// metrics and notifications.
package lifecycle

import (
	"context"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"devmarket/internal/activity"
	"devmarket/internal/metrics"
	"devmarket/internal/model"
	"devmarket/internal/notify"
)

// ProjectStore is the persistence the project engine needs.
type ProjectStore interface {
	CreateProject(ctx context.Context, p *model.Project) error
	GetProject(ctx context.Context, id int64) (*model.Project, error)
	UpdateProject(ctx context.Context, id int64, fn func(p *model.Project) error) (*model.Project, error)
	DeleteProject(ctx context.Context, id int64) error
	CreateAnalysis(ctx context.Context, a *model.Analysis) error
	GetUser(ctx context.Context, id int64) (*model.User, error)
}

// PhaseStore is the persistence the phase engine needs.
type PhaseStore interface {
	GetProject(ctx context.Context, id int64) (*model.Project, error)
	CreatePhases(ctx context.Context, projectID int64, phases []model.Phase) ([]model.Phase, error)
	ListPhases(ctx context.Context, projectID int64) ([]model.Phase, error)
	GetPhase(ctx context.Context, id int64) (*model.Phase, error)
	UpdatePhase(ctx context.Context, id int64, fn func(p *model.Phase) error) (*model.Phase, error)
}

// Recorder appends activity. Implementations swallow their own failures.
type Recorder interface {
	Record(ctx context.Context, e activity.Entry)
}

// FileStore keeps attachment bodies.
type FileStore interface {
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
	Open(ctx context.Context, url string) (*os.File, error)
	Delete(ctx context.Context, url string) error
}

// PhaseSource proposes drafts and client questions.
type PhaseSource interface {
	Propose(ctx context.Context, project *model.Project) []model.PhaseDraft
	Questions(ctx context.Context, projectID int64, titles []string) [][]model.Question
}

// Deps are the collaborators shared by both engines.
type Deps struct {
	Recorder Recorder
	Notifier notify.Notifier
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	// Now defaults to time.Now in UTC.
	Now func() time.Time
}

func (d *Deps) defaults() {
	if d.Notifier == nil {
		d.Notifier = notify.Nop{}
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
}

// committed runs the follow-ons of a transition that is already persisted.
func (d *Deps) committed(ctx context.Context, engine string, e activity.Entry) {
	if d.Recorder != nil {
		d.Recorder.Record(ctx, e)
	}
	d.Metrics.Transition(engine, string(e.Action))
	d.Logger.Debug("Transition committed",
		zap.String("engine", engine),
		zap.String("action", string(e.Action)),
		zap.Int64("project_id", e.ProjectID),
		zap.Int64("actor_id", e.ActorID))
}

// notifyAll notifies every recipient except the actor.
func (d *Deps) notifyAll(ctx context.Context, actorID int64, recipients []int64, typ, title, message string, projectID int64) {
	seen := make(map[int64]bool, len(recipients))
	for _, id := range recipients {
		if id == actorID || seen[id] {
			continue
		}
		seen[id] = true
		d.Notifier.Notify(ctx, id, typ, title, message, &projectID)
	}
}
