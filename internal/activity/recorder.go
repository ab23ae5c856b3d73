// Package activity appends and reads the per-project audit feed.
package activity

import (
	"context"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"devmarket/internal/db"
	"devmarket/internal/model"
)

const (
	defaultLimit = 20
	maxLimit     = 100
	recordWait   = 5 * time.Second
)

// Store persists activity records.
type Store interface {
	InsertActivity(ctx context.Context, a *model.Activity) error
	ListActivity(ctx context.Context, projectID int64, f db.ActivityFilter) ([]model.Activity, int, error)
}

// Entry describes one event to record.
type Entry struct {
	ProjectID  int64
	ActorID    int64
	Action     model.Action
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

// Page is one page of the audit feed.
type Page struct {
	Items []model.Activity `json:"items"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

// Recorder writes activity on behalf of the lifecycle engines.
type Recorder struct {
	store  Store
	logger *zap.Logger
}

// NewRecorder creates a Recorder over store.
func NewRecorder(store Store, logger *zap.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Record appends e. Failures are logged and never returned; the write is
// detached from ctx cancellation so a dropped client does not lose the record.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordWait)
	defer cancel()

	a := &model.Activity{
		ProjectID: e.ProjectID,
		ActorID:   e.ActorID,
		Action:    e.Action,
		Metadata:  e.Metadata,
	}
	if e.TargetType != "" {
		a.TargetType = lo.ToPtr(e.TargetType)
	}
	if e.TargetID != "" {
		a.TargetID = lo.ToPtr(e.TargetID)
	}

	if err := r.store.InsertActivity(ctx, a); err != nil {
		r.logger.Error("Failed to record activity",
			zap.Int64("project_id", e.ProjectID),
			zap.String("action", string(e.Action)),
			zap.Error(err))
	}
}

// List returns a newest-first page. page is 1-based; limit is clamped to [1, 100]
// and defaults to 20.
func (r *Recorder) List(ctx context.Context, projectID int64, page, limit int, action string) (*Page, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	limit = lo.Clamp(limit, 1, maxLimit)
	page = max(page, 1)

	items, total, err := r.store.ListActivity(ctx, projectID, db.ActivityFilter{
		Action: action,
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		return nil, err
	}
	return &Page{Items: items, Total: total, Page: page, Limit: limit}, nil
}
