package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"devmarket/internal/model"
)

// CreateAnalysis stores a phase-definition artifact for a project.
func (db *DB) CreateAnalysis(ctx context.Context, a *model.Analysis) error {
	if a.Status == "" {
		a.Status = model.AnalysisCompleted
	}
	a.CreatedAt = now()

	query, args := db.builder().Insert("project_analyses").
		Columns("project_id", "status", "content", "created_at").
		Values(a.ProjectID, a.Status, a.Content, a.CreatedAt).
		Query()

	if err := db.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&a.ID); err != nil {
		return fmt.Errorf("failed to insert analysis: %w", err)
	}
	return nil
}

// LatestCompletedAnalysis returns the content of the newest completed analysis.
func (db *DB) LatestCompletedAnalysis(ctx context.Context, projectID int64) (string, bool, error) {
	b := db.builder()
	query, args := b.Select("content").
		From(b.Table("project_analyses")).
		Where(entsql.And(
			entsql.EQ("project_id", projectID),
			entsql.EQ("status", model.AnalysisCompleted),
		)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id")).
		Limit(1).
		Query()

	var content string
	err := db.QueryRowContext(ctx, query, args...).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to load analysis: %w", err)
	}
	return content, true, nil
}
