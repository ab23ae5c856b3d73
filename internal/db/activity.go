package db

import (
	"context"
	"database/sql"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"devmarket/internal/model"
)

// ActivityFilter narrows an activity page.
type ActivityFilter struct {
	Action string
	Limit  int
	Offset int
}

// InsertActivity appends one audit record.
func (db *DB) InsertActivity(ctx context.Context, a *model.Activity) error {
	var metadata any
	if len(a.Metadata) > 0 {
		encoded, err := encodeJSON(a.Metadata)
		if err != nil {
			return err
		}
		metadata = encoded
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now()
	}

	query, args := db.builder().Insert("project_activities").
		Columns("project_id", "actor_id", "action", "target_type", "target_id", "metadata", "created_at").
		Values(a.ProjectID, a.ActorID, string(a.Action), nullable(a.TargetType), nullable(a.TargetID), metadata, a.CreatedAt).
		Query()

	if err := db.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&a.ID); err != nil {
		return fmt.Errorf("failed to insert activity: %w", err)
	}
	return nil
}

// ListActivity returns a newest-first page of a project's activity and the
// total number of matching records.
func (db *DB) ListActivity(ctx context.Context, projectID int64, f ActivityFilter) ([]model.Activity, int, error) {
	where := entsql.EQ("project_id", projectID)
	if f.Action != "" {
		where = entsql.And(where, entsql.EQ("action", f.Action))
	}

	b := db.builder()
	countQuery, countArgs := b.Select(entsql.Count("*")).
		From(b.Table("project_activities")).
		Where(where).
		Query()

	var total int
	if err := db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count activity: %w", err)
	}

	b = db.builder()
	query, args := b.Select("id", "project_id", "actor_id", "action", "target_type", "target_id", "metadata", "created_at").
		From(b.Table("project_activities")).
		Where(where).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id")).
		Limit(f.Limit).
		Offset(f.Offset).
		Query()

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list activity: %w", err)
	}
	defer rows.Close()

	out := []model.Activity{}
	for rows.Next() {
		var (
			a                    model.Activity
			targetType, targetID sql.NullString
			metadata             []byte
		)
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.ActorID, &a.Action, &targetType, &targetID, &metadata, &a.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan activity: %w", err)
		}
		if err := decodeJSON(metadata, &a.Metadata); err != nil {
			return nil, 0, err
		}
		a.TargetType = stringPtr(targetType)
		a.TargetID = stringPtr(targetID)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating activity: %w", err)
	}
	return out, total, nil
}
