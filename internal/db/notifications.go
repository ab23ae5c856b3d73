package db

import (
	"context"
	"database/sql"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"devmarket/internal/model"
)

// CreateNotification stores a user notification.
func (db *DB) CreateNotification(ctx context.Context, n *model.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now()
	}
	query, args := db.builder().Insert("notifications").
		Columns("user_id", "type", "title", "message", "project_id", "created_at").
		Values(n.UserID, n.Type, n.Title, n.Message, nullable(n.ProjectID), n.CreatedAt).
		Query()

	if err := db.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&n.ID); err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// ListNotifications returns a user's most recent notifications, newest first.
func (db *DB) ListNotifications(ctx context.Context, userID int64, limit int) ([]model.Notification, error) {
	b := db.builder()
	query, args := b.Select("id", "user_id", "type", "title", "message", "project_id", "read_at", "created_at").
		From(b.Table("notifications")).
		Where(entsql.EQ("user_id", userID)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id")).
		Limit(limit).
		Query()

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	out := []model.Notification{}
	for rows.Next() {
		var (
			n         model.Notification
			projectID sql.NullInt64
			readAt    sql.NullTime
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &projectID, &readAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.ProjectID = int64Ptr(projectID)
		n.ReadAt = timePtr(readAt)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}
	return out, nil
}
