package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"devmarket/internal/apperr"
	"devmarket/internal/model"
)

// CreateUser inserts a marketplace account.
func (db *DB) CreateUser(ctx context.Context, u *model.User) error {
	if !u.Role.Valid() {
		return apperr.Validation("unknown role %q", u.Role)
	}
	u.CreatedAt = now()

	query, args := db.builder().Insert("users").
		Columns("email", "name", "role", "is_active", "created_at").
		Values(u.Email, nullable(u.Name), string(u.Role), u.IsActive, u.CreatedAt).
		Query()

	if err := db.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&u.ID); err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// GetUser loads an account by id.
func (db *DB) GetUser(ctx context.Context, id int64) (*model.User, error) {
	b := db.builder()
	query, args := b.Select("id", "email", "name", "role", "is_active", "created_at").
		From(b.Table("users")).
		Where(entsql.EQ("id", id)).
		Query()

	var (
		u    model.User
		name sql.NullString
	)
	err := db.QueryRowContext(ctx, query, args...).Scan(&u.ID, &u.Email, &name, &u.Role, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("user %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", id, err)
	}
	u.Name = stringPtr(name)
	return &u, nil
}
