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

// ErrSkipWrite may be returned by an update callback to leave the row untouched.
var ErrSkipWrite = errors.New("skip write")

var projectColumns = []string{
	"id", "title", "description", "project_type", "client_id", "assigned_programmer_id",
	"team_ids", "status", "team_closed", "ready_confirmed_by", "start_date", "due_date",
	"completed_date", "phases_confirmed_at", "version", "created_at", "updated_at",
}

func scanProject(row scanner) (*model.Project, error) {
	var (
		p                                   model.Project
		description                         sql.NullString
		assigned                            sql.NullInt64
		teamIDs, readyBy                    []byte
		start, due, completed, phasesLocked sql.NullTime
	)
	err := row.Scan(&p.ID, &p.Title, &description, &p.ProjectType, &p.ClientID, &assigned,
		&teamIDs, &p.Status, &p.TeamClosed, &readyBy, &start, &due,
		&completed, &phasesLocked, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := decodeJSON(teamIDs, &p.TeamIDs); err != nil {
		return nil, err
	}
	if err := decodeJSON(readyBy, &p.ReadyConfirmedBy); err != nil {
		return nil, err
	}
	p.Description = stringPtr(description)
	p.AssignedProgrammerID = int64Ptr(assigned)
	p.StartDate = timePtr(start)
	p.DueDate = timePtr(due)
	p.CompletedDate = timePtr(completed)
	p.PhasesConfirmedAt = timePtr(phasesLocked)
	p.Reconcile()
	return &p, nil
}

// CreateProject inserts p and fills its id, version and timestamps.
func (db *DB) CreateProject(ctx context.Context, p *model.Project) error {
	p.Reconcile()
	teamIDs, err := encodeJSON(p.TeamIDs)
	if err != nil {
		return err
	}
	readyBy, err := encodeJSON(p.ReadyConfirmedBy)
	if err != nil {
		return err
	}

	ts := now()
	query, args := db.builder().Insert("projects").
		Columns("title", "description", "project_type", "client_id", "assigned_programmer_id",
			"team_ids", "status", "team_closed", "ready_confirmed_by", "start_date", "due_date",
			"completed_date", "version", "created_at", "updated_at").
		Values(p.Title, nullable(p.Description), p.ProjectType, p.ClientID, nullable(p.AssignedProgrammerID),
			teamIDs, string(p.Status), p.TeamClosed, readyBy, nullable(p.StartDate), nullable(p.DueDate),
			nullable(p.CompletedDate), 1, ts, ts).
		Query()

	if err := db.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&p.ID); err != nil {
		return fmt.Errorf("failed to insert project: %w", err)
	}
	p.Version = 1
	p.CreatedAt = ts
	p.UpdatedAt = ts
	return nil
}

// GetProject loads a project by id.
func (db *DB) GetProject(ctx context.Context, id int64) (*model.Project, error) {
	return db.getProject(ctx, db.DB, id)
}

func (db *DB) getProject(ctx context.Context, q querier, id int64) (*model.Project, error) {
	b := db.builder()
	query, args := b.Select(projectColumns...).
		From(b.Table("projects")).
		Where(entsql.EQ("id", id)).
		Query()

	p, err := scanProject(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("project %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load project %d: %w", id, err)
	}
	return p, nil
}

// UpdateProject applies fn to the current row and writes it back with a
// version compare-and-set, re-reading and re-applying fn on a lost race. fn
// may run more than once and must only depend on the project it is given.
func (db *DB) UpdateProject(ctx context.Context, id int64, fn func(p *model.Project) error) (*model.Project, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		p, err := db.GetProject(ctx, id)
		if err != nil {
			return nil, err
		}
		expected := p.Version
		if err := fn(p); err != nil {
			if errors.Is(err, ErrSkipWrite) {
				return p, nil
			}
			return nil, err
		}
		p.Reconcile()

		ok, err := db.casProject(ctx, p, expected)
		if err != nil {
			return nil, err
		}
		if ok {
			return p, nil
		}
		db.logger.Debug("Project version conflict, retrying")
	}
	return nil, apperr.Conflict("project %d is being modified concurrently, try again", id)
}

func (db *DB) casProject(ctx context.Context, p *model.Project, expected int64) (bool, error) {
	teamIDs, err := encodeJSON(p.TeamIDs)
	if err != nil {
		return false, err
	}
	readyBy, err := encodeJSON(p.ReadyConfirmedBy)
	if err != nil {
		return false, err
	}

	ts := now()
	query, args := db.builder().Update("projects").
		Set("title", p.Title).
		Set("description", nullable(p.Description)).
		Set("project_type", p.ProjectType).
		Set("assigned_programmer_id", nullable(p.AssignedProgrammerID)).
		Set("team_ids", teamIDs).
		Set("status", string(p.Status)).
		Set("team_closed", p.TeamClosed).
		Set("ready_confirmed_by", readyBy).
		Set("start_date", nullable(p.StartDate)).
		Set("due_date", nullable(p.DueDate)).
		Set("completed_date", nullable(p.CompletedDate)).
		Set("version", expected+1).
		Set("updated_at", ts).
		Where(entsql.And(entsql.EQ("id", p.ID), entsql.EQ("version", expected))).
		Query()

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update project %d: %w", p.ID, err)
	}
	n, err := rowsAffected(res)
	if err != nil || n == 0 {
		return false, err
	}
	p.Version = expected + 1
	p.UpdatedAt = ts
	return true, nil
}

// DeleteProject removes the project's phases and then the project itself.
func (db *DB) DeleteProject(ctx context.Context, id int64) error {
	b := db.builder()
	phasesQuery, phasesArgs := b.Delete("project_phases").Where(entsql.EQ("project_id", id)).Query()
	projectQuery, projectArgs := b.Delete("projects").Where(entsql.EQ("id", id)).Query()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, phasesQuery, phasesArgs...); err != nil {
			return fmt.Errorf("failed to delete phases of project %d: %w", id, err)
		}
		res, err := tx.ExecContext(ctx, projectQuery, projectArgs...)
		if err != nil {
			return fmt.Errorf("failed to delete project %d: %w", id, err)
		}
		n, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperr.NotFound("project %d not found", id)
		}
		return nil
	})
}
