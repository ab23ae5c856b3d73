package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"devmarket/internal/apperr"
	"devmarket/internal/model"
)

var phaseColumns = []string{
	"id", "project_id", "title", "description", "phase_order", "status", "deliverables",
	"estimated_duration_days", "actual_duration_days", "requires_client_approval",
	"client_approved", "client_approved_at", "client_questions", "sub_steps", "attachments",
	"started_at", "completed_at", "due_date", "notes", "version", "created_at", "updated_at",
}

func scanPhase(row scanner) (*model.Phase, error) {
	var (
		p                                model.Phase
		description, notes               sql.NullString
		estimated, actual                sql.NullInt64
		deliverables, questions          []byte
		subSteps, attachments            []byte
		approvedAt, started, done, dueAt sql.NullTime
	)
	err := row.Scan(&p.ID, &p.ProjectID, &p.Title, &description, &p.Order, &p.Status, &deliverables,
		&estimated, &actual, &p.RequiresClientApproval,
		&p.ClientApproved, &approvedAt, &questions, &subSteps, &attachments,
		&started, &done, &dueAt, &notes, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	for _, col := range []struct {
		raw []byte
		dst any
	}{
		{deliverables, &p.Deliverables},
		{questions, &p.ClientQuestions},
		{subSteps, &p.SubSteps},
		{attachments, &p.Attachments},
	} {
		if err := decodeJSON(col.raw, col.dst); err != nil {
			return nil, err
		}
	}
	p.Description = stringPtr(description)
	p.Notes = stringPtr(notes)
	p.EstimatedDurationDays = intPtr(estimated)
	p.ActualDurationDays = intPtr(actual)
	p.ClientApprovedAt = timePtr(approvedAt)
	p.StartedAt = timePtr(started)
	p.CompletedAt = timePtr(done)
	p.DueDate = timePtr(dueAt)
	normalizePhase(&p)
	return &p, nil
}

func normalizePhase(p *model.Phase) {
	if p.Deliverables == nil {
		p.Deliverables = []string{}
	}
	if p.ClientQuestions == nil {
		p.ClientQuestions = []model.Question{}
	}
	if p.SubSteps == nil {
		p.SubSteps = []model.SubStep{}
	}
	if p.Attachments == nil {
		p.Attachments = []model.Attachment{}
	}
}

type phaseJSON struct {
	deliverables, questions, subSteps, attachments string
}

func encodePhaseJSON(p *model.Phase) (phaseJSON, error) {
	normalizePhase(p)
	var out phaseJSON
	var err error
	if out.deliverables, err = encodeJSON(p.Deliverables); err != nil {
		return out, err
	}
	if out.questions, err = encodeJSON(p.ClientQuestions); err != nil {
		return out, err
	}
	if out.subSteps, err = encodeJSON(p.SubSteps); err != nil {
		return out, err
	}
	if out.attachments, err = encodeJSON(p.Attachments); err != nil {
		return out, err
	}
	return out, nil
}

// CreatePhases inserts the full phase batch for a project exactly once. The
// project's phases_confirmed_at marker is claimed and the phase count re-checked
// inside the same transaction as the inserts, so a concurrent second batch fails.
func (db *DB) CreatePhases(ctx context.Context, projectID int64, phases []model.Phase) ([]model.Phase, error) {
	b := db.builder()
	ts := now()

	claimQuery, claimArgs := b.Update("projects").
		Set("phases_confirmed_at", ts).
		Add("version", 1).
		Set("updated_at", ts).
		Where(entsql.And(entsql.EQ("id", projectID), entsql.IsNull("phases_confirmed_at"))).
		Query()

	countQuery, countArgs := b.Select(entsql.Count("*")).
		From(b.Table("project_phases")).
		Where(entsql.EQ("project_id", projectID)).
		Query()

	created := make([]model.Phase, 0, len(phases))
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, claimQuery, claimArgs...)
		if err != nil {
			return fmt.Errorf("failed to lock phase creation for project %d: %w", projectID, err)
		}
		n, err := rowsAffected(res)
		if err != nil {
			return err
		}
		if n == 0 {
			if _, err := db.getProject(ctx, tx, projectID); err != nil {
				return err
			}
			return apperr.InvalidTransition("phases already exist for project %d", projectID)
		}

		var existing int
		if err := tx.QueryRowContext(ctx, countQuery, countArgs...).Scan(&existing); err != nil {
			return fmt.Errorf("failed to count phases: %w", err)
		}
		if existing > 0 {
			return apperr.InvalidTransition("phases already exist for project %d", projectID)
		}

		for _, ph := range phases {
			ph.ProjectID = projectID
			if err := db.insertPhase(ctx, tx, &ph, ts); err != nil {
				return err
			}
			created = append(created, ph)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (db *DB) insertPhase(ctx context.Context, q querier, p *model.Phase, ts time.Time) error {
	cols, err := encodePhaseJSON(p)
	if err != nil {
		return err
	}
	query, args := db.builder().Insert("project_phases").
		Columns("project_id", "title", "description", "phase_order", "status", "deliverables",
			"estimated_duration_days", "actual_duration_days", "requires_client_approval",
			"client_approved", "client_approved_at", "client_questions", "sub_steps", "attachments",
			"started_at", "completed_at", "due_date", "notes", "version", "created_at", "updated_at").
		Values(p.ProjectID, p.Title, nullable(p.Description), p.Order, string(p.Status), cols.deliverables,
			nullable(p.EstimatedDurationDays), nullable(p.ActualDurationDays), p.RequiresClientApproval,
			p.ClientApproved, nullable(p.ClientApprovedAt), cols.questions, cols.subSteps, cols.attachments,
			nullable(p.StartedAt), nullable(p.CompletedAt), nullable(p.DueDate), nullable(p.Notes), 1, ts, ts).
		Query()

	if err := q.QueryRowContext(ctx, query+" RETURNING id", args...).Scan(&p.ID); err != nil {
		return fmt.Errorf("failed to insert phase %q: %w", p.Title, err)
	}
	p.Version = 1
	p.CreatedAt = ts
	p.UpdatedAt = ts
	return nil
}

// ListPhases returns a project's phases in ascending order.
func (db *DB) ListPhases(ctx context.Context, projectID int64) ([]model.Phase, error) {
	b := db.builder()
	query, args := b.Select(phaseColumns...).
		From(b.Table("project_phases")).
		Where(entsql.EQ("project_id", projectID)).
		OrderBy("phase_order").
		Query()

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list phases: %w", err)
	}
	defer rows.Close()

	phases := []model.Phase{}
	for rows.Next() {
		p, err := scanPhase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan phase: %w", err)
		}
		phases = append(phases, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating phases: %w", err)
	}
	return phases, nil
}

// GetPhase loads a phase by id.
func (db *DB) GetPhase(ctx context.Context, id int64) (*model.Phase, error) {
	b := db.builder()
	query, args := b.Select(phaseColumns...).
		From(b.Table("project_phases")).
		Where(entsql.EQ("id", id)).
		Query()

	p, err := scanPhase(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("phase %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load phase %d: %w", id, err)
	}
	return p, nil
}

// UpdatePhase applies fn with a version compare-and-set, retrying on a lost
// race. requires_client_approval and project_id are never rewritten.
func (db *DB) UpdatePhase(ctx context.Context, id int64, fn func(p *model.Phase) error) (*model.Phase, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		p, err := db.GetPhase(ctx, id)
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

		ok, err := db.casPhase(ctx, p, expected)
		if err != nil {
			return nil, err
		}
		if ok {
			return p, nil
		}
		db.logger.Debug("Phase version conflict, retrying")
	}
	return nil, apperr.Conflict("phase %d is being modified concurrently, try again", id)
}

func (db *DB) casPhase(ctx context.Context, p *model.Phase, expected int64) (bool, error) {
	cols, err := encodePhaseJSON(p)
	if err != nil {
		return false, err
	}

	ts := now()
	query, args := db.builder().Update("project_phases").
		Set("title", p.Title).
		Set("description", nullable(p.Description)).
		Set("phase_order", p.Order).
		Set("status", string(p.Status)).
		Set("deliverables", cols.deliverables).
		Set("estimated_duration_days", nullable(p.EstimatedDurationDays)).
		Set("actual_duration_days", nullable(p.ActualDurationDays)).
		Set("client_approved", p.ClientApproved).
		Set("client_approved_at", nullable(p.ClientApprovedAt)).
		Set("client_questions", cols.questions).
		Set("sub_steps", cols.subSteps).
		Set("attachments", cols.attachments).
		Set("started_at", nullable(p.StartedAt)).
		Set("completed_at", nullable(p.CompletedAt)).
		Set("due_date", nullable(p.DueDate)).
		Set("notes", nullable(p.Notes)).
		Set("version", expected+1).
		Set("updated_at", ts).
		Where(entsql.And(entsql.EQ("id", p.ID), entsql.EQ("version", expected))).
		Query()

	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update phase %d: %w", p.ID, err)
	}
	n, err := rowsAffected(res)
	if err != nil || n == 0 {
		return false, err
	}
	p.Version = expected + 1
	p.UpdatedAt = ts
	return true, nil
}
