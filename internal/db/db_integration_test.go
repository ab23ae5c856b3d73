//go:build integration

package db

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap/zaptest"

	"devmarket/internal/apperr"
	"devmarket/internal/model"
)

func TestPostgres_MigrationsAndStores(t *testing.T) {
	ctx := context.Background()

	pg, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("devmarket"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	database, err := New(Config{Driver: "postgres", DSN: dsn, MigrationsPath: "./migrations"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer database.Close()

	client := &model.User{Email: "client@example.com", Role: model.RoleClient, IsActive: true}
	if err := database.CreateUser(ctx, client); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	p := &model.Project{Title: "Portal", ClientID: client.ID, Status: model.StatusHolding}
	if err := database.CreateProject(ctx, p); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	if _, err := database.UpdateProject(ctx, p.ID, func(p *model.Project) error {
		p.Status = model.StatusOpen
		p.AddMember(client.ID)
		p.ConfirmReady(client.ID)
		return nil
	}); err != nil {
		t.Fatalf("UpdateProject: %v", err)
	}

	if _, err := database.CreatePhases(ctx, p.ID, testPhases()); err != nil {
		t.Fatalf("CreatePhases: %v", err)
	}
	if _, err := database.CreatePhases(ctx, p.ID, testPhases()); apperr.KindOf(err) != apperr.KindInvalidTransition {
		t.Fatalf("second CreatePhases: expected invalid transition, got %v", err)
	}

	phases, err := database.ListPhases(ctx, p.ID)
	if err != nil || len(phases) != 2 {
		t.Fatalf("ListPhases: %d phases, err %v", len(phases), err)
	}

	if err := database.InsertActivity(ctx, &model.Activity{
		ProjectID: p.ID, ActorID: client.ID, Action: model.ActionPhasesConfirmed,
		Metadata: map[string]any{"count": 2},
	}); err != nil {
		t.Fatalf("InsertActivity: %v", err)
	}
	records, total, err := database.ListActivity(ctx, p.ID, ActivityFilter{Limit: 5})
	if err != nil || total != 1 || records[0].Metadata["count"] != float64(2) {
		t.Fatalf("ListActivity: %+v total=%d err=%v", records, total, err)
	}

	if err := database.DeleteProject(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
}
