package lifecycle

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zaptest"

	"devmarket/internal/activity"
	"devmarket/internal/apperr"
	"devmarket/internal/db"
	"devmarket/internal/filestore"
	"devmarket/internal/metrics"
	"devmarket/internal/model"
	"devmarket/internal/phasedef"
)

type sent struct {
	userID    int64
	typ       string
	projectID int64
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sent
}

func (n *recordingNotifier) Notify(_ context.Context, userID int64, typ, _, _ string, projectID *int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	s := sent{userID: userID, typ: typ}
	if projectID != nil {
		s.projectID = *projectID
	}
	n.sent = append(n.sent, s)
}

func (n *recordingNotifier) to(userID int64, typ string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, s := range n.sent {
		if s.userID == userID && s.typ == typ {
			count++
		}
	}
	return count
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	db       *db.DB
	projects *ProjectEngine
	phases   *PhaseEngine
	recorder *activity.Recorder
	notifier *recordingNotifier
	clock    *testClock
	files    *filestore.Local

	client, otherClient, admin model.Actor
	dev1, dev2, dev3           model.Actor
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)

	database, err := db.New(db.Config{
		Driver:         "sqlite",
		DBPath:         ":memory:",
		MigrationsPath: "../db/migrations",
	}, logger)
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	templates, err := phasedef.LoadTemplates()
	if err != nil {
		t.Fatalf("Failed to load templates: %v", err)
	}
	files, err := filestore.NewLocal(t.TempDir(), 1<<20)
	if err != nil {
		t.Fatalf("Failed to create file store: %v", err)
	}

	h := &harness{
		db:       database,
		recorder: activity.NewRecorder(database, logger),
		notifier: &recordingNotifier{},
		clock:    &testClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
		files:    files,
	}
	deps := Deps{
		Recorder: h.recorder,
		Notifier: h.notifier,
		Metrics:  metrics.New(prometheus.NewRegistry()),
		Logger:   logger,
		Now:      h.clock.Now,
	}
	h.projects = NewProjectEngine(database, deps)
	h.phases = NewPhaseEngine(database, phasedef.NewSource(database, templates, logger), files, deps)

	h.client = h.user(t, "client@example.com", model.RoleClient)
	h.otherClient = h.user(t, "other@example.com", model.RoleUser)
	h.admin = h.user(t, "admin@example.com", model.RoleAdmin)
	h.dev1 = h.user(t, "dev1@example.com", model.RoleProgrammer)
	h.dev2 = h.user(t, "dev2@example.com", model.RoleProgrammer)
	h.dev3 = h.user(t, "dev3@example.com", model.RoleProgrammer)
	return h
}

func (h *harness) user(t *testing.T, email string, role model.Role) model.Actor {
	t.Helper()
	u := &model.User{Email: email, Role: role, IsActive: true}
	if err := h.db.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser(%s) failed: %v", email, err)
	}
	return u.Actor()
}

func (h *harness) newProject(t *testing.T, projectType string) *model.Project {
	t.Helper()
	p, err := h.projects.Create(context.Background(), h.client, CreateProjectInput{Title: "Bakery site", ProjectType: projectType})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return p
}

// developmentProject returns a project in Development with dev1 as its only member.
func (h *harness) developmentProject(t *testing.T, projectType string) *model.Project {
	t.Helper()
	ctx := context.Background()
	p := h.newProject(t, projectType)
	if _, err := h.projects.SetReady(ctx, h.client, p.ID); err != nil {
		t.Fatalf("SetReady failed: %v", err)
	}
	p, err := h.projects.Accept(ctx, h.dev1, p.ID)
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	return p
}

func (h *harness) confirm(t *testing.T, projectID int64, titles ...string) []model.Phase {
	t.Helper()
	drafts := make([]model.PhaseDraft, 0, len(titles))
	for _, title := range titles {
		drafts = append(drafts, model.PhaseDraft{Title: title, Deliverables: []string{title + " notes", " ", title + " sign-off"}})
	}
	phases, err := h.phases.ConfirmPhases(context.Background(), h.dev1, projectID, drafts)
	if err != nil {
		t.Fatalf("ConfirmPhases failed: %v", err)
	}
	return phases
}

func (h *harness) actions(t *testing.T, projectID int64) []model.Action {
	t.Helper()
	page, err := h.recorder.List(context.Background(), projectID, 1, 100, "")
	if err != nil {
		t.Fatalf("List activity failed: %v", err)
	}
	out := make([]model.Action, 0, len(page.Items))
	for _, a := range page.Items {
		out = append(out, a.Action)
	}
	return out
}

func wantKind(t *testing.T, err error, kind apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", kind)
	}
	if got := apperr.KindOf(err); got != kind {
		t.Fatalf("expected %s error, got %s (%v)", kind, got, err)
	}
}
