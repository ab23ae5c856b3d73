package phasedef

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"devmarket/internal/model"
)

type fakeLoader struct {
	content string
	ok      bool
	err     error
	calls   int
}

func (f *fakeLoader) LatestCompletedAnalysis(ctx context.Context, projectID int64) (string, bool, error) {
	f.calls++
	return f.content, f.ok, f.err
}

func newTestSource(t *testing.T, loader ArtifactLoader) *Source {
	t.Helper()
	tpl, err := LoadTemplates()
	if err != nil {
		t.Fatalf("LoadTemplates() error: %v", err)
	}
	return NewSource(loader, tpl, zaptest.NewLogger(t))
}

func titles(drafts []model.PhaseDraft) []string {
	out := make([]string, len(drafts))
	for i, d := range drafts {
		out[i] = d.Title
	}
	return out
}

func TestPropose_TemplateByProjectType(t *testing.T) {
	src := newTestSource(t, nil)

	tests := []struct {
		projectType string
		wantTrack   string
		wantLen     int
	}{
		{"new_build", "full", 5},
		{"Redesign", "full", 5},
		{"e-commerce", "full", 5},
		{"mobile app", "full", 5},
		{"landing_page", "short", 3},
		{"maintenance", "short", 3},
		{"", "default", 5},
		{"something else", "default", 5},
	}

	for _, tt := range tests {
		t.Run(tt.projectType, func(t *testing.T) {
			if got := src.templates.TrackName(tt.projectType); got != tt.wantTrack {
				t.Errorf("TrackName(%q) = %q, want %q", tt.projectType, got, tt.wantTrack)
			}
			drafts := src.Propose(context.Background(), &model.Project{ID: 1, ProjectType: tt.projectType})
			if len(drafts) != tt.wantLen {
				t.Fatalf("got %d drafts, want %d", len(drafts), tt.wantLen)
			}
			for i, d := range drafts {
				if d.Order != i+1 {
					t.Errorf("draft %d order = %d", i, d.Order)
				}
				if d.Description == nil || d.EstimatedWeeks == nil {
					t.Errorf("draft %q missing weeks", d.Title)
				}
			}
		})
	}
}

func TestPropose_Deterministic(t *testing.T) {
	src := newTestSource(t, &fakeLoader{ok: false})
	p := &model.Project{ID: 1, ProjectType: "redesign"}

	a := src.Propose(context.Background(), p)
	a[0].Deliverables[0] = "mutated"
	b := src.Propose(context.Background(), p)

	if b[0].Deliverables[0] == "mutated" {
		t.Error("template drafts share backing storage between calls")
	}
	if len(a) != len(b) {
		t.Fatalf("len mismatch %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Title != b[i].Title {
			t.Errorf("draft %d title %q vs %q", i, a[i].Title, b[i].Title)
		}
	}
}

func TestPropose_FromArtifact(t *testing.T) {
	content := "```json\n" + `{
		"timeline": {
			"phases": [
				{"phase": "Research", "weeks": 2, "deliverables": [" Personas ", "", 7, "Journey map"]},
				{"phase": "", "weeks": "3-4"},
				{"phase": "Ship it", "deliverables": []}
			]
		}
	}` + "\n```"

	src := newTestSource(t, &fakeLoader{content: content, ok: true})
	drafts := src.Propose(context.Background(), &model.Project{ID: 7, ProjectType: "landing_page"})

	want := []string{"Research", "Phase 2", "Ship it"}
	got := titles(drafts)
	if len(got) != len(want) {
		t.Fatalf("titles = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("title[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	if d := drafts[0]; d.Description == nil || *d.Description != "2 week(s)" {
		t.Errorf("draft 0 description = %v", d.Description)
	}
	if d := drafts[0]; len(d.Deliverables) != 2 || d.Deliverables[0] != "Personas" {
		t.Errorf("draft 0 deliverables = %v", d.Deliverables)
	}
	if d := drafts[1]; d.EstimatedWeeks == nil || *d.EstimatedWeeks != 3 {
		t.Errorf("draft 1 weeks = %v", d.EstimatedWeeks)
	}
	if d := drafts[2]; d.Description != nil {
		t.Errorf("draft 2 description = %q, want nil", *d.Description)
	}
}

func TestPropose_ArtifactFailuresFallBack(t *testing.T) {
	tests := []struct {
		name   string
		loader *fakeLoader
	}{
		{"loader error", &fakeLoader{err: errors.New("generator down")}},
		{"no artifact", &fakeLoader{ok: false}},
		{"bad json", &fakeLoader{content: "not json", ok: true}},
		{"empty timeline", &fakeLoader{content: `{"timeline":{"phases":[]}}`, ok: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newTestSource(t, tt.loader)
			drafts := src.Propose(context.Background(), &model.Project{ID: 1, ProjectType: "landing_page"})
			if len(drafts) != 3 || drafts[0].Title != "Planning" {
				t.Errorf("expected short template, got %v", titles(drafts))
			}
		})
	}
}

func TestQuestions(t *testing.T) {
	content := `{"timeline":{"phases":[
		{"phase":"Design","weeks":1,"questions":[{"question":"Pick a palette?","required":true}]},
		{"phase":"Build","weeks":2}
	]}}`
	loader := &fakeLoader{content: content, ok: true}
	src := newTestSource(t, loader)

	got := src.Questions(context.Background(), 1, []string{"design", "Build", "Unlisted"})
	if loader.calls != 1 {
		t.Errorf("artifact loaded %d times for one batch, want 1", loader.calls)
	}
	if len(got) != 3 {
		t.Fatalf("got %d question sets, want 3", len(got))
	}

	if qs := got[0]; len(qs) != 1 || qs[0].Question != "Pick a palette?" || !qs[0].Required {
		t.Errorf("artifact questions = %+v", qs)
	}
	if qs := got[1]; len(qs) != 3 {
		t.Errorf("expected default development questions, got %d", len(qs))
	}
	if qs := got[2]; len(qs) != 1 || qs[0].Required {
		t.Errorf("expected generic optional question, got %+v", qs)
	}
}

func TestParseTemplates_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"malformed", "tracks: ["},
		{"no default", "tracks:\n  - name: full\n    project_types: [app]\n    phases:\n      - title: A\n"},
		{"empty track", "tracks:\n  - name: default\n    phases: []\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseTemplates([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
