package workflow

import (
	"testing"
	"time"

	"devmarket/internal/model"
)

func TestInferApprovalRequirement(t *testing.T) {
	tests := []struct {
		title string
		want  bool
	}{
		{"Planning", false},
		{"Design", true},
		{"UI DESIGN", true},
		{"Launch", true},
		{"Client Review", true},
		{"Final Approval", true},
		{"Handoff", true},
		{"Development", false},
		{"Testing & QA", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			if got := InferApprovalRequirement(tt.title); got != tt.want {
				t.Errorf("InferApprovalRequirement(%q) = %v, want %v", tt.title, got, tt.want)
			}
		})
	}
}

func TestDefaultQuestions(t *testing.T) {
	tests := []struct {
		title        string
		wantCategory Category
		wantCount    int
		wantRequired int
	}{
		{"Design", CategoryDesign, 3, 1},
		{"Development", CategoryDevelopment, 3, 1},
		{"Build Out", CategoryDevelopment, 3, 1},
		{"Testing", CategoryTesting, 2, 1},
		{"QA", CategoryTesting, 2, 1},
		{"Launch", CategoryLaunch, 3, 1},
		{"Handoff", CategoryLaunch, 3, 1},
		{"Planning", CategoryPlanning, 2, 1},
		{"Discovery Workshop", CategoryPlanning, 2, 1},
		{"Content Migration", CategoryGeneric, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			if got := Categorize(tt.title); got != tt.wantCategory {
				t.Errorf("Categorize(%q) = %q, want %q", tt.title, got, tt.wantCategory)
			}
			qs := DefaultQuestions(tt.title)
			if len(qs) != tt.wantCount {
				t.Fatalf("len(DefaultQuestions(%q)) = %d, want %d", tt.title, len(qs), tt.wantCount)
			}
			required := 0
			for i, q := range qs {
				if q.Order != i+1 {
					t.Errorf("question %d order = %d, want %d", i, q.Order, i+1)
				}
				if q.Required {
					required++
				}
			}
			if required != tt.wantRequired {
				t.Errorf("required count = %d, want %d", required, tt.wantRequired)
			}
		})
	}
}

func TestExtractQuestions(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantTexts []string
		wantReq   []bool
	}{
		{
			name:      "string questions",
			raw:       `{"questions": ["Who is the audience?", "  ", "What is the budget?"]}`,
			wantTexts: []string{"Who is the audience?", "What is the budget?"},
			wantReq:   []bool{false, false},
		},
		{
			name:      "object questions",
			raw:       `{"questions": [{"question": "Approve scope?", "required": true, "order": 2}, {"question": ""}]}`,
			wantTexts: []string{"Approve scope?"},
			wantReq:   []bool{true},
		},
		{
			name:      "recommendations fallback",
			raw:       `{"recommendations": ["Use a CDN.", "Do you need SSO?", {"text": "Is mobile a priority?"}]}`,
			wantTexts: []string{"Do you need SSO?", "Is mobile a priority?"},
			wantReq:   []bool{false, false},
		},
		{
			name: "nothing extractable",
			raw:  `{"phase": "Design", "weeks": 2}`,
		},
		{
			name: "malformed",
			raw:  `{"questions": [`,
		},
		{
			name: "empty",
			raw:  ``,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractQuestions([]byte(tt.raw))
			if len(got) != len(tt.wantTexts) {
				t.Fatalf("got %d questions, want %d: %+v", len(got), len(tt.wantTexts), got)
			}
			for i := range got {
				if got[i].Question != tt.wantTexts[i] {
					t.Errorf("question[%d] = %q, want %q", i, got[i].Question, tt.wantTexts[i])
				}
				if got[i].Required != tt.wantReq[i] {
					t.Errorf("question[%d].Required = %v, want %v", i, got[i].Required, tt.wantReq[i])
				}
				if got[i].Order < 1 {
					t.Errorf("question[%d].Order = %d, want >= 1", i, got[i].Order)
				}
			}
		})
	}
}

func TestActualDurationDays(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := start.Add(d)
		return &v
	}

	tests := []struct {
		name      string
		started   *time.Time
		completed *time.Time
		now       time.Time
		want      *int
	}{
		{name: "never started", started: nil, completed: at(time.Hour), now: start, want: nil},
		{name: "same day rounds up to one", started: &start, completed: at(2 * time.Hour), want: intPtr(1)},
		{name: "zero elapsed is one", started: &start, completed: &start, want: intPtr(1)},
		{name: "exact days", started: &start, completed: at(72 * time.Hour), want: intPtr(3)},
		{name: "partial day rounds up", started: &start, completed: at(72*time.Hour + time.Minute), want: intPtr(4)},
		{name: "open phase uses now", started: &start, now: start.Add(36 * time.Hour), want: intPtr(2)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ActualDurationDays(tt.started, tt.completed, tt.now)
			switch {
			case tt.want == nil && got != nil:
				t.Errorf("got %d, want nil", *got)
			case tt.want != nil && got == nil:
				t.Errorf("got nil, want %d", *tt.want)
			case tt.want != nil && *got != *tt.want:
				t.Errorf("got %d, want %d", *got, *tt.want)
			}
		})
	}
}

func TestCanAdvance(t *testing.T) {
	phase := &model.Phase{
		Status:                 model.PhaseInProgress,
		RequiresClientApproval: true,
		ClientQuestions: []model.Question{
			{Question: "Approve?", Required: true},
			{Question: "Optional?", Required: false},
		},
		SubSteps: []model.SubStep{{Title: "Wireframes"}},
	}

	res := CanAdvance(phase)
	if res.CanProceed {
		t.Fatal("expected CanProceed=false")
	}
	if len(res.Reasons) != 4 {
		t.Errorf("got %d reasons, want 4: %v", len(res.Reasons), res.Reasons)
	}

	phase.Status = model.PhaseCompleted
	phase.ClientApproved = true
	phase.ClientQuestions[0].Answer = "yes"
	phase.SubSteps[0].Completed = true

	res = CanAdvance(phase)
	if !res.CanProceed || len(res.Reasons) != 0 {
		t.Errorf("expected CanProceed=true with no reasons, got %+v", res)
	}
}

func intPtr(v int) *int { return &v }
