package phasedef

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"devmarket/internal/model"
)

//go:embed templates.yaml
var templatesYAML []byte

type templateFile struct {
	Tracks []track `yaml:"tracks"`
}

type track struct {
	Name         string          `yaml:"name"`
	ProjectTypes []string        `yaml:"project_types"`
	Phases       []templatePhase `yaml:"phases"`
}

type templatePhase struct {
	Title        string   `yaml:"title"`
	Weeks        int      `yaml:"weeks"`
	Deliverables []string `yaml:"deliverables"`
}

// Templates maps normalised project types to a built-in phase track.
type Templates struct {
	byType   map[string]track
	fallback track
}

// LoadTemplates parses the embedded track definitions.
func LoadTemplates() (*Templates, error) {
	return parseTemplates(templatesYAML)
}

func parseTemplates(data []byte) (*Templates, error) {
	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse phase templates: %w", err)
	}

	t := &Templates{byType: make(map[string]track)}
	haveDefault := false
	for _, tr := range f.Tracks {
		if len(tr.Phases) == 0 {
			return nil, fmt.Errorf("phase track %q has no phases", tr.Name)
		}
		if tr.Name == "default" {
			t.fallback = tr
			haveDefault = true
			continue
		}
		for _, pt := range tr.ProjectTypes {
			t.byType[normalizeType(pt)] = tr
		}
	}
	if !haveDefault {
		return nil, fmt.Errorf("phase templates define no default track")
	}
	return t, nil
}

// TrackName returns the track used for projectType.
func (t *Templates) TrackName(projectType string) string {
	return t.track(projectType).Name
}

// Drafts returns fresh phase drafts for projectType.
func (t *Templates) Drafts(projectType string) []model.PhaseDraft {
	tr := t.track(projectType)
	drafts := make([]model.PhaseDraft, 0, len(tr.Phases))
	for i, p := range tr.Phases {
		weeks := p.Weeks
		d := model.PhaseDraft{
			Title:        p.Title,
			Order:        i + 1,
			Deliverables: append([]string{}, p.Deliverables...),
		}
		if weeks > 0 {
			d.EstimatedWeeks = &weeks
			d.Description = weeksDescription(fmt.Sprint(weeks))
		}
		drafts = append(drafts, d)
	}
	return drafts
}

func (t *Templates) track(projectType string) track {
	if tr, ok := t.byType[normalizeType(projectType)]; ok {
		return tr
	}
	return t.fallback
}

func normalizeType(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

func weeksDescription(weeks string) *string {
	s := weeks + " week(s)"
	return &s
}
