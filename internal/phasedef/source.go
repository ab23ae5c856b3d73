// Package phasedef proposes phase drafts for a project, from its latest
// analysis artifact or from a built-in per-type template.
package phasedef

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"devmarket/internal/model"
	"devmarket/internal/workflow"
)

// ArtifactLoader returns the raw text of the most recent completed analysis for
// a project. ok is false when there is none.
type ArtifactLoader interface {
	LatestCompletedAnalysis(ctx context.Context, projectID int64) (content string, ok bool, err error)
}

// Source produces phase drafts and their client questions.
type Source struct {
	loader    ArtifactLoader
	templates *Templates
	logger    *zap.Logger
}

// NewSource builds a Source over loader. A nil loader always uses templates.
func NewSource(loader ArtifactLoader, templates *Templates, logger *zap.Logger) *Source {
	return &Source{loader: loader, templates: templates, logger: logger}
}

// Propose returns ordered drafts for project. It never persists anything and
// never fails: a missing or unreadable artifact falls back to the template.
func (s *Source) Propose(ctx context.Context, project *model.Project) []model.PhaseDraft {
	if a := s.artifact(ctx, project.ID); a != nil {
		return draftsFromArtifact(a)
	}
	return s.templates.Drafts(project.ProjectType)
}

// Questions returns the client questions for each title, in order. The
// artifact is loaded once per call. Questions in the matching artifact entry
// win; otherwise the category defaults apply.
func (s *Source) Questions(ctx context.Context, projectID int64, titles []string) [][]model.Question {
	a := s.artifact(ctx, projectID)
	out := make([][]model.Question, len(titles))
	for i, title := range titles {
		out[i] = questionsFor(a, title)
	}
	return out
}

func questionsFor(a *Artifact, title string) []model.Question {
	if a != nil {
		if raw, ok := a.Entry(title); ok {
			if qs := workflow.ExtractQuestions(raw); len(qs) > 0 {
				return qs
			}
		}
	}
	return workflow.DefaultQuestions(title)
}

func (s *Source) artifact(ctx context.Context, projectID int64) *Artifact {
	if s.loader == nil {
		return nil
	}
	content, ok, err := s.loader.LatestCompletedAnalysis(ctx, projectID)
	if err != nil {
		s.logger.Warn("Failed to load analysis artifact, using template",
			zap.Int64("project_id", projectID), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	a, err := ParseArtifact(content)
	if err != nil {
		s.logger.Info("Analysis artifact unusable, using template",
			zap.Int64("project_id", projectID), zap.Error(err))
		return nil
	}
	return a
}

func draftsFromArtifact(a *Artifact) []model.PhaseDraft {
	drafts := make([]model.PhaseDraft, 0, len(a.Phases))
	for i, p := range a.Phases {
		d := model.PhaseDraft{
			Title:        p.Phase,
			Order:        i + 1,
			Deliverables: p.Deliverables,
		}
		if d.Title == "" {
			d.Title = fmt.Sprintf("Phase %d", i+1)
		}
		if p.Weeks != "" {
			d.Description = weeksDescription(p.Weeks)
			if n, ok := leadingInt(p.Weeks); ok {
				d.EstimatedWeeks = &n
			}
		}
		drafts = append(drafts, d)
	}
	return drafts
}
