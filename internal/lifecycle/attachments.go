package lifecycle

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"devmarket/internal/apperr"
	"devmarket/internal/model"
	"devmarket/internal/permission"
)

// Upload is a received attachment body.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

func (u Upload) kind() string {
	if ct := strings.TrimSpace(u.ContentType); ct != "" {
		return ct
	}
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(u.Filename))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// AddAttachment stores the file and links it to the phase.
func (e *PhaseEngine) AddAttachment(ctx context.Context, actor model.Actor, phaseID int64, up Upload) (*model.Phase, *model.Attachment, error) {
	up.Filename = filepath.Base(strings.TrimSpace(up.Filename))
	if up.Body == nil || up.Filename == "" || up.Filename == "." {
		return nil, nil, apperr.Validation("a file is required")
	}

	canAdd := require(permission.Capabilities.Participant, "only project participants can add attachments")
	if _, _, err := e.authorize(ctx, actor, phaseID, canAdd); err != nil {
		return nil, nil, err
	}

	url, err := e.files.Save(ctx, up.Filename, up.Body)
	if err != nil {
		return nil, nil, err
	}

	id := uuid.NewString()
	att := model.Attachment{
		ID:          id,
		Filename:    up.Filename,
		URL:         url,
		DownloadURL: DownloadURL(phaseID, id),
		UploadedBy:  actor.ID,
		Type:        up.kind(),
	}
	m, err := e.mutate(ctx, actor, phaseID, canAdd, func(ph *model.Phase, now time.Time) error {
		att.UploadedAt = now
		ph.Attachments = append(ph.Attachments, att)
		return nil
	})
	if err != nil {
		e.deleteFile(ctx, url)
		return nil, nil, err
	}

	e.record(ctx, actor, m.phase, model.ActionAttachmentAdded, map[string]any{
		"attachment_id": att.ID, "filename": att.Filename,
	})
	return m.phase, &att, nil
}

// RemoveAttachment unlinks an attachment and deletes its stored file.
func (e *PhaseEngine) RemoveAttachment(ctx context.Context, actor model.Actor, phaseID int64, attachmentID string) (*model.Phase, error) {
	var removed model.Attachment
	allowed := func(c permission.Capabilities, ph *model.Phase) error {
		i := findAttachment(ph.Attachments, attachmentID)
		if i < 0 {
			return apperr.NotFound("attachment %s not found", attachmentID)
		}
		if ph.Attachments[i].UploadedBy != actor.ID && !c.TeamOrAdmin() {
			return apperr.Forbidden("only the uploader or the team can remove this attachment")
		}
		return nil
	}

	m, err := e.mutate(ctx, actor, phaseID, allowed, func(ph *model.Phase, _ time.Time) error {
		i := findAttachment(ph.Attachments, attachmentID)
		if i < 0 {
			return apperr.NotFound("attachment %s not found", attachmentID)
		}
		removed = ph.Attachments[i]
		ph.Attachments = append(ph.Attachments[:i:i], ph.Attachments[i+1:]...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.deleteFile(ctx, removed.URL)
	e.record(ctx, actor, m.phase, model.ActionAttachmentRemoved, map[string]any{
		"attachment_id": removed.ID, "filename": removed.Filename,
	})
	return m.phase, nil
}

// OpenAttachment returns an attachment and its body for a project
// participant. Reads stay open after the project finishes. The caller
// closes the file.
func (e *PhaseEngine) OpenAttachment(ctx context.Context, actor model.Actor, phaseID int64, attachmentID string) (*model.Attachment, *os.File, error) {
	ph, err := e.store.GetPhase(ctx, phaseID)
	if err != nil {
		return nil, nil, err
	}
	p, err := e.store.GetProject(ctx, ph.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	if !permission.Resolve(actor, p).Participant() {
		return nil, nil, apperr.Forbidden("only project participants can download attachments")
	}
	i := findAttachment(ph.Attachments, attachmentID)
	if i < 0 {
		return nil, nil, apperr.NotFound("attachment %s not found", attachmentID)
	}
	att := ph.Attachments[i]
	f, err := e.files.Open(ctx, att.URL)
	if err != nil {
		return nil, nil, err
	}
	return &att, f, nil
}

// DownloadURL is the authenticated route serving an attachment body.
func DownloadURL(phaseID int64, attachmentID string) string {
	return fmt.Sprintf("/api/phases/%d/attachments/%s", phaseID, attachmentID)
}

func findAttachment(list []model.Attachment, id string) int {
	for i, a := range list {
		if a.ID == id {
			return i
		}
	}
	return -1
}

func (e *PhaseEngine) deleteFile(ctx context.Context, url string) {
	if err := e.files.Delete(context.WithoutCancel(ctx), url); err != nil {
		e.Logger.Warn("Failed to delete stored attachment", zap.String("url", url), zap.Error(err))
	}
}
