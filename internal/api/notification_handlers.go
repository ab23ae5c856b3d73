package api

import (
	"net/http"

	"github.com/samber/lo"
)

const notificationsLimit = 50

// HandleListNotifications returns the caller's most recent notifications
func (s *Server) HandleListNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	if limit <= 0 {
		limit = notificationsLimit
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	items, err := s.db.ListNotifications(ctx, actor.ID, lo.Clamp(limit, 1, notificationsLimit))
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, items)
}
