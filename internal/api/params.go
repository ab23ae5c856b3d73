package api

import (
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"devmarket/internal/apperr"
	"devmarket/internal/model"
)

func formatID(id int64) string { return strconv.FormatInt(id, 10) }

// urlID parses a positive integer path parameter.
func urlID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid %s", name)
	}
	return id, nil
}

// queryInt reads an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("invalid %s", name)
	}
	return n, nil
}

func isMultipart(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "multipart/form-data"
}

// requireActor returns the authenticated caller. Routes without Authenticate
// never reach it.
func requireActor(w http.ResponseWriter, r *http.Request) (model.Actor, bool) {
	actor, ok := GetActor(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "authentication required", "unauthorized")
	}
	return actor, ok
}
