package api

import (
	"net/http"

	"go.uber.org/zap"

	"devmarket/internal/version"
)

// HandleVersion returns version information about the API, database, and build
func (s *Server) HandleVersion(w http.ResponseWriter, r *http.Request) {
	dbVersion, err := s.db.GetMigrationVersion(r.Context())
	if err != nil {
		s.logger.Warn("Failed to get database version", zap.Error(err))
		dbVersion = 0
	}

	respondJSON(w, http.StatusOK, version.Get(s.config.Env, s.config.ServiceName, dbVersion))
}
