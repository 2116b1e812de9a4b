package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/stokaro/vigil/config"
	"github.com/stokaro/vigil/dbschema/types"
	"github.com/stokaro/vigil/migration/safety"
	"github.com/stokaro/vigil/migration/schemadiff"
	"github.com/stokaro/vigil/migration/suggest"
	"github.com/stokaro/vigil/store"
	"github.com/stokaro/vigil/version"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already written; an encode failure has no recovery.
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, safety.ErrPolicyViolation):
		return http.StatusForbidden
	case errors.Is(err, store.ErrDuplicateVersion):
		return http.StatusConflict
	case errors.Is(err, store.ErrVersionNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, version.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeError(w, status, err.Error())
}

type versionManagerRequest struct {
	Action        string `json:"action"`
	Version       string `json:"version,omitempty"`
	TargetVersion string `json:"targetVersion,omitempty"`
	Description   string `json:"description,omitempty"`
}

func (s *Server) handleVersionManager(w http.ResponseWriter, r *http.Request) {
	var req versionManagerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx := r.Context()
	switch req.Action {
	case "get_current":
		current, err := s.versions.Current(ctx)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"currentVersion": current})
	case "list_versions":
		list, err := s.versions.List(ctx)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"versions": list})
	case "create_version":
		created, err := s.versions.Create(ctx, req.Version, req.Description)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case "compare_versions":
		result, err := s.versions.CompareVersions(ctx, req.Version, req.TargetVersion)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case "check_update":
		check, err := s.versions.CheckUpdate(ctx)
		if err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, check)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", req.Action))
	}
}

func (s *Server) handleDetectDrift(w http.ResponseWriter, r *http.Request) {
	result, err := s.drift.Detect(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDriftLogs(w http.ResponseWriter, r *http.Request) {
	onlyUnresolved := r.URL.Query().Get("unresolved") == "true"
	logs, err := s.drift.ListLogs(r.Context(), onlyUnresolved)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"driftLogs": logs})
}

func (s *Server) handleResolveDrift(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid drift log id")
		return
	}

	var req struct {
		ResolvedBy string `json:"resolvedBy"`
		Notes      string `json:"notes,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.drift.Resolve(r.Context(), id, req.ResolvedBy, req.Notes); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"resolved": true})
}

type schemaDiffRequest struct {
	Version1        string          `json:"version1,omitempty"`
	Version2        string          `json:"version2,omitempty"`
	SchemaSnapshot1 json.RawMessage `json:"schemaSnapshot1,omitempty"`
	SchemaSnapshot2 json.RawMessage `json:"schemaSnapshot2,omitempty"`
}

type schemaDiffSummary struct {
	TotalChanges int            `json:"totalChanges"`
	ByCategory   map[string]int `json:"byCategory"`
	Severity     string         `json:"severity"`
}

// resolveSnapshot picks a snapshot from an inline payload, a named stored
// version, or a fallback. Inline wins over a version name.
func (s *Server) resolveSnapshot(r *http.Request, inline json.RawMessage, name string, fallback func() (*types.DBSchema, error)) (*types.DBSchema, error) {
	if len(inline) > 0 {
		return version.DecodeSnapshot(inline)
	}
	if name != "" {
		stored, err := s.store.GetVersion(r.Context(), name)
		if err != nil {
			return nil, err
		}
		return version.DecodeSnapshot(stored.Snapshot)
	}
	return fallback()
}

func (s *Server) handleSchemaDiff(w http.ResponseWriter, r *http.Request) {
	var req schemaDiffRequest
	if !decodeBody(w, r, &req) {
		return
	}

	// Side one defaults to the stored current version, side two to the
	// live schema, so an empty body answers "has anything drifted".
	expected, err := s.resolveSnapshot(r, req.SchemaSnapshot1, req.Version1, func() (*types.DBSchema, error) {
		current, err := s.store.CurrentVersion(r.Context())
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, fmt.Errorf("%w: no current version; pass version1 or schemaSnapshot1", version.ErrInvalidInput)
		}
		return version.DecodeSnapshot(current.Snapshot)
	})
	if err != nil {
		s.fail(w, err)
		return
	}

	actual, err := s.resolveSnapshot(r, req.SchemaSnapshot2, req.Version2, s.source.ReadSchema)
	if err != nil {
		s.fail(w, err)
		return
	}

	diff := schemadiff.Compare(expected, actual)
	writeJSON(w, http.StatusOK, map[string]any{
		"differences":  diff,
		"migrationSQL": suggest.Render(diff, actual),
		"summary": schemaDiffSummary{
			TotalChanges: diff.TotalChanges(),
			ByCategory:   diff.ByCategory(),
			Severity:     string(diff.Severity()),
		},
	})
}

func (s *Server) handleDryRun(w http.ResponseWriter, r *http.Request) {
	var req safety.DryRunRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.gate.DryRun(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req safety.ExecuteRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.gate.Execute(r.Context(), req)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		HistoryID int64 `json:"historyId"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := s.gate.Rollback(r.Context(), req.HistoryID); err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"rolledBack": true})
}

func (s *Server) handleGetSafetyConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.gate.Config())
}

func (s *Server) handleUpdateSafetyConfig(w http.ResponseWriter, r *http.Request) {
	cfg := config.DefaultSafetyConfig()
	if !decodeBody(w, r, cfg) {
		return
	}
	s.gate.SetConfig(cfg)
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) handleCreateBackup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MigrationID string `json:"migrationId,omitempty"`
		Notes       string `json:"notes,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	backup, err := s.backups.CreatePreMigrationBackup(r.Context(), req.MigrationID, req.Notes)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, backup)
}

func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	backups, err := s.backups.List(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"backups": backups})
}

func (s *Server) handlePruneBackups(w http.ResponseWriter, r *http.Request) {
	retentionDays := s.gate.Config().BackupRetentionDays
	pruned, err := s.backups.PruneExpired(r.Context(), retentionDays)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pruned": pruned, "retentionDays": retentionDays})
}
