// Package server exposes vigil's operations as an HTTP JSON API. Every
// endpoint accepts and returns JSON, emits permissive CORS headers, and
// requires a bearer credential; role resolution is delegated to the caller's
// auth subsystem.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/stokaro/vigil/config"
	"github.com/stokaro/vigil/dbschema/types"
	"github.com/stokaro/vigil/drift"
	"github.com/stokaro/vigil/migration/safety"
	"github.com/stokaro/vigil/store"
	"github.com/stokaro/vigil/version"
)

// VersionService handles schema version operations.
type VersionService interface {
	Create(ctx context.Context, name, description string) (*store.SchemaVersion, error)
	List(ctx context.Context) ([]store.SchemaVersion, error)
	Current(ctx context.Context) (*store.SchemaVersion, error)
	CompareVersions(ctx context.Context, v1, v2 string) (*version.CompareResult, error)
	CheckUpdate(ctx context.Context) (*version.UpdateCheck, error)
}

// DriftService handles drift detection operations.
type DriftService interface {
	Detect(ctx context.Context) (*drift.Result, error)
	ListLogs(ctx context.Context, onlyUnresolved bool) ([]store.DriftLog, error)
	Resolve(ctx context.Context, id int64, resolvedBy, notes string) error
}

// GateService handles migration execution behind the safety policy.
type GateService interface {
	Execute(ctx context.Context, req safety.ExecuteRequest) (*safety.ExecuteResult, error)
	DryRun(ctx context.Context, req safety.DryRunRequest) (*safety.DryRunResult, error)
	Rollback(ctx context.Context, historyID int64) error
	Config() *config.SafetyConfig
	SetConfig(cfg *config.SafetyConfig)
}

// BackupService handles backup creation, listing, and retention pruning.
type BackupService interface {
	CreatePreMigrationBackup(ctx context.Context, migrationID, notes string) (*store.BackupMetadata, error)
	List(ctx context.Context) ([]store.BackupMetadata, error)
	PruneExpired(ctx context.Context, retentionDays int) (int64, error)
}

// VersionStore resolves stored snapshots for the schema-diff endpoint.
type VersionStore interface {
	GetVersion(ctx context.Context, name string) (*store.SchemaVersion, error)
	CurrentVersion(ctx context.Context) (*store.SchemaVersion, error)
}

// SnapshotSource produces a fresh structured snapshot of the live schema.
type SnapshotSource interface {
	ReadSchema() (*types.DBSchema, error)
}

// Options configures a Server.
type Options struct {
	Versions VersionService
	Drift    DriftService
	Gate     GateService
	Backups  BackupService
	Store    VersionStore
	Source   SnapshotSource

	// AuthToken, when set, is the bearer token required on every request.
	// When empty, any non-empty bearer token is accepted and identity
	// verification is delegated upstream.
	AuthToken string

	Logger *slog.Logger
}

// Server is vigil's HTTP API.
type Server struct {
	router    *mux.Router
	versions  VersionService
	drift     DriftService
	gate      GateService
	backups   BackupService
	store     VersionStore
	source    SnapshotSource
	authToken string
	logger    *slog.Logger
}

// New creates the API server and registers its routes.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		router:    mux.NewRouter(),
		versions:  opts.Versions,
		drift:     opts.Drift,
		gate:      opts.Gate,
		backups:   opts.Backups,
		store:     opts.Store,
		source:    opts.Source,
		authToken: opts.AuthToken,
		logger:    logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	fn := s.router.PathPrefix("/functions").Subrouter()
	fn.Use(s.corsMiddleware, s.authMiddleware)

	fn.HandleFunc("/schema-version-manager", s.handleVersionManager).Methods(http.MethodPost, http.MethodOptions)
	fn.HandleFunc("/detect-drift", s.handleDetectDrift).Methods(http.MethodPost, http.MethodOptions)
	fn.HandleFunc("/drift-logs", s.handleDriftLogs).Methods(http.MethodGet, http.MethodOptions)
	fn.HandleFunc("/drift-logs/{id:[0-9]+}/resolve", s.handleResolveDrift).Methods(http.MethodPost, http.MethodOptions)
	fn.HandleFunc("/schema-diff", s.handleSchemaDiff).Methods(http.MethodPost, http.MethodOptions)
	fn.HandleFunc("/dry-run-migration", s.handleDryRun).Methods(http.MethodPost, http.MethodOptions)
	fn.HandleFunc("/execute-sql-migration", s.handleExecute).Methods(http.MethodPost, http.MethodOptions)
	fn.HandleFunc("/rollback-migration", s.handleRollback).Methods(http.MethodPost, http.MethodOptions)
	fn.HandleFunc("/migration-safety-config", s.handleGetSafetyConfig).Methods(http.MethodGet, http.MethodOptions)
	fn.HandleFunc("/migration-safety-config", s.handleUpdateSafetyConfig).Methods(http.MethodPut, http.MethodOptions)
	fn.HandleFunc("/create-backup", s.handleCreateBackup).Methods(http.MethodPost, http.MethodOptions)
	fn.HandleFunc("/list-backups", s.handleListBackups).Methods(http.MethodGet, http.MethodOptions)
	fn.HandleFunc("/prune-backups", s.handlePruneBackups).Methods(http.MethodPost, http.MethodOptions)
}

// Router returns the configured handler, for tests and embedding.
func (s *Server) Router() http.Handler { return s.router }

// ListenAndServe runs the API on addr until the context is canceled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
