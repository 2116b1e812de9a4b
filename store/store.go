// Package store persists vigil's records: schema versions, drift logs,
// migration history, and backup metadata. Everything lives in a dedicated
// "vigil" schema bootstrapped on first use.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stokaro/vigil/core/sqlsplit"
)

//go:embed base/schema.sql
var bootstrapSQL string

// Sentinel errors surfaced to callers. API handlers map these to user-facing
// error payloads.
var (
	ErrDuplicateVersion = errors.New("schema version already exists")
	ErrVersionNotFound  = errors.New("schema version not found")
	ErrNotFound         = errors.New("record not found")
)

const uniqueViolationCode = "23505"

// Store provides access to vigil's persistent records.
type Store struct {
	db          *sql.DB
	initialized bool
	logger      *slog.Logger
}

// New creates a store over an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db, logger: slog.Default()}
}

// WithLogger sets the logger for the store
func (s *Store) WithLogger(l *slog.Logger) *Store {
	tmp := *s
	tmp.logger = l
	return &tmp
}

// Initialize creates the vigil schema and record tables if they don't exist
func (s *Store) Initialize(ctx context.Context) error {
	if s.initialized {
		return nil
	}

	for _, stmt := range sqlsplit.Split(bootstrapSQL) {
		if _, err := s.db.ExecContext(ctx, stmt.Content); err != nil {
			return fmt.Errorf("failed to bootstrap vigil schema: %w", err)
		}
	}

	s.initialized = true
	return nil
}

// InsertVersion inserts a new schema version marked current, demoting the
// previously current version inside the same transaction. A reader can never
// observe two current versions. Duplicate version names surface as
// ErrDuplicateVersion.
func (s *Store) InsertVersion(ctx context.Context, v *SchemaVersion) error {
	if err := s.Initialize(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin version transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`UPDATE vigil.schema_versions SET is_current = FALSE WHERE is_current`); err != nil {
		return fmt.Errorf("failed to demote current version: %w", err)
	}

	row := tx.QueryRowContext(ctx,
		`INSERT INTO vigil.schema_versions (version, description, checksum, snapshot, is_current)
		 VALUES ($1, $2, $3, $4, TRUE)
		 RETURNING id, applied_at`,
		v.Version, v.Description, v.Checksum, []byte(v.Snapshot))
	if err := row.Scan(&v.ID, &v.AppliedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return fmt.Errorf("%w: %s", ErrDuplicateVersion, v.Version)
		}
		return fmt.Errorf("failed to insert schema version: %w", err)
	}
	v.IsCurrent = true

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit version transaction: %w", err)
	}
	return nil
}

const versionColumns = `id, version, description, applied_at, checksum, snapshot, is_current`

func scanVersion(row interface{ Scan(...any) error }) (*SchemaVersion, error) {
	var v SchemaVersion
	var snapshot []byte
	if err := row.Scan(&v.ID, &v.Version, &v.Description, &v.AppliedAt, &v.Checksum, &snapshot, &v.IsCurrent); err != nil {
		return nil, err
	}
	v.Snapshot = snapshot
	return &v, nil
}

// ListVersions returns all schema versions, newest applied first.
func (s *Store) ListVersions(ctx context.Context) ([]SchemaVersion, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+versionColumns+` FROM vigil.schema_versions ORDER BY applied_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query schema versions: %w", err)
	}
	defer rows.Close()

	var versions []SchemaVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schema version: %w", err)
		}
		versions = append(versions, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schema versions: %w", err)
	}
	return versions, nil
}

// CurrentVersion returns the version marked current, or nil when no baseline
// exists. The absence of a current version is not an error: the drift
// detector treats it as "no baseline".
func (s *Store) CurrentVersion(ctx context.Context) (*SchemaVersion, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM vigil.schema_versions WHERE is_current`)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query current version: %w", err)
	}
	return v, nil
}

// GetVersion returns the named schema version.
func (s *Store) GetVersion(ctx context.Context, version string) (*SchemaVersion, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+versionColumns+` FROM vigil.schema_versions WHERE version = $1`, version)
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, version)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query schema version %q: %w", version, err)
	}
	return v, nil
}

// InsertDriftLog persists a drift log row and returns its id.
func (s *Store) InsertDriftLog(ctx context.Context, d *DriftLog) (int64, error) {
	if err := s.Initialize(ctx); err != nil {
		return 0, err
	}

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO vigil.drift_logs (expected_version, expected_checksum, actual_checksum, differences, severity)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		d.ExpectedVersion, d.ExpectedChecksum, d.ActualChecksum, []byte(d.Differences), d.Severity)
	if err := row.Scan(&d.ID, &d.CreatedAt); err != nil {
		return 0, fmt.Errorf("failed to insert drift log: %w", err)
	}
	return d.ID, nil
}

// ListDriftLogs returns drift logs, newest first, optionally filtered to
// unresolved ones.
func (s *Store) ListDriftLogs(ctx context.Context, onlyUnresolved bool) ([]DriftLog, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}

	query := `SELECT id, expected_version, expected_checksum, actual_checksum, differences,
		severity, resolved, resolved_by, resolved_at, notes, created_at
		FROM vigil.drift_logs`
	if onlyUnresolved {
		query += ` WHERE NOT resolved`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query drift logs: %w", err)
	}
	defer rows.Close()

	var logs []DriftLog
	for rows.Next() {
		var d DriftLog
		var differences []byte
		if err := rows.Scan(&d.ID, &d.ExpectedVersion, &d.ExpectedChecksum, &d.ActualChecksum,
			&differences, &d.Severity, &d.Resolved, &d.ResolvedBy, &d.ResolvedAt, &d.Notes, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan drift log: %w", err)
		}
		d.Differences = differences
		logs = append(logs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating drift logs: %w", err)
	}
	return logs, nil
}

// ResolveDriftLog marks a drift log resolved. Resolution is the only
// mutation drift logs support.
func (s *Store) ResolveDriftLog(ctx context.Context, id int64, resolvedBy, notes string) error {
	if err := s.Initialize(ctx); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE vigil.drift_logs
		 SET resolved = TRUE, resolved_by = $2, resolved_at = now(), notes = NULLIF($3, '')
		 WHERE id = $1 AND NOT resolved`,
		id, resolvedBy, notes)
	if err != nil {
		return fmt.Errorf("failed to resolve drift log %d: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to resolve drift log %d: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: drift log %d (or already resolved)", ErrNotFound, id)
	}
	return nil
}

// InsertMigrationHistory creates a history row at status executing before
// any statement runs, returning its id.
func (s *Store) InsertMigrationHistory(ctx context.Context, h *MigrationHistory) (int64, error) {
	if err := s.Initialize(ctx); err != nil {
		return 0, err
	}

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO vigil.migration_history
		 (migration_name, file_name, sql_content, executed_by, status, method,
		  operations_total, backup_id, dry_run_passed, can_rollback, rollback_sql)
		 VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, started_at`,
		h.MigrationName, h.FileName, h.SQLContent, h.ExecutedBy, h.Status, h.Method,
		h.OperationsTotal, h.BackupID, h.DryRunPassed, h.CanRollback, h.RollbackSQL)
	if err := row.Scan(&h.ID, &h.StartedAt); err != nil {
		return 0, fmt.Errorf("failed to insert migration history: %w", err)
	}
	return h.ID, nil
}

// FinishMigrationHistory records the single terminal update of a history row.
func (s *Store) FinishMigrationHistory(ctx context.Context, id int64, status string, successful, failed int, duration time.Duration, errorMessage *string) error {
	if err := s.Initialize(ctx); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE vigil.migration_history
		 SET status = $2, operations_successful = $3, operations_failed = $4,
		     duration_ms = $5, error_message = $6, finished_at = now()
		 WHERE id = $1 AND status = $7`,
		id, status, successful, failed, duration.Milliseconds(), errorMessage, StatusExecuting)
	if err != nil {
		return fmt.Errorf("failed to finish migration history %d: %w", id, err)
	}
	return nil
}

// GetMigrationHistory returns one history row by id.
func (s *Store) GetMigrationHistory(ctx context.Context, id int64) (*MigrationHistory, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, migration_name, COALESCE(file_name, ''), sql_content, COALESCE(executed_by, ''),
		        status, method, operations_total, operations_successful, operations_failed,
		        duration_ms, error_message, backup_id, dry_run_passed, can_rollback, rollback_sql,
		        started_at, finished_at
		 FROM vigil.migration_history WHERE id = $1`, id)

	var h MigrationHistory
	err := row.Scan(&h.ID, &h.MigrationName, &h.FileName, &h.SQLContent, &h.ExecutedBy,
		&h.Status, &h.Method, &h.OperationsTotal, &h.OperationsSuccessful, &h.OperationsFailed,
		&h.DurationMs, &h.ErrorMessage, &h.BackupID, &h.DryRunPassed, &h.CanRollback, &h.RollbackSQL,
		&h.StartedAt, &h.FinishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: migration history %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query migration history %d: %w", id, err)
	}
	return &h, nil
}

// MarkRolledBack transitions a failed history row to rolled_back. The
// transition is only reachable through the explicit rollback action.
func (s *Store) MarkRolledBack(ctx context.Context, id int64) error {
	if err := s.Initialize(ctx); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE vigil.migration_history SET status = $2 WHERE id = $1 AND status = $3`,
		id, StatusRolledBack, StatusFailed)
	if err != nil {
		return fmt.Errorf("failed to mark migration %d rolled back: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark migration %d rolled back: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: migration history %d is not in failed state", ErrNotFound, id)
	}
	return nil
}

// InsertBackup persists backup metadata. Backups are immutable once created.
func (s *Store) InsertBackup(ctx context.Context, b *BackupMetadata) error {
	if err := s.Initialize(ctx); err != nil {
		return err
	}

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO vigil.backup_metadata
		 (id, migration_id, backup_location, schema_checksum, data_checksum, size_bytes, can_restore, backup_type, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING created_at`,
		b.ID, b.MigrationID, b.BackupLocation, b.SchemaChecksum, b.DataChecksum,
		b.SizeBytes, b.CanRestore, b.BackupType, b.Notes)
	if err := row.Scan(&b.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert backup metadata: %w", err)
	}
	return nil
}

// GetBackup returns backup metadata by id.
func (s *Store) GetBackup(ctx context.Context, id string) (*BackupMetadata, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, migration_id, backup_location, schema_checksum, data_checksum,
		        size_bytes, can_restore, backup_type, notes
		 FROM vigil.backup_metadata WHERE id = $1`, id)

	var b BackupMetadata
	err := row.Scan(&b.ID, &b.CreatedAt, &b.MigrationID, &b.BackupLocation, &b.SchemaChecksum,
		&b.DataChecksum, &b.SizeBytes, &b.CanRestore, &b.BackupType, &b.Notes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: backup %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query backup %s: %w", id, err)
	}
	return &b, nil
}

// ListBackups returns all backup metadata, newest first.
func (s *Store) ListBackups(ctx context.Context) ([]BackupMetadata, error) {
	if err := s.Initialize(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, created_at, migration_id, backup_location, schema_checksum, data_checksum,
		        size_bytes, can_restore, backup_type, notes
		 FROM vigil.backup_metadata ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query backups: %w", err)
	}
	defer rows.Close()

	var backups []BackupMetadata
	for rows.Next() {
		var b BackupMetadata
		if err := rows.Scan(&b.ID, &b.CreatedAt, &b.MigrationID, &b.BackupLocation, &b.SchemaChecksum,
			&b.DataChecksum, &b.SizeBytes, &b.CanRestore, &b.BackupType, &b.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan backup metadata: %w", err)
		}
		backups = append(backups, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating backups: %w", err)
	}
	return backups, nil
}

// DeleteExpiredBackups removes backup metadata older than the retention
// window and returns how many rows were removed.
func (s *Store) DeleteExpiredBackups(ctx context.Context, retentionDays int) (int64, error) {
	if err := s.Initialize(ctx); err != nil {
		return 0, err
	}
	if retentionDays <= 0 {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM vigil.backup_metadata WHERE created_at < now() - make_interval(days => $1)`,
		retentionDays)
	if err != nil {
		return 0, fmt.Errorf("failed to prune expired backups: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to prune expired backups: %w", err)
	}
	if affected > 0 {
		s.logger.Info("Pruned expired backups", "count", affected, "retentionDays", retentionDays)
	}
	return affected, nil
}
