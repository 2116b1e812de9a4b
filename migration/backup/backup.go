// Package backup creates pre-migration backups: a rendered schema export and
// a JSON data dump, checksummed independently and recorded as immutable
// backup metadata.
package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/stokaro/vigil/core/checksum"
	"github.com/stokaro/vigil/dbschema/postgres"
	"github.com/stokaro/vigil/dbschema/types"
	"github.com/stokaro/vigil/store"
)

// ErrRestoreNotImplemented is returned by RestoreBackup. Restoration is a
// known gap: backups exist for manual recovery and audit, and the metadata
// records CanRestore=false accordingly.
var ErrRestoreNotImplemented = errors.New("backup restoration is not yet implemented")

// Backup type identifiers recorded in metadata.
const (
	TypePreMigration = "pre_migration"
	TypeManual       = "manual"
)

// Exporter produces the schema snapshot and data dump for a backup.
type Exporter interface {
	ReadSchema() (*types.DBSchema, error)
	ExportData(tables []types.DBTable) (string, error)
}

// Store is the subset of the persistence layer the backup manager needs.
type Store interface {
	InsertBackup(ctx context.Context, b *store.BackupMetadata) error
	ListBackups(ctx context.Context) ([]store.BackupMetadata, error)
	DeleteExpiredBackups(ctx context.Context, retentionDays int) (int64, error)
}

// Manager creates and lists backups.
type Manager struct {
	exporter Exporter
	store    Store
	dir      string
	logger   *slog.Logger
}

// NewManager creates a backup manager writing backup files under dir.
// An empty dir falls back to the system temporary directory.
func NewManager(exporter Exporter, st Store, dir string) *Manager {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "vigil-backups")
	}
	return &Manager{
		exporter: exporter,
		store:    st,
		dir:      dir,
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger for the manager
func (m *Manager) WithLogger(l *slog.Logger) *Manager {
	tmp := *m
	tmp.logger = l
	return &tmp
}

// CreatePreMigrationBackup snapshots the full schema and data, writes both
// to the backup directory, and records the metadata row. The returned
// metadata carries the id the safety gate attaches to migration history.
// Any failure leaves no metadata row behind.
func (m *Manager) CreatePreMigrationBackup(ctx context.Context, migrationID, notes string) (*store.BackupMetadata, error) {
	snap, err := m.exporter.ReadSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to export schema for backup: %w", err)
	}
	schemaText := postgres.RenderSQL(snap)

	dataText, err := m.exporter.ExportData(snap.Tables)
	if err != nil {
		return nil, fmt.Errorf("failed to export data for backup: %w", err)
	}

	id := uuid.NewString()
	if err := os.MkdirAll(m.dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	schemaPath := filepath.Join(m.dir, id+".schema.sql")
	dataPath := filepath.Join(m.dir, id+".data.json")
	if err := os.WriteFile(schemaPath, []byte(schemaText), 0o640); err != nil {
		return nil, fmt.Errorf("failed to write schema backup: %w", err)
	}
	if err := os.WriteFile(dataPath, []byte(dataText), 0o640); err != nil {
		return nil, fmt.Errorf("failed to write data backup: %w", err)
	}

	backupType := TypeManual
	if migrationID != "" {
		backupType = TypePreMigration
	}

	meta := &store.BackupMetadata{
		ID:             id,
		BackupLocation: m.dir,
		SchemaChecksum: checksum.Text(schemaText),
		DataChecksum:   checksum.Text(dataText),
		SizeBytes:      int64(len(schemaText) + len(dataText)),
		CanRestore:     false, // restoration is not implemented
		BackupType:     backupType,
	}
	if migrationID != "" {
		meta.MigrationID = &migrationID
	}
	if notes != "" {
		meta.Notes = &notes
	}

	if err := m.store.InsertBackup(ctx, meta); err != nil {
		return nil, err
	}

	m.logger.Info("Created backup", "backupId", id, "sizeBytes", meta.SizeBytes, "type", backupType)
	return meta, nil
}

// RestoreBackup is a recorded gap, not a silent no-op.
func (m *Manager) RestoreBackup(_ context.Context, id string) error {
	return fmt.Errorf("%w: backup %s", ErrRestoreNotImplemented, id)
}

// List returns all backup metadata, newest first.
func (m *Manager) List(ctx context.Context) ([]store.BackupMetadata, error) {
	return m.store.ListBackups(ctx)
}

// PruneExpired removes backup metadata older than the retention window.
func (m *Manager) PruneExpired(ctx context.Context, retentionDays int) (int64, error) {
	return m.store.DeleteExpiredBackups(ctx, retentionDays)
}
