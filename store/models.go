package store

import (
	"encoding/json"
	"time"
)

// MigrationStatus values for MigrationHistory.Status.
const (
	StatusExecuting  = "executing"
	StatusSuccess    = "success"
	StatusFailed     = "failed"
	StatusRolledBack = "rolled_back"
)

// Execution method identifiers recorded on history rows. The values are
// fixed wire names kept for compatibility with existing rows: option1 is a
// direct unwrapped run, option2 a single wrapping transaction.
const (
	MethodDirect        = "option1"
	MethodTransactional = "option2"
)

// SchemaVersion is a named, checksummed schema snapshot. At most one version
// is current at any time; the store enforces this by demoting the previous
// current row in the same transaction that inserts a new one.
type SchemaVersion struct {
	ID          int64           `json:"id"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	AppliedAt   time.Time       `json:"appliedAt"`
	Checksum    string          `json:"checksum"`
	Snapshot    json.RawMessage `json:"snapshot"`
	IsCurrent   bool            `json:"isCurrent"`
}

// DriftLog records one detected divergence between the current schema
// version and the live schema. Rows are only ever mutated to mark them
// resolved; they are never deleted automatically.
type DriftLog struct {
	ID               int64           `json:"id"`
	ExpectedVersion  string          `json:"expectedVersion"`
	ExpectedChecksum string          `json:"expectedChecksum"`
	ActualChecksum   string          `json:"actualChecksum"`
	Differences      json.RawMessage `json:"differences"`
	Severity         string          `json:"severity"`
	Resolved         bool            `json:"resolved"`
	ResolvedBy       *string         `json:"resolvedBy,omitempty"`
	ResolvedAt       *time.Time      `json:"resolvedAt,omitempty"`
	Notes            *string         `json:"notes,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// MigrationHistory is the auditable record of one migration execution.
// A row is created at status executing before any statement runs and updated
// exactly once to a terminal status afterward.
type MigrationHistory struct {
	ID                   int64      `json:"id"`
	MigrationName        string     `json:"migrationName"`
	FileName             string     `json:"fileName,omitempty"`
	SQLContent           string     `json:"sqlContent"`
	ExecutedBy           string     `json:"executedBy,omitempty"`
	Status               string     `json:"status"`
	Method               string     `json:"method"`
	OperationsTotal      int        `json:"operationsTotal"`
	OperationsSuccessful int        `json:"operationsSuccessful"`
	OperationsFailed     int        `json:"operationsFailed"`
	DurationMs           int64      `json:"durationMs"`
	ErrorMessage         *string    `json:"errorMessage,omitempty"`
	BackupID             *string    `json:"backupId,omitempty"`
	DryRunPassed         bool       `json:"dryRunPassed"`
	CanRollback          bool       `json:"canRollback"`
	RollbackSQL          *string    `json:"rollbackSql,omitempty"`
	StartedAt            time.Time  `json:"startedAt"`
	FinishedAt           *time.Time `json:"finishedAt,omitempty"`
}

// BackupMetadata describes one pre-migration backup. Immutable once created;
// referenced by migration history rows through BackupID.
type BackupMetadata struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"createdAt"`
	MigrationID    *string   `json:"migrationId,omitempty"`
	BackupLocation string    `json:"backupLocation"`
	SchemaChecksum string    `json:"schemaChecksum"`
	DataChecksum   string    `json:"dataChecksum"`
	SizeBytes      int64     `json:"sizeBytes"`
	CanRestore     bool      `json:"canRestore"`
	BackupType     string    `json:"backupType"`
	Notes          *string   `json:"notes,omitempty"`
}
