// Package drift detects divergence between the stored current schema version
// and the live database schema.
package drift

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/stokaro/vigil/config"
	"github.com/stokaro/vigil/core/checksum"
	"github.com/stokaro/vigil/dbschema/types"
	"github.com/stokaro/vigil/migration/schemadiff"
	difftypes "github.com/stokaro/vigil/migration/schemadiff/types"
	"github.com/stokaro/vigil/store"
	"github.com/stokaro/vigil/version"
)

// SnapshotSource produces a fresh structured snapshot of the live schema.
type SnapshotSource interface {
	ReadSchema() (*types.DBSchema, error)
}

// Store is the subset of the persistence layer the detector needs.
type Store interface {
	CurrentVersion(ctx context.Context) (*store.SchemaVersion, error)
	InsertDriftLog(ctx context.Context, d *store.DriftLog) (int64, error)
	ListDriftLogs(ctx context.Context, onlyUnresolved bool) ([]store.DriftLog, error)
	ResolveDriftLog(ctx context.Context, id int64, resolvedBy, notes string) error
}

// Result is the outcome of one drift check.
type Result struct {
	HasDrift         bool                  `json:"hasDrift"`
	ExpectedVersion  string                `json:"expectedVersion,omitempty"`
	ExpectedChecksum string                `json:"expectedChecksum,omitempty"`
	ActualChecksum   string                `json:"actualChecksum,omitempty"`
	Differences      *difftypes.SchemaDiff `json:"differences,omitempty"`
	Severity         difftypes.Severity    `json:"severity,omitempty"`
	DriftLogID       int64                 `json:"driftLogId,omitempty"`
	Message          string                `json:"message,omitempty"`
	Warning          string                `json:"warning,omitempty"`
}

// Detector checks the live schema against the stored baseline.
type Detector struct {
	source SnapshotSource
	store  Store
	opts   *config.CompareOptions
	logger *slog.Logger
}

// NewDetector creates a drift detector.
func NewDetector(source SnapshotSource, st Store) *Detector {
	return &Detector{
		source: source,
		store:  st,
		opts:   config.DefaultCompareOptions(),
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the detector
func (d *Detector) WithLogger(l *slog.Logger) *Detector {
	tmp := *d
	tmp.logger = l
	return &tmp
}

// WithCompareOptions sets the comparison options used when drift is found
func (d *Detector) WithCompareOptions(opts *config.CompareOptions) *Detector {
	tmp := *d
	tmp.opts = opts
	return &tmp
}

// Detect runs one drift check.
//
// The stored checksum gates the expensive structural comparison: matching
// checksums mean no drift and no further work. On mismatch the detector
// computes the full diff, persists a drift log with its severity, and
// returns the details. An exporter failure fails the whole operation; no
// partial drift log is ever written.
func (d *Detector) Detect(ctx context.Context) (*Result, error) {
	current, err := d.store.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return &Result{
			HasDrift: false,
			Warning:  "no baseline version exists; create a schema version to enable drift detection",
		}, nil
	}

	snap, err := d.source.ReadSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to export schema: %w", err)
	}

	actualSum, err := checksum.Snapshot(snap)
	if err != nil {
		return nil, err
	}

	if actualSum == current.Checksum {
		return &Result{
			HasDrift:         false,
			ExpectedVersion:  current.Version,
			ExpectedChecksum: current.Checksum,
			ActualChecksum:   actualSum,
			Message:          fmt.Sprintf("schema matches version %s", current.Version),
		}, nil
	}

	expected, err := version.DecodeSnapshot(current.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored snapshot for %s: %w", current.Version, err)
	}

	diff := schemadiff.CompareWithOptions(expected, snap, d.opts)
	severity := diff.Severity()

	rawDiff, err := json.Marshal(diff)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize differences: %w", err)
	}

	log := &store.DriftLog{
		ExpectedVersion:  current.Version,
		ExpectedChecksum: current.Checksum,
		ActualChecksum:   actualSum,
		Differences:      rawDiff,
		Severity:         string(severity),
	}
	logID, err := d.store.InsertDriftLog(ctx, log)
	if err != nil {
		return nil, err
	}

	d.logger.Warn("Schema drift detected",
		"expectedVersion", current.Version, "severity", severity, "changes", diff.TotalChanges(), "driftLogId", logID)

	return &Result{
		HasDrift:         true,
		ExpectedVersion:  current.Version,
		ExpectedChecksum: current.Checksum,
		ActualChecksum:   actualSum,
		Differences:      diff,
		Severity:         severity,
		DriftLogID:       logID,
		Message:          fmt.Sprintf("schema has drifted from version %s (%d changes, severity %s)", current.Version, diff.TotalChanges(), severity),
	}, nil
}

// ListLogs returns recorded drift logs, optionally only unresolved ones.
func (d *Detector) ListLogs(ctx context.Context, onlyUnresolved bool) ([]store.DriftLog, error) {
	return d.store.ListDriftLogs(ctx, onlyUnresolved)
}

// Resolve marks a drift log as resolved.
func (d *Detector) Resolve(ctx context.Context, id int64, resolvedBy, notes string) error {
	if err := d.store.ResolveDriftLog(ctx, id, resolvedBy, notes); err != nil {
		return err
	}
	d.logger.Info("Resolved drift log", "driftLogId", id, "resolvedBy", resolvedBy)
	return nil
}
