// Package version manages named, checksummed schema snapshots. Exactly one
// version is current at a time; creating a new version atomically demotes
// the previous one.
package version

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/stokaro/vigil/config"
	"github.com/stokaro/vigil/core/checksum"
	"github.com/stokaro/vigil/dbschema/types"
	"github.com/stokaro/vigil/migration/schemadiff"
	difftypes "github.com/stokaro/vigil/migration/schemadiff/types"
	"github.com/stokaro/vigil/store"
)

// ErrInvalidInput marks user errors such as a missing version name.
var ErrInvalidInput = errors.New("invalid input")

// SnapshotSource produces a fresh structured snapshot of the live schema.
type SnapshotSource interface {
	ReadSchema() (*types.DBSchema, error)
}

// Store is the subset of the persistence layer the manager needs.
type Store interface {
	InsertVersion(ctx context.Context, v *store.SchemaVersion) error
	ListVersions(ctx context.Context) ([]store.SchemaVersion, error)
	CurrentVersion(ctx context.Context) (*store.SchemaVersion, error)
	GetVersion(ctx context.Context, version string) (*store.SchemaVersion, error)
}

// Manager implements schema version operations.
type Manager struct {
	source SnapshotSource
	store  Store
	opts   *config.CompareOptions
	logger *slog.Logger
}

// NewManager creates a version manager.
func NewManager(source SnapshotSource, st Store) *Manager {
	return &Manager{
		source: source,
		store:  st,
		opts:   config.DefaultCompareOptions(),
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the manager
func (m *Manager) WithLogger(l *slog.Logger) *Manager {
	tmp := *m
	tmp.logger = l
	return &tmp
}

// WithCompareOptions sets the comparison options used by CompareVersions
func (m *Manager) WithCompareOptions(opts *config.CompareOptions) *Manager {
	tmp := *m
	tmp.opts = opts
	return &tmp
}

// Create snapshots the live schema and stores it as the new current version.
// The demotion of the previous current version and the insert happen in one
// transaction inside the store. Duplicate names surface
// store.ErrDuplicateVersion.
func (m *Manager) Create(ctx context.Context, name, description string) (*store.SchemaVersion, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: version is required", ErrInvalidInput)
	}
	if description == "" {
		return nil, fmt.Errorf("%w: description is required", ErrInvalidInput)
	}

	snap, err := m.source.ReadSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to export schema: %w", err)
	}

	sum, err := checksum.Snapshot(snap)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize snapshot: %w", err)
	}

	v := &store.SchemaVersion{
		Version:     name,
		Description: description,
		Checksum:    sum,
		Snapshot:    raw,
	}
	if err := m.store.InsertVersion(ctx, v); err != nil {
		return nil, err
	}

	m.logger.Info("Created schema version", "version", name, "checksum", sum, "tables", len(snap.Tables))
	return v, nil
}

// List returns all versions, newest applied first.
func (m *Manager) List(ctx context.Context) ([]store.SchemaVersion, error) {
	return m.store.ListVersions(ctx)
}

// Current returns the current version, or nil when no baseline exists.
func (m *Manager) Current(ctx context.Context) (*store.SchemaVersion, error) {
	return m.store.CurrentVersion(ctx)
}

// CompareResult is the outcome of comparing two stored versions.
type CompareResult struct {
	Version1    string                `json:"version1"`
	Version2    string                `json:"version2"`
	Differences *difftypes.SchemaDiff `json:"differences"`
}

// CompareVersions diffs the stored snapshots of two named versions.
func (m *Manager) CompareVersions(ctx context.Context, v1, v2 string) (*CompareResult, error) {
	if v1 == "" || v2 == "" {
		return nil, fmt.Errorf("%w: both version names are required", ErrInvalidInput)
	}

	first, err := m.store.GetVersion(ctx, v1)
	if err != nil {
		return nil, err
	}
	second, err := m.store.GetVersion(ctx, v2)
	if err != nil {
		return nil, err
	}

	expected, err := DecodeSnapshot(first.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot for %s: %w", v1, err)
	}
	actual, err := DecodeSnapshot(second.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot for %s: %w", v2, err)
	}

	return &CompareResult{
		Version1:    v1,
		Version2:    v2,
		Differences: schemadiff.CompareWithOptions(expected, actual, m.opts),
	}, nil
}

// UpdateCheck reports whether the live schema has moved past the stored
// current version.
type UpdateCheck struct {
	CurrentVersion  string `json:"currentVersion"`
	CurrentChecksum string `json:"currentChecksum"`
	RealChecksum    string `json:"realChecksum"`
	UpdateAvailable bool   `json:"updateAvailable"`
	Message         string `json:"message"`
}

// CheckUpdate compares the stored current checksum against the live schema.
func (m *Manager) CheckUpdate(ctx context.Context) (*UpdateCheck, error) {
	current, err := m.store.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return &UpdateCheck{
			UpdateAvailable: true,
			Message:         "no baseline version exists; create one to start tracking",
		}, nil
	}

	snap, err := m.source.ReadSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to export schema: %w", err)
	}
	real, err := checksum.Snapshot(snap)
	if err != nil {
		return nil, err
	}

	check := &UpdateCheck{
		CurrentVersion:  current.Version,
		CurrentChecksum: current.Checksum,
		RealChecksum:    real,
	}
	if real == current.Checksum {
		check.Message = fmt.Sprintf("schema matches version %s", current.Version)
	} else {
		check.UpdateAvailable = true
		check.Message = fmt.Sprintf("schema has changed since version %s; create a new version", current.Version)
	}
	return check, nil
}

// DecodeSnapshot decodes a stored snapshot, tolerating legacy name-only
// entries via the types package unmarshalers.
func DecodeSnapshot(raw json.RawMessage) (*types.DBSchema, error) {
	snap := &types.DBSchema{}
	if err := json.Unmarshal(raw, snap); err != nil {
		return nil, err
	}
	return snap, nil
}
