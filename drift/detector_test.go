package drift_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/go-extras/go-kit/must"

	"github.com/stokaro/vigil/core/checksum"
	"github.com/stokaro/vigil/dbschema/types"
	"github.com/stokaro/vigil/drift"
	difftypes "github.com/stokaro/vigil/migration/schemadiff/types"
	"github.com/stokaro/vigil/store"
)

type fakeSource struct {
	snap *types.DBSchema
	err  error
}

func (f *fakeSource) ReadSchema() (*types.DBSchema, error) { return f.snap, f.err }

type fakeStore struct {
	current *store.SchemaVersion
	logs    []store.DriftLog
	nextID  int64
}

func (f *fakeStore) CurrentVersion(context.Context) (*store.SchemaVersion, error) {
	return f.current, nil
}

func (f *fakeStore) InsertDriftLog(_ context.Context, d *store.DriftLog) (int64, error) {
	f.nextID++
	clone := *d
	clone.ID = f.nextID
	f.logs = append(f.logs, clone)
	return f.nextID, nil
}

func (f *fakeStore) ListDriftLogs(_ context.Context, onlyUnresolved bool) ([]store.DriftLog, error) {
	if !onlyUnresolved {
		return f.logs, nil
	}
	var out []store.DriftLog
	for _, l := range f.logs {
		if !l.Resolved {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeStore) ResolveDriftLog(_ context.Context, id int64, resolvedBy, notes string) error {
	for i := range f.logs {
		if f.logs[i].ID == id {
			f.logs[i].Resolved = true
			f.logs[i].ResolvedBy = &resolvedBy
			f.logs[i].Notes = &notes
			return nil
		}
	}
	return store.ErrNotFound
}

// baseline builds a stored current version from the given snapshot.
func baseline(name string, snap *types.DBSchema) *store.SchemaVersion {
	return &store.SchemaVersion{
		Version:   name,
		Checksum:  must.Must(checksum.Snapshot(snap)),
		Snapshot:  must.Must(json.Marshal(snap)),
		IsCurrent: true,
	}
}

func TestDetect_NoBaseline(t *testing.T) {
	c := qt.New(t)

	detector := drift.NewDetector(&fakeSource{snap: &types.DBSchema{}}, &fakeStore{})
	result, err := detector.Detect(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(result.HasDrift, qt.IsFalse)
	c.Assert(result.Warning, qt.Contains, "no baseline version")
}

func TestDetect_NoDrift(t *testing.T) {
	c := qt.New(t)

	snap := &types.DBSchema{
		Tables: []types.DBTable{{Name: "clientes", Columns: []types.DBColumn{{Name: "id"}}}},
	}
	st := &fakeStore{current: baseline("1.0.0", snap)}

	detector := drift.NewDetector(&fakeSource{snap: snap}, st)
	result, err := detector.Detect(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(result.HasDrift, qt.IsFalse)
	c.Assert(result.ExpectedVersion, qt.Equals, "1.0.0")
	c.Assert(result.ActualChecksum, qt.Equals, result.ExpectedChecksum)
	c.Assert(st.logs, qt.HasLen, 0)
}

func TestDetect_ExtensionVersionBumpIsNotDrift(t *testing.T) {
	c := qt.New(t)

	// A managed server upgrading plpgsql must not report drift on every
	// check: the diff would be empty, so nothing could ever resolve it.
	stored := &types.DBSchema{
		Tables:     []types.DBTable{{Name: "clientes", Columns: []types.DBColumn{{Name: "id"}}}},
		Extensions: []types.DBExtension{{Name: "plpgsql", Version: "1.0"}},
	}
	live := &types.DBSchema{
		Tables:     []types.DBTable{{Name: "clientes", Columns: []types.DBColumn{{Name: "id"}}}},
		Extensions: []types.DBExtension{{Name: "plpgsql", Version: "1.1"}},
	}
	st := &fakeStore{current: baseline("1.0.0", stored)}

	detector := drift.NewDetector(&fakeSource{snap: live}, st)
	for i := 0; i < 3; i++ {
		result, err := detector.Detect(context.Background())
		c.Assert(err, qt.IsNil)
		c.Assert(result.HasDrift, qt.IsFalse)
	}
	c.Assert(st.logs, qt.HasLen, 0)
}

func TestDetect_ExporterFailureLeavesNoLog(t *testing.T) {
	c := qt.New(t)

	snap := &types.DBSchema{
		Tables: []types.DBTable{{Name: "clientes", Columns: []types.DBColumn{{Name: "id"}}}},
	}
	st := &fakeStore{current: baseline("1.0.0", snap)}

	detector := drift.NewDetector(&fakeSource{err: errors.New("connection reset")}, st)
	result, err := detector.Detect(context.Background())
	c.Assert(err, qt.ErrorMatches, ".*connection reset.*")
	c.Assert(result, qt.IsNil)
	c.Assert(st.logs, qt.HasLen, 0)
}

func TestDetect_NewTableRecordsDriftLog(t *testing.T) {
	c := qt.New(t)

	stored := &types.DBSchema{
		Tables: []types.DBTable{
			{Name: "clientes", Columns: []types.DBColumn{{Name: "id"}}},
			{Name: "produtos", Columns: []types.DBColumn{{Name: "id"}}},
		},
	}
	live := &types.DBSchema{
		Tables: []types.DBTable{
			{Name: "clientes", Columns: []types.DBColumn{{Name: "id"}}},
			{Name: "produtos", Columns: []types.DBColumn{{Name: "id"}}},
			{Name: "pedidos", Columns: []types.DBColumn{{Name: "id"}}},
		},
	}
	st := &fakeStore{current: baseline("1.0.0", stored)}

	detector := drift.NewDetector(&fakeSource{snap: live}, st)
	result, err := detector.Detect(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(result.HasDrift, qt.IsTrue)
	c.Assert(result.ExpectedVersion, qt.Equals, "1.0.0")
	c.Assert(result.Differences.Tables.Added, qt.DeepEquals, []string{"pedidos"})
	c.Assert(result.Severity, qt.Equals, difftypes.SeverityLow)
	c.Assert(result.DriftLogID, qt.Equals, int64(1))

	// Exactly one drift log was persisted, carrying the serialized diff.
	c.Assert(st.logs, qt.HasLen, 1)
	c.Assert(st.logs[0].ExpectedVersion, qt.Equals, "1.0.0")
	c.Assert(st.logs[0].Severity, qt.Equals, "low")

	var recorded difftypes.SchemaDiff
	c.Assert(json.Unmarshal(st.logs[0].Differences, &recorded), qt.IsNil)
	c.Assert(recorded.Tables.Added, qt.DeepEquals, []string{"pedidos"})
}

func TestDetect_RemovedTableIsCritical(t *testing.T) {
	c := qt.New(t)

	stored := &types.DBSchema{
		Tables: []types.DBTable{
			{Name: "clientes", Columns: []types.DBColumn{{Name: "id"}}},
			{Name: "produtos", Columns: []types.DBColumn{{Name: "id"}}},
		},
	}
	live := &types.DBSchema{
		Tables: []types.DBTable{{Name: "clientes", Columns: []types.DBColumn{{Name: "id"}}}},
	}
	st := &fakeStore{current: baseline("2.0.0", stored)}

	detector := drift.NewDetector(&fakeSource{snap: live}, st)
	result, err := detector.Detect(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(result.HasDrift, qt.IsTrue)
	c.Assert(result.Severity, qt.Equals, difftypes.SeverityCritical)
	c.Assert(result.Differences.Tables.Removed, qt.DeepEquals, []string{"produtos"})
}

func TestResolve(t *testing.T) {
	c := qt.New(t)

	st := &fakeStore{logs: []store.DriftLog{{ID: 7}}}
	st.nextID = 7

	detector := drift.NewDetector(&fakeSource{}, st)
	c.Assert(detector.Resolve(context.Background(), 7, "alice", "expected change"), qt.IsNil)
	c.Assert(st.logs[0].Resolved, qt.IsTrue)
	c.Assert(*st.logs[0].ResolvedBy, qt.Equals, "alice")

	unresolved, err := detector.ListLogs(context.Background(), true)
	c.Assert(err, qt.IsNil)
	c.Assert(unresolved, qt.HasLen, 0)
}
