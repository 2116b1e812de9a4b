package version_test

import (
	"context"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/vigil/dbschema/types"
	"github.com/stokaro/vigil/store"
	"github.com/stokaro/vigil/version"
)

type fakeSource struct {
	snap *types.DBSchema
	err  error
}

func (f *fakeSource) ReadSchema() (*types.DBSchema, error) { return f.snap, f.err }

// fakeStore mirrors the store's current-version semantics in memory.
type fakeStore struct {
	versions []store.SchemaVersion
	nextID   int64
}

func (f *fakeStore) InsertVersion(_ context.Context, v *store.SchemaVersion) error {
	for _, existing := range f.versions {
		if existing.Version == v.Version {
			return store.ErrDuplicateVersion
		}
	}
	for i := range f.versions {
		f.versions[i].IsCurrent = false
	}
	f.nextID++
	v.ID = f.nextID
	v.IsCurrent = true
	f.versions = append(f.versions, *v)
	return nil
}

func (f *fakeStore) ListVersions(context.Context) ([]store.SchemaVersion, error) {
	return f.versions, nil
}

func (f *fakeStore) CurrentVersion(context.Context) (*store.SchemaVersion, error) {
	for i := range f.versions {
		if f.versions[i].IsCurrent {
			return &f.versions[i], nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetVersion(_ context.Context, name string) (*store.SchemaVersion, error) {
	for i := range f.versions {
		if f.versions[i].Version == name {
			return &f.versions[i], nil
		}
	}
	return nil, store.ErrVersionNotFound
}

func snapshotWith(tables ...string) *types.DBSchema {
	snap := &types.DBSchema{}
	for _, name := range tables {
		snap.Tables = append(snap.Tables, types.DBTable{
			Name:    name,
			Columns: []types.DBColumn{{Name: "id", DataType: "integer"}},
		})
	}
	return snap
}

func TestCreate(t *testing.T) {
	c := qt.New(t)

	st := &fakeStore{}
	mgr := version.NewManager(&fakeSource{snap: snapshotWith("clientes")}, st)

	created, err := mgr.Create(context.Background(), "1.0.0", "initial baseline")
	c.Assert(err, qt.IsNil)
	c.Assert(created.Version, qt.Equals, "1.0.0")
	c.Assert(created.Checksum, qt.HasLen, 64)
	c.Assert(created.IsCurrent, qt.IsTrue)

	current, err := mgr.Current(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(current.Version, qt.Equals, "1.0.0")
}

func TestCreate_NewVersionDemotesPrevious(t *testing.T) {
	c := qt.New(t)

	st := &fakeStore{}
	mgr := version.NewManager(&fakeSource{snap: snapshotWith("clientes")}, st)

	_, err := mgr.Create(context.Background(), "1.0.0", "baseline")
	c.Assert(err, qt.IsNil)
	_, err = mgr.Create(context.Background(), "1.1.0", "add index")
	c.Assert(err, qt.IsNil)

	current, err := mgr.Current(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(current.Version, qt.Equals, "1.1.0")

	list, err := mgr.List(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(list, qt.HasLen, 2)
	c.Assert(list[0].IsCurrent, qt.IsFalse)
	c.Assert(list[1].IsCurrent, qt.IsTrue)
}

func TestCreate_Validation(t *testing.T) {
	c := qt.New(t)

	mgr := version.NewManager(&fakeSource{snap: snapshotWith("clientes")}, &fakeStore{})

	_, err := mgr.Create(context.Background(), "", "desc")
	c.Assert(errors.Is(err, version.ErrInvalidInput), qt.IsTrue)

	_, err = mgr.Create(context.Background(), "1.0.0", "")
	c.Assert(errors.Is(err, version.ErrInvalidInput), qt.IsTrue)
}

func TestCreate_DuplicateName(t *testing.T) {
	c := qt.New(t)

	mgr := version.NewManager(&fakeSource{snap: snapshotWith("clientes")}, &fakeStore{})

	_, err := mgr.Create(context.Background(), "1.0.0", "baseline")
	c.Assert(err, qt.IsNil)

	_, err = mgr.Create(context.Background(), "1.0.0", "again")
	c.Assert(errors.Is(err, store.ErrDuplicateVersion), qt.IsTrue)
}

func TestCompareVersions(t *testing.T) {
	c := qt.New(t)

	st := &fakeStore{}
	source := &fakeSource{snap: snapshotWith("clientes")}
	mgr := version.NewManager(source, st)

	_, err := mgr.Create(context.Background(), "1.0.0", "baseline")
	c.Assert(err, qt.IsNil)

	source.snap = snapshotWith("clientes", "pedidos")
	_, err = mgr.Create(context.Background(), "1.1.0", "add pedidos")
	c.Assert(err, qt.IsNil)

	result, err := mgr.CompareVersions(context.Background(), "1.0.0", "1.1.0")
	c.Assert(err, qt.IsNil)
	c.Assert(result.Version1, qt.Equals, "1.0.0")
	c.Assert(result.Version2, qt.Equals, "1.1.0")
	c.Assert(result.Differences.Tables.Added, qt.DeepEquals, []string{"pedidos"})
}

func TestCompareVersions_UnknownVersion(t *testing.T) {
	c := qt.New(t)

	mgr := version.NewManager(&fakeSource{snap: snapshotWith("clientes")}, &fakeStore{})

	_, err := mgr.CompareVersions(context.Background(), "1.0.0", "2.0.0")
	c.Assert(errors.Is(err, store.ErrVersionNotFound), qt.IsTrue)

	_, err = mgr.CompareVersions(context.Background(), "", "2.0.0")
	c.Assert(errors.Is(err, version.ErrInvalidInput), qt.IsTrue)
}

func TestCheckUpdate(t *testing.T) {
	c := qt.New(t)

	st := &fakeStore{}
	source := &fakeSource{snap: snapshotWith("clientes")}
	mgr := version.NewManager(source, st)

	// Without a baseline an update is always available.
	check, err := mgr.CheckUpdate(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(check.UpdateAvailable, qt.IsTrue)

	_, err = mgr.Create(context.Background(), "1.0.0", "baseline")
	c.Assert(err, qt.IsNil)

	check, err = mgr.CheckUpdate(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(check.UpdateAvailable, qt.IsFalse)
	c.Assert(check.CurrentVersion, qt.Equals, "1.0.0")

	// A live change flips the flag.
	source.snap = snapshotWith("clientes", "pedidos")
	check, err = mgr.CheckUpdate(context.Background())
	c.Assert(err, qt.IsNil)
	c.Assert(check.UpdateAvailable, qt.IsTrue)
	c.Assert(check.RealChecksum, qt.Not(qt.Equals), check.CurrentChecksum)
}
