package checksum_test

import (
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/vigil/core/checksum"
	"github.com/stokaro/vigil/dbschema/types"
)

func TestText(t *testing.T) {
	c := qt.New(t)

	digest := checksum.Text("CREATE TABLE users (id serial);")
	c.Assert(digest, qt.HasLen, 64)
	c.Assert(digest, qt.Equals, checksum.Text("CREATE TABLE users (id serial);"))
	c.Assert(digest, qt.Not(qt.Equals), checksum.Text("CREATE TABLE users (id serial)"))
}

func TestSnapshot_Deterministic(t *testing.T) {
	c := qt.New(t)

	snap := &types.DBSchema{
		Tables: []types.DBTable{
			{Name: "users", Columns: []types.DBColumn{
				{Name: "id", DataType: "integer"},
				{Name: "email", DataType: "text"},
			}},
		},
		Extensions: []types.DBExtension{{Name: "uuid-ossp"}},
	}

	first, err := checksum.Snapshot(snap)
	c.Assert(err, qt.IsNil)
	second, err := checksum.Snapshot(snap)
	c.Assert(err, qt.IsNil)
	c.Assert(first, qt.Equals, second)
	c.Assert(first, qt.HasLen, 64)
}

func TestSnapshot_OrderInsensitive(t *testing.T) {
	c := qt.New(t)

	// Catalog queries carry no ordering guarantee, so two exports of the
	// same schema may list objects in different orders.
	a := &types.DBSchema{
		Tables: []types.DBTable{
			{Name: "orders", Columns: []types.DBColumn{{Name: "id"}, {Name: "total"}}},
			{Name: "users", Columns: []types.DBColumn{{Name: "id"}}},
		},
		Enums: []types.DBEnum{{Name: "status", Values: []string{"open", "closed"}}},
	}
	b := &types.DBSchema{
		Tables: []types.DBTable{
			{Name: "users", Columns: []types.DBColumn{{Name: "id"}}},
			{Name: "orders", Columns: []types.DBColumn{{Name: "total"}, {Name: "id"}}},
		},
		Enums: []types.DBEnum{{Name: "status", Values: []string{"open", "closed"}}},
	}

	first, err := checksum.Snapshot(a)
	c.Assert(err, qt.IsNil)
	second, err := checksum.Snapshot(b)
	c.Assert(err, qt.IsNil)
	c.Assert(first, qt.Equals, second)
}

func TestSnapshot_DetectsChange(t *testing.T) {
	c := qt.New(t)

	base := &types.DBSchema{
		Tables: []types.DBTable{{Name: "users", Columns: []types.DBColumn{{Name: "id", DataType: "integer"}}}},
	}
	changed := &types.DBSchema{
		Tables: []types.DBTable{{Name: "users", Columns: []types.DBColumn{{Name: "id", DataType: "bigint"}}}},
	}

	first, err := checksum.Snapshot(base)
	c.Assert(err, qt.IsNil)
	second, err := checksum.Snapshot(changed)
	c.Assert(err, qt.IsNil)
	c.Assert(first, qt.Not(qt.Equals), second)
}

func TestSnapshot_ExtensionVersionNeutral(t *testing.T) {
	c := qt.New(t)

	// The comparator tracks extensions by name only, so the digest must not
	// move on version or schema metadata; otherwise a managed-server
	// extension upgrade reads as drift with an empty diff.
	base := &types.DBSchema{
		Tables:     []types.DBTable{{Name: "users", Columns: []types.DBColumn{{Name: "id", DataType: "integer"}}}},
		Extensions: []types.DBExtension{{Name: "uuid-ossp", Version: "1.1", Schema: "public"}},
	}
	bumped := &types.DBSchema{
		Tables:     []types.DBTable{{Name: "users", Columns: []types.DBColumn{{Name: "id", DataType: "integer"}}}},
		Extensions: []types.DBExtension{{Name: "uuid-ossp", Version: "1.2", Schema: "extensions"}},
	}

	first, err := checksum.Snapshot(base)
	c.Assert(err, qt.IsNil)
	second, err := checksum.Snapshot(bumped)
	c.Assert(err, qt.IsNil)
	c.Assert(first, qt.Equals, second)

	// A genuinely new extension still changes the digest.
	added := &types.DBSchema{
		Tables:     bumped.Tables,
		Extensions: append([]types.DBExtension{{Name: "pgcrypto"}}, bumped.Extensions...),
	}
	third, err := checksum.Snapshot(added)
	c.Assert(err, qt.IsNil)
	c.Assert(third, qt.Not(qt.Equals), first)
}

func TestSnapshot_IgnoredExtensionNeutral(t *testing.T) {
	c := qt.New(t)

	without := &types.DBSchema{
		Tables: []types.DBTable{{Name: "users", Columns: []types.DBColumn{{Name: "id", DataType: "integer"}}}},
	}
	with := &types.DBSchema{
		Tables:     without.Tables,
		Extensions: []types.DBExtension{{Name: "plpgsql", Version: "1.0"}},
	}

	first, err := checksum.Snapshot(without)
	c.Assert(err, qt.IsNil)
	second, err := checksum.Snapshot(with)
	c.Assert(err, qt.IsNil)
	c.Assert(first, qt.Equals, second)
}
