package suggest_test

import (
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/vigil/dbschema/types"
	"github.com/stokaro/vigil/migration/schemadiff"
	difftypes "github.com/stokaro/vigil/migration/schemadiff/types"
	"github.com/stokaro/vigil/migration/suggest"
)

func TestRender_NoChanges(t *testing.T) {
	c := qt.New(t)

	sql := string(suggest.Render(&difftypes.SchemaDiff{}, nil))
	c.Assert(sql, qt.Contains, "-- No differences detected.")
}

func TestRender_AddedExtensionAndEnum(t *testing.T) {
	c := qt.New(t)

	expected := &types.DBSchema{}
	actual := &types.DBSchema{
		Extensions: []types.DBExtension{{Name: "uuid-ossp", Schema: "public"}},
		Enums:      []types.DBEnum{{Name: "status", Values: []string{"open", "closed"}}},
	}

	diff := schemadiff.Compare(expected, actual)
	sql := string(suggest.Render(diff, actual))

	c.Assert(sql, qt.Contains, `CREATE EXTENSION IF NOT EXISTS "uuid-ossp" WITH SCHEMA "public";`)
	c.Assert(sql, qt.Contains, "CREATE TYPE status AS ENUM ('open', 'closed');")
}

func TestRender_EnumValueAdded(t *testing.T) {
	c := qt.New(t)

	expected := &types.DBSchema{Enums: []types.DBEnum{{Name: "status", Values: []string{"open"}}}}
	actual := &types.DBSchema{Enums: []types.DBEnum{{Name: "status", Values: []string{"open", "closed"}}}}

	sql := string(suggest.Render(schemadiff.Compare(expected, actual), actual))
	c.Assert(sql, qt.Contains, "ALTER TYPE status ADD VALUE IF NOT EXISTS 'closed';")
}

func TestRender_AddedTableIsPlaceholder(t *testing.T) {
	c := qt.New(t)

	expected := &types.DBSchema{}
	actual := &types.DBSchema{Tables: []types.DBTable{{Name: "pedidos"}}}

	sql := string(suggest.Render(schemadiff.Compare(expected, actual), actual))
	c.Assert(sql, qt.Contains, `-- TODO: supply CREATE statement for table "pedidos"`)
}

func TestRender_RemovalsAreCommentedOut(t *testing.T) {
	c := qt.New(t)

	expected := &types.DBSchema{
		Tables:      []types.DBTable{{Name: "legacy"}},
		RLSPolicies: []types.DBRLSPolicy{{Name: "legacy_select", Table: "legacy"}},
		Triggers:    []types.DBTrigger{{Name: "touch", Table: "legacy"}},
	}
	actual := &types.DBSchema{}

	sql := string(suggest.Render(schemadiff.Compare(expected, actual), actual))
	c.Assert(sql, qt.Contains, "-- DROP TABLE legacy;")
	c.Assert(sql, qt.Contains, "-- DROP POLICY legacy_select ON legacy;")
	c.Assert(sql, qt.Contains, "-- DROP TRIGGER touch ON legacy;")

	// No removal may appear as a live statement.
	for _, line := range strings.Split(sql, "\n") {
		if strings.Contains(line, "DROP ") {
			c.Assert(strings.HasPrefix(strings.TrimSpace(line), "--"), qt.IsTrue,
				qt.Commentf("live DROP emitted: %q", line))
		}
	}
}

func TestRender_AddedIndexUsesDefinition(t *testing.T) {
	c := qt.New(t)

	expected := &types.DBSchema{}
	actual := &types.DBSchema{Indexes: []types.DBIndex{{
		Name:       "users_email_idx",
		Definition: "CREATE UNIQUE INDEX users_email_idx ON users (email)",
	}}}

	sql := string(suggest.Render(schemadiff.Compare(expected, actual), actual))
	c.Assert(sql, qt.Contains, "-- TODO: review and apply: CREATE UNIQUE INDEX users_email_idx ON users (email);")
}
