package types_test

import (
	"encoding/json"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/vigil/dbschema/types"
)

func TestUnmarshal_LegacyNameOnlySnapshot(t *testing.T) {
	c := qt.New(t)

	// Snapshots ingested before structured capture stored bare name strings.
	raw := `{
		"tables": ["clientes", "produtos"],
		"functions": ["touch_updated_at"],
		"rls_policies": ["clientes.clientes_select"],
		"extensions": ["uuid-ossp"]
	}`

	var snap types.DBSchema
	c.Assert(json.Unmarshal([]byte(raw), &snap), qt.IsNil)

	c.Assert(snap.Tables, qt.HasLen, 2)
	c.Assert(snap.Tables[0].Name, qt.Equals, "clientes")
	c.Assert(snap.Tables[0].NameOnly, qt.IsTrue)
	c.Assert(snap.Tables[0].Columns, qt.HasLen, 0)

	c.Assert(snap.Functions[0].Name, qt.Equals, "touch_updated_at")
	c.Assert(snap.Functions[0].NameOnly, qt.IsTrue)
	c.Assert(snap.RLSPolicies[0].Name, qt.Equals, "clientes.clientes_select")
	c.Assert(snap.Extensions[0].NameOnly, qt.IsTrue)
}

func TestUnmarshal_StructuredSnapshot(t *testing.T) {
	c := qt.New(t)

	raw := `{
		"tables": [{"name": "clientes", "columns": [{"name": "id", "data_type": "integer"}]}],
		"enums": [{"name": "status", "values": ["open", "closed"]}]
	}`

	var snap types.DBSchema
	c.Assert(json.Unmarshal([]byte(raw), &snap), qt.IsNil)

	c.Assert(snap.Tables, qt.HasLen, 1)
	c.Assert(snap.Tables[0].NameOnly, qt.IsFalse)
	c.Assert(snap.Tables[0].Columns[0].DataType, qt.Equals, "integer")
	c.Assert(snap.Enums[0].Values, qt.DeepEquals, []string{"open", "closed"})
}

func TestUnmarshal_MixedForms(t *testing.T) {
	c := qt.New(t)

	// One snapshot may mix both forms after a partial re-capture.
	raw := `{"tables": ["legacy_table", {"name": "clientes", "rls_enabled": true}]}`

	var snap types.DBSchema
	c.Assert(json.Unmarshal([]byte(raw), &snap), qt.IsNil)
	c.Assert(snap.Tables[0].NameOnly, qt.IsTrue)
	c.Assert(snap.Tables[1].NameOnly, qt.IsFalse)
	c.Assert(snap.Tables[1].RLSEnabled, qt.IsTrue)
}

func TestMarshal_NameOnlyFlagIsNotSerialized(t *testing.T) {
	c := qt.New(t)

	raw, err := json.Marshal(types.DBTable{Name: "clientes", NameOnly: true})
	c.Assert(err, qt.IsNil)
	c.Assert(string(raw), qt.Not(qt.Contains), "NameOnly")
	c.Assert(string(raw), qt.Not(qt.Contains), "nameOnly")
}
