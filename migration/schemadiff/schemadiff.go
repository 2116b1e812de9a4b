// Package schemadiff compares two schema snapshots and reports the
// differences per object category.
//
// The expected snapshot is the stored baseline (a schema version); the
// actual snapshot is what introspection currently sees. The diff is pure
// data: persisting drift logs or rendering migration SQL are the callers'
// concerns.
package schemadiff

import (
	"github.com/stokaro/vigil/config"
	"github.com/stokaro/vigil/dbschema/types"
	"github.com/stokaro/vigil/migration/schemadiff/internal/compare"
	difftypes "github.com/stokaro/vigil/migration/schemadiff/types"
)

// Compare performs schema comparison between the expected and actual
// snapshots using default options (ignores the "plpgsql" extension).
// For custom configuration use CompareWithOptions.
func Compare(expected, actual *types.DBSchema) *difftypes.SchemaDiff {
	return CompareWithOptions(expected, actual, nil)
}

// CompareWithOptions performs schema comparison with custom configuration
// options.
//
// Parameters:
//   - expected: baseline snapshot, usually from a stored schema version
//   - actual: current snapshot from database introspection
//   - opts: comparison options (nil for defaults)
//
// Returns a SchemaDiff containing all identified differences. The result is
// deterministic: every category is sorted by identity key.
func CompareWithOptions(expected, actual *types.DBSchema, opts *config.CompareOptions) *difftypes.SchemaDiff {
	diff := &difftypes.SchemaDiff{}

	// Compare tables and their column structures
	compare.Tables(expected, actual, diff)

	// Compare custom function definitions
	compare.Functions(expected, actual, diff)

	// Compare RLS policies keyed by table.policy
	compare.Policies(expected, actual, diff)

	// Compare table triggers keyed by table.trigger
	compare.Triggers(expected, actual, diff)

	// Compare index definitions
	compare.Indexes(expected, actual, diff)

	// Compare extensions with configuration options
	compare.Extensions(expected, actual, diff, opts)

	// Compare enum types and values
	compare.Enums(expected, actual, diff)

	return diff
}
