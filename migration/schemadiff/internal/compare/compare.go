// Package compare implements the per-category comparison engine behind
// schemadiff. Every category goes through the same map-keyed algorithm so
// added/removed/modified semantics are identical across categories.
package compare

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/stokaro/vigil/config"
	dbtypes "github.com/stokaro/vigil/dbschema/types"
	difftypes "github.com/stokaro/vigil/migration/schemadiff/types"
)

// category compares two slices of schema objects keyed by a stable identity.
//
// Added and removed detection needs identity only, so it works for legacy
// name-only entries. Modified detection requires the structured payload on
// both sides and compares a normalized serialization; when either side is
// name-only the entity is silently skipped for modification purposes.
//
// Results are sorted for deterministic output across runs.
func category[T any](expected, actual []T, key func(T) string, nameOnly func(T) bool, normalize func(T) T) difftypes.DiffCategory {
	expM := make(map[string]T, len(expected))
	for _, e := range expected {
		expM[key(e)] = e
	}
	actM := make(map[string]T, len(actual))
	for _, a := range actual {
		actM[key(a)] = a
	}

	cat := difftypes.DiffCategory{Added: []string{}, Removed: []string{}, Modified: []string{}}

	for k := range actM {
		if _, exists := expM[k]; !exists {
			cat.Added = append(cat.Added, k)
		}
	}
	for k := range expM {
		if _, exists := actM[k]; !exists {
			cat.Removed = append(cat.Removed, k)
		}
	}
	for k, e := range expM {
		a, exists := actM[k]
		if !exists || nameOnly(e) || nameOnly(a) {
			continue
		}
		if !payloadEqual(normalize(e), normalize(a)) {
			cat.Modified = append(cat.Modified, k)
		}
	}

	sort.Strings(cat.Added)
	sort.Strings(cat.Removed)
	sort.Strings(cat.Modified)
	return cat
}

// payloadEqual compares the JSON serialization of two normalized payloads.
func payloadEqual(a, b any) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(ab) == string(bb)
}

// tableKey, policyKey etc. produce the stable identity keys per category.
// Table-scoped objects use the "table.name" composite to disambiguate
// same-named objects on different tables.
func policyKey(p dbtypes.DBRLSPolicy) string {
	if p.NameOnly || p.Table == "" {
		return p.Name
	}
	return fmt.Sprintf("%s.%s", p.Table, p.Name)
}

func triggerKey(t dbtypes.DBTrigger) string {
	if t.NameOnly || t.Table == "" {
		return t.Name
	}
	return fmt.Sprintf("%s.%s", t.Table, t.Name)
}

// Tables compares table sets and populates both the category diff and the
// column-level detail for modified tables.
func Tables(expected, actual *dbtypes.DBSchema, diff *difftypes.SchemaDiff) {
	diff.Tables = category(expected.Tables, actual.Tables,
		func(t dbtypes.DBTable) string { return t.Name },
		func(t dbtypes.DBTable) bool { return t.NameOnly },
		normalizeTable)

	for _, name := range diff.Tables.Modified {
		expTable := findTable(expected.Tables, name)
		actTable := findTable(actual.Tables, name)
		if expTable == nil || actTable == nil {
			continue
		}
		diff.TablesDetail = append(diff.TablesDetail, TableColumns(*expTable, *actTable))
	}
}

func findTable(tables []dbtypes.DBTable, name string) *dbtypes.DBTable {
	for i := range tables {
		if tables[i].Name == name {
			return &tables[i]
		}
	}
	return nil
}

// normalizeTable sorts columns by name and clears positional fields so
// introspection ordering does not register as a modification.
func normalizeTable(t dbtypes.DBTable) dbtypes.DBTable {
	cols := append([]dbtypes.DBColumn(nil), t.Columns...)
	for i := range cols {
		cols[i].OrdinalPosition = 0
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })
	t.Columns = cols
	return t
}

// TableColumns performs column-level comparison within one table that exists
// in both snapshots.
func TableColumns(expected, actual dbtypes.DBTable) difftypes.TableDiff {
	tableDiff := difftypes.TableDiff{TableName: actual.Name}

	expCols := make(map[string]dbtypes.DBColumn, len(expected.Columns))
	for _, col := range expected.Columns {
		expCols[col.Name] = col
	}
	actCols := make(map[string]dbtypes.DBColumn, len(actual.Columns))
	for _, col := range actual.Columns {
		actCols[col.Name] = col
	}

	for name := range actCols {
		if _, exists := expCols[name]; !exists {
			tableDiff.ColumnsAdded = append(tableDiff.ColumnsAdded, name)
		}
	}
	for name := range expCols {
		if _, exists := actCols[name]; !exists {
			tableDiff.ColumnsRemoved = append(tableDiff.ColumnsRemoved, name)
		}
	}
	for name, expCol := range expCols {
		if actCol, exists := actCols[name]; exists {
			colDiff := Columns(expCol, actCol)
			if len(colDiff.Changes) > 0 {
				tableDiff.ColumnsModified = append(tableDiff.ColumnsModified, colDiff)
			}
		}
	}

	sort.Strings(tableDiff.ColumnsAdded)
	sort.Strings(tableDiff.ColumnsRemoved)
	sort.Slice(tableDiff.ColumnsModified, func(i, j int) bool {
		return tableDiff.ColumnsModified[i].ColumnName < tableDiff.ColumnsModified[j].ColumnName
	})

	return tableDiff
}

// Columns compares the properties of one column present in both snapshots.
// Each detected change records the "expected -> actual" transition.
func Columns(expected, actual dbtypes.DBColumn) difftypes.ColumnDiff {
	colDiff := difftypes.ColumnDiff{ColumnName: actual.Name, Changes: map[string]string{}}

	if expected.DataType != actual.DataType {
		colDiff.Changes["type"] = fmt.Sprintf("%s -> %s", expected.DataType, actual.DataType)
	}
	if expected.IsNullable != actual.IsNullable {
		colDiff.Changes["nullable"] = fmt.Sprintf("%s -> %s", expected.IsNullable, actual.IsNullable)
	}
	if expected.IsPrimaryKey != actual.IsPrimaryKey {
		colDiff.Changes["primary_key"] = fmt.Sprintf("%t -> %t", expected.IsPrimaryKey, actual.IsPrimaryKey)
	}
	if expected.IsUnique != actual.IsUnique {
		colDiff.Changes["unique"] = fmt.Sprintf("%t -> %t", expected.IsUnique, actual.IsUnique)
	}
	if derefOr(expected.ColumnDefault, "") != derefOr(actual.ColumnDefault, "") {
		colDiff.Changes["default"] = fmt.Sprintf("%s -> %s",
			derefOr(expected.ColumnDefault, "NULL"), derefOr(actual.ColumnDefault, "NULL"))
	}
	if derefIntOr(expected.CharacterMaxLength, 0) != derefIntOr(actual.CharacterMaxLength, 0) {
		colDiff.Changes["max_length"] = fmt.Sprintf("%d -> %d",
			derefIntOr(expected.CharacterMaxLength, 0), derefIntOr(actual.CharacterMaxLength, 0))
	}

	return colDiff
}

func derefOr(v *string, def string) string {
	if v == nil {
		return def
	}
	return *v
}

func derefIntOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// Functions compares custom function definitions.
func Functions(expected, actual *dbtypes.DBSchema, diff *difftypes.SchemaDiff) {
	diff.Functions = category(expected.Functions, actual.Functions,
		func(f dbtypes.DBFunction) string { return f.Name },
		func(f dbtypes.DBFunction) bool { return f.NameOnly },
		func(f dbtypes.DBFunction) dbtypes.DBFunction { return f })
}

// Policies compares RLS policies using the "table.policy" composite key.
func Policies(expected, actual *dbtypes.DBSchema, diff *difftypes.SchemaDiff) {
	diff.Policies = category(expected.RLSPolicies, actual.RLSPolicies,
		policyKey,
		func(p dbtypes.DBRLSPolicy) bool { return p.NameOnly },
		func(p dbtypes.DBRLSPolicy) dbtypes.DBRLSPolicy { return p })
}

// Triggers compares table triggers using the "table.trigger" composite key.
func Triggers(expected, actual *dbtypes.DBSchema, diff *difftypes.SchemaDiff) {
	diff.Triggers = category(expected.Triggers, actual.Triggers,
		triggerKey,
		func(t dbtypes.DBTrigger) bool { return t.NameOnly },
		func(t dbtypes.DBTrigger) dbtypes.DBTrigger { return t })
}

// Indexes compares index definitions.
func Indexes(expected, actual *dbtypes.DBSchema, diff *difftypes.SchemaDiff) {
	diff.Indexes = category(expected.Indexes, actual.Indexes,
		func(i dbtypes.DBIndex) string { return i.Name },
		func(i dbtypes.DBIndex) bool { return i.NameOnly },
		func(i dbtypes.DBIndex) dbtypes.DBIndex { return i })
}

// Extensions compares installed extensions, filtering ignored ones first.
// Extension modification is not reported: version differences between
// environments are routine and never actionable as drift.
func Extensions(expected, actual *dbtypes.DBSchema, diff *difftypes.SchemaDiff, opts *config.CompareOptions) {
	if opts == nil {
		opts = config.DefaultCompareOptions()
	}

	filter := func(in []dbtypes.DBExtension) []dbtypes.DBExtension {
		out := make([]dbtypes.DBExtension, 0, len(in))
		for _, ext := range in {
			if !opts.IsExtensionIgnored(ext.Name) {
				out = append(out, ext)
			}
		}
		return out
	}

	diff.Extensions = category(filter(expected.Extensions), filter(actual.Extensions),
		func(e dbtypes.DBExtension) string { return e.Name },
		func(dbtypes.DBExtension) bool { return true }, // identity only
		func(e dbtypes.DBExtension) dbtypes.DBExtension { return e })
}

// Enums compares enum types and records value-level detail for modified ones.
func Enums(expected, actual *dbtypes.DBSchema, diff *difftypes.SchemaDiff) {
	diff.Enums = category(expected.Enums, actual.Enums,
		func(e dbtypes.DBEnum) string { return e.Name },
		func(e dbtypes.DBEnum) bool { return e.NameOnly },
		func(e dbtypes.DBEnum) dbtypes.DBEnum { return e })

	expM := make(map[string]dbtypes.DBEnum, len(expected.Enums))
	for _, e := range expected.Enums {
		expM[e.Name] = e
	}
	actM := make(map[string]dbtypes.DBEnum, len(actual.Enums))
	for _, e := range actual.Enums {
		actM[e.Name] = e
	}

	for _, name := range diff.Enums.Modified {
		diff.EnumsDetail = append(diff.EnumsDetail, enumValues(expM[name], actM[name]))
	}
}

func enumValues(expected, actual dbtypes.DBEnum) difftypes.EnumDiff {
	enumDiff := difftypes.EnumDiff{EnumName: actual.Name}

	expV := make(map[string]bool, len(expected.Values))
	for _, v := range expected.Values {
		expV[v] = true
	}
	actV := make(map[string]bool, len(actual.Values))
	for _, v := range actual.Values {
		actV[v] = true
	}

	for v := range actV {
		if !expV[v] {
			enumDiff.ValuesAdded = append(enumDiff.ValuesAdded, v)
		}
	}
	for v := range expV {
		if !actV[v] {
			enumDiff.ValuesRemoved = append(enumDiff.ValuesRemoved, v)
		}
	}

	sort.Strings(enumDiff.ValuesAdded)
	sort.Strings(enumDiff.ValuesRemoved)
	return enumDiff
}
