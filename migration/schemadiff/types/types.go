package types

// Severity classifies how dangerous a set of schema differences is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// DiffCategory is the uniform shape of differences within one tracked object
// category (tables, functions, policies, triggers, indexes, extensions,
// enums). Identity is a stable string key: the object name, or the
// "table.name" composite for table-scoped objects such as policies and
// triggers.
type DiffCategory struct {
	// Added contains keys present in the actual snapshot but not the
	// expected one.
	Added []string `json:"added"`

	// Removed contains keys present in the expected snapshot but not the
	// actual one (potentially dangerous - data or behavior loss).
	Removed []string `json:"removed"`

	// Modified contains keys present in both snapshots whose structured
	// payloads differ. Entries ingested from legacy name-only snapshots are
	// never reported here because there is no payload to compare.
	Modified []string `json:"modified"`
}

// HasChanges returns true if the category contains any differences.
func (c DiffCategory) HasChanges() bool {
	return len(c.Added) > 0 || len(c.Removed) > 0 || len(c.Modified) > 0
}

// Count returns the total number of changes in the category.
func (c DiffCategory) Count() int {
	return len(c.Added) + len(c.Removed) + len(c.Modified)
}

// SchemaDiff represents the differences between two schema snapshots.
//
// Every tracked category uses the same DiffCategory shape so comparison
// semantics are identical across categories. Column-level and enum-value
// detail for modified entries is carried separately in TablesDetail and
// EnumsDetail.
type SchemaDiff struct {
	Tables     DiffCategory `json:"tables"`
	Functions  DiffCategory `json:"functions"`
	Policies   DiffCategory `json:"policies"`
	Triggers   DiffCategory `json:"triggers"`
	Indexes    DiffCategory `json:"indexes"`
	Extensions DiffCategory `json:"extensions"`
	Enums      DiffCategory `json:"enums"`

	// TablesDetail carries column-level detail for every entry in
	// Tables.Modified.
	TablesDetail []TableDiff `json:"tables_detail,omitempty"`

	// EnumsDetail carries value-level detail for every entry in
	// Enums.Modified.
	EnumsDetail []EnumDiff `json:"enums_detail,omitempty"`
}

// TableDiff represents structural differences within a specific table.
type TableDiff struct {
	// TableName is the name of the table being modified
	TableName string `json:"table_name"`

	// ColumnsAdded contains names of columns present only in the actual snapshot
	ColumnsAdded []string `json:"columns_added"`

	// ColumnsRemoved contains names of columns present only in the expected
	// snapshot (potentially dangerous - may cause data loss)
	ColumnsRemoved []string `json:"columns_removed"`

	// ColumnsModified contains detailed information about columns that exist
	// in both snapshots but with different properties
	ColumnsModified []ColumnDiff `json:"columns_modified"`
}

// ColumnDiff represents property changes within a column.
//
// Each change is a key-value pair showing the transition from the expected
// value to the actual value, e.g. "type": "VARCHAR(100) -> VARCHAR(255)".
type ColumnDiff struct {
	// ColumnName is the name of the column being modified
	ColumnName string `json:"column_name"`

	// Changes maps change types to their old->new value transitions
	Changes map[string]string `json:"changes"`
}

// EnumDiff represents changes to enum type values.
type EnumDiff struct {
	// EnumName is the name of the enum type being modified
	EnumName string `json:"enum_name"`

	// ValuesAdded contains enum values present only in the actual snapshot
	ValuesAdded []string `json:"values_added"`

	// ValuesRemoved contains enum values present only in the expected
	// snapshot (PostgreSQL cannot drop enum values without recreating the type)
	ValuesRemoved []string `json:"values_removed"`
}

// HasChanges returns true if the diff contains any schema changes.
func (d *SchemaDiff) HasChanges() bool {
	for _, c := range d.categories() {
		if c.HasChanges() {
			return true
		}
	}
	return false
}

// TotalChanges returns the total number of changes across all categories.
func (d *SchemaDiff) TotalChanges() int {
	total := 0
	for _, c := range d.categories() {
		total += c.Count()
	}
	return total
}

// ByCategory returns per-category change counts for categories that have
// changes. Keys match the JSON field names.
func (d *SchemaDiff) ByCategory() map[string]int {
	out := make(map[string]int)
	names := []string{"tables", "functions", "policies", "triggers", "indexes", "extensions", "enums"}
	for i, c := range d.categories() {
		if c.HasChanges() {
			out[names[i]] = c.Count()
		}
	}
	return out
}

// Severity classifies the diff. Removals dominate: dropping a table is
// always critical; losing more than 2 functions or more than 5 policies is
// high; any other removal is medium. A diff with only additions and
// modifications is low.
func (d *SchemaDiff) Severity() Severity {
	switch {
	case len(d.Tables.Removed) > 0:
		return SeverityCritical
	case len(d.Functions.Removed) > 2 || len(d.Policies.Removed) > 5:
		return SeverityHigh
	case d.hasRemovals():
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func (d *SchemaDiff) hasRemovals() bool {
	for _, c := range d.categories() {
		if len(c.Removed) > 0 {
			return true
		}
	}
	return false
}

// categories returns every DiffCategory in a fixed order matching ByCategory.
func (d *SchemaDiff) categories() []DiffCategory {
	return []DiffCategory{d.Tables, d.Functions, d.Policies, d.Triggers, d.Indexes, d.Extensions, d.Enums}
}
