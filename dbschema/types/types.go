package types

// DBSchema represents a complete schema snapshot read from a database.
//
// A snapshot captures every object category that vigil tracks for drift
// detection and version comparison. Snapshots are stored as JSONB alongside
// schema versions and compared structurally by the schemadiff package.
type DBSchema struct {
	Tables      []DBTable     `json:"tables"`
	Functions   []DBFunction  `json:"functions"`
	RLSPolicies []DBRLSPolicy `json:"rls_policies"`
	Triggers    []DBTrigger   `json:"triggers"`
	Indexes     []DBIndex     `json:"indexes"`
	Extensions  []DBExtension `json:"extensions"`
	Enums       []DBEnum      `json:"enums"`
	Sequences   []DBSequence  `json:"sequences"`
}

// DBTable represents a database table
type DBTable struct {
	Name       string     `json:"name"`
	Type       string     `json:"type"` // TABLE, VIEW, etc.
	Comment    string     `json:"comment,omitempty"`
	Columns    []DBColumn `json:"columns"`
	RLSEnabled bool       `json:"rls_enabled"`

	// NameOnly marks entries ingested from legacy snapshots that stored a
	// bare table name instead of a structured object. Added/removed
	// detection still works for such entries; modified detection is skipped.
	NameOnly bool `json:"-"`
}

// DBColumn represents a database column
type DBColumn struct {
	Name               string  `json:"name"`
	DataType           string  `json:"data_type"`
	UDTName            string  `json:"udt_name,omitempty"` // For enum-typed columns
	IsNullable         string  `json:"is_nullable"`        // YES/NO
	ColumnDefault      *string `json:"column_default"`
	CharacterMaxLength *int    `json:"character_max_length"`
	NumericPrecision   *int    `json:"numeric_precision"`
	NumericScale       *int    `json:"numeric_scale"`
	OrdinalPosition    int     `json:"ordinal_position"`
	IsPrimaryKey       bool    `json:"is_primary_key"`
	IsUnique           bool    `json:"is_unique"`
}

// DBFunction represents a custom function read from the database
type DBFunction struct {
	Name       string `json:"name"`
	Parameters string `json:"parameters"` // e.g. "tenant_id_param TEXT"
	Returns    string `json:"returns"`    // e.g. "VOID", "TEXT"
	Language   string `json:"language"`   // e.g. "plpgsql", "sql"
	Security   string `json:"security"`   // DEFINER or INVOKER
	Volatility string `json:"volatility"` // STABLE, IMMUTABLE, VOLATILE
	Body       string `json:"body"`

	NameOnly bool `json:"-"`
}

// DBRLSPolicy represents a row-level security policy read from the database.
// Policies are identified by the composite "table.name" key because the same
// policy name may appear on different tables.
type DBRLSPolicy struct {
	Name                string `json:"name"`
	Table               string `json:"table"`
	PolicyFor           string `json:"policy_for"` // ALL, SELECT, INSERT, ...
	ToRoles             string `json:"to_roles"`
	UsingExpression     string `json:"using_expression"`
	WithCheckExpression string `json:"with_check_expression"`

	NameOnly bool `json:"-"`
}

// DBTrigger represents a table trigger
type DBTrigger struct {
	Name        string `json:"name"`
	Table       string `json:"table"`
	Timing      string `json:"timing"` // BEFORE, AFTER, INSTEAD OF
	Events      string `json:"events"` // INSERT, UPDATE, DELETE (comma separated)
	Orientation string `json:"orientation,omitempty"`
	Statement   string `json:"statement"`

	NameOnly bool `json:"-"`
}

// DBIndex represents a database index
type DBIndex struct {
	Name       string `json:"name"`
	TableName  string `json:"table_name"`
	IsUnique   bool   `json:"is_unique"`
	IsPrimary  bool   `json:"is_primary"`
	Definition string `json:"definition"` // Full CREATE INDEX definition

	NameOnly bool `json:"-"`
}

// DBExtension represents an installed PostgreSQL extension
type DBExtension struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	Schema  string `json:"schema,omitempty"`

	NameOnly bool `json:"-"`
}

// DBEnum represents an enum type
type DBEnum struct {
	Name   string   `json:"name"`
	Values []string `json:"values"`

	NameOnly bool `json:"-"`
}

// DBSequence represents a database sequence
type DBSequence struct {
	Name       string `json:"name"`
	DataType   string `json:"data_type,omitempty"`
	StartValue string `json:"start_value,omitempty"`
	Increment  string `json:"increment,omitempty"`
}

// DBInfo contains connection and metadata information
type DBInfo struct {
	Dialect string `json:"dialect"` // always "postgres"
	Version string `json:"version"`
	Schema  string `json:"schema"` // introspected schema, usually "public"
	URL     string `json:"url"`
}

// SchemaReader reads a structured snapshot from a live database
type SchemaReader interface {
	ReadSchema() (*DBSchema, error)
}

// SchemaWriter executes SQL against a live database. Implementations must
// report rows affected so the safety gate can enforce row caps.
type SchemaWriter interface {
	ExecuteSQL(sql string) (rowsAffected int64, err error)
	BeginTransaction() error
	CommitTransaction() error
	RollbackTransaction() error
	CreateSchema(name string) error
	DropSchema(name string) error
}
