package postgres

import (
	"database/sql"
	"fmt"

	"github.com/stokaro/vigil/dbschema/types"
)

// Reader reads schema snapshots from PostgreSQL databases
type Reader struct {
	db     *sql.DB
	schema string
}

// NewReader creates a new PostgreSQL schema reader scoped to one schema
func NewReader(db *sql.DB, schema string) *Reader {
	if schema == "" {
		schema = "public"
	}
	return &Reader{
		db:     db,
		schema: schema,
	}
}

// ReadSchema reads the complete database schema snapshot
func (r *Reader) ReadSchema() (*types.DBSchema, error) {
	schema := &types.DBSchema{}

	tables, err := r.readTables()
	if err != nil {
		return nil, fmt.Errorf("failed to read tables: %w", err)
	}
	schema.Tables = tables

	functions, err := r.readFunctions()
	if err != nil {
		return nil, fmt.Errorf("failed to read functions: %w", err)
	}
	schema.Functions = functions

	policies, err := r.readRLSPolicies()
	if err != nil {
		return nil, fmt.Errorf("failed to read RLS policies: %w", err)
	}
	schema.RLSPolicies = policies

	triggers, err := r.readTriggers()
	if err != nil {
		return nil, fmt.Errorf("failed to read triggers: %w", err)
	}
	schema.Triggers = triggers

	indexes, err := r.readIndexes()
	if err != nil {
		return nil, fmt.Errorf("failed to read indexes: %w", err)
	}
	schema.Indexes = indexes

	extensions, err := r.readExtensions()
	if err != nil {
		return nil, fmt.Errorf("failed to read extensions: %w", err)
	}
	schema.Extensions = extensions

	enums, err := r.readEnums()
	if err != nil {
		return nil, fmt.Errorf("failed to read enums: %w", err)
	}
	schema.Enums = enums

	sequences, err := r.readSequences()
	if err != nil {
		return nil, fmt.Errorf("failed to read sequences: %w", err)
	}
	schema.Sequences = sequences

	r.enhanceTablesWithConstraints(schema.Tables)

	return schema, nil
}

// readTables reads all tables and their columns, excluding vigil's own
// bookkeeping schema.
func (r *Reader) readTables() ([]types.DBTable, error) {
	tablesQuery := `
		SELECT t.table_name, t.table_type,
		       COALESCE(obj_description(c.oid), '') AS table_comment,
		       COALESCE(c.relrowsecurity, FALSE) AS rls_enabled
		FROM information_schema.tables t
		LEFT JOIN pg_class c ON c.relname = t.table_name
		LEFT JOIN pg_namespace n ON n.oid = c.relnamespace AND n.nspname = t.table_schema
		WHERE t.table_schema = $1
		ORDER BY t.table_name`

	rows, err := r.db.Query(tablesQuery, r.schema)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var tables []types.DBTable
	for rows.Next() {
		var table types.DBTable
		if err := rows.Scan(&table.Name, &table.Type, &table.Comment, &table.RLSEnabled); err != nil {
			return nil, fmt.Errorf("failed to scan table: %w", err)
		}
		tables = append(tables, table)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tables: %w", err)
	}

	for i := range tables {
		columns, err := r.readColumns(tables[i].Name)
		if err != nil {
			return nil, fmt.Errorf("failed to read columns for %s: %w", tables[i].Name, err)
		}
		tables[i].Columns = columns
	}

	return tables, nil
}

func (r *Reader) readColumns(tableName string) ([]types.DBColumn, error) {
	columnsQuery := `
		SELECT column_name, data_type, COALESCE(udt_name, ''), is_nullable,
		       column_default, character_maximum_length,
		       numeric_precision, numeric_scale, ordinal_position
		FROM information_schema.columns
		WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`

	rows, err := r.db.Query(columnsQuery, r.schema, tableName)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []types.DBColumn
	for rows.Next() {
		var col types.DBColumn
		if err := rows.Scan(&col.Name, &col.DataType, &col.UDTName, &col.IsNullable,
			&col.ColumnDefault, &col.CharacterMaxLength,
			&col.NumericPrecision, &col.NumericScale, &col.OrdinalPosition); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func (r *Reader) readFunctions() ([]types.DBFunction, error) {
	functionsQuery := `
		SELECT p.proname,
		       pg_get_function_arguments(p.oid),
		       pg_get_function_result(p.oid),
		       l.lanname,
		       CASE WHEN p.prosecdef THEN 'DEFINER' ELSE 'INVOKER' END,
		       CASE p.provolatile WHEN 'i' THEN 'IMMUTABLE' WHEN 's' THEN 'STABLE' ELSE 'VOLATILE' END,
		       COALESCE(p.prosrc, '')
		FROM pg_proc p
		JOIN pg_namespace n ON n.oid = p.pronamespace
		JOIN pg_language l ON l.oid = p.prolang
		WHERE n.nspname = $1 AND p.prokind = 'f'
		ORDER BY p.proname`

	rows, err := r.db.Query(functionsQuery, r.schema)
	if err != nil {
		return nil, fmt.Errorf("failed to query functions: %w", err)
	}
	defer rows.Close()

	var functions []types.DBFunction
	for rows.Next() {
		var fn types.DBFunction
		if err := rows.Scan(&fn.Name, &fn.Parameters, &fn.Returns, &fn.Language,
			&fn.Security, &fn.Volatility, &fn.Body); err != nil {
			return nil, fmt.Errorf("failed to scan function: %w", err)
		}
		functions = append(functions, fn)
	}
	return functions, rows.Err()
}

func (r *Reader) readRLSPolicies() ([]types.DBRLSPolicy, error) {
	policiesQuery := `
		SELECT policyname, tablename, COALESCE(cmd, 'ALL'),
		       COALESCE(array_to_string(roles, ','), 'PUBLIC'),
		       COALESCE(qual, ''), COALESCE(with_check, '')
		FROM pg_policies
		WHERE schemaname = $1
		ORDER BY tablename, policyname`

	rows, err := r.db.Query(policiesQuery, r.schema)
	if err != nil {
		return nil, fmt.Errorf("failed to query RLS policies: %w", err)
	}
	defer rows.Close()

	var policies []types.DBRLSPolicy
	for rows.Next() {
		var p types.DBRLSPolicy
		if err := rows.Scan(&p.Name, &p.Table, &p.PolicyFor, &p.ToRoles,
			&p.UsingExpression, &p.WithCheckExpression); err != nil {
			return nil, fmt.Errorf("failed to scan RLS policy: %w", err)
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

func (r *Reader) readTriggers() ([]types.DBTrigger, error) {
	triggersQuery := `
		SELECT trigger_name, event_object_table, action_timing,
		       string_agg(event_manipulation, ',' ORDER BY event_manipulation),
		       COALESCE(action_orientation, ''),
		       COALESCE(action_statement, '')
		FROM information_schema.triggers
		WHERE trigger_schema = $1
		GROUP BY trigger_name, event_object_table, action_timing, action_orientation, action_statement
		ORDER BY event_object_table, trigger_name`

	rows, err := r.db.Query(triggersQuery, r.schema)
	if err != nil {
		return nil, fmt.Errorf("failed to query triggers: %w", err)
	}
	defer rows.Close()

	var triggers []types.DBTrigger
	for rows.Next() {
		var t types.DBTrigger
		if err := rows.Scan(&t.Name, &t.Table, &t.Timing, &t.Events, &t.Orientation, &t.Statement); err != nil {
			return nil, fmt.Errorf("failed to scan trigger: %w", err)
		}
		triggers = append(triggers, t)
	}
	return triggers, rows.Err()
}

func (r *Reader) readIndexes() ([]types.DBIndex, error) {
	indexesQuery := `
		SELECT i.indexname, i.tablename, ix.indisunique, ix.indisprimary, i.indexdef
		FROM pg_indexes i
		JOIN pg_class c ON c.relname = i.indexname
		JOIN pg_index ix ON ix.indexrelid = c.oid
		WHERE i.schemaname = $1
		ORDER BY i.indexname`

	rows, err := r.db.Query(indexesQuery, r.schema)
	if err != nil {
		return nil, fmt.Errorf("failed to query indexes: %w", err)
	}
	defer rows.Close()

	var indexes []types.DBIndex
	for rows.Next() {
		var idx types.DBIndex
		if err := rows.Scan(&idx.Name, &idx.TableName, &idx.IsUnique, &idx.IsPrimary, &idx.Definition); err != nil {
			return nil, fmt.Errorf("failed to scan index: %w", err)
		}
		indexes = append(indexes, idx)
	}
	return indexes, rows.Err()
}

func (r *Reader) readExtensions() ([]types.DBExtension, error) {
	extensionsQuery := `
		SELECT e.extname, e.extversion, n.nspname
		FROM pg_extension e
		JOIN pg_namespace n ON n.oid = e.extnamespace
		ORDER BY e.extname`

	rows, err := r.db.Query(extensionsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query extensions: %w", err)
	}
	defer rows.Close()

	var extensions []types.DBExtension
	for rows.Next() {
		var ext types.DBExtension
		if err := rows.Scan(&ext.Name, &ext.Version, &ext.Schema); err != nil {
			return nil, fmt.Errorf("failed to scan extension: %w", err)
		}
		extensions = append(extensions, ext)
	}
	return extensions, rows.Err()
}

func (r *Reader) readEnums() ([]types.DBEnum, error) {
	enumsQuery := `
		SELECT t.typname, array_agg(e.enumlabel ORDER BY e.enumsortorder)
		FROM pg_type t
		JOIN pg_enum e ON e.enumtypid = t.oid
		JOIN pg_namespace n ON n.oid = t.typnamespace
		WHERE n.nspname = $1
		GROUP BY t.typname
		ORDER BY t.typname`

	rows, err := r.db.Query(enumsQuery, r.schema)
	if err != nil {
		return nil, fmt.Errorf("failed to query enums: %w", err)
	}
	defer rows.Close()

	var enums []types.DBEnum
	for rows.Next() {
		var enum types.DBEnum
		var values []byte
		if err := rows.Scan(&enum.Name, &values); err != nil {
			return nil, fmt.Errorf("failed to scan enum: %w", err)
		}
		enum.Values = parseTextArray(string(values))
		enums = append(enums, enum)
	}
	return enums, rows.Err()
}

func (r *Reader) readSequences() ([]types.DBSequence, error) {
	sequencesQuery := `
		SELECT sequence_name, data_type, start_value, increment
		FROM information_schema.sequences
		WHERE sequence_schema = $1
		ORDER BY sequence_name`

	rows, err := r.db.Query(sequencesQuery, r.schema)
	if err != nil {
		return nil, fmt.Errorf("failed to query sequences: %w", err)
	}
	defer rows.Close()

	var sequences []types.DBSequence
	for rows.Next() {
		var seq types.DBSequence
		if err := rows.Scan(&seq.Name, &seq.DataType, &seq.StartValue, &seq.Increment); err != nil {
			return nil, fmt.Errorf("failed to scan sequence: %w", err)
		}
		sequences = append(sequences, seq)
	}
	return sequences, rows.Err()
}

// enhanceTablesWithConstraints derives per-column primary key and unique
// flags from constraint metadata.
func (r *Reader) enhanceTablesWithConstraints(tables []types.DBTable) {
	constraintsQuery := `
		SELECT tc.table_name, kcu.column_name, tc.constraint_type
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
		WHERE tc.table_schema = $1 AND tc.constraint_type IN ('PRIMARY KEY', 'UNIQUE')`

	rows, err := r.db.Query(constraintsQuery, r.schema)
	if err != nil {
		return
	}
	defer rows.Close()

	type key struct{ table, column string }
	primary := map[key]bool{}
	unique := map[key]bool{}
	for rows.Next() {
		var tableName, columnName, constraintType string
		if err := rows.Scan(&tableName, &columnName, &constraintType); err != nil {
			return
		}
		k := key{tableName, columnName}
		if constraintType == "PRIMARY KEY" {
			primary[k] = true
		} else {
			unique[k] = true
		}
	}

	for ti := range tables {
		for ci := range tables[ti].Columns {
			k := key{tables[ti].Name, tables[ti].Columns[ci].Name}
			tables[ti].Columns[ci].IsPrimaryKey = primary[k]
			tables[ti].Columns[ci].IsUnique = unique[k]
		}
	}
}

// parseTextArray parses a PostgreSQL text array literal like {a,b,c}.
// Values returned by array_agg over enum labels never contain braces or
// escaped quotes beyond the simple quoted form.
func parseTextArray(s string) []string {
	s = trimBraces(s)
	if s == "" {
		return nil
	}
	var out []string
	var cur []rune
	inQuote := false
	for i := 0; i < len(s); i++ {
		ch := rune(s[i])
		switch {
		case ch == '"':
			inQuote = !inQuote
		case ch == '\\' && i+1 < len(s):
			i++
			cur = append(cur, rune(s[i]))
		case ch == ',' && !inQuote:
			out = append(out, string(cur))
			cur = cur[:0]
		default:
			cur = append(cur, ch)
		}
	}
	out = append(out, string(cur))
	return out
}

func trimBraces(s string) string {
	if len(s) >= 2 && s[0] == '{' && s[len(s)-1] == '}' {
		return s[1 : len(s)-1]
	}
	return s
}
