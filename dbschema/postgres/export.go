package postgres

import (
	"fmt"
	"strings"

	"github.com/stokaro/vigil/dbschema/types"
)

// RenderSQL renders a snapshot into a human-readable SQL text export.
//
// The export is best effort and exists for operator review, backups, and
// download; the authoritative representation of a snapshot is the structured
// form, and checksums are computed over its canonical serialization, not
// over this text.
func RenderSQL(snap *types.DBSchema) string {
	var b strings.Builder

	b.WriteString("-- Schema export generated by vigil\n")

	if len(snap.Extensions) > 0 {
		b.WriteString("\n-- Extensions\n")
		for _, ext := range snap.Extensions {
			b.WriteString(fmt.Sprintf("CREATE EXTENSION IF NOT EXISTS %q;\n", ext.Name))
		}
	}

	if len(snap.Enums) > 0 {
		b.WriteString("\n-- Enum types\n")
		for _, enum := range snap.Enums {
			quoted := make([]string, len(enum.Values))
			for i, v := range enum.Values {
				quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
			}
			b.WriteString(fmt.Sprintf("CREATE TYPE %s AS ENUM (%s);\n", enum.Name, strings.Join(quoted, ", ")))
		}
	}

	if len(snap.Sequences) > 0 {
		b.WriteString("\n-- Sequences\n")
		for _, seq := range snap.Sequences {
			b.WriteString(fmt.Sprintf("CREATE SEQUENCE %s;\n", seq.Name))
		}
	}

	for _, table := range snap.Tables {
		b.WriteString(fmt.Sprintf("\n-- Table: %s\n", table.Name))
		b.WriteString(fmt.Sprintf("CREATE TABLE %s (\n", table.Name))
		for i, col := range table.Columns {
			b.WriteString("    " + renderColumn(col))
			if i < len(table.Columns)-1 {
				b.WriteString(",")
			}
			b.WriteString("\n")
		}
		b.WriteString(");\n")
		if table.RLSEnabled {
			b.WriteString(fmt.Sprintf("ALTER TABLE %s ENABLE ROW LEVEL SECURITY;\n", table.Name))
		}
	}

	if len(snap.Indexes) > 0 {
		b.WriteString("\n-- Indexes\n")
		for _, idx := range snap.Indexes {
			if idx.IsPrimary {
				continue // rendered implicitly by the PK constraint
			}
			if idx.Definition != "" {
				b.WriteString(strings.TrimSuffix(idx.Definition, ";") + ";\n")
			}
		}
	}

	if len(snap.Functions) > 0 {
		b.WriteString("\n-- Functions\n")
		for _, fn := range snap.Functions {
			b.WriteString(fmt.Sprintf("CREATE OR REPLACE FUNCTION %s(%s) RETURNS %s\nLANGUAGE %s SECURITY %s %s AS $$%s$$;\n",
				fn.Name, fn.Parameters, fn.Returns, fn.Language, fn.Security, fn.Volatility, fn.Body))
		}
	}

	if len(snap.Triggers) > 0 {
		b.WriteString("\n-- Triggers\n")
		for _, tr := range snap.Triggers {
			b.WriteString(fmt.Sprintf("CREATE TRIGGER %s %s %s ON %s %s;\n",
				tr.Name, tr.Timing, tr.Events, tr.Table, tr.Statement))
		}
	}

	if len(snap.RLSPolicies) > 0 {
		b.WriteString("\n-- RLS policies\n")
		for _, p := range snap.RLSPolicies {
			b.WriteString(fmt.Sprintf("CREATE POLICY %s ON %s FOR %s TO %s", p.Name, p.Table, p.PolicyFor, p.ToRoles))
			if p.UsingExpression != "" {
				b.WriteString(fmt.Sprintf(" USING (%s)", p.UsingExpression))
			}
			if p.WithCheckExpression != "" {
				b.WriteString(fmt.Sprintf(" WITH CHECK (%s)", p.WithCheckExpression))
			}
			b.WriteString(";\n")
		}
	}

	return b.String()
}

func renderColumn(col types.DBColumn) string {
	var b strings.Builder
	b.WriteString(col.Name + " " + columnType(col))
	if col.IsNullable == "NO" {
		b.WriteString(" NOT NULL")
	}
	if col.ColumnDefault != nil {
		b.WriteString(" DEFAULT " + *col.ColumnDefault)
	}
	if col.IsPrimaryKey {
		b.WriteString(" PRIMARY KEY")
	} else if col.IsUnique {
		b.WriteString(" UNIQUE")
	}
	return b.String()
}

func columnType(col types.DBColumn) string {
	if col.DataType == "USER-DEFINED" && col.UDTName != "" {
		return col.UDTName
	}
	if col.CharacterMaxLength != nil {
		return fmt.Sprintf("%s(%d)", col.DataType, *col.CharacterMaxLength)
	}
	return col.DataType
}

// ExportData dumps every table's rows as a JSON document keyed by table
// name. Used by the backup manager; not intended for large datasets.
func (r *Reader) ExportData(tables []types.DBTable) (string, error) {
	var b strings.Builder
	b.WriteString("{")
	first := true
	for _, table := range tables {
		if table.Type != "BASE TABLE" && table.Type != "TABLE" {
			continue
		}
		var rowsJSON string
		query := fmt.Sprintf(`SELECT COALESCE(json_agg(t), '[]'::json)::text FROM %q.%q t`, r.schema, table.Name)
		if err := r.db.QueryRow(query).Scan(&rowsJSON); err != nil {
			return "", fmt.Errorf("failed to export data for %s: %w", table.Name, err)
		}
		if !first {
			b.WriteString(",")
		}
		first = false
		b.WriteString(fmt.Sprintf("%q:%s", table.Name, rowsJSON))
	}
	b.WriteString("}")
	return b.String(), nil
}
