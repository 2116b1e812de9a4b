// Package suggest renders a schema diff into advisory migration SQL.
//
// The output is best effort and intentionally non-authoritative: additions
// with a complete structured payload (extensions, enums) become concrete
// DDL, everything else becomes a TODO placeholder for the operator, and
// removals are always emitted as commented-out DROP statements. The tool
// never generates a live destructive statement.
package suggest

import (
	"fmt"
	"strings"
	"time"

	"github.com/stokaro/vigil/dbschema/types"
	difftypes "github.com/stokaro/vigil/migration/schemadiff/types"
)

// AdvisorySQL is migration SQL intended for human review. It is a distinct
// type so it cannot be passed where executable SQL is expected; the safety
// gate refuses to run it without the operator explicitly copying it into an
// execute request.
type AdvisorySQL string

// Render produces advisory migration SQL for the given diff. The actual
// snapshot supplies the structured payloads for added entities; pass nil
// when only placeholders are needed.
func Render(diff *difftypes.SchemaDiff, actual *types.DBSchema) AdvisorySQL {
	var b strings.Builder

	b.WriteString("-- Advisory migration SQL generated by vigil\n")
	b.WriteString(fmt.Sprintf("-- Generated at: %s\n", time.Now().UTC().Format(time.RFC3339)))
	b.WriteString("-- Review every statement before executing. Destructive\n")
	b.WriteString("-- operations are commented out and must be enabled by hand.\n")

	if !diff.HasChanges() {
		b.WriteString("\n-- No differences detected.\n")
		return AdvisorySQL(b.String())
	}

	renderExtensions(&b, diff, actual)
	renderEnums(&b, diff, actual)
	renderPlaceholders(&b, "table", diff.Tables.Added)
	renderPlaceholders(&b, "function", diff.Functions.Added)
	renderPlaceholders(&b, "policy", diff.Policies.Added)
	renderPlaceholders(&b, "trigger", diff.Triggers.Added)
	renderIndexes(&b, diff, actual)
	renderRemovals(&b, diff)

	return AdvisorySQL(b.String())
}

func renderExtensions(b *strings.Builder, diff *difftypes.SchemaDiff, actual *types.DBSchema) {
	if len(diff.Extensions.Added) == 0 {
		return
	}
	b.WriteString("\n-- Extensions\n")
	for _, name := range diff.Extensions.Added {
		if ext := findExtension(actual, name); ext != nil && ext.Schema != "" {
			b.WriteString(fmt.Sprintf("CREATE EXTENSION IF NOT EXISTS %q WITH SCHEMA %q;\n", name, ext.Schema))
			continue
		}
		b.WriteString(fmt.Sprintf("CREATE EXTENSION IF NOT EXISTS %q;\n", name))
	}
}

func renderEnums(b *strings.Builder, diff *difftypes.SchemaDiff, actual *types.DBSchema) {
	if len(diff.Enums.Added) == 0 && len(diff.EnumsDetail) == 0 {
		return
	}
	b.WriteString("\n-- Enum types\n")
	for _, name := range diff.Enums.Added {
		enum := findEnum(actual, name)
		if enum == nil || len(enum.Values) == 0 {
			b.WriteString(fmt.Sprintf("-- TODO: CREATE TYPE %s AS ENUM (...); -- values unknown\n", name))
			continue
		}
		quoted := make([]string, len(enum.Values))
		for i, v := range enum.Values {
			quoted[i] = "'" + strings.ReplaceAll(v, "'", "''") + "'"
		}
		b.WriteString(fmt.Sprintf("CREATE TYPE %s AS ENUM (%s);\n", name, strings.Join(quoted, ", ")))
	}
	for _, enumDiff := range diff.EnumsDetail {
		for _, v := range enumDiff.ValuesAdded {
			b.WriteString(fmt.Sprintf("ALTER TYPE %s ADD VALUE IF NOT EXISTS '%s';\n", enumDiff.EnumName, strings.ReplaceAll(v, "'", "''")))
		}
		if len(enumDiff.ValuesRemoved) > 0 {
			b.WriteString(fmt.Sprintf("-- WARNING: cannot remove enum values %v from %s without recreating the type\n",
				enumDiff.ValuesRemoved, enumDiff.EnumName))
		}
	}
}

func renderPlaceholders(b *strings.Builder, kind string, added []string) {
	if len(added) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("\n-- New %ss\n", kind))
	for _, name := range added {
		b.WriteString(fmt.Sprintf("-- TODO: supply CREATE statement for %s %q\n", kind, name))
	}
}

func renderIndexes(b *strings.Builder, diff *difftypes.SchemaDiff, actual *types.DBSchema) {
	if len(diff.Indexes.Added) == 0 {
		return
	}
	b.WriteString("\n-- New indexes\n")
	for _, name := range diff.Indexes.Added {
		if idx := findIndex(actual, name); idx != nil && idx.Definition != "" {
			// The introspected definition is reference only; index creation
			// still needs operator review for lock impact.
			b.WriteString(fmt.Sprintf("-- TODO: review and apply: %s;\n", strings.TrimSuffix(idx.Definition, ";")))
			continue
		}
		b.WriteString(fmt.Sprintf("-- TODO: supply CREATE INDEX statement for %q\n", name))
	}
}

// renderRemovals emits every removal as a commented-out DROP. These lines
// must never be produced as live DDL.
func renderRemovals(b *strings.Builder, diff *difftypes.SchemaDiff) {
	type removal struct {
		keys []string
		stmt func(key string) string
	}
	removals := []removal{
		{diff.Tables.Removed, func(k string) string { return fmt.Sprintf("DROP TABLE %s;", k) }},
		{diff.Functions.Removed, func(k string) string { return fmt.Sprintf("DROP FUNCTION %s;", k) }},
		{diff.Policies.Removed, dropPolicy},
		{diff.Triggers.Removed, dropTrigger},
		{diff.Indexes.Removed, func(k string) string { return fmt.Sprintf("DROP INDEX %s;", k) }},
		{diff.Extensions.Removed, func(k string) string { return fmt.Sprintf("DROP EXTENSION %q;", k) }},
		{diff.Enums.Removed, func(k string) string { return fmt.Sprintf("DROP TYPE %s;", k) }},
	}

	any := false
	for _, r := range removals {
		if len(r.keys) > 0 {
			any = true
		}
	}
	if !any {
		return
	}

	b.WriteString("\n-- Removals (commented out; enable only after review)\n")
	for _, r := range removals {
		for _, key := range r.keys {
			b.WriteString("-- " + r.stmt(key) + "\n")
		}
	}
}

// dropPolicy splits the "table.policy" composite key back into the DROP
// POLICY form, which requires both names.
func dropPolicy(key string) string {
	table, name, ok := strings.Cut(key, ".")
	if !ok {
		return fmt.Sprintf("DROP POLICY %s; -- table unknown (legacy snapshot)", key)
	}
	return fmt.Sprintf("DROP POLICY %s ON %s;", name, table)
}

func dropTrigger(key string) string {
	table, name, ok := strings.Cut(key, ".")
	if !ok {
		return fmt.Sprintf("DROP TRIGGER %s; -- table unknown (legacy snapshot)", key)
	}
	return fmt.Sprintf("DROP TRIGGER %s ON %s;", name, table)
}

func findExtension(snap *types.DBSchema, name string) *types.DBExtension {
	if snap == nil {
		return nil
	}
	for i := range snap.Extensions {
		if snap.Extensions[i].Name == name {
			return &snap.Extensions[i]
		}
	}
	return nil
}

func findEnum(snap *types.DBSchema, name string) *types.DBEnum {
	if snap == nil {
		return nil
	}
	for i := range snap.Enums {
		if snap.Enums[i].Name == name {
			return &snap.Enums[i]
		}
	}
	return nil
}

func findIndex(snap *types.DBSchema, name string) *types.DBIndex {
	if snap == nil {
		return nil
	}
	for i := range snap.Indexes {
		if snap.Indexes[i].Name == name {
			return &snap.Indexes[i]
		}
	}
	return nil
}
