// Package sqlsplit turns raw migration SQL into individual statements with
// enough classification for the safety gate to apply its policy checks.
package sqlsplit

import (
	"strings"
)

// Danger levels assigned to statements. The dry-run executor skips critical
// statements outright; the safety gate rejects them entirely when destructive
// operations are disallowed by policy.
const (
	DangerLow      = "low"
	DangerMedium   = "medium"
	DangerHigh     = "high"
	DangerCritical = "critical"
)

// Statement is a single executable SQL statement extracted from a batch.
type Statement struct {
	Type        string `json:"type"`
	Content     string `json:"content"`
	TableName   string `json:"tableName,omitempty"`
	SchemaName  string `json:"schemaName,omitempty"`
	LineNumber  int    `json:"lineNumber"`
	DangerLevel string `json:"dangerLevel"`
}

// IsDestructive reports whether executing the statement can lose data or
// drop objects.
func (s Statement) IsDestructive() bool {
	return s.DangerLevel == DangerHigh || s.DangerLevel == DangerCritical
}

// Split breaks sql into individual statements, honoring single-quoted and
// double-quoted literals, dollar-quoted bodies, line comments and block
// comments. Each statement records the 1-based line it starts on.
func Split(sql string) []Statement {
	var statements []Statement
	var buf strings.Builder

	line := 1
	startLine := 1
	started := false

	var inSingle, inDouble, inLineComment, inBlockComment bool
	var dollarTag string // non-empty while inside a $tag$ ... $tag$ body

	runes := []rune(sql)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		var next rune
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		if ch == '\n' {
			line++
			if inLineComment {
				inLineComment = false
			}
		}

		switch {
		case inLineComment:
			buf.WriteRune(ch)
			continue
		case inBlockComment:
			buf.WriteRune(ch)
			if ch == '*' && next == '/' {
				buf.WriteRune(next)
				i++
				inBlockComment = false
			}
			continue
		case dollarTag != "":
			buf.WriteRune(ch)
			if ch == '$' {
				if tag, ok := readDollarTag(runes, i); ok && tag == dollarTag {
					buf.WriteString(tag[1:])
					i += len([]rune(tag)) - 1
					dollarTag = ""
				}
			}
			continue
		case inSingle:
			buf.WriteRune(ch)
			if ch == '\'' {
				if next == '\'' {
					buf.WriteRune(next)
					i++
				} else {
					inSingle = false
				}
			}
			continue
		case inDouble:
			buf.WriteRune(ch)
			if ch == '"' {
				inDouble = false
			}
			continue
		}

		switch {
		case ch == '-' && next == '-':
			inLineComment = true
		case ch == '/' && next == '*':
			inBlockComment = true
		case ch == '\'':
			inSingle = true
		case ch == '"':
			inDouble = true
		case ch == '$':
			if tag, ok := readDollarTag(runes, i); ok {
				dollarTag = tag
				buf.WriteString(tag)
				i += len([]rune(tag)) - 1
				continue
			}
		case ch == ';':
			if stmt := newStatement(buf.String(), startLine); stmt != nil {
				statements = append(statements, *stmt)
			}
			buf.Reset()
			started = false
			continue
		}

		if !started && !isSpace(ch) && !inLineComment && !inBlockComment {
			started = true
			startLine = line
		}
		buf.WriteRune(ch)
	}

	if stmt := newStatement(buf.String(), startLine); stmt != nil {
		statements = append(statements, *stmt)
	}

	return statements
}

func isSpace(ch rune) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

// readDollarTag reads a dollar-quote tag ($$, $body$, ...) starting at
// position i. Returns the full tag including both dollar signs.
func readDollarTag(runes []rune, i int) (string, bool) {
	j := i + 1
	for j < len(runes) {
		ch := runes[j]
		if ch == '$' {
			return string(runes[i : j+1]), true
		}
		if !isTagRune(ch) {
			return "", false
		}
		j++
	}
	return "", false
}

func isTagRune(ch rune) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}

func newStatement(content string, lineNumber int) *Statement {
	trimmed := strings.TrimSpace(stripLeadingComments(content))
	if trimmed == "" {
		return nil
	}
	stmtType := classifyType(trimmed)
	return &Statement{
		Type:        stmtType,
		Content:     trimmed,
		TableName:   tableName(stmtType, trimmed),
		LineNumber:  lineNumber,
		DangerLevel: classifyDanger(stmtType, trimmed),
	}
}

// stripLeadingComments removes comments preceding the first SQL keyword so
// classification sees the statement itself.
func stripLeadingComments(content string) string {
	for {
		content = strings.TrimLeft(content, " \t\r\n")
		switch {
		case strings.HasPrefix(content, "--"):
			nl := strings.IndexByte(content, '\n')
			if nl < 0 {
				return ""
			}
			content = content[nl+1:]
		case strings.HasPrefix(content, "/*"):
			end := strings.Index(content, "*/")
			if end < 0 {
				return ""
			}
			content = content[end+2:]
		default:
			return content
		}
	}
}

// classifyType returns a coarse statement type keyword such as
// "CREATE_TABLE", "DROP_TABLE", "ALTER_TABLE", "INSERT", "UPDATE", "DELETE".
func classifyType(stmt string) string {
	upper := strings.ToUpper(stmt)
	fields := strings.Fields(upper)
	if len(fields) == 0 {
		return "UNKNOWN"
	}
	head := fields[0]
	switch head {
	case "CREATE", "DROP", "ALTER", "TRUNCATE":
		if len(fields) > 1 {
			second := fields[1]
			// Skip modifiers such as UNIQUE INDEX, OR REPLACE FUNCTION.
			skip := map[string]bool{"UNIQUE": true, "OR": true, "REPLACE": true, "IF": true, "EXISTS": true, "NOT": true}
			j := 1
			for j < len(fields) && skip[fields[j]] {
				j++
			}
			if j < len(fields) {
				second = fields[j]
			}
			return head + "_" + second
		}
		return head
	default:
		return head
	}
}

func classifyDanger(stmtType, stmt string) string {
	upper := strings.ToUpper(stmt)
	switch {
	case strings.HasPrefix(stmtType, "DROP_TABLE"),
		strings.HasPrefix(stmtType, "DROP_SCHEMA"),
		strings.HasPrefix(stmtType, "DROP_DATABASE"),
		strings.HasPrefix(stmtType, "TRUNCATE"):
		return DangerCritical
	case strings.HasPrefix(stmtType, "DROP_"):
		return DangerHigh
	case stmtType == "DELETE":
		if !strings.Contains(upper, " WHERE ") {
			return DangerCritical
		}
		return DangerHigh
	case strings.HasPrefix(stmtType, "ALTER_") && strings.Contains(upper, "DROP COLUMN"):
		return DangerHigh
	case stmtType == "UPDATE":
		if !strings.Contains(upper, " WHERE ") {
			return DangerHigh
		}
		return DangerMedium
	case strings.HasPrefix(stmtType, "ALTER_"):
		return DangerMedium
	default:
		return DangerLow
	}
}

// tableName extracts the target table from statements whose second token
// names a table. Best effort: returns "" when the target is not a table.
func tableName(stmtType, stmt string) string {
	var after string
	switch {
	case strings.HasPrefix(stmtType, "CREATE_TABLE"), strings.HasPrefix(stmtType, "DROP_TABLE"), strings.HasPrefix(stmtType, "ALTER_TABLE"):
		after = "TABLE"
	case strings.HasPrefix(stmtType, "TRUNCATE"):
		after = "TRUNCATE"
	case stmtType == "DELETE":
		after = "FROM"
	case stmtType == "INSERT":
		after = "INTO"
	case stmtType == "UPDATE":
		after = "UPDATE"
	default:
		return ""
	}

	fields := strings.Fields(stmt)
	for i, f := range fields {
		if strings.EqualFold(f, after) && i+1 < len(fields) {
			name := fields[i+1]
			// Skip IF [NOT] EXISTS and the ONLY keyword.
			for (strings.EqualFold(name, "IF") || strings.EqualFold(name, "NOT") ||
				strings.EqualFold(name, "EXISTS") || strings.EqualFold(name, "ONLY")) && i+2 < len(fields) {
				i++
				name = fields[i+1]
			}
			name = strings.TrimRight(name, "(;,")
			name = strings.Trim(name, `"`)
			if dot := strings.LastIndex(name, "."); dot >= 0 {
				name = name[dot+1:]
			}
			return name
		}
	}
	return ""
}
