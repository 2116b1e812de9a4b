package postgres

import (
	"database/sql"
	"fmt"
	"regexp"
)

// Writer executes SQL against a PostgreSQL database, optionally inside a
// single managed transaction. Not safe for concurrent use: the open
// transaction is carried between calls, so callers (the safety gate)
// serialize whole operations.
type Writer struct {
	db *sql.DB
	tx *sql.Tx
}

// NewWriter creates a new PostgreSQL writer
func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// ExecuteSQL executes one statement and reports the rows it affected.
// Runs inside the open transaction when one has been started.
func (w *Writer) ExecuteSQL(sqlText string) (int64, error) {
	var res sql.Result
	var err error
	if w.tx != nil {
		res, err = w.tx.Exec(sqlText)
	} else {
		res, err = w.db.Exec(sqlText)
	}
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		// DDL statements report no row count; that is not a failure.
		return 0, nil
	}
	return affected, nil
}

// BeginTransaction starts a transaction for subsequent ExecuteSQL calls
func (w *Writer) BeginTransaction() error {
	if w.tx != nil {
		return fmt.Errorf("transaction already in progress")
	}
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	w.tx = tx
	return nil
}

// CommitTransaction commits the open transaction
func (w *Writer) CommitTransaction() error {
	if w.tx == nil {
		return fmt.Errorf("no transaction in progress")
	}
	err := w.tx.Commit()
	w.tx = nil
	if err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// RollbackTransaction rolls back the open transaction
func (w *Writer) RollbackTransaction() error {
	if w.tx == nil {
		return fmt.Errorf("no transaction in progress")
	}
	err := w.tx.Rollback()
	w.tx = nil
	if err != nil {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

var schemaNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// CreateSchema creates a scratch schema for dry-run execution.
func (w *Writer) CreateSchema(name string) error {
	if !schemaNamePattern.MatchString(name) {
		return fmt.Errorf("invalid schema name %q", name)
	}
	if _, err := w.ExecuteSQL(fmt.Sprintf("CREATE SCHEMA %q", name)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", name, err)
	}
	return nil
}

// DropSchema drops a scratch schema and everything in it.
func (w *Writer) DropSchema(name string) error {
	if !schemaNamePattern.MatchString(name) {
		return fmt.Errorf("invalid schema name %q", name)
	}
	if _, err := w.ExecuteSQL(fmt.Sprintf("DROP SCHEMA IF EXISTS %q CASCADE", name)); err != nil {
		return fmt.Errorf("failed to drop schema %s: %w", name, err)
	}
	return nil
}

// SetSearchPath points subsequent statements in the open transaction at the
// given schema. Used by dry runs to target the scratch schema.
func (w *Writer) SetSearchPath(name string) error {
	if !schemaNamePattern.MatchString(name) {
		return fmt.Errorf("invalid schema name %q", name)
	}
	if _, err := w.ExecuteSQL(fmt.Sprintf("SET LOCAL search_path TO %q", name)); err != nil {
		return fmt.Errorf("failed to set search_path to %s: %w", name, err)
	}
	return nil
}
