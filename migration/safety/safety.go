// Package safety gates SQL migration execution behind the configured policy:
// backup and dry-run preconditions, destructive-operation allowance, and
// transactional rollback behavior. Every execution is recorded as an
// auditable migration history row with explicit status transitions.
package safety

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stokaro/vigil/config"
	"github.com/stokaro/vigil/core/sqlsplit"
	"github.com/stokaro/vigil/store"
)

// ErrPolicyViolation marks rejections that happen before any statement runs.
// No migration history row exists for a rejected request.
var ErrPolicyViolation = errors.New("migration policy violation")

// Executor runs SQL statements. Implemented by the postgres writer; tests
// substitute fakes.
type Executor interface {
	ExecuteSQL(sql string) (rowsAffected int64, err error)
	BeginTransaction() error
	CommitTransaction() error
	RollbackTransaction() error
	CreateSchema(name string) error
	DropSchema(name string) error
	SetSearchPath(name string) error
}

// History is the subset of the persistence layer the gate needs.
type History interface {
	InsertMigrationHistory(ctx context.Context, h *store.MigrationHistory) (int64, error)
	FinishMigrationHistory(ctx context.Context, id int64, status string, successful, failed int, duration time.Duration, errorMessage *string) error
	GetMigrationHistory(ctx context.Context, id int64) (*store.MigrationHistory, error)
	MarkRolledBack(ctx context.Context, id int64) error
	GetBackup(ctx context.Context, id string) (*store.BackupMetadata, error)
}

// Gate enforces the migration safety policy. Operations are serialized: the
// executor carries transaction state across calls, so overlapping batches
// would interleave on one connection.
type Gate struct {
	mu      sync.Mutex
	exec    Executor
	history History
	cfg     *config.SafetyConfig
	logger  *slog.Logger
}

// NewGate creates a safety gate with the given policy.
func NewGate(exec Executor, history History, cfg *config.SafetyConfig) *Gate {
	if cfg == nil {
		cfg = config.DefaultSafetyConfig()
	}
	return &Gate{
		exec:    exec,
		history: history,
		cfg:     cfg,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger for the gate
func (g *Gate) WithLogger(l *slog.Logger) *Gate {
	return &Gate{
		exec:    g.exec,
		history: g.history,
		cfg:     g.cfg,
		logger:  l,
	}
}

// Config returns the active policy.
func (g *Gate) Config() *config.SafetyConfig {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg
}

// SetConfig replaces the active policy. Used by the admin endpoint; the swap
// waits for any in-flight execution, so a batch runs entirely under the
// policy it was admitted with.
func (g *Gate) SetConfig(cfg *config.SafetyConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cfg = cfg
}

// StatementError describes one failed statement.
type StatementError struct {
	StatementNumber int    `json:"statementNumber"`
	LineNumber      int    `json:"lineNumber"`
	Error           string `json:"error"`
	Statement       string `json:"statement"`
}

// ExecuteRequest is a proposed migration execution.
type ExecuteRequest struct {
	SQL           string               `json:"sql"`
	FileName      string               `json:"fileName,omitempty"`
	MigrationName string               `json:"migrationName"`
	Statements    []sqlsplit.Statement `json:"statements,omitempty"`
	BackupID      string               `json:"backupId,omitempty"`
	DryRunPassed  bool                 `json:"dryRunPassed,omitempty"`
	Confirmed     bool                 `json:"confirmed,omitempty"`
	ExecutedBy    string               `json:"executedBy,omitempty"`
	RollbackSQL   string               `json:"rollbackSql,omitempty"`
}

// ExecuteResult is the outcome of a migration execution.
type ExecuteResult struct {
	Success              bool             `json:"success"`
	HistoryID            int64            `json:"historyId"`
	OperationsSuccessful int              `json:"operationsSuccessful"`
	OperationsFailed     int              `json:"operationsFailed"`
	TotalOperations      int              `json:"totalOperations"`
	Duration             time.Duration    `json:"duration"`
	Errors               []StatementError `json:"errors,omitempty"`
}

// Execute runs a migration batch under the active policy.
//
// Precondition checks complete before any statement executes. With
// AutoRollbackOnError the whole batch runs in one transaction and the first
// failure rolls everything back; without it, statements run unwrapped,
// execution still stops at the first failure, and earlier statements
// persist. Either way the history row receives exactly one terminal update.
func (g *Gate) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	statements := req.Statements
	if len(statements) == 0 {
		statements = sqlsplit.Split(req.SQL)
	}
	if len(statements) == 0 {
		return nil, fmt.Errorf("%w: no statements to execute", ErrPolicyViolation)
	}
	if req.MigrationName == "" {
		return nil, fmt.Errorf("%w: migrationName is required", ErrPolicyViolation)
	}

	if err := g.checkPolicy(ctx, req, statements); err != nil {
		return nil, err
	}

	method := store.MethodDirect
	if g.cfg.AutoRollbackOnError {
		method = store.MethodTransactional
	}

	hist := &store.MigrationHistory{
		MigrationName:   req.MigrationName,
		FileName:        req.FileName,
		SQLContent:      req.SQL,
		ExecutedBy:      req.ExecutedBy,
		Status:          store.StatusExecuting,
		Method:          method,
		OperationsTotal: len(statements),
		DryRunPassed:    req.DryRunPassed,
		CanRollback:     req.RollbackSQL != "",
	}
	if req.BackupID != "" {
		hist.BackupID = &req.BackupID
	}
	if req.RollbackSQL != "" {
		hist.RollbackSQL = &req.RollbackSQL
	}
	historyID, err := g.history.InsertMigrationHistory(ctx, hist)
	if err != nil {
		return nil, err
	}

	g.logger.Info("Executing migration",
		"migration", req.MigrationName, "statements", len(statements), "method", method, "historyId", historyID)

	start := time.Now()
	result := &ExecuteResult{HistoryID: historyID, TotalOperations: len(statements)}

	if g.cfg.AutoRollbackOnError {
		if err := g.exec.BeginTransaction(); err != nil {
			g.finish(ctx, historyID, result, time.Since(start), err.Error())
			return result, fmt.Errorf("failed to begin migration transaction: %w", err)
		}
	}

	for i, stmt := range statements {
		affected, err := g.exec.ExecuteSQL(stmt.Content)
		if err == nil && g.cfg.MaxAffectedRows > 0 && affected > g.cfg.MaxAffectedRows {
			err = fmt.Errorf("statement affected %d rows, policy cap is %d", affected, g.cfg.MaxAffectedRows)
		}
		if err != nil {
			result.OperationsFailed++
			result.Errors = append(result.Errors, StatementError{
				StatementNumber: i + 1,
				LineNumber:      stmt.LineNumber,
				Error:           err.Error(),
				Statement:       stmt.Content,
			})
			// Stop at the first failure; remaining statements are never attempted.
			break
		}
		result.OperationsSuccessful++
	}

	if g.cfg.AutoRollbackOnError {
		if result.OperationsFailed > 0 {
			if err := g.exec.RollbackTransaction(); err != nil {
				g.logger.Error("Failed to roll back migration transaction", "historyId", historyID, "error", err)
			}
			// Nothing persisted: successful statements were rolled back too.
		} else if err := g.exec.CommitTransaction(); err != nil {
			// Commit failure loses every statement's effect.
			result.OperationsSuccessful = 0
			result.OperationsFailed = 1
			result.Errors = append(result.Errors, StatementError{Error: fmt.Sprintf("commit failed: %v", err)})
		}
	}

	result.Duration = time.Since(start)
	result.Success = result.OperationsFailed == 0 && len(result.Errors) == 0

	status := store.StatusSuccess
	var errMsg string
	if !result.Success {
		status = store.StatusFailed
		errMsg = aggregateErrors(result.Errors)
	}
	if err := g.history.FinishMigrationHistory(ctx, historyID, status,
		result.OperationsSuccessful, result.OperationsFailed, result.Duration, nullable(errMsg)); err != nil {
		return result, err
	}

	g.logger.Info("Migration finished",
		"migration", req.MigrationName, "historyId", historyID, "status", status,
		"successful", result.OperationsSuccessful, "failed", result.OperationsFailed)
	return result, nil
}

func (g *Gate) finish(ctx context.Context, historyID int64, result *ExecuteResult, duration time.Duration, errMsg string) {
	if err := g.history.FinishMigrationHistory(ctx, historyID, store.StatusFailed,
		result.OperationsSuccessful, result.OperationsFailed, duration, nullable(errMsg)); err != nil {
		g.logger.Error("Failed to record migration outcome", "historyId", historyID, "error", err)
	}
}

// checkPolicy enforces every precondition before a history row is created.
func (g *Gate) checkPolicy(ctx context.Context, req ExecuteRequest, statements []sqlsplit.Statement) error {
	if g.cfg.RequireBackup {
		if req.BackupID == "" {
			return fmt.Errorf("%w: policy requires a pre-migration backup; create one and attach its id", ErrPolicyViolation)
		}
		if _, err := g.history.GetBackup(ctx, req.BackupID); err != nil {
			return fmt.Errorf("%w: backup %s not found", ErrPolicyViolation, req.BackupID)
		}
	}
	if g.cfg.RequireDryRun && !req.DryRunPassed {
		return fmt.Errorf("%w: policy requires a passed dry run before execution", ErrPolicyViolation)
	}
	if g.cfg.RequireDoubleConfirmation && !req.Confirmed {
		return fmt.Errorf("%w: policy requires explicit confirmation", ErrPolicyViolation)
	}
	if !g.cfg.AllowDestructiveOps {
		for i, stmt := range statements {
			if stmt.IsDestructive() {
				return fmt.Errorf("%w: statement %d (%s, line %d) is destructive and policy disallows destructive operations",
					ErrPolicyViolation, i+1, stmt.Type, stmt.LineNumber)
			}
		}
	}
	return nil
}

// Rollback applies the recorded rollback SQL of a failed migration and
// transitions its history row to rolled_back. This is the only path to the
// rolled_back status; it is never triggered automatically.
func (g *Gate) Rollback(ctx context.Context, historyID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	hist, err := g.history.GetMigrationHistory(ctx, historyID)
	if err != nil {
		return err
	}
	if hist.Status != store.StatusFailed {
		return fmt.Errorf("migration %d is %s; only failed migrations can be rolled back", historyID, hist.Status)
	}
	if !hist.CanRollback || hist.RollbackSQL == nil || *hist.RollbackSQL == "" {
		return fmt.Errorf("migration %d has no rollback SQL recorded", historyID)
	}

	if err := g.exec.BeginTransaction(); err != nil {
		return fmt.Errorf("failed to begin rollback transaction: %w", err)
	}
	for _, stmt := range sqlsplit.Split(*hist.RollbackSQL) {
		if _, err := g.exec.ExecuteSQL(stmt.Content); err != nil {
			_ = g.exec.RollbackTransaction()
			return fmt.Errorf("rollback statement failed at line %d: %w", stmt.LineNumber, err)
		}
	}
	if err := g.exec.CommitTransaction(); err != nil {
		return fmt.Errorf("failed to commit rollback transaction: %w", err)
	}

	if err := g.history.MarkRolledBack(ctx, historyID); err != nil {
		return err
	}
	g.logger.Info("Rolled back migration", "historyId", historyID)
	return nil
}

// DryRunRequest is a proposed dry run.
type DryRunRequest struct {
	MigrationName string               `json:"migrationName"`
	SQL           string               `json:"sql,omitempty"`
	Statements    []sqlsplit.Statement `json:"statements,omitempty"`
}

// DryRunResult is the outcome of a dry run.
type DryRunResult struct {
	Success            bool             `json:"success"`
	Passed             bool             `json:"passed"`
	StatementsExecuted int              `json:"statementsExecuted"`
	StatementsFailed   int              `json:"statementsFailed"`
	Errors             []StatementError `json:"errors,omitempty"`
	Warnings           []string         `json:"warnings,omitempty"`
	Duration           time.Duration    `json:"duration"`
}

// DryRun executes the statement batch against a throwaway, uniquely named
// schema. Statements classified critical are skipped outright and recorded
// as warnings rather than failures. The scratch schema is dropped afterward
// regardless of outcome, and the batch transaction is always rolled back so
// the real schema is never touched.
func (g *Gate) DryRun(ctx context.Context, req DryRunRequest) (*DryRunResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	statements := req.Statements
	if len(statements) == 0 {
		statements = sqlsplit.Split(req.SQL)
	}
	if len(statements) == 0 {
		return nil, fmt.Errorf("no statements to dry-run")
	}

	scratch := "vigil_dryrun_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	if err := g.exec.CreateSchema(scratch); err != nil {
		return nil, err
	}
	defer func() {
		if err := g.exec.DropSchema(scratch); err != nil {
			g.logger.Error("Failed to drop dry-run schema", "schema", scratch, "error", err)
		}
	}()

	g.logger.Info("Starting dry run", "migration", req.MigrationName, "statements", len(statements), "schema", scratch)

	start := time.Now()
	result := &DryRunResult{Success: true}

	if err := g.exec.BeginTransaction(); err != nil {
		return nil, fmt.Errorf("failed to begin dry-run transaction: %w", err)
	}
	// The transaction is always rolled back: dry runs must leave no trace
	// even inside the scratch schema.
	defer func() { _ = g.exec.RollbackTransaction() }()

	if err := g.exec.SetSearchPath(scratch); err != nil {
		return nil, err
	}

	for i, stmt := range statements {
		if stmt.DangerLevel == sqlsplit.DangerCritical {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("statement %d (line %d) skipped: %s statements are not dry-run executable", i+1, stmt.LineNumber, stmt.Type))
			continue
		}
		if _, err := g.exec.ExecuteSQL(stmt.Content); err != nil {
			result.StatementsFailed++
			result.Errors = append(result.Errors, StatementError{
				StatementNumber: i + 1,
				LineNumber:      stmt.LineNumber,
				Error:           err.Error(),
				Statement:       stmt.Content,
			})
			// A failed statement aborts the transaction; later statements
			// cannot produce meaningful results.
			break
		}
		result.StatementsExecuted++
	}

	result.Duration = time.Since(start)
	result.Passed = result.StatementsFailed == 0
	return result, nil
}

func aggregateErrors(errs []StatementError) string {
	if len(errs) == 0 {
		return ""
	}
	parts := make([]string, len(errs))
	for i, e := range errs {
		if e.StatementNumber > 0 {
			parts[i] = fmt.Sprintf("statement %d (line %d): %s", e.StatementNumber, e.LineNumber, e.Error)
		} else {
			parts[i] = e.Error
		}
	}
	return strings.Join(parts, "; ")
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
