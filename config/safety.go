package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// SafetyConfig is the migration safety policy read by the safety gate before
// every migration execution. There is one policy per deployment; the server
// exposes an admin endpoint to read and update it at runtime.
type SafetyConfig struct {
	// RequireBackup rejects migration execution unless a pre-migration
	// backup exists and its id is attached to the request.
	RequireBackup bool `json:"requireBackup" mapstructure:"require_backup"`

	// RequireDryRun rejects migration execution unless a dry run of the same
	// statement set has passed.
	RequireDryRun bool `json:"requireDryRun" mapstructure:"require_dry_run"`

	// AllowDestructiveOps permits statements classified high or critical
	// danger. When false such batches are rejected before execution.
	AllowDestructiveOps bool `json:"allowDestructiveOps" mapstructure:"allow_destructive_ops"`

	// RequireDoubleConfirmation requires the caller to set an explicit
	// confirmation flag on the execute request.
	RequireDoubleConfirmation bool `json:"requireDoubleConfirmation" mapstructure:"require_double_confirmation"`

	// MaxAffectedRows fails the batch when a single statement reports more
	// affected rows than this cap. Zero disables the check.
	MaxAffectedRows int64 `json:"maxAffectedRows" mapstructure:"max_affected_rows"`

	// BackupRetentionDays controls how long backup metadata is retained
	// before pruning.
	BackupRetentionDays int `json:"backupRetentionDays" mapstructure:"backup_retention_days"`

	// AutoRollbackOnError wraps the whole batch in one transaction and rolls
	// everything back on the first statement failure. When false, statements
	// run unwrapped: execution still stops at the first failure but earlier
	// statements persist.
	AutoRollbackOnError bool `json:"autoRollbackOnError" mapstructure:"auto_rollback_on_error"`
}

// DefaultSafetyConfig returns the conservative default policy: backups and
// dry runs required, destructive operations disallowed, full rollback on
// first failure.
func DefaultSafetyConfig() *SafetyConfig {
	return &SafetyConfig{
		RequireBackup:             true,
		RequireDryRun:             true,
		AllowDestructiveOps:       false,
		RequireDoubleConfirmation: false,
		MaxAffectedRows:           0,
		BackupRetentionDays:       30,
		AutoRollbackOnError:       true,
	}
}

// LoadSafetyConfig loads the safety policy from the given config file (YAML,
// TOML or JSON, optional) with VIGIL_* environment variable overrides, e.g.
// VIGIL_REQUIRE_BACKUP=false. Missing file with an empty path is not an
// error; defaults apply for any key not set.
func LoadSafetyConfig(path string) (*SafetyConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("VIGIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultSafetyConfig()
	v.SetDefault("require_backup", defaults.RequireBackup)
	v.SetDefault("require_dry_run", defaults.RequireDryRun)
	v.SetDefault("allow_destructive_ops", defaults.AllowDestructiveOps)
	v.SetDefault("require_double_confirmation", defaults.RequireDoubleConfirmation)
	v.SetDefault("max_affected_rows", defaults.MaxAffectedRows)
	v.SetDefault("backup_retention_days", defaults.BackupRetentionDays)
	v.SetDefault("auto_rollback_on_error", defaults.AutoRollbackOnError)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read safety config %q: %w", path, err)
		}
	}

	cfg := &SafetyConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse safety config: %w", err)
	}
	return cfg, nil
}
