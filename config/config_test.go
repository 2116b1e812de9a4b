package config_test

import (
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/stokaro/vigil/config"
)

func TestDefaultCompareOptions(t *testing.T) {
	c := qt.New(t)

	opts := config.DefaultCompareOptions()
	c.Assert(opts.IgnoredExtensions, qt.DeepEquals, []string{"plpgsql"})
	c.Assert(opts.IsExtensionIgnored("plpgsql"), qt.IsTrue)
	c.Assert(opts.IsExtensionIgnored("uuid-ossp"), qt.IsFalse)
}

func TestWithIgnoredExtensions_ReplacesDefaults(t *testing.T) {
	c := qt.New(t)

	opts := config.WithIgnoredExtensions("adminpack")
	c.Assert(opts.IsExtensionIgnored("adminpack"), qt.IsTrue)
	c.Assert(opts.IsExtensionIgnored("plpgsql"), qt.IsFalse)
}

func TestWithAdditionalIgnoredExtensions(t *testing.T) {
	c := qt.New(t)

	opts := config.WithAdditionalIgnoredExtensions("pg_stat_statements")
	c.Assert(opts.IsExtensionIgnored("plpgsql"), qt.IsTrue)
	c.Assert(opts.IsExtensionIgnored("pg_stat_statements"), qt.IsTrue)
	c.Assert(opts.IsExtensionIgnored("uuid-ossp"), qt.IsFalse)
}

func TestDefaultSafetyConfig(t *testing.T) {
	c := qt.New(t)

	cfg := config.DefaultSafetyConfig()
	c.Assert(cfg.RequireBackup, qt.IsTrue)
	c.Assert(cfg.RequireDryRun, qt.IsTrue)
	c.Assert(cfg.AllowDestructiveOps, qt.IsFalse)
	c.Assert(cfg.RequireDoubleConfirmation, qt.IsFalse)
	c.Assert(cfg.MaxAffectedRows, qt.Equals, int64(0))
	c.Assert(cfg.BackupRetentionDays, qt.Equals, 30)
	c.Assert(cfg.AutoRollbackOnError, qt.IsTrue)
}

func TestLoadSafetyConfig_EmptyPathUsesDefaults(t *testing.T) {
	c := qt.New(t)

	cfg, err := config.LoadSafetyConfig("")
	c.Assert(err, qt.IsNil)
	c.Assert(cfg, qt.DeepEquals, config.DefaultSafetyConfig())
}

func TestLoadSafetyConfig_FromFile(t *testing.T) {
	c := qt.New(t)

	path := filepath.Join(t.TempDir(), "safety.yaml")
	content := "allow_destructive_ops: true\nmax_affected_rows: 5000\nbackup_retention_days: 7\n"
	c.Assert(os.WriteFile(path, []byte(content), 0o600), qt.IsNil)

	cfg, err := config.LoadSafetyConfig(path)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.AllowDestructiveOps, qt.IsTrue)
	c.Assert(cfg.MaxAffectedRows, qt.Equals, int64(5000))
	c.Assert(cfg.BackupRetentionDays, qt.Equals, 7)
	// Keys absent from the file keep their defaults.
	c.Assert(cfg.RequireBackup, qt.IsTrue)
	c.Assert(cfg.AutoRollbackOnError, qt.IsTrue)
}

func TestLoadSafetyConfig_EnvOverride(t *testing.T) {
	c := qt.New(t)

	t.Setenv("VIGIL_REQUIRE_DRY_RUN", "false")
	cfg, err := config.LoadSafetyConfig("")
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.RequireDryRun, qt.IsFalse)
}

func TestLoadSafetyConfig_MissingFile(t *testing.T) {
	c := qt.New(t)

	_, err := config.LoadSafetyConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	c.Assert(err, qt.IsNotNil)
}
