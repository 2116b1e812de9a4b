// Package config provides configuration options for the vigil schema
// tooling: comparison options used by the snapshot comparator and the safety
// policy enforced before SQL migrations execute.
//
// Comparison options are a programmatic API. The safety policy can be
// constructed programmatically, loaded from a file, or overridden through
// VIGIL_* environment variables.
package config

// CompareOptions contains configuration options for schema comparison
// operations.
type CompareOptions struct {
	// IgnoredExtensions is a list of PostgreSQL extension names that should
	// be ignored during comparison. These extensions will:
	// - Never be reported as removed, even if missing from a snapshot
	// - Be excluded from schema diff calculations entirely
	//
	// Common extensions to ignore include:
	// - plpgsql: Default procedural language, usually pre-installed
	IgnoredExtensions []string
}

// DefaultCompareOptions returns the default comparison options. The default
// configuration ignores commonly pre-installed PostgreSQL extensions.
func DefaultCompareOptions() *CompareOptions {
	return &CompareOptions{
		IgnoredExtensions: []string{
			"plpgsql", // PostgreSQL procedural language - usually pre-installed
		},
	}
}

// WithIgnoredExtensions returns a new CompareOptions with the specified
// ignored extensions. This completely replaces the default ignored list.
//
// Example:
//
//	opts := config.WithIgnoredExtensions("plpgsql", "adminpack", "pg_stat_statements")
func WithIgnoredExtensions(extensions ...string) *CompareOptions {
	return &CompareOptions{
		IgnoredExtensions: extensions,
	}
}

// WithAdditionalIgnoredExtensions returns a new CompareOptions that includes
// the default ignored extensions plus the additional ones specified.
func WithAdditionalIgnoredExtensions(extensions ...string) *CompareOptions {
	defaults := DefaultCompareOptions()
	all := make([]string, 0, len(defaults.IgnoredExtensions)+len(extensions))
	all = append(all, defaults.IgnoredExtensions...)
	all = append(all, extensions...)

	return &CompareOptions{
		IgnoredExtensions: all,
	}
}

// IsExtensionIgnored checks if the given extension name should be ignored
// during schema comparison based on the current configuration.
func (c *CompareOptions) IsExtensionIgnored(extensionName string) bool {
	for _, ignored := range c.IgnoredExtensions {
		if ignored == extensionName {
			return true
		}
	}
	return false
}
