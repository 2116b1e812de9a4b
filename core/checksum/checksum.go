// Package checksum computes the digests vigil uses to decide cheaply whether
// a schema has changed without running a full structural comparison.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/stokaro/vigil/config"
	"github.com/stokaro/vigil/dbschema/types"
)

// Text returns the SHA-256 hex digest of the UTF-8 encoding of s.
// Deterministic and side-effect free.
func Text(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Snapshot returns the SHA-256 hex digest of a canonical serialization of the
// structured snapshot. Object lists are sorted by identity and serialized as
// compact JSON, so the digest is insensitive to introspection ordering and to
// whitespace churn in the rendered SQL export. This is the checksum stored on
// schema versions and compared by the drift detector.
func Snapshot(snap *types.DBSchema) (string, error) {
	data, err := json.Marshal(canonicalize(snap))
	if err != nil {
		return "", fmt.Errorf("failed to serialize snapshot: %w", err)
	}
	return Text(string(data)), nil
}

// canonicalize returns a copy of snap with every category sorted by its
// stable identity key. The input is never mutated.
func canonicalize(snap *types.DBSchema) *types.DBSchema {
	out := &types.DBSchema{
		Tables:      append([]types.DBTable(nil), snap.Tables...),
		Functions:   append([]types.DBFunction(nil), snap.Functions...),
		RLSPolicies: append([]types.DBRLSPolicy(nil), snap.RLSPolicies...),
		Triggers:    append([]types.DBTrigger(nil), snap.Triggers...),
		Indexes:     append([]types.DBIndex(nil), snap.Indexes...),
		Extensions:  canonicalExtensions(snap.Extensions),
		Enums:       append([]types.DBEnum(nil), snap.Enums...),
		Sequences:   append([]types.DBSequence(nil), snap.Sequences...),
	}

	sort.Slice(out.Tables, func(i, j int) bool { return out.Tables[i].Name < out.Tables[j].Name })
	for ti := range out.Tables {
		cols := append([]types.DBColumn(nil), out.Tables[ti].Columns...)
		sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })
		out.Tables[ti].Columns = cols
	}
	sort.Slice(out.Functions, func(i, j int) bool { return out.Functions[i].Name < out.Functions[j].Name })
	sort.Slice(out.RLSPolicies, func(i, j int) bool {
		a, b := out.RLSPolicies[i], out.RLSPolicies[j]
		if a.Table != b.Table {
			return a.Table < b.Table
		}
		return a.Name < b.Name
	})
	sort.Slice(out.Triggers, func(i, j int) bool {
		a, b := out.Triggers[i], out.Triggers[j]
		if a.Table != b.Table {
			return a.Table < b.Table
		}
		return a.Name < b.Name
	})
	sort.Slice(out.Indexes, func(i, j int) bool { return out.Indexes[i].Name < out.Indexes[j].Name })
	sort.Slice(out.Extensions, func(i, j int) bool { return out.Extensions[i].Name < out.Extensions[j].Name })
	sort.Slice(out.Enums, func(i, j int) bool { return out.Enums[i].Name < out.Enums[j].Name })
	sort.Slice(out.Sequences, func(i, j int) bool { return out.Sequences[i].Name < out.Sequences[j].Name })

	return out
}

// canonicalExtensions reduces extensions to their names and drops ignored
// ones. The comparator tracks extensions by identity only and filters the
// ignored set, so a finer-grained digest would keep flagging drift that the
// diff can never explain (a managed-server plpgsql version bump, typically).
func canonicalExtensions(in []types.DBExtension) []types.DBExtension {
	opts := config.DefaultCompareOptions()
	out := make([]types.DBExtension, 0, len(in))
	for _, ext := range in {
		if opts.IsExtensionIgnored(ext.Name) {
			continue
		}
		out = append(out, types.DBExtension{Name: ext.Name})
	}
	return out
}
