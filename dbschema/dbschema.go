// Package dbschema manages database connections and exposes schema reading
// and SQL execution for PostgreSQL.
package dbschema

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"sort"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver

	"github.com/stokaro/vigil/dbschema/postgres"
	"github.com/stokaro/vigil/dbschema/types"
)

// DatabaseConnection wraps an open database handle with schema reader and
// writer implementations.
type DatabaseConnection struct {
	db     *sql.DB
	info   types.DBInfo
	reader *postgres.Reader
	writer *postgres.Writer
}

// ConnectToDatabase opens a PostgreSQL connection for the given URL.
// Only postgres:// and postgresql:// URLs are accepted.
func ConnectToDatabase(databaseURL string) (*DatabaseConnection, error) {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}
	switch parsed.Scheme {
	case "postgres", "postgresql":
	default:
		return nil, fmt.Errorf("unsupported database scheme %q: vigil supports PostgreSQL only", parsed.Scheme)
	}

	schema := parsed.Query().Get("search_path")
	if schema == "" {
		schema = "public"
	}

	db, err := sql.Open("pgx", removePostgresPoolParams(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	var version string
	if err := db.QueryRow("SELECT version()").Scan(&version); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to read server version: %w", err)
	}

	return &DatabaseConnection{
		db: db,
		info: types.DBInfo{
			Dialect: "postgres",
			Version: version,
			Schema:  schema,
			URL:     databaseURL,
		},
		reader: postgres.NewReader(db, schema),
		writer: postgres.NewWriter(db),
	}, nil
}

// Reader returns the schema reader for this connection
func (c *DatabaseConnection) Reader() *postgres.Reader { return c.reader }

// Writer returns the SQL writer for this connection
func (c *DatabaseConnection) Writer() *postgres.Writer { return c.writer }

// Info returns connection metadata
func (c *DatabaseConnection) Info() types.DBInfo { return c.info }

// DB exposes the underlying handle for the store layer, which shares the
// connection with the schema tooling.
func (c *DatabaseConnection) DB() *sql.DB { return c.db }

// Close closes the underlying database handle
func (c *DatabaseConnection) Close() error { return c.db.Close() }

// Ping verifies the connection is still usable
func (c *DatabaseConnection) Ping(ctx context.Context) error { return c.db.PingContext(ctx) }

// removePostgresPoolParams strips pgxpool-specific query parameters that the
// database/sql pgx driver rejects. Invalid URLs are returned unchanged.
func removePostgresPoolParams(databaseURL string) string {
	parsed, err := url.Parse(databaseURL)
	if err != nil {
		return databaseURL
	}

	query := parsed.Query()
	query.Del("pool_max_conns")
	query.Del("pool_min_conns")

	if len(query) == 0 {
		parsed.RawQuery = ""
		return parsed.String()
	}

	// url.Values.Encode sorts keys, keeping output deterministic.
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var pairs []string
	for _, k := range keys {
		for _, v := range query[k] {
			pairs = append(pairs, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	parsed.RawQuery = strings.Join(pairs, "&")
	return parsed.String()
}
