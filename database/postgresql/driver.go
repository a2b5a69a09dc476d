// Package postgresql implements the PostgreSQL backend over database/sql,
// using pgx by default and lib/pq when configured.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"github.com/gaborage/go-bricks-dbcore/config"
	"github.com/gaborage/go-bricks-dbcore/database/dialect"
	"github.com/gaborage/go-bricks-dbcore/database/internal/sqlbase"
	"github.com/gaborage/go-bricks-dbcore/database/types"
)

const lastInsertIDQuery = "SELECT LASTVAL()"

var (
	openPgxDB = func(cfg *pgx.ConnConfig) *sql.DB {
		return stdlib.OpenDB(*cfg)
	}
	openPqDB = func(dsn string) (*sql.DB, error) {
		return sql.Open("postgres", dsn)
	}
)

// Driver implements types.Driver for PostgreSQL.
type Driver struct{}

var (
	_ types.Driver         = (*Driver)(nil)
	_ types.InsertIDReader = (*Driver)(nil)
)

// NewDriver returns the PostgreSQL driver.
func NewDriver() *Driver { return &Driver{} }

// Vendor implements types.Driver.
func (d *Driver) Vendor() types.Vendor { return types.PostgreSQL }

// Dialect implements types.Driver.
func (d *Driver) Dialect() *dialect.Dialect { return dialect.Postgres() }

// quoteDSN quotes a DSN value according to libpq rules:
// - Returns double single quotes for empty strings (empty value)
// - Escapes backslashes and single quotes
// - Wraps in single quotes when value contains non-alphanumeric/._- characters
func quoteDSN(value string) string {
	if value == "" {
		return "''"
	}

	needsQuoting := false
	for _, r := range value {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') &&
			(r < '0' || r > '9') && r != '.' && r != '_' && r != '-' {
			needsQuoting = true
			break
		}
	}

	if !needsQuoting {
		return value
	}

	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "'", "\\'")

	return "'" + escaped + "'"
}

// BuildDSN returns the keyword/value connection string for cfg. An explicit
// DSN wins over the individual fields.
func BuildDSN(cfg *config.DatabaseConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}

	parts := []string{
		fmt.Sprintf("host=%s", quoteDSN(cfg.Host)),
	}
	if cfg.Port > 0 {
		parts = append(parts, fmt.Sprintf("port=%d", cfg.Port))
	}
	parts = append(parts,
		fmt.Sprintf("user=%s", quoteDSN(cfg.Username)),
		fmt.Sprintf("password=%s", quoteDSN(cfg.Password)),
		fmt.Sprintf("dbname=%s", quoteDSN(cfg.Database)),
	)
	if cfg.PostgreSQL.SSLMode != "" {
		parts = append(parts, fmt.Sprintf("sslmode=%s", cfg.PostgreSQL.SSLMode))
	}
	if cfg.ConnectTimeout > 0 {
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", max(1, int(cfg.ConnectTimeout.Seconds()))))
	}

	return strings.Join(parts, " ")
}

// sessionInit returns the statements run once per session.
func sessionInit(cfg *config.DatabaseConfig) []string {
	var stmts []string
	if cfg.Charset != "" {
		stmts = append(stmts, fmt.Sprintf("SET client_encoding TO '%s'", strings.ReplaceAll(cfg.Charset, "'", "''")))
	}
	if cfg.Schema != "" {
		stmts = append(stmts, fmt.Sprintf(`SET search_path TO "%s"`, strings.ReplaceAll(cfg.Schema, `"`, `""`)))
	}
	return stmts
}

// Connect implements types.Driver.
func (d *Driver) Connect(ctx context.Context, cfg *config.DatabaseConfig, persistent bool) (types.Link, error) {
	dsn := BuildDSN(cfg)
	flavour := cfg.PostgreSQL.Driver
	if flavour == "" {
		flavour = config.PostgresDriverPgx
	}

	var open func() (*sql.DB, error)
	switch flavour {
	case config.PostgresDriverPq:
		open = func() (*sql.DB, error) { return openPqDB(dsn) }
	default:
		pgxConfig, err := pgx.ParseConfig(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PostgreSQL config: %w", err)
		}
		open = func() (*sql.DB, error) { return openPgxDB(pgxConfig), nil }
	}

	link, err := sqlbase.Connect(ctx, sqlbase.Options{
		Key:        flavour + ":" + dsn,
		Open:       open,
		Persistent: persistent,
		Init:       sessionInit(cfg),
		Timeout:    cfg.ConnectTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}
	return link, nil
}

// InsertID implements types.InsertIDReader. PostgreSQL results carry no
// generated id, so the session's last sequence value is read instead.
func (d *Driver) InsertID(ctx context.Context, link types.Link) (int64, error) {
	return sqlbase.QueryInt64(ctx, link, lastInsertIDQuery)
}

// ErrorInfo implements types.Driver for pgx and lib/pq errors.
func (d *Driver) ErrorInfo(err error) types.ErrorInfo {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return types.ErrorInfo{Code: sqlStateCode(pgErr.Code), SQLState: pgErr.Code, Message: pgErr.Message}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return types.ErrorInfo{Code: sqlStateCode(string(pqErr.Code)), SQLState: string(pqErr.Code), Message: pqErr.Message}
	}
	return types.GenericErrorInfo(err)
}

// sqlStateCode returns a numeric SQLSTATE as int, or -1 for class codes with letters.
func sqlStateCode(state string) int {
	n, err := strconv.Atoi(state)
	if err != nil {
		return -1
	}
	return n
}
