// Package sqlite implements the SQLite backend with the cgo-free modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	msqlite "modernc.org/sqlite"

	"github.com/gaborage/go-bricks-dbcore/config"
	"github.com/gaborage/go-bricks-dbcore/database/dialect"
	"github.com/gaborage/go-bricks-dbcore/database/internal/sqlbase"
	"github.com/gaborage/go-bricks-dbcore/database/types"
)

// MemoryDatabase is the database name of a private in-memory database.
const MemoryDatabase = ":memory:"

var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("sqlite", dsn)
}

// Driver implements types.Driver for SQLite.
type Driver struct{}

var _ types.Driver = (*Driver)(nil)

// NewDriver returns the SQLite driver.
func NewDriver() *Driver { return &Driver{} }

// Vendor implements types.Driver.
func (d *Driver) Vendor() types.Vendor { return types.SQLite }

// Dialect implements types.Driver.
func (d *Driver) Dialect() *dialect.Dialect { return dialect.SQLite() }

// BuildDSN returns the modernc DSN for cfg. Database is the file path; an
// empty path opens an in-memory database. Pragmas are applied per session.
func BuildDSN(cfg *config.DatabaseConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	path := cfg.Database
	if path == "" {
		path = MemoryDatabase
	}

	var pragmas []string
	if cfg.SQLite.ForeignKeys {
		pragmas = append(pragmas, "_pragma=foreign_keys(1)")
	}
	if cfg.SQLite.BusyTimeout > 0 {
		pragmas = append(pragmas, fmt.Sprintf("_pragma=busy_timeout(%d)", cfg.SQLite.BusyTimeout.Milliseconds()))
	}
	if len(pragmas) == 0 {
		return path
	}
	return "file:" + path + "?" + strings.Join(pragmas, "&")
}

// Connect implements types.Driver.
func (d *Driver) Connect(ctx context.Context, cfg *config.DatabaseConfig, persistent bool) (types.Link, error) {
	dsn := BuildDSN(cfg)
	link, err := sqlbase.Connect(ctx, sqlbase.Options{
		Key:        dsn,
		Open:       func() (*sql.DB, error) { return openDB(dsn) },
		Persistent: persistent,
		Timeout:    cfg.ConnectTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	return link, nil
}

// ErrorInfo implements types.Driver. The code is the extended result code.
func (d *Driver) ErrorInfo(err error) types.ErrorInfo {
	var liteErr *msqlite.Error
	if errors.As(err, &liteErr) {
		return types.ErrorInfo{Code: liteErr.Code(), Message: liteErr.Error()}
	}
	return types.GenericErrorInfo(err)
}
