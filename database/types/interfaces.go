// Package types contains the driver capability interfaces the connection core
// depends on. They are separate from the main database package to avoid import
// cycles between the core and the per-backend drivers, and to keep them easy
// to stub in tests.
//
//nolint:revive // Package name "types" is intentionally generic to avoid circular imports
package types

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gaborage/go-bricks-dbcore/config"
	"github.com/gaborage/go-bricks-dbcore/database/dialect"
)

// Database vendor identifiers shared across the database packages.
type Vendor = string

const (
	MySQL      Vendor = config.MySQL
	PostgreSQL Vendor = config.PostgreSQL
	Oracle     Vendor = config.Oracle
	SQLite     Vendor = config.SQLite
	SQLServer  Vendor = config.SQLServer
)

// Rows is a forward-only driver cursor. *sql.Rows satisfies it.
type Rows interface {
	Columns() ([]string, error)
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

// Stmt is a prepared statement handle owned by exactly one PreparedQuery.
type Stmt interface {
	Query(ctx context.Context, args ...any) (Rows, error)
	Exec(ctx context.Context, args ...any) (sql.Result, error)
	Close() error
}

// Link is one live connection to a server. A Link is not safe for concurrent
// use; the owning Connection serializes access.
type Link interface {
	Query(ctx context.Context, query string, args ...any) (Rows, error)
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)
	Prepare(ctx context.Context, query string) (Stmt, error)

	// Begin, Commit and Rollback drive one physical transaction.
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	InTransaction() bool

	Ping(ctx context.Context) error
	Close() error
}

// Driver is the per-backend capability set. One implementation exists per
// vendor; the connection core depends only on this interface.
type Driver interface {
	Vendor() Vendor
	// Dialect returns the backend's default dialect. Callers may customize a clone.
	Dialect() *dialect.Dialect
	// Connect opens a new link for cfg. It never installs the link anywhere.
	Connect(ctx context.Context, cfg *config.DatabaseConfig, persistent bool) (Link, error)
	// ErrorInfo extracts the backend error code and message from err.
	ErrorInfo(err error) ErrorInfo
}

// InsertIDReader is implemented by drivers whose sql.Result does not carry
// the last generated id.
type InsertIDReader interface {
	InsertID(ctx context.Context, link Link) (int64, error)
}

// ErrorInfo is the structured error of the last dispatch.
type ErrorInfo struct {
	Code     int    `json:"code"`
	SQLState string `json:"sqlstate,omitempty"`
	Message  string `json:"message"`
}

// IsZero reports whether no error is recorded.
func (e ErrorInfo) IsZero() bool {
	return e.Code == 0 && e.SQLState == "" && e.Message == ""
}

func (e ErrorInfo) String() string {
	if e.SQLState != "" {
		return fmt.Sprintf("%d (%s): %s", e.Code, e.SQLState, e.Message)
	}
	return fmt.Sprintf("%d: %s", e.Code, e.Message)
}

// GenericErrorInfo is the fallback classification for errors a driver does not recognise.
func GenericErrorInfo(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{}
	}
	return ErrorInfo{Code: -1, Message: err.Error()}
}
