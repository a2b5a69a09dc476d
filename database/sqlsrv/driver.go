// Package sqlsrv implements the Microsoft SQL Server backend with go-mssqldb.
package sqlsrv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	mssql "github.com/microsoft/go-mssqldb"

	"github.com/gaborage/go-bricks-dbcore/config"
	"github.com/gaborage/go-bricks-dbcore/database/dialect"
	"github.com/gaborage/go-bricks-dbcore/database/internal/sqlbase"
	"github.com/gaborage/go-bricks-dbcore/database/types"
)

const (
	defaultPort = 1433

	lastInsertIDQuery = "SELECT CAST(@@IDENTITY AS BIGINT)"
)

var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("sqlserver", dsn)
}

// Driver implements types.Driver for SQL Server.
type Driver struct{}

var (
	_ types.Driver         = (*Driver)(nil)
	_ types.InsertIDReader = (*Driver)(nil)
)

// NewDriver returns the SQL Server driver.
func NewDriver() *Driver { return &Driver{} }

// Vendor implements types.Driver.
func (d *Driver) Vendor() types.Vendor { return types.SQLServer }

// Dialect implements types.Driver.
func (d *Driver) Dialect() *dialect.Dialect { return dialect.SQLServer() }

// BuildDSN returns the sqlserver:// URL for cfg. An explicit DSN wins.
func BuildDSN(cfg *config.DatabaseConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	q := url.Values{}
	if cfg.Database != "" {
		q.Set("database", cfg.Database)
	}
	if cfg.SQLServer.Encrypt != "" {
		q.Set("encrypt", cfg.SQLServer.Encrypt)
	}
	if cfg.ConnectTimeout > 0 {
		q.Set("dial timeout", strconv.Itoa(max(1, int(cfg.ConnectTimeout.Seconds()))))
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, strconv.Itoa(port)),
		RawQuery: q.Encode(),
	}
	return u.String()
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
		return nil, fmt.Errorf("failed to connect to SQL Server database: %w", err)
	}
	return link, nil
}

// InsertID implements types.InsertIDReader. The driver does not support
// LastInsertId, so the session identity is read instead.
func (d *Driver) InsertID(ctx context.Context, link types.Link) (int64, error) {
	return sqlbase.QueryInt64(ctx, link, lastInsertIDQuery)
}

// ErrorInfo implements types.Driver.
func (d *Driver) ErrorInfo(err error) types.ErrorInfo {
	var msErr mssql.Error
	if errors.As(err, &msErr) {
		return types.ErrorInfo{
			Code:     int(msErr.Number),
			SQLState: strconv.Itoa(int(msErr.State)),
			Message:  msErr.Message,
		}
	}
	return types.GenericErrorInfo(err)
}
