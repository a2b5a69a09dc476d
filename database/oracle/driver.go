// Package oracle implements the Oracle backend with the pure-Go go-ora driver.
package oracle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	go_ora "github.com/sijms/go-ora/v2"
	"github.com/sijms/go-ora/v2/network"

	"github.com/gaborage/go-bricks-dbcore/config"
	"github.com/gaborage/go-bricks-dbcore/database/dialect"
	"github.com/gaborage/go-bricks-dbcore/database/internal/sqlbase"
	"github.com/gaborage/go-bricks-dbcore/database/types"
)

const defaultPort = 1521

var openOracleDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("oracle", dsn)
}

// Driver implements types.Driver for Oracle.
type Driver struct{}

var _ types.Driver = (*Driver)(nil)

// NewDriver returns the Oracle driver.
func NewDriver() *Driver { return &Driver{} }

// Vendor implements types.Driver.
func (d *Driver) Vendor() types.Vendor { return types.Oracle }

// Dialect implements types.Driver.
func (d *Driver) Dialect() *dialect.Dialect { return dialect.Oracle() }

// BuildDSN returns the go-ora URL for cfg. The service name is preferred,
// then the SID, then the database name used as service.
func BuildDSN(cfg *config.DatabaseConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	svc := cfg.Oracle.Service
	switch {
	case svc.Name != "":
		return go_ora.BuildUrl(cfg.Host, port, svc.Name, cfg.Username, cfg.Password, nil)
	case svc.SID != "":
		return go_ora.BuildUrl(cfg.Host, port, "", cfg.Username, cfg.Password, map[string]string{"SID": svc.SID})
	default:
		return go_ora.BuildUrl(cfg.Host, port, cfg.Database, cfg.Username, cfg.Password, nil)
	}
}

func sessionInit(cfg *config.DatabaseConfig) []string {
	if cfg.Schema == "" {
		return nil
	}
	return []string{fmt.Sprintf(`ALTER SESSION SET CURRENT_SCHEMA = "%s"`, strings.ReplaceAll(cfg.Schema, `"`, `""`))}
}

// Connect implements types.Driver.
func (d *Driver) Connect(ctx context.Context, cfg *config.DatabaseConfig, persistent bool) (types.Link, error) {
	dsn := BuildDSN(cfg)
	link, err := sqlbase.Connect(ctx, sqlbase.Options{
		Key:        dsn,
		Open:       func() (*sql.DB, error) { return openOracleDB(dsn) },
		Persistent: persistent,
		Init:       sessionInit(cfg),
		Timeout:    cfg.ConnectTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Oracle database: %w", err)
	}
	return link, nil
}

// ErrorInfo implements types.Driver. ORA codes carry no SQLSTATE.
func (d *Driver) ErrorInfo(err error) types.ErrorInfo {
	var oraErr *network.OracleError
	if errors.As(err, &oraErr) {
		return types.ErrorInfo{Code: oraErr.ErrCode, Message: oraErr.ErrMsg}
	}
	return types.GenericErrorInfo(err)
}
