// Package mysql implements the MySQL backend with go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/gaborage/go-bricks-dbcore/config"
	"github.com/gaborage/go-bricks-dbcore/database/dialect"
	"github.com/gaborage/go-bricks-dbcore/database/internal/sqlbase"
	"github.com/gaborage/go-bricks-dbcore/database/types"
)

const (
	defaultPort = 3306

	strictModeSQL = "SET SESSION sql_mode = CONCAT(@@sql_mode, ',STRICT_ALL_TABLES')"
)

var openDB = func(dsn string) (*sql.DB, error) {
	return sql.Open("mysql", dsn)
}

// Driver implements types.Driver for MySQL and MariaDB.
type Driver struct{}

var _ types.Driver = (*Driver)(nil)

// NewDriver returns the MySQL driver.
func NewDriver() *Driver { return &Driver{} }

// Vendor implements types.Driver.
func (d *Driver) Vendor() types.Vendor { return types.MySQL }

// Dialect implements types.Driver.
func (d *Driver) Dialect() *dialect.Dialect { return dialect.MySQL() }

// BuildDSN returns the go-sql-driver DSN for cfg. An explicit DSN wins.
func BuildDSN(cfg *config.DatabaseConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}

	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	mc := gomysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(port))
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Timeout = cfg.ConnectTimeout
	if cfg.Collation != "" {
		mc.Collation = cfg.Collation
	}
	if cfg.Charset != "" {
		mc.Params = map[string]string{"charset": cfg.Charset}
	}

	dsn := mc.FormatDSN()
	if cfg.MySQL.Compress {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "compress=true"
	}
	return dsn
}

// Connect implements types.Driver.
func (d *Driver) Connect(ctx context.Context, cfg *config.DatabaseConfig, persistent bool) (types.Link, error) {
	dsn := BuildDSN(cfg)
	if _, err := gomysql.ParseDSN(dsn); err != nil {
		return nil, fmt.Errorf("invalid MySQL DSN: %w", err)
	}

	var init []string
	if cfg.MySQL.Strict {
		init = append(init, strictModeSQL)
	}

	link, err := sqlbase.Connect(ctx, sqlbase.Options{
		Key:        dsn,
		Open:       func() (*sql.DB, error) { return openDB(dsn) },
		Persistent: persistent,
		Init:       init,
		Timeout:    cfg.ConnectTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}
	return link, nil
}

// ErrorInfo implements types.Driver.
func (d *Driver) ErrorInfo(err error) types.ErrorInfo {
	var myErr *gomysql.MySQLError
	if errors.As(err, &myErr) {
		return types.ErrorInfo{
			Code:     int(myErr.Number),
			SQLState: strings.TrimRight(string(myErr.SQLState[:]), "\x00"),
			Message:  myErr.Message,
		}
	}
	return types.GenericErrorInfo(err)
}
