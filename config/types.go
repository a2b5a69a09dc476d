package config

import (
	"slices"
	"time"
)

// Config represents the overall configuration structure: the default database
// group, additional named groups, the connection manager and logging.
type Config struct {
	Database  DatabaseConfig            `koanf:"database" json:"database" yaml:"database" mapstructure:"database"`
	Databases map[string]DatabaseConfig `koanf:"databases" json:"databases" yaml:"databases" mapstructure:"databases" validate:"dive"`
	Manager   ManagerConfig             `koanf:"manager" json:"manager" yaml:"manager" mapstructure:"manager"`
	Log       LogConfig                 `koanf:"log" json:"log" yaml:"log" mapstructure:"log"`
}

// DefaultGroup is the name under which Config.Database is registered.
const DefaultGroup = "default"

// Group returns the database group registered under name. The default group
// is Config.Database unless Databases overrides it.
func (c *Config) Group(name string) (DatabaseConfig, bool) {
	if name == "" {
		name = DefaultGroup
	}
	if g, ok := c.Databases[name]; ok {
		return g, true
	}
	if name == DefaultGroup && IsDatabaseConfigured(&c.Database) {
		return c.Database, true
	}
	return DatabaseConfig{}, false
}

// GroupNames returns the names Group resolves, sorted.
func (c *Config) GroupNames() []string {
	names := make([]string, 0, len(c.Databases)+1)
	for name := range c.Databases {
		names = append(names, name)
	}
	if _, ok := c.Databases[DefaultGroup]; !ok && IsDatabaseConfigured(&c.Database) {
		names = append(names, DefaultGroup)
	}
	slices.Sort(names)
	return names
}

// DatabaseConfig holds the settings of one connection group.
// A Connection copies it at construction and never mutates it.
type DatabaseConfig struct {
	Driver   string `koanf:"driver" json:"driver" yaml:"driver" mapstructure:"driver" validate:"omitempty,oneof=mysql postgresql oracle sqlite sqlsrv"`
	DSN      string `koanf:"dsn" json:"dsn" yaml:"dsn" mapstructure:"dsn"`
	Host     string `koanf:"host" json:"host" yaml:"host" mapstructure:"host"`
	Port     int    `koanf:"port" json:"port" yaml:"port" mapstructure:"port" validate:"gte=0,lte=65535"`
	Username string `koanf:"username" json:"username" yaml:"username" mapstructure:"username"`
	Password string `koanf:"password" json:"-" yaml:"password" mapstructure:"password"`
	Database string `koanf:"database" json:"database" yaml:"database" mapstructure:"database"`
	Schema   string `koanf:"schema" json:"schema" yaml:"schema" mapstructure:"schema"`

	// Prefix is prepended to table names by the identifier helpers.
	Prefix string `koanf:"prefix" json:"prefix" yaml:"prefix" mapstructure:"prefix"`
	// SwapPrefix is replaced by Prefix in raw SQL before dispatch.
	SwapPrefix string `koanf:"swapprefix" json:"swapprefix" yaml:"swapprefix" mapstructure:"swapprefix"`
	Charset    string `koanf:"charset" json:"charset" yaml:"charset" mapstructure:"charset"`
	Collation  string `koanf:"collation" json:"collation" yaml:"collation" mapstructure:"collation"`

	// Placeholder overrides the driver's placeholder style (question, dollar, colon, atp).
	Placeholder string      `koanf:"placeholder" json:"placeholder" yaml:"placeholder" mapstructure:"placeholder" validate:"omitempty,oneof=question dollar colon atp"`
	Quote       QuoteConfig `koanf:"quote" json:"quote" yaml:"quote" mapstructure:"quote"`

	// Debug turns dispatch failures inside a transaction into a full rollback.
	Debug          bool          `koanf:"debug" json:"debug" yaml:"debug" mapstructure:"debug"`
	Persistent     bool          `koanf:"persistent" json:"persistent" yaml:"persistent" mapstructure:"persistent"`
	IdleTimeout    time.Duration `koanf:"idletimeout" json:"idletimeout" yaml:"idletimeout" mapstructure:"idletimeout" validate:"gte=0"`
	ConnectTimeout time.Duration `koanf:"connecttimeout" json:"connecttimeout" yaml:"connecttimeout" mapstructure:"connecttimeout" validate:"gte=0"`

	// Failover entries are tried in order when the primary cannot connect.
	Failover []DatabaseConfig `koanf:"failover" json:"failover" yaml:"failover" mapstructure:"failover" validate:"dive"`

	Transaction TransactionConfig `koanf:"transaction" json:"transaction" yaml:"transaction" mapstructure:"transaction"`
	Query       QueryConfig       `koanf:"query" json:"query" yaml:"query" mapstructure:"query"`

	PostgreSQL PostgreSQLConfig `koanf:"postgresql" json:"postgresql" yaml:"postgresql" mapstructure:"postgresql"`
	MySQL      MySQLConfig      `koanf:"mysql" json:"mysql" yaml:"mysql" mapstructure:"mysql"`
	Oracle     OracleConfig     `koanf:"oracle" json:"oracle" yaml:"oracle" mapstructure:"oracle"`
	SQLite     SQLiteConfig     `koanf:"sqlite" json:"sqlite" yaml:"sqlite" mapstructure:"sqlite"`
	SQLServer  SQLServerConfig  `koanf:"sqlsrv" json:"sqlsrv" yaml:"sqlsrv" mapstructure:"sqlsrv"`
}

// QuoteConfig overrides identifier quoting.
type QuoteConfig struct {
	Open  string `koanf:"open" json:"open" yaml:"open" mapstructure:"open"`
	Close string `koanf:"close" json:"close" yaml:"close" mapstructure:"close"`
}

// TransactionConfig holds transaction tracker switches.
type TransactionConfig struct {
	// Strict keeps the failed status after a rollback until it is reset.
	Strict bool `koanf:"strict" json:"strict" yaml:"strict" mapstructure:"strict"`
	// Disabled turns TransStart/TransComplete into no-ops.
	Disabled bool `koanf:"disabled" json:"disabled" yaml:"disabled" mapstructure:"disabled"`
}

// QueryConfig holds settings related to query logging and slow query detection.
type QueryConfig struct {
	Slow SlowQueryConfig `koanf:"slow" json:"slow" yaml:"slow" mapstructure:"slow"`
	Log  QueryLogConfig  `koanf:"log" json:"log" yaml:"log" mapstructure:"log"`
}

// SlowQueryConfig holds settings for slow query detection.
type SlowQueryConfig struct {
	Threshold time.Duration `koanf:"threshold" json:"threshold" yaml:"threshold" mapstructure:"threshold" validate:"gte=0"`
	Enabled   bool          `koanf:"enabled" json:"enabled" yaml:"enabled" mapstructure:"enabled"`
}

// QueryLogConfig holds settings for query logging.
type QueryLogConfig struct {
	Parameters bool `koanf:"parameters" json:"parameters" yaml:"parameters" mapstructure:"parameters"`
	MaxLength  int  `koanf:"maxlength" json:"maxlength" yaml:"maxlength" mapstructure:"maxlength" validate:"gte=0"`
}

// Postgres driver flavours.
const (
	PostgresDriverPgx = "pgx"
	PostgresDriverPq  = "pq"
)

// PostgreSQLConfig holds PostgreSQL-specific database settings.
type PostgreSQLConfig struct {
	Driver  string `koanf:"driver" json:"driver" yaml:"driver" mapstructure:"driver" validate:"omitempty,oneof=pgx pq"`
	SSLMode string `koanf:"sslmode" json:"sslmode" yaml:"sslmode" mapstructure:"sslmode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
}

// MySQLConfig holds MySQL-specific database settings.
type MySQLConfig struct {
	// Strict enables STRICT_ALL_TABLES for the session.
	Strict   bool `koanf:"strict" json:"strict" yaml:"strict" mapstructure:"strict"`
	Compress bool `koanf:"compress" json:"compress" yaml:"compress" mapstructure:"compress"`
}

// OracleConfig holds Oracle-specific database settings.
type OracleConfig struct {
	Service ServiceConfig `koanf:"service" json:"service" yaml:"service" mapstructure:"service"`
}

// ServiceConfig holds Oracle service connection settings.
type ServiceConfig struct {
	Name string `koanf:"name" json:"name" yaml:"name" mapstructure:"name"`
	SID  string `koanf:"sid" json:"sid" yaml:"sid" mapstructure:"sid"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	ForeignKeys bool          `koanf:"foreignkeys" json:"foreignkeys" yaml:"foreignkeys" mapstructure:"foreignkeys"`
	BusyTimeout time.Duration `koanf:"busytimeout" json:"busytimeout" yaml:"busytimeout" mapstructure:"busytimeout" validate:"gte=0"`
}

// SQLServerConfig holds SQL Server-specific settings.
type SQLServerConfig struct {
	Encrypt string `koanf:"encrypt" json:"encrypt" yaml:"encrypt" mapstructure:"encrypt" validate:"omitempty,oneof=true false disable strict"`
}

// ManagerConfig bounds the connection manager.
type ManagerConfig struct {
	// MaxSize is the maximum number of live connection groups. 0 means unlimited.
	MaxSize int `koanf:"maxsize" json:"maxsize" yaml:"maxsize" mapstructure:"maxsize" validate:"gte=0"`
	// IdleTTL closes groups unused for longer than this. 0 disables the cleanup loop.
	IdleTTL         time.Duration `koanf:"idlettl" json:"idlettl" yaml:"idlettl" mapstructure:"idlettl" validate:"gte=0"`
	CleanupInterval time.Duration `koanf:"cleanupinterval" json:"cleanupinterval" yaml:"cleanupinterval" mapstructure:"cleanupinterval" validate:"gte=0"`
	// QueryLog is the capacity of the shared query history. 0 disables it.
	QueryLog int `koanf:"querylog" json:"querylog" yaml:"querylog" mapstructure:"querylog" validate:"gte=0"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level" mapstructure:"level" validate:"omitempty,oneof=trace debug info warn error fatal disabled"`
	Pretty bool   `koanf:"pretty" json:"pretty" yaml:"pretty" mapstructure:"pretty"`
}

// FailoverCandidate returns the i-th failover entry with the primary's
// non-connection settings filled in where the entry leaves them empty.
func (c *DatabaseConfig) FailoverCandidate(i int) DatabaseConfig {
	fo := c.Failover[i]
	if fo.Driver == "" {
		fo.Driver = c.Driver
	}
	if fo.Prefix == "" {
		fo.Prefix = c.Prefix
	}
	if fo.Charset == "" {
		fo.Charset = c.Charset
	}
	if fo.Collation == "" {
		fo.Collation = c.Collation
	}
	if fo.ConnectTimeout == 0 {
		fo.ConnectTimeout = c.ConnectTimeout
	}
	if fo.PostgreSQL == (PostgreSQLConfig{}) {
		fo.PostgreSQL = c.PostgreSQL
	}
	if fo.MySQL == (MySQLConfig{}) {
		fo.MySQL = c.MySQL
	}
	if fo.Oracle == (OracleConfig{}) {
		fo.Oracle = c.Oracle
	}
	if fo.SQLite == (SQLiteConfig{}) {
		fo.SQLite = c.SQLite
	}
	if fo.SQLServer == (SQLServerConfig{}) {
		fo.SQLServer = c.SQLServer
	}
	fo.Failover = nil
	return fo
}
