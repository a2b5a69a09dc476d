package database

import "github.com/gaborage/go-bricks-dbcore/database/types"

// Re-export database vendor identifiers so callers using the database
// package do not need to import types.
const (
	MySQL      = types.MySQL
	PostgreSQL = types.PostgreSQL
	Oracle     = types.Oracle
	SQLite     = types.SQLite
	SQLServer  = types.SQLServer
)
