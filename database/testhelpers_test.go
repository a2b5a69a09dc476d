package database

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-bricks-dbcore/config"
	dbtesting "github.com/gaborage/go-bricks-dbcore/database/testing"
	"github.com/gaborage/go-bricks-dbcore/database/types"
	"github.com/gaborage/go-bricks-dbcore/logger"
)

// newTestLogger creates an error-level logger so failing dispatches stay visible.
func newTestLogger() logger.Logger {
	return logger.New("error", false)
}

// newStubConnection returns a connection backed by a stub driver, with the
// default configuration of vendor. mutate may adjust the configuration.
func newStubConnection(t *testing.T, vendor types.Vendor, mutate ...func(*config.DatabaseConfig)) (*Connection, *dbtesting.StubDriver) {
	t.Helper()

	cfg := config.DefaultDatabaseConfig(vendor)
	cfg.Host = "primary"
	cfg.Database = "app"
	for _, m := range mutate {
		m(&cfg)
	}

	drv := dbtesting.NewStubDriver(vendor)
	conn := New(&cfg, newTestLogger(), drv)
	t.Cleanup(func() { _ = conn.Close() })
	require.True(t, conn.TransEnabled())
	return conn, drv
}
