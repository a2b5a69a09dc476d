package database

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gaborage/go-bricks-dbcore/config"
	"github.com/gaborage/go-bricks-dbcore/database/mysql"
	"github.com/gaborage/go-bricks-dbcore/database/oracle"
	"github.com/gaborage/go-bricks-dbcore/database/postgresql"
	"github.com/gaborage/go-bricks-dbcore/database/sqlite"
	"github.com/gaborage/go-bricks-dbcore/database/sqlsrv"
	"github.com/gaborage/go-bricks-dbcore/database/types"
	"github.com/gaborage/go-bricks-dbcore/logger"
)

// DriverFactory creates a backend driver.
type DriverFactory func() types.Driver

var (
	driversMu sync.RWMutex
	drivers   = map[string]DriverFactory{
		MySQL:      func() types.Driver { return mysql.NewDriver() },
		PostgreSQL: func() types.Driver { return postgresql.NewDriver() },
		Oracle:     func() types.Driver { return oracle.NewDriver() },
		SQLite:     func() types.Driver { return sqlite.NewDriver() },
		SQLServer:  func() types.Driver { return sqlsrv.NewDriver() },
	}
)

// RegisterDriver makes a driver available to Open under name, replacing any
// driver registered under the same name.
func RegisterDriver(name string, factory DriverFactory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[name] = factory
}

// NewDriver returns the driver registered under name.
func NewDriver(name string) (types.Driver, error) {
	driversMu.RLock()
	factory, ok := drivers[name]
	driversMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %v)", ErrUnsupportedDriver, name, SupportedDrivers())
	}
	return factory(), nil
}

// Open creates a Connection for cfg with the driver selected by cfg.Driver.
// The link is opened lazily by the first dispatch.
func Open(cfg *config.DatabaseConfig, log logger.Logger) (*Connection, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: missing configuration", ErrUnsupportedDriver)
	}
	driver, err := NewDriver(cfg.Driver)
	if err != nil {
		return nil, err
	}
	return New(cfg, log, driver), nil
}

// ValidateDriver returns nil if name is a registered driver.
func ValidateDriver(name string) error {
	_, err := NewDriver(name)
	return err
}

// SupportedDrivers returns the registered driver names, sorted.
func SupportedDrivers() []string {
	driversMu.RLock()
	defer driversMu.RUnlock()
	names := make([]string, 0, len(drivers))
	for name := range drivers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
