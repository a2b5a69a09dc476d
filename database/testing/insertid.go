package testing

import (
	"context"
	"sync/atomic"

	"github.com/gaborage/go-bricks-dbcore/database/types"
)

// InsertIDDriver is a StubDriver that reads generated ids back on the link,
// the way PostgreSQL does with LASTVAL().
type InsertIDDriver struct {
	*StubDriver

	ID  int64
	Err error

	calls atomic.Int32
}

var _ types.InsertIDReader = (*InsertIDDriver)(nil)

// NewInsertIDDriver wraps a fresh stub for vendor.
func NewInsertIDDriver(vendor types.Vendor) *InsertIDDriver {
	return &InsertIDDriver{StubDriver: NewStubDriver(vendor)}
}

// InsertID implements types.InsertIDReader.
func (d *InsertIDDriver) InsertID(context.Context, types.Link) (int64, error) {
	d.calls.Add(1)
	return d.ID, d.Err
}

// InsertIDCalls reports how often InsertID was asked.
func (d *InsertIDDriver) InsertIDCalls() int { return int(d.calls.Load()) }
