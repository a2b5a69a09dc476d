package database

import (
	"errors"
	"fmt"

	"github.com/gaborage/go-bricks-dbcore/database/types"
)

var (
	// ErrConnectionFailed is returned when no candidate in the failover list could be reached.
	ErrConnectionFailed = errors.New("unable to connect to the database")
	// ErrBadMethodCall marks a lifecycle misuse by the caller, such as executing a closed statement.
	ErrBadMethodCall = errors.New("bad method call")
	// ErrQueryFinalized is returned when a Query is modified after SetDuration.
	ErrQueryFinalized = errors.New("query is finalized")
	// ErrUnsupportedDriver is returned by Open for unknown driver names.
	ErrUnsupportedDriver = errors.New("unsupported database driver")
	// ErrPreparedQueryFailed wraps a driver prepare failure.
	ErrPreparedQueryFailed = errors.New("failed to prepare statement")
	// ErrTransactionRolledBack is returned by Transaction when the outermost level rolled back.
	ErrTransactionRolledBack = errors.New("transaction rolled back")
	// ErrEmptyQuery is returned when dispatching blank SQL.
	ErrEmptyQuery = errors.New("empty query")
	// ErrConnectionClosed is returned by dispatches after Close.
	ErrConnectionClosed = errors.New("connection is closed")
)

// DatabaseError is a dispatch failure reported by the server.
type DatabaseError struct {
	Op   string
	SQL  string
	Info types.ErrorInfo
	Err  error
}

func (e *DatabaseError) Error() string {
	if e.Info.Message != "" {
		return fmt.Sprintf("%s failed: %s", e.Op, e.Info)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// newBadMethodCall returns an ErrBadMethodCall carrying msg.
func newBadMethodCall(msg string) error {
	return fmt.Errorf("%w: %s", ErrBadMethodCall, msg)
}

// IsDatabaseError reports whether err carries a *DatabaseError and returns it.
func IsDatabaseError(err error) (*DatabaseError, bool) {
	var dbErr *DatabaseError
	if errors.As(err, &dbErr) {
		return dbErr, true
	}
	return nil, false
}
