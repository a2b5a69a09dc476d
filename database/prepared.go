package database

import (
	"context"
	"database/sql"

	"github.com/gaborage/go-bricks-dbcore/database/types"
)

// PreparedState is the lifecycle state of a PreparedQuery.
type PreparedState int

const (
	StateUnprepared PreparedState = iota
	StatePrepared
	StateClosed
)

func (s PreparedState) String() string {
	switch s {
	case StatePrepared:
		return "prepared"
	case StateClosed:
		return "closed"
	default:
		return "unprepared"
	}
}

const (
	msgExecuteUnprepared = "you must call prepare before trying to execute a prepared statement"
	msgCloseUnprepared   = "cannot call close on a non-existing prepared statement"
)

// PreparedQuery is a server-side prepared statement owned by a Connection.
//
// It is created in the Prepared state by Connection.Prepare, can be executed
// any number of times and is closed exactly once, either by Close or by the
// owning connection going away. The zero value is Unprepared.
type PreparedQuery struct {
	conn  *Connection
	query *Query
	sql   string
	stmt  types.Stmt
	state PreparedState
}

// State returns the lifecycle state.
func (p *PreparedQuery) State() PreparedState {
	if p.conn == nil {
		return p.state
	}
	p.conn.mu.Lock()
	defer p.conn.mu.Unlock()
	return p.state
}

// Query returns the template query the statement was prepared from.
func (p *PreparedQuery) Query() *Query { return p.query }

// QueryString returns the statement text sent to the server.
func (p *PreparedQuery) QueryString() string { return p.sql }

// Execute runs the statement with binds. Read statements return a cursor
// Result and write statements a write Result. A failure marks an open
// transaction failed, like any other dispatch.
func (p *PreparedQuery) Execute(ctx context.Context, binds ...any) (*Result, error) {
	if p.conn == nil {
		return nil, newBadMethodCall(msgExecuteUnprepared)
	}
	c := p.conn

	c.mu.Lock()
	if p.state != StatePrepared {
		c.mu.Unlock()
		return nil, newBadMethodCall(msgExecuteUnprepared)
	}

	q := p.query.withBinds(binds)
	if err := q.Validate(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.lastQuery = q

	write := q.IsWriteType()
	res, err := c.sendLocked(ctx, q, "execute", write, func(ctx context.Context) (types.Rows, sql.Result, error) {
		if write {
			r, err := p.stmt.Exec(ctx, q.Args()...)
			return nil, r, err
		}
		rows, err := p.stmt.Query(ctx, q.Args()...)
		return rows, nil, err
	})
	listeners := c.listeners
	c.mu.Unlock()

	for _, l := range listeners {
		l(q)
	}
	return res, err
}

// Close releases the server statement. Closing a statement that is not
// prepared fails with ErrBadMethodCall.
func (p *PreparedQuery) Close() error {
	if p.conn == nil {
		return newBadMethodCall(msgCloseUnprepared)
	}
	c := p.conn

	c.mu.Lock()
	defer c.mu.Unlock()
	if p.state != StatePrepared {
		return newBadMethodCall(msgCloseUnprepared)
	}
	delete(c.prepared, p)
	return p.release()
}

// release closes the statement handle. The connection lock is held.
func (p *PreparedQuery) release() error {
	if p.state != StatePrepared {
		return nil
	}
	p.state = StateClosed
	stmt := p.stmt
	p.stmt = nil
	if stmt == nil {
		return nil
	}
	return stmt.Close()
}
