// Package sqlbase implements types.Link on top of database/sql. Every backend
// driver opens its *sql.DB its own way and hands it to Connect; from there the
// link pins a single *sql.Conn so that one Connection always talks over one
// physical session.
package sqlbase

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gaborage/go-bricks-dbcore/database/types"
)

// ErrNoTransaction is returned by Commit and Rollback without an open transaction.
var ErrNoTransaction = errors.New("sqlbase: no transaction in progress")

// ErrTransactionInProgress is returned by Begin while a transaction is open.
var ErrTransactionInProgress = errors.New("sqlbase: transaction already in progress")

// ErrLinkClosed is returned by every operation after Close.
var ErrLinkClosed = errors.New("sqlbase: link is closed")

// Options describe how to obtain the *sql.DB behind a link.
type Options struct {
	// Key identifies the target for persistent sharing, usually the DSN.
	Key string
	// Open creates the *sql.DB. It is only called when no shared handle exists.
	Open func() (*sql.DB, error)
	// Persistent links share one *sql.DB per Key for the life of the process.
	Persistent bool
	// Init statements run once on the pinned session after connecting.
	Init []string
	// Timeout bounds ping, session pinning and Init. Zero means no extra bound.
	Timeout time.Duration
}

var (
	pingDB = func(ctx context.Context, db *sql.DB) error {
		return db.PingContext(ctx)
	}

	sharedMu sync.Mutex
	shared   = map[string]*sql.DB{}
)

// Link is a types.Link over one pinned *sql.Conn.
type Link struct {
	db      *sql.DB
	conn    *sql.Conn
	tx      *sql.Tx
	release func() error
	closed  bool
}

var _ types.Link = (*Link)(nil)

// Connect opens (or reuses, when persistent) the *sql.DB, verifies it and pins
// one session.
func Connect(ctx context.Context, opts Options) (*Link, error) {
	db, release, err := acquire(opts)
	if err != nil {
		return nil, err
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	fail := func(err error) (*Link, error) {
		if cerr := release(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return nil, err
	}

	if err := pingDB(ctx, db); err != nil {
		return fail(fmt.Errorf("ping failed: %w", err))
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return fail(fmt.Errorf("failed to pin connection: %w", err))
	}

	for _, stmt := range opts.Init {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			_ = conn.Close()
			return fail(fmt.Errorf("session init %q failed: %w", stmt, err))
		}
	}

	return &Link{db: db, conn: conn, release: release}, nil
}

// acquire returns the *sql.DB for opts and the function that gives it back.
func acquire(opts Options) (*sql.DB, func() error, error) {
	if !opts.Persistent {
		db, err := opts.Open()
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	}

	sharedMu.Lock()
	defer sharedMu.Unlock()

	if db, ok := shared[opts.Key]; ok {
		return db, noRelease, nil
	}

	db, err := opts.Open()
	if err != nil {
		return nil, nil, err
	}
	shared[opts.Key] = db
	return db, noRelease, nil
}

func noRelease() error { return nil }

// ClosePersistent closes every shared *sql.DB. Links still using them fail afterwards.
func ClosePersistent() error {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	var errs []error
	for key, db := range shared {
		if err := db.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(shared, key)
	}
	return errors.Join(errs...)
}

// DB exposes the underlying handle, mainly for stats.
func (l *Link) DB() *sql.DB { return l.db }

// Query runs a row-returning statement on the pinned session.
func (l *Link) Query(ctx context.Context, query string, args ...any) (types.Rows, error) {
	if l.closed {
		return nil, ErrLinkClosed
	}
	var (
		rows *sql.Rows
		err  error
	)
	if l.tx != nil {
		rows, err = l.tx.QueryContext(ctx, query, args...)
	} else {
		rows, err = l.conn.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Exec runs a statement that returns no rows.
func (l *Link) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if l.closed {
		return nil, ErrLinkClosed
	}
	if l.tx != nil {
		return l.tx.ExecContext(ctx, query, args...)
	}
	return l.conn.ExecContext(ctx, query, args...)
}

// Prepare prepares query on the pinned session. The statement stays valid
// across transactions because they share the same session.
func (l *Link) Prepare(ctx context.Context, query string) (types.Stmt, error) {
	if l.closed {
		return nil, ErrLinkClosed
	}
	stmt, err := l.conn.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &Stmt{stmt: stmt}, nil
}

// Begin opens a physical transaction.
func (l *Link) Begin(ctx context.Context) error {
	if l.closed {
		return ErrLinkClosed
	}
	if l.tx != nil {
		return ErrTransactionInProgress
	}
	tx, err := l.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	l.tx = tx
	return nil
}

// Commit commits the open transaction.
func (l *Link) Commit(_ context.Context) error {
	if l.tx == nil {
		return ErrNoTransaction
	}
	tx := l.tx
	l.tx = nil
	return tx.Commit()
}

// Rollback rolls back the open transaction.
func (l *Link) Rollback(_ context.Context) error {
	if l.tx == nil {
		return ErrNoTransaction
	}
	tx := l.tx
	l.tx = nil
	return tx.Rollback()
}

// InTransaction reports whether a physical transaction is open.
func (l *Link) InTransaction() bool { return l.tx != nil }

// Ping checks the pinned session.
func (l *Link) Ping(ctx context.Context) error {
	if l.closed {
		return ErrLinkClosed
	}
	return l.conn.PingContext(ctx)
}

// Close rolls back a pending transaction, returns the session and releases
// the *sql.DB unless it is shared. Closing twice is a no-op.
func (l *Link) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true

	var errs []error
	if l.tx != nil {
		if err := l.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			errs = append(errs, fmt.Errorf("rollback on close: %w", err))
		}
		l.tx = nil
	}
	if err := l.conn.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		errs = append(errs, err)
	}
	if err := l.release(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Stmt wraps *sql.Stmt to implement types.Stmt
type Stmt struct {
	stmt *sql.Stmt
}

// Query executes the prepared statement and returns its rows
func (s *Stmt) Query(ctx context.Context, args ...any) (types.Rows, error) {
	rows, err := s.stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Exec executes the prepared statement with arguments
func (s *Stmt) Exec(ctx context.Context, args ...any) (sql.Result, error) {
	return s.stmt.ExecContext(ctx, args...)
}

// Close closes the prepared statement
func (s *Stmt) Close() error {
	return s.stmt.Close()
}

// QueryInt64 runs a single row, single column query on link and returns the
// value as int64. A NULL value yields 0.
func QueryInt64(ctx context.Context, link types.Link, query string) (int64, error) {
	rows, err := link.Query(ctx, query)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, err
		}
		return 0, sql.ErrNoRows
	}
	var v sql.NullInt64
	if err := rows.Scan(&v); err != nil {
		return 0, err
	}
	return v.Int64, rows.Err()
}
