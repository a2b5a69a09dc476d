// Package testing provides a scriptable in-memory types.Driver for exercising
// the connection core without a server.
//
// StubDriver follows an expectation style: register the statements the code
// under test is expected to send, then inspect the call log and counters.
//
//	drv := dbtesting.NewStubDriver(types.MySQL).
//	    QueueConnect(errors.New("refused"), nil)  // first candidate fails, second connects
//	drv.ExpectQuery("SELECT").WillReturnRows(dbtesting.NewRowSet("id").AddRow(1))
//	drv.ExpectExec("INSERT INTO users").WillReturnResult(1, 42)
//
//	conn := database.New(&cfg, log, drv)
//
// Every successful Connect returns a fresh StubLink, but all links share the
// driver's expectations, logs and counters.
package testing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gaborage/go-bricks-dbcore/config"
	"github.com/gaborage/go-bricks-dbcore/database/dialect"
	"github.com/gaborage/go-bricks-dbcore/database/types"
)

// StubError is a driver error with a backend code.
type StubError struct {
	Code    int
	Message string
}

func (e *StubError) Error() string { return fmt.Sprintf("stub error %d: %s", e.Code, e.Message) }

// ConnectCall records one Connect invocation.
type ConnectCall struct {
	Host       string
	Database   string
	Persistent bool
	Err        error
}

// QueryCall represents a single Query dispatch, direct or through a prepared statement.
type QueryCall struct {
	SQL      string
	Args     []any
	Prepared bool
}

// ExecCall represents a single Exec dispatch.
type ExecCall struct {
	SQL      string
	Args     []any
	Prepared bool
}

// QueryExpectation defines what a matching query returns.
type QueryExpectation struct {
	sql  string
	rows *RowSet
	err  error
}

// WillReturnRows sets the rows returned by matching queries.
func (e *QueryExpectation) WillReturnRows(rows *RowSet) *QueryExpectation {
	e.rows = rows
	return e
}

// WillReturnError makes matching queries fail.
func (e *QueryExpectation) WillReturnError(err error) *QueryExpectation {
	e.err = err
	return e
}

// ExecExpectation defines what a matching exec returns.
type ExecExpectation struct {
	sql          string
	rowsAffected int64
	insertID     int64
	err          error
}

// WillReturnResult sets the affected row count and generated id.
func (e *ExecExpectation) WillReturnResult(rowsAffected, insertID int64) *ExecExpectation {
	e.rowsAffected = rowsAffected
	e.insertID = insertID
	return e
}

// WillReturnError makes matching execs fail.
func (e *ExecExpectation) WillReturnError(err error) *ExecExpectation {
	e.err = err
	return e
}

// PrepareExpectation defines the outcome of a matching prepare.
type PrepareExpectation struct {
	sql string
	err error
}

// WillReturnError makes matching prepares fail.
func (e *PrepareExpectation) WillReturnError(err error) *PrepareExpectation {
	e.err = err
	return e
}

// StubDriver implements types.Driver in memory.
type StubDriver struct {
	mu sync.Mutex

	vendor  types.Vendor
	dialect *dialect.Dialect

	connectQueue []error
	connects     []ConnectCall

	queries  []*QueryExpectation
	execs    []*ExecExpectation
	prepares []*PrepareExpectation
	strict   bool

	queryLog []QueryCall
	execLog  []ExecCall

	prepareCalls   int
	stmtCloseCalls int
	beginCalls     int
	commitCalls    int
	rollbackCalls  int
	pingCalls      int
	closeCalls     int

	beginErr    error
	commitErr   error
	rollbackErr error
	pingErr     error
}

var _ types.Driver = (*StubDriver)(nil)

// NewStubDriver returns a stub for vendor using the vendor's default dialect.
// Unknown vendors get the MySQL dialect.
func NewStubDriver(vendor types.Vendor) *StubDriver {
	var d *dialect.Dialect
	switch vendor {
	case types.PostgreSQL:
		d = dialect.Postgres()
	case types.Oracle:
		d = dialect.Oracle()
	case types.SQLite:
		d = dialect.SQLite()
	case types.SQLServer:
		d = dialect.SQLServer()
	default:
		d = dialect.MySQL()
	}
	return &StubDriver{vendor: vendor, dialect: d}
}

// WithDialect replaces the dialect returned by Dialect.
func (d *StubDriver) WithDialect(dl *dialect.Dialect) *StubDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialect = dl
	return d
}

// StrictSQLMatching requires exact SQL matches instead of substring matches.
func (d *StubDriver) StrictSQLMatching() *StubDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.strict = true
	return d
}

// QueueConnect queues Connect outcomes, consumed one per call in order. A nil
// entry connects successfully. Once the queue is empty every Connect succeeds.
func (d *StubDriver) QueueConnect(outcomes ...error) *StubDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectQueue = append(d.connectQueue, outcomes...)
	return d
}

// FailBegin, FailCommit, FailRollback and FailPing make the matching primitive return err.
func (d *StubDriver) FailBegin(err error) *StubDriver    { d.setErr(&d.beginErr, err); return d }
func (d *StubDriver) FailCommit(err error) *StubDriver   { d.setErr(&d.commitErr, err); return d }
func (d *StubDriver) FailRollback(err error) *StubDriver { d.setErr(&d.rollbackErr, err); return d }
func (d *StubDriver) FailPing(err error) *StubDriver     { d.setErr(&d.pingErr, err); return d }

func (d *StubDriver) setErr(target *error, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	*target = err
}

// ExpectQuery registers a query expectation. The first matching expectation wins.
func (d *StubDriver) ExpectQuery(sqlPattern string) *QueryExpectation {
	exp := &QueryExpectation{sql: sqlPattern}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queries = append(d.queries, exp)
	return exp
}

// ExpectExec registers an exec expectation.
func (d *StubDriver) ExpectExec(sqlPattern string) *ExecExpectation {
	exp := &ExecExpectation{sql: sqlPattern}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.execs = append(d.execs, exp)
	return exp
}

// ExpectPrepare registers a prepare expectation. Prepares without a matching
// expectation succeed.
func (d *StubDriver) ExpectPrepare(sqlPattern string) *PrepareExpectation {
	exp := &PrepareExpectation{sql: sqlPattern}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prepares = append(d.prepares, exp)
	return exp
}

// Vendor implements types.Driver.
func (d *StubDriver) Vendor() types.Vendor { return d.vendor }

// Dialect implements types.Driver.
func (d *StubDriver) Dialect() *dialect.Dialect {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dialect
}

// Connect implements types.Driver by consuming the next queued outcome.
func (d *StubDriver) Connect(_ context.Context, cfg *config.DatabaseConfig, persistent bool) (types.Link, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	if len(d.connectQueue) > 0 {
		err = d.connectQueue[0]
		d.connectQueue = d.connectQueue[1:]
	}
	d.connects = append(d.connects, ConnectCall{Host: cfg.Host, Database: cfg.Database, Persistent: persistent, Err: err})
	if err != nil {
		return nil, err
	}
	return &StubLink{driver: d}, nil
}

// ErrorInfo implements types.Driver. *StubError keeps its code.
func (d *StubDriver) ErrorInfo(err error) types.ErrorInfo {
	var se *StubError
	if errors.As(err, &se) {
		return types.ErrorInfo{Code: se.Code, Message: se.Message}
	}
	return types.GenericErrorInfo(err)
}

func (d *StubDriver) matchSQL(expected, actual string) bool {
	if d.strict {
		return strings.TrimSpace(expected) == strings.TrimSpace(actual)
	}
	return strings.Contains(actual, expected)
}

func (d *StubDriver) query(stmt string, args []any, prepared bool) (types.Rows, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queryLog = append(d.queryLog, QueryCall{SQL: stmt, Args: args, Prepared: prepared})

	for _, exp := range d.queries {
		if !d.matchSQL(exp.sql, stmt) {
			continue
		}
		if exp.err != nil {
			return nil, exp.err
		}
		if exp.rows == nil {
			return NewRowSet().cursor(), nil
		}
		return exp.rows.cursor(), nil
	}
	return nil, fmt.Errorf("unexpected query: %s (no matching expectation)", stmt)
}

func (d *StubDriver) exec(stmt string, args []any, prepared bool) (sql.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.execLog = append(d.execLog, ExecCall{SQL: stmt, Args: args, Prepared: prepared})

	for _, exp := range d.execs {
		if !d.matchSQL(exp.sql, stmt) {
			continue
		}
		if exp.err != nil {
			return nil, exp.err
		}
		return stubResult{rowsAffected: exp.rowsAffected, insertID: exp.insertID}, nil
	}
	return nil, fmt.Errorf("unexpected exec: %s (no matching expectation)", stmt)
}

func (d *StubDriver) prepare(stmt string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prepareCalls++
	for _, exp := range d.prepares {
		if d.matchSQL(exp.sql, stmt) {
			return exp.err
		}
	}
	return nil
}

func (d *StubDriver) count(counter *int, err error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	*counter++
	return err
}

// Connects returns every Connect call in order.
func (d *StubDriver) Connects() []ConnectCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ConnectCall(nil), d.connects...)
}

// QueryLog returns every query dispatch.
func (d *StubDriver) QueryLog() []QueryCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]QueryCall(nil), d.queryLog...)
}

// ExecLog returns every exec dispatch.
func (d *StubDriver) ExecLog() []ExecCall {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ExecCall(nil), d.execLog...)
}

// Counters is a snapshot of the primitive call counts.
type Counters struct {
	Connect   int
	Prepare   int
	StmtClose int
	Begin     int
	Commit    int
	Rollback  int
	Ping      int
	Close     int
}

// Counters returns the current call counts.
func (d *StubDriver) Counters() Counters {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Counters{
		Connect:   len(d.connects),
		Prepare:   d.prepareCalls,
		StmtClose: d.stmtCloseCalls,
		Begin:     d.beginCalls,
		Commit:    d.commitCalls,
		Rollback:  d.rollbackCalls,
		Ping:      d.pingCalls,
		Close:     d.closeCalls,
	}
}

// StubLink is the types.Link handed out by StubDriver.
type StubLink struct {
	driver *StubDriver
	inTx   bool
	closed bool
}

var _ types.Link = (*StubLink)(nil)

var errLinkClosed = errors.New("stub link is closed")

func (l *StubLink) Query(_ context.Context, query string, args ...any) (types.Rows, error) {
	if l.closed {
		return nil, errLinkClosed
	}
	return l.driver.query(query, args, false)
}

func (l *StubLink) Exec(_ context.Context, query string, args ...any) (sql.Result, error) {
	if l.closed {
		return nil, errLinkClosed
	}
	return l.driver.exec(query, args, false)
}

func (l *StubLink) Prepare(_ context.Context, query string) (types.Stmt, error) {
	if l.closed {
		return nil, errLinkClosed
	}
	if err := l.driver.prepare(query); err != nil {
		return nil, err
	}
	return &StubStmt{driver: l.driver, sql: query}, nil
}

func (l *StubLink) Begin(_ context.Context) error {
	l.driver.mu.Lock()
	err := l.driver.beginErr
	l.driver.mu.Unlock()
	if err := l.driver.count(&l.driver.beginCalls, err); err != nil {
		return err
	}
	l.inTx = true
	return nil
}

func (l *StubLink) Commit(_ context.Context) error {
	l.driver.mu.Lock()
	err := l.driver.commitErr
	l.driver.mu.Unlock()
	l.inTx = false
	return l.driver.count(&l.driver.commitCalls, err)
}

func (l *StubLink) Rollback(_ context.Context) error {
	l.driver.mu.Lock()
	err := l.driver.rollbackErr
	l.driver.mu.Unlock()
	l.inTx = false
	return l.driver.count(&l.driver.rollbackCalls, err)
}

func (l *StubLink) InTransaction() bool { return l.inTx }

func (l *StubLink) Ping(_ context.Context) error {
	if l.closed {
		return errLinkClosed
	}
	l.driver.mu.Lock()
	err := l.driver.pingErr
	l.driver.mu.Unlock()
	return l.driver.count(&l.driver.pingCalls, err)
}

func (l *StubLink) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	return l.driver.count(&l.driver.closeCalls, nil)
}

// StubStmt is a prepared statement handle. Executions are matched against
// the driver's query and exec expectations.
type StubStmt struct {
	driver *StubDriver
	sql    string
	closed bool
}

var _ types.Stmt = (*StubStmt)(nil)

func (s *StubStmt) Query(_ context.Context, args ...any) (types.Rows, error) {
	if s.closed {
		return nil, errors.New("stub statement is closed")
	}
	return s.driver.query(s.sql, args, true)
}

func (s *StubStmt) Exec(_ context.Context, args ...any) (sql.Result, error) {
	if s.closed {
		return nil, errors.New("stub statement is closed")
	}
	return s.driver.exec(s.sql, args, true)
}

func (s *StubStmt) Close() error {
	if s.closed {
		return errors.New("stub statement already closed")
	}
	s.closed = true
	return s.driver.count(&s.driver.stmtCloseCalls, nil)
}

type stubResult struct {
	rowsAffected int64
	insertID     int64
}

func (r stubResult) LastInsertId() (int64, error) { return r.insertID, nil }
func (r stubResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }
