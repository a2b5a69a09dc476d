package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gaborage/go-bricks-dbcore/config"
	"github.com/gaborage/go-bricks-dbcore/database/dialect"
	"github.com/gaborage/go-bricks-dbcore/database/internal/tracking"
	"github.com/gaborage/go-bricks-dbcore/database/types"
	"github.com/gaborage/go-bricks-dbcore/logger"
)

// QueryListener is called after every dispatched query, successful or not.
// Listeners run outside the connection lock and may use the connection.
type QueryListener func(q *Query)

// Connection owns one driver link and is the single entry point for
// dispatching statements against it.
//
// The link is opened lazily by the first dispatch, trying the primary
// configuration and then every failover entry in order. All link use is
// serialized by one mutex; separate Connections share nothing.
type Connection struct {
	mu sync.Mutex

	cfg     config.DatabaseConfig
	driver  types.Driver
	dialect *dialect.Dialect
	log     logger.Logger
	id      string
	tc      *tracking.Context
	tracker *TransactionTracker

	link            types.Link
	connectedAt     time.Time
	connectDuration time.Duration
	lastUsed        atomic.Int64
	unregisterPool  func()
	closed          bool
	pretend         bool
	building        bool

	lastQuery  *Query
	lastErr    types.ErrorInfo
	affected   int64
	insertID   int64
	openResult *Result
	prepared   map[*PreparedQuery]struct{}
	listeners  []QueryListener
	version    string
}

// New creates a Connection for driver. The configuration is copied and never
// read from cfg again. Transactions are tracked unless cfg disables them.
func New(cfg *config.DatabaseConfig, log logger.Logger, driver types.Driver) *Connection {
	c := &Connection{
		driver:   driver,
		id:       uuid.NewString(),
		prepared: make(map[*PreparedQuery]struct{}),
	}
	if cfg != nil {
		c.cfg = *cfg
		c.cfg.Failover = append([]config.DatabaseConfig(nil), cfg.Failover...)
	}
	if log == nil {
		log = logger.Nop()
	}
	c.log = log
	c.dialect = buildDialect(driver.Dialect(), &c.cfg)
	c.tc = &tracking.Context{
		Logger:       log,
		Vendor:       driver.Vendor(),
		ConnectionID: c.id,
		Settings:     tracking.NewSettings(&c.cfg),
	}
	c.tracker = NewTransactionTracker(connTx{c}, c.cfg.Transaction.Strict)
	c.tracker.SetEnabled(!c.cfg.Transaction.Disabled)
	return c
}

func buildDialect(base *dialect.Dialect, cfg *config.DatabaseConfig) *dialect.Dialect {
	if base == nil {
		base = dialect.MySQL()
	}
	d := base.Clone()
	if cfg.Placeholder != "" {
		if style, err := dialect.ParseStyle(cfg.Placeholder); err == nil {
			d = d.WithStyle(style)
		}
	}
	if cfg.Quote.Open != "" {
		d = d.WithQuotes(cfg.Quote.Open, cfg.Quote.Close)
	}
	return d
}

// ID identifies the connection in logs, spans and metrics.
func (c *Connection) ID() string { return c.id }

// LastUsed returns when the connection last connected or completed a
// statement, or the zero time before that. It never waits for a running
// statement.
func (c *Connection) LastUsed() time.Time {
	ns := c.lastUsed.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Config returns a copy of the connection's configuration.
func (c *Connection) Config() config.DatabaseConfig { return c.cfg }

// Connect asks the driver for a fresh link to the primary target. The link
// is returned to the caller and not installed on the connection.
func (c *Connection) Connect(ctx context.Context, persistent bool) (types.Link, error) {
	cfg := c.cfg
	return c.driver.Connect(ctx, &cfg, persistent)
}

// PersistentConnect is Connect with a shared, process-wide handle.
func (c *Connection) PersistentConnect(ctx context.Context) (types.Link, error) {
	return c.Connect(ctx, true)
}

// Initialize installs a link if none is installed yet. Dispatches call it
// implicitly.
func (c *Connection) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initializeLocked(ctx)
}

func (c *Connection) initializeLocked(ctx context.Context) error {
	if c.closed {
		return ErrConnectionClosed
	}
	if c.building {
		return newBadMethodCall("the connection handed to a prepare builder cannot reach the server")
	}
	if c.link != nil {
		return nil
	}

	start := time.Now()
	candidates := 1 + len(c.cfg.Failover)
	var lastErr error
	for i := 0; i < candidates; i++ {
		cand := c.cfg
		if i > 0 {
			cand = c.cfg.FailoverCandidate(i - 1)
		}

		link, err := c.driver.Connect(ctx, &cand, c.cfg.Persistent)
		if err != nil {
			lastErr = err
			c.log.Warn().
				Err(err).
				Str("connection_id", c.id).
				Str("host", cand.Host).
				Str("database", cand.Database).
				Int("attempt", i+1).
				Msg("Database connection attempt failed")
			if ctx.Err() != nil {
				break
			}
			continue
		}

		now := time.Now()
		c.link = link
		c.connectedAt = now
		c.lastUsed.Store(now.UnixNano())
		c.connectDuration = now.Sub(start)
		c.registerPoolMetrics(link)

		c.log.Info().
			Str("connection_id", c.id).
			Str("vendor", c.driver.Vendor()).
			Str("host", cand.Host).
			Int("port", cand.Port).
			Str("database", cand.Database).
			Bool("failover", i > 0).
			Dur("connect_duration", c.connectDuration).
			Msg("Connected to database")
		return nil
	}

	if lastErr == nil {
		lastErr = ctx.Err()
	}
	c.lastErr = c.driver.ErrorInfo(lastErr)
	return fmt.Errorf("%w: %w", ErrConnectionFailed, lastErr)
}

func (c *Connection) registerPoolMetrics(link types.Link) {
	h, ok := link.(interface{ DB() *sql.DB })
	if !ok || h.DB() == nil {
		return
	}
	c.unregisterPool = tracking.RegisterPoolMetrics(h.DB().Stats, c.driver.Vendor(), c.id)
}

// Reconnect replaces the installed link when it has been idle longer than
// the configured idle timeout or no longer answers a ping. A healthy link is
// kept. Open prepared statements and any open transaction die with a
// replaced link.
func (c *Connection) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnectionClosed
	}
	if c.link == nil {
		return c.initializeLocked(ctx)
	}

	idle := time.Since(c.LastUsed())
	if c.cfg.IdleTimeout > 0 && idle > c.cfg.IdleTimeout {
		c.log.Info().
			Str("connection_id", c.id).
			Dur("idle", idle).
			Msg("Database link idle beyond timeout, reconnecting")
	} else {
		c.releaseResultLocked()
		err := c.link.Ping(ctx)
		if err == nil {
			c.lastUsed.Store(time.Now().UnixNano())
			return nil
		}
		c.log.Warn().Err(err).Str("connection_id", c.id).Msg("Database ping failed, reconnecting")
	}

	if err := c.dropLinkLocked(ctx); err != nil {
		c.log.Warn().Err(err).Str("connection_id", c.id).Msg("Failed to close stale database link")
	}
	return c.initializeLocked(ctx)
}

// Query dispatches sql with positional binds. A single map[string]any bind
// fills :name: markers instead.
func (c *Connection) Query(ctx context.Context, sql string, binds ...any) (*Result, error) {
	var b any
	if len(binds) == 1 {
		switch binds[0].(type) {
		case map[string]any, []any:
			b = binds[0]
		default:
			b = binds
		}
	} else if len(binds) > 1 {
		b = binds
	}
	return c.QueryWith(ctx, sql, b, true)
}

// QueryWith dispatches sql with the given binds. With escape false the binds
// are spliced into the statement text.
func (c *Connection) QueryWith(ctx context.Context, sql string, binds any, escape bool) (*Result, error) {
	q, err := NewQuery(c.dialect).SetQuery(sql, binds, escape)
	if err != nil {
		return nil, err
	}
	return c.Run(ctx, q)
}

// NewQuery returns an empty query using the connection's dialect.
func (c *Connection) NewQuery() *Query { return NewQuery(c.dialect) }

// Run dispatches q. Read statements yield a cursor Result, write statements a
// write Result. A query that was already run is dispatched as a copy.
//
// On failure the error is recorded (see Error), an open transaction is marked
// failed and a *DatabaseError is returned. In debug mode the open transaction
// is also rolled back completely before returning.
func (c *Connection) Run(ctx context.Context, q *Query) (*Result, error) {
	c.mu.Lock()
	res, sent, err := c.runLocked(ctx, q)
	listeners := c.listeners
	c.mu.Unlock()

	if sent != nil {
		for _, l := range listeners {
			l(sent)
		}
	}
	return res, err
}

// runLocked returns the query that reached the driver, or nil when nothing
// was sent.
func (c *Connection) runLocked(ctx context.Context, q *Query) (*Result, *Query, error) {
	if c.closed {
		return nil, nil, ErrConnectionClosed
	}
	if q.Finalized() {
		q = q.clone()
	}
	if err := q.Validate(); err != nil {
		return nil, nil, err
	}
	c.swapPrefix(q)
	c.lastQuery = q

	if c.pretend {
		now := time.Now()
		_ = q.SetDuration(now, now)
		return newPretendResult(q), nil, nil
	}

	if err := c.initializeLocked(ctx); err != nil {
		return nil, nil, err
	}

	write := q.IsWriteType()
	res, err := c.sendLocked(ctx, q, "query", write, func(ctx context.Context) (types.Rows, sql.Result, error) {
		if write {
			r, err := c.link.Exec(ctx, q.FinalSQL(), q.Args()...)
			return nil, r, err
		}
		rows, err := c.link.Query(ctx, q.FinalSQL(), q.Args()...)
		return rows, nil, err
	})
	return res, q, err
}

func (c *Connection) swapPrefix(q *Query) {
	if q.swapped || c.cfg.SwapPrefix == "" || c.cfg.Prefix == "" {
		return
	}
	_, _ = q.SwapPrefix(c.cfg.Prefix, c.cfg.SwapPrefix)
}

type sendFunc func(ctx context.Context) (types.Rows, sql.Result, error)

// sendLocked performs one dispatch of q and the bookkeeping around it.
func (c *Connection) sendLocked(ctx context.Context, q *Query, op string, write bool, send sendFunc) (*Result, error) {
	c.releaseResultLocked()

	start := time.Now()
	rows, res, err := send(ctx)
	var result *Result
	if err == nil && !write {
		result, err = newReadResult(q, rows)
	}
	if err != nil {
		_ = q.SetDuration(start, start)
		return nil, c.failLocked(ctx, q, op, start, err)
	}

	end := time.Now()
	_ = q.SetDuration(start, end)
	c.lastUsed.Store(end.UnixNano())
	c.lastErr = types.ErrorInfo{}

	if write {
		affected, _ := res.RowsAffected()
		insertID, _ := res.LastInsertId()
		c.affected = affected
		c.insertID = insertID
		tracking.TrackDBOperation(ctx, c.tc, q.FinalSQL(), q.Args(), start, affected, nil)
		return newWriteResult(q, affected, insertID), nil
	}

	c.affected = 0
	c.openResult = result
	tracking.TrackDBOperation(ctx, c.tc, q.FinalSQL(), q.Args(), start, 0, nil)
	return result, nil
}

func (c *Connection) failLocked(ctx context.Context, q *Query, op string, start time.Time, err error) error {
	info := c.driver.ErrorInfo(err)
	q.SetError(info.Code, info.Message)
	c.lastErr = info
	tracking.TrackDBOperation(ctx, c.tc, q.FinalSQL(), q.Args(), start, 0, err)

	if c.tracker.Depth() > 0 {
		c.tracker.MarkFailed()
		if c.cfg.Debug {
			if rbErr := c.tracker.RollbackAll(ctx); rbErr != nil {
				c.log.Error().
					Err(rbErr).
					Str("connection_id", c.id).
					Msg("Failed to roll back transaction after query error")
			}
		}
	}
	return &DatabaseError{Op: op, SQL: q.FinalSQL(), Info: info, Err: err}
}

// releaseResultLocked buffers the rest of an open cursor so the link can
// carry the next statement. The Result stays readable.
func (c *Connection) releaseResultLocked() {
	if c.openResult == nil {
		return
	}
	if err := c.openResult.detach(); err != nil {
		c.log.Warn().Err(err).Str("connection_id", c.id).Msg("Failed to buffer open result")
	}
	c.openResult = nil
}

// SimpleQuery sends sql as is, without binds, a Query object or listeners.
func (c *Connection) SimpleQuery(ctx context.Context, sql string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.initializeLocked(ctx); err != nil {
		return err
	}
	c.releaseResultLocked()

	start := time.Now()
	var err error
	if dialect.IsWriteType(sql) {
		_, err = c.link.Exec(ctx, sql)
	} else {
		var rows types.Rows
		if rows, err = c.link.Query(ctx, sql); err == nil {
			err = rows.Close()
		}
	}
	tracking.TrackDBOperation(ctx, c.tc, sql, nil, start, 0, err)
	if err != nil {
		c.lastErr = c.driver.ErrorInfo(err)
		return &DatabaseError{Op: "simple query", SQL: sql, Info: c.lastErr, Err: err}
	}
	c.lastUsed.Store(time.Now().UnixNano())
	return nil
}

// Pretend switches dry-run mode. While on, Query and Run build and record
// the query but do not send it, returning a Result that only carries it.
func (c *Connection) Pretend(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pretend = on
}

// Pretending reports whether dry-run mode is on.
func (c *Connection) Pretending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pretend
}

// Prepare runs build against a dry-run view of the connection to obtain the
// statement, then prepares it on the server with exactly one driver call.
// The view shares configuration and dialect but has no link, so other
// callers of c keep dispatching normally while build runs.
func (c *Connection) Prepare(ctx context.Context, build func(*Connection) (*Query, error)) (*PreparedQuery, error) {
	q, err := build(c.builderView())

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, fmt.Errorf("%w: builder returned no query", ErrPreparedQueryFailed)
	}
	return c.prepareLocked(ctx, q)
}

// builderView returns a link-less copy of c in dry-run mode with transactions
// disabled.
func (c *Connection) builderView() *Connection {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := &Connection{
		cfg:      c.cfg,
		driver:   c.driver,
		dialect:  c.dialect,
		log:      c.log,
		id:       c.id,
		tc:       c.tc,
		closed:   c.closed,
		pretend:  true,
		building: true,
		prepared: make(map[*PreparedQuery]struct{}),
	}
	v.tracker = NewTransactionTracker(connTx{v}, c.cfg.Transaction.Strict)
	v.tracker.SetEnabled(false)
	return v
}

// PrepareSQL prepares a raw statement using ? markers.
func (c *Connection) PrepareSQL(ctx context.Context, sql string) (*PreparedQuery, error) {
	return c.Prepare(ctx, func(c *Connection) (*Query, error) {
		return c.NewQuery().SetQuery(sql, nil, true)
	})
}

func (c *Connection) prepareLocked(ctx context.Context, q *Query) (*PreparedQuery, error) {
	if strings.TrimSpace(q.sql) == "" {
		return nil, ErrEmptyQuery
	}
	if !q.Finalized() {
		c.swapPrefix(q)
	}
	if err := c.initializeLocked(ctx); err != nil {
		return nil, err
	}
	c.releaseResultLocked()

	stmtSQL := q.FinalSQL()
	start := time.Now()
	stmt, err := c.link.Prepare(ctx, stmtSQL)
	tracking.TrackDBOperation(ctx, c.tc, tracking.PreparePrefix+stmtSQL, nil, start, 0, err)
	if err != nil {
		c.lastErr = c.driver.ErrorInfo(err)
		return nil, fmt.Errorf("%w: %w", ErrPreparedQueryFailed,
			&DatabaseError{Op: "prepare", SQL: stmtSQL, Info: c.lastErr, Err: err})
	}

	c.lastUsed.Store(time.Now().UnixNano())
	pq := &PreparedQuery{conn: c, query: q, sql: stmtSQL, stmt: stmt, state: StatePrepared}
	c.prepared[pq] = struct{}{}
	return pq, nil
}

// TransStart opens a transaction level.
func (c *Connection) TransStart(ctx context.Context) (bool, error) {
	return c.transStart(ctx, false)
}

// TransStartTest opens a transaction level whose outermost completion always
// rolls back.
func (c *Connection) TransStartTest(ctx context.Context) (bool, error) {
	return c.transStart(ctx, true)
}

func (c *Connection) transStart(ctx context.Context, testMode bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracker.Start(ctx, testMode)
}

// TransBegin is the manual variant of TransStart.
func (c *Connection) TransBegin(ctx context.Context, testMode bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracker.Begin(ctx, testMode)
}

// TransComplete closes a transaction level, committing or rolling back at
// the outermost one, and reports whether the commit path was taken.
func (c *Connection) TransComplete(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracker.Complete(ctx)
}

// TransCommit closes a level started with TransBegin.
func (c *Connection) TransCommit(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracker.Commit(ctx)
}

// TransRollback closes a level started with TransBegin by rolling back.
func (c *Connection) TransRollback(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracker.Rollback(ctx)
}

// TransStatus reports false once a statement inside the transaction failed.
func (c *Connection) TransStatus() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracker.Status()
}

// TransDepth returns the number of open transaction levels.
func (c *Connection) TransDepth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracker.Depth()
}

// ResetTransStatus clears the failed flag.
func (c *Connection) ResetTransStatus() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracker.ResetStatus()
}

// TransStrict switches strict mode.
func (c *Connection) TransStrict(strict bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracker.SetStrict(strict)
}

// TransOff disables transaction handling.
func (c *Connection) TransOff() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracker.SetEnabled(false)
}

// TransOn enables transaction handling.
func (c *Connection) TransOn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracker.SetEnabled(true)
}

// TransEnabled reports whether transaction handling is on.
func (c *Connection) TransEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracker.Enabled()
}

// Transaction runs fn inside a transaction level. An error or panic from fn
// marks the transaction failed. When the outermost level rolls back without
// fn failing, ErrTransactionRolledBack is returned.
func (c *Connection) Transaction(ctx context.Context, fn func(*Connection) error) error {
	if _, err := c.TransStart(ctx); err != nil {
		return err
	}

	abort := func() error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.tracker.MarkFailed()
		_, err := c.tracker.Complete(ctx)
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			if err := abort(); err != nil {
				c.log.Error().Err(err).Str("connection_id", c.id).Msg("Failed to roll back transaction after panic")
			}
			panic(r)
		}
	}()

	if err := fn(c); err != nil {
		if cerr := abort(); cerr != nil {
			return errors.Join(err, cerr)
		}
		return err
	}

	ok, err := c.TransComplete(ctx)
	if err != nil {
		return err
	}
	if !ok && c.TransEnabled() {
		return ErrTransactionRolledBack
	}
	return nil
}

// connTx issues the physical transaction primitives on the installed link.
// The connection lock is held by the caller.
type connTx struct{ c *Connection }

func (t connTx) Begin(ctx context.Context) error {
	c := t.c
	if err := c.initializeLocked(ctx); err != nil {
		return err
	}
	c.releaseResultLocked()
	return c.txOpLocked(ctx, tracking.OpBegin, c.link.Begin)
}

func (t connTx) Commit(ctx context.Context) error {
	c := t.c
	if c.link == nil {
		return ErrConnectionClosed
	}
	c.releaseResultLocked()
	return c.txOpLocked(ctx, tracking.OpCommit, c.link.Commit)
}

func (t connTx) Rollback(ctx context.Context) error {
	c := t.c
	if c.link == nil {
		return ErrConnectionClosed
	}
	c.releaseResultLocked()
	return c.txOpLocked(ctx, tracking.OpRollback, c.link.Rollback)
}

func (c *Connection) txOpLocked(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	tracking.TrackDBOperation(ctx, c.tc, op, nil, start, 0, err)
	if err != nil {
		c.lastErr = c.driver.ErrorInfo(err)
		return &DatabaseError{Op: strings.ToLower(op), SQL: op, Info: c.lastErr, Err: err}
	}
	c.lastUsed.Store(time.Now().UnixNano())
	return nil
}

// Dialect returns the connection's dialect. It must not be modified.
func (c *Connection) Dialect() *dialect.Dialect { return c.dialect }

// Vendor returns the backend identifier.
func (c *Connection) Vendor() types.Vendor { return c.driver.Vendor() }

// Prefix returns the table prefix.
func (c *Connection) Prefix() string { return c.cfg.Prefix }

// PrefixTable prepends the table prefix to table.
func (c *Connection) PrefixTable(table string) string { return c.cfg.Prefix + table }

// ProtectIdentifiers prefixes the table segment of item and, when protect is
// set, quotes every segment. prefixSingle treats a bare name as a table.
func (c *Connection) ProtectIdentifiers(item string, prefixSingle, protect bool) string {
	return c.dialect.ProtectIdentifiers(item, c.cfg.Prefix, prefixSingle, protect)
}

// EscapeIdentifier quotes a single identifier.
func (c *Connection) EscapeIdentifier(item string) string { return c.dialect.EscapeIdentifier(item) }

// Escape renders v as a SQL literal.
func (c *Connection) Escape(v any) string { return c.dialect.Literal(v) }

// EscapeString escapes s for use inside a quoted literal.
func (c *Connection) EscapeString(s string) string { return c.dialect.EscapeString(s) }

// EscapeLikeString escapes s for use inside a LIKE pattern.
func (c *Connection) EscapeLikeString(s string) string { return c.dialect.EscapeLikeString(s) }

// Table starts a builder on the prefixed table.
func (c *Connection) Table(name string) *Builder { return newBuilder(c, name) }

// Error returns the error of the last dispatch, zero after a success.
func (c *Connection) Error() types.ErrorInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// AffectedRows returns the rows changed by the last write statement.
func (c *Connection) AffectedRows() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.affected
}

// InsertID returns the id generated by the last insert. Drivers implementing
// types.InsertIDReader are asked on the link; others report the value
// returned with the insert.
func (c *Connection) InsertID(ctx context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.driver.(types.InsertIDReader); ok && c.link != nil {
		c.releaseResultLocked()
		id, err := r.InsertID(ctx, c.link)
		if err != nil {
			c.lastErr = c.driver.ErrorInfo(err)
			if c.tracker.Depth() > 0 {
				c.tracker.MarkFailed()
			}
			return 0, &DatabaseError{Op: "insert id", Info: c.lastErr, Err: err}
		}
		return id, nil
	}
	return c.insertID, nil
}

// LastQuery returns the last query built for dispatch, or nil.
func (c *Connection) LastQuery() *Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastQuery
}

// ConnectTime returns when the current link was installed.
func (c *Connection) ConnectTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectedAt
}

// ConnectDuration is the time Initialize spent installing the current link.
func (c *Connection) ConnectDuration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectDuration
}

// Connected reports whether a link is installed.
func (c *Connection) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link != nil
}

// Version returns the server version, querying it once.
func (c *Connection) Version(ctx context.Context) (string, error) {
	c.mu.Lock()
	v := c.version
	c.mu.Unlock()
	if v != "" {
		return v, nil
	}
	if c.dialect.VersionSQL == "" {
		return "", fmt.Errorf("version query not available for %s", c.dialect.Name)
	}

	res, err := c.Query(ctx, c.dialect.VersionSQL)
	if err != nil {
		return "", err
	}
	row, err := res.RowArray(0)
	if err != nil {
		return "", err
	}
	if len(row) == 0 || row[0] == nil {
		return "", errors.New("server returned no version")
	}

	v = fmt.Sprint(row[0])
	c.mu.Lock()
	c.version = v
	c.mu.Unlock()
	return v, nil
}

// AddQueryListener registers l for every dispatched query.
func (c *Connection) AddQueryListener(l QueryListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Close releases the open cursor and every prepared statement, rolls back a
// pending physical transaction and closes the link. Later dispatches fail
// with ErrConnectionClosed. Closing twice is a no-op.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	err := c.dropLinkLocked(context.Background())
	c.log.Info().Str("connection_id", c.id).Msg("Database connection closed")
	return err
}

// dropLinkLocked tears down everything bound to the installed link.
func (c *Connection) dropLinkLocked(ctx context.Context) error {
	var errs []error

	if c.openResult != nil {
		if err := c.openResult.Free(); err != nil {
			errs = append(errs, err)
		}
		c.openResult = nil
	}

	for pq := range c.prepared {
		if err := pq.release(); err != nil {
			errs = append(errs, err)
		}
	}
	clear(c.prepared)

	if c.link != nil {
		if c.link.InTransaction() {
			if err := c.txOpLocked(ctx, tracking.OpRollback, c.link.Rollback); err != nil {
				errs = append(errs, err)
			}
		}
		if err := c.link.Close(); err != nil {
			errs = append(errs, err)
		}
		c.link = nil
	}
	c.tracker.abandon()

	if c.unregisterPool != nil {
		c.unregisterPool()
		c.unregisterPool = nil
	}
	return errors.Join(errs...)
}
