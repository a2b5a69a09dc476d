package database

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-bricks-dbcore/config"
	dbtesting "github.com/gaborage/go-bricks-dbcore/database/testing"
)

func TestConnectionConnectsLazily(t *testing.T) {
	conn, drv := newStubConnection(t, MySQL)
	assert.False(t, conn.Connected())
	assert.NotEmpty(t, conn.ID())

	drv.ExpectQuery("SELECT 1").WillReturnRows(dbtesting.NewRowSet("one").AddRow(1))
	_, err := conn.Query(context.Background(), "SELECT 1")
	require.NoError(t, err)

	assert.True(t, conn.Connected())
	assert.False(t, conn.ConnectTime().IsZero())
	assert.GreaterOrEqual(t, conn.ConnectDuration(), time.Duration(0))
	assert.Equal(t, 1, drv.Counters().Connect)

	_, err = conn.Query(context.Background(), "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, 1, drv.Counters().Connect, "the link is reused")
}

func TestConnectionFailsOverInOrder(t *testing.T) {
	conn, drv := newStubConnection(t, MySQL, func(cfg *config.DatabaseConfig) {
		cfg.Failover = []config.DatabaseConfig{{Host: "replica-1"}, {Host: "replica-2"}}
	})
	drv.QueueConnect(errors.New("refused"), errors.New("refused"), nil)

	require.NoError(t, conn.Initialize(context.Background()))

	calls := drv.Connects()
	require.Len(t, calls, 3)
	assert.Equal(t, "primary", calls[0].Host)
	assert.Equal(t, "replica-1", calls[1].Host)
	assert.Equal(t, "replica-2", calls[2].Host)
	assert.Equal(t, "app", calls[2].Database, "failover entries inherit the primary's database")
}

func TestConnectionAllCandidatesFail(t *testing.T) {
	conn, drv := newStubConnection(t, MySQL, func(cfg *config.DatabaseConfig) {
		cfg.Failover = []config.DatabaseConfig{{Host: "replica"}}
	})
	drv.QueueConnect(errors.New("refused"), &dbtesting.StubError{Code: 2002, Message: "can't connect"})

	_, err := conn.Query(context.Background(), "SELECT 1")
	require.ErrorIs(t, err, ErrConnectionFailed)
	assert.False(t, conn.Connected())
	assert.Equal(t, 2002, conn.Error().Code)
}

func TestConnectionQueryErrorIsRecorded(t *testing.T) {
	conn, drv := newStubConnection(t, MySQL)
	drv.ExpectQuery("FROM missing").WillReturnError(&dbtesting.StubError{Code: 1146, Message: "Table 'app.missing' doesn't exist"})
	drv.ExpectQuery("SELECT 1").WillReturnRows(dbtesting.NewRowSet("one").AddRow(1))

	ctx := context.Background()
	_, err := conn.Query(ctx, "SELECT * FROM missing WHERE id = ?", 1)
	require.Error(t, err)

	dbErr, ok := IsDatabaseError(err)
	require.True(t, ok)
	assert.Equal(t, "query", dbErr.Op)
	assert.Equal(t, 1146, dbErr.Info.Code)
	assert.Equal(t, 1146, conn.Error().Code)

	last := conn.LastQuery()
	require.NotNil(t, last)
	assert.True(t, last.HasError())
	assert.True(t, last.Finalized())

	_, err = conn.Query(ctx, "SELECT 1")
	require.NoError(t, err)
	assert.True(t, conn.Error().IsZero(), "a successful dispatch clears the error")
}

func TestConnectionQueryBindForms(t *testing.T) {
	conn, drv := newStubConnection(t, PostgreSQL)
	drv.ExpectQuery("FROM users").WillReturnRows(dbtesting.NewRowSet("id"))
	ctx := context.Background()

	_, err := conn.Query(ctx, "SELECT id FROM users WHERE id = ? AND name = ?", 1, "ann")
	require.NoError(t, err)
	_, err = conn.Query(ctx, "SELECT id FROM users WHERE id = :id:", map[string]any{"id": 2})
	require.NoError(t, err)
	_, err = conn.Query(ctx, "SELECT id FROM users WHERE id IN (?, ?)", []any{3, 4})
	require.NoError(t, err)
	_, err = conn.QueryWith(ctx, "SELECT id FROM users WHERE name = ?", []any{"o'k"}, false)
	require.NoError(t, err)

	log := drv.QueryLog()
	require.Len(t, log, 4)
	assert.Equal(t, "SELECT id FROM users WHERE id = $1 AND name = $2", log[0].SQL)
	assert.Equal(t, []any{1, "ann"}, log[0].Args)
	assert.Equal(t, "SELECT id FROM users WHERE id = $1", log[1].SQL)
	assert.Equal(t, []any{2}, log[1].Args)
	assert.Equal(t, []any{3, 4}, log[2].Args)
	assert.Equal(t, "SELECT id FROM users WHERE name = 'o''k'", log[3].SQL)
	assert.Empty(t, log[3].Args)
}

func TestConnectionBindCountMismatchIsNotSent(t *testing.T) {
	conn, drv := newStubConnection(t, MySQL)

	_, err := conn.Query(context.Background(), "SELECT * FROM t WHERE a = ? AND b = ?", 1)
	require.Error(t, err)
	assert.Empty(t, drv.QueryLog())

	_, err = conn.Query(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestConnectionWriteBookkeeping(t *testing.T) {
	conn, drv := newStubConnection(t, MySQL)
	drv.ExpectExec("UPDATE users").WillReturnResult(3, 0)
	drv.ExpectExec("INSERT INTO users").WillReturnResult(1, 12)
	ctx := context.Background()

	_, err := conn.Query(ctx, "UPDATE users SET active = ?", false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), conn.AffectedRows())

	_, err = conn.Query(ctx, "INSERT INTO users (name) VALUES (?)", "ann")
	require.NoError(t, err)
	id, err := conn.InsertID(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)

	dbtesting.AssertExecCount(t, drv, "users", 2)
}

func TestConnectionRunCopiesFinalizedQuery(t *testing.T) {
	conn, drv := newStubConnection(t, MySQL)
	drv.ExpectExec("DELETE FROM sessions").WillReturnResult(1, 0)
	ctx := context.Background()

	q, err := conn.NewQuery().SetQuery("DELETE FROM sessions WHERE id = ?", []any{5}, true)
	require.NoError(t, err)

	res1, err := conn.Run(ctx, q)
	require.NoError(t, err)
	res2, err := conn.Run(ctx, q)
	require.NoError(t, err)

	assert.Same(t, q, res1.Query())
	assert.NotSame(t, q, res2.Query())
	assert.True(t, res2.Query().Finalized())
	dbtesting.AssertExecCount(t, drv, "DELETE FROM sessions", 2)
}

func TestConnectionSwapPrefix(t *testing.T) {
	conn, drv := newStubConnection(t, MySQL, func(cfg *config.DatabaseConfig) {
		cfg.Prefix = "app_"
		cfg.SwapPrefix = "db_"
	})
	drv.ExpectQuery("FROM app_users").WillReturnRows(dbtesting.NewRowSet("id"))

	_, err := conn.Query(context.Background(), "SELECT id FROM db_users")
	require.NoError(t, err)
	dbtesting.AssertQueryExecuted(t, drv, "SELECT id FROM app_users")
	assert.Equal(t, "SELECT id FROM db_users", conn.LastQuery().SQL())
}

func TestConnectionPlaceholderAndQuoteOverrides(t *testing.T) {
	conn, _ := newStubConnection(t, MySQL, func(cfg *config.DatabaseConfig) {
		cfg.Placeholder = "dollar"
		cfg.Quote = config.QuoteConfig{Open: "[", Close: "]"}
		cfg.Prefix = "app_"
	})

	q, err := conn.NewQuery().SetQuery("SELECT * FROM t WHERE id = ?", []any{1}, true)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE id = $1", q.FinalSQL())
	assert.Equal(t, "[users]", conn.EscapeIdentifier("users"))
	assert.Equal(t, "app_users", conn.PrefixTable("users"))
	assert.Equal(t, "[app_users].[name]", conn.ProtectIdentifiers("users.name", false, true))
}

func TestConnectionEscapeHelpers(t *testing.T) {
	conn, _ := newStubConnection(t, PostgreSQL)

	assert.Equal(t, "'O''Reilly'", conn.Escape("O'Reilly"))
	assert.Equal(t, "NULL", conn.Escape(nil))
	assert.Equal(t, "O''Reilly", conn.EscapeString("O'Reilly"))
	assert.Equal(t, "50!%", conn.EscapeLikeString("50%"))
	assert.Equal(t, PostgreSQL, conn.Vendor())
	assert.Equal(t, "PostgreSQL", conn.Dialect().Name)
	assert.Empty(t, conn.Prefix())
}

func TestConnectionPretend(t *testing.T) {
	conn, drv := newStubConnection(t, MySQL)
	conn.Pretend(true)
	assert.True(t, conn.Pretending())

	res, err := conn.Query(context.Background(), "DELETE FROM users WHERE id = ?", 1)
	require.NoError(t, err)
	assert.Equal(t, "DELETE FROM users WHERE id = ?", res.Query().FinalSQL())
	assert.Equal(t, res.Query(), conn.LastQuery())

	assert.False(t, conn.Connected(), "pretending never opens the link")
	assert.Empty(t, drv.ExecLog())

	conn.Pretend(false)
	assert.False(t, conn.Pretending())
}

func TestConnectionListeners(t *testing.T) {
	conn, drv := newStubConnection(t, MySQL)
	drv.ExpectQuery("SELECT").WillReturnRows(dbtesting.NewRowSet("n").AddRow(1))
	drv.ExpectExec("INSERT").WillReturnError(errors.New("duplicate"))

	var (
		mu   sync.Mutex
		seen []string
	)
	conn.AddQueryListener(func(q *Query) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, q.FinalSQL())
		// Listeners may use the connection.
		_ = conn.Connected()
	})

	ctx := context.Background()
	_, err := conn.Query(ctx, "SELECT 1")
	require.NoError(t, err)
	_, err = conn.Query(ctx, "INSERT INTO t VALUES (1)")
	require.Error(t, err)
	_, _ = conn.Query(ctx, "SELECT ?, ?", 1)

	assert.Equal(t, []string{"SELECT 1", "INSERT INTO t VALUES (1)"}, seen)
}

func TestConnectionFailureInsideTransactionMarksItFailed(t *testing.T) {
	conn, drv := newStubConnection(t, MySQL)
	drv.ExpectExec("INSERT INTO orders").WillReturnResult(1, 1)
	drv.ExpectExec("INSERT INTO bad").WillReturnError(&dbtesting.StubError{Code: 1452, Message: "fk"})
	ctx := context.Background()

	_, err := conn.TransStart(ctx)
	require.NoError(t, err)
	_, err = conn.Query(ctx, "INSERT INTO orders (id) VALUES (1)")
	require.NoError(t, err)
	_, err = conn.Query(ctx, "INSERT INTO bad (id) VALUES (1)")
	require.Error(t, err)

	assert.False(t, conn.TransStatus())
	assert.Equal(t, 1, conn.TransDepth(), "outside debug mode the transaction stays open")

	ok, err := conn.TransComplete(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	dbtesting.AssertRolledBack(t, drv)

	conn.ResetTransStatus()
	assert.True(t, conn.TransStatus())
}

func TestConnectionInsertIDFailureMarksTransactionFailed(t *testing.T) {
	cfg := config.DefaultDatabaseConfig(PostgreSQL)
	drv := dbtesting.NewInsertIDDriver(PostgreSQL)
	drv.Err = &dbtesting.StubError{Code: 55000, Message: "lastval is not yet defined in this session"}
	drv.ExpectExec("INSERT INTO tags").WillReturnResult(1, 0)
	conn := New(&cfg, newTestLogger(), drv)
	t.Cleanup(func() { _ = conn.Close() })
	ctx := context.Background()

	_, err := conn.TransStart(ctx)
	require.NoError(t, err)
	_, err = conn.Query(ctx, "INSERT INTO tags (code) VALUES ('go')")
	require.NoError(t, err)

	_, err = conn.InsertID(ctx)
	require.Error(t, err)
	dbErr, ok := IsDatabaseError(err)
	require.True(t, ok)
	assert.Equal(t, "insert id", dbErr.Op)
	assert.Equal(t, 55000, conn.Error().Code)
	assert.False(t, conn.TransStatus())

	ok, err = conn.TransComplete(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	dbtesting.AssertRolledBack(t, drv.StubDriver)
}

func TestConnectionDebugModeRollsBackImmediately(t *testing.T) {
	conn, drv := newStubConnection(t, MySQL, func(cfg *config.DatabaseConfig) { cfg.Debug = true })
	drv.ExpectExec("INSERT INTO bad").WillReturnError(errors.New("boom"))
	ctx := context.Background()

	_, _ = conn.TransStart(ctx)
	_, _ = conn.TransStart(ctx)
	_, err := conn.Query(ctx, "INSERT INTO bad VALUES (1)")
	require.Error(t, err)

	assert.Zero(t, conn.TransDepth())
	dbtesting.AssertRolledBack(t, drv)

	ok, err := conn.TransComplete(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "completing after the forced rollback reports the failure")
	assert.Equal(t, 1, drv.Counters().Rollback)
}

func TestConnectionTransactionHelper(t *testing.T) {
	ctx := context.Background()

	t.Run("commits", func(t *testing.T) {
		conn, drv := newStubConnection(t, MySQL)
		drv.ExpectExec("INSERT").WillReturnResult(1, 1)

		err := conn.Transaction(ctx, func(c *Connection) error {
			_, err := c.Query(ctx, "INSERT INTO t VALUES (1)")
			return err
		})
		require.NoError(t, err)
		dbtesting.AssertCommitted(t, drv)
	})

	t.Run("callback error rolls back", func(t *testing.T) {
		conn, drv := newStubConnection(t, MySQL)
		sentinel := errors.New("validation failed")

		err := conn.Transaction(ctx, func(*Connection) error { return sentinel })
		require.ErrorIs(t, err, sentinel)
		dbtesting.AssertRolledBack(t, drv)
	})

	t.Run("swallowed failure reports rollback", func(t *testing.T) {
		conn, drv := newStubConnection(t, MySQL)
		drv.ExpectExec("INSERT").WillReturnError(errors.New("constraint"))

		err := conn.Transaction(ctx, func(c *Connection) error {
			_, _ = c.Query(ctx, "INSERT INTO t VALUES (1)")
			return nil
		})
		require.ErrorIs(t, err, ErrTransactionRolledBack)
		dbtesting.AssertRolledBack(t, drv)
	})

	t.Run("panic rolls back and propagates", func(t *testing.T) {
		conn, drv := newStubConnection(t, MySQL)

		assert.PanicsWithValue(t, "kaboom", func() {
			_ = conn.Transaction(ctx, func(*Connection) error { panic("kaboom") })
		})
		dbtesting.AssertRolledBack(t, drv)
		assert.Zero(t, conn.TransDepth())
	})

	t.Run("disabled transactions run the callback only", func(t *testing.T) {
		conn, drv := newStubConnection(t, MySQL)
		conn.TransOff()
		called := false

		err := conn.Transaction(ctx, func(*Connection) error {
			called = true
			return nil
		})
		require.NoError(t, err)
		assert.True(t, called)
		dbtesting.AssertNoTransaction(t, drv)
		conn.TransOn()
		assert.True(t, conn.TransEnabled())
	})
}

func TestConnectionTransStartTestRollsBack(t *testing.T) {
	conn, drv := newStubConnection(t, SQLite)
	drv.ExpectExec("INSERT").WillReturnResult(1, 1)
	ctx := context.Background()

	_, err := conn.TransStartTest(ctx)
	require.NoError(t, err)
	_, err = conn.Query(ctx, "INSERT INTO t VALUES (1)")
	require.NoError(t, err)
	ok, err := conn.TransComplete(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, conn.TransStatus())
	dbtesting.AssertRolledBack(t, drv)
}

func TestConnectionManualTransactions(t *testing.T) {
	conn, drv := newStubConnection(t, MySQL)
	ctx := context.Background()

	ok, err := conn.TransBegin(ctx, false)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = conn.TransCommit(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	_, _ = conn.TransBegin(ctx, false)
	ok, err = conn.TransRollback(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	c := drv.Counters()
	assert.Equal(t, 2, c.Begin)
	assert.Equal(t, 1, c.Commit)
	assert.Equal(t, 1, c.Rollback)
}

func TestConnectionBeginFailureIsReported(t *testing.T) {
	conn, drv := newStubConnection(t, MySQL)
	drv.FailBegin(&dbtesting.StubError{Code: 1205, Message: "lock wait timeout"})

	ok, err := conn.TransStart(context.Background())
	require.Error(t, err)
	assert.False(t, ok)

	dbErr, isDB := IsDatabaseError(err)
	require.True(t, isDB)
	assert.Equal(t, "begin", dbErr.Op)
	assert.Equal(t, 1205, conn.Error().Code)
	assert.Zero(t, conn.TransDepth())
}

func TestConnectionReconnect(t *testing.T) {
	ctx := context.Background()

	t.Run("healthy link is kept", func(t *testing.T) {
		conn, drv := newStubConnection(t, MySQL)
		require.NoError(t, conn.Initialize(ctx))
		require.NoError(t, conn.Reconnect(ctx))
		assert.Equal(t, 1, drv.Counters().Connect)
		assert.Equal(t, 1, drv.Counters().Ping)
	})

	t.Run("failed ping replaces the link", func(t *testing.T) {
		conn, drv := newStubConnection(t, MySQL)
		require.NoError(t, conn.Initialize(ctx))
		drv.FailPing(errors.New("gone away"))

		require.NoError(t, conn.Reconnect(ctx))
		c := drv.Counters()
		assert.Equal(t, 2, c.Connect)
		assert.Equal(t, 1, c.Close)
	})

	t.Run("idle link is replaced without ping", func(t *testing.T) {
		conn, drv := newStubConnection(t, MySQL, func(cfg *config.DatabaseConfig) {
			cfg.IdleTimeout = time.Millisecond
		})
		require.NoError(t, conn.Initialize(ctx))
		time.Sleep(5 * time.Millisecond)

		require.NoError(t, conn.Reconnect(ctx))
		c := drv.Counters()
		assert.Equal(t, 2, c.Connect)
		assert.Zero(t, c.Ping)
	})

	t.Run("reconnect drops open transaction levels", func(t *testing.T) {
		conn, drv := newStubConnection(t, MySQL)
		_, err := conn.TransStart(ctx)
		require.NoError(t, err)
		drv.FailPing(errors.New("gone away"))

		require.NoError(t, conn.Reconnect(ctx))
		assert.Zero(t, conn.TransDepth())
		assert.Equal(t, 1, drv.Counters().Rollback)
	})

	t.Run("complete after an idle reconnect reports the rollback", func(t *testing.T) {
		conn, drv := newStubConnection(t, MySQL, func(cfg *config.DatabaseConfig) {
			cfg.IdleTimeout = time.Millisecond
		})
		drv.ExpectExec("INSERT INTO users").WillReturnResult(1, 1)

		_, err := conn.TransStart(ctx)
		require.NoError(t, err)
		_, err = conn.Query(ctx, "INSERT INTO users (name) VALUES (?)", "ann")
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
		require.NoError(t, conn.Reconnect(ctx))

		ok, err := conn.TransComplete(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.False(t, conn.TransStatus())
		c := drv.Counters()
		assert.Zero(t, c.Commit)
		assert.Equal(t, 1, c.Rollback)

		_, err = conn.TransStart(ctx)
		require.NoError(t, err)
		assert.True(t, conn.TransStatus(), "a fresh transaction starts clean")
	})
}

func TestConnectionZeroConfigTracksTransactions(t *testing.T) {
	drv := dbtesting.NewStubDriver(SQLite)
	drv.ExpectExec("INSERT INTO t").WillReturnResult(1, 1)
	conn := New(&config.DatabaseConfig{Driver: config.SQLite}, nil, drv)
	t.Cleanup(func() { _ = conn.Close() })
	ctx := context.Background()

	started, err := conn.TransStart(ctx)
	require.NoError(t, err)
	assert.True(t, started)

	drv.ExpectExec("INSERT INTO missing").WillReturnError(&dbtesting.StubError{Code: 1, Message: "no such table"})
	_, err = conn.Query(ctx, "INSERT INTO t (id) VALUES (?)", 1)
	require.NoError(t, err)
	_, err = conn.Query(ctx, "INSERT INTO missing (id) VALUES (?)", 1)
	require.Error(t, err)

	ok, err := conn.TransComplete(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, conn.TransStatus())
	assert.Equal(t, 1, drv.Counters().Rollback)
}

func TestConnectionSimpleQuery(t *testing.T) {
	conn, drv := newStubConnection(t, MySQL)
	drv.ExpectExec("SET NAMES").WillReturnResult(0, 0)
	drv.ExpectQuery("SELECT").WillReturnError(&dbtesting.StubError{Code: 1, Message: "nope"})
	ctx := context.Background()

	require.NoError(t, conn.SimpleQuery(ctx, "SET NAMES utf8mb4"))
	err := conn.SimpleQuery(ctx, "SELECT broken")
	require.Error(t, err)
	assert.Equal(t, 1, conn.Error().Code)
	assert.Nil(t, conn.LastQuery(), "simple queries bypass query objects")
}

func TestConnectionVersionIsCached(t *testing.T) {
	conn, drv := newStubConnection(t, MySQL)
	drv.ExpectQuery("SELECT VERSION()").WillReturnRows(dbtesting.NewRowSet("VERSION()").AddRow("8.0.36"))
	ctx := context.Background()

	v, err := conn.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, "8.0.36", v)

	v, err = conn.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, "8.0.36", v)
	dbtesting.AssertQueryCount(t, drv, "SELECT VERSION()", 1)
}

func TestConnectionClose(t *testing.T) {
	conn, drv := newStubConnection(t, MySQL)
	drv.ExpectQuery("SELECT").WillReturnRows(dbtesting.NewRowSet("id").AddRow(1).AddRow(2))
	ctx := context.Background()

	_, err := conn.Query(ctx, "SELECT id FROM t")
	require.NoError(t, err)
	pq, err := conn.PrepareSQL(ctx, "SELECT id FROM t WHERE id = ?")
	require.NoError(t, err)
	_, err = conn.TransStart(ctx)
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	c := drv.Counters()
	assert.Equal(t, 1, c.Rollback, "a pending transaction is rolled back")
	assert.Equal(t, 1, c.StmtClose)
	assert.Equal(t, 1, c.Close)
	assert.Equal(t, StateClosed, pq.State())
	assert.False(t, conn.Connected())

	_, err = conn.Query(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.ErrorIs(t, conn.Initialize(ctx), ErrConnectionClosed)
	assert.ErrorIs(t, conn.Reconnect(ctx), ErrConnectionClosed)
}

func TestConnectionExplicitConnect(t *testing.T) {
	conn, drv := newStubConnection(t, MySQL)

	link, err := conn.PersistentConnect(context.Background())
	require.NoError(t, err)
	require.NotNil(t, link)
	require.NoError(t, link.Close())

	assert.False(t, conn.Connected(), "Connect does not install the link")
	calls := drv.Connects()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Persistent)
}

func TestConnectionConfigIsCopied(t *testing.T) {
	cfg := config.DefaultDatabaseConfig(MySQL)
	cfg.Prefix = "a_"
	conn := New(&cfg, nil, dbtesting.NewStubDriver(MySQL))

	want := NewTrackingSettings(&cfg)
	cfg.Prefix = "b_"
	assert.Equal(t, "a_", conn.Config().Prefix)
	assert.Equal(t, want, conn.TrackingSettings())
	assert.Positive(t, conn.TrackingSettings().SlowQueryThreshold())
}
