package sqlbase

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockLink(t *testing.T, opts Options) (*Link, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	opts.Open = func() (*sql.DB, error) { return db, nil }
	link, err := Connect(context.Background(), opts)
	require.NoError(t, err)
	return link, mock
}

func TestLinkQueryExecPrepare(t *testing.T) {
	link, mock := newMockLink(t, Options{Key: "mock"})
	ctx := context.Background()

	mock.ExpectQuery("SELECT id, name FROM items").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "x"))
	rows, err := link.Query(ctx, "SELECT id, name FROM items")
	require.NoError(t, err)
	assert.True(t, rows.Next())
	require.NoError(t, rows.Close())

	mock.ExpectExec("INSERT INTO items").WithArgs("a").WillReturnResult(sqlmock.NewResult(7, 1))
	res, err := link.Exec(ctx, "INSERT INTO items(name) VALUES(?)", "a")
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)

	prep := mock.ExpectPrepare("UPDATE items SET name")
	prep.ExpectExec().WithArgs("b", 1).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("c", 2).WillReturnResult(sqlmock.NewResult(0, 1))
	stmt, err := link.Prepare(ctx, "UPDATE items SET name=? WHERE id=?")
	require.NoError(t, err)
	_, err = stmt.Exec(ctx, "b", 1)
	require.NoError(t, err)
	_, err = stmt.Exec(ctx, "c", 2)
	require.NoError(t, err)
	require.NoError(t, stmt.Close())

	mock.ExpectClose()
	require.NoError(t, link.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkTransactions(t *testing.T) {
	link, mock := newMockLink(t, Options{Key: "mock"})
	ctx := context.Background()

	assert.ErrorIs(t, link.Commit(ctx), ErrNoTransaction)
	assert.ErrorIs(t, link.Rollback(ctx), ErrNoTransaction)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM items").WithArgs(1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, link.Begin(ctx))
	assert.True(t, link.InTransaction())
	assert.ErrorIs(t, link.Begin(ctx), ErrTransactionInProgress)
	_, err := link.Exec(ctx, "DELETE FROM items WHERE id=?", 1)
	require.NoError(t, err)
	require.NoError(t, link.Commit(ctx))
	assert.False(t, link.InTransaction())

	mock.ExpectBegin()
	mock.ExpectRollback()
	require.NoError(t, link.Begin(ctx))
	require.NoError(t, link.Rollback(ctx))

	mock.ExpectClose()
	require.NoError(t, link.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkCloseRollsBackPendingTransaction(t *testing.T) {
	link, mock := newMockLink(t, Options{Key: "mock"})

	mock.ExpectBegin()
	mock.ExpectRollback()
	mock.ExpectClose()

	require.NoError(t, link.Begin(context.Background()))
	require.NoError(t, link.Close())
	require.NoError(t, link.Close())
	require.NoError(t, mock.ExpectationsWereMet())

	_, err := link.Query(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, ErrLinkClosed)
	_, err = link.Exec(context.Background(), "DELETE FROM t")
	assert.ErrorIs(t, err, ErrLinkClosed)
	_, err = link.Prepare(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, ErrLinkClosed)
	assert.ErrorIs(t, link.Begin(context.Background()), ErrLinkClosed)
	assert.ErrorIs(t, link.Ping(context.Background()), ErrLinkClosed)
}

func TestConnectRunsInitStatements(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec("SET search_path TO app").WillReturnResult(sqlmock.NewResult(0, 0))
	link, err := Connect(context.Background(), Options{
		Key:  "init",
		Open: func() (*sql.DB, error) { return db, nil },
		Init: []string{"SET search_path TO app"},
	})
	require.NoError(t, err)

	mock.ExpectClose()
	require.NoError(t, link.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectInitFailureReleasesDB(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	mock.ExpectExec("SET bad").WillReturnError(errors.New("syntax error"))
	mock.ExpectClose()

	_, err = Connect(context.Background(), Options{
		Key:  "init-fail",
		Open: func() (*sql.DB, error) { return db, nil },
		Init: []string{"SET bad"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session init")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectPingFailure(t *testing.T) {
	orig := pingDB
	t.Cleanup(func() { pingDB = orig })
	pingDB = func(context.Context, *sql.DB) error { return errors.New("refused") }

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	_, err = Connect(context.Background(), Options{
		Key:  "ping-fail",
		Open: func() (*sql.DB, error) { return db, nil },
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping failed")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectOpenFailure(t *testing.T) {
	boom := errors.New("bad dsn")
	_, err := Connect(context.Background(), Options{
		Key:  "open-fail",
		Open: func() (*sql.DB, error) { return nil, boom },
	})
	assert.ErrorIs(t, err, boom)
}

func TestPersistentLinksShareDB(t *testing.T) {
	t.Cleanup(func() { _ = ClosePersistent() })

	db, _, err := sqlmock.New()
	require.NoError(t, err)

	opens := 0
	opts := Options{
		Key:        "shared-dsn",
		Persistent: true,
		Open: func() (*sql.DB, error) {
			opens++
			return db, nil
		},
	}

	first, err := Connect(context.Background(), opts)
	require.NoError(t, err)
	second, err := Connect(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, 1, opens)
	assert.Same(t, first.DB(), second.DB())

	require.NoError(t, first.Close())
	require.NoError(t, second.Close())

	// shared handles outlive their links
	require.NoError(t, db.Ping())
}
