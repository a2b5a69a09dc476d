package database

import (
	"context"
	"testing"

	"github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-bricks-dbcore/config"
	dbtesting "github.com/gaborage/go-bricks-dbcore/database/testing"
)

func TestBuilderSelect(t *testing.T) {
	conn, _ := newStubConnection(t, MySQL)

	q, err := conn.Table("users").
		Select("id", "name").
		WhereEq("active", true).
		OrderBy("name DESC").
		Limit(10).
		Offset(20).
		SelectQuery()
	require.NoError(t, err)

	assert.Equal(t, "SELECT `id`, `name` FROM `users` WHERE `active` = ? ORDER BY `name` DESC LIMIT 10 OFFSET 20", q.FinalSQL())
	assert.Equal(t, []any{true}, q.Args())
}

func TestBuilderConditions(t *testing.T) {
	conn, _ := newStubConnection(t, PostgreSQL)

	q, err := conn.Table("orders").
		Where("total > ?", 100).
		Where(map[string]any{"status": "open"}).
		WhereIn("region", []string{"eu", "us"}).
		WhereNull("cancelled_at").
		WhereNotNull("paid_at").
		Where(squirrel.Expr("1 = 1")).
		SelectQuery()
	require.NoError(t, err)

	assert.Equal(t,
		`SELECT * FROM "orders" WHERE total > $1 AND "status" = $2 AND "region" IN ($3,$4) AND "cancelled_at" IS NULL AND "paid_at" IS NOT NULL AND 1 = 1`,
		q.FinalSQL())
	assert.Equal(t, []any{100, "open", "eu", "us"}, q.Args())
}

func TestBuilderPrefixAndQualifiedColumns(t *testing.T) {
	conn, _ := newStubConnection(t, MySQL, func(cfg *config.DatabaseConfig) { cfg.Prefix = "db_" })
	b := conn.Table("users")

	assert.Equal(t, "`db_users`", b.TableName())
	assert.Equal(t, "`name`", b.Column("name"))
	assert.Equal(t, "`db_users`.`name`", b.Column("users.name"))
	assert.Equal(t, "`db_users`.`deleted_at`", b.QualifiedColumn("deleted_at"))
}

func TestBuilderPaginationPerVendor(t *testing.T) {
	t.Run("oracle", func(t *testing.T) {
		conn, _ := newStubConnection(t, Oracle)
		q, err := conn.Table("users").OrderBy("id").Limit(10).Offset(20).SelectQuery()
		require.NoError(t, err)
		assert.Equal(t, `SELECT * FROM "users" ORDER BY "id" OFFSET 20 ROWS FETCH NEXT 10 ROWS ONLY`, q.FinalSQL())
	})

	t.Run("sqlserver needs an order and an offset", func(t *testing.T) {
		conn, _ := newStubConnection(t, SQLServer)
		q, err := conn.Table("users").Limit(5).SelectQuery()
		require.NoError(t, err)
		assert.Equal(t, `SELECT * FROM "users" ORDER BY (SELECT NULL) OFFSET 0 ROWS FETCH NEXT 5 ROWS ONLY`, q.FinalSQL())
	})

	t.Run("no paging", func(t *testing.T) {
		assert.Empty(t, paginationClause(0, 0, true))
		assert.Equal(t, "OFFSET 3 ROWS", paginationClause(0, 3, false))
	})
}

func TestBuilderWrites(t *testing.T) {
	conn, drv := newStubConnection(t, MySQL)
	drv.ExpectExec("INSERT INTO `users`").WillReturnResult(1, 9)
	drv.ExpectExec("UPDATE `users`").WillReturnResult(2, 0)
	drv.ExpectExec("DELETE FROM `users`").WillReturnResult(1, 0)
	ctx := context.Background()

	res, err := conn.Table("users").Insert(ctx, map[string]any{"name": "ann", "email": "a@x"})
	require.NoError(t, err)
	assert.Equal(t, int64(9), res.LastInsertID())
	dbtesting.AssertExecExecuted(t, drv, "INSERT INTO `users` (`email`,`name`) VALUES (?,?)")

	res, err = conn.Table("users").WhereEq("role", "guest").Update(ctx, map[string]any{"active": false})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.RowsAffected())
	dbtesting.AssertExecExecuted(t, drv, "UPDATE `users` SET `active` = ? WHERE `role` = ?")

	_, err = conn.Table("users").WhereEq("id", 4).Delete(ctx)
	require.NoError(t, err)
	dbtesting.AssertExecExecuted(t, drv, "DELETE FROM `users` WHERE `id` = ?")

	_, err = conn.Table("users").Delete(ctx)
	assert.ErrorIs(t, err, ErrUnsafeDelete)
	_, err = conn.Table("users").Insert(ctx, nil)
	assert.Error(t, err)
	_, err = conn.Table("users").Update(ctx, map[string]any{})
	assert.Error(t, err)
}

func TestBuilderCountAllResults(t *testing.T) {
	conn, drv := newStubConnection(t, MySQL)
	drv.ExpectQuery("SELECT COUNT(*) AS `numrows` FROM `users` WHERE `active` = ?").
		WillReturnRows(dbtesting.NewRowSet("numrows").AddRow(int64(5)))

	n, err := conn.Table("users").WhereEq("active", true).OrderBy("name").Limit(1).CountAllResults(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
}

func TestBuilderGet(t *testing.T) {
	conn, drv := newStubConnection(t, SQLite)
	drv.ExpectQuery("FROM `users`").WillReturnRows(usersRowSet())

	res, err := conn.Table("users").Get(context.Background())
	require.NoError(t, err)
	var users []testUser
	require.NoError(t, res.ScanAll(&users))
	assert.Len(t, users, 3)
}

func TestToInt64(t *testing.T) {
	for _, v := range []any{int64(7), 7, int32(7), uint64(7), float64(7), " 7"} {
		n, err := toInt64(v)
		require.NoError(t, err)
		assert.Equal(t, int64(7), n)
	}
	n, err := toInt64(nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = toInt64("seven")
	assert.Error(t, err)
}
