package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gaborage/go-bricks-dbcore/database/dialect"
)

func TestQueryPositionalBindsPerDialect(t *testing.T) {
	tests := []struct {
		name     string
		dialect  *dialect.Dialect
		expected string
	}{
		{"mysql", dialect.MySQL(), "SELECT * FROM users WHERE id = ? AND name = ?"},
		{"postgres", dialect.Postgres(), "SELECT * FROM users WHERE id = $1 AND name = $2"},
		{"oracle", dialect.Oracle(), "SELECT * FROM users WHERE id = :1 AND name = :2"},
		{"sqlserver", dialect.SQLServer(), "SELECT * FROM users WHERE id = @p1 AND name = @p2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := NewQuery(tt.dialect).SetQuery("SELECT * FROM users WHERE id = ? AND name = ?", []any{1, "ann"}, true)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, q.FinalSQL())
			assert.Equal(t, []any{1, "ann"}, q.Args())
			assert.Equal(t, "SELECT * FROM users WHERE id = ? AND name = ?", q.SQL())
			assert.Equal(t, 2, q.PlaceholderCount())
			assert.NoError(t, q.Validate())
		})
	}
}

func TestQueryNamedBinds(t *testing.T) {
	q, err := NewQuery(nil).SetQuery(
		"SELECT * FROM t WHERE id = :id: AND status = :status: AND x = :missing:",
		map[string]any{"id": 5, "status": "open"}, true)
	require.NoError(t, err)

	assert.Equal(t, "SELECT * FROM t WHERE id = ? AND status = ? AND x = :missing:", q.FinalSQL())
	assert.Equal(t, []any{5, "open"}, q.Binds())
	assert.NoError(t, q.Validate())
}

func TestQueryNamedBindsSkipQuotedText(t *testing.T) {
	q, err := NewQuery(nil).SetQuery(
		"SELECT ':id:' AS lit, `:id:` FROM t WHERE id = :id:",
		map[string]any{"id": 7}, true)
	require.NoError(t, err)

	assert.Equal(t, "SELECT ':id:' AS lit, `:id:` FROM t WHERE id = ?", q.FinalSQL())
	assert.Equal(t, []any{7}, q.Binds())
	assert.NoError(t, q.Validate())
}

func TestQueryReturnsRowsIsDispatchedAsRead(t *testing.T) {
	q, err := NewQuery(dialect.Postgres()).SetQuery(`INSERT INTO t (a) VALUES (?) RETURNING "id"`, []any{1}, true)
	require.NoError(t, err)
	assert.True(t, q.IsWriteType())

	q.SetReturnsRows(true)
	assert.False(t, q.IsWriteType())
	assert.False(t, q.clone().IsWriteType(), "clones keep the flag")
}

func TestQueryScalarBind(t *testing.T) {
	q, err := NewQuery(nil).SetQuery("SELECT * FROM t WHERE id = ?", 7, true)
	require.NoError(t, err)
	assert.Equal(t, []any{7}, q.Args())
}

func TestQueryUnescapedBindsAreSpliced(t *testing.T) {
	q, err := NewQuery(dialect.Postgres()).SetQuery("UPDATE t SET n = n + ? WHERE id = ?", []any{1, 9}, false)
	require.NoError(t, err)

	assert.False(t, q.Escaped())
	assert.Equal(t, "UPDATE t SET n = n + 1 WHERE id = 9", q.FinalSQL())
	assert.Empty(t, q.Args())
}

func TestQueryDebugSQL(t *testing.T) {
	q, err := NewQuery(nil).SetQuery("SELECT * FROM t WHERE a = ? AND b = ?", []any{"o'k", nil}, true)
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE a = 'o''k' AND b = NULL", q.DebugSQL())
	assert.Equal(t, q.DebugSQL(), q.String())
}

func TestQueryValidate(t *testing.T) {
	q, _ := NewQuery(nil).SetQuery("   ", nil, true)
	assert.ErrorIs(t, q.Validate(), ErrEmptyQuery)

	q, _ = NewQuery(nil).SetQuery("SELECT ? , ?", []any{1}, true)
	err := q.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 placeholders but 1 binds")

	q, _ = NewQuery(nil).SetQuery("SELECT '?' FROM t", nil, true)
	assert.NoError(t, q.Validate())
	assert.Zero(t, q.PlaceholderCount())
}

func TestQuerySwapPrefix(t *testing.T) {
	q, err := NewQuery(nil).SetQuery("SELECT * FROM db_users JOIN db_roles ON db_users.role = db_roles.id", nil, true)
	require.NoError(t, err)

	_, err = q.SwapPrefix("app_", "db_")
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM app_users JOIN app_roles ON app_users.role = app_roles.id", q.FinalSQL())
	assert.Equal(t, "SELECT * FROM db_users JOIN db_roles ON db_users.role = db_roles.id", q.SQL())
}

func TestQueryFinalization(t *testing.T) {
	q, err := NewQuery(nil).SetQuery("SELECT 1", nil, true)
	require.NoError(t, err)
	assert.False(t, q.Finalized())
	assert.Zero(t, q.Duration())

	start := time.Now().Add(-50 * time.Millisecond)
	end := start.Add(20 * time.Millisecond)
	require.NoError(t, q.SetDuration(start, end))
	assert.True(t, q.Finalized())
	assert.Equal(t, 20*time.Millisecond, q.Duration())
	assert.Equal(t, start, q.StartTime())

	_, err = q.SetQuery("SELECT 2", nil, true)
	assert.ErrorIs(t, err, ErrQueryFinalized)
	_, err = q.SwapPrefix("a_", "b_")
	assert.ErrorIs(t, err, ErrQueryFinalized)
	assert.ErrorIs(t, q.SetDuration(start, end), ErrQueryFinalized)
	assert.Equal(t, "SELECT 1", q.FinalSQL())

	q.SetError(1064, "syntax error")
	assert.True(t, q.HasError())
	assert.Equal(t, 1064, q.ErrorCode())
	assert.Equal(t, "syntax error", q.ErrorMessage())
}

func TestQuerySetDurationZeroEndMeansNow(t *testing.T) {
	q, _ := NewQuery(nil).SetQuery("SELECT 1", nil, true)
	start := time.Now()
	require.NoError(t, q.SetDuration(start, time.Time{}))
	assert.GreaterOrEqual(t, q.Duration(), time.Duration(0))
}

func TestQueryCloneIsUnfinalized(t *testing.T) {
	q, _ := NewQuery(dialect.Postgres()).SetQuery("SELECT * FROM t WHERE id = ?", []any{1}, true)
	require.NoError(t, q.SetDuration(time.Now(), time.Now()))
	q.SetError(1, "x")

	c := q.clone()
	assert.False(t, c.Finalized())
	assert.False(t, c.HasError())
	assert.Equal(t, q.FinalSQL(), c.FinalSQL())

	b := q.withBinds([]any{42})
	assert.Equal(t, []any{42}, b.Args())
	assert.Equal(t, []any{1}, q.Args())
}

func TestQueryIsWriteType(t *testing.T) {
	write, _ := NewQuery(nil).SetQuery("  insert into t values (1)", nil, true)
	read, _ := NewQuery(nil).SetQuery("SELECT * FROM t", nil, true)
	assert.True(t, write.IsWriteType())
	assert.False(t, read.IsWriteType())
}
